// Package gate enforces ceilings on audit summary counters so a
// regression in metadata quality fails the build instead of shipping.
package gate

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Ceilings maps summary counter names to the highest value allowed to
// pass. Metrics not present in the map are not gated.
type Ceilings map[string]int

// Default returns the gated metrics with zero-tolerance ceilings.
func Default() Ceilings {
	return Ceilings{
		"missing_doi":     0,
		"missing_journal": 0,
		"missing_year":    0,
		"missing_title":   0,
		"empty_authors":   0,
	}
}

// EnvPrefix prefixes the per-metric environment overrides, e.g.
// GATE_MISSING_DOI=3 raises the missing_doi ceiling to 3.
const EnvPrefix = "GATE_"

// ApplyEnv overrides ceilings from environment variables. Lookup is
// os.LookupEnv in production and a map in tests.
func (c Ceilings) ApplyEnv(lookup func(string) (string, bool)) error {
	for metric := range c {
		name := EnvPrefix + strings.ToUpper(metric)
		raw, ok := lookup(name)
		if !ok || raw == "" {
			continue
		}
		limit, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			return fmt.Errorf("invalid %s value %q: %w", name, raw, err)
		}
		c[metric] = limit
	}
	return nil
}

// Merge overlays explicit ceiling overrides, adding metrics not gated by
// default.
func (c Ceilings) Merge(overrides map[string]int) {
	for metric, limit := range overrides {
		c[metric] = limit
	}
}

// Violation is one exceeded ceiling.
type Violation struct {
	Metric string
	Value  int
	Limit  int
}

func (v Violation) String() string {
	return fmt.Sprintf("%s=%d > %d", v.Metric, v.Value, v.Limit)
}

// Check compares summary counters against the ceilings. Metrics absent
// from the summary count as zero. Violations come back sorted by metric
// name.
func Check(summary map[string]int, c Ceilings) []Violation {
	metrics := make([]string, 0, len(c))
	for metric := range c {
		metrics = append(metrics, metric)
	}
	sort.Strings(metrics)

	var violations []Violation
	for _, metric := range metrics {
		if value := summary[metric]; value > c[metric] {
			violations = append(violations, Violation{Metric: metric, Value: value, Limit: c[metric]})
		}
	}
	return violations
}
