package crossref

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/medparse/medrec/internal/cache"
	"github.com/medparse/medrec/internal/document"
)

const worksResponse = `{"message": {"items": [
	{
		"DOI": "10.1/ABC",
		"title": ["Early Tracheostomy Outcomes in Critical Care"],
		"container-title": ["Critical Care Medicine"],
		"issued": {"date-parts": [[2015, 3]]},
		"volume": "43",
		"issue": "2",
		"page": "120-128",
		"ISSN": ["0090-3493"],
		"URL": "https://doi.org/10.1/abc",
		"author": [{"family": "Doe"}]
	},
	{
		"DOI": "10.1/other",
		"title": ["An Unrelated Work"],
		"created": {"date-parts": [[2011]]}
	}
]}}`

func fastRetry() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, Multiplier: 2.0, MaxDelay: 10 * time.Millisecond}
}

func TestQueryTitle(t *testing.T) {
	var gotQuery, gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		gotUA = r.Header.Get("User-Agent")
		fmt.Fprint(w, worksResponse)
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL), WithEmail("ops@example.org"))
	works, err := c.QueryTitle(context.Background(), "The Early Tracheostomy Outcomes in Critical Care", 2015, "doe")
	if err != nil {
		t.Fatalf("QueryTitle() error = %v", err)
	}
	if len(works) != 2 {
		t.Fatalf("works = %d, want 2", len(works))
	}

	w := works[0]
	if w.DOI != "10.1/abc" {
		t.Errorf("DOI = %q, want normalized lowercase", w.DOI)
	}
	if w.ContainerTitle != "Critical Care Medicine" || w.Year != 2015 {
		t.Errorf("ContainerTitle/Year = %q/%d", w.ContainerTitle, w.Year)
	}
	if w.ISSN != "0090-3493" || w.Pages != "120-128" {
		t.Errorf("ISSN/Pages = %q/%q", w.ISSN, w.Pages)
	}
	if w.FirstAuthorFamily != "doe" {
		t.Errorf("FirstAuthorFamily = %q", w.FirstAuthorFamily)
	}
	if works[1].Year != 2011 {
		t.Errorf("created date should back up issued, got %d", works[1].Year)
	}

	if !strings.Contains(gotUA, "mailto:ops@example.org") {
		t.Errorf("User-Agent = %q, want polite-pool mailto", gotUA)
	}
	// stop word dropped from the title query
	if strings.Contains(gotQuery, "the+early") {
		t.Errorf("query kept a stop word: %q", gotQuery)
	}
	if !strings.Contains(gotQuery, "filter=from-pub-date%3A2015-01-01%2Cuntil-pub-date%3A2015-12-31") {
		t.Errorf("query missing year filter: %q", gotQuery)
	}
}

func TestQueryTitle_RetriesTransientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, worksResponse)
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL), WithRetryPolicy(fastRetry()))
	works, err := c.QueryTitle(context.Background(), "early tracheostomy outcomes", 0, "")
	if err != nil {
		t.Fatalf("QueryTitle() error = %v", err)
	}
	if len(works) != 2 || calls.Load() != 3 {
		t.Errorf("works=%d calls=%d", len(works), calls.Load())
	}
}

func TestQueryTitle_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL), WithRetryPolicy(fastRetry()))
	_, err := c.QueryTitle(context.Background(), "some title", 0, "")
	if err == nil {
		t.Fatal("expected error")
	}
	if calls.Load() != 1 {
		t.Errorf("400 was retried %d times", calls.Load())
	}
	if IsRetryable(err) {
		t.Error("400 must not be retryable")
	}
}

func TestQueryTitle_CacheSkipsNetwork(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		fmt.Fprint(w, worksResponse)
	}))
	defer srv.Close()

	cc, err := cache.Open(filepath.Join(t.TempDir(), "lookups.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer cc.Close()

	c := NewClient(WithBaseURL(srv.URL), WithCache(cc))
	for i := 0; i < 2; i++ {
		works, err := c.QueryTitle(context.Background(), "early tracheostomy outcomes", 2015, "doe")
		if err != nil {
			t.Fatalf("QueryTitle() #%d error = %v", i+1, err)
		}
		if len(works) != 2 {
			t.Fatalf("works = %d", len(works))
		}
	}
	if calls.Load() != 1 {
		t.Errorf("server saw %d calls, want 1", calls.Load())
	}
}

func TestShrinkTitle(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"The Early Tracheostomy Trial", "early tracheostomy"},
		{"Sepsis in the United Kingdom", "sepsis"},
		{"", ""},
		{"étude délirium", "etude delirium"},
	}
	for _, tt := range tests {
		if got := shrinkTitle(tt.in); got != tt.want {
			t.Errorf("shrinkTitle(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}

	long := strings.Repeat("tokenword ", 20)
	if got := strings.Fields(shrinkTitle(long)); len(got) > maxQueryTokens {
		t.Errorf("shrunk title has %d tokens, cap is %d", len(got), maxQueryTokens)
	}
}

func TestScoreAndAccept(t *testing.T) {
	w := Work{Title: "Early Tracheostomy Outcomes in Critical Care", Year: 2015, FirstAuthorFamily: "doe"}

	exact := Score("Early Tracheostomy Outcomes in Critical Care", 2015, "doe", w)
	if math.Abs(exact-1.1) > 1e-9 {
		t.Errorf("exact score = %v, want 1.0 + both bonuses", exact)
	}
	if !Accept(exact, 2015, "doe", w) {
		t.Error("exact match must be accepted")
	}

	// corroboration rescues a near-threshold title
	if !Accept(0.9, 2015, "doe", w) {
		t.Error("0.9 with year and author agreement should pass")
	}
	if Accept(0.9, 2016, "doe", w) {
		t.Error("0.9 without year agreement should fail")
	}
	if Accept(0.9, 2015, "roe", w) {
		t.Error("0.9 without author agreement should fail")
	}
	if Accept(0.5, 2015, "doe", w) {
		t.Error("a weak title is never rescued")
	}
}

func TestEnrich(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, worksResponse)
	}))
	defer srv.Close()
	c := NewClient(WithBaseURL(srv.URL))

	var d document.Document
	if err := json.Unmarshal([]byte(`{"metadata": {
		"title": "Early Tracheostomy Outcomes in Critical Care",
		"year": 2015,
		"authors": [{"given": "Jane", "family": "Doe"}]}}`), &d); err != nil {
		t.Fatal(err)
	}

	changed, err := Enrich(context.Background(), c, &d)
	if err != nil {
		t.Fatalf("Enrich() error = %v", err)
	}
	want := []string{"doi", "journal", "volume", "issue", "pages", "issn", "url", "year_norm"}
	if len(changed) != len(want) {
		t.Fatalf("changed = %v", changed)
	}
	for i := range want {
		if changed[i] != want[i] {
			t.Errorf("changed[%d] = %q, want %q", i, changed[i], want[i])
		}
	}

	md := &d.Metadata
	if md.DOI != "10.1/abc" || md.Journal != "Critical Care Medicine" {
		t.Errorf("DOI/Journal = %q/%q", md.DOI, md.Journal)
	}
	if md.YearNorm != "2015" {
		t.Errorf("YearNorm = %q", md.YearNorm)
	}
	for _, p := range d.Provenance.Patches {
		if p.Source != SourceCrossref {
			t.Errorf("patch %s source = %q", p.Path, p.Source)
		}
		if p.Confidence < AcceptScoreCorroborated {
			t.Errorf("patch %s confidence = %v", p.Path, p.Confidence)
		}
	}
}

func TestEnrich_SkipsCompleteDocuments(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("complete document should not hit the network")
	}))
	defer srv.Close()
	c := NewClient(WithBaseURL(srv.URL))

	var d document.Document
	d.Metadata.Title = "T"
	d.Metadata.DOI = "10.1/a"
	d.Metadata.Journal = "J"

	changed, err := Enrich(context.Background(), c, &d)
	if err != nil || len(changed) != 0 {
		t.Errorf("Enrich() = %v, %v", changed, err)
	}
}

func TestEnrich_RejectsWeakMatches(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, worksResponse)
	}))
	defer srv.Close()
	c := NewClient(WithBaseURL(srv.URL))

	var d document.Document
	d.Metadata.Title = "Completely Different Topic Altogether"

	changed, err := Enrich(context.Background(), c, &d)
	if err != nil {
		t.Fatal(err)
	}
	if len(changed) != 0 || d.Metadata.DOI != "" {
		t.Errorf("weak match merged: %v, doi=%q", changed, d.Metadata.DOI)
	}
}

func TestDocumentYear_ScansProse(t *testing.T) {
	var d document.Document
	if err := json.Unmarshal([]byte(`{"metadata": {"title": "T", "year": "Published 2015"}}`), &d); err != nil {
		t.Fatal(err)
	}
	if got := documentYear(&d.Metadata); got != 2015 {
		t.Errorf("documentYear = %d, want 2015", got)
	}
}
