// Package crossref is a rate-limited client for the Crossref works API,
// used to recover missing DOIs and journal names by title search.
package crossref

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/medparse/medrec/internal/cache"
	"github.com/medparse/medrec/internal/normalize"
)

const (
	// BaseURL is the Crossref REST API base URL.
	BaseURL = "https://api.crossref.org"

	// DefaultTimeout is the default HTTP request timeout.
	DefaultTimeout = 15 * time.Second

	// RateLimit keeps us well inside the Crossref polite pool.
	RateLimit = 5.0

	// DefaultRows is how many works a title query requests.
	DefaultRows = 5

	// selectFields trims the response to the fields the merger consumes.
	selectFields = "DOI,title,author,issued,container-title,ISSN,URL,volume,issue,page"
)

// stopWords are dropped from title queries; they carry no discriminating
// signal and inflate the query string.
var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true,
	"of": true, "in": true, "to": true, "for": true, "on": true,
	"with": true, "vs": true, "versus": true, "first": true,
	"study": true, "trial": true, "randomized": true,
	"uk": true, "united": true, "kingdom": true,
}

// maxQueryTokens caps the shrunken title length.
const maxQueryTokens = 14

// Work is one Crossref work, reduced to the fields enrichment uses.
type Work struct {
	DOI               string `json:"doi"`
	Title             string `json:"title"`
	ContainerTitle    string `json:"container_title"`
	Year              int    `json:"year"`
	Volume            string `json:"volume"`
	Issue             string `json:"issue"`
	Pages             string `json:"pages"`
	ISSN              string `json:"issn"`
	URL               string `json:"url"`
	FirstAuthorFamily string `json:"first_author_family"`
}

// Client is a rate-limited HTTP client for the Crossref works API.
type Client struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	retry      RetryPolicy
	email      string
	baseURL    string
	cache      *cache.Cache
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithEmail sets the contact email reported in the User-Agent, which
// Crossref uses to route polite-pool traffic.
func WithEmail(email string) ClientOption {
	return func(c *Client) {
		c.email = email
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(url string) ClientOption {
	return func(c *Client) {
		c.baseURL = url
	}
}

// WithCache stores query responses so re-runs skip the network.
func WithCache(cc *cache.Cache) ClientOption {
	return func(c *Client) {
		c.cache = cc
	}
}

// WithRetryPolicy overrides the backoff policy.
func WithRetryPolicy(p RetryPolicy) ClientOption {
	return func(c *Client) {
		c.retry = p
	}
}

// NewClient creates a new Crossref client.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: DefaultTimeout},
		limiter:    rate.NewLimiter(rate.Limit(RateLimit), 1),
		retry:      DefaultRetryPolicy(),
		baseURL:    BaseURL,
		email:      "devnull@example.com",
	}

	if email := os.Getenv("CROSSREF_EMAIL"); email != "" {
		c.email = email
	}

	for _, opt := range opts {
		opt(c)
	}
	return c
}

// QueryTitle searches works by shrunken title, optionally narrowed by
// publication year and first-author family name.
func (c *Client) QueryTitle(ctx context.Context, title string, year int, authorLast string) ([]Work, error) {
	qtitle := shrinkTitle(title)
	if qtitle == "" {
		return nil, nil
	}

	params := url.Values{}
	params.Set("rows", strconv.Itoa(DefaultRows))
	params.Set("select", selectFields)
	params.Set("query.title", qtitle)
	if authorLast != "" {
		params.Set("query.author", authorLast)
	}
	if year != 0 {
		params.Set("filter", fmt.Sprintf("from-pub-date:%d-01-01,until-pub-date:%d-12-31", year, year))
	}
	query := params.Encode()

	cacheKey := cache.Key("crossref/works", query)
	if c.cache != nil {
		if data, ok, err := c.cache.Get(cacheKey); err == nil && ok {
			var works []Work
			if err := json.Unmarshal(data, &works); err == nil {
				return works, nil
			}
		}
	}

	var works []Work
	err := c.retry.Do(ctx, func() error {
		var err error
		works, err = c.fetchWorks(ctx, query)
		return err
	})
	if err != nil {
		return nil, err
	}

	if c.cache != nil {
		if data, err := json.Marshal(works); err == nil {
			// cache failures are not query failures
			c.cache.Set(cacheKey, data)
		}
	}
	return works, nil
}

func (c *Client) fetchWorks(ctx context.Context, query string) ([]Work, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/works?"+query, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", fmt.Sprintf("medrec/1.0 (mailto:%s)", c.email))
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNetworkError, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == 429 {
		return nil, fmt.Errorf("%w: status %d", ErrRateLimited, resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("HTTP %d", resp.StatusCode),
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNetworkError, err)
	}

	var wrapper struct {
		Message struct {
			Items []workItem `json:"items"`
		} `json:"message"`
	}
	if err := json.Unmarshal(body, &wrapper); err != nil {
		return nil, fmt.Errorf("%w: parsing works: %v", ErrInvalidResponse, err)
	}

	works := make([]Work, 0, len(wrapper.Message.Items))
	for _, it := range wrapper.Message.Items {
		works = append(works, it.toWork())
	}
	return works, nil
}

// workItem mirrors one entry of the Crossref works response.
type workItem struct {
	DOI            string     `json:"DOI"`
	Title          []string   `json:"title"`
	ContainerTitle []string   `json:"container-title"`
	Volume         string     `json:"volume"`
	Issue          string     `json:"issue"`
	Page           string     `json:"page"`
	ISSN           []string   `json:"ISSN"`
	URL            string     `json:"URL"`
	Issued         *dateParts `json:"issued"`
	Created        *dateParts `json:"created"`
	PublishedPrint *dateParts `json:"published-print"`
	PublishedWeb   *dateParts `json:"published-online"`
	Author         []struct {
		Family string `json:"family"`
	} `json:"author"`
}

type dateParts struct {
	DateParts [][]int `json:"date-parts"`
}

func (d *dateParts) year() int {
	if d == nil || len(d.DateParts) == 0 || len(d.DateParts[0]) == 0 {
		return 0
	}
	return d.DateParts[0][0]
}

func (it workItem) toWork() Work {
	w := Work{
		DOI:    normalize.DOI(it.DOI),
		Volume: it.Volume,
		Issue:  it.Issue,
		Pages:  it.Page,
		URL:    it.URL,
	}
	if len(it.Title) > 0 {
		w.Title = it.Title[0]
	}
	if len(it.ContainerTitle) > 0 {
		w.ContainerTitle = it.ContainerTitle[0]
	}
	if len(it.ISSN) > 0 {
		w.ISSN = it.ISSN[0]
	}
	for _, d := range []*dateParts{it.Issued, it.Created, it.PublishedPrint, it.PublishedWeb} {
		if y := d.year(); y != 0 {
			w.Year = y
			break
		}
	}
	if len(it.Author) > 0 {
		w.FirstAuthorFamily = strings.ToLower(strings.TrimSpace(it.Author[0].Family))
	}
	return w
}

// shrinkTitle reduces a title to its discriminating tokens: normalized,
// stop words removed, capped in length. Diacritics are already stripped
// by normalization, so the result is safe in a query string.
func shrinkTitle(title string) string {
	var kept []string
	for _, tok := range strings.Fields(normalize.Text(title)) {
		if stopWords[tok] {
			continue
		}
		kept = append(kept, tok)
		if len(kept) == maxQueryTokens {
			break
		}
	}
	return strings.Join(kept, " ")
}
