// Package fetch pulls paginated result sets from the reporting API.
// It layers retry with backoff, request rate limiting, resumable
// progress checkpoints and the run-scoped response cache under a
// single FetchAll call.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/time/rate"

	"github.com/secreport/secreport/internal/jsonutil"
	"github.com/secreport/secreport/pkg/cache"
	"github.com/secreport/secreport/pkg/checkpoint"
	"github.com/secreport/secreport/pkg/metrics"
	"github.com/secreport/secreport/pkg/query"
	"github.com/secreport/secreport/pkg/retry"
)

const (
	defaultLimit = 400
	// Pagination stops after this many consecutive empty pages. Some
	// endpoints interleave empty pages inside a result set.
	maxConsecutiveEmpty = 3
)

// Client fetches from one API host.
type Client struct {
	BaseURL string

	http        *http.Client
	limiter     *rate.Limiter
	cache       *cache.Cache
	checkpoints *checkpoint.Manager
	retryCfg    retry.Config
	dates       query.DateRange
	logger      *slog.Logger
	metrics     *metrics.Set
}

// Options configures a Client. Cache and Checkpoints may be nil to
// disable the corresponding behavior.
type Options struct {
	BaseURL     string
	HTTP        *http.Client
	Cache       *cache.Cache
	Checkpoints *checkpoint.Manager
	Retry       retry.Config
	Dates       query.DateRange
	RateLimit   rate.Limit // requests per second; 0 means unlimited
	Logger      *slog.Logger
	Metrics     *metrics.Set
}

// New returns a Client ready for FetchAll calls.
func New(opts Options) *Client {
	httpClient := opts.HTTP
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	limit := opts.RateLimit
	if limit == 0 {
		limit = rate.Inf
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = retry.DefaultConfig()
	}
	return &Client{
		BaseURL:     strings.TrimRight(opts.BaseURL, "/"),
		http:        httpClient,
		limiter:     rate.NewLimiter(limit, 1),
		cache:       opts.Cache,
		checkpoints: opts.Checkpoints,
		retryCfg:    opts.Retry,
		dates:       opts.Dates,
		logger:      logger,
		metrics:     opts.Metrics,
	}
}

// page is one decoded API response.
type page struct {
	records []map[string]any
}

// FetchPage requests a single page. 429 and 5xx responses and
// transport errors come back as TransientError; other non-2xx
// statuses as QueryError.
func (c *Client) FetchPage(ctx context.Context, cfg query.Config) (*page, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+cfg.Endpoint, nil)
	if err != nil {
		return nil, err
	}
	q, err := c.encodeParams(cfg)
	if err != nil {
		return nil, err
	}
	req.URL.RawQuery = q

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &TransientError{Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		io.Copy(io.Discard, resp.Body)
		return nil, &TransientError{Status: resp.StatusCode}
	case resp.StatusCode >= 400:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &QueryError{Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	records, err := decodeRecords(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("decoding %s response: %w", cfg.Endpoint, err)
	}
	if c.metrics != nil {
		c.metrics.PagesFetched.Inc()
	}
	return &page{records: records}, nil
}

func (c *Client) encodeParams(cfg query.Config) (string, error) {
	v := url.Values{}
	if cfg.Params.Filter != "" {
		f, err := query.SubstituteDates(cfg.Params.Filter, cfg.Endpoint, c.dates)
		if err != nil {
			return "", err
		}
		v.Set("filter", f)
	}
	if cfg.Params.Sort != "" {
		v.Set("sort", cfg.Params.Sort)
	}
	if cfg.Params.Limit > 0 {
		v.Set("limit", strconv.Itoa(cfg.Params.Limit))
	}
	if cfg.Params.Offset > 0 {
		v.Set("offset", strconv.Itoa(cfg.Params.Offset))
	}
	if cfg.Params.Archived != nil {
		v.Set("archived", strconv.FormatBool(*cfg.Params.Archived))
	}
	return v.Encode(), nil
}

// decodeRecords accepts the response shapes the API actually emits: a
// bare array, or an object wrapping the array under items, scans or
// data. A lone object decodes as a single record.
func decodeRecords(r io.Reader) ([]map[string]any, error) {
	var raw any
	if err := jsonutil.UnmarshalRead(r, &raw); err != nil {
		return nil, err
	}
	switch v := raw.(type) {
	case []any:
		return toRecords(v)
	case map[string]any:
		for _, key := range []string{"items", "scans", "data"} {
			if items, ok := v[key].([]any); ok {
				return toRecords(items)
			}
		}
		if len(v) == 0 {
			return nil, nil
		}
		return []map[string]any{v}, nil
	case nil:
		return nil, nil
	}
	return nil, fmt.Errorf("unexpected response shape %T", raw)
}

func toRecords(items []any) ([]map[string]any, error) {
	out := make([]map[string]any, 0, len(items))
	for _, it := range items {
		rec, ok := it.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("unexpected record shape %T", it)
		}
		out = append(out, rec)
	}
	return out, nil
}

// FetchAll pulls every page of a query. The cache is consulted first;
// on a miss the client pages through the endpoint, checkpointing after
// every page so an interrupted run resumes at the saved offset.
// Pagination ends after three consecutive empty pages or when a page
// repeats record IDs already collected, whichever comes first.
//
// The checkpoint is removed and the result cached only after the full
// set is in hand.
func (c *Client) FetchAll(ctx context.Context, cfg query.Config) ([]map[string]any, error) {
	if c.cache != nil {
		if records, ok := c.cache.Get(cfg); ok {
			c.logger.Info("using cached data",
				"endpoint", cfg.Endpoint, "records", len(records))
			return records, nil
		}
	}

	limit := cfg.Params.Limit
	if limit <= 0 {
		limit = defaultLimit
	}

	offset := 0
	var results []map[string]any
	seen := make(map[string]bool)

	if c.checkpoints != nil {
		state, err := c.checkpoints.Load(cfg.Endpoint)
		if err != nil {
			return nil, err
		}
		if state != nil {
			offset = state.Offset
			results = state.Results
			for _, rec := range results {
				if id := recordID(rec); id != "" {
					seen[id] = true
				}
			}
			c.logger.Info("resuming fetch",
				"endpoint", cfg.Endpoint, "offset", offset, "records", len(results))
		}
	}

	consecutiveEmpty := 0
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		pageCfg := cfg
		pageCfg.Params = cfg.Params.WithOffset(offset)
		pageCfg.Params.Limit = limit

		var pg *page
		err := retry.Do(ctx, c.retryCfg, func() error {
			var ferr error
			pg, ferr = c.FetchPage(ctx, pageCfg)
			if ferr == nil {
				return nil
			}
			var qe *QueryError
			if errors.As(ferr, &qe) {
				return retry.Stop(ferr)
			}
			if c.metrics != nil {
				c.metrics.Retries.Inc()
			}
			c.logger.Warn("page fetch failed, will retry",
				"endpoint", cfg.Endpoint, "offset", offset, "error", ferr)
			return ferr
		})
		if err != nil {
			// Checkpoint stays on disk so the next run resumes here.
			return nil, fmt.Errorf("fetching %s at offset %d: %w", cfg.Endpoint, offset, err)
		}

		if len(pg.records) == 0 {
			consecutiveEmpty++
			if consecutiveEmpty >= maxConsecutiveEmpty {
				break
			}
			offset += limit
			continue
		}
		consecutiveEmpty = 0

		// A page of already-seen IDs means the endpoint ignored the
		// offset and is replaying from the start.
		if overlaps(pg.records, seen) {
			c.logger.Debug("duplicate record ids, pagination complete",
				"endpoint", cfg.Endpoint, "offset", offset)
			break
		}

		results = append(results, pg.records...)
		for _, rec := range pg.records {
			if id := recordID(rec); id != "" {
				seen[id] = true
			}
		}
		offset += limit

		if c.checkpoints != nil {
			err := c.checkpoints.Save(cfg.Endpoint, &checkpoint.State{
				Offset:  offset,
				Results: results,
			})
			if errors.Is(err, checkpoint.ErrClaimed) {
				return nil, &AbortedError{Endpoint: cfg.Endpoint, Err: err}
			}
			if err != nil {
				return nil, fmt.Errorf("saving progress for %s: %w", cfg.Endpoint, err)
			}
		}
		c.logger.Debug("page fetched",
			"endpoint", cfg.Endpoint, "page", len(pg.records), "total", len(results))
	}

	if c.checkpoints != nil {
		if err := c.checkpoints.Delete(cfg.Endpoint); err != nil {
			c.logger.Warn("could not remove progress file",
				"endpoint", cfg.Endpoint, "error", err)
		}
	}
	if c.cache != nil {
		c.cache.Put(cfg, results)
	}
	c.logger.Info("fetch complete", "endpoint", cfg.Endpoint, "records", len(results))
	return results, nil
}

// Ping issues a minimal request to verify the host and token work.
func (c *Client) Ping(ctx context.Context, endpoint string) error {
	_, err := c.FetchPage(ctx, query.Config{
		Endpoint: endpoint,
		Params:   query.Params{Limit: 1},
	})
	return err
}

func recordID(rec map[string]any) string {
	v, ok := rec["id"]
	if !ok || v == nil {
		return ""
	}
	return fmt.Sprintf("%v", v)
}

func overlaps(records []map[string]any, seen map[string]bool) bool {
	for _, rec := range records {
		if id := recordID(rec); id != "" && seen[id] {
			return true
		}
	}
	return false
}
