package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// HTTPError is returned for any non-2xx response.
type HTTPError struct {
	StatusCode int
	URL        string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d for %s", e.StatusCode, e.URL)
}

// Fetcher runs the per-record task: rate-limit, fetch, extract, classify.
type Fetcher struct {
	client    *http.Client
	baseURL   string
	header    http.Header
	maxBody   int64
	limiter   Limiter
	extractor *Extractor
	sample    *SampleSaver
	logger    *slog.Logger
}

func NewFetcher(cfg Config, limiter Limiter, extractor *Extractor, sample *SampleSaver, logger *slog.Logger) *Fetcher {
	if logger == nil {
		logger = slog.Default()
	}
	h := http.Header{}
	h.Set("User-Agent", cfg.Fetch.UserAgent)
	if cfg.Fetch.Accept != "" {
		h.Set("Accept", cfg.Fetch.Accept)
	}
	// every worker talks to the same host
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.Concurrency > transport.MaxIdleConnsPerHost {
		transport.MaxIdleConnsPerHost = cfg.Concurrency
	}
	return &Fetcher{
		client: &http.Client{
			Timeout:   cfg.Fetch.Timeout,
			Transport: transport,
		},
		baseURL:   cfg.Fetch.BaseURL,
		header:    h,
		maxBody:   cfg.Fetch.MaxBodyBytes,
		limiter:   limiter,
		extractor: extractor,
		sample:    sample,
		logger:    logger,
	}
}

// DocumentURL resolves a relative archive path against the base URL.
func (f *Fetcher) DocumentURL(fileName string) string {
	return strings.TrimSuffix(f.baseURL, "/") + "/" + strings.TrimPrefix(fileName, "/")
}

// Run never returns without an outcome and never retries.
func (f *Fetcher) Run(ctx context.Context, job Job) Outcome {
	if problem := job.Malformed(); problem != "" {
		PipelineStats.Malformed.Add(1)
		return failure(job, KindMalformedInput, problem)
	}

	if err := f.limiter.Wait(ctx); err != nil {
		PipelineStats.Cancelled.Add(1)
		return failure(job, KindCancelled, "cancelled: "+err.Error())
	}

	url := f.DocumentURL(job.Record.FileName)
	start := time.Now()
	body, err := f.FetchDocument(ctx, url)
	fetchDuration.Observe(time.Since(start).Seconds())
	PipelineStats.Fetched.Add(1)

	if err != nil {
		PipelineStats.FetchErrors.Add(1)
		var httpErr *HTTPError
		if errors.As(err, &httpErr) {
			f.logger.Debug("fetch: bad status", "url", url, "status", httpErr.StatusCode)
			return failure(job, KindHTTPStatusError, fmt.Sprintf("http status %d", httpErr.StatusCode))
		}
		f.logger.Debug("fetch: request failed", "url", url, "err", err)
		return failure(job, KindTransportError, "request error: "+err.Error())
	}

	text := string(body)
	v, rule, ok := f.extractor.ExtractWithRule(text)
	if !ok {
		PipelineStats.Misses.Add(1)
		if wrote, err := f.sample.Offer(text); err != nil {
			f.logger.Warn("fetch: sample not saved", "err", err)
		} else if wrote {
			f.logger.Info("fetch: saved sample of unmatched document", "url", url, "path", f.sample.path)
		}
		return failure(job, KindExtractionMiss, "value not found")
	}

	PipelineStats.Extracted.Add(1)
	ruleMatches.WithLabelValues(rule).Inc()
	return success(job, v)
}

// FetchDocument GETs url and returns the body of a 2xx response. The request
// is detached from ctx cancellation so a shutdown lets it finish; the client
// timeout still bounds it.
func (f *Fetcher) FetchDocument(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(context.WithoutCancel(ctx), http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for k, vs := range f.header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return nil, &HTTPError{StatusCode: resp.StatusCode, URL: url}
	}

	var r io.Reader = resp.Body
	if f.maxBody > 0 {
		r = io.LimitReader(resp.Body, f.maxBody)
	}
	body, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}
