// Package collyfetcher implements racecard.Fetcher using gocolly.
package collyfetcher

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/racecards-crawler/internal/metrics"
	"github.com/JakeFAU/racecards-crawler/internal/policy/ratelimit"
	"github.com/JakeFAU/racecards-crawler/internal/racecard"
)

// DefaultMaxConnections bounds simultaneous requests per batch.
const DefaultMaxConnections = 30

const sourceKey = "source_url"

// Config controls collector behavior.
type Config struct {
	UserAgent      string
	MaxConnections int
	Timeout        time.Duration
	RespectRobots  bool
	Retry          RetryConfig
	RateLimit      ratelimit.Config
}

// Fetcher fetches batches of pages with bounded concurrency. Every batch
// shares one transport, so connections are pooled across batches.
type Fetcher struct {
	cfg       Config
	transport http.RoundTripper
	logger    *zap.Logger
}

// New builds a Fetcher.
func New(cfg Config, logger *zap.Logger) *Fetcher {
	if cfg.MaxConnections <= 0 {
		cfg.MaxConnections = DefaultMaxConnections
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{
		cfg: cfg,
		transport: &retryTransport{
			base:    newHTTPTransport(cfg.MaxConnections),
			limiter: ratelimit.New(cfg.RateLimit),
			policy:  NewRetryPolicy(cfg.Retry),
		},
		logger: logger,
	}
}

// FetchAll fetches every URL and returns one Document per distinct URL in
// completion order. A failure on one URL is reported on its Document and
// never aborts the rest of the batch.
func (f *Fetcher) FetchAll(ctx context.Context, urls []string) []racecard.Document {
	return f.fetchAll(ctx, "", urls)
}

// Fetch retrieves a single document.
func (f *Fetcher) Fetch(ctx context.Context, url string) racecard.Document {
	return f.ForKind("").Fetch(ctx, url)
}

// ForKind returns a view of the fetcher that labels metrics with kind.
func (f *Fetcher) ForKind(kind string) *KindFetcher {
	return &KindFetcher{fetcher: f, kind: kind}
}

// KindFetcher is a Fetcher whose batches are counted under one document kind.
type KindFetcher struct {
	fetcher *Fetcher
	kind    string
}

// FetchAll implements racecard.Fetcher.
func (k *KindFetcher) FetchAll(ctx context.Context, urls []string) []racecard.Document {
	return k.fetcher.fetchAll(ctx, k.kind, urls)
}

// Fetch retrieves a single document.
func (k *KindFetcher) Fetch(ctx context.Context, url string) racecard.Document {
	docs := k.fetcher.fetchAll(ctx, k.kind, []string{url})
	if len(docs) == 0 {
		return racecard.Document{URL: url, Err: fmt.Errorf("fetch %s: no response", url)}
	}
	return docs[0]
}

func (f *Fetcher) fetchAll(ctx context.Context, kind string, urls []string) []racecard.Document {
	unique := dedupe(urls)
	if len(unique) == 0 {
		return nil
	}
	start := time.Now()
	batch := &batchResults{docs: make([]racecard.Document, 0, len(unique))}

	collector, err := f.newCollector(ctx)
	if err != nil {
		for _, u := range unique {
			batch.add(racecard.Document{URL: u, Err: err})
		}
		return batch.docs
	}
	f.configureCollectorHooks(collector, kind, batch.add)

	for _, u := range unique {
		reqCtx := colly.NewContext()
		reqCtx.Put(sourceKey, u)
		if err := collector.Request(http.MethodGet, u, nil, reqCtx, nil); err != nil {
			metrics.ObserveDocument(kind, u, err, 0)
			batch.add(racecard.Document{URL: u, Err: fmt.Errorf("colly visit %s: %w", u, err)})
		}
	}
	collector.Wait()

	out, failed := batch.snapshot()
	metrics.ObserveFetchBatch(kind, time.Since(start))
	f.logger.Debug("batch fetched",
		zap.String("kind", kind),
		zap.Int("urls", len(unique)),
		zap.Int("failed", failed),
		zap.Duration("duration", time.Since(start)),
	)
	return out
}

func (f *Fetcher) newCollector(ctx context.Context) (*colly.Collector, error) {
	collector := colly.NewCollector(
		colly.Async(true),
		colly.AllowURLRevisit(),
		colly.StdlibContext(ctx),
	)
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	collector.IgnoreRobotsTxt = !f.cfg.RespectRobots
	collector.MaxBodySize = 0
	collector.WithTransport(f.transport)
	collector.SetRequestTimeout(f.cfg.Timeout)
	if err := collector.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: f.cfg.MaxConnections,
	}); err != nil {
		return nil, fmt.Errorf("set collector limits: %w", err)
	}
	return collector, nil
}

type collectorHooks interface {
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

func (f *Fetcher) configureCollectorHooks(hooks collectorHooks, kind string, collect func(racecard.Document)) {
	hooks.OnResponse(func(r *colly.Response) {
		source := sourceURL(r)
		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(r.Body))
		if err != nil {
			metrics.ObserveDocument(kind, source, err, len(r.Body))
			collect(racecard.Document{URL: source, Err: fmt.Errorf("parse %s: %w", source, err)})
			return
		}
		metrics.ObserveDocument(kind, source, nil, len(r.Body))
		collect(racecard.Document{URL: source, Doc: doc})
	})

	hooks.OnError(func(r *colly.Response, err error) {
		source := sourceURL(r)
		metrics.ObserveDocument(kind, source, err, 0)
		f.logger.Warn("fetch failed", zap.String("kind", kind), zap.String("url", source), zap.Error(err))
		collect(racecard.Document{URL: source, Err: fmt.Errorf("fetch %s: %w", source, err)})
	})
}

// batchResults collects documents from concurrent collector callbacks.
type batchResults struct {
	mu   sync.Mutex
	docs []racecard.Document
}

func (b *batchResults) add(doc racecard.Document) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.docs = append(b.docs, doc)
}

func (b *batchResults) snapshot() ([]racecard.Document, int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	failed := 0
	for _, doc := range b.docs {
		if doc.Err != nil {
			failed++
		}
	}
	return append([]racecard.Document(nil), b.docs...), failed
}

// sourceURL returns the URL as requested, before any redirects.
func sourceURL(r *colly.Response) string {
	if r == nil {
		return ""
	}
	if r.Ctx != nil {
		if source := r.Ctx.Get(sourceKey); source != "" {
			return source
		}
	}
	if r.Request != nil && r.Request.URL != nil {
		return r.Request.URL.String()
	}
	return ""
}

func dedupe(urls []string) []string {
	seen := make(map[string]struct{}, len(urls))
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		if u == "" {
			continue
		}
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}

func newHTTPTransport(maxConns int) *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   maxConns,
		IdleConnTimeout:       90 * time.Second,
	}
}
