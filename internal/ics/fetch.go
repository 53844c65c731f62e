package ics

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"homepanel/internal/fileutil"
	appLog "homepanel/internal/log"
	"homepanel/internal/observability"
)

// ErrStatus is returned for non-OK responses from an ICS endpoint.
var ErrStatus = errors.New("ics endpoint error")

// Source represents a single ICS subscription.
type Source struct {
	// ID is an internal identifier (config calendar ID).
	ID string
	// URL is the ICS endpoint.
	URL string
}

// FetchResult contains the outcome of fetching a single ICS source.
type FetchResult struct {
	Source      Source
	Body        []byte // ICS payload (either freshly fetched or from disk)
	NotModified bool   // true if the server answered 304 and the stored body was reused
}

// cacheEntry holds HTTP validator metadata for a single ICS URL.
type cacheEntry struct {
	URL          string    `json:"url"`
	ETag         string    `json:"etag,omitempty"`
	LastModified string    `json:"last_modified,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Fetcher fetches ICS feeds with conditional requests (ETag /
// Last-Modified). The last body is kept on disk only so a 304 can be
// answered; transport errors are never masked with stored data.
type Fetcher struct {
	client   *http.Client
	cacheDir string
	logger   appLog.Logger
	metrics  *observability.Metrics

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

// NewFetcher creates a new ICS Fetcher.
//
// cacheDir is the base directory where per-URL subdirectories holding
// metadata and the last body are stored.
func NewFetcher(cacheDir string, timeout time.Duration, logger appLog.Logger, metrics *observability.Metrics) *Fetcher {
	if cacheDir == "" {
		cacheDir = "./cache/ics"
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if metrics == nil {
		metrics = observability.NewUnregisteredMetrics()
	}
	return &Fetcher{
		client:   &http.Client{Timeout: timeout},
		cacheDir: cacheDir,
		logger:   logger,
		metrics:  metrics,
		breakers: make(map[string]*gobreaker.CircuitBreaker),
	}
}

// FetchOne fetches a single ICS source, honoring ETag and Last-Modified.
func (f *Fetcher) FetchOne(ctx context.Context, src Source) (res FetchResult, err error) {
	defer func() {
		f.metrics.UpstreamRequests.WithLabelValues("ics", observability.Outcome(err)).Inc()
	}()

	if src.URL == "" {
		return FetchResult{}, fmt.Errorf("source %s: URL is empty", src.ID)
	}

	cachePath := f.cachePathForURL(src.URL)
	meta, _ := f.loadCacheMeta(cachePath)
	cachedBody, _ := f.loadCacheBody(cachePath)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.URL, nil)
	if err != nil {
		return FetchResult{}, err
	}

	// Only send validators when we can actually serve a 304.
	if len(cachedBody) > 0 && meta.URL == src.URL {
		if meta.ETag != "" {
			req.Header.Set("If-None-Match", meta.ETag)
		}
		if meta.LastModified != "" {
			req.Header.Set("If-Modified-Since", meta.LastModified)
		}
	}

	f.logger.Debug("ics fetch start", "id", src.ID, "url", redactURL(src.URL))

	out, err := f.breaker(src.URL).Execute(func() (interface{}, error) {
		resp, err := f.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		switch resp.StatusCode {
		case http.StatusOK:
			body, err := io.ReadAll(resp.Body)
			if err != nil {
				return nil, err
			}
			newMeta := cacheEntry{
				URL:          src.URL,
				ETag:         resp.Header.Get("ETag"),
				LastModified: resp.Header.Get("Last-Modified"),
			}
			if err := f.saveCache(cachePath, newMeta, body); err != nil {
				// Log but still return the freshly fetched body.
				f.logger.Error("ics cache save failed", err, "id", src.ID, "url", redactURL(src.URL))
			}
			return FetchResult{Source: src, Body: body}, nil

		case http.StatusNotModified:
			if len(cachedBody) == 0 {
				return nil, fmt.Errorf("%w: 304 Not Modified but no stored body", ErrStatus)
			}
			return FetchResult{Source: src, Body: cachedBody, NotModified: true}, nil

		default:
			return nil, fmt.Errorf("%w: %s", ErrStatus, resp.Status)
		}
	})
	if err != nil {
		f.logger.Error("ics fetch failed", err, "id", src.ID, "url", redactURL(src.URL))
		return FetchResult{}, fmt.Errorf("ics %s: %w", src.ID, err)
	}

	res = out.(FetchResult)
	f.logger.Info("ics fetch success", "id", src.ID, "url", redactURL(src.URL), "not_modified", res.NotModified, "bytes", len(res.Body))
	return res, nil
}

func (f *Fetcher) breaker(url string) *gobreaker.CircuitBreaker {
	f.mu.Lock()
	defer f.mu.Unlock()

	if cb, ok := f.breakers[url]; ok {
		return cb
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "ics:" + redactURL(url),
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	f.breakers[url] = cb
	return cb
}

func (f *Fetcher) cachePathForURL(url string) string {
	sum := sha256.Sum256([]byte(url))
	// Use first 16 hex chars as directory name.
	return filepath.Join(f.cacheDir, hex.EncodeToString(sum[:8]))
}

func (f *Fetcher) loadCacheMeta(cachePath string) (cacheEntry, error) {
	var meta cacheEntry
	data, err := os.ReadFile(filepath.Join(cachePath, "meta.json"))
	if err != nil {
		return meta, err
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return cacheEntry{}, err
	}
	return meta, nil
}

func (f *Fetcher) loadCacheBody(cachePath string) ([]byte, error) {
	return os.ReadFile(filepath.Join(cachePath, "body.ics"))
}

func (f *Fetcher) saveCache(cachePath string, meta cacheEntry, body []byte) error {
	// Write body first so meta never points at a missing body.
	if err := fileutil.WriteFileAtomic(filepath.Join(cachePath, "body.ics"), body, 0o600); err != nil {
		return err
	}

	meta.UpdatedAt = time.Now().UTC()
	data, err := json.MarshalIndent(&meta, "", "  ")
	if err != nil {
		return err
	}
	return fileutil.WriteFileAtomic(filepath.Join(cachePath, "meta.json"), data, 0o600)
}

// redactURL hides the path and query of an ICS URL for logging; private
// calendar URLs usually embed a secret token.
//
//	https://example.com/path/to/private.ics?token=abcd -> https://example.com/...(redacted)
func redactURL(u string) string {
	const redactedSuffix = "/...(redacted)"

	i := strings.Index(u, "://")
	if i == -1 {
		return "ics://...(redacted)"
	}
	rest := u[i+3:]
	if j := strings.IndexByte(rest, '/'); j != -1 {
		rest = rest[:j]
	}
	return u[:i+3] + rest + redactedSuffix
}
