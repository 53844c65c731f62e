package cache

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"

	appLog "homepanel/internal/log"
	"homepanel/internal/fileutil"
	"homepanel/internal/observability"
)

var (
	// ErrFetch wraps every error returned by a feed's FetchFunc.
	ErrFetch = errors.New("fetch failed")
	// ErrInvalidRecord marks a persisted record that failed decoding or validation.
	ErrInvalidRecord = errors.New("invalid cache record")
)

// Payload is implemented by every snapshot type stored in a Cache.
type Payload interface {
	Validate() error
}

// Feed identifies one cached data source.
type Feed struct {
	// ID is used as the singleflight key and in logs/metrics.
	ID string
	// Path is the single JSON file holding the feed's record.
	Path string
	// TTL is how long a record is served before the next read refreshes it.
	// Only whole seconds are significant.
	TTL time.Duration
}

// Record is the persisted form of a snapshot: the fetch time in epoch
// seconds plus the payload.
type Record[T Payload] struct {
	Timestamp int64 `json:"timestamp"`
	Payload   T     `json:"payload"`
}

// FetchedAt returns Timestamp as a time.
func (r Record[T]) FetchedAt() time.Time {
	return time.Unix(r.Timestamp, 0)
}

// FetchFunc produces a fresh payload. now is the time the refresh was
// triggered at and becomes the record timestamp.
type FetchFunc[T Payload] func(ctx context.Context, now time.Time) (T, error)

// Options carries the ambient collaborators of a Cache.
type Options struct {
	Clock   clockwork.Clock
	Logger  appLog.Logger
	Metrics *observability.Metrics
}

// Cache serves one feed's snapshot from its file while it is younger than
// the TTL and refreshes it through fetch otherwise.
//
// Concurrent callers that find the record stale share a single refresh.
type Cache[T Payload] struct {
	feed    Feed
	fetch   FetchFunc[T]
	clock   clockwork.Clock
	logger  appLog.Logger
	metrics *observability.Metrics
	group   singleflight.Group
}

// New creates a Cache for feed.
func New[T Payload](feed Feed, fetch FetchFunc[T], opts Options) (*Cache[T], error) {
	if feed.ID == "" {
		return nil, errors.New("cache: feed id is empty")
	}
	if feed.Path == "" {
		return nil, fmt.Errorf("cache: feed %s: path is empty", feed.ID)
	}
	if feed.TTL < time.Second {
		return nil, fmt.Errorf("cache: feed %s: ttl must be at least one second", feed.ID)
	}
	if fetch == nil {
		return nil, fmt.Errorf("cache: feed %s: fetch func is nil", feed.ID)
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Metrics == nil {
		opts.Metrics = observability.NewUnregisteredMetrics()
	}
	return &Cache[T]{
		feed:    feed,
		fetch:   fetch,
		clock:   opts.Clock,
		logger:  opts.Logger.With("feed", feed.ID),
		metrics: opts.Metrics,
	}, nil
}

// Feed returns the feed this cache serves.
func (c *Cache[T]) Feed() Feed {
	return c.feed
}

// Get returns the feed's snapshot as of the cache clock's current time.
func (c *Cache[T]) Get(ctx context.Context) (Record[T], error) {
	return c.GetAt(ctx, c.clock.Now())
}

// GetAt returns the persisted record when now < timestamp + TTL. Otherwise,
// including when the file is missing or invalid, it calls fetch, persists
// the result and returns it. Fetch errors are returned wrapped in ErrFetch;
// nothing is retried.
func (c *Cache[T]) GetAt(ctx context.Context, now time.Time) (Record[T], error) {
	rec, err := c.read()
	switch {
	case err == nil && c.fresh(rec, now):
		c.metrics.CacheLookups.WithLabelValues(c.feed.ID, observability.ResultHit).Inc()
		c.metrics.SnapshotAge.WithLabelValues(c.feed.ID).Set(float64(now.Unix() - rec.Timestamp))
		c.logger.Debug("using fresh cache", "timestamp", rec.Timestamp)
		return rec, nil
	case err == nil:
		c.metrics.CacheLookups.WithLabelValues(c.feed.ID, observability.ResultExpired).Inc()
		c.logger.Info("cache expired; refreshing", "timestamp", rec.Timestamp, "ttl", c.feed.TTL)
	case errors.Is(err, fs.ErrNotExist):
		c.metrics.CacheLookups.WithLabelValues(c.feed.ID, observability.ResultMiss).Inc()
		c.logger.Error("cache file missing; refreshing", err, "path", c.feed.Path)
	default:
		c.metrics.CacheLookups.WithLabelValues(c.feed.ID, observability.ResultInvalid).Inc()
		c.logger.Error("cache record unusable; refreshing", err, "path", c.feed.Path)
	}

	v, err, shared := c.group.Do(c.feed.ID, func() (any, error) {
		// A refresh may have completed between our read and joining the group.
		if rec, err := c.read(); err == nil && c.fresh(rec, now) {
			return rec, nil
		}
		// Joined callers share this refresh, so the first caller going away
		// must not cancel it. Upstream clients bound it with their own timeouts.
		return c.refresh(context.WithoutCancel(ctx), now)
	})
	if err != nil {
		return Record[T]{}, err
	}
	if shared {
		c.logger.Debug("joined in-flight refresh")
	}
	rec = v.(Record[T])
	c.metrics.SnapshotAge.WithLabelValues(c.feed.ID).Set(float64(now.Unix() - rec.Timestamp))
	return rec, nil
}

// Peek returns the persisted record regardless of its age. ok is false when
// there is no valid record on disk.
func (c *Cache[T]) Peek() (rec Record[T], ok bool) {
	rec, err := c.read()
	if err != nil {
		return Record[T]{}, false
	}
	return rec, true
}

func (c *Cache[T]) fresh(rec Record[T], now time.Time) bool {
	ttl := int64(c.feed.TTL / time.Second)
	return now.Unix() < rec.Timestamp+ttl
}

func (c *Cache[T]) refresh(ctx context.Context, now time.Time) (Record[T], error) {
	started := time.Now()
	defer func() {
		c.metrics.RefreshDuration.WithLabelValues(c.feed.ID).Observe(time.Since(started).Seconds())
	}()

	payload, err := c.fetch(ctx, now)
	if err == nil {
		err = payload.Validate()
	}
	c.metrics.CacheRefreshes.WithLabelValues(c.feed.ID, observability.Outcome(err)).Inc()
	if err != nil {
		return Record[T]{}, fmt.Errorf("%w: feed %s: %w", ErrFetch, c.feed.ID, err)
	}

	rec := Record[T]{Timestamp: now.Unix(), Payload: payload}
	if err := c.write(rec); err != nil {
		// The fresh value is still good; the next read will simply miss.
		c.metrics.CacheWriteError.WithLabelValues(c.feed.ID).Inc()
		c.logger.Error("cache write failed", err, "path", c.feed.Path)
	} else {
		c.logger.Info("cache refreshed", "timestamp", rec.Timestamp, "path", c.feed.Path)
	}
	return rec, nil
}

// read loads and validates the record. Unknown fields, trailing data, a
// non-positive timestamp or an invalid payload all yield ErrInvalidRecord.
func (c *Cache[T]) read() (Record[T], error) {
	data, err := os.ReadFile(c.feed.Path)
	if err != nil {
		return Record[T]{}, err
	}
	return decodeRecord[T](data)
}

func decodeRecord[T Payload](data []byte) (Record[T], error) {
	var rec Record[T]

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&rec); err != nil {
		return Record[T]{}, fmt.Errorf("%w: %w", ErrInvalidRecord, err)
	}
	if dec.More() {
		return Record[T]{}, fmt.Errorf("%w: trailing data", ErrInvalidRecord)
	}
	if rec.Timestamp <= 0 {
		return Record[T]{}, fmt.Errorf("%w: missing timestamp", ErrInvalidRecord)
	}
	if err := rec.Payload.Validate(); err != nil {
		return Record[T]{}, fmt.Errorf("%w: %w", ErrInvalidRecord, err)
	}
	return rec, nil
}

func (c *Cache[T]) write(rec Record[T]) error {
	data, err := json.MarshalIndent(rec, "", "    ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return fileutil.WriteFileAtomic(c.feed.Path, data, 0o600)
}
