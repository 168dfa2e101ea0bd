package suggestions

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/metasync/seo-gateway/pkg/cache"
	"github.com/metasync/seo-gateway/pkg/metrics"
	"github.com/metasync/seo-gateway/pkg/types"
)

// Fetcher retrieves suggestions for a route from the upstream service.
type Fetcher interface {
	Fetch(ctx context.Context, route string) (*types.Payload, error)
}

// Options tune cache lifetimes and the upstream guard rails.
type Options struct {
	PositiveTTL        time.Duration
	NegativeTTL        time.Duration
	StaleTTL           time.Duration
	LockTTL            time.Duration
	LockWait           time.Duration
	RateLimitPerMinute int
}

// DefaultOptions mirrors the configuration defaults.
func DefaultOptions() Options {
	return Options{
		PositiveTTL:        24 * time.Hour,
		NegativeTTL:        10 * time.Minute,
		StaleTTL:           7 * 24 * time.Hour,
		LockTTL:            10 * time.Second,
		LockWait:           300 * time.Millisecond,
		RateLimitPerMinute: 60,
	}
}

// Manager is the suggestion cache. It never returns upstream errors: every
// failure degrades to "no suggestions".
//
// The lock and the rate counter are advisory. Two gateways may fetch the
// same route concurrently; that duplicate work is accepted.
type Manager struct {
	store   cache.Store
	fetcher Fetcher
	opts    Options
	logger  *logrus.Logger
	metrics *metrics.Metrics

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration)
}

func NewManager(store cache.Store, fetcher Fetcher, opts Options, logger *logrus.Logger, m *metrics.Metrics) *Manager {
	return &Manager{
		store:   store,
		fetcher: fetcher,
		opts:    opts,
		logger:  logger,
		metrics: m,
		now:     time.Now,
		sleep:   sleepContext,
	}
}

// GetSuggestions returns the payload for route, or nil when there is
// nothing to apply. The status is always reported.
func (m *Manager) GetSuggestions(ctx context.Context, route string) (*types.Payload, types.CacheStatus) {
	hash := RouteHash(route)
	payload, status := m.resolve(ctx, route, hash)

	m.metrics.ObserveCacheStatus(status.String())
	m.logger.WithFields(logrus.Fields{
		"route":  route,
		"status": status,
	}).Debug("Resolved suggestions")

	return payload, status
}

func (m *Manager) resolve(ctx context.Context, route, hash string) (*types.Payload, types.CacheStatus) {
	if payload, ok := m.lookup(ctx, hash); ok {
		return payload, types.StatusHit
	}

	if m.locked(ctx, hash) {
		m.sleep(ctx, m.opts.LockWait)
		if payload, ok := m.lookup(ctx, hash); ok {
			return payload, types.StatusHit
		}
		m.logger.WithField("route", route).Debug("Lock did not clear, fetching anyway")
	}

	if m.rateLimited(ctx) {
		if payload, ok := m.stale(ctx, hash); ok {
			return payload, types.StatusStale
		}
		return nil, types.StatusRateLimited
	}

	return m.fetchAndStore(ctx, route, hash)
}

// lookup reports a live entry. A negative entry yields (nil, true).
func (m *Manager) lookup(ctx context.Context, hash string) (*types.Payload, bool) {
	raw, err := m.store.Get(ctx, suggestionKey(hash))
	if err != nil {
		if !errors.Is(err, cache.ErrNotFound) {
			m.logger.WithError(err).Warn("Failed to read suggestion cache")
		}
		return nil, false
	}

	e, err := decodeEntry(raw)
	if err != nil {
		m.logger.WithError(err).Warn("Discarding undecodable cache entry")
		return nil, false
	}
	if e.Negative || e.Payload.IsEmpty() {
		return nil, true
	}
	return e.Payload, true
}

func (m *Manager) stale(ctx context.Context, hash string) (*types.Payload, bool) {
	raw, err := m.store.Get(ctx, staleKey(hash))
	if err != nil {
		return nil, false
	}
	e, err := decodeEntry(raw)
	if err != nil || e.Negative || e.Payload.IsEmpty() {
		return nil, false
	}
	return e.Payload, true
}

func (m *Manager) locked(ctx context.Context, hash string) bool {
	_, err := m.store.Get(ctx, lockKey(hash))
	return err == nil
}

// rateLimited reports whether this minute's upstream budget is spent.
// It does not consume budget; fetchAndStore does.
func (m *Manager) rateLimited(ctx context.Context) bool {
	if m.opts.RateLimitPerMinute <= 0 {
		return false
	}
	raw, err := m.store.Get(ctx, rateKey(m.now()))
	if err != nil {
		return false
	}
	count, err := strconv.Atoi(raw)
	if err != nil {
		return false
	}
	return count >= m.opts.RateLimitPerMinute
}

func (m *Manager) consumeRate(ctx context.Context) {
	key := rateKey(m.now())

	if inc, ok := m.store.(cache.Incrementer); ok {
		if _, err := inc.Incr(ctx, key, time.Minute); err != nil {
			m.logger.WithError(err).Warn("Failed to bump rate counter")
		}
		return
	}

	// Read-modify-write; racy across processes, which the advisory limit tolerates.
	count := 0
	if raw, err := m.store.Get(ctx, key); err == nil {
		count, _ = strconv.Atoi(raw)
	}
	if err := m.store.Set(ctx, key, strconv.Itoa(count+1), time.Minute); err != nil {
		m.logger.WithError(err).Warn("Failed to bump rate counter")
	}
}

func (m *Manager) fetchAndStore(ctx context.Context, route, hash string) (*types.Payload, types.CacheStatus) {
	lock := lockKey(hash)
	if err := m.store.Set(ctx, lock, uuid.NewString(), m.opts.LockTTL); err != nil {
		m.logger.WithError(err).Warn("Failed to acquire suggestion lock")
	}
	defer func() {
		if err := m.store.Delete(context.Background(), lock); err != nil {
			m.logger.WithError(err).Warn("Failed to release suggestion lock")
		}
	}()

	m.consumeRate(ctx)

	start := m.now()
	payload, err := m.fetch(ctx, route)
	m.metrics.ObserveUpstreamLatency(float64(m.now().Sub(start).Milliseconds()))

	if err != nil || payload.IsEmpty() {
		if err != nil {
			m.logger.WithFields(logrus.Fields{
				"route": route,
				"error": err.Error(),
			}).Warn("Suggestion fetch failed")
		}
		m.write(ctx, suggestionKey(hash), entry{Negative: true, StoredAt: m.now().Unix()}, m.opts.NegativeTTL)
		return nil, types.StatusNoSuggestions
	}

	e := entry{Payload: payload, StoredAt: m.now().Unix()}
	m.write(ctx, suggestionKey(hash), e, m.opts.PositiveTTL)
	m.write(ctx, staleKey(hash), e, m.opts.StaleTTL)
	return payload, types.StatusMiss
}

// fetch shields the caller from panics in the fetcher.
func (m *Manager) fetch(ctx context.Context, route string) (payload *types.Payload, err error) {
	defer func() {
		if r := recover(); r != nil {
			payload = nil
			err = fmt.Errorf("%w: fetcher panic: %v", ErrUpstream, r)
		}
	}()
	return m.fetcher.Fetch(ctx, route)
}

func (m *Manager) write(ctx context.Context, key string, e entry, ttl time.Duration) {
	raw, err := encodeEntry(e)
	if err != nil {
		m.logger.WithError(err).Warn("Failed to encode cache entry")
		return
	}
	if err := m.store.Set(ctx, key, raw, ttl); err != nil {
		m.logger.WithError(err).WithField("key", key).Warn("Failed to write cache entry")
	}
}

// Invalidate drops the live entry for route. The stale shadow is kept.
func (m *Manager) Invalidate(ctx context.Context, route string) error {
	if err := m.store.Delete(ctx, suggestionKey(RouteHash(route))); err != nil {
		return fmt.Errorf("failed to invalidate %s: %w", route, err)
	}
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
