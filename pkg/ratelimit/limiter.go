// Package ratelimit bounds request rate per identifier with a sliding
// window persisted in the KV store. The check-prune-append cycle runs
// under a compare-and-swap retry loop; exhausting the retries denies
// the request (fail-closed).
package ratelimit

import (
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"fitdb/pkg/errs"
	"fitdb/pkg/logger"
	"fitdb/pkg/store"
)

// Defaults match a login-guard profile: 10 attempts per minute.
const (
	DefaultLimit   = 10
	DefaultWindow  = time.Minute
	DefaultRetries = 3
)

// Limiter is safe for concurrent use; all shared state lives in the
// store.
type Limiter struct {
	store   *store.Store
	limit   int
	window  time.Duration
	retries int
	now     func() time.Time
}

// New constructs a limiter. Non-positive limit/window/retries select the
// defaults.
func New(st *store.Store, limit int, window time.Duration) *Limiter {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &Limiter{store: st, limit: limit, window: window, retries: DefaultRetries, now: time.Now}
}

// SetClock overrides the limiter clock. Intended for tests.
func (l *Limiter) SetClock(now func() time.Time) { l.now = now }

func windowKey(identifier string) store.Key { return store.K("rate_limit", identifier) }

// Allow reports whether a request from identifier may proceed, counting
// it against the window when it may. A nil error with false means the
// caller must be turned away with errs.ErrRateLimited semantics.
func (l *Limiter) Allow(identifier string) (bool, error) {
	key := windowKey(identifier)
	for attempt := 0; attempt < l.retries; attempt++ {
		nowMs := l.now().UnixMilli()
		cutoff := nowMs - l.window.Milliseconds()

		var stamps []int64
		var version uint64
		e, err := l.store.Get(key)
		switch {
		case err == nil:
			if uerr := json.Unmarshal(e.Value, &stamps); uerr != nil {
				return false, uerr
			}
			version = e.Version
		case errors.Is(err, errs.ErrNotFound):
			// empty window, version 0 asserts absence below
		default:
			return false, err
		}

		pruned := stamps[:0]
		for _, ts := range stamps {
			if ts > cutoff {
				pruned = append(pruned, ts)
			}
		}
		if len(pruned) >= l.limit {
			mDenied.Inc()
			return false, nil
		}

		pruned = append(pruned, nowMs)
		payload, err := json.Marshal(pruned)
		if err != nil {
			return false, err
		}
		b := store.NewBatch().
			Check(key, version).
			Put(key, payload, store.PutOptions{TTL: 2 * l.window})
		err = l.store.Apply(b)
		if err == nil {
			mAllowed.Inc()
			return true, nil
		}
		if !errors.Is(err, errs.ErrConflict) {
			return false, err
		}
		// another writer moved the window; re-read and retry
	}
	mExhausted.Inc()
	logger.Log.Warn("rate_limit_cas_exhausted", zap.String("identifier", identifier))
	return false, nil
}
