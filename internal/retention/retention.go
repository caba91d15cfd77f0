// Package retention periodically prunes aged login stats and reclaims
// expired TTL records. Expiry correctness never depends on this sweep;
// reads enforce TTLs on their own. The sweep only bounds disk growth.
package retention

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/adhocore/gronx"
	"go.uber.org/zap"

	"fitdb/pkg/config"
	"fitdb/pkg/logger"
	"fitdb/pkg/models"
	"fitdb/pkg/store"
)

const deleteChunk = 200

// Start launches the scheduler when retention is enabled. Returns a
// cancel func stopping it.
func Start(ctx context.Context, st *store.Store, cfg *config.Config) (context.CancelFunc, error) {
	if !cfg.Retention.Enabled {
		logger.Log.Info("retention_disabled")
		return func() {}, nil
	}

	cronExpr := cfg.Retention.Cron
	if cronExpr == "" {
		cronExpr = "0 2 * * *"
	}
	if !gronx.IsValid(cronExpr) {
		return nil, fmt.Errorf("invalid retention cron expression: %s", cfg.Retention.Cron)
	}

	period := cfg.RetentionPeriod()
	logger.Log.Info("retention_enabled",
		zap.String("cron", cronExpr), zap.Duration("period", period))

	ctx2, cancel := context.WithCancel(ctx)
	go runScheduler(ctx2, st, cronExpr, period)
	return cancel, nil
}

// runScheduler sleeps until the next cron tick and triggers a run.
func runScheduler(ctx context.Context, st *store.Store, cronExpr string, period time.Duration) {
	for {
		select {
		case <-ctx.Done():
			logger.Log.Info("retention_scheduler_stopping")
			return
		default:
		}

		now := time.Now().UTC()
		next, err := gronx.NextTickAfter(cronExpr, now, false)
		if err != nil {
			logger.Log.Error("retention_nexttick_failed", zap.String("cron", cronExpr), zap.Error(err))
			select {
			case <-time.After(30 * time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}

		select {
		case <-time.After(time.Until(next)):
			if err := RunOnce(st, period); err != nil {
				logger.Log.Error("retention_run_error", zap.Error(err))
			}
		case <-ctx.Done():
			logger.Log.Info("retention_scheduler_stopping")
			return
		}
	}
}

// RunOnce prunes login stats older than period and garbage-collects
// expired session and rate-limit records.
func RunOnce(st *store.Store, period time.Duration) error {
	cutoff := time.Now().UTC().Add(-period).UnixNano()

	entries, _, err := st.Scan(store.ScanOptions{Prefix: store.K("stats", "all_logins")})
	if err != nil {
		return err
	}
	b := store.NewBatch()
	pending, removed := 0, 0
	flush := func() error {
		if pending == 0 {
			return nil
		}
		if err := st.Apply(b); err != nil {
			return err
		}
		removed += pending
		b = store.NewBatch()
		pending = 0
		return nil
	}
	for _, e := range entries {
		var stat models.LoginStat
		if err := json.Unmarshal(e.Value, &stat); err != nil {
			logger.Log.Warn("retention_bad_login_stat", zap.String("key", e.Key.String()))
			continue
		}
		if stat.TS >= cutoff {
			break // keys are time-ordered; everything after is younger
		}
		slot := e.Key[len(e.Key)-1]
		b.Delete(e.Key)
		b.Delete(store.K("stats", "logins", stat.UserID, slot))
		pending += 2
		if pending >= deleteChunk {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	if err := flush(); err != nil {
		return err
	}

	// scanning is enough here: Scan reclaims expired envelopes as it goes
	for _, prefix := range []store.Key{store.K("sessions"), store.K("rate_limit")} {
		if _, _, err := st.Scan(store.ScanOptions{Prefix: prefix}); err != nil {
			return err
		}
	}

	logger.Log.Info("retention_run_done", zap.Int("stats_removed", removed))
	return nil
}
