package retention

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"fitdb/pkg/auth"
	"fitdb/pkg/config"
	"fitdb/pkg/store"
)

func TestRunOncePrunesAgedLoginStats(t *testing.T) {
	st, err := store.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	svc := auth.New(st, 0)
	u, err := svc.CreateUser("alice", "pw123", "")
	require.NoError(t, err)

	// two attempts well past the retention horizon
	old := time.Now().Add(-120 * 24 * time.Hour)
	svc.SetClock(func() time.Time { return old })
	_, err = svc.Authenticate("alice", "pw123", "10.0.0.1", "ua")
	require.NoError(t, err)
	_, err = svc.Authenticate("alice", "wrong", "10.0.0.1", "ua")
	require.Error(t, err)

	// one recent attempt that must survive
	svc.SetClock(time.Now)
	_, err = svc.Authenticate("alice", "pw123", "10.0.0.2", "ua")
	require.NoError(t, err)

	require.NoError(t, RunOnce(st, 90*24*time.Hour))

	hist, err := svc.LoginHistory(u.ID, 10)
	require.NoError(t, err)
	require.Len(t, hist, 1)
	require.Equal(t, "10.0.0.2", hist[0].ClientAddr)

	// the global index was pruned in lockstep
	entries, _, err := st.Scan(store.ScanOptions{Prefix: store.K("stats", "all_logins")})
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestRunOnceReclaimsExpiredRecords(t *testing.T) {
	st, err := store.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	now := time.Now()
	st.SetClock(func() time.Time { return now })
	require.NoError(t, st.Put(store.K("rate_limit", "10.0.0.1"), []byte("[1]"),
		store.PutOptions{TTL: time.Minute}))

	now = now.Add(2 * time.Minute)
	require.NoError(t, RunOnce(st, 90*24*time.Hour))

	entries, _, err := st.Scan(store.ScanOptions{Prefix: store.K("rate_limit")})
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestStartDisabled(t *testing.T) {
	st, err := store.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	cancel, err := Start(context.Background(), st, &config.Config{})
	require.NoError(t, err)
	cancel()
}

func TestStartRejectsBadCron(t *testing.T) {
	st, err := store.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	cfg := &config.Config{}
	cfg.Retention.Enabled = true
	cfg.Retention.Cron = "every tuesday"
	_, err = Start(context.Background(), st, cfg)
	require.Error(t, err)
}
