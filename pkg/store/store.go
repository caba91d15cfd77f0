// Package store implements the ordered, transactional key-value
// substrate everything else is built on: point reads with version
// tokens, paginated prefix scans, durable single-key writes, and
// atomic batches with optimistic preconditions.
package store

import (
	"bytes"
	"encoding/base64"
	"errors"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"
	"go.uber.org/zap"

	"fitdb/pkg/errs"
	"fitdb/pkg/logger"
)

// Entry is a decoded key/value pair plus its version token. Version 0
// means "absent" and is a valid precondition for must-not-exist checks.
type Entry struct {
	Key     Key
	Value   []byte
	Version uint64
}

// Store wraps a Pebble database. All writes funnel through a single
// mutex-guarded commit path that assigns monotonically increasing
// versions; reads go straight to Pebble.
type Store struct {
	db   *pebble.DB
	path string

	mu  sync.Mutex // guards the commit path and ver
	ver uint64

	now func() time.Time
}

// Open opens (or creates) a Pebble database at path. The version
// counter is seeded from the wall clock so versions stay monotonic
// across restarts.
func Open(path string) (*Store, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		logger.Log.Error("pebble_open_failed", zap.String("path", path), zap.Error(err))
		return nil, err
	}
	logger.Log.Info("pebble_opened", zap.String("path", path))
	return &Store{
		db:   db,
		path: path,
		ver:  uint64(time.Now().UnixNano()),
		now:  time.Now,
	}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return err
	}
	logger.Log.Info("pebble_closed", zap.String("path", s.path))
	return nil
}

// SetClock overrides the store clock. Intended for tests.
func (s *Store) SetClock(now func() time.Time) { s.now = now }

// Get returns the entry at key, or errs.ErrNotFound when the key is
// absent or its TTL has passed. An expired record is deleted as a side
// effect of the read.
func (s *Store) Get(key Key) (Entry, error) {
	mGets.Inc()
	raw := key.Encode()
	v, closer, err := s.db.Get(raw)
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return Entry{}, errs.ErrNotFound
		}
		return Entry{}, err
	}
	defer closer.Close()
	ver, exp, payload, err := decodeEnvelope(v)
	if err != nil {
		return Entry{}, err
	}
	if exp != 0 && s.now().UnixMilli() > exp {
		// lazy expiry: reclaim the envelope, report absent
		mExpired.Inc()
		_ = s.db.Delete(raw, pebble.NoSync)
		return Entry{}, errs.ErrNotFound
	}
	return Entry{Key: key, Value: append([]byte(nil), payload...), Version: ver}, nil
}

// Put durably writes a single key, versioned through the same commit
// path as batches.
func (s *Store) Put(key Key, value []byte, opts ...PutOptions) error {
	b := NewBatch()
	b.Put(key, value, opts...)
	return s.Apply(b)
}

// Delete durably removes a single key. Deleting an absent key is a
// no-op.
func (s *Store) Delete(key Key) error {
	b := NewBatch()
	b.Delete(key)
	return s.Apply(b)
}

// ScanOptions control a prefix scan. Cursor is the opaque token
// returned by a previous Scan with the same prefix and direction; Limit
// bounds the page size (0 = unbounded).
type ScanOptions struct {
	Prefix  Key
	Limit   int
	Cursor  string
	Reverse bool
}

// Scan returns entries under the prefix in key order (reversed when
// requested) together with a cursor resuming exactly where this page
// left off. The cursor is empty once the walk cannot have more entries.
// Expired entries are skipped and reclaimed best-effort.
func (s *Store) Scan(opts ScanOptions) ([]Entry, string, error) {
	mScans.Inc()
	pfx := prefixBytes(opts.Prefix)
	lower := pfx
	upper := prefixUpperBound(pfx)

	if opts.Cursor != "" {
		ck, err := decodeCursor(opts.Cursor)
		if err != nil {
			return nil, "", err
		}
		if !bytes.HasPrefix(ck, pfx) {
			return nil, "", errors.New("cursor does not match scan prefix")
		}
		if opts.Reverse {
			// resume strictly before the cursor key
			upper = ck
		} else {
			// resume strictly after the cursor key
			lower = append(append([]byte(nil), ck...), 0)
		}
	}

	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		return nil, "", err
	}
	defer iter.Close()

	nowMs := s.now().UnixMilli()
	var out []Entry
	var expired [][]byte
	var lastRaw []byte

	advance := func() bool {
		if opts.Reverse {
			return iter.Prev()
		}
		return iter.Next()
	}
	var valid bool
	if opts.Reverse {
		valid = iter.Last()
	} else {
		valid = iter.First()
	}
	for ; valid; valid = advance() {
		ver, exp, payload, derr := decodeEnvelope(iter.Value())
		if derr != nil {
			return nil, "", derr
		}
		k := append([]byte(nil), iter.Key()...)
		if exp != 0 && nowMs > exp {
			expired = append(expired, k)
			continue
		}
		out = append(out, Entry{
			Key:     decodeKey(k),
			Value:   append([]byte(nil), payload...),
			Version: ver,
		})
		lastRaw = k
		if opts.Limit > 0 && len(out) >= opts.Limit {
			break
		}
	}
	if err := iter.Error(); err != nil {
		return nil, "", err
	}

	for _, k := range expired {
		mExpired.Inc()
		_ = s.db.Delete(k, pebble.NoSync)
	}

	next := ""
	if opts.Limit > 0 && len(out) == opts.Limit {
		next = encodeCursor(lastRaw)
	}
	return out, next, nil
}

// Apply commits the batch atomically: every Check must still hold at
// commit time or nothing is applied and errs.ErrConflict is returned.
func (s *Store) Apply(b *Batch) error {
	mBatches.Inc()
	s.mu.Lock()
	defer s.mu.Unlock()

	nowMs := s.now().UnixMilli()
	wb := s.db.NewBatch()
	defer wb.Close()

	for _, c := range b.checks {
		cur, stale, err := s.versionLocked(c.raw, nowMs)
		if err != nil {
			return err
		}
		if stale {
			// expired on disk counts as absent; reclaim iff we commit
			_ = wb.Delete(c.raw, nil)
		}
		if cur != c.version {
			mConflicts.Inc()
			logger.Log.Debug("batch_conflict",
				zap.String("key", string(c.raw)),
				zap.Uint64("expected", c.version),
				zap.Uint64("current", cur))
			return errs.ErrConflict
		}
	}

	for _, o := range b.ops {
		if o.delete {
			if err := wb.Delete(o.raw, nil); err != nil {
				return err
			}
			continue
		}
		s.ver++
		var exp int64
		if o.ttl > 0 {
			exp = nowMs + o.ttl.Milliseconds()
		}
		if err := wb.Set(o.raw, encodeEnvelope(s.ver, exp, o.payload), nil); err != nil {
			return err
		}
	}

	if err := wb.Commit(pebble.Sync); err != nil {
		logger.Log.Error("batch_commit_failed", zap.Error(err))
		return err
	}
	return nil
}

// versionLocked returns the live version of the raw key (0 when absent)
// and whether an expired envelope is still on disk. Caller holds mu.
func (s *Store) versionLocked(raw []byte, nowMs int64) (uint64, bool, error) {
	v, closer, err := s.db.Get(raw)
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return 0, false, nil
		}
		return 0, false, err
	}
	defer closer.Close()
	ver, exp, _, err := decodeEnvelope(v)
	if err != nil {
		return 0, false, err
	}
	if exp != 0 && nowMs > exp {
		return 0, true, nil
	}
	return ver, false, nil
}

func encodeCursor(raw []byte) string {
	return base64.RawURLEncoding.EncodeToString(raw)
}

func decodeCursor(c string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(c)
}
