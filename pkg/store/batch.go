package store

import "time"

// PutOptions carries the optional TTL for a write. A zero TTL means the
// key never expires.
type PutOptions struct {
	TTL time.Duration
}

type check struct {
	raw     []byte
	version uint64
}

type op struct {
	raw     []byte
	payload []byte
	ttl     time.Duration
	delete  bool
}

// Batch accumulates optimistic preconditions and writes. It commits
// all-or-nothing via Store.Apply.
type Batch struct {
	checks []check
	ops    []op
}

// NewBatch returns an empty batch.
func NewBatch() *Batch { return &Batch{} }

// Check adds a precondition: the key's current version must equal
// version at commit time. Version 0 asserts the key does not exist.
func (b *Batch) Check(key Key, version uint64) *Batch {
	b.checks = append(b.checks, check{raw: key.Encode(), version: version})
	return b
}

// Put schedules a write.
func (b *Batch) Put(key Key, value []byte, opts ...PutOptions) *Batch {
	var ttl time.Duration
	if len(opts) > 0 {
		ttl = opts[0].TTL
	}
	b.ops = append(b.ops, op{raw: key.Encode(), payload: append([]byte(nil), value...), ttl: ttl})
	return b
}

// Delete schedules a removal.
func (b *Batch) Delete(key Key) *Batch {
	b.ops = append(b.ops, op{raw: key.Encode(), delete: true})
	return b
}
