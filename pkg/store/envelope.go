package store

import (
	"encoding/binary"
	"fmt"
)

// Every stored value carries a fixed 16-byte header ahead of the
// payload: 8-byte big-endian version, 8-byte big-endian expiry (unix
// ms, 0 = no TTL). The version is the optimistic-concurrency token
// returned from reads and checked by Apply.
const envelopeHeaderLen = 16

func encodeEnvelope(version uint64, expiresAt int64, payload []byte) []byte {
	out := make([]byte, envelopeHeaderLen+len(payload))
	binary.BigEndian.PutUint64(out[0:8], version)
	binary.BigEndian.PutUint64(out[8:16], uint64(expiresAt))
	copy(out[envelopeHeaderLen:], payload)
	return out
}

func decodeEnvelope(raw []byte) (version uint64, expiresAt int64, payload []byte, err error) {
	if len(raw) < envelopeHeaderLen {
		return 0, 0, nil, fmt.Errorf("corrupt envelope: %d bytes", len(raw))
	}
	version = binary.BigEndian.Uint64(raw[0:8])
	expiresAt = int64(binary.BigEndian.Uint64(raw[8:16]))
	payload = raw[envelopeHeaderLen:]
	return version, expiresAt, payload, nil
}
