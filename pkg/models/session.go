package models

// Session is immutable except for deletion. Expiry is enforced when the
// record is read, not by a background sweep.
type Session struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	ExpiresAt int64  `json:"expires_at"` // unix ms
}

// Expired reports whether the session is past its expiry at nowMs.
func (s *Session) Expired(nowMs int64) bool {
	return nowMs > s.ExpiresAt
}
