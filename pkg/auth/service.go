// Package auth owns user records, session tokens and the login audit
// trail, all persisted through the ordered KV store.
package auth

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"fitdb/pkg/errs"
	"fitdb/pkg/logger"
	"fitdb/pkg/models"
	"fitdb/pkg/store"

	"github.com/google/uuid"
)

// DefaultSessionTTL is applied when no TTL is configured.
const DefaultSessionTTL = 7 * 24 * time.Hour

const sessionTokenLen = 32

// Service implements account, session and login-audit operations.
type Service struct {
	store      *store.Store
	sessionTTL time.Duration
	now        func() time.Time

	// seq disambiguates login-stat keys sharing a nanosecond timestamp
	seq uint64
}

// New constructs the service. sessionTTL <= 0 selects DefaultSessionTTL.
func New(st *store.Store, sessionTTL time.Duration) *Service {
	if sessionTTL <= 0 {
		sessionTTL = DefaultSessionTTL
	}
	return &Service{store: st, sessionTTL: sessionTTL, now: time.Now}
}

// SetClock overrides the service clock. Intended for tests.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

func userKey(id string) store.Key { return store.K("users", id) }

func usernameKey(username string) store.Key { return store.K("users_by_username", username) }

func sessionKey(id string) store.Key { return store.K("sessions", id) }

// CreateUser registers a new account. The user record and its username
// index entry are written in one atomic batch with must-not-exist
// preconditions, so a losing race surfaces as errs.ErrAlreadyExists
// rather than a dangling index.
func (s *Service) CreateUser(username, password, email string) (*models.User, error) {
	if username == "" || password == "" {
		return nil, fmt.Errorf("empty username or password")
	}
	if _, err := s.store.Get(usernameKey(username)); err == nil {
		return nil, errs.ErrAlreadyExists
	} else if !errors.Is(err, errs.ErrNotFound) {
		return nil, err
	}

	salt, err := RandBytes(saltLen)
	if err != nil {
		return nil, err
	}
	u := &models.User{
		ID:           uuid.NewString(),
		Username:     username,
		PasswordHash: HashPassword([]byte(password), salt),
		Salt:         salt,
		Role:         models.RoleUser,
		CreatedAt:    s.now().UnixMilli(),
		Email:        email,
	}
	payload, err := json.Marshal(u)
	if err != nil {
		return nil, err
	}

	b := store.NewBatch().
		Check(usernameKey(username), 0).
		Check(userKey(u.ID), 0).
		Put(userKey(u.ID), payload).
		Put(usernameKey(username), []byte(u.ID))
	if err := s.store.Apply(b); err != nil {
		if errors.Is(err, errs.ErrConflict) {
			return nil, errs.ErrAlreadyExists
		}
		return nil, err
	}
	logger.Log.Info("user_created", zap.String("user", u.ID), zap.String("username", username))
	return u, nil
}

// GetUser returns the canonical record for id.
func (s *Service) GetUser(id string) (*models.User, error) {
	e, err := s.store.Get(userKey(id))
	if err != nil {
		return nil, err
	}
	var u models.User
	if err := json.Unmarshal(e.Value, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// Authenticate verifies username/password. Every attempt against an
// existing user is recorded in the login audit trail, success or not.
// Attempts against unknown usernames are not recorded (there is no user
// ID to index under) and are indistinguishable to the caller.
func (s *Service) Authenticate(username, password, clientAddr, userAgent string) (*models.User, error) {
	idx, err := s.store.Get(usernameKey(username))
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return nil, errs.ErrInvalidCredentials
		}
		return nil, err
	}
	u, err := s.GetUser(string(idx.Value))
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return nil, errs.ErrInvalidCredentials
		}
		return nil, err
	}

	ok := VerifyPassword([]byte(password), u.Salt, u.PasswordHash)
	if err := s.recordLogin(u.ID, clientAddr, userAgent, ok); err != nil {
		logger.Log.Error("login_stat_write_failed", zap.String("user", u.ID), zap.Error(err))
	}
	if !ok {
		logger.Log.Info("login_failed", zap.String("user", u.ID))
		return nil, errs.ErrInvalidCredentials
	}
	logger.Log.Info("login_ok", zap.String("user", u.ID))
	return u, nil
}

// recordLogin dual-writes the stat for the per-user and global audit
// views in one batch.
func (s *Service) recordLogin(userID, clientAddr, userAgent string, success bool) error {
	ts := s.now().UTC().UnixNano()
	stat := models.LoginStat{
		UserID:     userID,
		TS:         ts,
		ClientAddr: clientAddr,
		UserAgent:  userAgent,
		Success:    success,
	}
	payload, err := json.Marshal(&stat)
	if err != nil {
		return err
	}
	// key suffix avoids collisions when two attempts share a nanosecond
	slot := fmt.Sprintf("%s-%06d", store.PadInt(ts), atomic.AddUint64(&s.seq, 1)%1000000)
	b := store.NewBatch().
		Put(store.K("stats", "logins", userID, slot), payload).
		Put(store.K("stats", "all_logins", slot), payload)
	return s.store.Apply(b)
}

// CreateSession issues a random token valid for the configured TTL.
func (s *Service) CreateSession(userID string) (string, error) {
	tok, err := RandBytes(sessionTokenLen)
	if err != nil {
		return "", err
	}
	id := hex.EncodeToString(tok)
	sess := models.Session{
		ID:        id,
		UserID:    userID,
		ExpiresAt: s.now().Add(s.sessionTTL).UnixMilli(),
	}
	payload, err := json.Marshal(&sess)
	if err != nil {
		return "", err
	}
	if err := s.store.Put(sessionKey(id), payload, store.PutOptions{TTL: s.sessionTTL}); err != nil {
		return "", err
	}
	logger.Log.Info("session_created", zap.String("user", userID))
	return id, nil
}

// ResolveSession returns the session for id, or errs.ErrNotFound when
// it is missing or expired. Expired records are deleted as a side
// effect of the read; correctness never depends on that deletion.
func (s *Service) ResolveSession(id string) (*models.Session, error) {
	e, err := s.store.Get(sessionKey(id))
	if err != nil {
		return nil, err
	}
	var sess models.Session
	if err := json.Unmarshal(e.Value, &sess); err != nil {
		return nil, err
	}
	if sess.Expired(s.now().UnixMilli()) {
		_ = s.store.Delete(sessionKey(id))
		return nil, errs.ErrNotFound
	}
	return &sess, nil
}

// DeleteSession removes the session (logout). Deleting an unknown
// session is a no-op.
func (s *Service) DeleteSession(id string) error {
	return s.store.Delete(sessionKey(id))
}

// LoginHistory returns the user's login stats, most recent first.
func (s *Service) LoginHistory(userID string, limit int) ([]models.LoginStat, error) {
	entries, _, err := s.store.Scan(store.ScanOptions{
		Prefix:  store.K("stats", "logins", userID),
		Limit:   limit,
		Reverse: true,
	})
	if err != nil {
		return nil, err
	}
	out := make([]models.LoginStat, 0, len(entries))
	for _, e := range entries {
		var st models.LoginStat
		if err := json.Unmarshal(e.Value, &st); err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, nil
}
