package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"fitdb/pkg/auth"
	"fitdb/pkg/chat"
	"fitdb/pkg/models"
	"fitdb/pkg/ratelimit"
	"fitdb/pkg/store"
)

type testEnv struct {
	h  http.Handler
	st *store.Store
}

func newTestEnv(t *testing.T, loginLimit int) *testEnv {
	t.Helper()
	st, err := store.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	a := auth.New(st, 0)
	c := chat.New(st)
	l := ratelimit.New(st, loginLimit, time.Minute)
	srv := NewServer(a, c, l, 10000, 10000)
	return &testEnv{h: srv.Handler(), st: st}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(payload)
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rd)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out))
}

func (e *testEnv) signup(t *testing.T, username, password string) string {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/v1/users", "",
		map[string]string{"username": username, "password": password})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var u models.PublicUser
	decodeBody(t, rec, &u)
	return u.ID
}

func (e *testEnv) login(t *testing.T, username, password string) string {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/v1/login", "",
		map[string]string{"username": username, "password": password})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var out struct {
		Token string `json:"token"`
	}
	decodeBody(t, rec, &out)
	require.NotEmpty(t, out.Token)
	return out.Token
}

// promote flips the stored role to admin, bypassing the API on purpose:
// there is no self-service privilege escalation endpoint.
func (e *testEnv) promote(t *testing.T, userID string) {
	t.Helper()
	entry, err := e.st.Get(store.K("users", userID))
	require.NoError(t, err)
	var u models.User
	require.NoError(t, json.Unmarshal(entry.Value, &u))
	u.Role = models.RoleAdmin
	payload, err := json.Marshal(&u)
	require.NoError(t, err)
	require.NoError(t, e.st.Put(store.K("users", userID), payload))
}

func TestSignupLoginAndMe(t *testing.T) {
	env := newTestEnv(t, 100)

	rec := env.do(t, http.MethodPost, "/v1/users", "",
		map[string]string{"username": "alice", "password": "pw123", "email": "a@example.com"})
	require.Equal(t, http.StatusCreated, rec.Code)
	require.NotContains(t, rec.Body.String(), "password_hash")
	require.NotContains(t, rec.Body.String(), "salt")

	token := env.login(t, "alice", "pw123")

	rec = env.do(t, http.MethodGet, "/v1/me", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var me models.PublicUser
	decodeBody(t, rec, &me)
	require.Equal(t, "alice", me.Username)
	require.Equal(t, models.RoleUser, me.Role)
	require.Equal(t, "a@example.com", me.Email)
	require.NotContains(t, rec.Body.String(), "password_hash")
	require.NotContains(t, rec.Body.String(), "salt")
}

func TestSignupValidation(t *testing.T) {
	env := newTestEnv(t, 100)

	rec := env.do(t, http.MethodPost, "/v1/users", "", map[string]string{"username": "alice"})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	env.signup(t, "alice", "pw123")
	rec = env.do(t, http.MethodPost, "/v1/users", "",
		map[string]string{"username": "alice", "password": "other"})
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestLoginFailureIsAuditedAndVisible(t *testing.T) {
	env := newTestEnv(t, 100)
	env.signup(t, "alice", "pw123")
	token := env.login(t, "alice", "pw123")

	rec := env.do(t, http.MethodPost, "/v1/login", "",
		map[string]string{"username": "alice", "password": "wrong"})
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodGet, "/v1/me/logins", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var out struct {
		Logins []models.LoginStat `json:"logins"`
	}
	decodeBody(t, rec, &out)
	require.Len(t, out.Logins, 2)
	require.False(t, out.Logins[0].Success, "most recent attempt failed")
	require.True(t, out.Logins[1].Success)
}

func TestLoginRateLimited(t *testing.T) {
	env := newTestEnv(t, 2)
	env.signup(t, "alice", "pw123")

	env.login(t, "alice", "pw123")
	env.login(t, "alice", "pw123")

	rec := env.do(t, http.MethodPost, "/v1/login", "",
		map[string]string{"username": "alice", "password": "pw123"})
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestSessionLifecycle(t *testing.T) {
	env := newTestEnv(t, 100)
	env.signup(t, "alice", "pw123")
	token := env.login(t, "alice", "pw123")

	rec := env.do(t, http.MethodGet, "/v1/me", "", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	rec = env.do(t, http.MethodGet, "/v1/me", "bogus", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodPost, "/v1/logout", token, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = env.do(t, http.MethodGet, "/v1/me", token, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestConversationAndMessageFlow(t *testing.T) {
	env := newTestEnv(t, 100)
	bobID := env.signup(t, "bob", "pw")
	env.signup(t, "alice", "pw123")
	token := env.login(t, "alice", "pw123")

	rec := env.do(t, http.MethodPost, "/v1/conversations", token, map[string]interface{}{
		"type":         "direct",
		"participants": []string{bobID},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var conv models.Conversation
	decodeBody(t, rec, &conv)
	require.Len(t, conv.Participants, 2, "caller added as participant")

	rec = env.do(t, http.MethodPost, "/v1/conversations/"+conv.ID+"/messages", token,
		map[string]string{"content": "hello bob"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var msg models.Message
	decodeBody(t, rec, &msg)
	require.Equal(t, "hello bob", msg.Content)

	rec = env.do(t, http.MethodGet, "/v1/conversations/"+conv.ID+"/messages", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var page struct {
		Messages []models.Message `json:"messages"`
	}
	decodeBody(t, rec, &page)
	require.Len(t, page.Messages, 1)

	rec = env.do(t, http.MethodGet, "/v1/conversations", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Conversations []models.Conversation `json:"conversations"`
	}
	decodeBody(t, rec, &list)
	require.Len(t, list.Conversations, 1)
	require.NotNil(t, list.Conversations[0].LastMessage)
	require.Equal(t, msg.ID, list.Conversations[0].LastMessage.ID)

	rec = env.do(t, http.MethodPost, "/v1/conversations/"+conv.ID+"/read", token, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = env.do(t, http.MethodPost,
		"/v1/conversations/"+conv.ID+"/messages/"+msg.ID+"/reactions", token,
		map[string]string{"emoji": "👍"})
	require.Equal(t, http.StatusOK, rec.Code)
	var reacted models.Message
	decodeBody(t, rec, &reacted)
	require.NotEmpty(t, reacted.Reactions["👍"])
}

func TestMessagesRequireContent(t *testing.T) {
	env := newTestEnv(t, 100)
	env.signup(t, "alice", "pw123")
	token := env.login(t, "alice", "pw123")

	rec := env.do(t, http.MethodPost, "/v1/conversations", token,
		map[string]interface{}{"type": "direct", "participants": []string{}})
	require.Equal(t, http.StatusCreated, rec.Code)
	var conv models.Conversation
	decodeBody(t, rec, &conv)

	rec = env.do(t, http.MethodPost, "/v1/conversations/"+conv.ID+"/messages", token,
		map[string]string{"content": ""})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMessageToUnknownConversationIs404(t *testing.T) {
	env := newTestEnv(t, 100)
	env.signup(t, "alice", "pw123")
	token := env.login(t, "alice", "pw123")

	rec := env.do(t, http.MethodPost, "/v1/conversations/missing/messages", token,
		map[string]string{"content": "hi"})
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSupportQueueIsAdminOnly(t *testing.T) {
	env := newTestEnv(t, 100)
	env.signup(t, "alice", "pw123")
	userToken := env.login(t, "alice", "pw123")

	rec := env.do(t, http.MethodPost, "/v1/conversations", userToken,
		map[string]interface{}{"type": "support", "title": "help me"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var conv models.Conversation
	decodeBody(t, rec, &conv)
	require.Equal(t, models.SupportUnassigned, conv.SupportStatus)

	rec = env.do(t, http.MethodGet, "/v1/support/conversations", userToken, nil)
	require.Equal(t, http.StatusForbidden, rec.Code)

	adminID := env.signup(t, "root", "pw")
	env.promote(t, adminID)
	adminToken := env.login(t, "root", "pw")

	rec = env.do(t, http.MethodGet, "/v1/support/conversations", adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var queue struct {
		Conversations []models.Conversation `json:"conversations"`
	}
	decodeBody(t, rec, &queue)
	require.Len(t, queue.Conversations, 1)

	// empty body assigns the calling admin
	rec = env.do(t, http.MethodPost, "/v1/conversations/"+conv.ID+"/assign", adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var assigned models.Conversation
	decodeBody(t, rec, &assigned)
	require.Equal(t, models.SupportAssigned, assigned.SupportStatus)
	require.Equal(t, adminID, assigned.AssignedTo)
	require.True(t, assigned.HasParticipant(adminID))
}

func TestAssignOnDirectConversationIs400(t *testing.T) {
	env := newTestEnv(t, 100)
	adminID := env.signup(t, "root", "pw")
	env.promote(t, adminID)
	adminToken := env.login(t, "root", "pw")

	rec := env.do(t, http.MethodPost, "/v1/conversations", adminToken,
		map[string]interface{}{"type": "direct"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var conv models.Conversation
	decodeBody(t, rec, &conv)

	rec = env.do(t, http.MethodPost, "/v1/conversations/"+conv.ID+"/assign", adminToken, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLockAndHideToggles(t *testing.T) {
	env := newTestEnv(t, 100)
	env.signup(t, "alice", "pw123")
	token := env.login(t, "alice", "pw123")

	rec := env.do(t, http.MethodPost, "/v1/conversations", token,
		map[string]interface{}{"type": "direct"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var conv models.Conversation
	decodeBody(t, rec, &conv)

	rec = env.do(t, http.MethodPost, "/v1/conversations/"+conv.ID+"/lock", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var locked models.Conversation
	decodeBody(t, rec, &locked)
	require.True(t, locked.IsLocked)

	rec = env.do(t, http.MethodPost, "/v1/conversations/"+conv.ID+"/hide", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var hidden models.Conversation
	decodeBody(t, rec, &hidden)
	require.True(t, hidden.IsHidden)
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t, 100)
	rec := env.do(t, http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, strings.Contains(rec.Body.String(), "ok"))
}
