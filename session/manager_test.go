package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"blogapp/utils"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "0123456789abcdef0123456789abcdef"

func newManager(t *testing.T) (*Manager, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	log, _ := test.NewNullLogger()
	m, err := NewManager(client, secret, time.Hour, false, log)
	require.NoError(t, err)
	return m, mr
}

func sessionCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == CookieName {
			return c
		}
	}
	t.Fatalf("no %s cookie set", CookieName)
	return nil
}

// login runs Manager.Login and returns the issued cookie.
func login(t *testing.T, m *Manager, userID int64) *http.Cookie {
	t.Helper()
	rec := httptest.NewRecorder()
	require.NoError(t, m.Login(context.Background(), rec, userID))
	return sessionCookie(t, rec)
}

func protected() (http.Handler, *int64) {
	var seen int64
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = UserID(r.Context())
		w.WriteHeader(http.StatusOK)
	}), &seen
}

func TestNewManager_ShortSecret(t *testing.T) {
	_, err := NewManager(nil, "short", time.Hour, false, nil)
	assert.ErrorIs(t, err, utils.ErrSecretTooShort)
}

func TestLogin_SetsOpaqueCookieAndServerState(t *testing.T) {
	m, mr := newManager(t)

	cookie := login(t, m, 42)

	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, "/", cookie.Path)
	assert.Equal(t, http.SameSiteLaxMode, cookie.SameSite)
	assert.NotContains(t, cookie.Value, "42")

	keys := mr.Keys()
	require.Len(t, keys, 1)
	got, err := mr.Get(keys[0])
	require.NoError(t, err)
	assert.Equal(t, "42", got)
	assert.Equal(t, time.Hour, mr.TTL(keys[0]))
}

func TestRequireAuthenticated_Anonymous(t *testing.T) {
	m, _ := newManager(t)
	next, seen := protected()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	m.RequireAuthenticated(next).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, LoginPath, rec.Header().Get("Location"))
	assert.Zero(t, *seen)
}

func TestRequireAuthenticated_Authenticated(t *testing.T) {
	m, _ := newManager(t)
	next, seen := protected()
	cookie := login(t, m, 42)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookie)
	rec := httptest.NewRecorder()
	m.RequireAuthenticated(next).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(42), *seen)
}

func TestRequireAuthenticated_TamperedToken(t *testing.T) {
	m, _ := newManager(t)
	next, _ := protected()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: CookieName, Value: "v2.local.forged"})
	rec := httptest.NewRecorder()
	m.RequireAuthenticated(next).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusFound, rec.Code)
}

func TestRequireAuthenticated_ExpiredServerState(t *testing.T) {
	m, mr := newManager(t)
	next, _ := protected()
	cookie := login(t, m, 42)

	mr.FastForward(2 * time.Hour)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookie)
	rec := httptest.NewRecorder()
	m.RequireAuthenticated(next).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusFound, rec.Code)
}

func TestRequireAuthenticated_RedisDown(t *testing.T) {
	m, mr := newManager(t)
	next, _ := protected()
	cookie := login(t, m, 42)

	mr.SetError("ERR unavailable")

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookie)
	rec := httptest.NewRecorder()
	m.RequireAuthenticated(next).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestLogout_InvalidatesToken(t *testing.T) {
	m, mr := newManager(t)
	cookie := login(t, m, 42)

	req := httptest.NewRequest(http.MethodGet, "/logout", nil)
	req.AddCookie(cookie)
	rec := httptest.NewRecorder()
	require.NoError(t, m.Logout(rec, req))

	cleared := sessionCookie(t, rec)
	assert.Empty(t, cleared.Value)
	assert.Less(t, cleared.MaxAge, 0)
	assert.Empty(t, mr.Keys())

	// replaying the old token no longer works
	next, _ := protected()
	replay := httptest.NewRequest(http.MethodGet, "/", nil)
	replay.AddCookie(cookie)
	rec = httptest.NewRecorder()
	m.RequireAuthenticated(next).ServeHTTP(rec, replay)
	assert.Equal(t, http.StatusFound, rec.Code)
}

func TestLogout_RedisDownKeepsSession(t *testing.T) {
	m, mr := newManager(t)
	cookie := login(t, m, 42)

	mr.SetError("ERR unavailable")
	req := httptest.NewRequest(http.MethodGet, "/logout", nil)
	req.AddCookie(cookie)
	rec := httptest.NewRecorder()
	err := m.Logout(rec, req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "drop session")
	assert.Empty(t, rec.Result().Cookies(), "cookie must survive so logout can be retried")

	// the server-side session is still there, so a retry can remove it
	mr.SetError("")
	require.Len(t, mr.Keys(), 1)

	rec = httptest.NewRecorder()
	require.NoError(t, m.Logout(rec, req))
	assert.Empty(t, sessionCookie(t, rec).Value)
	assert.Empty(t, mr.Keys())
}

func TestLogin_RedisDown(t *testing.T) {
	m, mr := newManager(t)
	mr.SetError("ERR unavailable")

	rec := httptest.NewRecorder()
	err := m.Login(context.Background(), rec, 42)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store session for user 42")
	assert.Empty(t, rec.Result().Cookies())
}

func TestLogin_SealFailureRemovesSession(t *testing.T) {
	m, mr := newManager(t)
	m.key = []byte("short")

	rec := httptest.NewRecorder()
	err := m.Login(context.Background(), rec, 42)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "seal session token")
	assert.Empty(t, mr.Keys())
	assert.Empty(t, rec.Result().Cookies())
}

func TestLogout_Anonymous(t *testing.T) {
	m, _ := newManager(t)

	rec := httptest.NewRecorder()
	require.NoError(t, m.Logout(rec, httptest.NewRequest(http.MethodGet, "/logout", nil)))
	assert.Empty(t, sessionCookie(t, rec).Value)
}

func TestCurrentUser(t *testing.T) {
	m, _ := newManager(t)

	anon := httptest.NewRequest(http.MethodGet, "/login", nil)
	id, ok := m.CurrentUser(anon)
	assert.False(t, ok)
	assert.Zero(t, id)

	authed := httptest.NewRequest(http.MethodGet, "/login", nil)
	authed.AddCookie(login(t, m, 9))
	id, ok = m.CurrentUser(authed)
	assert.True(t, ok)
	assert.Equal(t, int64(9), id)

	fromCtx := httptest.NewRequest(http.MethodGet, "/", nil)
	fromCtx = fromCtx.WithContext(WithUser(fromCtx.Context(), 5))
	id, ok = m.CurrentUser(fromCtx)
	assert.True(t, ok)
	assert.Equal(t, int64(5), id)
}

func TestSessionsAreIndependent(t *testing.T) {
	m, mr := newManager(t)

	a := login(t, m, 1)
	b := login(t, m, 2)
	assert.NotEqual(t, a.Value, b.Value)
	assert.Len(t, mr.Keys(), 2)

	req := httptest.NewRequest(http.MethodGet, "/logout", nil)
	req.AddCookie(a)
	require.NoError(t, m.Logout(httptest.NewRecorder(), req))

	check := httptest.NewRequest(http.MethodGet, "/", nil)
	check.AddCookie(b)
	id, ok := m.CurrentUser(check)
	assert.True(t, ok)
	assert.Equal(t, int64(2), id)
}
