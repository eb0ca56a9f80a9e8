package session

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"blogapp/utils"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	CookieName = "session"
	LoginPath  = "/login"
	keyPrefix  = "session:"
)

// ErrNoSession means the request carries no valid session.
var ErrNoSession = errors.New("session: not authenticated")

type ctxKey struct{}

// WithUser returns a copy of ctx carrying an authenticated user id.
func WithUser(ctx context.Context, userID int64) context.Context {
	return context.WithValue(ctx, ctxKey{}, userID)
}

// UserID returns the user id stored by RequireAuthenticated, if any.
func UserID(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(ctxKey{}).(int64)
	return id, ok
}

// Manager issues opaque session cookies backed by server-side state in Redis.
// The cookie holds an encrypted PASETO token naming a random session id; the
// id maps to a user id until logout or expiry.
type Manager struct {
	redis  *redis.Client
	key    []byte
	ttl    time.Duration
	secure bool
	log    *logrus.Logger
}

func NewManager(client *redis.Client, secret string, ttl time.Duration, secure bool, log *logrus.Logger) (*Manager, error) {
	key, err := utils.SymmetricKey(secret)
	if err != nil {
		return nil, err
	}
	return &Manager{
		redis:  client,
		key:    key,
		ttl:    ttl,
		secure: secure,
		log:    log,
	}, nil
}

// Login starts an authenticated session for userID and hands the token to the client.
func (m *Manager) Login(ctx context.Context, w http.ResponseWriter, userID int64) error {
	sessionID := uuid.NewString()
	if err := m.redis.Set(ctx, keyPrefix+sessionID, userID, m.ttl).Err(); err != nil {
		return errors.Wrapf(err, "store session for user %d", userID)
	}

	token, err := utils.GeneratePASETO(sessionID, m.key, m.ttl)
	if err != nil {
		if delErr := m.redis.Del(ctx, keyPrefix+sessionID).Err(); delErr != nil {
			m.log.WithError(delErr).WithField("user_id", userID).Error("orphaned session not removed")
		}
		return errors.Wrap(err, "seal session token")
	}

	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		Expires:  time.Now().Add(m.ttl),
		MaxAge:   int(m.ttl.Seconds()),
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})

	m.log.WithField("user_id", userID).Info("session started")
	return nil
}

// Logout drops the server-side session, if there is one, and clears the
// cookie. If the session cannot be dropped the cookie is kept so the client
// can retry.
func (m *Manager) Logout(w http.ResponseWriter, r *http.Request) error {
	cookie, err := r.Cookie(CookieName)
	if err != nil || cookie.Value == "" {
		m.clearCookie(w)
		return nil
	}

	claims, err := utils.ValidatePASETO(cookie.Value, m.key)
	if err != nil {
		m.clearCookie(w)
		return nil
	}

	if err := m.redis.Del(r.Context(), keyPrefix+claims.SessionID).Err(); err != nil {
		return errors.Wrap(err, "drop session")
	}
	m.clearCookie(w)
	return nil
}

// CurrentUser returns the authenticated user for r, or false when anonymous.
func (m *Manager) CurrentUser(r *http.Request) (int64, bool) {
	if id, ok := UserID(r.Context()); ok {
		return id, true
	}

	id, err := m.authenticate(r)
	if err != nil {
		if !errors.Is(err, ErrNoSession) {
			m.log.WithError(err).Error("session lookup failed")
		}
		return 0, false
	}
	return id, true
}

// RequireAuthenticated lets only authenticated requests through to next;
// anonymous clients are redirected to the login page.
func (m *Manager) RequireAuthenticated(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := m.authenticate(r)
		if errors.Is(err, ErrNoSession) {
			http.Redirect(w, r, LoginPath, http.StatusFound)
			return
		}
		if err != nil {
			m.log.WithError(err).Error("session lookup failed")
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), userID)))
	})
}

func (m *Manager) authenticate(r *http.Request) (int64, error) {
	cookie, err := r.Cookie(CookieName)
	if err != nil || cookie.Value == "" {
		return 0, ErrNoSession
	}

	claims, err := utils.ValidatePASETO(cookie.Value, m.key)
	if err != nil {
		m.log.WithError(err).Debug("rejected session token")
		return 0, ErrNoSession
	}

	value, err := m.redis.Get(r.Context(), keyPrefix+claims.SessionID).Result()
	if errors.Is(err, redis.Nil) {
		return 0, ErrNoSession
	}
	if err != nil {
		return 0, errors.Wrap(err, "load session")
	}

	userID, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, ErrNoSession
	}
	return userID, nil
}

func (m *Manager) clearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
}
