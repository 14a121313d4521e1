// Package session issues and verifies the signed login cookies.
//
// A session is carried by three cookies: isLoggedIn holds an HS256 token with
// the role and principal id, userType and userId repeat those values for the
// browser and must agree with the token.
package session

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"healthqueue/internal/models"
)

const (
	TokenCookie = "isLoggedIn"
	RoleCookie  = "userType"
	UserCookie  = "userId"
)

var (
	ErrNoSession      = errors.New("no session")
	ErrInvalidSession = errors.New("invalid session")
)

type Session struct {
	Role        string
	PrincipalID string
	ExpiresAt   time.Time
}

type claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

type Manager struct {
	secret []byte
	ttl    time.Duration
	secure bool
	now    func() time.Time
}

func NewManager(secret string, ttl time.Duration, secure bool) *Manager {
	return &Manager{
		secret: []byte(secret),
		ttl:    ttl,
		secure: secure,
		now:    time.Now,
	}
}

// Issue signs a session for the principal and sets all three cookies.
func (m *Manager) Issue(w http.ResponseWriter, role, principalID string) (Session, error) {
	if !models.ValidRole(role) || principalID == "" {
		return Session{}, ErrInvalidSession
	}
	now := m.now()
	expiresAt := now.Add(m.ttl)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   principalID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	})
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return Session{}, fmt.Errorf("sign session: %w", err)
	}

	maxAge := int(m.ttl / time.Second)
	http.SetCookie(w, m.cookie(TokenCookie, signed, maxAge))
	http.SetCookie(w, m.cookie(RoleCookie, role, maxAge))
	http.SetCookie(w, m.cookie(UserCookie, principalID, maxAge))
	return Session{Role: role, PrincipalID: principalID, ExpiresAt: expiresAt}, nil
}

// FromRequest verifies the token cookie and checks the companion cookies
// against its claims.
func (m *Manager) FromRequest(r *http.Request) (Session, error) {
	tokenCookie, err := r.Cookie(TokenCookie)
	if err != nil || tokenCookie.Value == "" {
		return Session{}, ErrNoSession
	}

	var parsed claims
	token, err := jwt.ParseWithClaims(tokenCookie.Value, &parsed, func(*jwt.Token) (interface{}, error) {
		return m.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(m.now), jwt.WithExpirationRequired())
	if err != nil || !token.Valid {
		return Session{}, ErrInvalidSession
	}
	if !models.ValidRole(parsed.Role) || parsed.Subject == "" {
		return Session{}, ErrInvalidSession
	}
	if c, err := r.Cookie(RoleCookie); err == nil && c.Value != parsed.Role {
		return Session{}, ErrInvalidSession
	}
	if c, err := r.Cookie(UserCookie); err == nil && c.Value != parsed.Subject {
		return Session{}, ErrInvalidSession
	}

	s := Session{Role: parsed.Role, PrincipalID: parsed.Subject}
	if parsed.ExpiresAt != nil {
		s.ExpiresAt = parsed.ExpiresAt.Time
	}
	return s, nil
}

// Clear expires all three cookies. It needs no valid session.
func (m *Manager) Clear(w http.ResponseWriter) {
	for _, name := range []string{TokenCookie, RoleCookie, UserCookie} {
		http.SetCookie(w, m.cookie(name, "", -1))
	}
}

func (m *Manager) cookie(name, value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteStrictMode,
	}
}
