package session

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func issue(t *testing.T, m *Manager, role, id string) []*http.Cookie {
	t.Helper()
	rec := httptest.NewRecorder()
	_, err := m.Issue(rec, role, id)
	require.NoError(t, err)
	return rec.Result().Cookies()
}

func requestWith(cookies []*http.Cookie) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	return req
}

func TestIssueSetsThreeCookies(t *testing.T) {
	m := NewManager("secret", 7*24*time.Hour, true)
	cookies := issue(t, m, "doctor", "doc-1")
	require.Len(t, cookies, 3)

	byName := map[string]*http.Cookie{}
	for _, c := range cookies {
		byName[c.Name] = c
		assert.True(t, c.HttpOnly)
		assert.True(t, c.Secure)
		assert.Equal(t, http.SameSiteStrictMode, c.SameSite)
		assert.Equal(t, "/", c.Path)
		assert.Equal(t, 7*24*60*60, c.MaxAge)
	}
	assert.NotEmpty(t, byName[TokenCookie].Value)
	assert.Equal(t, "doctor", byName[RoleCookie].Value)
	assert.Equal(t, "doc-1", byName[UserCookie].Value)
}

func TestFromRequestRoundTrip(t *testing.T) {
	m := NewManager("secret", time.Hour, false)
	s, err := m.FromRequest(requestWith(issue(t, m, "patient", "pat-9")))
	require.NoError(t, err)
	assert.Equal(t, "patient", s.Role)
	assert.Equal(t, "pat-9", s.PrincipalID)
}

func TestFromRequestRejectsTampering(t *testing.T) {
	m := NewManager("secret", time.Hour, false)
	cookies := issue(t, m, "patient", "pat-9")

	for i, c := range cookies {
		if c.Name == RoleCookie {
			cookies[i] = &http.Cookie{Name: RoleCookie, Value: "doctor"}
		}
	}
	_, err := m.FromRequest(requestWith(cookies))
	assert.ErrorIs(t, err, ErrInvalidSession)

	forged := NewManager("other-secret", time.Hour, false)
	_, err = m.FromRequest(requestWith(issue(t, forged, "doctor", "doc-1")))
	assert.ErrorIs(t, err, ErrInvalidSession)
}

func TestFromRequestRejectsExpired(t *testing.T) {
	m := NewManager("secret", time.Hour, false)
	issuedAt := time.Now().Add(-2 * time.Hour)
	m.now = func() time.Time { return issuedAt }
	cookies := issue(t, m, "doctor", "doc-1")

	m.now = time.Now
	_, err := m.FromRequest(requestWith(cookies))
	assert.ErrorIs(t, err, ErrInvalidSession)
}

func TestFromRequestWithoutCookie(t *testing.T) {
	m := NewManager("secret", time.Hour, false)
	_, err := m.FromRequest(httptest.NewRequest(http.MethodGet, "/", nil))
	assert.ErrorIs(t, err, ErrNoSession)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: TokenCookie, Value: "garbage"})
	_, err = m.FromRequest(req)
	assert.ErrorIs(t, err, ErrInvalidSession)
}

func TestClearExpiresAllCookies(t *testing.T) {
	m := NewManager("secret", time.Hour, false)
	rec := httptest.NewRecorder()
	m.Clear(rec)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 3)
	for _, c := range cookies {
		assert.Empty(t, c.Value)
		assert.Less(t, c.MaxAge, 0)
	}
}

func TestIssueRejectsUnknownRole(t *testing.T) {
	m := NewManager("secret", time.Hour, false)
	_, err := m.Issue(httptest.NewRecorder(), "admin", "x")
	assert.ErrorIs(t, err, ErrInvalidSession)
}
