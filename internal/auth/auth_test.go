package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/example/slotscout/internal/internaltypes"
	"github.com/gorilla/securecookie"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)
	s, err := NewStore("admin", string(hash), securecookie.GenerateRandomKey(32), securecookie.GenerateRandomKey(32))
	require.NoError(t, err)
	return s
}

func TestAuthenticate(t *testing.T) {
	s := newStore(t)
	testCases := []struct {
		name     string
		user, pw string
		wantErr  bool
	}{
		{name: "valid", user: "admin", pw: "s3cret"},
		{name: "wrong password", user: "admin", pw: "nope", wantErr: true},
		{name: "wrong user", user: "root", pw: "s3cret", wantErr: true},
		{name: "empty", wantErr: true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := s.Authenticate(tc.user, tc.pw)
			if tc.wantErr {
				require.ErrorIs(t, err, internaltypes.ErrUnauthorized)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestSessionRoundTrip(t *testing.T) {
	s := newStore(t)
	protected := s.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	protected.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/jobs", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	login := httptest.NewRecorder()
	require.NoError(t, s.SetSession(login, httptest.NewRequest(http.MethodPost, "/admin/login", nil)))
	cookies := login.Result().Cookies()
	require.Len(t, cookies, 1)

	req := httptest.NewRequest(http.MethodGet, "/admin/jobs", nil)
	req.AddCookie(cookies[0])
	rec = httptest.NewRecorder()
	protected.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)

	// expired sessions are rejected even with a valid signature
	s.now = func() time.Time { return time.Now().Add(sessionTTL + time.Minute) }
	require.False(t, s.Authenticated(req))
}

func TestNewStoreRejectsPlainPassword(t *testing.T) {
	_, err := NewStore("admin", "plaintext", securecookie.GenerateRandomKey(32), nil)
	require.Error(t, err)
}

func TestHashPassword(t *testing.T) {
	h, err := HashPassword("pw")
	require.NoError(t, err)
	require.True(t, CheckPassword(h, "pw"))
	require.False(t, CheckPassword(h, "other"))
}
