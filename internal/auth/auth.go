package auth

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"time"

	"github.com/example/slotscout/internal/internaltypes"
	"github.com/gorilla/securecookie"
	"golang.org/x/crypto/bcrypt"
)

const (
	cookieName = "slotscout_admin"
	sessionTTL = 12 * time.Hour
)

// Store guards the admin pages with a single configured operator account.
type Store struct {
	sc           *securecookie.SecureCookie
	username     string
	passwordHash []byte
	now          func() time.Time
}

func NewStore(username, passwordBcrypt string, hashKey, blockKey []byte) (*Store, error) {
	if username == "" || passwordBcrypt == "" {
		return nil, errors.New("auth: admin username and password hash are required")
	}
	if len(hashKey) == 0 {
		return nil, errors.New("auth: cookie hash key is required")
	}
	if _, err := bcrypt.Cost([]byte(passwordBcrypt)); err != nil {
		return nil, errors.New("auth: admin password is not a bcrypt hash")
	}
	sc := securecookie.New(hashKey, blockKey)
	sc.MaxAge(int(sessionTTL.Seconds()))
	return &Store{
		sc:           sc,
		username:     username,
		passwordHash: []byte(passwordBcrypt),
		now:          time.Now,
	}, nil
}

func HashPassword(pw string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.DefaultCost)
	return string(b), err
}

func CheckPassword(hash, pw string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pw)) == nil
}

// Authenticate returns internaltypes.ErrUnauthorized for any mismatch.
func (s *Store) Authenticate(username, password string) error {
	userOK := secureEq(username, s.username)
	pwOK := bcrypt.CompareHashAndPassword(s.passwordHash, []byte(password)) == nil
	if !userOK || !pwOK {
		return internaltypes.ErrUnauthorized
	}
	return nil
}

type session struct {
	User    string `json:"u"`
	Expires int64  `json:"e"`
}

func (s *Store) SetSession(w http.ResponseWriter, r *http.Request) error {
	encoded, err := s.sc.Encode(cookieName, session{User: s.username, Expires: s.now().Add(sessionTTL).Unix()})
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     cookieName,
		Value:    encoded,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   r.TLS != nil,
		MaxAge:   int(sessionTTL.Seconds()),
	})
	return nil
}

func (s *Store) ClearSession(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     cookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})
}

func (s *Store) Authenticated(r *http.Request) bool {
	c, err := r.Cookie(cookieName)
	if err != nil {
		return false
	}
	var sess session
	if err := s.sc.Decode(cookieName, c.Value, &sess); err != nil {
		return false
	}
	return secureEq(sess.User, s.username) && s.now().Unix() < sess.Expires
}

// RequireAuth answers 401 to requests without a valid admin session.
func (s *Store) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.Authenticated(r) {
			http.Error(w, internaltypes.ErrUnauthorized.Error(), http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func secureEq(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
