// Package auth gates the HTTP surface behind API keys or HS256 bearer tokens.
package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	HeaderAPIKey = "X-API-Key"
	bearerPrefix = "Bearer "
)

type Authorizer interface {
	Authorized(r *http.Request) bool
}

// AllowAll is used when auth is disabled.
type AllowAll struct{}

func (AllowAll) Authorized(*http.Request) bool { return true }

// APIKeys accepts requests whose X-API-Key matches a configured key.
// Only SHA-256 digests are kept in memory.
type APIKeys struct {
	hashes [][sha256.Size]byte
}

func NewAPIKeys(keys []string) *APIKeys {
	a := &APIKeys{}
	for _, k := range keys {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		a.hashes = append(a.hashes, sha256.Sum256([]byte(k)))
	}
	return a
}

func (a *APIKeys) Authorized(r *http.Request) bool {
	key := strings.TrimSpace(r.Header.Get(HeaderAPIKey))
	if key == "" || len(a.hashes) == 0 {
		return false
	}
	got := sha256.Sum256([]byte(key))
	ok := 0
	// compare against every key so timing does not reveal which one matched
	for i := range a.hashes {
		ok |= subtle.ConstantTimeCompare(got[:], a.hashes[i][:])
	}
	return ok == 1
}

// JWT accepts "Authorization: Bearer <token>" signed with HS256.
type JWT struct {
	secret []byte
	now    func() time.Time
}

func NewJWT(secret string) *JWT {
	return &JWT{secret: []byte(secret), now: time.Now}
}

func (j *JWT) Authorized(r *http.Request) bool {
	_, err := j.Verify(r.Header.Get("Authorization"))
	return err == nil
}

var ErrNoToken = errors.New("auth: missing bearer token")

// Verify parses an Authorization header value and returns the token claims.
func (j *JWT) Verify(header string) (jwt.MapClaims, error) {
	if len(j.secret) == 0 {
		return nil, errors.New("auth: jwt secret not configured")
	}
	raw, ok := strings.CutPrefix(strings.TrimSpace(header), bearerPrefix)
	if !ok || strings.TrimSpace(raw) == "" {
		return nil, ErrNoToken
	}
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(strings.TrimSpace(raw), claims,
		func(*jwt.Token) (any, error) { return j.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(j.now),
	)
	if err != nil {
		return nil, err
	}
	return claims, nil
}

// Sign issues an HS256 token for subject valid for ttl. Used by tooling and tests.
func (j *JWT) Sign(subject string, ttl time.Duration) (string, error) {
	now := j.now()
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	})
	return t.SignedString(j.secret)
}

// AnyOf authorizes when at least one member does.
type AnyOf []Authorizer

func (a AnyOf) Authorized(r *http.Request) bool {
	for _, z := range a {
		if z.Authorized(r) {
			return true
		}
	}
	return false
}

// New builds the authorizer for the configured credentials. Disabled auth
// allows everything; enabled auth with no credentials allows nothing.
func New(enabled bool, apiKeys []string, jwtSecret string) Authorizer {
	if !enabled {
		return AllowAll{}
	}
	var set AnyOf
	if len(apiKeys) > 0 {
		set = append(set, NewAPIKeys(apiKeys))
	}
	if jwtSecret != "" {
		set = append(set, NewJWT(jwtSecret))
	}
	return set
}

// Middleware rejects unauthorized requests with 401 before they reach next.
func Middleware(a Authorizer, l *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !a.Authorized(r) {
				l.DebugContext(r.Context(), "unauthorized request", "path", r.URL.Path)
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("WWW-Authenticate", `Bearer realm="places"`)
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":{"kind":"unauthorized","message":"missing or invalid credentials"}}` + "\n"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
