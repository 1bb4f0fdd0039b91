package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrTokenExpired = errors.New("access token expired")
	ErrInvalidToken = errors.New("invalid access token")
	ErrWrongSubject = errors.New("token belongs to another user")
)

type Claims struct {
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// Verifier reads access token claims. With a secret it checks the HS256
// signature; without one it trusts the user service and only reads them.
type Verifier struct{ hmac []byte }

func NewVerifier(secret string) *Verifier { return &Verifier{hmac: []byte(secret)} }

func (v *Verifier) ParseClaims(tokenStr string) (*Claims, error) {
	c := &Claims{}
	if len(v.hmac) > 0 {
		token, err := jwt.ParseWithClaims(tokenStr, c, func(t *jwt.Token) (interface{}, error) {
			return v.hmac, nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		if err != nil {
			return nil, err
		}
		if !token.Valid {
			return nil, ErrInvalidToken
		}
		return c, nil
	}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenStr, c); err != nil {
		return nil, err
	}
	if c.ExpiresAt != nil && c.ExpiresAt.Before(time.Now()) {
		return nil, ErrTokenExpired
	}
	return c, nil
}

type ctxKey string

const ctxKeySub ctxKey = "sub"

func WithSubject(ctx context.Context, sub string) context.Context {
	return context.WithValue(ctx, ctxKeySub, sub)
}

func SubjectFromContext(ctx context.Context) string {
	if v := ctx.Value(ctxKeySub); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// Middleware accepts requests without credentials. A bearer token, when
// present, must parse; its subject is put on the request context.
func Middleware(v *Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := r.Header.Get("Authorization")
			if h == "" {
				next.ServeHTTP(w, r)
				return
			}
			if !strings.HasPrefix(h, "Bearer ") {
				http.Error(w, "bad authorization header", http.StatusUnauthorized)
				return
			}
			c, err := v.ParseClaims(strings.TrimPrefix(h, "Bearer "))
			if err != nil {
				http.Error(w, "bad token", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithSubject(r.Context(), c.Subject)))
		})
	}
}

// RequireSubject rejects requests whose bearer subject is not the user the
// session acts for. Anonymous requests, or an engine with no user, pass.
func RequireSubject(current func() string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sub := SubjectFromContext(r.Context())
			if cur := current(); sub != "" && cur != "" && sub != cur {
				http.Error(w, ErrWrongSubject.Error(), http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
