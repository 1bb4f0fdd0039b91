package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"

	"github.com/genem/simulado/internal/state"
)

const testSecret = "s3cret"

func mint(t *testing.T, secret, sub string, ttl time.Duration) string {
	t.Helper()
	now := time.Now()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
		Email: sub + "@example.com",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	})
	s, err := tok.SignedString([]byte(secret))
	if err != nil {
		t.Fatal(err)
	}
	return s
}

// userService fakes the remote user API.
type userService struct {
	*httptest.Server
	mu       sync.Mutex
	requests int
	token    string
	revoked  bool
}

func newUserService(t *testing.T) *userService {
	us := &userService{token: mint(t, testSecret, "user-42", time.Hour)}
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			us.mu.Lock()
			us.requests++
			us.mu.Unlock()
			next.ServeHTTP(w, r)
		})
	})
	r.Post("/users/register", func(w http.ResponseWriter, r *http.Request) {
		var req map[string]string
		_ = json.NewDecoder(r.Body).Decode(&req)
		if _, leaked := req["ConfirmPassword"]; leaked {
			http.Error(w, "unexpected field", http.StatusBadRequest)
			return
		}
		_ = json.NewEncoder(w).Encode(User{ID: "user-42", Email: req["email"], Name: req["name"], IsActive: true})
	})
	r.Post("/users/login/access-token", func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.Header.Get("Content-Type"), "application/x-www-form-urlencoded") {
			http.Error(w, "want form", http.StatusUnsupportedMediaType)
			return
		}
		if r.FormValue("username") != "ana@example.com" || r.FormValue("password") != "pw" {
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]string{"detail": "Incorrect email or password"})
			return
		}
		_ = json.NewEncoder(w).Encode(Token{AccessToken: us.token, TokenType: "bearer"})
	})
	me := func(w http.ResponseWriter, r *http.Request) {
		us.mu.Lock()
		revoked := us.revoked
		us.mu.Unlock()
		if revoked || r.Header.Get("Authorization") != "Bearer "+us.token {
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]string{"detail": "Could not validate credentials"})
			return
		}
		u := User{ID: "user-42", Email: "ana@example.com", Name: "Ana", IsActive: true}
		if r.Method == http.MethodPut {
			var upd UpdateUserRequest
			_ = json.NewDecoder(r.Body).Decode(&upd)
			u.Name = upd.Name
		}
		_ = json.NewEncoder(w).Encode(u)
	}
	r.Get("/users/me", me)
	r.Put("/users/me", me)
	us.Server = httptest.NewServer(r)
	t.Cleanup(us.Close)
	return us
}

func (us *userService) count() int {
	us.mu.Lock()
	defer us.mu.Unlock()
	return us.requests
}

func newService(t *testing.T, us *userService, st state.Store, passphrase string) *Service {
	t.Helper()
	tokens, err := NewTokenStore(context.Background(), st, passphrase, NewVerifier(testSecret))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(tokens.Close)
	return NewService(NewClient(us.URL, 5*time.Second, tokens), tokens)
}

func TestValidationHappensBeforeNetwork(t *testing.T) {
	us := newUserService(t)
	svc := newService(t, us, state.NewMemoryStore(), "")
	ctx := context.Background()

	_, err := svc.Register(ctx, RegisterRequest{Email: "a@b.c", Password: "one", ConfirmPassword: "two"})
	if !errors.Is(err, ErrPasswordMismatch) {
		t.Fatalf("err = %v, want ErrPasswordMismatch", err)
	}
	if _, err := svc.Register(ctx, RegisterRequest{Email: " ", Password: "x", ConfirmPassword: "x"}); !errors.Is(err, ErrMissingCredentials) {
		t.Fatalf("err = %v, want ErrMissingCredentials", err)
	}
	if _, err := svc.Login(ctx, "ana@example.com", ""); !errors.Is(err, ErrMissingCredentials) {
		t.Fatalf("err = %v, want ErrMissingCredentials", err)
	}
	if _, err := svc.Me(ctx); !errors.Is(err, ErrNotAuthenticated) {
		t.Fatalf("err = %v, want ErrNotAuthenticated", err)
	}
	if us.count() != 0 {
		t.Fatalf("validation failures made %d requests", us.count())
	}

	u, err := svc.Register(ctx, RegisterRequest{Email: "ana@example.com", Name: "Ana", Password: "pw", ConfirmPassword: "pw"})
	if err != nil || u.ID != "user-42" {
		t.Fatalf("register = %+v, %v", u, err)
	}
}

func TestLoginStoresSealedTokenAndLoadsUser(t *testing.T) {
	us := newUserService(t)
	st := state.NewMemoryStore()
	svc := newService(t, us, st, "correct horse")
	ctx := context.Background()

	if _, err := svc.Login(ctx, "ana@example.com", "wrong"); err == nil {
		t.Fatal("expected login failure")
	} else {
		var apiErr *APIError
		if !errors.As(err, &apiErr) || apiErr.Detail != "Incorrect email or password" {
			t.Fatalf("err = %v", err)
		}
	}

	u, err := svc.Login(ctx, "ana@example.com", "pw")
	if err != nil {
		t.Fatal(err)
	}
	if u.Name != "Ana" || svc.UserID() != "user-42" {
		t.Fatalf("user = %+v subject = %q", u, svc.UserID())
	}
	raw, ok, _ := st.Get(ctx, state.KeyAccessToken)
	if !ok || strings.Contains(string(raw), us.token) {
		t.Fatalf("token stored in clear: %s", raw)
	}

	updated, err := svc.UpdateMe(ctx, UpdateUserRequest{Name: "Ana Maria"})
	if err != nil || updated.Name != "Ana Maria" {
		t.Fatalf("update = %+v, %v", updated, err)
	}

	// a second process with the same passphrase reads the token back
	other := newService(t, us, st, "correct horse")
	if other.UserID() != "user-42" {
		t.Fatalf("other process subject = %q", other.UserID())
	}
	wrong := newService(t, us, st, "other pass")
	if _, ok := wrong.Tokens().Load(); ok {
		t.Fatal("token opened with the wrong passphrase")
	}
}

func TestUnauthorizedMeClearsToken(t *testing.T) {
	us := newUserService(t)
	st := state.NewMemoryStore()
	svc := newService(t, us, st, "")
	ctx := context.Background()

	if _, err := svc.Login(ctx, "ana@example.com", "pw"); err != nil {
		t.Fatal(err)
	}
	us.mu.Lock()
	us.revoked = true
	us.mu.Unlock()

	if _, err := svc.Me(ctx); !errors.Is(err, ErrNotAuthenticated) {
		t.Fatalf("err = %v, want ErrNotAuthenticated", err)
	}
	if _, ok, _ := st.Get(ctx, state.KeyAccessToken); ok {
		t.Fatal("rejected token kept")
	}
	if err := svc.Logout(ctx); err != nil {
		t.Fatal(err)
	}
}

func TestParseClaims(t *testing.T) {
	v := NewVerifier(testSecret)

	c, err := v.ParseClaims(mint(t, testSecret, "u1", time.Hour))
	if err != nil || c.Subject != "u1" || c.Email != "u1@example.com" {
		t.Fatalf("claims = %+v, %v", c, err)
	}
	if _, err := v.ParseClaims(mint(t, "other", "u1", time.Hour)); err == nil {
		t.Fatal("accepted a token signed with another key")
	}
	if _, err := v.ParseClaims(mint(t, testSecret, "u1", -time.Minute)); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expired err = %v", err)
	}
	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatal(err)
	}
	for _, bad := range []string{"", "garbage", none} {
		if c, err := v.ParseClaims(bad); err == nil || c != nil {
			t.Fatalf("ParseClaims(%q) = %+v, %v", bad, c, err)
		}
	}

	// without a secret the claims are read as is
	unverified := NewVerifier("")
	c, err = unverified.ParseClaims(mint(t, "whatever", "u2", time.Hour))
	if err != nil || c.Subject != "u2" {
		t.Fatalf("unverified = %+v, %v", c, err)
	}
	if _, err := unverified.ParseClaims(mint(t, "whatever", "u2", -time.Minute)); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("unverified expired err = %v", err)
	}
}

func TestTokenSource(t *testing.T) {
	ctx := context.Background()
	tokens, err := NewTokenStore(ctx, state.NewMemoryStore(), "", NewVerifier(testSecret))
	if err != nil {
		t.Fatal(err)
	}
	defer tokens.Close()

	if _, err := tokens.Token(); !errors.Is(err, ErrNotAuthenticated) {
		t.Fatalf("empty store err = %v", err)
	}
	_ = tokens.Save(ctx, mint(t, testSecret, "u1", time.Hour))
	tok, err := tokens.Token()
	if err != nil || !tok.Valid() || tok.Expiry.IsZero() {
		t.Fatalf("token = %+v, %v", tok, err)
	}
	_ = tokens.Save(ctx, mint(t, testSecret, "u1", -time.Minute))
	if _, err := tokens.Token(); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expired err = %v", err)
	}
}

func TestMiddleware(t *testing.T) {
	var seen string
	h := Middleware(NewVerifier(testSecret))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = SubjectFromContext(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK || seen != "" {
		t.Fatalf("anonymous: code=%d subject=%q", rec.Code, seen)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+mint(t, testSecret, "u7", time.Hour))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || seen != "u7" {
		t.Fatalf("bearer: code=%d subject=%q", rec.Code, seen)
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad token code = %d", rec.Code)
	}
}

func TestRequireSubject(t *testing.T) {
	current := "u7"
	h := Middleware(NewVerifier(testSecret))(RequireSubject(func() string { return current })(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})))

	call := func(sub string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if sub != "" {
			req.Header.Set("Authorization", "Bearer "+mint(t, testSecret, sub, time.Hour))
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}
	if code := call("u7"); code != http.StatusOK {
		t.Fatalf("same user code = %d", code)
	}
	if code := call(""); code != http.StatusOK {
		t.Fatalf("anonymous code = %d", code)
	}
	if code := call("u8"); code != http.StatusForbidden {
		t.Fatalf("other user code = %d", code)
	}
	current = ""
	if code := call("u8"); code != http.StatusOK {
		t.Fatalf("no session user code = %d", code)
	}
}
