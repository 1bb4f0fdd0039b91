package auth

import (
	"context"
	"errors"

	"golang.org/x/oauth2"

	"github.com/genem/simulado/internal/logger"
	"github.com/genem/simulado/internal/state"
)

var ErrNotAuthenticated = errors.New("not authenticated")

// TokenStore keeps the access token in the state store, sealed when a
// passphrase is configured. It is the oauth2.TokenSource of every client.
type TokenStore struct {
	value    *state.Value[string]
	seal     *sealer
	verifier *Verifier
}

func NewTokenStore(ctx context.Context, st state.Store, passphrase string, v *Verifier) (*TokenStore, error) {
	val, err := state.NewValue(ctx, st, state.KeyAccessToken, "")
	if err != nil {
		return nil, err
	}
	if v == nil {
		v = NewVerifier("")
	}
	return &TokenStore{value: val, seal: newSealer(passphrase), verifier: v}, nil
}

func (t *TokenStore) Save(ctx context.Context, token string) error {
	if token == "" {
		return t.Clear(ctx)
	}
	stored := token
	if t.seal != nil {
		var err error
		if stored, err = t.seal.seal(token); err != nil {
			return err
		}
	}
	return t.value.Set(ctx, stored)
}

// Load returns the plain token, if any.
func (t *TokenStore) Load() (string, bool) {
	stored := t.value.Get()
	if stored == "" {
		return "", false
	}
	if t.seal == nil {
		return stored, true
	}
	plain, err := t.seal.open(stored)
	if err != nil {
		logger.Warn("auth: stored token unreadable: %v", err)
		return "", false
	}
	return plain, true
}

func (t *TokenStore) Clear(ctx context.Context) error { return t.value.Reset(ctx) }

// Token implements oauth2.TokenSource.
func (t *TokenStore) Token() (*oauth2.Token, error) {
	raw, ok := t.Load()
	if !ok {
		return nil, ErrNotAuthenticated
	}
	tok := &oauth2.Token{AccessToken: raw, TokenType: "Bearer"}
	if c, err := t.verifier.ParseClaims(raw); err == nil {
		if c.ExpiresAt != nil {
			tok.Expiry = c.ExpiresAt.Time
		}
	} else if errors.Is(err, ErrTokenExpired) {
		return nil, ErrTokenExpired
	}
	return tok, nil
}

// Subject is the user id carried by the stored token, or "".
func (t *TokenStore) Subject() string {
	raw, ok := t.Load()
	if !ok {
		return ""
	}
	c, err := t.verifier.ParseClaims(raw)
	if err != nil {
		return ""
	}
	return c.Subject
}

func (t *TokenStore) Close() { t.value.Close() }
