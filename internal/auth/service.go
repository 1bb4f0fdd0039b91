package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	ErrMissingCredentials = errors.New("email and password are required")
	ErrPasswordMismatch   = errors.New("passwords do not match")
)

// Service is the login flow on top of Client and TokenStore. Validation
// errors are returned before any request is made.
type Service struct {
	client *Client
	tokens *TokenStore
}

func NewService(client *Client, tokens *TokenStore) *Service {
	return &Service{client: client, tokens: tokens}
}

func (s *Service) Tokens() *TokenStore { return s.tokens }

func (s *Service) Register(ctx context.Context, req RegisterRequest) (User, error) {
	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.Password == "" {
		return User{}, ErrMissingCredentials
	}
	if req.Password != req.ConfirmPassword {
		return User{}, ErrPasswordMismatch
	}
	return s.client.Register(ctx, req)
}

func (s *Service) Login(ctx context.Context, email, password string) (User, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return User{}, ErrMissingCredentials
	}
	tok, err := s.client.Login(ctx, email, password)
	if err != nil {
		return User{}, err
	}
	if err := s.tokens.Save(ctx, tok.AccessToken); err != nil {
		return User{}, fmt.Errorf("store token: %w", err)
	}
	return s.Me(ctx)
}

func (s *Service) Logout(ctx context.Context) error { return s.tokens.Clear(ctx) }

// Me loads the current user. A rejected token is discarded.
func (s *Service) Me(ctx context.Context) (User, error) {
	if _, ok := s.tokens.Load(); !ok {
		return User{}, ErrNotAuthenticated
	}
	u, err := s.client.Me(ctx)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusUnauthorized {
		if cerr := s.tokens.Clear(ctx); cerr != nil {
			return User{}, errors.Join(ErrNotAuthenticated, cerr)
		}
		return User{}, fmt.Errorf("%w: %w", ErrNotAuthenticated, err)
	}
	return u, err
}

func (s *Service) UpdateMe(ctx context.Context, req UpdateUserRequest) (User, error) {
	if _, ok := s.tokens.Load(); !ok {
		return User{}, ErrNotAuthenticated
	}
	return s.client.UpdateMe(ctx, req)
}

// UserID is the subject of the stored token, or "" when logged out.
func (s *Service) UserID() string { return s.tokens.Subject() }
