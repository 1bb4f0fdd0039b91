// Package auth talks to the user service, keeps the access token and reads
// its claims.
package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

type User struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	Name        string `json:"name"`
	IsActive    bool   `json:"is_active"`
	IsSuperuser bool   `json:"is_superuser"`
}

type RegisterRequest struct {
	Email           string `json:"email"`
	Name            string `json:"name"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"-"`
}

type UpdateUserRequest struct {
	Email    string `json:"email,omitempty"`
	Name     string `json:"name,omitempty"`
	Password string `json:"password,omitempty"`
}

type Token struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// APIError is a non-2xx answer of the user service.
type APIError struct {
	Op     string
	Code   int
	Detail string
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %d: %s", e.Op, e.Code, e.Detail)
	}
	return fmt.Sprintf("%s: %d %s", e.Op, e.Code, http.StatusText(e.Code))
}

// Client is the raw user service client. Anonymous calls go through anon,
// calls on the current user through authed.
type Client struct {
	base   string
	anon   *http.Client
	authed *http.Client
}

func NewClient(baseURL string, timeout time.Duration, src oauth2.TokenSource) *Client {
	return &Client{
		base:   strings.TrimSuffix(baseURL, "/"),
		anon:   &http.Client{Timeout: timeout},
		authed: &http.Client{Timeout: timeout, Transport: &oauth2.Transport{Source: src, Base: http.DefaultTransport}},
	}
}

func (c *Client) Register(ctx context.Context, req RegisterRequest) (User, error) {
	var u User
	err := c.send(ctx, c.anon, "register", http.MethodPost, "/users/register", jsonBody(req), &u)
	return u, err
}

// Login exchanges credentials for a token using the form encoded password flow.
func (c *Client) Login(ctx context.Context, email, password string) (Token, error) {
	form := url.Values{}
	form.Set("username", email)
	form.Set("password", password)
	var t Token
	err := c.send(ctx, c.anon, "login", http.MethodPost, "/users/login/access-token",
		body{ctype: "application/x-www-form-urlencoded", data: []byte(form.Encode())}, &t)
	return t, err
}

func (c *Client) Me(ctx context.Context) (User, error) {
	var u User
	err := c.send(ctx, c.authed, "get current user", http.MethodGet, "/users/me", body{}, &u)
	return u, err
}

func (c *Client) UpdateMe(ctx context.Context, req UpdateUserRequest) (User, error) {
	var u User
	err := c.send(ctx, c.authed, "update current user", http.MethodPut, "/users/me", jsonBody(req), &u)
	return u, err
}

type body struct {
	ctype string
	data  []byte
}

func jsonBody(v any) body {
	buf, _ := json.Marshal(v)
	return body{ctype: "application/json", data: buf}
}

func (c *Client) send(ctx context.Context, hc *http.Client, op, method, path string, b body, out any) error {
	var rd io.Reader
	if b.data != nil {
		rd = bytes.NewReader(b.data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rd)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if b.ctype != "" {
		req.Header.Set("Content-Type", b.ctype)
	}
	res, err := hc.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer res.Body.Close()
	if res.StatusCode/100 != 2 {
		var eb struct {
			Detail any `json:"detail"`
		}
		_ = json.NewDecoder(io.LimitReader(res.Body, 64<<10)).Decode(&eb)
		detail, _ := eb.Detail.(string)
		return &APIError{Op: op, Code: res.StatusCode, Detail: detail}
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode: %w", op, err)
	}
	return nil
}
