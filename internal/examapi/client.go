// Package examapi is the client for the external exam, question-topic and
// conversation services.
package examapi

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

	"github.com/genem/simulado/internal/logger"
)

type Client struct {
	base string
	http *http.Client
}

type Config struct {
	BaseURL string
	Timeout time.Duration
	// Optional: attaches a bearer token when one is available.
	TokenSource oauth2.TokenSource
	// Optional: defaults to http.DefaultTransport.
	Transport http.RoundTripper
}

func New(cfg Config) *Client {
	base := cfg.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	if cfg.TokenSource != nil {
		base = &bearerTransport{src: cfg.TokenSource, base: base}
	}
	h := &http.Client{Transport: base}
	if cfg.Timeout > 0 {
		h.Timeout = cfg.Timeout
	}
	return &Client{base: strings.TrimSuffix(cfg.BaseURL, "/"), http: h}
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Op     string
	Code   int
	Status string
	Detail string
}

func (e *StatusError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Status, e.Detail)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Status)
}

// bearerTransport sets the Authorization header when the source has a token
// and sends the request anonymously otherwise; the exam endpoints accept both.
type bearerTransport struct {
	src  oauth2.TokenSource
	base http.RoundTripper
}

func (t *bearerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	tok, err := t.src.Token()
	if err != nil || tok == nil || tok.AccessToken == "" {
		if err != nil {
			logger.Debug("examapi: no bearer token: %v", err)
		}
		return t.base.RoundTrip(req)
	}
	r2 := req.Clone(req.Context())
	tok.SetAuthHeader(r2)
	return t.base.RoundTrip(r2)
}

func (c *Client) do(ctx context.Context, op, method, path string, q url.Values, body, out any) error {
	u := c.base + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	var rd io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		rd = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, rd)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer res.Body.Close()
	if res.StatusCode/100 != 2 {
		return &StatusError{Op: op, Code: res.StatusCode, Status: res.Status, Detail: readDetail(res.Body)}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, res.Body)
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode: %w", op, err)
	}
	return nil
}

// readDetail extracts {"detail": ...} or {"message": ...} from an error body.
func readDetail(r io.Reader) string {
	var body struct {
		Detail  any    `json:"detail"`
		Message string `json:"message"`
	}
	if err := json.NewDecoder(io.LimitReader(r, 64<<10)).Decode(&body); err != nil {
		return ""
	}
	if s, ok := body.Detail.(string); ok && s != "" {
		return s
	}
	return body.Message
}

func userQuery(userID string) url.Values {
	q := url.Values{}
	if userID != "" {
		q.Set("user_id", userID)
	}
	return q
}
