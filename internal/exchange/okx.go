// Package exchange hosts the OKX REST connector used for execution, reconciliation and warm-up.
package exchange

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	defaultBaseURL = "https://www.okx.com"
	defaultTimeout = 10 * time.Second
	successCode    = "0"
)

// ErrRejected marks any response OKX answered with a non-success code.
var ErrRejected = errors.New("exchange rejected request")

// APIError carries OKX's code and message. It matches ErrRejected.
type APIError struct {
	Path string
	Code string
	Msg  string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("okx %s: code=%s msg=%s", e.Path, e.Code, e.Msg)
}

// Is lets errors.Is(err, ErrRejected) match every APIError.
func (e *APIError) Is(target error) bool { return target == ErrRejected }

// Credentials authenticate private endpoints.
type Credentials struct {
	APIKey     string
	Secret     string
	Passphrase string
}

// Client talks to the OKX v5 REST API.
type Client struct {
	baseURL string
	creds   Credentials
	demo    bool
	http    *http.Client
	log     zerolog.Logger
	now     func() time.Time

	mu          sync.RWMutex
	instruments map[string]Instrument
}

// Option configures Client construction parameters.
type Option func(*Client)

// WithBaseURL points the client at another host, e.g. a test server.
func WithBaseURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.baseURL = strings.TrimSuffix(u, "/")
		}
	}
}

// WithTimeout overrides the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithDemo sends the simulated-trading header on every request.
func WithDemo(demo bool) Option {
	return func(c *Client) { c.demo = demo }
}

// NewClient builds a REST client. Public endpoints work without credentials.
func NewClient(creds Credentials, log zerolog.Logger, opts ...Option) *Client {
	c := &Client{
		baseURL:     defaultBaseURL,
		creds:       creds,
		http:        &http.Client{Timeout: defaultTimeout},
		log:         log,
		now:         time.Now,
		instruments: make(map[string]Instrument),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type response struct {
	Code string          `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

// Sign returns the base64 HMAC-SHA256 of timestamp+method+path+body.
func Sign(secret, timestamp, method, requestPath, body string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp + strings.ToUpper(method) + requestPath + body))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, payload any, private bool, out any) error {
	requestPath := path
	if len(query) > 0 {
		requestPath += "?" + query.Encode()
	}
	var body []byte
	if payload != nil {
		var err error
		if body, err = json.Marshal(payload); err != nil {
			return fmt.Errorf("encode %s: %w", path, err)
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+requestPath, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build %s: %w", path, err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.demo {
		req.Header.Set("x-simulated-trading", "1")
	}
	if private {
		if c.creds.APIKey == "" || c.creds.Secret == "" {
			return fmt.Errorf("%s: missing api credentials", path)
		}
		ts := c.now().UTC().Format("2006-01-02T15:04:05.000Z")
		req.Header.Set("OK-ACCESS-KEY", c.creds.APIKey)
		req.Header.Set("OK-ACCESS-SIGN", Sign(c.creds.Secret, ts, method, requestPath, string(body)))
		req.Header.Set("OK-ACCESS-TIMESTAMP", ts)
		req.Header.Set("OK-ACCESS-PASSPHRASE", c.creds.Passphrase)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	var env response
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("%s: status %d: decode: %w", path, resp.StatusCode, err)
	}
	if env.Code != successCode {
		return &APIError{Path: path, Code: env.Code, Msg: env.Msg}
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("%s: decode data: %w", path, err)
	}
	return nil
}
