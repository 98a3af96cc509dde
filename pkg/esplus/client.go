package esplus

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/raterudder/esplus/pkg/common"
	"github.com/raterudder/esplus/pkg/log"
	"github.com/raterudder/esplus/pkg/metrics"
	"golang.org/x/oauth2"
)

// DefaultBaseURL is the mobile API of the EnergosbytPlus personal account.
const DefaultBaseURL = "https://lkm.esplus.ru"

const (
	userAgent     = "okhttp/3.12.1"
	requestedFrom = "esb-mobile-app"
)

// LoginType selects how the portal interprets the login identifier.
type LoginType string

const (
	LoginTypeAccount LoginType = "account"
	LoginTypeContact LoginType = "contact"
)

// Config holds everything needed to talk to the portal on behalf of one
// user.
type Config struct {
	BaseURL  string
	Branch   string
	Username string
	Password string
	// LoginType is inferred from Username when empty.
	LoginType LoginType
	Timeout   time.Duration
}

// Client is an authenticated client of the portal. It is safe for concurrent
// use; a single Client is shared by every refresh task of a config entry.
type Client struct {
	client   *http.Client
	baseURL  string
	branch   string
	username string
	password string

	// authMu serializes Authenticate so concurrent failures do not trigger
	// overlapping logins.
	authMu sync.Mutex

	mu        sync.RWMutex
	loginType LoginType
	token     *oauth2.Token
	// logins counts successful logins.
	logins uint64

	seq atomic.Uint64
	now func() time.Time
}

// HTTPClient returns a pooled client that identifies itself as the mobile
// application.
func HTTPClient(timeout time.Duration) *http.Client {
	return common.HTTPClient(timeout, map[string]string{
		"User-Agent":       userAgent,
		"X-Requested-From": requestedFrom,
	})
}

// New returns a Client for the given config.
func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = time.Minute
	}
	return &Client{
		client:    HTTPClient(cfg.Timeout),
		baseURL:   cfg.BaseURL,
		branch:    cfg.Branch,
		username:  cfg.Username,
		password:  cfg.Password,
		loginType: cfg.LoginType,
		now:       time.Now,
	}
}

// Branch returns the branch code the client logs in to.
func (c *Client) Branch() string {
	return c.branch
}

// Username returns the login identifier.
func (c *Client) Username() string {
	return c.username
}

// RequestCount returns the number of requests issued so far.
func (c *Client) RequestCount() uint64 {
	return c.seq.Load()
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, params url.Values, body interface{}) (*http.Request, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, err
	}
	u.Path, err = url.JoinPath(u.Path, endpoint)
	if err != nil {
		return nil, err
	}
	if len(params) > 0 {
		u.RawQuery = params.Encode()
	}

	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), r)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

type envelope struct {
	Error   int             `json:"error"`
	Content json.RawMessage `json:"content"`
}

// request performs a call against the portal and returns the content of the
// response envelope.
func (c *Client) request(ctx context.Context, method, endpoint string, authenticated bool, params url.Values, body interface{}) (json.RawMessage, error) {
	seq := c.seq.Add(1)
	start := time.Now()

	content, err := c.doRequest(ctx, seq, method, endpoint, authenticated, params, body)
	metrics.ObserveRequest(endpoint, err, time.Since(start))
	if err != nil {
		log.Ctx(ctx).DebugContext(
			ctx,
			"esplus request failed",
			slog.Uint64("seq", seq),
			slog.String("method", method),
			slog.String("endpoint", endpoint),
			slog.Any("error", err),
		)
		return nil, err
	}
	log.Ctx(ctx).DebugContext(
		ctx,
		"esplus response",
		slog.Uint64("seq", seq),
		slog.Int("bytes", len(content)),
	)
	return content, nil
}

func (c *Client) doRequest(ctx context.Context, seq uint64, method, endpoint string, authenticated bool, params url.Values, body interface{}) (json.RawMessage, error) {
	req, err := c.newRequest(ctx, method, endpoint, params, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	if authenticated {
		c.mu.RLock()
		token := c.token
		c.mu.RUnlock()
		if token == nil || token.AccessToken == "" {
			return nil, fmt.Errorf("%s %s: %w", method, endpoint, ErrUnauthenticated)
		}
		req.Header.Set("Authorization", token.Type()+" "+token.AccessToken)
	}

	log.Ctx(ctx).DebugContext(
		ctx,
		"esplus request",
		slog.Uint64("seq", seq),
		slog.String("method", method),
		slog.String("endpoint", endpoint),
		slog.String("query", params.Encode()),
	)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &TransportError{Method: method, Path: endpoint, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &TransportError{Method: method, Path: endpoint, StatusCode: resp.StatusCode}
	}

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Method: method, Path: endpoint, Err: fmt.Errorf("failed to read body: %w", err)}
	}

	var env envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return nil, &TransportError{Method: method, Path: endpoint, Err: fmt.Errorf("invalid json: %w", err)}
	}
	if env.Error != 0 {
		return nil, &UpstreamError{Path: endpoint, Code: env.Error}
	}
	return env.Content, nil
}
