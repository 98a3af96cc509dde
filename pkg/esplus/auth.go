package esplus

import (
	"context"
	"errors"
	"log/slog"
	"time"
	"unicode"

	"github.com/raterudder/esplus/pkg/log"
	"github.com/raterudder/esplus/pkg/metrics"
	"golang.org/x/oauth2"
)

const loginPath = "/api/v1/auth/login"

// Authenticator is implemented by Client. WithAutoAuth only needs these two
// operations.
type Authenticator interface {
	Authenticate(ctx context.Context) error
	IsTokenExpired() bool
}

var _ Authenticator = (*Client)(nil)

type loginRequest struct {
	LoginType  LoginType `json:"login_type"`
	Login      string    `json:"login"`
	Password   string    `json:"password"`
	BranchCode string    `json:"branch_code"`
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

// Authenticate logs in and stores the issued token. When the login type was
// not configured, a numeric username is first tried as an account number and
// then as a contact. The login type that worked is remembered. A caller that
// waited while another one logged in reuses that token.
func (c *Client) Authenticate(ctx context.Context) error {
	c.mu.RLock()
	seen := c.logins
	c.mu.RUnlock()

	c.authMu.Lock()
	defer c.authMu.Unlock()

	c.mu.RLock()
	loginType := c.loginType
	refreshed := c.logins != seen && c.token != nil && !c.now().After(c.token.Expiry)
	c.mu.RUnlock()
	if refreshed {
		log.Ctx(ctx).DebugContext(ctx, "esplus token refreshed while waiting, skipping login")
		return nil
	}

	var fallback bool
	if loginType == "" {
		if isNumeric(c.username) {
			loginType = LoginTypeAccount
			fallback = true
		} else {
			loginType = LoginTypeContact
		}
	}

	token, err := c.login(ctx, loginType)
	metrics.ObserveLogin(string(loginType), err)
	if err != nil && fallback {
		log.Ctx(ctx).WarnContext(
			ctx,
			"esplus login failed, retrying with contact login type",
			slog.String("loginType", string(loginType)),
			slog.Any("error", err),
		)
		loginType = LoginTypeContact
		token, err = c.login(ctx, loginType)
		metrics.ObserveLogin(string(loginType), err)
	}
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "esplus login failed", slog.String("loginType", string(loginType)), slog.Any("error", err))
		return &AuthenticationError{LoginType: string(loginType), Err: err}
	}

	c.mu.Lock()
	if c.loginType == "" {
		c.loginType = loginType
	}
	c.token = token
	c.logins++
	c.mu.Unlock()

	log.Ctx(ctx).DebugContext(
		ctx,
		"esplus login success",
		slog.String("loginType", string(loginType)),
		slog.Time("expiry", token.Expiry),
	)
	return nil
}

func (c *Client) login(ctx context.Context, loginType LoginType) (*oauth2.Token, error) {
	if c.username == "" {
		return nil, errors.New("missing username")
	}
	if c.password == "" {
		return nil, errors.New("missing password")
	}

	content, err := c.request(ctx, "POST", loginPath, false, nil, loginRequest{
		LoginType:  loginType,
		Login:      c.username,
		Password:   c.password,
		BranchCode: c.branch,
	})
	if err != nil {
		return nil, err
	}

	f := parseFields("Token", content)
	token := &oauth2.Token{
		AccessToken:  f.String("access_token"),
		TokenType:    f.String("token_type"),
		RefreshToken: f.String("refresh_token"),
	}
	expiresIn := f.Float("expires_in")
	if err := f.err(); err != nil {
		return nil, err
	}
	token.Expiry = c.now().Add(time.Duration(expiresIn * float64(time.Second)))
	return token, nil
}

// LoginType returns the configured or discovered login type, or an empty
// string before the first successful login.
func (c *Client) LoginType() LoginType {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loginType
}

// Token returns a copy of the current token, or nil before the first
// successful login. The refresh token is kept but never used.
func (c *Client) Token() *oauth2.Token {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.token == nil {
		return nil
	}
	t := *c.token
	return &t
}

// IsTokenExpired reports whether the token lifetime has elapsed. It is true
// when there is no token.
func (c *Client) IsTokenExpired() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.token == nil {
		return true
	}
	return c.now().After(c.token.Expiry)
}

// IsAuthError reports whether err could be fixed by logging in again. Upstream
// errors count only while the token is known to be expired, since the portal
// reports stale tokens through the envelope as well.
func IsAuthError(a Authenticator, err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrUnauthenticated) {
		return true
	}
	var ue *UpstreamError
	return errors.As(err, &ue) && a.IsTokenExpired()
}

// WithAutoAuth calls fn and, if it fails with an authentication error, logs
// in once and calls fn exactly once more. Any other error is returned as is.
func WithAutoAuth[T any](ctx context.Context, a Authenticator, fn func(context.Context) (T, error)) (T, error) {
	v, err := fn(ctx)
	if err == nil || !IsAuthError(a, err) {
		return v, err
	}

	log.Ctx(ctx).DebugContext(ctx, "esplus call unauthenticated, logging in again", slog.Any("error", err))
	if err := a.Authenticate(ctx); err != nil {
		var zero T
		return zero, err
	}
	return fn(ctx)
}
