// Package steam is the Steam trading platform client: session handling,
// the open-id bridge used by the marketplace, trade acceptance and mobile
// confirmations.
package steam

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/vadiminshakov/autotrade/internal/clients"
	"github.com/vadiminshakov/autotrade/internal/domain"
	"github.com/vadiminshakov/autotrade/internal/session"
)

const (
	DefaultCommunityURL = "https://steamcommunity.com"
	DefaultAPIURL       = "https://api.steampowered.com"
	DefaultLoginURL     = "https://login.steampowered.com"

	storeDomain = "store.steampowered.com"
)

// sessionDomains are wiped before an interactive login.
var sessionDomains = []string{
	"steamcommunity.com",
	"store.steampowered.com",
	"help.steampowered.com",
	"steam.tv",
	"checkout.steampowered.com",
	"login.steampowered.com",
}

// Client acts on the trading platform for one account.
type Client struct {
	account      domain.Account
	communityURL string
	apiURL       string
	loginURL     string
	http         *http.Client
	jar          *session.Jar
	now          func() time.Time
	l            *zap.Logger
}

// Option customises a Client.
type Option func(*Client)

// WithCommunityURL overrides the community host, used by tests.
func WithCommunityURL(u string) Option {
	return func(c *Client) { c.communityURL = strings.TrimRight(u, "/") }
}

// WithAPIURL overrides the web API host, used by tests.
func WithAPIURL(u string) Option {
	return func(c *Client) { c.apiURL = strings.TrimRight(u, "/") }
}

// WithLoginURL overrides the login host, used by tests.
func WithLoginURL(u string) Option {
	return func(c *Client) { c.loginURL = strings.TrimRight(u, "/") }
}

// WithClock replaces the clock used for steam guard codes.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// NewClient creates a client for account sharing the account's cookie jar.
func NewClient(account domain.Account, jar *session.Jar, transport http.RoundTripper,
	l *zap.Logger, opts ...Option) *Client {
	c := &Client{
		account:      account,
		communityURL: DefaultCommunityURL,
		apiURL:       DefaultAPIURL,
		loginURL:     DefaultLoginURL,
		http:         clients.NewHTTPClient(transport, jar, true),
		jar:          jar,
		now:          time.Now,
		l:            l.With(zap.String("remote", "steam")),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// IsSessionAlive reports whether the community front page is rendered for
// the account.
func (c *Client) IsSessionAlive(ctx context.Context) (bool, error) {
	body, resp, err := c.do(ctx, http.MethodGet, c.communityURL, nil, nil)
	if err != nil {
		return false, errors.Wrap(err, "failed to check if session is alive")
	}
	if resp.StatusCode/100 != 2 {
		return false, errors.WithStack(&domain.HTTPStatusError{Op: "steam session check", Code: resp.StatusCode})
	}
	return strings.Contains(strings.ToLower(string(body)), strings.ToLower(c.account.Username)), nil
}

// Login applies the shared login policy.
func (c *Client) Login(ctx context.Context, force bool) (bool, error) {
	return session.Login(ctx, c, force, c.l)
}

// LoginOpenID completes the open-id login started at loginURL by another
// site, authorising it with the current Steam session.
func (c *Client) LoginOpenID(ctx context.Context, loginURL string) error {
	body, resp, err := c.do(ctx, http.MethodGet, loginURL, nil, nil)
	if err != nil {
		return errors.Wrap(err, "failed to get openid params")
	}
	if resp.StatusCode/100 != 2 {
		return errors.WithStack(&domain.HTTPStatusError{Op: "failed to get openid params", Code: resp.StatusCode})
	}

	params, err := parseOpenIDParams(body)
	if err != nil {
		return err
	}

	headers := http.Header{}
	headers.Set("Content-Type", "application/x-www-form-urlencoded")
	headers.Set("Origin", DefaultCommunityURL)
	headers.Set("Referer", resp.Request.URL.String())
	headers.Set("sessionidSecureOpenIDNonce", params.Get("nonce"))

	_, resp, err = c.do(ctx, http.MethodPost, c.communityURL+"/openid/login",
		strings.NewReader(params.Encode()), headers)
	if err != nil {
		return errors.Wrap(err, "failed to login openid")
	}
	if resp.StatusCode/100 != 2 {
		return errors.WithStack(&domain.HTTPStatusError{Op: "failed to login openid", Code: resp.StatusCode})
	}

	c.l.Info("openid login completed", zap.String("site", resp.Request.URL.Host))
	return nil
}

func (c *Client) communityHost() string {
	u, err := url.Parse(c.communityURL)
	if err != nil {
		return "steamcommunity.com"
	}
	return u.Hostname()
}

func (c *Client) sessionID() (string, error) {
	id, ok := c.jar.Get("sessionid", c.communityHost())
	if !ok || id == "" {
		return "", errors.Wrap(domain.ErrNotLoggedIn, "no steam sessionid cookie")
	}
	return id, nil
}

func (c *Client) postForm(ctx context.Context, rawURL string, form url.Values,
	headers http.Header) ([]byte, *http.Response, error) {
	if headers == nil {
		headers = http.Header{}
	}
	headers.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(ctx, http.MethodPost, rawURL, strings.NewReader(form.Encode()), headers)
}

func (c *Client) do(ctx context.Context, method, rawURL string, body io.Reader,
	headers http.Header) ([]byte, *http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to create HTTP request")
	}
	for k, vs := range headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, nil, errors.Wrap(err, "HTTP request failed")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to read response body")
	}
	return respBody, resp, nil
}

// checkStatus maps auth rejections to domain.ErrNotLoggedIn.
func checkStatus(resp *http.Response, op string) error {
	switch {
	case resp.StatusCode/100 == 2:
		return nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return errors.Wrap(domain.ErrNotLoggedIn, op)
	default:
		return errors.WithStack(&domain.HTTPStatusError{Op: op, Code: resp.StatusCode})
	}
}
