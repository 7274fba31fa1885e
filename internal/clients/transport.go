// Package clients holds the HTTP plumbing shared by the marketplace and
// trading platform clients.
package clients

import (
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/pkg/errors"
)

const (
	// UserAgent is sent by every client, both remotes reject bare Go clients.
	UserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0.0.0 Safari/537.36"

	// DefaultTimeout bounds a single remote call; a hung call stalls one account only.
	DefaultTimeout = 60 * time.Second
)

// NewTransport returns a transport that egresses through proxy when set.
func NewTransport(proxy string) (*http.Transport, error) {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   15 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          20,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,
	}

	if proxy != "" {
		u, err := url.Parse(proxy)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid proxy %q", proxy)
		}
		if u.Scheme == "" || u.Host == "" {
			return nil, errors.Errorf("invalid proxy %q: scheme and host are required", proxy)
		}
		transport.Proxy = http.ProxyURL(u)
	}

	return transport, nil
}

// userAgentTransport stamps the user agent on every outgoing request.
type userAgentTransport struct {
	next http.RoundTripper
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") == "" {
		req = req.Clone(req.Context())
		req.Header.Set("User-Agent", UserAgent)
	}
	return t.next.RoundTrip(req)
}

// NewHTTPClient builds a client over transport and jar. Without
// followRedirects a redirect is returned to the caller as is.
func NewHTTPClient(transport http.RoundTripper, jar http.CookieJar, followRedirects bool) *http.Client {
	if transport == nil {
		transport = http.DefaultTransport
	}
	c := &http.Client{
		Transport: &userAgentTransport{next: transport},
		Jar:       jar,
		Timeout:   DefaultTimeout,
	}
	if !followRedirects {
		c.CheckRedirect = func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}
	return c
}
