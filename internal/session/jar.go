// Package session holds per-account session state and the login policy shared
// by the marketplace and trading platform clients.
package session

import (
	"net"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	cookiejar "github.com/juju/persistent-cookiejar"
	"golang.org/x/net/publicsuffix"

	"github.com/vadiminshakov/autotrade/internal/domain"
)

// sessionCookieYear marks the expiry the jar gives to cookies without one.
const sessionCookieYear = 9999

// Jar is an http.CookieJar whose full content can be exported and restored.
// One Jar is owned per account; both capability clients of the account read
// and write it through its methods only.
//
// Exported domains carry a leading dot for cookies that are also sent to
// subdomains, host-only cookies are exported with the bare host.
type Jar struct {
	jar *cookiejar.Jar
}

// NewJar returns an empty jar. Persistence is handled by the cookie store,
// the jar never touches the file system.
func NewJar() *Jar {
	jar, err := cookiejar.New(&cookiejar.Options{
		PublicSuffixList: publicsuffix.List,
		NoPersist:        true,
	})
	if err != nil {
		// New fails only while reading a cookie file.
		panic(err)
	}
	return &Jar{jar: jar}
}

// SetCookies implements http.CookieJar.
func (j *Jar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	j.jar.SetCookies(u, cookies)
}

// Cookies implements http.CookieJar.
func (j *Jar) Cookies(u *url.URL) []*http.Cookie {
	return j.jar.Cookies(u)
}

// Get returns the value of the cookie stored for exactly this domain.
func (j *Jar) Get(name, cookieDomain string) (string, bool) {
	cookieDomain = normalizeDomain(cookieDomain)
	for _, c := range j.live() {
		if c.Name == name && c.Domain == cookieDomain {
			return c.Value, true
		}
	}
	return "", false
}

// Set stores a single cookie, replacing one with the same name, domain and
// path. A leading dot in the domain makes it a domain cookie.
func (j *Jar) Set(c domain.Cookie) {
	host := normalizeDomain(c.Domain)
	path := c.Path
	if path == "" {
		path = "/"
	}

	hc := &http.Cookie{Name: c.Name, Value: c.Value, Path: path}
	if strings.HasPrefix(strings.TrimSpace(c.Domain), ".") {
		hc.Domain = host
	}
	if c.Expires != nil {
		hc.Expires = time.Unix(*c.Expires, 0)
	}

	j.jar.SetCookies(&url.URL{Scheme: "https", Host: host, Path: path}, []*http.Cookie{hc})
}

// Delete removes every cookie with this name and domain.
func (j *Jar) Delete(name, cookieDomain string) {
	cookieDomain = normalizeDomain(cookieDomain)
	for _, c := range j.jar.AllCookies() {
		if c.Name == name && c.Domain == cookieDomain {
			j.jar.RemoveCookie(c)
		}
	}
}

// ClearDomain drops all cookies stored for the domain.
func (j *Jar) ClearDomain(cookieDomain string) {
	cookieDomain = normalizeDomain(cookieDomain)
	for _, c := range j.jar.AllCookies() {
		if c.Domain == cookieDomain {
			j.jar.RemoveCookie(c)
		}
	}
}

// Export returns a copy of all live cookies sorted by domain, path and name.
func (j *Jar) Export() []domain.Cookie {
	cookies := j.live()
	out := make([]domain.Cookie, 0, len(cookies))
	for _, c := range cookies {
		exported := domain.Cookie{Name: c.Name, Value: c.Value, Domain: c.Domain, Path: c.Path}
		if j.sentToSubdomains(c) {
			exported.Domain = "." + c.Domain
		}
		if !isSessionCookie(c) {
			ts := c.Expires.Unix()
			exported.Expires = &ts
		}
		out = append(out, exported)
	}

	sort.Slice(out, func(a, b int) bool {
		if out[a].Domain != out[b].Domain {
			return out[a].Domain < out[b].Domain
		}
		if out[a].Path != out[b].Path {
			return out[a].Path < out[b].Path
		}
		return out[a].Name < out[b].Name
	})
	return out
}

// Import merges persisted cookies into the jar. Expired ones are dropped.
func (j *Jar) Import(cookies []domain.Cookie) {
	for _, c := range cookies {
		j.Set(c)
	}
}

// Len returns the number of stored cookies.
func (j *Jar) Len() int {
	return len(j.live())
}

func (j *Jar) live() []*http.Cookie {
	now := time.Now()
	all := j.jar.AllCookies()
	out := all[:0]
	for _, c := range all {
		if isSessionCookie(c) || c.Expires.After(now) {
			out = append(out, c)
		}
	}
	return out
}

// sentToSubdomains reports whether c was stored as a domain cookie. The jar
// does not expose the flag, so a request to a subdomain is matched instead.
func (j *Jar) sentToSubdomains(c *http.Cookie) bool {
	if net.ParseIP(c.Domain) != nil {
		return false
	}
	u := &url.URL{Scheme: "https", Host: "www." + c.Domain, Path: c.Path}
	for _, sent := range j.jar.Cookies(u) {
		if sent.Name == c.Name && sent.Value == c.Value {
			return true
		}
	}
	return false
}

func isSessionCookie(c *http.Cookie) bool {
	return c.Expires.IsZero() || c.Expires.Year() >= sessionCookieYear
}

func normalizeDomain(d string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(d), "."))
}
