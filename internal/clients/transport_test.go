package clients

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTransport_Proxy(t *testing.T) {
	tr, err := NewTransport("http://127.0.0.1:8080")
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodGet, "https://buff.163.com", nil)
	require.NoError(t, err)
	proxyURL, err := tr.Proxy(req)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:8080", proxyURL.Host)

	_, err = NewTransport("not a proxy")
	assert.Error(t, err)
}

func TestNewHTTPClient_RedirectsAndUserAgent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/from" {
			http.Redirect(w, r, "/to", http.StatusFound)
			return
		}
		_, _ = w.Write([]byte(r.Header.Get("User-Agent")))
	}))
	defer srv.Close()

	noFollow := NewHTTPClient(nil, nil, false)
	resp, err := noFollow.Get(srv.URL + "/from")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusFound, resp.StatusCode)

	follow := NewHTTPClient(nil, nil, true)
	resp, err = follow.Get(srv.URL + "/from")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
