package supervisor

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vadiminshakov/autotrade/internal/clients/buff"
	"github.com/vadiminshakov/autotrade/internal/clients/steam"
	"github.com/vadiminshakov/autotrade/internal/domain"
	"github.com/vadiminshakov/autotrade/internal/notifier"
	"github.com/vadiminshakov/autotrade/internal/storage/cookies"
)

// persisted cookies: alice has both sessions, bob has none.
const cookiesFile = `{
  "alice": [
    {"name": "steamLoginSecure", "value": "alice", "domain": "127.0.0.1", "path": "/", "expires": null},
    {"name": "session", "value": "buff-alice", "domain": "127.0.0.1", "path": "/", "expires": null}
  ]
}
`

func fakeRemotes(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/news/", func(w http.ResponseWriter, r *http.Request) {
		if _, err := r.Cookie("session"); err != nil {
			_, _ = io.WriteString(w, `<html>login</html>`)
			return
		}
		_, _ = io.WriteString(w, `<script>var data = {"user": {"nickname": "nick"}};</script>`)
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		c, err := r.Cookie("steamLoginSecure")
		if err != nil {
			_, _ = io.WriteString(w, `<html>sign in</html>`)
			return
		}
		_, _ = io.WriteString(w, `<span class="persona">`+c.Value+`</span>`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func accounts() []domain.Account {
	base := func(name string) domain.Account {
		return domain.Account{
			Username:      name,
			Password:      "pw",
			SteamGuard:    domain.SteamGuard{SharedSecret: "c2hhcmVk"},
			Enabled:       true,
			RefreshPeriod: time.Second,
		}
	}
	return []domain.Account{base("alice"), base("bob")}
}

func newTestSupervisor(t *testing.T, opts ...Option) (*Supervisor, string) {
	t.Helper()
	srv := fakeRemotes(t)

	path := filepath.Join(t.TempDir(), "cookies.json")
	require.NoError(t, os.WriteFile(path, []byte(cookiesFile), 0o600))

	opts = append(opts,
		WithBuffOptions(buff.WithBaseURL(srv.URL)),
		WithSteamOptions(
			steam.WithCommunityURL(srv.URL),
			steam.WithAPIURL(srv.URL),
			steam.WithLoginURL(srv.URL),
		),
	)
	s, err := New(accounts(), nil, cookies.NewStore(path, true), notifier.NewGroup(zap.NewNop()), zap.NewNop(), opts...)
	require.NoError(t, err)
	return s, path
}

func TestNew_RestoresCookies(t *testing.T) {
	s, _ := newTestSupervisor(t)

	workers := s.Workers()
	require.Len(t, workers, 2)
	assert.Equal(t, "alice", workers[0].Account.Username)

	v, ok := workers[0].Jar.Get("steamLoginSecure", "127.0.0.1")
	require.True(t, ok)
	assert.Equal(t, "alice", v)
	assert.Zero(t, workers[1].Jar.Len())

	statuses := s.Statuses()
	require.Len(t, statuses, 2)
	assert.Equal(t, "bob", statuses[1].Account)
}

func TestNew_InvalidProxy(t *testing.T) {
	accs := accounts()
	accs[1].Proxy = "not a proxy"

	_, err := New(accs, nil, cookies.NewStore(filepath.Join(t.TempDir(), "c.json"), false), nil, zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "account bob")
}

func TestNew_WithoutPublicKeyCannotSubmit(t *testing.T) {
	s, _ := newTestSupervisor(t)

	err := s.Workers()[0].Buff.SendTradeOffers(context.Background(), domain.RoleSeller, []string{"1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "public key")
}

func TestCheckSessions(t *testing.T) {
	s, _ := newTestSupervisor(t)

	got := s.CheckSessions(context.Background())
	require.Len(t, got, 4)

	want := []SessionStatus{
		{Account: "alice", Remote: RemoteSteam, Alive: true},
		{Account: "alice", Remote: RemoteBuff, Alive: true},
		{Account: "bob", Remote: RemoteSteam, Alive: false},
		{Account: "bob", Remote: RemoteBuff, Alive: false},
	}
	for i := range want {
		assert.NoError(t, got[i].Err)
		assert.Equal(t, want[i].Account, got[i].Account)
		assert.Equal(t, want[i].Remote, got[i].Remote)
		assert.Equal(t, want[i].Alive, got[i].Alive, "%s/%s", want[i].Account, want[i].Remote)
	}
}

func TestLoginAll_ReportsFailedAccounts(t *testing.T) {
	s, path := newTestSupervisor(t)

	err := s.LoginAll(context.Background(), false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "account bob")
	assert.NotContains(t, err.Error(), "account alice")

	// cookies are saved even when a login failed
	raw, readErr := os.ReadFile(path)
	require.NoError(t, readErr)
	assert.Contains(t, string(raw), `"bob"`)
}

func TestRun_StopsAndSavesCookies(t *testing.T) {
	var serviceCalls atomic.Int32
	s, path := newTestSupervisor(t, WithSaveInterval(time.Hour))
	s.AddService("status", func(ctx context.Context) error {
		serviceCalls.Add(1)
		<-ctx.Done()
		return errors.New("listener closed")
	})
	require.NoError(t, os.Remove(path))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, s.Run(ctx))

	assert.Equal(t, int32(1), serviceCalls.Load())
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"alice"`)
}
