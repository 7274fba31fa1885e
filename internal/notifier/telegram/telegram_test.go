package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vadiminshakov/autotrade/pkg/retrier"
)

type sentMessage struct {
	ChatID int64  `json:"chat_id"`
	Text   string `json:"text"`
}

type fakeBot struct {
	mu       sync.Mutex
	sent     []sentMessage
	failures int
	status   int
	updates  func(call int) string
	polls    int
}

func (f *fakeBot) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()

		switch r.URL.Path {
		case "/bottoken/sendMessage":
			if f.failures > 0 {
				f.failures--
				w.WriteHeader(f.status)
				_, _ = io.WriteString(w, `{"ok":false,"description":"try later"}`)
				return
			}
			var m sentMessage
			require.NoError(t, json.NewDecoder(r.Body).Decode(&m))
			f.sent = append(f.sent, m)
			_, _ = io.WriteString(w, `{"ok":true,"result":{}}`)
		case "/bottoken/getUpdates":
			f.polls++
			_, _ = io.WriteString(w, f.updates(f.polls))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}
}

func (f *fakeBot) messages() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMessage(nil), f.sent...)
}

func newTestNotifier(t *testing.T, bot *fakeBot, whitelist ...int64) *Notifier {
	t.Helper()
	srv := httptest.NewServer(bot.handler(t))
	t.Cleanup(srv.Close)

	return New("token", whitelist, zap.NewNop(),
		WithBaseURL(srv.URL),
		WithPollTimeout(0),
		WithRetrier(retrier.New(
			retrier.WithMaxRetries(2),
			retrier.WithInitialInterval(time.Millisecond),
			retrier.WithRetryable(isRetryable),
		)),
	)
}

func TestNotifyException_MessagesEveryWhitelistedUser(t *testing.T) {
	bot := &fakeBot{}
	n := newTestNotifier(t, bot, 11, 22)

	err := n.NotifyException(context.Background(), "alice", errors.New("boom"))
	require.NoError(t, err)

	assert.Equal(t, []sentMessage{
		{ChatID: 11, Text: "An exception occurred with a user alice: boom"},
		{ChatID: 22, Text: "An exception occurred with a user alice: boom"},
	}, bot.messages())
}

func TestNotifyTest(t *testing.T) {
	bot := &fakeBot{}
	n := newTestNotifier(t, bot, 11)

	require.NoError(t, n.NotifyTest(context.Background()))
	assert.Equal(t, []sentMessage{{ChatID: 11, Text: "Test notification"}}, bot.messages())
}

func TestNotify_RetriesServerErrors(t *testing.T) {
	bot := &fakeBot{failures: 2, status: http.StatusBadGateway}
	n := newTestNotifier(t, bot, 11)

	require.NoError(t, n.NotifyTest(context.Background()))
	assert.Len(t, bot.messages(), 1)
}

func TestNotify_ClientErrorIsNotRetried(t *testing.T) {
	bot := &fakeBot{failures: 1, status: http.StatusBadRequest}
	n := newTestNotifier(t, bot, 11, 22)

	err := n.NotifyTest(context.Background())
	require.Error(t, err)

	var apiErr *apiError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	// the second user still gets the message.
	assert.Equal(t, []sentMessage{{ChatID: 22, Text: "Test notification"}}, bot.messages())
}

func TestStart_AnswersCommands(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bot := &fakeBot{}
	bot.updates = func(call int) string {
		if call > 1 {
			cancel()
			return `{"ok":true,"result":[]}`
		}
		return `{"ok":true,"result":[
			{"update_id":5,"message":{"text":"/start","from":{"id":11},"chat":{"id":11}}},
			{"update_id":6,"message":{"text":"/start","from":{"id":99},"chat":{"id":99}}},
			{"update_id":7,"message":{"text":"/getid@autotrade_bot","from":{"id":99},"chat":{"id":99}}},
			{"update_id":8,"message":{"text":"hello","from":{"id":11},"chat":{"id":11}}}]}`
	}
	n := newTestNotifier(t, bot, 11)

	require.NoError(t, n.Start(ctx))

	assert.Equal(t, []sentMessage{
		{ChatID: 11, Text: "Success"},
		{ChatID: 99, Text: "Your id: 99"},
	}, bot.messages())
	assert.Equal(t, int64(9), n.offset)
}

func TestCommand(t *testing.T) {
	assert.Equal(t, "/start", command("/start"))
	assert.Equal(t, "/getid", command("/getid@bot extra"))
	assert.Equal(t, "", command("hello /start"))
	assert.Equal(t, "", command(""))
}
