// Package telegram is a notifier that messages whitelisted Telegram users
// through the Bot API.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/vadiminshakov/autotrade/pkg/retrier"
)

const (
	DefaultBaseURL = "https://api.telegram.org"

	defaultPollTimeout = 30 * time.Second
	pollErrorBackoff   = 5 * time.Second
)

// Notifier sends notifications to every whitelisted user and answers the
// /start and /getid bot commands.
type Notifier struct {
	token       string
	whitelist   []int64
	baseURL     string
	client      *http.Client
	retrier     *retrier.Retrier
	pollTimeout time.Duration
	offset      int64
	l           *zap.Logger
}

// Option customises a Notifier.
type Option func(*Notifier)

// WithBaseURL points the notifier at another Bot API host, used by tests.
func WithBaseURL(u string) Option {
	return func(n *Notifier) { n.baseURL = strings.TrimRight(u, "/") }
}

// WithRetrier replaces the delivery retry policy.
func WithRetrier(r *retrier.Retrier) Option {
	return func(n *Notifier) { n.retrier = r }
}

// WithPollTimeout sets the long polling timeout of Start.
func WithPollTimeout(d time.Duration) Option {
	return func(n *Notifier) { n.pollTimeout = d }
}

// New creates a notifier. It does not contact Telegram.
func New(token string, whitelist []int64, l *zap.Logger, opts ...Option) *Notifier {
	n := &Notifier{
		token:       token,
		whitelist:   whitelist,
		baseURL:     DefaultBaseURL,
		pollTimeout: defaultPollTimeout,
		l:           l.With(zap.String("notifier", "telegram")),
	}
	n.retrier = retrier.New(
		retrier.WithMaxRetries(3),
		retrier.WithInitialInterval(time.Second),
		retrier.WithRetryable(isRetryable),
	)
	for _, opt := range opts {
		opt(n)
	}
	n.client = &http.Client{Timeout: n.pollTimeout + 10*time.Second}
	return n
}

// NotifyException reports an account failure.
func (n *Notifier) NotifyException(ctx context.Context, account string, err error) error {
	return n.notify(ctx, fmt.Sprintf("An exception occurred with a user %s: %v", account, err))
}

// NotifyTest sends a test message.
func (n *Notifier) NotifyTest(ctx context.Context) error {
	return n.notify(ctx, "Test notification")
}

func (n *Notifier) notify(ctx context.Context, text string) error {
	var errs error
	for _, user := range n.whitelist {
		err := n.retrier.Do(ctx, func(ctx context.Context) error {
			return n.sendMessage(ctx, user, text)
		})
		if err != nil {
			n.l.Warn("failed to send notification", zap.Int64("user", user), zap.Error(err))
			errs = multierr.Append(errs, errors.Wrapf(err, "notify user %d", user))
		}
	}
	return errs
}

// Start polls bot updates until ctx is done.
func (n *Notifier) Start(ctx context.Context) error {
	n.l.Info("start telegram bot polling")
	for {
		updates, err := n.getUpdates(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			n.l.Warn("failed to get updates", zap.Error(err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(pollErrorBackoff):
			}
			continue
		}

		for _, u := range updates {
			if u.UpdateID >= n.offset {
				n.offset = u.UpdateID + 1
			}
			if u.Message != nil {
				n.handleMessage(ctx, u.Message)
			}
		}
	}
}

func (n *Notifier) handleMessage(ctx context.Context, m *message) {
	if m.From == nil {
		return
	}

	var reply string
	switch command(m.Text) {
	case "/start":
		if !slices.Contains(n.whitelist, m.From.ID) {
			return
		}
		reply = "Success"
	case "/getid":
		reply = fmt.Sprintf("Your id: %d", m.From.ID)
	default:
		return
	}

	if err := n.sendMessage(ctx, m.Chat.ID, reply); err != nil {
		n.l.Warn("failed to answer command", zap.Int64("chat", m.Chat.ID), zap.Error(err))
	}
}

// command returns the bot command of text without a bot name suffix.
func command(text string) string {
	fields := strings.Fields(text)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return ""
	}
	cmd, _, _ := strings.Cut(fields[0], "@")
	return cmd
}

func (n *Notifier) sendMessage(ctx context.Context, chatID int64, text string) error {
	raw, err := json.Marshal(map[string]any{
		"chat_id": chatID,
		"text":    text,
	})
	if err != nil {
		return errors.Wrap(err, "marshal message")
	}
	_, err = n.call(ctx, http.MethodPost, "sendMessage", nil, bytes.NewReader(raw))
	return err
}

func (n *Notifier) getUpdates(ctx context.Context) ([]update, error) {
	q := url.Values{
		"offset":  {strconv.FormatInt(n.offset, 10)},
		"timeout": {strconv.Itoa(int(n.pollTimeout / time.Second))},
	}
	result, err := n.call(ctx, http.MethodGet, "getUpdates", q, nil)
	if err != nil {
		return nil, err
	}

	var updates []update
	if err := json.Unmarshal(result, &updates); err != nil {
		return nil, errors.Wrap(err, "decode updates")
	}
	return updates, nil
}

func (n *Notifier) call(ctx context.Context, httpMethod, method string, q url.Values,
	body io.Reader) (json.RawMessage, error) {
	u := fmt.Sprintf("%s/bot%s/%s", n.baseURL, n.token, method)
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, httpMethod, u, body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create HTTP request")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := n.client.Do(req)
	if err != nil {
		// the token is part of the url, keep it out of logs.
		return nil, errors.Errorf("telegram %s request failed", method)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, errors.Wrapf(err, "decode telegram %s response", method)
	}
	if !env.OK || resp.StatusCode/100 != 2 {
		return nil, errors.WithStack(&apiError{Method: method, Status: resp.StatusCode, Description: env.Description})
	}
	return env.Result, nil
}

type envelope struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	Description string          `json:"description"`
}

type update struct {
	UpdateID int64    `json:"update_id"`
	Message  *message `json:"message"`
}

type message struct {
	Text string `json:"text"`
	From *user  `json:"from"`
	Chat chat   `json:"chat"`
}

type user struct {
	ID int64 `json:"id"`
}

type chat struct {
	ID int64 `json:"id"`
}

type apiError struct {
	Method      string
	Status      int
	Description string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("telegram %s: status %d: %s", e.Method, e.Status, e.Description)
}

// isRetryable retries transport failures, rate limits and server errors.
func isRetryable(err error) bool {
	var apiErr *apiError
	if !errors.As(err, &apiErr) {
		return true
	}
	return apiErr.Status == http.StatusTooManyRequests || apiErr.Status >= 500
}
