// Package buff is the buff163 marketplace client used by the reconciliation
// engine.
package buff

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/vadiminshakov/autotrade/internal/clients"
	"github.com/vadiminshakov/autotrade/internal/cookiecrypt"
	"github.com/vadiminshakov/autotrade/internal/domain"
	"github.com/vadiminshakov/autotrade/internal/session"
)

const (
	DefaultBaseURL = "https://buff.163.com"
	// OpenIDPath starts the Steam open-id login and redirects back to buff.
	OpenIDPath = "/account/login/steam?back_url=/"

	// extraSendOfferItems widens the buy history page beyond the counter so
	// that orders shifted by concurrent activity are still seen.
	extraSendOfferItems = 5
)

// OpenIDBridge completes an open-id login started at loginURL using the
// trading platform's session.
type OpenIDBridge func(ctx context.Context, loginURL string) error

type payloadEncryptor interface {
	EncryptCookies(src cookiecrypt.CookieSource) (string, error)
}

// Client talks to buff on behalf of one account.
type Client struct {
	baseURL   string
	api       *http.Client
	web       *http.Client
	jar       *session.Jar
	encryptor payloadEncryptor
	openID    OpenIDBridge
	l         *zap.Logger
}

// Option customises a Client.
type Option func(*Client)

// WithBaseURL points the client at another host, used by tests.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// NewClient creates a buff client sharing the account's cookie jar.
func NewClient(jar *session.Jar, transport http.RoundTripper, encryptor payloadEncryptor,
	l *zap.Logger, opts ...Option) *Client {
	c := &Client{
		baseURL:   DefaultBaseURL,
		api:       clients.NewHTTPClient(transport, jar, false),
		web:       clients.NewHTTPClient(transport, jar, true),
		jar:       jar,
		encryptor: encryptor,
		l:         l,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetOpenIDBridge installs the callback used by InteractiveLogin.
func (c *Client) SetOpenIDBridge(bridge OpenIDBridge) {
	c.openID = bridge
}

// IsSessionAlive loads a page that embeds the user profile only when logged in.
func (c *Client) IsSessionAlive(ctx context.Context) (bool, error) {
	body, status, err := c.do(ctx, c.web, http.MethodGet, "/news/", nil, nil)
	if err != nil {
		return false, errors.Wrap(err, "failed to check if session is alive")
	}
	if status/100 != 2 {
		return false, &domain.HTTPStatusError{Op: "buff session check", Code: status}
	}

	text := string(body)
	return strings.Contains(text, `"user": {"`) && strings.Contains(text, `"nickname": "`), nil
}

// InteractiveLogin logs in through the Steam open-id bridge.
func (c *Client) InteractiveLogin(ctx context.Context) error {
	if c.openID == nil {
		return errors.New("buff login requires an open-id bridge")
	}
	return c.openID(ctx, c.baseURL+OpenIDPath)
}

// Login applies the shared login policy.
func (c *Client) Login(ctx context.Context, force bool) (bool, error) {
	return session.Login(ctx, c, force, c.l.With(zap.String("remote", "buff")))
}

// Notifications returns the pending order counters.
func (c *Client) Notifications(ctx context.Context) (domain.NotificationSnapshot, error) {
	const op = "failed to get notifications"

	data, err := c.getJSON(ctx, "/api/message/notification", op)
	if err != nil {
		return domain.NotificationSnapshot{}, err
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return domain.NotificationSnapshot{}, errors.Wrap(err, op)
	}

	var snapshot domain.NotificationSnapshot
	for _, category := range []struct {
		field string
		dst   *map[string]int
	}{
		{field: "to_deliver_order", dst: &snapshot.ToDeliver},
		{field: "to_send_offer_order", dst: &snapshot.ToSendOffer},
		{field: "to_accept_offer_order", dst: &snapshot.ToAccept},
	} {
		counters, err := decodeCounters(raw[category.field], category.field)
		if err != nil {
			return domain.NotificationSnapshot{}, errors.Wrap(err, op)
		}
		*category.dst = counters
	}

	// a logged-out session gets an all-zero payload instead of a redirect.
	if isEmptyJSON(raw["updated_at"]) && snapshot.IsEmpty() {
		return domain.NotificationSnapshot{}, errors.Wrap(domain.ErrNotLoggedIn, op)
	}

	return snapshot, nil
}

// ItemsToDeliver returns sell orders waiting for delivery in game.
func (c *Client) ItemsToDeliver(ctx context.Context, game string) ([]domain.Item, error) {
	q := url.Values{"game": {game}}
	return c.getItems(ctx, "/api/market/sell_order/to_deliver?"+q.Encode(), game, "failed to get items to deliver")
}

// ItemsToSendOffer returns the latest buy orders of game. count is the
// notification counter; the page is slightly larger than that.
func (c *Client) ItemsToSendOffer(ctx context.Context, game string, count int) ([]domain.Item, error) {
	q := url.Values{
		"game":      {game},
		"page_num":  {"1"},
		"page_size": {strconv.Itoa(count + extraSendOfferItems)},
	}
	return c.getItems(ctx, "/api/market/buy_order/history?"+q.Encode(), game, "failed to get items to send offer")
}

// TradesToAccept returns trade offers the buyer side has to accept.
func (c *Client) TradesToAccept(ctx context.Context) ([]domain.TradeToAccept, error) {
	const op = "failed to get trades to accept"

	data, err := c.getJSON(ctx, "/api/market/steam_trade", op)
	if err != nil {
		return nil, err
	}

	var trades []tradeDTO
	if err := json.Unmarshal(data, &trades); err != nil {
		return nil, errors.Wrap(err, op)
	}

	out := make([]domain.TradeToAccept, 0, len(trades))
	for _, t := range trades {
		if t.TradeOfferID.String() == "" {
			continue
		}
		out = append(out, domain.TradeToAccept{
			TradeOfferID: t.TradeOfferID.String(),
			Game:         t.Game,
			Price:        t.Price.Decimal(),
		})
	}
	return out, nil
}

// SendTradeOffers asks buff to create trade offers for ids in one request.
func (c *Client) SendTradeOffers(ctx context.Context, role domain.Role, ids []string) error {
	const op = "failed to send trade"

	if role != domain.RoleBuyer && role != domain.RoleSeller {
		return errors.Errorf("unknown role %q", role)
	}

	payload, err := c.encryptor.EncryptCookies(c.jar)
	if err != nil {
		return errors.Wrap(err, "build encrypted steam credentials")
	}

	body, err := json.Marshal(map[string]any{
		"bill_orders":          ids,
		string(role) + "_info": payload,
	})
	if err != nil {
		return errors.Wrap(err, op)
	}

	headers := http.Header{}
	headers.Set("Content-Type", "application/json")
	// without these buff answers with a csrf error.
	headers.Set("System-Type", "Android")
	headers.Set("System-Version", "33")

	path := fmt.Sprintf("/api/market/manual_plus/%s_send_offer", role)
	respBody, status, err := c.do(ctx, c.api, http.MethodPost, path, bytes.NewReader(body), headers)
	if err != nil {
		return errors.Wrap(err, op)
	}
	_, err = parseEnvelope(respBody, status, op)
	return err
}

func (c *Client) getItems(ctx context.Context, path, game, op string) ([]domain.Item, error) {
	data, err := c.getJSON(ctx, path, op)
	if err != nil {
		return nil, err
	}

	var page itemsPageDTO
	if err := json.Unmarshal(data, &page); err != nil {
		return nil, errors.Wrap(err, op)
	}

	items := make([]domain.Item, 0, len(page.Items))
	for _, it := range page.Items {
		items = append(items, it.toDomain(game))
	}
	return items, nil
}

func (c *Client) getJSON(ctx context.Context, path, op string) (json.RawMessage, error) {
	body, status, err := c.do(ctx, c.api, http.MethodGet, path, nil, nil)
	if err != nil {
		return nil, errors.Wrap(err, op)
	}
	return parseEnvelope(body, status, op)
}

func (c *Client) do(ctx context.Context, hc *http.Client, method, path string, body io.Reader,
	headers http.Header) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, 0, errors.Wrap(err, "failed to create HTTP request")
	}
	for k, vs := range headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := hc.Do(req)
	if err != nil {
		return nil, 0, errors.Wrap(err, "HTTP request failed")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, errors.Wrap(err, "failed to read response body")
	}
	return respBody, resp.StatusCode, nil
}

// parseEnvelope classifies a buff API answer and returns its data payload.
func parseEnvelope(body []byte, status int, op string) (json.RawMessage, error) {
	if status/100 == 3 {
		return nil, errors.Wrap(domain.ErrNotLoggedIn, op)
	}
	if status/100 != 2 {
		return nil, errors.WithStack(&domain.HTTPStatusError{Op: op, Code: status})
	}

	var env envelopeDTO
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, errors.Wrap(err, op)
	}
	if !strings.EqualFold(env.Code, "ok") {
		return nil, errors.WithStack(&domain.APIError{Op: op, Code: env.Code, Message: env.message()})
	}
	return env.Data, nil
}
