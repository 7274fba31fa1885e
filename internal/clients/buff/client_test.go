package buff

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vadiminshakov/autotrade/internal/cookiecrypt"
	"github.com/vadiminshakov/autotrade/internal/domain"
	"github.com/vadiminshakov/autotrade/internal/session"
)

type stubEncryptor struct {
	payload string
	err     error
}

func (s *stubEncryptor) EncryptCookies(cookiecrypt.CookieSource) (string, error) {
	return s.payload, s.err
}

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *stubEncryptor) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	enc := &stubEncryptor{payload: "encrypted"}
	c := NewClient(session.NewJar(), nil, enc, zap.NewNop(), WithBaseURL(srv.URL))
	return c, enc
}

func TestNotifications(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/message/notification", r.URL.Path)
		_, _ = io.WriteString(w, `{"code":"OK","data":{
			"to_deliver_order":{"csgo":2,"dota2":"0"},
			"to_send_offer_order":{"csgo":"1"},
			"to_accept_offer_order":{},
			"updated_at":{"csgo":1700000000}}}`)
	})

	snapshot, err := c.Notifications(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"csgo": 2, "dota2": 0}, snapshot.ToDeliver)
	assert.Equal(t, map[string]int{"csgo": 1}, snapshot.ToSendOffer)
	assert.Empty(t, snapshot.ToAccept)
}

func TestNotifications_EmptyPayloadMeansLoggedOut(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"code":"OK","data":{
			"to_deliver_order":{"csgo":0},
			"to_send_offer_order":{},
			"to_accept_offer_order":{},
			"updated_at":{}}}`)
	})

	_, err := c.Notifications(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNotLoggedIn)
}

func TestNotifications_MalformedCounterIsAnError(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"code":"OK","data":{
			"to_deliver_order":{"csgo":"two"},
			"to_send_offer_order":{},
			"to_accept_offer_order":[],
			"updated_at":{}}}`)
	})

	_, err := c.Notifications(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrNotLoggedIn)
	assert.Contains(t, err.Error(), "to_deliver_order")
}

func TestEnvelopeErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		check  func(t *testing.T, err error)
	}{
		{
			name:   "redirect means not logged in",
			status: http.StatusFound,
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, domain.ErrNotLoggedIn)
			},
		},
		{
			name:   "server error is a transport fault",
			status: http.StatusBadGateway,
			check: func(t *testing.T, err error) {
				var statusErr *domain.HTTPStatusError
				require.True(t, errors.As(err, &statusErr))
				assert.Equal(t, http.StatusBadGateway, statusErr.Code)
			},
		},
		{
			name:   "non ok code carries remote message",
			status: http.StatusOK,
			body:   `{"code":"Action Forbidden","error":"too many requests","data":null}`,
			check: func(t *testing.T, err error) {
				var apiErr *domain.APIError
				require.True(t, errors.As(err, &apiErr))
				assert.Equal(t, "Action Forbidden", apiErr.Code)
				assert.Equal(t, "too many requests", apiErr.Message)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				if tt.status/100 == 3 {
					w.Header().Set("Location", "/account/login")
				}
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			})

			_, err := c.ItemsToDeliver(context.Background(), "csgo")
			require.Error(t, err)
			tt.check(t, err)
		})
	}
}

func TestItemsToDeliver(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/market/sell_order/to_deliver", r.URL.Path)
		assert.Equal(t, "csgo", r.URL.Query().Get("game"))
		_, _ = io.WriteString(w, `{"code":"OK","data":{"items":[
			{"id":"a1","state":"DELIVERING","is_seller_asked_to_send_offer":true,"has_sent_offer":true,"tradeofferid":6123456789,"price":"12.50"},
			{"id":"a2","state":"TO_DELIVER","is_seller_asked_to_send_offer":true,"has_sent_offer":false,"tradeofferid":null,"price":""}]}}`)
	})

	items, err := c.ItemsToDeliver(context.Background(), "csgo")
	require.NoError(t, err)
	require.Len(t, items, 2)

	assert.Equal(t, "a1", items[0].ID)
	assert.Equal(t, "csgo", items[0].Game)
	assert.Equal(t, "6123456789", items[0].TradeOfferID)
	assert.True(t, items[0].ActiveDelivery())
	assert.True(t, items[0].Price.Equal(decimal.RequireFromString("12.5")))

	assert.Empty(t, items[1].TradeOfferID)
	assert.True(t, items[1].AwaitingOffer())
	assert.True(t, items[1].Price.IsZero())
}

func TestItemsToSendOffer_PageSize(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/market/buy_order/history", r.URL.Path)
		assert.Equal(t, "8", r.URL.Query().Get("page_size"))
		assert.Equal(t, "1", r.URL.Query().Get("page_num"))
		_, _ = io.WriteString(w, `{"code":"OK","data":{"items":[]}}`)
	})

	items, err := c.ItemsToSendOffer(context.Background(), "csgo", 3)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestTradesToAccept(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"code":"OK","data":[{"tradeofferid":"1"},{"tradeofferid":null},{"tradeofferid":2}]}`)
	})

	trades, err := c.TradesToAccept(context.Background())
	require.NoError(t, err)
	require.Len(t, trades, 2)
	assert.Equal(t, "1", trades[0].TradeOfferID)
	assert.Equal(t, "2", trades[1].TradeOfferID)
}

func TestSendTradeOffers(t *testing.T) {
	var got map[string]any
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/market/manual_plus/seller_send_offer", r.URL.Path)
		assert.Equal(t, "Android", r.Header.Get("System-Type"))
		assert.Equal(t, "33", r.Header.Get("System-Version"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = io.WriteString(w, `{"code":"OK","data":{}}`)
	})

	err := c.SendTradeOffers(context.Background(), domain.RoleSeller, []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, []any{"a", "b"}, got["bill_orders"])
	assert.Equal(t, "encrypted", got["seller_info"])
}

func TestSendTradeOffers_MissingCookiesIsNotSent(t *testing.T) {
	calls := 0
	c, enc := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
	})
	enc.err = errors.WithStack(cookiecrypt.ErrMissingCookie)

	err := c.SendTradeOffers(context.Background(), domain.RoleBuyer, []string{"a"})
	require.Error(t, err)
	assert.ErrorIs(t, err, cookiecrypt.ErrMissingCookie)
	assert.Zero(t, calls)
}

func TestLogin_UsesOpenIDBridge(t *testing.T) {
	loggedIn := false
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if loggedIn {
			_, _ = io.WriteString(w, `var g = {"user": {"id": 1, "nickname": "bob"}}`)
			return
		}
		_, _ = io.WriteString(w, `<html>login</html>`)
	})

	var bridgedURL string
	c.SetOpenIDBridge(func(_ context.Context, loginURL string) error {
		bridgedURL = loginURL
		loggedIn = true
		return nil
	})

	performed, err := c.Login(context.Background(), false)
	require.NoError(t, err)
	assert.True(t, performed)
	assert.Equal(t, c.baseURL+OpenIDPath, bridgedURL)

	performed, err = c.Login(context.Background(), false)
	require.NoError(t, err)
	assert.False(t, performed)
}
