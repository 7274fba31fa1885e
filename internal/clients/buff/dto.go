package buff

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/vadiminshakov/autotrade/internal/domain"
)

type envelopeDTO struct {
	Code  string          `json:"code"`
	Data  json.RawMessage `json:"data"`
	Error *string         `json:"error"`
	Msg   json.RawMessage `json:"msg"`
}

func (e envelopeDTO) message() string {
	if e.Error != nil && *e.Error != "" {
		return *e.Error
	}
	if len(e.Msg) > 0 && !isEmptyJSON(e.Msg) {
		var s string
		if err := json.Unmarshal(e.Msg, &s); err == nil {
			return s
		}
		return string(e.Msg)
	}
	return ""
}

type itemsPageDTO struct {
	Items []itemDTO `json:"items"`
}

type itemDTO struct {
	ID                       flexString `json:"id"`
	Game                     string     `json:"game"`
	State                    string     `json:"state"`
	IsSellerAskedToSendOffer bool       `json:"is_seller_asked_to_send_offer"`
	HasSentOffer             bool       `json:"has_sent_offer"`
	TradeOfferID             flexString `json:"tradeofferid"`
	Price                    flexString `json:"price"`
}

func (d itemDTO) toDomain(game string) domain.Item {
	if d.Game != "" {
		game = d.Game
	}
	return domain.Item{
		ID:                       d.ID.String(),
		Game:                     game,
		State:                    domain.ItemState(strings.ToUpper(d.State)),
		IsSellerAskedToSendOffer: d.IsSellerAskedToSendOffer,
		HasSentOffer:             d.HasSentOffer,
		TradeOfferID:             d.TradeOfferID.String(),
		Price:                    d.Price.Decimal(),
	}
}

type tradeDTO struct {
	TradeOfferID flexString `json:"tradeofferid"`
	Game         string     `json:"game"`
	Price        flexString `json:"price"`
}

// flexString accepts a JSON string, number or null.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*f = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

func (f flexString) String() string {
	return string(f)
}

// Decimal parses the value as a price; unparsable values are zero.
func (f flexString) Decimal() decimal.Decimal {
	d, err := decimal.NewFromString(string(f))
	if err != nil {
		return decimal.Zero
	}
	return d
}

// flexInt accepts a JSON number or a numeric string.
type flexInt int

func (f *flexInt) UnmarshalJSON(b []byte) error {
	var s flexString
	if err := s.UnmarshalJSON(b); err != nil {
		return err
	}
	if s == "" {
		*f = 0
		return nil
	}
	n, err := strconv.Atoi(string(s))
	if err != nil {
		return err
	}
	*f = flexInt(n)
	return nil
}

// decodeCounters reads a game->count object. An absent or empty value means
// no counters.
func decodeCounters(raw json.RawMessage, field string) (map[string]int, error) {
	out := make(map[string]int)
	if isEmptyJSON(raw) {
		return out, nil
	}
	var counters map[string]flexInt
	if err := json.Unmarshal(raw, &counters); err != nil {
		return nil, errors.Wrapf(err, "decode %s", field)
	}
	for game, count := range counters {
		out[game] = int(count)
	}
	return out, nil
}

func isEmptyJSON(raw json.RawMessage) bool {
	switch strings.TrimSpace(string(raw)) {
	case "", "null", "{}", "[]", `""`, "0":
		return true
	}
	return false
}
