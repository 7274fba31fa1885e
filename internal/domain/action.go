package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ActionKind names a remote action performed by a reconciliation engine.
type ActionKind string

const (
	ActionAccept    ActionKind = "accept"
	ActionConfirm   ActionKind = "confirm"
	ActionSendOffer ActionKind = "send_offer"
)

// ActionRecord is one journaled remote action.
type ActionRecord struct {
	ID           string          `json:"id"`
	Account      string          `json:"account"`
	Kind         ActionKind      `json:"kind"`
	TradeOfferID string          `json:"trade_offer_id,omitempty"`
	Role         Role            `json:"role,omitempty"`
	ItemIDs      []string        `json:"item_ids,omitempty"`
	Value        decimal.Decimal `json:"value"`
	Error        string          `json:"error,omitempty"`
	Time         time.Time       `json:"time"`
}

// ActionRecordEntry bundles a journaled action with its journal index.
type ActionRecordEntry struct {
	Index  uint64
	Record ActionRecord
}
