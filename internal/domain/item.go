package domain

import "github.com/shopspring/decimal"

// ItemState is the lifecycle state reported by the marketplace for an order.
type ItemState string

const (
	// ItemStateToDeliver means the seller still has to hand the item over.
	ItemStateToDeliver ItemState = "TO_DELIVER"
	// ItemStateDelivering means a trade offer exists and is in flight.
	ItemStateDelivering ItemState = "DELIVERING"
)

// Role is the side on whose behalf trade offers are submitted.
type Role string

const (
	RoleSeller Role = "seller"
	RoleBuyer  Role = "buyer"
)

// Item is a marketplace order as seen by one account.
type Item struct {
	ID                       string
	Game                     string
	State                    ItemState
	IsSellerAskedToSendOffer bool
	HasSentOffer             bool
	// TradeOfferID is empty until the platform side created an offer.
	TradeOfferID string
	Price        decimal.Decimal
}

// ActiveDelivery reports whether the seller's offer exists and waits for a
// mobile confirmation.
func (i Item) ActiveDelivery() bool {
	return i.IsSellerAskedToSendOffer && i.State == ItemStateDelivering && i.TradeOfferID != ""
}

// AwaitingOffer reports whether the seller must still send the offer.
func (i Item) AwaitingOffer() bool {
	return i.IsSellerAskedToSendOffer && !i.HasSentOffer
}

// RequiresAcceptance reports whether the buyer already sent an offer that the
// seller has to accept.
func (i Item) RequiresAcceptance() bool {
	return !i.IsSellerAskedToSendOffer && i.TradeOfferID != ""
}

// TradeToAccept is an incoming trade offer the buyer side has to accept.
type TradeToAccept struct {
	TradeOfferID string
	Game         string
	Price        decimal.Decimal
}
