package engine

import (
	"context"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vadiminshakov/autotrade/internal/domain"
)

// batch collects the item ids of one role submitted together at the end of
// a cycle stage.
type batch struct {
	role  domain.Role
	ids   []string
	seen  map[string]struct{}
	value decimal.Decimal
}

func newBatch(role domain.Role) *batch {
	return &batch{role: role, seen: make(map[string]struct{})}
}

func (b *batch) add(item domain.Item) {
	if _, ok := b.seen[item.ID]; ok {
		return
	}
	b.seen[item.ID] = struct{}{}
	b.ids = append(b.ids, item.ID)
	b.value = b.value.Add(item.Price)
}

func (b *batch) has(id string) bool {
	_, ok := b.seen[id]
	return ok
}

// RunCycle performs one poll, classify and act pass. Any remote failure
// aborts the pass and is returned as is.
func (e *Engine) RunCycle(ctx context.Context) error {
	snapshot, err := e.market.Notifications(ctx)
	if err != nil {
		return err
	}

	if e.account.ProcessSellOffers {
		if err := e.checkToDeliver(ctx, snapshot); err != nil {
			return err
		}
	}

	if e.account.ProcessBuyOffers {
		if err := e.checkToSendOffer(ctx, snapshot); err != nil {
			return err
		}
		if err := e.checkToAccept(ctx, snapshot); err != nil {
			return err
		}
	}

	e.updateStatus(func(s *Status) {
		s.Cycles++
		s.LastCycle = e.now()
	})
	return nil
}

// checkToDeliver handles the seller side: confirms outgoing offers, accepts
// offers sent by buyers and asks the marketplace to send the remaining ones.
func (e *Engine) checkToDeliver(ctx context.Context, snapshot domain.NotificationSnapshot) error {
	pending := newBatch(domain.RoleSeller)

	for _, game := range domain.PendingGames(snapshot.ToDeliver) {
		items, err := e.market.ItemsToDeliver(ctx, game)
		if err != nil {
			return err
		}

		for _, item := range items {
			if item.ActiveDelivery() {
				if err := e.confirmTrade(ctx, item.TradeOfferID); err != nil {
					return err
				}
			}

			if e.isKnown(item.ID) || pending.has(item.ID) {
				continue
			}

			// Items without an applicable action stay unknown, a buyer offer
			// may appear on them later.
			switch {
			case item.AwaitingOffer():
				pending.add(item)
			case item.RequiresAcceptance():
				if err := e.acceptTrade(ctx, item.TradeOfferID, item.Price); err != nil {
					return err
				}
				e.markKnown(item.ID)
			}
		}
	}

	return e.flush(ctx, pending)
}

// checkToSendOffer handles the buyer side of offers the buyer has to send.
func (e *Engine) checkToSendOffer(ctx context.Context, snapshot domain.NotificationSnapshot) error {
	pending := newBatch(domain.RoleBuyer)

	for _, game := range domain.PendingGames(snapshot.ToSendOffer) {
		items, err := e.market.ItemsToSendOffer(ctx, game, snapshot.ToSendOffer[game])
		if err != nil {
			return err
		}

		for _, item := range items {
			if e.isKnown(item.ID) || pending.has(item.ID) {
				continue
			}
			if !item.IsSellerAskedToSendOffer && !item.HasSentOffer {
				pending.add(item)
			}
		}
	}

	return e.flush(ctx, pending)
}

func (e *Engine) checkToAccept(ctx context.Context, snapshot domain.NotificationSnapshot) error {
	if snapshot.TotalToAccept() <= 0 {
		return nil
	}

	trades, err := e.market.TradesToAccept(ctx)
	if err != nil {
		return err
	}
	for _, trade := range trades {
		if err := e.acceptTrade(ctx, trade.TradeOfferID, trade.Price); err != nil {
			return err
		}
	}
	return nil
}

// flush submits the batch in one request. Its ids are known afterwards
// whatever the outcome, so a failed submission is not repeated.
func (e *Engine) flush(ctx context.Context, b *batch) error {
	if len(b.ids) == 0 {
		return nil
	}

	l := e.l.With(zap.String("role", string(b.role)), zap.Strings("ids", b.ids))
	l.Info("sending trade offers")

	err := e.market.SendTradeOffers(ctx, b.role, b.ids)
	for _, id := range b.ids {
		e.markKnown(id)
	}
	e.record(domain.ActionSendOffer, "", b.role, b.ids, b.value, err)
	if err != nil {
		return errors.Wrapf(err, "send %s trade offers", b.role)
	}

	l.Info("trade offers sent")
	return nil
}

// acceptTrade accepts an offer once per process lifetime.
func (e *Engine) acceptTrade(ctx context.Context, tradeOfferID string, value decimal.Decimal) error {
	if _, ok := e.acceptedTrades[tradeOfferID]; ok {
		return nil
	}

	l := e.l.With(zap.String("trade_offer_id", tradeOfferID))
	l.Info("accepting trade offer")

	err := e.platform.AcceptTradeOffer(ctx, tradeOfferID)
	e.record(domain.ActionAccept, tradeOfferID, "", nil, value, err)
	if err != nil {
		return errors.Wrapf(err, "accept trade offer %s", tradeOfferID)
	}

	e.acceptedTrades[tradeOfferID] = struct{}{}
	l.Info("trade offer accepted")
	return nil
}

// confirmTrade confirms an offer once per process lifetime. Nothing happens
// for accounts with trade confirmations turned off.
func (e *Engine) confirmTrade(ctx context.Context, tradeOfferID string) error {
	if !e.account.TradeConfirmations {
		return nil
	}
	if _, ok := e.confirmedTrades[tradeOfferID]; ok {
		return nil
	}

	err := e.platform.ConfirmTransaction(ctx, tradeOfferID)
	e.record(domain.ActionConfirm, tradeOfferID, "", nil, decimal.Zero, err)
	if err != nil {
		return errors.Wrapf(err, "confirm trade offer %s", tradeOfferID)
	}

	e.confirmedTrades[tradeOfferID] = struct{}{}
	e.l.Info("trade offer confirmed", zap.String("trade_offer_id", tradeOfferID))
	return nil
}

func (e *Engine) isKnown(id string) bool {
	_, ok := e.knownIDs[id]
	return ok
}

func (e *Engine) markKnown(id string) {
	e.knownIDs[id] = struct{}{}
}
