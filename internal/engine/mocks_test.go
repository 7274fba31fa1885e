package engine

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/vadiminshakov/autotrade/internal/domain"
)

type mockMarket struct {
	mock.Mock
}

func (m *mockMarket) Notifications(ctx context.Context) (domain.NotificationSnapshot, error) {
	args := m.Called(ctx)
	return args.Get(0).(domain.NotificationSnapshot), args.Error(1)
}

func (m *mockMarket) ItemsToDeliver(ctx context.Context, game string) ([]domain.Item, error) {
	args := m.Called(ctx, game)
	items, _ := args.Get(0).([]domain.Item)
	return items, args.Error(1)
}

func (m *mockMarket) ItemsToSendOffer(ctx context.Context, game string, count int) ([]domain.Item, error) {
	args := m.Called(ctx, game, count)
	items, _ := args.Get(0).([]domain.Item)
	return items, args.Error(1)
}

func (m *mockMarket) TradesToAccept(ctx context.Context) ([]domain.TradeToAccept, error) {
	args := m.Called(ctx)
	trades, _ := args.Get(0).([]domain.TradeToAccept)
	return trades, args.Error(1)
}

func (m *mockMarket) SendTradeOffers(ctx context.Context, role domain.Role, ids []string) error {
	args := m.Called(ctx, role, ids)
	return args.Error(0)
}

func (m *mockMarket) Login(ctx context.Context, force bool) (bool, error) {
	args := m.Called(ctx, force)
	return args.Bool(0), args.Error(1)
}

type mockPlatform struct {
	mock.Mock
}

func (m *mockPlatform) AcceptTradeOffer(ctx context.Context, tradeOfferID string) error {
	args := m.Called(ctx, tradeOfferID)
	return args.Error(0)
}

func (m *mockPlatform) ConfirmTransaction(ctx context.Context, tradeOfferID string) error {
	args := m.Called(ctx, tradeOfferID)
	return args.Error(0)
}

func (m *mockPlatform) Login(ctx context.Context, force bool) (bool, error) {
	args := m.Called(ctx, force)
	return args.Bool(0), args.Error(1)
}

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) NotifyException(ctx context.Context, account string, err error) error {
	args := m.Called(ctx, account, err)
	return args.Error(0)
}

type memoryJournal struct {
	mu      sync.Mutex
	records []domain.ActionRecord
}

func (j *memoryJournal) Record(rec domain.ActionRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.records = append(j.records, rec)
	return nil
}

func (j *memoryJournal) kinds() []domain.ActionKind {
	j.mu.Lock()
	defer j.mu.Unlock()
	kinds := make([]domain.ActionKind, 0, len(j.records))
	for _, r := range j.records {
		kinds = append(kinds, r.Kind)
	}
	return kinds
}
