// Package domain defines core data structures shared by the reconciliation service.
package domain

import "time"

// SteamGuard holds the mobile authenticator secrets of an account.
type SteamGuard struct {
	SteamID        string
	SharedSecret   string
	IdentitySecret string
}

// Account is one independently authenticated buff/Steam identity.
// It is built once from configuration and never mutated afterwards.
type Account struct {
	Username   string
	Password   string
	APIKey     string
	SteamGuard SteamGuard
	// Proxy overrides network egress for both capabilities, empty means direct.
	Proxy string

	Enabled            bool
	ProcessSellOffers  bool
	ProcessBuyOffers   bool
	TradeConfirmations bool

	// RefreshPeriod is the pause between poll cycles.
	RefreshPeriod time.Duration
}
