package config

import (
	"time"

	"github.com/pkg/errors"
)

// Flags are command line overrides applied on top of the YAML config.
type Flags struct {
	ConfigPath    string
	CookiesFile   string
	NoCookies     bool
	NoLoginCheck  bool
	ForceLogin    bool
	RefreshPeriod time.Duration
	Debug         bool
}

// Validate rejects contradictory flag combinations.
func (f Flags) Validate() error {
	if f.RefreshPeriod < 0 {
		return errors.Errorf("invalid --refresh-period provided: %s", f.RefreshPeriod)
	}
	if f.ForceLogin && f.NoLoginCheck {
		return errors.New("--force-login and --no-login-check are mutually exclusive")
	}
	return nil
}

// Apply overrides cfg with the flags that were set.
func (f Flags) Apply(cfg *Config) {
	if f.CookiesFile != "" {
		cfg.CookiesFile = f.CookiesFile
	}
	if f.RefreshPeriod > 0 {
		cfg.RefreshPeriod = f.RefreshPeriod
	}
}
