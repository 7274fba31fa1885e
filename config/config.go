package config

import (
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/vadiminshakov/autotrade/internal/domain"
)

const (
	DefaultRefreshPeriod = 30 * time.Second
	DefaultCookiesFile   = "cookies.json"
	DefaultPubKeyFile    = "buff_pubkey.pem"
	DefaultJournalDir    = "./wal/actions"

	NotifierTelegram = "telegram"
)

// Config is the validated process configuration.
type Config struct {
	// RefreshPeriod applies to accounts without their own refresh period.
	RefreshPeriod time.Duration
	CookiesFile   string
	PubKeyFile    string
	JournalDir    string
	Status        StatusConfig
	Notifiers     []NotifierConfig
	Accounts      []domain.Account
}

// StatusConfig configures the status HTTP server; an empty Addr disables it.
type StatusConfig struct {
	Addr string
	// Domain enables automatic TLS certificates for this host.
	Domain   string
	CacheDir string
}

// NotifierConfig selects and configures one notifier.
type NotifierConfig struct {
	Type      string
	Token     string
	Whitelist []int64
}

// ConfigTmp is the raw YAML document.
type ConfigTmp struct {
	RefreshPeriod string        `yaml:"refresh_period,omitempty"`
	CookiesFile   string        `yaml:"cookies_file,omitempty"`
	PubKeyFile    string        `yaml:"pubkey_file,omitempty"`
	JournalDir    string        `yaml:"journal_dir,omitempty"`
	Status        StatusTmp     `yaml:"status,omitempty"`
	Notifiers     []NotifierTmp `yaml:"notifiers,omitempty"`
	Accounts      []AccountTmp  `yaml:"accounts"`
}

type StatusTmp struct {
	Addr     string `yaml:"addr,omitempty"`
	Domain   string `yaml:"domain,omitempty"`
	CacheDir string `yaml:"cache_dir,omitempty"`
}

type NotifierTmp struct {
	Type      string  `yaml:"type"`
	Token     string  `yaml:"token"`
	Whitelist []int64 `yaml:"whitelist"`
}

type AccountTmp struct {
	Username           string        `yaml:"username"`
	Password           string        `yaml:"password"`
	APIKey             string        `yaml:"api_key,omitempty"`
	SteamGuard         SteamGuardTmp `yaml:"steamguard"`
	Proxy              string        `yaml:"proxy,omitempty"`
	Enabled            *bool         `yaml:"enabled,omitempty"`
	ProcessSellOffers  *bool         `yaml:"process_sell_offers,omitempty"`
	ProcessBuyOffers   *bool         `yaml:"process_buy_offers,omitempty"`
	TradeConfirmations *bool         `yaml:"trade_confirmations,omitempty"`
	RefreshPeriod      string        `yaml:"refresh_period,omitempty"`
}

type SteamGuardTmp struct {
	SteamID        string `yaml:"steamid"`
	SharedSecret   string `yaml:"shared_secret"`
	IdentitySecret string `yaml:"identity_secret"`
}

var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// LoadEnv loads variables from dotenv files that exist. Variables already in
// the environment win.
func LoadEnv(files ...string) error {
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return errors.Wrapf(err, "load env file %s", f)
		}
	}
	return nil
}

// Load reads and validates the YAML config at path. ${VAR} references are
// replaced with environment values before parsing.
func Load(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrap(err, "read config")
	}
	return Parse(raw)
}

// Parse validates a YAML config document. A ${VAR} reference to a variable
// that is not set is an error.
func Parse(raw []byte) (Config, error) {
	var missing []string
	expanded := envRef.ReplaceAllStringFunc(string(raw), func(ref string) string {
		name := envRef.FindStringSubmatch(ref)[1]
		value, ok := os.LookupEnv(name)
		if !ok {
			missing = append(missing, name)
		}
		return value
	})
	if len(missing) > 0 {
		return Config{}, errors.Errorf("config references unset environment variables: %s", strings.Join(missing, ", "))
	}

	var tmp ConfigTmp
	if err := yaml.Unmarshal([]byte(expanded), &tmp); err != nil {
		return Config{}, errors.Wrap(err, "decode yaml config")
	}
	return tmp.toConfig()
}

func (c ConfigTmp) toConfig() (Config, error) {
	cfg := Config{
		RefreshPeriod: DefaultRefreshPeriod,
		CookiesFile:   orDefault(c.CookiesFile, DefaultCookiesFile),
		PubKeyFile:    orDefault(c.PubKeyFile, DefaultPubKeyFile),
		JournalDir:    orDefault(c.JournalDir, DefaultJournalDir),
		Status: StatusConfig{
			Addr:     c.Status.Addr,
			Domain:   c.Status.Domain,
			CacheDir: orDefault(c.Status.CacheDir, "./certs"),
		},
	}

	if c.RefreshPeriod != "" {
		d, err := ParsePeriod(c.RefreshPeriod)
		if err != nil {
			return Config{}, errors.Wrapf(err, "incorrect 'refresh_period' param in yaml config: %s", c.RefreshPeriod)
		}
		cfg.RefreshPeriod = d
	}

	for i, n := range c.Notifiers {
		if n.Type != NotifierTelegram {
			return Config{}, errors.Errorf("notifier %d: unsupported type %q", i, n.Type)
		}
		if n.Token == "" {
			return Config{}, errors.Errorf("notifier %d: token is required", i)
		}
		cfg.Notifiers = append(cfg.Notifiers, NotifierConfig{Type: n.Type, Token: n.Token, Whitelist: n.Whitelist})
	}

	if len(c.Accounts) == 0 {
		return Config{}, errors.New("config has no accounts")
	}
	seen := make(map[string]struct{}, len(c.Accounts))
	for _, a := range c.Accounts {
		account, err := a.toAccount()
		if err != nil {
			return Config{}, err
		}
		if _, dup := seen[account.Username]; dup {
			return Config{}, errors.Errorf("duplicate account %q", account.Username)
		}
		seen[account.Username] = struct{}{}
		cfg.Accounts = append(cfg.Accounts, account)
	}

	return cfg, nil
}

func (a AccountTmp) toAccount() (domain.Account, error) {
	if a.Username == "" {
		return domain.Account{}, errors.New("account username is required")
	}
	fail := func(msg string) (domain.Account, error) {
		return domain.Account{}, errors.Errorf("account %q: %s", a.Username, msg)
	}
	if a.Password == "" {
		return fail("password is required")
	}
	if a.SteamGuard.SharedSecret == "" {
		return fail("steamguard.shared_secret is required")
	}

	account := domain.Account{
		Username: a.Username,
		Password: a.Password,
		APIKey:   a.APIKey,
		SteamGuard: domain.SteamGuard{
			SteamID:        a.SteamGuard.SteamID,
			SharedSecret:   a.SteamGuard.SharedSecret,
			IdentitySecret: a.SteamGuard.IdentitySecret,
		},
		Proxy:              a.Proxy,
		Enabled:            boolOr(a.Enabled, true),
		ProcessSellOffers:  boolOr(a.ProcessSellOffers, true),
		ProcessBuyOffers:   boolOr(a.ProcessBuyOffers, true),
		TradeConfirmations: boolOr(a.TradeConfirmations, true),
	}

	if account.TradeConfirmations {
		if account.SteamGuard.IdentitySecret == "" {
			return fail("steamguard.identity_secret is required for trade confirmations")
		}
		if account.SteamGuard.SteamID == "" {
			return fail("steamguard.steamid is required for trade confirmations")
		}
	}

	if a.RefreshPeriod != "" {
		d, err := ParsePeriod(a.RefreshPeriod)
		if err != nil {
			return domain.Account{}, errors.Wrapf(err, "account %q: incorrect 'refresh_period'", a.Username)
		}
		account.RefreshPeriod = d
	}

	return account, nil
}

// EnabledAccounts returns the accounts to run with their refresh period
// resolved against the global one.
func (c Config) EnabledAccounts() []domain.Account {
	out := make([]domain.Account, 0, len(c.Accounts))
	for _, a := range c.Accounts {
		if !a.Enabled {
			continue
		}
		if a.RefreshPeriod <= 0 {
			a.RefreshPeriod = c.RefreshPeriod
		}
		out = append(out, a)
	}
	return out
}

// ParsePeriod accepts a Go duration or a plain number of seconds.
func ParsePeriod(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if secs, err := strconv.Atoi(s); err == nil {
		if secs <= 0 {
			return 0, errors.New("must be positive")
		}
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, errors.New("must be positive")
	}
	return d, nil
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
