package setup

import (
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/vadiminshakov/autotrade/config"
)

// Answers are the values collected by the account wizard.
type Answers struct {
	Username       string
	Password       string
	APIKey         string
	SteamID        string
	SharedSecret   string
	IdentitySecret string
	Proxy          string
	RefreshPeriod  string

	ProcessSellOffers  bool
	ProcessBuyOffers   bool
	TradeConfirmations bool

	// SecretsToEnv moves secrets into the dotenv file and references them
	// from the config as ${VAR}.
	SecretsToEnv bool
}

// Save appends the account described by a to the YAML config at configPath,
// creating the file when missing. Comments and other keys are preserved.
func Save(configPath, envPath string, a Answers) error {
	account := config.AccountTmp{
		Username: a.Username,
		Password: a.Password,
		APIKey:   a.APIKey,
		SteamGuard: config.SteamGuardTmp{
			SteamID:        a.SteamID,
			SharedSecret:   a.SharedSecret,
			IdentitySecret: a.IdentitySecret,
		},
		Proxy:              a.Proxy,
		ProcessSellOffers:  &a.ProcessSellOffers,
		ProcessBuyOffers:   &a.ProcessBuyOffers,
		TradeConfirmations: &a.TradeConfirmations,
		RefreshPeriod:      a.RefreshPeriod,
	}

	if a.SecretsToEnv {
		refs, err := writeSecrets(envPath, a)
		if err != nil {
			return err
		}
		account.Password = refs["PASSWORD"]
		account.SteamGuard.SharedSecret = refs["SHARED_SECRET"]
		if a.IdentitySecret != "" {
			account.SteamGuard.IdentitySecret = refs["IDENTITY_SECRET"]
		}
		if a.APIKey != "" {
			account.APIKey = refs["API_KEY"]
		}
	}

	return appendAccount(configPath, account)
}

func appendAccount(path string, account config.AccountTmp) error {
	raw, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return errors.Wrap(err, "read config")
	}

	var doc yaml.Node
	if len(raw) > 0 {
		if err := yaml.Unmarshal(raw, &doc); err != nil {
			return errors.Wrap(err, "decode config")
		}
	}
	if doc.Kind == 0 {
		doc = yaml.Node{
			Kind:    yaml.DocumentNode,
			Content: []*yaml.Node{{Kind: yaml.MappingNode, Tag: "!!map"}},
		}
	}

	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return errors.Errorf("config %s is not a mapping", path)
	}

	accounts := lookup(root, "accounts")
	if accounts == nil {
		accounts = &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
		root.Content = append(root.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: "accounts"},
			accounts,
		)
	}
	switch {
	case accounts.Kind == yaml.ScalarNode && accounts.Tag == "!!null":
		accounts.Kind, accounts.Tag, accounts.Value = yaml.SequenceNode, "!!seq", ""
	case accounts.Kind != yaml.SequenceNode:
		return errors.New("'accounts' in config is not a list")
	}

	for _, item := range accounts.Content {
		var existing config.AccountTmp
		if err := item.Decode(&existing); err != nil {
			return errors.Wrap(err, "decode existing account")
		}
		if existing.Username == account.Username {
			return errors.Errorf("account %q already exists in %s", account.Username, path)
		}
	}

	var item yaml.Node
	if err := item.Encode(account); err != nil {
		return errors.Wrap(err, "encode account")
	}
	accounts.Content = append(accounts.Content, &item)

	out, err := yaml.Marshal(&doc)
	if err != nil {
		return errors.Wrap(err, "encode config")
	}
	return writeFile(path, out)
}

func lookup(mapping *yaml.Node, key string) *yaml.Node {
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		if mapping.Content[i].Value == key {
			return mapping.Content[i+1]
		}
	}
	return nil
}

// writeSecrets stores the account secrets in the dotenv file and returns the
// ${VAR} references keyed by secret name.
func writeSecrets(path string, a Answers) (map[string]string, error) {
	env := map[string]string{}
	if _, err := os.Stat(path); err == nil {
		existing, err := godotenv.Read(path)
		if err != nil {
			return nil, errors.Wrapf(err, "read env file %s", path)
		}
		env = existing
	}

	prefix := envPrefix(a.Username)
	secrets := map[string]string{
		"PASSWORD":        a.Password,
		"SHARED_SECRET":   a.SharedSecret,
		"IDENTITY_SECRET": a.IdentitySecret,
		"API_KEY":         a.APIKey,
	}
	refs := make(map[string]string, len(secrets))
	for name, value := range secrets {
		if value == "" {
			continue
		}
		key := prefix + "_" + name
		env[key] = value
		refs[name] = "${" + key + "}"
	}

	if err := godotenv.Write(env, path); err != nil {
		return nil, errors.Wrapf(err, "write env file %s", path)
	}
	if err := os.Chmod(path, 0o600); err != nil {
		return nil, errors.Wrap(err, "restrict env file permissions")
	}
	return refs, nil
}

func envPrefix(username string) string {
	var b strings.Builder
	b.WriteString("AUTOTRADE_")
	for _, r := range username {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(unicode.ToUpper(r))
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}

func writeFile(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrap(err, "create config dir")
		}
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return errors.Wrap(err, "write config temp file")
	}
	return errors.Wrap(os.Rename(tmp, path), "save config")
}
