package setup

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vadiminshakov/autotrade/config"
)

func answers(username string) Answers {
	return Answers{
		Username:           username,
		Password:           "pw",
		SteamID:            "76561198000000001",
		SharedSecret:       "c2hhcmVk",
		IdentitySecret:     "aWRlbnRpdHk=",
		RefreshPeriod:      "30s",
		ProcessSellOffers:  true,
		ProcessBuyOffers:   false,
		TradeConfirmations: true,
	}
}

func TestSave_CreatesConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	require.NoError(t, Save(path, filepath.Join(dir, ".env"), answers("alice")))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	require.Len(t, cfg.Accounts, 1)
	assert.Equal(t, "alice", cfg.Accounts[0].Username)
	assert.Equal(t, "pw", cfg.Accounts[0].Password)
	assert.False(t, cfg.Accounts[0].ProcessBuyOffers)
	assert.True(t, cfg.Accounts[0].Enabled)
}

func TestSave_AppendsAndKeepsExistingKeys(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`# main config
refresh_period: 15s
accounts:
  - username: bob
    password: other
    trade_confirmations: false
    steamguard:
      shared_secret: eA==
`), 0o600))

	require.NoError(t, Save(path, filepath.Join(dir, ".env"), answers("alice")))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "# main config")

	cfg, err := config.Load(path)
	require.NoError(t, err)
	require.Len(t, cfg.Accounts, 2)
	assert.Equal(t, "bob", cfg.Accounts[0].Username)
	assert.Equal(t, "alice", cfg.Accounts[1].Username)
	assert.Equal(t, "15s", cfg.RefreshPeriod.String())
}

func TestSave_EmptyAccountsKey(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("accounts:\n"), 0o600))

	require.NoError(t, Save(path, filepath.Join(dir, ".env"), answers("alice")))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Len(t, cfg.Accounts, 1)
}

func TestSave_RejectsDuplicate(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	require.NoError(t, Save(path, filepath.Join(dir, ".env"), answers("alice")))
	err := Save(path, filepath.Join(dir, ".env"), answers("alice"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")
}

func TestSave_SecretsToEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	envPath := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envPath, []byte("UNRELATED=1\n"), 0o600))

	a := answers("alice.b")
	a.SecretsToEnv = true
	require.NoError(t, Save(path, envPath, a))

	env, err := godotenv.Read(envPath)
	require.NoError(t, err)
	assert.Equal(t, "1", env["UNRELATED"])
	assert.Equal(t, "pw", env["AUTOTRADE_ALICE_B_PASSWORD"])
	assert.Equal(t, "c2hhcmVk", env["AUTOTRADE_ALICE_B_SHARED_SECRET"])
	assert.NotContains(t, env, "AUTOTRADE_ALICE_B_API_KEY")

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "${AUTOTRADE_ALICE_B_PASSWORD}")
	assert.NotContains(t, string(raw), "c2hhcmVk")

	for k, v := range env {
		t.Setenv(k, v)
	}
	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "pw", cfg.Accounts[0].Password)
	assert.Equal(t, "aWRlbnRpdHk=", cfg.Accounts[0].SteamGuard.IdentitySecret)
}

func TestValidators(t *testing.T) {
	assert.NoError(t, validateSteamID(""))
	assert.Error(t, validateSteamID("7656x"))
	assert.NoError(t, validateSecret(false)(""))
	assert.Error(t, validateSecret(true)(""))
	assert.Error(t, validateSecret(true)("not base64!"))
	assert.Equal(t, "AUTOTRADE_BOB_1", envPrefix("bob-1"))
}
