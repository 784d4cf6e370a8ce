package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"lendledger/native/lending/fixedpoint"
)

func writeFile(t *testing.T, dir, name, contents string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.RPCAddress)

	reloaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg.DataDir, reloaded.DataDir)
	require.Equal(t, cfg.Lending, reloaded.Lending)
}

func TestLoadParsesSections(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "assets.yaml", `assets:
  - asset: usdt
    exchange_rate: "1"
    collateral_eligible: false
`)
	path := writeFile(t, dir, "config.toml", `DataDir = "./data"
RPCAddress = "127.0.0.1:9000"
AssetsFile = "assets.yaml"

[lending]
LiquidationThreshold = "1.05"
SmallAccountUSD = "250"
PausedActions = ["borrow"]

[[assets]]
Asset = "DOT"
ExchangeRate = "6.5"
SafeFactor = "0.5"

[auth]
HMACSecret = "s3cret"
Issuer = "ops"

[ratelimit]
RequestsPerSecond = 5.0
Burst = 10
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	params, err := cfg.Lending.Params()
	require.NoError(t, err)
	require.Equal(t, "1.05", params.LiquidationThreshold.String())
	require.Equal(t, "250", params.SmallAccountUSD.String())
	require.Equal(t, uint64(360), params.DaysPerYear)

	pauses, err := cfg.Lending.ActionPauses()
	require.NoError(t, err)
	require.True(t, pauses.Borrow)
	require.False(t, pauses.Supply)

	assets, err := ResolveListings(cfg.Assets)
	require.NoError(t, err)
	require.Len(t, assets, 2)
	require.Equal(t, "DOT", assets[0].Asset)
	require.Equal(t, "0.5", assets[0].SafeFactor.String())
	require.Equal(t, "0.95", assets[0].DiscountFactor.String())
	require.True(t, assets[0].CollateralEligible)
	require.Equal(t, "USDT", assets[1].Asset)
	require.False(t, assets[1].CollateralEligible)
	require.Equal(t, "s3cret", cfg.AuthSecret())
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := writeFile(t, t.TempDir(), "config.toml", "DataDir = \"x\"\nBogus = 1\n")
	_, err := Load(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "Bogus")
}

func TestLoadRejectsInvalidListing(t *testing.T) {
	path := writeFile(t, t.TempDir(), "config.toml", `[[assets]]
Asset = "DOT"
SafeFactor = "1.2"
`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestResolveListingsRejectsDuplicates(t *testing.T) {
	_, err := ResolveListings([]AssetListing{{Asset: "dot"}, {Asset: "DOT"}})
	require.Error(t, err)
}

func TestDecodeAssetListingsRejectsUnknownFields(t *testing.T) {
	_, err := DecodeAssetListings(strings.NewReader("assets:\n  - asset: DOT\n    price: 1\n"))
	require.Error(t, err)

	listings, err := DecodeAssetListings(strings.NewReader(""))
	require.NoError(t, err)
	require.Empty(t, listings)
}

func TestListingParsesDecimals(t *testing.T) {
	cfg, err := AssetListing{Asset: "ksm", ExchangeRate: "30.000000000000000000123"}.AssetConfig()
	require.NoError(t, err)
	require.True(t, cfg.ExchangeRate.Eq(fixedpoint.MustParse("30")))

	_, err = AssetListing{Asset: "ksm", ExchangeRate: "-1"}.AssetConfig()
	require.Error(t, err)
	_, err = AssetListing{Asset: "ksm", ExchangeRate: "abc"}.AssetConfig()
	require.Error(t, err)
}

func TestAuthSecretPrefersEnvironment(t *testing.T) {
	t.Setenv("LENDD_TEST_SECRET", "from-env")
	cfg := Default()
	cfg.Auth.HMACSecret = "inline"
	cfg.Auth.HMACSecretEnv = "LENDD_TEST_SECRET"
	require.Equal(t, "from-env", cfg.AuthSecret())
}

func TestValidateConfig(t *testing.T) {
	cfg := Default()
	require.NoError(t, ValidateConfig(cfg))

	cfg.Lending.PausedActions = []string{"teleport"}
	require.Error(t, ValidateConfig(cfg))

	cfg = Default()
	cfg.RateLimit = RateLimitConfig{RequestsPerSecond: 1}
	require.Error(t, ValidateConfig(cfg))

	cfg = Default()
	cfg.Lending.DaysPerYear = 0
	cfg.Lending.LiquidationThreshold = "0"
	require.Error(t, ValidateConfig(cfg))
}
