package config

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"lendledger/native/lending"
	"lendledger/native/lending/fixedpoint"
)

// LendingParams mirrors lending.Params with decimal strings.
type LendingParams struct {
	LiquidationThreshold string   `toml:"LiquidationThreshold"`
	SmallAccountUSD      string   `toml:"SmallAccountUSD"`
	DaysPerYear          uint64   `toml:"DaysPerYear"`
	Paused               bool     `toml:"Paused"`
	PausedActions        []string `toml:"PausedActions"`
}

// AssetListing describes one listed asset. Empty fields keep the listing
// defaults of lending.DefaultAssetConfig.
type AssetListing struct {
	Asset               string `toml:"Asset" yaml:"asset" json:"asset,omitempty"`
	ExchangeRate        string `toml:"ExchangeRate" yaml:"exchange_rate" json:"exchange_rate,omitempty"`
	SafeFactor          string `toml:"SafeFactor" yaml:"safe_factor" json:"safe_factor,omitempty"`
	CollateralEligible  *bool  `toml:"CollateralEligible" yaml:"collateral_eligible" json:"collateral_eligible,omitempty"`
	Enabled             *bool  `toml:"Enabled" yaml:"enabled" json:"enabled,omitempty"`
	InitialInterestRate string `toml:"InitialInterestRate" yaml:"initial_interest_rate" json:"initial_interest_rate,omitempty"`
	UtilizationFactor   string `toml:"UtilizationFactor" yaml:"utilization_factor" json:"utilization_factor,omitempty"`
	CloseFactor         string `toml:"CloseFactor" yaml:"close_factor" json:"close_factor,omitempty"`
	DiscountFactor      string `toml:"DiscountFactor" yaml:"discount_factor" json:"discount_factor,omitempty"`
}

// AuthConfig configures bearer token verification for write endpoints.
type AuthConfig struct {
	HMACSecret    string   `toml:"HMACSecret"`
	HMACSecretEnv string   `toml:"HMACSecretEnv"`
	Issuer        string   `toml:"Issuer"`
	Audience      []string `toml:"Audience"`
	// AllowAnonymousReads leaves GET routes open when a secret is set.
	AllowAnonymousReads bool `toml:"AllowAnonymousReads"`
}

// RateLimitConfig bounds per-client request rates on the API.
type RateLimitConfig struct {
	RequestsPerSecond float64 `toml:"RequestsPerSecond"`
	Burst             int     `toml:"Burst"`
}

// TelemetryConfig wires the OTLP exporters.
type TelemetryConfig struct {
	Endpoint    string            `toml:"Endpoint"`
	Insecure    bool              `toml:"Insecure"`
	Traces      bool              `toml:"Traces"`
	Metrics     bool              `toml:"Metrics"`
	SampleRatio float64           `toml:"SampleRatio"`
	Headers     map[string]string `toml:"Headers"`
}

// LogConfig selects the log level and an optional rotating file.
type LogConfig struct {
	Level      string `toml:"Level"`
	File       string `toml:"File"`
	MaxSizeMB  int    `toml:"MaxSizeMB"`
	MaxBackups int    `toml:"MaxBackups"`
	MaxAgeDays int    `toml:"MaxAgeDays"`
}

// Params converts the configured decimals into engine parameters.
func (p LendingParams) Params() (lending.Params, error) {
	params := lending.DefaultParams()
	if strings.TrimSpace(p.LiquidationThreshold) != "" {
		v, err := parseValue(p.LiquidationThreshold)
		if err != nil {
			return params, fmt.Errorf("invalid lending.LiquidationThreshold: %w", err)
		}
		params.LiquidationThreshold = v
	}
	if strings.TrimSpace(p.SmallAccountUSD) != "" {
		v, err := parseValue(p.SmallAccountUSD)
		if err != nil {
			return params, fmt.Errorf("invalid lending.SmallAccountUSD: %w", err)
		}
		params.SmallAccountUSD = v
	}
	if p.DaysPerYear != 0 {
		params.DaysPerYear = p.DaysPerYear
	}
	return params, params.Validate()
}

// ActionPauses maps PausedActions onto the engine switches.
func (p LendingParams) ActionPauses() (lending.ActionPauses, error) {
	var pauses lending.ActionPauses
	for _, action := range p.PausedActions {
		switch strings.ToLower(strings.TrimSpace(action)) {
		case lending.ActionSupply:
			pauses.Supply = true
		case lending.ActionWithdraw:
			pauses.Withdraw = true
		case lending.ActionBorrow:
			pauses.Borrow = true
		case lending.ActionRepay:
			pauses.Repay = true
		case lending.ActionLiquidate:
			pauses.Liquidate = true
		default:
			return pauses, fmt.Errorf("invalid lending.PausedActions entry %q", action)
		}
	}
	return pauses, nil
}

// AssetConfig resolves the listing against the defaults.
func (l AssetListing) AssetConfig() (lending.AssetConfig, error) {
	cfg := lending.DefaultAssetConfig(l.Asset)
	if cfg.Asset == "" {
		return cfg, fmt.Errorf("asset listing: identifier required")
	}
	fields := []struct {
		name string
		raw  string
		dst  *fixedpoint.Value
	}{
		{"ExchangeRate", l.ExchangeRate, &cfg.ExchangeRate},
		{"SafeFactor", l.SafeFactor, &cfg.SafeFactor},
		{"InitialInterestRate", l.InitialInterestRate, &cfg.InitialInterestRate},
		{"UtilizationFactor", l.UtilizationFactor, &cfg.UtilizationFactor},
		{"CloseFactor", l.CloseFactor, &cfg.CloseFactor},
		{"DiscountFactor", l.DiscountFactor, &cfg.DiscountFactor},
	}
	for _, f := range fields {
		if strings.TrimSpace(f.raw) == "" {
			continue
		}
		v, err := parseValue(f.raw)
		if err != nil {
			return cfg, fmt.Errorf("asset %s: invalid %s: %w", cfg.Asset, f.name, err)
		}
		*f.dst = v
	}
	if l.CollateralEligible != nil {
		cfg.CollateralEligible = *l.CollateralEligible
	}
	if l.Enabled != nil {
		cfg.Enabled = *l.Enabled
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func parseValue(raw string) (fixedpoint.Value, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return fixedpoint.Value{}, err
	}
	return fixedpoint.FromDecimal(d)
}
