package lending

import (
	"strings"

	"lendledger/native/lending/fixedpoint"
)

// AssetConfig holds the governance controlled parameters for a listed asset.
// Only ExchangeRate changes at runtime; everything else is fixed at listing.
type AssetConfig struct {
	// Asset is the unique asset identifier.
	Asset string
	// Enabled gates every entry point touching the asset's pool.
	Enabled bool
	// ExchangeRate is the asset to USD price supplied by the oracle feed.
	ExchangeRate fixedpoint.Value
	// SafeFactor discounts collateral value to leave a liquidation buffer.
	// Must lie in (0,1).
	SafeFactor fixedpoint.Value
	// CollateralEligible reports whether positions may be flagged as
	// collateral.
	CollateralEligible bool
	// InitialInterestRate is the borrow APR at zero utilization.
	InitialInterestRate fixedpoint.Value
	// UtilizationFactor is the APR added per unit of utilization.
	UtilizationFactor fixedpoint.Value
	// CloseFactor caps the fraction of a debt repayable in one liquidation.
	// Must lie in (0,1].
	CloseFactor fixedpoint.Value
	// DiscountFactor scales the collateral handed to an arbitrageur. Must lie
	// in (0,1).
	DiscountFactor fixedpoint.Value
}

// DefaultAssetConfig returns the listing defaults for a new asset.
func DefaultAssetConfig(asset string) AssetConfig {
	return AssetConfig{
		Asset:               NormalizeAsset(asset),
		Enabled:             true,
		SafeFactor:          fixedpoint.MustParse("0.7"),
		CollateralEligible:  true,
		InitialInterestRate: fixedpoint.MustParse("0.00000000385"),
		UtilizationFactor:   fixedpoint.MustParse("0.0000000385"),
		CloseFactor:         fixedpoint.One(),
		DiscountFactor:      fixedpoint.MustParse("0.95"),
	}
}

// Clone returns a copy of the configuration.
func (c *AssetConfig) Clone() *AssetConfig {
	if c == nil {
		return nil
	}
	clone := *c
	return &clone
}

// Validate checks the documented parameter ranges.
func (c *AssetConfig) Validate() error {
	if c == nil || c.Asset == "" {
		return wrapf(ErrInvalidConfig, "asset identifier required")
	}
	if strings.ContainsAny(c.Asset, "/ \t") {
		return wrapf(ErrInvalidConfig, "asset identifier %q contains a separator", c.Asset)
	}
	one := fixedpoint.One()
	if c.SafeFactor.IsZero() || !c.SafeFactor.Lt(one) {
		return wrapf(ErrInvalidConfig, "%s: safe factor %s outside (0,1)", c.Asset, c.SafeFactor)
	}
	if c.CloseFactor.IsZero() || c.CloseFactor.Gt(one) {
		return wrapf(ErrInvalidConfig, "%s: close factor %s outside (0,1]", c.Asset, c.CloseFactor)
	}
	if c.DiscountFactor.IsZero() || !c.DiscountFactor.Lt(one) {
		return wrapf(ErrInvalidConfig, "%s: discount factor %s outside (0,1)", c.Asset, c.DiscountFactor)
	}
	return nil
}

// PoolState is the per-asset aggregate ledger.
type PoolState struct {
	// Asset identifies the pool.
	Asset string
	// TotalSupply is the liquidity currently held by the pool.
	TotalSupply fixedpoint.Value
	// TotalBorrow is the outstanding debt including accrued interest.
	TotalBorrow fixedpoint.Value
	// SupplyIndex and BorrowIndex start at 1.0 and never decrease.
	SupplyIndex fixedpoint.Value
	BorrowIndex fixedpoint.Value
	// LastAccrualDay is the UTC day number of the last index update.
	LastAccrualDay uint64
}

// NewPoolState returns an empty pool with unit indices.
func NewPoolState(asset string, day uint64) *PoolState {
	return &PoolState{
		Asset:          NormalizeAsset(asset),
		SupplyIndex:    fixedpoint.One(),
		BorrowIndex:    fixedpoint.One(),
		LastAccrualDay: day,
	}
}

// Clone returns a copy of the pool.
func (p *PoolState) Clone() *PoolState {
	if p == nil {
		return nil
	}
	clone := *p
	return &clone
}

// Balance is a principal recorded against an index snapshot. The live amount
// is Principal * index / Snapshot + Pending.
type Balance struct {
	Principal fixedpoint.Value
	Snapshot  fixedpoint.Value
	// Pending is supply added on LastDay. It earns nothing until the pool
	// accrues past LastDay, at which point it matures into Principal at the
	// supply index of the following day boundary. Always zero on the borrow
	// side.
	Pending fixedpoint.Value
	// LastDay is the day the principal was last rebased.
	LastDay uint64
}

// Position is an account's claim against one asset's pool.
type Position struct {
	Account      string
	Asset        string
	Supply       Balance
	Borrow       Balance
	IsCollateral bool
}

// Clone returns a copy of the position.
func (p *Position) Clone() *Position {
	if p == nil {
		return nil
	}
	clone := *p
	return &clone
}

// Empty reports whether the position carries no principal on either side.
func (p *Position) Empty() bool {
	return p == nil || (p.Supply.Principal.IsZero() && p.Supply.Pending.IsZero() && p.Borrow.Principal.IsZero())
}

// NormalizeAsset canonicalises asset identifiers.
func NormalizeAsset(asset string) string {
	return strings.ToUpper(strings.TrimSpace(asset))
}

// NormalizeAccount canonicalises account identifiers.
func NormalizeAccount(account string) string {
	return strings.TrimSpace(account)
}
