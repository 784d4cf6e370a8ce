package lending

import (
	"fmt"

	"lendledger/native/lending/fixedpoint"
)

// Utilization computes U = totalBorrow / (totalSupply + totalBorrow). When the
// pool holds neither liquidity nor debt the utilization is defined as zero.
func Utilization(pool *PoolState) (fixedpoint.Value, error) {
	if pool == nil || pool.TotalBorrow.IsZero() {
		return fixedpoint.Zero(), nil
	}
	denom, err := pool.TotalSupply.Add(pool.TotalBorrow)
	if err != nil {
		return fixedpoint.Value{}, err
	}
	return pool.TotalBorrow.Div(denom)
}

// BorrowRate derives the annual borrow rate:
// initial_interest_rate + utilization * utilization_factor.
func BorrowRate(cfg *AssetConfig, pool *PoolState) (fixedpoint.Value, error) {
	if cfg == nil {
		return fixedpoint.Zero(), nil
	}
	u, err := Utilization(pool)
	if err != nil {
		return fixedpoint.Value{}, err
	}
	slope, err := u.Mul(cfg.UtilizationFactor)
	if err != nil {
		return fixedpoint.Value{}, err
	}
	return cfg.InitialInterestRate.Add(slope)
}

// SupplyRate derives the annual supply rate: borrow_rate * utilization.
func SupplyRate(cfg *AssetConfig, pool *PoolState) (fixedpoint.Value, error) {
	u, err := Utilization(pool)
	if err != nil {
		return fixedpoint.Value{}, err
	}
	if u.IsZero() {
		return fixedpoint.Zero(), nil
	}
	borrow, err := BorrowRate(cfg, pool)
	if err != nil {
		return fixedpoint.Value{}, err
	}
	return borrow.Mul(u)
}

// growthFactor returns 1 + rate * days / daysPerYear.
func growthFactor(rate fixedpoint.Value, days, daysPerYear uint64) (fixedpoint.Value, error) {
	if daysPerYear == 0 {
		return fixedpoint.Value{}, fixedpoint.ErrDivisionByZero
	}
	delta, err := fixedpoint.MulDiv(rate, fixedpoint.FromUint64(days), fixedpoint.FromUint64(daysPerYear))
	if err != nil {
		return fixedpoint.Value{}, err
	}
	return fixedpoint.One().Add(delta)
}

// Accrual describes one index roll-forward.
type Accrual struct {
	Asset        string
	FromDay      uint64
	ToDay        uint64
	SupplyRate   fixedpoint.Value
	BorrowRate   fixedpoint.Value
	SupplyIndex  fixedpoint.Value
	BorrowIndex  fixedpoint.Value
	InterestDebt fixedpoint.Value
	// SupplyBoundary is the supply index one day after FromDay. Supply added
	// on FromDay matures at this index.
	SupplyBoundary fixedpoint.Value
}

// Accrue rolls the pool indices forward to day. Rates are taken from the pool
// state at the previous accrual and applied over the whole elapsed span, so a
// second call for the same day is a no-op. Days earlier than the last accrual
// are ignored. On error the pool is left untouched.
func Accrue(pool *PoolState, cfg *AssetConfig, day uint64, params Params) (*Accrual, error) {
	if pool == nil {
		return nil, ErrPoolNotExist
	}
	if day <= pool.LastAccrualDay {
		return nil, nil
	}
	elapsed := day - pool.LastAccrualDay

	borrowRate, err := BorrowRate(cfg, pool)
	if err != nil {
		return nil, fmt.Errorf("lending engine: accrue %s: %w", pool.Asset, err)
	}
	supplyRate, err := SupplyRate(cfg, pool)
	if err != nil {
		return nil, fmt.Errorf("lending engine: accrue %s: %w", pool.Asset, err)
	}
	borrowGrowth, err := growthFactor(borrowRate, elapsed, params.DaysPerYear)
	if err != nil {
		return nil, fmt.Errorf("lending engine: accrue %s: %w", pool.Asset, err)
	}
	supplyGrowth, err := growthFactor(supplyRate, elapsed, params.DaysPerYear)
	if err != nil {
		return nil, fmt.Errorf("lending engine: accrue %s: %w", pool.Asset, err)
	}

	borrowIndex, err := pool.BorrowIndex.Mul(borrowGrowth)
	if err != nil {
		return nil, fmt.Errorf("lending engine: accrue %s borrow index: %w", pool.Asset, err)
	}
	supplyIndex, err := pool.SupplyIndex.Mul(supplyGrowth)
	if err != nil {
		return nil, fmt.Errorf("lending engine: accrue %s supply index: %w", pool.Asset, err)
	}
	firstDay, err := growthFactor(supplyRate, 1, params.DaysPerYear)
	if err != nil {
		return nil, fmt.Errorf("lending engine: accrue %s: %w", pool.Asset, err)
	}
	boundary, err := pool.SupplyIndex.Mul(firstDay)
	if err != nil {
		return nil, fmt.Errorf("lending engine: accrue %s supply boundary: %w", pool.Asset, err)
	}
	totalBorrow, err := pool.TotalBorrow.Mul(borrowGrowth)
	if err != nil {
		return nil, fmt.Errorf("lending engine: accrue %s total borrow: %w", pool.Asset, err)
	}

	accrual := &Accrual{
		Asset:        pool.Asset,
		FromDay:      pool.LastAccrualDay,
		ToDay:        day,
		SupplyRate:   supplyRate,
		BorrowRate:   borrowRate,
		SupplyIndex:  fixedpoint.Max(supplyIndex, pool.SupplyIndex),
		BorrowIndex:  fixedpoint.Max(borrowIndex, pool.BorrowIndex),
		InterestDebt: totalBorrow.SaturatingSub(pool.TotalBorrow),
	}
	accrual.SupplyBoundary = fixedpoint.Min(fixedpoint.Max(boundary, pool.SupplyIndex), accrual.SupplyIndex)
	pool.SupplyIndex = accrual.SupplyIndex
	pool.BorrowIndex = accrual.BorrowIndex
	pool.TotalBorrow = totalBorrow
	pool.LastAccrualDay = day
	return accrual, nil
}

// Deposit credits supplied liquidity to the pool.
func Deposit(pool *PoolState, amount fixedpoint.Value) error {
	total, err := pool.TotalSupply.Add(amount)
	if err != nil {
		return fmt.Errorf("lending engine: deposit %s: %w", pool.Asset, err)
	}
	pool.TotalSupply = total
	return nil
}

// WithdrawFromPool removes liquidity from the pool.
func WithdrawFromPool(pool *PoolState, amount fixedpoint.Value) error {
	if pool.TotalSupply.Lt(amount) {
		return ErrNotEnoughLiquidity
	}
	pool.TotalSupply = pool.TotalSupply.SaturatingSub(amount)
	return nil
}

// lend moves liquidity out to a borrower.
func lend(pool *PoolState, amount fixedpoint.Value) error {
	if pool.TotalSupply.Lt(amount) {
		return ErrNotEnoughLiquidity
	}
	borrow, err := pool.TotalBorrow.Add(amount)
	if err != nil {
		return fmt.Errorf("lending engine: borrow %s: %w", pool.Asset, err)
	}
	pool.TotalSupply = pool.TotalSupply.SaturatingSub(amount)
	pool.TotalBorrow = borrow
	return nil
}

// settleDebt returns repaid liquidity to the pool. Outstanding debt saturates
// at zero to absorb per-account rounding.
func settleDebt(pool *PoolState, amount fixedpoint.Value) error {
	supply, err := pool.TotalSupply.Add(amount)
	if err != nil {
		return fmt.Errorf("lending engine: repay %s: %w", pool.Asset, err)
	}
	pool.TotalSupply = supply
	pool.TotalBorrow = pool.TotalBorrow.SaturatingSub(amount)
	return nil
}
