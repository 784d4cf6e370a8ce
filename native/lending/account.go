package lending

import (
	"fmt"

	"lendledger/native/lending/fixedpoint"
)

// accrued projects the principal onto index. Supply balances round down and
// debt rounds up so neither side ever favours the account.
func (b Balance) accrued(index fixedpoint.Value, roundUp bool) (fixedpoint.Value, error) {
	if b.Principal.IsZero() {
		return fixedpoint.Zero(), nil
	}
	if b.Snapshot.IsZero() {
		return b.Principal, nil
	}
	if roundUp {
		return fixedpoint.MulDivUp(b.Principal, index, b.Snapshot)
	}
	return fixedpoint.MulDiv(b.Principal, index, b.Snapshot)
}

// current is the accrued principal plus any pending supply at face value.
func (b Balance) current(index fixedpoint.Value, roundUp bool) (fixedpoint.Value, error) {
	live, err := b.accrued(index, roundUp)
	if err != nil {
		return fixedpoint.Value{}, err
	}
	if b.Pending.IsZero() {
		return live, nil
	}
	return live.Add(b.Pending)
}

// settle folds accrued interest into the principal and takes a fresh snapshot
// at index. Pending supply is carried over untouched.
func (b Balance) settle(index fixedpoint.Value, roundUp bool, day uint64) (Balance, error) {
	principal, err := b.accrued(index, roundUp)
	if err != nil {
		return Balance{}, err
	}
	return Balance{Principal: principal, Snapshot: index, Pending: b.Pending, LastDay: day}, nil
}

// mature moves pending supply into the principal. boundary is the supply
// index at the first day boundary after LastDay; the matured principal earns
// from there on.
func (b Balance) mature(boundary fixedpoint.Value) (Balance, error) {
	if b.Pending.IsZero() {
		return b, nil
	}
	principal, err := b.accrued(boundary, false)
	if err != nil {
		return Balance{}, err
	}
	if principal, err = principal.Add(b.Pending); err != nil {
		return Balance{}, err
	}
	return Balance{Principal: principal, Snapshot: boundary, LastDay: b.LastDay}, nil
}

// CurrentSupplied returns the live supplied balance of pos against pool.
func CurrentSupplied(pos *Position, pool *PoolState) (fixedpoint.Value, error) {
	if pos == nil || pool == nil {
		return fixedpoint.Zero(), nil
	}
	return pos.Supply.current(pool.SupplyIndex, false)
}

// CurrentBorrowed returns the live debt of pos against pool.
func CurrentBorrowed(pos *Position, pool *PoolState) (fixedpoint.Value, error) {
	if pos == nil || pool == nil {
		return fixedpoint.Zero(), nil
	}
	return pos.Borrow.current(pool.BorrowIndex, true)
}

// ApplySupply credits amount to the supply side as pending supply, so it
// starts earning at the next day boundary. Collateral use is switched on only
// when requested, and only for eligible assets.
func ApplySupply(pos *Position, pool *PoolState, cfg *AssetConfig, amount fixedpoint.Value, asCollateral bool) error {
	if amount.IsZero() {
		return ErrInvalidAmount
	}
	if asCollateral && (cfg == nil || !cfg.CollateralEligible) {
		return ErrIneligibleCollateral
	}
	if !pos.Supply.Pending.IsZero() && pos.Supply.LastDay != pool.LastAccrualDay {
		return fmt.Errorf("lending engine: %s/%s: pending supply from day %d not matured", pos.Account, pos.Asset, pos.Supply.LastDay)
	}
	next, err := pos.Supply.settle(pool.SupplyIndex, false, pool.LastAccrualDay)
	if err != nil {
		return err
	}
	if next.Pending, err = next.Pending.Add(amount); err != nil {
		return err
	}
	pos.Supply = next
	if asCollateral {
		pos.IsCollateral = true
	}
	return nil
}

// ApplyWithdraw debits amount from the supply side, pending supply first.
// Risk admissibility is checked by the caller against the resulting position.
func ApplyWithdraw(pos *Position, pool *PoolState, amount fixedpoint.Value) error {
	if amount.IsZero() {
		return ErrInvalidAmount
	}
	supplied, err := CurrentSupplied(pos, pool)
	if err != nil {
		return err
	}
	if supplied.Lt(amount) {
		return ErrInsufficientSupply
	}
	next, err := pos.Supply.settle(pool.SupplyIndex, false, pool.LastAccrualDay)
	if err != nil {
		return err
	}
	fromPending := fixedpoint.Min(amount, next.Pending)
	next.Pending = next.Pending.SaturatingSub(fromPending)
	if next.Principal, err = next.Principal.Sub(amount.SaturatingSub(fromPending)); err != nil {
		return err
	}
	pos.Supply = next
	return nil
}

// ApplyBorrow adds amount to the debt side.
func ApplyBorrow(pos *Position, pool *PoolState, amount fixedpoint.Value) error {
	if amount.IsZero() {
		return ErrInvalidAmount
	}
	next, err := pos.Borrow.settle(pool.BorrowIndex, true, pool.LastAccrualDay)
	if err != nil {
		return err
	}
	if next.Principal, err = next.Principal.Add(amount); err != nil {
		return err
	}
	pos.Borrow = next
	return nil
}

// ApplyRepay reduces the debt side. Repaying more than the live debt is
// rejected rather than truncated.
func ApplyRepay(pos *Position, pool *PoolState, amount fixedpoint.Value) error {
	if amount.IsZero() {
		return ErrInvalidAmount
	}
	debt, err := CurrentBorrowed(pos, pool)
	if err != nil {
		return err
	}
	if debt.Lt(amount) {
		return ErrRepayExceedsDebt
	}
	next, err := pos.Borrow.settle(pool.BorrowIndex, true, pool.LastAccrualDay)
	if err != nil {
		return err
	}
	if next.Principal, err = next.Principal.Sub(amount); err != nil {
		return err
	}
	pos.Borrow = next
	return nil
}
