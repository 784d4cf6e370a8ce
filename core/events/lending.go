package events

import (
	"math/big"
	"strconv"
	"strings"

	"lendledger/core/types"
)

const (
	// TypeLendingSupplied is emitted after liquidity is supplied to a pool.
	TypeLendingSupplied = "lending.supplied"
	// TypeLendingWithdrawn is emitted after supplied liquidity is withdrawn.
	TypeLendingWithdrawn = "lending.withdrawn"
	// TypeLendingBorrowed is emitted after an account draws debt.
	TypeLendingBorrowed = "lending.borrowed"
	// TypeLendingRepaid is emitted after debt is repaid.
	TypeLendingRepaid = "lending.repaid"
	// TypeLendingLiquidated is emitted once a liquidation settles.
	TypeLendingLiquidated = "lending.liquidated"
	// TypeLendingAccrued is emitted when a pool's indices roll forward.
	TypeLendingAccrued = "lending.pool.accrued"
	// TypeLendingPoolListed is emitted when a pool is created.
	TypeLendingPoolListed = "lending.pool.listed"
	// TypeLendingRateUpdated is emitted when an exchange rate is refreshed.
	TypeLendingRateUpdated = "lending.rate.updated"
	// TypeLendingCollateralToggled is emitted when a position's collateral
	// flag changes.
	TypeLendingCollateralToggled = "lending.collateral.toggled"
)

// LendingAction captures a single-account movement against a pool.
type LendingAction struct {
	Type       string
	Account    string
	Asset      string
	Amount     *big.Int
	Collateral bool
}

func (e LendingAction) EventType() string { return e.Type }

// Event renders the action for downstream consumers.
func (e LendingAction) Event() *types.Event {
	attrs := map[string]string{
		"account": strings.TrimSpace(e.Account),
		"asset":   normalizeAsset(e.Asset),
		"amount":  bigString(e.Amount),
	}
	if e.Type == TypeLendingSupplied || e.Type == TypeLendingCollateralToggled {
		attrs["collateral"] = strconv.FormatBool(e.Collateral)
	}
	return &types.Event{Type: e.Type, Attributes: attrs}
}

// LendingLiquidation records a settled liquidation.
type LendingLiquidation struct {
	Arbitrageur string
	Target      string
	PayAsset    string
	SeizeAsset  string
	Repaid      *big.Int
	Seized      *big.Int
}

func (LendingLiquidation) EventType() string { return TypeLendingLiquidated }

func (e LendingLiquidation) Event() *types.Event {
	return &types.Event{Type: TypeLendingLiquidated, Attributes: map[string]string{
		"arbitrageur": strings.TrimSpace(e.Arbitrageur),
		"target":      strings.TrimSpace(e.Target),
		"payAsset":    normalizeAsset(e.PayAsset),
		"seizeAsset":  normalizeAsset(e.SeizeAsset),
		"repaid":      bigString(e.Repaid),
		"seized":      bigString(e.Seized),
	}}
}

// LendingAccrual records an index roll-forward.
type LendingAccrual struct {
	Asset       string
	FromDay     uint64
	ToDay       uint64
	SupplyIndex *big.Int
	BorrowIndex *big.Int
}

func (LendingAccrual) EventType() string { return TypeLendingAccrued }

func (e LendingAccrual) Event() *types.Event {
	return &types.Event{Type: TypeLendingAccrued, Attributes: map[string]string{
		"asset":       normalizeAsset(e.Asset),
		"fromDay":     strconv.FormatUint(e.FromDay, 10),
		"toDay":       strconv.FormatUint(e.ToDay, 10),
		"supplyIndex": bigString(e.SupplyIndex),
		"borrowIndex": bigString(e.BorrowIndex),
	}}
}

// LendingPoolUpdate covers pool listing and exchange rate refreshes.
type LendingPoolUpdate struct {
	Type         string
	Asset        string
	ExchangeRate *big.Int
	Enabled      bool
}

func (e LendingPoolUpdate) EventType() string { return e.Type }

func (e LendingPoolUpdate) Event() *types.Event {
	return &types.Event{Type: e.Type, Attributes: map[string]string{
		"asset":        normalizeAsset(e.Asset),
		"exchangeRate": bigString(e.ExchangeRate),
		"enabled":      strconv.FormatBool(e.Enabled),
	}}
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

// Recorder is an Emitter that keeps every event in memory.
type Recorder struct {
	events []Event
}

func (r *Recorder) Emit(evt Event) {
	if r == nil || evt == nil {
		return
	}
	r.events = append(r.events, evt)
}

// Events returns the recorded events in emission order.
func (r *Recorder) Events() []Event {
	if r == nil {
		return nil
	}
	return append([]Event(nil), r.events...)
}

// Reset drops everything recorded so far.
func (r *Recorder) Reset() {
	if r != nil {
		r.events = nil
	}
}
