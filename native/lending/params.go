package lending

import "lendledger/native/lending/fixedpoint"

// Params are the protocol-wide constants threaded through every engine call.
// A Params value is immutable once handed to the engine.
type Params struct {
	// LiquidationThreshold is the health index below which an account may be
	// liquidated and at or above which borrows and withdrawals are admitted.
	LiquidationThreshold fixedpoint.Value
	// SmallAccountUSD is the total borrowed value under which a liquidation
	// may repay the full debt regardless of the close factor.
	SmallAccountUSD fixedpoint.Value
	// DaysPerYear converts annual rates into per-day growth.
	DaysPerYear uint64
}

// DefaultParams returns the production constants.
func DefaultParams() Params {
	return Params{
		LiquidationThreshold: fixedpoint.One(),
		SmallAccountUSD:      fixedpoint.FromUint64(100),
		DaysPerYear:          360,
	}
}

// Validate rejects parameter sets the engine cannot operate with.
func (p Params) Validate() error {
	if p.LiquidationThreshold.IsZero() {
		return wrapf(ErrInvalidConfig, "liquidation threshold must be positive")
	}
	if p.DaysPerYear == 0 {
		return wrapf(ErrInvalidConfig, "days per year must be positive")
	}
	return nil
}

// ActionPauses exposes fine-grained switches for pausing individual lending
// flows while the module as a whole stays live.
type ActionPauses struct {
	Supply    bool
	Withdraw  bool
	Borrow    bool
	Repay     bool
	Liquidate bool
}

func (p ActionPauses) paused(action string) bool {
	switch action {
	case ActionSupply:
		return p.Supply
	case ActionWithdraw:
		return p.Withdraw
	case ActionBorrow:
		return p.Borrow
	case ActionRepay:
		return p.Repay
	case ActionLiquidate:
		return p.Liquidate
	default:
		return false
	}
}
