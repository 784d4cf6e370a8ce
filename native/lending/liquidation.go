package lending

import (
	"errors"
	"fmt"

	"lendledger/core/events"
	"lendledger/native/lending/fixedpoint"
)

// LiquidationState tracks a liquidation attempt. Settled and Rejected are
// terminal.
type LiquidationState uint8

const (
	LiquidationPending LiquidationState = iota
	LiquidationEligible
	LiquidationSettling
	LiquidationSettled
	LiquidationRejected
)

func (s LiquidationState) String() string {
	switch s {
	case LiquidationEligible:
		return "eligible"
	case LiquidationSettling:
		return "settling"
	case LiquidationSettled:
		return "settled"
	case LiquidationRejected:
		return "rejected"
	default:
		return "pending"
	}
}

// LiquidationRequest is an arbitrageur's offer to repay a target's debt.
type LiquidationRequest struct {
	Caller          string
	Target          string
	BorrowedAsset   string
	CollateralAsset string
	RepayAmount     fixedpoint.Value
}

// Liquidation is the outcome of an attempt.
type Liquidation struct {
	Request LiquidationRequest
	State   LiquidationState
	// Reason is set when the attempt was rejected.
	Reason error
	// MaxRepay is the close-factor cap that applied.
	MaxRepay fixedpoint.Value
	// Seized is the collateral transferred to the caller.
	Seized fixedpoint.Value
	// TargetHealth is the health index observed at eligibility check.
	TargetHealth Health
}

// liquidation drives one attempt through its states against a session. All
// mutation happens on staged copies; the engine commits only when the attempt
// reaches Settled.
type liquidation struct {
	s      *session
	result *Liquidation

	borrowPool *PoolState
	borrowCfg  *AssetConfig
	collPool   *PoolState
	collCfg    *AssetConfig
}

func newLiquidation(s *session, req LiquidationRequest) *liquidation {
	return &liquidation{s: s, result: &Liquidation{Request: req, State: LiquidationPending}}
}

func (l *liquidation) reject(err error) (*Liquidation, error) {
	l.result.State = LiquidationRejected
	l.result.Reason = err
	return l.result, err
}

func (l *liquidation) run() (*Liquidation, error) {
	if err := l.checkRequest(); err != nil {
		return l.reject(err)
	}
	if err := l.checkEligible(); err != nil {
		return l.reject(err)
	}
	seized, err := l.size()
	if err != nil {
		return l.reject(err)
	}
	l.result.State = LiquidationSettling
	if err := l.settle(seized); err != nil {
		return l.reject(err)
	}
	l.result.Seized = seized
	l.result.State = LiquidationSettled
	req := l.result.Request
	l.s.emit(events.LendingLiquidation{
		Arbitrageur: req.Caller,
		Target:      req.Target,
		PayAsset:    req.BorrowedAsset,
		SeizeAsset:  req.CollateralAsset,
		Repaid:      req.RepayAmount.Big(),
		Seized:      seized.Big(),
	})
	return l.result, nil
}

func (l *liquidation) checkRequest() error {
	req := l.result.Request
	if req.Caller == "" || req.Target == "" {
		return wrapf(ErrInvalidAmount, "caller and target required")
	}
	if req.Caller == req.Target {
		return ErrSelfLiquidation
	}
	if req.RepayAmount.IsZero() {
		return ErrInvalidAmount
	}
	var err error
	if l.borrowPool, l.borrowCfg, err = l.s.enabledPool(req.BorrowedAsset); err != nil {
		return err
	}
	if l.collPool, l.collCfg, err = l.s.enabledPool(req.CollateralAsset); err != nil {
		return err
	}
	if !l.collCfg.CollateralEligible {
		return fmt.Errorf("%w: %s", ErrAssetNotCollateral, req.CollateralAsset)
	}
	if l.borrowCfg.ExchangeRate.IsZero() || l.collCfg.ExchangeRate.IsZero() {
		return ErrPriceUnavailable
	}
	return nil
}

// checkEligible re-evaluates the target against current state.
func (l *liquidation) checkEligible() error {
	risk, err := l.s.evaluate(l.result.Request.Target)
	if err != nil {
		return err
	}
	l.result.TargetHealth = risk.Health
	if !risk.Eligible(l.s.params) {
		return fmt.Errorf("%w: health %s", ErrNotEligible, risk.Health)
	}
	l.result.State = LiquidationEligible

	req := l.result.Request
	pos, err := l.s.position(req.Target, req.BorrowedAsset)
	if err != nil {
		return err
	}
	debt, err := CurrentBorrowed(pos, l.borrowPool)
	if err != nil {
		return err
	}
	if debt.IsZero() {
		return fmt.Errorf("%w: %s", ErrNoDebt, req.BorrowedAsset)
	}
	maxRepay := debt
	closeFactor := l.borrowCfg.CloseFactor
	smallAccount := risk.BorrowedValue.Lt(l.s.params.SmallAccountUSD)
	if closeFactor.Lt(fixedpoint.One()) && !smallAccount {
		if maxRepay, err = debt.Mul(closeFactor); err != nil {
			return err
		}
	}
	l.result.MaxRepay = maxRepay
	if maxRepay.Lt(req.RepayAmount) {
		return fmt.Errorf("%w: repay %s above limit %s", ErrRepayExceedsDebt, req.RepayAmount, maxRepay)
	}
	return nil
}

// size computes repay * rate(borrowed) * discount / rate(collateral) and checks
// the target can cover it.
func (l *liquidation) size() (fixedpoint.Value, error) {
	req := l.result.Request
	price, err := l.borrowCfg.ExchangeRate.Mul(l.collCfg.DiscountFactor)
	if err != nil {
		return fixedpoint.Value{}, err
	}
	seized, err := fixedpoint.MulDiv(req.RepayAmount, price, l.collCfg.ExchangeRate)
	if err != nil {
		return fixedpoint.Value{}, err
	}
	pos, err := l.s.position(req.Target, req.CollateralAsset)
	if err != nil {
		return fixedpoint.Value{}, err
	}
	available := fixedpoint.Zero()
	if pos.IsCollateral {
		if available, err = CurrentSupplied(pos, l.collPool); err != nil {
			return fixedpoint.Value{}, err
		}
	}
	if available.Lt(seized) {
		return fixedpoint.Value{}, fmt.Errorf("%w: need %s, have %s", ErrInsufficientTargetCollateral, seized, available)
	}
	return seized, nil
}

// settle applies the transfer to staged copies: the target's debt shrinks by
// the repayment, the pool is credited, and the seized collateral changes hands
// without touching the collateral pool's liquidity.
func (l *liquidation) settle(seized fixedpoint.Value) error {
	req := l.result.Request
	debtPos, err := l.s.position(req.Target, req.BorrowedAsset)
	if err != nil {
		return err
	}
	if err := ApplyRepay(debtPos, l.borrowPool, req.RepayAmount); err != nil {
		return err
	}
	if err := settleDebt(l.borrowPool, req.RepayAmount); err != nil {
		return err
	}
	l.s.markPool(l.borrowPool)
	if err := l.s.markPosition(debtPos); err != nil {
		return err
	}

	if seized.IsZero() {
		return nil
	}
	targetColl, err := l.s.position(req.Target, req.CollateralAsset)
	if err != nil {
		return err
	}
	if err := ApplyWithdraw(targetColl, l.collPool, seized); err != nil {
		if errors.Is(err, ErrInsufficientSupply) {
			return ErrInsufficientTargetCollateral
		}
		return err
	}
	if err := l.s.markPosition(targetColl); err != nil {
		return err
	}
	callerColl, err := l.s.position(req.Caller, req.CollateralAsset)
	if err != nil {
		return err
	}
	if err := ApplySupply(callerColl, l.collPool, l.collCfg, seized, false); err != nil {
		return err
	}
	return l.s.markPosition(callerColl)
}
