package lending

import (
	"errors"
	"fmt"

	"lendledger/native/lending/fixedpoint"
)

// Kind classifies engine failures. Every failure is an ordinary rejected
// action; the kind only tells the caller which rule declined it.
type Kind uint8

const (
	KindUnknown Kind = iota
	// KindArithmetic covers overflow and division by zero.
	KindArithmetic
	// KindValidation covers malformed or unsatisfiable requests.
	KindValidation
	// KindRisk covers business rule rejections on collateralization.
	KindRisk
	// KindLiquidation covers rejected liquidation attempts.
	KindLiquidation
)

func (k Kind) String() string {
	switch k {
	case KindArithmetic:
		return "arithmetic"
	case KindValidation:
		return "validation"
	case KindRisk:
		return "risk"
	case KindLiquidation:
		return "liquidation"
	default:
		return "unknown"
	}
}

var errNilState = errors.New("lending engine: state not configured")

var (
	ErrOverflow       = fixedpoint.ErrOverflow
	ErrDivisionByZero = fixedpoint.ErrDivisionByZero
)

var (
	ErrInsufficientBalance  = fixedpoint.ErrInsufficientBalance
	ErrInsufficientSupply   = errors.New("lending engine: withdraw exceeds supplied balance")
	ErrRepayExceedsDebt     = errors.New("lending engine: repay exceeds outstanding debt")
	ErrIneligibleCollateral = errors.New("lending engine: asset cannot be used as collateral")
	ErrInvalidAmount        = errors.New("lending engine: amount must be positive")
	ErrInvalidConfig        = errors.New("lending engine: invalid configuration")
	ErrPoolNotExist         = errors.New("lending engine: pool does not exist")
	ErrPoolExists           = errors.New("lending engine: pool already exists")
	ErrPoolDisabled         = errors.New("lending engine: pool disabled")
	ErrNotEnoughLiquidity   = errors.New("lending engine: not enough pool liquidity")
	ErrPriceUnavailable     = errors.New("lending engine: exchange rate not set")
	ErrActionPaused         = errors.New("lending engine: action paused")
)

var (
	ErrInsufficientCollateral  = errors.New("lending engine: insufficient collateral for borrow")
	ErrWouldTriggerLiquidation = errors.New("lending engine: change would leave account below liquidation threshold")
)

var (
	ErrInsufficientTargetCollateral = errors.New("lending engine: target collateral below seized amount")
	ErrNotEligible                  = errors.New("lending engine: account not eligible for liquidation")
	ErrAssetNotCollateral           = errors.New("lending engine: seized asset is not collateral eligible")
	ErrSelfLiquidation              = errors.New("lending engine: account cannot liquidate itself")
	ErrNoDebt                       = errors.New("lending engine: target has no debt in asset")
)

var kinds = []struct {
	err  error
	kind Kind
}{
	{ErrOverflow, KindArithmetic},
	{ErrDivisionByZero, KindArithmetic},
	{ErrInsufficientBalance, KindValidation},
	{ErrInsufficientSupply, KindValidation},
	{ErrRepayExceedsDebt, KindValidation},
	{ErrIneligibleCollateral, KindValidation},
	{ErrInvalidAmount, KindValidation},
	{ErrInvalidConfig, KindValidation},
	{ErrPoolNotExist, KindValidation},
	{ErrPoolExists, KindValidation},
	{ErrPoolDisabled, KindValidation},
	{ErrNotEnoughLiquidity, KindValidation},
	{ErrPriceUnavailable, KindValidation},
	{ErrActionPaused, KindValidation},
	{ErrInsufficientCollateral, KindRisk},
	{ErrWouldTriggerLiquidation, KindRisk},
	{ErrInsufficientTargetCollateral, KindLiquidation},
	{ErrNotEligible, KindLiquidation},
	{ErrAssetNotCollateral, KindLiquidation},
	{ErrSelfLiquidation, KindLiquidation},
	{ErrNoDebt, KindLiquidation},
}

// KindOf reports the taxonomy of err, or KindUnknown when err did not
// originate from the engine.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	for _, entry := range kinds {
		if errors.Is(err, entry.err) {
			return entry.kind
		}
	}
	return KindUnknown
}

func wrapf(sentinel error, format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", sentinel, fmt.Sprintf(format, args...))
}
