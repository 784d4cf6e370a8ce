package ledger

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"lendledger/config"
	"lendledger/native/lending/fixedpoint"
)

// Action types accepted by Apply.
const (
	ActionSupply         = "supply"
	ActionWithdraw       = "withdraw"
	ActionBorrow         = "borrow"
	ActionRepay          = "repay"
	ActionLiquidate      = "liquidate"
	ActionSetRate        = "set_rate"
	ActionInitPool       = "init_pool"
	ActionSetCollateral  = "set_collateral"
	ActionSetPoolEnabled = "set_pool_enabled"
	ActionAccrue         = "accrue"
)

var (
	// ErrInvalidAction marks a malformed action record. It is never an engine
	// rejection.
	ErrInvalidAction = errors.New("ledger: invalid action")
	// ErrDayRegressed is returned for an action dated before the last applied
	// one.
	ErrDayRegressed = errors.New("ledger: action day precedes ledger day")
)

// Action is one entry of the ledger's input log. Amounts and rates are decimal
// strings with up to 18 fractional digits.
type Action struct {
	Type            string `json:"type"`
	Account         string `json:"account,omitempty"`
	Asset           string `json:"asset,omitempty"`
	Amount          string `json:"amount,omitempty"`
	Collateral      bool   `json:"collateral,omitempty"`
	Target          string `json:"target,omitempty"`
	BorrowedAsset   string `json:"borrowed_asset,omitempty"`
	CollateralAsset string `json:"collateral_asset,omitempty"`
	Rate            string `json:"rate,omitempty"`
	// Day is the UTC day number; zero means the ledger clock.
	Day uint64 `json:"day,omitempty"`
	// Enabled is the target state of set_pool_enabled.
	Enabled *bool `json:"enabled,omitempty"`
	// Listing overrides pool parameters for init_pool.
	Listing *config.AssetListing `json:"listing,omitempty"`
}

func invalidf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidAction, fmt.Sprintf(format, args...))
}

// Validate checks the fields each action type needs. It does not consult
// state.
func (a Action) Validate() error {
	switch a.Type {
	case ActionSupply, ActionWithdraw, ActionBorrow, ActionRepay:
		if err := required(map[string]string{"account": a.Account, "asset": a.Asset, "amount": a.Amount}); err != nil {
			return err
		}
	case ActionLiquidate:
		if err := required(map[string]string{
			"account":          a.Account,
			"target":           a.Target,
			"borrowed_asset":   a.BorrowedAsset,
			"collateral_asset": a.CollateralAsset,
			"amount":           a.Amount,
		}); err != nil {
			return err
		}
	case ActionSetRate:
		if err := required(map[string]string{"asset": a.Asset, "rate": a.Rate}); err != nil {
			return err
		}
	case ActionInitPool:
		if strings.TrimSpace(a.Asset) == "" && (a.Listing == nil || strings.TrimSpace(a.Listing.Asset) == "") {
			return invalidf("init_pool requires asset")
		}
	case ActionSetCollateral:
		if err := required(map[string]string{"account": a.Account, "asset": a.Asset}); err != nil {
			return err
		}
	case ActionSetPoolEnabled:
		if err := required(map[string]string{"asset": a.Asset}); err != nil {
			return err
		}
		if a.Enabled == nil {
			return invalidf("set_pool_enabled requires enabled")
		}
	case ActionAccrue:
		if err := required(map[string]string{"asset": a.Asset}); err != nil {
			return err
		}
	case "":
		return invalidf("type required")
	default:
		return invalidf("unknown type %q", a.Type)
	}
	if a.Amount != "" {
		if _, err := parseAmount("amount", a.Amount); err != nil {
			return err
		}
	}
	if a.Rate != "" {
		if _, err := parseAmount("rate", a.Rate); err != nil {
			return err
		}
	}
	return nil
}

func required(fields map[string]string) error {
	missing := make([]string, 0)
	for _, name := range []string{"account", "target", "asset", "borrowed_asset", "collateral_asset", "amount", "rate"} {
		value, ok := fields[name]
		if ok && strings.TrimSpace(value) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return invalidf("missing %s", strings.Join(missing, ", "))
	}
	return nil
}

func parseAmount(field, raw string) (fixedpoint.Value, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return fixedpoint.Value{}, invalidf("%s %q: %v", field, raw, err)
	}
	v, err := fixedpoint.FromDecimal(d)
	if err != nil {
		return fixedpoint.Value{}, invalidf("%s %q: %v", field, raw, err)
	}
	return v, nil
}

// assets lists the pools an action may touch, for metric refreshes.
func (a Action) assets() []string {
	out := make([]string, 0, 2)
	for _, asset := range []string{a.Asset, a.BorrowedAsset, a.CollateralAsset} {
		if asset = strings.ToUpper(strings.TrimSpace(asset)); asset != "" {
			out = append(out, asset)
		}
	}
	if a.Listing != nil && len(out) == 0 {
		out = append(out, strings.ToUpper(strings.TrimSpace(a.Listing.Asset)))
	}
	return out
}
