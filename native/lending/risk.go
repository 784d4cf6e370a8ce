package lending

import (
	"fmt"

	"lendledger/native/lending/fixedpoint"
)

// Health is a health index. An account without debt has an infinite index.
type Health struct {
	Value    fixedpoint.Value
	Infinite bool
}

// Less orders health indices ascending with infinity last.
func (h Health) Less(o Health) bool {
	if h.Infinite {
		return false
	}
	if o.Infinite {
		return true
	}
	return h.Value.Lt(o.Value)
}

func (h Health) String() string {
	if h.Infinite {
		return "inf"
	}
	return h.Value.String()
}

// AccountRisk is the result of one valuation pass over an account.
type AccountRisk struct {
	Account string
	// SupplyValue is the USD value of every supplied balance.
	SupplyValue fixedpoint.Value
	// CollateralValue is the safe-factored USD value of collateral.
	CollateralValue fixedpoint.Value
	// BorrowedValue is the USD value of every debt.
	BorrowedValue fixedpoint.Value
	Health        Health
	// BorrowedAssets lists assets with outstanding debt, sorted.
	BorrowedAssets []string
}

// Eligible reports whether the account may be liquidated under params.
func (r *AccountRisk) Eligible(params Params) bool {
	if r == nil || r.Health.Infinite {
		return false
	}
	return r.Health.Value.Lt(params.LiquidationThreshold)
}

// Solvent reports collateral >= threshold * borrowed, the admissibility rule
// for borrows and collateral withdrawals.
func (r *AccountRisk) Solvent(params Params) (bool, error) {
	if r == nil || r.BorrowedValue.IsZero() {
		return true, nil
	}
	required, err := r.BorrowedValue.Mul(params.LiquidationThreshold)
	if err != nil {
		return false, err
	}
	return !r.CollateralValue.Lt(required), nil
}

// indebted reports whether any position of account carries debt principal.
func (s *session) indebted(account string) (bool, error) {
	assets, err := s.accountAssets(account)
	if err != nil {
		return false, err
	}
	for _, asset := range assets {
		pos, err := s.position(account, asset)
		if err != nil {
			return false, err
		}
		if !pos.Borrow.Principal.IsZero() {
			return true, nil
		}
	}
	return false, nil
}

// evaluate values every asset the account has touched in a single pass,
// reading staged positions so a projected change is seen before commit.
func (s *session) evaluate(account string) (*AccountRisk, error) {
	assets, err := s.accountAssets(account)
	if err != nil {
		return nil, err
	}
	risk := &AccountRisk{Account: account}
	for _, asset := range assets {
		pool, cfg, err := s.pool(asset)
		if err != nil {
			return nil, err
		}
		pos, err := s.position(account, asset)
		if err != nil {
			return nil, err
		}
		if err := accumulate(risk, pos, pool, cfg); err != nil {
			return nil, fmt.Errorf("lending engine: value %s/%s: %w", account, asset, err)
		}
	}
	if risk.BorrowedValue.IsZero() {
		risk.Health = Health{Infinite: true}
		return risk, nil
	}
	health, err := risk.CollateralValue.Div(risk.BorrowedValue)
	if err != nil {
		return nil, fmt.Errorf("lending engine: health %s: %w", account, err)
	}
	risk.Health = Health{Value: health}
	return risk, nil
}

func accumulate(risk *AccountRisk, pos *Position, pool *PoolState, cfg *AssetConfig) error {
	supplied, err := CurrentSupplied(pos, pool)
	if err != nil {
		return err
	}
	if !supplied.IsZero() {
		value, err := supplied.Mul(cfg.ExchangeRate)
		if err != nil {
			return err
		}
		if risk.SupplyValue, err = risk.SupplyValue.Add(value); err != nil {
			return err
		}
		if pos.IsCollateral {
			safe, err := value.Mul(cfg.SafeFactor)
			if err != nil {
				return err
			}
			if risk.CollateralValue, err = risk.CollateralValue.Add(safe); err != nil {
				return err
			}
		}
	}
	borrowed, err := CurrentBorrowed(pos, pool)
	if err != nil {
		return err
	}
	if !borrowed.IsZero() {
		value, err := borrowed.Mul(cfg.ExchangeRate)
		if err != nil {
			return err
		}
		if risk.BorrowedValue, err = risk.BorrowedValue.Add(value); err != nil {
			return err
		}
		risk.BorrowedAssets = append(risk.BorrowedAssets, pos.Asset)
	}
	return nil
}
