package ledger

import (
	"errors"
	"log/slog"

	"lendledger/native/lending"
)

// ErrRankingCursor is returned when a ranking page starts after an account
// that is not ranked.
var ErrRankingCursor = errors.New("ledger: ranking cursor not found")

// PoolView is a pool projected to the read day.
type PoolView struct {
	Asset              string `json:"asset"`
	Enabled            bool   `json:"enabled"`
	CollateralEligible bool   `json:"collateral_eligible"`
	ExchangeRate       string `json:"exchange_rate"`
	SafeFactor         string `json:"safe_factor"`
	CloseFactor        string `json:"close_factor"`
	DiscountFactor     string `json:"discount_factor"`
	TotalSupply        string `json:"total_supply"`
	TotalBorrow        string `json:"total_borrow"`
	SupplyIndex        string `json:"supply_index"`
	BorrowIndex        string `json:"borrow_index"`
	Utilization        string `json:"utilization"`
	SupplyRate         string `json:"supply_rate"`
	BorrowRate         string `json:"borrow_rate"`
	LastAccrualDay     uint64 `json:"last_accrual_day"`
}

// PositionView is one asset of an account.
type PositionView struct {
	Asset      string `json:"asset"`
	Supplied   string `json:"supplied"`
	Borrowed   string `json:"borrowed"`
	Collateral bool   `json:"collateral"`
}

// AccountView is an account's valuation and positions.
type AccountView struct {
	Account         string         `json:"account"`
	Day             uint64         `json:"day"`
	SupplyValue     string         `json:"supply_value"`
	CollateralValue string         `json:"collateral_value"`
	BorrowedValue   string         `json:"borrowed_value"`
	Health          string         `json:"health"`
	Liquidatable    bool           `json:"liquidatable"`
	Positions       []PositionView `json:"positions"`
}

// RankView is one row of the health ranking.
type RankView struct {
	Account        string   `json:"account"`
	Health         string   `json:"health"`
	BorrowedAssets []string `json:"borrowed_assets"`
	Liquidatable   bool     `json:"liquidatable"`
}

// RankingPage is a slice of the ranking with the cursor for the next page.
type RankingPage struct {
	Day     uint64     `json:"day"`
	Total   int        `json:"total"`
	Entries []RankView `json:"entries"`
	Next    string     `json:"next,omitempty"`
	// Skipped lists indebted accounts whose valuation overflowed.
	Skipped []string `json:"skipped,omitempty"`
}

// Pools returns every pool in asset order.
func (l *Ledger) Pools() ([]PoolView, error) {
	out := make([]PoolView, 0)
	err := l.view(func(engine *lending.Engine, _ uint64) error {
		assets, err := engine.Assets()
		if err != nil {
			return err
		}
		for _, asset := range assets {
			view, err := poolView(engine, asset)
			if err != nil {
				return err
			}
			out = append(out, *view)
		}
		return nil
	})
	return out, err
}

// Pool returns a single pool.
func (l *Ledger) Pool(asset string) (*PoolView, error) {
	var out *PoolView
	err := l.view(func(engine *lending.Engine, _ uint64) error {
		view, err := poolView(engine, asset)
		out = view
		return err
	})
	return out, err
}

func poolView(engine *lending.Engine, asset string) (*PoolView, error) {
	pool, cfg, err := engine.Pool(asset)
	if err != nil {
		return nil, err
	}
	utilization, err := lending.Utilization(pool)
	if err != nil {
		return nil, err
	}
	borrowRate, err := lending.BorrowRate(cfg, pool)
	if err != nil {
		return nil, err
	}
	supplyRate, err := lending.SupplyRate(cfg, pool)
	if err != nil {
		return nil, err
	}
	return &PoolView{
		Asset:              pool.Asset,
		Enabled:            cfg.Enabled,
		CollateralEligible: cfg.CollateralEligible,
		ExchangeRate:       cfg.ExchangeRate.String(),
		SafeFactor:         cfg.SafeFactor.String(),
		CloseFactor:        cfg.CloseFactor.String(),
		DiscountFactor:     cfg.DiscountFactor.String(),
		TotalSupply:        pool.TotalSupply.String(),
		TotalBorrow:        pool.TotalBorrow.String(),
		SupplyIndex:        pool.SupplyIndex.String(),
		BorrowIndex:        pool.BorrowIndex.String(),
		Utilization:        utilization.String(),
		SupplyRate:         supplyRate.String(),
		BorrowRate:         borrowRate.String(),
		LastAccrualDay:     pool.LastAccrualDay,
	}, nil
}

// Account values account at the read day.
func (l *Ledger) Account(account string) (*AccountView, error) {
	var out *AccountView
	err := l.view(func(engine *lending.Engine, day uint64) error {
		risk, err := engine.UserInfo(account)
		if err != nil {
			return err
		}
		assets, err := engine.AccountAssets(account)
		if err != nil {
			return err
		}
		view := &AccountView{
			Account:         risk.Account,
			Day:             day,
			SupplyValue:     risk.SupplyValue.String(),
			CollateralValue: risk.CollateralValue.String(),
			BorrowedValue:   risk.BorrowedValue.String(),
			Health:          risk.Health.String(),
			Liquidatable:    risk.Eligible(l.params),
			Positions:       make([]PositionView, 0, len(assets)),
		}
		for _, asset := range assets {
			pos, err := engine.Position(account, asset)
			if err != nil {
				return err
			}
			view.Positions = append(view.Positions, PositionView{
				Asset:      pos.Asset,
				Supplied:   pos.Supplied.String(),
				Borrowed:   pos.Borrowed.String(),
				Collateral: pos.IsCollateral,
			})
		}
		out = view
		return nil
	})
	return out, err
}

// Rankings returns up to limit accounts in ascending health order, starting
// after the account named by after. limit <= 0 returns every entry.
func (l *Ledger) Rankings(after string, limit int) (*RankingPage, error) {
	var page *RankingPage
	err := l.view(func(engine *lending.Engine, day uint64) error {
		ranking, err := engine.HealthRankings()
		if err != nil {
			return err
		}
		if after != "" && !ranking.SeekAfter(lending.NormalizeAccount(after)) {
			return ErrRankingCursor
		}
		entries := ranking.Take(limit)
		page = &RankingPage{
			Day:     day,
			Total:   ranking.Len(),
			Entries: make([]RankView, 0, len(entries)),
			Skipped: ranking.Skipped(),
		}
		if len(page.Skipped) > 0 {
			l.logger.Warn("accounts left out of health ranking",
				slog.Uint64("day", day),
				slog.Any("accounts", page.Skipped))
		}
		for _, entry := range entries {
			page.Entries = append(page.Entries, l.rankView(entry))
		}
		if limit > 0 && len(entries) == limit {
			if _, more := ranking.Next(); more {
				page.Next = entries[len(entries)-1].Account
			}
		}
		l.metrics.SetLiquidatable(countLiquidatable(ranking, l.params))
		return nil
	})
	return page, err
}

func (l *Ledger) rankView(entry lending.RankEntry) RankView {
	return RankView{
		Account:        entry.Account,
		Health:         entry.Health.String(),
		BorrowedAssets: append([]string(nil), entry.BorrowedAssets...),
		Liquidatable:   !entry.Health.Infinite && entry.Health.Value.Lt(l.params.LiquidationThreshold),
	}
}

func countLiquidatable(ranking *lending.HealthRanking, params lending.Params) int {
	ranking.Reset()
	count := 0
	for {
		entry, ok := ranking.Next()
		if !ok || entry.Health.Infinite || !entry.Health.Value.Lt(params.LiquidationThreshold) {
			return count
		}
		count++
	}
}
