package lending

import (
	"errors"
	"fmt"
	"time"

	"lendledger/core/events"
	nativecommon "lendledger/native/common"
	"lendledger/native/lending/fixedpoint"
)

const moduleName = "lending"

// Action names used for pause switches and metrics labels.
const (
	ActionSupply        = "supply"
	ActionWithdraw      = "withdraw"
	ActionBorrow        = "borrow"
	ActionRepay         = "repay"
	ActionLiquidate     = "liquidate"
	ActionSetCollateral = "set_collateral"
)

const secondsPerDay = 86_400

// DayFromTime truncates t to its UTC day number.
func DayFromTime(t time.Time) uint64 {
	unix := t.UTC().Unix()
	if unix < 0 {
		return 0
	}
	return uint64(unix / secondsPerDay)
}

// Engine orchestrates the state transitions of the lending ledger. It is not
// safe for concurrent use; the host serialises every call.
type Engine struct {
	state        engineState
	params       Params
	day          uint64
	pauses       nativecommon.PauseView
	actionPauses ActionPauses
	emitter      events.Emitter
}

// NewEngine constructs an engine bound to an immutable parameter set.
func NewEngine(params Params) *Engine {
	return &Engine{params: params, emitter: events.NoopEmitter{}}
}

// SetState wires the engine to the external persistence layer.
func (e *Engine) SetState(state engineState) { e.state = state }

func (e *Engine) SetPauses(p nativecommon.PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
}

// SetActionPauses configures the per-flow pause switches.
func (e *Engine) SetActionPauses(p ActionPauses) {
	if e == nil {
		return
	}
	e.actionPauses = p
}

// SetEmitter routes committed events to emitter.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if e == nil {
		return
	}
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	e.emitter = emitter
}

// SetDay records the UTC day number used for accrual.
func (e *Engine) SetDay(day uint64) {
	if e == nil {
		return
	}
	e.day = day
}

// Day returns the configured accrual day.
func (e *Engine) Day() uint64 {
	if e == nil {
		return 0
	}
	return e.day
}

// Params returns the engine's parameter set.
func (e *Engine) Params() Params {
	if e == nil {
		return DefaultParams()
	}
	return e.params
}

func (e *Engine) read() (*session, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	return newSession(e.state, e.params, e.day), nil
}

func (e *Engine) begin(action string) (*session, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if e.actionPauses.paused(action) {
		return nil, fmt.Errorf("%w: %s", ErrActionPaused, action)
	}
	return newSession(e.state, e.params, e.day), nil
}

func (e *Engine) finish(s *session) error {
	if err := s.commit(); err != nil {
		return err
	}
	for _, evt := range s.events {
		e.emitter.Emit(evt)
	}
	return nil
}

// InitPool registers an asset and creates its pool with unit indices.
func (e *Engine) InitPool(cfg AssetConfig) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	cfg.Asset = NormalizeAsset(cfg.Asset)
	if err := cfg.Validate(); err != nil {
		return err
	}
	_, exists, err := e.state.GetPool(cfg.Asset)
	if err != nil {
		return fmt.Errorf("lending engine: load pool %s: %w", cfg.Asset, err)
	}
	if exists {
		return fmt.Errorf("%w: %s", ErrPoolExists, cfg.Asset)
	}
	if err := e.state.PutAssetConfig(cfg.Clone()); err != nil {
		return err
	}
	if err := e.state.PutPool(NewPoolState(cfg.Asset, e.day)); err != nil {
		return err
	}
	e.emitter.Emit(events.LendingPoolUpdate{
		Type:         events.TypeLendingPoolListed,
		Asset:        cfg.Asset,
		ExchangeRate: cfg.ExchangeRate.Big(),
		Enabled:      cfg.Enabled,
	})
	return nil
}

// SetExchangeRate refreshes the oracle price of asset.
func (e *Engine) SetExchangeRate(asset string, rate fixedpoint.Value) error {
	s, err := e.read()
	if err != nil {
		return err
	}
	cfg, err := s.config(NormalizeAsset(asset))
	if err != nil {
		return err
	}
	cfg.ExchangeRate = rate
	s.markConfig(cfg)
	s.emit(events.LendingPoolUpdate{
		Type:         events.TypeLendingRateUpdated,
		Asset:        cfg.Asset,
		ExchangeRate: rate.Big(),
		Enabled:      cfg.Enabled,
	})
	return e.finish(s)
}

// SetPoolEnabled toggles every entry point for asset.
func (e *Engine) SetPoolEnabled(asset string, enabled bool) error {
	s, err := e.read()
	if err != nil {
		return err
	}
	cfg, err := s.config(NormalizeAsset(asset))
	if err != nil {
		return err
	}
	cfg.Enabled = enabled
	s.markConfig(cfg)
	return e.finish(s)
}

// Accrue rolls asset's indices forward to the engine day and persists them.
func (e *Engine) Accrue(asset string) error {
	s, err := e.read()
	if err != nil {
		return err
	}
	if _, _, err := s.pool(NormalizeAsset(asset)); err != nil {
		return err
	}
	return e.finish(s)
}

// Supply credits amount of asset to account. When asCollateral is set the
// position is flagged as collateral, which requires an eligible asset.
func (e *Engine) Supply(account, asset string, amount fixedpoint.Value, asCollateral bool) error {
	s, err := e.begin(ActionSupply)
	if err != nil {
		return err
	}
	account, asset = NormalizeAccount(account), NormalizeAsset(asset)
	if amount.IsZero() {
		return ErrInvalidAmount
	}
	pool, cfg, err := s.enabledPool(asset)
	if err != nil {
		return err
	}
	pos, err := s.position(account, asset)
	if err != nil {
		return err
	}
	if err := ApplySupply(pos, pool, cfg, amount, asCollateral); err != nil {
		return err
	}
	if err := Deposit(pool, amount); err != nil {
		return err
	}
	s.markPool(pool)
	if err := s.markPosition(pos); err != nil {
		return err
	}
	s.emit(events.LendingAction{
		Type:       events.TypeLendingSupplied,
		Account:    account,
		Asset:      asset,
		Amount:     amount.Big(),
		Collateral: pos.IsCollateral,
	})
	return e.finish(s)
}

// Withdraw removes amount of asset from account's supply. Withdrawing
// collateral must leave the account at or above the liquidation threshold.
func (e *Engine) Withdraw(account, asset string, amount fixedpoint.Value) error {
	s, err := e.begin(ActionWithdraw)
	if err != nil {
		return err
	}
	account, asset = NormalizeAccount(account), NormalizeAsset(asset)
	if amount.IsZero() {
		return ErrInvalidAmount
	}
	pool, _, err := s.enabledPool(asset)
	if err != nil {
		return err
	}
	pos, err := s.position(account, asset)
	if err != nil {
		return err
	}
	if err := ApplyWithdraw(pos, pool, amount); err != nil {
		return err
	}
	if err := WithdrawFromPool(pool, amount); err != nil {
		return err
	}
	s.markPool(pool)
	if err := s.markPosition(pos); err != nil {
		return err
	}
	if pos.IsCollateral {
		if err := requireSolvent(s, account, ErrWouldTriggerLiquidation); err != nil {
			return err
		}
	}
	s.emit(events.LendingAction{
		Type:    events.TypeLendingWithdrawn,
		Account: account,
		Asset:   asset,
		Amount:  amount.Big(),
	})
	return e.finish(s)
}

// Borrow draws amount of asset as debt for account.
func (e *Engine) Borrow(account, asset string, amount fixedpoint.Value) error {
	s, err := e.begin(ActionBorrow)
	if err != nil {
		return err
	}
	account, asset = NormalizeAccount(account), NormalizeAsset(asset)
	if amount.IsZero() {
		return ErrInvalidAmount
	}
	pool, cfg, err := s.enabledPool(asset)
	if err != nil {
		return err
	}
	if cfg.ExchangeRate.IsZero() {
		return fmt.Errorf("%w: %s", ErrPriceUnavailable, asset)
	}
	pos, err := s.position(account, asset)
	if err != nil {
		return err
	}
	if err := lend(pool, amount); err != nil {
		return err
	}
	if err := ApplyBorrow(pos, pool, amount); err != nil {
		return err
	}
	s.markPool(pool)
	if err := s.markPosition(pos); err != nil {
		return err
	}
	if err := requireSolvent(s, account, ErrInsufficientCollateral); err != nil {
		return err
	}
	s.emit(events.LendingAction{
		Type:    events.TypeLendingBorrowed,
		Account: account,
		Asset:   asset,
		Amount:  amount.Big(),
	})
	return e.finish(s)
}

// Repay reduces account's debt in asset by amount. Amounts above the live debt
// are rejected with ErrRepayExceedsDebt.
func (e *Engine) Repay(account, asset string, amount fixedpoint.Value) error {
	s, err := e.begin(ActionRepay)
	if err != nil {
		return err
	}
	account, asset = NormalizeAccount(account), NormalizeAsset(asset)
	if amount.IsZero() {
		return ErrInvalidAmount
	}
	pool, _, err := s.enabledPool(asset)
	if err != nil {
		return err
	}
	pos, err := s.position(account, asset)
	if err != nil {
		return err
	}
	if err := ApplyRepay(pos, pool, amount); err != nil {
		return err
	}
	if err := settleDebt(pool, amount); err != nil {
		return err
	}
	s.markPool(pool)
	if err := s.markPosition(pos); err != nil {
		return err
	}
	s.emit(events.LendingAction{
		Type:    events.TypeLendingRepaid,
		Account: account,
		Asset:   asset,
		Amount:  amount.Big(),
	})
	return e.finish(s)
}

// SetCollateral flags or unflags account's supply of asset as collateral.
func (e *Engine) SetCollateral(account, asset string, enabled bool) error {
	s, err := e.begin(ActionSetCollateral)
	if err != nil {
		return err
	}
	account, asset = NormalizeAccount(account), NormalizeAsset(asset)
	_, cfg, err := s.enabledPool(asset)
	if err != nil {
		return err
	}
	if enabled && !cfg.CollateralEligible {
		return ErrIneligibleCollateral
	}
	pos, err := s.position(account, asset)
	if err != nil {
		return err
	}
	if pos.IsCollateral == enabled {
		return nil
	}
	pos.IsCollateral = enabled
	if err := s.markPosition(pos); err != nil {
		return err
	}
	if !enabled {
		if err := requireSolvent(s, account, ErrWouldTriggerLiquidation); err != nil {
			return err
		}
	}
	s.emit(events.LendingAction{
		Type:       events.TypeLendingCollateralToggled,
		Account:    account,
		Asset:      asset,
		Collateral: enabled,
	})
	return e.finish(s)
}

// Liquidate repays part of target's debt in borrowedAsset on its behalf and
// transfers the discounted equivalent of collateralAsset to caller. The
// returned Liquidation is non-nil whenever the request reached the engine and
// records the terminal state.
func (e *Engine) Liquidate(caller, target, borrowedAsset, collateralAsset string, repay fixedpoint.Value) (*Liquidation, error) {
	s, err := e.begin(ActionLiquidate)
	if err != nil {
		return nil, err
	}
	req := LiquidationRequest{
		Caller:          NormalizeAccount(caller),
		Target:          NormalizeAccount(target),
		BorrowedAsset:   NormalizeAsset(borrowedAsset),
		CollateralAsset: NormalizeAsset(collateralAsset),
		RepayAmount:     repay,
	}
	result, err := newLiquidation(s, req).run()
	if err != nil {
		return result, err
	}
	if err := e.finish(s); err != nil {
		result.State = LiquidationRejected
		result.Reason = err
		return result, err
	}
	return result, nil
}

func requireSolvent(s *session, account string, failure error) error {
	risk, err := s.evaluate(account)
	if err != nil {
		return err
	}
	ok, err := risk.Solvent(s.params)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: collateral %s, borrowed %s", failure, risk.CollateralValue, risk.BorrowedValue)
	}
	return nil
}

// PositionView is a position projected onto the current day.
type PositionView struct {
	Position
	Supplied fixedpoint.Value
	Borrowed fixedpoint.Value
}

// Pool returns asset's pool rolled forward to the engine day without
// persisting the roll.
func (e *Engine) Pool(asset string) (*PoolState, *AssetConfig, error) {
	s, err := e.read()
	if err != nil {
		return nil, nil, err
	}
	pool, cfg, err := s.pool(NormalizeAsset(asset))
	if err != nil {
		return nil, nil, err
	}
	return pool.Clone(), cfg.Clone(), nil
}

// Position returns account's live balances in asset.
func (e *Engine) Position(account, asset string) (*PositionView, error) {
	s, err := e.read()
	if err != nil {
		return nil, err
	}
	account, asset = NormalizeAccount(account), NormalizeAsset(asset)
	pool, _, err := s.pool(asset)
	if err != nil {
		return nil, err
	}
	pos, err := s.position(account, asset)
	if err != nil {
		return nil, err
	}
	supplied, err := CurrentSupplied(pos, pool)
	if err != nil {
		return nil, err
	}
	borrowed, err := CurrentBorrowed(pos, pool)
	if err != nil {
		return nil, err
	}
	return &PositionView{Position: *pos.Clone(), Supplied: supplied, Borrowed: borrowed}, nil
}

// UserInfo values every position of account at the engine day.
func (e *Engine) UserInfo(account string) (*AccountRisk, error) {
	s, err := e.read()
	if err != nil {
		return nil, err
	}
	return s.evaluate(NormalizeAccount(account))
}

// AccountAssets lists the assets account currently holds a balance in.
func (e *Engine) AccountAssets(account string) ([]string, error) {
	s, err := e.read()
	if err != nil {
		return nil, err
	}
	assets, err := s.accountAssets(NormalizeAccount(account))
	if err != nil {
		return nil, err
	}
	return append([]string(nil), assets...), nil
}

// SupplyRate returns the annual supply rate of asset at the engine day.
func (e *Engine) SupplyRate(asset string) (fixedpoint.Value, error) {
	pool, cfg, err := e.Pool(asset)
	if err != nil {
		return fixedpoint.Value{}, err
	}
	return SupplyRate(cfg, pool)
}

// BorrowRate returns the annual borrow rate of asset at the engine day.
func (e *Engine) BorrowRate(asset string) (fixedpoint.Value, error) {
	pool, cfg, err := e.Pool(asset)
	if err != nil {
		return fixedpoint.Value{}, err
	}
	return BorrowRate(cfg, pool)
}

// Assets lists every listed asset.
func (e *Engine) Assets() ([]string, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	return e.state.ListAssets()
}

// HealthRankings ranks every indebted account by ascending health index at
// the engine day. Ties are broken by account identifier. Accounts without
// debt are never valued; an account whose valuation overflows is left out and
// reported by Skipped instead of failing the whole ranking.
func (e *Engine) HealthRankings() (*HealthRanking, error) {
	s, err := e.read()
	if err != nil {
		return nil, err
	}
	accounts := make([]string, 0)
	if err := e.state.ListAccounts(func(account string) bool {
		accounts = append(accounts, account)
		return true
	}); err != nil {
		return nil, fmt.Errorf("lending engine: list accounts: %w", err)
	}
	ranking := newHealthRanking()
	for _, account := range accounts {
		indebted, err := s.indebted(account)
		if err != nil {
			return nil, err
		}
		if !indebted {
			continue
		}
		risk, err := s.evaluate(account)
		if errors.Is(err, fixedpoint.ErrOverflow) {
			ranking.skip(account)
			continue
		}
		if err != nil {
			return nil, err
		}
		if risk.BorrowedValue.IsZero() {
			continue
		}
		ranking.insert(RankEntry{
			Account:        account,
			Health:         risk.Health,
			BorrowedAssets: risk.BorrowedAssets,
		})
	}
	return ranking, nil
}
