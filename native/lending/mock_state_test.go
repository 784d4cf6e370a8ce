package lending

import (
	"fmt"
	"sort"
	"testing"

	"lendledger/core/events"
	"lendledger/native/lending/fixedpoint"
)

type mockEngineState struct {
	configs   map[string]*AssetConfig
	pools     map[string]*PoolState
	positions map[string]*Position
	assets    map[string][]string
	bounds    map[string]fixedpoint.Value
	writes    int
}

func newMockEngineState() *mockEngineState {
	return &mockEngineState{
		configs:   make(map[string]*AssetConfig),
		pools:     make(map[string]*PoolState),
		positions: make(map[string]*Position),
		assets:    make(map[string][]string),
		bounds:    make(map[string]fixedpoint.Value),
	}
}

func (m *mockEngineState) key(account, asset string) string { return account + "/" + asset }

func (m *mockEngineState) GetAssetConfig(asset string) (*AssetConfig, bool, error) {
	cfg, ok := m.configs[asset]
	return cfg.Clone(), ok, nil
}

func (m *mockEngineState) PutAssetConfig(cfg *AssetConfig) error {
	m.writes++
	m.configs[cfg.Asset] = cfg.Clone()
	return nil
}

func (m *mockEngineState) GetPool(asset string) (*PoolState, bool, error) {
	pool, ok := m.pools[asset]
	return pool.Clone(), ok, nil
}

func (m *mockEngineState) PutPool(pool *PoolState) error {
	m.writes++
	m.pools[pool.Asset] = pool.Clone()
	return nil
}

func (m *mockEngineState) GetPosition(account, asset string) (*Position, bool, error) {
	pos, ok := m.positions[m.key(account, asset)]
	return pos.Clone(), ok, nil
}

func (m *mockEngineState) PutPosition(pos *Position) error {
	m.writes++
	m.positions[m.key(pos.Account, pos.Asset)] = pos.Clone()
	return nil
}

func (m *mockEngineState) GetAccountAssets(account string) ([]string, error) {
	return append([]string(nil), m.assets[account]...), nil
}

func (m *mockEngineState) PutAccountAssets(account string, assets []string) error {
	m.writes++
	if len(assets) == 0 {
		delete(m.assets, account)
		return nil
	}
	m.assets[account] = append([]string(nil), assets...)
	return nil
}

func (m *mockEngineState) ListAccounts(fn func(account string) bool) error {
	accounts := make([]string, 0, len(m.assets))
	for account := range m.assets {
		accounts = append(accounts, account)
	}
	sort.Strings(accounts)
	for _, account := range accounts {
		if !fn(account) {
			break
		}
	}
	return nil
}

func (m *mockEngineState) ListAssets() ([]string, error) {
	assets := make([]string, 0, len(m.configs))
	for asset := range m.configs {
		assets = append(assets, asset)
	}
	sort.Strings(assets)
	return assets, nil
}

func (m *mockEngineState) GetSupplyBoundary(asset string, day uint64) (fixedpoint.Value, bool, error) {
	index, ok := m.bounds[fmt.Sprintf("%s@%d", asset, day)]
	return index, ok, nil
}

func (m *mockEngineState) PutSupplyBoundary(asset string, day uint64, index fixedpoint.Value) error {
	m.writes++
	m.bounds[fmt.Sprintf("%s@%d", asset, day)] = index
	return nil
}

func val(s string) fixedpoint.Value { return fixedpoint.MustParse(s) }

func units(n uint64) fixedpoint.Value { return fixedpoint.FromUint64(n) }

type testAsset struct {
	asset       string
	rate        string
	safe        string
	initialRate string
	utilFactor  string
	closeFactor string
	discount    string
	eligible    bool
}

func (a testAsset) config() AssetConfig {
	cfg := DefaultAssetConfig(a.asset)
	cfg.CollateralEligible = a.eligible
	if a.rate != "" {
		cfg.ExchangeRate = val(a.rate)
	}
	if a.safe != "" {
		cfg.SafeFactor = val(a.safe)
	}
	if a.initialRate != "" {
		cfg.InitialInterestRate = val(a.initialRate)
	}
	if a.utilFactor != "" {
		cfg.UtilizationFactor = val(a.utilFactor)
	}
	if a.closeFactor != "" {
		cfg.CloseFactor = val(a.closeFactor)
	}
	if a.discount != "" {
		cfg.DiscountFactor = val(a.discount)
	}
	return cfg
}

func newTestEngine(t *testing.T, assets ...testAsset) (*Engine, *mockEngineState, *events.Recorder) {
	t.Helper()
	engine := NewEngine(DefaultParams())
	state := newMockEngineState()
	engine.SetState(state)
	rec := &events.Recorder{}
	engine.SetEmitter(rec)
	for _, a := range assets {
		if err := engine.InitPool(a.config()); err != nil {
			t.Fatalf("list %s: %v", a.asset, err)
		}
	}
	rec.Reset()
	return engine, state, rec
}

func mustSupply(t *testing.T, e *Engine, account, asset string, amount fixedpoint.Value, collateral bool) {
	t.Helper()
	if err := e.Supply(account, asset, amount, collateral); err != nil {
		t.Fatalf("supply %s %s %s: %v", account, amount, asset, err)
	}
}

func mustBorrow(t *testing.T, e *Engine, account, asset string, amount fixedpoint.Value) {
	t.Helper()
	if err := e.Borrow(account, asset, amount); err != nil {
		t.Fatalf("borrow %s %s %s: %v", account, amount, asset, err)
	}
}

func position(t *testing.T, e *Engine, account, asset string) *PositionView {
	t.Helper()
	view, err := e.Position(account, asset)
	if err != nil {
		t.Fatalf("position %s/%s: %v", account, asset, err)
	}
	return view
}

func storedPool(t *testing.T, state *mockEngineState, asset string) *PoolState {
	t.Helper()
	pool, ok := state.pools[asset]
	if !ok {
		t.Fatalf("pool %s missing", asset)
	}
	return pool.Clone()
}
