package lending

import (
	"fmt"
	"sort"

	"lendledger/core/events"
	"lendledger/native/lending/fixedpoint"
)

type engineState interface {
	GetAssetConfig(asset string) (*AssetConfig, bool, error)
	PutAssetConfig(cfg *AssetConfig) error
	GetPool(asset string) (*PoolState, bool, error)
	PutPool(pool *PoolState) error
	GetPosition(account, asset string) (*Position, bool, error)
	PutPosition(pos *Position) error
	GetAccountAssets(account string) ([]string, error)
	PutAccountAssets(account string, assets []string) error
	ListAccounts(fn func(account string) bool) error
	ListAssets() ([]string, error)
	GetSupplyBoundary(asset string, day uint64) (fixedpoint.Value, bool, error)
	PutSupplyBoundary(asset string, day uint64, index fixedpoint.Value) error
}

type positionKey struct {
	account string
	asset   string
}

type boundaryKey struct {
	asset string
	day   uint64
}

// session stages every read and write of a single action. Nothing reaches the
// backing state until commit, so a rejected action leaves no trace.
type session struct {
	state  engineState
	params Params
	day    uint64

	configs   map[string]*AssetConfig
	pools     map[string]*PoolState
	positions map[positionKey]*Position
	assets    map[string][]string
	// boundaries holds the supply boundary of every accrual run in this
	// session, keyed by the accrual's starting day.
	boundaries map[boundaryKey]fixedpoint.Value

	dirtyConfigs   map[string]struct{}
	dirtyPools     map[string]struct{}
	dirtyPositions map[positionKey]struct{}
	dirtyAssets    map[string]struct{}

	accruals []*Accrual
	events   []events.Event
}

func newSession(state engineState, params Params, day uint64) *session {
	return &session{
		state:          state,
		params:         params,
		day:            day,
		configs:        make(map[string]*AssetConfig),
		pools:          make(map[string]*PoolState),
		positions:      make(map[positionKey]*Position),
		assets:         make(map[string][]string),
		boundaries:     make(map[boundaryKey]fixedpoint.Value),
		dirtyConfigs:   make(map[string]struct{}),
		dirtyPools:     make(map[string]struct{}),
		dirtyPositions: make(map[positionKey]struct{}),
		dirtyAssets:    make(map[string]struct{}),
	}
}

func (s *session) config(asset string) (*AssetConfig, error) {
	if cfg, ok := s.configs[asset]; ok {
		return cfg, nil
	}
	cfg, ok, err := s.state.GetAssetConfig(asset)
	if err != nil {
		return nil, fmt.Errorf("lending engine: load asset %s: %w", asset, err)
	}
	if !ok || cfg == nil {
		return nil, fmt.Errorf("%w: %s", ErrPoolNotExist, asset)
	}
	cfg = cfg.Clone()
	s.configs[asset] = cfg
	return cfg, nil
}

// pool loads the asset's pool and rolls it forward to the session day.
func (s *session) pool(asset string) (*PoolState, *AssetConfig, error) {
	cfg, err := s.config(asset)
	if err != nil {
		return nil, nil, err
	}
	if pool, ok := s.pools[asset]; ok {
		return pool, cfg, nil
	}
	pool, ok, err := s.state.GetPool(asset)
	if err != nil {
		return nil, nil, fmt.Errorf("lending engine: load pool %s: %w", asset, err)
	}
	if !ok || pool == nil {
		return nil, nil, fmt.Errorf("%w: %s", ErrPoolNotExist, asset)
	}
	pool = pool.Clone()
	accrual, err := Accrue(pool, cfg, s.day, s.params)
	if err != nil {
		return nil, nil, err
	}
	s.pools[asset] = pool
	if accrual != nil {
		s.accruals = append(s.accruals, accrual)
		s.boundaries[boundaryKey{asset: asset, day: accrual.FromDay}] = accrual.SupplyBoundary
		s.dirtyPools[asset] = struct{}{}
		s.emit(events.LendingAccrual{
			Asset:       asset,
			FromDay:     accrual.FromDay,
			ToDay:       accrual.ToDay,
			SupplyIndex: accrual.SupplyIndex.Big(),
			BorrowIndex: accrual.BorrowIndex.Big(),
		})
	}
	return pool, cfg, nil
}

// enabledPool is pool with the listing's enabled switch enforced.
func (s *session) enabledPool(asset string) (*PoolState, *AssetConfig, error) {
	pool, cfg, err := s.pool(asset)
	if err != nil {
		return nil, nil, err
	}
	if !cfg.Enabled {
		return nil, nil, fmt.Errorf("%w: %s", ErrPoolDisabled, asset)
	}
	return pool, cfg, nil
}

func (s *session) markPool(pool *PoolState) {
	s.dirtyPools[pool.Asset] = struct{}{}
}

func (s *session) markConfig(cfg *AssetConfig) {
	s.configs[cfg.Asset] = cfg
	s.dirtyConfigs[cfg.Asset] = struct{}{}
}

func (s *session) position(account, asset string) (*Position, error) {
	key := positionKey{account: account, asset: asset}
	if pos, ok := s.positions[key]; ok {
		return pos, nil
	}
	pos, ok, err := s.state.GetPosition(account, asset)
	if err != nil {
		return nil, fmt.Errorf("lending engine: load position %s/%s: %w", account, asset, err)
	}
	if !ok || pos == nil {
		pos = &Position{Account: account, Asset: asset}
	} else {
		pos = pos.Clone()
		if err := s.mature(pos); err != nil {
			return nil, err
		}
	}
	s.positions[key] = pos
	return pos, nil
}

// mature folds pending supply into the principal once the pool has accrued
// past the day it was added.
func (s *session) mature(pos *Position) error {
	if pos.Supply.Pending.IsZero() {
		return nil
	}
	pool, _, err := s.pool(pos.Asset)
	if err != nil {
		return err
	}
	if pool.LastAccrualDay <= pos.Supply.LastDay {
		return nil
	}
	boundary, err := s.supplyBoundary(pos.Asset, pos.Supply.LastDay)
	if err != nil {
		return err
	}
	next, err := pos.Supply.mature(boundary)
	if err != nil {
		return fmt.Errorf("lending engine: mature %s/%s: %w", pos.Account, pos.Asset, err)
	}
	pos.Supply = next
	return nil
}

func (s *session) supplyBoundary(asset string, day uint64) (fixedpoint.Value, error) {
	if index, ok := s.boundaries[boundaryKey{asset: asset, day: day}]; ok {
		return index, nil
	}
	index, ok, err := s.state.GetSupplyBoundary(asset, day)
	if err != nil {
		return fixedpoint.Value{}, fmt.Errorf("lending engine: load supply boundary %s@%d: %w", asset, day, err)
	}
	if !ok {
		return fixedpoint.Value{}, fmt.Errorf("lending engine: no supply boundary for %s@%d", asset, day)
	}
	return index, nil
}

// markPosition stages pos for commit and keeps the account's asset index in
// step with it.
func (s *session) markPosition(pos *Position) error {
	key := positionKey{account: pos.Account, asset: pos.Asset}
	s.positions[key] = pos
	s.dirtyPositions[key] = struct{}{}

	assets, err := s.accountAssets(pos.Account)
	if err != nil {
		return err
	}
	idx := sort.SearchStrings(assets, pos.Asset)
	present := idx < len(assets) && assets[idx] == pos.Asset
	switch {
	case !pos.Empty() && !present:
		next := make([]string, 0, len(assets)+1)
		next = append(next, assets[:idx]...)
		next = append(next, pos.Asset)
		next = append(next, assets[idx:]...)
		s.assets[pos.Account] = next
		s.dirtyAssets[pos.Account] = struct{}{}
	case pos.Empty() && present:
		next := make([]string, 0, len(assets)-1)
		next = append(next, assets[:idx]...)
		next = append(next, assets[idx+1:]...)
		s.assets[pos.Account] = next
		s.dirtyAssets[pos.Account] = struct{}{}
	}
	return nil
}

func (s *session) accountAssets(account string) ([]string, error) {
	if assets, ok := s.assets[account]; ok {
		return assets, nil
	}
	assets, err := s.state.GetAccountAssets(account)
	if err != nil {
		return nil, fmt.Errorf("lending engine: load account %s: %w", account, err)
	}
	sorted := append([]string(nil), assets...)
	sort.Strings(sorted)
	s.assets[account] = sorted
	return sorted, nil
}

func (s *session) emit(evt events.Event) {
	s.events = append(s.events, evt)
}

// commit writes staged records in a fixed order so that replays produce the
// same write sequence.
func (s *session) commit() error {
	for _, asset := range sortedKeys(s.dirtyConfigs) {
		if err := s.state.PutAssetConfig(s.configs[asset]); err != nil {
			return fmt.Errorf("lending engine: persist asset %s: %w", asset, err)
		}
	}
	for _, asset := range sortedKeys(s.dirtyPools) {
		if err := s.state.PutPool(s.pools[asset]); err != nil {
			return fmt.Errorf("lending engine: persist pool %s: %w", asset, err)
		}
	}
	boundaries := make([]boundaryKey, 0, len(s.boundaries))
	for key := range s.boundaries {
		boundaries = append(boundaries, key)
	}
	sort.Slice(boundaries, func(i, j int) bool {
		if boundaries[i].asset != boundaries[j].asset {
			return boundaries[i].asset < boundaries[j].asset
		}
		return boundaries[i].day < boundaries[j].day
	})
	for _, key := range boundaries {
		if err := s.state.PutSupplyBoundary(key.asset, key.day, s.boundaries[key]); err != nil {
			return fmt.Errorf("lending engine: persist supply boundary %s@%d: %w", key.asset, key.day, err)
		}
	}
	keys := make([]positionKey, 0, len(s.dirtyPositions))
	for key := range s.dirtyPositions {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].account != keys[j].account {
			return keys[i].account < keys[j].account
		}
		return keys[i].asset < keys[j].asset
	})
	for _, key := range keys {
		if err := s.state.PutPosition(s.positions[key]); err != nil {
			return fmt.Errorf("lending engine: persist position %s/%s: %w", key.account, key.asset, err)
		}
	}
	for _, account := range sortedKeys(s.dirtyAssets) {
		if err := s.state.PutAccountAssets(account, s.assets[account]); err != nil {
			return fmt.Errorf("lending engine: persist account %s: %w", account, err)
		}
	}
	return nil
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
