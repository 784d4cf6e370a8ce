package state

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"

	"lendledger/native/lending"
	"lendledger/native/lending/fixedpoint"
	"lendledger/storage"
	"lendledger/storage/trie"
)

// kvStore is the subset of storage.Database the manager reads and writes
// through. Both the backing database and a Txn overlay satisfy it.
type kvStore interface {
	Get(key []byte) ([]byte, error)
	Put(key []byte, value []byte) error
	Delete(key []byte) error
	Iterate(prefix []byte, fn func(key, value []byte) bool) error
}

// Manager persists lending records in a key-value store. Values are RLP
// encoded under readable prefixed keys; see prefixes.go.
type Manager struct {
	kv kvStore
	db storage.Database
}

// NewManager creates a state manager operating directly on db.
func NewManager(db storage.Database) *Manager {
	return &Manager{kv: db, db: db}
}

// Begin opens a write overlay on top of the manager's database. Reads through
// the returned transaction observe its own pending writes.
func (m *Manager) Begin() *Txn {
	overlay := newOverlay(m.db)
	return &Txn{Manager: &Manager{kv: overlay, db: m.db}, overlay: overlay}
}

// StateRoot returns the Merkle root over every committed lending record.
func (m *Manager) StateRoot() (common.Hash, error) {
	return trie.Root(m.db, lendingPrefix)
}

// KVPut RLP encodes value and stores it under key.
func (m *Manager) KVPut(key []byte, value interface{}) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	return m.kv.Put(key, encoded)
}

// KVGet decodes the value stored under key into out. The boolean reports
// whether the key existed.
func (m *Manager) KVGet(key []byte, out interface{}) (bool, error) {
	if len(key) == 0 {
		return false, fmt.Errorf("kv: key must not be empty")
	}
	data, err := m.kv.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if len(data) == 0 {
		return false, nil
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, err
	}
	return true, nil
}

// KVDelete removes key. Missing keys are ignored.
func (m *Manager) KVDelete(key []byte) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	return m.kv.Delete(key)
}

func (m *Manager) GetAssetConfig(asset string) (*lending.AssetConfig, bool, error) {
	var record assetRecord
	ok, err := m.KVGet(assetKey(asset), &record)
	if err != nil || !ok {
		return nil, ok, err
	}
	cfg, err := record.config()
	if err != nil {
		return nil, false, err
	}
	return cfg, true, nil
}

func (m *Manager) PutAssetConfig(cfg *lending.AssetConfig) error {
	if cfg == nil || cfg.Asset == "" {
		return fmt.Errorf("state: asset config requires an identifier")
	}
	return m.KVPut(assetKey(cfg.Asset), newAssetRecord(cfg))
}

func (m *Manager) GetPool(asset string) (*lending.PoolState, bool, error) {
	var record poolRecord
	ok, err := m.KVGet(poolKey(asset), &record)
	if err != nil || !ok {
		return nil, ok, err
	}
	pool, err := record.pool()
	if err != nil {
		return nil, false, err
	}
	return pool, true, nil
}

func (m *Manager) PutPool(pool *lending.PoolState) error {
	if pool == nil || pool.Asset == "" {
		return fmt.Errorf("state: pool requires an asset identifier")
	}
	return m.KVPut(poolKey(pool.Asset), newPoolRecord(pool))
}

func (m *Manager) GetPosition(account, asset string) (*lending.Position, bool, error) {
	var record positionRecord
	ok, err := m.KVGet(positionKey(account, asset), &record)
	if err != nil || !ok {
		return nil, ok, err
	}
	pos, err := record.position()
	if err != nil {
		return nil, false, err
	}
	return pos, true, nil
}

// PutPosition stores pos. A position with no principal and no collateral
// flag is deleted instead.
func (m *Manager) PutPosition(pos *lending.Position) error {
	if pos == nil || pos.Account == "" || pos.Asset == "" {
		return fmt.Errorf("state: position requires account and asset")
	}
	key := positionKey(pos.Account, pos.Asset)
	if pos.Empty() && !pos.IsCollateral {
		return m.KVDelete(key)
	}
	return m.KVPut(key, newPositionRecord(pos))
}

func (m *Manager) GetAccountAssets(account string) ([]string, error) {
	var record accountRecord
	ok, err := m.KVGet(accountKey(account), &record)
	if err != nil || !ok {
		return nil, err
	}
	return record.Assets, nil
}

// PutAccountAssets replaces the asset index of account. An empty list drops
// the account from the registry.
func (m *Manager) PutAccountAssets(account string, assets []string) error {
	if account == "" {
		return fmt.Errorf("state: account identifier required")
	}
	key := accountKey(account)
	if len(assets) == 0 {
		return m.KVDelete(key)
	}
	return m.KVPut(key, &accountRecord{Account: account, Assets: append([]string(nil), assets...)})
}

// ListAccounts walks every registered account in ascending key order.
func (m *Manager) ListAccounts(fn func(account string) bool) error {
	var decodeErr error
	err := m.kv.Iterate(accountPrefix, func(key, value []byte) bool {
		var record accountRecord
		if err := rlp.DecodeBytes(value, &record); err != nil {
			decodeErr = fmt.Errorf("state: decode account %q: %w", key, err)
			return false
		}
		return fn(record.Account)
	})
	if err != nil {
		return err
	}
	return decodeErr
}

// ListAssets returns every listed asset in ascending order.
func (m *Manager) ListAssets() ([]string, error) {
	assets := make([]string, 0)
	var decodeErr error
	err := m.kv.Iterate(assetPrefix, func(key, value []byte) bool {
		var record assetRecord
		if err := rlp.DecodeBytes(value, &record); err != nil {
			decodeErr = fmt.Errorf("state: decode asset %q: %w", key, err)
			return false
		}
		assets = append(assets, record.Asset)
		return true
	})
	if err != nil {
		return nil, err
	}
	if decodeErr != nil {
		return nil, decodeErr
	}
	return assets, nil
}

// GetSupplyBoundary returns the supply index recorded one day after the
// accrual of asset that started on day.
func (m *Manager) GetSupplyBoundary(asset string, day uint64) (fixedpoint.Value, bool, error) {
	var raw big.Int
	ok, err := m.KVGet(boundaryKey(asset, day), &raw)
	if err != nil || !ok {
		return fixedpoint.Value{}, ok, err
	}
	index, err := fixedpoint.FromBig(&raw)
	if err != nil {
		return fixedpoint.Value{}, false, fmt.Errorf("state: boundary %s@%d: %w", asset, day, err)
	}
	return index, true, nil
}

func (m *Manager) PutSupplyBoundary(asset string, day uint64, index fixedpoint.Value) error {
	if asset == "" {
		return fmt.Errorf("state: boundary requires an asset identifier")
	}
	return m.KVPut(boundaryKey(asset, day), index.Big())
}

// LedgerDay returns the last day an action was applied at, or zero.
func (m *Manager) LedgerDay() (uint64, error) {
	var day uint64
	if _, err := m.KVGet(ledgerDayKey, &day); err != nil {
		return 0, err
	}
	return day, nil
}

// SetLedgerDay records the day of the latest applied action.
func (m *Manager) SetLedgerDay(day uint64) error {
	return m.KVPut(ledgerDayKey, day)
}
