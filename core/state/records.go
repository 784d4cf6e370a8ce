package state

import (
	"fmt"
	"math/big"

	"lendledger/native/lending"
	"lendledger/native/lending/fixedpoint"
)

// Stored records use *big.Int for every fixed-point field so the RLP encoding
// stays independent of the in-memory representation.

type assetRecord struct {
	Asset               string
	Enabled             bool
	ExchangeRate        *big.Int
	SafeFactor          *big.Int
	CollateralEligible  bool
	InitialInterestRate *big.Int
	UtilizationFactor   *big.Int
	CloseFactor         *big.Int
	DiscountFactor      *big.Int
}

type poolRecord struct {
	Asset          string
	TotalSupply    *big.Int
	TotalBorrow    *big.Int
	SupplyIndex    *big.Int
	BorrowIndex    *big.Int
	LastAccrualDay uint64
}

type balanceRecord struct {
	Principal *big.Int
	Snapshot  *big.Int
	Pending   *big.Int
	LastDay   uint64
}

type positionRecord struct {
	Account      string
	Asset        string
	Supply       balanceRecord
	Borrow       balanceRecord
	IsCollateral bool
}

type accountRecord struct {
	Account string
	Assets  []string
}

func newAssetRecord(cfg *lending.AssetConfig) *assetRecord {
	return &assetRecord{
		Asset:               cfg.Asset,
		Enabled:             cfg.Enabled,
		ExchangeRate:        cfg.ExchangeRate.Big(),
		SafeFactor:          cfg.SafeFactor.Big(),
		CollateralEligible:  cfg.CollateralEligible,
		InitialInterestRate: cfg.InitialInterestRate.Big(),
		UtilizationFactor:   cfg.UtilizationFactor.Big(),
		CloseFactor:         cfg.CloseFactor.Big(),
		DiscountFactor:      cfg.DiscountFactor.Big(),
	}
}

func (r *assetRecord) config() (*lending.AssetConfig, error) {
	cfg := &lending.AssetConfig{
		Asset:              r.Asset,
		Enabled:            r.Enabled,
		CollateralEligible: r.CollateralEligible,
	}
	fields := []struct {
		dst *fixedpoint.Value
		src *big.Int
	}{
		{&cfg.ExchangeRate, r.ExchangeRate},
		{&cfg.SafeFactor, r.SafeFactor},
		{&cfg.InitialInterestRate, r.InitialInterestRate},
		{&cfg.UtilizationFactor, r.UtilizationFactor},
		{&cfg.CloseFactor, r.CloseFactor},
		{&cfg.DiscountFactor, r.DiscountFactor},
	}
	for _, f := range fields {
		v, err := fixedpoint.FromBig(f.src)
		if err != nil {
			return nil, fmt.Errorf("state: asset %s: %w", r.Asset, err)
		}
		*f.dst = v
	}
	return cfg, nil
}

func newPoolRecord(pool *lending.PoolState) *poolRecord {
	return &poolRecord{
		Asset:          pool.Asset,
		TotalSupply:    pool.TotalSupply.Big(),
		TotalBorrow:    pool.TotalBorrow.Big(),
		SupplyIndex:    pool.SupplyIndex.Big(),
		BorrowIndex:    pool.BorrowIndex.Big(),
		LastAccrualDay: pool.LastAccrualDay,
	}
}

func (r *poolRecord) pool() (*lending.PoolState, error) {
	pool := &lending.PoolState{Asset: r.Asset, LastAccrualDay: r.LastAccrualDay}
	fields := []struct {
		dst *fixedpoint.Value
		src *big.Int
	}{
		{&pool.TotalSupply, r.TotalSupply},
		{&pool.TotalBorrow, r.TotalBorrow},
		{&pool.SupplyIndex, r.SupplyIndex},
		{&pool.BorrowIndex, r.BorrowIndex},
	}
	for _, f := range fields {
		v, err := fixedpoint.FromBig(f.src)
		if err != nil {
			return nil, fmt.Errorf("state: pool %s: %w", r.Asset, err)
		}
		*f.dst = v
	}
	return pool, nil
}

func newBalanceRecord(b lending.Balance) balanceRecord {
	return balanceRecord{
		Principal: b.Principal.Big(),
		Snapshot:  b.Snapshot.Big(),
		Pending:   b.Pending.Big(),
		LastDay:   b.LastDay,
	}
}

func (r balanceRecord) balance() (lending.Balance, error) {
	principal, err := fixedpoint.FromBig(r.Principal)
	if err != nil {
		return lending.Balance{}, err
	}
	snapshot, err := fixedpoint.FromBig(r.Snapshot)
	if err != nil {
		return lending.Balance{}, err
	}
	pending, err := fixedpoint.FromBig(r.Pending)
	if err != nil {
		return lending.Balance{}, err
	}
	return lending.Balance{Principal: principal, Snapshot: snapshot, Pending: pending, LastDay: r.LastDay}, nil
}

func newPositionRecord(pos *lending.Position) *positionRecord {
	return &positionRecord{
		Account:      pos.Account,
		Asset:        pos.Asset,
		Supply:       newBalanceRecord(pos.Supply),
		Borrow:       newBalanceRecord(pos.Borrow),
		IsCollateral: pos.IsCollateral,
	}
}

func (r *positionRecord) position() (*lending.Position, error) {
	supply, err := r.Supply.balance()
	if err != nil {
		return nil, fmt.Errorf("state: position %s/%s supply: %w", r.Account, r.Asset, err)
	}
	borrow, err := r.Borrow.balance()
	if err != nil {
		return nil, fmt.Errorf("state: position %s/%s borrow: %w", r.Account, r.Asset, err)
	}
	return &lending.Position{
		Account:      r.Account,
		Asset:        r.Asset,
		Supply:       supply,
		Borrow:       borrow,
		IsCollateral: r.IsCollateral,
	}, nil
}
