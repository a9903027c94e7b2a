package dsc

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/dhanesh24g/foundry-defi-stablecoin/storage"
)

var ledgerSnapshotKey = []byte("dsc/ledger/snapshot")

// LedgerSnapshot is the serialisable image of both ledgers. Addresses render
// as hex, amounts as decimal strings so the snapshot survives JSON number
// precision limits.
type LedgerSnapshot struct {
	Collateral map[string]map[string]string `json:"collateral"`
	Debt       map[string]string            `json:"debt"`
}

// Snapshot captures a point-in-time copy of both ledgers.
func (e *Engine) Snapshot() *LedgerSnapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()

	snap := &LedgerSnapshot{
		Collateral: make(map[string]map[string]string),
		Debt:       make(map[string]string),
	}
	for user, assets := range e.collateral.balances {
		entry := make(map[string]string, len(assets))
		for asset, amount := range assets {
			if amount.Sign() == 0 {
				continue
			}
			entry[asset.Hex()] = amount.String()
		}
		if len(entry) > 0 {
			snap.Collateral[user.Hex()] = entry
		}
	}
	for user, amount := range e.debt.balances {
		if amount.Sign() == 0 {
			continue
		}
		snap.Debt[user.Hex()] = amount.String()
	}
	return snap
}

// Restore replaces both ledgers with the snapshot contents.
func (e *Engine) Restore(snap *LedgerSnapshot) error {
	if snap == nil {
		return nil
	}
	collateral := make(map[common.Address]map[common.Address]*big.Int, len(snap.Collateral))
	for user, assets := range snap.Collateral {
		entry := make(map[common.Address]*big.Int, len(assets))
		for asset, amount := range assets {
			value, err := parseLedgerAmount(amount)
			if err != nil {
				return err
			}
			entry[common.HexToAddress(asset)] = value
		}
		collateral[common.HexToAddress(user)] = entry
	}
	debt := make(map[common.Address]*big.Int, len(snap.Debt))
	for user, amount := range snap.Debt {
		value, err := parseLedgerAmount(amount)
		if err != nil {
			return err
		}
		debt[common.HexToAddress(user)] = value
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.collateral.balances = collateral
	e.debt.balances = debt
	return nil
}

// Persist writes the current ledger snapshot to the database.
func (e *Engine) Persist(db storage.Database) error {
	raw, err := json.Marshal(e.Snapshot())
	if err != nil {
		return fmt.Errorf("dsc engine: encode snapshot: %w", err)
	}
	return db.Put(ledgerSnapshotKey, raw)
}

// Load restores the ledgers from a previously persisted snapshot. A missing
// snapshot leaves the engine empty: the all-zero state is the valid default.
// Any other storage failure surfaces so a corrupt store cannot silently boot
// an empty ledger.
func (e *Engine) Load(db storage.Database) error {
	raw, err := db.Get(ledgerSnapshotKey)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("dsc engine: read snapshot: %w", err)
	}
	if len(raw) == 0 {
		return nil
	}
	snap := &LedgerSnapshot{}
	if err := json.Unmarshal(raw, snap); err != nil {
		return fmt.Errorf("dsc engine: decode snapshot: %w", err)
	}
	return e.Restore(snap)
}

func parseLedgerAmount(value string) (*big.Int, error) {
	parsed, ok := new(big.Int).SetString(value, 10)
	if !ok || parsed.Sign() < 0 {
		return nil, fmt.Errorf("dsc engine: invalid ledger amount %q", value)
	}
	return parsed, nil
}
