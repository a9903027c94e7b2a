package dsc

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// CollateralLedger tracks per-user, per-asset collateral balances in the
// asset's smallest unit. Accounts come into existence on first credit; a
// missing entry reads as zero. The engine lock serialises all access.
type CollateralLedger struct {
	balances map[common.Address]map[common.Address]*big.Int
	emitter  EventEmitter
}

func newCollateralLedger(emitter EventEmitter) *CollateralLedger {
	return &CollateralLedger{
		balances: make(map[common.Address]map[common.Address]*big.Int),
		emitter:  emitter,
	}
}

// Balance returns a copy of the user's balance in the given asset.
func (l *CollateralLedger) Balance(user, asset common.Address) *big.Int {
	if assets, ok := l.balances[user]; ok {
		if bal, ok := assets[asset]; ok {
			return new(big.Int).Set(bal)
		}
	}
	return big.NewInt(0)
}

// Credit adds amount to the user's balance in asset.
func (l *CollateralLedger) Credit(user, asset common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	assets, ok := l.balances[user]
	if !ok {
		assets = make(map[common.Address]*big.Int)
		l.balances[user] = assets
	}
	current, ok := assets[asset]
	if !ok {
		current = big.NewInt(0)
	}
	assets[asset] = new(big.Int).Add(current, amount)
	l.emitter.Emit(newEvent(EventLedgerCredit, user, user, asset, amount))
	return nil
}

// Debit removes amount from the user's balance in asset. The balance check is
// explicit: the stored value must never wrap below zero.
func (l *CollateralLedger) Debit(user, asset common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	current := l.Balance(user, asset)
	if current.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	l.balances[user][asset] = current.Sub(current, amount)
	l.emitter.Emit(newEvent(EventLedgerDebit, user, user, asset, amount))
	return nil
}

// DebtLedger tracks the synthetic debt each user is responsible for, in the
// debt token's smallest unit.
type DebtLedger struct {
	balances map[common.Address]*big.Int
	emitter  EventEmitter
}

func newDebtLedger(emitter EventEmitter) *DebtLedger {
	return &DebtLedger{
		balances: make(map[common.Address]*big.Int),
		emitter:  emitter,
	}
}

// Balance returns a copy of the user's outstanding debt.
func (l *DebtLedger) Balance(user common.Address) *big.Int {
	if bal, ok := l.balances[user]; ok {
		return new(big.Int).Set(bal)
	}
	return big.NewInt(0)
}

// Credit adds amount to the user's outstanding debt.
func (l *DebtLedger) Credit(user common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	l.balances[user] = new(big.Int).Add(l.Balance(user), amount)
	l.emitter.Emit(newEvent(EventLedgerCredit, user, user, common.Address{}, amount))
	return nil
}

// Debit removes amount from the user's outstanding debt.
func (l *DebtLedger) Debit(user common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	current := l.Balance(user)
	if current.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	l.balances[user] = current.Sub(current, amount)
	l.emitter.Emit(newEvent(EventLedgerDebit, user, user, common.Address{}, amount))
	return nil
}
