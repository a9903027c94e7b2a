package dsc

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// Event kinds emitted by the engine.
const (
	EventCollateralDeposited = "collateral_deposited"
	EventCollateralRedeemed  = "collateral_redeemed"
	EventDebtMinted          = "debt_minted"
	EventDebtBurned          = "debt_burned"
	EventLiquidation         = "liquidation"
	EventLedgerCredit        = "ledger_credit"
	EventLedgerDebit         = "ledger_debit"
)

// Event describes a successful state change. From/To carry the affected
// accounts; Asset is zero for debt-ledger entries.
type Event struct {
	ID        string
	Kind      string
	Timestamp time.Time
	From      common.Address
	To        common.Address
	Asset     common.Address
	Amount    *big.Int
}

// EventEmitter receives engine events. Implementations must not block; the
// emitter is invoked while the engine lock is held.
type EventEmitter interface {
	Emit(Event)
}

// NoopEmitter discards all events.
type NoopEmitter struct{}

func (NoopEmitter) Emit(Event) {}

// EmitterFunc adapts a function to the EventEmitter interface.
type EmitterFunc func(Event)

func (f EmitterFunc) Emit(evt Event) { f(evt) }

func newEvent(kind string, from, to, asset common.Address, amount *big.Int) Event {
	return Event{
		ID:        uuid.NewString(),
		Kind:      kind,
		Timestamp: time.Now().UTC(),
		From:      from,
		To:        to,
		Asset:     asset,
		Amount:    new(big.Int).Set(amount),
	}
}
