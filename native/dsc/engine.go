package dsc

import (
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Engine owns the collateral and debt ledgers and orchestrates every state
// transition against them. External custody, price feeds and the debt token
// are consumed as capabilities; the engine never retries a failed external
// call. A single lock serialises all mutating entry points so ledger updates
// and custody transfers are never observed interleaved.
type Engine struct {
	mu sync.RWMutex

	assets     []CollateralAsset
	collateral *CollateralLedger
	debt       *DebtLedger

	feeds   PriceFeed
	vault   CollateralVault
	token   DebtToken
	emitter EventEmitter

	moduleAddress common.Address
	maxPriceAge   time.Duration
	now           func() time.Time
}

// NewEngine constructs an engine over the given collateral allow-list. The
// two slices pair element-wise: assets[i] is valued by feeds[i].
func NewEngine(assets, feeds []common.Address, oracle PriceFeed, vault CollateralVault, token DebtToken) (*Engine, error) {
	if len(assets) != len(feeds) || len(assets) == 0 {
		return nil, ErrConfigurationMismatch
	}
	registry := make([]CollateralAsset, len(assets))
	for i := range assets {
		registry[i] = CollateralAsset{Token: assets[i], Feed: feeds[i]}
	}
	emitter := EventEmitter(NoopEmitter{})
	return &Engine{
		assets:      registry,
		collateral:  newCollateralLedger(emitter),
		debt:        newDebtLedger(emitter),
		feeds:       oracle,
		vault:       vault,
		token:       token,
		emitter:     emitter,
		maxPriceAge: DefaultMaxPriceAge,
		now:         time.Now,
	}, nil
}

// SetEmitter wires the engine and its ledgers to an event sink.
func (e *Engine) SetEmitter(emitter EventEmitter) {
	if e == nil {
		return
	}
	if emitter == nil {
		emitter = NoopEmitter{}
	}
	e.emitter = emitter
	e.collateral.emitter = emitter
	e.debt.emitter = emitter
}

// SetModuleAddress records the engine's own custody address, the destination
// for debt tokens pulled in ahead of a burn.
func (e *Engine) SetModuleAddress(addr common.Address) {
	if e == nil {
		return
	}
	e.moduleAddress = addr
}

// SetMaxPriceAge overrides the oracle staleness window.
func (e *Engine) SetMaxPriceAge(age time.Duration) {
	if e == nil || age <= 0 {
		return
	}
	e.maxPriceAge = age
}

// SetClock overrides the time source used for staleness checks.
func (e *Engine) SetClock(now func() time.Time) {
	if e == nil || now == nil {
		return
	}
	e.now = now
}

// DepositCollateral credits the user's collateral ledger and pulls the tokens
// into engine custody. The credit is rolled back when the custody transfer
// fails, keeping ledger and custody consistent.
func (e *Engine) DepositCollateral(user, asset common.Address, amount *big.Int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.depositCollateral(user, asset, amount)
}

func (e *Engine) depositCollateral(user, asset common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if _, ok := e.registered(asset); !ok {
		return ErrAssetNotAllowed
	}
	if err := e.collateral.Credit(user, asset, amount); err != nil {
		return err
	}
	if !e.vault.TransferIn(asset, user, amount) {
		if err := e.collateral.Debit(user, asset, amount); err != nil {
			return err
		}
		return ErrTransferFailed
	}
	e.emitter.Emit(newEvent(EventCollateralDeposited, user, user, asset, amount))
	return nil
}

// MintDebt records new debt for the user and mints the matching tokens. The
// debt credit and the solvency check form one atomic unit: a failed check
// leaves no trace in the ledger.
func (e *Engine) MintDebt(user common.Address, amount *big.Int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mintDebt(user, amount)
}

func (e *Engine) mintDebt(user common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if err := e.debt.Credit(user, amount); err != nil {
		return err
	}
	if err := e.assertHealthy(user); err != nil {
		if rbErr := e.debt.Debit(user, amount); rbErr != nil {
			return rbErr
		}
		return err
	}
	if !e.token.Mint(user, amount) {
		if rbErr := e.debt.Debit(user, amount); rbErr != nil {
			return rbErr
		}
		return ErrMintFailed
	}
	e.emitter.Emit(newEvent(EventDebtMinted, user, user, common.Address{}, amount))
	return nil
}

// DepositCollateralAndMint sequences a deposit and a mint under one lock
// acquisition.
func (e *Engine) DepositCollateralAndMint(user, asset common.Address, collateralAmount, debtAmount *big.Int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.depositCollateral(user, asset, collateralAmount); err != nil {
		return err
	}
	return e.mintDebt(user, debtAmount)
}

// RedeemCollateral releases collateral back to the user, provided the
// position stays healthy afterwards.
func (e *Engine) RedeemCollateral(user, asset common.Address, amount *big.Int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.redeemCollateral(user, asset, amount)
}

func (e *Engine) redeemCollateral(user, asset common.Address, amount *big.Int) error {
	return e.redeemFor(user, user, asset, amount)
}

// redeemFor is the asymmetric redeem primitive. Collateral leaves
// redeemFrom's ledger entry and custody moves to redeemTo; when the parties
// differ the seized amount is re-credited to redeemTo so the ledger keeps
// accounting for it. The solvency check applies to redeemFrom after the
// ledger effects and before custody moves, so a failed check aborts with no
// external side effect. Seizure during liquidation goes through the same
// stage and settle halves.
func (e *Engine) redeemFor(redeemFrom, redeemTo, asset common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if _, ok := e.registered(asset); !ok {
		return ErrAssetNotAllowed
	}
	unwind, err := e.stageRedeem(redeemFrom, redeemTo, asset, amount)
	if err != nil {
		return err
	}
	if redeemFrom == redeemTo {
		if err := e.assertHealthy(redeemFrom); err != nil {
			if rbErr := unwind(); rbErr != nil {
				return rbErr
			}
			return err
		}
	}
	if err := e.settleRedeem(redeemFrom, redeemTo, asset, amount); err != nil {
		if rbErr := unwind(); rbErr != nil {
			return rbErr
		}
		return err
	}
	return nil
}

// stageRedeem applies the ledger half of a redeem and returns the closure
// that reverses it.
func (e *Engine) stageRedeem(redeemFrom, redeemTo, asset common.Address, amount *big.Int) (func() error, error) {
	if err := e.collateral.Debit(redeemFrom, asset, amount); err != nil {
		return nil, err
	}
	if redeemFrom != redeemTo {
		if err := e.collateral.Credit(redeemTo, asset, amount); err != nil {
			return nil, err
		}
	}
	unwind := func() error {
		if redeemFrom != redeemTo {
			if err := e.collateral.Debit(redeemTo, asset, amount); err != nil {
				return err
			}
		}
		return e.collateral.Credit(redeemFrom, asset, amount)
	}
	return unwind, nil
}

// settleRedeem is the external half of a redeem: custody moves to redeemTo
// and the redeem event fires.
func (e *Engine) settleRedeem(redeemFrom, redeemTo, asset common.Address, amount *big.Int) error {
	if !e.vault.TransferOut(asset, redeemTo, amount) {
		return ErrTransferFailed
	}
	e.emitter.Emit(newEvent(EventCollateralRedeemed, redeemFrom, redeemTo, asset, amount))
	return nil
}

// BurnDebt retires part of the caller's own debt.
func (e *Engine) BurnDebt(user common.Address, amount *big.Int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.burnFor(user, user, amount)
}

// burnFor is the asymmetric burn primitive. Debt is retired on behalf of
// onBehalfOf using tokens pulled from burnFrom; when the parties differ the
// liquidator's own debt record shrinks by the same amount, mirroring the
// token holdings consumed to settle someone else's debt. Settlement during
// liquidation goes through the same stage and settle halves.
func (e *Engine) burnFor(burnFrom, onBehalfOf common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	unwind, err := e.stageBurn(burnFrom, onBehalfOf, amount)
	if err != nil {
		return err
	}
	if err := e.settleBurn(burnFrom, onBehalfOf, amount); err != nil {
		if rbErr := unwind(); rbErr != nil {
			return rbErr
		}
		return err
	}
	return nil
}

// stageBurn checks both parties' debt records, applies the ledger half of a
// burn and returns the closure that reverses it.
func (e *Engine) stageBurn(burnFrom, onBehalfOf common.Address, amount *big.Int) (func() error, error) {
	if e.debt.Balance(onBehalfOf).Cmp(amount) < 0 {
		return nil, ErrInsufficientBalance
	}
	if burnFrom != onBehalfOf && e.debt.Balance(burnFrom).Cmp(amount) < 0 {
		return nil, ErrInsufficientBalance
	}
	if err := e.debt.Debit(onBehalfOf, amount); err != nil {
		return nil, err
	}
	if burnFrom != onBehalfOf {
		if err := e.debt.Debit(burnFrom, amount); err != nil {
			return nil, err
		}
	}
	unwind := func() error {
		if burnFrom != onBehalfOf {
			if err := e.debt.Credit(burnFrom, amount); err != nil {
				return err
			}
		}
		return e.debt.Credit(onBehalfOf, amount)
	}
	return unwind, nil
}

// settleBurn is the external half of a burn: tokens are pulled from burnFrom
// into module custody, retired, and the burn event fires.
func (e *Engine) settleBurn(burnFrom, onBehalfOf common.Address, amount *big.Int) error {
	if !e.token.TransferFrom(burnFrom, e.moduleAddress, amount) {
		return ErrTransferFailed
	}
	e.token.Burn(amount)
	e.emitter.Emit(newEvent(EventDebtBurned, burnFrom, onBehalfOf, common.Address{}, amount))
	return nil
}

// RedeemAndBurn retires debt first and releases collateral second, so the
// closing solvency check sees the reduced debt.
func (e *Engine) RedeemAndBurn(user, asset common.Address, collateralAmount, debtAmount *big.Int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.burnFor(user, user, debtAmount); err != nil {
		return err
	}
	return e.redeemCollateral(user, asset, collateralAmount)
}
