package dsc

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// LiquidationResult reports what a successful liquidation moved.
type LiquidationResult struct {
	DebtCovered      *big.Int
	CollateralSeized *big.Int
	Bonus            *big.Int
	StartingHealth   *big.Int
	EndingHealth     *big.Int
}

// Liquidate seizes collateral from an undercollateralized user in exchange
// for the liquidator covering debtToCover of their debt. The payout is the
// debt-equivalent amount of the chosen asset plus a 10% bonus; the bonus
// assumes the protocol is overcollateralized and the seizure fails with
// ErrInsufficientBalance when the user's holding of that asset cannot cover
// it. Every ledger effect is applied and checked before any external
// transfer, and unwound in full if an external transfer fails.
func (e *Engine) Liquidate(liquidator, user, asset common.Address, debtToCover *big.Int) (LiquidationResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if debtToCover == nil || debtToCover.Sign() <= 0 {
		return LiquidationResult{}, ErrInvalidAmount
	}
	entry, ok := e.registered(asset)
	if !ok {
		return LiquidationResult{}, ErrAssetNotAllowed
	}

	startingHealth, err := e.healthFactor(user)
	if err != nil {
		return LiquidationResult{}, err
	}
	if startingHealth.Cmp(precision) >= 0 {
		return LiquidationResult{}, ErrNotLiquidatable
	}

	price, err := e.freshPrice(entry.Feed)
	if err != nil {
		return LiquidationResult{}, err
	}
	base := assetAmountForUsd(debtToCover, price)
	bonus := bonusAmount(base)
	payout := new(big.Int).Add(base, bonus)

	// Ledger stage: seizure through the redeem primitive with
	// redeemFrom=user, redeemTo=liquidator, then settlement through the
	// burn primitive with burnFrom=liquidator, onBehalfOf=user.
	redeemUnwind, err := e.stageRedeem(user, liquidator, asset, payout)
	if err != nil {
		return LiquidationResult{}, err
	}
	burnUnwind, err := e.stageBurn(liquidator, user, debtToCover)
	if err != nil {
		if rbErr := redeemUnwind(); rbErr != nil {
			return LiquidationResult{}, rbErr
		}
		return LiquidationResult{}, err
	}

	unwind := func() error {
		if err := burnUnwind(); err != nil {
			return err
		}
		return redeemUnwind()
	}

	endingHealth, err := e.healthFactor(user)
	if err != nil {
		if rbErr := unwind(); rbErr != nil {
			return LiquidationResult{}, rbErr
		}
		return LiquidationResult{}, err
	}
	if endingHealth.Cmp(startingHealth) <= 0 {
		if rbErr := unwind(); rbErr != nil {
			return LiquidationResult{}, rbErr
		}
		return LiquidationResult{}, ErrHealthFactorNotImproved
	}
	if err := e.assertHealthy(liquidator); err != nil {
		if rbErr := unwind(); rbErr != nil {
			return LiquidationResult{}, rbErr
		}
		return LiquidationResult{}, err
	}

	// External stage, in seizure-then-settlement order.
	if err := e.settleRedeem(user, liquidator, asset, payout); err != nil {
		if rbErr := unwind(); rbErr != nil {
			return LiquidationResult{}, rbErr
		}
		return LiquidationResult{}, err
	}
	if err := e.settleBurn(liquidator, user, debtToCover); err != nil {
		if rbErr := unwind(); rbErr != nil {
			return LiquidationResult{}, rbErr
		}
		return LiquidationResult{}, err
	}

	e.emitter.Emit(newEvent(EventLiquidation, liquidator, user, asset, payout))

	return LiquidationResult{
		DebtCovered:      new(big.Int).Set(debtToCover),
		CollateralSeized: payout,
		Bonus:            bonus,
		StartingHealth:   startingHealth,
		EndingHealth:     endingHealth,
	}, nil
}
