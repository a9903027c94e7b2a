package dsc

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// totalCollateralUsd values the user's full collateral vector at fresh oracle
// prices. Callers hold the engine lock.
func (e *Engine) totalCollateralUsd(user common.Address) (*big.Int, error) {
	total := big.NewInt(0)
	for _, asset := range e.assets {
		balance := e.collateral.Balance(user, asset.Token)
		if balance.Sign() == 0 {
			continue
		}
		price, err := e.freshPrice(asset.Feed)
		if err != nil {
			return nil, err
		}
		total.Add(total, usdValue(balance, price))
	}
	return total, nil
}

// healthFactor derives the solvency ratio for the user. Callers hold the
// engine lock.
func (e *Engine) healthFactor(user common.Address) (*big.Int, error) {
	debt := e.debt.Balance(user)
	if debt.Sign() == 0 {
		return new(big.Int).Set(maxHealthFactor), nil
	}
	collateralUsd, err := e.totalCollateralUsd(user)
	if err != nil {
		return nil, err
	}
	return healthFactorRatio(collateralUsd, debt), nil
}

// assertHealthy fails with a HealthFactorError when the user's ratio sits
// below the minimum.
func (e *Engine) assertHealthy(user common.Address) error {
	ratio, err := e.healthFactor(user)
	if err != nil {
		return err
	}
	if ratio.Cmp(precision) < 0 {
		return healthFactorError(ratio)
	}
	return nil
}

func (e *Engine) registered(asset common.Address) (CollateralAsset, bool) {
	for _, entry := range e.assets {
		if entry.Token == asset {
			return entry, true
		}
	}
	return CollateralAsset{}, false
}

// HealthFactor reports the user's current solvency ratio.
func (e *Engine) HealthFactor(user common.Address) (*big.Int, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.healthFactor(user)
}

// TotalCollateralUSD reports the USD value of the user's collateral.
func (e *Engine) TotalCollateralUSD(user common.Address) (*big.Int, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.totalCollateralUsd(user)
}

// AccountInformation returns the user's outstanding debt together with the
// aggregate collateral valuation.
func (e *Engine) AccountInformation(user common.Address) (AccountInfo, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	collateralUsd, err := e.totalCollateralUsd(user)
	if err != nil {
		return AccountInfo{}, err
	}
	return AccountInfo{
		DebtMinted:         e.debt.Balance(user),
		CollateralValueUSD: collateralUsd,
	}, nil
}

// MaxMintableUSD is the debt ceiling the user could mint while staying at the
// minimum health factor.
func (e *Engine) MaxMintableUSD(user common.Address) (*big.Int, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	collateralUsd, err := e.totalCollateralUsd(user)
	if err != nil {
		return nil, err
	}
	return riskAdjusted(collateralUsd), nil
}

// CollateralBalance reports the user's recorded balance in a single asset.
func (e *Engine) CollateralBalance(user, asset common.Address) *big.Int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.collateral.Balance(user, asset)
}

// CollateralAssets lists the allow-listed collateral assets in registry order.
func (e *Engine) CollateralAssets() []CollateralAsset {
	out := make([]CollateralAsset, len(e.assets))
	copy(out, e.assets)
	return out
}

// UsdValue converts an asset amount into its current USD value.
func (e *Engine) UsdValue(asset common.Address, amount *big.Int) (*big.Int, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	entry, ok := e.registered(asset)
	if !ok {
		return nil, ErrAssetNotAllowed
	}
	price, err := e.freshPrice(entry.Feed)
	if err != nil {
		return nil, err
	}
	return usdValue(amount, price), nil
}

// UsdToAssetAmount converts a USD amount into the equivalent quantity of the
// given collateral asset.
func (e *Engine) UsdToAssetAmount(asset common.Address, usd *big.Int) (*big.Int, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.usdToAssetAmount(asset, usd)
}

func (e *Engine) usdToAssetAmount(asset common.Address, usd *big.Int) (*big.Int, error) {
	entry, ok := e.registered(asset)
	if !ok {
		return nil, ErrAssetNotAllowed
	}
	price, err := e.freshPrice(entry.Feed)
	if err != nil {
		return nil, err
	}
	return assetAmountForUsd(usd, price), nil
}

// LiquidationPayoutPreview sizes the collateral a liquidator would receive
// for covering debtToCover, split into the debt-equivalent amount and bonus.
func (e *Engine) LiquidationPayoutPreview(asset common.Address, debtToCover *big.Int) (seized, bonus *big.Int, err error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if debtToCover == nil || debtToCover.Sign() <= 0 {
		return nil, nil, ErrInvalidAmount
	}
	base, err := e.usdToAssetAmount(asset, debtToCover)
	if err != nil {
		return nil, nil, err
	}
	bonus = bonusAmount(base)
	return new(big.Int).Add(base, bonus), bonus, nil
}
