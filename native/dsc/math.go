package dsc

import (
	"math/big"

	"github.com/holiman/uint256"
)

// Fixed-point constants. Ledger amounts and USD values carry 18 decimals while
// oracle feeds report 8, so every price crossing the boundary is rescaled once
// through scalePrice and nowhere else.
const (
	ledgerDecimals = 18
	feedDecimals   = 8

	// LiquidationThresholdPct is the share of raw collateral USD value counted
	// toward solvency.
	LiquidationThresholdPct = 50
	// LiquidationBonusPct is the extra collateral awarded to a liquidator on
	// top of the debt-equivalent seizure.
	LiquidationBonusPct = 10

	liquidationPrecision = 100
)

var (
	precision           = mustBigInt("1000000000000000000")  // 1e18
	additionalFeedScale = new(big.Int).Exp(big.NewInt(10), big.NewInt(ledgerDecimals-feedDecimals), nil)

	// maxHealthFactor is the ceiling reported for debt-free accounts. The
	// engine mirrors a 256-bit word so the value round-trips through hex
	// tooling unchanged.
	maxHealthFactor = new(uint256.Int).SetAllOne().ToBig()
)

func mustBigInt(value string) *big.Int {
	v, ok := new(big.Int).SetString(value, 10)
	if !ok {
		panic("invalid big integer constant")
	}
	return v
}

// scalePrice lifts an 8-decimal oracle price into 18-decimal fixed point.
func scalePrice(price *big.Int) *big.Int {
	return new(big.Int).Mul(price, additionalFeedScale)
}

// usdValue converts an 18-decimal asset amount into its 18-decimal USD value
// at the supplied 8-decimal feed price.
func usdValue(amount, price *big.Int) *big.Int {
	value := new(big.Int).Mul(scalePrice(price), amount)
	return value.Quo(value, precision)
}

// assetAmountForUsd is the inverse of usdValue: the quantity of an asset worth
// usd at the supplied 8-decimal feed price.
func assetAmountForUsd(usd, price *big.Int) *big.Int {
	amount := new(big.Int).Mul(usd, precision)
	return amount.Quo(amount, scalePrice(price))
}

// riskAdjusted applies the liquidation threshold to a raw collateral value.
func riskAdjusted(collateralUsd *big.Int) *big.Int {
	adjusted := new(big.Int).Mul(collateralUsd, big.NewInt(LiquidationThresholdPct))
	return adjusted.Quo(adjusted, big.NewInt(liquidationPrecision))
}

// healthFactorRatio computes the 1e18 fixed-point solvency ratio for the given
// collateral value and debt. A debt-free position is unconditionally solvent
// and reports the maximum representable ratio.
func healthFactorRatio(collateralUsd, debt *big.Int) *big.Int {
	if debt == nil || debt.Sign() == 0 {
		return new(big.Int).Set(maxHealthFactor)
	}
	ratio := new(big.Int).Mul(riskAdjusted(collateralUsd), precision)
	ratio.Quo(ratio, debt)
	if ratio.Cmp(maxHealthFactor) > 0 {
		ratio.Set(maxHealthFactor)
	}
	return ratio
}

func bonusAmount(amount *big.Int) *big.Int {
	bonus := new(big.Int).Mul(amount, big.NewInt(LiquidationBonusPct))
	return bonus.Quo(bonus, big.NewInt(liquidationPrecision))
}
