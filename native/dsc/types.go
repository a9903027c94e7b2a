package dsc

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// CollateralAsset pairs an allow-listed collateral token with the price feed
// that values it. The registry is fixed at construction; iteration order is
// the configured order.
type CollateralAsset struct {
	Token common.Address
	Feed  common.Address
}

// PriceFeed supplies USD prices for collateral assets. Prices are 8-decimal
// fixed point; UpdatedAt drives the staleness check inside the engine.
type PriceFeed interface {
	LatestRound(feed common.Address) (price *big.Int, updatedAt time.Time, err error)
}

// CollateralVault moves collateral tokens between users and the engine's
// custody. A false return signals a failed transfer.
type CollateralVault interface {
	TransferIn(asset, from common.Address, amount *big.Int) bool
	TransferOut(asset, to common.Address, amount *big.Int) bool
}

// DebtToken is the mint/burn capability for the synthetic debt token. Burn
// acts on the engine's own holdings; TransferFrom pulls tokens into the
// engine ahead of a burn.
type DebtToken interface {
	Mint(to common.Address, amount *big.Int) bool
	Burn(amount *big.Int)
	TransferFrom(from, to common.Address, amount *big.Int) bool
}

// AccountInfo is the point-in-time snapshot returned by read queries.
type AccountInfo struct {
	DebtMinted         *big.Int
	CollateralValueUSD *big.Int
}

// ProtocolConstants exposes the fixed risk parameters for dashboards and
// liquidation tooling.
type ProtocolConstants struct {
	LiquidationThresholdPct int64
	LiquidationBonusPct     int64
	MinHealthFactor         *big.Int
	Precision               *big.Int
}

// Constants reports the protocol risk parameters.
func Constants() ProtocolConstants {
	return ProtocolConstants{
		LiquidationThresholdPct: LiquidationThresholdPct,
		LiquidationBonusPct:     LiquidationBonusPct,
		MinHealthFactor:         new(big.Int).Set(precision),
		Precision:               new(big.Int).Set(precision),
	}
}

// MaxHealthFactor is the ratio reported for debt-free accounts.
func MaxHealthFactor() *big.Int {
	return new(big.Int).Set(maxHealthFactor)
}
