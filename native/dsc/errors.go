package dsc

import (
	"errors"
	"fmt"
	"math/big"
)

// Sentinel errors callers (gateways, liquidation bots) can branch on with
// errors.Is.
var (
	ErrInvalidAmount            = errors.New("dsc engine: amount must be positive")
	ErrAssetNotAllowed          = errors.New("dsc engine: collateral asset not allow-listed")
	ErrConfigurationMismatch    = errors.New("dsc engine: asset and price feed lists must be the same length")
	ErrTransferFailed           = errors.New("dsc engine: external transfer failed")
	ErrInsufficientBalance      = errors.New("dsc engine: insufficient balance")
	ErrMintFailed               = errors.New("dsc engine: debt token mint failed")
	ErrBelowMinimumHealthFactor = errors.New("dsc engine: health factor below minimum")
	ErrNotLiquidatable          = errors.New("dsc engine: health factor above liquidation threshold")
	ErrHealthFactorNotImproved  = errors.New("dsc engine: liquidation did not improve health factor")
	ErrStalePrice               = errors.New("dsc engine: oracle price is stale")
)

// HealthFactorError reports a failed solvency check together with the computed
// ratio so downstream tooling can display how far below the minimum the
// position sits. It unwraps to ErrBelowMinimumHealthFactor.
type HealthFactorError struct {
	Value *big.Int
}

func (e *HealthFactorError) Error() string {
	if e == nil || e.Value == nil {
		return ErrBelowMinimumHealthFactor.Error()
	}
	return fmt.Sprintf("%s: %s", ErrBelowMinimumHealthFactor.Error(), e.Value.String())
}

func (e *HealthFactorError) Unwrap() error { return ErrBelowMinimumHealthFactor }

func healthFactorError(value *big.Int) error {
	v := new(big.Int)
	if value != nil {
		v.Set(value)
	}
	return &HealthFactorError{Value: v}
}
