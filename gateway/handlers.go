package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"

	"github.com/dhanesh24g/foundry-defi-stablecoin/native/dsc"
)

// EngineAPI is the subset of the engine surface the gateway proxies.
type EngineAPI interface {
	DepositCollateral(user, asset common.Address, amount *big.Int) error
	MintDebt(user common.Address, amount *big.Int) error
	DepositCollateralAndMint(user, asset common.Address, collateralAmount, debtAmount *big.Int) error
	RedeemCollateral(user, asset common.Address, amount *big.Int) error
	BurnDebt(user common.Address, amount *big.Int) error
	RedeemAndBurn(user, asset common.Address, collateralAmount, debtAmount *big.Int) error
	Liquidate(liquidator, user, asset common.Address, debtToCover *big.Int) (dsc.LiquidationResult, error)

	AccountInformation(user common.Address) (dsc.AccountInfo, error)
	HealthFactor(user common.Address) (*big.Int, error)
	CollateralBalance(user, asset common.Address) *big.Int
	CollateralAssets() []dsc.CollateralAsset
	UsdValue(asset common.Address, amount *big.Int) (*big.Int, error)
	UsdToAssetAmount(asset common.Address, usd *big.Int) (*big.Int, error)
	LiquidationPayoutPreview(asset common.Address, debtToCover *big.Int) (*big.Int, *big.Int, error)
}

type handler struct {
	engine EngineAPI
	logger *slog.Logger
}

type positionRequest struct {
	User   string `json:"user"`
	Asset  string `json:"asset,omitempty"`
	Amount string `json:"amount,omitempty"`
	Debt   string `json:"debt,omitempty"`
}

type liquidationRequest struct {
	Liquidator  string `json:"liquidator"`
	User        string `json:"user"`
	Asset       string `json:"asset"`
	DebtToCover string `json:"debtToCover"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Value   string `json:"value,omitempty"`
}

func (h *handler) deposit(w http.ResponseWriter, r *http.Request) {
	req, err := decodePosition(r)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	user, asset, amount, err := req.userAssetAmount()
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	h.mutate(w, "deposit", func() error {
		return h.engine.DepositCollateral(user, asset, amount)
	})
}

func (h *handler) mint(w http.ResponseWriter, r *http.Request) {
	req, err := decodePosition(r)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	user, err := parseAddress(req.User, "user")
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	amount, err := parseAmount(req.Amount, "amount")
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	h.mutate(w, "mint", func() error {
		return h.engine.MintDebt(user, amount)
	})
}

func (h *handler) depositAndMint(w http.ResponseWriter, r *http.Request) {
	req, err := decodePosition(r)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	user, asset, amount, err := req.userAssetAmount()
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	debt, err := parseAmount(req.Debt, "debt")
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	h.mutate(w, "deposit_and_mint", func() error {
		return h.engine.DepositCollateralAndMint(user, asset, amount, debt)
	})
}

func (h *handler) redeem(w http.ResponseWriter, r *http.Request) {
	req, err := decodePosition(r)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	user, asset, amount, err := req.userAssetAmount()
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	h.mutate(w, "redeem", func() error {
		return h.engine.RedeemCollateral(user, asset, amount)
	})
}

func (h *handler) burn(w http.ResponseWriter, r *http.Request) {
	req, err := decodePosition(r)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	user, err := parseAddress(req.User, "user")
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	amount, err := parseAmount(req.Amount, "amount")
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	h.mutate(w, "burn", func() error {
		return h.engine.BurnDebt(user, amount)
	})
}

func (h *handler) redeemAndBurn(w http.ResponseWriter, r *http.Request) {
	req, err := decodePosition(r)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	user, asset, amount, err := req.userAssetAmount()
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	debt, err := parseAmount(req.Debt, "debt")
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	h.mutate(w, "redeem_and_burn", func() error {
		return h.engine.RedeemAndBurn(user, asset, amount, debt)
	})
}

func (h *handler) liquidate(w http.ResponseWriter, r *http.Request) {
	var req liquidationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, fmt.Errorf("decode request: %w", err))
		return
	}
	liquidator, err := parseAddress(req.Liquidator, "liquidator")
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	user, err := parseAddress(req.User, "user")
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	asset, err := parseAddress(req.Asset, "asset")
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	debtToCover, err := parseAmount(req.DebtToCover, "debtToCover")
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	result, err := h.engine.Liquidate(liquidator, user, asset, debtToCover)
	if err != nil {
		h.writeEngineError(w, "liquidate", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"debtCovered":      result.DebtCovered.String(),
		"collateralSeized": result.CollateralSeized.String(),
		"bonus":            result.Bonus.String(),
		"startingHealth":   result.StartingHealth.String(),
		"endingHealth":     result.EndingHealth.String(),
	})
}

func (h *handler) account(w http.ResponseWriter, r *http.Request) {
	user, err := parseAddress(chi.URLParam(r, "address"), "address")
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	info, err := h.engine.AccountInformation(user)
	if err != nil {
		h.writeEngineError(w, "account", err)
		return
	}
	health, err := h.engine.HealthFactor(user)
	if err != nil {
		h.writeEngineError(w, "account", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"debtMinted":         info.DebtMinted.String(),
		"collateralValueUsd": info.CollateralValueUSD.String(),
		"healthFactor":       health.String(),
	})
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	user, err := parseAddress(chi.URLParam(r, "address"), "address")
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	health, err := h.engine.HealthFactor(user)
	if err != nil {
		h.writeEngineError(w, "health", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"healthFactor": health.String()})
}

func (h *handler) collateralBalance(w http.ResponseWriter, r *http.Request) {
	user, err := parseAddress(chi.URLParam(r, "address"), "address")
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	asset, err := parseAddress(chi.URLParam(r, "asset"), "asset")
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"balance": h.engine.CollateralBalance(user, asset).String(),
	})
}

func (h *handler) assets(w http.ResponseWriter, _ *http.Request) {
	registry := h.engine.CollateralAssets()
	out := make([]map[string]string, 0, len(registry))
	for _, asset := range registry {
		out = append(out, map[string]string{
			"token": asset.Token.Hex(),
			"feed":  asset.Feed.Hex(),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handler) usdValue(w http.ResponseWriter, r *http.Request) {
	asset, err := parseAddress(r.URL.Query().Get("asset"), "asset")
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	amount, err := parseAmount(r.URL.Query().Get("amount"), "amount")
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	value, err := h.engine.UsdValue(asset, amount)
	if err != nil {
		h.writeEngineError(w, "usd_value", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"usdValue": value.String()})
}

func (h *handler) assetAmount(w http.ResponseWriter, r *http.Request) {
	asset, err := parseAddress(r.URL.Query().Get("asset"), "asset")
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	usd, err := parseAmount(r.URL.Query().Get("usd"), "usd")
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	amount, err := h.engine.UsdToAssetAmount(asset, usd)
	if err != nil {
		h.writeEngineError(w, "asset_amount", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"assetAmount": amount.String()})
}

func (h *handler) liquidationPreview(w http.ResponseWriter, r *http.Request) {
	asset, err := parseAddress(r.URL.Query().Get("asset"), "asset")
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	debt, err := parseAmount(r.URL.Query().Get("debt"), "debt")
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	payout, bonus, err := h.engine.LiquidationPayoutPreview(asset, debt)
	if err != nil {
		h.writeEngineError(w, "liquidation_preview", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"payout": payout.String(),
		"bonus":  bonus.String(),
	})
}

func (h *handler) constants(w http.ResponseWriter, _ *http.Request) {
	constants := dsc.Constants()
	writeJSON(w, http.StatusOK, map[string]string{
		"liquidationThresholdPct": fmt.Sprintf("%d", constants.LiquidationThresholdPct),
		"liquidationBonusPct":     fmt.Sprintf("%d", constants.LiquidationBonusPct),
		"minHealthFactor":         constants.MinHealthFactor.String(),
		"precision":               constants.Precision.String(),
	})
}

func (h *handler) mutate(w http.ResponseWriter, op string, fn func() error) {
	if err := fn(); err != nil {
		h.writeEngineError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeEngineError maps engine failures to stable machine-readable codes so
// liquidation bots and dashboards can branch on kind.
func (h *handler) writeEngineError(w http.ResponseWriter, op string, err error) {
	resp := errorResponse{Message: err.Error()}
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, dsc.ErrInvalidAmount):
		status, resp.Code = http.StatusBadRequest, "invalid_amount"
	case errors.Is(err, dsc.ErrAssetNotAllowed):
		status, resp.Code = http.StatusBadRequest, "asset_not_allowed"
	case errors.Is(err, dsc.ErrInsufficientBalance):
		status, resp.Code = http.StatusConflict, "insufficient_balance"
	case errors.Is(err, dsc.ErrBelowMinimumHealthFactor):
		status, resp.Code = http.StatusConflict, "below_minimum_health_factor"
		var hfErr *dsc.HealthFactorError
		if errors.As(err, &hfErr) && hfErr.Value != nil {
			resp.Value = hfErr.Value.String()
		}
	case errors.Is(err, dsc.ErrNotLiquidatable):
		status, resp.Code = http.StatusConflict, "not_liquidatable"
	case errors.Is(err, dsc.ErrHealthFactorNotImproved):
		status, resp.Code = http.StatusConflict, "health_factor_not_improved"
	case errors.Is(err, dsc.ErrStalePrice):
		status, resp.Code = http.StatusServiceUnavailable, "stale_price"
	case errors.Is(err, dsc.ErrTransferFailed):
		status, resp.Code = http.StatusBadGateway, "transfer_failed"
	case errors.Is(err, dsc.ErrMintFailed):
		status, resp.Code = http.StatusBadGateway, "mint_failed"
	default:
		resp.Code = "internal"
	}
	h.logger.Warn("engine call failed", "op", op, "code", resp.Code, "err", err)
	writeJSON(w, status, resp)
}

func decodePosition(r *http.Request) (positionRequest, error) {
	var req positionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return positionRequest{}, fmt.Errorf("decode request: %w", err)
	}
	return req, nil
}

func (req positionRequest) userAssetAmount() (common.Address, common.Address, *big.Int, error) {
	user, err := parseAddress(req.User, "user")
	if err != nil {
		return common.Address{}, common.Address{}, nil, err
	}
	asset, err := parseAddress(req.Asset, "asset")
	if err != nil {
		return common.Address{}, common.Address{}, nil, err
	}
	amount, err := parseAmount(req.Amount, "amount")
	if err != nil {
		return common.Address{}, common.Address{}, nil, err
	}
	return user, asset, amount, nil
}

func parseAddress(value, field string) (common.Address, error) {
	if !common.IsHexAddress(value) {
		return common.Address{}, fmt.Errorf("invalid %s address %q", field, value)
	}
	return common.HexToAddress(value), nil
}

func parseAmount(value, field string) (*big.Int, error) {
	amount, ok := new(big.Int).SetString(value, 10)
	if !ok {
		return nil, fmt.Errorf("invalid %s %q", field, value)
	}
	return amount, nil
}

func writeBadRequest(w http.ResponseWriter, err error) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Code: "bad_request", Message: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
