package handlers

import (
	"fmt"
	"net/http"

	"github.com/ContractLand/terra-bridge-contracts/internal/bridge"
	"github.com/ContractLand/terra-bridge-contracts/internal/config"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// AdminBridgeHandler owner operations on the registries and ledgers. Every
// call is made as the configured bridge owner.
type AdminBridgeHandler struct {
	bridge *BridgeHandler
	owner  common.Address
	logger *logrus.Logger
}

func NewAdminBridgeHandler(b *BridgeHandler, owner common.Address, logger *logrus.Logger) *AdminBridgeHandler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &AdminBridgeHandler{bridge: b, owner: owner, logger: logger}
}

type ValidatorRequest struct {
	Address string `json:"address" binding:"required"`
}

type ThresholdRequest struct {
	RequiredSignatures uint64 `json:"requiredSignatures" binding:"required"`
}

// LimitsRequest amounts are base-10 strings in canonical units.
type LimitsRequest struct {
	DailyLimit string `json:"dailyLimit"`
	MaxPerTx   string `json:"maxPerTx"`
	MinPerTx   string `json:"minPerTx"`
}

type RegisterAssetRequest struct {
	Foreign string         `json:"foreign" binding:"required"`
	Home    string         `json:"home" binding:"required"`
	Limits  *LimitsRequest `json:"limits"`
}

type GasPriceRequest struct {
	GasPrice string `json:"gasPrice" binding:"required"`
}

type ConfirmationsRequest struct {
	RequiredBlockConfirmations uint64 `json:"requiredBlockConfirmations" binding:"required"`
}

type ClaimRequest struct {
	Asset string `json:"asset" binding:"required"`
	To    string `json:"to" binding:"required"`
}

func (r LimitsRequest) limits() (bridge.Limits, error) {
	daily, maxPerTx, minPerTx, err := config.LimitsConfig{
		DailyLimit: r.DailyLimit,
		MaxPerTx:   r.MaxPerTx,
		MinPerTx:   r.MinPerTx,
	}.Values()
	if err != nil {
		return bridge.Limits{}, err
	}
	return bridge.Limits{DailyLimit: daily, MaxPerTx: maxPerTx, MinPerTx: minPerTx}, nil
}

func (h *AdminBridgeHandler) audit(c *gin.Context, l *bridge.Ledger, action string, fields logrus.Fields) {
	entry := h.logger.WithFields(logrus.Fields{
		"admin":  c.GetString("admin_username"),
		"side":   l.Side().String(),
		"action": action,
	})
	entry.WithFields(fields).Info("admin operation applied")
}

// AddValidator POST /api/v1/admin/:side/validators
func (h *AdminBridgeHandler) AddValidator(c *gin.Context) {
	l, ok := h.bridge.ledger(c)
	if !ok {
		return
	}
	var req ValidatorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "INVALID_REQUEST", err.Error())
		return
	}
	v, ok := parseAddress(req.Address)
	if !ok {
		respondBadRequest(c, "INVALID_ADDRESS", "address must be a hex address")
		return
	}
	if err := l.Registry().AddValidator(c.Request.Context(), h.owner, v); err != nil {
		respondError(c, err)
		return
	}
	h.audit(c, l, "add_validator", logrus.Fields{"validator": v.Hex()})
	c.JSON(http.StatusCreated, gin.H{"success": true, "data": gin.H{"validator": v}})
}

// RemoveValidator DELETE /api/v1/admin/:side/validators/:address
func (h *AdminBridgeHandler) RemoveValidator(c *gin.Context) {
	l, ok := h.bridge.ledger(c)
	if !ok {
		return
	}
	v, ok := parseAddress(c.Param("address"))
	if !ok {
		respondBadRequest(c, "INVALID_ADDRESS", "address must be a hex address")
		return
	}
	if err := l.Registry().RemoveValidator(c.Request.Context(), h.owner, v); err != nil {
		respondError(c, err)
		return
	}
	h.audit(c, l, "remove_validator", logrus.Fields{"validator": v.Hex()})
	respondOK(c, gin.H{"validator": v})
}

// SetThreshold PUT /api/v1/admin/:side/threshold
func (h *AdminBridgeHandler) SetThreshold(c *gin.Context) {
	l, ok := h.bridge.ledger(c)
	if !ok {
		return
	}
	var req ThresholdRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "INVALID_REQUEST", err.Error())
		return
	}
	if err := l.Registry().SetThreshold(c.Request.Context(), h.owner, req.RequiredSignatures); err != nil {
		respondError(c, err)
		return
	}
	h.audit(c, l, "set_threshold", logrus.Fields{"required_signatures": req.RequiredSignatures})
	respondOK(c, gin.H{"requiredSignatures": req.RequiredSignatures})
}

// RegisterAsset POST /api/v1/admin/:side/assets
func (h *AdminBridgeHandler) RegisterAsset(c *gin.Context) {
	l, ok := h.bridge.ledger(c)
	if !ok {
		return
	}
	var req RegisterAssetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "INVALID_REQUEST", err.Error())
		return
	}
	foreign, ok := parseAddress(req.Foreign)
	if !ok {
		respondBadRequest(c, "INVALID_ADDRESS", "foreign must be a hex address")
		return
	}
	home, ok := parseAddress(req.Home)
	if !ok {
		respondBadRequest(c, "INVALID_ADDRESS", "home must be a hex address")
		return
	}
	var limits *bridge.Limits
	if req.Limits != nil {
		lim, err := req.Limits.limits()
		if err != nil {
			respondBadRequest(c, "INVALID_AMOUNT", err.Error())
			return
		}
		limits = &lim
	}

	pair, err := l.RegisterAsset(c.Request.Context(), h.owner, foreign, home, limits)
	if err != nil {
		respondError(c, err)
		return
	}
	h.audit(c, l, "register_asset", logrus.Fields{"foreign": foreign.Hex(), "home": home.Hex()})
	c.JSON(http.StatusCreated, gin.H{"success": true, "data": pair})
}

// SetLimits PUT /api/v1/admin/:side/limits/:asset
func (h *AdminBridgeHandler) SetLimits(c *gin.Context) {
	l, ok := h.bridge.ledger(c)
	if !ok {
		return
	}
	asset, ok := parseAddress(c.Param("asset"))
	if !ok {
		respondBadRequest(c, "INVALID_ADDRESS", "asset must be a hex address")
		return
	}
	var req LimitsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "INVALID_REQUEST", err.Error())
		return
	}
	limits, err := req.limits()
	if err != nil {
		respondBadRequest(c, "INVALID_AMOUNT", err.Error())
		return
	}
	if err := l.SetLimits(c.Request.Context(), h.owner, asset, limits); err != nil {
		respondError(c, err)
		return
	}
	h.audit(c, l, "set_limits", logrus.Fields{
		"asset":       asset.Hex(),
		"daily_limit": limits.DailyLimit.String(),
		"max_per_tx":  limits.MaxPerTx.String(),
		"min_per_tx":  limits.MinPerTx.String(),
	})
	respondOK(c, gin.H{"asset": asset, "limits": limits})
}

// SetGasPrice PUT /api/v1/admin/:side/gas-price
func (h *AdminBridgeHandler) SetGasPrice(c *gin.Context) {
	l, ok := h.bridge.ledger(c)
	if !ok {
		return
	}
	var req GasPriceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "INVALID_REQUEST", err.Error())
		return
	}
	price, err := config.ParseAmount(req.GasPrice)
	if err != nil {
		respondBadRequest(c, "INVALID_AMOUNT", err.Error())
		return
	}
	if err := l.SetGasPrice(c.Request.Context(), h.owner, price); err != nil {
		respondError(c, err)
		return
	}
	h.audit(c, l, "set_gas_price", logrus.Fields{"gas_price": price.String()})
	respondOK(c, gin.H{"gasPrice": price})
}

// SetConfirmations PUT /api/v1/admin/:side/confirmations
func (h *AdminBridgeHandler) SetConfirmations(c *gin.Context) {
	l, ok := h.bridge.ledger(c)
	if !ok {
		return
	}
	var req ConfirmationsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "INVALID_REQUEST", err.Error())
		return
	}
	if err := l.SetRequiredBlockConfirmations(c.Request.Context(), h.owner, req.RequiredBlockConfirmations); err != nil {
		respondError(c, err)
		return
	}
	h.audit(c, l, "set_confirmations", logrus.Fields{"confirmations": req.RequiredBlockConfirmations})
	respondOK(c, gin.H{"requiredBlockConfirmations": req.RequiredBlockConfirmations})
}

// ClaimTokens POST /api/v1/admin/:side/claims
// Recovers a non-bridged asset held by the ledger.
func (h *AdminBridgeHandler) ClaimTokens(c *gin.Context) {
	l, ok := h.bridge.ledger(c)
	if !ok {
		return
	}
	var req ClaimRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "INVALID_REQUEST", err.Error())
		return
	}
	asset, ok := parseAddress(req.Asset)
	if !ok {
		respondBadRequest(c, "INVALID_ADDRESS", "asset must be a hex address")
		return
	}
	to, ok := parseAddress(req.To)
	if !ok {
		respondBadRequest(c, "INVALID_ADDRESS", "to must be a hex address")
		return
	}
	amount, err := l.ClaimTokens(c.Request.Context(), h.owner, asset, to)
	if err != nil {
		respondError(c, err)
		return
	}
	h.audit(c, l, "claim_tokens", logrus.Fields{
		"asset":  asset.Hex(),
		"to":     to.Hex(),
		"amount": fmt.Sprint(amount),
	})
	respondOK(c, gin.H{"asset": asset, "to": to, "amount": amount})
}
