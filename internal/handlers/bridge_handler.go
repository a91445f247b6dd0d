package handlers

import (
	"math/big"
	"net/http"

	"github.com/ContractLand/terra-bridge-contracts/internal/bridge"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// BridgeHandler relayer and validator API over the two ledgers.
type BridgeHandler struct {
	home      *bridge.Ledger
	foreign   *bridge.Ledger
	recoverer *bridge.Recoverer
	logger    *logrus.Logger
}

func NewBridgeHandler(home, foreign *bridge.Ledger, recoverer *bridge.Recoverer, logger *logrus.Logger) *BridgeHandler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &BridgeHandler{
		home:      home,
		foreign:   foreign,
		recoverer: recoverer,
		logger:    logger,
	}
}

// SubmitSignatureRequest one validator signature over a transfer message.
type SubmitSignatureRequest struct {
	Signature string `json:"signature" binding:"required"`
	Message   string `json:"message" binding:"required"`
}

// ExecuteRequest a message with a full signature bundle.
type ExecuteRequest struct {
	Message    string   `json:"message" binding:"required"`
	Signatures []string `json:"signatures" binding:"required"`
	Relayer    string   `json:"relayer"`
}

// FinalizeRequest names the relayer credited with the payout.
type FinalizeRequest struct {
	Relayer string `json:"relayer"`
}

// WithdrawRequest a direct validator vote. The validator is the signer.
type WithdrawRequest struct {
	Message   string `json:"message" binding:"required"`
	Signature string `json:"signature" binding:"required"`
}

// DepositRequest an outbound transfer signed by its sender. Nonce must be
// the sender's next deposit nonce.
type DepositRequest struct {
	Kind      string  `json:"kind" binding:"required"`
	Asset     string  `json:"asset"`
	Recipient string  `json:"recipient"`
	Amount    string  `json:"amount" binding:"required"`
	Nonce     *uint64 `json:"nonce" binding:"required"`
	Signature string  `json:"signature" binding:"required"`
}

type bundleResponse struct {
	Hash       common.Hash            `json:"hash"`
	Message    hexutil.Bytes          `json:"message"`
	Signatures []hexutil.Bytes        `json:"signatures"`
	Signers    []common.Address       `json:"signers"`
	Votes      uint32                 `json:"votes"`
	State      bridge.CollectionState `json:"state"`
	Executed   bool                   `json:"executed"`
}

func (h *BridgeHandler) ledger(c *gin.Context) (*bridge.Ledger, bool) {
	side, err := bridge.ParseSide(c.Param("side"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"error":   err.Error(),
			"code":    "UNKNOWN_SIDE",
		})
		return nil, false
	}
	if side == bridge.Home {
		return h.home, true
	}
	return h.foreign, true
}

// GetStatus GET /api/v1/:side/status
func (h *BridgeHandler) GetStatus(c *gin.Context) {
	l, ok := h.ledger(c)
	if !ok {
		return
	}
	st, err := l.Status(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, st)
}

// GetAssets GET /api/v1/:side/assets
func (h *BridgeHandler) GetAssets(c *gin.Context) {
	l, ok := h.ledger(c)
	if !ok {
		return
	}
	assets, err := l.Assets(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	if assets == nil {
		assets = []bridge.AssetPair{}
	}
	respondOK(c, assets)
}

// GetLimits GET /api/v1/:side/limits/:asset
// Reports the configured limits and today's usage in both directions.
func (h *BridgeHandler) GetLimits(c *gin.Context) {
	l, ok := h.ledger(c)
	if !ok {
		return
	}
	asset, ok := parseAddress(c.Param("asset"))
	if !ok {
		respondBadRequest(c, "INVALID_ADDRESS", "asset must be a hex address")
		return
	}
	ctx := c.Request.Context()

	limits, err := l.Limits(ctx, asset)
	if err != nil {
		respondError(c, err)
		return
	}
	day, err := l.Today(ctx)
	if err != nil {
		respondError(c, err)
		return
	}
	spentOut, err := l.Spent(ctx, asset, bridge.Outbound, day)
	if err != nil {
		respondError(c, err)
		return
	}
	spentIn, err := l.Spent(ctx, asset, bridge.Inbound, day)
	if err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, gin.H{
		"asset":    asset,
		"limits":   limits,
		"day":      day,
		"spentOut": spentOut,
		"spentIn":  spentIn,
	})
}

// GetTransfer GET /api/v1/:side/transfers/:ref
func (h *BridgeHandler) GetTransfer(c *gin.Context) {
	l, ok := h.ledger(c)
	if !ok {
		return
	}
	ref, ok := parseHash(c.Param("ref"))
	if !ok {
		respondBadRequest(c, "INVALID_HASH", "ref must be a 32-byte hex value")
		return
	}
	executed, err := l.IsExecuted(c.Request.Context(), ref)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, gin.H{"ref": ref, "executed": executed})
}

// GetMessage GET /api/v1/:side/messages/:hash
func (h *BridgeHandler) GetMessage(c *gin.Context) {
	l, ok := h.ledger(c)
	if !ok {
		return
	}
	hash, ok := parseHash(c.Param("hash"))
	if !ok {
		respondBadRequest(c, "INVALID_HASH", "hash must be a 32-byte hex value")
		return
	}
	ctx := c.Request.Context()
	b, err := l.Bundle(ctx, hash)
	if err != nil {
		respondError(c, err)
		return
	}

	resp := bundleResponse{
		Hash:       b.Hash,
		Message:    b.Message,
		Signatures: make([]hexutil.Bytes, len(b.Signatures)),
		Signers:    b.Signers,
		Votes:      b.Votes,
		State:      b.State,
	}
	for i, sig := range b.Signatures {
		resp.Signatures[i] = sig
	}
	if msg, err := bridge.ParseMessage(b.Message); err == nil {
		if resp.Executed, err = l.IsExecuted(ctx, msg.SourceTx); err != nil {
			respondError(c, err)
			return
		}
	}
	respondOK(c, resp)
}

// SubmitSignature POST /api/v1/:side/signatures
// The submitter is the recovered signer.
func (h *BridgeHandler) SubmitSignature(c *gin.Context) {
	l, ok := h.ledger(c)
	if !ok {
		return
	}
	var req SubmitSignatureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "INVALID_REQUEST", err.Error())
		return
	}
	sig, message, ok := decodeSigned(c, req.Signature, req.Message)
	if !ok {
		return
	}
	signer, err := h.recoverer.Recover(sig, message)
	if err != nil {
		respondError(c, err)
		return
	}

	res, err := l.SubmitSignature(c.Request.Context(), signer, sig, message)
	if err != nil {
		h.logger.WithFields(logrus.Fields{
			"side":   l.Side().String(),
			"signer": signer.Hex(),
			"error":  err.Error(),
		}).Warn("signature rejected")
		respondError(c, err)
		return
	}
	respondOK(c, gin.H{
		"hash":          res.Hash,
		"signer":        res.Signer,
		"votes":         res.Votes,
		"threshold":     res.Threshold,
		"quorumReached": res.QuorumReached,
	})
}

// FinalizeMessage POST /api/v1/:side/messages/:hash/finalize
func (h *BridgeHandler) FinalizeMessage(c *gin.Context) {
	l, ok := h.ledger(c)
	if !ok {
		return
	}
	hash, ok := parseHash(c.Param("hash"))
	if !ok {
		respondBadRequest(c, "INVALID_HASH", "hash must be a 32-byte hex value")
		return
	}
	var req FinalizeRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBadRequest(c, "INVALID_REQUEST", err.Error())
			return
		}
	}
	relayer, ok := optionalAddress(c, req.Relayer)
	if !ok {
		return
	}

	if err := l.Finalize(c.Request.Context(), relayer, hash); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, gin.H{"hash": hash, "executed": true})
}

// ExecuteTransfer POST /api/v1/:side/executions
func (h *BridgeHandler) ExecuteTransfer(c *gin.Context) {
	l, ok := h.ledger(c)
	if !ok {
		return
	}
	var req ExecuteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "INVALID_REQUEST", err.Error())
		return
	}
	raw, err := decodeHex(req.Message)
	if err != nil {
		respondBadRequest(c, "INVALID_MESSAGE", "message must be hex encoded")
		return
	}
	msg, err := bridge.ParseMessage(raw)
	if err != nil {
		respondError(c, err)
		return
	}
	sigs := make([][]byte, 0, len(req.Signatures))
	for _, s := range req.Signatures {
		sig, err := decodeHex(s)
		if err != nil {
			respondBadRequest(c, "INVALID_SIGNATURE", "signatures must be hex encoded")
			return
		}
		sigs = append(sigs, sig)
	}
	relayer, ok := optionalAddress(c, req.Relayer)
	if !ok {
		return
	}

	if err := l.ExecuteInbound(c.Request.Context(), relayer, msg, sigs); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, gin.H{"ref": msg.SourceTx, "executed": true})
}

// Withdraw POST /api/v1/:side/withdrawals
// Counts one direct vote by the recovered validator.
func (h *BridgeHandler) Withdraw(c *gin.Context) {
	l, ok := h.ledger(c)
	if !ok {
		return
	}
	var req WithdrawRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "INVALID_REQUEST", err.Error())
		return
	}
	sig, raw, ok := decodeSigned(c, req.Signature, req.Message)
	if !ok {
		return
	}
	msg, err := bridge.ParseMessage(raw)
	if err != nil {
		respondError(c, err)
		return
	}
	validator, err := h.recoverer.Recover(sig, raw)
	if err != nil {
		respondError(c, err)
		return
	}

	executed, err := l.Withdraw(c.Request.Context(), validator, msg)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, gin.H{
		"ref":       msg.SourceTx,
		"validator": validator,
		"executed":  executed,
	})
}

// Deposit POST /api/v1/:side/deposits
// The sender is the recovered signer of the deposit payload.
func (h *BridgeHandler) Deposit(c *gin.Context) {
	l, ok := h.ledger(c)
	if !ok {
		return
	}
	var req DepositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "INVALID_REQUEST", err.Error())
		return
	}
	kind, err := bridge.ParseDepositKind(req.Kind)
	if err != nil {
		respondError(c, err)
		return
	}
	amount, ok := new(big.Int).SetString(req.Amount, 10)
	if !ok {
		respondBadRequest(c, "INVALID_AMOUNT", "amount must be a decimal integer")
		return
	}
	d := &bridge.Deposit{Kind: kind, Amount: amount, Nonce: *req.Nonce}
	if req.Asset != "" {
		if d.Asset, ok = parseAddress(req.Asset); !ok {
			respondBadRequest(c, "INVALID_ADDRESS", "asset must be a hex address")
			return
		}
	}
	if req.Recipient != "" {
		if d.Recipient, ok = parseAddress(req.Recipient); !ok {
			respondBadRequest(c, "INVALID_ADDRESS", "recipient must be a hex address")
			return
		}
	}
	sig, err := decodeHex(req.Signature)
	if err != nil {
		respondBadRequest(c, "INVALID_SIGNATURE", "signature must be hex encoded")
		return
	}

	sender, ref, err := l.Deposit(c.Request.Context(), d, sig)
	if err != nil {
		h.logger.WithFields(logrus.Fields{
			"side":   l.Side().String(),
			"kind":   kind.String(),
			"sender": sender.Hex(),
			"error":  err.Error(),
		}).Warn("deposit rejected")
		respondError(c, err)
		return
	}
	respondOK(c, gin.H{
		"ref":    ref,
		"sender": sender,
		"nonce":  d.Nonce,
	})
}

// GetDepositNonce GET /api/v1/:side/deposits/:address/nonce
func (h *BridgeHandler) GetDepositNonce(c *gin.Context) {
	l, ok := h.ledger(c)
	if !ok {
		return
	}
	sender, ok := parseAddress(c.Param("address"))
	if !ok {
		respondBadRequest(c, "INVALID_ADDRESS", "address must be a hex address")
		return
	}
	next, err := l.DepositNonce(c.Request.Context(), sender)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, gin.H{"address": sender, "nonce": next})
}

func decodeSigned(c *gin.Context, signature, message string) ([]byte, []byte, bool) {
	sig, err := decodeHex(signature)
	if err != nil {
		respondBadRequest(c, "INVALID_SIGNATURE", "signature must be hex encoded")
		return nil, nil, false
	}
	raw, err := decodeHex(message)
	if err != nil {
		respondBadRequest(c, "INVALID_MESSAGE", "message must be hex encoded")
		return nil, nil, false
	}
	return sig, raw, true
}

func optionalAddress(c *gin.Context, s string) (common.Address, bool) {
	if s == "" {
		return common.Address{}, true
	}
	addr, ok := parseAddress(s)
	if !ok {
		respondBadRequest(c, "INVALID_ADDRESS", "relayer must be a hex address")
	}
	return addr, ok
}
