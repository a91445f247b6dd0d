package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/ContractLand/terra-bridge-contracts/internal/models"
	"github.com/ContractLand/terra-bridge-contracts/internal/repository"

	"github.com/gin-gonic/gin"
)

// AuditHandler read-only queries over the persisted event trail.
type AuditHandler struct {
	events     repository.BridgeEventRepository
	transfers  repository.TransferRepository
	signatures repository.SignatureRepository
}

func NewAuditHandler(
	eventRepo repository.BridgeEventRepository,
	transferRepo repository.TransferRepository,
	signatureRepo repository.SignatureRepository,
) *AuditHandler {
	return &AuditHandler{
		events:     eventRepo,
		transfers:  transferRepo,
		signatures: signatureRepo,
	}
}

func paging(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	return page, limit
}

func respondPage(c *gin.Context, data interface{}, page, limit int, total int64) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    data,
		"pagination": gin.H{
			"page":        page,
			"limit":       limit,
			"total":       total,
			"total_pages": (total + int64(limit) - 1) / int64(limit),
		},
	})
}

func internalError(c *gin.Context, err error) {
	c.JSON(http.StatusInternalServerError, gin.H{
		"success": false,
		"error":   err.Error(),
		"code":    "INTERNAL",
	})
}

// GetTransfer GET /api/v1/audit/transfers/:id
func (h *AuditHandler) GetTransfer(c *gin.Context) {
	ref, ok := parseHash(c.Param("id"))
	if !ok {
		respondBadRequest(c, "INVALID_HASH", "id must be a 32-byte hex value")
		return
	}
	ctx := c.Request.Context()
	t, err := h.transfers.GetByTransferID(ctx, ref.Hex())
	if errors.Is(err, repository.ErrTransferNotFound) {
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"error":   "Transfer not found",
			"code":    "NOT_FOUND",
		})
		return
	}
	if err != nil {
		internalError(c, err)
		return
	}
	evs, err := h.events.FindByTransferID(ctx, t.TransferID)
	if err != nil {
		internalError(c, err)
		return
	}
	respondOK(c, gin.H{"transfer": t, "events": evs})
}

// ListTransfers GET /api/v1/audit/transfers?status=&recipient=
func (h *AuditHandler) ListTransfers(c *gin.Context) {
	page, limit := paging(c)
	ctx := c.Request.Context()

	var (
		list  []*models.Transfer
		total int64
		err   error
	)
	if r := c.Query("recipient"); r != "" {
		addr, ok := parseAddress(r)
		if !ok {
			respondBadRequest(c, "INVALID_ADDRESS", "recipient must be a hex address")
			return
		}
		list, total, err = h.transfers.FindByRecipient(ctx, addr.Hex(), page, limit)
	} else {
		list, total, err = h.transfers.FindByStatus(ctx, models.TransferStatus(c.Query("status")), page, limit)
	}
	if err != nil {
		internalError(c, err)
		return
	}
	respondPage(c, list, page, limit, total)
}

// ListEvents GET /api/v1/audit/events?chain=&name=
func (h *AuditHandler) ListEvents(c *gin.Context) {
	page, limit := paging(c)
	list, total, err := h.events.FindByChain(c.Request.Context(), c.Query("chain"), c.Query("name"), page, limit)
	if err != nil {
		internalError(c, err)
		return
	}
	respondPage(c, list, page, limit, total)
}

// GetMessage GET /api/v1/audit/messages/:chain/:hash
func (h *AuditHandler) GetMessage(c *gin.Context) {
	hash, ok := parseHash(c.Param("hash"))
	if !ok {
		respondBadRequest(c, "INVALID_HASH", "hash must be a 32-byte hex value")
		return
	}
	chain := c.Param("chain")
	ctx := c.Request.Context()

	signed, err := h.signatures.FindSigned(ctx, chain, hash.Hex())
	if err != nil {
		internalError(c, err)
		return
	}
	collected, err := h.signatures.GetCollected(ctx, chain, hash.Hex())
	if err != nil {
		internalError(c, err)
		return
	}
	respondOK(c, gin.H{"signatures": signed, "collected": collected})
}
