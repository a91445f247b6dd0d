package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/ContractLand/terra-bridge-contracts/internal/bridge"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gin-gonic/gin"
)

// statusForKind maps a bridge failure category to an HTTP status.
func statusForKind(k bridge.Kind) int {
	switch k {
	case bridge.KindAuthorization:
		return http.StatusForbidden
	case bridge.KindConfiguration, bridge.KindLimit, bridge.KindInvalidInput:
		return http.StatusUnprocessableEntity
	case bridge.KindDuplicate:
		return http.StatusConflict
	case bridge.KindQuorum:
		return http.StatusPreconditionFailed
	case bridge.KindState:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err in the common error envelope. Bridge errors carry
// their kind as the code.
func respondError(c *gin.Context, err error) {
	kind := bridge.KindOf(err)
	if errors.Is(err, bridge.ErrNotInitialized) {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"success": false,
			"error":   err.Error(),
			"code":    "NOT_INITIALIZED",
		})
		return
	}
	c.JSON(statusForKind(kind), gin.H{
		"success": false,
		"error":   err.Error(),
		"code":    strings.ToUpper(kind.String()),
	})
}

func respondBadRequest(c *gin.Context, code, message string) {
	c.JSON(http.StatusBadRequest, gin.H{
		"success": false,
		"error":   message,
		"code":    code,
	})
}

func respondOK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    data,
	})
}

func decodeHex(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		s = "0x" + s
	}
	return hexutil.Decode(s)
}

func parseHash(s string) (common.Hash, bool) {
	raw, err := decodeHex(s)
	if err != nil || len(raw) != common.HashLength {
		return common.Hash{}, false
	}
	return common.BytesToHash(raw), true
}

func parseAddress(s string) (common.Address, bool) {
	if !common.IsHexAddress(s) {
		return common.Address{}, false
	}
	return common.HexToAddress(s), true
}
