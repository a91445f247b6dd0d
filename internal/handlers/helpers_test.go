package handlers

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"math/big"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/ContractLand/terra-bridge-contracts/internal/bridge"
	"github.com/ContractLand/terra-bridge-contracts/internal/chain"
	"github.com/ContractLand/terra-bridge-contracts/internal/store"
)

var (
	owner     = common.HexToAddress("0x000000000000000000000000000000000000000a")
	bob       = common.HexToAddress("0x00000000000000000000000000000000000000b0")
	relayer   = common.HexToAddress("0x00000000000000000000000000000000000000e1")
	ledgerAt  = common.HexToAddress("0x0000000000000000000000000000000000b41d9e")
	registry  = common.HexToAddress("0x00000000000000000000000000000000000ba11d")
	wrappedAt = common.HexToAddress("0x0000000000000000000000000000000000007002")
)

func eth(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1e18))
}

type apiFixture struct {
	t       *testing.T
	ctx     context.Context
	home    *bridge.Ledger
	foreign *bridge.Ledger
	keys    []*ecdsa.PrivateKey
	engine  *gin.Engine
}

func newChainLedger(t *testing.T, side bridge.Side, id uint64, validators []common.Address, threshold uint64, recoverer *bridge.Recoverer) *bridge.Ledger {
	t.Helper()
	ctx := context.Background()

	st, err := store.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	ch := chain.New(side.String(), id, st, chain.Options{
		Clock:      func() time.Time { return time.Unix(1_700_000_000, 0) },
		ErrorLabel: func(err error) string { return bridge.KindOf(err).String() },
	})
	reg := bridge.NewValidatorRegistry(ch, registry, nil)
	require.NoError(t, reg.Initialize(ctx, threshold, validators, owner))

	cfg := bridge.LedgerConfig{Address: ledgerAt, NativeDecimals: 18, Recoverer: recoverer}
	var l *bridge.Ledger
	if side == bridge.Home {
		l, err = bridge.NewHomeLedger(reg, cfg)
	} else {
		l, err = bridge.NewForeignLedger(reg, cfg)
	}
	require.NoError(t, err)
	require.NoError(t, l.Initialize(ctx, owner, bridge.InitParams{
		Limits:                     bridge.Limits{DailyLimit: eth(100), MaxPerTx: eth(50), MinPerTx: eth(1)},
		GasPrice:                   big.NewInt(1_000_000_000),
		RequiredBlockConfirmations: 8,
	}))
	return l
}

// newAPIFixture builds both ledgers with three validators and threshold two.
// The home ledger pays native coin for wrappedAt on the foreign side and holds
// 10 ether to pay with.
func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	keys := make([]*ecdsa.PrivateKey, 3)
	addrs := make([]common.Address, 3)
	for i := range keys {
		k, err := crypto.GenerateKey()
		require.NoError(t, err)
		keys[i] = k
		addrs[i] = crypto.PubkeyToAddress(k.PublicKey)
	}
	recoverer, err := bridge.NewRecoverer(64)
	require.NoError(t, err)

	f := &apiFixture{
		t:       t,
		ctx:     context.Background(),
		home:    newChainLedger(t, bridge.Home, 77, addrs, 2, recoverer),
		foreign: newChainLedger(t, bridge.Foreign, 99, addrs, 2, recoverer),
		keys:    keys,
	}
	_, err = f.home.RegisterAsset(f.ctx, owner, wrappedAt, bridge.NativeAsset, nil)
	require.NoError(t, err)
	require.NoError(t, f.home.Chain().Execute(f.ctx, "fund", func(c *chain.Context) error {
		return c.Credit(ledgerAt, eth(10))
	}))

	bh := NewBridgeHandler(f.home, f.foreign, recoverer, nil)
	ah := NewAdminBridgeHandler(bh, owner, nil)

	r := gin.New()
	side := r.Group("/api/v1/:side")
	side.GET("/status", bh.GetStatus)
	side.GET("/assets", bh.GetAssets)
	side.GET("/limits/:asset", bh.GetLimits)
	side.GET("/transfers/:ref", bh.GetTransfer)
	side.GET("/messages/:hash", bh.GetMessage)
	side.POST("/messages/:hash/finalize", bh.FinalizeMessage)
	side.POST("/signatures", bh.SubmitSignature)
	side.POST("/executions", bh.ExecuteTransfer)
	side.POST("/withdrawals", bh.Withdraw)
	side.POST("/deposits", bh.Deposit)
	side.GET("/deposits/:address/nonce", bh.GetDepositNonce)

	admin := r.Group("/admin/:side")
	admin.POST("/validators", ah.AddValidator)
	admin.DELETE("/validators/:address", ah.RemoveValidator)
	admin.PUT("/threshold", ah.SetThreshold)
	admin.POST("/assets", ah.RegisterAsset)
	admin.PUT("/limits/:asset", ah.SetLimits)
	admin.PUT("/gas-price", ah.SetGasPrice)
	admin.PUT("/confirmations", ah.SetConfirmations)
	admin.POST("/claims", ah.ClaimTokens)

	f.engine = r
	return f
}

type apiResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Code    string          `json:"code"`
}

func (f *apiFixture) do(method, path string, body interface{}) (int, apiResponse) {
	f.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(f.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.engine.ServeHTTP(w, req)

	var resp apiResponse
	require.NoError(f.t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return w.Code, resp
}

func (f *apiFixture) message(amount *big.Int, sourceTx string) []byte {
	f.t.Helper()
	raw, err := (&bridge.Message{
		Asset:     bridge.NativeAsset,
		Recipient: bob,
		Amount:    amount,
		SourceTx:  common.HexToHash(sourceTx),
	}).Encode()
	require.NoError(f.t, err)
	return raw
}

func (f *apiFixture) sign(i int, message []byte) string {
	f.t.Helper()
	sig, err := bridge.SignMessage(f.keys[i], message)
	require.NoError(f.t, err)
	return hexutil.Encode(sig)
}

func (f *apiFixture) homeBalance(addr common.Address) *big.Int {
	f.t.Helper()
	var bal *big.Int
	require.NoError(f.t, f.home.Chain().View(f.ctx, func(c *chain.Context) error {
		var err error
		bal, err = c.Balance(addr)
		return err
	}))
	return bal
}
