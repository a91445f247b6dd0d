package bridge

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"github.com/ContractLand/terra-bridge-contracts/internal/chain"
	"github.com/ContractLand/terra-bridge-contracts/internal/events"
	"github.com/ContractLand/terra-bridge-contracts/internal/store"
	"github.com/ContractLand/terra-bridge-contracts/internal/token"
)

var (
	owner    = common.HexToAddress("0x000000000000000000000000000000000000000a")
	alice    = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	bob      = common.HexToAddress("0x00000000000000000000000000000000000000b0")
	relayer  = common.HexToAddress("0x00000000000000000000000000000000000000e1")
	stranger = common.HexToAddress("0x00000000000000000000000000000000000000ff")

	bridgeAddr   = common.HexToAddress("0x0000000000000000000000000000000000b41d9e")
	homeToken    = common.HexToAddress("0x0000000000000000000000000000000000007001")
	foreignToken = common.HexToAddress("0x0000000000000000000000000000000000007002")
	strayToken   = common.HexToAddress("0x0000000000000000000000000000000000007003")
)

func eth(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1e18))
}

type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time          { return c.now }
func (c *testClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

type fixture struct {
	t          *testing.T
	ctx        context.Context
	chain      *chain.Chain
	rec        *events.Recorder
	clock      *testClock
	registry   *ValidatorRegistry
	ledger     *Ledger
	keys       []*ecdsa.PrivateKey
	validators []common.Address
}

func newKeys(t *testing.T, n int) ([]*ecdsa.PrivateKey, []common.Address) {
	t.Helper()
	keys := make([]*ecdsa.PrivateKey, n)
	addrs := make([]common.Address, n)
	for i := range keys {
		k, err := crypto.GenerateKey()
		require.NoError(t, err)
		keys[i] = k
		addrs[i] = crypto.PubkeyToAddress(k.PublicKey)
	}
	return keys, addrs
}

// newFixture returns a chain with an initialized validator registry.
func newFixture(t *testing.T, validators int, threshold uint64) *fixture {
	t.Helper()

	st, err := store.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	clock := &testClock{now: time.Unix(1_700_000_000, 0)}
	rec := events.NewRecorder()
	ch := chain.New("home", 1, st, chain.Options{
		Clock:      clock.Now,
		Sink:       rec,
		ErrorLabel: func(err error) string { return KindOf(err).String() },
	})

	keys, addrs := newKeys(t, validators)
	f := &fixture{
		t:          t,
		ctx:        context.Background(),
		chain:      ch,
		rec:        rec,
		clock:      clock,
		registry:   NewValidatorRegistry(ch, common.HexToAddress("0x00000000000000000000000000000000000ba11d"), nil),
		keys:       keys,
		validators: addrs,
	}
	require.NoError(t, f.registry.Initialize(f.ctx, threshold, addrs, owner))
	return f
}

// newLedgerFixture adds an initialized ledger for side with native limits
// 100/50/1 ether.
func newLedgerFixture(t *testing.T, side Side, validators int, threshold uint64) *fixture {
	t.Helper()
	f := newFixture(t, validators, threshold)

	recoverer, err := NewRecoverer(64)
	require.NoError(t, err)
	cfg := LedgerConfig{Address: bridgeAddr, NativeDecimals: 18, Recoverer: recoverer}
	if side == Home {
		f.ledger, err = NewHomeLedger(f.registry, cfg)
	} else {
		f.ledger, err = NewForeignLedger(f.registry, cfg)
	}
	require.NoError(t, err)

	require.NoError(t, f.ledger.Initialize(f.ctx, owner, InitParams{
		Limits:                     Limits{DailyLimit: eth(100), MaxPerTx: eth(50), MinPerTx: eth(1)},
		GasPrice:                   big.NewInt(1_000_000_000),
		RequiredBlockConfirmations: 8,
	}))
	f.rec.Reset()
	return f
}

func (f *fixture) exec(fn func(c *chain.Context) error) error {
	return f.chain.Execute(f.ctx, "test", fn)
}

func (f *fixture) credit(addr common.Address, amount *big.Int) {
	require.NoError(f.t, f.exec(func(c *chain.Context) error { return c.Credit(addr, amount) }))
}

func (f *fixture) deployToken(addr, tokenOwner common.Address, decimals uint8) {
	require.NoError(f.t, f.exec(func(c *chain.Context) error {
		_, err := token.Deploy(c, addr, tokenOwner, token.Metadata{Name: "Bridged", Symbol: "BRG", Decimals: decimals})
		return err
	}))
}

func (f *fixture) nativeBalance(addr common.Address) *big.Int {
	var bal *big.Int
	require.NoError(f.t, f.chain.View(f.ctx, func(c *chain.Context) error {
		var err error
		bal, err = c.Balance(addr)
		return err
	}))
	return bal
}

func (f *fixture) tokenBalance(tokenAddr, holder common.Address) *big.Int {
	var bal *big.Int
	require.NoError(f.t, f.chain.View(f.ctx, func(c *chain.Context) error {
		t, err := token.Load(c, tokenAddr)
		if err != nil {
			return err
		}
		bal, err = t.BalanceOf(c, holder)
		return err
	}))
	return bal
}

func (f *fixture) tokenSupply(tokenAddr common.Address) *big.Int {
	var supply *big.Int
	require.NoError(f.t, f.chain.View(f.ctx, func(c *chain.Context) error {
		t, err := token.Load(c, tokenAddr)
		if err != nil {
			return err
		}
		supply, err = t.TotalSupply(c)
		return err
	}))
	return supply
}

func (f *fixture) sign(i int, message []byte) []byte {
	sig, err := SignMessage(f.keys[i], message)
	require.NoError(f.t, err)
	return sig
}

func (f *fixture) signAll(message []byte, idx ...int) [][]byte {
	sigs := make([][]byte, 0, len(idx))
	for _, i := range idx {
		sigs = append(sigs, f.sign(i, message))
	}
	return sigs
}

func encode(t *testing.T, m *Message) []byte {
	t.Helper()
	raw, err := m.Encode()
	require.NoError(t, err)
	return raw
}

func hashOf(t *testing.T, m *Message) common.Hash {
	t.Helper()
	h, err := m.Hash()
	require.NoError(t, err)
	return h
}
