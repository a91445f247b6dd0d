package bridge

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/ContractLand/terra-bridge-contracts/internal/chain"
	"github.com/ContractLand/terra-bridge-contracts/internal/events"
	"github.com/ContractLand/terra-bridge-contracts/internal/token"
)

var issuer = common.HexToAddress("0x0000000000000000000000000000000000001551")

// usd returns n whole units of a 6-decimal token.
func usd(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1_000_000))
}

// newForeignFixture registers a 6-decimal foreign token and funds alice with it.
func newForeignFixture(t *testing.T) *fixture {
	t.Helper()
	f := newLedgerFixture(t, Foreign, 3, 2)
	f.deployToken(foreignToken, issuer, 6)
	require.NoError(t, f.exec(func(c *chain.Context) error {
		tk, err := token.Load(c, foreignToken)
		if err != nil {
			return err
		}
		return tk.Mint(c, issuer, alice, usd(100))
	}))

	limits := Limits{DailyLimit: eth(100), MaxPerTx: eth(50), MinPerTx: eth(1)}
	_, err := f.ledger.RegisterAsset(f.ctx, owner, foreignToken, homeToken, &limits)
	require.NoError(t, err)
	f.rec.Reset()
	return f
}

func (f *fixture) withToken(addr common.Address, fn func(c *chain.Context, tk *token.Token) error) error {
	return f.exec(func(c *chain.Context) error {
		tk, err := token.Load(c, addr)
		if err != nil {
			return err
		}
		return fn(c, tk)
	})
}

func TestForeignLocksOnTransferAndCall(t *testing.T) {
	require := require.New(t)
	f := newForeignFixture(t)

	require.NoError(f.withToken(foreignToken, func(c *chain.Context, tk *token.Token) error {
		return tk.TransferAndCall(c, alice, bridgeAddr, usd(10), nil)
	}))
	require.Equal(0, f.tokenBalance(foreignToken, bridgeAddr).Cmp(usd(10)))
	require.Equal(0, f.tokenSupply(foreignToken).Cmp(usd(100)))

	initiated := f.rec.Named(events.TransferInitiated)
	require.Len(initiated, 1)
	require.Equal(homeToken, initiated[0].Asset)
	require.Equal(alice, initiated[0].Recipient)
	require.Equal(0, initiated[0].Amount.Cmp(eth(10)))
	require.Equal(foreignToken.Hex(), initiated[0].Attr("localAsset"))

	today, err := f.ledger.Today(f.ctx)
	require.NoError(err)
	spent, err := f.ledger.Spent(f.ctx, foreignToken, Outbound, today)
	require.NoError(err)
	require.Equal(0, spent.Cmp(eth(10)))

	// half a unit is below the one-unit minimum
	err = f.withToken(foreignToken, func(c *chain.Context, tk *token.Token) error {
		return tk.TransferAndCall(c, alice, bridgeAddr, big.NewInt(500_000), nil)
	})
	require.True(errors.Is(err, ErrBelowMinPerTx))
	require.Equal(0, f.tokenBalance(foreignToken, alice).Cmp(usd(90)))
}

func TestForeignRelayTokensSpendsOwnAllowance(t *testing.T) {
	require := require.New(t)
	f := newForeignFixture(t)

	_, err := f.ledger.RelayTokens(f.ctx, alice, foreignToken, bob, usd(20))
	require.True(errors.Is(err, ErrInsufficientFunds))

	require.NoError(f.withToken(foreignToken, func(c *chain.Context, tk *token.Token) error {
		return tk.Approve(c, alice, bridgeAddr, usd(20))
	}))

	// someone else cannot ride on alice's approval
	_, err = f.ledger.RelayTokens(f.ctx, stranger, foreignToken, stranger, usd(20))
	require.True(errors.Is(err, ErrInsufficientFunds))

	ref, err := f.ledger.RelayTokens(f.ctx, alice, foreignToken, bob, usd(20))
	require.NoError(err)
	require.NotEqual(common.Hash{}, ref)
	require.Equal(0, f.tokenBalance(foreignToken, alice).Cmp(usd(80)))
	require.Equal(0, f.tokenBalance(foreignToken, bridgeAddr).Cmp(usd(20)))

	initiated := f.rec.Named(events.TransferInitiated)
	require.Len(initiated, 1)
	require.Equal(bob, initiated[0].Recipient)
	require.Equal(ref, initiated[0].TransferID)

	_, err = f.ledger.RelayTokens(f.ctx, alice, strayToken, bob, usd(1))
	require.True(errors.Is(err, ErrAssetNotRegistered))
}

func TestForeignReleaseTruncatesToTokenDecimals(t *testing.T) {
	require := require.New(t)
	f := newForeignFixture(t)
	require.NoError(f.withToken(foreignToken, func(c *chain.Context, tk *token.Token) error {
		return tk.TransferAndCall(c, alice, bridgeAddr, usd(10), nil)
	}))

	amount := new(big.Int).Add(eth(5), big.NewInt(999))
	msg := &Message{Asset: foreignToken, Recipient: bob, Amount: amount, SourceTx: common.HexToHash("0x10")}
	require.NoError(f.ledger.ExecuteInbound(f.ctx, relayer, msg, f.signAll(encode(t, msg), 1, 2)))
	require.Equal(0, f.tokenBalance(foreignToken, bob).Cmp(usd(5)))
	require.Equal(0, f.tokenBalance(foreignToken, bridgeAddr).Cmp(usd(5)))

	executed := f.rec.Named(events.TransferExecuted)
	require.Len(executed, 1)
	require.Equal(usd(5).String(), executed[0].Attr("localAmount"))

	// more than is locked
	over := &Message{Asset: foreignToken, Recipient: bob, Amount: eth(6), SourceTx: common.HexToHash("0x11")}
	err := f.ledger.ExecuteInbound(f.ctx, relayer, over, f.signAll(encode(t, over), 0, 1))
	require.True(errors.Is(err, ErrInsufficientFunds))
	done, err := f.ledger.IsExecuted(f.ctx, over.SourceTx)
	require.NoError(err)
	require.False(done)
}

func TestForeignHookRejectsUnregisteredOrUnfunded(t *testing.T) {
	require := require.New(t)
	f := newForeignFixture(t)

	f.deployToken(strayToken, issuer, 18)
	require.NoError(f.withToken(strayToken, func(c *chain.Context, tk *token.Token) error {
		return tk.Mint(c, issuer, alice, eth(5))
	}))
	err := f.withToken(strayToken, func(c *chain.Context, tk *token.Token) error {
		return tk.TransferAndCall(c, alice, bridgeAddr, eth(5), nil)
	})
	require.True(errors.Is(err, ErrNotRegisteredToken))
	require.Equal(0, f.tokenBalance(strayToken, alice).Cmp(eth(5)))

	// a direct call that did not move any tokens
	err = f.exec(func(c *chain.Context) error {
		return f.ledger.OnTokenTransfer(c, foreignToken, alice, usd(5), nil)
	})
	require.True(errors.Is(err, ErrTransferNotFunded))
}

func TestForeignClaimTokens(t *testing.T) {
	require := require.New(t)
	f := newForeignFixture(t)

	f.deployToken(strayToken, issuer, 18)
	require.NoError(f.withToken(strayToken, func(c *chain.Context, tk *token.Token) error {
		return tk.Mint(c, issuer, bridgeAddr, eth(3))
	}))

	_, err := f.ledger.ClaimTokens(f.ctx, stranger, strayToken, bob)
	require.True(errors.Is(err, ErrNotOwner))
	_, err = f.ledger.ClaimTokens(f.ctx, owner, foreignToken, bob)
	require.True(errors.Is(err, ErrClaimBridgedAsset))
	_, err = f.ledger.ClaimTokens(f.ctx, owner, strayToken, common.Address{})
	require.True(errors.Is(err, ErrInvalidRecipient))

	claimed, err := f.ledger.ClaimTokens(f.ctx, owner, strayToken, bob)
	require.NoError(err)
	require.Equal(0, claimed.Cmp(eth(3)))
	require.Equal(0, f.tokenBalance(strayToken, bob).Cmp(eth(3)))

	// native coin is not registered on this ledger
	f.credit(bridgeAddr, eth(2))
	claimed, err = f.ledger.ClaimTokens(f.ctx, owner, NativeAsset, bob)
	require.NoError(err)
	require.Equal(0, claimed.Cmp(eth(2)))
	require.Equal(0, f.nativeBalance(bob).Cmp(eth(2)))
	require.Len(f.rec.Named(events.TokensClaimed), 2)
}

func TestForeignHookCannotReannounceLockedTokens(t *testing.T) {
	require := require.New(t)
	f := newForeignFixture(t)

	require.NoError(f.withToken(foreignToken, func(c *chain.Context, tk *token.Token) error {
		return tk.TransferAndCall(c, alice, bridgeAddr, usd(40), nil)
	}))
	locked, err := f.ledger.Locked(f.ctx, foreignToken)
	require.NoError(err)
	require.Equal(0, locked.Cmp(usd(40)))

	// the ledger sending its own locked tokens to itself
	err = f.withToken(foreignToken, func(c *chain.Context, tk *token.Token) error {
		return tk.TransferAndCall(c, bridgeAddr, bridgeAddr, usd(40), stranger.Bytes())
	})
	require.ErrorIs(err, token.ErrSelfNotify)

	// calling the hook without any transfer
	err = f.exec(func(c *chain.Context) error {
		return f.ledger.OnTokenTransfer(c, foreignToken, stranger, usd(10), nil)
	})
	require.True(errors.Is(err, ErrTransferNotFunded))

	// tokens sent without a notification are not available to a forged one
	require.NoError(f.withToken(foreignToken, func(c *chain.Context, tk *token.Token) error {
		return tk.Transfer(c, alice, bridgeAddr, usd(5))
	}))
	err = f.exec(func(c *chain.Context) error {
		_, err := c.Deliver(chain.Delivery{Token: foreignToken, From: stranger, To: bridgeAddr, Amount: usd(10)}, nil)
		return err
	})
	require.True(errors.Is(err, ErrTransferNotFunded))

	require.Len(f.rec.Named(events.TransferInitiated), 1)
	locked, err = f.ledger.Locked(f.ctx, foreignToken)
	require.NoError(err)
	require.Equal(0, locked.Cmp(usd(40)))
	require.Equal(0, f.tokenBalance(foreignToken, bridgeAddr).Cmp(usd(45)))

	// releases draw on the locked count only
	msg := &Message{Asset: foreignToken, Recipient: bob, Amount: eth(40), SourceTx: common.HexToHash("0x40")}
	require.NoError(f.ledger.ExecuteInbound(f.ctx, relayer, msg, f.signAll(encode(t, msg), 0, 1)))
	extra := &Message{Asset: foreignToken, Recipient: bob, Amount: eth(5), SourceTx: common.HexToHash("0x41")}
	err = f.ledger.ExecuteInbound(f.ctx, relayer, extra, f.signAll(encode(t, extra), 0, 1))
	require.True(errors.Is(err, ErrInsufficientFunds))
	require.Equal(0, f.tokenBalance(foreignToken, bridgeAddr).Cmp(usd(5)))

	locked, err = f.ledger.Locked(f.ctx, foreignToken)
	require.NoError(err)
	require.Zero(locked.Sign())
}
