package token

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/ContractLand/terra-bridge-contracts/internal/chain"
	"github.com/ContractLand/terra-bridge-contracts/internal/events"
	"github.com/ContractLand/terra-bridge-contracts/internal/store"
)

var (
	tokenAddr = common.HexToAddress("0x0000000000000000000000000000000000007001")
	owner     = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	alice     = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	bob       = common.HexToAddress("0x00000000000000000000000000000000000000b0")
	vault     = common.HexToAddress("0x0000000000000000000000000000000000000b1d")
)

type recordingReceiver struct {
	token  common.Address
	from   common.Address
	amount *big.Int
	data   []byte
	err    error

	delivery  chain.Delivery
	delivered bool
}

func (r *recordingReceiver) OnTokenTransfer(c *chain.Context, token, from common.Address, amount *big.Int, data []byte) error {
	r.token, r.from, r.amount, r.data = token, from, amount, data
	r.delivery, r.delivered = c.Delivery()
	return r.err
}

func setup(t *testing.T) (*chain.Chain, *events.Recorder) {
	t.Helper()
	st, err := store.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	rec := events.NewRecorder()
	ch := chain.New("home", 1, st, chain.Options{Sink: rec})
	require.NoError(t, ch.Execute(context.Background(), "deploy", func(c *chain.Context) error {
		_, err := Deploy(c, tokenAddr, owner, Metadata{Name: "Home Token", Symbol: "HT", Decimals: 18})
		return err
	}))
	return ch, rec
}

func exec(ch *chain.Chain, fn func(c *chain.Context, tok *Token) error) error {
	return ch.Execute(context.Background(), "test", func(c *chain.Context) error {
		tok, err := Load(c, tokenAddr)
		if err != nil {
			return err
		}
		return fn(c, tok)
	})
}

func balance(t *testing.T, ch *chain.Chain, holder common.Address) int64 {
	t.Helper()
	var out int64
	require.NoError(t, ch.View(context.Background(), func(c *chain.Context) error {
		tok, err := Load(c, tokenAddr)
		if err != nil {
			return err
		}
		bal, err := tok.BalanceOf(c, holder)
		out = bal.Int64()
		return err
	}))
	return out
}

func TestMintOnlyOwner(t *testing.T) {
	require := require.New(t)
	ch, _ := setup(t)

	err := exec(ch, func(c *chain.Context, tok *Token) error {
		return tok.Mint(c, alice, alice, big.NewInt(10))
	})
	require.ErrorIs(err, ErrNotOwner)

	require.NoError(exec(ch, func(c *chain.Context, tok *Token) error {
		return tok.Mint(c, owner, alice, big.NewInt(10))
	}))
	require.Equal(int64(10), balance(t, ch, alice))
}

func TestDeployTwiceFails(t *testing.T) {
	ch, _ := setup(t)
	err := ch.Execute(context.Background(), "deploy", func(c *chain.Context) error {
		_, err := Deploy(c, tokenAddr, owner, Metadata{Name: "Again", Symbol: "AG", Decimals: 6})
		return err
	})
	require.ErrorIs(t, err, ErrAlreadyDeployed)
}

func TestBurnReducesSupply(t *testing.T) {
	require := require.New(t)
	ch, _ := setup(t)

	require.NoError(exec(ch, func(c *chain.Context, tok *Token) error {
		if err := tok.Mint(c, owner, alice, big.NewInt(10)); err != nil {
			return err
		}
		return tok.Burn(c, alice, big.NewInt(4))
	}))
	require.Equal(int64(6), balance(t, ch, alice))

	err := exec(ch, func(c *chain.Context, tok *Token) error {
		return tok.Burn(c, alice, big.NewInt(7))
	})
	require.ErrorIs(err, ErrInsufficientBalance)
}

func TestTransferFromSpendsAllowance(t *testing.T) {
	require := require.New(t)
	ch, _ := setup(t)

	require.NoError(exec(ch, func(c *chain.Context, tok *Token) error {
		if err := tok.Mint(c, owner, alice, big.NewInt(10)); err != nil {
			return err
		}
		return tok.Approve(c, alice, vault, big.NewInt(6))
	}))

	err := exec(ch, func(c *chain.Context, tok *Token) error {
		return tok.TransferFrom(c, vault, alice, vault, big.NewInt(7))
	})
	require.ErrorIs(err, ErrInsufficientAllowance)

	require.NoError(exec(ch, func(c *chain.Context, tok *Token) error {
		return tok.TransferFrom(c, vault, alice, vault, big.NewInt(6))
	}))
	require.Equal(int64(4), balance(t, ch, alice))
	require.Equal(int64(6), balance(t, ch, vault))
}

func TestTransferAndCallNotifiesReceiver(t *testing.T) {
	require := require.New(t)
	ch, _ := setup(t)
	recv := &recordingReceiver{}
	ch.Register(vault, recv)

	require.NoError(exec(ch, func(c *chain.Context, tok *Token) error {
		if err := tok.Mint(c, owner, alice, big.NewInt(10)); err != nil {
			return err
		}
		return tok.TransferAndCall(c, alice, vault, big.NewInt(3), bob.Bytes())
	}))

	require.Equal(tokenAddr, recv.token)
	require.Equal(alice, recv.from)
	require.Equal(int64(3), recv.amount.Int64())
	require.Equal(bob.Bytes(), recv.data)
	require.Equal(int64(3), balance(t, ch, vault))

	require.True(recv.delivered)
	require.Equal(chain.Delivery{Token: tokenAddr, From: alice, To: vault, Amount: big.NewInt(3)}, recv.delivery)
}

func TestTransferAndCallToSelfIsRejected(t *testing.T) {
	require := require.New(t)
	ch, _ := setup(t)
	recv := &recordingReceiver{}
	ch.Register(vault, recv)

	require.NoError(exec(ch, func(c *chain.Context, tok *Token) error {
		if err := tok.Mint(c, owner, alice, big.NewInt(10)); err != nil {
			return err
		}
		return tok.TransferAndCall(c, alice, vault, big.NewInt(4), nil)
	}))
	recv.from = common.Address{}

	err := exec(ch, func(c *chain.Context, tok *Token) error {
		return tok.TransferAndCall(c, vault, vault, big.NewInt(4), alice.Bytes())
	})
	require.ErrorIs(err, ErrSelfNotify)
	require.Equal(common.Address{}, recv.from)
	require.Equal(int64(4), balance(t, ch, vault))

	// plain accounts may still move tokens to themselves
	require.NoError(exec(ch, func(c *chain.Context, tok *Token) error {
		return tok.TransferAndCall(c, alice, alice, big.NewInt(1), nil)
	}))
	require.Equal(int64(6), balance(t, ch, alice))
}

func TestTransferAndCallReceiverErrorRollsBack(t *testing.T) {
	require := require.New(t)
	ch, _ := setup(t)
	rejected := errors.New("rejected")
	ch.Register(vault, &recordingReceiver{err: rejected})

	require.NoError(exec(ch, func(c *chain.Context, tok *Token) error {
		return tok.Mint(c, owner, alice, big.NewInt(10))
	}))

	err := exec(ch, func(c *chain.Context, tok *Token) error {
		return tok.TransferAndCall(c, alice, vault, big.NewInt(3), nil)
	})
	require.ErrorIs(err, rejected)
	require.Equal(int64(10), balance(t, ch, alice))
	require.Zero(balance(t, ch, vault))
}

func TestTransferOwnership(t *testing.T) {
	require := require.New(t)
	ch, rec := setup(t)

	require.NoError(exec(ch, func(c *chain.Context, tok *Token) error {
		return tok.TransferOwnership(c, owner, vault)
	}))
	require.Len(rec.Named(events.OwnershipTransferred), 1)

	err := exec(ch, func(c *chain.Context, tok *Token) error {
		return tok.Mint(c, owner, alice, big.NewInt(1))
	})
	require.ErrorIs(err, ErrNotOwner)

	require.NoError(exec(ch, func(c *chain.Context, tok *Token) error {
		return tok.Mint(c, vault, alice, big.NewInt(1))
	}))
}
