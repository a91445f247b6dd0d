package bridge

import (
	"crypto/ecdsa"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"github.com/ContractLand/terra-bridge-contracts/internal/chain"
	"github.com/ContractLand/terra-bridge-contracts/internal/events"
	"github.com/ContractLand/terra-bridge-contracts/internal/token"
)

func (f *fixture) signDeposit(key *ecdsa.PrivateKey, d *Deposit) []byte {
	payload, err := f.ledger.DepositPayload(d)
	require.NoError(f.t, err)
	sig, err := SignMessage(key, payload)
	require.NoError(f.t, err)
	return sig
}

func TestSignedDepositsOnForeign(t *testing.T) {
	require := require.New(t)
	f := newForeignFixture(t)

	key, err := crypto.GenerateKey()
	require.NoError(err)
	user := crypto.PubkeyToAddress(key.PublicKey)
	require.NoError(f.withToken(foreignToken, func(c *chain.Context, tk *token.Token) error {
		if err := tk.Mint(c, issuer, user, usd(30)); err != nil {
			return err
		}
		return tk.Approve(c, user, bridgeAddr, usd(10))
	}))

	relay := &Deposit{Kind: DepositRelay, Asset: foreignToken, Recipient: bob, Amount: usd(10)}
	sender, ref, err := f.ledger.Deposit(f.ctx, relay, f.signDeposit(key, relay))
	require.NoError(err)
	require.Equal(user, sender)

	transfer := &Deposit{Kind: DepositTransfer, Asset: foreignToken, Amount: usd(5), Nonce: 1}
	_, ref2, err := f.ledger.Deposit(f.ctx, transfer, f.signDeposit(key, transfer))
	require.NoError(err)
	require.NotEqual(ref, ref2)

	initiated := f.rec.Named(events.TransferInitiated)
	require.Len(initiated, 2)
	require.Equal(ref, initiated[0].TransferID)
	require.Equal(bob, initiated[0].Recipient)
	require.Equal(ref2, initiated[1].TransferID)
	require.Equal(user, initiated[1].Recipient)
	require.Equal(0, f.tokenBalance(foreignToken, user).Cmp(usd(15)))

	locked, err := f.ledger.Locked(f.ctx, foreignToken)
	require.NoError(err)
	require.Equal(0, locked.Cmp(usd(15)))

	next, err := f.ledger.DepositNonce(f.ctx, user)
	require.NoError(err)
	require.Equal(uint64(2), next)
}

func TestSignedDepositRejections(t *testing.T) {
	require := require.New(t)
	f := newHomeFixture(t)

	key, err := crypto.GenerateKey()
	require.NoError(err)
	user := crypto.PubkeyToAddress(key.PublicKey)
	f.credit(user, eth(10))

	d := &Deposit{Kind: DepositNative, Amount: eth(2)}
	sig := f.signDeposit(key, d)
	_, _, err = f.ledger.Deposit(f.ctx, d, sig)
	require.NoError(err)

	// replayed and skipped nonces
	_, _, err = f.ledger.Deposit(f.ctx, d, sig)
	require.True(errors.Is(err, ErrDepositNonce))
	skipped := &Deposit{Kind: DepositNative, Amount: eth(2), Nonce: 5}
	_, _, err = f.ledger.Deposit(f.ctx, skipped, f.signDeposit(key, skipped))
	require.True(errors.Is(err, ErrDepositNonce))

	// a failed deposit keeps the nonce
	tooBig := &Deposit{Kind: DepositNative, Amount: eth(60), Nonce: 1}
	_, _, err = f.ledger.Deposit(f.ctx, tooBig, f.signDeposit(key, tooBig))
	require.True(errors.Is(err, ErrAboveMaxPerTx))
	next, err := f.ledger.DepositNonce(f.ctx, user)
	require.NoError(err)
	require.Equal(uint64(1), next)

	_, err = f.ledger.DepositPayload(&Deposit{Kind: DepositNative, Asset: foreignToken, Amount: eth(1)})
	require.True(errors.Is(err, ErrInvalidDeposit))
	_, err = f.ledger.DepositPayload(&Deposit{Kind: DepositRelay, Amount: eth(1)})
	require.True(errors.Is(err, ErrInvalidDeposit))
	_, err = f.ledger.DepositPayload(&Deposit{Kind: DepositKind(9), Amount: eth(1)})
	require.True(errors.Is(err, ErrInvalidDeposit))
	_, err = f.ledger.DepositPayload(&Deposit{Kind: DepositNative})
	require.True(errors.Is(err, ErrInvalidAmount))

	// a signature is bound to one ledger
	other, err := d.Encode(f.chain.ID()+1, bridgeAddr)
	require.NoError(err)
	mine, err := f.ledger.DepositPayload(d)
	require.NoError(err)
	require.NotEqual(mine, other)

	_, err = ParseDepositKind("swap")
	require.True(errors.Is(err, ErrInvalidDeposit))
	kind, err := ParseDepositKind("Transfer")
	require.NoError(err)
	require.Equal(DepositTransfer, kind)
}
