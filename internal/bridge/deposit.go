package bridge

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/ContractLand/terra-bridge-contracts/internal/chain"
	"github.com/ContractLand/terra-bridge-contracts/internal/token"
)

// DepositKind picks how a signed deposit takes the sender's funds.
type DepositKind uint8

const (
	// DepositNative pays native coin, as SendNative.
	DepositNative DepositKind = iota + 1
	// DepositRelay spends an allowance granted to the ledger, as RelayTokens.
	DepositRelay
	// DepositTransfer moves tokens with TransferAndCall.
	DepositTransfer
)

func (k DepositKind) String() string {
	switch k {
	case DepositNative:
		return "native"
	case DepositRelay:
		return "relay"
	case DepositTransfer:
		return "transfer"
	default:
		return "unknown"
	}
}

// ParseDepositKind accepts the names returned by String.
func ParseDepositKind(v string) (DepositKind, error) {
	switch strings.ToLower(v) {
	case "native":
		return DepositNative, nil
	case "relay":
		return DepositRelay, nil
	case "transfer":
		return DepositTransfer, nil
	}
	return 0, fmt.Errorf("%w: unknown kind %q", ErrInvalidDeposit, v)
}

// DepositLength is kind(1) | chainId(8) | ledger(20) | asset(20) | recipient(20) | amount(32) | nonce(8).
const DepositLength = 109

// Deposit is an outbound transfer authorized by the signature of its sender.
// Asset is the local token, or NativeAsset for DepositNative.
type Deposit struct {
	Kind      DepositKind
	Asset     common.Address
	Recipient common.Address
	Amount    *big.Int
	Nonce     uint64
}

// Encode returns the bytes the sender signs. chainID and ledger bind the
// deposit to one ledger; the length keeps it apart from transfer messages.
func (d *Deposit) Encode(chainID uint64, ledger common.Address) ([]byte, error) {
	if d.Kind < DepositNative || d.Kind > DepositTransfer {
		return nil, fmt.Errorf("%w: kind %d", ErrInvalidDeposit, d.Kind)
	}
	if d.Amount == nil || d.Amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	if (d.Kind == DepositNative) != (d.Asset == NativeAsset) {
		return nil, fmt.Errorf("%w: %s deposit of %s", ErrInvalidDeposit, d.Kind, d.Asset.Hex())
	}
	amount, err := word(d.Amount)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, DepositLength)
	out = append(out, byte(d.Kind))
	out = binary.BigEndian.AppendUint64(out, chainID)
	out = append(out, ledger.Bytes()...)
	out = append(out, d.Asset.Bytes()...)
	out = append(out, d.Recipient.Bytes()...)
	out = append(out, amount...)
	out = binary.BigEndian.AppendUint64(out, d.Nonce)
	return out, nil
}

func depositNonceKey(sender common.Address) string {
	return "bridge/depositNonce/" + sender.Hex()
}

// DepositPayload is what a sender signs for d on this ledger.
func (l *Ledger) DepositPayload(d *Deposit) ([]byte, error) {
	return d.Encode(l.chain.ID(), l.address)
}

// Deposit runs d on behalf of the signer of signature. Each sender's
// deposits carry consecutive nonces starting at zero.
func (l *Ledger) Deposit(ctx context.Context, d *Deposit, signature []byte) (common.Address, common.Hash, error) {
	payload, err := l.DepositPayload(d)
	if err != nil {
		return common.Address{}, common.Hash{}, err
	}
	sender, err := l.recoverer.Recover(signature, payload)
	if err != nil {
		return common.Address{}, common.Hash{}, err
	}

	var ref common.Hash
	err = l.chain.Execute(ctx, l.op("deposit"), func(c *chain.Context) error {
		tx := c.Tx()
		if err := l.requireInitialized(tx); err != nil {
			return err
		}
		next, err := tx.GetUint64(depositNonceKey(sender))
		if err != nil {
			return err
		}
		if d.Nonce != next {
			return fmt.Errorf("%w: got %d, expected %d", ErrDepositNonce, d.Nonce, next)
		}
		tx.PutUint64(depositNonceKey(sender), next+1)

		switch d.Kind {
		case DepositNative:
			ref, err = l.sendNative(c, sender, d.Recipient, d.Amount)
		case DepositRelay:
			ref, err = l.relayTokens(c, sender, d.Asset, d.Recipient, d.Amount)
		default:
			ref, err = l.transferAndCall(c, sender, d.Asset, d.Recipient, d.Amount)
		}
		return err
	})
	if err != nil {
		return sender, common.Hash{}, err
	}
	l.log.WithFields(logrus.Fields{
		"kind":     d.Kind.String(),
		"sender":   sender.Hex(),
		"asset":    d.Asset.Hex(),
		"amount":   d.Amount.String(),
		"nonce":    d.Nonce,
		"transfer": ref.Hex(),
	}).Info("signed deposit accepted")
	return sender, ref, nil
}

// DepositNonce is the nonce sender's next deposit must carry.
func (l *Ledger) DepositNonce(ctx context.Context, sender common.Address) (uint64, error) {
	var next uint64
	err := l.chain.View(ctx, func(c *chain.Context) error {
		var err error
		next, err = c.Tx().GetUint64(depositNonceKey(sender))
		return err
	})
	return next, err
}

// transferAndCall sends tokens through the token's notification path, so
// OnTokenTransfer announces the transfer.
func (l *Ledger) transferAndCall(c *chain.Context, sender, tokenAddr, recipient common.Address, amount *big.Int) (common.Hash, error) {
	t, err := token.Load(c, tokenAddr)
	if errors.Is(err, token.ErrNotDeployed) {
		return common.Hash{}, fmt.Errorf("%w: %s", ErrUnknownToken, tokenAddr.Hex())
	}
	if err != nil {
		return common.Hash{}, err
	}
	var data []byte
	if recipient != (common.Address{}) {
		data = recipient.Bytes()
	}
	if err := t.TransferAndCall(c, sender, l.address, amount, data); err != nil {
		return common.Hash{}, funding(err)
	}
	nonce, err := c.Tx().GetUint64(keyLedgerNonce)
	if err != nil {
		return common.Hash{}, err
	}
	return l.reference(nonce), nil
}
