package bridge

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

const (
	// MessageLength is asset(20) | recipient(20) | amount(32) | sourceTxRef(32).
	MessageLength = 104
	// MessageLengthWithGasPrice appends gasPrice(32).
	MessageLengthWithGasPrice = 136
)

// Message is the canonical transfer description validators sign.
// Amount is in canonical (18-decimal) units.
type Message struct {
	Asset     common.Address
	Recipient common.Address
	Amount    *big.Int
	SourceTx  common.Hash
	GasPrice  *big.Int
}

func word(n *big.Int) ([]byte, error) {
	if n == nil {
		return make([]byte, 32), nil
	}
	if n.Sign() < 0 {
		return nil, ErrInvalidAmount
	}
	u, overflow := uint256.FromBig(n)
	if overflow {
		return nil, fmt.Errorf("%w: value does not fit in 256 bits", ErrInvalidMessage)
	}
	b := u.Bytes32()
	return b[:], nil
}

// Encode returns the packed wire form of m.
func (m *Message) Encode() ([]byte, error) {
	amount, err := word(m.Amount)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, MessageLengthWithGasPrice)
	out = append(out, m.Asset.Bytes()...)
	out = append(out, m.Recipient.Bytes()...)
	out = append(out, amount...)
	out = append(out, m.SourceTx.Bytes()...)
	if m.GasPrice != nil {
		gp, err := word(m.GasPrice)
		if err != nil {
			return nil, err
		}
		out = append(out, gp...)
	}
	return out, nil
}

// ParseMessage decodes a 104- or 136-byte message.
func ParseMessage(raw []byte) (*Message, error) {
	if len(raw) != MessageLength && len(raw) != MessageLengthWithGasPrice {
		return nil, fmt.Errorf("%w: length %d", ErrInvalidMessage, len(raw))
	}
	m := &Message{
		Asset:     common.BytesToAddress(raw[0:20]),
		Recipient: common.BytesToAddress(raw[20:40]),
		Amount:    new(big.Int).SetBytes(raw[40:72]),
		SourceTx:  common.BytesToHash(raw[72:104]),
	}
	if len(raw) == MessageLengthWithGasPrice {
		m.GasPrice = new(big.Int).SetBytes(raw[104:136])
	}
	return m, nil
}

// Hash identifies the exact signed bytes; signature bundles are keyed by it.
func (m *Message) Hash() (common.Hash, error) {
	raw, err := m.Encode()
	if err != nil {
		return common.Hash{}, err
	}
	return crypto.Keccak256Hash(raw), nil
}

// TransferID hashes asset, recipient, amount and source reference, ignoring
// the optional gas price.
func (m *Message) TransferID() (common.Hash, error) {
	raw, err := m.Encode()
	if err != nil {
		return common.Hash{}, err
	}
	return crypto.Keccak256Hash(raw[:MessageLength]), nil
}

func (m *Message) validate() error {
	if m.Amount == nil || m.Amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if m.Recipient == (common.Address{}) {
		return ErrInvalidRecipient
	}
	if m.SourceTx == (common.Hash{}) {
		return fmt.Errorf("%w: empty source transaction reference", ErrInvalidMessage)
	}
	return nil
}
