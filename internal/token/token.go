// Package token implements the fungible token the bridge mints, burns and
// locks. It keeps its balances in chain state so that token moves commit or
// roll back together with the bridge operation that caused them.
package token

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ContractLand/terra-bridge-contracts/internal/chain"
	"github.com/ContractLand/terra-bridge-contracts/internal/events"
)

var (
	ErrNotDeployed           = errors.New("token: no token at address")
	ErrAlreadyDeployed       = errors.New("token: address already holds a token")
	ErrNotOwner              = errors.New("token: caller is not the owner")
	ErrZeroAddress           = errors.New("token: zero address")
	ErrNegativeAmount        = errors.New("token: negative amount")
	ErrInsufficientBalance   = errors.New("token: amount exceeds balance")
	ErrInsufficientAllowance = errors.New("token: amount exceeds allowance")
	ErrSelfNotify            = errors.New("token: contract cannot transfer-and-call itself")
)

// Metadata is the immutable description of a token.
type Metadata struct {
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Decimals uint8  `json:"decimals"`
}

type Token struct {
	addr common.Address
	meta Metadata
}

func prefix(addr common.Address) string { return "token/" + addr.Hex() }

func metaKey(addr common.Address) string   { return prefix(addr) + "/meta" }
func ownerKey(addr common.Address) string  { return prefix(addr) + "/owner" }
func supplyKey(addr common.Address) string { return prefix(addr) + "/supply" }

func balanceKey(addr, holder common.Address) string {
	return prefix(addr) + "/balance/" + holder.Hex()
}

func allowanceKey(addr, owner, spender common.Address) string {
	return prefix(addr) + "/allowance/" + owner.Hex() + "/" + spender.Hex()
}

// Deploy creates a token at addr owned by owner.
func Deploy(c *chain.Context, addr, owner common.Address, meta Metadata) (*Token, error) {
	if addr == (common.Address{}) || owner == (common.Address{}) {
		return nil, ErrZeroAddress
	}
	exists, err := Exists(c, addr)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyDeployed, addr.Hex())
	}
	if err := c.Tx().PutJSON(metaKey(addr), meta); err != nil {
		return nil, err
	}
	c.Tx().Put(ownerKey(addr), owner.Bytes())
	return &Token{addr: addr, meta: meta}, nil
}

func Exists(c *chain.Context, addr common.Address) (bool, error) {
	return c.Tx().Has(metaKey(addr))
}

// Load returns the token deployed at addr.
func Load(c *chain.Context, addr common.Address) (*Token, error) {
	var meta Metadata
	ok, err := c.Tx().GetJSON(metaKey(addr), &meta)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotDeployed, addr.Hex())
	}
	return &Token{addr: addr, meta: meta}, nil
}

func (t *Token) Address() common.Address { return t.addr }
func (t *Token) Name() string            { return t.meta.Name }
func (t *Token) Symbol() string          { return t.meta.Symbol }
func (t *Token) Decimals() uint8         { return t.meta.Decimals }

func (t *Token) Owner(c *chain.Context) (common.Address, error) {
	v, _, err := c.Tx().Get(ownerKey(t.addr))
	if err != nil {
		return common.Address{}, err
	}
	return common.BytesToAddress(v), nil
}

func (t *Token) TotalSupply(c *chain.Context) (*big.Int, error) {
	return c.Tx().GetBig(supplyKey(t.addr))
}

func (t *Token) BalanceOf(c *chain.Context, holder common.Address) (*big.Int, error) {
	return c.Tx().GetBig(balanceKey(t.addr, holder))
}

func (t *Token) Allowance(c *chain.Context, owner, spender common.Address) (*big.Int, error) {
	return c.Tx().GetBig(allowanceKey(t.addr, owner, spender))
}

// Mint creates amount new tokens for to. Only the owner may mint.
func (t *Token) Mint(c *chain.Context, caller, to common.Address, amount *big.Int) error {
	if err := t.onlyOwner(c, caller); err != nil {
		return err
	}
	if to == (common.Address{}) {
		return ErrZeroAddress
	}
	if amount.Sign() < 0 {
		return ErrNegativeAmount
	}
	supply, err := t.TotalSupply(c)
	if err != nil {
		return err
	}
	bal, err := t.BalanceOf(c, to)
	if err != nil {
		return err
	}
	c.Tx().PutBig(supplyKey(t.addr), supply.Add(supply, amount))
	c.Tx().PutBig(balanceKey(t.addr, to), bal.Add(bal, amount))

	c.Emit(events.Event{Name: events.TokenMint, Contract: t.addr, Recipient: to, Amount: new(big.Int).Set(amount)})
	return nil
}

// Burn destroys amount of the caller's own tokens.
func (t *Token) Burn(c *chain.Context, caller common.Address, amount *big.Int) error {
	if amount.Sign() < 0 {
		return ErrNegativeAmount
	}
	bal, err := t.BalanceOf(c, caller)
	if err != nil {
		return err
	}
	if bal.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	supply, err := t.TotalSupply(c)
	if err != nil {
		return err
	}
	c.Tx().PutBig(balanceKey(t.addr, caller), bal.Sub(bal, amount))
	c.Tx().PutBig(supplyKey(t.addr), supply.Sub(supply, amount))

	c.Emit(events.Event{Name: events.TokenBurn, Contract: t.addr, Sender: caller, Amount: new(big.Int).Set(amount)})
	return nil
}

func (t *Token) Transfer(c *chain.Context, caller, to common.Address, amount *big.Int) error {
	return t.move(c, caller, to, amount)
}

func (t *Token) Approve(c *chain.Context, caller, spender common.Address, amount *big.Int) error {
	if spender == (common.Address{}) {
		return ErrZeroAddress
	}
	if amount.Sign() < 0 {
		return ErrNegativeAmount
	}
	c.Tx().PutBig(allowanceKey(t.addr, caller, spender), amount)
	c.Emit(events.Event{Name: events.TokenApproval, Contract: t.addr, Sender: caller, Recipient: spender, Amount: new(big.Int).Set(amount)})
	return nil
}

// TransferFrom moves tokens out of from using the allowance granted to caller.
func (t *Token) TransferFrom(c *chain.Context, caller, from, to common.Address, amount *big.Int) error {
	allowed, err := t.Allowance(c, from, caller)
	if err != nil {
		return err
	}
	if allowed.Cmp(amount) < 0 {
		return ErrInsufficientAllowance
	}
	if err := t.move(c, from, to, amount); err != nil {
		return err
	}
	c.Tx().PutBig(allowanceKey(t.addr, from, caller), allowed.Sub(allowed, amount))
	return nil
}

// TransferAndCall transfers to a contract and notifies it in the same
// operation. The receiver sees this token as the caller and the original
// caller as the sender; a receiver error aborts the transfer.
func (t *Token) TransferAndCall(c *chain.Context, caller, to common.Address, amount *big.Int, data []byte) error {
	// a self transfer credits nothing, so the receiver must not hear of it
	if caller == to && c.IsContract(to) {
		return ErrSelfNotify
	}
	if err := t.move(c, caller, to, amount); err != nil {
		return err
	}
	_, err := c.Deliver(chain.Delivery{Token: t.addr, From: caller, To: to, Amount: new(big.Int).Set(amount)}, data)
	return err
}

func (t *Token) TransferOwnership(c *chain.Context, caller, newOwner common.Address) error {
	if err := t.onlyOwner(c, caller); err != nil {
		return err
	}
	if newOwner == (common.Address{}) {
		return ErrZeroAddress
	}
	c.Tx().Put(ownerKey(t.addr), newOwner.Bytes())
	c.Emit(events.Event{Name: events.OwnershipTransferred, Contract: t.addr, Sender: caller, Recipient: newOwner})
	return nil
}

func (t *Token) onlyOwner(c *chain.Context, caller common.Address) error {
	owner, err := t.Owner(c)
	if err != nil {
		return err
	}
	if owner != caller {
		return ErrNotOwner
	}
	return nil
}

func (t *Token) move(c *chain.Context, from, to common.Address, amount *big.Int) error {
	if to == (common.Address{}) {
		return ErrZeroAddress
	}
	if amount.Sign() < 0 {
		return ErrNegativeAmount
	}
	fromBal, err := t.BalanceOf(c, from)
	if err != nil {
		return err
	}
	if fromBal.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	if from != to {
		toBal, err := t.BalanceOf(c, to)
		if err != nil {
			return err
		}
		c.Tx().PutBig(balanceKey(t.addr, from), new(big.Int).Sub(fromBal, amount))
		c.Tx().PutBig(balanceKey(t.addr, to), toBal.Add(toBal, amount))
	}
	c.Emit(events.Event{Name: events.TokenTransfer, Contract: t.addr, Sender: from, Recipient: to, Amount: new(big.Int).Set(amount)})
	return nil
}
