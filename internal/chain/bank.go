package chain

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrInsufficientFunds = errors.New("insufficient native balance")
	ErrNegativeAmount    = errors.New("negative amount")
)

const bankPrefix = "bank/"

func bankKey(addr common.Address) string {
	return bankPrefix + addr.Hex()
}

// Balance returns the native-coin balance of addr.
func (c *Context) Balance(addr common.Address) (*big.Int, error) {
	return c.tx.GetBig(bankKey(addr))
}

// TransferNative moves native coin between two accounts.
func (c *Context) TransferNative(from, to common.Address, amount *big.Int) error {
	if amount.Sign() < 0 {
		return ErrNegativeAmount
	}
	if amount.Sign() == 0 || from == to {
		return nil
	}
	fromBal, err := c.Balance(from)
	if err != nil {
		return err
	}
	if fromBal.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s has %s, needs %s", ErrInsufficientFunds, from.Hex(), fromBal, amount)
	}
	toBal, err := c.Balance(to)
	if err != nil {
		return err
	}
	c.tx.PutBig(bankKey(from), new(big.Int).Sub(fromBal, amount))
	c.tx.PutBig(bankKey(to), new(big.Int).Add(toBal, amount))
	return nil
}

// Credit creates native coin on addr. Only genesis allocation uses it.
func (c *Context) Credit(addr common.Address, amount *big.Int) error {
	if amount.Sign() < 0 {
		return ErrNegativeAmount
	}
	bal, err := c.Balance(addr)
	if err != nil {
		return err
	}
	c.tx.PutBig(bankKey(addr), new(big.Int).Add(bal, amount))
	return nil
}
