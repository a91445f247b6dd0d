package bridge

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ContractLand/terra-bridge-contracts/internal/chain"
	"github.com/ContractLand/terra-bridge-contracts/internal/token"
)

// NewForeignLedger builds the foreign side: tokens sent out stay locked in
// the ledger's balance and are released from it on the way back.
func NewForeignLedger(registry *ValidatorRegistry, cfg LedgerConfig) (*Ledger, error) {
	return newLedger(Foreign, registry, cfg, lockRelease{ledger: cfg.Address})
}

func lockedKey(tokenAddr common.Address) string { return "bridge/locked/" + tokenAddr.Hex() }

// lockRelease keeps its own count of locked tokens so that tokens which
// reach the ledger outside a bridge transfer never back a release.
type lockRelease struct {
	ledger common.Address
}

func (lockRelease) checkAsset(*chain.Context, *token.Token) error { return nil }

func (lockRelease) accounted(c *chain.Context, t *token.Token) (*big.Int, error) {
	return c.Tx().GetBig(lockedKey(t.Address()))
}

func (r lockRelease) take(c *chain.Context, t *token.Token, amount *big.Int) error {
	locked, err := r.accounted(c, t)
	if err != nil {
		return err
	}
	c.Tx().PutBig(lockedKey(t.Address()), locked.Add(locked, amount))
	return nil
}

func (r lockRelease) give(c *chain.Context, t *token.Token, to common.Address, amount *big.Int) error {
	locked, err := r.accounted(c, t)
	if err != nil {
		return err
	}
	if locked.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s locked", ErrInsufficientFunds, locked)
	}
	if err := t.Transfer(c, r.ledger, to, amount); err != nil {
		return err
	}
	c.Tx().PutBig(lockedKey(t.Address()), locked.Sub(locked, amount))
	return nil
}
