package bridge

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ContractLand/terra-bridge-contracts/internal/chain"
	"github.com/ContractLand/terra-bridge-contracts/internal/token"
)

// NewHomeLedger builds the home side: bridged tokens are minted on the way in
// and burned on the way out, so the ledger must own every registered token.
func NewHomeLedger(registry *ValidatorRegistry, cfg LedgerConfig) (*Ledger, error) {
	return newLedger(Home, registry, cfg, mintBurn{ledger: cfg.Address})
}

type mintBurn struct {
	ledger common.Address
}

func (m mintBurn) checkAsset(c *chain.Context, t *token.Token) error {
	owner, err := t.Owner(c)
	if err != nil {
		return err
	}
	if owner != m.ledger {
		return fmt.Errorf("%w: %s is owned by %s", ErrTokenNotOwned, t.Address().Hex(), owner.Hex())
	}
	return nil
}

// accounted is always zero: whatever reaches the ledger is burned at once.
func (mintBurn) accounted(*chain.Context, *token.Token) (*big.Int, error) {
	return new(big.Int), nil
}

func (m mintBurn) take(c *chain.Context, t *token.Token, amount *big.Int) error {
	return t.Burn(c, m.ledger, amount)
}

func (m mintBurn) give(c *chain.Context, t *token.Token, to common.Address, amount *big.Int) error {
	err := t.Mint(c, m.ledger, to, amount)
	if errors.Is(err, token.ErrNotOwner) {
		return fmt.Errorf("%w: %s", ErrTokenNotOwned, t.Address().Hex())
	}
	return err
}
