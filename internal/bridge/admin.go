package bridge

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/ContractLand/terra-bridge-contracts/internal/chain"
	"github.com/ContractLand/terra-bridge-contracts/internal/events"
	"github.com/ContractLand/terra-bridge-contracts/internal/store"
	"github.com/ContractLand/terra-bridge-contracts/internal/token"
)

// RegisterAsset maps foreign to home. The local side must be the native
// coin or a deployed token; limits, when given, are set in the same call.
func (l *Ledger) RegisterAsset(ctx context.Context, sender, foreign, home common.Address, limits *Limits) (*AssetPair, error) {
	pair := AssetPair{Foreign: foreign, Home: home}
	err := l.chain.Execute(ctx, l.op("registerAsset"), func(c *chain.Context) error {
		tx := c.Tx()
		if err := l.requireOwner(tx, sender); err != nil {
			return err
		}
		local := pair.Local(l.side)
		if local == NativeAsset {
			pair.Decimals = l.nativeDecimals
		} else {
			t, err := token.Load(c, local)
			if errors.Is(err, token.ErrNotDeployed) {
				return fmt.Errorf("%w: %s", ErrUnknownToken, local.Hex())
			}
			if err != nil {
				return err
			}
			if err := l.custody.checkAsset(c, t); err != nil {
				return err
			}
			pair.Decimals = t.Decimals()
		}
		if err := l.assets.Register(tx, pair); err != nil {
			return err
		}
		if limits != nil {
			if err := l.limits.SetLimits(tx, local, *limits); err != nil {
				return err
			}
			l.emitLimits(c, sender, local, limits.normalized())
		}
		c.Emit(events.Event{
			Name:     events.AssetRegistered,
			Contract: l.address,
			Asset:    local,
			Sender:   sender,
			Attributes: map[string]string{
				"foreign":  foreign.Hex(),
				"home":     home.Hex(),
				"decimals": strconv.Itoa(int(pair.Decimals)),
			},
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	l.log.WithFields(logrus.Fields{
		"foreign":  foreign.Hex(),
		"home":     home.Hex(),
		"decimals": pair.Decimals,
	}).Info("asset registered")
	return &pair, nil
}

// SetLimits replaces all three limits of asset.
func (l *Ledger) SetLimits(ctx context.Context, sender, asset common.Address, limits Limits) error {
	return l.adminLimits(ctx, sender, asset, "setLimits", func(tx *store.Tx) error {
		return l.limits.SetLimits(tx, asset, limits)
	})
}

func (l *Ledger) SetDailyLimit(ctx context.Context, sender, asset common.Address, v *big.Int) error {
	return l.adminLimits(ctx, sender, asset, "setDailyLimit", func(tx *store.Tx) error {
		return l.limits.SetDailyLimit(tx, asset, v)
	})
}

func (l *Ledger) SetMaxPerTx(ctx context.Context, sender, asset common.Address, v *big.Int) error {
	return l.adminLimits(ctx, sender, asset, "setMaxPerTx", func(tx *store.Tx) error {
		return l.limits.SetMaxPerTx(tx, asset, v)
	})
}

func (l *Ledger) SetMinPerTx(ctx context.Context, sender, asset common.Address, v *big.Int) error {
	return l.adminLimits(ctx, sender, asset, "setMinPerTx", func(tx *store.Tx) error {
		return l.limits.SetMinPerTx(tx, asset, v)
	})
}

func (l *Ledger) adminLimits(ctx context.Context, sender, asset common.Address, op string, fn func(*store.Tx) error) error {
	return l.chain.Execute(ctx, l.op(op), func(c *chain.Context) error {
		tx := c.Tx()
		if err := l.requireOwner(tx, sender); err != nil {
			return err
		}
		if _, err := l.assets.MustLocal(tx, asset); err != nil && asset != NativeAsset {
			return err
		}
		if err := fn(tx); err != nil {
			return err
		}
		updated, err := l.limits.Limits(tx, asset)
		if err != nil {
			return err
		}
		l.emitLimits(c, sender, asset, updated)
		return nil
	})
}

func (l *Ledger) emitLimits(c *chain.Context, sender, asset common.Address, lim Limits) {
	c.Emit(events.Event{
		Name:     events.LimitsChanged,
		Contract: l.address,
		Asset:    asset,
		Sender:   sender,
		Attributes: map[string]string{
			"dailyLimit": lim.DailyLimit.String(),
			"maxPerTx":   lim.MaxPerTx.String(),
			"minPerTx":   lim.MinPerTx.String(),
		},
	})
}

func (l *Ledger) SetGasPrice(ctx context.Context, sender common.Address, price *big.Int) error {
	return l.chain.Execute(ctx, l.op("setGasPrice"), func(c *chain.Context) error {
		if err := l.requireOwner(c.Tx(), sender); err != nil {
			return err
		}
		if price == nil || price.Sign() < 0 {
			return fmt.Errorf("%w: gas price", ErrInvalidAmount)
		}
		c.Tx().PutBig(keyLedgerGasPrice, price)
		c.Emit(events.Event{
			Name:       events.GasPriceChanged,
			Contract:   l.address,
			Sender:     sender,
			Amount:     new(big.Int).Set(price),
			Attributes: map[string]string{"gasPrice": price.String()},
		})
		return nil
	})
}

func (l *Ledger) SetRequiredBlockConfirmations(ctx context.Context, sender common.Address, n uint64) error {
	return l.chain.Execute(ctx, l.op("setRequiredBlockConfirmations"), func(c *chain.Context) error {
		if err := l.requireOwner(c.Tx(), sender); err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("%w: confirmations must be positive", ErrInvalidAmount)
		}
		c.Tx().PutUint64(keyLedgerConfirmations, n)
		c.Emit(events.Event{
			Name:       events.ConfirmationsChanged,
			Contract:   l.address,
			Sender:     sender,
			Attributes: map[string]string{"requiredBlockConfirmations": strconv.FormatUint(n, 10)},
		})
		return nil
	})
}

func (l *Ledger) TransferOwnership(ctx context.Context, sender, newOwner common.Address) error {
	return l.chain.Execute(ctx, l.op("transferOwnership"), func(c *chain.Context) error {
		if err := l.requireOwner(c.Tx(), sender); err != nil {
			return err
		}
		if newOwner == (common.Address{}) {
			return ErrInvalidOwner
		}
		c.Tx().Put(keyLedgerOwner, newOwner.Bytes())
		c.Emit(events.Event{Name: events.OwnershipTransferred, Contract: l.address, Sender: sender, Recipient: newOwner})
		return nil
	})
}

// ClaimTokens sends the ledger's whole balance of a non-bridged asset to to.
// The native coin can be claimed only while it is not registered.
func (l *Ledger) ClaimTokens(ctx context.Context, sender, asset, to common.Address) (*big.Int, error) {
	var claimed *big.Int
	err := l.chain.Execute(ctx, l.op("claimTokens"), func(c *chain.Context) error {
		tx := c.Tx()
		if err := l.requireOwner(tx, sender); err != nil {
			return err
		}
		if to == (common.Address{}) {
			return ErrInvalidRecipient
		}
		_, registered, err := l.assets.ByLocal(tx, asset)
		if err != nil {
			return err
		}
		if registered {
			return fmt.Errorf("%w: %s", ErrClaimBridgedAsset, asset.Hex())
		}

		if asset == NativeAsset {
			if claimed, err = c.Balance(l.address); err != nil {
				return err
			}
			if err := c.TransferNative(l.address, to, claimed); err != nil {
				return err
			}
		} else {
			t, err := token.Load(c, asset)
			if errors.Is(err, token.ErrNotDeployed) {
				return fmt.Errorf("%w: %s", ErrUnknownToken, asset.Hex())
			}
			if err != nil {
				return err
			}
			if claimed, err = t.BalanceOf(c, l.address); err != nil {
				return err
			}
			if err := t.Transfer(c, l.address, to, claimed); err != nil {
				return err
			}
		}
		c.Emit(events.Event{
			Name:      events.TokensClaimed,
			Contract:  l.address,
			Asset:     asset,
			Sender:    sender,
			Recipient: to,
			Amount:    new(big.Int).Set(claimed),
		})
		return nil
	})
	return claimed, err
}

func (l *Ledger) requireOwner(tx *store.Tx, sender common.Address) error {
	if err := l.requireInitialized(tx); err != nil {
		return err
	}
	owner, _, err := tx.Get(keyLedgerOwner)
	if err != nil {
		return err
	}
	if common.BytesToAddress(owner) != sender {
		return ErrNotOwner
	}
	return nil
}

// Status summarizes the ledger and its validator registry.
func (l *Ledger) Status(ctx context.Context) (*Status, error) {
	st := &Status{
		Side:    l.side.String(),
		Chain:   l.chain.Name(),
		ChainID: l.chain.ID(),
		Address: l.address,
	}
	err := l.chain.View(ctx, func(c *chain.Context) error {
		tx := c.Tx()
		var err error
		if st.Initialized, err = tx.GetBool(keyLedgerInitialized); err != nil {
			return err
		}
		owner, _, err := tx.Get(keyLedgerOwner)
		if err != nil {
			return err
		}
		st.Owner = common.BytesToAddress(owner)
		if st.GasPrice, err = tx.GetBig(keyLedgerGasPrice); err != nil {
			return err
		}
		if st.RequiredBlockConfirmations, err = tx.GetUint64(keyLedgerConfirmations); err != nil {
			return err
		}
		if st.Nonce, err = tx.GetUint64(keyLedgerNonce); err != nil {
			return err
		}
		set, err := l.registry.snapshot(tx)
		if err != nil {
			return err
		}
		st.RequiredSignatures = set.Threshold
		st.Validators = set.Validators
		return nil
	})
	if err != nil {
		return nil, err
	}
	return st, nil
}

func (l *Ledger) Limits(ctx context.Context, asset common.Address) (Limits, error) {
	var lim Limits
	err := l.chain.View(ctx, func(c *chain.Context) error {
		var err error
		lim, err = l.limits.Limits(c.Tx(), asset)
		return err
	})
	return lim, err
}

// Spent returns the amount counted against asset's daily limit on day.
func (l *Ledger) Spent(ctx context.Context, asset common.Address, dir Direction, day uint64) (*big.Int, error) {
	var spent *big.Int
	err := l.chain.View(ctx, func(c *chain.Context) error {
		var err error
		spent, err = l.limits.Spent(c.Tx(), asset, dir, day)
		return err
	})
	return spent, err
}

// Locked is how much of a local token backs announced outbound transfers.
// It is always zero on the home side.
func (l *Ledger) Locked(ctx context.Context, asset common.Address) (*big.Int, error) {
	var locked *big.Int
	err := l.chain.View(ctx, func(c *chain.Context) error {
		t, err := token.Load(c, asset)
		if err != nil {
			return err
		}
		locked, err = l.LockedIn(c, t)
		return err
	})
	return locked, err
}

// LockedIn is Locked for callers already running on the ledger's chain.
func (l *Ledger) LockedIn(c *chain.Context, t *token.Token) (*big.Int, error) {
	return l.custody.accounted(c, t)
}

// Today is the day index of the chain clock.
func (l *Ledger) Today(ctx context.Context) (uint64, error) {
	var day uint64
	err := l.chain.View(ctx, func(c *chain.Context) error {
		day = DayIndex(c.Now())
		return nil
	})
	return day, err
}

func (l *Ledger) Assets(ctx context.Context) ([]AssetPair, error) {
	var all []AssetPair
	err := l.chain.View(ctx, func(c *chain.Context) error {
		var err error
		all, err = l.assets.All(c.Tx())
		return err
	})
	return all, err
}

// IsExecuted reports whether an inbound transfer with source reference ref was paid out.
func (l *Ledger) IsExecuted(ctx context.Context, ref common.Hash) (bool, error) {
	var done bool
	err := l.chain.View(ctx, func(c *chain.Context) error {
		var err error
		done, err = l.transfers.IsExecuted(c.Tx(), ref)
		return err
	})
	return done, err
}

func (l *Ledger) Bundle(ctx context.Context, h common.Hash) (*Bundle, error) {
	var b *Bundle
	err := l.chain.View(ctx, func(c *chain.Context) error {
		var err error
		b, err = l.collector.Bundle(c.Tx(), h)
		return err
	})
	return b, err
}
