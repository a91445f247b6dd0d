package bridge

import (
	"context"
	"fmt"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/ContractLand/terra-bridge-contracts/internal/chain"
	"github.com/ContractLand/terra-bridge-contracts/internal/events"
	"github.com/ContractLand/terra-bridge-contracts/internal/store"
)

const (
	keyValidatorList        = "validators/list"
	keyValidatorThreshold   = "validators/threshold"
	keyValidatorOwner       = "validators/owner"
	keyValidatorInitialized = "validators/initialized"
)

func validatorMemberKey(v common.Address) string {
	return "validators/member/" + v.Hex()
}

// ValidatorSet is a consistent snapshot of the registry.
type ValidatorSet struct {
	Initialized bool             `json:"initialized"`
	Owner       common.Address   `json:"owner"`
	Threshold   uint64           `json:"requiredSignatures"`
	Validators  []common.Address `json:"validators"`
}

// ValidatorRegistry owns the validator set, the required signature count and
// the owner allowed to change them.
type ValidatorRegistry struct {
	chain   *chain.Chain
	address common.Address
	log     *logrus.Entry
}

func NewValidatorRegistry(ch *chain.Chain, address common.Address, logger *logrus.Logger) *ValidatorRegistry {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &ValidatorRegistry{
		chain:   ch,
		address: address,
		log:     logger.WithFields(logrus.Fields{"component": "validators", "chain": ch.Name()}),
	}
}

func (r *ValidatorRegistry) Address() common.Address { return r.address }
func (r *ValidatorRegistry) Chain() *chain.Chain     { return r.chain }

// Initialize sets up the validator set once.
func (r *ValidatorRegistry) Initialize(ctx context.Context, threshold uint64, validators []common.Address, owner common.Address) error {
	err := r.chain.Execute(ctx, "validators.initialize", func(c *chain.Context) error {
		tx := c.Tx()
		done, err := tx.GetBool(keyValidatorInitialized)
		if err != nil {
			return err
		}
		if done {
			return ErrAlreadyInitialized
		}
		if owner == (common.Address{}) {
			return ErrInvalidOwner
		}
		if threshold == 0 || threshold > uint64(len(validators)) {
			return fmt.Errorf("%w: %d of %d", ErrInvalidThreshold, threshold, len(validators))
		}

		seen := make(map[common.Address]struct{}, len(validators))
		for _, v := range validators {
			if v == (common.Address{}) {
				return ErrInvalidValidator
			}
			if _, dup := seen[v]; dup {
				return fmt.Errorf("%w: %s", ErrDuplicateValidator, v.Hex())
			}
			seen[v] = struct{}{}
		}

		list := make([]common.Address, len(validators))
		copy(list, validators)
		for _, v := range list {
			tx.PutBool(validatorMemberKey(v), true)
			c.Emit(events.Event{Name: events.ValidatorAdded, Contract: r.address, Signer: v})
		}
		if err := tx.PutJSON(keyValidatorList, list); err != nil {
			return err
		}
		tx.PutUint64(keyValidatorThreshold, threshold)
		tx.Put(keyValidatorOwner, owner.Bytes())
		tx.PutBool(keyValidatorInitialized, true)

		c.Emit(events.Event{
			Name:       events.RequiredSignaturesChanged,
			Contract:   r.address,
			Attributes: map[string]string{"requiredSignatures": strconv.FormatUint(threshold, 10)},
		})
		return nil
	})
	if err != nil {
		return err
	}

	r.log.WithFields(logrus.Fields{
		"validators": len(validators),
		"threshold":  threshold,
		"owner":      owner.Hex(),
	}).Info("validator registry initialized")
	return nil
}

// AddValidator adds v to the set. Owner only.
func (r *ValidatorRegistry) AddValidator(ctx context.Context, sender, v common.Address) error {
	return r.chain.Execute(ctx, "validators.add", func(c *chain.Context) error {
		tx := c.Tx()
		if err := r.requireOwner(tx, sender); err != nil {
			return err
		}
		if v == (common.Address{}) {
			return ErrInvalidValidator
		}
		member, err := r.isValidator(tx, v)
		if err != nil {
			return err
		}
		if member {
			return fmt.Errorf("%w: %s", ErrDuplicateValidator, v.Hex())
		}
		list, err := r.list(tx)
		if err != nil {
			return err
		}
		tx.PutBool(validatorMemberKey(v), true)
		if err := tx.PutJSON(keyValidatorList, append(list, v)); err != nil {
			return err
		}
		c.Emit(events.Event{Name: events.ValidatorAdded, Contract: r.address, Sender: sender, Signer: v})
		return nil
	})
}

// RemoveValidator removes v unless the set would drop below the threshold. Owner only.
func (r *ValidatorRegistry) RemoveValidator(ctx context.Context, sender, v common.Address) error {
	return r.chain.Execute(ctx, "validators.remove", func(c *chain.Context) error {
		tx := c.Tx()
		if err := r.requireOwner(tx, sender); err != nil {
			return err
		}
		member, err := r.isValidator(tx, v)
		if err != nil {
			return err
		}
		if !member {
			return fmt.Errorf("%w: %s", ErrUnknownValidator, v.Hex())
		}
		list, err := r.list(tx)
		if err != nil {
			return err
		}
		threshold, err := r.threshold(tx)
		if err != nil {
			return err
		}
		if uint64(len(list)-1) < threshold {
			return fmt.Errorf("%w: removal leaves %d validators for %d required signatures",
				ErrInvalidThreshold, len(list)-1, threshold)
		}

		kept := make([]common.Address, 0, len(list)-1)
		for _, a := range list {
			if a != v {
				kept = append(kept, a)
			}
		}
		tx.PutBool(validatorMemberKey(v), false)
		if err := tx.PutJSON(keyValidatorList, kept); err != nil {
			return err
		}
		c.Emit(events.Event{Name: events.ValidatorRemoved, Contract: r.address, Sender: sender, Signer: v})
		return nil
	})
}

// SetThreshold changes the number of required signatures. Owner only.
func (r *ValidatorRegistry) SetThreshold(ctx context.Context, sender common.Address, n uint64) error {
	return r.chain.Execute(ctx, "validators.setThreshold", func(c *chain.Context) error {
		tx := c.Tx()
		if err := r.requireOwner(tx, sender); err != nil {
			return err
		}
		list, err := r.list(tx)
		if err != nil {
			return err
		}
		if n == 0 || n > uint64(len(list)) {
			return fmt.Errorf("%w: %d of %d", ErrInvalidThreshold, n, len(list))
		}
		tx.PutUint64(keyValidatorThreshold, n)
		c.Emit(events.Event{
			Name:       events.RequiredSignaturesChanged,
			Contract:   r.address,
			Sender:     sender,
			Attributes: map[string]string{"requiredSignatures": strconv.FormatUint(n, 10)},
		})
		return nil
	})
}

func (r *ValidatorRegistry) TransferOwnership(ctx context.Context, sender, newOwner common.Address) error {
	return r.chain.Execute(ctx, "validators.transferOwnership", func(c *chain.Context) error {
		tx := c.Tx()
		if err := r.requireOwner(tx, sender); err != nil {
			return err
		}
		if newOwner == (common.Address{}) {
			return ErrInvalidOwner
		}
		tx.Put(keyValidatorOwner, newOwner.Bytes())
		c.Emit(events.Event{Name: events.OwnershipTransferred, Contract: r.address, Sender: sender, Recipient: newOwner})
		return nil
	})
}

func (r *ValidatorRegistry) IsValidator(ctx context.Context, v common.Address) (bool, error) {
	var ok bool
	err := r.chain.View(ctx, func(c *chain.Context) error {
		var err error
		ok, err = r.isValidator(c.Tx(), v)
		return err
	})
	return ok, err
}

func (r *ValidatorRegistry) Count(ctx context.Context) (int, error) {
	set, err := r.Snapshot(ctx)
	if err != nil {
		return 0, err
	}
	return len(set.Validators), nil
}

func (r *ValidatorRegistry) Threshold(ctx context.Context) (uint64, error) {
	set, err := r.Snapshot(ctx)
	if err != nil {
		return 0, err
	}
	return set.Threshold, nil
}

func (r *ValidatorRegistry) Owner(ctx context.Context) (common.Address, error) {
	set, err := r.Snapshot(ctx)
	if err != nil {
		return common.Address{}, err
	}
	return set.Owner, nil
}

func (r *ValidatorRegistry) Validators(ctx context.Context) ([]common.Address, error) {
	set, err := r.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return set.Validators, nil
}

// Snapshot reads the whole registry in one view.
func (r *ValidatorRegistry) Snapshot(ctx context.Context) (*ValidatorSet, error) {
	var set *ValidatorSet
	err := r.chain.View(ctx, func(c *chain.Context) error {
		var err error
		set, err = r.snapshot(c.Tx())
		return err
	})
	return set, err
}

func (r *ValidatorRegistry) snapshot(tx *store.Tx) (*ValidatorSet, error) {
	initialized, err := tx.GetBool(keyValidatorInitialized)
	if err != nil {
		return nil, err
	}
	list, err := r.list(tx)
	if err != nil {
		return nil, err
	}
	threshold, err := r.threshold(tx)
	if err != nil {
		return nil, err
	}
	owner, err := r.owner(tx)
	if err != nil {
		return nil, err
	}
	return &ValidatorSet{Initialized: initialized, Owner: owner, Threshold: threshold, Validators: list}, nil
}

func (r *ValidatorRegistry) requireOwner(tx *store.Tx, sender common.Address) error {
	initialized, err := tx.GetBool(keyValidatorInitialized)
	if err != nil {
		return err
	}
	if !initialized {
		return ErrNotInitialized
	}
	owner, err := r.owner(tx)
	if err != nil {
		return err
	}
	if sender != owner {
		return ErrNotOwner
	}
	return nil
}

func (r *ValidatorRegistry) isValidator(tx *store.Tx, v common.Address) (bool, error) {
	return tx.GetBool(validatorMemberKey(v))
}

func (r *ValidatorRegistry) threshold(tx *store.Tx) (uint64, error) {
	return tx.GetUint64(keyValidatorThreshold)
}

func (r *ValidatorRegistry) owner(tx *store.Tx) (common.Address, error) {
	v, _, err := tx.Get(keyValidatorOwner)
	if err != nil {
		return common.Address{}, err
	}
	return common.BytesToAddress(v), nil
}

func (r *ValidatorRegistry) list(tx *store.Tx) ([]common.Address, error) {
	var list []common.Address
	if _, err := tx.GetJSON(keyValidatorList, &list); err != nil {
		return nil, err
	}
	return list, nil
}
