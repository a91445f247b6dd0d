package bridge

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ContractLand/terra-bridge-contracts/internal/store"
)

// NativeAsset is the identifier of the native coin on whichever side it lives.
var NativeAsset = common.Address{}

// AssetPair maps a foreign-chain asset to its home-chain counterpart.
// Decimals is the precision of the asset as held on the local chain.
type AssetPair struct {
	Foreign  common.Address `json:"foreign"`
	Home     common.Address `json:"home"`
	Decimals uint8          `json:"decimals"`
}

// Local returns the identifier of the asset on side s.
func (p AssetPair) Local(s Side) common.Address {
	if s == Home {
		return p.Home
	}
	return p.Foreign
}

// Remote returns the identifier of the asset on the other side.
func (p AssetPair) Remote(s Side) common.Address {
	if s == Home {
		return p.Foreign
	}
	return p.Home
}

// AssetRegistry stores the immutable foreign <-> home asset mapping of one ledger.
type AssetRegistry struct {
	prefix string
	side   Side
}

func NewAssetRegistry(prefix string, side Side) AssetRegistry {
	return AssetRegistry{prefix: prefix, side: side}
}

func (r AssetRegistry) foreignKey(a common.Address) string { return r.prefix + "/asset/foreign/" + a.Hex() }
func (r AssetRegistry) homeKey(a common.Address) string    { return r.prefix + "/asset/home/" + a.Hex() }
func (r AssetRegistry) indexKey() string                   { return r.prefix + "/assets" }

// Register records p. A foreign asset can be mapped once; a home asset can
// back only one foreign asset.
func (r AssetRegistry) Register(tx *store.Tx, p AssetPair) error {
	if p.Foreign == NativeAsset && p.Home == NativeAsset {
		return fmt.Errorf("%w: native coin on both sides", ErrAssetConflict)
	}
	if p.Decimals > CanonicalDecimals {
		return fmt.Errorf("%w: %d", ErrInvalidDecimals, p.Decimals)
	}
	if _, ok, err := r.ByForeign(tx, p.Foreign); err != nil {
		return err
	} else if ok {
		return fmt.Errorf("%w: foreign %s", ErrAssetAlreadyRegistered, p.Foreign.Hex())
	}
	if existing, ok, err := r.ByHome(tx, p.Home); err != nil {
		return err
	} else if ok {
		return fmt.Errorf("%w: home %s already backs foreign %s", ErrAssetConflict, p.Home.Hex(), existing.Foreign.Hex())
	}

	if err := tx.PutJSON(r.foreignKey(p.Foreign), p); err != nil {
		return err
	}
	if err := tx.PutJSON(r.homeKey(p.Home), p); err != nil {
		return err
	}
	all, err := r.All(tx)
	if err != nil {
		return err
	}
	return tx.PutJSON(r.indexKey(), append(all, p))
}

func (r AssetRegistry) ByForeign(tx *store.Tx, a common.Address) (AssetPair, bool, error) {
	var p AssetPair
	ok, err := tx.GetJSON(r.foreignKey(a), &p)
	return p, ok, err
}

func (r AssetRegistry) ByHome(tx *store.Tx, a common.Address) (AssetPair, bool, error) {
	var p AssetPair
	ok, err := tx.GetJSON(r.homeKey(a), &p)
	return p, ok, err
}

// ByLocal looks an asset up by its identifier on this ledger's chain.
func (r AssetRegistry) ByLocal(tx *store.Tx, a common.Address) (AssetPair, bool, error) {
	if r.side == Home {
		return r.ByHome(tx, a)
	}
	return r.ByForeign(tx, a)
}

// MustLocal is ByLocal with a missing registration reported as ErrAssetNotRegistered.
func (r AssetRegistry) MustLocal(tx *store.Tx, a common.Address) (AssetPair, error) {
	p, ok, err := r.ByLocal(tx, a)
	if err != nil {
		return AssetPair{}, err
	}
	if !ok {
		return AssetPair{}, fmt.Errorf("%w: %s", ErrAssetNotRegistered, a.Hex())
	}
	return p, nil
}

// All lists registrations in the order they were made.
func (r AssetRegistry) All(tx *store.Tx) ([]AssetPair, error) {
	var all []AssetPair
	if _, err := tx.GetJSON(r.indexKey(), &all); err != nil {
		return nil, err
	}
	return all, nil
}
