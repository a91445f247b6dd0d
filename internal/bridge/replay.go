package bridge

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"github.com/ContractLand/terra-bridge-contracts/internal/store"
)

var executedFlag = new(uint256.Int).Lsh(uint256.NewInt(1), 255)

// VoteCount is the decoded form of the packed per-message counter word.
type VoteCount struct {
	Votes    uint32
	Executed bool
}

// Word packs the count with the executed flag in bit 255.
func (v VoteCount) Word() *uint256.Int {
	w := uint256.NewInt(uint64(v.Votes))
	if v.Executed {
		w.Or(w, executedFlag)
	}
	return w
}

// VoteCountFromWord unpacks a counter word.
func VoteCountFromWord(w *uint256.Int) VoteCount {
	flag := new(uint256.Int).And(w, executedFlag)
	votes := new(uint256.Int).Xor(w, flag)
	return VoteCount{Votes: uint32(votes.Uint64()), Executed: !flag.IsZero()}
}

// ReplayGuard is an append-only membership family under one key prefix.
type ReplayGuard struct {
	family string
}

func NewReplayGuard(family string) ReplayGuard {
	return ReplayGuard{family: family}
}

func (g ReplayGuard) signedKey(signer common.Address, h common.Hash) string {
	return g.family + "/signed/" + crypto.Keccak256Hash(signer.Bytes(), h.Bytes()).Hex()
}

func (g ReplayGuard) executedKey(id common.Hash) string {
	return g.family + "/executed/" + id.Hex()
}

func (g ReplayGuard) countKey(h common.Hash) string {
	return g.family + "/count/" + h.Hex()
}

func (g ReplayGuard) IsSigned(tx *store.Tx, signer common.Address, h common.Hash) (bool, error) {
	return tx.GetBool(g.signedKey(signer, h))
}

// MarkSigned records that signer voted for h. A second mark fails.
func (g ReplayGuard) MarkSigned(tx *store.Tx, signer common.Address, h common.Hash) error {
	signed, err := g.IsSigned(tx, signer, h)
	if err != nil {
		return err
	}
	if signed {
		return fmt.Errorf("%w: %s", ErrDuplicateSigner, signer.Hex())
	}
	tx.PutBool(g.signedKey(signer, h), true)
	return nil
}

func (g ReplayGuard) IsExecuted(tx *store.Tx, id common.Hash) (bool, error) {
	return tx.GetBool(g.executedKey(id))
}

// MarkExecuted permanently records id as executed. A second mark fails.
func (g ReplayGuard) MarkExecuted(tx *store.Tx, id common.Hash) error {
	done, err := g.IsExecuted(tx, id)
	if err != nil {
		return err
	}
	if done {
		return fmt.Errorf("%w: %s", ErrAlreadyExecuted, id.Hex())
	}
	tx.PutBool(g.executedKey(id), true)
	return nil
}

// Count reads the packed counter for h.
func (g ReplayGuard) Count(tx *store.Tx, h common.Hash) (VoteCount, error) {
	raw, ok, err := tx.Get(g.countKey(h))
	if err != nil || !ok {
		return VoteCount{}, err
	}
	return VoteCountFromWord(new(uint256.Int).SetBytes(raw)), nil
}

// SetCount stores the counter for h. A counter already marked executed is frozen.
func (g ReplayGuard) SetCount(tx *store.Tx, h common.Hash, v VoteCount) error {
	cur, err := g.Count(tx, h)
	if err != nil {
		return err
	}
	if cur.Executed {
		return fmt.Errorf("%w: %s", ErrAlreadyExecuted, h.Hex())
	}
	word := v.Word().Bytes32()
	tx.Put(g.countKey(h), word[:])
	return nil
}
