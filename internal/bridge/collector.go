package bridge

import (
	"fmt"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/ContractLand/terra-bridge-contracts/internal/chain"
	"github.com/ContractLand/terra-bridge-contracts/internal/events"
	"github.com/ContractLand/terra-bridge-contracts/internal/store"
)

// CollectionState is the progress of signature collection for one message.
type CollectionState uint8

const (
	NoSignatures CollectionState = iota
	Collecting
	QuorumReached
)

func (s CollectionState) String() string {
	switch s {
	case Collecting:
		return "collecting"
	case QuorumReached:
		return "quorum_reached"
	default:
		return "no_signatures"
	}
}

func (s CollectionState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Bundle is everything collected for a message hash.
type Bundle struct {
	Hash       common.Hash      `json:"hash"`
	Message    []byte           `json:"message"`
	Signatures [][]byte         `json:"signatures"`
	Signers    []common.Address `json:"signers"`
	Votes      uint32           `json:"votes"`
	State      CollectionState  `json:"state"`
}

// SubmitResult describes an accepted signature.
type SubmitResult struct {
	Hash          common.Hash
	Signer        common.Address
	Votes         uint32
	Threshold     uint64
	QuorumReached bool
}

// SignatureCollector accumulates validator signatures per message until the
// registry threshold is met.
type SignatureCollector struct {
	registry  *ValidatorRegistry
	recoverer *Recoverer
	guard     ReplayGuard
	contract  common.Address
}

func NewSignatureCollector(registry *ValidatorRegistry, recoverer *Recoverer, contract common.Address) *SignatureCollector {
	return &SignatureCollector{
		registry:  registry,
		recoverer: recoverer,
		guard:     NewReplayGuard("collector"),
		contract:  contract,
	}
}

func collectorMessageKey(h common.Hash) string { return "collector/message/" + h.Hex() }

func collectorSigKey(h common.Hash, i uint32) string {
	return "collector/sig/" + h.Hex() + "/" + strconv.FormatUint(uint64(i), 10)
}

func collectorSignerKey(h common.Hash, i uint32) string {
	return "collector/signer/" + h.Hex() + "/" + strconv.FormatUint(uint64(i), 10)
}

// Submit records signature over message. The signer is recovered from the
// signature; submitter is the relayer credited if this call completes the quorum.
// Must run inside an Execute of the registry's chain.
func (s *SignatureCollector) Submit(c *chain.Context, submitter common.Address, signature, message []byte) (*SubmitResult, error) {
	msg, err := ParseMessage(message)
	if err != nil {
		return nil, err
	}
	tx := c.Tx()
	h := crypto.Keccak256Hash(message)

	signer, err := s.recoverer.Recover(signature, message)
	if err != nil {
		return nil, err
	}
	member, err := s.registry.isValidator(tx, signer)
	if err != nil {
		return nil, err
	}
	if !member {
		return nil, fmt.Errorf("%w: %s", ErrNotValidator, signer.Hex())
	}

	count, err := s.guard.Count(tx, h)
	if err != nil {
		return nil, err
	}
	if count.Executed {
		return nil, fmt.Errorf("%w: message %s already collected", ErrAlreadyExecuted, h.Hex())
	}
	if err := s.guard.MarkSigned(tx, signer, h); err != nil {
		return nil, err
	}

	if count.Votes == 0 {
		tx.Put(collectorMessageKey(h), message)
	}
	tx.Put(collectorSigKey(h, count.Votes), signature)
	tx.Put(collectorSignerKey(h, count.Votes), signer.Bytes())
	count.Votes++

	threshold, err := s.registry.threshold(tx)
	if err != nil {
		return nil, err
	}
	reached := uint64(count.Votes) >= threshold
	count.Executed = reached
	if err := s.guard.SetCount(tx, h, count); err != nil {
		return nil, err
	}

	c.Emit(events.Event{
		Name:        events.SignatureSubmitted,
		Contract:    s.contract,
		TransferID:  msg.SourceTx,
		MessageHash: h,
		Signer:      signer,
		Sender:      submitter,
		Attributes:  map[string]string{"votes": strconv.FormatUint(uint64(count.Votes), 10)},
	})
	if reached {
		c.Emit(events.Event{
			Name:        events.CollectedSignatures,
			Contract:    s.contract,
			TransferID:  msg.SourceTx,
			MessageHash: h,
			Signer:      signer,
			Sender:      submitter,
			Attributes: map[string]string{
				"votes":              strconv.FormatUint(uint64(count.Votes), 10),
				"requiredSignatures": strconv.FormatUint(threshold, 10),
			},
		})
	}

	return &SubmitResult{
		Hash:          h,
		Signer:        signer,
		Votes:         count.Votes,
		Threshold:     threshold,
		QuorumReached: reached,
	}, nil
}

// Bundle reads the collection for h. A hash nobody signed yields ErrMessageNotFound.
func (s *SignatureCollector) Bundle(tx *store.Tx, h common.Hash) (*Bundle, error) {
	message, ok, err := tx.Get(collectorMessageKey(h))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMessageNotFound, h.Hex())
	}
	count, err := s.guard.Count(tx, h)
	if err != nil {
		return nil, err
	}

	b := &Bundle{
		Hash:       h,
		Message:    message,
		Signatures: make([][]byte, 0, count.Votes),
		Signers:    make([]common.Address, 0, count.Votes),
		Votes:      count.Votes,
		State:      Collecting,
	}
	if count.Executed {
		b.State = QuorumReached
	}
	for i := uint32(0); i < count.Votes; i++ {
		sig, _, err := tx.Get(collectorSigKey(h, i))
		if err != nil {
			return nil, err
		}
		signer, _, err := tx.Get(collectorSignerKey(h, i))
		if err != nil {
			return nil, err
		}
		b.Signatures = append(b.Signatures, sig)
		b.Signers = append(b.Signers, common.BytesToAddress(signer))
	}
	return b, nil
}
