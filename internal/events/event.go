package events

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// Event names emitted by the chains.
const (
	TransferInitiated   = "TransferInitiated"
	SignedForTransfer   = "SignedForTransfer"
	SignatureSubmitted  = "SignatureSubmitted"
	CollectedSignatures = "CollectedSignatures"
	TransferExecuted    = "TransferExecuted"

	ValidatorAdded            = "ValidatorAdded"
	ValidatorRemoved          = "ValidatorRemoved"
	RequiredSignaturesChanged = "RequiredSignaturesChanged"
	OwnershipTransferred      = "OwnershipTransferred"
	AssetRegistered           = "AssetRegistered"
	LimitsChanged             = "LimitsChanged"
	GasPriceChanged           = "GasPriceChanged"
	ConfirmationsChanged      = "RequiredBlockConfirmationsChanged"
	TokensClaimed             = "TokensClaimed"

	TokenTransfer = "Transfer"
	TokenApproval = "Approval"
	TokenMint     = "Mint"
	TokenBurn     = "Burn"
)

// Event is a log entry produced by a committed chain operation.
type Event struct {
	ID          string            `json:"id"`
	Chain       string            `json:"chain"`
	Name        string            `json:"name"`
	Contract    common.Address    `json:"contract"`
	TransferID  common.Hash       `json:"transferId"`
	MessageHash common.Hash       `json:"messageHash"`
	Asset       common.Address    `json:"asset"`
	Recipient   common.Address    `json:"recipient"`
	Sender      common.Address    `json:"sender"`
	Signer      common.Address    `json:"signer"`
	Amount      *big.Int          `json:"amount,omitempty"`
	Attributes  map[string]string `json:"attributes,omitempty"`
	Timestamp   time.Time         `json:"timestamp"`
}

// Stamp fills the identity fields that the emitting chain owns.
func (e *Event) Stamp(chain string, at time.Time) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	e.Chain = chain
	if e.Timestamp.IsZero() {
		e.Timestamp = at.UTC()
	}
}

// Subject is the NATS subject the event is published on.
func (e Event) Subject() string {
	return fmt.Sprintf("bridge.%s.%s", strings.ToLower(e.Chain), e.Name)
}

// Attr returns a named attribute or "".
func (e Event) Attr(key string) string {
	if e.Attributes == nil {
		return ""
	}
	return e.Attributes[key]
}

// Sink receives committed events.
type Sink interface {
	Publish(ctx context.Context, ev Event) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, ev Event) error

func (f SinkFunc) Publish(ctx context.Context, ev Event) error {
	return f(ctx, ev)
}

type fanout []Sink

// Multi publishes to every sink and joins their errors. Nil sinks are skipped.
func Multi(sinks ...Sink) Sink {
	out := make(fanout, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

func (f fanout) Publish(ctx context.Context, ev Event) error {
	var errs []error
	for _, s := range f {
		if err := s.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Publish(_ context.Context, ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

// Events returns a copy of everything recorded so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Named returns the recorded events with the given name, in order.
func (r *Recorder) Named(name string) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, ev := range r.events {
		if ev.Name == name {
			out = append(out, ev)
		}
	}
	return out
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}
