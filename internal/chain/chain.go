package chain

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/ContractLand/terra-bridge-contracts/internal/events"
	"github.com/ContractLand/terra-bridge-contracts/internal/metrics"
	"github.com/ContractLand/terra-bridge-contracts/internal/store"
)

// Receiver is a contract that accepts transfer-with-call notifications from tokens.
type Receiver interface {
	OnTokenTransfer(c *Context, token, from common.Address, amount *big.Int, data []byte) error
}

// Options tune a Chain. Zero values pick defaults.
type Options struct {
	Clock  func() time.Time
	Sink   events.Sink
	Logger *logrus.Logger
	// ErrorLabel names a failed operation's error for the rejection counter.
	ErrorLabel func(error) string
}

// Chain is one serialized ledger: every state change runs to completion
// inside Execute before the next one starts.
type Chain struct {
	name  string
	id    uint64
	store *store.Store

	mu         sync.Mutex
	clock      func() time.Time
	sink       events.Sink
	errorLabel func(error) string
	log        *logrus.Entry

	contractsMu sync.RWMutex
	contracts   map[common.Address]Receiver
}

func New(name string, id uint64, st *store.Store, opts Options) *Chain {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	label := opts.ErrorLabel
	if label == nil {
		label = func(error) string { return "error" }
	}
	return &Chain{
		name:       name,
		id:         id,
		store:      st,
		clock:      clock,
		sink:       opts.Sink,
		errorLabel: label,
		log:        logger.WithFields(logrus.Fields{"component": "chain", "chain": name}),
		contracts:  make(map[common.Address]Receiver),
	}
}

func (ch *Chain) Name() string { return ch.name }
func (ch *Chain) ID() uint64   { return ch.id }

// SetSink replaces the event sink. Safe to call while the chain is live.
func (ch *Chain) SetSink(s events.Sink) {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	ch.sink = s
}

// Register binds a receiver contract to an address on this chain.
func (ch *Chain) Register(addr common.Address, r Receiver) {
	ch.contractsMu.Lock()
	defer ch.contractsMu.Unlock()
	ch.contracts[addr] = r
}

func (ch *Chain) receiver(addr common.Address) (Receiver, bool) {
	ch.contractsMu.RLock()
	defer ch.contractsMu.RUnlock()
	r, ok := ch.contracts[addr]
	return r, ok
}

// Execute runs fn against a fresh write overlay. The overlay is committed only
// when fn returns nil; otherwise nothing fn wrote becomes visible. Events
// emitted by fn are published after the commit. fn must not call Execute or
// View on the same chain.
func (ch *Chain) Execute(ctx context.Context, op string, fn func(*Context) error) error {
	ch.mu.Lock()
	defer ch.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	start := time.Now()
	defer func() {
		metrics.OperationDuration.WithLabelValues(ch.name, op).Observe(time.Since(start).Seconds())
	}()

	tx := ch.store.Begin()
	c := &Context{Context: ctx, chain: ch, tx: tx, now: ch.clock()}

	if err := fn(c); err != nil {
		tx.Discard()
		metrics.OperationsTotal.WithLabelValues(ch.name, op, "rejected").Inc()
		metrics.Rejections.WithLabelValues(ch.name, ch.errorLabel(err)).Inc()
		ch.log.WithFields(logrus.Fields{
			"operation": op,
			"error":     err.Error(),
		}).Debug("operation rejected")
		return err
	}

	writes := tx.Pending()
	if err := tx.Commit(); err != nil {
		metrics.OperationsTotal.WithLabelValues(ch.name, op, "failed").Inc()
		ch.log.WithFields(logrus.Fields{
			"operation": op,
			"error":     err.Error(),
		}).Error("state commit failed")
		return err
	}
	metrics.OperationsTotal.WithLabelValues(ch.name, op, "ok").Inc()
	metrics.StateWrites.WithLabelValues(ch.name).Add(float64(writes))

	ch.publish(context.WithoutCancel(ctx), c.events)
	return nil
}

// View runs fn against the committed state. Writes made by fn are dropped.
func (ch *Chain) View(ctx context.Context, fn func(*Context) error) error {
	ch.mu.Lock()
	defer ch.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	tx := ch.store.Begin()
	defer tx.Discard()
	return fn(&Context{Context: ctx, chain: ch, tx: tx, now: ch.clock(), readOnly: true})
}

func (ch *Chain) publish(ctx context.Context, evs []events.Event) {
	if ch.sink == nil {
		return
	}
	for _, ev := range evs {
		if err := ch.sink.Publish(ctx, ev); err != nil {
			metrics.EventSinkErrors.WithLabelValues(ch.name).Inc()
			ch.log.WithFields(logrus.Fields{
				"event": ev.Name,
				"id":    ev.ID,
				"error": err.Error(),
			}).Warn("event delivery failed")
		}
	}
}

// Context is the view of the chain handed to a running operation.
type Context struct {
	context.Context
	chain    *Chain
	tx       *store.Tx
	now      time.Time
	events   []events.Event
	readOnly bool
	delivery *Delivery
}

func (c *Context) Chain() *Chain  { return c.chain }
func (c *Context) Tx() *store.Tx  { return c.tx }
func (c *Context) Now() time.Time { return c.now }

// Emit queues an event for publication once the operation commits.
func (c *Context) Emit(ev events.Event) {
	if c.readOnly {
		return
	}
	ev.Stamp(c.chain.name, c.now)
	c.events = append(c.events, ev)
}

// Delivery is a token transfer being handed to the contract it credited.
type Delivery struct {
	Token  common.Address
	From   common.Address
	To     common.Address
	Amount *big.Int
}

// Deliver notifies the receiver registered at d.To of a transfer that has
// already been credited to it. It reports false when d.To is not a contract.
func (c *Context) Deliver(d Delivery, data []byte) (bool, error) {
	r, ok := c.chain.receiver(d.To)
	if !ok {
		return false, nil
	}
	prev := c.delivery
	c.delivery = &d
	defer func() { c.delivery = prev }()
	return true, r.OnTokenTransfer(c, d.Token, d.From, d.Amount, data)
}

// Delivery returns the transfer currently being delivered, if any. A receiver
// uses it to tell a real notification from a direct call.
func (c *Context) Delivery() (Delivery, bool) {
	if c.delivery == nil {
		return Delivery{}, false
	}
	return *c.delivery, true
}

// IsContract reports whether a receiver is registered at addr.
func (c *Context) IsContract(addr common.Address) bool {
	_, ok := c.chain.receiver(addr)
	return ok
}
