package bridge

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/sirupsen/logrus"

	"github.com/ContractLand/terra-bridge-contracts/internal/chain"
	"github.com/ContractLand/terra-bridge-contracts/internal/events"
	"github.com/ContractLand/terra-bridge-contracts/internal/store"
	"github.com/ContractLand/terra-bridge-contracts/internal/token"
)

// Side tells which end of the bridge a ledger runs on.
type Side uint8

const (
	Home Side = iota
	Foreign
)

func (s Side) String() string {
	if s == Home {
		return "home"
	}
	return "foreign"
}

// ParseSide accepts "home" or "foreign" in any case.
func ParseSide(v string) (Side, error) {
	switch strings.ToLower(v) {
	case "home":
		return Home, nil
	case "foreign":
		return Foreign, nil
	}
	return 0, fmt.Errorf("unknown bridge side %q", v)
}

const (
	keyLedgerOwner         = "bridge/owner"
	keyLedgerInitialized   = "bridge/initialized"
	keyLedgerGasPrice      = "bridge/gasPrice"
	keyLedgerConfirmations = "bridge/confirmations"
	keyLedgerNonce         = "bridge/nonce"
)

// custody is the side-specific way bridged tokens enter and leave the ledger.
type custody interface {
	// checkAsset validates a token before it is registered on this side.
	checkAsset(c *chain.Context, t *token.Token) error
	// accounted is the part of the ledger's balance of t that backs
	// transfers already announced.
	accounted(c *chain.Context, t *token.Token) (*big.Int, error)
	// take disposes of amount already transferred to the ledger.
	take(c *chain.Context, t *token.Token, amount *big.Int) error
	// give pays amount out to recipient.
	give(c *chain.Context, t *token.Token, to common.Address, amount *big.Int) error
}

// LedgerConfig describes where a ledger lives on its chain.
type LedgerConfig struct {
	// Address is the ledger's own account on the chain.
	Address        common.Address
	NativeDecimals uint8
	Recoverer      *Recoverer
	Logger         *logrus.Logger
}

// InitParams are the one-time ledger settings. Limits apply to the native asset.
type InitParams struct {
	Limits
	GasPrice                   *big.Int
	RequiredBlockConfirmations uint64
}

// Status is a read-only summary of a ledger.
type Status struct {
	Side                       string           `json:"side"`
	Chain                      string           `json:"chain"`
	ChainID                    uint64           `json:"chainId"`
	Address                    common.Address   `json:"address"`
	Initialized                bool             `json:"initialized"`
	Owner                      common.Address   `json:"owner"`
	GasPrice                   *big.Int         `json:"gasPrice"`
	RequiredBlockConfirmations uint64           `json:"requiredBlockConfirmations"`
	RequiredSignatures         uint64           `json:"requiredSignatures"`
	Validators                 []common.Address `json:"validators"`
	Nonce                      uint64           `json:"nonce"`
}

// Ledger is the bridge contract on one chain.
type Ledger struct {
	side           Side
	chain          *chain.Chain
	address        common.Address
	nativeDecimals uint8

	registry  *ValidatorRegistry
	recoverer *Recoverer
	collector *SignatureCollector
	custody   custody

	assets    AssetRegistry
	limits    LimitEnforcer
	transfers ReplayGuard
	votes     ReplayGuard

	log *logrus.Entry
}

func newLedger(side Side, registry *ValidatorRegistry, cfg LedgerConfig, cust custody) (*Ledger, error) {
	if cfg.Address == (common.Address{}) {
		return nil, errors.New("bridge: ledger address is required")
	}
	if cfg.NativeDecimals > CanonicalDecimals {
		return nil, fmt.Errorf("%w: native coin has %d", ErrInvalidDecimals, cfg.NativeDecimals)
	}
	recoverer := cfg.Recoverer
	if recoverer == nil {
		var err error
		if recoverer, err = NewRecoverer(0); err != nil {
			return nil, err
		}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	ch := registry.Chain()
	l := &Ledger{
		side:           side,
		chain:          ch,
		address:        cfg.Address,
		nativeDecimals: cfg.NativeDecimals,
		registry:       registry,
		recoverer:      recoverer,
		collector:      NewSignatureCollector(registry, recoverer, cfg.Address),
		custody:        cust,
		assets:         NewAssetRegistry("bridge", side),
		limits:         NewLimitEnforcer("bridge"),
		transfers:      NewReplayGuard("bridge"),
		votes:          NewReplayGuard("withdraw"),
		log:            logger.WithFields(logrus.Fields{"component": "ledger", "chain": ch.Name(), "side": side.String()}),
	}
	ch.Register(cfg.Address, l)
	return l, nil
}

func (l *Ledger) Side() Side                   { return l.side }
func (l *Ledger) Address() common.Address      { return l.address }
func (l *Ledger) Chain() *chain.Chain          { return l.chain }
func (l *Ledger) Registry() *ValidatorRegistry { return l.registry }
func (l *Ledger) NativeDecimals() uint8        { return l.nativeDecimals }
func (l *Ledger) op(name string) string        { return l.side.String() + "." + name }

// Initialize configures the ledger once. The validator registry on the same
// chain must already be initialized.
func (l *Ledger) Initialize(ctx context.Context, owner common.Address, p InitParams) error {
	return l.chain.Execute(ctx, l.op("initialize"), func(c *chain.Context) error {
		tx := c.Tx()
		done, err := tx.GetBool(keyLedgerInitialized)
		if err != nil {
			return err
		}
		if done {
			return ErrAlreadyInitialized
		}
		if owner == (common.Address{}) {
			return ErrInvalidOwner
		}
		set, err := l.registry.snapshot(tx)
		if err != nil {
			return err
		}
		if !set.Initialized {
			return fmt.Errorf("%w: validator registry", ErrNotInitialized)
		}
		if err := l.limits.SetLimits(tx, NativeAsset, p.Limits); err != nil {
			return err
		}
		gasPrice := p.GasPrice
		if gasPrice == nil {
			gasPrice = new(big.Int)
		}
		if gasPrice.Sign() < 0 {
			return fmt.Errorf("%w: negative gas price", ErrInvalidAmount)
		}

		tx.Put(keyLedgerOwner, owner.Bytes())
		tx.PutBig(keyLedgerGasPrice, gasPrice)
		tx.PutUint64(keyLedgerConfirmations, p.RequiredBlockConfirmations)
		tx.PutBool(keyLedgerInitialized, true)

		l.emitLimits(c, owner, NativeAsset, p.Limits.normalized())
		c.Emit(events.Event{
			Name:       events.GasPriceChanged,
			Contract:   l.address,
			Sender:     owner,
			Amount:     new(big.Int).Set(gasPrice),
			Attributes: map[string]string{"gasPrice": gasPrice.String()},
		})
		c.Emit(events.Event{
			Name:       events.ConfirmationsChanged,
			Contract:   l.address,
			Sender:     owner,
			Attributes: map[string]string{"requiredBlockConfirmations": strconv.FormatUint(p.RequiredBlockConfirmations, 10)},
		})
		return nil
	})
}

// SendNative moves amount of native coin from sender into the ledger and
// announces the transfer to the other chain. A zero recipient means sender.
func (l *Ledger) SendNative(ctx context.Context, sender, recipient common.Address, amount *big.Int) (common.Hash, error) {
	var ref common.Hash
	err := l.chain.Execute(ctx, l.op("sendNative"), func(c *chain.Context) error {
		var err error
		ref, err = l.sendNative(c, sender, recipient, amount)
		return err
	})
	if err != nil {
		return common.Hash{}, err
	}
	if recipient == (common.Address{}) {
		recipient = sender
	}
	l.log.WithFields(logrus.Fields{
		"sender":    sender.Hex(),
		"recipient": recipient.Hex(),
		"amount":    amount.String(),
		"transfer":  ref.Hex(),
	}).Info("native transfer initiated")
	return ref, nil
}

func (l *Ledger) sendNative(c *chain.Context, sender, recipient common.Address, amount *big.Int) (common.Hash, error) {
	if err := l.requireInitialized(c.Tx()); err != nil {
		return common.Hash{}, err
	}
	if amount == nil || amount.Sign() <= 0 {
		return common.Hash{}, ErrInvalidAmount
	}
	if recipient == (common.Address{}) {
		recipient = sender
	}
	pair, err := l.assets.MustLocal(c.Tx(), NativeAsset)
	if err != nil {
		return common.Hash{}, err
	}
	canonical, err := ToCanonical(amount, pair.Decimals)
	if err != nil {
		return common.Hash{}, err
	}
	if err := l.limits.WithinLimits(c.Tx(), NativeAsset, canonical, Outbound, c.Now()); err != nil {
		return common.Hash{}, err
	}
	if err := c.TransferNative(sender, l.address, amount); err != nil {
		return common.Hash{}, funding(err)
	}
	return l.outbound(c, pair, sender, recipient, canonical)
}

// OnTokenTransfer is the receive-with-call hook. It runs inside the token's
// TransferAndCall, after amount has been credited to the ledger. data is
// empty (recipient is from) or a 20-byte recipient address.
func (l *Ledger) OnTokenTransfer(c *chain.Context, tokenAddr, from common.Address, amount *big.Int, data []byte) error {
	if err := l.requireInitialized(c.Tx()); err != nil {
		return err
	}
	d, ok := c.Delivery()
	if !ok || d.Token != tokenAddr || d.From != from || d.To != l.address || amount == nil || d.Amount.Cmp(amount) != 0 {
		return ErrTransferNotFunded
	}
	pair, ok, err := l.assets.ByLocal(c.Tx(), tokenAddr)
	if err != nil {
		return err
	}
	if !ok || tokenAddr == NativeAsset {
		return fmt.Errorf("%w: %s", ErrNotRegisteredToken, tokenAddr.Hex())
	}
	recipient := from
	switch len(data) {
	case 0:
	case common.AddressLength:
		recipient = common.BytesToAddress(data)
	default:
		return fmt.Errorf("%w: payload of %d bytes", ErrInvalidRecipient, len(data))
	}
	if recipient == (common.Address{}) {
		return ErrInvalidRecipient
	}

	t, err := token.Load(c, tokenAddr)
	if err != nil {
		return err
	}
	held, err := t.BalanceOf(c, l.address)
	if err != nil {
		return err
	}
	accounted, err := l.custody.accounted(c, t)
	if err != nil {
		return err
	}
	if held.Sub(held, accounted).Cmp(amount) < 0 {
		return ErrTransferNotFunded
	}
	_, err = l.outboundToken(c, t, pair, from, recipient, amount)
	return err
}

// RelayTokens pulls amount of an approved token from sender and announces
// the transfer. Only the sender's own allowance is ever spent.
func (l *Ledger) RelayTokens(ctx context.Context, sender, tokenAddr, recipient common.Address, amount *big.Int) (common.Hash, error) {
	var ref common.Hash
	err := l.chain.Execute(ctx, l.op("relayTokens"), func(c *chain.Context) error {
		var err error
		ref, err = l.relayTokens(c, sender, tokenAddr, recipient, amount)
		return err
	})
	return ref, err
}

func (l *Ledger) relayTokens(c *chain.Context, sender, tokenAddr, recipient common.Address, amount *big.Int) (common.Hash, error) {
	if err := l.requireInitialized(c.Tx()); err != nil {
		return common.Hash{}, err
	}
	if tokenAddr == NativeAsset {
		return common.Hash{}, fmt.Errorf("%w: native coin", ErrNotRegisteredToken)
	}
	if amount == nil || amount.Sign() <= 0 {
		return common.Hash{}, ErrInvalidAmount
	}
	pair, err := l.assets.MustLocal(c.Tx(), tokenAddr)
	if err != nil {
		return common.Hash{}, err
	}
	if recipient == (common.Address{}) {
		recipient = sender
	}
	t, err := token.Load(c, tokenAddr)
	if err != nil {
		return common.Hash{}, err
	}
	if err := t.TransferFrom(c, l.address, sender, l.address, amount); err != nil {
		return common.Hash{}, funding(err)
	}
	return l.outboundToken(c, t, pair, sender, recipient, amount)
}

func (l *Ledger) outboundToken(c *chain.Context, t *token.Token, pair AssetPair, sender, recipient common.Address, amount *big.Int) (common.Hash, error) {
	if amount == nil || amount.Sign() <= 0 {
		return common.Hash{}, ErrInvalidAmount
	}
	canonical, err := ToCanonical(amount, pair.Decimals)
	if err != nil {
		return common.Hash{}, err
	}
	if err := l.limits.WithinLimits(c.Tx(), t.Address(), canonical, Outbound, c.Now()); err != nil {
		return common.Hash{}, err
	}
	if err := l.custody.take(c, t, amount); err != nil {
		return common.Hash{}, err
	}
	return l.outbound(c, pair, sender, recipient, canonical)
}

// outbound records the spend and emits TransferInitiated with the asset
// identifier of the other chain.
func (l *Ledger) outbound(c *chain.Context, pair AssetPair, sender, recipient common.Address, canonical *big.Int) (common.Hash, error) {
	tx := c.Tx()
	local := pair.Local(l.side)
	if err := l.limits.RecordSpend(tx, local, canonical, Outbound, c.Now()); err != nil {
		return common.Hash{}, err
	}
	ref, err := l.nextReference(tx)
	if err != nil {
		return common.Hash{}, err
	}
	c.Emit(events.Event{
		Name:       events.TransferInitiated,
		Contract:   l.address,
		TransferID: ref,
		Asset:      pair.Remote(l.side),
		Recipient:  recipient,
		Sender:     sender,
		Amount:     new(big.Int).Set(canonical),
		Attributes: map[string]string{"localAsset": local.Hex()},
	})
	return ref, nil
}

// nextReference derives a unique source transaction reference for an
// outbound transfer from the chain id, the ledger address and a nonce.
func (l *Ledger) nextReference(tx *store.Tx) (common.Hash, error) {
	nonce, err := tx.GetUint64(keyLedgerNonce)
	if err != nil {
		return common.Hash{}, err
	}
	nonce++
	tx.PutUint64(keyLedgerNonce, nonce)
	return l.reference(nonce), nil
}

func (l *Ledger) reference(nonce uint64) common.Hash {
	var buf [16]byte
	binary.BigEndian.PutUint64(buf[:8], l.chain.ID())
	binary.BigEndian.PutUint64(buf[8:], nonce)
	return crypto.Keccak256Hash(buf[:8], l.address.Bytes(), buf[8:])
}

// ExecuteInbound pays out a transfer attested by a full signature bundle.
func (l *Ledger) ExecuteInbound(ctx context.Context, sender common.Address, msg *Message, signatures [][]byte) error {
	err := l.chain.Execute(ctx, l.op("executeInbound"), func(c *chain.Context) error {
		tx := c.Tx()
		if err := l.requireInitialized(tx); err != nil {
			return err
		}
		raw, err := msg.Encode()
		if err != nil {
			return err
		}
		if err := msg.validate(); err != nil {
			return err
		}
		if err := l.requireNotExecuted(tx, msg.SourceTx); err != nil {
			return err
		}

		seen := make(map[common.Address]struct{}, len(signatures))
		for _, sig := range signatures {
			signer, err := l.recoverer.Recover(sig, raw)
			if err != nil {
				return err
			}
			if _, dup := seen[signer]; dup {
				return fmt.Errorf("%w: %s", ErrDuplicateSigner, signer.Hex())
			}
			member, err := l.registry.isValidator(tx, signer)
			if err != nil {
				return err
			}
			if !member {
				return fmt.Errorf("%w: %s", ErrNotValidator, signer.Hex())
			}
			seen[signer] = struct{}{}
		}
		if err := l.requireQuorum(tx, len(seen)); err != nil {
			return err
		}
		return l.payout(c, msg, crypto.Keccak256Hash(raw), sender)
	})
	if err != nil {
		return err
	}
	l.logExecuted(msg, sender, "bundle")
	return nil
}

// SubmitSignature adds one validator signature to the collection for message.
func (l *Ledger) SubmitSignature(ctx context.Context, submitter common.Address, signature, message []byte) (*SubmitResult, error) {
	var res *SubmitResult
	err := l.chain.Execute(ctx, l.op("submitSignature"), func(c *chain.Context) error {
		tx := c.Tx()
		if err := l.requireInitialized(tx); err != nil {
			return err
		}
		msg, err := ParseMessage(message)
		if err != nil {
			return err
		}
		if err := msg.validate(); err != nil {
			return err
		}
		if err := l.requireNotExecuted(tx, msg.SourceTx); err != nil {
			return err
		}
		res, err = l.collector.Submit(c, submitter, signature, message)
		return err
	})
	if err != nil {
		return nil, err
	}
	entry := l.log.WithFields(logrus.Fields{
		"message": res.Hash.Hex(),
		"signer":  res.Signer.Hex(),
		"votes":   res.Votes,
	})
	if res.QuorumReached {
		entry.Info("signatures collected")
	} else {
		entry.Debug("signature submitted")
	}
	return res, nil
}

// Finalize pays out a collected message. Stored signatures are checked again
// against the current validator set and threshold.
func (l *Ledger) Finalize(ctx context.Context, sender common.Address, h common.Hash) error {
	var msg *Message
	err := l.chain.Execute(ctx, l.op("finalize"), func(c *chain.Context) error {
		tx := c.Tx()
		if err := l.requireInitialized(tx); err != nil {
			return err
		}
		b, err := l.collector.Bundle(tx, h)
		if err != nil {
			return err
		}
		if msg, err = ParseMessage(b.Message); err != nil {
			return err
		}
		if err := l.requireNotExecuted(tx, msg.SourceTx); err != nil {
			return err
		}
		if b.State != QuorumReached {
			return fmt.Errorf("%w: %d votes", ErrQuorumNotReached, b.Votes)
		}

		valid := 0
		for i, sig := range b.Signatures {
			signer, err := l.recoverer.Recover(sig, b.Message)
			if err != nil {
				return err
			}
			if signer != b.Signers[i] {
				return fmt.Errorf("%w: stored signer mismatch", ErrInvalidSignature)
			}
			member, err := l.registry.isValidator(tx, signer)
			if err != nil {
				return err
			}
			if member {
				valid++
			}
		}
		if err := l.requireQuorum(tx, valid); err != nil {
			return err
		}
		return l.payout(c, msg, h, sender)
	})
	if err != nil {
		return err
	}
	l.logExecuted(msg, sender, "finalize")
	return nil
}

// Withdraw counts a direct vote by validator for msg and pays out on the vote
// that reaches the threshold.
func (l *Ledger) Withdraw(ctx context.Context, validator common.Address, msg *Message) (bool, error) {
	var executed bool
	err := l.chain.Execute(ctx, l.op("withdraw"), func(c *chain.Context) error {
		tx := c.Tx()
		if err := l.requireInitialized(tx); err != nil {
			return err
		}
		raw, err := msg.Encode()
		if err != nil {
			return err
		}
		if err := msg.validate(); err != nil {
			return err
		}
		member, err := l.registry.isValidator(tx, validator)
		if err != nil {
			return err
		}
		if !member {
			return fmt.Errorf("%w: %s", ErrNotValidator, validator.Hex())
		}
		if err := l.requireNotExecuted(tx, msg.SourceTx); err != nil {
			return err
		}

		h := crypto.Keccak256Hash(raw)
		count, err := l.votes.Count(tx, h)
		if err != nil {
			return err
		}
		if count.Executed {
			return fmt.Errorf("%w: %s", ErrAlreadyExecuted, h.Hex())
		}
		if err := l.votes.MarkSigned(tx, validator, h); err != nil {
			return err
		}
		count.Votes++

		c.Emit(events.Event{
			Name:        events.SignedForTransfer,
			Contract:    l.address,
			TransferID:  msg.SourceTx,
			MessageHash: h,
			Asset:       msg.Asset,
			Recipient:   msg.Recipient,
			Amount:      new(big.Int).Set(msg.Amount),
			Signer:      validator,
			Attributes:  map[string]string{"votes": strconv.FormatUint(uint64(count.Votes), 10)},
		})

		threshold, err := l.registry.threshold(tx)
		if err != nil {
			return err
		}
		if uint64(count.Votes) < threshold {
			return l.votes.SetCount(tx, h, count)
		}
		count.Executed = true
		if err := l.votes.SetCount(tx, h, count); err != nil {
			return err
		}
		executed = true
		return l.payout(c, msg, h, validator)
	})
	if err != nil {
		return false, err
	}
	if executed {
		l.logExecuted(msg, validator, "withdraw")
	}
	return executed, nil
}

// payout gates an inbound transfer through the limits and replay guard and
// delivers the asset.
func (l *Ledger) payout(c *chain.Context, msg *Message, h common.Hash, relayer common.Address) error {
	tx := c.Tx()
	pair, err := l.assets.MustLocal(tx, msg.Asset)
	if err != nil {
		return err
	}
	if err := l.limits.WithinLimits(tx, msg.Asset, msg.Amount, Inbound, c.Now()); err != nil {
		return err
	}
	if err := l.limits.RecordSpend(tx, msg.Asset, msg.Amount, Inbound, c.Now()); err != nil {
		return err
	}
	if err := l.transfers.MarkExecuted(tx, msg.SourceTx); err != nil {
		return err
	}

	amount, err := FromCanonical(msg.Amount, pair.Decimals)
	if err != nil {
		return err
	}
	if msg.Asset == NativeAsset {
		if err := c.TransferNative(l.address, msg.Recipient, amount); err != nil {
			return funding(err)
		}
	} else {
		t, err := token.Load(c, msg.Asset)
		if err != nil {
			return err
		}
		if err := l.custody.give(c, t, msg.Recipient, amount); err != nil {
			return funding(err)
		}
	}

	id, err := msg.TransferID()
	if err != nil {
		return err
	}
	c.Emit(events.Event{
		Name:        events.TransferExecuted,
		Contract:    l.address,
		TransferID:  msg.SourceTx,
		MessageHash: h,
		Asset:       msg.Asset,
		Recipient:   msg.Recipient,
		Sender:      relayer,
		Amount:      new(big.Int).Set(msg.Amount),
		Attributes: map[string]string{
			"messageId":   id.Hex(),
			"localAmount": amount.String(),
		},
	})
	return nil
}

func (l *Ledger) logExecuted(msg *Message, relayer common.Address, path string) {
	l.log.WithFields(logrus.Fields{
		"asset":     msg.Asset.Hex(),
		"recipient": msg.Recipient.Hex(),
		"amount":    msg.Amount.String(),
		"sourceTx":  msg.SourceTx.Hex(),
		"relayer":   relayer.Hex(),
		"path":      path,
	}).Info("transfer executed")
}

func (l *Ledger) requireInitialized(tx *store.Tx) error {
	done, err := tx.GetBool(keyLedgerInitialized)
	if err != nil {
		return err
	}
	if !done {
		return ErrNotInitialized
	}
	return nil
}

func (l *Ledger) requireNotExecuted(tx *store.Tx, ref common.Hash) error {
	done, err := l.transfers.IsExecuted(tx, ref)
	if err != nil {
		return err
	}
	if done {
		return fmt.Errorf("%w: source transaction %s", ErrAlreadyExecuted, ref.Hex())
	}
	return nil
}

func (l *Ledger) requireQuorum(tx *store.Tx, signers int) error {
	threshold, err := l.registry.threshold(tx)
	if err != nil {
		return err
	}
	if uint64(signers) < threshold {
		return fmt.Errorf("%w: %d of %d", ErrInsufficientSignatures, signers, threshold)
	}
	return nil
}

// funding maps balance failures of the bank and tokens onto ErrInsufficientFunds.
func funding(err error) error {
	if errors.Is(err, chain.ErrInsufficientFunds) ||
		errors.Is(err, token.ErrInsufficientBalance) ||
		errors.Is(err, token.ErrInsufficientAllowance) {
		return fmt.Errorf("%w: %v", ErrInsufficientFunds, err)
	}
	return err
}
