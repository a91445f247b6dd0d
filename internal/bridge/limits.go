package bridge

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ContractLand/terra-bridge-contracts/internal/store"
)

// Direction separates the daily counters of outbound and inbound transfers.
type Direction string

const (
	Outbound Direction = "out"
	Inbound  Direction = "in"
)

const secondsPerDay = 86400

// DayIndex is the day bucket a timestamp falls into.
func DayIndex(t time.Time) uint64 {
	return uint64(t.Unix() / secondsPerDay)
}

// Limits are per-asset bounds in canonical units.
type Limits struct {
	DailyLimit *big.Int `json:"dailyLimit"`
	MaxPerTx   *big.Int `json:"maxPerTx"`
	MinPerTx   *big.Int `json:"minPerTx"`
}

// NewLimits is a convenience constructor for int64 amounts.
func NewLimits(daily, maxPerTx, minPerTx int64) Limits {
	return Limits{
		DailyLimit: big.NewInt(daily),
		MaxPerTx:   big.NewInt(maxPerTx),
		MinPerTx:   big.NewInt(minPerTx),
	}
}

func (l Limits) normalized() Limits {
	out := l
	if out.DailyLimit == nil {
		out.DailyLimit = new(big.Int)
	}
	if out.MaxPerTx == nil {
		out.MaxPerTx = new(big.Int)
	}
	if out.MinPerTx == nil {
		out.MinPerTx = new(big.Int)
	}
	return out
}

// Validate enforces 0 <= minPerTx <= maxPerTx <= dailyLimit.
func (l Limits) Validate() error {
	n := l.normalized()
	if n.MinPerTx.Sign() < 0 || n.MaxPerTx.Sign() < 0 || n.DailyLimit.Sign() < 0 {
		return fmt.Errorf("%w: negative value", ErrInvalidLimits)
	}
	if n.MinPerTx.Cmp(n.MaxPerTx) > 0 || n.MaxPerTx.Cmp(n.DailyLimit) > 0 {
		return fmt.Errorf("%w: min=%s max=%s daily=%s", ErrInvalidLimits, n.MinPerTx, n.MaxPerTx, n.DailyLimit)
	}
	return nil
}

// LimitEnforcer keeps per-asset limits and daily spend counters.
type LimitEnforcer struct {
	prefix string
}

func NewLimitEnforcer(prefix string) LimitEnforcer {
	return LimitEnforcer{prefix: prefix}
}

func (e LimitEnforcer) limitsKey(asset common.Address) string {
	return e.prefix + "/limits/" + asset.Hex()
}

func (e LimitEnforcer) spentKey(dir Direction, asset common.Address, day uint64) string {
	return fmt.Sprintf("%s/spent/%s/%s/%d", e.prefix, dir, asset.Hex(), day)
}

// Limits returns the configured limits; unset limits are all zero.
func (e LimitEnforcer) Limits(tx *store.Tx, asset common.Address) (Limits, error) {
	var l Limits
	if _, err := tx.GetJSON(e.limitsKey(asset), &l); err != nil {
		return Limits{}, err
	}
	return l.normalized(), nil
}

func (e LimitEnforcer) Spent(tx *store.Tx, asset common.Address, dir Direction, day uint64) (*big.Int, error) {
	return tx.GetBig(e.spentKey(dir, asset, day))
}

// WithinLimits rejects amounts outside the per-transaction bounds or beyond
// what is left of today's allowance.
func (e LimitEnforcer) WithinLimits(tx *store.Tx, asset common.Address, amount *big.Int, dir Direction, now time.Time) error {
	l, err := e.Limits(tx, asset)
	if err != nil {
		return err
	}
	if amount.Cmp(l.MinPerTx) < 0 {
		return fmt.Errorf("%w: %s < %s", ErrBelowMinPerTx, amount, l.MinPerTx)
	}
	if amount.Cmp(l.MaxPerTx) > 0 {
		return fmt.Errorf("%w: %s > %s", ErrAboveMaxPerTx, amount, l.MaxPerTx)
	}
	spent, err := e.Spent(tx, asset, dir, DayIndex(now))
	if err != nil {
		return err
	}
	if spent.Add(spent, amount).Cmp(l.DailyLimit) > 0 {
		return fmt.Errorf("%w: %s would be spent of %s", ErrDailyLimitExceeded, spent, l.DailyLimit)
	}
	return nil
}

// RecordSpend adds amount to today's counter.
func (e LimitEnforcer) RecordSpend(tx *store.Tx, asset common.Address, amount *big.Int, dir Direction, now time.Time) error {
	day := DayIndex(now)
	spent, err := e.Spent(tx, asset, dir, day)
	if err != nil {
		return err
	}
	tx.PutBig(e.spentKey(dir, asset, day), spent.Add(spent, amount))
	return nil
}

func (e LimitEnforcer) SetLimits(tx *store.Tx, asset common.Address, l Limits) error {
	l = l.normalized()
	if err := l.Validate(); err != nil {
		return err
	}
	return tx.PutJSON(e.limitsKey(asset), l)
}

func (e LimitEnforcer) SetDailyLimit(tx *store.Tx, asset common.Address, v *big.Int) error {
	return e.update(tx, asset, func(l *Limits) { l.DailyLimit = v })
}

func (e LimitEnforcer) SetMaxPerTx(tx *store.Tx, asset common.Address, v *big.Int) error {
	return e.update(tx, asset, func(l *Limits) { l.MaxPerTx = v })
}

func (e LimitEnforcer) SetMinPerTx(tx *store.Tx, asset common.Address, v *big.Int) error {
	return e.update(tx, asset, func(l *Limits) { l.MinPerTx = v })
}

func (e LimitEnforcer) update(tx *store.Tx, asset common.Address, fn func(*Limits)) error {
	l, err := e.Limits(tx, asset)
	if err != nil {
		return err
	}
	fn(&l)
	return e.SetLimits(tx, asset, l)
}
