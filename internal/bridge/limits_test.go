package bridge

import (
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLimitSequence(t *testing.T) {
	require := require.New(t)
	tx := newTx(t)
	e := NewLimitEnforcer("bridge")
	now := time.Unix(1_700_000_000, 0)

	require.NoError(e.SetLimits(tx, homeToken, NewLimits(100, 50, 10)))

	spend := func(n int64) error {
		amount := big.NewInt(n)
		if err := e.WithinLimits(tx, homeToken, amount, Outbound, now); err != nil {
			return err
		}
		return e.RecordSpend(tx, homeToken, amount, Outbound, now)
	}

	require.True(errors.Is(spend(60), ErrAboveMaxPerTx))
	require.NoError(spend(50))
	require.NoError(spend(50))
	require.True(errors.Is(spend(1), ErrDailyLimitExceeded))

	spent, err := e.Spent(tx, homeToken, Outbound, DayIndex(now))
	require.NoError(err)
	require.Equal(int64(100), spent.Int64())
}

func TestLimitBelowMinimumAndDayRollover(t *testing.T) {
	require := require.New(t)
	tx := newTx(t)
	e := NewLimitEnforcer("bridge")
	now := time.Unix(1_700_000_000, 0)
	require.NoError(e.SetLimits(tx, homeToken, NewLimits(100, 50, 10)))

	err := e.WithinLimits(tx, homeToken, big.NewInt(9), Outbound, now)
	require.True(errors.Is(err, ErrBelowMinPerTx))
	require.True(errors.Is(err, ErrLimit))

	require.NoError(e.RecordSpend(tx, homeToken, big.NewInt(100), Outbound, now))
	require.True(errors.Is(e.WithinLimits(tx, homeToken, big.NewInt(10), Outbound, now), ErrDailyLimitExceeded))

	// inbound has its own counter
	require.NoError(e.WithinLimits(tx, homeToken, big.NewInt(10), Inbound, now))

	tomorrow := now.Add(24 * time.Hour)
	require.Equal(DayIndex(now)+1, DayIndex(tomorrow))
	require.NoError(e.WithinLimits(tx, homeToken, big.NewInt(50), Outbound, tomorrow))
}

func TestUnsetLimitsRejectEverything(t *testing.T) {
	tx := newTx(t)
	e := NewLimitEnforcer("bridge")
	err := e.WithinLimits(tx, foreignToken, big.NewInt(1), Outbound, time.Unix(0, 0))
	require.True(t, errors.Is(err, ErrAboveMaxPerTx))
}

func TestLimitSettersKeepOrdering(t *testing.T) {
	require := require.New(t)
	tx := newTx(t)
	e := NewLimitEnforcer("bridge")
	require.NoError(e.SetLimits(tx, homeToken, NewLimits(100, 50, 10)))

	require.True(errors.Is(e.SetMaxPerTx(tx, homeToken, big.NewInt(101)), ErrInvalidLimits))
	require.True(errors.Is(e.SetMaxPerTx(tx, homeToken, big.NewInt(9)), ErrInvalidLimits))
	require.True(errors.Is(e.SetMinPerTx(tx, homeToken, big.NewInt(51)), ErrInvalidLimits))
	require.True(errors.Is(e.SetDailyLimit(tx, homeToken, big.NewInt(49)), ErrInvalidLimits))
	require.True(errors.Is(e.SetMinPerTx(tx, homeToken, big.NewInt(-1)), ErrInvalidLimits))

	require.NoError(e.SetDailyLimit(tx, homeToken, big.NewInt(200)))
	require.NoError(e.SetMaxPerTx(tx, homeToken, big.NewInt(200)))
	require.NoError(e.SetMinPerTx(tx, homeToken, big.NewInt(200)))

	l, err := e.Limits(tx, homeToken)
	require.NoError(err)
	require.Equal(int64(200), l.DailyLimit.Int64())
	require.Equal(int64(200), l.MaxPerTx.Int64())
	require.Equal(int64(200), l.MinPerTx.Int64())

	require.True(errors.Is(NewLimits(10, 20, 5).Validate(), ErrConfiguration))
}
