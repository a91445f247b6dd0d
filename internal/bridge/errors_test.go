package bridge

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestErrorCategories(t *testing.T) {
	require := require.New(t)

	wrapped := fmt.Errorf("execute: %w", ErrDailyLimitExceeded)
	require.True(errors.Is(wrapped, ErrDailyLimitExceeded))
	require.True(errors.Is(wrapped, ErrLimit))
	require.False(errors.Is(wrapped, ErrQuorum))
	require.False(errors.Is(wrapped, ErrBelowMinPerTx))
	require.Equal(KindLimit, KindOf(wrapped))

	require.True(errors.Is(ErrNotOwner, ErrAuthorization))
	require.True(errors.Is(ErrDuplicateSigner, ErrDuplicate))
	require.True(errors.Is(ErrAlreadyExecuted, ErrDuplicate))
	require.True(errors.Is(ErrInvalidDecimals, ErrConfiguration))
	require.True(errors.Is(ErrInsufficientSignatures, ErrQuorum))
}

func TestKindOfForeignError(t *testing.T) {
	require := require.New(t)
	require.Equal(KindUnknown, KindOf(errors.New("disk full")))
	require.Equal("unknown", KindOf(nil).String())
	require.Equal("invalid_input", KindInvalidInput.String())
}
