package bridge

import (
	"errors"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestToCanonical(t *testing.T) {
	require := require.New(t)

	got, err := ToCanonical(big.NewInt(1_500_000), 6)
	require.NoError(err)
	require.Equal(0, got.Cmp(new(big.Int).Mul(big.NewInt(15), big.NewInt(1e17))))

	same, err := ToCanonical(eth(3), 18)
	require.NoError(err)
	require.Equal(0, same.Cmp(eth(3)))

	_, err = ToCanonical(big.NewInt(1), 19)
	require.True(errors.Is(err, ErrInvalidDecimals))
	require.True(errors.Is(err, ErrConfiguration))

	_, err = FromCanonical(big.NewInt(1), 24)
	require.True(errors.Is(err, ErrInvalidDecimals))
}

func TestDecimalRoundTrip(t *testing.T) {
	require := require.New(t)

	x := big.NewInt(123_456_789)
	for _, d := range []uint8{0, 6, 8, 18} {
		up, err := ToCanonical(x, d)
		require.NoError(err)
		back, err := FromCanonical(up, d)
		require.NoError(err)
		require.Equal(0, back.Cmp(x), "decimals %d", d)
	}
}

func TestFromCanonicalTruncates(t *testing.T) {
	require := require.New(t)

	// 1.999999999999999999 with 6 decimals keeps 1.999999.
	x, ok := new(big.Int).SetString("1999999999999999999", 10)
	require.True(ok)
	out, err := FromCanonical(x, 6)
	require.NoError(err)
	require.Equal(int64(1_999_999), out.Int64())

	back, err := ToCanonical(out, 6)
	require.NoError(err)
	loss := new(big.Int).Sub(x, back)
	require.Equal(1, loss.Sign())
	require.Equal(-1, loss.Cmp(big.NewInt(1e12)))
}
