package bridge

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
)

func TestSignAndRecover(t *testing.T) {
	require := require.New(t)

	keys, addrs := newKeys(t, 1)
	raw := encode(t, sampleMessage())
	sig, err := SignMessage(keys[0], raw)
	require.NoError(err)
	require.Len(sig, SignatureLength)
	require.Contains([]byte{27, 28}, sig[64])

	r, err := NewRecoverer(16)
	require.NoError(err)
	got, err := r.Recover(sig, raw)
	require.NoError(err)
	require.Equal(addrs[0], got)

	// served from cache the second time
	got, err = r.Recover(sig, raw)
	require.NoError(err)
	require.Equal(addrs[0], got)
}

func TestRecoverAcceptsRawRecoveryID(t *testing.T) {
	require := require.New(t)

	keys, addrs := newKeys(t, 1)
	raw := encode(t, sampleMessage())
	sig, err := SignMessage(keys[0], raw)
	require.NoError(err)
	sig[64] -= 27

	r, err := NewRecoverer(0)
	require.NoError(err)
	got, err := r.Recover(sig, raw)
	require.NoError(err)
	require.Equal(addrs[0], got)
}

func TestRecoverRejectsHighS(t *testing.T) {
	require := require.New(t)

	keys, _ := newKeys(t, 1)
	raw := encode(t, sampleMessage())
	sig, err := SignMessage(keys[0], raw)
	require.NoError(err)

	v, r, s, err := SplitSignature(sig)
	require.NoError(err)
	highS := new(big.Int).Sub(crypto.S256().Params().N, s.Big())
	flippedV := uint8(27)
	if v == 27 {
		flippedV = 28
	}
	flipped := JoinSignature(flippedV, r, common.BigToHash(highS))

	rec, err := NewRecoverer(0)
	require.NoError(err)
	_, err = rec.Recover(flipped, raw)
	require.True(errors.Is(err, ErrInvalidSignature))

	_, err = rec.Recover(sig[:64], raw)
	require.True(errors.Is(err, ErrInvalidSignature))
}
