package bridge

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/ContractLand/terra-bridge-contracts/internal/store"
)

func newTx(t *testing.T) *store.Tx {
	t.Helper()
	st, err := store.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st.Begin()
}

func TestVoteCountWord(t *testing.T) {
	require := require.New(t)

	top := new(uint256.Int).Lsh(uint256.NewInt(1), 255)
	require.True(VoteCount{Executed: true}.Word().Eq(top))
	require.True(VoteCount{Votes: 3}.Word().Eq(uint256.NewInt(3)))

	for _, v := range []VoteCount{{}, {Votes: 1}, {Votes: 7, Executed: true}, {Votes: 1 << 31, Executed: true}} {
		require.Equal(v, VoteCountFromWord(v.Word()))
	}
}

func TestReplayGuardSigned(t *testing.T) {
	require := require.New(t)
	tx := newTx(t)
	g := NewReplayGuard("test")
	h := common.HexToHash("0x01")

	require.NoError(g.MarkSigned(tx, alice, h))
	signed, err := g.IsSigned(tx, alice, h)
	require.NoError(err)
	require.True(signed)

	err = g.MarkSigned(tx, alice, h)
	require.True(errors.Is(err, ErrDuplicateSigner))

	// other signer, other message
	require.NoError(g.MarkSigned(tx, bob, h))
	require.NoError(g.MarkSigned(tx, alice, common.HexToHash("0x02")))

	// families do not share state
	signed, err = NewReplayGuard("other").IsSigned(tx, alice, h)
	require.NoError(err)
	require.False(signed)
}

func TestReplayGuardExecutedIsPermanent(t *testing.T) {
	require := require.New(t)
	tx := newTx(t)
	g := NewReplayGuard("test")
	ref := common.HexToHash("0xfeed")

	require.NoError(g.MarkExecuted(tx, ref))
	for i := 0; i < 3; i++ {
		err := g.MarkExecuted(tx, ref)
		require.True(errors.Is(err, ErrAlreadyExecuted))
	}
	done, err := g.IsExecuted(tx, ref)
	require.NoError(err)
	require.True(done)
}

func TestReplayGuardCountFreezesOnExecution(t *testing.T) {
	require := require.New(t)
	tx := newTx(t)
	g := NewReplayGuard("test")
	h := common.HexToHash("0x03")

	count, err := g.Count(tx, h)
	require.NoError(err)
	require.Equal(VoteCount{}, count)

	require.NoError(g.SetCount(tx, h, VoteCount{Votes: 1}))
	require.NoError(g.SetCount(tx, h, VoteCount{Votes: 2, Executed: true}))

	err = g.SetCount(tx, h, VoteCount{Votes: 3})
	require.True(errors.Is(err, ErrAlreadyExecuted))

	count, err = g.Count(tx, h)
	require.NoError(err)
	require.Equal(VoteCount{Votes: 2, Executed: true}, count)
}
