package vote

import (
	"testing"

	"github.com/stretchr/testify/require"

	"cdpledger/core/types"
	"cdpledger/native/params"
)

func TestComputeVoteBcoinInterestSingleRate(t *testing.T) {
	p := params.DefaultSysParams()
	acct := types.NewAccount(types.KeyID{1})
	got := ComputeVoteBcoinInterest(p, acct, 1000*types.Coin, 1_576_800)
	require.Equal(t, uint64(2_500_000_000), got)
	require.Equal(t, got, ComputeVoteBcoinInterest(p, acct, 1000*types.Coin, 1_576_800), "replay mismatch")
}

func TestComputeVoteBcoinInterestAcrossSubsidyDrop(t *testing.T) {
	p := params.DefaultSysParams()
	acct := types.NewAccount(types.KeyID{1})
	acct.LastVoteHeight = 3_153_600 - 100
	// 500 at 5% plus 400 at 4%
	require.Equal(t, uint64(900), ComputeVoteBcoinInterest(p, acct, 315_360_000, 3_153_600+100))
	require.Zero(t, ComputeVoteBcoinInterest(p, acct, 0, 3_153_600+100))
}

// Double precision rounds these products up to the next unit; the 64-bit
// mantissa keeps them just below it.
func TestComputeVoteBcoinInterestExtendedPrecision(t *testing.T) {
	const voted = 15_000_000_001_570_935
	acct := types.NewAccount(types.KeyID{1})

	p := params.DefaultSysParams()
	p.ForkHeights = params.ForkHeights{}
	require.Equal(t, uint64(237_827_007_254_739), ComputeVoteBcoinInterest(p, acct, voted, 1_000_015))

	p.ForkHeights = params.ForkHeights{R2: 1}
	require.Equal(t, uint64(71_348_102_176_421), ComputeVoteBcoinInterest(p, acct, voted, 1_000_015))
}

func TestExtendedMulDivTruncates(t *testing.T) {
	require.Equal(t, uint64(3), extendedMulDiv([]uint64{10}, 3))
	require.Equal(t, uint64(0), extendedMulDiv([]uint64{0, 7}, 9, 100))
	require.Equal(t, uint64(190_261_605_803_791),
		extendedMulDiv([]uint64{15_000_000_001_570_935, 1_000_015, 4}, 3_153_600, 100))
}

func TestComputeVoteFcoinInterestWindow(t *testing.T) {
	p := params.DefaultSysParams()
	acct := types.NewAccount(types.KeyID{1})
	acct.LastVoteEpoch = p.FcoinVoteMineEpochFrom - 100

	got := ComputeVoteFcoinInterest(p, acct, 2*types.Coin, p.FcoinVoteMineEpochFrom+types.SecondsPerYear/2)
	require.Equal(t, uint64(types.Coin), got)
	require.Zero(t, ComputeVoteFcoinInterest(p, acct, 2*types.Coin, p.FcoinVoteMineEpochFrom), "before the window")
	require.Zero(t, ComputeVoteFcoinInterest(p, acct, 2*types.Coin, acct.LastVoteEpoch), "no elapsed time")

	acct.LastVoteEpoch = 0
	p.Network = params.TestNet
	require.Equal(t, uint64(2*types.Coin), ComputeVoteFcoinInterest(p, acct, 2*types.Coin, types.SecondsPerYear))
}

func TestComputeBlockInflateInterest(t *testing.T) {
	p := params.DefaultSysParams()
	acct := types.NewAccount(types.KeyID{1})
	acct.ReceivedVotes = 10_512_000 * 100
	delegate := Delegate{Votes: 10_512_000 * 100}

	require.Zero(t, ComputeBlockInflateInterest(p, acct, 100, delegate, 11), "R1")
	require.Equal(t, uint64(44), ComputeBlockInflateInterest(p, acct, 4_000_000, Delegate{}, 11))
	acct.ReceivedVotes = 0
	require.Equal(t, uint64(33), ComputeBlockInflateInterest(p, acct, 8_200_000, delegate, 11))
}

func TestComputeBlockInflateInterestExtendedPrecision(t *testing.T) {
	p := params.DefaultSysParams()
	p.ForkHeights = params.ForkHeights{R2: 1}
	acct := types.NewAccount(types.KeyID{1})
	acct.ReceivedVotes = 191_127_272_727_272_727

	require.Equal(t, uint64(9_999_999_999), ComputeBlockInflateInterest(p, acct, 100, Delegate{}, 11))
}
