// Package vote computes delegate vote interest and block inflation and
// merges candidate vote deltas into an account's vote list.
package vote

import (
	"fmt"
	"math/big"

	"cdpledger/core/types"
	"cdpledger/native/params"
)

// Delegate is one entry of the active delegate list.
type Delegate struct {
	RegID types.RegID
	Votes uint64
}

// ComputeVoteBcoinInterest returns the base coin interest owed to acct for
// holding lastVoted votes over [acct.LastVoteHeight, currHeight). The range is
// split at every subsidy rate drop so each part accrues at its own rate.
func ComputeVoteBcoinInterest(p params.SysParams, acct *types.Account, lastVoted, currHeight uint64) uint64 {
	if lastVoted == 0 || currHeight < acct.LastVoteHeight {
		return 0
	}
	begin := acct.LastVoteHeight
	subsidy := p.SubsidyRate(begin)
	endSubsidy := p.SubsidyRate(currHeight)
	yearHeight := p.YearBlocks(currHeight)

	var interest uint64
	for subsidy != endSubsidy {
		jump, err := p.JumpHeightBySubsidy(subsidy - 1)
		if err != nil {
			panic(fmt.Sprintf("vote: subsidy schedule: %v", err))
		}
		interest += bcoinInterest(lastVoted, subsidy, begin, jump, yearHeight)
		begin = jump
		subsidy--
	}
	return interest + bcoinInterest(lastVoted, subsidy, begin, currHeight, yearHeight)
}

func bcoinInterest(voted uint64, subsidy uint8, begin, end, yearHeight uint64) uint64 {
	hold := end - begin
	return extendedMulDiv([]uint64{voted, hold, uint64(subsidy)}, yearHeight, 100)
}

// extendedPrec is the mantissa width of the x87 extended format the vote
// formulas are defined in.
const extendedPrec = 64

// extendedMulDiv evaluates factors[0] * factors[1] * ... / divisors[0] / ...
// left to right, rounding every step to extendedPrec bits, and truncates the
// result toward zero.
func extendedMulDiv(factors []uint64, divisors ...uint64) uint64 {
	x := new(big.Float).SetPrec(extendedPrec).SetUint64(factors[0])
	operand := new(big.Float).SetPrec(extendedPrec)
	for _, f := range factors[1:] {
		x.Mul(x, operand.SetUint64(f))
	}
	for _, d := range divisors {
		x.Quo(x, operand.SetUint64(d))
	}
	out, _ := x.Uint64()
	return out
}

// ComputeVoteFcoinInterest returns the fund coin interest owed to acct for
// holding lastVoted votes from acct.LastVoteEpoch to currBlockTime. On the
// main network only the part inside the vote-mining window accrues.
func ComputeVoteFcoinInterest(p params.SysParams, acct *types.Account, lastVoted, currBlockTime uint64) uint64 {
	if lastVoted == 0 {
		return 0
	}
	last, curr := acct.LastVoteEpoch, currBlockTime
	if last >= curr {
		return 0
	}
	if p.Network == params.MainNet {
		if curr <= p.FcoinVoteMineEpochFrom || last >= p.FcoinVoteMineEpochTo {
			return 0
		}
		if last < p.FcoinVoteMineEpochFrom {
			last = p.FcoinVoteMineEpochFrom
		}
		if curr > p.FcoinVoteMineEpochTo {
			curr = p.FcoinVoteMineEpochTo
		}
	}
	duration := curr - last
	return uint64(float64(lastVoted) * (float64(duration) / float64(types.SecondsPerYear)))
}

// ComputeBlockInflateInterest returns the inflation credited to the miner of
// the block at currHeight. From R3 on the vote count comes from the active
// delegate record instead of the account's received votes.
func ComputeBlockInflateInterest(p params.SysParams, acct *types.Account, currHeight uint64, delegate Delegate, totalDelegateNum uint32) uint64 {
	version := p.FeatureForkVersion(currHeight)
	if version == params.MajorVerR1 {
		return 0
	}
	activeVotes := acct.ReceivedVotes
	if version >= params.MajorVerR3 {
		activeVotes = delegate.Votes
	}
	subsidy := p.SubsidyRate(currHeight)
	const holdHeight = 1
	yearHeight := p.YearBlocks(currHeight)
	return extendedMulDiv([]uint64{activeVotes, uint64(totalDelegateNum), holdHeight, uint64(subsidy)}, yearHeight, 100)
}
