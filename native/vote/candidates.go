package vote

import (
	"errors"
	"fmt"
	"sort"

	"cdpledger/core/ledger"
	"cdpledger/core/types"
	"cdpledger/native/params"
)

var (
	errVoteHeight       = errors.New("vote: current height below last vote height")
	errVoteRange        = errors.New("vote: votes exceed maximum money")
	errCandidateLimit   = errors.New("vote: candidate limit reached, revoke old votes first")
	errRevokeMissing    = errors.New("vote: revocation votes do not exist")
	errRevokeExceeds    = errors.New("vote: revocation exceeds candidate votes")
	errInvalidVoteType  = errors.New("vote: invalid vote type")
	errReceivedVoteSpan = errors.New("vote: received votes out of range")
)

// sameCandidate reports whether two candidate identities name the same
// account. Identities of the same representation compare literally; mixed
// representations are resolved to their key ids.
func sameCandidate(a, b types.UserID, resolver types.RegIDResolver) (bool, error) {
	if a.SameKind(b) {
		return a.Equal(b), nil
	}
	left, ok, err := a.ResolvesToKeyID(resolver)
	if err != nil || !ok {
		return false, err
	}
	right, ok, err := b.ResolvesToKeyID(resolver)
	if err != nil || !ok {
		return false, err
	}
	return left == right, nil
}

// ProcessCandidateVotes merges the vote deltas of one transaction into
// votes, locks or releases the changed total through VOTE/UNVOTE and credits
// the interest accrued since the previous vote. The account's vote height
// and epoch are advanced only after the interest is computed.
func ProcessCandidateVotes(p params.SysParams, acct *types.Account, incoming []types.CandidateVote,
	votes []types.CandidateReceivedVote, currHeight, currBlockTime uint64,
	resolver types.RegIDResolver, receipts *types.Receipts) ([]types.CandidateReceivedVote, error) {
	if currHeight < acct.LastVoteHeight {
		return nil, fmt.Errorf("%w: %d < %d", errVoteHeight, currHeight, acct.LastVoteHeight)
	}
	version := p.FeatureForkVersion(currHeight)
	lastTotalVotes := ledger.GetBalance(acct, types.SymbolWICC, types.BalanceVoted)

	updated := append([]types.CandidateReceivedVote(nil), votes...)
	for _, vote := range incoming {
		idx := -1
		for i := range updated {
			same, err := sameCandidate(vote.Candidate, updated[i].Candidate, resolver)
			if err != nil {
				return nil, err
			}
			if same {
				idx = i
				break
			}
		}
		switch vote.Type {
		case types.VoteAddBcoin:
			if !types.CheckBaseCoinRange(vote.Votes) {
				return nil, errVoteRange
			}
			if idx >= 0 {
				updated[idx].Votes += vote.Votes
				if !types.CheckBaseCoinRange(updated[idx].Votes) {
					return nil, errVoteRange
				}
				continue
			}
			if len(updated) >= p.MaxVoteCandidateNum {
				return nil, errCandidateLimit
			}
			updated = append(updated, types.CandidateReceivedVote{Candidate: vote.Candidate, Votes: vote.Votes})
		case types.VoteMinusBcoin:
			if idx < 0 {
				return nil, errRevokeMissing
			}
			if !types.CheckBaseCoinRange(vote.Votes) {
				return nil, errVoteRange
			}
			if updated[idx].Votes < vote.Votes {
				return nil, errRevokeExceeds
			}
			updated[idx].Votes -= vote.Votes
			if updated[idx].Votes == 0 {
				updated = append(updated[:idx], updated[idx+1:]...)
			}
		default:
			return nil, fmt.Errorf("%w: %d", errInvalidVoteType, vote.Type)
		}
	}

	sort.SliceStable(updated, func(i, j int) bool { return updated[i].Votes > updated[j].Votes })

	var newTotalVotes uint64
	if len(updated) > 0 {
		if version >= params.MajorVerR2 {
			for _, v := range updated {
				newTotalVotes += v.Votes
			}
		} else {
			newTotalVotes = updated[0].Votes
		}
	}

	switch {
	case newTotalVotes > lastTotalVotes:
		if err := ledger.OperateBalance(acct, types.SymbolWICC, types.OpVote, newTotalVotes-lastTotalVotes,
			types.ReceiptDelegateAddVote, receipts, nil); err != nil {
			return nil, fmt.Errorf("vote: lock added votes: %w", err)
		}
	case newTotalVotes < lastTotalVotes:
		if err := ledger.OperateBalance(acct, types.SymbolWICC, types.OpUnvote, lastTotalVotes-newTotalVotes,
			types.ReceiptDelegateSubVote, receipts, nil); err != nil {
			return nil, fmt.Errorf("vote: release votes: %w", err)
		}
	}

	if version >= params.MajorVerR2 {
		if interest := ComputeVoteFcoinInterest(p, acct, lastTotalVotes, currBlockTime); interest > 0 {
			if err := ledger.OperateBalance(acct, types.SymbolWGRT, types.OpAddFree, interest,
				types.ReceiptDelegateVoteInterest, receipts, nil); err != nil {
				return nil, fmt.Errorf("vote: credit fcoin interest: %w", err)
			}
		}
	} else {
		interest := ComputeVoteBcoinInterest(p, acct, lastTotalVotes, currHeight)
		if !types.CheckBaseCoinRange(interest) {
			return nil, errVoteRange
		}
		if err := ledger.OperateBalance(acct, types.SymbolWICC, types.OpAddFree, interest,
			types.ReceiptDelegateVoteInterest, receipts, nil); err != nil {
			return nil, fmt.Errorf("vote: credit bcoin interest: %w", err)
		}
	}

	acct.LastVoteHeight = currHeight
	acct.LastVoteEpoch = currBlockTime
	return updated, nil
}

// StakeVoteBcoins adjusts the votes received by a candidate account.
func StakeVoteBcoins(candidate *types.Account, voteType types.VoteType, votes uint64) error {
	switch voteType {
	case types.VoteAddBcoin:
		total := candidate.ReceivedVotes + votes
		if total < candidate.ReceivedVotes || !types.CheckBaseCoinRange(total) {
			return errReceivedVoteSpan
		}
		candidate.ReceivedVotes = total
	case types.VoteMinusBcoin:
		if candidate.ReceivedVotes < votes {
			return errReceivedVoteSpan
		}
		candidate.ReceivedVotes -= votes
	default:
		return fmt.Errorf("%w: %d", errInvalidVoteType, voteType)
	}
	return nil
}
