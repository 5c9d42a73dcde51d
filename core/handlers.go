package core

import (
	"sort"

	coreerrors "cdpledger/core/errors"
	"cdpledger/core/ledger"
	"cdpledger/core/state"
	"cdpledger/core/types"
	"cdpledger/native/cdp"
	"cdpledger/native/oracle"
	"cdpledger/native/params"
	"cdpledger/native/vote"
)

func sysParams(cache *state.Cache) (params.SysParams, error) {
	sys, err := params.NewStore(cache).SysParams()
	if err != nil {
		return params.SysParams{}, coreerrors.MissingData(coreerrors.ReadSysParamFail, "read-sysparam-error", "%v", err)
	}
	return sys, nil
}

// applyDelegateVote merges the vote deltas into the sender's vote list and
// moves the received votes of every named candidate.
func (l *Ledger) applyDelegateVote(cache *state.Cache, cctx cdp.TxContext, sender *types.Account,
	payload types.DelegateVotePayload) error {
	if len(payload.Votes) == 0 {
		return coreerrors.Invalid(coreerrors.RejectInvalid, "empty-delegates-list", "no votes")
	}
	sys, err := sysParams(cache)
	if err != nil {
		return err
	}
	if len(payload.Votes) > sys.MaxVoteCandidateNum {
		return coreerrors.Invalid(coreerrors.RejectInvalid, "delegates-list-too-long",
			"%d votes, at most %d", len(payload.Votes), sys.MaxVoteCandidateNum)
	}

	candidates := make([]*types.Account, len(payload.Votes))
	for i, v := range payload.Votes {
		keyID, ok, err := v.Candidate.ResolvesToKeyID(cache)
		if err != nil {
			return err
		}
		if !ok {
			return coreerrors.MissingData(coreerrors.ReadAccountFail, "candidate-account-not-exist", "%s", v.Candidate)
		}
		candidate, existed, err := cache.Account(keyID)
		if err != nil {
			return err
		}
		if !existed || !candidate.IsRegistered() {
			return coreerrors.Invalid(coreerrors.RejectInvalid, "account-unregistered", "candidate %s", v.Candidate)
		}
		candidates[i] = candidate
	}

	votes, err := vote.CandidateVotes(cache, sender.KeyID)
	if err != nil {
		return err
	}
	updated, err := vote.ProcessCandidateVotes(sys, sender, payload.Votes, votes, cctx.Height, cctx.BlockTime,
		cache, cctx.Receipts)
	if err != nil {
		return voteReject("operate-candidate-votes-failed", err)
	}
	if err := vote.SetCandidateVotes(cache, sender.KeyID, updated); err != nil {
		return err
	}

	for i, v := range payload.Votes {
		if err := vote.StakeVoteBcoins(candidates[i], v.Type, v.Votes); err != nil {
			return voteReject("operate-delegate-failed", err)
		}
	}
	return l.refreshDelegateVotes(cache, candidates)
}

func voteReject(reason string, err error) error {
	if isReject(err) {
		return err
	}
	return coreerrors.Invalid(coreerrors.UpdateAccountFail, reason, "%v", err)
}

// refreshDelegateVotes copies the received votes of the given candidates
// into the active delegate list.
func (l *Ledger) refreshDelegateVotes(cache *state.Cache, candidates []*types.Account) error {
	delegates, err := vote.ActiveDelegates(cache)
	if err != nil {
		return err
	}
	changed := false
	for i := range delegates {
		for _, c := range candidates {
			if c.RegID == delegates[i].RegID && c.ReceivedVotes != delegates[i].Votes {
				delegates[i].Votes = c.ReceivedVotes
				changed = true
			}
		}
	}
	if !changed {
		return nil
	}
	return vote.SetActiveDelegates(cache, delegates)
}

// applyPriceFeed records the sender's price points. Only active delegates
// feed prices.
func (l *Ledger) applyPriceFeed(cache *state.Cache, cctx cdp.TxContext, sender *types.Account,
	payload types.PriceFeedPayload) error {
	if !sender.IsRegistered() {
		return coreerrors.Invalid(coreerrors.RejectInvalid, "tx-account-not-registered", "%s", sender.KeyID)
	}
	if _, ok, err := vote.DelegateByRegID(cache, sender.RegID); err != nil {
		return err
	} else if !ok {
		return coreerrors.Policy(coreerrors.RejectInvalid, "account-not-price-feeder", "%s is not a delegate", sender.RegID)
	}
	if err := oracle.AddPricePoints(cache, cctx.Height, sender.RegID, payload.Points); err != nil {
		return coreerrors.Invalid(coreerrors.RejectInvalid, "bad-price-points", "%v", err)
	}
	return nil
}

// applyPriceMedian checks the block producer's medians against the ones
// computed from the fed points, persists them and runs forced liquidation
// at the new prices.
func (l *Ledger) applyPriceMedian(cache *state.Cache, cctx cdp.TxContext, payload types.PriceMedianPayload) error {
	sys, err := sysParams(cache)
	if err != nil {
		return err
	}
	calc, err := oracle.CalcMedianPriceDetails(cache, cctx.Height, sys.PriceMedianWindowBlocks)
	if err != nil {
		return coreerrors.MissingData(coreerrors.ReadPricePointFail, "calc-median-prices-failed", "%v", err)
	}
	want := oracle.SortedNonZero(calc)
	got := make([]types.MedianPrice, 0, len(payload.MedianPrices))
	for _, m := range payload.MedianPrices {
		if m.Price > 0 {
			got = append(got, m)
		}
	}
	sort.Slice(got, func(i, j int) bool { return got[i].Pair.Less(got[j].Pair) })
	if !sameMedians(got, want) {
		return coreerrors.Invalid(coreerrors.RejectInvalid, "bad-median-price-points",
			"block medians %v, computed %v", got, want)
	}

	if err := oracle.SetMedianPrices(cache, calc); err != nil {
		return coreerrors.Policy(coreerrors.UpdateAccountFail, "save-median-prices-failed", "%v", err)
	}
	if err := oracle.PrunePricePoints(cache, cctx.Height, sys.PriceMedianWindowBlocks); err != nil {
		return err
	}
	return l.newLiquidationEngine(cache).ForceLiquidateCdps(cctx, calc)
}

func sameMedians(a, b []types.MedianPrice) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// applyBlockReward credits the collected fees and the inflation interest
// of the block to its producer.
func (l *Ledger) applyBlockReward(cache *state.Cache, header *types.BlockHeader, cctx cdp.TxContext,
	sender *types.Account, payload types.BlockRewardPayload) error {
	if cctx.Index != 0 {
		return coreerrors.Invalid(coreerrors.RejectInvalid, "bad-reward-tx-index", "reward at index %d", cctx.Index)
	}
	if !sender.IsSelfUID(payload.Miner) || (!header.Miner.IsEmpty() && !sender.IsSelfUID(header.Miner)) {
		return coreerrors.Invalid(coreerrors.RejectInvalid, "bad-miner", "sender %s is not the block miner", sender.KeyID)
	}
	if !types.CheckBaseCoinRange(payload.RewardFees) {
		return coreerrors.Invalid(coreerrors.RejectInvalid, "reward-fees-out-of-range", "%d", payload.RewardFees)
	}
	sys, err := sysParams(cache)
	if err != nil {
		return err
	}
	// The count is a consensus parameter; a payload may only echo it.
	if payload.TotalDelegates != 0 && payload.TotalDelegates != sys.TotalDelegateNum {
		return coreerrors.Invalid(coreerrors.RejectInvalid, "bad-total-delegates",
			"claimed %d delegates, chain has %d", payload.TotalDelegates, sys.TotalDelegateNum)
	}
	if err := ledger.OperateBalance(sender, types.SymbolWICC, types.OpAddFree, payload.RewardFees,
		types.ReceiptBlockReward, cctx.Receipts, nil); err != nil {
		return coreerrors.Insufficient(coreerrors.UpdateAccountFail, "operate-account-failed", "%v", err)
	}

	delegate, _, err := vote.DelegateByRegID(cache, sender.RegID)
	if err != nil {
		return err
	}
	inflated := vote.ComputeBlockInflateInterest(sys, sender, cctx.Height, delegate, sys.TotalDelegateNum)
	if inflated == 0 {
		return nil
	}
	if err := ledger.OperateBalance(sender, types.SymbolWICC, types.OpAddFree, inflated,
		types.ReceiptBlockInflateInterest, cctx.Receipts, nil); err != nil {
		return coreerrors.Insufficient(coreerrors.UpdateAccountFail, "operate-account-failed", "%v", err)
	}
	l.logger.Debug("block reward", "height", cctx.Height, "miner", sender.RegID.String(),
		"fees", payload.RewardFees, "inflated", inflated)
	return nil
}
