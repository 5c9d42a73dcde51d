// Package ledger implements the multi-bucket balance primitive through which
// every component mutates account holdings.
package ledger

import (
	"github.com/holiman/uint256"

	coreerrors "cdpledger/core/errors"
	"cdpledger/core/types"
)

// GetBalance returns the bucket value of symbol. Unknown symbols and buckets
// read as zero.
func GetBalance(acct *types.Account, symbol string, bucket types.BalanceType) uint64 {
	value, _ := acct.Token(symbol).Get(bucket)
	return value
}

// CheckBalance reports whether the bucket holds at least amount.
func CheckBalance(acct *types.Account, symbol string, bucket types.BalanceType, amount uint64) bool {
	return GetBalance(acct, symbol, bucket) >= amount
}

func add(a, b uint64) (uint64, bool) {
	sum, overflow := new(uint256.Int).AddOverflow(uint256.NewInt(a), uint256.NewInt(b))
	if overflow || !sum.IsUint64() {
		return 0, false
	}
	return sum.Uint64(), true
}

func insufficient(acct *types.Account, symbol string, bucket types.BalanceType, requested, available uint64) error {
	return coreerrors.Insufficient(coreerrors.UpdateAccountFail, "balance-insufficient",
		"%s %s insufficient (%d vs %d) of %s", acct.KeyID, bucket, available, requested, symbol)
}

func overflowed(acct *types.Account, symbol string, bucket types.BalanceType) error {
	return coreerrors.Policy(coreerrors.UpdateAccountFail, "balance-overflow",
		"%s %s of %s would overflow", acct.KeyID, bucket, symbol)
}

// move shifts amount from one bucket to another on a single token record.
func move(acct *types.Account, symbol string, token *types.AccountToken, from, to types.BalanceType, amount uint64) error {
	src := bucketRef(token, from)
	dst := bucketRef(token, to)
	if *src < amount {
		return insufficient(acct, symbol, from, amount, *src)
	}
	sum, ok := add(*dst, amount)
	if !ok {
		return overflowed(acct, symbol, to)
	}
	*src -= amount
	*dst = sum
	return nil
}

func bucketRef(token *types.AccountToken, bucket types.BalanceType) *uint64 {
	switch bucket {
	case types.BalanceFree:
		return &token.Free
	case types.BalanceStaked:
		return &token.Staked
	case types.BalanceFrozen:
		return &token.Frozen
	case types.BalanceVoted:
		return &token.Voted
	case types.BalancePledged:
		return &token.Pledged
	default:
		panic("ledger: unknown bucket " + bucket.String())
	}
}

var intraMoves = map[types.BalanceOp][2]types.BalanceType{
	types.OpStake:    {types.BalanceFree, types.BalanceStaked},
	types.OpUnstake:  {types.BalanceStaked, types.BalanceFree},
	types.OpFreeze:   {types.BalanceFree, types.BalanceFrozen},
	types.OpUnfreeze: {types.BalanceFrozen, types.BalanceFree},
	types.OpVote:     {types.BalanceFree, types.BalanceVoted},
	types.OpUnvote:   {types.BalanceVoted, types.BalanceFree},
	types.OpPledge:   {types.BalanceFree, types.BalancePledged},
	types.OpUnpledge: {types.BalancePledged, types.BalanceFree},
}

// OperateBalance applies op to the symbol buckets of acct and appends exactly
// one receipt on success. With a peer, ADD_FREE moves free coins from the
// peer to acct and SUB_FREE moves them from acct to the peer; DEX_DEAL always
// settles frozen coins of acct into the free bucket of peer. Every check runs
// before the first mutation, so a failed call leaves both accounts untouched.
func OperateBalance(acct *types.Account, symbol string, op types.BalanceOp, amount uint64,
	code types.ReceiptCode, receipts *types.Receipts, peer *types.Account) error {
	if acct == nil {
		return coreerrors.Invalid(coreerrors.ReadAccountFail, "account-not-exist", "nil account")
	}
	if peer != nil && peer != acct && peer.KeyID == acct.KeyID {
		return coreerrors.Invalid(coreerrors.UpdateAccountFail, "duplicated-account",
			"distinct account objects share keyid %s", acct.KeyID)
	}

	self := types.KeyIDUser(acct.KeyID)
	receipt := types.Receipt{Code: code, Op: op, Symbol: symbol, Amount: amount}
	token := acct.Token(symbol)

	switch op {
	case types.OpAddFree:
		if peer == nil {
			sum, ok := add(token.Free, amount)
			if !ok {
				return overflowed(acct, symbol, types.BalanceFree)
			}
			token.Free = sum
			acct.SetToken(symbol, token)
			receipt.To = self
			break
		}
		if err := transferFree(peer, acct, symbol, amount); err != nil {
			return err
		}
		receipt.From, receipt.To = types.KeyIDUser(peer.KeyID), self

	case types.OpSubFree:
		if peer == nil {
			if token.Free < amount {
				return insufficient(acct, symbol, types.BalanceFree, amount, token.Free)
			}
			token.Free -= amount
			acct.SetToken(symbol, token)
			receipt.From = self
			break
		}
		if err := transferFree(acct, peer, symbol, amount); err != nil {
			return err
		}
		receipt.From, receipt.To = self, types.KeyIDUser(peer.KeyID)

	case types.OpDexDeal:
		if peer == nil {
			return coreerrors.Invalid(coreerrors.UpdateAccountFail, "dex-deal-without-peer",
				"%s: dex deal of %s requires a peer account", acct.KeyID, symbol)
		}
		if token.Frozen < amount {
			return insufficient(acct, symbol, types.BalanceFrozen, amount, token.Frozen)
		}
		token.Frozen -= amount
		acct.SetToken(symbol, token)
		peerToken := peer.Token(symbol)
		sum, ok := add(peerToken.Free, amount)
		if !ok {
			token.Frozen += amount
			acct.SetToken(symbol, token)
			return overflowed(peer, symbol, types.BalanceFree)
		}
		peerToken.Free = sum
		peer.SetToken(symbol, peerToken)
		receipt.From, receipt.To = self, types.KeyIDUser(peer.KeyID)

	default:
		buckets, ok := intraMoves[op]
		if !ok {
			return coreerrors.Invalid(coreerrors.UpdateAccountFail, "invalid-balance-op",
				"unsupported balance op %s", op)
		}
		if err := move(acct, symbol, &token, buckets[0], buckets[1], amount); err != nil {
			return err
		}
		acct.SetToken(symbol, token)
		receipt.From, receipt.To = self, self
	}

	*receipts = append(*receipts, receipt)
	return nil
}

// transferFree moves free coins between two accounts. When both sides are
// the same object the move is a no-op after the sufficiency check.
func transferFree(from, to *types.Account, symbol string, amount uint64) error {
	fromToken := from.Token(symbol)
	if fromToken.Free < amount {
		return insufficient(from, symbol, types.BalanceFree, amount, fromToken.Free)
	}
	if from == to {
		return nil
	}
	toToken := to.Token(symbol)
	sum, ok := add(toToken.Free, amount)
	if !ok {
		return overflowed(to, symbol, types.BalanceFree)
	}
	fromToken.Free -= amount
	toToken.Free = sum
	from.SetToken(symbol, fromToken)
	to.SetToken(symbol, toToken)
	return nil
}
