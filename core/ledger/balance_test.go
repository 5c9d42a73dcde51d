package ledger

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	coreerrors "cdpledger/core/errors"
	"cdpledger/core/types"
)

func newAccount(b byte) *types.Account {
	var id types.KeyID
	id[0] = b
	return types.NewAccount(id)
}

func TestStakeMovesFreeToStaked(t *testing.T) {
	acct := newAccount(1)
	acct.SetToken(types.SymbolWICC, types.AccountToken{Free: 1_000_000_000})
	var receipts types.Receipts

	if err := OperateBalance(acct, types.SymbolWICC, types.OpStake, 400_000_000, types.ReceiptNull, &receipts, nil); err != nil {
		t.Fatalf("stake: %v", err)
	}
	if got := GetBalance(acct, types.SymbolWICC, types.BalanceFree); got != 600_000_000 {
		t.Fatalf("free = %d, want 600000000", got)
	}
	if got := GetBalance(acct, types.SymbolWICC, types.BalanceStaked); got != 400_000_000 {
		t.Fatalf("staked = %d, want 400000000", got)
	}
	if len(receipts) != 1 {
		t.Fatalf("expected one receipt, got %d", len(receipts))
	}
}

func TestInsufficientBucketLeavesAccountUntouched(t *testing.T) {
	acct := newAccount(1)
	acct.SetToken(types.SymbolWICC, types.AccountToken{Free: 10, Pledged: 5})
	var receipts types.Receipts

	err := OperateBalance(acct, types.SymbolWICC, types.OpUnpledge, 6, types.ReceiptNull, &receipts, nil)
	require.Error(t, err)
	require.True(t, errors.Is(err, coreerrors.ErrInsufficient))
	require.Contains(t, err.Error(), "pledged")
	require.Contains(t, err.Error(), "(5 vs 6)")
	require.Equal(t, types.AccountToken{Free: 10, Pledged: 5}, acct.Token(types.SymbolWICC))
	require.Empty(t, receipts)
}

func TestGetBalanceUnknownSymbol(t *testing.T) {
	acct := newAccount(1)
	require.Zero(t, GetBalance(acct, "NOPE", types.BalanceFree))
	require.Zero(t, GetBalance(acct, "NOPE", types.BalanceNull))
	require.True(t, CheckBalance(acct, "NOPE", types.BalanceFree, 0))
	require.False(t, CheckBalance(acct, "NOPE", types.BalanceFree, 1))
}

func TestPeerTransfersAndReceipts(t *testing.T) {
	owner := newAccount(1)
	reserve := newAccount(2)
	owner.SetToken(types.SymbolWUSD, types.AccountToken{Free: 100})
	reserve.SetToken(types.SymbolWUSD, types.AccountToken{Free: 50})
	var receipts types.Receipts

	require.NoError(t, OperateBalance(owner, types.SymbolWUSD, types.OpSubFree, 30,
		types.ReceiptCdpRepayInterestToFund, &receipts, reserve))
	require.Equal(t, uint64(70), owner.Token(types.SymbolWUSD).Free)
	require.Equal(t, uint64(80), reserve.Token(types.SymbolWUSD).Free)

	require.NoError(t, OperateBalance(owner, types.SymbolWUSD, types.OpAddFree, 80,
		types.ReceiptTransferActualCoins, &receipts, reserve))
	require.Equal(t, uint64(150), owner.Token(types.SymbolWUSD).Free)
	require.Zero(t, reserve.Token(types.SymbolWUSD).Free)

	require.Len(t, receipts, 2)
	require.True(t, receipts[0].From.Equal(types.KeyIDUser(owner.KeyID)))
	require.True(t, receipts[0].To.Equal(types.KeyIDUser(reserve.KeyID)))
	require.True(t, receipts[1].From.Equal(types.KeyIDUser(reserve.KeyID)))
	require.True(t, receipts[1].To.Equal(types.KeyIDUser(owner.KeyID)))

	err := OperateBalance(owner, types.SymbolWUSD, types.OpAddFree, 1, types.ReceiptNull, &receipts, reserve)
	require.ErrorIs(t, err, coreerrors.ErrInsufficient)
	require.Equal(t, uint64(150), owner.Token(types.SymbolWUSD).Free)
}

func TestMintAndBurnReceipts(t *testing.T) {
	acct := newAccount(1)
	var receipts types.Receipts
	require.NoError(t, OperateBalance(acct, types.SymbolWGRT, types.OpAddFree, 9, types.ReceiptDelegateVoteInterest, &receipts, nil))
	require.NoError(t, OperateBalance(acct, types.SymbolWGRT, types.OpSubFree, 4, types.ReceiptTxFee, &receipts, nil))
	require.True(t, receipts[0].From.IsEmpty())
	require.True(t, receipts[0].To.Equal(types.KeyIDUser(acct.KeyID)))
	require.True(t, receipts[1].From.Equal(types.KeyIDUser(acct.KeyID)))
	require.True(t, receipts[1].To.IsEmpty())
}

func TestDexDealSelfPeer(t *testing.T) {
	acct := newAccount(1)
	acct.SetToken(types.SymbolWUSD, types.AccountToken{Free: 1, Frozen: 10})
	var receipts types.Receipts
	require.NoError(t, OperateBalance(acct, types.SymbolWUSD, types.OpDexDeal, 10, types.ReceiptNull, &receipts, acct))
	require.Equal(t, types.AccountToken{Free: 11}, acct.Token(types.SymbolWUSD))

	buyer := newAccount(2)
	require.Error(t, OperateBalance(acct, types.SymbolWUSD, types.OpDexDeal, 1, types.ReceiptNull, &receipts, buyer))
	require.Error(t, OperateBalance(acct, types.SymbolWUSD, types.OpDexDeal, 0, types.ReceiptNull, &receipts, nil))
}

func TestDistinctObjectsWithSameKeyID(t *testing.T) {
	a := newAccount(7)
	b := newAccount(7)
	a.SetToken(types.SymbolWICC, types.AccountToken{Free: 5})
	var receipts types.Receipts
	err := OperateBalance(a, types.SymbolWICC, types.OpSubFree, 1, types.ReceiptNull, &receipts, b)
	require.ErrorIs(t, err, coreerrors.ErrInvalid)
	require.Equal(t, uint64(5), a.Token(types.SymbolWICC).Free)
}

func TestAddOverflowRejected(t *testing.T) {
	acct := newAccount(1)
	acct.SetToken(types.SymbolWICC, types.AccountToken{Free: math.MaxUint64})
	var receipts types.Receipts
	err := OperateBalance(acct, types.SymbolWICC, types.OpAddFree, 1, types.ReceiptNull, &receipts, nil)
	require.ErrorIs(t, err, coreerrors.ErrPolicy)
	require.Equal(t, uint64(math.MaxUint64), acct.Token(types.SymbolWICC).Free)
}

var allOps = []types.BalanceOp{
	types.OpAddFree, types.OpSubFree, types.OpStake, types.OpUnstake, types.OpFreeze,
	types.OpUnfreeze, types.OpVote, types.OpUnvote, types.OpPledge, types.OpUnpledge, types.OpDexDeal,
}

func tokenTotal(accts ...*types.Account) uint64 {
	var total uint64
	for _, a := range accts {
		tok := a.Token(types.SymbolWICC)
		total += tok.Free + tok.Staked + tok.Frozen + tok.Voted + tok.Pledged
	}
	return total
}

func TestOperateBalanceProperties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		a := newAccount(1)
		b := newAccount(2)
		a.SetToken(types.SymbolWICC, types.AccountToken{Free: rapid.Uint64Range(0, 1_000_000).Draw(t, "seedA")})
		b.SetToken(types.SymbolWICC, types.AccountToken{Free: rapid.Uint64Range(0, 1_000_000).Draw(t, "seedB")})
		total := tokenTotal(a, b)

		steps := rapid.IntRange(1, 50).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			op := rapid.SampledFrom(allOps).Draw(t, "op")
			amount := rapid.Uint64Range(0, 600_000).Draw(t, "amount")
			withPeer := op == types.OpDexDeal || rapid.Bool().Draw(t, "peer")
			self, other := a, b
			if rapid.Bool().Draw(t, "swap") {
				self, other = b, a
			}
			var peer *types.Account
			if withPeer && (op == types.OpAddFree || op == types.OpSubFree || op == types.OpDexDeal) {
				peer = other
			}
			beforeSelf, beforeOther := self.Token(types.SymbolWICC), other.Token(types.SymbolWICC)
			var receipts types.Receipts
			err := OperateBalance(self, types.SymbolWICC, op, amount, types.ReceiptNull, &receipts, peer)
			if err != nil {
				if self.Token(types.SymbolWICC) != beforeSelf || other.Token(types.SymbolWICC) != beforeOther {
					t.Fatalf("failed %s mutated state", op)
				}
				if len(receipts) != 0 {
					t.Fatalf("failed %s emitted receipts", op)
				}
				continue
			}
			if len(receipts) != 1 {
				t.Fatalf("%s emitted %d receipts", op, len(receipts))
			}
			switch {
			case peer == nil && op == types.OpAddFree:
				total += amount
			case peer == nil && op == types.OpSubFree:
				total -= amount
			}
			if got := tokenTotal(a, b); got != total {
				t.Fatalf("after %s amount=%d: total %d, want %d", op, amount, got, total)
			}
		}
	})
}
