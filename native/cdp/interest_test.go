package cdp

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"cdpledger/core/types"
	"cdpledger/native/dex"
	"cdpledger/native/params"
)

func TestComputeCDPInterest(t *testing.T) {
	require.Zero(t, ComputeCDPInterest(0, 0, oneDayBlocks, 2, 1, oneDayBlocks))

	oneDay := ComputeCDPInterest(400*types.Coin, 0, oneDayBlocks, 2, 1, oneDayBlocks)
	require.NotZero(t, oneDay)
	// Partial days round up and empty ranges count as one day.
	require.Equal(t, oneDay, ComputeCDPInterest(400*types.Coin, 0, 1, 2, 1, oneDayBlocks))
	require.Equal(t, oneDay, ComputeCDPInterest(400*types.Coin, 7, 7, 2, 1, oneDayBlocks))
	require.InDelta(t, float64(2*oneDay), float64(ComputeCDPInterest(400*types.Coin, 0, oneDayBlocks+1, 2, 1, oneDayBlocks)), 1)

	// rate = 0.2 / log10(401) is about 7.68% a year.
	yearly := ComputeCDPInterest(400*types.Coin, 0, 365*oneDayBlocks, 2, 1, oneDayBlocks)
	require.InDelta(t, 30.73*float64(types.Coin), float64(yearly), 0.01*float64(types.Coin))
}

func TestComputeCDPInterestAdditive(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		owed := rapid.Uint64Range(types.Coin, 1_000_000*types.Coin).Draw(t, "owed")
		a := rapid.Uint64Range(1, 10).Draw(t, "a")
		b := rapid.Uint64Range(1, 10).Draw(t, "b")
		h0 := rapid.Uint64Range(0, 1_000_000).Draw(t, "h0")
		d1 := rapid.Uint64Range(1, 400).Draw(t, "d1")
		d2 := rapid.Uint64Range(1, 400).Draw(t, "d2")
		h1 := h0 + d1*oneDayBlocks
		h2 := h1 + d2*oneDayBlocks

		whole := ComputeCDPInterest(owed, h0, h2, a, b, oneDayBlocks)
		split := ComputeCDPInterest(owed, h0, h1, a, b, oneDayBlocks) + ComputeCDPInterest(owed, h1, h2, a, b, oneDayBlocks)
		diff := int64(whole) - int64(split)
		if diff < -1 || diff > 1 {
			t.Fatalf("interest over [%d, %d) is %d, split at %d sums to %d", h0, h2, whole, h1, split)
		}
	})
}

func TestCollateralRatioMonotonic(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		staked := rapid.Uint64Range(1, 1_000_000_000).Draw(t, "staked") * types.Coin
		owed := rapid.Uint64Range(1, 1_000_000_000).Draw(t, "owed") * types.Coin
		price := rapid.Uint64Range(types.PriceBoost/100, 100*types.PriceBoost).Draw(t, "price")
		extra := rapid.Uint64Range(1, 1_000_000_000).Draw(t, "extra") * types.Coin

		base := types.CalcCollateralRatio(staked, owed, price)
		moreStake := types.CalcCollateralRatio(staked+extra, owed, price)
		moreDebt := types.CalcCollateralRatio(staked, owed+extra, price)
		if moreStake < base || moreDebt > base {
			t.Fatalf("ratio %d not monotonic: +stake %d, +debt %d", base, moreStake, moreDebt)
		}
		if base > 0 && extra >= staked && moreStake <= base {
			t.Fatalf("doubling stake left ratio at %d (was %d)", moreStake, base)
		}
		if base > 0 && extra >= owed && moreDebt >= base {
			t.Fatalf("doubling debt left ratio at %d (was %d)", moreDebt, base)
		}
	})
}

func TestInterestOverRangeSplitsOnParamChange(t *testing.T) {
	sys := params.DefaultSysParams()
	p := params.DefaultCdpParams()
	p.InterestHistory = []params.InterestParamChange{{Height: 0, A: 2, B: 1}, {Height: 10 * oneDayBlocks, A: 4, B: 1}}

	got, err := InterestOverRange(sys, p, 400*types.Coin, 0, 20*oneDayBlocks)
	require.NoError(t, err)
	want := ComputeCDPInterest(400*types.Coin, 0, 10*oneDayBlocks, 2, 1, oneDayBlocks) +
		ComputeCDPInterest(400*types.Coin, 10*oneDayBlocks, 20*oneDayBlocks, 4, 1, oneDayBlocks)
	require.Equal(t, want, got)

	zero, err := InterestOverRange(sys, p, 0, 0, 20*oneDayBlocks)
	require.NoError(t, err)
	require.Zero(t, zero)

	_, err = InterestOverRange(sys, p, 400*types.Coin, 20, 10)
	require.Error(t, err)
}

func TestNeedSettleInterest(t *testing.T) {
	sys := params.DefaultSysParams()
	require.False(t, NeedSettleInterest(sys, 100, 100, 30))
	require.False(t, NeedSettleInterest(sys, 100, 100+30*oneDayBlocks-1, 30))
	require.True(t, NeedSettleInterest(sys, 100, 100+30*oneDayBlocks, 30))
	require.False(t, NeedSettleInterest(sys, 500, 100, 30))
}

func TestInterestForceSettleRollsInterestIntoDebt(t *testing.T) {
	f := newFixture(t, nil)
	owner := f.user(1, 10_000*types.Coin)
	id := f.open(owner, testHeight, 1, 1000*types.Coin, 400*types.Coin)

	later := testHeight + 30*oneDayBlocks
	f.setPrice(types.PriceBoost, later)
	ctx := f.ctx(later, 2)
	require.NoError(t, f.engine.InterestForceSettle(ctx, types.UserID{}, types.CDPInterestSettlePayload{CdpIDs: []common.Hash{id}}))

	interest := ComputeCDPInterest(400*types.Coin, testHeight, later, 2, 1, oneDayBlocks)
	cdp := f.cdp(id)
	require.Equal(t, 400*types.Coin+interest, cdp.TotalOwedScoins)
	require.Equal(t, 1000*types.Coin, cdp.TotalStakedBcoins)
	require.Equal(t, later, cdp.BlockHeight)
	require.Equal(t, 400*types.Coin, owner.Token(types.SymbolWUSD).Free)
	require.Equal(t, interest, f.reserve.Token(types.SymbolWUSD).Frozen)

	order, ok, err := dex.ActiveOrder(f.cache, dex.OrderID(ctx.TxID.Bytes(), id.Bytes()))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, dex.TagCdpInterest, order.Tag)
	require.Equal(t, interest, order.CoinAmount)
}

func TestInterestForceSettleRejects(t *testing.T) {
	f := newFixture(t, nil)
	owner := f.user(1, 10_000*types.Coin)
	id := f.open(owner, testHeight, 1, 1000*types.Coin, 400*types.Coin)
	later := testHeight + 30*oneDayBlocks
	f.setPrice(types.PriceBoost, later)

	err := f.engine.InterestForceSettle(f.ctx(later, 2), types.UserID{}, types.CDPInterestSettlePayload{})
	requireReason(t, err, "invalid-cdp-list-size")

	err = f.engine.InterestForceSettle(f.ctx(later, 3), types.RegIDUser(owner.RegID),
		types.CDPInterestSettlePayload{CdpIDs: []common.Hash{id}})
	requireReason(t, err, "invalid-txUid")

	err = f.engine.InterestForceSettle(f.ctx(later-1, 4), types.UserID{},
		types.CDPInterestSettlePayload{CdpIDs: []common.Hash{id}})
	requireReason(t, err, "not-reach-sttlement-cycle")

	err = f.engine.InterestForceSettle(f.ctx(later, 5), types.UserID{},
		types.CDPInterestSettlePayload{CdpIDs: []common.Hash{id, id}})
	requireReason(t, err, "duplicated-cdp")
}

func openAt(f *fixture, owner byte, height uint64) common.Hash {
	f.setPrice(types.PriceBoost, height)
	return f.open(f.user(owner, 10_000*types.Coin), height, owner, 1000*types.Coin, 400*types.Coin)
}

func TestGetSettledInterestCdps(t *testing.T) {
	f := newFixture(t, nil)
	first := openAt(f, 1, 100)
	second := openAt(f, 2, 200)
	openAt(f, 3, 300)

	query := 200 + 30*oneDayBlocks
	f.setPrice(types.PriceBoost, query)
	ids, err := f.engine.GetSettledInterestCdps(query)
	require.NoError(t, err)
	require.Equal(t, []common.Hash{first, second}, ids)
}

func TestGetSettledInterestCdpsHonorsCap(t *testing.T) {
	f := newFixture(t, func(g *params.Genesis) {
		g.System.CDPSettleInterestMaxCount = 2
	})
	first := openAt(f, 1, 100)
	openAt(f, 2, 200)

	query := 200 + 30*oneDayBlocks
	f.setPrice(types.PriceBoost, query)
	ids, err := f.engine.GetSettledInterestCdps(query)
	require.NoError(t, err)
	require.Equal(t, []common.Hash{first}, ids)
}

type bcoinMap map[string]*types.CdpBcoinDetail

func (m bcoinMap) CdpBcoin(symbol string) (*types.CdpBcoinDetail, bool, error) {
	detail, ok := m[symbol]
	return detail, ok, nil
}

func TestCoinPairDetailsOrdering(t *testing.T) {
	bcoins := bcoinMap{
		types.SymbolWICC: {Symbol: types.SymbolWICC, InitTxCord: types.TxCord{Height: 1}},
		"ETH":            {Symbol: "ETH", InitTxCord: types.TxCord{Height: 9}},
		"DOT":            {Symbol: "DOT", InitTxCord: types.TxCord{Height: 5}},
	}
	medians := map[types.PriceCoinPair]types.PriceDetail{
		{Base: types.SymbolWICC, Quote: types.SymbolUSD}: {Price: types.PriceBoost, LastFeedHeight: 100},
		{Base: "ETH", Quote: types.SymbolUSD}:            {Price: types.PriceBoost, LastFeedHeight: 10},
		{Base: "DOT", Quote: types.SymbolUSD}:            {Price: types.PriceBoost, LastFeedHeight: 100},
		{Base: "BTC", Quote: types.SymbolUSD}:            {Price: types.PriceBoost, LastFeedHeight: 100},
		{Base: types.SymbolWICC, Quote: "EUR"}:           {Price: types.PriceBoost, LastFeedHeight: 100},
		types.FcoinPriceCoinPair:                         {Price: types.PriceBoost, LastFeedHeight: 100},
	}

	sys := params.DefaultSysParams()
	details, err := CoinPairDetails(bcoins, sys, 100, medians)
	require.NoError(t, err)
	require.Len(t, details, 3)
	require.Equal(t, []string{types.SymbolWICC, "DOT", "ETH"},
		[]string{details[0].Pair.BcoinSymbol, details[1].Pair.BcoinSymbol, details[2].Pair.BcoinSymbol})
	for _, d := range details {
		require.True(t, d.PriceActive)
		require.Equal(t, types.SymbolWUSD, d.Pair.ScoinSymbol)
	}

	// From R3 on stale prices are flagged and sorted first.
	sys.ForkHeights = params.ForkHeights{R2: 1, R3: 2}
	details, err = CoinPairDetails(bcoins, sys, 100, medians)
	require.NoError(t, err)
	require.Equal(t, "ETH", details[0].Pair.BcoinSymbol)
	require.False(t, details[0].PriceActive)
	require.True(t, details[1].PriceActive)
}
