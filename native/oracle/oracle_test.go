package oracle

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"cdpledger/core/state"
	"cdpledger/core/types"
	"cdpledger/storage"
	"cdpledger/storage/trie"
)

var wiccUSD = types.PriceCoinPair{Base: types.SymbolWICC, Quote: types.SymbolUSD}

func newCache(t *testing.T) *state.Cache {
	t.Helper()
	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	tr, err := trie.NewTrie(db, nil)
	require.NoError(t, err)
	return state.NewManager(tr, db).NewCache()
}

func TestMedian(t *testing.T) {
	cases := []struct {
		in   []uint64
		want uint64
	}{
		{[]uint64{5}, 5},
		{[]uint64{9, 1, 5}, 5},
		{[]uint64{1, 2}, 1},
		{[]uint64{3, 5}, 4},
		{[]uint64{^uint64(0), ^uint64(0)}, ^uint64(0)},
	}
	for _, tc := range cases {
		if got := median(tc.in); got != tc.want {
			t.Fatalf("median(%v) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestCalcMedianPriceDetailsWindow(t *testing.T) {
	cache := newCache(t)
	fcoin := types.FcoinPriceCoinPair

	require.NoError(t, AddPricePoints(cache, 10, types.RegID{Height: 1, Index: 1}, []types.PricePoint{{Pair: wiccUSD, Price: 100}}))
	require.NoError(t, AddPricePoints(cache, 11, types.RegID{Height: 1, Index: 2}, []types.PricePoint{{Pair: wiccUSD, Price: 300}}))
	require.NoError(t, AddPricePoints(cache, 12, types.RegID{Height: 1, Index: 1}, []types.PricePoint{
		{Pair: wiccUSD, Price: 200}, {Pair: fcoin, Price: 50},
	}))

	err := AddPricePoints(cache, 12, types.RegID{Height: 1, Index: 1}, []types.PricePoint{{Pair: wiccUSD, Price: 1}})
	if !errors.Is(err, errDuplicateFeed) {
		t.Fatalf("expected duplicate feed error, got %v", err)
	}

	medians, err := CalcMedianPriceDetails(cache, 12, 3)
	require.NoError(t, err)
	require.Equal(t, types.PriceDetail{Price: 200, LastFeedHeight: 12}, medians[wiccUSD])
	require.Equal(t, types.PriceDetail{Price: 50, LastFeedHeight: 12}, medians[fcoin])
	require.NoError(t, SetMedianPrices(cache, medians))

	// A one-block window at 14 holds no points, so the stored medians carry over.
	medians, err = CalcMedianPriceDetails(cache, 14, 1)
	require.NoError(t, err)
	require.Equal(t, types.PriceDetail{Price: 200, LastFeedHeight: 12}, medians[wiccUSD])

	sorted := SortedNonZero(medians)
	require.Len(t, sorted, 2)
	require.Equal(t, types.SymbolWGRT, sorted[1].Pair.Base)
}

func TestAddPricePointsRejectsBadFeeds(t *testing.T) {
	cache := newCache(t)
	feeder := types.RegID{Height: 1, Index: 1}
	require.ErrorIs(t, AddPricePoints(cache, 1, feeder, nil), errEmptyFeed)
	require.ErrorIs(t, AddPricePoints(cache, 1, feeder, []types.PricePoint{{Pair: wiccUSD}}), errZeroPrice)
	require.ErrorIs(t, AddPricePoints(cache, 1, feeder, []types.PricePoint{
		{Pair: wiccUSD, Price: 1}, {Pair: wiccUSD, Price: 2},
	}), errDuplicatePair)
}

func TestPrunePricePoints(t *testing.T) {
	cache := newCache(t)
	require.NoError(t, AddPricePoints(cache, 1, types.RegID{Height: 1, Index: 1}, []types.PricePoint{{Pair: wiccUSD, Price: 7}}))
	require.NoError(t, PrunePricePoints(cache, 4, 3))
	medians, err := CalcMedianPriceDetails(cache, 3, 5)
	require.NoError(t, err)
	_, ok := medians[wiccUSD]
	require.False(t, ok)
}
