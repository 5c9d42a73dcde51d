package state

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"cdpledger/core/types"
)

func testCDP(id byte, owner uint32, staked, owed, height uint64) *types.UserCDP {
	return types.NewUserCDP(common.BytesToHash([]byte{id}), types.RegID{Height: owner, Index: 1}, height,
		types.CdpCoinPairWICCWUSD, staked, owed)
}

func TestCDPLifecycleMaintainsTotals(t *testing.T) {
	mgr, _ := newTestManager(t)
	cache := mgr.NewCache()
	pair := types.CdpCoinPairWICCWUSD

	a := testCDP(1, 100, 1000, 100, 5)
	b := testCDP(2, 101, 2000, 300, 6)
	require.NoError(t, cache.NewCDP(a))
	require.NoError(t, cache.NewCDP(b))
	require.Error(t, cache.NewCDP(a))

	global, err := cache.CdpGlobalData(pair)
	require.NoError(t, err)
	require.Equal(t, uint64(3000), global.TotalStakedAssets.Uint64())
	require.Equal(t, uint64(400), global.TotalOwedScoins.Uint64())

	id, ok, err := cache.UserCDPByPair(a.Owner, pair)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, a.ID, id)

	a.AddStake(7, 500, 50)
	require.NoError(t, cache.UpdateCDP(a))
	global, err = cache.CdpGlobalData(pair)
	require.NoError(t, err)
	require.Equal(t, uint64(3500), global.TotalStakedAssets.Uint64())
	require.Equal(t, uint64(450), global.TotalOwedScoins.Uint64())

	require.NoError(t, cache.EraseCDP(b.ID))
	global, err = cache.CdpGlobalData(pair)
	require.NoError(t, err)
	require.Equal(t, uint64(1500), global.TotalStakedAssets.Uint64())
	require.Equal(t, uint64(150), global.TotalOwedScoins.Uint64())

	_, ok, err = cache.UserCDPByPair(b.Owner, pair)
	require.NoError(t, err)
	require.False(t, ok)
	_, ok, err = cache.GetCDP(b.ID)
	require.NoError(t, err)
	require.False(t, ok)
	require.Error(t, cache.EraseCDP(b.ID))
}

func TestCdpListByCollateralRatio(t *testing.T) {
	mgr, _ := newTestManager(t)
	cache := mgr.NewCache()
	price := types.PriceBoost // 1.0

	// ratios: 1.0, 3.0, 1.5, 1.0 (later height)
	require.NoError(t, cache.NewCDP(testCDP(1, 1, 100, 100, 10)))
	require.NoError(t, cache.NewCDP(testCDP(2, 2, 300, 100, 10)))
	require.NoError(t, cache.NewCDP(testCDP(3, 3, 150, 100, 10)))
	require.NoError(t, cache.NewCDP(testCDP(4, 4, 200, 200, 5)))
	require.NoError(t, cache.NewCDP(testCDP(5, 5, 200, 0, 5)))

	list, err := cache.CdpListByCollateralRatio(types.CdpCoinPairWICCWUSD, 20_000, price)
	require.NoError(t, err)
	require.Len(t, list, 3)
	require.Equal(t, common.BytesToHash([]byte{4}), list[0].ID)
	require.Equal(t, common.BytesToHash([]byte{1}), list[1].ID)
	require.Equal(t, common.BytesToHash([]byte{3}), list[2].ID)

	byHeight, err := cache.CdpListByHeight(types.CdpCoinPairWICCWUSD)
	require.NoError(t, err)
	require.Len(t, byHeight, 5)
	require.Equal(t, uint64(5), byHeight[0].BlockHeight)
	require.Equal(t, uint64(10), byHeight[4].BlockHeight)
}

func TestCdpRatioIndexFollowsUpdates(t *testing.T) {
	mgr, _ := newTestManager(t)
	cache := mgr.NewCache()
	pair := types.CdpCoinPairWICCWUSD

	a := testCDP(1, 1, 300, 100, 10)
	b := testCDP(2, 2, 200, 100, 10)
	c := testCDP(3, 3, 100, 100, 10)
	for _, pos := range []*types.UserCDP{a, b, c} {
		require.NoError(t, cache.NewCDP(pos))
	}

	// a drops from 3.0 to 0.75 and moves to the front.
	a.AddStake(11, 0, 300)
	require.NoError(t, cache.UpdateCDP(a))

	entries, err := cache.cdpIndex(pair)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	for i := 1; i < len(entries); i++ {
		require.True(t, entries[i-1].before(entries[i]), "index out of order at %d", i)
	}
	require.Equal(t, a.ID, entries[0].ID)
	require.Equal(t, uint64(400), entries[0].Owed)

	list, err := cache.CdpListByCollateralRatio(pair, 15_000, types.PriceBoost)
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, a.ID, list[0].ID)
	require.Equal(t, c.ID, list[1].ID)

	require.NoError(t, cache.EraseCDP(c.ID))
	entries, err = cache.cdpIndex(pair)
	require.NoError(t, err)
	require.Len(t, entries, 2)
}

func TestCdpListByCollateralRatioStopsPastThreshold(t *testing.T) {
	mgr, _ := newTestManager(t)
	cache := mgr.NewCache()
	pair := types.CdpCoinPairWICCWUSD

	low := testCDP(1, 1, 100, 100, 10)
	high := testCDP(2, 2, 500, 100, 10)
	require.NoError(t, cache.NewCDP(low))
	require.NoError(t, cache.NewCDP(high))
	// Drop the record behind the index entry; only a full walk would notice.
	require.NoError(t, cache.deleteRaw(CdpKey(high.ID)))

	list, err := cache.CdpListByCollateralRatio(pair, 10_400, types.PriceBoost)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, low.ID, list[0].ID)

	_, err = cache.CdpListByHeight(pair)
	require.Error(t, err)
}

func TestClosedCDPArchive(t *testing.T) {
	mgr, _ := newTestManager(t)
	cache := mgr.NewCache()
	txid := common.HexToHash("0xaa")
	closed := types.ClosedCDP{CdpID: common.HexToHash("0x01"), CloseTxID: txid, CloseType: types.CdpCloseByRedeem}
	require.NoError(t, cache.StageClosedCDP(closed))
	require.NoError(t, cache.Commit())

	loaded, ok, err := mgr.ClosedCDP(closed.CdpID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, types.CdpCloseByRedeem, loaded.CloseType)

	ids, err := mgr.ClosedCDPsByTx(txid)
	require.NoError(t, err)
	require.Equal(t, []common.Hash{closed.CdpID}, ids)
}

func TestActivateCdpBcoin(t *testing.T) {
	mgr, _ := newTestManager(t)
	cache := mgr.NewCache()
	require.NoError(t, cache.ActivateCdpBcoin(types.SymbolWICC, types.TxCord{Height: 0, Index: 0}))
	require.NoError(t, cache.ActivateCdpBcoin("WBTC", types.TxCord{Height: 9, Index: 1}))
	require.NoError(t, cache.ActivateCdpBcoin(types.SymbolWICC, types.TxCord{Height: 99}))

	list, err := cache.CdpBcoins()
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, "WBTC", list[0].Symbol)
	require.Equal(t, types.TxCord{Height: 9, Index: 1}, list[0].InitTxCord)
	require.Equal(t, types.SymbolWICC, list[1].Symbol)
	require.Equal(t, uint64(0), list[1].InitTxCord.Height)
}
