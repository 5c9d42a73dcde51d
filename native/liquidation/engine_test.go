package liquidation

import (
	"io"
	"log/slog"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"cdpledger/core/events"
	"cdpledger/core/state"
	"cdpledger/core/types"
	"cdpledger/native/cdp"
	"cdpledger/native/dex"
	"cdpledger/native/liquidation/legacy"
	"cdpledger/native/oracle"
	"cdpledger/native/params"
	"cdpledger/observability/metrics"
	"cdpledger/storage"
	"cdpledger/storage/trie"
)

const (
	testHeight = uint64(100)
	symbolWBTC = "WBTC"
)

var (
	wiccPair = types.CdpCoinPair{BcoinSymbol: types.SymbolWICC, ScoinSymbol: types.SymbolWUSD}
	wbtcPair = types.CdpCoinPair{BcoinSymbol: symbolWBTC, ScoinSymbol: types.SymbolWUSD}
)

type testPauses map[string]bool

func (p testPauses) IsPaused(module string) bool { return p[module] }

type fixture struct {
	t        *testing.T
	mgr      *state.Manager
	cache    *state.Cache
	cdps     *cdp.Engine
	engine   *Engine
	reserve  *types.Account
	receipts types.Receipts
	prices   map[types.PriceCoinPair]types.PriceDetail
}

func testKeyID(b byte) types.KeyID {
	var id types.KeyID
	id[0] = b
	id[19] = b
	return id
}

func newFixture(t *testing.T, mutate func(*params.Genesis)) *fixture {
	t.Helper()
	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	tr, err := trie.NewTrie(db, nil)
	require.NoError(t, err)
	mgr := state.NewManager(tr, db)
	cache := mgr.NewCache()

	genesis := params.DefaultGenesis()
	genesis.CDP[0].StartCollateralRatio = 20_000
	wbtc := genesis.CDP[0]
	wbtc.BcoinSymbol = symbolWBTC
	genesis.CDP = append(genesis.CDP, wbtc)
	if mutate != nil {
		mutate(genesis)
	}
	require.NoError(t, params.NewStore(cache).InitGenesis(genesis))
	require.NoError(t, cache.ActivateCdpBcoin(types.SymbolWICC, types.TxCord{Height: 1}))
	require.NoError(t, cache.ActivateCdpBcoin(symbolWBTC, types.TxCord{Height: 2}))

	reserve, _, err := cache.Account(testKeyID(0xee))
	require.NoError(t, err)
	require.NoError(t, cache.SetRegID(reserve, types.RegID{Height: 0, Index: 1}))
	reserve.SetToken(types.SymbolWUSD, types.AccountToken{Free: 1_000_000 * types.Coin})

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cdps := cdp.NewEngine()
	cdps.SetState(cache)
	cdps.SetLogger(logger)
	engine := NewEngine()
	engine.SetState(cache)
	engine.SetLogger(logger)
	engine.SetPersistClosedCDP(true)
	engine.SetMetrics(metrics.Ledger())

	f := &fixture{t: t, mgr: mgr, cache: cache, cdps: cdps, engine: engine, reserve: reserve,
		prices: make(map[types.PriceCoinPair]types.PriceDetail)}
	f.setPrice(types.SymbolWICC, types.PriceBoost, testHeight)
	f.setPrice(symbolWBTC, types.PriceBoost, testHeight)
	f.setFcoinPrice(types.PriceBoost/10, testHeight)
	return f
}

func (f *fixture) publish() {
	f.t.Helper()
	require.NoError(f.t, oracle.SetMedianPrices(f.cache, f.prices))
}

func (f *fixture) setPrice(bcoin string, price, height uint64) {
	f.prices[types.PriceCoinPair{Base: bcoin, Quote: types.SymbolUSD}] = types.PriceDetail{Price: price, LastFeedHeight: height}
	f.publish()
}

func (f *fixture) setFcoinPrice(price, height uint64) {
	f.prices[types.FcoinPriceCoinPair] = types.PriceDetail{Price: price, LastFeedHeight: height}
	f.publish()
}

func (f *fixture) ctx(height uint64, tag byte) cdp.TxContext {
	f.receipts = nil
	return cdp.TxContext{
		Height:   height,
		TxID:     common.BytesToHash([]byte{0xc0, tag}),
		Receipts: &f.receipts,
	}
}

// open gives owner b the collateral and opens a position minting owed WUSD
// at a collateral price of 1.00.
func (f *fixture) open(b byte, bcoin string, staked, owed uint64) common.Hash {
	f.t.Helper()
	acct, _, err := f.cache.Account(testKeyID(b))
	require.NoError(f.t, err)
	require.NoError(f.t, f.cache.SetRegID(acct, types.RegID{Height: 10, Index: uint16(b)}))
	acct.SetToken(bcoin, types.AccountToken{Free: staked})

	ctx := f.ctx(testHeight, b)
	require.NoError(f.t, f.cdps.Stake(ctx, acct, types.CDPStakePayload{
		AssetsToStake: []types.TokenAmount{{Symbol: bcoin, Amount: staked}},
		ScoinSymbol:   types.SymbolWUSD,
		ScoinsToMint:  owed,
	}))
	return ctx.TxID
}

func (f *fixture) exists(id common.Hash) bool {
	f.t.Helper()
	_, ok, err := f.cache.GetCDP(id)
	require.NoError(f.t, err)
	return ok
}

func (f *fixture) run(height uint64) {
	f.t.Helper()
	require.NoError(f.t, f.engine.ForceLiquidateCdps(f.ctx(height, 0xff), f.prices))
}

func TestSelectStrategy(t *testing.T) {
	sys := params.DefaultSysParams()
	require.Equal(t, StrategyCurrent, SelectStrategy(sys, 100, wiccPair))

	sys.Network = params.TestNet
	cases := []struct {
		height uint64
		pair   types.CdpCoinPair
		want   Strategy
	}{
		{100, wiccPair, StrategyLegacy},
		{legacy.LastHeight - 1, wiccPair, StrategyLegacy},
		{legacy.LastHeight, wiccPair, StrategyCurrent},
		{100, wbtcPair, StrategyCurrent},
	}
	for _, tc := range cases {
		if got := SelectStrategy(sys, tc.height, tc.pair); got != tc.want {
			t.Fatalf("SelectStrategy(%d, %s) = %s, want %s", tc.height, tc.pair, got, tc.want)
		}
	}
}

func TestForceLiquidateClosesPositionsBelowForceRatio(t *testing.T) {
	f := newFixture(t, nil)
	weak := f.open(1, types.SymbolWICC, 1000*types.Coin, 400*types.Coin)
	strong := f.open(2, types.SymbolWICC, 2000*types.Coin, 400*types.Coin)
	liquidated := f.engine.metrics.Liquidated(wiccPair.String(), metrics.PathCurrent)
	before := testutil.ToFloat64(liquidated)

	// 1000 WICC at 0.41 is a 102.5% ratio, under the 104% force ratio.
	f.setPrice(types.SymbolWICC, 41_000_000, testHeight)
	f.run(testHeight)

	require.False(t, f.exists(weak))
	require.True(t, f.exists(strong))
	require.Equal(t, 1_000_000*types.Coin-400*types.Coin, f.reserve.Token(types.SymbolWUSD).Free)
	require.Equal(t, 1000*types.Coin, f.reserve.Token(types.SymbolWICC).Frozen)
	require.Zero(t, f.reserve.Token(types.SymbolWGRT).Free+f.reserve.Token(types.SymbolWGRT).Frozen)

	owner, _, err := f.cache.Account(testKeyID(1))
	require.NoError(t, err)
	require.Zero(t, owner.Token(types.SymbolWICC).Pledged)
	require.Equal(t, 400*types.Coin, owner.Token(types.SymbolWUSD).Free)

	order, ok, err := dex.ActiveOrder(f.cache, dex.OrderID(weak.Bytes(), []byte(types.SymbolWICC)))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, dex.TagCdpAsset, order.Tag)
	require.Equal(t, 1000*types.Coin, order.AssetAmount)
	require.Equal(t, weak, order.Ref)
	require.Equal(t, 1.0, testutil.ToFloat64(liquidated)-before)

	require.NoError(t, f.cache.Commit())
	closed, ok, err := f.mgr.ClosedCDP(weak)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, types.CdpCloseByForceLiquidate, closed.CloseType)
}

func TestForceLiquidateInflatesFcoinsForShortfall(t *testing.T) {
	f := newFixture(t, nil)
	id := f.open(1, types.SymbolWICC, 1000*types.Coin, 400*types.Coin)
	inflated := testutil.ToFloat64(f.engine.metrics.FcoinsInflated(wiccPair.String()))

	// Collateral worth 360 against 400 owed; the fund coin trades at 0.10.
	f.setPrice(types.SymbolWICC, 36_000_000, testHeight)
	f.run(testHeight)

	require.False(t, f.exists(id))
	require.Equal(t, 400*types.Coin, f.reserve.Token(types.SymbolWGRT).Frozen)
	order, ok, err := dex.ActiveOrder(f.cache, dex.OrderID(id.Bytes(), []byte(types.SymbolWGRT)))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, dex.TagCdpInflateFcoin, order.Tag)
	require.Equal(t, types.SymbolWUSD, order.CoinSymbol)
	require.Equal(t, 400*types.Coin, order.AssetAmount)
	require.Equal(t, float64(400*types.Coin),
		testutil.ToFloat64(f.engine.metrics.FcoinsInflated(wiccPair.String()))-inflated)
}

func TestForceLiquidatePlacesFcoinOrderForDustShortfall(t *testing.T) {
	f := newFixture(t, nil)
	id := f.open(1, types.SymbolWICC, 1000*types.Coin, 400*types.Coin)

	// A shortfall of 1000 units is worth a tenth of one fund coin unit.
	f.setFcoinPrice(10_000*types.PriceBoost, testHeight)
	f.setPrice(types.SymbolWICC, 39_999_999, testHeight)
	f.run(testHeight)

	require.False(t, f.exists(id))
	require.Zero(t, f.reserve.Token(types.SymbolWGRT).Free+f.reserve.Token(types.SymbolWGRT).Frozen)
	order, ok, err := dex.ActiveOrder(f.cache, dex.OrderID(id.Bytes(), []byte(types.SymbolWGRT)))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, dex.TagCdpInflateFcoin, order.Tag)
	require.Zero(t, order.AssetAmount)
}

func TestForceLiquidateStopsPairWhenReserveShort(t *testing.T) {
	f := newFixture(t, nil)
	first := f.open(1, types.SymbolWICC, 1000*types.Coin, 400*types.Coin)
	second := f.open(2, types.SymbolWICC, 1000*types.Coin, 400*types.Coin)
	third := f.open(3, types.SymbolWICC, 1000*types.Coin, 100*types.Coin)
	f.reserve.SetToken(types.SymbolWUSD, types.AccountToken{Free: 500 * types.Coin})
	halts := f.engine.metrics.ReserveHalts(wiccPair.String())
	before := testutil.ToFloat64(halts)

	// The third position is only 410% collateralized and stays out of the list.
	f.setPrice(types.SymbolWICC, 41_000_000, testHeight)
	f.run(testHeight)

	require.False(t, f.exists(first))
	require.True(t, f.exists(second))
	require.True(t, f.exists(third))
	require.Equal(t, 100*types.Coin, f.reserve.Token(types.SymbolWUSD).Free)
	require.Equal(t, 1.0, testutil.ToFloat64(halts)-before)
}

func TestForceLiquidateSkipsWithoutFcoinPrice(t *testing.T) {
	f := newFixture(t, nil)
	id := f.open(1, types.SymbolWICC, 1000*types.Coin, 400*types.Coin)
	f.setPrice(types.SymbolWICC, 41_000_000, testHeight)

	stale := testHeight + params.DefaultSysParams().PriceFeedTimeoutBlocks + 1
	f.setPrice(types.SymbolWICC, 41_000_000, stale)
	f.run(stale)
	require.True(t, f.exists(id))

	delete(f.prices, types.FcoinPriceCoinPair)
	f.publish()
	f.run(stale)
	require.True(t, f.exists(id))
}

func TestForceLiquidateSkipsInactivePairFromR3(t *testing.T) {
	f := newFixture(t, nil)
	id := f.open(1, types.SymbolWICC, 1000*types.Coin, 400*types.Coin)

	store := params.NewStore(f.cache)
	sys, err := store.SysParams()
	require.NoError(t, err)
	sys.ForkHeights = params.ForkHeights{R2: 1, R3: 2}
	require.NoError(t, store.SetSysParams(sys))

	height := testHeight + sys.PriceFeedTimeoutBlocks + 1
	f.setPrice(types.SymbolWICC, 41_000_000, testHeight)
	f.setFcoinPrice(types.PriceBoost/10, height)
	f.run(height)
	require.True(t, f.exists(id))

	f.setPrice(types.SymbolWICC, 41_000_000, height)
	f.run(height)
	require.False(t, f.exists(id))
}

func TestForceLiquidateLimitSpansPairs(t *testing.T) {
	f := newFixture(t, func(g *params.Genesis) {
		g.System.CDPForceLiquidateMaxCount = 3
	})
	wicc1 := f.open(1, types.SymbolWICC, 1000*types.Coin, 400*types.Coin)
	wicc2 := f.open(2, types.SymbolWICC, 1000*types.Coin, 400*types.Coin)
	wbtc1 := f.open(3, symbolWBTC, 1000*types.Coin, 400*types.Coin)
	wbtc2 := f.open(4, symbolWBTC, 1000*types.Coin, 400*types.Coin)

	f.setPrice(types.SymbolWICC, 41_000_000, testHeight)
	f.setPrice(symbolWBTC, 41_000_000, testHeight)
	f.run(testHeight)

	// WICC was activated first and spends two of the three slots.
	require.False(t, f.exists(wicc1))
	require.False(t, f.exists(wicc2))
	liquidatedWBTC := 0
	for _, id := range []common.Hash{wbtc1, wbtc2} {
		if !f.exists(id) {
			liquidatedWBTC++
		}
	}
	require.Equal(t, 1, liquidatedWBTC)
}

func TestForceLiquidateLimitStopsFirstPair(t *testing.T) {
	f := newFixture(t, func(g *params.Genesis) {
		g.System.CDPForceLiquidateMaxCount = 2
	})
	f.open(1, types.SymbolWICC, 1000*types.Coin, 400*types.Coin)
	f.open(2, types.SymbolWICC, 1000*types.Coin, 400*types.Coin)
	wbtc := f.open(3, symbolWBTC, 1000*types.Coin, 400*types.Coin)

	f.setPrice(types.SymbolWICC, 41_000_000, testHeight)
	f.setPrice(symbolWBTC, 41_000_000, testHeight)
	f.run(testHeight)
	require.True(t, f.exists(wbtc))
}

func TestForceLiquidateHonorsGlobalFloor(t *testing.T) {
	f := newFixture(t, nil)
	id := f.open(1, types.SymbolWICC, 1000*types.Coin, 400*types.Coin)

	// 1000 WICC at 0.30 backs 75% of the pair's debt, under the 80% floor.
	f.setPrice(types.SymbolWICC, 30_000_000, testHeight)
	f.run(testHeight)
	require.True(t, f.exists(id))
}

func TestForceLiquidatePausedIsNoop(t *testing.T) {
	f := newFixture(t, nil)
	id := f.open(1, types.SymbolWICC, 1000*types.Coin, 400*types.Coin)
	f.engine.SetPauses(testPauses{moduleName: true})

	f.setPrice(types.SymbolWICC, 41_000_000, testHeight)
	f.run(testHeight)
	require.True(t, f.exists(id))
}

func TestForceLiquidateLegacyPathOnTestNet(t *testing.T) {
	f := newFixture(t, func(g *params.Genesis) {
		g.System.Network = params.TestNet
	})
	id := f.open(1, types.SymbolWICC, 1000*types.Coin, 400*types.Coin)
	liquidated := f.engine.metrics.Liquidated(wiccPair.String(), metrics.PathLegacy)
	before := testutil.ToFloat64(liquidated)

	recorder := &events.Recorder{}
	f.engine.SetEmitter(recorder)

	f.setPrice(types.SymbolWICC, 36_000_000, testHeight)
	ctx := f.ctx(testHeight, 0xff)
	require.NoError(t, f.engine.ForceLiquidateCdps(ctx, f.prices))

	require.False(t, f.exists(id))
	closed := recorder.OfType(events.TypeCDPClosed)
	require.Len(t, closed, 1)
	require.Equal(t, id.Hex(), closed[0].Attributes["cdpid"])
	require.Equal(t, "force_liquidate", closed[0].Attributes["closeType"])
	require.Equal(t, 1.0, testutil.ToFloat64(liquidated)-before)
	for index, asset := range []string{types.SymbolWICC, types.SymbolWGRT} {
		order, ok, err := dex.ActiveOrder(f.cache, dex.OrderID(ctx.TxID.Bytes(), dex.IndexBytes(uint64(index))))
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, asset, order.AssetSymbol)
		require.Equal(t, dex.TagCdpAsset, order.Tag)
	}
	require.Equal(t, 1_000_000*types.Coin-400*types.Coin, f.reserve.Token(types.SymbolWUSD).Free)
}
