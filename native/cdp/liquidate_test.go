package cdp

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	coreerrors "cdpledger/core/errors"
	"cdpledger/core/types"
	"cdpledger/native/dex"
	"cdpledger/native/params"
)

func tierParams() params.CdpParams {
	p := params.DefaultCdpParams()
	p.StartLiquidateRatio = 15_000
	p.NonReturnLiquidateRatio = 13_000
	p.ForceLiquidateRatio = 10_400
	p.LiquidateDiscountRatio = 9_700
	return p
}

func TestQuoteLiquidationTiers(t *testing.T) {
	p := tierParams()
	owed := 1000 * types.Coin

	t.Run("healthy", func(t *testing.T) {
		cdp := &types.UserCDP{TotalStakedBcoins: 2000 * types.Coin, TotalOwedScoins: owed}
		_, ready := QuoteLiquidation(cdp, p, types.PriceBoost)
		require.False(t, ready)
	})

	t.Run("non-return band", func(t *testing.T) {
		cdp := &types.UserCDP{TotalStakedBcoins: 1400 * types.Coin, TotalOwedScoins: owed}
		q, ready := QuoteLiquidation(cdp, p, types.PriceBoost)
		require.True(t, ready)
		// The liquidator takes collateral worth 130% of the debt.
		require.InDelta(t, float64(1300*types.Coin), float64(q.BcoinsToLiquidator), 1)
		require.Equal(t, cdp.TotalStakedBcoins, q.BcoinsToLiquidator+q.BcoinsToOwner)
		require.InDelta(t, float64(1261*types.Coin), float64(q.ScoinsToLiquidate), 1)
		require.Equal(t, q.ScoinsToLiquidate-owed, q.PenaltyToReserve)
	})

	t.Run("force band", func(t *testing.T) {
		cdp := &types.UserCDP{TotalStakedBcoins: 1100 * types.Coin, TotalOwedScoins: owed}
		q, ready := QuoteLiquidation(cdp, p, types.PriceBoost)
		require.True(t, ready)
		require.Equal(t, cdp.TotalStakedBcoins, q.BcoinsToLiquidator)
		require.Zero(t, q.BcoinsToOwner)
		require.InDelta(t, float64(1067*types.Coin), float64(q.ScoinsToLiquidate), 1)
		require.Equal(t, q.ScoinsToLiquidate-owed, q.PenaltyToReserve)
	})

	t.Run("below force ratio", func(t *testing.T) {
		cdp := &types.UserCDP{TotalStakedBcoins: 1000 * types.Coin, TotalOwedScoins: owed}
		q, ready := QuoteLiquidation(cdp, p, types.PriceBoost)
		require.True(t, ready)
		require.Equal(t, cdp.TotalStakedBcoins, q.BcoinsToLiquidator)
		require.Equal(t, owed, q.ScoinsToLiquidate)
		require.Zero(t, q.PenaltyToReserve)
	})

	t.Run("discounted value under debt carries no penalty", func(t *testing.T) {
		low := p
		low.ForceLiquidateRatio = 10_000
		cdp := &types.UserCDP{TotalStakedBcoins: 1025 * types.Coin, TotalOwedScoins: owed}
		q, ready := QuoteLiquidation(cdp, low, types.PriceBoost)
		require.True(t, ready)
		require.Less(t, q.ScoinsToLiquidate, owed)
		require.Zero(t, q.PenaltyToReserve)
	})
}

// openUnderwater opens a 1000 WICC / 400 WUSD position at price 1.00 and
// drops the price to 0.56, a 140% collateral ratio.
func openUnderwater(t *testing.T, f *fixture) (*types.Account, *types.UserCDP) {
	t.Helper()
	owner := f.user(1, 10_000*types.Coin)
	id := f.open(owner, testHeight, 1, 1000*types.Coin, 400*types.Coin)
	f.setPrice(56_000_000, testHeight)
	return owner, f.cdp(id)
}

func TestLiquidateFullyClosesPosition(t *testing.T) {
	f := newFixture(t, nil)
	f.engine.SetPersistClosedCDP(true)
	owner, cdp := openUnderwater(t, f)
	liquidator := f.user(2, 0)
	liquidator.SetToken(types.SymbolWUSD, types.AccountToken{Free: 1000 * types.Coin})

	p := params.DefaultCdpParams()
	p.StartCollateralRatio = 20_000
	quote, ready := QuoteLiquidation(cdp, p, 56_000_000)
	require.True(t, ready)
	require.NotZero(t, quote.BcoinsToOwner)
	require.NotZero(t, quote.PenaltyToReserve)

	ctx := f.ctx(testHeight, 2)
	require.NoError(t, f.engine.Liquidate(ctx, liquidator, types.CDPLiquidatePayload{
		CdpID:             cdp.ID,
		AssetSymbol:       types.SymbolWICC,
		ScoinsToLiquidate: 500 * types.Coin,
	}))

	require.Equal(t, 1000*types.Coin-quote.ScoinsToLiquidate, liquidator.Token(types.SymbolWUSD).Free)
	require.Equal(t, quote.BcoinsToLiquidator, liquidator.Token(types.SymbolWICC).Free)
	ownerWICC := owner.Token(types.SymbolWICC)
	require.Zero(t, ownerWICC.Pledged)
	require.Equal(t, 9000*types.Coin+quote.BcoinsToOwner, ownerWICC.Free)

	left := quote.PenaltyToReserve - quote.PenaltyToReserve/2
	reserveWUSD := f.reserve.Token(types.SymbolWUSD)
	require.Equal(t, 1_000_000*types.Coin+quote.PenaltyToReserve-left, reserveWUSD.Free)
	require.Equal(t, left, reserveWUSD.Frozen)
	order, ok, err := dex.ActiveOrder(f.cache, ctx.TxID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, dex.TagCdpPenalty, order.Tag)
	require.Equal(t, left, order.CoinAmount)

	_, ok, err = f.cache.GetCDP(cdp.ID)
	require.NoError(t, err)
	require.False(t, ok)
	require.NoError(t, f.cache.Commit())
	closed, ok, err := f.mgr.ClosedCDP(cdp.ID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, types.CdpCloseByManualLiquidate, closed.CloseType)
}

func TestLiquidatePartiallyScalesSettlement(t *testing.T) {
	f := newFixture(t, nil)
	owner, cdp := openUnderwater(t, f)
	liquidator := f.user(2, 0)
	liquidator.SetToken(types.SymbolWUSD, types.AccountToken{Free: 1000 * types.Coin})

	require.NoError(t, f.engine.Liquidate(f.ctx(testHeight, 2), liquidator, types.CDPLiquidatePayload{
		CdpID:             cdp.ID,
		ScoinsToLiquidate: 200 * types.Coin,
	}))

	require.Equal(t, 800*types.Coin, liquidator.Token(types.SymbolWUSD).Free)
	toLiquidator := liquidator.Token(types.SymbolWICC).Free
	toOwner := owner.Token(types.SymbolWICC).Free - 9000*types.Coin
	require.NotZero(t, toLiquidator)
	require.NotZero(t, toOwner)

	after := f.cdp(cdp.ID)
	require.Equal(t, 1000*types.Coin, after.TotalStakedBcoins+toLiquidator+toOwner)
	require.Equal(t, after.TotalStakedBcoins, owner.Token(types.SymbolWICC).Pledged)
	require.Less(t, after.TotalOwedScoins, 400*types.Coin)
	require.Greater(t, after.TotalOwedScoins, 200*types.Coin)

	// The penalty is the payment in excess of the debt closed out.
	closeout := 400*types.Coin - after.TotalOwedScoins
	reserveWUSD := f.reserve.Token(types.SymbolWUSD)
	require.Equal(t, 1_000_000*types.Coin+200*types.Coin-closeout, reserveWUSD.Free+reserveWUSD.Frozen)
}

func TestLiquidateRejectsHealthyPosition(t *testing.T) {
	f := newFixture(t, nil)
	owner := f.user(1, 10_000*types.Coin)
	id := f.open(owner, testHeight, 1, 1000*types.Coin, 400*types.Coin)
	liquidator := f.user(2, 0)
	liquidator.SetToken(types.SymbolWUSD, types.AccountToken{Free: 1000 * types.Coin})

	err := f.engine.Liquidate(f.ctx(testHeight, 2), liquidator, types.CDPLiquidatePayload{CdpID: id, ScoinsToLiquidate: types.Coin})
	requireReason(t, err, "cdp-not-liquidate-ready")
}

func TestLiquidateRequiresScoins(t *testing.T) {
	f := newFixture(t, nil)
	_, cdp := openUnderwater(t, f)
	liquidator := f.user(2, 0)

	err := f.engine.Liquidate(f.ctx(testHeight, 2), liquidator, types.CDPLiquidatePayload{CdpID: cdp.ID, ScoinsToLiquidate: types.Coin})
	requireReason(t, err, "account-scoins-insufficient")
	require.Equal(t, coreerrors.CdpLiquidateFail, coreerrors.CodeOf(err))

	err = f.engine.Liquidate(f.ctx(testHeight, 3), liquidator, types.CDPLiquidatePayload{CdpID: cdp.ID})
	requireReason(t, err, "invalid-liquidate-amount")

	err = f.engine.Liquidate(f.ctx(testHeight, 4), liquidator, types.CDPLiquidatePayload{
		CdpID: cdp.ID, AssetSymbol: types.SymbolWGRT, ScoinsToLiquidate: types.Coin,
	})
	requireReason(t, err, "invalid-asset-symbol")
}

func TestProcessPenaltyFeesMinimumBeforeR3(t *testing.T) {
	f := newFixture(t, nil)
	sys := params.DefaultSysParams()
	cdp := types.NewUserCDP(common.BytesToHash([]byte{1}), types.RegID{Height: 10, Index: 1}, testHeight, wiccPair, 1, 1)

	ctx := f.ctx(testHeight, 1)
	require.NoError(t, f.engine.ProcessPenaltyFees(ctx, sys, cdp, sys.CDPSysOrderPenaltyFeeMin))
	reserveWUSD := f.reserve.Token(types.SymbolWUSD)
	require.Equal(t, 1_000_000*types.Coin+sys.CDPSysOrderPenaltyFeeMin, reserveWUSD.Free)
	require.Zero(t, reserveWUSD.Frozen)
	_, ok, err := dex.ActiveOrder(f.cache, ctx.TxID)
	require.NoError(t, err)
	require.False(t, ok)

	sys.ForkHeights = params.ForkHeights{R2: 1, R3: 2}
	ctx = f.ctx(testHeight, 2)
	require.NoError(t, f.engine.ProcessPenaltyFees(ctx, sys, cdp, 3))
	require.Equal(t, uint64(2), f.reserve.Token(types.SymbolWUSD).Frozen)
	order, ok, err := dex.ActiveOrder(f.cache, ctx.TxID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(2), order.CoinAmount)
}
