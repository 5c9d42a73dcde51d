package liquidation

import (
	"log/slog"

	coreerrors "cdpledger/core/errors"
	"cdpledger/core/ledger"
	"cdpledger/core/types"
	"cdpledger/native/cdp"
	"cdpledger/native/dex"
	"cdpledger/native/liquidation/legacy"
	"cdpledger/native/params"
	"cdpledger/observability/metrics"
)

// executor liquidates the positions of a single pair.
type executor struct {
	engine     *Engine
	ctx        cdp.TxContext
	sys        params.SysParams
	detail     cdp.CoinPairDetail
	fcoinPrice uint64
	reserve    *types.Account
	limit      uint64
	logger     *slog.Logger
}

// run returns how many positions were visited, which may exceed the limit
// by one when the limit stopped the scan.
func (x *executor) run() (uint64, error) {
	e := x.engine
	pair := x.detail.Pair
	p, err := e.params.CdpParams(pair)
	if err != nil {
		return 0, coreerrors.MissingData(coreerrors.ReadSysParamFail, "read-cdp-param-error", "%s: %v", pair, err)
	}
	global, err := e.state.CdpGlobalData(pair)
	if err != nil {
		return 0, err
	}
	if global.FloorReached(x.detail.BcoinPrice, p.GlobalCollateralFloor) {
		x.logger.Info("global collateral floor reached, skipping pair",
			"ratio", global.CollateralRatio(x.detail.BcoinPrice), "floor", p.GlobalCollateralFloor)
		return 0, nil
	}

	list, err := e.state.CdpListByCollateralRatio(pair, p.ForceLiquidateRatio, x.detail.BcoinPrice)
	if err != nil {
		return 0, err
	}
	if len(list) == 0 {
		return 0, nil
	}
	x.logger.Debug("positions to force liquidate", "count", len(list),
		"forceRatio", p.ForceLiquidateRatio, "price", x.detail.BcoinPrice)

	if SelectStrategy(x.sys, x.ctx.Height, pair) == StrategyLegacy {
		return x.runLegacy(list)
	}

	var count uint64
	liquidated := 0
	for _, pos := range list {
		count++
		if count > x.limit {
			break
		}
		free := ledger.GetBalance(x.reserve, pair.ScoinSymbol, types.BalanceFree)
		if free < pos.TotalOwedScoins {
			x.logger.Warn("risk reserve cannot cover position, stopping pair",
				"cdpid", pos.ID.Hex(), "reserve", free, "owed", pos.TotalOwedScoins)
			e.metrics.ObserveReserveHalt(pair.String())
			break
		}
		if err := x.liquidate(pos); err != nil {
			return count, err
		}
		liquidated++
	}
	e.metrics.ObserveLiquidated(pair.String(), metrics.PathCurrent, liquidated)
	return count, nil
}

func (x *executor) liquidate(pos *types.UserCDP) error {
	e := x.engine
	receipts := x.ctx.Receipts
	owner, ok, err := e.state.AccountByUID(types.RegIDUser(pos.Owner))
	if err != nil {
		return err
	}
	if !ok {
		return coreerrors.MissingData(coreerrors.ReadAccountFail, "read-cdp-owner-account-failed",
			"owner %s of cdp %s not found", pos.Owner, pos.ID.Hex())
	}

	if err := ledger.OperateBalance(x.reserve, pos.ScoinSymbol, types.OpSubFree, pos.TotalOwedScoins,
		types.ReceiptCdpTotalCloseoutScoinFromReserve, receipts, nil); err != nil {
		return coreerrors.Insufficient(coreerrors.UpdateAccountFail, "deduct-scoins-from-reserve-failed", "%v", err)
	}
	if err := ledger.OperateBalance(owner, pos.BcoinSymbol, types.OpUnpledge, pos.TotalStakedBcoins,
		types.ReceiptCdpTotalAssetToReserve, receipts, nil); err != nil {
		return coreerrors.Insufficient(coreerrors.UpdateAccountFail, "unpledge-bcoins-failed", "%v", err)
	}
	if err := ledger.OperateBalance(owner, pos.BcoinSymbol, types.OpSubFree, pos.TotalStakedBcoins,
		types.ReceiptCdpTotalAssetToReserve, receipts, x.reserve); err != nil {
		return coreerrors.Insufficient(coreerrors.UpdateAccountFail, "deduct-bcoins-failed", "%v", err)
	}
	if err := x.sell(pos, pos.BcoinSymbol, pos.TotalStakedBcoins, dex.TagCdpAsset,
		types.ReceiptCdpTotalAssetToReserve); err != nil {
		return err
	}

	value := types.ValueInScoin(pos.TotalStakedBcoins, x.detail.BcoinPrice)
	if value < pos.TotalOwedScoins {
		// A shortfall worth less than one fund coin unit still places its
		// (empty) order.
		fcoins := uint64(float64(pos.TotalOwedScoins-value) * float64(types.PriceBoost) / float64(x.fcoinPrice))
		if err := ledger.OperateBalance(x.reserve, types.SymbolWGRT, types.OpAddFree, fcoins,
			types.ReceiptCdpTotalInflateFcoinToReserve, receipts, nil); err != nil {
			return coreerrors.Policy(coreerrors.UpdateAccountFail, "operate-fcoin-genesis-account-failed", "%v", err)
		}
		if err := x.sell(pos, types.SymbolWGRT, fcoins, dex.TagCdpInflateFcoin,
			types.ReceiptCdpTotalInflateFcoinToReserve); err != nil {
			return err
		}
		e.metrics.AddFcoinsInflated(pos.CoinPair().String(), fcoins)
	}

	if err := e.state.EraseCDP(pos.ID); err != nil {
		return coreerrors.Policy(coreerrors.UpdateCdpFail, "erase-cdp-failed", "%v", err)
	}
	e.closed(x.ctx, pos)
	x.logger.Info("force liquidated cdp", "cdpid", pos.ID.Hex(), "owner", pos.Owner.String(),
		"staked", pos.TotalStakedBcoins, "owed", pos.TotalOwedScoins, "value", value)
	return nil
}

// sell freezes amount of asset in the reserve and places a market order
// selling it for the position's stable coin. The order id is derived from
// the position and the asset, so one position sells each asset at most once.
func (x *executor) sell(pos *types.UserCDP, asset string, amount uint64, tag string, code types.ReceiptCode) error {
	if err := ledger.OperateBalance(x.reserve, asset, types.OpFreeze, amount, code, x.ctx.Receipts, nil); err != nil {
		return coreerrors.Insufficient(coreerrors.UpdateAccountFail, "account-insufficient", "%v", err)
	}
	order := dex.NewSellMarketOrder(x.ctx.Cord(), pos.ScoinSymbol, asset, amount, tag, pos.ID)
	id := dex.OrderID(pos.ID.Bytes(), []byte(asset))
	if err := dex.CreateActiveOrder(x.engine.state, id, order, x.reserve); err != nil {
		return coreerrors.Invalid(coreerrors.CreateSysOrderFailed, "create-sys-order-failed", "%v", err)
	}
	return nil
}

func (x *executor) runLegacy(list []*types.UserCDP) (uint64, error) {
	e := x.engine
	res, err := legacy.Liquidate(e.state, legacy.Batch{
		Cord:       x.ctx.Cord(),
		TxID:       x.ctx.TxID,
		BcoinPrice: x.detail.BcoinPrice,
		FcoinPrice: x.fcoinPrice,
		Limit:      x.limit,
		Reserve:    x.reserve,
		Receipts:   x.ctx.Receipts,
		Closed:     func(pos *types.UserCDP) { e.closed(x.ctx, pos) },
		Logger:     x.logger.With("path", metrics.PathLegacy),
	}, list)
	pair := x.detail.Pair.String()
	e.metrics.ObserveLiquidated(pair, metrics.PathLegacy, res.Liquidated)
	e.metrics.AddFcoinsInflated(pair, res.FcoinsInflated)
	return res.Count, err
}
