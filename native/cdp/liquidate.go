package cdp

import (
	coreerrors "cdpledger/core/errors"
	"cdpledger/core/events"
	"cdpledger/core/ledger"
	"cdpledger/core/types"
	"cdpledger/native/params"
)

// LiquidationQuote is the settlement of a full manual liquidation at one
// price: the collateral the liquidator receives, the collateral returned to
// the owner, the stable coins the liquidator pays and the penalty part of
// that payment.
type LiquidationQuote struct {
	BcoinsToLiquidator uint64
	BcoinsToOwner      uint64
	ScoinsToLiquidate  uint64
	PenaltyToReserve   uint64
}

// QuoteLiquidation prices the full liquidation of cdp. The boolean is false
// when the position is healthier than the start liquidation ratio.
func QuoteLiquidation(cdp *types.UserCDP, p params.CdpParams, price uint64) (LiquidationQuote, bool) {
	var q LiquidationQuote
	ratio := cdp.CollateralRatio(price)
	owed := cdp.TotalOwedScoins
	staked := cdp.TotalStakedBcoins
	switch {
	case ratio > p.StartLiquidateRatio:
		return q, false
	case ratio > p.NonReturnLiquidateRatio:
		q.BcoinsToLiquidator = uint64(float64(owed) * float64(p.NonReturnLiquidateRatio) / float64(types.RatioBoost) /
			(float64(price) / float64(types.PriceBoost)))
		if q.BcoinsToLiquidator > staked {
			q.BcoinsToLiquidator = staked
		}
		q.BcoinsToOwner = staked - q.BcoinsToLiquidator
		q.ScoinsToLiquidate = uint64((float64(owed) * float64(p.NonReturnLiquidateRatio) / float64(types.RatioBoost)) *
			float64(p.LiquidateDiscountRatio) / float64(types.RatioBoost))
	case ratio > p.ForceLiquidateRatio:
		q.BcoinsToLiquidator = staked
		q.ScoinsToLiquidate = uint64(float64(staked) * (float64(price) / float64(types.PriceBoost)) *
			float64(p.LiquidateDiscountRatio) / float64(types.RatioBoost))
	default:
		q.BcoinsToLiquidator = staked
		q.ScoinsToLiquidate = owed
		return q, true
	}
	if q.ScoinsToLiquidate > owed {
		q.PenaltyToReserve = q.ScoinsToLiquidate - owed
	}
	return q, true
}

// Liquidate lets the sender buy the collateral of an under-collateralized
// position by paying up to payload.ScoinsToLiquidate stable coins. Paying the
// full quote closes the position; a smaller payment liquidates it
// proportionally.
func (e *Engine) Liquidate(ctx TxContext, liquidator *types.Account, payload types.CDPLiquidatePayload) error {
	if err := e.ready(); err != nil {
		return err
	}
	if liquidator == nil {
		return errNilSender
	}
	if payload.ScoinsToLiquidate == 0 {
		return coreerrors.Invalid(coreerrors.RejectInvalid, "invalid-liquidate-amount", "liquidate amount must be positive")
	}
	cdp, err := e.loadCDP(payload.CdpID)
	if err != nil {
		return err
	}
	if payload.AssetSymbol != "" && payload.AssetSymbol != cdp.BcoinSymbol {
		return coreerrors.Invalid(coreerrors.RejectInvalid, "invalid-asset-symbol",
			"asset %s must be empty or match cdp bcoin %s", payload.AssetSymbol, cdp.BcoinSymbol)
	}
	if free := ledger.GetBalance(liquidator, cdp.ScoinSymbol, types.BalanceFree); free < payload.ScoinsToLiquidate {
		return coreerrors.Insufficient(coreerrors.CdpLiquidateFail, "account-scoins-insufficient",
			"free %s %d below %d", cdp.ScoinSymbol, free, payload.ScoinsToLiquidate)
	}

	pair := cdp.CoinPair()
	sys, err := e.sysParams()
	if err != nil {
		return err
	}
	price, err := e.BcoinMedianPrice(ctx.Height, pair)
	if err != nil {
		return err
	}
	p, err := e.cdpParams(pair)
	if err != nil {
		return err
	}
	if reached, err := e.floorReached(pair, price, p.GlobalCollateralFloor); err != nil {
		return err
	} else if reached {
		return coreerrors.Policy(coreerrors.RejectInvalid, "global-cdp-lock-is-on", "global collateral floor reached on %s", pair)
	}
	owner, err := e.ownerAccount(cdp)
	if err != nil {
		return err
	}

	quote, ready := QuoteLiquidation(cdp, p, price)
	if !ready {
		ratio := cdp.CollateralRatio(price)
		return coreerrors.Policy(coreerrors.RejectInvalid, "cdp-not-liquidate-ready",
			"ratio %.2f%% above %.2f%% at price %d", percent(ratio), percent(p.StartLiquidateRatio), price)
	}
	e.log().Debug("liquidation quote", "cdpid", cdp.ID.Hex(), "price", price,
		"toLiquidator", quote.BcoinsToLiquidator, "toOwner", quote.BcoinsToOwner,
		"scoins", quote.ScoinsToLiquidate, "penalty", quote.PenaltyToReserve)

	if payload.ScoinsToLiquidate >= quote.ScoinsToLiquidate {
		return e.liquidateFully(ctx, sys, cdp, liquidator, owner, quote)
	}
	return e.liquidatePartially(ctx, sys, p, cdp, liquidator, owner, quote, payload.ScoinsToLiquidate, price)
}

func (e *Engine) settleLiquidation(ctx TxContext, cdp *types.UserCDP, liquidator, owner *types.Account,
	scoinsPaid, bcoinsToLiquidator, bcoinsToOwner uint64) error {
	if err := ledger.OperateBalance(liquidator, cdp.ScoinSymbol, types.OpSubFree, scoinsPaid,
		types.ReceiptCdpScoinFromLiquidator, ctx.Receipts, nil); err != nil {
		return coreerrors.Insufficient(coreerrors.UpdateAccountFail, "deduct-account-scoins-failed", "%v", err)
	}
	if err := ledger.OperateBalance(liquidator, cdp.BcoinSymbol, types.OpAddFree, bcoinsToLiquidator,
		types.ReceiptCdpAssetToLiquidator, ctx.Receipts, nil); err != nil {
		return coreerrors.Policy(coreerrors.UpdateAccountFail, "add-bcoins-failed", "%v", err)
	}
	if err := ledger.OperateBalance(owner, cdp.BcoinSymbol, types.OpUnpledge, bcoinsToLiquidator,
		types.ReceiptCdpAssetToLiquidator, ctx.Receipts, nil); err != nil {
		return coreerrors.Insufficient(coreerrors.UpdateAccountFail, "unpledge-bcoins-failed", "%v", err)
	}
	if err := ledger.OperateBalance(owner, cdp.BcoinSymbol, types.OpSubFree, bcoinsToLiquidator,
		types.ReceiptCdpAssetToLiquidator, ctx.Receipts, nil); err != nil {
		return coreerrors.Insufficient(coreerrors.UpdateAccountFail, "deduct-bcoins-failed", "%v", err)
	}
	if err := ledger.OperateBalance(owner, cdp.BcoinSymbol, types.OpUnpledge, bcoinsToOwner,
		types.ReceiptCdpLiquidatedAssetToOwner, ctx.Receipts, nil); err != nil {
		return coreerrors.Insufficient(coreerrors.UpdateAccountFail, "unpledge-bcoins-to-cdp-owner-failed", "%v", err)
	}
	return nil
}

func (e *Engine) liquidateFully(ctx TxContext, sys params.SysParams, cdp *types.UserCDP,
	liquidator, owner *types.Account, quote LiquidationQuote) error {
	if err := e.settleLiquidation(ctx, cdp, liquidator, owner,
		quote.ScoinsToLiquidate, quote.BcoinsToLiquidator, quote.BcoinsToOwner); err != nil {
		return err
	}
	if err := e.ProcessPenaltyFees(ctx, sys, cdp, quote.PenaltyToReserve); err != nil {
		return err
	}
	if err := e.state.EraseCDP(cdp.ID); err != nil {
		return coreerrors.Policy(coreerrors.UpdateCdpFail, "erase-cdp-failed", "%v", err)
	}
	e.recordClosed(cdp.ID, ctx.TxID, types.CdpCloseByManualLiquidate)
	e.emitClosed(ctx, cdp, types.CdpCloseByManualLiquidate)
	e.log().Info("cdp closed", "cdpid", cdp.ID.Hex(), "type", types.CdpCloseByManualLiquidate.String(),
		"scoins", quote.ScoinsToLiquidate, "bcoins", quote.BcoinsToLiquidator)
	return nil
}

func (e *Engine) liquidatePartially(ctx TxContext, sys params.SysParams, p params.CdpParams, cdp *types.UserCDP,
	liquidator, owner *types.Account, quote LiquidationQuote, paid, price uint64) error {
	rate := float64(paid) / float64(quote.ScoinsToLiquidate)
	toLiquidator := uint64(float64(quote.BcoinsToLiquidator) * rate)
	toOwner := uint64(float64(quote.BcoinsToOwner) * rate)
	closeout := uint64(float64(cdp.TotalOwedScoins) * rate)

	if err := e.settleLiquidation(ctx, cdp, liquidator, owner, paid, toLiquidator, toOwner); err != nil {
		return err
	}
	cdp.PartialLiquidate(ctx.Height, toLiquidator+toOwner, closeout)
	if minStake := p.MinStakeBcoins(price); cdp.TotalStakedBcoins < minStake {
		return coreerrors.Policy(coreerrors.RejectInvalid, "total-staked-bcoins-too-small",
			"staked %d below minimum %d after partial liquidation at price %d", cdp.TotalStakedBcoins, minStake, price)
	}
	var penalty uint64
	if paid > closeout {
		penalty = paid - closeout
	}
	if err := e.ProcessPenaltyFees(ctx, sys, cdp, penalty); err != nil {
		return err
	}
	if err := e.state.UpdateCDP(cdp); err != nil {
		return coreerrors.Policy(coreerrors.UpdateCdpFail, "bad-save-cdp", "%v", err)
	}
	e.emitUpdated(events.TypeCDPLiquidated, ctx, cdp)
	e.log().Info("cdp partially liquidated", "cdpid", cdp.ID.Hex(), "paid", paid, "closeout", closeout,
		"bcoins", toLiquidator+toOwner)
	return nil
}
