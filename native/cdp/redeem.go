package cdp

import (
	coreerrors "cdpledger/core/errors"
	"cdpledger/core/events"
	"cdpledger/core/ledger"
	"cdpledger/core/types"
)

// Redeem repays debt and withdraws collateral from the sender's position.
// Amounts above the position totals are clamped. A position whose debt is
// fully repaid is closed.
func (e *Engine) Redeem(ctx TxContext, sender *types.Account, payload types.CDPRedeemPayload) error {
	if err := e.ready(); err != nil {
		return err
	}
	if sender == nil {
		return errNilSender
	}
	cdp, err := e.loadCDP(payload.CdpID)
	if err != nil {
		return err
	}
	if len(payload.AssetsToRedeem) != 1 {
		return coreerrors.Invalid(coreerrors.RejectInvalid, "invalid-stake-asset",
			"exactly one asset may be redeemed (got %d)", len(payload.AssetsToRedeem))
	}
	assetSymbol := payload.AssetsToRedeem[0].Symbol
	assetAmount := payload.AssetsToRedeem[0].Amount
	if assetSymbol != cdp.BcoinSymbol {
		return coreerrors.Invalid(coreerrors.RejectInvalid, "invalid-stake-asset",
			"asset %s does not match cdp bcoin %s", assetSymbol, cdp.BcoinSymbol)
	}
	if sender.RegID.IsEmpty() || sender.RegID != cdp.Owner {
		return coreerrors.Invalid(coreerrors.RejectInvalid, "permission-denied",
			"cdp %s owned by %s, not %s", cdp.ID.Hex(), cdp.Owner, sender.RegID)
	}

	pair := cdp.CoinPair()
	sys, err := e.sysParams()
	if err != nil {
		return err
	}
	p, err := e.cdpParams(pair)
	if err != nil {
		return err
	}
	price, err := e.BcoinMedianPrice(ctx.Height, pair)
	if err != nil {
		return err
	}
	if reached, err := e.floorReached(pair, price, p.GlobalCollateralFloor); err != nil {
		return err
	} else if reached {
		return coreerrors.Policy(coreerrors.RejectInvalid, "global-cdp-lock-is-on", "global collateral floor reached on %s", pair)
	}
	if ctx.Height < cdp.BlockHeight {
		return coreerrors.Invalid(coreerrors.UpdateAccountFail, "height-error",
			"height %d before cdp height %d", ctx.Height, cdp.BlockHeight)
	}

	interest, err := e.interest(sys, p, cdp, ctx.Height)
	if err != nil {
		return err
	}
	if err := e.SellInterestForFcoins(ctx, sys, cdp, sender, ctx.TxID, interest); err != nil {
		return err
	}

	if assetAmount > cdp.TotalStakedBcoins {
		e.log().Debug("redeem amount clamped", "cdpid", cdp.ID.Hex(), "requested", assetAmount, "staked", cdp.TotalStakedBcoins)
		assetAmount = cdp.TotalStakedBcoins
	}
	repay := payload.ScoinsToRepay
	if repay > cdp.TotalOwedScoins {
		e.log().Debug("repay amount clamped", "cdpid", cdp.ID.Hex(), "requested", repay, "owed", cdp.TotalOwedScoins)
		repay = cdp.TotalOwedScoins
	}
	// The requested amount, not the clamped one, must be covered.
	if free := ledger.GetBalance(sender, cdp.ScoinSymbol, types.BalanceFree); free < payload.ScoinsToRepay {
		return coreerrors.Insufficient(coreerrors.RejectInvalid, "account-balance-insufficient",
			"free %s %d below repay %d", cdp.ScoinSymbol, free, payload.ScoinsToRepay)
	}

	cdp.Redeem(ctx.Height, assetAmount, repay)
	if cdp.IsFinished() {
		if err := e.state.EraseCDP(cdp.ID); err != nil {
			return coreerrors.Policy(coreerrors.UpdateCdpFail, "erase-cdp-failed", "%v", err)
		}
		e.recordClosed(cdp.ID, ctx.TxID, types.CdpCloseByRedeem)
		e.emitClosed(ctx, cdp, types.CdpCloseByRedeem)
		e.log().Info("cdp closed", "cdpid", cdp.ID.Hex(), "type", types.CdpCloseByRedeem.String())
	} else {
		if assetAmount != 0 {
			if ratio := cdp.CollateralRatio(price); ratio < p.StartCollateralRatio {
				return coreerrors.Policy(coreerrors.UpdateCdpFail, "invalid-collatera-ratio",
					"ratio %.2f%% below %.2f%% after redeem at price %d",
					percent(ratio), percent(p.StartCollateralRatio), price)
			}
			if minStake := p.MinStakeBcoins(price); cdp.TotalStakedBcoins < minStake {
				return coreerrors.Policy(coreerrors.RejectInvalid, "total-staked-bcoins-too-small",
					"staked %d below minimum %d at price %d", cdp.TotalStakedBcoins, minStake, price)
			}
		}
		if err := e.state.UpdateCDP(cdp); err != nil {
			return coreerrors.Policy(coreerrors.UpdateCdpFail, "bad-save-cdp", "%v", err)
		}
		e.emitUpdated(events.TypeCDPRedeemed, ctx, cdp)
	}

	if err := ledger.OperateBalance(sender, cdp.ScoinSymbol, types.OpSubFree, repay,
		types.ReceiptCdpRepaidScoinFromOwner, ctx.Receipts, nil); err != nil {
		return coreerrors.Insufficient(coreerrors.UpdateAccountFail, "bad-operate-account", "%v", err)
	}
	if err := ledger.OperateBalance(sender, cdp.BcoinSymbol, types.OpUnpledge, assetAmount,
		types.ReceiptCdpRedeemedAssetToOwner, ctx.Receipts, nil); err != nil {
		return coreerrors.Insufficient(coreerrors.UpdateAccountFail, "bad-operate-account", "%v", err)
	}
	return nil
}
