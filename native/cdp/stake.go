package cdp

import (
	"github.com/ethereum/go-ethereum/common"

	coreerrors "cdpledger/core/errors"
	"cdpledger/core/events"
	"cdpledger/core/ledger"
	"cdpledger/core/types"
	"cdpledger/native/params"
)

// CheckStake validates the stateless shape of a stake payload and that the
// collateral asset has been activated.
func (e *Engine) CheckStake(payload types.CDPStakePayload) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if len(payload.AssetsToStake) != 1 {
		return coreerrors.Invalid(coreerrors.RejectInvalid, "invalid-stake-asset",
			"exactly one asset may be staked (got %d)", len(payload.AssetsToStake))
	}
	if !types.IsScoin(payload.ScoinSymbol) {
		return coreerrors.Invalid(coreerrors.RejectInvalid, "invalid-CDP-SCoin-Symbol", "invalid scoin %s", payload.ScoinSymbol)
	}
	asset := payload.AssetsToStake[0].Symbol
	if asset == types.SymbolWGRT || types.IsScoin(asset) {
		return coreerrors.Invalid(coreerrors.RejectInvalid, "invalid-CDP-BCoin-Symbol", "asset %s can not be a bcoin", asset)
	}
	if _, ok, err := e.state.CdpBcoin(asset); err != nil {
		return err
	} else if !ok {
		return coreerrors.Invalid(coreerrors.RejectInvalid, "invalid-CDP-BCoin-Symbol", "asset %s is not an activated bcoin", asset)
	}
	return nil
}

// Stake opens a position for sender or adds collateral and debt to an
// existing one. A zero payload CdpID opens a new position identified by the
// transaction hash.
func (e *Engine) Stake(ctx TxContext, sender *types.Account, payload types.CDPStakePayload) error {
	if err := e.ready(); err != nil {
		return err
	}
	if sender == nil {
		return errNilSender
	}
	if err := e.CheckStake(payload); err != nil {
		return err
	}
	assetSymbol := payload.AssetsToStake[0].Symbol
	assetAmount := payload.AssetsToStake[0].Amount
	pair := types.CdpCoinPair{BcoinSymbol: assetSymbol, ScoinSymbol: payload.ScoinSymbol}

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
	global, err := e.state.CdpGlobalData(pair)
	if err != nil {
		return err
	}
	// Test networks tolerate a breached floor.
	if sys.Network != params.TestNet && global.FloorReached(price, p.GlobalCollateralFloor) {
		return coreerrors.Policy(coreerrors.RejectInvalid, "global-collateral-floor-reached",
			"global ratio %d below floor %d", global.CollateralRatio(price), p.GlobalCollateralFloor)
	}
	if global.CeilingReached(assetAmount, p.GlobalCollateralCeiling) {
		return coreerrors.Policy(coreerrors.RejectInvalid, "global-collateral-ceiling-reached",
			"staking %d exceeds ceiling %d", assetAmount, p.GlobalCollateralCeiling)
	}

	if payload.CdpID == (common.Hash{}) {
		if err := e.openCDP(ctx, sender, pair, p, price, assetAmount, payload.ScoinsToMint); err != nil {
			return err
		}
	} else {
		if err := e.addStake(ctx, sys, p, sender, payload, price); err != nil {
			return err
		}
	}

	if err := ledger.OperateBalance(sender, assetSymbol, types.OpPledge, assetAmount,
		types.ReceiptCdpPledgedAssetFromOwner, ctx.Receipts, nil); err != nil {
		return coreerrors.Insufficient(coreerrors.UpdateAccountFail, "bcoins-insufficient-error", "%v", err)
	}
	if err := ledger.OperateBalance(sender, payload.ScoinSymbol, types.OpAddFree, payload.ScoinsToMint,
		types.ReceiptCdpMintedScoinToOwner, ctx.Receipts, nil); err != nil {
		return coreerrors.Policy(coreerrors.UpdateAccountFail, "add-scoins-error", "%v", err)
	}
	return nil
}

func (e *Engine) openCDP(ctx TxContext, sender *types.Account, pair types.CdpCoinPair, p params.CdpParams,
	price, assetAmount, mint uint64) error {
	if assetAmount == 0 || mint == 0 {
		return coreerrors.Invalid(coreerrors.RejectInvalid, "invalid-amount", "stake %d and mint %d must be positive", assetAmount, mint)
	}
	if sender.RegID.IsEmpty() {
		return coreerrors.Invalid(coreerrors.RejectInvalid, "account-unregistered", "cdp owner %s has no regid", sender.KeyID)
	}
	if _, exists, err := e.state.UserCDPByPair(sender.RegID, pair); err != nil {
		return err
	} else if exists {
		return coreerrors.Policy(coreerrors.RejectInvalid, "user-cdp-created",
			"%s already holds a cdp on %s", sender.RegID, pair)
	}
	ratio := types.CalcCollateralRatio(assetAmount, mint, price)
	if ratio < p.StartCollateralRatio {
		return coreerrors.Policy(coreerrors.RejectInvalid, "CDP-collateral-ratio-toosmall",
			"ratio %.2f%% below %.2f%% at price %d", percent(ratio), percent(p.StartCollateralRatio), price)
	}
	if minStake := p.MinStakeBcoins(price); assetAmount < minStake {
		return coreerrors.Policy(coreerrors.RejectInvalid, "total-staked-bcoins-too-small",
			"staked %d below minimum %d at price %d", assetAmount, minStake, price)
	}
	cdp := types.NewUserCDP(ctx.TxID, sender.RegID, ctx.Height, pair, assetAmount, mint)
	if err := e.state.NewCDP(cdp); err != nil {
		return coreerrors.Policy(coreerrors.UpdateCdpFail, "save-new-cdp-failed", "%v", err)
	}
	e.emitUpdated(events.TypeCDPOpened, ctx, cdp)
	e.log().Info("cdp opened", "cdpid", cdp.ID.Hex(), "owner", cdp.Owner.String(), "pair", pair.String(),
		"staked", assetAmount, "owed", mint, "price", price)
	return nil
}

func (e *Engine) addStake(ctx TxContext, sys params.SysParams, p params.CdpParams, sender *types.Account,
	payload types.CDPStakePayload, price uint64) error {
	cdp, err := e.loadCDP(payload.CdpID)
	if err != nil {
		return err
	}
	assetSymbol := payload.AssetsToStake[0].Symbol
	assetAmount := payload.AssetsToStake[0].Amount
	if assetSymbol != cdp.BcoinSymbol {
		return coreerrors.Invalid(coreerrors.RejectInvalid, "invalid-asset-symbol",
			"asset %s does not match cdp bcoin %s", assetSymbol, cdp.BcoinSymbol)
	}
	if sender.RegID.IsEmpty() || sender.RegID != cdp.Owner {
		return coreerrors.Invalid(coreerrors.RejectInvalid, "permission-denied",
			"cdp %s owned by %s, not %s", cdp.ID.Hex(), cdp.Owner, sender.RegID)
	}
	if ctx.Height < cdp.BlockHeight {
		return coreerrors.Invalid(coreerrors.UpdateAccountFail, "height-error",
			"height %d before cdp height %d", ctx.Height, cdp.BlockHeight)
	}
	interest, err := e.interest(sys, p, cdp, ctx.Height)
	if err != nil {
		return err
	}

	newMint := payload.ScoinsToMint
	if sys.FeatureForkVersion(ctx.Height) >= params.MajorVerR3 {
		if free := ledger.GetBalance(sender, cdp.ScoinSymbol, types.BalanceFree); interest > free {
			shortfall := interest - free
			if err := ledger.OperateBalance(sender, cdp.ScoinSymbol, types.OpAddFree, shortfall,
				types.ReceiptCdpMintedScoinToOwner, ctx.Receipts, nil); err != nil {
				return err
			}
			e.log().Debug("minted scoins for interest", "cdpid", cdp.ID.Hex(), "amount", shortfall)
			newMint += shortfall
		}
	}

	partial := types.CalcCollateralRatio(assetAmount, newMint, price)
	total := types.CalcCollateralRatio(cdp.TotalStakedBcoins+assetAmount, cdp.TotalOwedScoins+newMint, price)
	if partial < p.StartCollateralRatio && total < p.StartCollateralRatio {
		return coreerrors.Policy(coreerrors.RejectInvalid, "CDP-collateral-ratio-toosmall",
			"partial %.2f%% and total %.2f%% below %.2f%% at price %d",
			percent(partial), percent(total), percent(p.StartCollateralRatio), price)
	}
	if err := e.SellInterestForFcoins(ctx, sys, cdp, sender, ctx.TxID, interest); err != nil {
		return err
	}
	cdp.AddStake(ctx.Height, assetAmount, payload.ScoinsToMint)
	if err := e.state.UpdateCDP(cdp); err != nil {
		return coreerrors.Policy(coreerrors.UpdateCdpFail, "save-changed-cdp-failed", "%v", err)
	}
	e.emitUpdated(events.TypeCDPStaked, ctx, cdp)
	return nil
}

func percent(ratio uint64) float64 {
	return 100.0 * float64(ratio) / float64(types.RatioBoost)
}
