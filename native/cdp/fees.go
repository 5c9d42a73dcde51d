package cdp

import (
	"github.com/ethereum/go-ethereum/common"

	coreerrors "cdpledger/core/errors"
	"cdpledger/core/ledger"
	"cdpledger/core/types"
	"cdpledger/native/dex"
	"cdpledger/native/params"
)

func (e *Engine) interest(sys params.SysParams, p params.CdpParams, cdp *types.UserCDP, height uint64) (uint64, error) {
	interest, err := InterestOverRange(sys, p, cdp.TotalOwedScoins, cdp.BlockHeight, height)
	if err != nil {
		return 0, coreerrors.MissingData(coreerrors.RejectInvalid, "get-cdp-interest-param-changes-error",
			"%s: %v", cdp.CoinPair(), err)
	}
	e.log().Debug("cdp interest", "cdpid", cdp.ID.Hex(), "begin", cdp.BlockHeight, "end", height,
		"owed", cdp.TotalOwedScoins, "interest", interest)
	return interest, nil
}

// SellInterestForFcoins moves interest stable coins from payer to the risk
// reserve and places a system order buying fund coins with them, which are
// burned on settlement.
func (e *Engine) SellInterestForFcoins(ctx TxContext, sys params.SysParams, cdp *types.UserCDP,
	payer *types.Account, orderID common.Hash, interest uint64) error {
	if interest == 0 {
		return nil
	}
	reserve, err := RiskReserve(e.state, sys)
	if err != nil {
		return err
	}
	if err := ledger.OperateBalance(payer, cdp.ScoinSymbol, types.OpSubFree, interest,
		types.ReceiptCdpRepayInterestToFund, ctx.Receipts, reserve); err != nil {
		return coreerrors.Insufficient(coreerrors.UpdateAccountFail, "deduct-interest-error",
			"deduct-interest(%d)-error: %v", interest, err)
	}
	if err := ledger.OperateBalance(reserve, types.SymbolWUSD, types.OpFreeze, interest,
		types.ReceiptCdpInterestBuyDeflateFcoins, ctx.Receipts, nil); err != nil {
		return coreerrors.Insufficient(coreerrors.UpdateAccountFail, "fcoin-genesis-account-insufficient", "%v", err)
	}
	order := dex.NewBuyMarketOrder(ctx.Cord(), cdp.ScoinSymbol, types.SymbolWGRT, interest, dex.TagCdpInterest, cdp.ID)
	if err := dex.CreateActiveOrder(e.state, orderID, order, reserve); err != nil {
		return coreerrors.Invalid(coreerrors.CreateSysOrderFailed, "create-sys-order-failed", "%v", err)
	}
	return nil
}

// ProcessPenaltyFees pays a liquidation penalty into the risk reserve. From
// fork R3 on, or when the fee exceeds the minimum, half of it (rounded up)
// is frozen and spent on a system order buying fund coins.
func (e *Engine) ProcessPenaltyFees(ctx TxContext, sys params.SysParams, cdp *types.UserCDP, fee uint64) error {
	if fee == 0 {
		return nil
	}
	reserve, err := RiskReserve(e.state, sys)
	if err != nil {
		return err
	}
	if err := ledger.OperateBalance(reserve, cdp.ScoinSymbol, types.OpAddFree, fee,
		types.ReceiptCdpPenaltyToReserve, ctx.Receipts, nil); err != nil {
		return coreerrors.Policy(coreerrors.UpdateAccountFail, "add-scoins-to-fcoin-genesis-account-failed", "%v", err)
	}
	if sys.FeatureForkVersion(ctx.Height) < params.MajorVerR3 && fee <= sys.CDPSysOrderPenaltyFeeMin {
		return nil
	}
	half := fee / 2
	left := fee - half
	if err := ledger.OperateBalance(reserve, cdp.ScoinSymbol, types.OpFreeze, left,
		types.ReceiptCdpPenaltyBuyDeflateFcoins, ctx.Receipts, nil); err != nil {
		return coreerrors.Insufficient(coreerrors.UpdateAccountFail, "operate-fcoin-genesis-account-failed", "%v", err)
	}
	order := dex.NewBuyMarketOrder(ctx.Cord(), cdp.ScoinSymbol, types.SymbolWGRT, left, dex.TagCdpPenalty, cdp.ID)
	if err := dex.CreateActiveOrder(e.state, ctx.TxID, order, reserve); err != nil {
		return coreerrors.Invalid(coreerrors.CreateSysOrderFailed, "create-sys-order-failed", "%v", err)
	}
	return nil
}
