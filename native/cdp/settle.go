package cdp

import (
	"github.com/ethereum/go-ethereum/common"

	coreerrors "cdpledger/core/errors"
	"cdpledger/core/events"
	"cdpledger/core/ledger"
	"cdpledger/core/types"
	"cdpledger/native/dex"
	"cdpledger/native/oracle"
)

// InterestForceSettle rolls the accrued interest of every listed position
// into its debt. The transaction is produced by block assembly and carries
// no sender.
func (e *Engine) InterestForceSettle(ctx TxContext, sender types.UserID, payload types.CDPInterestSettlePayload) error {
	if err := e.ready(); err != nil {
		return err
	}
	sys, err := e.sysParams()
	if err != nil {
		return err
	}
	if n := len(payload.CdpIDs); n == 0 || n > int(sys.CDPSettleInterestMaxCount) {
		return coreerrors.Invalid(coreerrors.RejectInvalid, "invalid-cdp-list-size",
			"cdp list size %d out of range [1, %d]", n, sys.CDPSettleInterestMaxCount)
	}
	if !sender.IsEmpty() {
		return coreerrors.Invalid(coreerrors.RejectInvalid, "invalid-txUid", "settlement sender must be empty")
	}

	seen := make(map[common.Hash]struct{}, len(payload.CdpIDs))
	for _, id := range payload.CdpIDs {
		if _, dup := seen[id]; dup {
			return coreerrors.Invalid(coreerrors.RejectInvalid, "duplicated-cdp", "cdp %s listed twice", id.Hex())
		}
		seen[id] = struct{}{}

		cdp, err := e.loadCDP(id)
		if err != nil {
			return err
		}
		pair := cdp.CoinPair()
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
		if !NeedSettleInterest(sys, cdp.BlockHeight, ctx.Height, p.InterestSettleCycleDays) {
			return coreerrors.Policy(coreerrors.UpdateAccountFail, "not-reach-sttlement-cycle",
				"cdp %s settled at %d, height %d, cycle %d days", id.Hex(), cdp.BlockHeight, ctx.Height, p.InterestSettleCycleDays)
		}
		owner, err := e.ownerAccount(cdp)
		if err != nil {
			return err
		}
		interest, err := e.interest(sys, p, cdp, ctx.Height)
		if err != nil {
			return err
		}
		if err := ledger.OperateBalance(owner, cdp.ScoinSymbol, types.OpAddFree, interest,
			types.ReceiptCdpMintedScoinToOwner, ctx.Receipts, nil); err != nil {
			return err
		}
		orderID := dex.OrderID(ctx.TxID.Bytes(), id.Bytes())
		if err := e.SellInterestForFcoins(ctx, sys, cdp, owner, orderID, interest); err != nil {
			return err
		}
		cdp.AddStake(ctx.Height, 0, interest)
		if err := e.state.UpdateCDP(cdp); err != nil {
			return coreerrors.Policy(coreerrors.UpdateCdpFail, "save-changed-cdp-failed", "%v", err)
		}
		e.emitUpdated(events.TypeCDPInterestSettled, ctx, cdp)
		e.log().Info("cdp interest settled", "cdpid", id.Hex(), "interest", interest, "owed", cdp.TotalOwedScoins)
	}
	return nil
}

// GetSettledInterestCdps lists the positions due for interest settlement at
// height, oldest first within each market, for block assembly. At most
// CDPSettleInterestMaxCount-1 ids are returned.
func (e *Engine) GetSettledInterestCdps(height uint64) ([]common.Hash, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	sys, err := e.sysParams()
	if err != nil {
		return nil, err
	}
	medians, err := oracle.MedianPrices(e.state)
	if err != nil {
		return nil, err
	}
	details, err := CoinPairDetails(e.state, sys, height, medians)
	if err != nil {
		return nil, err
	}
	count := sys.CDPSettleInterestMaxCount
	var out []common.Hash
	for _, detail := range details {
		if count == 0 {
			break
		}
		if !detail.PriceActive {
			continue
		}
		p, err := e.cdpParams(detail.Pair)
		if err != nil {
			return nil, err
		}
		if reached, err := e.floorReached(detail.Pair, detail.BcoinPrice, p.GlobalCollateralFloor); err != nil {
			return nil, err
		} else if reached {
			e.log().Warn("global collateral floor reached, skipping settlement", "pair", detail.Pair.String())
			continue
		}
		list, err := e.state.CdpListByHeight(detail.Pair)
		if err != nil {
			return nil, err
		}
		for _, cdp := range list {
			if !NeedSettleInterest(sys, cdp.BlockHeight, height, p.InterestSettleCycleDays) {
				break
			}
			count--
			if count == 0 {
				break
			}
			out = append(out, cdp.ID)
		}
	}
	return out, nil
}
