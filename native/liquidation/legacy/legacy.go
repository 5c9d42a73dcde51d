// Package legacy replays the forced liquidation algorithm that ran on the
// test network below height LastHeight for the WICC/WUSD market.
//
// The package is frozen. Historical test network blocks replay through it
// bit for bit, so its behavior must not change and new logic must not be
// built on it. It shares nothing with the current algorithm except the
// balance primitive and the system order book.
package legacy

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/ethereum/go-ethereum/common"

	coreerrors "cdpledger/core/errors"
	"cdpledger/core/ledger"
	"cdpledger/core/types"
	"cdpledger/native/dex"
)

// LastHeight is the first test network height that no longer uses this
// algorithm.
const LastHeight = 1_800_000

// State is the state capability used by the legacy batch.
type State interface {
	dex.Store
	AccountByUID(uid types.UserID) (*types.Account, bool, error)
	EraseCDP(id common.Hash) error
}

// Batch carries the inputs of one legacy liquidation run.
type Batch struct {
	Cord       types.TxCord
	TxID       common.Hash
	BcoinPrice uint64
	FcoinPrice uint64
	// Limit caps the positions visited; Result.Count may exceed it by one.
	Limit    uint64
	Reserve  *types.Account
	Receipts *types.Receipts
	// Closed, when set, is called for each erased position.
	Closed func(cdp *types.UserCDP)
	Logger *slog.Logger
}

// Result summarizes a legacy run.
type Result struct {
	Count          uint64
	Liquidated     int
	FcoinsInflated uint64
}

// Liquidate closes the listed positions against the risk reserve. Positions
// the reserve cannot cover are skipped rather than ending the batch, and the
// reserve is debited once, for the total debt closed, at the end.
func Liquidate(state State, batch Batch, cdps []*types.UserCDP) (Result, error) {
	var res Result
	logger := batch.Logger
	if logger == nil {
		logger = slog.Default()
	}
	reserve := batch.Reserve
	currReserve := ledger.GetBalance(reserve, types.SymbolWUSD, types.BalanceFree)
	var orderIndex uint64

	for _, cdp := range ordered(cdps) {
		res.Count++
		if res.Count > batch.Limit {
			logger.Debug("legacy force liquidation reached limit", "count", res.Count, "limit", batch.Limit)
			break
		}
		if currReserve < cdp.TotalOwedScoins {
			logger.Debug("legacy reserve short, skipping", "cdpid", cdp.ID.Hex(),
				"reserve", currReserve, "owed", cdp.TotalOwedScoins)
			continue
		}
		owner, ok, err := state.AccountByUID(types.RegIDUser(cdp.Owner))
		if err != nil {
			return res, err
		}
		if !ok {
			return res, coreerrors.MissingData(coreerrors.ReadAccountFail, "read-cdp-owner-account-failed",
				"owner %s of cdp %s not found", cdp.Owner, cdp.ID.Hex())
		}

		code := types.ReceiptCdpTotalAssetToReserve
		if err := ledger.OperateBalance(owner, cdp.BcoinSymbol, types.OpUnpledge, cdp.TotalStakedBcoins,
			code, batch.Receipts, nil); err != nil {
			return res, coreerrors.Insufficient(coreerrors.UpdateAccountFail, "unpledge-bcoins-failed", "%v", err)
		}
		if err := ledger.OperateBalance(owner, cdp.BcoinSymbol, types.OpSubFree, cdp.TotalStakedBcoins,
			code, batch.Receipts, reserve); err != nil {
			return res, coreerrors.Insufficient(coreerrors.UpdateAccountFail,
				"transfer-forced-liquidate-assets-failed", "%v", err)
		}
		bcoinOrderID := orderID(batch.TxID, orderIndex)
		orderIndex++
		if err := sell(state, batch, cdp.ID, types.SymbolWICC, cdp.TotalStakedBcoins, bcoinOrderID, code); err != nil {
			return res, err
		}

		value := types.ValueInScoin(cdp.TotalStakedBcoins, batch.BcoinPrice)
		if value < cdp.TotalOwedScoins {
			fcoins := uint64(float64(cdp.TotalOwedScoins-value) * float64(types.PriceBoost) / float64(batch.FcoinPrice))
			inflateCode := types.ReceiptCdpTotalInflateFcoinToReserve
			if err := ledger.OperateBalance(reserve, types.SymbolWGRT, types.OpAddFree, fcoins,
				inflateCode, batch.Receipts, nil); err != nil {
				return res, coreerrors.Policy(coreerrors.UpdateAccountFail, "operate-fcoin-genesis-account-failed", "%v", err)
			}
			fcoinOrderID := orderID(batch.TxID, orderIndex)
			orderIndex++
			if err := sell(state, batch, cdp.ID, types.SymbolWGRT, fcoins, fcoinOrderID, inflateCode); err != nil {
				return res, err
			}
			res.FcoinsInflated += fcoins
		}

		if err := state.EraseCDP(cdp.ID); err != nil {
			return res, coreerrors.Policy(coreerrors.UpdateCdpFail, "erase-cdp-failed", "%v", err)
		}
		if batch.Closed != nil {
			batch.Closed(cdp)
		}
		res.Liquidated++
		logger.Info("legacy force liquidated cdp", "cdpid", cdp.ID.Hex(), "owed", cdp.TotalOwedScoins,
			"staked", cdp.TotalStakedBcoins, "reserve", currReserve-cdp.TotalOwedScoins)
		currReserve -= cdp.TotalOwedScoins
	}

	prev := ledger.GetBalance(reserve, types.SymbolWUSD, types.BalanceFree)
	if prev < currReserve {
		return res, fmt.Errorf("legacy liquidation: reserve free %d below tracked %d", prev, currReserve)
	}
	if err := ledger.OperateBalance(reserve, types.SymbolWUSD, types.OpSubFree, prev-currReserve,
		types.ReceiptCdpTotalInflateFcoinToReserve, batch.Receipts, nil); err != nil {
		return res, coreerrors.Insufficient(coreerrors.UpdateAccountFail, "operate-fcoin-genesis-account-failed", "%v", err)
	}
	return res, nil
}

// ordered sorts by ratio base, owner and id, dropping repeated ids.
func ordered(cdps []*types.UserCDP) []*types.UserCDP {
	seen := make(map[common.Hash]struct{}, len(cdps))
	out := make([]*types.UserCDP, 0, len(cdps))
	for _, cdp := range cdps {
		if _, dup := seen[cdp.ID]; dup {
			continue
		}
		seen[cdp.ID] = struct{}{}
		out = append(out, cdp)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if cmp := types.CompareRatioBase(out[i], out[j]); cmp != 0 {
			return cmp < 0
		}
		if out[i].Owner != out[j].Owner {
			return out[i].Owner.Less(out[j].Owner)
		}
		return out[i].ID.Cmp(out[j].ID) < 0
	})
	return out
}

func orderID(txid common.Hash, index uint64) common.Hash {
	return dex.OrderID(txid.Bytes(), dex.IndexBytes(index))
}

func sell(state State, batch Batch, cdpID common.Hash, asset string, amount uint64,
	id common.Hash, code types.ReceiptCode) error {
	if err := ledger.OperateBalance(batch.Reserve, asset, types.OpFreeze, amount, code, batch.Receipts, nil); err != nil {
		return coreerrors.Insufficient(coreerrors.UpdateAccountFail, "account-insufficient", "%v", err)
	}
	order := dex.NewSellMarketOrder(batch.Cord, types.SymbolWUSD, asset, amount, dex.TagCdpAsset, cdpID)
	if err := dex.CreateActiveOrder(state, id, order, batch.Reserve); err != nil {
		return coreerrors.Invalid(coreerrors.CreateSysOrderFailed, "create-sys-order-failed", "%v", err)
	}
	return nil
}
