package core

import (
	"encoding/binary"

	coreerrors "cdpledger/core/errors"
	"cdpledger/core/events"
	"cdpledger/core/ledger"
	"cdpledger/core/state"
	"cdpledger/core/types"
	"cdpledger/native/cdp"
	nativecommon "cdpledger/native/common"
	"cdpledger/native/dex"
	"cdpledger/native/params"
	"cdpledger/observability"
	"cdpledger/observability/logging"
)

const moduleTransfer = "transfer"

func checkTransfers(payload types.CoinTransferPayload) error {
	if len(payload.Transfers) == 0 {
		return coreerrors.Invalid(coreerrors.RejectInvalid, "invalid-transfers", "transfer list is empty")
	}
	for i, transfer := range payload.Transfers {
		if transfer.To.IsEmpty() {
			return coreerrors.Invalid(coreerrors.RejectInvalid, "invalid-toUid", "transfer %d has no destination", i)
		}
		switch transfer.Symbol {
		case types.SymbolWICC, types.SymbolWGRT, types.SymbolWUSD:
		default:
			return coreerrors.Invalid(coreerrors.RejectInvalid, "invalid-coin-symbol", "transfer %d: %q", i, transfer.Symbol)
		}
		if transfer.Amount == 0 {
			return coreerrors.Invalid(coreerrors.RejectDust, "invalid-coin-amount", "transfer %d is dust", i)
		}
		if !types.CheckBaseCoinRange(transfer.Amount) {
			return coreerrors.Invalid(coreerrors.RejectInvalid, "invalid-coin-amount", "transfer %d: %d out of range", i, transfer.Amount)
		}
	}
	return nil
}

// frictionOrderSuffix follows the txid in the id of the system order that
// sells the friction fee of transfer i.
func frictionOrderSuffix(i int) []byte {
	return binary.LittleEndian.AppendUint32([]byte(types.SymbolWUSD), uint32(i))
}

// frictionFee is the share of a stable coin transfer paid to the risk
// reserve.
func frictionFee(amount, ratio uint64) uint64 {
	return uint64(float64(amount) * float64(ratio) / float64(types.RatioBoost))
}

// applyCoinTransfer moves each listed amount from the sender. Stable coin
// transfers pay a friction fee to the risk reserve, which freezes it behind
// a system order buying fund coins.
func (l *Ledger) applyCoinTransfer(cache *state.Cache, cctx cdp.TxContext, tx *types.Transaction,
	sender *types.Account, payload types.CoinTransferPayload) error {
	if err := nativecommon.Guard(l.pauseView(cache), moduleTransfer); err != nil {
		return err
	}
	if err := checkTransfers(payload); err != nil {
		return err
	}
	sys, err := params.NewStore(cache).SysParams()
	if err != nil {
		return coreerrors.MissingData(coreerrors.ReadSysParamFail, "read-sysparam-error", "%v", err)
	}
	_, senderIsPubKey := tx.Sender.PubKey()

	for i, transfer := range payload.Transfers {
		actual := transfer.Amount
		var fee uint64
		if transfer.Symbol == types.SymbolWUSD {
			fee = frictionFee(transfer.Amount, sys.TransferScoinFrictionFeeRatio)
			actual -= fee
			if fee > 0 {
				if err := l.payFrictionFee(cache, cctx, sys, sender, fee, i); err != nil {
					return err
				}
			}
		}

		dest, ok, err := cache.AccountByUID(transfer.To)
		if err != nil {
			return coreerrors.MissingData(coreerrors.ReadAccountFail, "read-account-failed", "%v", err)
		}
		if !ok {
			return coreerrors.MissingData(coreerrors.ReadAccountFail, "account-not-exist",
				"destination %s of transfer %d", transfer.To, i)
		}
		if pub, isPubKey := transfer.To.PubKey(); isPubKey && !senderIsPubKey &&
			len(payload.Transfers) == 1 && !dest.IsRegistered() {
			if err := l.registerAccount(cache, dest, pub, cctx.Cord()); err != nil {
				return err
			}
		}

		if err := ledger.OperateBalance(sender, transfer.Symbol, types.OpSubFree, actual,
			types.ReceiptTransferActualCoins, cctx.Receipts, dest); err != nil {
			return coreerrors.Insufficient(coreerrors.UpdateAccountFail, "transfer-coin-failed",
				"transfer %d of %d %s: %v", i, actual, transfer.Symbol, err)
		}

		observability.Events().RecordTransfer(transfer.Symbol)
		observability.Events().RecordFrictionFee(transfer.Symbol, fee)
		l.emitter.Emit(events.Transfer{
			Symbol:      transfer.Symbol,
			From:        sender.KeyID,
			To:          dest.KeyID,
			Amount:      actual,
			FrictionFee: fee,
			TxID:        cctx.TxID,
		})
	}
	return nil
}

func (l *Ledger) payFrictionFee(cache *state.Cache, cctx cdp.TxContext, sys params.SysParams,
	sender *types.Account, fee uint64, i int) error {
	reserve, err := cdp.RiskReserve(cache, sys)
	if err != nil {
		return err
	}
	if err := ledger.OperateBalance(sender, types.SymbolWUSD, types.OpSubFree, fee,
		types.ReceiptTransferFrictionFee, cctx.Receipts, reserve); err != nil {
		return coreerrors.Insufficient(coreerrors.UpdateAccountFail, "transfer-risk-fee-failed", "%v", err)
	}
	if err := ledger.OperateBalance(reserve, types.SymbolWUSD, types.OpFreeze, fee,
		types.ReceiptTransferFrictionBuyFcoins, cctx.Receipts, nil); err != nil {
		return coreerrors.Insufficient(coreerrors.UpdateAccountFail, "operate-fcoin-genesis-account-failed", "%v", err)
	}
	id := dex.OrderID(cctx.TxID.Bytes(), frictionOrderSuffix(i))
	order := dex.NewBuyMarketOrder(cctx.Cord(), types.SymbolWUSD, types.SymbolWGRT, fee, dex.TagTransferFriction, cctx.TxID)
	if err := dex.CreateActiveOrder(cache, id, order, reserve); err != nil {
		return coreerrors.Invalid(coreerrors.CreateSysOrderFailed, "create-sys-order-failed", "%v", err)
	}
	return nil
}

// applyAccountRegister binds the sender's public key to a registration id
// derived from the transaction coordinate.
func (l *Ledger) applyAccountRegister(cache *state.Cache, cctx cdp.TxContext, tx *types.Transaction,
	sender *types.Account, payload types.AccountRegisterPayload) error {
	pub, ok := tx.Sender.PubKey()
	if !ok {
		return coreerrors.Invalid(coreerrors.RejectInvalid, "uid-must-be-pubkey", "sender %s", tx.Sender)
	}
	if !payload.OwnerPubKey.IsValid() || string(payload.OwnerPubKey) != string(pub) {
		return coreerrors.Invalid(coreerrors.RejectInvalid, "bad-owner-pubkey", "owner key does not match sender")
	}
	if len(payload.MinerPubKey) > 0 && !payload.MinerPubKey.IsValid() {
		return coreerrors.Invalid(coreerrors.RejectInvalid, "bad-miner-pubkey", "miner key %s", payload.MinerPubKey)
	}
	if sender.IsRegistered() {
		return coreerrors.Policy(coreerrors.RejectInvalid, "duplicate-register-account",
			"%s already registered as %s", sender.KeyID, sender.RegID)
	}
	if err := l.registerAccount(cache, sender, pub, cctx.Cord()); err != nil {
		return err
	}
	if len(payload.MinerPubKey) > 0 {
		sender.MinerPubKey = append(types.PubKey(nil), payload.MinerPubKey...)
	}
	l.logger.Info("account registered", "regid", sender.RegID.String(), "height", cctx.Height,
		logging.MaskField("pubkey", pub.String()))
	return nil
}
