package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	coreerrors "cdpledger/core/errors"
	"cdpledger/core/events"
	"cdpledger/core/ledger"
	"cdpledger/core/state"
	"cdpledger/core/types"
	"cdpledger/native/cdp"
	"cdpledger/observability"
)

// ExecuteBlock applies every transaction of block in order and commits the
// resulting state. Any failing transaction invalidates the block: nothing is
// committed and the error names the offending transaction. A zero state root
// in the header is filled in; a non-zero one must match the computed root.
func (l *Ledger) ExecuteBlock(ctx context.Context, block *types.Block) (common.Hash, error) {
	if block == nil || block.Header == nil {
		return common.Hash{}, errNilBlock
	}
	header := block.Header
	ctx, span := l.tracer.Start(ctx, "ledger.ExecuteBlock", trace.WithAttributes(
		attribute.Int64("block.height", int64(header.Height)),
		attribute.Int("block.txs", len(block.Transactions)),
	))
	defer span.End()

	start := time.Now()
	root, err := l.executeBlock(ctx, block)
	observability.BlockMetrics().Observe(len(block.Transactions), time.Since(start), err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		l.logger.Warn("block rejected", "height", header.Height, "error", err)
		l.emitter.Emit(events.BlockRejected{Height: header.Height, Reason: coreerrors.ReasonOf(err), Err: err.Error()})
		return common.Hash{}, err
	}
	span.SetAttributes(attribute.String("block.state_root", root.Hex()))
	return root, nil
}

func (l *Ledger) executeBlock(_ context.Context, block *types.Block) (common.Hash, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	header := block.Header
	if err := l.chain.CheckLink(header); err != nil {
		return common.Hash{}, err
	}
	txRoot, err := ComputeTxRoot(block.Transactions)
	if err != nil {
		return common.Hash{}, err
	}
	if txRoot != header.TxRoot {
		return common.Hash{}, fmt.Errorf("%w: header %s, computed %s", errTxRootMismatch, header.TxRoot.Hex(), txRoot.Hex())
	}

	blockCache := l.state.NewCache()
	for i, tx := range block.Transactions {
		if _, err := l.ExecuteFullTx(blockCache, header, uint32(i), tx); err != nil {
			blockCache.Discard()
			return common.Hash{}, fmt.Errorf("tx %d (%s) %s: %w", i, tx.Hash().Hex(), tx.Type, err)
		}
	}

	parentRoot := l.state.Root()
	if err := blockCache.Commit(); err != nil {
		_ = l.state.Reset(parentRoot)
		return common.Hash{}, fmt.Errorf("ledger: commit block cache: %w", err)
	}
	pending := l.state.Hash()
	if header.StateRoot == (common.Hash{}) {
		header.StateRoot = pending
	} else if header.StateRoot != pending {
		if err := l.state.Reset(parentRoot); err != nil {
			return common.Hash{}, fmt.Errorf("ledger: reset after root mismatch: %w", err)
		}
		return common.Hash{}, fmt.Errorf("%w: header %s, computed %s", errStateRoot, header.StateRoot.Hex(), pending.Hex())
	}
	root, err := l.state.Commit(header.Height)
	if err != nil {
		_ = l.state.Reset(parentRoot)
		return common.Hash{}, fmt.Errorf("ledger: commit state: %w", err)
	}
	if err := l.chain.AddBlock(block); err != nil {
		return common.Hash{}, err
	}

	hash, err := header.Hash()
	if err != nil {
		return common.Hash{}, err
	}
	l.metrics.SetBlockHeight(header.Height)
	l.emitter.Emit(events.BlockExecuted{
		Height:    header.Height,
		Hash:      hash,
		StateRoot: root,
		TxCount:   len(block.Transactions),
	})
	l.logger.Info("block executed", "height", header.Height, "txs", len(block.Transactions),
		"stateRoot", root.Hex())
	return root, nil
}

// ExecuteFullTx runs tx at position index of the block described by header
// against cache. The transaction works on its own overlay: the sender is
// loaded (and registered on first use by public key), the fee is burned and
// the type handler runs. Only a successful transaction reaches cache, along
// with its receipts. The caller holds the ledger lock.
func (l *Ledger) ExecuteFullTx(cache *state.Cache, header *types.BlockHeader, index uint32, tx *types.Transaction) (types.Receipts, error) {
	if tx == nil {
		return nil, coreerrors.Invalid(coreerrors.RejectInvalid, "bad-tx", "nil transaction")
	}
	txid := tx.Hash()
	txCache := cache.NewCache()
	var receipts types.Receipts
	cctx := cdp.TxContext{
		Height:    header.Height,
		Index:     index,
		TxID:      txid,
		BlockTime: header.Timestamp,
		Receipts:  &receipts,
	}

	err := l.runTx(txCache, header, cctx, tx)
	kind := tx.Type.String()
	if err != nil {
		txCache.Discard()
		l.metrics.ObserveReject(kind, string(coreerrors.CodeOf(err)))
		l.logger.Debug("transaction rejected", "txid", txid.Hex(), "type", kind, "height", header.Height,
			"reason", coreerrors.ReasonOf(err), "error", err)
		return nil, err
	}
	if len(receipts) > 0 {
		if err := txCache.StageReceipts(txid, receipts); err != nil {
			txCache.Discard()
			return nil, fmt.Errorf("ledger: stage receipts: %w", err)
		}
	}
	if err := txCache.Commit(); err != nil {
		return nil, fmt.Errorf("ledger: commit tx cache: %w", err)
	}
	l.metrics.ObserveTx(kind)
	return receipts, nil
}

func (l *Ledger) runTx(cache *state.Cache, header *types.BlockHeader, cctx cdp.TxContext, tx *types.Transaction) error {
	if !tx.Type.IsSystem() {
		if err := checkBaseTx(tx); err != nil {
			return err
		}
	}

	var sender *types.Account
	if needsSender(tx.Type) {
		acct, err := l.loadSender(cache, cctx, tx)
		if err != nil {
			return err
		}
		sender = acct
		if tx.Type != types.TxTypeBlockReward && tx.Fee > 0 {
			if err := ledger.OperateBalance(sender, tx.FeeSymbol, types.OpSubFree, tx.Fee,
				types.ReceiptTxFee, cctx.Receipts, nil); err != nil {
				return coreerrors.Insufficient(coreerrors.UpdateAccountFail, "sub-account-fees-failed",
					"%s: %v", sender.KeyID, err)
			}
		}
	}
	return l.dispatch(cache, header, cctx, tx, sender)
}

// needsSender reports whether the transaction acts on a sender account.
// Price medians and interest settlement are issued on behalf of the chain.
func needsSender(t types.TxType) bool {
	return t != types.TxTypePriceMedian && t != types.TxTypeCDPInterestSettle
}

// checkBaseTx validates the envelope fields shared by user transactions.
func checkBaseTx(tx *types.Transaction) error {
	if tx.Sender.IsEmpty() {
		return coreerrors.Invalid(coreerrors.RejectInvalid, "bad-tx-sender", "empty sender")
	}
	switch tx.FeeSymbol {
	case types.SymbolWICC, types.SymbolWUSD:
	default:
		return coreerrors.Invalid(coreerrors.RejectInvalid, "bad-tx-fee-symbol", "fee symbol %q not allowed", tx.FeeSymbol)
	}
	if !types.CheckBaseCoinRange(tx.Fee) {
		return coreerrors.Invalid(coreerrors.RejectInvalid, "bad-tx-fee-toolarge", "fee %d out of range", tx.Fee)
	}
	return nil
}

// loadSender resolves the sender account, assigning a registration id from
// the transaction coordinate when an unregistered public key sends for the
// first time.
func (l *Ledger) loadSender(cache *state.Cache, cctx cdp.TxContext, tx *types.Transaction) (*types.Account, error) {
	keyID, ok, err := tx.Sender.ResolvesToKeyID(cache)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, coreerrors.Invalid(coreerrors.RejectInvalid, "account-not-exist", "sender %s unresolved", tx.Sender)
	}
	sender, existed, err := cache.Account(keyID)
	if err != nil {
		return nil, coreerrors.MissingData(coreerrors.ReadAccountFail, "read-account-failed", "%s: %v", keyID, err)
	}
	if !existed {
		return nil, coreerrors.Invalid(coreerrors.RejectInvalid, "account-not-exist", "sender %s", keyID)
	}
	pub, isPubKey := tx.Sender.PubKey()
	if isPubKey && !sender.IsRegistered() && tx.Type != types.TxTypeAccountRegister {
		if err := l.registerAccount(cache, sender, pub, cctx.Cord()); err != nil {
			return nil, err
		}
	}
	return sender, nil
}

// registerAccount assigns the registration id of cord and binds pub as the
// owner key.
func (l *Ledger) registerAccount(cache *state.Cache, acct *types.Account, pub types.PubKey, cord types.TxCord) error {
	regID := types.RegID{Height: uint32(cord.Height), Index: uint16(cord.Index)}
	if err := cache.SetRegID(acct, regID); err != nil {
		return coreerrors.Policy(coreerrors.WriteAccountFail, "save-account-regid-failed", "%s: %v", acct.KeyID, err)
	}
	acct.OwnerPubKey = append(types.PubKey(nil), pub...)
	observability.Events().RecordRegistration()
	l.emitter.Emit(events.AccountRegistered{KeyID: acct.KeyID, RegID: regID})
	return nil
}

func (l *Ledger) dispatch(cache *state.Cache, header *types.BlockHeader, cctx cdp.TxContext,
	tx *types.Transaction, sender *types.Account) error {
	switch tx.Type {
	case types.TxTypeCoinTransfer:
		var payload types.CoinTransferPayload
		if err := decode(tx, &payload); err != nil {
			return err
		}
		return l.applyCoinTransfer(cache, cctx, tx, sender, payload)
	case types.TxTypeAccountRegister:
		var payload types.AccountRegisterPayload
		if err := decode(tx, &payload); err != nil {
			return err
		}
		return l.applyAccountRegister(cache, cctx, tx, sender, payload)
	case types.TxTypeDelegateVote:
		var payload types.DelegateVotePayload
		if err := decode(tx, &payload); err != nil {
			return err
		}
		return l.applyDelegateVote(cache, cctx, sender, payload)
	case types.TxTypePriceFeed:
		var payload types.PriceFeedPayload
		if err := decode(tx, &payload); err != nil {
			return err
		}
		return l.applyPriceFeed(cache, cctx, sender, payload)
	case types.TxTypePriceMedian:
		var payload types.PriceMedianPayload
		if err := decode(tx, &payload); err != nil {
			return err
		}
		return l.applyPriceMedian(cache, cctx, payload)
	case types.TxTypeCDPStake:
		var payload types.CDPStakePayload
		if err := decode(tx, &payload); err != nil {
			return err
		}
		return l.newCdpEngine(cache).Stake(cctx, sender, payload)
	case types.TxTypeCDPRedeem:
		var payload types.CDPRedeemPayload
		if err := decode(tx, &payload); err != nil {
			return err
		}
		return l.newCdpEngine(cache).Redeem(cctx, sender, payload)
	case types.TxTypeCDPLiquidate:
		var payload types.CDPLiquidatePayload
		if err := decode(tx, &payload); err != nil {
			return err
		}
		return l.newCdpEngine(cache).Liquidate(cctx, sender, payload)
	case types.TxTypeCDPInterestSettle:
		var payload types.CDPInterestSettlePayload
		if err := decode(tx, &payload); err != nil {
			return err
		}
		return l.newCdpEngine(cache).InterestForceSettle(cctx, tx.Sender, payload)
	case types.TxTypeBlockReward:
		var payload types.BlockRewardPayload
		if err := decode(tx, &payload); err != nil {
			return err
		}
		return l.applyBlockReward(cache, header, cctx, sender, payload)
	default:
		return coreerrors.Invalid(coreerrors.RejectInvalid, "unsupported-tx-type", "%s", tx.Type)
	}
}

func decode(tx *types.Transaction, out any) error {
	if err := tx.DecodePayload(out); err != nil {
		return coreerrors.Invalid(coreerrors.RejectInvalid, "bad-tx-payload", "%v", err)
	}
	return nil
}

// isReject reports whether err already carries a reject code.
func isReject(err error) bool {
	var reject *coreerrors.Reject
	return errors.As(err, &reject)
}
