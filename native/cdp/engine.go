// Package cdp implements the collateralized debt position transactions:
// staking, redeeming, manual liquidation and interest settlement.
package cdp

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	coreerrors "cdpledger/core/errors"
	"cdpledger/core/events"
	"cdpledger/core/types"
	nativecommon "cdpledger/native/common"
	"cdpledger/native/oracle"
	"cdpledger/native/params"
)

var (
	errNilState     = errors.New("cdp engine: state not configured")
	errNilSender    = errors.New("cdp engine: sender account not loaded")
	errReserveRegID = errors.New("cdp engine: risk reserve regid not configured")
)

const moduleName = "cdp"

type engineState interface {
	oracle.Store
	params.StoreState

	Account(id types.KeyID) (*types.Account, bool, error)
	AccountByUID(uid types.UserID) (*types.Account, bool, error)

	GetCDP(id common.Hash) (*types.UserCDP, bool, error)
	NewCDP(cdp *types.UserCDP) error
	UpdateCDP(cdp *types.UserCDP) error
	EraseCDP(id common.Hash) error
	UserCDPByPair(owner types.RegID, pair types.CdpCoinPair) (common.Hash, bool, error)
	CdpGlobalData(pair types.CdpCoinPair) (*types.CdpGlobalData, error)
	CdpListByHeight(pair types.CdpCoinPair) ([]*types.UserCDP, error)
	CdpBcoin(symbol string) (*types.CdpBcoinDetail, bool, error)
	StageClosedCDP(closed types.ClosedCDP) error
}

// TxContext locates the executing transaction and collects its receipts.
type TxContext struct {
	Height    uint64
	Index     uint32
	TxID      common.Hash
	BlockTime uint64
	Receipts  *types.Receipts
}

// Cord returns the chain coordinate of the transaction.
func (c TxContext) Cord() types.TxCord {
	return types.TxCord{Height: c.Height, Index: c.Index}
}

// Engine executes CDP transactions against a transaction-scoped state cache.
type Engine struct {
	state         engineState
	params        *params.Store
	persistClosed bool
	pauses        nativecommon.PauseView
	emitter       events.Emitter
	logger        *slog.Logger
}

// NewEngine constructs an engine. State must be wired with SetState before
// use.
func NewEngine() *Engine {
	return &Engine{}
}

// SetState wires the engine to the transaction overlay.
func (e *Engine) SetState(state engineState) {
	e.state = state
	e.params = params.NewStore(state)
}

func (e *Engine) SetPauses(p nativecommon.PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
}

// SetEmitter configures where position changes are reported. Nil discards
// them.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if e == nil {
		return
	}
	e.emitter = emitter
}

func (e *Engine) emit(ev events.Event) {
	if e.emitter != nil {
		e.emitter.Emit(ev)
	}
}

func (e *Engine) emitUpdated(kind string, ctx TxContext, cdp *types.UserCDP) {
	e.emit(events.CDPUpdated{Kind: kind, CDP: *cdp, TxID: ctx.TxID, Height: ctx.Height})
}

func (e *Engine) emitClosed(ctx TxContext, cdp *types.UserCDP, closeType types.CdpCloseType) {
	e.emit(events.CDPClosed{CDP: *cdp, CloseType: closeType, TxID: ctx.TxID, Height: ctx.Height})
}

// SetLogger overrides the default logger.
func (e *Engine) SetLogger(logger *slog.Logger) {
	if e == nil {
		return
	}
	e.logger = logger
}

// SetPersistClosedCDP enables the closed position audit index.
func (e *Engine) SetPersistClosedCDP(enabled bool) {
	if e == nil {
		return
	}
	e.persistClosed = enabled
}

func (e *Engine) log() *slog.Logger {
	if e.logger != nil {
		return e.logger.With("component", moduleName)
	}
	return slog.Default().With("component", moduleName)
}

func (e *Engine) ready() error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	return nil
}

func (e *Engine) sysParams() (params.SysParams, error) {
	sys, err := e.params.SysParams()
	if err != nil {
		return params.SysParams{}, coreerrors.MissingData(coreerrors.ReadSysParamFail, "read-sysparam-error", "%v", err)
	}
	return sys, nil
}

func (e *Engine) cdpParams(pair types.CdpCoinPair) (params.CdpParams, error) {
	p, err := e.params.CdpParams(pair)
	if err != nil {
		return params.CdpParams{}, coreerrors.MissingData(coreerrors.ReadSysParamFail, "read-cdp-param-error",
			"%s: %v", pair, err)
	}
	return p, nil
}

// BcoinMedianPrice returns the active median price of the pair's collateral
// in the quote currency of its stable coin.
func (e *Engine) BcoinMedianPrice(height uint64, pair types.CdpCoinPair) (uint64, error) {
	quote := types.QuoteSymbolByScoin(pair.ScoinSymbol)
	if quote == "" {
		return 0, coreerrors.Invalid(coreerrors.RejectInvalid, "get-price-quote-by-cdp-scoin-failed",
			"no price quote for scoin %s", pair.ScoinSymbol)
	}
	sys, err := e.params.SysParams()
	if err != nil {
		return 0, coreerrors.MissingData(coreerrors.RejectInvalid, "read-sysparam-error", "%v", err)
	}
	pricePair := types.PriceCoinPair{Base: pair.BcoinSymbol, Quote: quote}
	detail, err := oracle.MedianPrice(e.state, pricePair)
	if err != nil {
		return 0, err
	}
	if detail.Price == 0 || !detail.IsActive(height, sys.PriceFeedTimeoutBlocks) {
		return 0, coreerrors.MissingData(coreerrors.RejectInvalid, "invalid-bcoin-price",
			"price of %s is empty or inactive at %d (price=%d fed=%d)", pricePair, height, detail.Price, detail.LastFeedHeight)
	}
	return detail.Price, nil
}

// RiskReserve loads the risk reserve account named by the system parameters.
func RiskReserve(state interface {
	AccountByUID(uid types.UserID) (*types.Account, bool, error)
}, sys params.SysParams) (*types.Account, error) {
	if sys.RiskReserveRegID == "" {
		return nil, errReserveRegID
	}
	regID, err := types.ParseRegID(sys.RiskReserveRegID)
	if err != nil {
		return nil, fmt.Errorf("cdp engine: risk reserve: %w", err)
	}
	acct, ok, err := state.AccountByUID(types.RegIDUser(regID))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, coreerrors.MissingData(coreerrors.ReadAccountFail, "read-fcoin-account-failed",
			"risk reserve account %s not registered", regID)
	}
	return acct, nil
}

func (e *Engine) ownerAccount(cdp *types.UserCDP) (*types.Account, error) {
	acct, ok, err := e.state.AccountByUID(types.RegIDUser(cdp.Owner))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, coreerrors.MissingData(coreerrors.ReadAccountFail, "read-cdp-owner-account-failed",
			"owner %s of cdp %s not found", cdp.Owner, cdp.ID.Hex())
	}
	return acct, nil
}

func (e *Engine) loadCDP(id common.Hash) (*types.UserCDP, error) {
	cdp, ok, err := e.state.GetCDP(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, coreerrors.MissingData(coreerrors.RejectInvalid, "cdp-not-exist", "cdp %s not found", id.Hex())
	}
	return cdp, nil
}

// floorReached reports whether the pair's aggregate ratio at price has
// dropped below the global floor.
func (e *Engine) floorReached(pair types.CdpCoinPair, price, floor uint64) (bool, error) {
	global, err := e.state.CdpGlobalData(pair)
	if err != nil {
		return false, err
	}
	return global.FloorReached(price, floor), nil
}

func (e *Engine) recordClosed(cdpID, txID common.Hash, closeType types.CdpCloseType) {
	if !e.persistClosed {
		return
	}
	closed := types.ClosedCDP{CdpID: cdpID, CloseTxID: txID, CloseType: closeType}
	if err := e.state.StageClosedCDP(closed); err != nil {
		e.log().Error("persist closed cdp failed", "cdpid", cdpID.Hex(), "type", closeType.String(), "error", err)
	}
}

