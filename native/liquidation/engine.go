// Package liquidation closes under-collateralized positions at the end of
// each block once the median prices are known. Collateral is sold into the
// system order book through the risk reserve, which covers the debt. A
// shortfall is covered by minting fund coins for the reserve to sell.
package liquidation

import (
	"errors"
	"log/slog"

	coreerrors "cdpledger/core/errors"
	"cdpledger/core/events"
	"cdpledger/core/types"
	"cdpledger/native/cdp"
	nativecommon "cdpledger/native/common"
	"cdpledger/native/liquidation/legacy"
	"cdpledger/native/params"
	"cdpledger/observability/metrics"
)

const moduleName = "liquidation"

var errNilState = errors.New("liquidation engine: state not configured")

type engineState interface {
	legacy.State
	params.StoreState

	CdpBcoin(symbol string) (*types.CdpBcoinDetail, bool, error)
	CdpGlobalData(pair types.CdpCoinPair) (*types.CdpGlobalData, error)
	CdpListByCollateralRatio(pair types.CdpCoinPair, maxRatio, price uint64) ([]*types.UserCDP, error)
	StageClosedCDP(closed types.ClosedCDP) error
}

// Strategy selects the forced liquidation algorithm for a pair.
type Strategy uint8

const (
	StrategyCurrent Strategy = iota
	StrategyLegacy
)

func (s Strategy) String() string {
	if s == StrategyLegacy {
		return metrics.PathLegacy
	}
	return metrics.PathCurrent
}

// SelectStrategy returns the algorithm that liquidates pair at height. Only
// the WICC/WUSD market of the test network below legacy.LastHeight replays
// the legacy algorithm.
func SelectStrategy(sys params.SysParams, height uint64, pair types.CdpCoinPair) Strategy {
	if sys.Network == params.TestNet && height < legacy.LastHeight &&
		pair.BcoinSymbol == types.SymbolWICC && pair.ScoinSymbol == types.SymbolWUSD {
		return StrategyLegacy
	}
	return StrategyCurrent
}

// Engine runs forced liquidation against a block-scoped state cache.
type Engine struct {
	state         engineState
	params        *params.Store
	persistClosed bool
	pauses        nativecommon.PauseView
	emitter       events.Emitter
	logger        *slog.Logger
	metrics       *metrics.LedgerMetrics
}

func NewEngine() *Engine {
	return &Engine{}
}

// SetState wires the engine to the block overlay.
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

func (e *Engine) SetLogger(logger *slog.Logger) {
	if e == nil {
		return
	}
	e.logger = logger
}

// SetEmitter configures where closed positions are reported.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if e == nil {
		return
	}
	e.emitter = emitter
}

// SetPersistClosedCDP enables the closed position audit index.
func (e *Engine) SetPersistClosedCDP(enabled bool) {
	if e == nil {
		return
	}
	e.persistClosed = enabled
}

// SetMetrics attaches the collector updated on every run. A nil collector
// disables reporting.
func (e *Engine) SetMetrics(m *metrics.LedgerMetrics) {
	if e == nil {
		return
	}
	e.metrics = m
}

func (e *Engine) log() *slog.Logger {
	if e.logger != nil {
		return e.logger.With("component", moduleName)
	}
	return slog.Default().With("component", moduleName)
}

// closed reports a force liquidated position and, when enabled, stages its
// audit record.
func (e *Engine) closed(ctx cdp.TxContext, pos *types.UserCDP) {
	if e.emitter != nil {
		e.emitter.Emit(events.CDPClosed{CDP: *pos, CloseType: types.CdpCloseByForceLiquidate,
			TxID: ctx.TxID, Height: ctx.Height})
	}
	if !e.persistClosed {
		return
	}
	record := types.ClosedCDP{CdpID: pos.ID, CloseTxID: ctx.TxID, CloseType: types.CdpCloseByForceLiquidate}
	if err := e.state.StageClosedCDP(record); err != nil {
		e.log().Error("persist closed cdp failed", "cdpid", pos.ID.Hex(), "error", err)
	}
}

// ForceLiquidateCdps liquidates every position whose collateral ratio fell
// below its pair's force ratio, scanning pairs in CoinPairDetails order and
// spending at most CDPForceLiquidateMaxCount positions across all pairs.
//
// A missing or stale fund coin price skips the whole run, and a paused module
// is a no-op; neither invalidates the block. Errors returned here do.
func (e *Engine) ForceLiquidateCdps(ctx cdp.TxContext, medians map[types.PriceCoinPair]types.PriceDetail) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	logger := e.log().With("height", ctx.Height)
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		logger.Warn("forced liquidation skipped", "error", err)
		return nil
	}
	sys, err := e.params.SysParams()
	if err != nil {
		return coreerrors.MissingData(coreerrors.ReadSysParamFail, "read-sysparam-error", "%v", err)
	}

	fcoin, ok := medians[types.FcoinPriceCoinPair]
	if !ok || fcoin.Price == 0 || !fcoin.IsActive(ctx.Height, sys.PriceFeedTimeoutBlocks) {
		logger.Info("fund coin price missing or inactive, skipping forced liquidation",
			"price", fcoin.Price, "lastFeed", fcoin.LastFeedHeight)
		return nil
	}

	reserve, err := cdp.RiskReserve(e.state, sys)
	if err != nil {
		return err
	}
	details, err := cdp.CoinPairDetails(e.state, sys, ctx.Height, medians)
	if err != nil {
		return coreerrors.MissingData(coreerrors.ReadSysParamFail, "get-cdp-coin-pairs-error", "%v", err)
	}

	version := sys.FeatureForkVersion(ctx.Height)
	limit := uint64(sys.CDPForceLiquidateMaxCount)
	for _, detail := range details {
		if version >= params.MajorVerR3 && !detail.PriceActive {
			logger.Info("price of pair inactive, skipping", "pair", detail.Pair.String(), "price", detail.BcoinPrice)
			continue
		}
		e.metrics.ObservePairScanned(detail.Pair.String())
		exec := executor{
			engine:     e,
			ctx:        ctx,
			sys:        sys,
			detail:     detail,
			fcoinPrice: fcoin.Price,
			reserve:    reserve,
			limit:      limit,
			logger:     logger.With("pair", detail.Pair.String()),
		}
		count, err := exec.run()
		if err != nil {
			return err
		}
		if count >= limit {
			logger.Debug("forced liquidation limit reached", "limit", sys.CDPForceLiquidateMaxCount)
			break
		}
		limit -= count
	}
	return nil
}
