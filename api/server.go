// Package api serves read-only ledger queries and block submission over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	coreerrors "cdpledger/core/errors"
	"cdpledger/core/types"
)

const maxBlockBytes = 4 << 20

// Ledger is the subset of the ledger the server needs.
type Ledger interface {
	Height() uint64
	StateRoot() common.Hash
	Account(uid types.UserID) (*types.Account, bool, error)
	Balance(uid types.UserID, symbol string) (types.AccountToken, error)
	CDP(id common.Hash) (*types.UserCDP, bool, error)
	CDPsByOwner(owner types.RegID) ([]*types.UserCDP, error)
	GlobalData(pair types.CdpCoinPair) (*types.CdpGlobalData, error)
	MedianPrices() (map[types.PriceCoinPair]types.PriceDetail, error)
	Receipts(txid common.Hash) (types.Receipts, bool, error)
	ClosedCDP(id common.Hash) (*types.ClosedCDP, bool, error)
	ClosedCDPsByTx(txid common.Hash) ([]common.Hash, error)
	ExecuteBlock(ctx context.Context, block *types.Block) (common.Hash, error)
}

// EventIndex answers event history queries.
type EventIndex interface {
	EventsByTx(ctx context.Context, txid string) ([]*types.Event, error)
}

// Config captures the dependencies required to construct the server.
type Config struct {
	Ledger Ledger
	Logger *slog.Logger
	// Limits keyed by route group ("query", "submit"). Missing keys are
	// unlimited.
	Limits map[string]RateLimit
	// Stream feeds the websocket event endpoint. Nil disables it.
	Stream *Hub
	// Events serves /v1/txs/{txid}/events. Nil disables it.
	Events EventIndex
	// SubmitEnabled exposes POST /v1/blocks.
	SubmitEnabled bool
}

// Server encapsulates dependencies for the HTTP API.
type Server struct {
	ledger        Ledger
	logger        *slog.Logger
	limiter       *RateLimiter
	stream        *Hub
	events        EventIndex
	submitEnabled bool

	router http.Handler
}

// New constructs the router.
func New(cfg Config) (*Server, error) {
	if cfg.Ledger == nil {
		return nil, errors.New("api: ledger required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	srv := &Server{
		ledger:        cfg.Ledger,
		logger:        logger.With("component", "api"),
		limiter:       NewRateLimiter(cfg.Limits, logger),
		stream:        cfg.Stream,
		events:        cfg.Events,
		submitEnabled: cfg.SubmitEnabled,
	}
	srv.router = srv.buildRouter()
	return srv, nil
}

// Handler exposes the router wrapped in request tracing.
func (s *Server) Handler() http.Handler {
	return otelhttp.NewHandler(s.router, "cdpledger.api")
}

func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Route("/v1", func(v1 chi.Router) {
		v1.Group(func(q chi.Router) {
			q.Use(s.limiter.Middleware("query"))
			q.Get("/status", s.handleStatus)
			q.Get("/accounts/{uid}", s.handleAccount)
			q.Get("/accounts/{uid}/balances/{symbol}", s.handleBalance)
			q.Get("/accounts/{uid}/cdps", s.handleCDPsByOwner)
			q.Get("/cdps/{id}", s.handleCDP)
			q.Get("/cdps/closed/{id}", s.handleClosedCDP)
			q.Get("/markets/{bcoin}/{scoin}", s.handleGlobalData)
			q.Get("/prices", s.handleMedianPrices)
			q.Get("/txs/{txid}/receipts", s.handleReceipts)
			q.Get("/txs/{txid}/closed-cdps", s.handleClosedCDPsByTx)
			if s.events != nil {
				q.Get("/txs/{txid}/events", s.handleTxEvents)
			}
		})
		if s.submitEnabled {
			v1.With(s.limiter.Middleware("submit")).Post("/blocks", s.handleSubmitBlock)
		}
		if s.stream != nil {
			v1.Get("/events", s.handleEvents)
		}
	})
	return r
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, statusView{Height: s.ledger.Height(), StateRoot: s.ledger.StateRoot().Hex()})
}

func (s *Server) handleAccount(w http.ResponseWriter, r *http.Request) {
	uid, err := parseUserID(chi.URLParam(r, "uid"))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err)
		return
	}
	acct, ok, err := s.ledger.Account(uid)
	if err != nil {
		s.writeInternalError(w, err)
		return
	}
	if !ok {
		writeJSONError(w, http.StatusNotFound, fmt.Errorf("account %s not found", uid))
		return
	}
	writeJSON(w, http.StatusOK, newAccountView(acct))
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	uid, err := parseUserID(chi.URLParam(r, "uid"))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err)
		return
	}
	symbol := strings.ToUpper(strings.TrimSpace(chi.URLParam(r, "symbol")))
	token, err := s.ledger.Balance(uid, symbol)
	if err != nil {
		s.writeInternalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, balanceView{Symbol: symbol, AccountToken: token})
}

func (s *Server) handleCDPsByOwner(w http.ResponseWriter, r *http.Request) {
	owner, err := types.ParseRegID(chi.URLParam(r, "uid"))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err)
		return
	}
	cdps, err := s.ledger.CDPsByOwner(owner)
	if err != nil {
		s.writeInternalError(w, err)
		return
	}
	out := make([]cdpView, 0, len(cdps))
	for _, c := range cdps {
		out = append(out, newCDPView(c))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCDP(w http.ResponseWriter, r *http.Request) {
	id, err := parseHash(chi.URLParam(r, "id"))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err)
		return
	}
	pos, ok, err := s.ledger.CDP(id)
	if err != nil {
		s.writeInternalError(w, err)
		return
	}
	if !ok {
		writeJSONError(w, http.StatusNotFound, fmt.Errorf("cdp %s not found", id.Hex()))
		return
	}
	writeJSON(w, http.StatusOK, newCDPView(pos))
}

func (s *Server) handleClosedCDP(w http.ResponseWriter, r *http.Request) {
	id, err := parseHash(chi.URLParam(r, "id"))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err)
		return
	}
	rec, ok, err := s.ledger.ClosedCDP(id)
	if err != nil {
		s.writeInternalError(w, err)
		return
	}
	if !ok {
		writeJSONError(w, http.StatusNotFound, fmt.Errorf("no closed cdp %s", id.Hex()))
		return
	}
	writeJSON(w, http.StatusOK, newClosedCDPView(rec))
}

func (s *Server) handleGlobalData(w http.ResponseWriter, r *http.Request) {
	pair := types.CdpCoinPair{
		BcoinSymbol: strings.ToUpper(chi.URLParam(r, "bcoin")),
		ScoinSymbol: strings.ToUpper(chi.URLParam(r, "scoin")),
	}
	global, err := s.ledger.GlobalData(pair)
	if err != nil {
		s.writeInternalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newGlobalView(pair, global))
}

func (s *Server) handleMedianPrices(w http.ResponseWriter, r *http.Request) {
	prices, err := s.ledger.MedianPrices()
	if err != nil {
		s.writeInternalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newPriceViews(prices))
}

func (s *Server) handleReceipts(w http.ResponseWriter, r *http.Request) {
	txid, err := parseHash(chi.URLParam(r, "txid"))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err)
		return
	}
	receipts, ok, err := s.ledger.Receipts(txid)
	if err != nil {
		s.writeInternalError(w, err)
		return
	}
	if !ok {
		writeJSONError(w, http.StatusNotFound, fmt.Errorf("no receipts for %s", txid.Hex()))
		return
	}
	writeJSON(w, http.StatusOK, newReceiptViews(receipts))
}

func (s *Server) handleClosedCDPsByTx(w http.ResponseWriter, r *http.Request) {
	txid, err := parseHash(chi.URLParam(r, "txid"))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err)
		return
	}
	ids, err := s.ledger.ClosedCDPsByTx(txid)
	if err != nil {
		s.writeInternalError(w, err)
		return
	}
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, id.Hex())
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleTxEvents(w http.ResponseWriter, r *http.Request) {
	txid, err := parseHash(chi.URLParam(r, "txid"))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err)
		return
	}
	evs, err := s.events.EventsByTx(r.Context(), txid.Hex())
	if err != nil {
		s.writeInternalError(w, err)
		return
	}
	if evs == nil {
		evs = []*types.Event{}
	}
	writeJSON(w, http.StatusOK, evs)
}

// handleSubmitBlock executes an RLP encoded block. Rejected transactions
// invalidate the block and come back as 422 with the reject code.
func (s *Server) handleSubmitBlock(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBlockBytes+1))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err)
		return
	}
	if len(body) > maxBlockBytes {
		writeJSONError(w, http.StatusRequestEntityTooLarge, fmt.Errorf("block exceeds %d bytes", maxBlockBytes))
		return
	}
	var block types.Block
	if err := rlp.DecodeBytes(body, &block); err != nil {
		writeJSONError(w, http.StatusBadRequest, fmt.Errorf("decode block: %w", err))
		return
	}
	root, err := s.ledger.ExecuteBlock(r.Context(), &block)
	if err != nil {
		if reject, ok := coreerrors.AsReject(err); ok {
			writeJSON(w, http.StatusUnprocessableEntity, rejectView{
				Error:  err.Error(),
				Code:   string(reject.Code),
				Reason: reject.Reason,
			})
			return
		}
		writeJSONError(w, http.StatusConflict, err)
		return
	}
	writeJSON(w, http.StatusOK, statusView{Height: block.Height(), StateRoot: root.Hex()})
}

func (s *Server) writeInternalError(w http.ResponseWriter, err error) {
	s.logger.Error("query failed", "error", err)
	writeJSONError(w, http.StatusInternalServerError, err)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Default().Warn("write response failed", "error", err)
	}
}

func writeJSONError(w http.ResponseWriter, status int, err error) {
	message := strings.TrimSpace(err.Error())
	if message == "" {
		message = http.StatusText(status)
	}
	writeJSON(w, status, map[string]string{"error": message})
}
