// Package core hosts the ledger: it executes blocks of transactions against
// the authenticated state, dispatching each transaction to the engine that
// owns it, and answers read-only queries over the committed state.
package core

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.opentelemetry.io/otel/trace"

	"cdpledger/config"
	"cdpledger/core/events"
	"cdpledger/core/state"
	"cdpledger/core/types"
	"cdpledger/native/cdp"
	"cdpledger/native/liquidation"
	"cdpledger/native/params"
	paramsstate "cdpledger/native/params/state"
	"cdpledger/native/vote"
	"cdpledger/observability/metrics"
	"cdpledger/observability/otel"
	"cdpledger/storage"
	"cdpledger/storage/trie"
)

var (
	errNilBlock       = errors.New("ledger: block or header missing")
	errTxRootMismatch = errors.New("ledger: tx root mismatch")
	errStateRoot      = errors.New("ledger: state root mismatch")
)

// Options tunes a Ledger. The zero value is usable.
type Options struct {
	Logger *slog.Logger
	// PersistClosedCDP archives a record for every closed position.
	PersistClosedCDP bool
	Metrics          *metrics.LedgerMetrics
	Emitter          events.Emitter
}

// Ledger owns the state manager and the chain of executed blocks. Block
// execution holds the write lock for the whole block; queries share the read
// lock.
type Ledger struct {
	mu               sync.RWMutex
	db               storage.Database
	state            *state.Manager
	chain            *Blockchain
	logger           *slog.Logger
	metrics          *metrics.LedgerMetrics
	emitter          events.Emitter
	tracer           trace.Tracer
	persistClosedCDP bool
}

// NewLedger opens the ledger stored in db, resuming from the state root of
// the chain tip when one exists.
func NewLedger(db storage.Database, opts Options) (*Ledger, error) {
	chain, err := NewBlockchain(db)
	if err != nil {
		return nil, err
	}
	var root []byte
	if header := chain.CurrentHeader(); header != nil {
		root = header.StateRoot.Bytes()
	}
	stateTrie, err := trie.NewTrie(db, root)
	if err != nil {
		return nil, fmt.Errorf("ledger: open state trie: %w", err)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	emitter := opts.Emitter
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	return &Ledger{
		db:               db,
		state:            state.NewManager(stateTrie, db),
		chain:            chain,
		logger:           logger.With("component", "ledger"),
		metrics:          opts.Metrics,
		emitter:          emitter,
		tracer:           otel.Tracer(),
		persistClosedCDP: opts.PersistClosedCDP,
	}, nil
}

// Chain exposes the stored blocks.
func (l *Ledger) Chain() *Blockchain { return l.chain }

// GenesisAccount seeds one account in the genesis state.
type GenesisAccount struct {
	KeyID       types.KeyID
	RegID       types.RegID
	OwnerPubKey types.PubKey
	// Balances are credited to the free bucket.
	Balances map[string]uint64
	// Delegate places the account in the active delegate list.
	Delegate bool
}

// Genesis is the initial ledger state.
type Genesis struct {
	Params    *params.Genesis
	Accounts  []GenesisAccount
	Pauses    config.Pauses
	Timestamp uint64
}

// InitGenesis writes the consensus parameters, activates the collateral of
// every configured market, seeds the accounts and stores block 0. The risk
// reserve named by the parameters must be among the seeded accounts.
func (l *Ledger) InitGenesis(g Genesis) (*types.Block, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.chain.CurrentHeader() != nil {
		return nil, errGenesisExists
	}
	if g.Params == nil {
		g.Params = params.DefaultGenesis()
	}

	cache := l.state.NewCache()
	store := params.NewStore(cache)
	if err := store.InitGenesis(g.Params); err != nil {
		return nil, err
	}
	if err := store.SetPauses(g.Pauses); err != nil {
		return nil, err
	}
	for _, p := range g.Params.CDP {
		if err := cache.ActivateCdpBcoin(p.BcoinSymbol, types.TxCord{}); err != nil {
			return nil, fmt.Errorf("ledger: activate %s: %w", p.BcoinSymbol, err)
		}
	}
	var delegates []vote.Delegate
	for _, ga := range g.Accounts {
		acct, _, err := cache.Account(ga.KeyID)
		if err != nil {
			return nil, err
		}
		if !ga.RegID.IsEmpty() {
			if err := cache.SetRegID(acct, ga.RegID); err != nil {
				return nil, err
			}
		}
		if len(ga.OwnerPubKey) > 0 {
			acct.OwnerPubKey = append(types.PubKey(nil), ga.OwnerPubKey...)
		}
		for symbol, amount := range ga.Balances {
			token := acct.Token(symbol)
			token.Free += amount
			acct.SetToken(symbol, token)
		}
		if ga.Delegate {
			if ga.RegID.IsEmpty() {
				return nil, fmt.Errorf("ledger: delegate %s has no regid", ga.KeyID)
			}
			delegates = append(delegates, vote.Delegate{RegID: ga.RegID, Votes: acct.ReceivedVotes})
		}
	}
	if len(delegates) > 0 {
		if err := vote.SetActiveDelegates(cache, delegates); err != nil {
			return nil, err
		}
	}
	if _, err := cdp.RiskReserve(cache, g.Params.System); err != nil {
		return nil, fmt.Errorf("ledger: genesis: %w", err)
	}
	if err := cache.Commit(); err != nil {
		return nil, err
	}
	root, err := l.state.Commit(0)
	if err != nil {
		return nil, fmt.Errorf("ledger: commit genesis state: %w", err)
	}
	txRoot, err := ComputeTxRoot(nil)
	if err != nil {
		return nil, err
	}
	block := types.NewBlock(&types.BlockHeader{
		Height:    0,
		Timestamp: g.Timestamp,
		StateRoot: root,
		TxRoot:    txRoot,
	}, nil)
	if err := l.chain.AddGenesis(block); err != nil {
		return nil, err
	}
	l.metrics.SetBlockHeight(0)
	l.logger.Info("genesis initialized", "stateRoot", root.Hex(), "accounts", len(g.Accounts),
		"network", string(g.Params.System.Network))
	return block, nil
}

func (l *Ledger) pauseView(cache *state.Cache) *paramsstate.PauseView {
	return &paramsstate.PauseView{Reader: cache}
}

func (l *Ledger) newCdpEngine(cache *state.Cache) *cdp.Engine {
	engine := cdp.NewEngine()
	engine.SetState(cache)
	engine.SetPauses(l.pauseView(cache))
	engine.SetLogger(l.logger)
	engine.SetEmitter(l.emitter)
	engine.SetPersistClosedCDP(l.persistClosedCDP)
	return engine
}

func (l *Ledger) newLiquidationEngine(cache *state.Cache) *liquidation.Engine {
	engine := liquidation.NewEngine()
	engine.SetState(cache)
	engine.SetPauses(l.pauseView(cache))
	engine.SetLogger(l.logger)
	engine.SetEmitter(l.emitter)
	engine.SetPersistClosedCDP(l.persistClosedCDP)
	engine.SetMetrics(l.metrics)
	return engine
}

// StateRoot returns the committed state root.
func (l *Ledger) StateRoot() common.Hash {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state.Root()
}

// Height returns the height of the chain tip.
func (l *Ledger) Height() uint64 {
	return l.chain.GetHeight()
}
