// Package indexer persists ledger events to SQL so they can be queried by
// transaction or height after the fact.
package indexer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"cdpledger/core/events"
	"cdpledger/core/types"
)

const insertBatchSize = 200

// Open connects to dsn. Postgres URLs and keyword DSNs use the postgres
// driver; anything else is handed to sqlite.
func Open(dsn string) (*gorm.DB, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, errors.New("indexer: empty dsn")
	}
	var dialector gorm.Dialector
	if isPostgres(dsn) {
		dialector = postgres.Open(dsn)
	} else {
		dialector = sqlite.Open(dsn)
	}
	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("indexer: open: %w", err)
	}
	if err := AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("indexer: migrate: %w", err)
	}
	return db, nil
}

func isPostgres(dsn string) bool {
	return strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") ||
		strings.Contains(dsn, "host=")
}

type batch struct {
	block  Block
	events []*types.Event
}

// Indexer is an events.Emitter. Events are staged until the block that
// produced them commits; a rejected block discards its staged events.
// Emit never touches the database, Flush does.
type Indexer struct {
	db     *gorm.DB
	logger *slog.Logger
	now    func() time.Time

	mu      sync.Mutex
	pending []*types.Event
	ready   []batch
}

func New(db *gorm.DB, logger *slog.Logger) *Indexer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Indexer{db: db, logger: logger.With("component", "indexer"), now: time.Now}
}

// Emit implements events.Emitter.
func (ix *Indexer) Emit(e events.Event) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	switch ev := e.(type) {
	case events.BlockExecuted:
		ix.ready = append(ix.ready, batch{
			block: Block{
				Height:    ev.Height,
				Hash:      ev.Hash.Hex(),
				StateRoot: ev.StateRoot.Hex(),
				TxCount:   ev.TxCount,
			},
			events: ix.pending,
		})
		ix.pending = nil
	case events.BlockRejected:
		if len(ix.pending) > 0 {
			ix.logger.Debug("discarding events of rejected block", "height", ev.Height, "events", len(ix.pending))
		}
		ix.pending = nil
	default:
		ix.pending = append(ix.pending, e.Event())
	}
}

// Pending returns the number of committed blocks waiting for Flush.
func (ix *Indexer) Pending() int {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return len(ix.ready)
}

// Flush writes every committed block and its events. Blocks that fail to
// write stay queued for the next call.
func (ix *Indexer) Flush(ctx context.Context) error {
	ix.mu.Lock()
	ready := ix.ready
	ix.ready = nil
	ix.mu.Unlock()

	for i, b := range ready {
		if err := ix.write(ctx, b); err != nil {
			ix.mu.Lock()
			ix.ready = append(append([]batch(nil), ready[i:]...), ix.ready...)
			ix.mu.Unlock()
			return fmt.Errorf("indexer: block %d: %w", b.block.Height, err)
		}
	}
	return nil
}

func (ix *Indexer) write(ctx context.Context, b batch) error {
	now := ix.now().UTC()
	b.block.IndexedAt = now
	rows := make([]Event, 0, len(b.events))
	for seq, ev := range b.events {
		attrs, err := json.Marshal(ev.Attributes)
		if err != nil {
			return err
		}
		rows = append(rows, Event{
			ID:         uuid.New(),
			Height:     b.block.Height,
			Seq:        seq,
			Type:       ev.Type,
			TxID:       ev.Attributes["txid"],
			Attributes: string(attrs),
			CreatedAt:  now,
		})
	}
	return ix.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&b.block)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// Already indexed; replaying a block must not duplicate events.
			return nil
		}
		if len(rows) == 0 {
			return nil
		}
		return tx.CreateInBatches(rows, insertBatchSize).Error
	})
}

// Run flushes every interval until ctx is done, then flushes once more.
func (ix *Indexer) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := ix.Flush(flushCtx); err != nil {
				ix.logger.Error("final flush failed", "error", err)
			}
			cancel()
			return
		case <-ticker.C:
			if err := ix.Flush(ctx); err != nil {
				ix.logger.Warn("flush failed", "error", err)
			}
		}
	}
}

// EventsByTx returns the indexed events carrying txid, in chain order.
func (ix *Indexer) EventsByTx(ctx context.Context, txid string) ([]*types.Event, error) {
	var rows []Event
	err := ix.db.WithContext(ctx).Where("tx_id = ?", txid).Order("height, seq").Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return decodeRows(rows)
}

// EventsByHeight returns the indexed events of one block.
func (ix *Indexer) EventsByHeight(ctx context.Context, height uint64) ([]*types.Event, error) {
	var rows []Event
	err := ix.db.WithContext(ctx).Where("height = ?", height).Order("seq").Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return decodeRows(rows)
}

// LatestHeight returns the highest indexed block.
func (ix *Indexer) LatestHeight(ctx context.Context) (uint64, bool, error) {
	var block Block
	err := ix.db.WithContext(ctx).Order("height desc").Limit(1).Find(&block).Error
	if err != nil {
		return 0, false, err
	}
	if block.Hash == "" {
		return 0, false, nil
	}
	return block.Height, true, nil
}

func decodeRows(rows []Event) ([]*types.Event, error) {
	out := make([]*types.Event, 0, len(rows))
	for _, row := range rows {
		ev := &types.Event{Type: row.Type}
		if err := json.Unmarshal([]byte(row.Attributes), &ev.Attributes); err != nil {
			return nil, fmt.Errorf("indexer: decode event %s: %w", row.ID, err)
		}
		out = append(out, ev)
	}
	return out, nil
}
