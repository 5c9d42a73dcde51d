package indexer

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"cdpledger/core/events"
	"cdpledger/core/types"
)

func setupIndexDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("sqlite open: %v", err)
	}
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func transfer(txid common.Hash, amount uint64) events.Transfer {
	return events.Transfer{Symbol: types.SymbolWUSD, Amount: amount, TxID: txid}
}

func TestIndexerPersistsCommittedBlocks(t *testing.T) {
	ix := New(setupIndexDB(t), nil)
	ix.now = func() time.Time { return time.Unix(1_700_000_000, 0) }
	ctx := context.Background()
	txid := common.HexToHash("0x01")

	ix.Emit(transfer(txid, 5))
	ix.Emit(transfer(txid, 6))
	ix.Emit(events.BlockExecuted{Height: 1, Hash: common.HexToHash("0xb1"), TxCount: 1})
	if ix.Pending() != 1 {
		t.Fatalf("expected one pending block, got %d", ix.Pending())
	}
	if err := ix.Flush(ctx); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if ix.Pending() != 0 {
		t.Fatalf("expected flush to drain the queue")
	}

	evs, err := ix.EventsByTx(ctx, txid.Hex())
	if err != nil {
		t.Fatalf("events by tx: %v", err)
	}
	if len(evs) != 2 {
		t.Fatalf("expected 2 events, got %d", len(evs))
	}
	if evs[0].Attributes["amount"] != "5" || evs[1].Attributes["amount"] != "6" {
		t.Fatalf("events out of order: %+v", evs)
	}
	height, ok, err := ix.LatestHeight(ctx)
	if err != nil || !ok || height != 1 {
		t.Fatalf("latest height = %d, %v, %v", height, ok, err)
	}
}

func TestIndexerDiscardsRejectedBlockEvents(t *testing.T) {
	ix := New(setupIndexDB(t), nil)
	ctx := context.Background()
	doomed := common.HexToHash("0x02")
	kept := common.HexToHash("0x03")

	ix.Emit(transfer(doomed, 1))
	ix.Emit(events.BlockRejected{Height: 1, Reason: "account-not-exist"})
	ix.Emit(transfer(kept, 2))
	ix.Emit(events.BlockExecuted{Height: 1, Hash: common.HexToHash("0xb1")})
	if err := ix.Flush(ctx); err != nil {
		t.Fatalf("flush: %v", err)
	}

	evs, err := ix.EventsByTx(ctx, doomed.Hex())
	if err != nil {
		t.Fatalf("events by tx: %v", err)
	}
	if len(evs) != 0 {
		t.Fatalf("expected rejected block events to be dropped, got %d", len(evs))
	}
	evs, err = ix.EventsByHeight(ctx, 1)
	if err != nil {
		t.Fatalf("events by height: %v", err)
	}
	if len(evs) != 1 || evs[0].Attributes["txid"] != kept.Hex() {
		t.Fatalf("unexpected events at height 1: %+v", evs)
	}
}

func TestIndexerReplayIsIdempotent(t *testing.T) {
	ix := New(setupIndexDB(t), nil)
	ctx := context.Background()
	txid := common.HexToHash("0x04")
	for i := 0; i < 2; i++ {
		ix.Emit(transfer(txid, 9))
		ix.Emit(events.BlockExecuted{Height: 2, Hash: common.HexToHash("0xb2")})
		if err := ix.Flush(ctx); err != nil {
			t.Fatalf("flush %d: %v", i, err)
		}
	}
	evs, err := ix.EventsByTx(ctx, txid.Hex())
	if err != nil {
		t.Fatalf("events by tx: %v", err)
	}
	if len(evs) != 1 {
		t.Fatalf("expected replay to be ignored, got %d events", len(evs))
	}
}

func TestIndexerLatestHeightEmpty(t *testing.T) {
	ix := New(setupIndexDB(t), nil)
	if _, ok, err := ix.LatestHeight(context.Background()); err != nil || ok {
		t.Fatalf("expected empty index, got ok=%v err=%v", ok, err)
	}
}

func TestRunFlushesOnShutdown(t *testing.T) {
	ix := New(setupIndexDB(t), nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		ix.Run(ctx, time.Hour)
		close(done)
	}()
	ix.Emit(events.BlockExecuted{Height: 3, Hash: common.HexToHash("0xb3")})
	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("run did not stop")
	}
	height, ok, err := ix.LatestHeight(context.Background())
	if err != nil || !ok || height != 3 {
		t.Fatalf("latest height = %d, %v, %v", height, ok, err)
	}
}

func TestIsPostgres(t *testing.T) {
	cases := map[string]bool{
		"postgres://user@localhost/db":        true,
		"postgresql://localhost/db":           true,
		"host=localhost user=ledger dbname=x": true,
		"file:index.db":                       false,
		"/var/lib/cdpledger/index.db":         false,
	}
	for dsn, want := range cases {
		if got := isPostgres(dsn); got != want {
			t.Fatalf("isPostgres(%q) = %v, want %v", dsn, got, want)
		}
	}
}
