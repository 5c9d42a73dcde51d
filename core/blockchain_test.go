package core

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"cdpledger/core/types"
	"cdpledger/storage"
)

func newTestBlock(height uint64, prevHash common.Hash) *types.Block {
	txRoot, err := ComputeTxRoot(nil)
	if err != nil {
		panic(err)
	}
	return types.NewBlock(&types.BlockHeader{
		Height:    height,
		Timestamp: height * 3,
		PrevHash:  prevHash,
		TxRoot:    txRoot,
	}, nil)
}

func TestBlockchainLinksBlocks(t *testing.T) {
	db := storage.NewMemDB()
	defer db.Close()
	bc, err := NewBlockchain(db)
	if err != nil {
		t.Fatalf("new blockchain: %v", err)
	}
	if bc.CurrentHeader() != nil {
		t.Fatalf("expected empty chain")
	}
	if err := bc.AddBlock(newTestBlock(1, common.Hash{})); !errors.Is(err, errNoGenesis) {
		t.Fatalf("expected errNoGenesis, got %v", err)
	}

	genesis := newTestBlock(0, common.Hash{})
	if err := bc.AddGenesis(genesis); err != nil {
		t.Fatalf("add genesis: %v", err)
	}
	if err := bc.AddGenesis(genesis); !errors.Is(err, errGenesisExists) {
		t.Fatalf("expected errGenesisExists, got %v", err)
	}
	genesisHash, _ := genesis.Header.Hash()

	if err := bc.AddBlock(newTestBlock(2, genesisHash)); !errors.Is(err, errHeightSequence) {
		t.Fatalf("expected errHeightSequence, got %v", err)
	}
	if err := bc.AddBlock(newTestBlock(1, common.HexToHash("0xbad"))); !errors.Is(err, errPrevHash) {
		t.Fatalf("expected errPrevHash, got %v", err)
	}
	next := newTestBlock(1, genesisHash)
	if err := bc.AddBlock(next); err != nil {
		t.Fatalf("add block: %v", err)
	}
	if bc.GetHeight() != 1 {
		t.Fatalf("height = %d, want 1", bc.GetHeight())
	}
	nextHash, _ := next.Header.Hash()
	if bc.Tip() != nextHash {
		t.Fatalf("tip = %s, want %s", bc.Tip().Hex(), nextHash.Hex())
	}

	byHeight, err := bc.GetBlockByHeight(1)
	if err != nil {
		t.Fatalf("block by height: %v", err)
	}
	if byHeight.Header.PrevHash != genesisHash {
		t.Fatalf("stored block lost its parent link")
	}
	if _, err := bc.GetBlockByHeight(7); err == nil {
		t.Fatalf("expected missing block error")
	}
}

func TestBlockchainReloadsTip(t *testing.T) {
	db := storage.NewMemDB()
	defer db.Close()
	bc, err := NewBlockchain(db)
	if err != nil {
		t.Fatalf("new blockchain: %v", err)
	}
	genesis := newTestBlock(0, common.Hash{})
	if err := bc.AddGenesis(genesis); err != nil {
		t.Fatalf("add genesis: %v", err)
	}
	hash, _ := genesis.Header.Hash()
	if err := bc.AddBlock(newTestBlock(1, hash)); err != nil {
		t.Fatalf("add block: %v", err)
	}

	reopened, err := NewBlockchain(db)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if reopened.GetHeight() != 1 || reopened.Tip() != bc.Tip() {
		t.Fatalf("reopened chain at %d/%s, want 1/%s", reopened.GetHeight(), reopened.Tip().Hex(), bc.Tip().Hex())
	}
}

func TestComputeTxRootDependsOnOrder(t *testing.T) {
	a, err := types.NewTransaction(types.TxTypeCoinTransfer, types.RegIDUser(types.RegID{Height: 1, Index: 1}), 1,
		types.SymbolWICC, 1, types.CoinTransferPayload{Memo: "a"})
	if err != nil {
		t.Fatalf("tx a: %v", err)
	}
	b, err := types.NewTransaction(types.TxTypeCoinTransfer, types.RegIDUser(types.RegID{Height: 1, Index: 1}), 1,
		types.SymbolWICC, 1, types.CoinTransferPayload{Memo: "b"})
	if err != nil {
		t.Fatalf("tx b: %v", err)
	}
	ab, err := ComputeTxRoot([]*types.Transaction{a, b})
	if err != nil {
		t.Fatalf("root: %v", err)
	}
	ba, err := ComputeTxRoot([]*types.Transaction{b, a})
	if err != nil {
		t.Fatalf("root: %v", err)
	}
	empty, err := ComputeTxRoot(nil)
	if err != nil {
		t.Fatalf("root: %v", err)
	}
	if ab == ba || ab == empty {
		t.Fatalf("tx root must commit to content and order")
	}
}
