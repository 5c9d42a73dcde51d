package core

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"

	"cdpledger/core/types"
	"cdpledger/storage"
)

var (
	chainTipKey      = []byte("chain/tip")
	chainBlockPrefix = []byte("chain/block/")
	chainHashPrefix  = []byte("chain/height/")
)

var (
	errNoGenesis      = errors.New("blockchain: genesis block not stored")
	errPrevHash       = errors.New("blockchain: block prev hash mismatch")
	errHeightSequence = errors.New("blockchain: block height out of sequence")
	errGenesisExists  = errors.New("blockchain: genesis already stored")
	errBlockNotFound  = errors.New("blockchain: block not found")
)

func blockKey(hash common.Hash) []byte {
	return append(append([]byte(nil), chainBlockPrefix...), hash.Bytes()...)
}

func heightKey(height uint64) []byte {
	return binary.BigEndian.AppendUint64(append([]byte(nil), chainHashPrefix...), height)
}

// Blockchain stores executed blocks and tracks the chain tip.
type Blockchain struct {
	db     storage.Database
	tip    common.Hash
	header *types.BlockHeader
	mu     sync.RWMutex
}

// NewBlockchain opens the chain stored in db. An empty database yields a
// chain without a tip; AddGenesis must be called before AddBlock.
func NewBlockchain(db storage.Database) (*Blockchain, error) {
	bc := &Blockchain{db: db}
	raw, err := db.Get(chainTipKey)
	if errors.Is(err, storage.ErrNotFound) {
		return bc, nil
	}
	if err != nil {
		return nil, err
	}
	tip := common.BytesToHash(raw)
	block, err := bc.blockByHash(tip)
	if err != nil {
		return nil, fmt.Errorf("blockchain: load tip %s: %w", tip.Hex(), err)
	}
	bc.tip = tip
	bc.header = block.Header
	return bc, nil
}

// AddGenesis stores the block at height 0.
func (bc *Blockchain) AddGenesis(b *types.Block) error {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	if bc.header != nil {
		return errGenesisExists
	}
	if b.Height() != 0 {
		return fmt.Errorf("%w: genesis at height %d", errHeightSequence, b.Height())
	}
	return bc.store(b)
}

// AddBlock links b onto the tip and stores it.
func (bc *Blockchain) AddBlock(b *types.Block) error {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	if err := bc.checkLink(b.Header); err != nil {
		return err
	}
	return bc.store(b)
}

// CheckLink reports whether header extends the current tip.
func (bc *Blockchain) CheckLink(header *types.BlockHeader) error {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	return bc.checkLink(header)
}

func (bc *Blockchain) checkLink(header *types.BlockHeader) error {
	if bc.header == nil {
		return errNoGenesis
	}
	if header.Height != bc.header.Height+1 {
		return fmt.Errorf("%w: got %d, tip %d", errHeightSequence, header.Height, bc.header.Height)
	}
	if header.PrevHash != bc.tip {
		return fmt.Errorf("%w: got %s, tip %s", errPrevHash, header.PrevHash.Hex(), bc.tip.Hex())
	}
	return nil
}

func (bc *Blockchain) store(b *types.Block) error {
	hash, err := b.Header.Hash()
	if err != nil {
		return err
	}
	encoded, err := rlp.EncodeToBytes(b)
	if err != nil {
		return fmt.Errorf("blockchain: encode block %d: %w", b.Height(), err)
	}
	if err := bc.db.Put(blockKey(hash), encoded); err != nil {
		return err
	}
	if err := bc.db.Put(heightKey(b.Height()), hash.Bytes()); err != nil {
		return err
	}
	if err := bc.db.Put(chainTipKey, hash.Bytes()); err != nil {
		return err
	}
	bc.tip = hash
	bc.header = b.Header
	return nil
}

func (bc *Blockchain) blockByHash(hash common.Hash) (*types.Block, error) {
	raw, err := bc.db.Get(blockKey(hash))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", errBlockNotFound, hash.Hex())
	}
	if err != nil {
		return nil, err
	}
	block := new(types.Block)
	if err := rlp.DecodeBytes(raw, block); err != nil {
		return nil, fmt.Errorf("blockchain: decode block %s: %w", hash.Hex(), err)
	}
	return block, nil
}

// GetBlockByHash retrieves a block by its header hash.
func (bc *Blockchain) GetBlockByHash(hash common.Hash) (*types.Block, error) {
	return bc.blockByHash(hash)
}

// GetBlockByHeight retrieves a block by its height.
func (bc *Blockchain) GetBlockByHeight(height uint64) (*types.Block, error) {
	raw, err := bc.db.Get(heightKey(height))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: height %d", errBlockNotFound, height)
	}
	if err != nil {
		return nil, err
	}
	return bc.blockByHash(common.BytesToHash(raw))
}

// CurrentHeader returns the tip header, or nil before genesis.
func (bc *Blockchain) CurrentHeader() *types.BlockHeader {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	return bc.header
}

func (bc *Blockchain) GetHeight() uint64 {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	if bc.header == nil {
		return 0
	}
	return bc.header.Height
}

func (bc *Blockchain) Tip() common.Hash {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	return bc.tip
}
