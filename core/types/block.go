package types

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
)

// BlockHeader carries the metadata the ledger needs to execute a block.
type BlockHeader struct {
	Height    uint64
	Timestamp uint64 // unix seconds, used as the vote epoch
	PrevHash  common.Hash
	StateRoot common.Hash // root after the block's transactions are applied
	TxRoot    common.Hash
	Miner     UserID
}

// Block is a header plus its ordered transactions.
type Block struct {
	Header       *BlockHeader
	Transactions []*Transaction
}

// NewBlock creates a new block from a header and a set of transactions.
func NewBlock(header *BlockHeader, txs []*Transaction) *Block {
	return &Block{Header: header, Transactions: txs}
}

// Height returns the block height.
func (b *Block) Height() uint64 {
	if b == nil || b.Header == nil {
		return 0
	}
	return b.Header.Height
}

// Hash returns the keccak256 hash of the RLP encoded header.
func (h *BlockHeader) Hash() (common.Hash, error) {
	encoded, err := rlp.EncodeToBytes(h)
	if err != nil {
		return common.Hash{}, err
	}
	return crypto.Keccak256Hash(encoded), nil
}
