package core

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/rawdb"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rlp"
	gethtrie "github.com/ethereum/go-ethereum/trie"
	"github.com/ethereum/go-ethereum/triedb"

	"cdpledger/core/types"
)

// ComputeTxRoot builds the transaction trie of a block and returns its root.
// Each RLP encoded transaction is keyed by the RLP encoding of its index, so
// reordering the transactions changes the root. An empty list yields the
// empty trie root.
func ComputeTxRoot(txs []*types.Transaction) (common.Hash, error) {
	trieDB := triedb.NewDatabase(rawdb.NewMemoryDatabase(), triedb.HashDefaults)
	defer trieDB.Close()
	tr, err := gethtrie.New(gethtrie.TrieID(gethtypes.EmptyRootHash), trieDB)
	if err != nil {
		return common.Hash{}, err
	}
	for i, tx := range txs {
		payload, err := rlp.EncodeToBytes(tx)
		if err != nil {
			return common.Hash{}, err
		}
		if err := tr.Update(rlp.AppendUint64(nil, uint64(i)), payload); err != nil {
			return common.Hash{}, err
		}
	}
	return tr.Hash(), nil
}
