// Package trie stores the ledger's consensus state in a go-ethereum
// Merkle-Patricia trie.
package trie

import (
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	gethtrie "github.com/ethereum/go-ethereum/trie"
	"github.com/ethereum/go-ethereum/trie/trienode"
	"github.com/ethereum/go-ethereum/triedb"

	"cdpledger/storage"
)

// Trie is a secure trie: logical keys such as "acct/<keyid>" are stored
// under their keccak256 hash, so path length is fixed and the key layout
// does not leak into the tree shape. Root tracks the last committed root;
// Hash includes pending writes.
//
// Trie is not safe for concurrent use.
type Trie struct {
	db   *triedb.Database
	tr   *gethtrie.Trie
	root common.Hash
}

// NewTrie opens the trie at root on store. A nil or empty root opens the
// empty trie.
func NewTrie(store storage.Database, root []byte) (*Trie, error) {
	t := &Trie{db: store.TrieDB()}
	start := gethtypes.EmptyRootHash
	if len(root) > 0 {
		start = common.BytesToHash(root)
	}
	if err := t.Reset(start); err != nil {
		return nil, err
	}
	return t, nil
}

func hashKey(key []byte) []byte { return crypto.Keccak256(key) }

// Get returns the value stored under key, or nil when absent.
func (t *Trie) Get(key []byte) ([]byte, error) {
	v, err := t.tr.Get(hashKey(key))
	if err != nil || len(v) == 0 {
		return nil, err
	}
	return v, nil
}

// Update writes value under key. An empty value deletes the key.
func (t *Trie) Update(key, value []byte) error {
	return t.tr.Update(hashKey(key), value)
}

func (t *Trie) Delete(key []byte) error {
	return t.tr.Delete(hashKey(key))
}

func (t *Trie) Hash() common.Hash { return t.tr.Hash() }

func (t *Trie) Root() common.Hash { return t.root }

// Reset drops pending writes and reopens the trie at root.
func (t *Trie) Reset(root common.Hash) error {
	tr, err := gethtrie.New(gethtrie.TrieID(root), t.db)
	if err != nil {
		return err
	}
	t.tr, t.root = tr, root
	return nil
}

// Commit flushes pending writes as the state of block height and returns
// the new root. A commit without writes returns the current root.
func (t *Trie) Commit(height uint64) (common.Hash, error) {
	parent := t.root
	next, nodes := t.tr.Commit(false)
	if nodes != nil {
		merged := trienode.NewMergedNodeSet()
		if err := merged.Merge(nodes); err != nil {
			return common.Hash{}, err
		}
		if err := t.db.Update(next, parent, height, merged, nil); err != nil {
			return common.Hash{}, err
		}
		if err := t.db.Commit(next, false); err != nil {
			return common.Hash{}, err
		}
	}
	if err := t.Reset(next); err != nil {
		return common.Hash{}, err
	}
	return next, nil
}
