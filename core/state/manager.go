package state

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"

	"cdpledger/core/types"
	"cdpledger/storage"
	"cdpledger/storage/trie"
)

// backend is the layer a Cache reads through and flushes into. The Manager
// is the root backend; a Cache may itself back a nested Cache.
type backend interface {
	getRaw(key []byte) ([]byte, error)
	putRaw(key, value []byte) error
	deleteRaw(key []byte) error
	loadAccount(id types.KeyID) (*types.Account, bool, error)
	storeAccount(acct *types.Account) error
	putArchive(key, value []byte) error
}

// Manager owns the authenticated ledger state. Consensus records live in the
// secure state trie; audit records (closed positions, receipts) live in a
// plain archive store outside the state root.
type Manager struct {
	mu      sync.Mutex
	trie    *trie.Trie
	archive storage.Database
}

// NewManager creates a state manager operating on the provided trie. The
// archive database may be nil, in which case archive writes are dropped.
func NewManager(tr *trie.Trie, archive storage.Database) *Manager {
	return &Manager{trie: tr, archive: archive}
}

func (m *Manager) getRaw(key []byte) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, err := m.trie.Get(key)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, nil
	}
	return data, nil
}

func (m *Manager) putRaw(key, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.trie.Update(key, value)
}

func (m *Manager) deleteRaw(key []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.trie.Delete(key)
}

func (m *Manager) loadAccount(id types.KeyID) (*types.Account, bool, error) {
	data, err := m.getRaw(AccountKey(id))
	if err != nil {
		return nil, false, err
	}
	if data == nil {
		return types.NewAccount(id), false, nil
	}
	acct, err := decodeAccount(data)
	if err != nil {
		return nil, false, fmt.Errorf("state: decode account %s: %w", id, err)
	}
	return acct, true, nil
}

func (m *Manager) storeAccount(acct *types.Account) error {
	encoded, err := encodeAccount(acct)
	if err != nil {
		return fmt.Errorf("state: encode account %s: %w", acct.KeyID, err)
	}
	return m.putRaw(AccountKey(acct.KeyID), encoded)
}

func (m *Manager) putArchive(key, value []byte) error {
	if m.archive == nil {
		return nil
	}
	return m.archive.Put(key, value)
}

// Root returns the last committed state root.
func (m *Manager) Root() common.Hash {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.trie.Root()
}

// Hash returns the state root including uncommitted writes.
func (m *Manager) Hash() common.Hash {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.trie.Hash()
}

// Commit persists the pending trie mutations for the block at height.
func (m *Manager) Commit(height uint64) (common.Hash, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.trie.Commit(height)
}

// Reset drops uncommitted mutations and reloads the trie at root.
func (m *Manager) Reset(root common.Hash) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.trie.Reset(root)
}

// NewCache opens a write overlay on top of the committed state.
func (m *Manager) NewCache() *Cache {
	return newCache(m)
}

// Account returns a copy of the stored account. The boolean reports whether
// the account exists.
func (m *Manager) Account(id types.KeyID) (*types.Account, bool, error) {
	return m.loadAccount(id)
}

// KeyIDByRegID resolves a registration id through the committed index.
func (m *Manager) KeyIDByRegID(id types.RegID) (types.KeyID, bool, error) {
	return keyIDByRegID(m, id)
}

// KVPut stores the provided value under the supplied key using RLP encoding.
// The key is automatically hashed with keccak256 to match the requirements of
// the underlying trie implementation.
func (m *Manager) KVPut(key []byte, value interface{}) error {
	return kvPut(m, key, value)
}

// KVGet retrieves the value stored under the supplied key and decodes it into
// the provided destination. The boolean return value indicates whether the key
// existed in state.
func (m *Manager) KVGet(key []byte, out interface{}) (bool, error) {
	return kvGet(m, key, out)
}

// KVGetList decodes an RLP list stored under key into out. A missing key
// yields an empty slice.
func (m *Manager) KVGetList(key []byte, out interface{}) error {
	return kvGetList(m, key, out)
}

// ParamStoreSet stores a raw parameter blob.
func (m *Manager) ParamStoreSet(name string, value []byte) error {
	return paramStoreSet(m, name, value)
}

// ParamStoreGet loads a raw parameter blob.
func (m *Manager) ParamStoreGet(name string) ([]byte, bool, error) {
	return paramStoreGet(m, name)
}

// ClosedCDP loads the audit record of a closed position.
func (m *Manager) ClosedCDP(id common.Hash) (*types.ClosedCDP, bool, error) {
	if m.archive == nil {
		return nil, false, nil
	}
	data, err := m.archive.Get(ClosedCdpKey(id))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	closed := new(types.ClosedCDP)
	if err := rlp.DecodeBytes(data, closed); err != nil {
		return nil, false, fmt.Errorf("state: decode closed cdp %s: %w", id.Hex(), err)
	}
	return closed, true, nil
}

// ClosedCDPsByTx lists the positions closed by a transaction.
func (m *Manager) ClosedCDPsByTx(txid common.Hash) ([]common.Hash, error) {
	if m.archive == nil {
		return nil, nil
	}
	prefix := join(closedCdpTxPrefix, txid.Bytes())
	var ids []common.Hash
	err := m.archive.Iterate(prefix, func(key, _ []byte) bool {
		ids = append(ids, common.BytesToHash(key[len(prefix):]))
		return true
	})
	return ids, err
}

// Receipts loads the receipts recorded for a transaction.
func (m *Manager) Receipts(txid common.Hash) (types.Receipts, bool, error) {
	if m.archive == nil {
		return nil, false, nil
	}
	data, err := m.archive.Get(ReceiptKey(txid))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var receipts types.Receipts
	if err := rlp.DecodeBytes(data, &receipts); err != nil {
		return nil, false, fmt.Errorf("state: decode receipts %s: %w", txid.Hex(), err)
	}
	return receipts, true, nil
}
