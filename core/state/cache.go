package state

import (
	"sort"

	"github.com/ethereum/go-ethereum/common"

	"cdpledger/core/types"
)

type accountEntry struct {
	acct    *types.Account
	existed bool
}

// Cache is a write overlay over a backend. Transactions execute against a
// Cache opened on the block cache; Commit publishes the overlay into its
// parent and dropping the Cache discards it.
//
// Cache is not safe for concurrent use.
type Cache struct {
	parent   backend
	writes   map[string][]byte // nil value marks a deletion
	accounts map[types.KeyID]*accountEntry
	archive  map[string][]byte
}

func newCache(parent backend) *Cache {
	return &Cache{
		parent:   parent,
		writes:   make(map[string][]byte),
		accounts: make(map[types.KeyID]*accountEntry),
		archive:  make(map[string][]byte),
	}
}

// NewCache opens a nested overlay on top of this cache.
func (c *Cache) NewCache() *Cache {
	return newCache(c)
}

func (c *Cache) getRaw(key []byte) ([]byte, error) {
	if value, ok := c.writes[string(key)]; ok {
		if value == nil {
			return nil, nil
		}
		return append([]byte(nil), value...), nil
	}
	return c.parent.getRaw(key)
}

func (c *Cache) putRaw(key, value []byte) error {
	c.writes[string(key)] = append([]byte{}, value...)
	return nil
}

func (c *Cache) deleteRaw(key []byte) error {
	c.writes[string(key)] = nil
	return nil
}

func (c *Cache) loadAccount(id types.KeyID) (*types.Account, bool, error) {
	if entry, ok := c.accounts[id]; ok {
		return entry.acct.Clone(), entry.existed || !isEmptyAccount(entry.acct), nil
	}
	return c.parent.loadAccount(id)
}

func (c *Cache) storeAccount(acct *types.Account) error {
	c.accounts[acct.KeyID] = &accountEntry{acct: acct.Clone(), existed: true}
	return nil
}

func (c *Cache) putArchive(key, value []byte) error {
	c.archive[string(key)] = append([]byte(nil), value...)
	return nil
}

// Commit flushes every pending write into the parent and resets the cache.
// Accounts that never existed and are still empty are not persisted.
func (c *Cache) Commit() error {
	keys := make([]string, 0, len(c.writes))
	for key := range c.writes {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		value := c.writes[key]
		var err error
		if value == nil {
			err = c.parent.deleteRaw([]byte(key))
		} else {
			err = c.parent.putRaw([]byte(key), value)
		}
		if err != nil {
			return err
		}
	}
	for _, id := range sortedKeyIDs(c.accounts) {
		entry := c.accounts[id]
		if !entry.existed && isEmptyAccount(entry.acct) {
			continue
		}
		if err := c.parent.storeAccount(entry.acct); err != nil {
			return err
		}
	}
	archiveKeys := make([]string, 0, len(c.archive))
	for key := range c.archive {
		archiveKeys = append(archiveKeys, key)
	}
	sort.Strings(archiveKeys)
	for _, key := range archiveKeys {
		if err := c.parent.putArchive([]byte(key), c.archive[key]); err != nil {
			return err
		}
	}
	c.Discard()
	return nil
}

// Discard drops every pending write.
func (c *Cache) Discard() {
	c.writes = make(map[string][]byte)
	c.accounts = make(map[types.KeyID]*accountEntry)
	c.archive = make(map[string][]byte)
}

// KVPut stores an RLP encoded value under key.
func (c *Cache) KVPut(key []byte, value interface{}) error { return kvPut(c, key, value) }

// KVGet decodes the value under key into out.
func (c *Cache) KVGet(key []byte, out interface{}) (bool, error) { return kvGet(c, key, out) }

// KVGetList decodes a list under key; a missing key yields an empty slice.
func (c *Cache) KVGetList(key []byte, out interface{}) error { return kvGetList(c, key, out) }

// KVDelete removes key.
func (c *Cache) KVDelete(key []byte) error { return kvDelete(c, key) }

// ParamStoreSet stores a raw parameter blob.
func (c *Cache) ParamStoreSet(name string, value []byte) error {
	return paramStoreSet(c, name, value)
}

// ParamStoreGet loads a raw parameter blob.
func (c *Cache) ParamStoreGet(name string) ([]byte, bool, error) {
	return paramStoreGet(c, name)
}

// StageReceipts archives the receipts of a transaction on commit.
func (c *Cache) StageReceipts(txid common.Hash, receipts types.Receipts) error {
	encoded, err := encodeRLP(receipts)
	if err != nil {
		return err
	}
	return c.putArchive(ReceiptKey(txid), encoded)
}
