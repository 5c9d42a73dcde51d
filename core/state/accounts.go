package state

import (
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/rlp"

	"cdpledger/core/types"
)

type tokenRecord struct {
	Symbol string
	Token  types.AccountToken
}

// accountRecord is the RLP form of an account; token maps are flattened into
// a symbol-sorted list so the encoding is deterministic.
type accountRecord struct {
	KeyID          types.KeyID
	RegID          types.RegID
	OwnerPubKey    []byte
	MinerPubKey    []byte
	Perms          uint64
	Tokens         []tokenRecord
	ReceivedVotes  uint64
	LastVoteHeight uint64
	LastVoteEpoch  uint64
}

func encodeAccount(acct *types.Account) ([]byte, error) {
	rec := accountRecord{
		KeyID:          acct.KeyID,
		RegID:          acct.RegID,
		OwnerPubKey:    acct.OwnerPubKey,
		MinerPubKey:    acct.MinerPubKey,
		Perms:          acct.Perms,
		ReceivedVotes:  acct.ReceivedVotes,
		LastVoteHeight: acct.LastVoteHeight,
		LastVoteEpoch:  acct.LastVoteEpoch,
	}
	for _, symbol := range acct.Symbols() {
		token := acct.Tokens[symbol]
		if token.IsEmpty() {
			continue
		}
		rec.Tokens = append(rec.Tokens, tokenRecord{Symbol: symbol, Token: token})
	}
	return rlp.EncodeToBytes(&rec)
}

func decodeAccount(data []byte) (*types.Account, error) {
	var rec accountRecord
	if err := rlp.DecodeBytes(data, &rec); err != nil {
		return nil, err
	}
	acct := types.NewAccount(rec.KeyID)
	acct.RegID = rec.RegID
	if len(rec.OwnerPubKey) > 0 {
		acct.OwnerPubKey = types.PubKey(rec.OwnerPubKey)
	}
	if len(rec.MinerPubKey) > 0 {
		acct.MinerPubKey = types.PubKey(rec.MinerPubKey)
	}
	acct.Perms = rec.Perms
	acct.ReceivedVotes = rec.ReceivedVotes
	acct.LastVoteHeight = rec.LastVoteHeight
	acct.LastVoteEpoch = rec.LastVoteEpoch
	for _, token := range rec.Tokens {
		acct.Tokens[token.Symbol] = token.Token
	}
	return acct, nil
}

// isEmptyAccount reports whether persisting the account would carry no
// information beyond its key id.
func isEmptyAccount(acct *types.Account) bool {
	if acct == nil {
		return true
	}
	if !acct.RegID.IsEmpty() || len(acct.OwnerPubKey) > 0 || len(acct.MinerPubKey) > 0 {
		return false
	}
	if acct.Perms != 0 || acct.ReceivedVotes != 0 || acct.LastVoteHeight != 0 || acct.LastVoteEpoch != 0 {
		return false
	}
	for _, token := range acct.Tokens {
		if !token.IsEmpty() {
			return false
		}
	}
	return true
}

func keyIDByRegID(b backend, id types.RegID) (types.KeyID, bool, error) {
	if id.IsEmpty() {
		return types.KeyID{}, false, nil
	}
	data, err := b.getRaw(RegIDKey(id))
	if err != nil {
		return types.KeyID{}, false, err
	}
	if len(data) != types.KeyIDLength {
		return types.KeyID{}, false, nil
	}
	var keyID types.KeyID
	copy(keyID[:], data)
	return keyID, true, nil
}

// sortedKeyIDs returns the keys of the account map in byte order.
func sortedKeyIDs(entries map[types.KeyID]*accountEntry) []types.KeyID {
	ids := make([]types.KeyID, 0, len(entries))
	for id := range entries {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return string(ids[i][:]) < string(ids[j][:])
	})
	return ids
}

// Account returns the tracked account object for id. Repeated calls within
// the cache return the same object, so every mutation made through it is
// visible to later readers and flushed on Commit. The boolean reports whether
// the account existed before this cache touched it.
func (c *Cache) Account(id types.KeyID) (*types.Account, bool, error) {
	if entry, ok := c.accounts[id]; ok {
		return entry.acct, entry.existed, nil
	}
	acct, existed, err := c.parent.loadAccount(id)
	if err != nil {
		return nil, false, err
	}
	c.accounts[id] = &accountEntry{acct: acct, existed: existed}
	return acct, existed, nil
}

// AccountByUID resolves uid to its key id and returns the tracked account.
// Registration ids that are not indexed yield ok == false.
func (c *Cache) AccountByUID(uid types.UserID) (*types.Account, bool, error) {
	keyID, ok, err := uid.ResolvesToKeyID(c)
	if err != nil || !ok {
		return nil, false, err
	}
	acct, _, err := c.Account(keyID)
	if err != nil {
		return nil, false, err
	}
	return acct, true, nil
}

// SaveAccount replaces the tracked object for the account's key id.
func (c *Cache) SaveAccount(acct *types.Account) error {
	if acct == nil {
		return fmt.Errorf("state: nil account")
	}
	if entry, ok := c.accounts[acct.KeyID]; ok {
		entry.acct = acct
		return nil
	}
	_, existed, err := c.parent.loadAccount(acct.KeyID)
	if err != nil {
		return err
	}
	c.accounts[acct.KeyID] = &accountEntry{acct: acct, existed: existed}
	return nil
}

// KeyIDByRegID resolves a registration id. It implements types.RegIDResolver.
func (c *Cache) KeyIDByRegID(id types.RegID) (types.KeyID, bool, error) {
	return keyIDByRegID(c, id)
}

// SetRegID assigns a registration id to the account and indexes it.
func (c *Cache) SetRegID(acct *types.Account, id types.RegID) error {
	if id.IsEmpty() {
		return fmt.Errorf("state: empty regid")
	}
	if existing, ok, err := keyIDByRegID(c, id); err != nil {
		return err
	} else if ok && existing != acct.KeyID {
		return fmt.Errorf("state: regid %s already assigned", id)
	}
	acct.RegID = id
	if err := c.SaveAccount(acct); err != nil {
		return err
	}
	return c.putRaw(RegIDKey(id), acct.KeyID.Bytes())
}
