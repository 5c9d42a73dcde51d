package state

import (
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"

	"cdpledger/core/types"
)

func encodeRLP(value interface{}) ([]byte, error) {
	return rlp.EncodeToBytes(value)
}

// GetCDP loads a position. The returned value is a private copy; callers
// persist changes through UpdateCDP.
func (c *Cache) GetCDP(id common.Hash) (*types.UserCDP, bool, error) {
	cdp := new(types.UserCDP)
	ok, err := kvGet(c, CdpKey(id), cdp)
	if err != nil {
		return nil, false, fmt.Errorf("state: load cdp %s: %w", id.Hex(), err)
	}
	if !ok {
		return nil, false, nil
	}
	return cdp, true, nil
}

// UserCDPByPair returns the id of the owner's position on pair.
func (c *Cache) UserCDPByPair(owner types.RegID, pair types.CdpCoinPair) (common.Hash, bool, error) {
	data, err := c.getRaw(CdpOwnerKey(owner, pair))
	if err != nil {
		return common.Hash{}, false, err
	}
	if len(data) != common.HashLength {
		return common.Hash{}, false, nil
	}
	return common.BytesToHash(data), true, nil
}

// cdpIndexEntry is one position in the ratio-ordered index of a pair. It
// carries the fields the order depends on so scans need not load records.
type cdpIndexEntry struct {
	ID     common.Hash
	Staked uint64
	Owed   uint64
	Height uint64
}

func newIndexEntry(cdp *types.UserCDP) cdpIndexEntry {
	return cdpIndexEntry{ID: cdp.ID, Staked: cdp.TotalStakedBcoins, Owed: cdp.TotalOwedScoins, Height: cdp.BlockHeight}
}

// before orders entries by staked/owed, then height, then id.
func (e cdpIndexEntry) before(o cdpIndexEntry) bool {
	if cmp := types.CompareStakeRatio(e.Staked, e.Owed, o.Staked, o.Owed); cmp != 0 {
		return cmp < 0
	}
	if e.Height != o.Height {
		return e.Height < o.Height
	}
	return e.ID.Cmp(o.ID) < 0
}

func (c *Cache) cdpIndex(pair types.CdpCoinPair) ([]cdpIndexEntry, error) {
	var entries []cdpIndexEntry
	if err := kvGetList(c, CdpPairKey(pair), &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func (c *Cache) indexInsert(cdp *types.UserCDP) error {
	pair := cdp.CoinPair()
	entries, err := c.cdpIndex(pair)
	if err != nil {
		return err
	}
	entry := newIndexEntry(cdp)
	at := sort.Search(len(entries), func(i int) bool { return entry.before(entries[i]) })
	entries = append(entries, cdpIndexEntry{})
	copy(entries[at+1:], entries[at:])
	entries[at] = entry
	return kvPut(c, CdpPairKey(pair), entries)
}

func (c *Cache) indexRemove(pair types.CdpCoinPair, id common.Hash) error {
	entries, err := c.cdpIndex(pair)
	if err != nil {
		return err
	}
	kept := entries[:0]
	for _, entry := range entries {
		if entry.ID != id {
			kept = append(kept, entry)
		}
	}
	return kvPut(c, CdpPairKey(pair), kept)
}

func (c *Cache) applyGlobal(pair types.CdpCoinPair, before, after *types.UserCDP) error {
	global, err := c.CdpGlobalData(pair)
	if err != nil {
		return err
	}
	global.Apply(before, after)
	return kvPut(c, CdpGlobalKey(pair), global)
}

// NewCDP stores a freshly opened position and indexes it.
func (c *Cache) NewCDP(cdp *types.UserCDP) error {
	if _, exists, err := c.GetCDP(cdp.ID); err != nil {
		return err
	} else if exists {
		return fmt.Errorf("state: cdp %s already exists", cdp.ID.Hex())
	}
	pair := cdp.CoinPair()
	if err := kvPut(c, CdpKey(cdp.ID), cdp); err != nil {
		return err
	}
	if err := c.indexInsert(cdp); err != nil {
		return err
	}
	if err := c.putRaw(CdpOwnerKey(cdp.Owner, pair), cdp.ID.Bytes()); err != nil {
		return err
	}
	return c.applyGlobal(pair, nil, cdp)
}

// UpdateCDP persists a modified position, moves it within the ratio index
// and moves the pair totals by the difference from the stored version.
func (c *Cache) UpdateCDP(cdp *types.UserCDP) error {
	old, ok, err := c.GetCDP(cdp.ID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("state: update missing cdp %s", cdp.ID.Hex())
	}
	if err := kvPut(c, CdpKey(cdp.ID), cdp); err != nil {
		return err
	}
	if newIndexEntry(old) != newIndexEntry(cdp) {
		if err := c.indexRemove(old.CoinPair(), old.ID); err != nil {
			return err
		}
		if err := c.indexInsert(cdp); err != nil {
			return err
		}
	}
	return c.applyGlobal(cdp.CoinPair(), old, cdp)
}

// EraseCDP removes a position and every index entry pointing at it.
func (c *Cache) EraseCDP(id common.Hash) error {
	old, ok, err := c.GetCDP(id)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("state: erase missing cdp %s", id.Hex())
	}
	pair := old.CoinPair()
	if err := c.indexRemove(pair, id); err != nil {
		return err
	}
	if err := c.deleteRaw(CdpKey(id)); err != nil {
		return err
	}
	if err := c.deleteRaw(CdpOwnerKey(old.Owner, pair)); err != nil {
		return err
	}
	return c.applyGlobal(pair, old, nil)
}

// CdpGlobalData returns the aggregate totals of a coin pair.
func (c *Cache) CdpGlobalData(pair types.CdpCoinPair) (*types.CdpGlobalData, error) {
	global := types.NewCdpGlobalData()
	if _, err := kvGet(c, CdpGlobalKey(pair), global); err != nil {
		return nil, fmt.Errorf("state: load cdp totals %s: %w", pair, err)
	}
	global.EnsureDefaults()
	return global, nil
}

func (c *Cache) loadIndexed(pair types.CdpCoinPair, entry cdpIndexEntry) (*types.UserCDP, error) {
	cdp, ok, err := c.GetCDP(entry.ID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("state: cdp index of %s references missing %s", pair, entry.ID.Hex())
	}
	return cdp, nil
}

// CdpListByCollateralRatio lists the positions of pair whose ratio at price
// is at most maxRatio, lowest ratio first. Truncated ratios may disagree with
// the exact index order by one unit, so the walk ends past maxRatio+1.
func (c *Cache) CdpListByCollateralRatio(pair types.CdpCoinPair, maxRatio, price uint64) ([]*types.UserCDP, error) {
	entries, err := c.cdpIndex(pair)
	if err != nil {
		return nil, err
	}
	var out []*types.UserCDP
	for _, entry := range entries {
		ratio := types.CalcCollateralRatio(entry.Staked, entry.Owed, price)
		if ratio > maxRatio {
			if ratio-maxRatio > 1 {
				break
			}
			continue
		}
		cdp, err := c.loadIndexed(pair, entry)
		if err != nil {
			return nil, err
		}
		out = append(out, cdp)
	}
	return out, nil
}

// CdpListByHeight lists the positions of pair by last settlement height.
func (c *Cache) CdpListByHeight(pair types.CdpCoinPair) ([]*types.UserCDP, error) {
	entries, err := c.cdpIndex(pair)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Height != entries[j].Height {
			return entries[i].Height < entries[j].Height
		}
		return entries[i].ID.Cmp(entries[j].ID) < 0
	})
	out := make([]*types.UserCDP, 0, len(entries))
	for _, entry := range entries {
		cdp, err := c.loadIndexed(pair, entry)
		if err != nil {
			return nil, err
		}
		out = append(out, cdp)
	}
	return out, nil
}

// CdpBcoin returns the activation record of a collateral asset.
func (c *Cache) CdpBcoin(symbol string) (*types.CdpBcoinDetail, bool, error) {
	detail := new(types.CdpBcoinDetail)
	ok, err := kvGet(c, CdpBcoinKey(symbol), detail)
	if err != nil || !ok {
		return nil, ok, err
	}
	return detail, true, nil
}

// ActivateCdpBcoin records symbol as eligible collateral from cord on.
func (c *Cache) ActivateCdpBcoin(symbol string, cord types.TxCord) error {
	if _, ok, err := c.CdpBcoin(symbol); err != nil {
		return err
	} else if ok {
		return nil
	}
	if err := kvPut(c, CdpBcoinKey(symbol), &types.CdpBcoinDetail{Symbol: symbol, InitTxCord: cord}); err != nil {
		return err
	}
	var symbols []string
	if err := kvGetList(c, cdpBcoinListKey, &symbols); err != nil {
		return err
	}
	symbols = append(symbols, symbol)
	sort.Strings(symbols)
	return kvPut(c, cdpBcoinListKey, symbols)
}

// CdpBcoins lists every activated collateral asset.
func (c *Cache) CdpBcoins() ([]*types.CdpBcoinDetail, error) {
	var symbols []string
	if err := kvGetList(c, cdpBcoinListKey, &symbols); err != nil {
		return nil, err
	}
	out := make([]*types.CdpBcoinDetail, 0, len(symbols))
	for _, symbol := range symbols {
		detail, ok, err := c.CdpBcoin(symbol)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, detail)
		}
	}
	return out, nil
}

// StageClosedCDP archives the closing record of a position on commit.
func (c *Cache) StageClosedCDP(closed types.ClosedCDP) error {
	encoded, err := encodeRLP(&closed)
	if err != nil {
		return err
	}
	if err := c.putArchive(ClosedCdpKey(closed.CdpID), encoded); err != nil {
		return err
	}
	return c.putArchive(ClosedCdpTxKey(closed.CloseTxID, closed.CdpID), []byte{byte(closed.CloseType)})
}
