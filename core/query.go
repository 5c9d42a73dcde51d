package core

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"cdpledger/core/types"
	"cdpledger/native/oracle"
	"cdpledger/native/params"
)

// Account returns a copy of the committed account identified by uid.
func (l *Ledger) Account(uid types.UserID) (*types.Account, bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	cache := l.state.NewCache()
	keyID, ok, err := uid.ResolvesToKeyID(cache)
	if err != nil || !ok {
		return nil, false, err
	}
	acct, existed, err := cache.Account(keyID)
	if err != nil || !existed {
		return nil, false, err
	}
	return acct.Clone(), true, nil
}

// Balance returns the buckets of symbol held by uid. Unknown accounts hold
// nothing.
func (l *Ledger) Balance(uid types.UserID, symbol string) (types.AccountToken, error) {
	acct, ok, err := l.Account(uid)
	if err != nil || !ok {
		return types.AccountToken{}, err
	}
	return acct.Token(symbol), nil
}

// CDP loads an open position.
func (l *Ledger) CDP(id common.Hash) (*types.UserCDP, bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state.NewCache().GetCDP(id)
}

// CDPsByOwner lists the open positions of owner across every configured
// market.
func (l *Ledger) CDPsByOwner(owner types.RegID) ([]*types.UserCDP, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	cache := l.state.NewCache()
	pairs, err := params.NewStore(cache).CdpPairs()
	if err != nil {
		return nil, err
	}
	var out []*types.UserCDP
	for _, pair := range pairs {
		id, ok, err := cache.UserCDPByPair(owner, pair)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		pos, ok, err := cache.GetCDP(id)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("ledger: owner index of %s names missing cdp %s", owner, id.Hex())
		}
		out = append(out, pos)
	}
	return out, nil
}

// GlobalData returns the aggregate stake and debt of a market.
func (l *Ledger) GlobalData(pair types.CdpCoinPair) (*types.CdpGlobalData, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state.NewCache().CdpGlobalData(pair)
}

// MedianPrices returns the medians persisted by the last price median
// transaction.
func (l *Ledger) MedianPrices() (map[types.PriceCoinPair]types.PriceDetail, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return oracle.MedianPrices(l.state.NewCache())
}

// Receipts returns the balance receipts of an executed transaction.
func (l *Ledger) Receipts(txid common.Hash) (types.Receipts, bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state.Receipts(txid)
}

// ClosedCDP returns the audit record of a closed position. Records exist
// only when the ledger persists closed positions.
func (l *Ledger) ClosedCDP(id common.Hash) (*types.ClosedCDP, bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state.ClosedCDP(id)
}

// ClosedCDPsByTx lists the positions closed by a transaction.
func (l *Ledger) ClosedCDPsByTx(txid common.Hash) ([]common.Hash, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state.ClosedCDPsByTx(txid)
}

// SettledInterestCdps lists the positions a block producer should include
// in the interest settlement transaction of the block at height.
func (l *Ledger) SettledInterestCdps(height uint64) ([]common.Hash, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.newCdpEngine(l.state.NewCache()).GetSettledInterestCdps(height)
}

// BlockByHeight loads an executed block.
func (l *Ledger) BlockByHeight(height uint64) (*types.Block, error) {
	return l.chain.GetBlockByHeight(height)
}
