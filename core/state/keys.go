package state

import (
	"github.com/ethereum/go-ethereum/common"

	"cdpledger/core/types"
)

var (
	accountPrefix     = []byte("acct/")
	regIDPrefix       = []byte("regid/")
	cdpPrefix         = []byte("cdp/")
	cdpPairPrefix     = []byte("cdp-pair/")
	cdpOwnerPrefix    = []byte("cdp-owner/")
	cdpGlobalPrefix   = []byte("cdp-global/")
	cdpBcoinPrefix    = []byte("cdp-bcoin/")
	cdpBcoinListKey   = []byte("cdp-bcoins")
	paramStorePrefix  = []byte("params/")
	closedCdpPrefix   = []byte("closed-cdp/")
	closedCdpTxPrefix = []byte("closed-cdp-tx/")
	receiptPrefix     = []byte("receipt/")
)

func join(parts ...[]byte) []byte {
	size := 0
	for _, p := range parts {
		size += len(p)
	}
	buf := make([]byte, 0, size)
	for _, p := range parts {
		buf = append(buf, p...)
	}
	return buf
}

// AccountKey returns the state key of an account record.
func AccountKey(id types.KeyID) []byte { return join(accountPrefix, id[:]) }

// RegIDKey returns the state key of the registration id index entry.
func RegIDKey(id types.RegID) []byte { return join(regIDPrefix, id.Bytes()) }

// CdpKey returns the state key of a position.
func CdpKey(id common.Hash) []byte { return join(cdpPrefix, id.Bytes()) }

// CdpPairKey returns the key of the position id list of a coin pair.
func CdpPairKey(pair types.CdpCoinPair) []byte { return join(cdpPairPrefix, []byte(pair.String())) }

// CdpOwnerKey returns the key of the owner's position on a coin pair.
func CdpOwnerKey(owner types.RegID, pair types.CdpCoinPair) []byte {
	return join(cdpOwnerPrefix, owner.Bytes(), []byte("/"+pair.String()))
}

// CdpGlobalKey returns the key of the aggregate totals of a coin pair.
func CdpGlobalKey(pair types.CdpCoinPair) []byte { return join(cdpGlobalPrefix, []byte(pair.String())) }

// CdpBcoinKey returns the key of a collateral activation record.
func CdpBcoinKey(symbol string) []byte { return join(cdpBcoinPrefix, []byte(symbol)) }

// ParamStoreKey returns the key of a named parameter blob.
func ParamStoreKey(name string) []byte { return join(paramStorePrefix, []byte(name)) }

// ClosedCdpKey returns the archive key of a closed position.
func ClosedCdpKey(id common.Hash) []byte { return join(closedCdpPrefix, id.Bytes()) }

// ClosedCdpTxKey returns the archive key linking a closing transaction to a
// position it closed.
func ClosedCdpTxKey(txid, id common.Hash) []byte {
	return join(closedCdpTxPrefix, txid.Bytes(), id.Bytes())
}

// ReceiptKey returns the archive key of a transaction's receipts.
func ReceiptKey(txid common.Hash) []byte { return join(receiptPrefix, txid.Bytes()) }
