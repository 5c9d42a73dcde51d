// Package dex holds the system market orders through which liquidations,
// interest and fees are sold.
package dex

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"cdpledger/core/ledger"
	"cdpledger/core/types"
)

var (
	errOrderExists      = errors.New("dex: order id already exists")
	errOrderFunds       = errors.New("dex: owner lacks frozen funds for order")
	errOrderAmount      = errors.New("dex: order amount must be positive")
	errOrderSymbolsSame = errors.New("dex: coin and asset symbol must differ")
)

// Side is the direction of an order.
type Side uint8

const (
	SideBuy Side = iota + 1
	SideSell
)

func (s Side) String() string {
	switch s {
	case SideBuy:
		return "BUY"
	case SideSell:
		return "SELL"
	default:
		return "NONE"
	}
}

// Order tags recording why the system placed an order.
const (
	TagCdpInterest      = "cdp_interest"
	TagCdpPenalty       = "cdp_penalty"
	TagCdpAsset         = "cdp_asset"
	TagCdpInflateFcoin  = "cdp_inflate_fcoin"
	TagTransferFriction = "transfer_friction"
)

// SysOrder is a market order placed by the protocol. Buy orders spend
// CoinAmount of CoinSymbol; sell orders spend AssetAmount of AssetSymbol.
type SysOrder struct {
	Side        Side
	CoinSymbol  string
	AssetSymbol string
	CoinAmount  uint64
	AssetAmount uint64
	TxCord      types.TxCord
	Owner       types.KeyID
	Tag         string
	Ref         common.Hash
}

// NewBuyMarketOrder spends coinAmount of coin to buy asset.
func NewBuyMarketOrder(cord types.TxCord, coin, asset string, coinAmount uint64, tag string, ref common.Hash) *SysOrder {
	return &SysOrder{Side: SideBuy, CoinSymbol: coin, AssetSymbol: asset, CoinAmount: coinAmount, TxCord: cord, Tag: tag, Ref: ref}
}

// NewSellMarketOrder sells assetAmount of asset for coin.
func NewSellMarketOrder(cord types.TxCord, coin, asset string, assetAmount uint64, tag string, ref common.Hash) *SysOrder {
	return &SysOrder{Side: SideSell, CoinSymbol: coin, AssetSymbol: asset, AssetAmount: assetAmount, TxCord: cord, Tag: tag, Ref: ref}
}

// FrozenSymbol returns the symbol the order locks.
func (o *SysOrder) FrozenSymbol() string {
	if o.Side == SideBuy {
		return o.CoinSymbol
	}
	return o.AssetSymbol
}

// FrozenAmount returns the amount the order locks.
func (o *SysOrder) FrozenAmount() uint64 {
	if o.Side == SideBuy {
		return o.CoinAmount
	}
	return o.AssetAmount
}

// Store is the state capability used by the order book.
type Store interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

var activeOrderPrefix = []byte("dex/active/")

func activeOrderKey(id common.Hash) []byte {
	return append(append([]byte(nil), activeOrderPrefix...), id.Bytes()...)
}

// CreateActiveOrder places order under id on behalf of owner. The owner
// must already hold the order amount in its frozen bucket.
func CreateActiveOrder(store Store, id common.Hash, order *SysOrder, owner *types.Account) error {
	if order.FrozenAmount() == 0 {
		return errOrderAmount
	}
	if order.CoinSymbol == order.AssetSymbol {
		return errOrderSymbolsSame
	}
	exists, err := store.KVGet(activeOrderKey(id), nil)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: %s", errOrderExists, id.Hex())
	}
	if !ledger.CheckBalance(owner, order.FrozenSymbol(), types.BalanceFrozen, order.FrozenAmount()) {
		return fmt.Errorf("%w: %s needs %d %s frozen", errOrderFunds, owner.KeyID, order.FrozenAmount(), order.FrozenSymbol())
	}
	order.Owner = owner.KeyID
	return store.KVPut(activeOrderKey(id), order)
}

// ActiveOrder loads an order by id.
func ActiveOrder(store Store, id common.Hash) (*SysOrder, bool, error) {
	order := new(SysOrder)
	ok, err := store.KVGet(activeOrderKey(id), order)
	if err != nil || !ok {
		return nil, ok, err
	}
	return order, true, nil
}

// OrderID derives a deterministic order id from its parts.
func OrderID(parts ...[]byte) common.Hash {
	return ethcrypto.Keccak256Hash(parts...)
}

// IndexBytes encodes a sequence number as an unsigned varint.
func IndexBytes(index uint64) []byte {
	buf := make([]byte, binary.MaxVarintLen64)
	n := binary.PutUvarint(buf, index)
	return buf[:n]
}
