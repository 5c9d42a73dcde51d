package cdp

import (
	"fmt"
	"sort"

	"cdpledger/core/types"
	"cdpledger/native/params"
)

// CoinPairDetail describes a CDP market eligible for system processing at a
// block: its collateral price and activation coordinate.
type CoinPairDetail struct {
	Pair        types.CdpCoinPair
	PriceActive bool
	StakedPerm  bool
	BcoinPrice  uint64
	InitTxCord  types.TxCord
}

func (d CoinPairDetail) less(o CoinPairDetail) bool {
	if d.PriceActive != o.PriceActive {
		return !d.PriceActive
	}
	if d.StakedPerm != o.StakedPerm {
		return !d.StakedPerm
	}
	if d.InitTxCord != o.InitTxCord {
		return d.InitTxCord.Less(o.InitTxCord)
	}
	return d.Pair.Less(o.Pair)
}

type bcoinReader interface {
	CdpBcoin(symbol string) (*types.CdpBcoinDetail, bool, error)
}

// CoinPairDetails maps the median prices onto the CDP markets they price.
// The fund coin feed, quotes without a stable coin and collateral that was
// never activated are skipped. Before fork R3 every price counts as active.
// The result is ordered with inactive prices first, then by activation.
func CoinPairDetails(state bcoinReader, sys params.SysParams, height uint64,
	medians map[types.PriceCoinPair]types.PriceDetail) ([]CoinPairDetail, error) {
	version := sys.FeatureForkVersion(height)
	out := make([]CoinPairDetail, 0, len(medians))
	for pricePair, detail := range medians {
		if pricePair == types.FcoinPriceCoinPair {
			continue
		}
		scoin := types.ScoinByQuoteSymbol(pricePair.Quote)
		if scoin == "" {
			continue
		}
		if scoin != types.SymbolWUSD {
			return nil, fmt.Errorf("cdp: only %s can be force liquidated, got %s", types.SymbolWUSD, scoin)
		}
		bcoin, ok, err := state.CdpBcoin(pricePair.Base)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		active := true
		if version >= params.MajorVerR3 && !detail.IsActive(height, sys.PriceFeedTimeoutBlocks) {
			active = false
		}
		out = append(out, CoinPairDetail{
			Pair:        types.CdpCoinPair{BcoinSymbol: pricePair.Base, ScoinSymbol: scoin},
			PriceActive: active,
			StakedPerm:  true,
			BcoinPrice:  detail.Price,
			InitTxCord:  bcoin.InitTxCord,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].less(out[j]) })
	return out, nil
}
