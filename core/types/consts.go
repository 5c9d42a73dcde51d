package types

import "math"

// Fixed-point scale factors. Every monetary amount is a uint64 boosted by
// Coin; prices are boosted by PriceBoost and ratios by RatioBoost.
const (
	Coin       uint64 = 100_000_000
	PriceBoost uint64 = 100_000_000
	RatioBoost uint64 = 10_000

	// MaxBaseCoinMoney bounds every single base coin amount (21 billion coins).
	MaxBaseCoinMoney uint64 = 21_000_000_000 * Coin
	// MaxFundCoinMoney bounds every single fund coin amount.
	MaxFundCoinMoney uint64 = 21_000_000_000 * Coin

	// SecondsPerYear is the divisor used by time-based vote interest.
	SecondsPerYear = 31_536_000
)

// Native token symbols.
const (
	SymbolWICC = "WICC" // base coin, CDP collateral
	SymbolWGRT = "WGRT" // fund coin, governance token
	SymbolWUSD = "WUSD" // stable coin minted by CDPs
	SymbolUSD  = "USD"  // quote currency of the price feed
)

// CdpScoinSymbols lists the stable coins a CDP may mint.
var CdpScoinSymbols = map[string]struct{}{SymbolWUSD: {}}

var scoinQuotes = map[string]string{SymbolWUSD: SymbolUSD}

// QuoteSymbolByScoin resolves the price-feed quote currency of a stable coin.
// An empty result means the symbol is not a recognized stable coin.
func QuoteSymbolByScoin(scoin string) string {
	return scoinQuotes[scoin]
}

// ScoinByQuoteSymbol is the reverse of QuoteSymbolByScoin.
func ScoinByQuoteSymbol(quote string) string {
	for scoin, q := range scoinQuotes {
		if q == quote {
			return scoin
		}
	}
	return ""
}

// IsScoin reports whether symbol is a CDP stable coin.
func IsScoin(symbol string) bool {
	_, ok := CdpScoinSymbols[symbol]
	return ok
}

// CheckBaseCoinRange reports whether amount is within the base coin bound.
func CheckBaseCoinRange(amount uint64) bool {
	return amount <= MaxBaseCoinMoney
}

// CheckFundCoinRange reports whether amount is within the fund coin bound.
func CheckFundCoinRange(amount uint64) bool {
	return amount <= MaxFundCoinMoney
}

// CalcCollateralRatio returns asset value over debt in RatioBoost units. The
// arithmetic intentionally runs in float64 and truncates, matching every
// other node on the network.
func CalcCollateralRatio(assetAmount, scoinAmount, price uint64) uint64 {
	if scoinAmount == 0 {
		return math.MaxUint64
	}
	return uint64(float64(assetAmount) * float64(price) / float64(PriceBoost) / float64(scoinAmount) * float64(RatioBoost))
}

// ValueInScoin converts an asset amount into stable coin units at price.
func ValueInScoin(assetAmount, price uint64) uint64 {
	return uint64(float64(assetAmount) * float64(price) / float64(PriceBoost))
}
