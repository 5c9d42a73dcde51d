package params

import (
	"fmt"
	"sort"

	"cdpledger/core/types"
)

// Network identifies the chain a node validates.
type Network string

const (
	MainNet    Network = "MAIN_NET"
	TestNet    Network = "TEST_NET"
	RegTestNet Network = "REGTEST_NET"
)

// Valid reports whether the network is recognised.
func (n Network) Valid() bool {
	switch n {
	case MainNet, TestNet, RegTestNet:
		return true
	default:
		return false
	}
}

// ForkVersion is the height-keyed protocol version.
type ForkVersion uint8

const (
	MajorVerR1 ForkVersion = iota + 1
	MajorVerR2
	MajorVerR3
)

func (v ForkVersion) String() string {
	switch v {
	case MajorVerR1:
		return "R1"
	case MajorVerR2:
		return "R2"
	case MajorVerR3:
		return "R3"
	default:
		return fmt.Sprintf("R?(%d)", uint8(v))
	}
}

// ForkHeights lists the activation heights of each fork version.
type ForkHeights struct {
	R2 uint64 `yaml:"r2" json:"r2"`
	R3 uint64 `yaml:"r3" json:"r3"`
}

// SysParams holds the chain-wide consensus parameters.
type SysParams struct {
	Network     Network     `yaml:"network" json:"network"`
	ForkHeights ForkHeights `yaml:"forkHeights" json:"forkHeights"`

	// Block production intervals before and after the R2 fork, in seconds.
	BlockIntervalSecs   uint64 `yaml:"blockIntervalSecs" json:"blockIntervalSecs"`
	BlockIntervalSecsR2 uint64 `yaml:"blockIntervalSecsR2" json:"blockIntervalSecsR2"`

	PriceFeedTimeoutBlocks  uint64 `yaml:"priceFeedTimeoutBlocks" json:"priceFeedTimeoutBlocks"`
	PriceMedianWindowBlocks uint64 `yaml:"priceMedianWindowBlocks" json:"priceMedianWindowBlocks"`

	CDPForceLiquidateMaxCount uint32 `yaml:"cdpForceLiquidateMaxCount" json:"cdpForceLiquidateMaxCount"`
	CDPSettleInterestMaxCount uint32 `yaml:"cdpSettleInterestMaxCount" json:"cdpSettleInterestMaxCount"`
	CDPSysOrderPenaltyFeeMin  uint64 `yaml:"cdpSysOrderPenaltyFeeMin" json:"cdpSysOrderPenaltyFeeMin"`

	// TransferScoinFrictionFeeRatio is charged on stable coin transfers, in
	// RatioBoost units.
	TransferScoinFrictionFeeRatio uint64 `yaml:"transferScoinFrictionFeeRatio" json:"transferScoinFrictionFeeRatio"`

	MaxVoteCandidateNum int    `yaml:"maxVoteCandidateNum" json:"maxVoteCandidateNum"`
	TotalDelegateNum    uint32 `yaml:"totalDelegateNum" json:"totalDelegateNum"`

	// RiskReserveRegID is the registration id ("height-index") of the risk
	// reserve account that absorbs liquidation flows.
	RiskReserveRegID string `yaml:"riskReserveRegId" json:"riskReserveRegId"`

	FcoinVoteMineEpochFrom uint64 `yaml:"fcoinVoteMineEpochFrom" json:"fcoinVoteMineEpochFrom"`
	FcoinVoteMineEpochTo   uint64 `yaml:"fcoinVoteMineEpochTo" json:"fcoinVoteMineEpochTo"`

	InitialSubsidyRate uint8 `yaml:"initialSubsidyRate" json:"initialSubsidyRate"`
	FixedSubsidyRate   uint8 `yaml:"fixedSubsidyRate" json:"fixedSubsidyRate"`
}

// InterestParamChange activates new interest coefficients at Height.
type InterestParamChange struct {
	Height uint64 `yaml:"height" json:"height"`
	A      uint64 `yaml:"a" json:"a"`
	B      uint64 `yaml:"b" json:"b"`
}

// InterestInterval is the portion [Begin, End) of a queried range governed by
// a single pair of coefficients.
type InterestInterval struct {
	Begin uint64
	End   uint64
	A     uint64
	B     uint64
}

// CdpParams holds the per coin pair CDP thresholds. Ratios are in
// RatioBoost units; GlobalCollateralCeiling is in whole coins.
type CdpParams struct {
	BcoinSymbol string `yaml:"bcoin" json:"bcoin"`
	ScoinSymbol string `yaml:"scoin" json:"scoin"`

	StartCollateralRatio    uint64 `yaml:"startCollateralRatio" json:"startCollateralRatio"`
	StartLiquidateRatio     uint64 `yaml:"startLiquidateRatio" json:"startLiquidateRatio"`
	NonReturnLiquidateRatio uint64 `yaml:"nonReturnLiquidateRatio" json:"nonReturnLiquidateRatio"`
	ForceLiquidateRatio     uint64 `yaml:"forceLiquidateRatio" json:"forceLiquidateRatio"`
	LiquidateDiscountRatio  uint64 `yaml:"liquidateDiscountRatio" json:"liquidateDiscountRatio"`
	GlobalCollateralFloor   uint64 `yaml:"globalCollateralRatioMin" json:"globalCollateralRatioMin"`
	GlobalCollateralCeiling uint64 `yaml:"globalCollateralCeilingAmount" json:"globalCollateralCeilingAmount"`

	// MinStakeValueInScoin is the minimum collateral value, in boosted stable
	// coin units, that a position must keep.
	MinStakeValueInScoin uint64 `yaml:"bcoinsToStakeAmountMinInScoin" json:"bcoinsToStakeAmountMinInScoin"`
	// InterestSettleCycleDays is the age after which interest may be rolled
	// into debt by the system settlement transaction.
	InterestSettleCycleDays uint64 `yaml:"convertInterestToDebtDays" json:"convertInterestToDebtDays"`

	InterestHistory []InterestParamChange `yaml:"interestHistory" json:"interestHistory"`
}

// CoinPair returns the market key of the parameter set.
func (p CdpParams) CoinPair() types.CdpCoinPair {
	return types.CdpCoinPair{BcoinSymbol: p.BcoinSymbol, ScoinSymbol: p.ScoinSymbol}
}

// MinStakeBcoins converts the minimum stake value into collateral units at
// price.
func (p CdpParams) MinStakeBcoins(price uint64) uint64 {
	if price == 0 {
		return 0
	}
	return uint64(float64(p.MinStakeValueInScoin) / (float64(price) / float64(types.PriceBoost)))
}

// InterestParamChanges splits [begin, end) into the sub-intervals governed by
// each historical coefficient change. An empty range yields the single
// interval in effect at begin.
func (p CdpParams) InterestParamChanges(begin, end uint64) ([]InterestInterval, error) {
	if end < begin {
		return nil, fmt.Errorf("params: interest range [%d, %d) is inverted", begin, end)
	}
	history := append([]InterestParamChange(nil), p.InterestHistory...)
	sort.SliceStable(history, func(i, j int) bool { return history[i].Height < history[j].Height })
	if len(history) == 0 || history[0].Height > begin {
		return nil, fmt.Errorf("params: no interest coefficients in effect at height %d for %s", begin, p.CoinPair())
	}
	if begin == end {
		idx := sort.Search(len(history), func(i int) bool { return history[i].Height > begin }) - 1
		change := history[idx]
		return []InterestInterval{{Begin: begin, End: end, A: change.A, B: change.B}}, nil
	}
	var out []InterestInterval
	for i, change := range history {
		next := ^uint64(0)
		if i+1 < len(history) {
			next = history[i+1].Height
		}
		from, to := change.Height, next
		if from < begin {
			from = begin
		}
		if to > end {
			to = end
		}
		if from < to {
			out = append(out, InterestInterval{Begin: from, End: to, A: change.A, B: change.B})
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("params: no interest coefficients in effect for [%d, %d)", begin, end)
	}
	return out, nil
}

// Genesis bundles the consensus parameters loaded from the params file.
type Genesis struct {
	System SysParams   `yaml:"system" json:"system"`
	CDP    []CdpParams `yaml:"cdp" json:"cdp"`
}

// CdpParamsFor returns the parameter set of a coin pair.
func (g *Genesis) CdpParamsFor(pair types.CdpCoinPair) (CdpParams, bool) {
	for _, p := range g.CDP {
		if p.CoinPair() == pair {
			return p, true
		}
	}
	return CdpParams{}, false
}

// DefaultSysParams returns the main network system parameters.
func DefaultSysParams() SysParams {
	return SysParams{
		Network:                       MainNet,
		ForkHeights:                   ForkHeights{R2: 3_880_000, R3: 8_200_000},
		BlockIntervalSecs:             10,
		BlockIntervalSecsR2:           3,
		PriceFeedTimeoutBlocks:        30,
		PriceMedianWindowBlocks:       11,
		CDPForceLiquidateMaxCount:     1000,
		CDPSettleInterestMaxCount:     100,
		CDPSysOrderPenaltyFeeMin:      10,
		TransferScoinFrictionFeeRatio: 0,
		MaxVoteCandidateNum:           22,
		TotalDelegateNum:              11,
		RiskReserveRegID:              "0-1",
		FcoinVoteMineEpochFrom:        1_569_340_800,
		FcoinVoteMineEpochTo:          1_884_700_800,
		InitialSubsidyRate:            5,
		FixedSubsidyRate:              1,
	}
}

// DefaultCdpParams returns the genesis parameters of the WICC/WUSD market.
func DefaultCdpParams() CdpParams {
	return CdpParams{
		BcoinSymbol:             types.SymbolWICC,
		ScoinSymbol:             types.SymbolWUSD,
		StartCollateralRatio:    19_000,
		StartLiquidateRatio:     15_000,
		NonReturnLiquidateRatio: 11_300,
		ForceLiquidateRatio:     10_400,
		LiquidateDiscountRatio:  9_700,
		GlobalCollateralFloor:   8_000,
		GlobalCollateralCeiling: 52_500_000,
		MinStakeValueInScoin:    90 * types.Coin,
		InterestSettleCycleDays: 30,
		InterestHistory:         []InterestParamChange{{Height: 0, A: 2, B: 1}},
	}
}

// DefaultGenesis returns the default consensus parameter bundle.
func DefaultGenesis() *Genesis {
	return &Genesis{System: DefaultSysParams(), CDP: []CdpParams{DefaultCdpParams()}}
}
