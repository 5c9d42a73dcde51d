package params

import (
	"fmt"

	"cdpledger/core/types"
)

// Validate checks the system parameters for internal consistency.
func (p SysParams) Validate() error {
	if !p.Network.Valid() {
		return fmt.Errorf("params: unknown network %q", p.Network)
	}
	if p.ForkHeights.R2 > 0 && p.ForkHeights.R3 > 0 && p.ForkHeights.R3 < p.ForkHeights.R2 {
		return fmt.Errorf("params: fork R3 height %d precedes R2 height %d", p.ForkHeights.R3, p.ForkHeights.R2)
	}
	if p.BlockIntervalSecs == 0 || p.BlockIntervalSecsR2 == 0 {
		return fmt.Errorf("params: block intervals must be positive")
	}
	if p.BlockIntervalSecs > secondsPerDay || p.BlockIntervalSecsR2 > secondsPerDay {
		return fmt.Errorf("params: block interval exceeds one day")
	}
	if p.PriceMedianWindowBlocks == 0 {
		return fmt.Errorf("params: price median window must be positive")
	}
	if p.CDPForceLiquidateMaxCount == 0 || p.CDPSettleInterestMaxCount == 0 {
		return fmt.Errorf("params: cdp batch caps must be positive")
	}
	if p.TransferScoinFrictionFeeRatio > types.RatioBoost {
		return fmt.Errorf("params: friction fee ratio %d exceeds %d", p.TransferScoinFrictionFeeRatio, types.RatioBoost)
	}
	if p.MaxVoteCandidateNum <= 0 {
		return fmt.Errorf("params: max vote candidate number must be positive")
	}
	if _, err := types.ParseRegID(p.RiskReserveRegID); err != nil {
		return fmt.Errorf("params: risk reserve: %w", err)
	}
	if p.FcoinVoteMineEpochFrom > p.FcoinVoteMineEpochTo {
		return fmt.Errorf("params: vote mining window is inverted")
	}
	if p.FixedSubsidyRate == 0 || p.FixedSubsidyRate > p.InitialSubsidyRate {
		return fmt.Errorf("params: subsidy rates must satisfy 0 < fixed <= initial")
	}
	return nil
}

// Validate checks the per pair thresholds. The liquidation tiers must be
// ordered start > non-return > force.
func (p CdpParams) Validate() error {
	pair := p.CoinPair()
	if !types.IsScoin(p.ScoinSymbol) {
		return fmt.Errorf("params: %s: %q is not a stable coin", pair, p.ScoinSymbol)
	}
	if p.BcoinSymbol == "" || p.BcoinSymbol == types.SymbolWGRT || types.IsScoin(p.BcoinSymbol) {
		return fmt.Errorf("params: %s: %q cannot be collateral", pair, p.BcoinSymbol)
	}
	if p.StartCollateralRatio == 0 || p.LiquidateDiscountRatio == 0 {
		return fmt.Errorf("params: %s: ratios must be positive", pair)
	}
	if !(p.StartLiquidateRatio > p.NonReturnLiquidateRatio && p.NonReturnLiquidateRatio > p.ForceLiquidateRatio) {
		return fmt.Errorf("params: %s: liquidation tiers must satisfy start > non-return > force", pair)
	}
	if p.LiquidateDiscountRatio > types.RatioBoost {
		return fmt.Errorf("params: %s: discount ratio exceeds %d", pair, types.RatioBoost)
	}
	if len(p.InterestHistory) == 0 {
		return fmt.Errorf("params: %s: interest history must not be empty", pair)
	}
	for _, change := range p.InterestHistory {
		if change.A == 0 || change.B == 0 {
			return fmt.Errorf("params: %s: interest coefficients at height %d must be positive", pair, change.Height)
		}
	}
	return nil
}

// Validate checks the full genesis bundle.
func (g *Genesis) Validate() error {
	if g == nil {
		return fmt.Errorf("params: genesis not configured")
	}
	if err := g.System.Validate(); err != nil {
		return err
	}
	seen := make(map[types.CdpCoinPair]struct{}, len(g.CDP))
	for _, p := range g.CDP {
		if _, dup := seen[p.CoinPair()]; dup {
			return fmt.Errorf("params: duplicate cdp parameters for %s", p.CoinPair())
		}
		seen[p.CoinPair()] = struct{}{}
		if err := p.Validate(); err != nil {
			return err
		}
	}
	return nil
}
