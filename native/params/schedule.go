package params

import (
	"fmt"

	"cdpledger/core/types"
)

const secondsPerDay = 24 * 60 * 60

// FeatureForkVersion resolves the protocol version active at height.
func (p SysParams) FeatureForkVersion(height uint64) ForkVersion {
	switch {
	case p.ForkHeights.R3 > 0 && height >= p.ForkHeights.R3:
		return MajorVerR3
	case p.ForkHeights.R2 > 0 && height >= p.ForkHeights.R2:
		return MajorVerR2
	default:
		return MajorVerR1
	}
}

// BlockInterval returns the block production interval in seconds at height.
func (p SysParams) BlockInterval(height uint64) uint64 {
	if p.FeatureForkVersion(height) >= MajorVerR2 {
		return p.BlockIntervalSecsR2
	}
	return p.BlockIntervalSecs
}

// YearBlocks returns the number of blocks produced in one year at height.
func (p SysParams) YearBlocks(height uint64) uint64 {
	return types.SecondsPerYear / p.BlockInterval(height)
}

// OneDayBlocks returns the number of blocks produced in one day at height.
func (p SysParams) OneDayBlocks(height uint64) uint64 {
	return secondsPerDay / p.BlockInterval(height)
}

// SubsidyRate returns the annual vote subsidy percentage at height. The rate
// starts at InitialSubsidyRate and drops by one every R1 year until it
// reaches FixedSubsidyRate.
func (p SysParams) SubsidyRate(height uint64) uint8 {
	year := height / (types.SecondsPerYear / p.BlockIntervalSecs)
	span := uint64(p.InitialSubsidyRate - p.FixedSubsidyRate)
	if year >= span {
		return p.FixedSubsidyRate
	}
	return p.InitialSubsidyRate - uint8(year)
}

// JumpHeightBySubsidy returns the first height at which rate takes effect.
func (p SysParams) JumpHeightBySubsidy(rate uint8) (uint64, error) {
	if rate < p.FixedSubsidyRate || rate > p.InitialSubsidyRate {
		return 0, fmt.Errorf("params: subsidy rate %d outside [%d, %d]", rate, p.FixedSubsidyRate, p.InitialSubsidyRate)
	}
	return uint64(p.InitialSubsidyRate-rate) * (types.SecondsPerYear / p.BlockIntervalSecs), nil
}
