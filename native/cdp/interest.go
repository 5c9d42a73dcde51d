package cdp

import (
	"math"

	"cdpledger/core/types"
	"cdpledger/native/params"
)

// ComputeCDPInterest returns the interest owed on owed stable coins for the
// interval [begin, end) under the coefficients a and b:
//
//	rate     = 0.1 * a / log10(1 + b*owed/COIN)
//	interest = owed/365 * days * rate
//
// where days is the loan length rounded up to whole days, at least one.
func ComputeCDPInterest(owed, begin, end, a, b, oneDayBlocks uint64) uint64 {
	if owed == 0 || oneDayBlocks == 0 {
		return 0
	}
	days := math.Ceil(float64(end-begin) / float64(oneDayBlocks))
	if days < 1 {
		days = 1
	}
	rate := 0.1 * float64(a) / math.Log10(1.0+float64(b*owed)/float64(types.Coin))
	return uint64((float64(owed) / 365) * days * rate)
}

// InterestOverRange sums ComputeCDPInterest over every coefficient interval
// of [begin, end).
func InterestOverRange(sys params.SysParams, p params.CdpParams, owed, begin, end uint64) (uint64, error) {
	if owed == 0 {
		return 0, nil
	}
	intervals, err := p.InterestParamChanges(begin, end)
	if err != nil {
		return 0, err
	}
	var total uint64
	for _, in := range intervals {
		total += ComputeCDPInterest(owed, in.Begin, in.End, in.A, in.B, sys.OneDayBlocks(in.End))
	}
	return total, nil
}

// NeedSettleInterest reports whether a position last settled at last has
// aged past the settlement cycle at cur.
func NeedSettleInterest(sys params.SysParams, last, cur, cycleDays uint64) bool {
	cycleBlocks := cycleDays * sys.OneDayBlocks(cur)
	return cur > last && cur-last >= cycleBlocks
}
