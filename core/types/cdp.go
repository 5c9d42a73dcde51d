package types

import (
	"fmt"
	"math"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// CdpCoinPair keys the market a CDP belongs to.
type CdpCoinPair struct {
	BcoinSymbol string
	ScoinSymbol string
}

func (p CdpCoinPair) String() string { return p.BcoinSymbol + ":" + p.ScoinSymbol }

// Less orders coin pairs lexicographically.
func (p CdpCoinPair) Less(o CdpCoinPair) bool {
	if p.BcoinSymbol != o.BcoinSymbol {
		return p.BcoinSymbol < o.BcoinSymbol
	}
	return p.ScoinSymbol < o.ScoinSymbol
}

// CdpCoinPairWICCWUSD is the genesis CDP market.
var CdpCoinPairWICCWUSD = CdpCoinPair{BcoinSymbol: SymbolWICC, ScoinSymbol: SymbolWUSD}

// PriceCoinPair keys a price feed as (base, quote).
type PriceCoinPair struct {
	Base  string
	Quote string
}

func (p PriceCoinPair) String() string { return p.Base + "/" + p.Quote }

// Less orders price pairs lexicographically.
func (p PriceCoinPair) Less(o PriceCoinPair) bool {
	if p.Base != o.Base {
		return p.Base < o.Base
	}
	return p.Quote < o.Quote
}

// FcoinPriceCoinPair is the governance token price feed.
var FcoinPriceCoinPair = PriceCoinPair{Base: SymbolWGRT, Quote: SymbolUSD}

// TxCord locates a transaction inside the chain.
type TxCord struct {
	Height uint64
	Index  uint32
}

// Less orders coordinates by height, then index.
func (c TxCord) Less(o TxCord) bool {
	if c.Height != o.Height {
		return c.Height < o.Height
	}
	return c.Index < o.Index
}

// UserCDP is one collateralized debt position.
type UserCDP struct {
	ID                common.Hash
	Owner             RegID
	BcoinSymbol       string
	ScoinSymbol       string
	TotalStakedBcoins uint64
	TotalOwedScoins   uint64
	// BlockHeight is the height of the last interest settlement.
	BlockHeight uint64
}

// NewUserCDP opens a position at height.
func NewUserCDP(id common.Hash, owner RegID, height uint64, pair CdpCoinPair, staked, owed uint64) *UserCDP {
	return &UserCDP{
		ID:                id,
		Owner:             owner,
		BcoinSymbol:       pair.BcoinSymbol,
		ScoinSymbol:       pair.ScoinSymbol,
		TotalStakedBcoins: staked,
		TotalOwedScoins:   owed,
		BlockHeight:       height,
	}
}

// CoinPair returns the market key of the position.
func (c *UserCDP) CoinPair() CdpCoinPair {
	return CdpCoinPair{BcoinSymbol: c.BcoinSymbol, ScoinSymbol: c.ScoinSymbol}
}

// AddStake increases collateral and debt and restarts interest accrual.
func (c *UserCDP) AddStake(height, bcoins, scoins uint64) {
	c.BlockHeight = height
	c.TotalStakedBcoins += bcoins
	c.TotalOwedScoins += scoins
}

// Redeem decreases collateral and debt and restarts interest accrual.
// Callers clamp the amounts beforehand.
func (c *UserCDP) Redeem(height, bcoins, scoins uint64) {
	if bcoins > c.TotalStakedBcoins || scoins > c.TotalOwedScoins {
		panic(fmt.Sprintf("cdp %s: redeem %d/%d exceeds %d/%d", c.ID.Hex(), bcoins, scoins, c.TotalStakedBcoins, c.TotalOwedScoins))
	}
	c.BlockHeight = height
	c.TotalStakedBcoins -= bcoins
	c.TotalOwedScoins -= scoins
}

// PartialLiquidate applies a partial liquidation.
func (c *UserCDP) PartialLiquidate(height, bcoins, scoins uint64) {
	c.Redeem(height, bcoins, scoins)
}

// IsFinished reports whether the debt has been fully repaid.
func (c *UserCDP) IsFinished() bool { return c.TotalOwedScoins == 0 }

// CollateralRatio returns the collateral ratio at price.
func (c *UserCDP) CollateralRatio(price uint64) uint64 {
	return CalcCollateralRatio(c.TotalStakedBcoins, c.TotalOwedScoins, price)
}

// Clone returns a copy of the position.
func (c *UserCDP) Clone() *UserCDP {
	if c == nil {
		return nil
	}
	clone := *c
	return &clone
}

func (c *UserCDP) String() string {
	return fmt.Sprintf("cdpid=%s owner=%s pair=%s staked=%d owed=%d height=%d",
		c.ID.Hex(), c.Owner, c.CoinPair(), c.TotalStakedBcoins, c.TotalOwedScoins, c.BlockHeight)
}

// CompareRatioBase orders two positions by staked/owed without rounding.
// Positions without debt sort last.
func CompareRatioBase(a, b *UserCDP) int {
	return CompareStakeRatio(a.TotalStakedBcoins, a.TotalOwedScoins, b.TotalStakedBcoins, b.TotalOwedScoins)
}

// CompareStakeRatio compares aStaked/aOwed with bStaked/bOwed exactly. A zero
// debt is the largest ratio.
func CompareStakeRatio(aStaked, aOwed, bStaked, bOwed uint64) int {
	if aOwed == 0 || bOwed == 0 {
		switch {
		case aOwed == 0 && bOwed == 0:
			return 0
		case aOwed == 0:
			return 1
		default:
			return -1
		}
	}
	left := new(uint256.Int).Mul(uint256.NewInt(aStaked), uint256.NewInt(bOwed))
	right := new(uint256.Int).Mul(uint256.NewInt(bStaked), uint256.NewInt(aOwed))
	return left.Cmp(right)
}

// CdpGlobalData aggregates every position of one coin pair.
type CdpGlobalData struct {
	TotalStakedAssets *uint256.Int
	TotalOwedScoins   *uint256.Int
}

// NewCdpGlobalData returns zeroed totals.
func NewCdpGlobalData() *CdpGlobalData {
	return &CdpGlobalData{TotalStakedAssets: new(uint256.Int), TotalOwedScoins: new(uint256.Int)}
}

// EnsureDefaults replaces nil totals with zero.
func (g *CdpGlobalData) EnsureDefaults() {
	if g.TotalStakedAssets == nil {
		g.TotalStakedAssets = new(uint256.Int)
	}
	if g.TotalOwedScoins == nil {
		g.TotalOwedScoins = new(uint256.Int)
	}
}

// Clone returns a deep copy.
func (g *CdpGlobalData) Clone() *CdpGlobalData {
	clone := NewCdpGlobalData()
	if g == nil {
		return clone
	}
	if g.TotalStakedAssets != nil {
		clone.TotalStakedAssets.Set(g.TotalStakedAssets)
	}
	if g.TotalOwedScoins != nil {
		clone.TotalOwedScoins.Set(g.TotalOwedScoins)
	}
	return clone
}

// Apply adds the delta between two versions of a position. Either side may
// be nil for creation or erasure.
func (g *CdpGlobalData) Apply(before, after *UserCDP) {
	g.EnsureDefaults()
	if before != nil {
		g.TotalStakedAssets.Sub(g.TotalStakedAssets, uint256.NewInt(before.TotalStakedBcoins))
		g.TotalOwedScoins.Sub(g.TotalOwedScoins, uint256.NewInt(before.TotalOwedScoins))
	}
	if after != nil {
		g.TotalStakedAssets.Add(g.TotalStakedAssets, uint256.NewInt(after.TotalStakedBcoins))
		g.TotalOwedScoins.Add(g.TotalOwedScoins, uint256.NewInt(after.TotalOwedScoins))
	}
}

// CollateralRatio returns the aggregate collateral ratio at price.
func (g *CdpGlobalData) CollateralRatio(price uint64) uint64 {
	g.EnsureDefaults()
	if g.TotalOwedScoins.IsZero() {
		return math.MaxUint64
	}
	staked := uint256ToFloat(g.TotalStakedAssets)
	owed := uint256ToFloat(g.TotalOwedScoins)
	return uint64(staked * float64(price) / float64(PriceBoost) / owed * float64(RatioBoost))
}

// FloorReached reports whether the aggregate ratio has fallen below floor.
func (g *CdpGlobalData) FloorReached(price, floor uint64) bool {
	return g.CollateralRatio(price) < floor
}

// CeilingReached reports whether staking newStake more collateral would push
// the pair above ceiling whole coins.
func (g *CdpGlobalData) CeilingReached(newStake, ceiling uint64) bool {
	g.EnsureDefaults()
	total := new(uint256.Int).Add(g.TotalStakedAssets, uint256.NewInt(newStake))
	limit := new(uint256.Int).Mul(uint256.NewInt(ceiling), uint256.NewInt(Coin))
	return total.Gt(limit)
}

func uint256ToFloat(v *uint256.Int) float64 {
	if v.IsUint64() {
		return float64(v.Uint64())
	}
	f, _ := new(big.Float).SetInt(v.ToBig()).Float64()
	return f
}

// CdpBcoinDetail records the activation of an asset as CDP collateral.
type CdpBcoinDetail struct {
	Symbol     string
	InitTxCord TxCord
}

// CdpCloseType records how a position was closed.
type CdpCloseType uint8

const (
	CdpCloseByRedeem CdpCloseType = iota + 1
	CdpCloseByManualLiquidate
	CdpCloseByForceLiquidate
)

func (t CdpCloseType) String() string {
	switch t {
	case CdpCloseByRedeem:
		return "redeem"
	case CdpCloseByManualLiquidate:
		return "manual_liquidate"
	case CdpCloseByForceLiquidate:
		return "force_liquidate"
	default:
		return "unknown"
	}
}

// ClosedCDP is one entry of the closed-position audit index.
type ClosedCDP struct {
	CdpID     common.Hash
	CloseTxID common.Hash
	CloseType CdpCloseType
}

// PriceDetail is the median price of a pair and the last height it was fed.
type PriceDetail struct {
	Price          uint64
	LastFeedHeight uint64
}

// IsActive reports whether the price is nonzero and fed within timeout blocks.
func (d PriceDetail) IsActive(height, timeoutBlocks uint64) bool {
	if d.Price == 0 {
		return false
	}
	if height < d.LastFeedHeight {
		return true
	}
	return height-d.LastFeedHeight <= timeoutBlocks
}

// PricePoint is one feeder observation.
type PricePoint struct {
	Pair  PriceCoinPair
	Price uint64
}
