// Package oracle records feeder price points and derives the per-block median
// price of every fed pair.
package oracle

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sort"

	"cdpledger/core/types"
)

var (
	errDuplicateFeed = errors.New("oracle: feeder already fed prices at this height")
	errEmptyFeed     = errors.New("oracle: price feed carries no points")
	errZeroPrice     = errors.New("oracle: price must be positive")
	errDuplicatePair = errors.New("oracle: duplicate pair in price feed")
)

// Store is the state capability used by the oracle.
type Store interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVGetList(key []byte, out interface{}) error
	KVDelete(key []byte) error
}

// FeedRecord is the set of points one feeder published in one block.
type FeedRecord struct {
	Feeder types.RegID
	Points []types.PricePoint
}

// MedianEntry is the stored form of one pair's median.
type MedianEntry struct {
	Pair   types.PriceCoinPair
	Detail types.PriceDetail
}

var (
	pointsPrefix = []byte("oracle/points/")
	medianKey    = []byte("oracle/median")
)

func pointsKey(height uint64) []byte {
	key := make([]byte, len(pointsPrefix)+8)
	copy(key, pointsPrefix)
	binary.BigEndian.PutUint64(key[len(pointsPrefix):], height)
	return key
}

// AddPricePoints records the points fed by feeder at height.
func AddPricePoints(store Store, height uint64, feeder types.RegID, points []types.PricePoint) error {
	if len(points) == 0 {
		return errEmptyFeed
	}
	seen := make(map[types.PriceCoinPair]struct{}, len(points))
	for _, point := range points {
		if point.Price == 0 {
			return fmt.Errorf("%w: %s", errZeroPrice, point.Pair)
		}
		if _, dup := seen[point.Pair]; dup {
			return fmt.Errorf("%w: %s", errDuplicatePair, point.Pair)
		}
		seen[point.Pair] = struct{}{}
	}
	var records []FeedRecord
	if err := store.KVGetList(pointsKey(height), &records); err != nil {
		return err
	}
	for _, rec := range records {
		if rec.Feeder == feeder {
			return fmt.Errorf("%w: %s at %d", errDuplicateFeed, feeder, height)
		}
	}
	records = append(records, FeedRecord{Feeder: feeder, Points: append([]types.PricePoint(nil), points...)})
	return store.KVPut(pointsKey(height), records)
}

// MedianPrices loads the medians persisted by the last price median
// transaction.
func MedianPrices(store Store) (map[types.PriceCoinPair]types.PriceDetail, error) {
	var entries []MedianEntry
	if err := store.KVGetList(medianKey, &entries); err != nil {
		return nil, err
	}
	out := make(map[types.PriceCoinPair]types.PriceDetail, len(entries))
	for _, e := range entries {
		out[e.Pair] = e.Detail
	}
	return out, nil
}

// MedianPrice returns the persisted median of one pair.
func MedianPrice(store Store, pair types.PriceCoinPair) (types.PriceDetail, error) {
	medians, err := MedianPrices(store)
	if err != nil {
		return types.PriceDetail{}, err
	}
	return medians[pair], nil
}

// SetMedianPrices persists the medians of the current block.
func SetMedianPrices(store Store, medians map[types.PriceCoinPair]types.PriceDetail) error {
	entries := make([]MedianEntry, 0, len(medians))
	for pair, detail := range medians {
		entries = append(entries, MedianEntry{Pair: pair, Detail: detail})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Pair.Less(entries[j].Pair) })
	return store.KVPut(medianKey, entries)
}

// CalcMedianPriceDetails computes the medians at height over the points fed
// in the last windowBlocks blocks, height included. Pairs with no point in
// the window keep their previous median and feed height.
func CalcMedianPriceDetails(store Store, height, windowBlocks uint64) (map[types.PriceCoinPair]types.PriceDetail, error) {
	out, err := MedianPrices(store)
	if err != nil {
		return nil, err
	}
	start := uint64(0)
	if windowBlocks > 0 && height+1 > windowBlocks {
		start = height + 1 - windowBlocks
	}
	prices := make(map[types.PriceCoinPair][]uint64)
	lastFed := make(map[types.PriceCoinPair]uint64)
	for h := start; h <= height; h++ {
		var records []FeedRecord
		if err := store.KVGetList(pointsKey(h), &records); err != nil {
			return nil, err
		}
		for _, rec := range records {
			for _, point := range rec.Points {
				if point.Price == 0 {
					continue
				}
				prices[point.Pair] = append(prices[point.Pair], point.Price)
				lastFed[point.Pair] = h
			}
		}
	}
	for pair, values := range prices {
		out[pair] = types.PriceDetail{Price: median(values), LastFeedHeight: lastFed[pair]}
	}
	return out, nil
}

// PrunePricePoints drops the points that fell out of the window ending at
// height.
func PrunePricePoints(store Store, height, windowBlocks uint64) error {
	if windowBlocks == 0 || height < windowBlocks {
		return nil
	}
	return store.KVDelete(pointsKey(height - windowBlocks))
}

// median returns the middle value; an even count yields the truncated mean
// of the two middle values.
func median(values []uint64) uint64 {
	sorted := append([]uint64(nil), values...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n%2 == 1 {
		return sorted[n/2]
	}
	a, b := sorted[n/2-1], sorted[n/2]
	return a/2 + b/2 + (a%2+b%2)/2
}

// SortedNonZero lists the medians with a nonzero price ordered by pair.
func SortedNonZero(medians map[types.PriceCoinPair]types.PriceDetail) []types.MedianPrice {
	out := make([]types.MedianPrice, 0, len(medians))
	for pair, detail := range medians {
		if detail.Price == 0 {
			continue
		}
		out = append(out, types.MedianPrice{Pair: pair, Price: detail.Price})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Pair.Less(out[j].Pair) })
	return out
}
