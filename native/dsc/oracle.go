package dsc

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// DefaultMaxPriceAge is the freshness window applied to oracle rounds when
// the engine is constructed without an override.
const DefaultMaxPriceAge = 3 * time.Hour

// freshPrice fetches the latest round for the feed and enforces the staleness
// window against the engine clock.
func (e *Engine) freshPrice(feed common.Address) (*big.Int, error) {
	price, updatedAt, err := e.feeds.LatestRound(feed)
	if err != nil {
		return nil, fmt.Errorf("dsc engine: price feed %s: %w", feed.Hex(), err)
	}
	if price == nil || price.Sign() <= 0 {
		return nil, ErrStalePrice
	}
	if e.now().Sub(updatedAt) > e.maxPriceAge {
		return nil, ErrStalePrice
	}
	return price, nil
}
