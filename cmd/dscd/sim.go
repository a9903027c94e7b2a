package main

import (
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// In-process collaborators for local operation: a settable price feed, a
// vault that always honours transfers, and a balance-tracking debt token.
// Production deployments swap these for adapters over real token contracts.

type simFeed struct {
	mu     sync.RWMutex
	prices map[common.Address]*big.Int
}

func newSimFeed() *simFeed {
	return &simFeed{prices: make(map[common.Address]*big.Int)}
}

func (f *simFeed) SetPrice(feed common.Address, price *big.Int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prices[feed] = new(big.Int).Set(price)
}

func (f *simFeed) LatestRound(feed common.Address) (*big.Int, time.Time, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	price, ok := f.prices[feed]
	if !ok {
		return nil, time.Time{}, fmt.Errorf("sim feed: no price for %s", feed.Hex())
	}
	return new(big.Int).Set(price), time.Now(), nil
}

type simVault struct{}

func (simVault) TransferIn(common.Address, common.Address, *big.Int) bool  { return true }
func (simVault) TransferOut(common.Address, common.Address, *big.Int) bool { return true }

type simToken struct {
	mu       sync.Mutex
	balances map[common.Address]*big.Int
}

func newSimToken() *simToken {
	return &simToken{balances: make(map[common.Address]*big.Int)}
}

func (t *simToken) balance(addr common.Address) *big.Int {
	if bal, ok := t.balances[addr]; ok {
		return bal
	}
	zero := big.NewInt(0)
	t.balances[addr] = zero
	return zero
}

func (t *simToken) Mint(to common.Address, amount *big.Int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.balances[to] = new(big.Int).Add(t.balance(to), amount)
	return true
}

func (t *simToken) Burn(amount *big.Int) {
	// Tokens pulled into the engine are retired on the spot; the sim keeps
	// no engine-side balance to reduce.
	_ = amount
}

func (t *simToken) TransferFrom(from, to common.Address, amount *big.Int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.balance(from).Cmp(amount) < 0 {
		return false
	}
	t.balances[from] = new(big.Int).Sub(t.balance(from), amount)
	t.balances[to] = new(big.Int).Add(t.balance(to), amount)
	return true
}
