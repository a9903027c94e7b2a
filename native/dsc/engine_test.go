package dsc

import (
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

var (
	weth     = makeAddress(0x01)
	wbtc     = makeAddress(0x02)
	wethFeed = makeAddress(0xA1)
	wbtcFeed = makeAddress(0xA2)
	module   = makeAddress(0xEE)

	alice = makeAddress(0x10)
	bob   = makeAddress(0x20)
)

func makeAddress(suffix byte) common.Address {
	var addr common.Address
	addr[common.AddressLength-1] = suffix
	return addr
}

// tokens converts whole units into 18-decimal ledger amounts. Debt amounts
// use the same scale: 1 debt unit is $1.
func tokens(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), precision)
}

// feedPrice converts whole dollars into an 8-decimal oracle price.
func feedPrice(usd int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(usd), big.NewInt(100_000_000))
}

type mockFeed struct {
	prices  map[common.Address]*big.Int
	updated map[common.Address]time.Time
	err     error
}

func newMockFeed() *mockFeed {
	now := time.Now()
	return &mockFeed{
		prices: map[common.Address]*big.Int{
			wethFeed: feedPrice(2000),
			wbtcFeed: feedPrice(30000),
		},
		updated: map[common.Address]time.Time{
			wethFeed: now,
			wbtcFeed: now,
		},
	}
}

func (m *mockFeed) setPrice(feed common.Address, price *big.Int) {
	m.prices[feed] = price
	m.updated[feed] = time.Now()
}

func (m *mockFeed) LatestRound(feed common.Address) (*big.Int, time.Time, error) {
	if m.err != nil {
		return nil, time.Time{}, m.err
	}
	price, ok := m.prices[feed]
	if !ok {
		return nil, time.Time{}, errors.New("mock feed: unknown feed")
	}
	return new(big.Int).Set(price), m.updated[feed], nil
}

type mockVault struct {
	failIn   bool
	failOut  bool
	inCalls  int
	outCalls int
}

func (m *mockVault) TransferIn(common.Address, common.Address, *big.Int) bool {
	m.inCalls++
	return !m.failIn
}

func (m *mockVault) TransferOut(common.Address, common.Address, *big.Int) bool {
	m.outCalls++
	return !m.failOut
}

type mockToken struct {
	failMint     bool
	failTransfer bool
	minted       map[common.Address]*big.Int
	burned       *big.Int
}

func newMockToken() *mockToken {
	return &mockToken{minted: make(map[common.Address]*big.Int), burned: big.NewInt(0)}
}

func (m *mockToken) Mint(to common.Address, amount *big.Int) bool {
	if m.failMint {
		return false
	}
	current, ok := m.minted[to]
	if !ok {
		current = big.NewInt(0)
	}
	m.minted[to] = new(big.Int).Add(current, amount)
	return true
}

func (m *mockToken) Burn(amount *big.Int) {
	m.burned = new(big.Int).Add(m.burned, amount)
}

func (m *mockToken) TransferFrom(common.Address, common.Address, *big.Int) bool {
	return !m.failTransfer
}

func newTestEngine(t *testing.T) (*Engine, *mockFeed, *mockVault, *mockToken) {
	t.Helper()
	feed := newMockFeed()
	vault := &mockVault{}
	token := newMockToken()
	engine, err := NewEngine(
		[]common.Address{weth, wbtc},
		[]common.Address{wethFeed, wbtcFeed},
		feed, vault, token,
	)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	engine.SetModuleAddress(module)
	return engine, feed, vault, token
}

func TestNewEngineConfigurationMismatch(t *testing.T) {
	_, err := NewEngine(
		[]common.Address{weth, wbtc},
		[]common.Address{wethFeed},
		newMockFeed(), &mockVault{}, newMockToken(),
	)
	if !errors.Is(err, ErrConfigurationMismatch) {
		t.Fatalf("expected configuration mismatch, got %v", err)
	}
	if _, err := NewEngine(nil, nil, newMockFeed(), &mockVault{}, newMockToken()); !errors.Is(err, ErrConfigurationMismatch) {
		t.Fatalf("expected configuration mismatch for empty registry, got %v", err)
	}
}

func TestDepositCollateral(t *testing.T) {
	engine, _, vault, _ := newTestEngine(t)

	if err := engine.DepositCollateral(alice, weth, tokens(10)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if balance := engine.CollateralBalance(alice, weth); balance.Cmp(tokens(10)) != 0 {
		t.Fatalf("unexpected balance: %s", balance)
	}
	if vault.inCalls != 1 {
		t.Fatalf("expected one custody transfer, got %d", vault.inCalls)
	}
}

func TestDepositRejectsInvalidInput(t *testing.T) {
	engine, _, _, _ := newTestEngine(t)

	if err := engine.DepositCollateral(alice, weth, big.NewInt(0)); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected invalid amount, got %v", err)
	}
	if err := engine.DepositCollateral(alice, weth, big.NewInt(-5)); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected invalid amount for negative, got %v", err)
	}
	unknown := makeAddress(0x99)
	if err := engine.DepositCollateral(alice, unknown, tokens(1)); !errors.Is(err, ErrAssetNotAllowed) {
		t.Fatalf("expected asset not allowed, got %v", err)
	}
}

func TestDepositRollsBackOnTransferFailure(t *testing.T) {
	engine, _, vault, _ := newTestEngine(t)
	vault.failIn = true

	err := engine.DepositCollateral(alice, weth, tokens(10))
	if !errors.Is(err, ErrTransferFailed) {
		t.Fatalf("expected transfer failure, got %v", err)
	}
	if balance := engine.CollateralBalance(alice, weth); balance.Sign() != 0 {
		t.Fatalf("expected ledger credit rolled back, got %s", balance)
	}
}

func TestMintDebtAtThreshold(t *testing.T) {
	engine, _, _, token := newTestEngine(t)

	// Scenario A: 10 units at $2000 backs exactly $10,000 of debt.
	if err := engine.DepositCollateral(alice, weth, tokens(10)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	maxMintable, err := engine.MaxMintableUSD(alice)
	if err != nil {
		t.Fatalf("max mintable: %v", err)
	}
	if maxMintable.Cmp(tokens(10_000)) != 0 {
		t.Fatalf("unexpected max mintable: %s", maxMintable)
	}

	if err := engine.MintDebt(alice, tokens(10_000)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	health, err := engine.HealthFactor(alice)
	if err != nil {
		t.Fatalf("health factor: %v", err)
	}
	if health.Cmp(precision) != 0 {
		t.Fatalf("expected health factor exactly 1e18, got %s", health)
	}
	if minted := token.minted[alice]; minted == nil || minted.Cmp(tokens(10_000)) != 0 {
		t.Fatalf("unexpected minted amount: %v", minted)
	}
}

func TestMintDebtBeyondThresholdFails(t *testing.T) {
	engine, _, _, token := newTestEngine(t)

	// Scenario B: minting $15,000 against $20,000 collateral reports the
	// would-be ratio of two thirds.
	if err := engine.DepositCollateral(alice, weth, tokens(10)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	err := engine.MintDebt(alice, tokens(15_000))
	if !errors.Is(err, ErrBelowMinimumHealthFactor) {
		t.Fatalf("expected health factor failure, got %v", err)
	}
	var hfErr *HealthFactorError
	if !errors.As(err, &hfErr) {
		t.Fatalf("expected HealthFactorError, got %T", err)
	}
	want := new(big.Int).Mul(tokens(10_000), precision)
	want.Quo(want, tokens(15_000))
	if hfErr.Value.Cmp(want) != 0 {
		t.Fatalf("unexpected reported ratio: got %s want %s", hfErr.Value, want)
	}

	// The failed mint must leave no trace.
	if debt := mustDebt(t, engine, alice); debt.Sign() != 0 {
		t.Fatalf("expected zero debt after failed mint, got %s", debt)
	}
	if minted := token.minted[alice]; minted != nil && minted.Sign() != 0 {
		t.Fatalf("expected no tokens minted, got %s", minted)
	}
}

func TestMintDebtRollsBackOnMintFailure(t *testing.T) {
	engine, _, _, token := newTestEngine(t)
	token.failMint = true

	if err := engine.DepositCollateral(alice, weth, tokens(10)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if err := engine.MintDebt(alice, tokens(100)); !errors.Is(err, ErrMintFailed) {
		t.Fatalf("expected mint failure, got %v", err)
	}
	if debt := mustDebt(t, engine, alice); debt.Sign() != 0 {
		t.Fatalf("expected zero debt after failed mint, got %s", debt)
	}
}

func TestDebtFreeAccountHasMaxHealthFactor(t *testing.T) {
	engine, _, _, _ := newTestEngine(t)

	// Scenario C: no debt means unconditionally solvent, collateral or not.
	health, err := engine.HealthFactor(alice)
	if err != nil {
		t.Fatalf("health factor: %v", err)
	}
	if health.Cmp(maxHealthFactor) != 0 {
		t.Fatalf("expected max health factor, got %s", health)
	}

	if err := engine.DepositCollateral(alice, weth, tokens(3)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	health, err = engine.HealthFactor(alice)
	if err != nil {
		t.Fatalf("health factor: %v", err)
	}
	if health.Cmp(maxHealthFactor) != 0 {
		t.Fatalf("expected max health factor with collateral, got %s", health)
	}
}

func TestRedeemAllCollateralWithDebtFails(t *testing.T) {
	engine, _, vault, _ := newTestEngine(t)

	if err := engine.DepositCollateral(alice, weth, tokens(10)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if err := engine.MintDebt(alice, tokens(1000)); err != nil {
		t.Fatalf("mint: %v", err)
	}

	// Scenario D: withdrawing everything while indebted reports ratio 0.
	err := engine.RedeemCollateral(alice, weth, tokens(10))
	if !errors.Is(err, ErrBelowMinimumHealthFactor) {
		t.Fatalf("expected health factor failure, got %v", err)
	}
	var hfErr *HealthFactorError
	if !errors.As(err, &hfErr) {
		t.Fatalf("expected HealthFactorError, got %T", err)
	}
	if hfErr.Value.Sign() != 0 {
		t.Fatalf("expected reported ratio 0, got %s", hfErr.Value)
	}
	if balance := engine.CollateralBalance(alice, weth); balance.Cmp(tokens(10)) != 0 {
		t.Fatalf("expected ledger unchanged, got %s", balance)
	}
	if vault.outCalls != 0 {
		t.Fatalf("expected no custody transfer on failed redeem, got %d", vault.outCalls)
	}
}

func TestRedeemCollateralKeepsPositionHealthy(t *testing.T) {
	engine, _, _, _ := newTestEngine(t)

	if err := engine.DepositCollateral(alice, weth, tokens(10)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if err := engine.MintDebt(alice, tokens(5000)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	// $20,000 collateral, $5,000 debt: half the collateral can go.
	if err := engine.RedeemCollateral(alice, weth, tokens(5)); err != nil {
		t.Fatalf("redeem: %v", err)
	}
	health, err := engine.HealthFactor(alice)
	if err != nil {
		t.Fatalf("health factor: %v", err)
	}
	if health.Cmp(precision) < 0 {
		t.Fatalf("position left unhealthy: %s", health)
	}
}

func TestRedeemRollsBackOnTransferFailure(t *testing.T) {
	engine, _, vault, _ := newTestEngine(t)

	if err := engine.DepositCollateral(alice, weth, tokens(10)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	vault.failOut = true
	if err := engine.RedeemCollateral(alice, weth, tokens(5)); !errors.Is(err, ErrTransferFailed) {
		t.Fatalf("expected transfer failure, got %v", err)
	}
	if balance := engine.CollateralBalance(alice, weth); balance.Cmp(tokens(10)) != 0 {
		t.Fatalf("expected ledger unchanged, got %s", balance)
	}
}

func TestRedeemMoreThanBalanceFails(t *testing.T) {
	engine, _, _, _ := newTestEngine(t)

	if err := engine.DepositCollateral(alice, weth, tokens(2)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if err := engine.RedeemCollateral(alice, weth, tokens(3)); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected insufficient balance, got %v", err)
	}
}

func TestBurnDebtReducesBalance(t *testing.T) {
	engine, _, _, token := newTestEngine(t)

	if err := engine.DepositCollateral(alice, weth, tokens(10)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if err := engine.MintDebt(alice, tokens(4000)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := engine.BurnDebt(alice, tokens(1500)); err != nil {
		t.Fatalf("burn: %v", err)
	}
	if debt := mustDebt(t, engine, alice); debt.Cmp(tokens(2500)) != 0 {
		t.Fatalf("unexpected debt: %s", debt)
	}
	if token.burned.Cmp(tokens(1500)) != 0 {
		t.Fatalf("unexpected burned amount: %s", token.burned)
	}
}

func TestBurnMoreThanDebtFails(t *testing.T) {
	engine, _, _, _ := newTestEngine(t)

	if err := engine.DepositCollateral(alice, weth, tokens(10)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if err := engine.MintDebt(alice, tokens(100)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := engine.BurnDebt(alice, tokens(200)); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected insufficient balance, got %v", err)
	}
}

func TestBurnRollsBackOnTransferFailure(t *testing.T) {
	engine, _, _, token := newTestEngine(t)

	if err := engine.DepositCollateral(alice, weth, tokens(10)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if err := engine.MintDebt(alice, tokens(1000)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	token.failTransfer = true
	if err := engine.BurnDebt(alice, tokens(500)); !errors.Is(err, ErrTransferFailed) {
		t.Fatalf("expected transfer failure, got %v", err)
	}
	if debt := mustDebt(t, engine, alice); debt.Cmp(tokens(1000)) != 0 {
		t.Fatalf("expected debt unchanged, got %s", debt)
	}
}

func TestDepositCollateralAndMint(t *testing.T) {
	engine, _, _, _ := newTestEngine(t)

	if err := engine.DepositCollateralAndMint(alice, weth, tokens(10), tokens(8000)); err != nil {
		t.Fatalf("deposit and mint: %v", err)
	}
	if debt := mustDebt(t, engine, alice); debt.Cmp(tokens(8000)) != 0 {
		t.Fatalf("unexpected debt: %s", debt)
	}
	if balance := engine.CollateralBalance(alice, weth); balance.Cmp(tokens(10)) != 0 {
		t.Fatalf("unexpected collateral: %s", balance)
	}
}

func TestRedeemAndBurnOrdering(t *testing.T) {
	engine, _, _, _ := newTestEngine(t)

	if err := engine.DepositCollateralAndMint(alice, weth, tokens(10), tokens(10_000)); err != nil {
		t.Fatalf("deposit and mint: %v", err)
	}
	// At the cap nothing is redeemable until debt shrinks; burning first
	// within the composite makes room for the withdrawal.
	if err := engine.RedeemAndBurn(alice, weth, tokens(5), tokens(5000)); err != nil {
		t.Fatalf("redeem and burn: %v", err)
	}
	if debt := mustDebt(t, engine, alice); debt.Cmp(tokens(5000)) != 0 {
		t.Fatalf("unexpected debt: %s", debt)
	}
	if balance := engine.CollateralBalance(alice, weth); balance.Cmp(tokens(5)) != 0 {
		t.Fatalf("unexpected collateral: %s", balance)
	}
}

func TestRedeemForMovesCollateralBetweenParties(t *testing.T) {
	engine, _, vault, _ := newTestEngine(t)

	if err := engine.DepositCollateral(alice, weth, tokens(10)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if err := engine.redeemFor(alice, bob, weth, tokens(4)); err != nil {
		t.Fatalf("redeem for: %v", err)
	}
	if balance := engine.CollateralBalance(alice, weth); balance.Cmp(tokens(6)) != 0 {
		t.Fatalf("unexpected remaining balance: %s", balance)
	}
	// The seized amount stays on the ledger under the receiving party.
	if balance := engine.CollateralBalance(bob, weth); balance.Cmp(tokens(4)) != 0 {
		t.Fatalf("unexpected receiver balance: %s", balance)
	}
	if vault.outCalls != 1 {
		t.Fatalf("expected one custody transfer, got %d", vault.outCalls)
	}
}

func TestRedeemForUnwindsBothPartiesOnFailure(t *testing.T) {
	engine, _, vault, _ := newTestEngine(t)

	if err := engine.DepositCollateral(alice, weth, tokens(10)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	vault.failOut = true
	if err := engine.redeemFor(alice, bob, weth, tokens(4)); !errors.Is(err, ErrTransferFailed) {
		t.Fatalf("expected transfer failure, got %v", err)
	}
	if balance := engine.CollateralBalance(alice, weth); balance.Cmp(tokens(10)) != 0 {
		t.Fatalf("expected sender balance restored, got %s", balance)
	}
	if balance := engine.CollateralBalance(bob, weth); balance.Sign() != 0 {
		t.Fatalf("expected receiver credit unwound, got %s", balance)
	}
}

func TestBurnForSettlesOnBehalfOf(t *testing.T) {
	engine, _, _, token := newTestEngine(t)

	if err := engine.DepositCollateralAndMint(alice, weth, tokens(10), tokens(1000)); err != nil {
		t.Fatalf("fund alice: %v", err)
	}
	if err := engine.DepositCollateralAndMint(bob, wbtc, tokens(10), tokens(1000)); err != nil {
		t.Fatalf("fund bob: %v", err)
	}
	// Bob settles part of alice's debt: both debt records shrink.
	if err := engine.burnFor(bob, alice, tokens(400)); err != nil {
		t.Fatalf("burn for: %v", err)
	}
	if debt := mustDebt(t, engine, alice); debt.Cmp(tokens(600)) != 0 {
		t.Fatalf("unexpected debt for alice: %s", debt)
	}
	if debt := mustDebt(t, engine, bob); debt.Cmp(tokens(600)) != 0 {
		t.Fatalf("unexpected debt for bob: %s", debt)
	}
	if token.burned.Cmp(tokens(400)) != 0 {
		t.Fatalf("unexpected burned amount: %s", token.burned)
	}
}

func TestBurnForUnwindsBothPartiesOnFailure(t *testing.T) {
	engine, _, _, token := newTestEngine(t)

	if err := engine.DepositCollateralAndMint(alice, weth, tokens(10), tokens(1000)); err != nil {
		t.Fatalf("fund alice: %v", err)
	}
	if err := engine.DepositCollateralAndMint(bob, wbtc, tokens(10), tokens(1000)); err != nil {
		t.Fatalf("fund bob: %v", err)
	}
	token.failTransfer = true
	if err := engine.burnFor(bob, alice, tokens(400)); !errors.Is(err, ErrTransferFailed) {
		t.Fatalf("expected transfer failure, got %v", err)
	}
	if debt := mustDebt(t, engine, alice); debt.Cmp(tokens(1000)) != 0 {
		t.Fatalf("expected debt for alice restored, got %s", debt)
	}
	if debt := mustDebt(t, engine, bob); debt.Cmp(tokens(1000)) != 0 {
		t.Fatalf("expected debt for bob restored, got %s", debt)
	}
	if token.burned.Sign() != 0 {
		t.Fatalf("expected nothing burned, got %s", token.burned)
	}
}

func TestQueriesAreIdempotent(t *testing.T) {
	engine, _, _, _ := newTestEngine(t)

	if err := engine.DepositCollateralAndMint(alice, weth, tokens(10), tokens(4000)); err != nil {
		t.Fatalf("deposit and mint: %v", err)
	}
	first, err := engine.HealthFactor(alice)
	if err != nil {
		t.Fatalf("health factor: %v", err)
	}
	second, err := engine.HealthFactor(alice)
	if err != nil {
		t.Fatalf("health factor: %v", err)
	}
	if first.Cmp(second) != 0 {
		t.Fatalf("health factor not idempotent: %s vs %s", first, second)
	}
	infoA, err := engine.AccountInformation(alice)
	if err != nil {
		t.Fatalf("account info: %v", err)
	}
	infoB, err := engine.AccountInformation(alice)
	if err != nil {
		t.Fatalf("account info: %v", err)
	}
	if infoA.DebtMinted.Cmp(infoB.DebtMinted) != 0 || infoA.CollateralValueUSD.Cmp(infoB.CollateralValueUSD) != 0 {
		t.Fatalf("account info not idempotent")
	}
}

func TestMultiAssetValuation(t *testing.T) {
	engine, _, _, _ := newTestEngine(t)

	if err := engine.DepositCollateral(alice, weth, tokens(10)); err != nil {
		t.Fatalf("deposit weth: %v", err)
	}
	if err := engine.DepositCollateral(alice, wbtc, tokens(1)); err != nil {
		t.Fatalf("deposit wbtc: %v", err)
	}
	total, err := engine.TotalCollateralUSD(alice)
	if err != nil {
		t.Fatalf("total collateral: %v", err)
	}
	// 10 x $2000 + 1 x $30000.
	if total.Cmp(tokens(50_000)) != 0 {
		t.Fatalf("unexpected valuation: %s", total)
	}
}

func mustDebt(t *testing.T, engine *Engine, user common.Address) *big.Int {
	t.Helper()
	info, err := engine.AccountInformation(user)
	if err != nil {
		t.Fatalf("account info: %v", err)
	}
	return info.DebtMinted
}
