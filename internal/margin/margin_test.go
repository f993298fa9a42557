package margin

import (
	"math/big"
	"testing"

	"github.com/dcccrypto/percolator-sub000/internal/entities"
	"github.com/dcccrypto/percolator-sub000/internal/ids"
)

func newPortfolio() *entities.Portfolio {
	return entities.NewPortfolio(ids.Owner{1}, ids.RouterID{}, entities.NewAccums())
}

func TestCollateralIgnoresNegativeComponents(t *testing.T) {
	p := newPortfolio()
	p.Principal = big.NewInt(1000)
	p.RealizedPnl = big.NewInt(-200)
	got := Collateral(p, big.NewInt(-50))
	if got.Cmp(big.NewInt(1000)) != 0 {
		t.Errorf("Collateral = %s, want 1000", got)
	}
}

func TestEquityIsFullySigned(t *testing.T) {
	p := newPortfolio()
	p.Principal = big.NewInt(1000)
	p.RealizedPnl = big.NewInt(-200)
	got := Equity(p, big.NewInt(-50))
	if got.Cmp(big.NewInt(750)) != 0 {
		t.Errorf("Equity = %s, want 750", got)
	}
}

func TestPositionValueSumsAbsoluteNotional(t *testing.T) {
	m1 := ids.Market{SlabID: ids.SlabID{1}}
	m2 := ids.Market{SlabID: ids.SlabID{2}}
	exposures := map[ids.Market]*big.Int{
		m1: big.NewInt(-10),
		m2: big.NewInt(5),
	}
	marks := map[ids.Market]int64{m1: 100, m2: 200}
	got := PositionValue(exposures, marks)
	if got.Cmp(big.NewInt(2000)) != 0 {
		t.Errorf("PositionValue = %s, want 2000 (10*100 + 5*200)", got)
	}
}

func TestCheckIMAndMM(t *testing.T) {
	equity := big.NewInt(1000)
	posValue := big.NewInt(10_000)
	if !CheckIM(equity, posValue, 500) { // 10000*5% = 500 <= 1000
		t.Errorf("CheckIM should pass at 5%% IMR")
	}
	if CheckIM(equity, posValue, 2000) { // 10000*20% = 2000 > 1000
		t.Errorf("CheckIM should fail at 20%% IMR")
	}
	if !CheckMM(equity, posValue, 200) {
		t.Errorf("CheckMM should pass at 2%% MMR")
	}
}

func TestHealthClassification(t *testing.T) {
	preliqBuffer := big.NewInt(100)
	if !IsPreLiq(big.NewInt(50), preliqBuffer) {
		t.Errorf("health=50 should be pre-liq")
	}
	if IsPreLiq(big.NewInt(0), preliqBuffer) {
		t.Errorf("health=0 should be hard-liq, not pre-liq")
	}
	if !IsHardLiq(big.NewInt(0)) {
		t.Errorf("health=0 should be hard-liq")
	}
	if !IsHardLiq(big.NewInt(-1)) {
		t.Errorf("health=-1 should be hard-liq")
	}
}

// TestMaturedCapsAtWarmingPnl is P-WarmupMonotone's boundary: matured
// amount never exceeds the warming balance even with a large slope.
func TestMaturedCapsAtWarmingPnl(t *testing.T) {
	p := newPortfolio()
	p.WarmingPnl = big.NewInt(100)
	p.WarmupStartedSlot = 0
	p.WarmupSlopePerStep = big.NewInt(1000)

	got := Matured(p, 10)
	if got.Cmp(big.NewInt(100)) != 0 {
		t.Errorf("Matured = %s, want capped at 100", got)
	}
}

func TestMaturedGrowsMonotonically(t *testing.T) {
	p := newPortfolio()
	p.WarmingPnl = big.NewInt(1000)
	p.WarmupStartedSlot = 0
	p.WarmupSlopePerStep = big.NewInt(10)

	at5 := Matured(p, 5)
	at10 := Matured(p, 10)
	if at5.Cmp(at10) > 0 {
		t.Errorf("matured(5)=%s should be <= matured(10)=%s", at5, at10)
	}
}

func TestSettleWarmupMovesMaturedAndUpdatesAccums(t *testing.T) {
	p := newPortfolio()
	accums := entities.NewAccums()
	p.WarmingPnl = big.NewInt(1000)
	accums.SigmaWarming = big.NewInt(1000)
	p.WarmupStartedSlot = 0
	p.WarmupSlopePerStep = big.NewInt(10)

	moved := SettleWarmup(p, accums, 50) // matured = min(1000, 10*50)=500
	if moved.Cmp(big.NewInt(500)) != 0 {
		t.Fatalf("moved = %s, want 500", moved)
	}
	if p.WarmingPnl.Cmp(big.NewInt(500)) != 0 {
		t.Errorf("remaining warming_pnl = %s, want 500", p.WarmingPnl)
	}
	if p.RealizedPnl.Cmp(big.NewInt(500)) != 0 {
		t.Errorf("realized_pnl = %s, want 500", p.RealizedPnl)
	}
	if accums.SigmaWarming.Cmp(big.NewInt(500)) != 0 {
		t.Errorf("sigma_warming = %s, want 500", accums.SigmaWarming)
	}
	if accums.SigmaRealized.Cmp(big.NewInt(500)) != 0 {
		t.Errorf("sigma_realized = %s, want 500", accums.SigmaRealized)
	}
}

func TestSettleWarmupNoOpBeforeAnyMaturity(t *testing.T) {
	p := newPortfolio()
	accums := entities.NewAccums()
	p.WarmingPnl = big.NewInt(1000)
	p.WarmupStartedSlot = 100
	p.WarmupSlopePerStep = big.NewInt(10)

	moved := SettleWarmup(p, accums, 100) // nowSlot == start: nothing elapsed
	if moved.Sign() != 0 {
		t.Errorf("moved = %s, want 0 (no time elapsed)", moved)
	}
}

func TestCreditPnlNegativeBypassesWarmup(t *testing.T) {
	p := newPortfolio()
	accums := entities.NewAccums()
	CreditPnl(p, accums, big.NewInt(-300), 10, 100)
	if p.RealizedPnl.Cmp(big.NewInt(-300)) != 0 {
		t.Errorf("realized_pnl = %s, want -300", p.RealizedPnl)
	}
	if p.WarmingPnl.Sign() != 0 {
		t.Errorf("warming_pnl should be untouched by a negative delta, got %s", p.WarmingPnl)
	}
}

func TestCreditPnlPositiveGoesThroughWarmupAndResetsSlope(t *testing.T) {
	p := newPortfolio()
	accums := entities.NewAccums()
	CreditPnl(p, accums, big.NewInt(1000), 0, 100)
	if p.WarmingPnl.Cmp(big.NewInt(1000)) != 0 {
		t.Errorf("warming_pnl = %s, want 1000", p.WarmingPnl)
	}
	// slope = max(1, 1000/100) = 10
	if p.WarmupSlopePerStep.Cmp(big.NewInt(10)) != 0 {
		t.Errorf("slope = %s, want 10", p.WarmupSlopePerStep)
	}
	if p.WarmupStartedSlot != 0 {
		t.Errorf("start slot = %d, want 0", p.WarmupStartedSlot)
	}
}

// TestCreditPnlPreservesMaturedBeforeSlopeReset is spec §4.5 step 7's
// "trade-time reset" requirement: matured warming PnL is settled before
// the slope is recomputed, so it isn't silently lost.
func TestCreditPnlPreservesMaturedBeforeSlopeReset(t *testing.T) {
	p := newPortfolio()
	accums := entities.NewAccums()
	p.WarmingPnl = big.NewInt(1000)
	accums.SigmaWarming = big.NewInt(1000)
	p.WarmupStartedSlot = 0
	p.WarmupSlopePerStep = big.NewInt(10)

	// By slot 50, 500 has matured. A new +200 PnL event arrives.
	CreditPnl(p, accums, big.NewInt(200), 50, 100)

	if p.RealizedPnl.Cmp(big.NewInt(500)) != 0 {
		t.Errorf("realized_pnl = %s, want 500 (matured amount preserved)", p.RealizedPnl)
	}
	// remaining warming (500) + new delta (200) = 700
	if p.WarmingPnl.Cmp(big.NewInt(700)) != 0 {
		t.Errorf("warming_pnl = %s, want 700", p.WarmingPnl)
	}
}

func TestLiquidationFeeSplit(t *testing.T) {
	keeper, insurance := LiquidationFeeSplit(big.NewInt(1000), 1000) // 10% to keeper
	if keeper.Cmp(big.NewInt(100)) != 0 {
		t.Errorf("keeper share = %s, want 100", keeper)
	}
	if insurance.Cmp(big.NewInt(900)) != 0 {
		t.Errorf("insurance share = %s, want 900", insurance)
	}
}

func TestIsDustCloseEligible(t *testing.T) {
	if !IsDustCloseEligible(big.NewInt(3), big.NewInt(5)) {
		t.Errorf("remaining 3 < threshold 5 should be dust-close eligible")
	}
	if IsDustCloseEligible(big.NewInt(10), big.NewInt(5)) {
		t.Errorf("remaining 10 >= threshold 5 should not be dust-close eligible")
	}
}

func TestAccrueMaintenanceFeeDrawsCreditsFirst(t *testing.T) {
	p := newPortfolio()
	p.FeeCredits = big.NewInt(100)
	p.FreeCollateral = big.NewInt(500)

	AccrueMaintenanceFee(p, big.NewInt(30))
	if p.FeeCredits.Cmp(big.NewInt(70)) != 0 {
		t.Errorf("fee_credits = %s, want 70", p.FeeCredits)
	}
	if p.FreeCollateral.Cmp(big.NewInt(500)) != 0 {
		t.Errorf("free_collateral should be untouched while credits cover the fee, got %s", p.FreeCollateral)
	}
}

func TestAccrueMaintenanceFeeFallsThroughToFreeCollateralThenDebt(t *testing.T) {
	p := newPortfolio()
	p.FeeCredits = big.NewInt(10)
	p.FreeCollateral = big.NewInt(15)

	AccrueMaintenanceFee(p, big.NewInt(30)) // 10 from credits, 15 from free, 5 as debt
	if p.FeeCredits.Cmp(big.NewInt(-5)) != 0 {
		t.Errorf("fee_credits = %s, want -5 (5 of the fee accrued as debt)", p.FeeCredits)
	}
	if p.FreeCollateral.Sign() != 0 {
		t.Errorf("free_collateral = %s, want 0", p.FreeCollateral)
	}

	AccrueMaintenanceFee(p, big.NewInt(1))
	if p.FeeCredits.Cmp(big.NewInt(-6)) != 0 {
		t.Errorf("fee_credits = %s, want -6 (accruing debt)", p.FeeCredits)
	}
}
