package crisis

import (
	"math/big"
	"testing"

	"github.com/dcccrypto/percolator-sub000/internal/entities"
	"github.com/dcccrypto/percolator-sub000/internal/fixedpoint"
	"github.com/dcccrypto/percolator-sub000/internal/ids"
)

func TestNoDeficitNoAction(t *testing.T) {
	accums := entities.NewAccums()
	accums.SigmaCollateral = big.NewInt(1_000_000)
	accums.SigmaPrincipal = big.NewInt(1_000_000)
	insurance := entities.NewInsuranceState(ids.Owner{})

	out := ApplyHaircuts(accums, insurance)
	if out.BurnedWarming.Sign() != 0 || out.InsuranceDraw.Sign() != 0 {
		t.Errorf("no-deficit outcome should be all-zero, got %+v", out)
	}
	if accums.Epoch != 0 {
		t.Errorf("epoch should not advance on a no-op, got %d", accums.Epoch)
	}
	if !out.IsSolvent {
		t.Errorf("no-deficit case should report solvent")
	}
}

func TestBurnWarmingOnly(t *testing.T) {
	accums := entities.NewAccums()
	accums.SigmaPrincipal = big.NewInt(1_000_000)
	accums.SigmaWarming = big.NewInt(500_000)
	accums.SigmaCollateral = big.NewInt(1_400_000) // liabilities 1_500_000, deficit = 100_000
	insurance := entities.NewInsuranceState(ids.Owner{})

	out := ApplyHaircuts(accums, insurance)
	if out.BurnedWarming.Cmp(big.NewInt(100_000)) != 0 {
		t.Errorf("burned_warming = %s, want 100000", out.BurnedWarming)
	}
	if out.InsuranceDraw.Sign() != 0 {
		t.Errorf("insurance_draw = %s, want 0", out.InsuranceDraw)
	}
	if accums.SigmaWarming.Cmp(big.NewInt(400_000)) != 0 {
		t.Errorf("sigma_warming after burn = %s, want 400000", accums.SigmaWarming)
	}
	if !out.IsSolvent {
		t.Errorf("expected solvent after burning warming covers the deficit")
	}
	if accums.Epoch != 1 {
		t.Errorf("epoch = %d, want 1", accums.Epoch)
	}
}

func TestBurnAllWarmingThenInsurance(t *testing.T) {
	accums := entities.NewAccums()
	accums.SigmaPrincipal = big.NewInt(1_000_000)
	accums.SigmaWarming = big.NewInt(100_000)
	accums.SigmaCollateral = big.NewInt(300_000) // liabilities 1_100_000, deficit = 300_000
	insurance := entities.NewInsuranceState(ids.Owner{})
	insurance.Balance = big.NewInt(500_000)
	accums.SigmaInsurance = big.NewInt(500_000)

	out := ApplyHaircuts(accums, insurance)
	if out.BurnedWarming.Cmp(big.NewInt(100_000)) != 0 {
		t.Errorf("burned_warming = %s, want 100000 (all of it)", out.BurnedWarming)
	}
	if out.InsuranceDraw.Cmp(big.NewInt(200_000)) != 0 {
		t.Errorf("insurance_draw = %s, want 200000", out.InsuranceDraw)
	}
	if insurance.Balance.Cmp(big.NewInt(300_000)) != 0 {
		t.Errorf("insurance balance after draw = %s, want 300000", insurance.Balance)
	}
	if accums.SigmaWarming.Sign() != 0 {
		t.Errorf("sigma_warming should be fully burned, got %s", accums.SigmaWarming)
	}
}

// TestFullWaterfallWithEquityHaircut is spec §8 scenario 4.
func TestFullWaterfallWithEquityHaircut(t *testing.T) {
	accums := entities.NewAccums()
	accums.SigmaPrincipal = big.NewInt(1_000_000)
	accums.SigmaRealized = big.NewInt(200_000)
	accums.SigmaWarming = big.NewInt(100_000)
	accums.SigmaCollateral = big.NewInt(500_000)
	insurance := entities.NewInsuranceState(ids.Owner{})
	insurance.Balance = big.NewInt(200_000)
	accums.SigmaInsurance = big.NewInt(200_000)
	// deficit = (1_000_000+200_000+100_000) - (500_000+200_000) = 600_000

	out := ApplyHaircuts(accums, insurance)
	if out.BurnedWarming.Cmp(big.NewInt(100_000)) != 0 {
		t.Errorf("burned_warming = %s, want 100000", out.BurnedWarming)
	}
	if out.InsuranceDraw.Cmp(big.NewInt(200_000)) != 0 {
		t.Errorf("insurance_draw = %s, want 200000", out.InsuranceDraw)
	}
	// deficit recomputed after burn+draw: liabilities drop to
	// 1_000_000+200_000+0 = 1_200_000 and assets to 500_000+0 = 500_000,
	// so remaining = 700_000.
	// equity_total = 1_000_000+200_000 = 1_200_000 (principal+realized
	// untouched by the warming and insurance steps).
	// rho = 700_000/1_200_000 = 7/12 ≈ 0.5833.
	sevenTwelfths := fixedpoint.Ratio(big.NewInt(7), big.NewInt(12))
	diffBits := new(big.Int).Sub(uint128ToBigFromQ(out.EquityHaircutRatio), uint128ToBigFromQ(sevenTwelfths))
	if diffBits.CmpAbs(big.NewInt(2)) > 0 {
		t.Errorf("equity_haircut_ratio bits = %v, want close to 7/12's bits %v", out.EquityHaircutRatio, sevenTwelfths)
	}

	if accums.Deficit().Sign() != 0 {
		t.Errorf("final deficit = %s, want 0", accums.Deficit())
	}
	if !out.IsSolvent {
		t.Errorf("expected solvent after full waterfall")
	}
	if accums.Epoch != 1 {
		t.Errorf("epoch = %d, want 1", accums.Epoch)
	}
}

// TestScaleMonotonicity is P-ScaleMonotone: repeated crises never
// increase either scale factor.
func TestScaleMonotonicity(t *testing.T) {
	accums := entities.NewAccums()
	accums.SigmaPrincipal = big.NewInt(1_000_000)
	accums.SigmaWarming = big.NewInt(100_000)
	accums.SigmaCollateral = big.NewInt(800_000)
	insurance := entities.NewInsuranceState(ids.Owner{})

	before := accums.EquityScale
	beforeWarming := accums.WarmingScale
	ApplyHaircuts(accums, insurance)

	if accums.EquityScale.Less(fixedpoint.Zero) {
		t.Fatalf("equity scale went negative")
	}
	if !accums.EquityScale.LessEqual(before) {
		t.Errorf("equity_scale increased after a crisis")
	}
	if !accums.WarmingScale.LessEqual(beforeWarming) {
		t.Errorf("warming_scale increased after a crisis")
	}
}

// TestZeroPrincipalPartialBurn covers a portfolio set with no
// principal/realized at all: warming only partially covers the
// deficit, and with equity_total == 0 the equity-haircut step can't
// close the remaining gap (rho is undefined when equity_total <= 0,
// so Ratio returns Zero and no haircut is applied).
func TestZeroPrincipalPartialBurn(t *testing.T) {
	accums := entities.NewAccums()
	accums.SigmaWarming = big.NewInt(30_000)
	// A pre-existing vault shortfall (no principal/realized at all), so
	// burning every last unit of warming still leaves a gap nothing can
	// close: there is no equity left to haircut.
	accums.SigmaCollateral = big.NewInt(-20_000)
	insurance := entities.NewInsuranceState(ids.Owner{})

	out := ApplyHaircuts(accums, insurance)
	if out.BurnedWarming.Cmp(big.NewInt(30_000)) != 0 {
		t.Errorf("burned_warming = %s, want 30000 (all of it, still short)", out.BurnedWarming)
	}
	if accums.SigmaWarming.Sign() != 0 {
		t.Errorf("sigma_warming after burn = %s, want 0", accums.SigmaWarming)
	}
	if out.IsSolvent {
		t.Errorf("expected NOT solvent: no principal/realized equity left to haircut")
	}
}

func TestMaterializeIdempotent(t *testing.T) {
	accums := entities.NewAccums()
	accums.SigmaPrincipal = big.NewInt(1_000_000)
	accums.SigmaWarming = big.NewInt(100_000)
	accums.SigmaCollateral = big.NewInt(900_000)
	insurance := entities.NewInsuranceState(ids.Owner{})
	ApplyHaircuts(accums, insurance) // epoch -> 1, scales updated

	p := entities.NewPortfolio(ids.Owner{1}, ids.RouterID{}, entities.NewAccums())
	p.Principal = big.NewInt(10_000)
	p.LastEpochApplied = 0

	Materialize(p, accums, MaterializeParams{NowSlot: 10, TauSlots: 100})
	first := new(big.Int).Set(p.Principal)
	firstEpoch := p.LastEpochApplied

	Materialize(p, accums, MaterializeParams{NowSlot: 10, TauSlots: 100})
	if p.Principal.Cmp(first) != 0 {
		t.Errorf("second materialize at same epoch/slot changed principal: %s vs %s", p.Principal, first)
	}
	if p.LastEpochApplied != firstEpoch {
		t.Errorf("last_epoch_applied changed on idempotent replay")
	}
}

func TestVestWarmupLinearly(t *testing.T) {
	accums := entities.NewAccums()
	p := entities.NewPortfolio(ids.Owner{1}, ids.RouterID{}, accums)
	p.WarmingPnl = big.NewInt(1000)
	p.LastTouchSlot = 0

	Materialize(p, accums, MaterializeParams{NowSlot: 50, TauSlots: 100})
	if p.WarmingPnl.Cmp(big.NewInt(500)) != 0 {
		t.Errorf("warming_pnl after half-vesting = %s, want 500", p.WarmingPnl)
	}
	if p.RealizedPnl.Cmp(big.NewInt(500)) != 0 {
		t.Errorf("realized_pnl after half-vesting = %s, want 500", p.RealizedPnl)
	}

	Materialize(p, accums, MaterializeParams{NowSlot: 200, TauSlots: 100})
	if p.WarmingPnl.Sign() != 0 {
		t.Errorf("warming_pnl after full vesting = %s, want 0", p.WarmingPnl)
	}
	if p.RealizedPnl.Cmp(big.NewInt(1000)) != 0 {
		t.Errorf("realized_pnl after full vesting = %s, want 1000", p.RealizedPnl)
	}
}
