// Package crisis implements the O(1) loss-socialization waterfall and
// lazy per-user reconciliation (spec §4.7). Grounded on the Rust
// original's model_safety::crisis::haircut module and its Q64x64 scale
// factors.
package crisis

import (
	"math/big"

	"github.com/dcccrypto/percolator-sub000/internal/entities"
	"github.com/dcccrypto/percolator-sub000/internal/fixedpoint"
)

// Outcome reports the effect of one crisis_apply_haircuts call.
type Outcome struct {
	BurnedWarming     *big.Int
	InsuranceDraw     *big.Int
	EquityHaircutRatio fixedpoint.Q64x64
	IsSolvent         bool
}

// ApplyHaircuts runs the four-step loss waterfall against the global
// accumulators and insurance balance: burn warming, draw insurance,
// haircut equity, advance the epoch. A zero deficit is a true no-op
// (no epoch bump, zero burn, draw and ratio, IsSolvent true).
func ApplyHaircuts(accums *entities.Accums, insurance *entities.InsuranceState) Outcome {
	deficit := accums.Deficit()
	if deficit.Sign() == 0 {
		return Outcome{
			BurnedWarming:      big.NewInt(0),
			InsuranceDraw:      big.NewInt(0),
			EquityHaircutRatio: fixedpoint.Zero,
			IsSolvent:          true,
		}
	}

	// Step 2: burn warming.
	burn := minBig(deficit, accums.SigmaWarming)
	gamma := fixedpoint.Ratio(burn, accums.SigmaWarming)
	accums.WarmingScale = accums.WarmingScale.MulScale(gamma.OneMinus())
	accums.SigmaWarming.Sub(accums.SigmaWarming, burn)
	remaining := new(big.Int).Sub(deficit, burn)

	// Step 3: draw insurance. accums.SigmaInsurance is the solvency
	// accumulator Deficit() reads; insurance.Balance is the persisted
	// account record. Both move together — they are the same money
	// tracked at two layers.
	draw := minBig(remaining, accums.SigmaInsurance)
	accums.SigmaInsurance.Sub(accums.SigmaInsurance, draw)
	insurance.Balance.Sub(insurance.Balance, draw)

	// Step 4: haircut equity against the deficit recomputed from the
	// aggregates as steps 2 and 3 left them.
	remaining = accums.Deficit()
	equityTotal := new(big.Int).Add(accums.SigmaPrincipal, accums.SigmaRealized)
	rho := fixedpoint.Ratio(remaining, equityTotal)
	oneMinusRho := rho.OneMinus()
	accums.EquityScale = accums.EquityScale.MulScale(oneMinusRho)
	accums.SigmaPrincipal = applyScaleToBig(accums.SigmaPrincipal, oneMinusRho)
	accums.SigmaRealized = applyScaleToBig(accums.SigmaRealized, oneMinusRho)

	// Step 5: advance epoch.
	accums.Epoch++

	solvent := accums.Deficit().Sign() == 0

	return Outcome{
		BurnedWarming:      burn,
		InsuranceDraw:      draw,
		EquityHaircutRatio: rho,
		IsSolvent:          solvent,
	}
}

func minBig(a, b *big.Int) *big.Int {
	if a.Cmp(b) <= 0 {
		return new(big.Int).Set(a)
	}
	return new(big.Int).Set(b)
}

// applyScaleToBig returns floor(x * scale), where scale in [0,1] is a
// Q64x64 value, via the same limb-based multiply the rest of the
// engine uses (no math/big-based float approximation).
func applyScaleToBig(x *big.Int, scale fixedpoint.Q64x64) *big.Int {
	return scale.MulI128(x)
}

// MaterializeParams carries the per-call time-vesting inputs
// materialize_user needs (spec §4.7).
type MaterializeParams struct {
	NowSlot  uint64
	TauSlots uint64
}

// Materialize performs the lazy per-user reconciliation: catching the
// user up on any crisis scale changes since its last touch, then
// time-vesting warming into realized from last_touch_slot to now_slot.
// Calling twice with no intervening epoch change and no slot advance is
// a no-op (P-Idempotent-Materialize).
func Materialize(p *entities.Portfolio, accums *entities.Accums, params MaterializeParams) {
	if p.LastEpochApplied < accums.Epoch {
		if !p.EquityScaleSnap.IsZero() {
			equityRatio := fixedpoint.Ratio(
				uint128ToBigFromQ(accums.EquityScale),
				uint128ToBigFromQ(p.EquityScaleSnap),
			)
			p.Principal = equityRatio.MulI128(p.Principal)
			p.RealizedPnl = equityRatio.MulI128(p.RealizedPnl)
		}
		if !p.WarmingScaleSnap.IsZero() {
			warmingRatio := fixedpoint.Ratio(
				uint128ToBigFromQ(accums.WarmingScale),
				uint128ToBigFromQ(p.WarmingScaleSnap),
			)
			p.WarmingPnl = warmingRatio.MulI128(p.WarmingPnl)
		}
		p.EquityScaleSnap = accums.EquityScale
		p.WarmingScaleSnap = accums.WarmingScale
		p.LastEpochApplied = accums.Epoch
	}

	vestWarmupSince(p, params)
}

// uint128ToBigFromQ exposes a Q64x64's raw bits as an unsigned integer
// for use as a Ratio operand: equity_scale/equity_scale_snap is itself
// a Q64x64-valued ratio of two already-Q64x64 scale factors, so we
// treat their raw bit patterns as the numerator/denominator magnitudes
// Ratio expects.
func uint128ToBigFromQ(q fixedpoint.Q64x64) *big.Int {
	hi, lo := q.Bits()
	out := new(big.Int).SetUint64(hi)
	out.Lsh(out, 64)
	out.Or(out, new(big.Int).SetUint64(lo))
	return out
}

// vestWarmupSince linearly vests warming_pnl into realized_pnl over
// tau_slots, preserving warming+realized. It advances last_touch_slot
// to now_slot regardless of whether any vesting occurred, so repeated
// calls at the same slot are a no-op.
func vestWarmupSince(p *entities.Portfolio, params MaterializeParams) {
	if params.NowSlot <= p.LastTouchSlot {
		return
	}
	if p.WarmingPnl.Sign() == 0 || params.TauSlots == 0 {
		p.LastTouchSlot = params.NowSlot
		return
	}

	elapsed := params.NowSlot - p.LastTouchSlot
	tau := params.TauSlots
	var vested *big.Int
	if elapsed >= tau {
		vested = new(big.Int).Set(p.WarmingPnl)
	} else {
		vested = new(big.Int).Mul(p.WarmingPnl, new(big.Int).SetUint64(elapsed))
		vested.Div(vested, new(big.Int).SetUint64(tau))
	}

	p.WarmingPnl.Sub(p.WarmingPnl, vested)
	p.RealizedPnl.Add(p.RealizedPnl, vested)
	p.LastTouchSlot = params.NowSlot
}
