// Package margin implements collateral/equity accounting, the IM/MM
// checks, warmup time-vesting, liquidation, and maintenance-fee/dust-GC
// bookkeeping (spec §4.6). The Rust original has no single risk/margin
// file for these formulas; IM/MM/health/liquidation-fee-split are
// derived directly from spec §4.6. SettleWarmup/CreditPnl's
// warming->realized accounting mirrors
// crates/model_safety/src/crisis/accums.rs's sigma_warming/
// sigma_realized fields and the materialize_user contract documented in
// crisis/mod.rs; LiquidationFeeSplit's bps-scaled integer math follows
// the same idiom as programs/router/src/state/lp_seat.rs's
// check_limits.
package margin

import (
	"math/big"

	"github.com/dcccrypto/percolator-sub000/internal/entities"
	"github.com/dcccrypto/percolator-sub000/internal/ids"
)

func maxZero(x *big.Int) *big.Int {
	if x.Sign() < 0 {
		return big.NewInt(0)
	}
	return new(big.Int).Set(x)
}

// Collateral returns principal + max(0, realized_pnl) + max(0, mtmPnl).
func Collateral(p *entities.Portfolio, mtmPnl *big.Int) *big.Int {
	out := new(big.Int).Set(p.Principal)
	out.Add(out, maxZero(p.RealizedPnl))
	out.Add(out, maxZero(mtmPnl))
	return out
}

// Equity returns principal + realized_pnl + mtmPnl, all signed.
func Equity(p *entities.Portfolio, mtmPnl *big.Int) *big.Int {
	out := new(big.Int).Set(p.Principal)
	out.Add(out, p.RealizedPnl)
	out.Add(out, mtmPnl)
	return out
}

// PositionValue returns Σ|size_i|·mark_i over the given exposures, using
// the marks map keyed by the same market identifiers.
func PositionValue(exposures map[ids.Market]*big.Int, marks map[ids.Market]int64) *big.Int {
	total := big.NewInt(0)
	for m, size := range exposures {
		mark, ok := marks[m]
		if !ok || size.Sign() == 0 {
			continue
		}
		abs := new(big.Int).Abs(size)
		total.Add(total, abs.Mul(abs, big.NewInt(mark)))
	}
	return total
}

const bpsDenominator = 10000

// requirement returns positionValue * bps / 10000.
func requirement(positionValue *big.Int, bps uint32) *big.Int {
	out := new(big.Int).Mul(positionValue, big.NewInt(int64(bps)))
	return out.Div(out, big.NewInt(bpsDenominator))
}

// CheckIM reports whether equity ≥ Σ position_value·imr_bps/10000.
func CheckIM(equity, positionValue *big.Int, imrBps uint32) bool {
	return equity.Cmp(requirement(positionValue, imrBps)) >= 0
}

// CheckMM reports whether equity ≥ Σ position_value·mmr_bps/10000.
func CheckMM(equity, positionValue *big.Int, mmrBps uint32) bool {
	return equity.Cmp(requirement(positionValue, mmrBps)) >= 0
}

// Health returns equity minus the maintenance requirement; used to
// classify pre-liq vs hard-liq states.
func Health(equity, positionValue *big.Int, mmrBps uint32) *big.Int {
	return new(big.Int).Sub(equity, requirement(positionValue, mmrBps))
}

// IsPreLiq reports whether health lies in (0, preliqBuffer): reduce-only
// territory, not yet a forced close.
func IsPreLiq(health, preliqBuffer *big.Int) bool {
	return health.Sign() > 0 && health.Cmp(preliqBuffer) < 0
}

// IsHardLiq reports whether health ≤ 0: forced-close territory.
func IsHardLiq(health *big.Int) bool {
	return health.Sign() <= 0
}

// Matured returns min(warming_pnl, slope*(nowSlot-start)): the portion
// of warming PnL that has time-vested by nowSlot.
func Matured(p *entities.Portfolio, nowSlot uint64) *big.Int {
	if p.WarmingPnl.Sign() <= 0 {
		return big.NewInt(0)
	}
	if nowSlot <= p.WarmupStartedSlot {
		return big.NewInt(0)
	}
	elapsed := new(big.Int).SetUint64(nowSlot - p.WarmupStartedSlot)
	matured := new(big.Int).Mul(p.WarmupSlopePerStep, elapsed)
	if matured.Cmp(p.WarmingPnl) > 0 {
		return new(big.Int).Set(p.WarmingPnl)
	}
	return matured
}

// SettleWarmup moves the currently matured portion of warming PnL into
// realized_pnl, decrementing both the portfolio's warming_pnl and the
// global sigma_warming→sigma_realized accumulator pair by the same
// amount. Returns the amount moved (zero if nothing has matured yet).
func SettleWarmup(p *entities.Portfolio, accums *entities.Accums, nowSlot uint64) *big.Int {
	matured := Matured(p, nowSlot)
	if matured.Sign() == 0 {
		return matured
	}
	p.WarmingPnl.Sub(p.WarmingPnl, matured)
	p.RealizedPnl.Add(p.RealizedPnl, matured)
	if accums != nil {
		accums.SigmaWarming.Sub(accums.SigmaWarming, matured)
		accums.SigmaRealized.Add(accums.SigmaRealized, matured)
	}
	p.WarmupStartedSlot = nowSlot
	return matured
}

// CreditPnl applies a newly realized PnL delta to a portfolio at trade
// time (spec §4.5 step 7, §4.6 Warmup). Positive delta is routed
// through warming: first settling whatever has already matured at
// nowSlot (so matured amount is preserved, not lost, across the slope
// recomputation), then folding the new delta into warming_pnl and
// resetting start slot and slope. Negative delta bypasses warmup
// entirely and settles directly into realized_pnl (and sigma_realized).
func CreditPnl(p *entities.Portfolio, accums *entities.Accums, delta *big.Int, nowSlot uint64, warmupPeriodSlots uint64) {
	if delta.Sign() == 0 {
		return
	}
	if delta.Sign() < 0 {
		p.RealizedPnl.Add(p.RealizedPnl, delta)
		if accums != nil {
			accums.SigmaRealized.Add(accums.SigmaRealized, delta)
		}
		return
	}

	SettleWarmup(p, accums, nowSlot)

	p.WarmingPnl.Add(p.WarmingPnl, delta)
	if accums != nil {
		accums.SigmaWarming.Add(accums.SigmaWarming, delta)
	}
	p.WarmupStartedSlot = nowSlot
	p.WarmupSlopePerStep = recomputeSlope(p.WarmingPnl, warmupPeriodSlots)
}

// recomputeSlope returns max(1, |warmingPnl|/periodSlots).
func recomputeSlope(warmingPnl *big.Int, periodSlots uint64) *big.Int {
	if periodSlots == 0 {
		periodSlots = 1
	}
	abs := new(big.Int).Abs(warmingPnl)
	slope := new(big.Int).Div(abs, new(big.Int).SetUint64(periodSlots))
	if slope.Sign() <= 0 {
		return big.NewInt(1)
	}
	return slope
}

// LiquidationFeeSplit divides a liquidation fee between the liquidating
// keeper and the insurance fund (spec §4.6: "fees are split: keeper
// share to keeper's PnL, remainder to insurance").
func LiquidationFeeSplit(fee *big.Int, keeperBps uint32) (keeperAmt, insuranceAmt *big.Int) {
	keeperAmt = new(big.Int).Mul(fee, big.NewInt(int64(keeperBps)))
	keeperAmt.Div(keeperAmt, big.NewInt(bpsDenominator))
	insuranceAmt = new(big.Int).Sub(fee, keeperAmt)
	return keeperAmt, insuranceAmt
}

// IsDustCloseEligible reports whether a remaining position magnitude
// falls under the market's dust kill-switch threshold during a
// liquidation, meaning it should be closed fully rather than partially.
func IsDustCloseEligible(remaining, minLiquidationAbs *big.Int) bool {
	return new(big.Int).Abs(remaining).Cmp(minLiquidationAbs) < 0
}

// AccrueMaintenanceFee charges feePerSlot against, in order, fee
// credits, then free collateral, then as accruing fee debt (a negative
// fee_credits balance). Spending credits never touches insurance: it
// was already paid in when the credits were granted.
func AccrueMaintenanceFee(p *entities.Portfolio, feePerSlot *big.Int) {
	if feePerSlot.Sign() <= 0 {
		return
	}
	remaining := new(big.Int).Set(feePerSlot)

	if p.FeeCredits.Sign() > 0 {
		if p.FeeCredits.Cmp(remaining) >= 0 {
			p.FeeCredits.Sub(p.FeeCredits, remaining)
			return
		}
		remaining.Sub(remaining, p.FeeCredits)
		p.FeeCredits.SetInt64(0)
	}

	if p.FreeCollateral.Sign() > 0 {
		if p.FreeCollateral.Cmp(remaining) >= 0 {
			p.FreeCollateral.Sub(p.FreeCollateral, remaining)
			return
		}
		remaining.Sub(remaining, p.FreeCollateral)
		p.FreeCollateral.SetInt64(0)
	}

	p.FeeCredits.Sub(p.FeeCredits, remaining)
}
