// Package entities holds the core's per-account and global records:
// Portfolio, LpSeat, SlabHeader, RegisteredSlab, InsuranceState and
// Accums (spec §3 Data Model). These are plain Go structs mutated in
// place by the L2-L7 packages; nothing here performs I/O.
package entities

import (
	"math/big"

	"github.com/dcccrypto/percolator-sub000/internal/fixedpoint"
	"github.com/dcccrypto/percolator-sub000/internal/ids"
)

// Portfolio is a user's cross-margin bundle: one record aggregates
// collateral and PnL across every seat and position the owner holds.
type Portfolio struct {
	Owner    ids.Owner
	RouterID ids.RouterID

	// Principal is the lifetime net deposit floor. Deposits raise it;
	// withdrawals and the crisis equity haircut (crisis.Materialize
	// scaling it by the equity scale ratio) are the paths that lower it.
	Principal *big.Int

	FreeCollateral   *big.Int
	LockedCollateral *big.Int

	RealizedPnl   *big.Int
	UnrealizedPnl *big.Int

	// WarmingPnl is positive realized PnL awaiting time-based vesting
	// before it counts toward withdrawable realized PnL.
	WarmingPnl         *big.Int
	WarmupStartedSlot  uint64
	WarmupSlopePerStep *big.Int

	// FundingOffsets and Exposures are sparse maps keyed by (slab,
	// instrument); see ids.Market.
	FundingOffsets map[ids.Market]*big.Int
	Exposures      map[ids.Market]*big.Int

	// FeeCredits funds the maintenance fee before it draws free
	// collateral or accrues as debt (spec §4.6).
	FeeCredits *big.Int

	// IsLP marks a portfolio that is never subject to dust GC.
	IsLP bool

	// Crisis reconciliation state (spec §3, §4.7).
	EquityScaleSnap  fixedpoint.Q64x64
	WarmingScaleSnap fixedpoint.Q64x64
	LastEpochApplied uint64
	LastTouchSlot    uint64
}

// NewPortfolio returns a zeroed portfolio scaled at the accums' current
// (equity_scale, warming_scale) so a freshly materialized user never sees
// a spurious catch-up on its first touch.
func NewPortfolio(owner ids.Owner, router ids.RouterID, accums *Accums) *Portfolio {
	return &Portfolio{
		Owner:              owner,
		RouterID:           router,
		Principal:          big.NewInt(0),
		FreeCollateral:     big.NewInt(0),
		LockedCollateral:   big.NewInt(0),
		RealizedPnl:        big.NewInt(0),
		UnrealizedPnl:      big.NewInt(0),
		WarmingPnl:         big.NewInt(0),
		WarmupSlopePerStep: big.NewInt(0),
		FundingOffsets:     make(map[ids.Market]*big.Int),
		Exposures:          make(map[ids.Market]*big.Int),
		FeeCredits:         big.NewInt(0),
		EquityScaleSnap:    accums.EquityScale,
		WarmingScaleSnap:   accums.WarmingScale,
		LastEpochApplied:   accums.Epoch,
		LastTouchSlot:      0,
	}
}

// FundingOffset returns the position's last-seen cumulative funding
// index for a market, defaulting to zero for a market never touched.
func (p *Portfolio) FundingOffset(m ids.Market) *big.Int {
	if v, ok := p.FundingOffsets[m]; ok {
		return v
	}
	return big.NewInt(0)
}

// Exposure returns the signed base size held at a market, defaulting to
// zero.
func (p *Portfolio) Exposure(m ids.Market) *big.Int {
	if v, ok := p.Exposures[m]; ok {
		return v
	}
	return big.NewInt(0)
}

// SetExposure records the signed base size held at a market, removing
// the entry entirely when it returns to zero so closed positions don't
// accumulate dead map keys.
func (p *Portfolio) SetExposure(m ids.Market, size *big.Int) {
	if size.Sign() == 0 {
		delete(p.Exposures, m)
		return
	}
	p.Exposures[m] = new(big.Int).Set(size)
}

// IsDust reports whether this portfolio is eligible for garbage
// collection: zero capital, realized PnL, positions and reserved
// collateral, regardless of stale funding offsets or negative fee
// credits (spec §4.6 Dust GC). LPs are never dust.
func (p *Portfolio) IsDust() bool {
	if p.IsLP {
		return false
	}
	if p.Principal.Sign() != 0 {
		return false
	}
	if p.FreeCollateral.Sign() != 0 {
		return false
	}
	if p.LockedCollateral.Sign() != 0 {
		return false
	}
	if p.RealizedPnl.Sign() != 0 {
		return false
	}
	if p.WarmingPnl.Sign() != 0 {
		return false
	}
	for _, exp := range p.Exposures {
		if exp.Sign() != 0 {
			return false
		}
	}
	return true
}
