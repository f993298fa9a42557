package entities

import (
	"math/big"

	"github.com/dcccrypto/percolator-sub000/internal/ids"
)

// SlabHeader is the per-venue record a matcher instance carries: mark
// price, fee schedule, cumulative funding index, and the circuit-breaker
// parameters the orderbook engine enforces (spec §3).
type SlabHeader struct {
	LpOwner      ids.Owner
	RouterID     ids.RouterID
	Instrument   ids.InstrumentID
	SlabID       ids.SlabID

	MarkPx       int64
	TakerFeeBps  uint32
	ContractSize int64

	// CumFunding is the cumulative funding index since genesis (i128 in
	// spec terms).
	CumFunding    *big.Int
	LastFundingTs int64 // unix seconds, funding.UpdateFundingIndex's own clock
	FundingRate   int64 // derived, per-hour, informational only

	// LastTradeSlot is the last matching.Execute slot seen for this
	// venue (spec §4.5 step 1's clock gate). Deliberately a separate
	// field from LastFundingTs: a slot counter and a unix-second
	// funding timestamp are not interchangeable, and matching.Execute
	// and funding.UpdateFundingIndex each advance their own clock.
	LastTradeSlot int64

	// Seqno increments on any book mutation, giving external observers
	// monotonic visibility into quote freshness.
	Seqno uint64

	PriceBandBps  uint32
	OracleBandBps uint32

	IsTradingHalted bool
}

// NewSlabHeader returns a header with zeroed funding state.
func NewSlabHeader(slab ids.SlabID, router ids.RouterID, instrument ids.InstrumentID, lpOwner ids.Owner) *SlabHeader {
	return &SlabHeader{
		SlabID:     slab,
		RouterID:   router,
		Instrument: instrument,
		LpOwner:    lpOwner,
		CumFunding: big.NewInt(0),
	}
}

// RegisteredSlab is a registry entry describing a slab's risk parameters
// (spec §3).
type RegisteredSlab struct {
	SlabID        ids.SlabID
	OracleID      ids.SlabID
	ImrBps        uint32
	MmrBps        uint32
	MakerFeeCap   uint32
	TakerFeeCap   uint32
	LatencySlaMs  uint32
	MaxExposure   *big.Int
	RegisteredTs  int64
	Active        bool

	// MinLiquidationAbs is the market-scoped dust kill-switch threshold
	// for hard liquidation (spec §4.6; recovered as market-level rather
	// than global, matching RegisteredSlab's other risk parameters).
	MinLiquidationAbs *big.Int
}

// InsuranceState tracks the protocol's loss-absorbing reserve (spec §3).
type InsuranceState struct {
	Balance          *big.Int
	FeeRevenue       *big.Int
	UncoveredBadDebt *big.Int
	Reserved         *big.Int
	Authority        ids.Owner
}

// NewInsuranceState returns a zeroed insurance account for the given
// authority.
func NewInsuranceState(authority ids.Owner) *InsuranceState {
	return &InsuranceState{
		Balance:          big.NewInt(0),
		FeeRevenue:       big.NewInt(0),
		UncoveredBadDebt: big.NewInt(0),
		Reserved:         big.NewInt(0),
		Authority:        authority,
	}
}

// Spendable returns the liquid balance available to draw against in a
// crisis waterfall: Balance minus whatever is already earmarked as
// Reserved.
func (ins *InsuranceState) Spendable() *big.Int {
	out := new(big.Int).Sub(ins.Balance, ins.Reserved)
	if out.Sign() < 0 {
		return big.NewInt(0)
	}
	return out
}
