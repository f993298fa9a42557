package entities

import (
	"math/big"

	"github.com/dcccrypto/percolator-sub000/internal/ids"
)

// SeatFrozen is bit 0 of LpSeat.Flags (spec §3: "flags (bit 0 = frozen)").
const SeatFrozen uint32 = 1 << 0

// LpSeat is the per-(portfolio, matcher, context) record holding reserved
// collateral and exposure for a single LP venue. Ported from the Rust
// original's RouterLpSeat (programs/router/src/state/lp_seat.rs).
type LpSeat struct {
	Portfolio    ids.Owner
	MatcherState ids.SlabID
	ContextID    ids.ContextID

	Flags uint32

	ReservedBaseQ64  *big.Int
	ReservedQuoteQ64 *big.Int

	LPShares *big.Int

	// ExposureBaseQ64/ExposureQuoteQ64 are signed, Q64.64-scaled.
	ExposureBaseQ64  *big.Int
	ExposureQuoteQ64 *big.Int

	// Operator is an optional delegate identifier; the zero value means
	// no delegate (spec §3; recovered authorization rule from lp_seat.rs
	// is_authorized).
	Operator ids.Owner

	IM *big.Int
	MM *big.Int

	RiskClass uint8
}

// NewLpSeat returns a zeroed seat for the given key.
func NewLpSeat(key ids.SeatKey) *LpSeat {
	return &LpSeat{
		Portfolio:        key.Portfolio,
		MatcherState:     key.Matcher,
		ContextID:        key.Context,
		ReservedBaseQ64:  big.NewInt(0),
		ReservedQuoteQ64: big.NewInt(0),
		LPShares:         big.NewInt(0),
		ExposureBaseQ64:  big.NewInt(0),
		ExposureQuoteQ64: big.NewInt(0),
		IM:               big.NewInt(0),
		MM:               big.NewInt(0),
	}
}

// Frozen reports whether the seat currently rejects new operations.
func (s *LpSeat) Frozen() bool {
	return s.Flags&SeatFrozen != 0
}

// SetFrozen sets or clears bit 0 of Flags.
func (s *LpSeat) SetFrozen(frozen bool) {
	if frozen {
		s.Flags |= SeatFrozen
	} else {
		s.Flags &^= SeatFrozen
	}
}

var zeroOwner ids.Owner

// IsAuthorized reports whether signer may act on this seat: either the
// portfolio owner itself, or the seat's single optional operator
// delegate (ported from lp_seat.rs is_authorized; spec §3 mentions
// `operator` only in passing without spelling out the rule this
// implements).
func (s *LpSeat) IsAuthorized(signer ids.Owner) bool {
	if signer == s.Portfolio {
		return true
	}
	if s.Operator == zeroOwner {
		return false
	}
	return signer == s.Operator
}

// bpsDenominator is the basis-points scale used throughout the credit
// and haircut math (10000 = 100%).
const bpsDenominator = 10000

// CheckLimits reports whether current exposure is within the reserved
// collateral after applying a haircut, in basis points, to each side.
// required = |exposure| * (10000+haircut_bps) / 10000, ported verbatim
// (integer bps math, no floats) from lp_seat.rs check_limits.
func (s *LpSeat) CheckLimits(haircutBaseBps, haircutQuoteBps uint32) bool {
	requiredBase := requiredReserve(s.ExposureBaseQ64, haircutBaseBps)
	if requiredBase.Cmp(s.ReservedBaseQ64) > 0 {
		return false
	}
	requiredQuote := requiredReserve(s.ExposureQuoteQ64, haircutQuoteBps)
	return requiredQuote.Cmp(s.ReservedQuoteQ64) <= 0
}

func requiredReserve(exposure *big.Int, haircutBps uint32) *big.Int {
	abs := new(big.Int).Abs(exposure)
	num := new(big.Int).Mul(abs, big.NewInt(int64(bpsDenominator)+int64(haircutBps)))
	return num.Div(num, big.NewInt(bpsDenominator))
}
