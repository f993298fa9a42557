// Package matching implements the matching & trade execution protocol
// (spec §4.5): clock advance, lazy funding and warmup application,
// matcher-output validation, PnL realization relative to oracle, fee
// charging, and the post-trade IM check. The step ordering follows
// spec §4.5; the discriminator this protocol answers to
// (ExecuteCrossSlab = 5, "v0 main instruction") is pinned by the Rust
// original's programs/router/src/instructions/mod.rs, and the
// warmup/Σ-accumulator bookkeeping step 3 touches mirrors
// crates/model_safety/src/crisis/accums.rs's sigma_warming/
// sigma_realized fields.
package matching

import (
	"errors"
	"math/big"

	"github.com/dcccrypto/percolator-sub000/internal/entities"
	"github.com/dcccrypto/percolator-sub000/internal/funding"
	"github.com/dcccrypto/percolator-sub000/internal/ids"
	"github.com/dcccrypto/percolator-sub000/internal/margin"
)

var (
	ErrClockRegression      = errors.New("matching: slot is not greater than last seen")
	ErrInvalidMatchingEngine = errors.New("matching: fill sign/size mismatch against request")
	ErrIMBreach             = errors.New("matching: post-trade initial margin breached")
)

// TradeExecution is the fill a Matcher returns for a requested size.
type TradeExecution struct {
	Price int64
	Size  *big.Int // signed, from the user's perspective
}

// Matcher is the narrow capability the core calls through to obtain a
// fill (spec §9: "execute_match(lp, oracle, size) -> TradeExecution").
// AMM curve math and orderbook crossing logic live behind this
// boundary; this package never implements matcher internals itself.
type Matcher interface {
	ExecuteMatch(lpSeat *entities.LpSeat, oraclePrice int64, requestedSize *big.Int) (TradeExecution, error)
}

// Request bundles the parameters of a single two-sided trade (spec
// §4.5: "(matcher, lp_idx, user_idx, slot, oracle_price, signed_size)").
type Request struct {
	Market            ids.Market
	Slot              int64
	OraclePrice       int64
	SignedSize        *big.Int // from the user's perspective; LP takes the other side
	TakerFeeBps       uint32
	ImrBps            uint32
	WarmupPeriodSlots uint64
}

// Result reports the realized outcome of a trade for both sides.
type Result struct {
	ExecPrice       int64
	ExecSize        *big.Int
	UserPnlDelta    *big.Int
	LpPnlDelta      *big.Int
	FeeCharged      *big.Int
}

// clockGate validates that the incoming slot is strictly greater than
// header.LastTradeSlot, the per-venue last-trade-slot clock this
// package owns exclusively (distinct from funding.UpdateFundingIndex's
// own LastFundingTs clock, which runs in unix seconds on an
// independent cadence).
func clockGate(lastSlot, newSlot int64) error {
	if newSlot <= lastSlot {
		return ErrClockRegression
	}
	return nil
}

// Execute runs the full protocol of spec §4.5 against the user's and
// LP's portfolios for a single market. accums may be nil only in tests
// that don't exercise crisis-scale warmup settlement bookkeeping.
func Execute(
	req Request,
	header *entities.SlabHeader,
	user *entities.Portfolio,
	lp *entities.Portfolio,
	lpSeat *entities.LpSeat,
	accums *entities.Accums,
	matcher Matcher,
	userMarks map[ids.Market]int64,
	lpMarks map[ids.Market]int64,
) (Result, error) {
	// Step 1: advance clock, reject regressions.
	if err := clockGate(header.LastTradeSlot, req.Slot); err != nil {
		return Result{}, err
	}

	// Step 2: apply funding to both sides for this venue.
	userOffset := user.FundingOffset(req.Market)
	userDelta, newUserOffset := funding.ApplyFunding(user.Exposure(req.Market), userOffset, header.CumFunding)
	user.RealizedPnl.Add(user.RealizedPnl, userDelta)
	user.FundingOffsets[req.Market] = newUserOffset

	lpOffset := lp.FundingOffset(req.Market)
	lpDelta, newLpOffset := funding.ApplyFunding(lp.Exposure(req.Market), lpOffset, header.CumFunding)
	lp.RealizedPnl.Add(lp.RealizedPnl, lpDelta)
	lp.FundingOffsets[req.Market] = newLpOffset

	// Step 3: settle matured warmup into realized_pnl/capital for both sides.
	margin.SettleWarmup(user, accums, uint64(req.Slot))
	margin.SettleWarmup(lp, accums, uint64(req.Slot))

	// Step 4: invoke the matcher.
	fill, err := matcher.ExecuteMatch(lpSeat, req.OraclePrice, req.SignedSize)
	if err != nil {
		return Result{}, err
	}

	// Step 5: validate matcher output (P-MatcherWellformed).
	if err := validateFill(fill, req.SignedSize); err != nil {
		return Result{}, err
	}

	// Step 6: trade PnL relative to oracle. User: (oracle-exec)*size.
	// LP takes the negation so a cross-LP close never teleports prior
	// PnL onto the second LP.
	priceDelta := big.NewInt(req.OraclePrice - fill.Price)
	userPnl := new(big.Int).Mul(priceDelta, fill.Size)
	lpPnl := new(big.Int).Neg(userPnl)

	margin.CreditPnl(user, accums, userPnl, uint64(req.Slot), req.WarmupPeriodSlots)
	margin.CreditPnl(lp, accums, lpPnl, uint64(req.Slot), req.WarmupPeriodSlots)

	// Step 7: update positions: the user's size moves by fill.Size and
	// the LP's by -fill.Size. This core tracks signed base size only;
	// there is no entry price field and no weighted-average entry is
	// computed.
	newUserExposure := new(big.Int).Add(user.Exposure(req.Market), fill.Size)
	user.SetExposure(req.Market, newUserExposure)
	lp.SetExposure(req.Market, new(big.Int).Sub(lp.Exposure(req.Market), fill.Size))

	// Step 8: charge taker fee, credited to insurance fee_revenue and
	// balance both (performed by the caller, which owns the
	// InsuranceState; this package returns the computed fee amount).
	notional := new(big.Int).Abs(big.NewInt(fill.Price))
	notional.Mul(notional, new(big.Int).Abs(fill.Size))
	fee := new(big.Int).Mul(notional, big.NewInt(int64(req.TakerFeeBps)))
	fee.Div(fee, big.NewInt(10000))
	user.RealizedPnl.Sub(user.RealizedPnl, fee)

	header.LastTradeSlot = req.Slot
	header.Seqno++

	// Step 9: post-trade IM check.
	userExposures := map[ids.Market]*big.Int{req.Market: user.Exposure(req.Market)}
	userEquity := margin.Equity(user, big.NewInt(0))
	userPosValue := margin.PositionValue(userExposures, userMarks)
	if !margin.CheckIM(userEquity, userPosValue, req.ImrBps) {
		return Result{}, ErrIMBreach
	}

	return Result{
		ExecPrice:    fill.Price,
		ExecSize:     fill.Size,
		UserPnlDelta: userPnl,
		LpPnlDelta:   lpPnl,
		FeeCharged:   fee,
	}, nil
}

// validateFill checks sign(size)==sign(requested) and |size|<=|requested|.
func validateFill(fill TradeExecution, requested *big.Int) error {
	if fill.Size.Sign() != requested.Sign() {
		return ErrInvalidMatchingEngine
	}
	if new(big.Int).Abs(fill.Size).Cmp(new(big.Int).Abs(requested)) > 0 {
		return ErrInvalidMatchingEngine
	}
	return nil
}
