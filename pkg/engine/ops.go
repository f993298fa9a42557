package engine

import (
	"math/big"

	"github.com/dcccrypto/percolator-sub000/internal/entities"
	"github.com/dcccrypto/percolator-sub000/internal/ids"
	"github.com/dcccrypto/percolator-sub000/internal/liquidity"
	"github.com/dcccrypto/percolator-sub000/internal/margin"
	"github.com/dcccrypto/percolator-sub000/internal/matching"
	"go.uber.org/zap"
)

// OpCode is the stable numeric discriminator for a router operation
// (spec §6). Slab-side discriminators (Initialize, CommitFill,
// PlaceOrder, ...) belong to a matcher's own instruction set — they
// are not router operations and have no OpCode here; they use the
// separate SlabOpCode space in slab_ops.go.
type OpCode uint8

const (
	OpInitializeRegistry OpCode = 0
	OpInitializePortfolio OpCode = 1
	OpInitializeVault    OpCode = 2
	OpDeposit            OpCode = 3
	OpWithdraw           OpCode = 4
	OpExecuteCrossSlab   OpCode = 5
	OpLiquidateUser      OpCode = 6
	OpBurnLpShares       OpCode = 7
	OpCancelLpOrders     OpCode = 8
	OpRouterReserve      OpCode = 10
	OpRouterRelease      OpCode = 11
	OpRouterLiquidity    OpCode = 12
	OpRouterSeatInit     OpCode = 13
	OpWithdrawInsurance  OpCode = 14
	OpTopUpInsurance     OpCode = 15
)

// InitializeRegistry is op 0: sets governance and the insurance
// authority, and creates the zeroed InsuranceState. Fails if already
// initialized (spec §7 State kind: "already initialized").
func (r *Registry) InitializeRegistry(governance, insuranceAuthority ids.Owner) error {
	if r.Insurance != nil {
		return wrap(KindState, ErrAlreadyInitialized)
	}
	r.Governance = governance
	r.InsuranceAuthority = insuranceAuthority
	r.Insurance = entities.NewInsuranceState(insuranceAuthority)
	return nil
}

// InitializePortfolio is op 1: creates a zeroed portfolio for owner,
// scaled at the registry's current Accums epoch and scale factors so
// a fresh account never sees a spurious crisis catch-up.
func (r *Registry) InitializePortfolio(owner ids.Owner, router ids.RouterID) (p *entities.Portfolio, err error) {
	defer func() { r.logOp(OpInitializePortfolio, owner, err) }()

	if _, ok := r.portfolios[owner]; ok {
		return nil, wrap(KindState, ErrAlreadyInitialized)
	}
	p = entities.NewPortfolio(owner, router, r.Accums)
	r.portfolios[owner] = p
	return p, nil
}

// InitializeVault is op 2. The core doesn't model token custody itself
// (single numéraire, no multi-asset vaults); this only records that a
// mint has been associated with the registry so Deposit/Withdraw can
// be accepted by a host. Modeled as a set on the registry rather than
// a full Vault entity since nothing downstream reads vault fields.
func (r *Registry) InitializeVault(mint ids.Owner) error {
	if r.vaults == nil {
		r.vaults = make(map[ids.Owner]bool)
	}
	if r.vaults[mint] {
		return wrap(KindState, ErrAlreadyInitialized)
	}
	r.vaults[mint] = true
	return nil
}

// Deposit is op 3: credits amount to both principal (the lifetime
// deposit floor, spec Portfolio.Principal doc) and free collateral.
func (r *Registry) Deposit(owner ids.Owner, amount *big.Int) (err error) {
	defer func() { r.logOp(OpDeposit, owner, err) }()

	if amount.Sign() <= 0 {
		return wrap(KindValidation, ErrInvalidAmount)
	}
	p, err := r.portfolio(owner)
	if err != nil {
		return err
	}
	p.Principal.Add(p.Principal, amount)
	p.FreeCollateral.Add(p.FreeCollateral, amount)
	return nil
}

// Withdraw is op 4: debits free collateral, and the portion of the
// withdrawal that isn't above-principal PnL also lowers the principal
// floor (besides withdrawals, only the crisis equity haircut lowers
// principal). Rejects if the resulting state would breach the
// initial margin requirement.
func (r *Registry) Withdraw(owner ids.Owner, amount *big.Int, marks map[ids.Market]int64) (err error) {
	defer func() { r.logOp(OpWithdraw, owner, err) }()

	if amount.Sign() <= 0 {
		return wrap(KindValidation, ErrInvalidAmount)
	}
	p, err := r.portfolio(owner)
	if err != nil {
		return err
	}
	if p.FreeCollateral.Cmp(amount) < 0 {
		return wrap(KindResource, ErrInsufficientFree)
	}

	principalReduction := new(big.Int).Set(amount)
	if p.Principal.Cmp(amount) < 0 {
		principalReduction = new(big.Int).Set(p.Principal)
	}
	postEquity := new(big.Int).Sub(margin.Equity(p, big.NewInt(0)), principalReduction)
	posValue := margin.PositionValue(p.Exposures, marks)
	if !margin.CheckIM(postEquity, posValue, r.Config.Margin.ImrBps) {
		return wrap(KindResource, ErrInsufficientFree)
	}

	p.FreeCollateral.Sub(p.FreeCollateral, amount)
	p.Principal.Sub(p.Principal, principalReduction)
	return nil
}

// ExecuteCrossSlab is op 5: runs the matching protocol (internal/matching)
// for one user against one LP seat's matcher, then credits the taker
// fee to the insurance fund — the half of matching.Execute's step 8
// that package deliberately leaves to its caller, since only the
// registry holds the InsuranceState instance.
func (r *Registry) ExecuteCrossSlab(req matching.Request, slab ids.SlabID, user, lp ids.Owner, seatKey ids.SeatKey, matcher matching.Matcher, userMarks, lpMarks map[ids.Market]int64) (matching.Result, error) {
	header, err := r.header(slab)
	if err != nil {
		return matching.Result{}, err
	}
	if header.IsTradingHalted {
		return matching.Result{}, wrap(KindState, ErrTradingHalted)
	}
	userP, err := r.portfolio(user)
	if err != nil {
		return matching.Result{}, err
	}
	lpP, err := r.portfolio(lp)
	if err != nil {
		return matching.Result{}, err
	}
	seat, err := r.seat(seatKey)
	if err != nil {
		return matching.Result{}, err
	}

	result, err := matching.Execute(req, header, userP, lpP, seat, r.Accums, matcher, userMarks, lpMarks)
	if err != nil {
		if err == matching.ErrClockRegression && r.Log != nil {
			r.Log.Warn("engine: clock regression on execute_cross_slab, no-op", zap.Int64("slot", req.Slot))
		}
		return matching.Result{}, classifyMatchingError(err)
	}

	if r.Insurance != nil && result.FeeCharged.Sign() > 0 {
		r.Insurance.FeeRevenue.Add(r.Insurance.FeeRevenue, result.FeeCharged)
		r.Insurance.Balance.Add(r.Insurance.Balance, result.FeeCharged)
	}
	return result, nil
}

func classifyMatchingError(err error) error {
	switch err {
	case matching.ErrClockRegression:
		return nil // spec §7: clock regression is a logged no-op, not an error
	case matching.ErrInvalidMatchingEngine:
		return wrap(KindState, err)
	case matching.ErrIMBreach:
		return wrap(KindResource, err)
	default:
		return wrap(KindValidation, err)
	}
}

// LiquidateUser is op 6: closes a user's position at the oracle price
// when pre-liq or hard-liq health thresholds are breached, splitting
// the liquidation fee between keeper and insurance (spec §4.6). Returns
// the keeper's fee share for the host to pay out; the insurance share
// is credited directly since the registry owns that account.
func (r *Registry) LiquidateUser(owner ids.Owner, market ids.Market, slab ids.SlabID, oraclePrice int64, marks map[ids.Market]int64, nowSlot uint64) (keeperFee *big.Int, err error) {
	defer func() { r.logOp(OpLiquidateUser, owner, err) }()

	p, err := r.portfolio(owner)
	if err != nil {
		return nil, err
	}
	reg, err := r.registeredSlab(slab)
	if err != nil {
		return nil, err
	}

	equity := margin.Equity(p, big.NewInt(0))
	posValue := margin.PositionValue(p.Exposures, marks)
	health := margin.Health(equity, posValue, reg.MmrBps)

	preliq := margin.IsPreLiq(health, big.NewInt(r.Config.Margin.PreliqBufferAbs))
	hardLiq := margin.IsHardLiq(health)
	if !preliq && !hardLiq {
		return nil, wrap(KindState, ErrUnsupportedOperation)
	}

	size := p.Exposure(market)
	if size.Sign() == 0 {
		return big.NewInt(0), nil
	}

	notional := new(big.Int).Abs(size)
	notional.Mul(notional, big.NewInt(oraclePrice))
	fee := new(big.Int).Mul(notional, big.NewInt(int64(r.Config.Margin.LiquidationFeeBps)))
	fee.Div(fee, big.NewInt(10000))
	keeperAmt, insuranceAmt := margin.LiquidationFeeSplit(fee, r.Config.Margin.KeeperFeeShareBps)

	closePnl := new(big.Int).Mul(size, big.NewInt(oraclePrice))
	margin.CreditPnl(p, r.Accums, closePnl, nowSlot, r.Config.Warmup.PeriodSlots)
	p.SetExposure(market, big.NewInt(0))
	p.RealizedPnl.Sub(p.RealizedPnl, fee)

	if r.Insurance != nil {
		r.Insurance.Balance.Add(r.Insurance.Balance, insuranceAmt)
		r.Insurance.FeeRevenue.Add(r.Insurance.FeeRevenue, insuranceAmt)
	}

	remaining := p.Exposure(market)
	if margin.IsDustCloseEligible(remaining, reg.MinLiquidationAbs) {
		p.SetExposure(market, big.NewInt(0))
	}

	return keeperAmt, nil
}

// BurnLpShares is op 7.
func (r *Registry) BurnLpShares(seatKey ids.SeatKey, shares *big.Int, curve liquidity.AMMCurve, haircutBaseBps, haircutQuoteBps uint32) (res liquidity.LiquidityResult, err error) {
	defer func() { r.logOp(OpBurnLpShares, seatKey.Portfolio, err) }()

	seat, err := r.seat(seatKey)
	if err != nil {
		return liquidity.LiquidityResult{}, err
	}
	res, err = liquidity.Remove(seat, nil, curve, liquidity.RemoveIntent{Selector: liquidity.RemoveAmmByShares, Shares: shares})
	if err != nil {
		return liquidity.LiquidityResult{}, wrap(KindValidation, err)
	}
	if cerr := liquidity.ApplyCreditDiscipline(seat, haircutBaseBps, haircutQuoteBps); cerr != nil {
		return liquidity.LiquidityResult{}, wrap(KindResource, cerr)
	}
	return res, nil
}

// CancelLpOrders is op 8: cancels resting orders on the seat's matcher
// slab, either by explicit ID (RemoveObByIds) or the seat's entire
// resting book (RemoveObAll), folding the inverse exposure delta back
// into the seat (programs/slab/src/adapter.rs's process_remove).
func (r *Registry) CancelLpOrders(seatKey ids.SeatKey, selector liquidity.RemoveSelector, orderIDs []uint64, curve liquidity.AMMCurve) (res liquidity.LiquidityResult, err error) {
	defer func() { r.logOp(OpCancelLpOrders, seatKey.Portfolio, err) }()

	seat, err := r.seat(seatKey)
	if err != nil {
		return liquidity.LiquidityResult{}, err
	}
	book := r.book(seatKey.Matcher)
	res, err = liquidity.Remove(seat, book, curve, liquidity.RemoveIntent{Selector: selector, OrderIDs: orderIDs})
	if err != nil {
		return liquidity.LiquidityResult{}, wrap(KindValidation, err)
	}
	return res, nil
}

// RouterReserve is op 10.
func (r *Registry) RouterReserve(owner ids.Owner, seatKey ids.SeatKey, base, quote *big.Int) (err error) {
	defer func() { r.logOp(OpRouterReserve, owner, err) }()

	p, err := r.portfolio(owner)
	if err != nil {
		return err
	}
	seat, err := r.seat(seatKey)
	if err != nil {
		return err
	}
	if rerr := liquidity.Reserve(p, seat, base, quote); rerr != nil {
		return classifyLiquidityError(rerr)
	}
	return nil
}

// RouterRelease is op 11.
func (r *Registry) RouterRelease(owner ids.Owner, seatKey ids.SeatKey, base, quote *big.Int) (err error) {
	defer func() { r.logOp(OpRouterRelease, owner, err) }()

	p, err := r.portfolio(owner)
	if err != nil {
		return err
	}
	seat, err := r.seat(seatKey)
	if err != nil {
		return err
	}
	if rerr := liquidity.Release(p, seat, base, quote); rerr != nil {
		return classifyLiquidityError(rerr)
	}
	return nil
}

func classifyLiquidityError(err error) error {
	switch err {
	case liquidity.ErrFrozenSeat, liquidity.ErrPortfolioMismatch:
		return wrap(KindAuthorization, err)
	case liquidity.ErrInsufficientFree, liquidity.ErrInsufficientSeat, liquidity.ErrCreditBreach:
		return wrap(KindResource, err)
	case liquidity.ErrUnsupported:
		return wrap(KindValidation, err)
	default:
		return wrap(KindValidation, err)
	}
}

// RouterLiquidity is op 12: dispatches one of the tagged liquidity
// intents (spec §6: `0=AmmAdd, 2=ObAdd, 3=Remove, 4=Modify`) against
// the seat's matcher slab and applies the post-result credit
// discipline check. Returns the fresh order IDs an ObAdd batch created,
// nil for every other intent.
func (r *Registry) RouterLiquidity(seatKey ids.SeatKey, curve liquidity.AMMCurve, add *liquidity.AmmAddIntent, obAdd *liquidity.ObAddIntent, remove *liquidity.RemoveIntent, haircutBaseBps, haircutQuoteBps uint32, nowTs int64) (result liquidity.LiquidityResult, orderIDs []ids.OrderID, err error) {
	defer func() { r.logOp(OpRouterLiquidity, seatKey.Portfolio, err) }()

	seat, err := r.seat(seatKey)
	if err != nil {
		return liquidity.LiquidityResult{}, nil, err
	}

	var res liquidity.LiquidityResult
	switch {
	case add != nil:
		res, err = liquidity.AmmAdd(seat, curve, *add)
	case obAdd != nil:
		book := r.book(seatKey.Matcher)
		res, orderIDs, err = liquidity.ObAdd(book, seat, *obAdd, nowTs)
	case remove != nil:
		book := r.book(seatKey.Matcher)
		res, err = liquidity.Remove(seat, book, curve, *remove)
	default:
		res, err = liquidity.Modify()
	}
	if err != nil {
		return liquidity.LiquidityResult{}, nil, wrap(KindValidation, err)
	}
	if err := liquidity.ApplyCreditDiscipline(seat, haircutBaseBps, haircutQuoteBps); err != nil {
		return liquidity.LiquidityResult{}, nil, wrap(KindResource, err)
	}
	return res, orderIDs, nil
}

// RouterSeatInit is op 13.
func (r *Registry) RouterSeatInit(owner ids.Owner, matcher ids.SlabID, context ids.ContextID) (seat *entities.LpSeat, err error) {
	defer func() { r.logOp(OpRouterSeatInit, owner, err) }()

	key := ids.SeatKey{Portfolio: owner, Matcher: matcher, Context: context}
	if _, ok := r.seats[key]; ok {
		return nil, wrap(KindState, ErrAlreadyInitialized)
	}
	seat = entities.NewLpSeat(key)
	r.seats[key] = seat
	return seat, nil
}

// WithdrawInsurance is op 14: blocked while uncovered bad debt remains
// (spec §7: "insurance floor hit").
func (r *Registry) WithdrawInsurance(amount *big.Int) (err error) {
	defer func() { r.logOp(OpWithdrawInsurance, r.InsuranceAuthority, err) }()

	if r.Insurance == nil {
		return wrap(KindAccountShape, ErrNotFound)
	}
	if amount.Sign() <= 0 {
		return wrap(KindValidation, ErrInvalidAmount)
	}
	if r.Insurance.UncoveredBadDebt.Sign() > 0 {
		return wrap(KindResource, ErrInsuranceFloor)
	}
	if r.Insurance.Spendable().Cmp(amount) < 0 {
		return wrap(KindResource, ErrInsufficientFree)
	}
	r.Insurance.Balance.Sub(r.Insurance.Balance, amount)
	return nil
}

// TopUpInsurance is op 15: a deposit offsets any standing uncovered bad
// debt first, with the remainder (if any) adding to the spendable
// balance.
func (r *Registry) TopUpInsurance(amount *big.Int) (err error) {
	defer func() { r.logOp(OpTopUpInsurance, r.InsuranceAuthority, err) }()

	if r.Insurance == nil {
		return wrap(KindAccountShape, ErrNotFound)
	}
	if amount.Sign() <= 0 {
		return wrap(KindValidation, ErrInvalidAmount)
	}
	remaining := new(big.Int).Set(amount)
	if r.Insurance.UncoveredBadDebt.Sign() > 0 {
		offset := remaining
		if r.Insurance.UncoveredBadDebt.Cmp(remaining) < 0 {
			offset = new(big.Int).Set(r.Insurance.UncoveredBadDebt)
		}
		r.Insurance.UncoveredBadDebt.Sub(r.Insurance.UncoveredBadDebt, offset)
		remaining.Sub(remaining, offset)
	}
	r.Insurance.Balance.Add(r.Insurance.Balance, remaining)
	return nil
}

// CollectDust removes a portfolio that has decayed to zero across every
// dimension Portfolio.IsDust checks — principal, collateral, realized
// and warming PnL, every position — regardless of a stale funding
// offset (spec P-DustGC). This is not a router OpCode: GC is driven by
// an external keeper crank (spec §9: "the keeper uses a driver loop
// externally; the core sees synchronous calls only"), not a signed
// operation against an account, so it carries no OpCode/authorization
// check of its own. LPs are never collected (Portfolio.IsDust is
// always false for them). Returns false, nil for a live (non-dust)
// account so a keeper can crank the whole book without special-casing
// "not yet eligible".
func (r *Registry) CollectDust(owner ids.Owner) (collected bool, err error) {
	p, err := r.portfolio(owner)
	if err != nil {
		return false, err
	}
	if !p.IsDust() {
		return false, nil
	}
	delete(r.portfolios, owner)
	if r.Log != nil {
		r.Log.Info("engine: dust account collected", zap.String("owner", owner.Hex()))
	}
	return true, nil
}

var ErrInsufficientFree = liquidity.ErrInsufficientFree

// logOp emits a structured debug line for an operation; a thin wrapper
// so call sites don't each build their own zap.Field slice.
func (r *Registry) logOp(op OpCode, owner ids.Owner, err error) {
	if r.Log == nil {
		return
	}
	fields := []zap.Field{zap.Uint8("op", uint8(op)), zap.String("owner", owner.Hex())}
	if err != nil {
		r.Log.Warn("engine: operation failed", append(fields, zap.Error(err))...)
		return
	}
	r.Log.Debug("engine: operation applied", fields...)
}
