// Package liquidity implements the LP adapter: reservation/release of
// collateral against a seat, and the four liquidity intents routed from
// the portfolio layer into either the orderbook or an external AMM
// curve (spec §4.4). The AMM curve itself is out of scope (spec §1
// Non-goals); this package only defines the narrow capability the core
// calls through.
package liquidity

import (
	"errors"
	"math/big"

	"github.com/dcccrypto/percolator-sub000/internal/entities"
	"github.com/dcccrypto/percolator-sub000/internal/ids"
	"github.com/dcccrypto/percolator-sub000/internal/orderbook"
)

var (
	ErrFrozenSeat        = errors.New("liquidity: seat is frozen")
	ErrPortfolioMismatch = errors.New("liquidity: seat does not belong to this portfolio")
	ErrInsufficientFree  = errors.New("liquidity: insufficient free collateral")
	ErrInsufficientSeat  = errors.New("liquidity: insufficient seat reservation")
	ErrArithmeticOverflow = errors.New("liquidity: arithmetic overflow")
	ErrUnsupported       = errors.New("liquidity: operation not supported")
	ErrCreditBreach      = errors.New("liquidity: post-operation credit check failed")
)

// Reserve moves base+quote from the portfolio's free collateral into
// the seat's reserved balances. Fails closed if the seat is frozen or
// does not belong to the caller's portfolio (ported from
// router_reserve.rs, ahead of the arithmetic).
func Reserve(p *entities.Portfolio, seat *entities.LpSeat, base, quote *big.Int) error {
	if seat.Frozen() {
		return ErrFrozenSeat
	}
	if seat.Portfolio != p.Owner {
		return ErrPortfolioMismatch
	}

	total := new(big.Int).Add(base, quote)
	if p.FreeCollateral.Cmp(total) < 0 {
		return ErrInsufficientFree
	}

	p.FreeCollateral.Sub(p.FreeCollateral, total)
	p.LockedCollateral.Add(p.LockedCollateral, total)
	seat.ReservedBaseQ64.Add(seat.ReservedBaseQ64, base)
	seat.ReservedQuoteQ64.Add(seat.ReservedQuoteQ64, quote)
	return nil
}

// Release moves base+quote back from the seat's reserved balances into
// the portfolio's free collateral. base+quote total is conserved.
func Release(p *entities.Portfolio, seat *entities.LpSeat, base, quote *big.Int) error {
	if seat.Frozen() {
		return ErrFrozenSeat
	}
	if seat.Portfolio != p.Owner {
		return ErrPortfolioMismatch
	}
	if seat.ReservedBaseQ64.Cmp(base) < 0 || seat.ReservedQuoteQ64.Cmp(quote) < 0 {
		return ErrInsufficientSeat
	}

	total := new(big.Int).Add(base, quote)
	seat.ReservedBaseQ64.Sub(seat.ReservedBaseQ64, base)
	seat.ReservedQuoteQ64.Sub(seat.ReservedQuoteQ64, quote)
	p.LockedCollateral.Sub(p.LockedCollateral, total)
	p.FreeCollateral.Add(p.FreeCollateral, total)
	return nil
}

// LiquidityResult is the uniform outcome of any liquidity intent (spec
// §4.4).
type LiquidityResult struct {
	LpSharesDelta     *big.Int
	ExposureBaseDelta *big.Int
	ExposureQuoteDelta *big.Int
	MakerFeeCredits   *big.Int
	RealizedPnlDelta  *big.Int
}

func zeroResult() LiquidityResult {
	return LiquidityResult{
		LpSharesDelta:      big.NewInt(0),
		ExposureBaseDelta:  big.NewInt(0),
		ExposureQuoteDelta: big.NewInt(0),
		MakerFeeCredits:    big.NewInt(0),
		RealizedPnlDelta:   big.NewInt(0),
	}
}

// AMMCurve is the narrow external capability the core calls through for
// AMM-side math (spec §1 Non-goals: "a general AMM curve library"; spec
// §9: "expose a narrow capability set ... as a trait/interface"). This
// package never implements curve math itself.
type AMMCurve interface {
	ExecuteAdd(curveID uint32, lowerPx, upperPx, quoteNotional int64) (lpShares *big.Int, exposureBase, exposureQuote *big.Int, err error)
	ExecuteRemove(curveID uint32, lpShares *big.Int) (exposureBase, exposureQuote *big.Int, err error)
}

// AmmAddIntent mints LP shares against an external curve (spec §4.4).
type AmmAddIntent struct {
	LowerPx       int64
	UpperPx       int64
	QuoteNotional int64
	CurveID       uint32
	FeeBps        uint32
}

// AmmAdd executes an AmmAdd intent through the given curve capability
// and folds the result into the seat.
func AmmAdd(seat *entities.LpSeat, curve AMMCurve, intent AmmAddIntent) (LiquidityResult, error) {
	shares, expBase, expQuote, err := curve.ExecuteAdd(intent.CurveID, intent.LowerPx, intent.UpperPx, intent.QuoteNotional)
	if err != nil {
		return LiquidityResult{}, err
	}
	seat.LPShares.Add(seat.LPShares, shares)
	seat.ExposureBaseQ64.Add(seat.ExposureBaseQ64, expBase)
	seat.ExposureQuoteQ64.Add(seat.ExposureQuoteQ64, expQuote)

	res := zeroResult()
	res.LpSharesDelta = shares
	res.ExposureBaseDelta = expBase
	res.ExposureQuoteDelta = expQuote
	return res, nil
}

// quoteScale is the fixed-point denominator process_ob_add/
// process_ob_remove_by_ids divide price*qty by to get a quote-exposure
// delta (programs/slab/src/adapter.rs).
const quoteScale = 1_000_000

// ObOrder is one resting limit order an ObAdd batch inserts
// (programs/slab/src/adapter.rs's process_ob_add).
type ObOrder struct {
	Side  orderbook.Side
	Price int64
	Qty   int64
}

// ObAddIntent batches limit-order inserts into a slab's book (spec
// §4.4 ObAdd). PostOnly/ReduceOnly are carried for schema parity with
// the Rust original's LiquidityIntent::ObAdd variant, but
// process_ob_add (adapter.rs) itself hardcodes both flags to false when
// placing the order, so they are not threaded into orderbook.Book.Insert
// here either — that is the adapter's actual behavior, not an omission.
type ObAddIntent struct {
	Orders     []ObOrder
	PostOnly   bool
	ReduceOnly bool
}

// ObAdd inserts every order in the batch into book under the seat's
// owning portfolio, and folds the aggregate exposure delta into the
// seat. Returns the fresh order IDs alongside the uniform
// LiquidityResult so a caller can later target RemoveObByIds at them.
// Ported from process_ob_add (adapter.rs): buy legs add +qty base /
// -price*qty/quoteScale quote; sell legs the opposite.
func ObAdd(book *orderbook.Book, seat *entities.LpSeat, intent ObAddIntent, nowTs int64) (LiquidityResult, []ids.OrderID, error) {
	if len(intent.Orders) == 0 {
		return LiquidityResult{}, nil, ErrUnsupported
	}

	totalBase := big.NewInt(0)
	totalQuote := big.NewInt(0)
	orderIDs := make([]ids.OrderID, 0, len(intent.Orders))
	for _, o := range intent.Orders {
		id, err := book.Insert(o.Side, seat.Portfolio, o.Price, o.Qty, nowTs)
		if err != nil {
			return LiquidityResult{}, nil, err
		}
		orderIDs = append(orderIDs, id)

		notional := new(big.Int).Mul(big.NewInt(o.Price), big.NewInt(o.Qty))
		notional.Div(notional, big.NewInt(quoteScale))
		qty := big.NewInt(o.Qty)
		if o.Side == orderbook.Buy {
			totalBase.Add(totalBase, qty)
			totalQuote.Sub(totalQuote, notional)
		} else {
			totalBase.Sub(totalBase, qty)
			totalQuote.Add(totalQuote, notional)
		}
	}

	seat.ExposureBaseQ64.Add(seat.ExposureBaseQ64, totalBase)
	seat.ExposureQuoteQ64.Add(seat.ExposureQuoteQ64, totalQuote)

	res := zeroResult()
	res.ExposureBaseDelta = totalBase
	res.ExposureQuoteDelta = totalQuote
	return res, orderIDs, nil
}

// RemoveSelector tags which removal variant is requested (spec §4.4,
// §6 liquidity intent tagged union).
type RemoveSelector uint8

const (
	RemoveAmmByShares RemoveSelector = iota
	RemoveObByIds
	RemoveObAll
)

// RemoveIntent burns shares or cancels resting orders, returning the
// inverse exposure delta.
type RemoveIntent struct {
	Selector RemoveSelector
	Shares   *big.Int // RemoveAmmByShares
	OrderIDs []uint64 // RemoveObByIds
}

// Remove executes a Remove intent. book is only consulted for the
// RemoveObByIds/RemoveObAll selectors; pass nil for RemoveAmmByShares.
func Remove(seat *entities.LpSeat, book *orderbook.Book, curve AMMCurve, intent RemoveIntent) (LiquidityResult, error) {
	switch intent.Selector {
	case RemoveAmmByShares:
		expBase, expQuote, err := curve.ExecuteRemove(0, intent.Shares)
		if err != nil {
			return LiquidityResult{}, err
		}
		seat.LPShares.Sub(seat.LPShares, intent.Shares)
		seat.ExposureBaseQ64.Sub(seat.ExposureBaseQ64, expBase)
		seat.ExposureQuoteQ64.Sub(seat.ExposureQuoteQ64, expQuote)

		res := zeroResult()
		res.LpSharesDelta = new(big.Int).Neg(intent.Shares)
		res.ExposureBaseDelta = new(big.Int).Neg(expBase)
		res.ExposureQuoteDelta = new(big.Int).Neg(expQuote)
		return res, nil
	case RemoveObByIds:
		if book == nil {
			return LiquidityResult{}, ErrUnsupported
		}
		res, err := removeObOrders(book, seat.Portfolio, intent.OrderIDs)
		if err != nil {
			return LiquidityResult{}, err
		}
		seat.ExposureBaseQ64.Add(seat.ExposureBaseQ64, res.ExposureBaseDelta)
		seat.ExposureQuoteQ64.Add(seat.ExposureQuoteQ64, res.ExposureQuoteDelta)
		return res, nil
	case RemoveObAll:
		if book == nil {
			return LiquidityResult{}, ErrUnsupported
		}
		owned := book.OrdersByOwner(seat.Portfolio)
		rawIDs := make([]uint64, len(owned))
		for i, o := range owned {
			rawIDs[i] = uint64(o.ID)
		}
		res, err := removeObOrders(book, seat.Portfolio, rawIDs)
		if err != nil {
			return LiquidityResult{}, err
		}
		seat.ExposureBaseQ64.Add(seat.ExposureBaseQ64, res.ExposureBaseDelta)
		seat.ExposureQuoteQ64.Add(seat.ExposureQuoteQ64, res.ExposureQuoteDelta)
		return res, nil
	default:
		return LiquidityResult{}, ErrUnsupported
	}
}

// removeObOrders cancels each order ID owned by owner, accumulating the
// inverse of ObAdd's exposure delta. Orders no longer found (already
// filled or cancelled) are skipped rather than failing the whole batch,
// matching process_ob_remove_by_ids's (adapter.rs) skip-with-a-warning
// behavior.
func removeObOrders(book *orderbook.Book, owner ids.Owner, orderIDs []uint64) (LiquidityResult, error) {
	totalBase := big.NewInt(0)
	totalQuote := big.NewInt(0)
	for _, raw := range orderIDs {
		id := ids.OrderID(raw)
		o, ok := book.Find(id)
		if !ok {
			continue
		}

		notional := new(big.Int).Mul(big.NewInt(o.Price), big.NewInt(o.Qty))
		notional.Div(notional, big.NewInt(quoteScale))
		qty := big.NewInt(o.Qty)
		if o.Side == orderbook.Buy {
			totalBase.Sub(totalBase, qty)
			totalQuote.Add(totalQuote, notional)
		} else {
			totalBase.Add(totalBase, qty)
			totalQuote.Sub(totalQuote, notional)
		}

		if err := book.Cancel(id, owner); err != nil {
			if err == orderbook.ErrNotFound {
				continue
			}
			return LiquidityResult{}, err
		}
	}

	res := zeroResult()
	res.ExposureBaseDelta = totalBase
	res.ExposureQuoteDelta = totalQuote
	return res, nil
}

// Modify is never implemented: spec §4.4 requires it be rejected
// with an "unsupported operation" error.
func Modify() (LiquidityResult, error) {
	return LiquidityResult{}, ErrUnsupported
}

// ApplyCreditDiscipline verifies the seat still satisfies its haircut
// limits after a liquidity result has been folded in (spec §4.4: "the
// router applies credit discipline post-result").
func ApplyCreditDiscipline(seat *entities.LpSeat, haircutBaseBps, haircutQuoteBps uint32) error {
	if !seat.CheckLimits(haircutBaseBps, haircutQuoteBps) {
		return ErrCreditBreach
	}
	return nil
}
