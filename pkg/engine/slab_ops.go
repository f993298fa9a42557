package engine

import (
	"github.com/dcccrypto/percolator-sub000/internal/funding"
	"github.com/dcccrypto/percolator-sub000/internal/ids"
	"github.com/dcccrypto/percolator-sub000/internal/orderbook"
	"go.uber.org/zap"
)

// SlabOpCode is the stable numeric discriminator for a slab-side
// operation (spec §6's second table). These are distinct from the
// router OpCodes above: they belong to whatever implements the narrow
// matching.Matcher capability, reached through this registry only
// because, for the purposes of this module, Registry also plays that
// matcher role against its own per-slab order books.
type SlabOpCode uint8

const (
	SlabOpInitialize        SlabOpCode = 0
	SlabOpCommitFill        SlabOpCode = 1
	SlabOpPlaceOrder        SlabOpCode = 3
	SlabOpCancelOrder       SlabOpCode = 4
	SlabOpUpdateFunding     SlabOpCode = 5
	SlabOpHaltTrading       SlabOpCode = 6
	SlabOpResumeTrading     SlabOpCode = 7
	SlabOpModifyOrder       SlabOpCode = 8
	SlabOpInitializeReceipt SlabOpCode = 9
)

// PlaceOrder is slab-side op 3: validates the halt/price-band/
// oracle-band circuit breakers (spec §4.2) ahead of inserting into the
// slab's book.
func (r *Registry) PlaceOrder(slab ids.SlabID, owner ids.Owner, side orderbook.Side, price, qty, nowTs int64) (id ids.OrderID, err error) {
	defer func() { r.logSlabOp(SlabOpPlaceOrder, slab, err) }()

	header, err := r.header(slab)
	if err != nil {
		return 0, err
	}
	if header.IsTradingHalted {
		return 0, wrap(KindState, ErrTradingHalted)
	}

	book := r.book(slab)
	if berr := book.ValidateBand(side, price, header.PriceBandBps); berr != nil {
		return 0, classifyOrderbookError(berr)
	}
	if berr := orderbook.ValidateOracleBand(price, header.MarkPx, header.OracleBandBps); berr != nil {
		return 0, classifyOrderbookError(berr)
	}

	id, ierr := book.Insert(side, owner, price, qty, nowTs)
	if ierr != nil {
		return 0, classifyOrderbookError(ierr)
	}
	header.Seqno++
	return id, nil
}

// CancelOrder is slab-side op 4. Cancellation is allowed even while
// trading is halted, since it only reduces risk rather than adding it.
func (r *Registry) CancelOrder(slab ids.SlabID, owner ids.Owner, id ids.OrderID) (err error) {
	defer func() { r.logSlabOp(SlabOpCancelOrder, slab, err) }()

	header, herr := r.header(slab)
	if herr != nil {
		return herr
	}

	book := r.book(slab)
	if cerr := book.Cancel(id, owner); cerr != nil {
		return classifyOrderbookError(cerr)
	}
	header.Seqno++
	return nil
}

// ModifyOrder is slab-side op 8: re-validates the bands against the
// order's resting side before applying the change.
func (r *Registry) ModifyOrder(slab ids.SlabID, owner ids.Owner, id ids.OrderID, newPrice, newQty, nowTs int64) (err error) {
	defer func() { r.logSlabOp(SlabOpModifyOrder, slab, err) }()

	header, err := r.header(slab)
	if err != nil {
		return err
	}
	if header.IsTradingHalted {
		return wrap(KindState, ErrTradingHalted)
	}

	book := r.book(slab)
	existing, ok := book.Find(id)
	if !ok {
		return wrap(KindAccountShape, orderbook.ErrNotFound)
	}
	if berr := book.ValidateBand(existing.Side, newPrice, header.PriceBandBps); berr != nil {
		return classifyOrderbookError(berr)
	}
	if berr := orderbook.ValidateOracleBand(newPrice, header.MarkPx, header.OracleBandBps); berr != nil {
		return classifyOrderbookError(berr)
	}
	if merr := book.Modify(id, owner, newPrice, newQty, nowTs); merr != nil {
		return classifyOrderbookError(merr)
	}
	header.Seqno++
	return nil
}

// HaltTrading is slab-side op 6.
func (r *Registry) HaltTrading(slab ids.SlabID) (err error) {
	defer func() { r.logSlabOp(SlabOpHaltTrading, slab, err) }()

	header, err := r.header(slab)
	if err != nil {
		return err
	}
	header.IsTradingHalted = true
	return nil
}

// ResumeTrading is slab-side op 7.
func (r *Registry) ResumeTrading(slab ids.SlabID) (err error) {
	defer func() { r.logSlabOp(SlabOpResumeTrading, slab, err) }()

	header, err := r.header(slab)
	if err != nil {
		return err
	}
	header.IsTradingHalted = false
	return nil
}

// UpdateFunding is slab-side op 5: advances the mark price and runs
// funding.UpdateFundingIndex, which itself no-ops (with a Warn log) on
// clock regression or a too-short interval (spec §4.3) rather than
// failing the operation.
func (r *Registry) UpdateFunding(slab ids.SlabID, mark, oracle, nowTs int64) (err error) {
	defer func() { r.logSlabOp(SlabOpUpdateFunding, slab, err) }()

	header, err := r.header(slab)
	if err != nil {
		return err
	}
	header.MarkPx = mark
	funding.UpdateFundingIndex(header, mark, oracle, r.Config.Funding.Sensitivity, nowTs, r.Log)
	return nil
}

// classifyOrderbookError maps internal/orderbook's error vocabulary
// onto the stable ErrorKind taxonomy (spec §7).
func classifyOrderbookError(err error) error {
	switch err {
	case orderbook.ErrUnauthorized:
		return wrap(KindAuthorization, err)
	case orderbook.ErrNotFound:
		return wrap(KindAccountShape, err)
	default:
		return wrap(KindValidation, err)
	}
}

// logSlabOp mirrors logOp for the slab-side operation set, which uses
// its own discriminator space (spec §6's second table).
func (r *Registry) logSlabOp(op SlabOpCode, slab ids.SlabID, err error) {
	if r.Log == nil {
		return
	}
	fields := []zap.Field{zap.Uint8("slab_op", uint8(op)), zap.String("slab", slab.Hex())}
	if err != nil {
		r.Log.Warn("engine: slab operation failed", append(fields, zap.Error(err))...)
		return
	}
	r.Log.Debug("engine: slab operation applied", fields...)
}
