package engine

import (
	"github.com/dcccrypto/percolator-sub000/internal/entities"
	"github.com/dcccrypto/percolator-sub000/internal/ids"
	"github.com/dcccrypto/percolator-sub000/internal/orderbook"
	"github.com/dcccrypto/percolator-sub000/internal/store"
	"github.com/dcccrypto/percolator-sub000/params"
	"go.uber.org/zap"
)

// Registry is the process-wide state container every operation
// dispatches against: the global Accums and InsuranceState (spec §9:
// "no ambient statics — pass explicitly"), the portfolio/seat/slab
// tables, and the ambient config/logger/store. Grounded on the
// teacher's pkg/app/perp.App, which plays the same role for order
// matching (holds the market registry, account manager and order
// books a transaction dispatches against).
type Registry struct {
	Governance        ids.Owner
	InsuranceAuthority ids.Owner

	Accums    *entities.Accums
	Insurance *entities.InsuranceState

	portfolios map[ids.Owner]*entities.Portfolio
	seats      map[ids.SeatKey]*entities.LpSeat
	headers    map[ids.SlabID]*entities.SlabHeader
	slabs      map[ids.SlabID]*entities.RegisteredSlab
	vaults     map[ids.Owner]bool

	// books holds one order book per slab, keyed the same way as
	// headers/slabs. Grounded on the teacher's pkg/app/perp.App, which
	// keeps its books in a separate map (books map[string]*core.OrderBook)
	// rather than embedding the book inside the market struct.
	books map[ids.SlabID]*orderbook.Book

	Config params.Config
	Log    *zap.Logger
	Store  *store.Store
}

// New returns an empty registry. Use InitializeRegistry to set
// governance/insurance authority per spec op 0.
func New(cfg params.Config, log *zap.Logger, st *store.Store) *Registry {
	return &Registry{
		Accums:     entities.NewAccums(),
		portfolios: make(map[ids.Owner]*entities.Portfolio),
		seats:      make(map[ids.SeatKey]*entities.LpSeat),
		headers:    make(map[ids.SlabID]*entities.SlabHeader),
		slabs:      make(map[ids.SlabID]*entities.RegisteredSlab),
		books:      make(map[ids.SlabID]*orderbook.Book),
		Config:     cfg,
		Log:        log,
		Store:      st,
	}
}

func (r *Registry) portfolio(owner ids.Owner) (*entities.Portfolio, error) {
	p, ok := r.portfolios[owner]
	if !ok {
		return nil, wrap(KindAccountShape, ErrNotFound)
	}
	return p, nil
}

func (r *Registry) seat(key ids.SeatKey) (*entities.LpSeat, error) {
	s, ok := r.seats[key]
	if !ok {
		return nil, wrap(KindAccountShape, ErrNotFound)
	}
	return s, nil
}

func (r *Registry) header(slab ids.SlabID) (*entities.SlabHeader, error) {
	h, ok := r.headers[slab]
	if !ok {
		return nil, wrap(KindAccountShape, ErrNotFound)
	}
	return h, nil
}

func (r *Registry) registeredSlab(slab ids.SlabID) (*entities.RegisteredSlab, error) {
	s, ok := r.slabs[slab]
	if !ok {
		return nil, wrap(KindAccountShape, ErrNotFound)
	}
	return s, nil
}

// RegisterSlab installs a slab's header, registry entry and a fresh
// order book, callable by test setup and by whatever out-of-band
// slab-provisioning flow a host runs (spec §6 lists slab-side
// Initialize as belonging to the matcher's own instruction set, not a
// router OpCode).
func (r *Registry) RegisterSlab(header *entities.SlabHeader, reg *entities.RegisteredSlab) {
	r.headers[header.SlabID] = header
	r.slabs[reg.SlabID] = reg
	r.books[header.SlabID] = orderbook.New()
}

// book returns slab's order book, lazily creating one if RegisterSlab
// was never called for it (mirrors the teacher's getBook: get-or-create
// rather than panicking on a missing market).
func (r *Registry) book(slab ids.SlabID) *orderbook.Book {
	b, ok := r.books[slab]
	if !ok {
		b = orderbook.New()
		r.books[slab] = b
	}
	return b
}

// Book exposes a slab's order book for read access (e.g. a host
// assembling a quote response, or tests).
func (r *Registry) Book(slab ids.SlabID) (*orderbook.Book, bool) {
	b, ok := r.books[slab]
	return b, ok
}

// Portfolio exposes a registered portfolio by owner for read access
// (e.g. by a host assembling a response, or by tests).
func (r *Registry) Portfolio(owner ids.Owner) (*entities.Portfolio, bool) {
	p, ok := r.portfolios[owner]
	return p, ok
}

// Seat exposes a registered seat by key.
func (r *Registry) Seat(key ids.SeatKey) (*entities.LpSeat, bool) {
	s, ok := r.seats[key]
	return s, ok
}
