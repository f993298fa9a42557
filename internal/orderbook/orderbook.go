// Package orderbook implements the price-time-priority book a matcher
// venue keeps for one instrument (spec §3 Book Area, §4.2 Orderbook
// Engine): O(1) best-price tracking via a heap pair, FIFO queues per
// price level, and an order index that locates an order's level on
// cancel. Adapted from
// the teacher's pkg/app/core/orderbook package.
package orderbook

import (
	"container/heap"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/dcccrypto/percolator-sub000/internal/ids"
)

// Side is which side of the book an order rests on.
type Side uint8

const (
	Buy Side = iota
	Sell
)

// Order is one resting limit order (spec §3).
type Order struct {
	ID        ids.OrderID
	Owner     ids.Owner
	Side      Side
	Price     int64
	Qty       int64
	Timestamp int64
}

// Capacity is the fixed per-side book depth (spec §3: "≈19 per side in
// source; spec treats it as a constant").
const Capacity = 19

// QuoteTopK is the number of price levels cached per side in the quote
// snapshot (spec §3 Quote Cache, K=4).
const QuoteTopK = 4

var (
	ErrFull          = errors.New("orderbook: side is full")
	ErrNotFound      = errors.New("orderbook: order not found")
	ErrUnauthorized  = errors.New("orderbook: owner mismatch")
	ErrInvalidPrice  = errors.New("orderbook: price must be positive")
	ErrInvalidQty    = errors.New("orderbook: quantity must be positive")
	ErrBandViolation = errors.New("orderbook: price band violated")
	ErrOracleBand    = errors.New("orderbook: oracle band violated")
	ErrHaltedOp      = errors.New("orderbook: trading halted, operation not permitted")
)

// PriceLevel is one row of the quote cache.
type PriceLevel struct {
	Price int64
	Qty   int64
}

// QuoteCache is the materialized top-of-book view refreshed after every
// book mutation (spec §3).
type QuoteCache struct {
	Bids          [QuoteTopK]PriceLevel
	Asks          [QuoteTopK]PriceLevel
	SeqnoSnapshot uint64
}

// Book is the price-time-priority order book for one instrument.
type Book struct {
	mu sync.RWMutex

	bidHeap maxPriceHeap
	askHeap minPriceHeap

	bids map[int64][]*Order
	asks map[int64][]*Order

	// orderIndex maps an order ID to (side, price) so cancel/find go
	// straight to the order's price level.
	orderIndex map[ids.OrderID]indexEntry

	nextOrderID ids.OrderID

	quote QuoteCache
}

type indexEntry struct {
	side  Side
	price int64
}

// New returns an empty book.
func New() *Book {
	b := &Book{
		bids:       make(map[int64][]*Order),
		asks:       make(map[int64][]*Order),
		orderIndex: make(map[ids.OrderID]indexEntry),
	}
	heap.Init(&b.bidHeap)
	heap.Init(&b.askHeap)
	return b
}

// BestBid returns the highest resting bid price, if any.
func (b *Book) BestBid() (int64, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.bidHeap.Peek()
}

// BestAsk returns the lowest resting ask price, if any.
func (b *Book) BestAsk() (int64, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.askHeap.Peek()
}

// ValidateBand checks the price-band circuit breaker (spec §4.2): when
// priceBandBps > 0, buys must not exceed best_ask*(1+bps/10000) and
// sells must not fall below best_bid*(1-bps/10000). No opposing best
// price yet means there is nothing to violate.
func (b *Book) ValidateBand(side Side, price int64, priceBandBps uint32) error {
	if priceBandBps == 0 {
		return nil
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	switch side {
	case Buy:
		ask, ok := b.askHeap.Peek()
		if !ok {
			return nil
		}
		limit := ask + (ask*int64(priceBandBps))/10000
		if price > limit {
			return ErrBandViolation
		}
	case Sell:
		bid, ok := b.bidHeap.Peek()
		if !ok {
			return nil
		}
		limit := bid - (bid*int64(priceBandBps))/10000
		if price < limit {
			return ErrBandViolation
		}
	}
	return nil
}

// ValidateOracleBand checks |price-markPx| <= markPx*bps/10000 (spec
// §4.2). oracleBandBps == 0 disables the check.
func ValidateOracleBand(price, markPx int64, oracleBandBps uint32) error {
	if oracleBandBps == 0 {
		return nil
	}
	diff := price - markPx
	if diff < 0 {
		diff = -diff
	}
	bound := (markPx * int64(oracleBandBps)) / 10000
	if diff > bound {
		return ErrOracleBand
	}
	return nil
}

// Insert places a new resting order, returning its fresh order ID. Does
// not itself check halted state or bands — callers (the slab operation
// handlers) validate those first since they need header fields this
// package does not own.
func (b *Book) Insert(side Side, owner ids.Owner, price, qty, timestamp int64) (ids.OrderID, error) {
	if price <= 0 {
		return 0, ErrInvalidPrice
	}
	if qty <= 0 {
		return 0, ErrInvalidQty
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	levels := b.bids
	if side == Sell {
		levels = b.asks
	}
	if len(levels) >= Capacity && len(levels[price]) == 0 {
		return 0, ErrFull
	}

	b.nextOrderID++
	id := b.nextOrderID
	o := &Order{ID: id, Owner: owner, Side: side, Price: price, Qty: qty, Timestamp: timestamp}

	b.insertSorted(side, o)
	b.orderIndex[id] = indexEntry{side: side, price: price}
	b.refreshQuoteLocked()
	return id, nil
}

// insertSorted appends o to its price-level FIFO queue, pushing the
// price onto the relevant heap the first time that level is touched.
func (b *Book) insertSorted(side Side, o *Order) {
	if side == Buy {
		if len(b.bids[o.Price]) == 0 {
			heap.Push(&b.bidHeap, o.Price)
		}
		b.bids[o.Price] = append(b.bids[o.Price], o)
		return
	}
	if len(b.asks[o.Price]) == 0 {
		heap.Push(&b.askHeap, o.Price)
	}
	b.asks[o.Price] = append(b.asks[o.Price], o)
}

// Cancel removes an order; owner must match.
func (b *Book) Cancel(id ids.OrderID, owner ids.Owner) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	entry, ok := b.orderIndex[id]
	if !ok {
		return ErrNotFound
	}
	levels := b.levelsFor(entry.side)
	queue := levels[entry.price]
	idx := -1
	for i, o := range queue {
		if o.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return ErrNotFound
	}
	if queue[idx].Owner != owner {
		return ErrUnauthorized
	}

	queue = append(queue[:idx], queue[idx+1:]...)
	if len(queue) == 0 {
		delete(levels, entry.price)
		b.removePriceLevel(entry.side, entry.price)
	} else {
		levels[entry.price] = queue
	}
	delete(b.orderIndex, id)
	b.refreshQuoteLocked()
	return nil
}

// Modify changes price and/or quantity of a resting order. If
// newPrice equals the current price, time priority (Timestamp) is
// preserved (P-ModifyPriority); otherwise the order is removed and
// reinserted at the new price with Timestamp=nowTs, losing priority.
func (b *Book) Modify(id ids.OrderID, owner ids.Owner, newPrice, newQty, nowTs int64) error {
	if newPrice <= 0 {
		return ErrInvalidPrice
	}
	if newQty <= 0 {
		return ErrInvalidQty
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	entry, ok := b.orderIndex[id]
	if !ok {
		return ErrNotFound
	}
	levels := b.levelsFor(entry.side)
	queue := levels[entry.price]
	idx := -1
	for i, o := range queue {
		if o.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return ErrNotFound
	}
	order := queue[idx]
	if order.Owner != owner {
		return ErrUnauthorized
	}

	if newPrice == order.Price {
		order.Qty = newQty
		b.refreshQuoteLocked()
		return nil
	}

	// Price changed: remove from old level, reinsert fresh (new
	// timestamp, loses priority).
	queue = append(queue[:idx], queue[idx+1:]...)
	if len(queue) == 0 {
		delete(levels, entry.price)
		b.removePriceLevel(entry.side, entry.price)
	} else {
		levels[entry.price] = queue
	}

	order.Price = newPrice
	order.Qty = newQty
	order.Timestamp = nowTs
	b.insertSorted(entry.side, order)
	b.orderIndex[id] = indexEntry{side: entry.side, price: newPrice}

	b.refreshQuoteLocked()
	return nil
}

// Find returns a copy of the order, if present.
func (b *Book) Find(id ids.OrderID) (Order, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	entry, ok := b.orderIndex[id]
	if !ok {
		return Order{}, false
	}
	for _, o := range b.levelsFor(entry.side)[entry.price] {
		if o.ID == id {
			return *o, true
		}
	}
	return Order{}, false
}

// OrdersByOwner returns every resting order belonging to owner, bids
// before asks, in no particular priority order within each side. Used
// by liquidity.Remove's RemoveObAll selector to enumerate an LP's own
// resting orders the way process_ob_remove_all (adapter.rs) collects
// order IDs owned by the slab's lp_owner.
func (b *Book) OrdersByOwner(owner ids.Owner) []Order {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []Order
	for _, queue := range b.bids {
		for _, o := range queue {
			if o.Owner == owner {
				out = append(out, *o)
			}
		}
	}
	for _, queue := range b.asks {
		for _, o := range queue {
			if o.Owner == owner {
				out = append(out, *o)
			}
		}
	}
	return out
}

// Quote returns the current materialized top-of-book snapshot.
func (b *Book) Quote() QuoteCache {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.quote
}

func (b *Book) levelsFor(side Side) map[int64][]*Order {
	if side == Buy {
		return b.bids
	}
	return b.asks
}

func (b *Book) removePriceLevel(side Side, price int64) {
	if side == Buy {
		b.bidHeap.remove(price)
		return
	}
	b.askHeap.remove(price)
}

// refreshQuoteLocked rebuilds the quote cache; caller must hold mu.
func (b *Book) refreshQuoteLocked() {
	b.quote = QuoteCache{}
	b.fillSide(b.bids, true, &b.quote.Bids)
	b.fillSide(b.asks, false, &b.quote.Asks)
}

func (b *Book) fillSide(levels map[int64][]*Order, descending bool, out *[QuoteTopK]PriceLevel) {
	prices := make([]int64, 0, len(levels))
	for p := range levels {
		prices = append(prices, p)
	}
	if descending {
		sort.Slice(prices, func(i, j int) bool { return prices[i] > prices[j] })
	} else {
		sort.Slice(prices, func(i, j int) bool { return prices[i] < prices[j] })
	}
	for i := 0; i < QuoteTopK && i < len(prices); i++ {
		var qty int64
		for _, o := range levels[prices[i]] {
			qty += o.Qty
		}
		out[i] = PriceLevel{Price: prices[i], Qty: qty}
	}
}

// String renders an order for diagnostics.
func (o Order) String() string {
	side := "buy"
	if o.Side == Sell {
		side = "sell"
	}
	return fmt.Sprintf("Order{id=%d side=%s price=%d qty=%d ts=%d}", o.ID, side, o.Price, o.Qty, o.Timestamp)
}
