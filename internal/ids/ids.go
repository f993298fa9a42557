// Package ids defines the opaque identifier types the risk core uses for
// accounts, routers, matcher venues and instruments (spec §1: "the core
// sees opaque 32-byte account identifiers"). It follows the teacher's
// reliance on go-ethereum's common.Hash/common.Address for identifier
// plumbing rather than a hand-rolled [32]byte wrapper.
package ids

import "github.com/ethereum/go-ethereum/common"

// Owner identifies a portfolio's controlling account.
type Owner = common.Hash

// RouterID identifies the router a portfolio and its seats belong to.
type RouterID = common.Hash

// SlabID identifies a matcher venue (orderbook instance).
type SlabID = common.Hash

// InstrumentID identifies a tradable instrument within a slab.
type InstrumentID = common.Hash

// ContextID identifies the (matcher, context) pairing a seat is scoped to.
type ContextID = common.Hash

// OrderID is a slab-local monotonically increasing order identifier.
type OrderID uint64

// Market is the sparse-map key for per-(slab, instrument) state: funding
// offsets and exposures (spec §9: "arena-like sparse maps keyed by
// (slab, instrument)").
type Market struct {
	SlabID       SlabID
	InstrumentID InstrumentID
}

// SeatKey is the sparse-map key for LP seats: per (portfolio, matcher,
// context).
type SeatKey struct {
	Portfolio Owner
	Matcher   SlabID
	Context   ContextID
}
