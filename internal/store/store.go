// Package store persists the risk core's entities to a Pebble-backed
// key/value store, gob-encoded. Adapted from the teacher node's
// pkg/storage/pebble_store.go and codec.go.
package store

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"math/big"

	"github.com/cockroachdb/pebble"
	"github.com/dcccrypto/percolator-sub000/internal/entities"
	"github.com/dcccrypto/percolator-sub000/internal/ids"
)

// Store wraps a Pebble database with typed accessors for the core's
// entities.
type Store struct {
	db *pebble.DB
}

// Open opens (creating if absent) a Pebble database at path.
func Open(path string) (*Store, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

func encodeGob(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeGob(b []byte, v any) error {
	return gob.NewDecoder(bytes.NewReader(b)).Decode(v)
}

func portfolioKey(owner ids.Owner) []byte {
	return append([]byte("p:"), owner[:]...)
}

func seatKey(key ids.SeatKey) []byte {
	out := append([]byte("s:"), key.Portfolio[:]...)
	out = append(out, key.Matcher[:]...)
	return append(out, key.Context[:]...)
}

func slabHeaderKey(slab ids.SlabID) []byte {
	return append([]byte("h:"), slab[:]...)
}

func registeredSlabKey(slab ids.SlabID) []byte {
	return append([]byte("r:"), slab[:]...)
}

func accumsKey() []byte { return []byte("accums") }

func insuranceKey() []byte { return []byte("insurance") }

// SavePortfolio persists a portfolio, keyed by owner.
func (s *Store) SavePortfolio(p *entities.Portfolio) error {
	val, err := encodeGob(p)
	if err != nil {
		return fmt.Errorf("encode portfolio: %w", err)
	}
	return s.db.Set(portfolioKey(p.Owner), val, pebble.Sync)
}

// LoadPortfolio loads a portfolio by owner. Returns (nil, false, nil)
// if absent.
func (s *Store) LoadPortfolio(owner ids.Owner) (*entities.Portfolio, bool, error) {
	val, closer, err := s.db.Get(portfolioKey(owner))
	if err == pebble.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	defer closer.Close()

	var p entities.Portfolio
	if err := decodeGob(val, &p); err != nil {
		return nil, false, fmt.Errorf("decode portfolio: %w", err)
	}
	if p.FundingOffsets == nil {
		p.FundingOffsets = make(map[ids.Market]*big.Int)
	}
	if p.Exposures == nil {
		p.Exposures = make(map[ids.Market]*big.Int)
	}
	return &p, true, nil
}

// SaveSeat persists an LP seat, keyed by (portfolio, matcher, context).
func (s *Store) SaveSeat(seat *entities.LpSeat) error {
	val, err := encodeGob(seat)
	if err != nil {
		return fmt.Errorf("encode seat: %w", err)
	}
	key := ids.SeatKey{Portfolio: seat.Portfolio, Matcher: seat.MatcherState, Context: seat.ContextID}
	return s.db.Set(seatKey(key), val, pebble.Sync)
}

// LoadSeat loads an LP seat by its key.
func (s *Store) LoadSeat(key ids.SeatKey) (*entities.LpSeat, bool, error) {
	val, closer, err := s.db.Get(seatKey(key))
	if err == pebble.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	defer closer.Close()

	var seat entities.LpSeat
	if err := decodeGob(val, &seat); err != nil {
		return nil, false, fmt.Errorf("decode seat: %w", err)
	}
	return &seat, true, nil
}

// SaveSlabHeader persists a slab's header, keyed by slab id.
func (s *Store) SaveSlabHeader(h *entities.SlabHeader) error {
	val, err := encodeGob(h)
	if err != nil {
		return fmt.Errorf("encode slab header: %w", err)
	}
	return s.db.Set(slabHeaderKey(h.SlabID), val, pebble.Sync)
}

// LoadSlabHeader loads a slab header by id.
func (s *Store) LoadSlabHeader(slab ids.SlabID) (*entities.SlabHeader, bool, error) {
	val, closer, err := s.db.Get(slabHeaderKey(slab))
	if err == pebble.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	defer closer.Close()

	var h entities.SlabHeader
	if err := decodeGob(val, &h); err != nil {
		return nil, false, fmt.Errorf("decode slab header: %w", err)
	}
	return &h, true, nil
}

// SaveRegisteredSlab persists a registry entry, keyed by slab id.
func (s *Store) SaveRegisteredSlab(r *entities.RegisteredSlab) error {
	val, err := encodeGob(r)
	if err != nil {
		return fmt.Errorf("encode registered slab: %w", err)
	}
	return s.db.Set(registeredSlabKey(r.SlabID), val, pebble.Sync)
}

// LoadRegisteredSlab loads a registry entry by slab id.
func (s *Store) LoadRegisteredSlab(slab ids.SlabID) (*entities.RegisteredSlab, bool, error) {
	val, closer, err := s.db.Get(registeredSlabKey(slab))
	if err == pebble.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	defer closer.Close()

	var r entities.RegisteredSlab
	if err := decodeGob(val, &r); err != nil {
		return nil, false, fmt.Errorf("decode registered slab: %w", err)
	}
	return &r, true, nil
}

// SaveAccums persists the global accumulator set.
func (s *Store) SaveAccums(a *entities.Accums) error {
	val, err := encodeGob(a)
	if err != nil {
		return fmt.Errorf("encode accums: %w", err)
	}
	return s.db.Set(accumsKey(), val, pebble.Sync)
}

// LoadAccums loads the global accumulator set.
func (s *Store) LoadAccums() (*entities.Accums, bool, error) {
	val, closer, err := s.db.Get(accumsKey())
	if err == pebble.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	defer closer.Close()

	var a entities.Accums
	if err := decodeGob(val, &a); err != nil {
		return nil, false, fmt.Errorf("decode accums: %w", err)
	}
	return &a, true, nil
}

// SaveInsurance persists the insurance fund state.
func (s *Store) SaveInsurance(in *entities.InsuranceState) error {
	val, err := encodeGob(in)
	if err != nil {
		return fmt.Errorf("encode insurance: %w", err)
	}
	return s.db.Set(insuranceKey(), val, pebble.Sync)
}

// LoadInsurance loads the insurance fund state.
func (s *Store) LoadInsurance() (*entities.InsuranceState, bool, error) {
	val, closer, err := s.db.Get(insuranceKey())
	if err == pebble.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	defer closer.Close()

	var in entities.InsuranceState
	if err := decodeGob(val, &in); err != nil {
		return nil, false, fmt.Errorf("decode insurance: %w", err)
	}
	return &in, true, nil
}
