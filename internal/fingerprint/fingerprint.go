// Package fingerprint computes a keccak256 digest over a portfolio's
// conserved quantities, for the conservation-check test helper (spec
// §4.5 "Conservation check (testable, not required on hot path)").
// Grounded on the teacher's use of golang.org/x/crypto/sha3 for
// address hashing in pkg/crypto/ethaddr.go.
package fingerprint

import (
	"encoding/binary"
	"math/big"

	"github.com/dcccrypto/percolator-sub000/internal/entities"
	"golang.org/x/crypto/sha3"
)

// Portfolio returns a keccak256 digest of a portfolio's principal,
// realized/warming PnL and locked+free collateral. Two portfolios with
// the same digest have the same conserved-quantity tuple; used to
// detect unintended drift across an operation rather than for any
// cryptographic identity purpose.
func Portfolio(p *entities.Portfolio) [32]byte {
	h := sha3.NewLegacyKeccak256()
	writeBigInt(h, p.Principal)
	writeBigInt(h, p.RealizedPnl)
	writeBigInt(h, p.WarmingPnl)
	writeBigInt(h, p.FreeCollateral)
	writeBigInt(h, p.LockedCollateral)

	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// Accums returns a keccak256 digest of the global accumulator sums,
// used to compare system-wide conserved state across an operation.
func Accums(a *entities.Accums) [32]byte {
	h := sha3.NewLegacyKeccak256()
	writeBigInt(h, a.SigmaPrincipal)
	writeBigInt(h, a.SigmaRealized)
	writeBigInt(h, a.SigmaWarming)
	writeBigInt(h, a.SigmaCollateral)
	writeBigInt(h, a.SigmaInsurance)

	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

type writer interface {
	Write(p []byte) (int, error)
}

func writeBigInt(h writer, x *big.Int) {
	var lenBuf [4]byte
	bytes := x.Bytes()
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(bytes)))
	h.Write(lenBuf[:])
	h.Write(bytes)
	if x.Sign() < 0 {
		h.Write([]byte{1})
	} else {
		h.Write([]byte{0})
	}
}
