package entities

import (
	"math/big"

	"github.com/dcccrypto/percolator-sub000/internal/fixedpoint"
)

// Accums is the process-wide set of global accumulators the crisis
// engine and fee paths mutate (spec §3, §9: "no ambient statics — pass
// explicitly"). It lives for the life of the system and is created once
// at registry initialization.
type Accums struct {
	SigmaPrincipal  *big.Int
	SigmaRealized   *big.Int
	SigmaWarming    *big.Int
	SigmaCollateral *big.Int
	SigmaInsurance  *big.Int

	EquityScale  fixedpoint.Q64x64
	WarmingScale fixedpoint.Q64x64

	Epoch uint64
}

// NewAccums returns a freshly initialized accumulator set: zero sums,
// unit scales, epoch zero.
func NewAccums() *Accums {
	return &Accums{
		SigmaPrincipal:  big.NewInt(0),
		SigmaRealized:   big.NewInt(0),
		SigmaWarming:    big.NewInt(0),
		SigmaCollateral: big.NewInt(0),
		SigmaInsurance:  big.NewInt(0),
		EquityScale:     fixedpoint.ONE,
		WarmingScale:    fixedpoint.ONE,
	}
}

// Assets returns sigma_collateral + sigma_insurance.
func (a *Accums) Assets() *big.Int {
	return new(big.Int).Add(a.SigmaCollateral, a.SigmaInsurance)
}

// Liabilities returns sigma_principal + sigma_realized + sigma_warming.
func (a *Accums) Liabilities() *big.Int {
	out := new(big.Int).Add(a.SigmaPrincipal, a.SigmaRealized)
	return out.Add(out, a.SigmaWarming)
}

// Deficit returns max(0, liabilities - assets).
func (a *Accums) Deficit() *big.Int {
	d := new(big.Int).Sub(a.Liabilities(), a.Assets())
	if d.Sign() < 0 {
		return big.NewInt(0)
	}
	return d
}
