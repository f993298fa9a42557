// Package funding implements the cumulative funding index update and its
// lazy per-position application (spec §4.3). Grounded on the Rust
// original's programs/slab/src/instructions/update_funding.rs and the
// sign convention pinned by tests/v0_funding_rates.rs (F-01/F-02); see
// SPEC_FULL.md section C for the resolved sign-convention decision.
package funding

import (
	"math/big"

	"github.com/dcccrypto/percolator-sub000/internal/entities"
	"go.uber.org/zap"
)

// MinInterval is the minimum number of seconds that must elapse between
// funding index updates; updates arriving sooner are skipped, not
// failed (spec §4.3, §7: "Funding updates on clock regression return
// success with no effect").
const MinInterval = 60

// SensitivityScale is the fixed-point denominator `sensitivity` is
// expressed against, matching the Rust original's worked constant
// FUNDING_SENSITIVITY = 800 (8bps/hour at a 1% premium).
const SensitivityScale = 1_000_000

// UpdateFundingIndex accumulates a premium-based signal into
// header.CumFunding. Premium is positive when mark > oracle, so
// CumFunding grows on positive premium.
//
// cum_funding += (mark - oracle) * sensitivity * dtSeconds / SensitivityScale
//
// Skips (returns nil, no mutation) when dt < MinInterval or the clock
// regressed (now <= header.LastFundingTs); both are logged at Warn
// rather than surfaced as an error.
func UpdateFundingIndex(header *entities.SlabHeader, mark, oracle int64, sensitivity int64, now int64, log *zap.Logger) {
	if header.LastFundingTs != 0 {
		if now <= header.LastFundingTs {
			if log != nil {
				log.Warn("funding: clock regression, skipping update",
					zap.Int64("now", now), zap.Int64("last", header.LastFundingTs))
			}
			return
		}
		dt := now - header.LastFundingTs
		if dt < MinInterval {
			if log != nil {
				log.Warn("funding: interval too short, skipping update",
					zap.Int64("dt", dt), zap.Int64("min_interval", MinInterval))
			}
			return
		}
	}

	dt := now
	if header.LastFundingTs != 0 {
		dt = now - header.LastFundingTs
	}

	premium := big.NewInt(mark - oracle)
	delta := new(big.Int).Mul(premium, big.NewInt(sensitivity))
	delta.Mul(delta, big.NewInt(dt))
	delta.Div(delta, big.NewInt(SensitivityScale))

	header.CumFunding.Add(header.CumFunding, delta)
	header.LastFundingTs = now
	if dt > 0 {
		header.FundingRate = new(big.Int).Div(new(big.Int).Mul(delta, big.NewInt(3600)), big.NewInt(dt)).Int64()
	}
}

// ApplyFunding realizes the funding owed on a position since its last
// touch and advances its offset to the current index. Longs (positive
// baseSize) realize negative PnL when cumFunding has grown relative to
// offset (F5 sign property); shorts realize the opposite. Returns the
// signed PnL delta applied, and the new offset to store.
//
// realized_pnl -= base_size * (cum_funding - offset)
func ApplyFunding(baseSize *big.Int, offset *big.Int, cumFunding *big.Int) (pnlDelta *big.Int, newOffset *big.Int) {
	delta := new(big.Int).Sub(cumFunding, offset)
	pnlDelta = new(big.Int).Mul(baseSize, delta)
	pnlDelta.Neg(pnlDelta)
	newOffset = new(big.Int).Set(cumFunding)
	return pnlDelta, newOffset
}
