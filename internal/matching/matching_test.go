package matching

import (
	"math/big"
	"testing"

	"github.com/dcccrypto/percolator-sub000/internal/entities"
	"github.com/dcccrypto/percolator-sub000/internal/ids"
)

type fixedMatcher struct {
	exec TradeExecution
	err  error
}

func (f fixedMatcher) ExecuteMatch(seat *entities.LpSeat, oracle int64, requested *big.Int) (TradeExecution, error) {
	return f.exec, f.err
}

func setupScenario(t *testing.T) (ids.Market, *entities.SlabHeader, *entities.Portfolio, *entities.Portfolio, *entities.LpSeat, *entities.Accums) {
	t.Helper()
	market := ids.Market{SlabID: ids.SlabID{1}}
	header := entities.NewSlabHeader(ids.SlabID{1}, ids.RouterID{}, ids.InstrumentID{}, ids.Owner{9})
	accums := entities.NewAccums()

	user := entities.NewPortfolio(ids.Owner{2}, ids.RouterID{}, accums)
	user.Principal = big.NewInt(50_000_000_000)

	lp := entities.NewPortfolio(ids.Owner{9}, ids.RouterID{}, accums)
	lp.Principal = big.NewInt(50_000_000_000)
	lp.IsLP = true

	seat := entities.NewLpSeat(ids.SeatKey{Portfolio: lp.Owner, Matcher: header.SlabID})

	return market, header, user, lp, seat, accums
}

func TestExecuteRejectsBadMatcherSign(t *testing.T) {
	market, header, user, lp, seat, accums := setupScenario(t)
	requested := big.NewInt(1_000_000)

	matcher := fixedMatcher{exec: TradeExecution{Price: 90_000_000_000, Size: big.NewInt(-1_000_000)}}

	req := Request{
		Market:      market,
		Slot:        100,
		OraclePrice: 100_000_000_000,
		SignedSize:  requested,
		TakerFeeBps: 10,
		ImrBps:      500,
	}

	_, err := Execute(req, header, user, lp, seat, accums, matcher, nil, nil)
	if err != ErrInvalidMatchingEngine {
		t.Fatalf("Execute with flipped-sign fill = %v, want ErrInvalidMatchingEngine", err)
	}
}

func TestExecuteRejectsOversizedFill(t *testing.T) {
	market, header, user, lp, seat, accums := setupScenario(t)
	requested := big.NewInt(1_000_000)

	matcher := fixedMatcher{exec: TradeExecution{Price: 90_000_000_000, Size: big.NewInt(2_000_000)}}
	req := Request{Market: market, Slot: 100, OraclePrice: 100_000_000_000, SignedSize: requested, TakerFeeBps: 10, ImrBps: 500}

	_, err := Execute(req, header, user, lp, seat, accums, matcher, nil, nil)
	if err != ErrInvalidMatchingEngine {
		t.Fatalf("Execute with oversized fill = %v, want ErrInvalidMatchingEngine", err)
	}
}

func TestExecuteRejectsClockRegression(t *testing.T) {
	market, header, user, lp, seat, accums := setupScenario(t)
	header.LastTradeSlot = 200
	requested := big.NewInt(1_000_000)
	matcher := fixedMatcher{exec: TradeExecution{Price: 90_000_000_000, Size: requested}}
	req := Request{Market: market, Slot: 100, OraclePrice: 100_000_000_000, SignedSize: requested, TakerFeeBps: 10, ImrBps: 500}

	_, err := Execute(req, header, user, lp, seat, accums, matcher, nil, nil)
	if err != ErrClockRegression {
		t.Fatalf("Execute with regressed slot = %v, want ErrClockRegression", err)
	}
}

// TestExecuteNoTeleportAcrossLps mirrors spec §8 scenario 1: a user
// opens against LP1 below oracle, then fully closes against LP2 at
// oracle. The user's PnL reflects only its own two trades; it never
// "teleports" prior PnL onto LP2.
func TestExecuteNoTeleportAcrossLps(t *testing.T) {
	market := ids.Market{SlabID: ids.SlabID{1}}
	header := entities.NewSlabHeader(ids.SlabID{1}, ids.RouterID{}, ids.InstrumentID{}, ids.Owner{9})
	accums := entities.NewAccums()

	user := entities.NewPortfolio(ids.Owner{2}, ids.RouterID{}, accums)
	user.Principal = big.NewInt(50_000_000_000)

	lp1 := entities.NewPortfolio(ids.Owner{9}, ids.RouterID{}, accums)
	lp1.Principal = big.NewInt(50_000_000_000)
	lp1.IsLP = true
	seat1 := entities.NewLpSeat(ids.SeatKey{Portfolio: lp1.Owner, Matcher: header.SlabID})

	lp2 := entities.NewPortfolio(ids.Owner{10}, ids.RouterID{}, accums)
	lp2.Principal = big.NewInt(50_000_000_000)
	lp2.IsLP = true
	seat2 := entities.NewLpSeat(ids.SeatKey{Portfolio: lp2.Owner, Matcher: header.SlabID})

	oracle := int64(100_000_000_000)
	marks := map[ids.Market]int64{market: oracle}

	// Slot 100: open +1 against LP1 at 90_000 (below oracle).
	open := fixedMatcher{exec: TradeExecution{Price: 90_000_000_000, Size: big.NewInt(1_000_000)}}
	reqOpen := Request{Market: market, Slot: 100, OraclePrice: oracle, SignedSize: big.NewInt(1_000_000), TakerFeeBps: 0, ImrBps: 0}
	if _, err := Execute(reqOpen, header, user, lp1, seat1, accums, open, marks, marks); err != nil {
		t.Fatalf("open leg: %v", err)
	}

	// Slot 101: close -1 against LP2 at oracle exactly.
	close := fixedMatcher{exec: TradeExecution{Price: oracle, Size: big.NewInt(-1_000_000)}}
	reqClose := Request{Market: market, Slot: 101, OraclePrice: oracle, SignedSize: big.NewInt(-1_000_000), TakerFeeBps: 0, ImrBps: 0}
	if _, err := Execute(reqClose, header, user, lp2, seat2, accums, close, marks, marks); err != nil {
		t.Fatalf("close leg: %v", err)
	}

	if user.Exposure(market).Sign() != 0 {
		t.Errorf("user position after round trip = %s, want 0", user.Exposure(market))
	}

	// user.pnl from open leg: (oracle-exec_price)*size =
	// (100_000_000_000-90_000_000_000)*1_000_000; close leg at exactly
	// oracle contributes 0 further PnL.
	gotPnl := new(big.Int).Add(user.RealizedPnl, user.WarmingPnl)
	wantPnl := new(big.Int).Mul(big.NewInt(10_000_000_000), big.NewInt(1_000_000))
	if gotPnl.Cmp(wantPnl) != 0 {
		t.Errorf("user total pnl = %s, want %s", gotPnl, wantPnl)
	}

	// LP1 never sees the second leg's price at all: its pnl is only the
	// negation of the user's first-leg pnl.
	lp1Pnl := new(big.Int).Add(lp1.RealizedPnl, lp1.WarmingPnl)
	wantLp1 := new(big.Int).Neg(wantPnl)
	if lp1Pnl.Cmp(wantLp1) != 0 {
		t.Errorf("lp1 pnl = %s, want %s (no teleport from the close leg)", lp1Pnl, wantLp1)
	}

	lp2Pnl := new(big.Int).Add(lp2.RealizedPnl, lp2.WarmingPnl)
	if lp2Pnl.Sign() != 0 {
		t.Errorf("lp2 pnl = %s, want 0 (close happened exactly at oracle)", lp2Pnl)
	}
}
