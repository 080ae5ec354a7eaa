package domain_test

import (
	"testing"

	"github.com/ringside/sidebet/internal/domain"
)

// TestSettleAmounts validates the payout split used by the settlement
// engine. No I/O — pure arithmetic.
//
//	Scenario:
//	  amount1 = amount2 = 1 000 cents (10 USDT each side)
//	  fee     = 10 %
//
//	Expected:
//	  total  = 2 000
//	  fee    = ⌊2000 × 0.10⌋ = 200
//	  payout = 1 800
func TestSettleAmounts(t *testing.T) {
	two := int64(1000)
	d := &domain.Deal{
		Amount1Cents: 1000,
		Amount2Cents: &two,
	}

	s := d.SettleAmounts(0.10)
	if s.TotalCents != 2000 {
		t.Errorf("total: want 2000, got %d", s.TotalCents)
	}
	if s.FeeCents != 200 {
		t.Errorf("fee: want 200, got %d", s.FeeCents)
	}
	if s.PayoutCents != 1800 {
		t.Errorf("payout: want 1800, got %d", s.PayoutCents)
	}
}

// TestSettleAmountsConservation checks payout + fee = total across awkward
// fee fractions and odd totals — the fee floor must never create or destroy
// a cent.
func TestSettleAmountsConservation(t *testing.T) {
	cases := []struct {
		amount int64
		feePct float64
	}{
		{1, 0.10},
		{333, 0.10},
		{999, 0.07},
		{12345, 0.15},
		{700, 0.20},
		{1, 0.0},
	}

	for _, tc := range cases {
		amt2 := tc.amount
		d := &domain.Deal{Amount1Cents: tc.amount, Amount2Cents: &amt2}
		s := d.SettleAmounts(tc.feePct)

		if s.PayoutCents+s.FeeCents != s.TotalCents {
			t.Errorf("amount=%d fee=%.2f: payout %d + fee %d != total %d",
				tc.amount, tc.feePct, s.PayoutCents, s.FeeCents, s.TotalCents)
		}
		if s.FeeCents < 0 || s.PayoutCents < 0 {
			t.Errorf("amount=%d fee=%.2f: negative split %+v", tc.amount, tc.feePct, s)
		}
	}
}

// TestWinnerUserID checks winner resolution on both legs and the invariant-
// violation case where neither leg sits on the winning side.
func TestWinnerUserID(t *testing.T) {
	user2 := int64(20)
	side2 := domain.Side2
	amt2 := int64(500)
	d := &domain.Deal{
		User1ID:      10,
		Side1:        domain.Side1,
		Amount1Cents: 500,
		User2ID:      &user2,
		Side2:        &side2,
		Amount2Cents: &amt2,
		Status:       domain.DealMatched,
	}

	if id, ok := d.WinnerUserID(domain.Side1); !ok || id != 10 {
		t.Errorf("side1 winner: want (10, true), got (%d, %v)", id, ok)
	}
	if id, ok := d.WinnerUserID(domain.Side2); !ok || id != 20 {
		t.Errorf("side2 winner: want (20, true), got (%d, %v)", id, ok)
	}

	// One-legged deal can never produce a side-2 winner.
	orphan := &domain.Deal{User1ID: 10, Side1: domain.Side1}
	if _, ok := orphan.WinnerUserID(domain.Side2); ok {
		t.Error("orphan deal must not resolve a side-2 winner")
	}
}

// TestStatusTransitions walks every state pair and asserts only the edges
// of the wager lifecycle are legal.
func TestStatusTransitions(t *testing.T) {
	all := []domain.DealStatus{
		domain.DealAwaitingMatch, domain.DealMatched, domain.DealSettled, domain.DealVoid,
	}
	legal := map[domain.DealStatus][]domain.DealStatus{
		domain.DealAwaitingMatch: {domain.DealMatched, domain.DealVoid},
		domain.DealMatched:       {domain.DealSettled, domain.DealVoid},
	}

	for _, from := range all {
		for _, to := range all {
			want := false
			for _, ok := range legal[from] {
				if to == ok {
					want = true
				}
			}
			if got := from.CanTransition(to); got != want {
				t.Errorf("%s -> %s: want %v, got %v", from, to, want, got)
			}
		}
	}

	if !domain.DealSettled.IsTerminal() || !domain.DealVoid.IsTerminal() {
		t.Error("settled and void must be terminal")
	}
	if domain.DealAwaitingMatch.IsTerminal() || domain.DealMatched.IsTerminal() {
		t.Error("awaiting_match and matched must not be terminal")
	}
}

// TestCanAccept covers the self-match guard and eligibility predicate.
func TestCanAccept(t *testing.T) {
	d := &domain.Deal{
		User1ID:      10,
		Side1:        domain.Side1,
		Amount1Cents: 500,
		Paid1:        true,
		Status:       domain.DealAwaitingMatch,
	}

	if !d.IsOpenForMatch() {
		t.Fatal("paid awaiting deal should be open for matching")
	}
	if d.CanAccept(10) {
		t.Error("creator must not accept their own deal")
	}
	if !d.CanAccept(20) {
		t.Error("another user should be able to accept")
	}

	unpaid := &domain.Deal{User1ID: 10, Status: domain.DealAwaitingMatch}
	if unpaid.IsOpenForMatch() {
		t.Error("unpaid leg must not occupy matching capacity")
	}

	taken := *d
	u2 := int64(30)
	taken.User2ID = &u2
	if taken.IsOpenForMatch() {
		t.Error("deal with a responder is no longer open")
	}
}

// TestSideOpposite is trivial but the matchmaking guard hangs off it.
func TestSideOpposite(t *testing.T) {
	if domain.Side1.Opposite() != domain.Side2 || domain.Side2.Opposite() != domain.Side1 {
		t.Error("Opposite must swap sides")
	}
	if domain.Side(0).IsValid() || domain.Side(3).IsValid() {
		t.Error("only sides 1 and 2 are valid")
	}
}
