package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ──────────────────────────────────────────────────────────────────────────────
// Types & constants
// ──────────────────────────────────────────────────────────────────────────────

// DealStatus represents the current state of a wager.
//
// Transitions are monotonic:
//
//	awaiting_match ─► matched ─► settled
//	awaiting_match ─► void              (orphan refund after the fight ends)
//	matched        ─► void              (both legs refunded on cancellation)
//
// settled and void are terminal.
type DealStatus string

const (
	DealAwaitingMatch DealStatus = "awaiting_match" // paid leg 1, waiting for a counterparty
	DealMatched       DealStatus = "matched"        // both legs paid, escrow complete
	DealSettled       DealStatus = "settled"        // winner paid out
	DealVoid          DealStatus = "void"           // refunded (orphan, or both legs on cancellation)
)

// IsTerminal returns true for states with no outgoing transitions.
func (s DealStatus) IsTerminal() bool {
	return s == DealSettled || s == DealVoid
}

// CanTransition reports whether the state machine permits moving from s to
// next. Guards beyond the edge itself (fight status, payment flags) are
// evaluated by the caller inside the same transaction that applies the move.
func (s DealStatus) CanTransition(next DealStatus) bool {
	switch s {
	case DealAwaitingMatch:
		return next == DealMatched || next == DealVoid
	case DealMatched:
		return next == DealSettled || next == DealVoid
	}
	return false
}

// ──────────────────────────────────────────────────────────────────────────────
// Deal
// ──────────────────────────────────────────────────────────────────────────────

// Deal is the central wager entity: up to two legs on opposite sides of a
// fight with equal stakes. Leg 1 belongs to the creator and is always
// present; leg 2 is populated when a counterparty's payment is matched.
type Deal struct {
	ID      int64 `json:"id"       db:"id"`
	FightID int64 `json:"fight_id" db:"fight_id"`

	User1ID      int64  `json:"user1_id"      db:"user1_id"`
	Side1        Side   `json:"side1"         db:"side1"`
	Amount1Cents int64  `json:"amount1_cents" db:"amount1_cents"`
	Paid1        bool   `json:"paid1"         db:"paid1"`
	Invoice1ID   *int64 `json:"invoice1_id"   db:"invoice1_id"`

	User2ID      *int64 `json:"user2_id"      db:"user2_id"`
	Side2        *Side  `json:"side2"         db:"side2"`
	Amount2Cents *int64 `json:"amount2_cents" db:"amount2_cents"`
	Paid2        bool   `json:"paid2"         db:"paid2"`
	Invoice2ID   *int64 `json:"invoice2_id"   db:"invoice2_id"`

	Status    DealStatus `json:"status"     db:"status"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	MatchedAt *time.Time `json:"matched_at" db:"matched_at"`
	SettledAt *time.Time `json:"settled_at" db:"settled_at"`
}

// IsOpenForMatch returns true when the deal is visible to matching
// candidates: awaiting, leg 1 escrowed, no responder yet.
func (d *Deal) IsOpenForMatch() bool {
	return d.Status == DealAwaitingMatch && d.Paid1 && d.User2ID == nil
}

// CanAccept reports whether userID may take the open side of this deal.
// Rejects the creator matching their own wager.
func (d *Deal) CanAccept(userID int64) bool {
	return d.IsOpenForMatch() && d.User1ID != userID
}

// TotalCents returns the pooled escrow of both legs.
func (d *Deal) TotalCents() int64 {
	total := d.Amount1Cents
	if d.Amount2Cents != nil {
		total += *d.Amount2Cents
	}
	return total
}

// WinnerUserID returns the internal user id of the leg whose side equals
// winnerSide, and false when neither leg is on that side (an invariant
// violation the settlement pass skips and logs).
func (d *Deal) WinnerUserID(winnerSide Side) (int64, bool) {
	if d.Side1 == winnerSide {
		return d.User1ID, true
	}
	if d.Side2 != nil && *d.Side2 == winnerSide && d.User2ID != nil {
		return *d.User2ID, true
	}
	return 0, false
}

// ──────────────────────────────────────────────────────────────────────────────
// Settlement arithmetic
// ──────────────────────────────────────────────────────────────────────────────

// Settlement is the money split of a matched deal at payout time.
type Settlement struct {
	TotalCents  int64
	FeeCents    int64
	PayoutCents int64
}

// SettleAmounts computes the payout split for a matched deal.
//
//	total  = amount1 + amount2
//	fee    = ⌊total × feePct⌋
//	payout = total − fee
//
// The floor keeps rounding loss on the house side so payout + fee always
// equals the escrowed total exactly.
func (d *Deal) SettleAmounts(feePct float64) Settlement {
	total := d.TotalCents()
	fee := decimal.NewFromInt(total).Mul(decimal.NewFromFloat(feePct)).Floor().IntPart()
	return Settlement{
		TotalCents:  total,
		FeeCents:    fee,
		PayoutCents: total - fee,
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Value objects used by DealService
// ──────────────────────────────────────────────────────────────────────────────

// NewIntentRequest carries the validated inputs for creating a NEW intent.
type NewIntentRequest struct {
	FightID     int64
	Side        Side
	AmountCents int64
	UserID      int64
	TgUserID    int64
}

// MatchIntentRequest carries the validated inputs for creating a MATCH intent.
type MatchIntentRequest struct {
	DealID   int64
	UserID   int64
	TgUserID int64
}

// IntentTicket is returned to the presentation layer after an invoice has
// been created: everything the chat surface needs to render a pay button.
type IntentTicket struct {
	InvoiceID   int64  `json:"invoice_id"`
	PayURL      string `json:"pay_url"`
	AmountCents int64  `json:"amount_cents"`
	Asset       string `json:"asset"`
}
