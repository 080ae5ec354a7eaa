// Package ws holds WebSocket message types and the Hub implementation.
// messages.go defines all message structs pushed to connected clients — the
// chat presentation layer listens here to live-update in-chat deal cards.
package ws

import (
	"time"

	"github.com/ringside/sidebet/internal/domain"
)

// MsgType identifies the kind of WS message so clients can switch on it.
type MsgType string

const (
	MsgTypeInvoicePaid MsgType = "invoice_paid"
	MsgTypeDealMatched MsgType = "deal_matched"
	MsgTypeDealSettled MsgType = "deal_settled"
	MsgTypeDealVoided  MsgType = "deal_voided"
	MsgTypeError       MsgType = "error"
)

// InvoicePaidMessage fires the moment a payment is applied — the fast
// path's reason to exist. DealID carries the deal the payment landed on.
type InvoicePaidMessage struct {
	Type      MsgType   `json:"type"`
	InvoiceID int64     `json:"invoice_id"`
	DealID    int64     `json:"deal_id"`
	PayerTgID int64     `json:"payer_tg_id"`
	Timestamp time.Time `json:"timestamp"`
}

// DealMatchedMessage announces that a deal found its counterparty.
type DealMatchedMessage struct {
	Type        MsgType   `json:"type"`
	DealID      int64     `json:"deal_id"`
	FightID     int64     `json:"fight_id"`
	AmountCents int64     `json:"amount_cents"`
	User1TgID   int64     `json:"user1_tg_id"`
	User2TgID   int64     `json:"user2_tg_id"`
	Timestamp   time.Time `json:"timestamp"`
}

// DealSettledMessage announces a winner payout.
type DealSettledMessage struct {
	Type        MsgType     `json:"type"`
	DealID      int64       `json:"deal_id"`
	FightID     int64       `json:"fight_id"`
	WinnerSide  domain.Side `json:"winner_side"`
	WinnerTgID  int64       `json:"winner_tg_id"`
	PayoutCents int64       `json:"payout_cents"`
	FeeCents    int64       `json:"fee_cents"`
	Timestamp   time.Time   `json:"timestamp"`
}

// DealVoidedMessage announces an orphan (or cancellation) refund.
type DealVoidedMessage struct {
	Type      MsgType   `json:"type"`
	DealID    int64     `json:"deal_id"`
	FightID   int64     `json:"fight_id"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrorMessage is sent directly to one client (not broadcast).
type ErrorMessage struct {
	Type    MsgType `json:"type"`
	Code    string  `json:"code"`
	Message string  `json:"message"`
}
