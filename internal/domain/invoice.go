package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// ──────────────────────────────────────────────────────────────────────────────
// InvoiceWait — the reconciliation spine
// ──────────────────────────────────────────────────────────────────────────────

// WaitKind distinguishes the two intent flavours an invoice can carry.
type WaitKind string

const (
	WaitNew   WaitKind = "NEW"   // create-or-pair a wager on payment
	WaitMatch WaitKind = "MATCH" // take the open side of a specific deal
)

// InvoiceWait is a persisted payment intent keyed by the provider's invoice
// id. A row exists exactly while the payment has not yet been applied; it is
// deleted only inside the transaction that applies the intent, which is what
// makes both reconciliation paths idempotent.
type InvoiceWait struct {
	InvoiceID int64           `db:"invoice_id"`
	Kind      WaitKind        `db:"kind"`
	Payload   json.RawMessage `db:"payload"`
	CreatedAt time.Time       `db:"created_at"`
}

// NewIntentPayload is the serialized body of a NEW intent.
type NewIntentPayload struct {
	FightID     int64 `json:"fight_id"`
	Side        Side  `json:"side"`
	AmountCents int64 `json:"amount_cents"`
	PayerTgID   int64 `json:"payer_tg_id"`
}

// MatchIntentPayload is the serialized body of a MATCH intent.
type MatchIntentPayload struct {
	DealID      int64 `json:"deal_id"`
	Side        Side  `json:"side"`
	AmountCents int64 `json:"amount_cents"`
	PayerTgID   int64 `json:"payer_tg_id"`
}

// DecodeNewPayload parses and validates a NEW intent payload.
func (w *InvoiceWait) DecodeNewPayload() (*NewIntentPayload, error) {
	if w.Kind != WaitNew {
		return nil, fmt.Errorf("invoice %d: kind %s is not NEW", w.InvoiceID, w.Kind)
	}
	var p NewIntentPayload
	if err := json.Unmarshal(w.Payload, &p); err != nil {
		return nil, fmt.Errorf("invoice %d: decode NEW payload: %w", w.InvoiceID, err)
	}
	if !p.Side.IsValid() || p.AmountCents <= 0 || p.FightID == 0 || p.PayerTgID == 0 {
		return nil, fmt.Errorf("invoice %d: malformed NEW payload", w.InvoiceID)
	}
	return &p, nil
}

// DecodeMatchPayload parses and validates a MATCH intent payload.
func (w *InvoiceWait) DecodeMatchPayload() (*MatchIntentPayload, error) {
	if w.Kind != WaitMatch {
		return nil, fmt.Errorf("invoice %d: kind %s is not MATCH", w.InvoiceID, w.Kind)
	}
	var p MatchIntentPayload
	if err := json.Unmarshal(w.Payload, &p); err != nil {
		return nil, fmt.Errorf("invoice %d: decode MATCH payload: %w", w.InvoiceID, err)
	}
	if !p.Side.IsValid() || p.AmountCents <= 0 || p.DealID == 0 || p.PayerTgID == 0 {
		return nil, fmt.Errorf("invoice %d: malformed MATCH payload", w.InvoiceID)
	}
	return &p, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// StrandedRefund
// ──────────────────────────────────────────────────────────────────────────────

// StrandedRefund records a MATCH payment whose target deal was no longer
// eligible when the payment landed. The stake is returned by the settlement
// engine with a spend id derived from the invoice, so the refund is issued
// at most once even across retries.
type StrandedRefund struct {
	InvoiceID   int64      `db:"invoice_id"`
	PayerTgID   int64      `db:"payer_tg_id"`
	AmountCents int64      `db:"amount_cents"`
	Refunded    bool       `db:"refunded"`
	CreatedAt   time.Time  `db:"created_at"`
	RefundedAt  *time.Time `db:"refunded_at"`
}

// ──────────────────────────────────────────────────────────────────────────────
// TransferLog
// ──────────────────────────────────────────────────────────────────────────────

// TransferKind enumerates audit-log entry types.
type TransferKind string

const (
	TransferPayout         TransferKind = "payout"
	TransferRefund         TransferKind = "refund"
	TransferRefundStranded TransferKind = "refund_stranded"
	TransferFee            TransferKind = "fee"
)

// TransferLog is an immutable audit record of one outbound transfer or one
// collected fee. It is never consulted to decide whether money moves; the
// provider's spend_id idempotency and the deal status carry that burden.
type TransferLog struct {
	ID          int64        `db:"id"`
	DealID      *int64       `db:"deal_id"`
	Kind        TransferKind `db:"kind"`
	UserTgID    *int64       `db:"user_tg_id"`
	AmountCents int64        `db:"amount_cents"`
	SpendID     string       `db:"spend_id"`
	CreatedAt   time.Time    `db:"created_at"`
}

// Deterministic spend ids. The provider deduplicates transfers on spend_id,
// so a retried settlement tick re-issuing the same transfer is a no-op.

// PayoutSpendID is the idempotency key for a winner payout.
func PayoutSpendID(dealID int64) string {
	return fmt.Sprintf("payout:%d", dealID)
}

// RefundSpendID is the idempotency key for an orphan refund.
func RefundSpendID(dealID int64) string {
	return fmt.Sprintf("refund:%d", dealID)
}

// RefundLegSpendID keys the per-leg refunds of a matched deal on a
// canceled fight. Distinct from RefundSpendID so the two legs never share
// an idempotency key.
func RefundLegSpendID(dealID int64, leg int) string {
	return fmt.Sprintf("refund:%d:%d", dealID, leg)
}

// StrandedSpendID is the idempotency key for a stranded MATCH refund.
func StrandedSpendID(invoiceID int64) string {
	return fmt.Sprintf("refund_stranded:%d", invoiceID)
}

// FeeSpendID keys the fee audit row of a settled deal. Fees never leave the
// escrow account, so this id exists only to keep transfer_log rows unique.
func FeeSpendID(dealID int64) string {
	return fmt.Sprintf("fee:%d", dealID)
}
