package domain_test

import (
	"encoding/json"
	"testing"

	"github.com/ringside/sidebet/internal/domain"
)

// TestIntentPayloadRoundTrip checks the payload survives the provider
// boundary byte-for-byte semantically: what the matchmaker encodes at
// invoice creation is exactly what the reconciler decodes on payment.
func TestIntentPayloadRoundTrip(t *testing.T) {
	raw, err := json.Marshal(domain.NewIntentPayload{
		FightID:     7,
		Side:        domain.Side2,
		AmountCents: 1600,
		PayerTgID:   111222333,
	})
	if err != nil {
		t.Fatal(err)
	}

	w := &domain.InvoiceWait{InvoiceID: 42, Kind: domain.WaitNew, Payload: raw}
	p, err := w.DecodeNewPayload()
	if err != nil {
		t.Fatalf("DecodeNewPayload: %v", err)
	}
	if p.FightID != 7 || p.Side != domain.Side2 || p.AmountCents != 1600 || p.PayerTgID != 111222333 {
		t.Errorf("payload mangled: %+v", p)
	}

	// Kind mismatch is an error, not a silent misdispatch.
	if _, err := w.DecodeMatchPayload(); err == nil {
		t.Error("decoding a NEW waiter as MATCH must fail")
	}
}

// TestDecodeRejectsMalformed: a waiter with garbage or incomplete payload
// must fail decoding so the reconciler consumes it instead of retrying
// forever.
func TestDecodeRejectsMalformed(t *testing.T) {
	bad := []json.RawMessage{
		json.RawMessage(`not json`),
		json.RawMessage(`{}`),
		json.RawMessage(`{"deal_id":1,"side":3,"amount_cents":100,"payer_tg_id":1}`),
		json.RawMessage(`{"deal_id":1,"side":1,"amount_cents":0,"payer_tg_id":1}`),
		json.RawMessage(`{"deal_id":0,"side":1,"amount_cents":100,"payer_tg_id":1}`),
	}
	for i, payload := range bad {
		w := &domain.InvoiceWait{InvoiceID: int64(i), Kind: domain.WaitMatch, Payload: payload}
		if _, err := w.DecodeMatchPayload(); err == nil {
			t.Errorf("case %d: malformed payload %s decoded without error", i, payload)
		}
	}
}

// TestSpendIDs pins the deterministic idempotency-key formats the provider
// deduplicates on. Changing these would double-pay on the next deploy.
func TestSpendIDs(t *testing.T) {
	if got := domain.PayoutSpendID(42); got != "payout:42" {
		t.Errorf("payout spend id: got %q", got)
	}
	if got := domain.RefundSpendID(42); got != "refund:42" {
		t.Errorf("refund spend id: got %q", got)
	}
	if got := domain.StrandedSpendID(9001); got != "refund_stranded:9001" {
		t.Errorf("stranded spend id: got %q", got)
	}
	if domain.RefundLegSpendID(42, 1) == domain.RefundLegSpendID(42, 2) {
		t.Error("leg refunds must never share a spend id")
	}
}
