package cryptopay

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ringside/sidebet/internal/config"
	"github.com/ringside/sidebet/internal/domain"
)

// newTestClient points a Client at the given httptest server.
func newTestClient(srv *httptest.Server) *Client {
	cfg := &config.Config{}
	cfg.Crypto.Token = "test-token"
	cfg.Crypto.BaseURL = srv.URL
	cfg.Crypto.HTTPTimeout = 2 * time.Second
	return NewClient(cfg)
}

// TestCreateInvoice checks the request shape (auth header, two-digit
// amount, verbatim payload) and response unwrapping.
func TestCreateInvoice(t *testing.T) {
	const payload = `{"kind":"NEW","fight_id":7}`

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/createInvoice" {
			t.Errorf("path: got %s", r.URL.Path)
		}
		if got := r.Header.Get("Crypto-Pay-API-Token"); got != "test-token" {
			t.Errorf("auth header: got %q", got)
		}

		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatal(err)
		}
		if body["amount"] != "10.50" {
			t.Errorf("amount: want \"10.50\", got %v", body["amount"])
		}
		if body["payload"] != payload {
			t.Errorf("payload must round-trip unchanged, got %v", body["payload"])
		}

		_ = json.NewEncoder(w).Encode(map[string]any{
			"ok": true,
			"result": map[string]any{
				"invoice_id":      991,
				"status":          "active",
				"bot_invoice_url": "https://t.me/pay/991",
			},
		})
	}))
	defer srv.Close()

	inv, err := newTestClient(srv).CreateInvoice(context.Background(), "USDT", 1050, payload)
	if err != nil {
		t.Fatalf("CreateInvoice: %v", err)
	}
	if inv.InvoiceID != 991 || inv.URL() != "https://t.me/pay/991" {
		t.Errorf("invoice: %+v", inv)
	}
}

// TestGetInvoices checks the csv id list and item decoding.
func TestGetInvoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("invoice_ids"); got != "1,2,3" {
			t.Errorf("invoice_ids: got %q", got)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"ok": true,
			"result": map[string]any{
				"items": []map[string]any{
					{"invoice_id": 1, "status": "paid"},
					{"invoice_id": 2, "status": "active"},
				},
			},
		})
	}))
	defer srv.Close()

	invs, err := newTestClient(srv).GetInvoices(context.Background(), []int64{1, 2, 3})
	if err != nil {
		t.Fatalf("GetInvoices: %v", err)
	}
	if len(invs) != 2 {
		t.Fatalf("want 2 items, got %d", len(invs))
	}

	paid := 0
	for _, inv := range invs {
		if inv.Status == StatusPaid {
			paid++
		}
	}
	if paid != 1 {
		t.Errorf("want exactly 1 paid invoice, got %d", paid)
	}
}

// TestTransferDuplicateSpendID: the provider rejecting a reused spend id is
// how settlement retries stay single-pay, so it must surface as the
// dedicated sentinel rather than a generic failure.
func TestTransferDuplicateSpendID(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "result": map[string]any{}})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"ok":    false,
			"error": map[string]any{"code": 400, "name": "SPEND_ID_DUPLICATE"},
		})
	}))
	defer srv.Close()

	c := newTestClient(srv)

	if err := c.Transfer(context.Background(), 111, "USDT", 1800, "payout:42"); err != nil {
		t.Fatalf("first transfer: %v", err)
	}
	err := c.Transfer(context.Background(), 111, "USDT", 1800, "payout:42")
	if !errors.Is(err, ErrDuplicateSpendID) {
		t.Fatalf("second transfer: want ErrDuplicateSpendID, got %v", err)
	}
}

// TestProviderDown: 5xx responses classify as retryable provider failures.
func TestProviderDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := newTestClient(srv).CreateInvoice(context.Background(), "USDT", 100, "{}")
	if !errors.Is(err, domain.ErrProviderUnavailable) {
		t.Fatalf("want ErrProviderUnavailable, got %v", err)
	}
}
