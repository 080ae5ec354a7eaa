// Package cryptopay is a minimal client for the Crypto Pay API: invoice
// creation, batch invoice status lookup, and idempotent outbound transfers.
// Amounts cross this boundary as two-digit decimal strings; everything
// behind it is integer cents.
package cryptopay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/ringside/sidebet/internal/config"
	"github.com/ringside/sidebet/internal/domain"
	"golang.org/x/sync/errgroup"
)

// ──────────────────────────────────────────────────────────────────────────────
// Types
// ──────────────────────────────────────────────────────────────────────────────

// Invoice status values as reported by the provider.
const (
	StatusActive  = "active"
	StatusPaid    = "paid"
	StatusExpired = "expired"
)

// Invoice is the subset of the provider's invoice object the system uses.
type Invoice struct {
	InvoiceID     int64  `json:"invoice_id"`
	Status        string `json:"status"`
	Asset         string `json:"asset"`
	Amount        string `json:"amount"`
	Payload       string `json:"payload"`
	BotInvoiceURL string `json:"bot_invoice_url"`
	PayURL        string `json:"pay_url"`
}

// URL returns the best payment link the provider offered.
func (i *Invoice) URL() string {
	if i.BotInvoiceURL != "" {
		return i.BotInvoiceURL
	}
	return i.PayURL
}

// apiEnvelope is the provider's uniform {ok, result|error} wrapper.
type apiEnvelope struct {
	OK     bool            `json:"ok"`
	Result json.RawMessage `json:"result"`
	Error  *apiError       `json:"error"`
}

// apiError is the provider's error object.
type apiError struct {
	Code int    `json:"code"`
	Name string `json:"name"`
}

// ErrDuplicateSpendID is returned by Transfer when the provider rejects a
// spend id it has already honoured. For a retrying settlement pass this
// means the money already moved: callers treat it as success and finish the
// interrupted status update.
var ErrDuplicateSpendID = errors.New("transfer spend_id already used")

// getInvoicesBatch caps how many ids go into one getInvoices call. The
// provider accepts a csv list; keep requests well under URL length limits.
const getInvoicesBatch = 100

// ──────────────────────────────────────────────────────────────────────────────
// Client
// ──────────────────────────────────────────────────────────────────────────────

// Client talks to the Crypto Pay HTTP API. Safe for concurrent use.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
}

// NewClient constructs a Client from the given config.
func NewClient(cfg *config.Config) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: cfg.Crypto.HTTPTimeout},
		baseURL:    strings.TrimRight(cfg.Crypto.BaseURL, "/"),
		token:      cfg.Crypto.Token,
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Public API
// ──────────────────────────────────────────────────────────────────────────────

// CreateInvoice creates an invoice for amountCents of asset, attaching the
// caller's payload string verbatim. The payload round-trips unchanged and is
// how the reconciler recovers the intent behind a payment.
func (c *Client) CreateInvoice(ctx context.Context, asset string, amountCents int64, payload string) (*Invoice, error) {
	body := map[string]any{
		"asset":           asset,
		"amount":          domain.CentsString(amountCents),
		"payload":         payload,
		"allow_comments":  false,
		"allow_anonymous": false,
	}

	raw, err := c.post(ctx, "createInvoice", body)
	if err != nil {
		return nil, fmt.Errorf("cryptopay.CreateInvoice: %w", err)
	}

	var inv Invoice
	if err = json.Unmarshal(raw, &inv); err != nil {
		return nil, fmt.Errorf("cryptopay.CreateInvoice parse: %w", err)
	}
	if inv.InvoiceID == 0 || inv.URL() == "" {
		return nil, fmt.Errorf("cryptopay.CreateInvoice: incomplete invoice in response")
	}
	return &inv, nil
}

// GetInvoices fetches the current status of the given invoice ids. Large id
// sets are split into batches queried concurrently; the result preserves no
// particular order. Ids unknown to the provider are simply absent.
func (c *Client) GetInvoices(ctx context.Context, ids []int64) ([]Invoice, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	var batches [][]int64
	for start := 0; start < len(ids); start += getInvoicesBatch {
		end := min(start+getInvoicesBatch, len(ids))
		batches = append(batches, ids[start:end])
	}

	results := make([][]Invoice, len(batches))
	g, gctx := errgroup.WithContext(ctx)
	for i, batch := range batches {
		g.Go(func() error {
			invs, err := c.getInvoicesBatch(gctx, batch)
			if err != nil {
				return err
			}
			results[i] = invs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("cryptopay.GetInvoices: %w", err)
	}

	var all []Invoice
	for _, invs := range results {
		all = append(all, invs...)
	}
	return all, nil
}

func (c *Client) getInvoicesBatch(ctx context.Context, ids []int64) ([]Invoice, error) {
	strs := make([]string, len(ids))
	for i, id := range ids {
		strs[i] = strconv.FormatInt(id, 10)
	}

	q := url.Values{}
	q.Set("invoice_ids", strings.Join(strs, ","))

	raw, err := c.get(ctx, "getInvoices", q)
	if err != nil {
		return nil, err
	}

	var result struct {
		Items []Invoice `json:"items"`
	}
	if err = json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("parse items: %w", err)
	}
	return result.Items, nil
}

// Transfer sends amountCents of asset to the chat user identified by
// userTgID. spendID is the provider-side idempotency key: re-issuing a
// transfer with a spend id that was already accepted is rejected by the
// provider, which is what makes settlement retries safe.
func (c *Client) Transfer(ctx context.Context, userTgID int64, asset string, amountCents int64, spendID string) error {
	body := map[string]any{
		"user_id":  userTgID,
		"asset":    asset,
		"amount":   domain.CentsString(amountCents),
		"spend_id": spendID,
	}

	if _, err := c.post(ctx, "transfer", body); err != nil {
		if errors.Is(err, ErrDuplicateSpendID) {
			return ErrDuplicateSpendID
		}
		return fmt.Errorf("cryptopay.Transfer spend_id=%s: %w", spendID, err)
	}
	return nil
}

// ──────────────────────────────────────────────────────────────────────────────
// HTTP helpers
// ──────────────────────────────────────────────────────────────────────────────

func (c *Client) post(ctx context.Context, method string, body map[string]any) (json.RawMessage, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/"+method, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req, method)
}

func (c *Client) get(ctx context.Context, method string, q url.Values) (json.RawMessage, error) {
	u := c.baseURL + "/" + method
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	return c.do(req, method)
}

// do executes the request with the auth header and unwraps the provider
// envelope. Transport failures and 5xx responses wrap
// domain.ErrProviderUnavailable so callers can classify them as retryable.
func (c *Client) do(req *http.Request, method string) (json.RawMessage, error) {
	req.Header.Set("Crypto-Pay-API-Token", c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", method, domain.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, fmt.Errorf("%s: %w: status %d", method, domain.ErrProviderUnavailable, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s read body: %w", method, err)
	}

	var env apiEnvelope
	if err = json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("%s parse envelope: %w", method, err)
	}
	if !env.OK {
		if env.Error != nil && strings.Contains(env.Error.Name, "SPEND_ID") {
			return nil, ErrDuplicateSpendID
		}
		if env.Error != nil {
			return nil, fmt.Errorf("%s failed: %d %s", method, env.Error.Code, env.Error.Name)
		}
		return nil, fmt.Errorf("%s failed: provider returned ok=false", method)
	}
	return env.Result, nil
}
