package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ringside/sidebet/internal/config"
	"github.com/ringside/sidebet/internal/cryptopay"
	"github.com/ringside/sidebet/internal/domain"
	"github.com/ringside/sidebet/internal/repository"
)

// ──────────────────────────────────────────────────────────────────────────────
// ReconcilerService — the payment reconciler
// ──────────────────────────────────────────────────────────────────────────────

// ReconcilerService turns confirmed provider payments into state changes by
// scanning the invoice_wait table. Two redundant paths feed the same apply
// functions:
//
//   - the slow path: Tick(), run by the scheduler every few seconds, batch-
//     queries every pending invoice and is the source of truth;
//   - the fast path: WatchInvoice(), a bounded per-intent poll spawned at
//     intent creation purely so the user's in-chat card flips to "paid"
//     within seconds.
//
// Both paths may process the same invoice; the waiter delete inside the
// apply transaction makes the second arrival a no-op.
type ReconcilerService struct {
	waitRepo *repository.WaitRepository
	pay      *cryptopay.Client
	dealSvc  *DealService
	cfg      *config.Config
}

// NewReconcilerService builds a ReconcilerService.
func NewReconcilerService(
	waitRepo *repository.WaitRepository,
	pay *cryptopay.Client,
	dealSvc *DealService,
	cfg *config.Config,
) *ReconcilerService {
	return &ReconcilerService{
		waitRepo: waitRepo,
		pay:      pay,
		dealSvc:  dealSvc,
		cfg:      cfg,
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Slow path
// ──────────────────────────────────────────────────────────────────────────────

// Tick reconciles every pending intent once. Invoices reported paid are
// dispatched; active, expired, and unknown invoices are left alone (their
// waiter rows stay until a payment lands or an operator cleans up). A
// single failing invoice does not abort the rest of the batch.
func (s *ReconcilerService) Tick(ctx context.Context) error {
	waiters, err := s.waitRepo.ListPending(ctx)
	if err != nil {
		return fmt.Errorf("reconciler.Tick: list pending: %w", err)
	}
	if len(waiters) == 0 {
		return nil
	}

	byID := make(map[int64]*domain.InvoiceWait, len(waiters))
	ids := make([]int64, 0, len(waiters))
	for _, w := range waiters {
		byID[w.InvoiceID] = w
		ids = append(ids, w.InvoiceID)
	}

	invoices, err := s.pay.GetInvoices(ctx, ids)
	if err != nil {
		return fmt.Errorf("reconciler.Tick: %w", err)
	}

	for _, inv := range invoices {
		if inv.Status != cryptopay.StatusPaid {
			continue
		}
		w, ok := byID[inv.InvoiceID]
		if !ok {
			continue
		}
		if err := s.apply(ctx, w); err != nil {
			slog.Error("reconciler: apply failed", "invoice_id", w.InvoiceID, "kind", w.Kind, "err", err)
			// Waiter row survives a failed apply; the next tick retries.
		}
	}
	return nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Fast path
// ──────────────────────────────────────────────────────────────────────────────

// WatchInvoice starts the bounded per-intent poll. Fire-and-forget: the
// goroutine holds nothing beyond its local scope and simply exits on
// success, timeout, or shutdown. Implements InvoiceWatcher.
func (s *ReconcilerService) WatchInvoice(w *domain.InvoiceWait) {
	go s.watch(w)
}

func (s *ReconcilerService) watch(w *domain.InvoiceWait) {
	attempts := s.cfg.Wager.FastPollAttempts
	interval := s.cfg.Wager.FastPollInterval

	ctx, cancel := context.WithTimeout(context.Background(),
		time.Duration(attempts+1)*interval+30*time.Second)
	defer cancel()

	for i := 0; i < attempts; i++ {
		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}

		invoices, err := s.pay.GetInvoices(ctx, []int64{w.InvoiceID})
		if err != nil {
			// Transient; the next iteration (or the slow loop) will retry.
			continue
		}
		for _, inv := range invoices {
			switch inv.Status {
			case cryptopay.StatusPaid:
				if err := s.apply(ctx, w); err != nil {
					slog.Error("fast path: apply failed, slow loop will retry",
						"invoice_id", w.InvoiceID, "err", err)
				}
				return
			case cryptopay.StatusExpired:
				return // never going to be paid; give up early
			}
		}
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Dispatch
// ──────────────────────────────────────────────────────────────────────────────

// apply routes a paid intent to the matchmaking engine by kind.
func (s *ReconcilerService) apply(ctx context.Context, w *domain.InvoiceWait) error {
	switch w.Kind {
	case domain.WaitNew:
		return s.dealSvc.ApplyPaidNew(ctx, w)
	case domain.WaitMatch:
		return s.dealSvc.ApplyPaidMatch(ctx, w)
	default:
		return fmt.Errorf("reconciler.apply: unknown intent kind %q for invoice %d", w.Kind, w.InvoiceID)
	}
}
