package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/ringside/sidebet/internal/config"
	"github.com/ringside/sidebet/internal/cryptopay"
	"github.com/ringside/sidebet/internal/domain"
	"github.com/ringside/sidebet/internal/notify"
	"github.com/ringside/sidebet/internal/repository"
	"github.com/ringside/sidebet/internal/ws"
)

// ──────────────────────────────────────────────────────────────────────────────
// DealService — the matchmaking engine
// ──────────────────────────────────────────────────────────────────────────────

// DealService creates payment intents and applies paid ones. Creating an
// intent persists nothing but an invoice_wait row next to the provider
// invoice; the deal itself only comes into existence (or gets its second
// leg) when a confirmed payment is applied, so unpaid legs never occupy
// matching capacity.
type DealService struct {
	db          *sqlx.DB
	dealRepo    *repository.DealRepository
	fightRepo   *repository.FightRepository
	userRepo    *repository.UserRepository
	waitRepo    *repository.WaitRepository
	pay         *cryptopay.Client
	notifier    notify.Notifier
	cfg         *config.Config
	watcher     InvoiceWatcher // injected after ReconcilerService is built
	broadcaster Broadcaster    // injected after the WS hub is built
}

// NewDealService creates a DealService.
func NewDealService(
	db *sqlx.DB,
	dealRepo *repository.DealRepository,
	fightRepo *repository.FightRepository,
	userRepo *repository.UserRepository,
	waitRepo *repository.WaitRepository,
	pay *cryptopay.Client,
	notifier notify.Notifier,
	cfg *config.Config,
) *DealService {
	return &DealService{
		db:        db,
		dealRepo:  dealRepo,
		fightRepo: fightRepo,
		userRepo:  userRepo,
		waitRepo:  waitRepo,
		pay:       pay,
		notifier:  notifier,
		cfg:       cfg,
	}
}

// SetWatcher injects the fast-path reconciler dependency post-construction.
func (s *DealService) SetWatcher(w InvoiceWatcher) { s.watcher = w }

// SetBroadcaster injects the WS hub dependency post-construction.
func (s *DealService) SetBroadcaster(b Broadcaster) { s.broadcaster = b }

// ──────────────────────────────────────────────────────────────────────────────
// Intent creation
// ──────────────────────────────────────────────────────────────────────────────

// CreateNewIntent bills the user for a fresh one-sided wager. On success the
// caller receives the provider pay URL; nothing else is persisted except the
// invoice_wait row that lets the reconciler apply the payment later.
//
// Provider errors surface before any persistence. A persistence error after
// invoice creation loses the invoice at the UX layer, which is harmless: no
// waiter row exists, so the payment can never be applied, and an unpaid
// invoice simply expires.
func (s *DealService) CreateNewIntent(ctx context.Context, req *domain.NewIntentRequest) (*domain.IntentTicket, error) {
	if !req.Side.IsValid() {
		return nil, domain.ErrInvalidSide
	}
	if req.AmountCents <= 0 {
		return nil, domain.ErrAmountNotPositive
	}

	fight, err := s.fightRepo.GetByID(ctx, req.FightID)
	if err != nil {
		return nil, fmt.Errorf("deal_service.CreateNewIntent: %w", err)
	}
	if !fight.AcceptsBets() {
		return nil, domain.ErrFightClosed
	}

	payload, err := json.Marshal(domain.NewIntentPayload{
		FightID:     req.FightID,
		Side:        req.Side,
		AmountCents: req.AmountCents,
		PayerTgID:   req.TgUserID,
	})
	if err != nil {
		return nil, fmt.Errorf("deal_service.CreateNewIntent: marshal payload: %w", err)
	}

	return s.issueIntent(ctx, domain.WaitNew, payload, req.AmountCents)
}

// CreateMatchIntent bills the user for the open side of an existing deal.
// The stake is always the creator's exact amount; the responder cannot
// choose. Self-matching is refused before any invoice is created.
func (s *DealService) CreateMatchIntent(ctx context.Context, req *domain.MatchIntentRequest) (*domain.IntentTicket, error) {
	deal, err := s.dealRepo.GetByID(ctx, req.DealID)
	if err != nil {
		return nil, fmt.Errorf("deal_service.CreateMatchIntent: %w", err)
	}
	if deal.User1ID == req.UserID {
		return nil, domain.ErrSelfMatch
	}
	if !deal.IsOpenForMatch() {
		return nil, domain.ErrDealNotOpen
	}

	fight, err := s.fightRepo.GetByID(ctx, deal.FightID)
	if err != nil {
		return nil, fmt.Errorf("deal_service.CreateMatchIntent: %w", err)
	}
	if !fight.AcceptsBets() {
		return nil, domain.ErrFightClosed
	}

	payload, err := json.Marshal(domain.MatchIntentPayload{
		DealID:      deal.ID,
		Side:        deal.Side1.Opposite(),
		AmountCents: deal.Amount1Cents,
		PayerTgID:   req.TgUserID,
	})
	if err != nil {
		return nil, fmt.Errorf("deal_service.CreateMatchIntent: marshal payload: %w", err)
	}

	return s.issueIntent(ctx, domain.WaitMatch, payload, deal.Amount1Cents)
}

// issueIntent is the shared invoice-then-waiter tail of both intent kinds.
func (s *DealService) issueIntent(ctx context.Context, kind domain.WaitKind, payload []byte, amountCents int64) (*domain.IntentTicket, error) {
	asset := s.cfg.Crypto.DefaultAsset

	inv, err := s.pay.CreateInvoice(ctx, asset, amountCents, string(payload))
	if err != nil {
		return nil, fmt.Errorf("deal_service.issueIntent: %w", err)
	}

	waiter := &domain.InvoiceWait{
		InvoiceID: inv.InvoiceID,
		Kind:      kind,
		Payload:   payload,
	}
	if err = s.waitRepo.Insert(ctx, waiter); err != nil {
		return nil, fmt.Errorf("deal_service.issueIntent: persist waiter: %w", err)
	}

	// Fire-and-forget fast path: a bounded poll that applies the payment
	// within seconds for UX. The slow reconciler loop remains the source of
	// truth if this watcher dies or times out.
	if s.watcher != nil {
		s.watcher.WatchInvoice(waiter)
	}

	return &domain.IntentTicket{
		InvoiceID:   inv.InvoiceID,
		PayURL:      inv.URL(),
		AmountCents: amountCents,
		Asset:       asset,
	}, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Applying paid intents
// ──────────────────────────────────────────────────────────────────────────────

// ApplyPaidNew runs the pair-on-pay algorithm for a paid NEW intent in a
// single transaction:
//
//  1. consume the invoice_wait row (gone ⇒ the other path already applied
//     this payment; return doing nothing)
//  2. lock the oldest eligible opposing deal
//  3. found ⇒ complete it as leg 2, status matched
//     none  ⇒ insert a fresh awaiting deal carrying this payment as leg 1
//
// Safe to call from both reconciliation paths concurrently.
func (s *DealService) ApplyPaidNew(ctx context.Context, w *domain.InvoiceWait) error {
	p, err := w.DecodeNewPayload()
	if err != nil {
		// Undecodable payload can never be applied; consume it so the loop
		// stops retrying, and leave a loud log for the operator.
		slog.Error("apply NEW: malformed payload, consuming waiter", "invoice_id", w.InvoiceID, "err", err)
		return s.consumeOnly(ctx, w.InvoiceID)
	}

	payer, err := s.userRepo.GetOrCreateByTgID(ctx, p.PayerTgID, "")
	if err != nil {
		return fmt.Errorf("deal_service.ApplyPaidNew: resolve payer: %w", err)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("deal_service.ApplyPaidNew: begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = s.waitRepo.Consume(ctx, tx, w.InvoiceID); err != nil {
		if errors.Is(err, domain.ErrWaiterNotFound) {
			err = nil
			_ = tx.Rollback()
			return nil // already applied by the other path
		}
		return fmt.Errorf("deal_service.ApplyPaidNew: %w", err)
	}

	var (
		dealID  int64
		matched *domain.Deal
	)
	candidate, err := s.dealRepo.LockOpenCandidate(ctx, tx, p.FightID, p.Side.Opposite(), p.AmountCents, payer.ID)
	switch {
	case err == nil:
		if err = s.dealRepo.CompleteMatch(ctx, tx, candidate.ID, payer.ID, p.Side, p.AmountCents, w.InvoiceID); err != nil {
			return fmt.Errorf("deal_service.ApplyPaidNew: complete match: %w", err)
		}
		dealID = candidate.ID
		matched = candidate

	case errors.Is(err, domain.ErrDealNotFound):
		err = nil
		dealID, err = s.dealRepo.CreateAwaiting(ctx, tx, p.FightID, payer.ID, p.Side, p.AmountCents, w.InvoiceID)
		if err != nil {
			return fmt.Errorf("deal_service.ApplyPaidNew: create awaiting: %w", err)
		}

	default:
		return fmt.Errorf("deal_service.ApplyPaidNew: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("deal_service.ApplyPaidNew: commit: %w", err)
	}

	s.announcePaid(w.InvoiceID, dealID, p.PayerTgID)
	if matched != nil {
		s.announceMatched(ctx, matched, p.PayerTgID, p.AmountCents)
	}
	slog.Info("NEW payment applied",
		"invoice_id", w.InvoiceID, "deal_id", dealID, "matched", matched != nil)
	return nil
}

// ApplyPaidMatch applies a paid MATCH intent against its target deal in a
// single transaction. The waiter is consumed regardless of whether the deal
// was still eligible — otherwise the loop would retry forever against a
// deal that can never accept the payment. An ineligible target strands the
// payment into the explicit-refund queue in the same transaction, so funds
// are never silently dropped.
func (s *DealService) ApplyPaidMatch(ctx context.Context, w *domain.InvoiceWait) error {
	p, err := w.DecodeMatchPayload()
	if err != nil {
		slog.Error("apply MATCH: malformed payload, consuming waiter", "invoice_id", w.InvoiceID, "err", err)
		return s.consumeOnly(ctx, w.InvoiceID)
	}

	payer, err := s.userRepo.GetOrCreateByTgID(ctx, p.PayerTgID, "")
	if err != nil {
		return fmt.Errorf("deal_service.ApplyPaidMatch: resolve payer: %w", err)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("deal_service.ApplyPaidMatch: begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = s.waitRepo.Consume(ctx, tx, w.InvoiceID); err != nil {
		if errors.Is(err, domain.ErrWaiterNotFound) {
			err = nil
			_ = tx.Rollback()
			return nil
		}
		return fmt.Errorf("deal_service.ApplyPaidMatch: %w", err)
	}

	stranded := false
	err = s.dealRepo.AcceptMatch(ctx, tx, p.DealID, payer.ID, p.Side, p.AmountCents, w.InvoiceID)
	if errors.Is(err, domain.ErrDealNotOpen) {
		// Race lost or the deal went terminal while the invoice sat unpaid.
		stranded = true
		if err = s.waitRepo.InsertStranded(ctx, tx, w.InvoiceID, p.PayerTgID, p.AmountCents); err != nil {
			return fmt.Errorf("deal_service.ApplyPaidMatch: strand: %w", err)
		}
	} else if err != nil {
		return fmt.Errorf("deal_service.ApplyPaidMatch: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("deal_service.ApplyPaidMatch: commit: %w", err)
	}

	if stranded {
		slog.Warn("MATCH payment stranded, refund queued",
			"invoice_id", w.InvoiceID, "deal_id", p.DealID, "payer_tg_id", p.PayerTgID)
		s.notifyAsync(p.PayerTgID, "That deal was already taken. Your payment will be refunded shortly.")
		return nil
	}

	s.announcePaid(w.InvoiceID, p.DealID, p.PayerTgID)
	if deal, loadErr := s.dealRepo.GetByID(ctx, p.DealID); loadErr == nil {
		s.announceMatched(ctx, deal, p.PayerTgID, p.AmountCents)
	}
	slog.Info("MATCH payment applied", "invoice_id", w.InvoiceID, "deal_id", p.DealID)
	return nil
}

// consumeOnly deletes a waiter outside the normal apply flow (malformed
// payload). Missing rows are fine.
func (s *DealService) consumeOnly(ctx context.Context, invoiceID int64) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("deal_service.consumeOnly: begin tx: %w", err)
	}
	if _, err = s.waitRepo.Consume(ctx, tx, invoiceID); err != nil && !errors.Is(err, domain.ErrWaiterNotFound) {
		_ = tx.Rollback()
		return fmt.Errorf("deal_service.consumeOnly: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("deal_service.consumeOnly: commit: %w", err)
	}
	return nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Presentation queries
// ──────────────────────────────────────────────────────────────────────────────

// ListOpenDeals returns the deals a user may take on a fight, FIFO.
func (s *DealService) ListOpenDeals(ctx context.Context, fightID, excludeUserID int64) ([]*domain.Deal, error) {
	deals, err := s.dealRepo.ListOpenForFight(ctx, fightID, excludeUserID)
	if err != nil {
		return nil, fmt.Errorf("deal_service.ListOpenDeals: %w", err)
	}
	return deals, nil
}

// ListMyActiveDeals returns the caller's non-terminal deals, either leg.
func (s *DealService) ListMyActiveDeals(ctx context.Context, userID int64) ([]*domain.Deal, error) {
	deals, err := s.dealRepo.ListActiveByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("deal_service.ListMyActiveDeals: %w", err)
	}
	return deals, nil
}

// ListMyShareableDeals returns the caller's own open deals for inline sharing.
func (s *DealService) ListMyShareableDeals(ctx context.Context, userID int64) ([]*domain.Deal, error) {
	deals, err := s.dealRepo.ListShareableByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("deal_service.ListMyShareableDeals: %w", err)
	}
	return deals, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Post-commit side effects
// ──────────────────────────────────────────────────────────────────────────────

func (s *DealService) announcePaid(invoiceID, dealID, payerTgID int64) {
	if s.broadcaster == nil {
		return
	}
	s.broadcaster.BroadcastInvoicePaid(ws.InvoicePaidMessage{
		Type:      ws.MsgTypeInvoicePaid,
		InvoiceID: invoiceID,
		DealID:    dealID,
		PayerTgID: payerTgID,
		Timestamp: time.Now().UTC(),
	})
}

// announceMatched broadcasts the match and tells the creator their wager is
// on. Both are best-effort.
func (s *DealService) announceMatched(ctx context.Context, deal *domain.Deal, responderTgID int64, amountCents int64) {
	tgIDs, err := s.userRepo.TgIDsByUserIDs(ctx, []int64{deal.User1ID})
	if err != nil {
		slog.Warn("announceMatched: resolve creator", "deal_id", deal.ID, "err", err)
		return
	}
	creatorTg := tgIDs[deal.User1ID]

	if s.broadcaster != nil {
		s.broadcaster.BroadcastDealMatched(ws.DealMatchedMessage{
			Type:        ws.MsgTypeDealMatched,
			DealID:      deal.ID,
			FightID:     deal.FightID,
			AmountCents: amountCents,
			User1TgID:   creatorTg,
			User2TgID:   responderTgID,
			Timestamp:   time.Now().UTC(),
		})
	}

	s.notifyAsync(creatorTg, fmt.Sprintf(
		"Your bet #%d is matched! %s on the line. Good luck 🤝", deal.ID, domain.CentsString(amountCents)))
}

// notifyAsync sends a chat message without blocking the apply path.
func (s *DealService) notifyAsync(tgUserID int64, text string) {
	if s.notifier == nil || tgUserID == 0 {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.notifier.Send(ctx, tgUserID, text); err != nil {
			slog.Warn("notify failed", "tg_user_id", tgUserID, "err", err)
		}
	}()
}
