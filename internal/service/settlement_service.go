package service

import (
	"context"
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
// SettlementService — the settlement engine
// ──────────────────────────────────────────────────────────────────────────────

// SettlementService sweeps finished fights: pays winners, refunds orphans
// and cancellations, and returns stranded MATCH payments. Each pass claims
// a batch under FOR UPDATE SKIP LOCKED, so concurrent ticks (or processes)
// divide the work instead of fighting over it. A deal that cannot be
// settled — invariant violation, provider hiccup — is skipped and logged;
// the rest of the batch still lands.
//
// The provider deduplicates transfers on spend_id. If a transfer lands but
// the status update is lost, the next tick re-issues the same spend_id, the
// provider reports a duplicate, and the pass finishes the status update —
// nobody is ever paid twice.
type SettlementService struct {
	db           *sqlx.DB
	dealRepo     *repository.DealRepository
	fightRepo    *repository.FightRepository
	userRepo     *repository.UserRepository
	waitRepo     *repository.WaitRepository
	transferRepo *repository.TransferRepository
	pay          *cryptopay.Client
	notifier     notify.Notifier
	cfg          *config.Config
	broadcaster  Broadcaster
}

// NewSettlementService builds a SettlementService.
func NewSettlementService(
	db *sqlx.DB,
	dealRepo *repository.DealRepository,
	fightRepo *repository.FightRepository,
	userRepo *repository.UserRepository,
	waitRepo *repository.WaitRepository,
	transferRepo *repository.TransferRepository,
	pay *cryptopay.Client,
	notifier notify.Notifier,
	cfg *config.Config,
) *SettlementService {
	return &SettlementService{
		db:           db,
		dealRepo:     dealRepo,
		fightRepo:    fightRepo,
		userRepo:     userRepo,
		waitRepo:     waitRepo,
		transferRepo: transferRepo,
		pay:          pay,
		notifier:     notifier,
		cfg:          cfg,
	}
}

// SetBroadcaster injects the WS hub dependency post-construction.
func (s *SettlementService) SetBroadcaster(b Broadcaster) { s.broadcaster = b }

// Tick runs all settlement passes once. Called by the scheduler; a failing
// pass is logged and the others still run.
func (s *SettlementService) Tick(ctx context.Context) error {
	var errs []error
	if err := s.payoutPass(ctx); err != nil {
		errs = append(errs, fmt.Errorf("payout: %w", err))
	}
	if err := s.orphanPass(ctx); err != nil {
		errs = append(errs, fmt.Errorf("orphan: %w", err))
	}
	if err := s.canceledPass(ctx); err != nil {
		errs = append(errs, fmt.Errorf("canceled: %w", err))
	}
	if err := s.strandedPass(ctx); err != nil {
		errs = append(errs, fmt.Errorf("stranded: %w", err))
	}
	if len(errs) > 0 {
		return fmt.Errorf("settlement.Tick: %w", errors.Join(errs...))
	}
	return nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Payout pass
// ──────────────────────────────────────────────────────────────────────────────

// settledNote carries the post-commit side effects of one payout.
type settledNote struct {
	deal       domain.Deal
	winnerSide domain.Side
	winnerTg   int64
	loserTg    int64
	settle     domain.Settlement
}

// payoutPass settles matched deals whose fight is done with a known winner.
func (s *SettlementService) payoutPass(ctx context.Context) (err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	candidates, err := s.dealRepo.LockPayoutCandidates(ctx, tx, s.cfg.Worker.SettleBatch)
	if err != nil {
		return err
	}
	if len(candidates) == 0 {
		_ = tx.Rollback()
		return nil
	}

	var notes []settledNote
	for _, c := range candidates {
		winnerUserID, ok := c.WinnerUserID(c.WinnerSide)
		if !ok || c.User2ID == nil {
			// Neither leg is on the winning side — an invariant violation.
			// Skip it; the row stays matched for an operator to inspect.
			slog.Error("payout: no leg on winning side, skipping deal",
				"deal_id", c.ID, "winner_side", c.WinnerSide)
			continue
		}

		settle := c.SettleAmounts(s.cfg.Wager.FeePct)

		tgIDs, lookupErr := s.userRepo.TgIDsByUserIDs(ctx, []int64{c.User1ID, *c.User2ID})
		if lookupErr != nil {
			err = lookupErr
			return err
		}
		winnerTg := tgIDs[winnerUserID]
		loserUserID := c.User1ID
		if winnerUserID == c.User1ID {
			loserUserID = *c.User2ID
		}

		spendID := domain.PayoutSpendID(c.ID)
		transferErr := s.pay.Transfer(ctx, winnerTg, s.cfg.Crypto.DefaultAsset, settle.PayoutCents, spendID)
		if transferErr != nil && !errors.Is(transferErr, cryptopay.ErrDuplicateSpendID) {
			// Provider trouble for this deal only; retried next tick with the
			// same spend id.
			slog.Warn("payout: transfer failed, will retry", "deal_id", c.ID, "err", transferErr)
			continue
		}

		dealID := c.ID
		if err = s.transferRepo.Log(ctx, tx, &domain.TransferLog{
			DealID:      &dealID,
			Kind:        domain.TransferPayout,
			UserTgID:    &winnerTg,
			AmountCents: settle.PayoutCents,
			SpendID:     spendID,
		}); err != nil {
			return err
		}
		if err = s.transferRepo.Log(ctx, tx, &domain.TransferLog{
			DealID:      &dealID,
			Kind:        domain.TransferFee,
			AmountCents: settle.FeeCents,
			SpendID:     domain.FeeSpendID(c.ID),
		}); err != nil {
			return err
		}
		if err = s.dealRepo.MarkSettled(ctx, tx, c.ID); err != nil {
			return err
		}

		notes = append(notes, settledNote{
			deal:       c.Deal,
			winnerSide: c.WinnerSide,
			winnerTg:   winnerTg,
			loserTg:    tgIDs[loserUserID],
			settle:     settle,
		})
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	for _, n := range notes {
		slog.Info("deal settled",
			"deal_id", n.deal.ID, "winner_tg_id", n.winnerTg,
			"payout_cents", n.settle.PayoutCents, "fee_cents", n.settle.FeeCents)
		s.announceSettled(ctx, &n.deal, n.winnerSide, n.winnerTg, n.loserTg, n.settle)
	}
	return nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Orphan refund pass
// ──────────────────────────────────────────────────────────────────────────────

// orphanPass refunds paid-but-unmatched deals on fights that have ended.
func (s *SettlementService) orphanPass(ctx context.Context) (err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	deals, err := s.dealRepo.LockOrphanCandidates(ctx, tx, s.cfg.Worker.SettleBatch)
	if err != nil {
		return err
	}
	if len(deals) == 0 {
		_ = tx.Rollback()
		return nil
	}

	type refundNote struct {
		deal      domain.Deal
		creatorTg int64
	}
	var notes []refundNote

	for _, d := range deals {
		tgIDs, lookupErr := s.userRepo.TgIDsByUserIDs(ctx, []int64{d.User1ID})
		if lookupErr != nil {
			err = lookupErr
			return err
		}
		creatorTg := tgIDs[d.User1ID]

		spendID := domain.RefundSpendID(d.ID)
		transferErr := s.pay.Transfer(ctx, creatorTg, s.cfg.Crypto.DefaultAsset, d.Amount1Cents, spendID)
		if transferErr != nil && !errors.Is(transferErr, cryptopay.ErrDuplicateSpendID) {
			slog.Warn("orphan: refund failed, will retry", "deal_id", d.ID, "err", transferErr)
			continue
		}

		dealID := d.ID
		if err = s.transferRepo.Log(ctx, tx, &domain.TransferLog{
			DealID:      &dealID,
			Kind:        domain.TransferRefund,
			UserTgID:    &creatorTg,
			AmountCents: d.Amount1Cents,
			SpendID:     spendID,
		}); err != nil {
			return err
		}
		if err = s.dealRepo.MarkVoid(ctx, tx, d.ID); err != nil {
			return err
		}
		notes = append(notes, refundNote{deal: *d, creatorTg: creatorTg})
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	for _, n := range notes {
		slog.Info("orphan refunded", "deal_id", n.deal.ID, "amount_cents", n.deal.Amount1Cents)
		s.announceVoided(&n.deal, n.creatorTg, fmt.Sprintf(
			"No one took your bet #%d — your %s stake is on its way back.",
			n.deal.ID, domain.CentsString(n.deal.Amount1Cents)))
	}
	return nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Canceled-fight pass
// ──────────────────────────────────────────────────────────────────────────────

// canceledPass refunds both legs of matched deals on canceled fights. A
// canceled fight can never produce a winner, so holding the escrow would
// strand it forever.
func (s *SettlementService) canceledPass(ctx context.Context) (err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	deals, err := s.dealRepo.LockCanceledMatchedCandidates(ctx, tx, s.cfg.Worker.SettleBatch)
	if err != nil {
		return err
	}
	if len(deals) == 0 {
		_ = tx.Rollback()
		return nil
	}

	type legNote struct {
		deal  domain.Deal
		tgID  int64
		cents int64
	}
	var notes []legNote

	for _, d := range deals {
		if d.User2ID == nil || d.Amount2Cents == nil {
			slog.Error("canceled pass: matched deal missing leg 2, skipping", "deal_id", d.ID)
			continue
		}

		tgIDs, lookupErr := s.userRepo.TgIDsByUserIDs(ctx, []int64{d.User1ID, *d.User2ID})
		if lookupErr != nil {
			err = lookupErr
			return err
		}

		legs := []struct {
			tgID    int64
			cents   int64
			spendID string
		}{
			{tgIDs[d.User1ID], d.Amount1Cents, domain.RefundLegSpendID(d.ID, 1)},
			{tgIDs[*d.User2ID], *d.Amount2Cents, domain.RefundLegSpendID(d.ID, 2)},
		}

		// Both transfers must be attempted before the deal flips to void;
		// duplicates on retry are absorbed by the spend ids.
		failed := false
		for _, leg := range legs {
			transferErr := s.pay.Transfer(ctx, leg.tgID, s.cfg.Crypto.DefaultAsset, leg.cents, leg.spendID)
			if transferErr != nil && !errors.Is(transferErr, cryptopay.ErrDuplicateSpendID) {
				slog.Warn("canceled pass: refund failed, will retry",
					"deal_id", d.ID, "spend_id", leg.spendID, "err", transferErr)
				failed = true
				break
			}
		}
		if failed {
			continue
		}

		dealID := d.ID
		for _, leg := range legs {
			tgID := leg.tgID
			if err = s.transferRepo.Log(ctx, tx, &domain.TransferLog{
				DealID:      &dealID,
				Kind:        domain.TransferRefund,
				UserTgID:    &tgID,
				AmountCents: leg.cents,
				SpendID:     leg.spendID,
			}); err != nil {
				return err
			}
		}
		if err = s.dealRepo.MarkVoid(ctx, tx, d.ID); err != nil {
			return err
		}
		for _, leg := range legs {
			notes = append(notes, legNote{deal: *d, tgID: leg.tgID, cents: leg.cents})
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	for _, n := range notes {
		slog.Info("canceled fight deal refunded", "deal_id", n.deal.ID, "tg_user_id", n.tgID)
		s.announceVoided(&n.deal, n.tgID, fmt.Sprintf(
			"Fight canceled — your %s stake on bet #%d is being returned.",
			domain.CentsString(n.cents), n.deal.ID))
	}
	return nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Stranded refund pass
// ──────────────────────────────────────────────────────────────────────────────

// strandedPass returns MATCH payments that could not be applied. The spend
// id is derived from the invoice, never the deal, so these refunds cannot
// collide with deal-level transfers.
func (s *SettlementService) strandedPass(ctx context.Context) (err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	rows, err := s.waitRepo.LockUnrefundedStranded(ctx, tx, s.cfg.Worker.SettleBatch)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		_ = tx.Rollback()
		return nil
	}

	var refunded []*domain.StrandedRefund
	for _, r := range rows {
		spendID := domain.StrandedSpendID(r.InvoiceID)
		transferErr := s.pay.Transfer(ctx, r.PayerTgID, s.cfg.Crypto.DefaultAsset, r.AmountCents, spendID)
		if transferErr != nil && !errors.Is(transferErr, cryptopay.ErrDuplicateSpendID) {
			slog.Warn("stranded: refund failed, will retry", "invoice_id", r.InvoiceID, "err", transferErr)
			continue
		}

		payerTg := r.PayerTgID
		if err = s.transferRepo.Log(ctx, tx, &domain.TransferLog{
			Kind:        domain.TransferRefundStranded,
			UserTgID:    &payerTg,
			AmountCents: r.AmountCents,
			SpendID:     spendID,
		}); err != nil {
			return err
		}
		if err = s.waitRepo.MarkStrandedRefunded(ctx, tx, r.InvoiceID); err != nil {
			return err
		}
		refunded = append(refunded, r)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	for _, r := range refunded {
		slog.Info("stranded payment refunded", "invoice_id", r.InvoiceID, "amount_cents", r.AmountCents)
		s.notifyAsync(r.PayerTgID, fmt.Sprintf(
			"Your %s payment has been refunded — the deal was no longer available.",
			domain.CentsString(r.AmountCents)))
	}
	return nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Post-commit side effects
// ──────────────────────────────────────────────────────────────────────────────

func (s *SettlementService) announceSettled(ctx context.Context, d *domain.Deal, winnerSide domain.Side, winnerTg, loserTg int64, settle domain.Settlement) {
	title := fmt.Sprintf("fight #%d", d.FightID)
	if fight, err := s.fightRepo.GetByID(ctx, d.FightID); err == nil {
		title = fight.Title
	}

	if s.broadcaster != nil {
		s.broadcaster.BroadcastDealSettled(ws.DealSettledMessage{
			Type:        ws.MsgTypeDealSettled,
			DealID:      d.ID,
			FightID:     d.FightID,
			WinnerSide:  winnerSide,
			WinnerTgID:  winnerTg,
			PayoutCents: settle.PayoutCents,
			FeeCents:    settle.FeeCents,
			Timestamp:   time.Now().UTC(),
		})
	}

	s.notifyAsync(winnerTg, fmt.Sprintf(
		"🏆 You won! %s pays you %s (bet #%d).", title, domain.CentsString(settle.PayoutCents), d.ID))
	s.notifyAsync(loserTg, fmt.Sprintf(
		"Tough luck — your side lost %s (bet #%d). Better draw next time.", title, d.ID))
}

func (s *SettlementService) announceVoided(d *domain.Deal, tgUserID int64, text string) {
	if s.broadcaster != nil {
		s.broadcaster.BroadcastDealVoided(ws.DealVoidedMessage{
			Type:      ws.MsgTypeDealVoided,
			DealID:    d.ID,
			FightID:   d.FightID,
			Timestamp: time.Now().UTC(),
		})
	}
	s.notifyAsync(tgUserID, text)
}

// notifyAsync sends a chat message without blocking the settlement loop.
func (s *SettlementService) notifyAsync(tgUserID int64, text string) {
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
