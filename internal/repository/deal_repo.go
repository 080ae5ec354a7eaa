package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/ringside/sidebet/internal/domain"
)

// DealRepository handles all database operations for wagers. Every write
// that participates in matchmaking or settlement takes a transaction and
// relies on row locks; plain reads serve the presentation adapter.
type DealRepository struct {
	db *sqlx.DB
}

// NewDealRepository creates a new DealRepository.
func NewDealRepository(db *sqlx.DB) *DealRepository {
	return &DealRepository{db: db}
}

// GetByID fetches a deal by its primary key.
func (r *DealRepository) GetByID(ctx context.Context, id int64) (*domain.Deal, error) {
	var d domain.Deal
	err := r.db.GetContext(ctx, &d, `SELECT * FROM deal WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrDealNotFound
		}
		return nil, fmt.Errorf("deal_repo.GetByID: %w", err)
	}
	return &d, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Matchmaking writes (all inside the caller's transaction)
// ──────────────────────────────────────────────────────────────────────────────

// LockOpenCandidate finds and row-locks the oldest open deal on fightID
// whose creator sits on candidateSide with exactly amountCents at stake,
// excluding deals created by excludeUserID. Returns ErrDealNotFound when no
// candidate exists — the caller then creates a fresh awaiting deal instead.
//
// The FOR UPDATE lock is what serialises two opposing payments racing for
// the same candidate: the second transaction blocks here and re-evaluates
// against committed state.
func (r *DealRepository) LockOpenCandidate(ctx context.Context, tx *sqlx.Tx, fightID int64, candidateSide domain.Side, amountCents, excludeUserID int64) (*domain.Deal, error) {
	var d domain.Deal
	err := tx.GetContext(ctx, &d, `
		SELECT * FROM deal
		WHERE fight_id = $1
		  AND status = 'awaiting_match'
		  AND paid1 = TRUE
		  AND user2_id IS NULL
		  AND side1 = $2
		  AND amount1_cents = $3
		  AND user1_id <> $4
		ORDER BY id ASC
		LIMIT 1
		FOR UPDATE`,
		fightID, int(candidateSide), amountCents, excludeUserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrDealNotFound
		}
		return nil, fmt.Errorf("deal_repo.LockOpenCandidate: %w", err)
	}
	return &d, nil
}

// CreateAwaiting inserts a fresh paid awaiting deal (the carrier leg of a
// NEW payment that found no opposite candidate) and returns its id.
func (r *DealRepository) CreateAwaiting(ctx context.Context, tx *sqlx.Tx, fightID, user1ID int64, side domain.Side, amountCents, invoiceID int64) (int64, error) {
	var id int64
	err := tx.GetContext(ctx, &id, `
		INSERT INTO deal (fight_id, user1_id, side1, amount1_cents, paid1, invoice1_id, status)
		VALUES ($1, $2, $3, $4, TRUE, $5, 'awaiting_match')
		RETURNING id`,
		fightID, user1ID, int(side), amountCents, invoiceID)
	if err != nil {
		return 0, fmt.Errorf("deal_repo.CreateAwaiting: %w", err)
	}
	return id, nil
}

// CompleteMatch fills leg 2 of a locked candidate and promotes the deal to
// matched. Intended to run right after LockOpenCandidate in the same
// transaction; the WHERE clause re-states the guard anyway so a misuse
// surfaces as ErrDealNotOpen instead of corrupting state.
func (r *DealRepository) CompleteMatch(ctx context.Context, tx *sqlx.Tx, dealID, user2ID int64, side2 domain.Side, amountCents, invoiceID int64) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE deal
		SET user2_id      = $1,
		    side2         = $2,
		    amount2_cents = $3,
		    paid2         = TRUE,
		    invoice2_id   = $4,
		    status        = 'matched',
		    matched_at    = now()
		WHERE id = $5
		  AND status = 'awaiting_match'
		  AND paid1 = TRUE
		  AND user2_id IS NULL
		  AND user1_id <> $1`,
		user2ID, int(side2), amountCents, invoiceID, dealID)
	if err != nil {
		return fmt.Errorf("deal_repo.CompleteMatch: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrDealNotOpen
	}
	return nil
}

// AcceptMatch applies a paid MATCH intent against its target deal. The
// guard runs inside the UPDATE itself: the deal must still be awaiting,
// unclaimed, escrowed on leg 1, and not created by the payer. Zero rows
// affected means the payment raced and lost — the caller strands it for
// an explicit refund.
func (r *DealRepository) AcceptMatch(ctx context.Context, tx *sqlx.Tx, dealID, user2ID int64, side2 domain.Side, amountCents, invoiceID int64) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE deal
		SET user2_id      = $1,
		    side2         = $2,
		    amount2_cents = $3,
		    paid2         = TRUE,
		    invoice2_id   = $4,
		    status        = 'matched',
		    matched_at    = now()
		WHERE id = $5
		  AND status = 'awaiting_match'
		  AND paid1 = TRUE
		  AND user2_id IS NULL
		  AND user1_id <> $1
		  AND amount1_cents = $3`,
		user2ID, int(side2), amountCents, invoiceID, dealID)
	if err != nil {
		return fmt.Errorf("deal_repo.AcceptMatch: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrDealNotOpen
	}
	return nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Presentation reads
// ──────────────────────────────────────────────────────────────────────────────

// ListOpenForFight returns deals visible to matching candidates on a fight:
// awaiting, escrowed, unclaimed, and not created by excludeUserID.
// Ordered by id ascending (FIFO by creation).
func (r *DealRepository) ListOpenForFight(ctx context.Context, fightID, excludeUserID int64) ([]*domain.Deal, error) {
	var deals []*domain.Deal
	err := r.db.SelectContext(ctx, &deals, `
		SELECT * FROM deal
		WHERE fight_id = $1
		  AND status = 'awaiting_match'
		  AND paid1 = TRUE
		  AND user2_id IS NULL
		  AND user1_id <> $2
		ORDER BY id ASC`,
		fightID, excludeUserID)
	if err != nil {
		return nil, fmt.Errorf("deal_repo.ListOpenForFight: %w", err)
	}
	return deals, nil
}

// ListActiveByUser returns a user's non-terminal deals, either leg.
func (r *DealRepository) ListActiveByUser(ctx context.Context, userID int64) ([]*domain.Deal, error) {
	var deals []*domain.Deal
	err := r.db.SelectContext(ctx, &deals, `
		SELECT * FROM deal
		WHERE (user1_id = $1 OR user2_id = $1)
		  AND status IN ('awaiting_match', 'matched')
		ORDER BY id DESC`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("deal_repo.ListActiveByUser: %w", err)
	}
	return deals, nil
}

// ListShareableByUser returns the user's own open deals — the ones the chat
// surface can share inline for someone else to take.
func (r *DealRepository) ListShareableByUser(ctx context.Context, userID int64) ([]*domain.Deal, error) {
	var deals []*domain.Deal
	err := r.db.SelectContext(ctx, &deals, `
		SELECT * FROM deal
		WHERE user1_id = $1
		  AND status = 'awaiting_match'
		  AND paid1 = TRUE
		  AND user2_id IS NULL
		ORDER BY id DESC`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("deal_repo.ListShareableByUser: %w", err)
	}
	return deals, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Settlement selection
// ──────────────────────────────────────────────────────────────────────────────

// SettleCandidate is a matched deal joined with its fight's recorded winner.
type SettleCandidate struct {
	domain.Deal
	WinnerSide domain.Side `db:"winner_side"`
}

// LockPayoutCandidates selects and locks up to limit matched deals whose
// fight is done with a known winner. SKIP LOCKED lets concurrent settlement
// ticks (or processes) divide the batch instead of serialising on it.
func (r *DealRepository) LockPayoutCandidates(ctx context.Context, tx *sqlx.Tx, limit int) ([]*SettleCandidate, error) {
	var rows []*SettleCandidate
	err := tx.SelectContext(ctx, &rows, `
		SELECT d.*, f.winner_side
		FROM deal d
		JOIN fight f ON f.id = d.fight_id
		WHERE d.status = 'matched'
		  AND f.status = 'done'
		  AND f.winner_side IN (1, 2)
		ORDER BY d.id ASC
		LIMIT $1
		FOR UPDATE OF d SKIP LOCKED`,
		limit)
	if err != nil {
		return nil, fmt.Errorf("deal_repo.LockPayoutCandidates: %w", err)
	}
	return rows, nil
}

// LockOrphanCandidates selects and locks up to limit paid-but-unmatched
// deals on fights that have ended (done or canceled). These are refunded
// whole to their creators.
func (r *DealRepository) LockOrphanCandidates(ctx context.Context, tx *sqlx.Tx, limit int) ([]*domain.Deal, error) {
	var deals []*domain.Deal
	err := tx.SelectContext(ctx, &deals, `
		SELECT d.*
		FROM deal d
		JOIN fight f ON f.id = d.fight_id
		WHERE d.status = 'awaiting_match'
		  AND d.paid1 = TRUE
		  AND d.user2_id IS NULL
		  AND f.status IN ('done', 'canceled')
		ORDER BY d.id ASC
		LIMIT $1
		FOR UPDATE OF d SKIP LOCKED`,
		limit)
	if err != nil {
		return nil, fmt.Errorf("deal_repo.LockOrphanCandidates: %w", err)
	}
	return deals, nil
}

// LockCanceledMatchedCandidates selects and locks matched deals whose fight
// was canceled before a result could exist. Both legs are refunded.
func (r *DealRepository) LockCanceledMatchedCandidates(ctx context.Context, tx *sqlx.Tx, limit int) ([]*domain.Deal, error) {
	var deals []*domain.Deal
	err := tx.SelectContext(ctx, &deals, `
		SELECT d.*
		FROM deal d
		JOIN fight f ON f.id = d.fight_id
		WHERE d.status = 'matched'
		  AND f.status = 'canceled'
		ORDER BY d.id ASC
		LIMIT $1
		FOR UPDATE OF d SKIP LOCKED`,
		limit)
	if err != nil {
		return nil, fmt.Errorf("deal_repo.LockCanceledMatchedCandidates: %w", err)
	}
	return deals, nil
}

// MarkSettled moves a locked matched deal to its terminal settled state.
func (r *DealRepository) MarkSettled(ctx context.Context, tx *sqlx.Tx, dealID int64) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE deal
		SET status = 'settled', settled_at = now()
		WHERE id = $1 AND status = 'matched'`,
		dealID)
	if err != nil {
		return fmt.Errorf("deal_repo.MarkSettled: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrDealNotOpen
	}
	return nil
}

// MarkVoid moves a locked deal to its terminal void state after a refund.
func (r *DealRepository) MarkVoid(ctx context.Context, tx *sqlx.Tx, dealID int64) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE deal
		SET status = 'void', settled_at = now()
		WHERE id = $1 AND status IN ('awaiting_match', 'matched')`,
		dealID)
	if err != nil {
		return fmt.Errorf("deal_repo.MarkVoid: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrDealNotOpen
	}
	return nil
}
