package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/ringside/sidebet/internal/domain"
)

// WaitRepository handles the invoice_wait intent table and the
// stranded_refund queue. invoice_wait is the reconciliation spine: a row
// exists exactly while a payment has not yet been applied.
type WaitRepository struct {
	db *sqlx.DB
}

// NewWaitRepository creates a new WaitRepository.
func NewWaitRepository(db *sqlx.DB) *WaitRepository {
	return &WaitRepository{db: db}
}

// Insert persists a fresh intent the moment its invoice is created.
func (r *WaitRepository) Insert(ctx context.Context, w *domain.InvoiceWait) error {
	// jsonb wants text on the wire; raw bytes would be sent as bytea.
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO invoice_wait (invoice_id, kind, payload)
		VALUES ($1, $2, $3)`,
		w.InvoiceID, string(w.Kind), string(w.Payload))
	if err != nil {
		return fmt.Errorf("wait_repo.Insert: %w", err)
	}
	return nil
}

// ListPending returns every pending intent, oldest first. The reconciler's
// batch size is simply the cardinality of this table.
func (r *WaitRepository) ListPending(ctx context.Context) ([]*domain.InvoiceWait, error) {
	var waiters []*domain.InvoiceWait
	err := r.db.SelectContext(ctx, &waiters,
		`SELECT * FROM invoice_wait ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("wait_repo.ListPending: %w", err)
	}
	return waiters, nil
}

// Consume deletes the waiter row inside the caller's transaction and
// returns it. ErrWaiterNotFound means the other reconciliation path already
// applied this payment — the caller must treat that as success and do
// nothing else. Running the delete FIRST inside the applying transaction is
// the whole idempotency story: two racing appliers serialise on this row,
// and exactly one of them proceeds.
func (r *WaitRepository) Consume(ctx context.Context, tx *sqlx.Tx, invoiceID int64) (*domain.InvoiceWait, error) {
	var w domain.InvoiceWait
	err := tx.GetContext(ctx, &w, `
		DELETE FROM invoice_wait
		WHERE invoice_id = $1
		RETURNING invoice_id, kind, payload, created_at`,
		invoiceID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrWaiterNotFound
		}
		return nil, fmt.Errorf("wait_repo.Consume: %w", err)
	}
	return &w, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Stranded refunds
// ──────────────────────────────────────────────────────────────────────────────

// InsertStranded queues a consumed-but-unappliable MATCH payment for an
// explicit refund. Runs in the same transaction that consumed the waiter so
// the payment is never silently dropped.
func (r *WaitRepository) InsertStranded(ctx context.Context, tx *sqlx.Tx, invoiceID, payerTgID, amountCents int64) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO stranded_refund (invoice_id, payer_tg_id, amount_cents)
		VALUES ($1, $2, $3)
		ON CONFLICT (invoice_id) DO NOTHING`,
		invoiceID, payerTgID, amountCents)
	if err != nil {
		return fmt.Errorf("wait_repo.InsertStranded: %w", err)
	}
	return nil
}

// LockUnrefundedStranded selects and locks up to limit stranded payments
// awaiting their refund transfer.
func (r *WaitRepository) LockUnrefundedStranded(ctx context.Context, tx *sqlx.Tx, limit int) ([]*domain.StrandedRefund, error) {
	var rows []*domain.StrandedRefund
	err := tx.SelectContext(ctx, &rows, `
		SELECT * FROM stranded_refund
		WHERE refunded = FALSE
		ORDER BY created_at ASC
		LIMIT $1
		FOR UPDATE SKIP LOCKED`,
		limit)
	if err != nil {
		return nil, fmt.Errorf("wait_repo.LockUnrefundedStranded: %w", err)
	}
	return rows, nil
}

// MarkStrandedRefunded records that the stranded payment has been returned.
func (r *WaitRepository) MarkStrandedRefunded(ctx context.Context, tx *sqlx.Tx, invoiceID int64) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE stranded_refund
		SET refunded = TRUE, refunded_at = now()
		WHERE invoice_id = $1`,
		invoiceID)
	if err != nil {
		return fmt.Errorf("wait_repo.MarkStrandedRefunded: %w", err)
	}
	return nil
}
