package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/ringside/sidebet/internal/domain"
)

// TransferRepository handles the append-only transfer audit log. The log is
// never consulted to decide whether money moves; it exists for finance
// reporting and post-hoc reconciliation against the provider.
type TransferRepository struct {
	db *sqlx.DB
}

// NewTransferRepository creates a new TransferRepository.
func NewTransferRepository(db *sqlx.DB) *TransferRepository {
	return &TransferRepository{db: db}
}

// Log appends one audit record inside the caller's transaction. Conflicts
// on spend_id are ignored: a retried settlement tick re-logging the same
// transfer is expected and harmless.
func (r *TransferRepository) Log(ctx context.Context, tx *sqlx.Tx, t *domain.TransferLog) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO transfer_log (deal_id, kind, user_tg_id, amount_cents, spend_id)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (spend_id) DO NOTHING`,
		t.DealID, string(t.Kind), t.UserTgID, t.AmountCents, t.SpendID)
	if err != nil {
		return fmt.Errorf("transfer_repo.Log: %w", err)
	}
	return nil
}

// FinanceReport aggregates audited money movement for a date range.
type FinanceReport struct {
	From                time.Time `json:"from"`
	To                  time.Time `json:"to"`
	FeeCents            int64     `json:"fee_cents"`
	PayoutCents         int64     `json:"payout_cents"`
	RefundCents         int64     `json:"refund_cents"`
	StrandedRefundCents int64     `json:"stranded_refund_cents"`
	SettledDeals        int64     `json:"settled_deals"`
}

// GetFinanceReport sums transfer_log by kind for the given range.
func (r *TransferRepository) GetFinanceReport(ctx context.Context, from, to time.Time) (*FinanceReport, error) {
	var row struct {
		FeeCents            int64 `db:"fee_cents"`
		PayoutCents         int64 `db:"payout_cents"`
		RefundCents         int64 `db:"refund_cents"`
		StrandedRefundCents int64 `db:"stranded_cents"`
		SettledDeals        int64 `db:"settled_deals"`
	}
	err := r.db.GetContext(ctx, &row, `
		SELECT
			COALESCE(SUM(amount_cents) FILTER (WHERE kind = 'fee'), 0)             AS fee_cents,
			COALESCE(SUM(amount_cents) FILTER (WHERE kind = 'payout'), 0)          AS payout_cents,
			COALESCE(SUM(amount_cents) FILTER (WHERE kind = 'refund'), 0)          AS refund_cents,
			COALESCE(SUM(amount_cents) FILTER (WHERE kind = 'refund_stranded'), 0) AS stranded_cents,
			COUNT(*) FILTER (WHERE kind = 'payout')                                AS settled_deals
		FROM transfer_log
		WHERE created_at >= $1 AND created_at < $2`,
		from, to)
	if err != nil {
		return nil, fmt.Errorf("transfer_repo.GetFinanceReport: %w", err)
	}

	return &FinanceReport{
		From:                from,
		To:                  to,
		FeeCents:            row.FeeCents,
		PayoutCents:         row.PayoutCents,
		RefundCents:         row.RefundCents,
		StrandedRefundCents: row.StrandedRefundCents,
		SettledDeals:        row.SettledDeals,
	}, nil
}
