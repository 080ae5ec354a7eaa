package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/ringside/sidebet/internal/domain"
)

// FightRepository handles all database operations for the fight catalog.
type FightRepository struct {
	db *sqlx.DB
}

// NewFightRepository creates a new FightRepository.
func NewFightRepository(db *sqlx.DB) *FightRepository {
	return &FightRepository{db: db}
}

// GetByID fetches a fight by its primary key.
func (r *FightRepository) GetByID(ctx context.Context, id int64) (*domain.Fight, error) {
	var f domain.Fight
	err := r.db.GetContext(ctx, &f, `SELECT * FROM fight WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrFightNotFound
		}
		return nil, fmt.Errorf("fight_repo.GetByID: %w", err)
	}
	return &f, nil
}

// ListOpen returns fights that still accept bets, soonest first.
func (r *FightRepository) ListOpen(ctx context.Context) ([]*domain.Fight, error) {
	var fights []*domain.Fight
	err := r.db.SelectContext(ctx, &fights, `
		SELECT * FROM fight
		WHERE status IN ('upcoming', 'today', 'live')
		ORDER BY starts_at ASC NULLS LAST, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("fight_repo.ListOpen: %w", err)
	}
	return fights, nil
}

// Upsert writes one catalog row and returns the fight id it landed on.
// Rows with an external id upsert on that key; keyless rows fall back to
// the (title, side1_name, side2_name) triple so a sheet without ids still
// converges instead of duplicating fights every tick.
func (r *FightRepository) Upsert(ctx context.Context, row *domain.FightRow) (int64, error) {
	var winner *int
	if row.WinnerSide != nil {
		w := int(*row.WinnerSide)
		winner = &w
	}

	if row.ExternalID != "" {
		var id int64
		err := r.db.GetContext(ctx, &id, `
			INSERT INTO fight (external_id, title, side1_name, side2_name, photo_url, description, starts_at, status, winner_side)
			VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''), $7, $8, $9)
			ON CONFLICT (external_id) DO UPDATE
			SET title       = EXCLUDED.title,
			    side1_name  = EXCLUDED.side1_name,
			    side2_name  = EXCLUDED.side2_name,
			    photo_url   = EXCLUDED.photo_url,
			    description = EXCLUDED.description,
			    starts_at   = EXCLUDED.starts_at,
			    status      = EXCLUDED.status,
			    winner_side = EXCLUDED.winner_side,
			    updated_at  = now()
			RETURNING id`,
			row.ExternalID, row.Title, row.Side1Name, row.Side2Name,
			row.PhotoURL, row.Description, row.StartsAt, string(row.Status), winner)
		if err != nil {
			return 0, fmt.Errorf("fight_repo.Upsert: %w", err)
		}
		return id, nil
	}

	// Keyless row: update by identity triple first, insert when absent.
	var id int64
	err := r.db.GetContext(ctx, &id, `
		UPDATE fight
		SET photo_url   = NULLIF($4, ''),
		    description = NULLIF($5, ''),
		    starts_at   = $6,
		    status      = $7,
		    winner_side = $8,
		    updated_at  = now()
		WHERE external_id IS NULL
		  AND title = $1 AND side1_name = $2 AND side2_name = $3
		RETURNING id`,
		row.Title, row.Side1Name, row.Side2Name,
		row.PhotoURL, row.Description, row.StartsAt, string(row.Status), winner)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("fight_repo.Upsert update: %w", err)
	}

	err = r.db.GetContext(ctx, &id, `
		INSERT INTO fight (title, side1_name, side2_name, photo_url, description, starts_at, status, winner_side)
		VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), $6, $7, $8)
		RETURNING id`,
		row.Title, row.Side1Name, row.Side2Name,
		row.PhotoURL, row.Description, row.StartsAt, string(row.Status), winner)
	if err != nil {
		return 0, fmt.Errorf("fight_repo.Upsert insert: %w", err)
	}
	return id, nil
}

// PruneMissing deletes catalog-owned fights whose ids were not touched by
// the current sync tick. Fights that still carry non-terminal deals are
// kept no matter what the sheet says: deleting them would orphan escrowed
// funds before settlement could return them. Only fights with an external
// id are candidates; keyless fights are never deleted here.
// Returns the number of fights removed.
func (r *FightRepository) PruneMissing(ctx context.Context, touchedIDs []int64) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM fight f
		WHERE f.external_id IS NOT NULL
		  AND f.id <> ALL($1)
		  AND NOT EXISTS (
		        SELECT 1 FROM deal d
		        WHERE d.fight_id = f.id
		          AND d.status NOT IN ('settled', 'void')
		  )`,
		pq.Array(touchedIDs))
	if err != nil {
		return 0, fmt.Errorf("fight_repo.PruneMissing: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// RecordResult marks a fight done with the given winner. Once a result is
// recorded it is terminal for settlement purposes, so re-recording is
// rejected: an unknown fight and a fight already done both return
// ErrFightNotFound.
func (r *FightRepository) RecordResult(ctx context.Context, fightID int64, winner domain.Side) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE fight
		SET status = 'done', winner_side = $1, updated_at = now()
		WHERE id = $2 AND status <> 'done'`,
		int(winner), fightID)
	if err != nil {
		return fmt.Errorf("fight_repo.RecordResult: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrFightNotFound
	}
	return nil
}

// Cancel marks a fight canceled. Settlement then refunds its deals.
func (r *FightRepository) Cancel(ctx context.Context, fightID int64) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE fight
		SET status = 'canceled', updated_at = now()
		WHERE id = $1 AND status NOT IN ('done', 'canceled')`,
		fightID)
	if err != nil {
		return fmt.Errorf("fight_repo.Cancel: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrFightNotFound
	}
	return nil
}

// ListPendingResult returns fights that started before the cutoff and still
// have no recorded winner. Feeds the admin reminder loop.
func (r *FightRepository) ListPendingResult(ctx context.Context, startedBefore time.Time, limit int) ([]*domain.Fight, error) {
	var fights []*domain.Fight
	err := r.db.SelectContext(ctx, &fights, `
		SELECT * FROM fight
		WHERE starts_at IS NOT NULL
		  AND starts_at <= $1
		  AND winner_side IS NULL
		  AND status NOT IN ('done', 'canceled')
		ORDER BY starts_at ASC
		LIMIT $2`,
		startedBefore, limit)
	if err != nil {
		return nil, fmt.Errorf("fight_repo.ListPendingResult: %w", err)
	}
	return fights, nil
}
