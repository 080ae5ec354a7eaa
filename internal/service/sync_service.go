package service

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ringside/sidebet/internal/config"
	"github.com/ringside/sidebet/internal/domain"
	"github.com/ringside/sidebet/internal/repository"
)

// ──────────────────────────────────────────────────────────────────────────────
// SyncService — the catalog synchroniser
// ──────────────────────────────────────────────────────────────────────────────

// SyncService pulls the fight catalog from a published Google Sheet (CSV
// export) and mirrors it into the fight table with upsert-and-prune
// semantics. Pruning never touches fights holding unsettled deals: the
// sheet is an editorial surface, not an authority over escrowed funds.
type SyncService struct {
	httpClient *http.Client
	fightRepo  *repository.FightRepository
	cfg        *config.Config
}

// NewSyncService constructs a SyncService.
func NewSyncService(fightRepo *repository.FightRepository, cfg *config.Config) *SyncService {
	return &SyncService{
		httpClient: &http.Client{Timeout: cfg.Sheet.FetchTimeout},
		fightRepo:  fightRepo,
		cfg:        cfg,
	}
}

// SyncOnce runs one full catalog pass: fetch, parse, upsert every valid
// row, then prune catalog-owned fights the sheet no longer lists.
func (s *SyncService) SyncOnce(ctx context.Context) error {
	if s.cfg.Sheet.SpreadsheetID == "" {
		return nil // no catalog configured; local fights only
	}

	rows, err := s.fetchRows(ctx)
	if err != nil {
		return fmt.Errorf("sync_service.SyncOnce: %w", err)
	}

	touched := make([]int64, 0, len(rows))
	for _, row := range rows {
		id, err := s.fightRepo.Upsert(ctx, row)
		if err != nil {
			slog.Error("sync: upsert failed", "external_id", row.ExternalID, "title", row.Title, "err", err)
			continue
		}
		touched = append(touched, id)
	}

	pruned, err := s.fightRepo.PruneMissing(ctx, touched)
	if err != nil {
		return fmt.Errorf("sync_service.SyncOnce: prune: %w", err)
	}

	slog.Debug("catalog synced", "rows", len(rows), "pruned", pruned)
	return nil
}

// fetchRows downloads the sheet as CSV and parses it.
func (s *SyncService) fetchRows(ctx context.Context) ([]*domain.FightRow, error) {
	url := fmt.Sprintf(
		"https://docs.google.com/spreadsheets/d/%s/export?format=csv&gid=%s",
		s.cfg.Sheet.SpreadsheetID, s.cfg.Sheet.GID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch sheet: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch sheet: unexpected status %d", resp.StatusCode)
	}

	return parseCatalog(resp.Body)
}

// ──────────────────────────────────────────────────────────────────────────────
// CSV parsing
// ──────────────────────────────────────────────────────────────────────────────

// Column layout of the catalog sheet. Blank cells are permitted everywhere
// except the three identity fields.
const (
	colExternalID = iota
	colTitle
	colSide1
	colSide2
	colImageURL
	colStartsAt
	colStatus
	colDescription
	colWinner
	catalogColumns
)

// startsAtLayouts are the timestamp formats accepted from the sheet, tried
// in order.
var startsAtLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"02.01.2006 15:04",
}

// parseCatalog reads the CSV export and returns one FightRow per valid data
// row. Invalid rows (missing identity fields, unknown status) are skipped,
// not fatal: one bad sheet line must not stall the whole catalog.
func parseCatalog(r io.Reader) ([]*domain.FightRow, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1 // sheets trim trailing blank cells

	var rows []*domain.FightRow
	first := true
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse csv: %w", err)
		}

		// Skip a header row if present.
		if first {
			first = false
			if len(record) > colTitle && strings.EqualFold(strings.TrimSpace(record[colExternalID]), "external_id") {
				continue
			}
		}

		if row, ok := parseCatalogRow(record); ok {
			rows = append(rows, row)
		}
	}
	return rows, nil
}

// parseCatalogRow converts one CSV record into a FightRow. Returns ok=false
// when the record is unusable.
func parseCatalogRow(record []string) (*domain.FightRow, bool) {
	cell := func(i int) string {
		if i < len(record) {
			return strings.TrimSpace(record[i])
		}
		return ""
	}

	row := &domain.FightRow{
		ExternalID:  cell(colExternalID),
		Title:       cell(colTitle),
		Side1Name:   cell(colSide1),
		Side2Name:   cell(colSide2),
		PhotoURL:    cell(colImageURL),
		Description: cell(colDescription),
		Status:      domain.FightUpcoming,
	}
	if row.Title == "" || row.Side1Name == "" || row.Side2Name == "" {
		return nil, false
	}

	if raw := cell(colStartsAt); raw != "" {
		for _, layout := range startsAtLayouts {
			if t, err := time.Parse(layout, raw); err == nil {
				utc := t.UTC()
				row.StartsAt = &utc
				break
			}
		}
	}

	if raw := cell(colStatus); raw != "" {
		status := domain.FightStatus(strings.ToLower(raw))
		if !status.IsValid() {
			return nil, false
		}
		row.Status = status
	}

	switch cell(colWinner) {
	case "":
	case "1":
		w := domain.Side1
		row.WinnerSide = &w
		row.Status = domain.FightDone
	case "2":
		w := domain.Side2
		row.WinnerSide = &w
		row.Status = domain.FightDone
	default:
		return nil, false
	}

	return row, true
}
