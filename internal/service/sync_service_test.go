package service

import (
	"strings"
	"testing"

	"github.com/ringside/sidebet/internal/domain"
)

// TestParseCatalog feeds a realistic sheet export through the parser:
// header row, full rows, blank optional cells, and junk lines that must be
// skipped without failing the tick.
func TestParseCatalog(t *testing.T) {
	csvData := strings.Join([]string{
		`external_id,title,side1_name,side2_name,image_url,starts_at,status,description,winner`,
		`evt-101,Alpha vs Bravo,Alpha,Bravo,https://img.example/101.jpg,2026-08-02 20:00,upcoming,Main card,`,
		`evt-102,Charlie vs Delta,Charlie,Delta,,,,,"1"`,
		`,Echo vs Foxtrot,Echo,Foxtrot,,2026-08-03T18:30:00Z,today,,`,
		`evt-104,,MissingTitle,X,,,,,`,
		`evt-105,Bad Status,A,B,,,someday,,`,
		`evt-106,Bad Winner,A,B,,,,,3`,
	}, "\n")

	rows, err := parseCatalog(strings.NewReader(csvData))
	if err != nil {
		t.Fatalf("parseCatalog: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("want 3 valid rows, got %d", len(rows))
	}

	r := rows[0]
	if r.ExternalID != "evt-101" || r.Title != "Alpha vs Bravo" {
		t.Errorf("row 0 identity: %+v", r)
	}
	if r.Status != domain.FightUpcoming {
		t.Errorf("row 0 status: want upcoming, got %s", r.Status)
	}
	if r.StartsAt == nil {
		t.Error("row 0: starts_at should parse")
	}
	if r.Description != "Main card" {
		t.Errorf("row 0 description: got %q", r.Description)
	}

	// winner=1 forces status done
	r = rows[1]
	if r.WinnerSide == nil || *r.WinnerSide != domain.Side1 {
		t.Errorf("row 1 winner: %+v", r.WinnerSide)
	}
	if r.Status != domain.FightDone {
		t.Errorf("row 1 status: want done when winner set, got %s", r.Status)
	}

	// keyless rows are allowed; they upsert by identity triple
	r = rows[2]
	if r.ExternalID != "" {
		t.Errorf("row 2 should be keyless, got %q", r.ExternalID)
	}
	if r.Status != domain.FightToday {
		t.Errorf("row 2 status: want today, got %s", r.Status)
	}
	if r.StartsAt == nil {
		t.Error("row 2: RFC3339 starts_at should parse")
	}
}

// TestParseCatalogNoHeader: a sheet exported without a header row must
// still parse from the first line.
func TestParseCatalogNoHeader(t *testing.T) {
	csvData := `evt-1,Solo vs Duo,Solo,Duo,,,live,,`

	rows, err := parseCatalog(strings.NewReader(csvData))
	if err != nil {
		t.Fatalf("parseCatalog: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("want 1 row, got %d", len(rows))
	}
	if rows[0].Status != domain.FightLive {
		t.Errorf("status: want live, got %s", rows[0].Status)
	}
}

// TestParseCatalogShortRows: sheets drop trailing empty cells; the parser
// must treat missing columns as blanks, not crash.
func TestParseCatalogShortRows(t *testing.T) {
	csvData := `evt-2,Trim vs Pad,Trim,Pad`

	rows, err := parseCatalog(strings.NewReader(csvData))
	if err != nil {
		t.Fatalf("parseCatalog: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("want 1 row, got %d", len(rows))
	}
	r := rows[0]
	if r.Status != domain.FightUpcoming || r.StartsAt != nil || r.WinnerSide != nil {
		t.Errorf("defaults not applied: %+v", r)
	}
}
