// Package domain defines the core business entities and types for the
// sidebet peer-to-peer fight wagering exchange.
package domain

import (
	"time"
)

// ──────────────────────────────────────────────────────────────────────────────
// Types & constants
// ──────────────────────────────────────────────────────────────────────────────

// FightStatus represents the lifecycle state of a fight in the catalog.
type FightStatus string

const (
	FightUpcoming FightStatus = "upcoming" // scheduled, betting open
	FightToday    FightStatus = "today"    // starts today
	FightLive     FightStatus = "live"     // in progress
	FightDone     FightStatus = "done"     // finished; winner_side recorded by admin
	FightCanceled FightStatus = "canceled" // called off
)

// IsValid returns true when s is one of the recognised catalog statuses.
func (s FightStatus) IsValid() bool {
	switch s {
	case FightUpcoming, FightToday, FightLive, FightDone, FightCanceled:
		return true
	}
	return false
}

// Side identifies one corner of a matchup.
type Side int

const (
	Side1 Side = 1
	Side2 Side = 2
)

// IsValid returns true for the two recognised sides.
func (s Side) IsValid() bool {
	return s == Side1 || s == Side2
}

// Opposite returns the other side of the matchup.
func (s Side) Opposite() Side {
	if s == Side1 {
		return Side2
	}
	return Side1
}

// ──────────────────────────────────────────────────────────────────────────────
// Fight
// ──────────────────────────────────────────────────────────────────────────────

// Fight is a single matchup synchronised from the external catalog.
// ExternalID is the catalog upsert key; fights from sheet rows without one
// carry a NULL external id and are never pruned by the synchroniser.
type Fight struct {
	ID          int64        `json:"id"           db:"id"`
	ExternalID  *string      `json:"external_id"  db:"external_id"`
	Title       string       `json:"title"        db:"title"`
	Side1Name   string       `json:"side1_name"   db:"side1_name"`
	Side2Name   string       `json:"side2_name"   db:"side2_name"`
	PhotoURL    *string      `json:"photo_url"    db:"photo_url"`
	Description *string      `json:"description"  db:"description"`
	StartsAt    *time.Time   `json:"starts_at"    db:"starts_at"`
	Status      FightStatus  `json:"status"       db:"status"`
	WinnerSide  *Side        `json:"winner_side"  db:"winner_side"`
	CreatedAt   time.Time    `json:"created_at"   db:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"   db:"updated_at"`
}

// AcceptsBets returns true while new wagers may still be created on the fight.
func (f *Fight) AcceptsBets() bool {
	return f.Status == FightUpcoming || f.Status == FightToday || f.Status == FightLive
}

// IsDecided returns true once the fight is done with a recorded winner.
// Only decided fights are eligible for the settlement payout pass.
func (f *Fight) IsDecided() bool {
	return f.Status == FightDone && f.WinnerSide != nil && f.WinnerSide.IsValid()
}

// SideName returns the display name of the given side.
func (f *Fight) SideName(s Side) string {
	if s == Side1 {
		return f.Side1Name
	}
	return f.Side2Name
}

// ──────────────────────────────────────────────────────────────────────────────
// FightRow — parsed catalog record
// ──────────────────────────────────────────────────────────────────────────────

// FightRow is one parsed spreadsheet row, ready to be upserted.
// Title and both side names are mandatory; everything else may be absent.
type FightRow struct {
	ExternalID  string
	Title       string
	Side1Name   string
	Side2Name   string
	PhotoURL    string
	Description string
	StartsAt    *time.Time
	Status      FightStatus
	WinnerSide  *Side
}
