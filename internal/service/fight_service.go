package service

import (
	"context"
	"fmt"
	"time"

	"github.com/ringside/sidebet/internal/config"
	"github.com/ringside/sidebet/internal/domain"
	"github.com/ringside/sidebet/internal/notify"
	"github.com/ringside/sidebet/internal/repository"
)

// FightService serves catalog reads for the presentation adapter and result
// recording for the backoffice. Resolution stays human: an admin records
// the winner, settlement does the rest.
type FightService struct {
	fightRepo *repository.FightRepository
	notifier  notify.Notifier
	cfg       *config.Config
}

// NewFightService creates a FightService.
func NewFightService(fightRepo *repository.FightRepository, notifier notify.Notifier, cfg *config.Config) *FightService {
	return &FightService{fightRepo: fightRepo, notifier: notifier, cfg: cfg}
}

// ListUpcomingFights returns every fight still accepting bets.
func (s *FightService) ListUpcomingFights(ctx context.Context) ([]*domain.Fight, error) {
	fights, err := s.fightRepo.ListOpen(ctx)
	if err != nil {
		return nil, fmt.Errorf("fight_service.ListUpcomingFights: %w", err)
	}
	return fights, nil
}

// GetFight returns a single fight by id.
func (s *FightService) GetFight(ctx context.Context, id int64) (*domain.Fight, error) {
	fight, err := s.fightRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("fight_service.GetFight: %w", err)
	}
	return fight, nil
}

// RecordResult marks a fight done with the given winner. Settlement picks
// the fight up on its next tick; nothing is paid synchronously here.
func (s *FightService) RecordResult(ctx context.Context, fightID int64, winner domain.Side) error {
	if !winner.IsValid() {
		return domain.ErrInvalidWinner
	}
	if err := s.fightRepo.RecordResult(ctx, fightID, winner); err != nil {
		return fmt.Errorf("fight_service.RecordResult: %w", err)
	}
	return nil
}

// CancelFight marks a fight canceled. Its deals are refunded by settlement.
func (s *FightService) CancelFight(ctx context.Context, fightID int64) error {
	if err := s.fightRepo.Cancel(ctx, fightID); err != nil {
		return fmt.Errorf("fight_service.CancelFight: %w", err)
	}
	return nil
}

// ListPendingResults returns fights overdue for a result.
func (s *FightService) ListPendingResults(ctx context.Context) ([]*domain.Fight, error) {
	cutoff := time.Now().Add(-s.cfg.Worker.ReminderAfterStart)
	fights, err := s.fightRepo.ListPendingResult(ctx, cutoff, 20)
	if err != nil {
		return nil, fmt.Errorf("fight_service.ListPendingResults: %w", err)
	}
	return fights, nil
}

// RemindAdmins nags every configured admin about fights that started a
// while ago and still have no recorded winner. Called by the scheduler.
func (s *FightService) RemindAdmins(ctx context.Context) error {
	fights, err := s.ListPendingResults(ctx)
	if err != nil {
		return fmt.Errorf("fight_service.RemindAdmins: %w", err)
	}
	if len(fights) == 0 || s.notifier == nil {
		return nil
	}

	text := "Results needed:\n"
	for _, f := range fights {
		started := ""
		if f.StartsAt != nil {
			started = f.StartsAt.Format("02.01 15:04")
		}
		text += fmt.Sprintf("#%d • <b>%s</b> — started %s\n", f.ID, f.Title, started)
	}
	text += "\nRecord via the backoffice: POST /admin/fights/{id}/result"

	s.notifier.SendToAdmins(ctx, text)
	return nil
}
