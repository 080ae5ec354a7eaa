// Package scheduler manages the four background goroutines (each a tickLoop,
// named in logs) that run the wagering lifecycle:
//  1. reconcile  – applies paid invoices from the invoice_wait table.
//  2. settlement – pays winners, refunds orphans, cancellations and stranded payments.
//  3. catalog    – mirrors the spreadsheet catalog into the fight table.
//  4. reminder   – nags admins about fights missing a result.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/ringside/sidebet/internal/config"
	"github.com/ringside/sidebet/internal/service"
)

// Scheduler wires together the services and runs the background loops.
// Call Start(ctx) once from main(); cancel the context to shut it down
// gracefully. Loops never terminate on error — they log and sleep their
// interval.
type Scheduler struct {
	reconciler *service.ReconcilerService
	settlement *service.SettlementService
	sync       *service.SyncService
	fightSvc   *service.FightService
	cfg        *config.Config
	logger     *slog.Logger
}

// NewScheduler creates a Scheduler.
func NewScheduler(
	reconciler *service.ReconcilerService,
	settlement *service.SettlementService,
	sync *service.SyncService,
	fightSvc *service.FightService,
	cfg *config.Config,
	logger *slog.Logger,
) *Scheduler {
	return &Scheduler{
		reconciler: reconciler,
		settlement: settlement,
		sync:       sync,
		fightSvc:   fightSvc,
		cfg:        cfg,
		logger:     logger,
	}
}

// Start launches the background goroutines. It returns immediately; all
// loops run until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	go s.tickLoop(ctx, "reconcile", s.cfg.Worker.ReconcileInterval, s.reconciler.Tick)
	go s.tickLoop(ctx, "settlement", s.cfg.Worker.SettleInterval, s.settlement.Tick)
	go s.tickLoop(ctx, "catalog", s.cfg.Worker.SyncInterval, s.sync.SyncOnce)
	go s.tickLoop(ctx, "reminder", s.cfg.Worker.ReminderInterval, s.fightSvc.RemindAdmins)
	s.logger.Info("scheduler started",
		"reconcile", s.cfg.Worker.ReconcileInterval,
		"settlement", s.cfg.Worker.SettleInterval,
		"catalog", s.cfg.Worker.SyncInterval,
		"reminder", s.cfg.Worker.ReminderInterval)
}

// tickLoop runs fn on every tick until the context is cancelled. Errors are
// logged and the loop keeps going; a panic in one tick is recovered and the
// next tick still fires.
func (s *Scheduler) tickLoop(ctx context.Context, name string, interval time.Duration, fn func(context.Context) error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("loop shutting down", "loop", name)
			return
		case <-ticker.C:
			s.runTick(ctx, name, fn)
		}
	}
}

// runTick is the inner body of tickLoop, extracted so that the deferred
// recover catches panics per tick.
func (s *Scheduler) runTick(ctx context.Context, name string, fn func(context.Context) error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("PANIC recovered in scheduler loop", "loop", name, "panic", r)
		}
	}()

	if err := fn(ctx); err != nil {
		s.logger.Error("tick failed", "loop", name, "err", err)
	}
}
