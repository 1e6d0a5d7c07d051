// Package scheduler drives the periodic session scan that keeps past
// sessions titled even when no session list is ever opened.
package scheduler

import (
	"context"
	"log"

	"github.com/robfig/cron/v3"
)

type Scheduler struct {
	cron     *cron.Cron
	ctx      context.Context
	cancel   context.CancelFunc
	scanFunc func(ctx context.Context) error
}

func New() *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:   cron.New(),
		ctx:    ctx,
		cancel: cancel,
	}
}

// SetScanFunction sets the function invoked on each schedule firing.
func (s *Scheduler) SetScanFunction(f func(ctx context.Context) error) {
	s.scanFunc = f
}

// Start registers the scan at the given cron spec (e.g. "@every 2m") and
// starts the scheduler.
func (s *Scheduler) Start(spec string) error {
	if s.scanFunc == nil {
		log.Println("⚠️ Scan function not set, scheduler will not run scans")
		return nil
	}
	_, err := s.cron.AddFunc(spec, func() {
		if err := s.scanFunc(s.ctx); err != nil {
			log.Printf("❌ Scheduled session scan failed: %v", err)
		}
	})
	if err != nil {
		return err
	}
	s.cron.Start()
	log.Printf("📅 Scheduler started - session scan runs at %q", spec)
	return nil
}

// Stop halts the scheduler and waits for a running scan to finish.
func (s *Scheduler) Stop() {
	if s.cron != nil {
		ctx := s.cron.Stop()
		<-ctx.Done()
	}
	if s.cancel != nil {
		s.cancel()
	}
	log.Println("📅 Scheduler stopped")
}

// IsRunning reports whether any scan is scheduled.
func (s *Scheduler) IsRunning() bool {
	return s.cron != nil && len(s.cron.Entries()) > 0
}
