// Package scheduler runs the periodic campaign expiry sweep.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"gate_bot/internal/campaign"
	"gate_bot/internal/model"
)

// Sweeper closes campaigns whose expiry condition holds.
type Sweeper interface {
	SweepExpired(ctx context.Context, probe campaign.MemberCounter) []model.ClosedCampaign
}

// ChallengePruner evicts idle password challenges.
type ChallengePruner interface {
	PruneChallenges() int
}

// Notifier is told about every campaign a sweep closes.
type Notifier interface {
	NotifyCampaignClosed(ctx context.Context, closed model.ClosedCampaign)
}

// Scheduler periodically sweeps expired campaigns and notifies administrators.
type Scheduler struct {
	sweeper  Sweeper
	pruner   ChallengePruner
	probe    campaign.MemberCounter
	notifier Notifier
	log      *slog.Logger
	tick     time.Duration
	group    singleflight.Group
}

// New creates a Scheduler. pruner may be nil.
func New(sweeper Sweeper, pruner ChallengePruner, probe campaign.MemberCounter, notifier Notifier, log *slog.Logger) *Scheduler {
	return &Scheduler{
		sweeper:  sweeper,
		pruner:   pruner,
		probe:    probe,
		notifier: notifier,
		log:      log,
		tick:     1 * time.Minute,
	}
}

// SetTickInterval overrides the default 1-minute sweep interval.
func (s *Scheduler) SetTickInterval(d time.Duration) {
	s.tick = d
}

// Run starts the scheduler loop, blocking until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	s.Sweep(ctx)

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep runs one cycle and returns the campaigns it closed. Concurrent calls
// share a single in-flight cycle.
func (s *Scheduler) Sweep(ctx context.Context) []model.ClosedCampaign {
	v, _, _ := s.group.Do("sweep", func() (any, error) {
		return s.sweep(context.WithoutCancel(ctx)), nil
	})
	return v.([]model.ClosedCampaign)
}

func (s *Scheduler) sweep(ctx context.Context) []model.ClosedCampaign {
	if s.pruner != nil {
		if n := s.pruner.PruneChallenges(); n > 0 {
			s.log.Debug("pruned idle challenges", "count", n)
		}
	}

	closed := s.sweeper.SweepExpired(ctx, s.probe)
	for _, c := range closed {
		s.notifier.NotifyCampaignClosed(ctx, c)
	}
	if len(closed) > 0 {
		s.log.Info("sweep closed campaigns", "count", len(closed))
	}
	return closed
}
