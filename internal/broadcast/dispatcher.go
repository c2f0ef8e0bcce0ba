package broadcast

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"gate_bot/internal/apperr"
	"gate_bot/internal/model"
)

// Sender delivers one payload to one chat.
// A permanently unreachable recipient is reported as an *apperr.DeliveryError
// with Permanent set.
type Sender interface {
	Deliver(ctx context.Context, chatID int64, p model.Payload) error
}

const (
	defaultWorkers  = 8
	defaultInterval = 40 * time.Millisecond
)

// Report summarises one broadcast run.
type Report struct {
	RunID      string
	Recipients int
	Delivered  int
	Failed     int
	Pruned     int
}

// Dispatcher sends a payload to every known user except the excluded ones.
type Dispatcher struct {
	users    *Users
	sender   Sender
	exclude  map[int64]struct{}
	log      *slog.Logger
	workers  int
	interval time.Duration
}

// NewDispatcher creates a Dispatcher. Users in exclude never receive broadcasts.
func NewDispatcher(users *Users, sender Sender, exclude []int64, log *slog.Logger) *Dispatcher {
	ex := make(map[int64]struct{}, len(exclude))
	for _, id := range exclude {
		ex[id] = struct{}{}
	}
	return &Dispatcher{
		users:    users,
		sender:   sender,
		exclude:  ex,
		log:      log,
		workers:  defaultWorkers,
		interval: defaultInterval,
	}
}

// SetWorkers bounds the number of concurrent sends.
func (d *Dispatcher) SetWorkers(n int) {
	if n > 0 {
		d.workers = n
	}
}

// SetInterval sets the pause between send starts. Zero disables pacing.
func (d *Dispatcher) SetInterval(iv time.Duration) {
	if iv >= 0 {
		d.interval = iv
	}
}

// Recipients returns the users a broadcast would target right now.
func (d *Dispatcher) Recipients() []int64 {
	all := d.users.Snapshot()
	out := all[:0]
	for _, id := range all {
		if _, skip := d.exclude[id]; !skip {
			out = append(out, id)
		}
	}
	return out
}

// Broadcast delivers p to every recipient once. It runs to completion over a
// snapshot of recipients taken at start; cancelling ctx does not stop it.
func (d *Dispatcher) Broadcast(ctx context.Context, p model.Payload) Report {
	ctx = context.WithoutCancel(ctx)
	recipients := d.Recipients()
	report := Report{RunID: uuid.NewString(), Recipients: len(recipients)}
	if len(recipients) == 0 {
		d.log.Info("broadcast skipped, no recipients", "run_id", report.RunID)
		return report
	}

	d.log.Info("broadcast started", "run_id", report.RunID, "recipients", len(recipients))
	start := time.Now()

	var pace <-chan time.Time
	if d.interval > 0 {
		ticker := time.NewTicker(d.interval)
		defer ticker.Stop()
		pace = ticker.C
	}

	var delivered, failed, pruned atomic.Int64
	var g errgroup.Group
	g.SetLimit(d.workers)
	for i, chatID := range recipients {
		if pace != nil && i > 0 {
			<-pace
		}
		g.Go(func() error {
			err := d.sender.Deliver(ctx, chatID, p)
			if err == nil {
				delivered.Add(1)
				return nil
			}
			failed.Add(1)
			if apperr.IsPermanentDelivery(err) {
				d.users.Remove(ctx, chatID)
				pruned.Add(1)
				d.log.Info("pruned unreachable user", "run_id", report.RunID, "user_id", chatID, "error", err)
				return nil
			}
			d.log.Warn("broadcast delivery failed", "run_id", report.RunID, "user_id", chatID, "error", err)
			return nil
		})
	}
	_ = g.Wait()

	report.Delivered = int(delivered.Load())
	report.Failed = int(failed.Load())
	report.Pruned = int(pruned.Load())
	d.log.Info("broadcast finished",
		"run_id", report.RunID,
		"delivered", report.Delivered,
		"failed", report.Failed,
		"pruned", report.Pruned,
		"duration", time.Since(start),
	)
	return report
}
