package similarity

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/sentinel/internal/postgres"
)

// Reseeder periodically reloads the seed file into an index so edits to the
// corpus are picked up without a restart.
type Reseeder struct {
	idx      Index
	path     string
	schedule cron.Schedule
	logger   log.Logger
	now      func() time.Time
}

// ParseSchedule parses a five-field cron expression (minute hour dom month dow).
func ParseSchedule(spec string) (cron.Schedule, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	return parser.Parse(spec)
}

// NewReseeder returns a Reseeder that loads path into idx on the cron
// schedule spec.
func NewReseeder(idx Index, path, spec string, logger log.Logger) (*Reseeder, error) {
	sched, err := ParseSchedule(spec)
	if err != nil {
		return nil, fmt.Errorf("parse reseed schedule %q: %w", spec, err)
	}
	if logger == nil {
		logger = log.Nop()
	}
	return &Reseeder{idx: idx, path: path, schedule: sched, logger: logger, now: time.Now}, nil
}

// Next returns the next activation after t.
func (r *Reseeder) Next(t time.Time) time.Time {
	return r.schedule.Next(t)
}

// Run blocks until ctx is cancelled, reseeding at each scheduled time.
func (r *Reseeder) Run(ctx context.Context) {
	ctx = postgres.WithSource(ctx, "reseed")
	for {
		next := r.Next(r.now())
		r.logger.Info(ctx, "next similarity reseed scheduled", "at", next.Format(time.RFC3339))

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		if err := r.Reseed(ctx); err != nil {
			r.logger.Error(ctx, err, "similarity reseed failed")
		}
	}
}

// Reseed reloads the seed file and writes every ticket into the index.
// Unlike Seed it does not skip a populated index.
func (r *Reseeder) Reseed(ctx context.Context) error {
	tickets, err := LoadSeedFile(r.path)
	if err != nil {
		return err
	}
	if err := r.idx.Add(ctx, tickets); err != nil {
		return fmt.Errorf("reseed index: %w", err)
	}
	r.logger.Info(ctx, "similarity index reseeded", "tickets", len(tickets))
	return nil
}
