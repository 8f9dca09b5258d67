package eval

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/sentinel/internal/triage"
)

// Pipeline runs one report. *triage.Engine satisfies it.
type Pipeline interface {
	Run(ctx context.Context, id string, in triage.Input) *triage.Record
}

// Runner evaluates cases against a pipeline with bounded parallelism.
type Runner struct {
	Pipeline    Pipeline
	Concurrency int
	Logger      log.Logger

	// OnResult, if set, is called once per finished case. Calls may come
	// from several goroutines at once.
	OnResult func(i, total int, r CaseResult)
}

// Run evaluates every case and returns results in case order. It stops
// early only when ctx is cancelled.
func (r *Runner) Run(ctx context.Context, cases []Case) ([]CaseResult, error) {
	logger := r.Logger
	if logger == nil {
		logger = log.Nop()
	}
	limit := r.Concurrency
	if limit < 1 {
		limit = 1
	}

	results := make([]CaseResult, len(cases))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for i, c := range cases {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			start := time.Now()
			rec := r.Pipeline.Run(gctx, "eval-"+c.ID, triage.Input{Text: c.Input, Type: triage.InputText})
			res := Score(c, rec, time.Since(start).Seconds())
			results[i] = res

			logger.Info(gctx, "eval case finished",
				"case", c.ID, "passed", res.AllPassed, "decision", res.Decision, "latency_s", res.LatencyS)
			if r.OnResult != nil {
				r.OnResult(i, len(cases), res)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("eval interrupted: %w", err)
	}
	return results, nil
}
