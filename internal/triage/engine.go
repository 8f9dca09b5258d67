// internal/triage/engine.go
package triage

import (
	"context"
	"fmt"
	"slices"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"
)

var tracer = otel.Tracer("github.com/linnemanlabs/sentinel/internal/triage")

// Input is what a caller submits to the pipeline.
type Input struct {
	Text string
	Type InputType
}

// Stages is the fixed set of stages the engine sequences.
type Stages struct {
	Intake   Stage
	Dedup    Stage
	Classify Stage
	Route    Stage
}

// NewStages wires the standard stages around the given collaborators.
func NewStages(ex Extractor, cl Classifier, se Searcher, router *Router, threshold float64, topK int) Stages {
	return Stages{
		Intake:   &IntakeStage{Extractor: ex},
		Dedup:    &DedupStage{Searcher: se, Threshold: threshold, TopK: topK},
		Classify: &ClassifyStage{Classifier: cl},
		Route:    &RouteStage{Router: router},
	}
}

// CompleteEvent is passed to EngineHooks.OnComplete when a run terminates.
type CompleteEvent struct {
	TriageID string
	Decision Decision
	Duration float64
	Stages   []StageName
}

// EngineHooks are optional callbacks for instrumentation. Nil fields are skipped.
type EngineHooks struct {
	OnStage    func(stage StageName, duration float64, failed bool)
	OnDedup    func(similarity float64)
	OnRoute    func(team string, fallback bool)
	OnComplete func(e *CompleteEvent)
}

// Engine runs the triage state machine:
//
//	intake -> {needs_clarification | error | dedup}
//	dedup  -> {duplicate | error | classify}
//	classify -> route -> create_ticket
//
// Runs are sequential and share nothing but the stages' collaborators.
type Engine struct {
	stages map[StageName]Stage
	logger log.Logger
	hooks  EngineHooks
}

// NewEngine creates a new engine. All four stages are required.
func NewEngine(stages Stages, logger log.Logger, hooks EngineHooks) *Engine {
	if logger == nil {
		logger = log.Nop()
	}
	if stages.Intake == nil || stages.Dedup == nil || stages.Classify == nil || stages.Route == nil {
		panic(xerrors.New("all pipeline stages are required"))
	}
	return &Engine{
		stages: map[StageName]Stage{
			StageIntake:   stages.Intake,
			StageDedup:    stages.Dedup,
			StageClassify: stages.Classify,
			StageRoute:    stages.Route,
		},
		logger: logger,
		hooks:  hooks,
	}
}

// Run executes the pipeline for one input and returns the completed record.
// It never panics or returns an error: failures end up as DecisionError with
// the message on Record.Error.
func (e *Engine) Run(ctx context.Context, id string, in Input) *Record {
	start := time.Now()

	inputType := in.Type
	if inputType == "" {
		inputType = InputText
	}
	rec := &Record{
		ID:        id,
		RawInput:  in.Text,
		InputType: inputType,
		Trace:     []string{},
	}

	ctx, span := tracer.Start(ctx, "triage.run", trace.WithAttributes(
		attribute.String("sentinel.triage.id", id),
		attribute.String("sentinel.input_type", string(inputType)),
	))
	defer span.End()

	L := e.logger.With("triage_id", id)

	var executed []StageName
	cur := StageIntake
	for {
		upd := e.runStage(ctx, L, id, cur, rec.snapshot())
		executed = append(executed, cur)
		rec.merge(cur, upd)

		if upd.Err != nil {
			rec.Error = upd.Err.Error()
			rec.Decision = DecisionError
			break
		}

		next, decision := transition(cur, rec)
		if decision != "" {
			rec.Decision = decision
			break
		}
		cur = next
	}

	duration := time.Since(start).Seconds()
	span.SetAttributes(attribute.String("sentinel.decision", string(rec.Decision)))
	if rec.Decision == DecisionError {
		span.SetStatus(codes.Error, rec.Error)
	}

	if rec.Assignment != nil && e.hooks.OnRoute != nil {
		e.hooks.OnRoute(rec.Assignment.Team, rec.Assignment.Fallback)
	}
	if e.hooks.OnComplete != nil {
		e.hooks.OnComplete(&CompleteEvent{
			TriageID: id,
			Decision: rec.Decision,
			Duration: duration,
			Stages:   executed,
		})
	}

	L.Info(ctx, "triage run complete",
		"decision", rec.Decision,
		"stages", len(executed),
		"duration", duration,
	)

	return rec
}

// transition picks the next stage after cur, or returns a terminal decision.
func transition(cur StageName, rec *Record) (StageName, Decision) {
	switch cur {
	case StageIntake:
		if rec.Error != "" {
			return "", DecisionError
		}
		if rec.Parsed == nil || !rec.Parsed.IsValid {
			return "", DecisionNeedsClarification
		}
		return StageDedup, ""
	case StageDedup:
		if rec.Dedup != nil && rec.Dedup.IsDuplicate {
			return "", DecisionDuplicate
		}
		return StageClassify, ""
	case StageClassify:
		return StageRoute, ""
	case StageRoute:
		return "", DecisionCreateTicket
	default:
		return "", DecisionError
	}
}

// runStage executes one stage, converting a panic into a failed Update.
func (e *Engine) runStage(ctx context.Context, L log.Logger, id string, name StageName, rec Record) (upd Update) {
	stage := e.stages[name]

	ctx, span := tracer.Start(ctx, "triage.stage", trace.WithAttributes(
		attribute.String("sentinel.triage.id", id),
		attribute.String("sentinel.stage", string(name)),
	))
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("%s: panic: %v", name, r)
			upd = Update{Err: err, Trace: fmt.Sprintf("%s ERROR: %v", stageLabel(name), err)}
		}

		d := time.Since(start).Seconds()
		failed := upd.Err != nil
		if failed {
			span.RecordError(upd.Err)
			span.SetStatus(codes.Error, upd.Err.Error())
			L.Error(ctx, upd.Err, "stage failed", "stage", name, "duration", d)
		} else {
			L.Info(ctx, "stage complete", "stage", name, "duration", d)
		}
		if e.hooks.OnStage != nil {
			e.hooks.OnStage(name, d, failed)
		}
		if upd.Similarity != nil && e.hooks.OnDedup != nil {
			e.hooks.OnDedup(*upd.Similarity)
		}
		span.End()
	}()

	return stage.Run(ctx, rec)
}

// snapshot returns a copy whose trace cannot alias the engine's.
func (r *Record) snapshot() Record {
	cp := *r
	cp.Trace = slices.Clone(r.Trace)
	return cp
}

// merge applies a stage update. Set fields are never cleared and the trace
// gets exactly one entry per executed stage.
func (r *Record) merge(stage StageName, u Update) {
	if u.NormalizedText != "" {
		r.NormalizedText = u.NormalizedText
	}
	if u.Parsed != nil {
		r.Parsed = u.Parsed
	}
	if u.Dedup != nil {
		r.Dedup = u.Dedup
	}
	if u.Classification != nil {
		r.Classification = u.Classification
	}
	if u.Assignment != nil {
		r.Assignment = u.Assignment
	}
	if u.Payload != nil {
		r.Payload = u.Payload
	}

	msg := u.Trace
	if msg == "" {
		msg = stageLabel(stage) + ": done"
		if u.Err != nil {
			msg = stageLabel(stage) + " ERROR: " + u.Err.Error()
		}
	}
	r.Trace = append(r.Trace, msg)
}

func stageLabel(s StageName) string {
	switch s {
	case StageIntake:
		return "INTAKE"
	case StageDedup:
		return "DEDUP"
	case StageClassify:
		return "LABELER"
	case StageRoute:
		return "ROUTER"
	}
	return string(s)
}
