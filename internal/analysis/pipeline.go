package analysis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/felixgeelhaar/statekit"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Pipeline states.
const (
	StateReceived  = "received"
	StateValidated = "validated"
	StateScored    = "scored"
	StateDone      = "done"
	StateFailed    = "failed"
)

// Pipeline events.
const (
	eventValidated   = "validated"
	eventRejected    = "rejected"
	eventScored      = "scored"
	eventScoreFailed = "score_failed"
	eventCompleted   = "completed"
)

// Failure stages reported by InternalError.
const (
	StageScore      = "score"
	StageTransition = "transition"
)

// InternalError is a system-side failure. Its message is for operators and
// must not be shown to callers.
type InternalError struct {
	Stage string
	Err   error
}

func (e *InternalError) Error() string {
	return fmt.Sprintf("analysis failed at %s: %v", e.Stage, e.Err)
}

func (e *InternalError) Unwrap() error { return e.Err }

// Options is the immutable configuration of a Pipeline.
type Options struct {
	Threshold   float64
	Calibration string
	Steepness   float64
	Parallelism int
	Table       SignalTable
}

type runContext struct{}

// Pipeline validates, extracts, scores, calibrates and explains one piece
// of content per call. It holds no per-request state and is safe for
// concurrent use.
type Pipeline struct {
	scorer      Scorer
	extractor   *Extractor
	calibrator  *Calibrator
	parallelism int
	newRun      func() *statekit.Interpreter[runContext]
	logger      *zap.Logger
}

// New builds a pipeline around scorer.
func New(scorer Scorer, opts Options, logger *zap.Logger) (*Pipeline, error) {
	if scorer == nil {
		return nil, errors.New("pipeline needs a scorer")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Threshold == 0 {
		opts.Threshold = DefaultThreshold
	}
	if opts.Parallelism < 1 {
		opts.Parallelism = 1
	}
	if opts.Table.Version == "" && len(opts.Table.EmotionalTerms) == 0 {
		opts.Table = DefaultSignalTable()
	}

	calibrator, err := NewCalibrator(opts.Threshold, opts.Calibration, opts.Steepness, logger)
	if err != nil {
		return nil, err
	}

	builder := statekit.NewMachine[runContext]("analysis").
		WithInitial(statekit.StateID(StateReceived)).
		WithContext(runContext{})

	builder.State(StateReceived).
		On(eventValidated).Target(StateValidated).
		On(eventRejected).Target(StateFailed).
		Done()

	builder.State(StateValidated).
		On(eventScored).Target(StateScored).
		On(eventScoreFailed).Target(StateFailed).
		Done()

	builder.State(StateScored).
		On(eventCompleted).Target(StateDone).
		Done()

	builder.State(StateDone).Done()
	builder.State(StateFailed).Done()

	machine, err := builder.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build analysis state machine: %w", err)
	}

	return &Pipeline{
		scorer:      scorer,
		extractor:   NewExtractor(opts.Table),
		calibrator:  calibrator,
		parallelism: opts.Parallelism,
		newRun: func() *statekit.Interpreter[runContext] {
			run := statekit.NewInterpreter(machine)
			run.Start()
			return run
		},
		logger: logger.Named("pipeline"),
	}, nil
}

// Threshold returns the decision threshold.
func (p *Pipeline) Threshold() float64 { return p.calibrator.Threshold() }

// ScorerName returns the name of the configured scorer.
func (p *Pipeline) ScorerName() string { return p.scorer.Name() }

// Signals extracts the signal set for already-validated content.
func (p *Pipeline) Signals(content string) SignalSet {
	return p.extractor.Extract(content)
}

// Analyze runs one request through the pipeline. The error is either a
// *ValidationReport or an *InternalError.
func (p *Pipeline) Analyze(ctx context.Context, req AnalysisRequest) (*AnalysisResponse, error) {
	start := time.Now()
	run := p.newRun()

	content, report := ValidateContent(req.Content)
	if report != nil {
		if err := advance(run, eventRejected, StateFailed); err != nil {
			return nil, err
		}
		p.logger.Debug("content rejected", zap.Int("violations", len(report.Detail)))
		return nil, report
	}
	if err := advance(run, eventValidated, StateValidated); err != nil {
		return nil, err
	}

	signals := p.extractor.Extract(content)
	raw, err := p.scorer.Score(ctx, content, signals)
	if err != nil {
		if terr := advance(run, eventScoreFailed, StateFailed); terr != nil {
			return nil, terr
		}
		p.logger.Error("scoring failed",
			zap.String("scorer", p.scorer.Name()),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err),
		)
		if !errors.Is(err, ErrScoringUnavailable) {
			err = fmt.Errorf("%w: %v", ErrScoringUnavailable, err)
		}
		return nil, &InternalError{Stage: StageScore, Err: err}
	}
	if err := advance(run, eventScored, StateScored); err != nil {
		return nil, err
	}

	isMisleading, confidence := p.calibrator.Calibrate(raw)
	explanation := Explain(SummaryOf(signals), signals, isMisleading, confidence)

	if err := advance(run, eventCompleted, StateDone); err != nil {
		return nil, err
	}

	p.logger.Debug("analysis complete",
		zap.String("scorer", p.scorer.Name()),
		zap.Float64("raw", raw.Value),
		zap.String("label", string(raw.Label)),
		zap.Float64("confidence", confidence),
		zap.Bool("misleading", isMisleading),
		zap.Duration("elapsed", time.Since(start)),
	)

	return &AnalysisResponse{
		IsPotentiallyMisleading: isMisleading,
		ConfidenceScore:         confidence,
		Explanation:             explanation,
	}, nil
}

// BatchResult is the outcome of one request in a batch.
type BatchResult struct {
	Response *AnalysisResponse
	Err      error
}

// AnalyzeBatch analyzes requests concurrently, at most parallelism at a
// time, and returns results in input order. A failed item does not stop
// the others. parallelism below 1 uses the pipeline default.
func (p *Pipeline) AnalyzeBatch(ctx context.Context, reqs []AnalysisRequest, parallelism int) []BatchResult {
	if parallelism < 1 {
		parallelism = p.parallelism
	}
	results := make([]BatchResult, len(reqs))

	var g errgroup.Group
	g.SetLimit(parallelism)
	for i, req := range reqs {
		g.Go(func() error {
			resp, err := p.Analyze(ctx, req)
			results[i] = BatchResult{Response: resp, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func advance(run *statekit.Interpreter[runContext], event, want string) error {
	run.Send(statekit.Event{Type: statekit.EventType(event)})
	if got := string(run.State().Value); got != want {
		return &InternalError{
			Stage: StageTransition,
			Err:   fmt.Errorf("event %q left pipeline in %q, expected %q", event, got, want),
		}
	}
	return nil
}
