package pipeline

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/TobiSchelling/milcheck/internal/analysis"
	"github.com/TobiSchelling/milcheck/internal/collect"
	"github.com/TobiSchelling/milcheck/internal/config"
	"github.com/TobiSchelling/milcheck/internal/fetch"
	"github.com/TobiSchelling/milcheck/internal/llm"
)

// StepResult holds the result of a single scan step.
type StepResult struct {
	Name    string
	Summary string
	Err     error
}

// ItemReport is the analysis outcome for one collected entry.
type ItemReport struct {
	Entry   collect.Entry
	Source  collect.SourceAssessment
	Verdict *analysis.AnalysisResponse
	Err     error
}

// Result holds the results of a scan run.
type Result struct {
	Steps []StepResult
	Items []ItemReport
}

// Flagged counts the items judged potentially misleading.
func (r *Result) Flagged() int {
	n := 0
	for _, it := range r.Items {
		if it.Verdict != nil && it.Verdict.IsPotentiallyMisleading {
			n++
		}
	}
	return n
}

// Pipeline wires configuration into an analysis pipeline and runs scans
// over collected news.
type Pipeline struct {
	cfg       *config.Config
	analyzer  *analysis.Pipeline
	watchlist *collect.Watchlist
	logger    *zap.Logger
}

// New builds the scorer named by cfg and the analysis pipeline around it.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Pipeline, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	scorer, err := BuildScorer(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	analyzer, err := analysis.New(scorer, Options(cfg), logger)
	if err != nil {
		return nil, fmt.Errorf("creating analysis pipeline: %w", err)
	}
	logger.Info("analysis pipeline ready",
		zap.String("scorer", scorer.Name()),
		zap.Float64("threshold", analyzer.Threshold()),
	)

	return &Pipeline{
		cfg:       cfg,
		analyzer:  analyzer,
		watchlist: collect.NewWatchlist(cfg.Sources.Watchlist),
		logger:    logger,
	}, nil
}

// Analyzer returns the underlying analysis pipeline.
func (p *Pipeline) Analyzer() *analysis.Pipeline {
	return p.analyzer
}

// AssessSource returns the watchlist note for the domain of rawURL.
func (p *Pipeline) AssessSource(rawURL string) collect.SourceAssessment {
	return p.watchlist.Assess(rawURL)
}

// Options converts configuration into analysis options.
func Options(cfg *config.Config) analysis.Options {
	s := cfg.Signals
	table := analysis.DefaultSignalTable().Merge(analysis.SignalTable{
		Version:            s.Version,
		EmotionalTerms:     s.EmotionalTerms,
		SensationalPhrases: s.SensationalPhrases,
		SyntheticMarkers:   s.SyntheticMarkers,
		PositiveTerms:      s.PositiveTerms,
		NegativeTerms:      s.NegativeTerms,
	})
	return analysis.Options{
		Threshold:   cfg.Analysis.Threshold,
		Calibration: cfg.Analysis.Calibration,
		Steepness:   cfg.Analysis.Steepness,
		Parallelism: cfg.Analysis.Parallelism,
		Table:       table,
	}
}

// BuildScorer creates the scorer for cfg.Scorer.Strategy. Model-backed
// strategies fall back to the heuristic scorer when no LLM provider is
// reachable.
func BuildScorer(ctx context.Context, cfg *config.Config, logger *zap.Logger) (analysis.Scorer, error) {
	heuristic := analysis.NewHeuristicScorer(cfg.Analysis.LabelCut)
	if cfg.Scorer.Strategy == config.StrategyHeuristic || cfg.Scorer.Strategy == "" {
		return heuristic, nil
	}

	provider := llm.CreateProvider(ctx, cfg.LLM, logger)
	if provider == nil {
		logger.Warn("no LLM provider available, using heuristic scorer",
			zap.String("strategy", cfg.Scorer.Strategy),
		)
		return heuristic, nil
	}
	return buildWithProvider(cfg, provider, logger)
}

func buildWithProvider(cfg *config.Config, provider llm.Provider, logger *zap.Logger) (analysis.Scorer, error) {
	heuristic := analysis.NewHeuristicScorer(cfg.Analysis.LabelCut)
	model, err := analysis.NewModelScorer(provider, analysis.ModelScorerOptions{
		Timeout:     cfg.Scorer.Timeout,
		MaxAttempts: cfg.Scorer.MaxAttempts,
		MaxInFlight: int64(cfg.Scorer.MaxInFlight),
		MaxTokens:   cfg.LLM.MaxTokens,
		LabelCut:    cfg.Analysis.LabelCut,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("creating model scorer: %w", err)
	}

	switch cfg.Scorer.Strategy {
	case config.StrategyModel:
		return model, nil
	case config.StrategyEnsemble:
		w := cfg.Scorer.ModelWeight
		return analysis.NewEnsembleScorer(cfg.Analysis.LabelCut,
			analysis.WeightedScorer{Scorer: heuristic, Weight: 1 - w},
			analysis.WeightedScorer{Scorer: model, Weight: w},
		)
	default:
		return nil, fmt.Errorf("unknown scorer strategy %q", cfg.Scorer.Strategy)
	}
}

// Scan collects recent articles, optionally fetches their full text, and
// analyzes each one.
func (p *Pipeline) Scan(ctx context.Context) *Result {
	r := &Result{}

	p.logger.Info("step 1/3: collecting articles")
	collected := collect.NewCollector(p.cfg, p.logger).Collect(ctx)
	r.Steps = append(r.Steps, StepResult{
		Name: "Collect",
		Summary: fmt.Sprintf("Found %d unique articles (%d total, %d duplicates)",
			len(collected.Entries), collected.TotalFound, collected.Duplicates),
	})
	if len(collected.Entries) == 0 {
		r.Steps = append(r.Steps,
			StepResult{Name: "Fetch", Summary: "Skipped (nothing collected)"},
			StepResult{Name: "Analyze", Err: fmt.Errorf("no articles collected")},
		)
		return r
	}
	entries := collected.Entries

	if p.cfg.Fetch.FullContent {
		p.logger.Info("step 2/3: fetching article content")
		fetcher := fetch.NewContentFetcher(p.cfg.Fetch.Timeout, p.logger)
		res := fetcher.FetchMissingContent(ctx, entries)
		r.Steps = append(r.Steps, StepResult{
			Name:    "Fetch",
			Summary: fmt.Sprintf("Fetched %d articles, %d failed", res.Fetched, res.Failed),
		})
	} else {
		r.Steps = append(r.Steps, StepResult{Name: "Fetch", Summary: "Skipped (fetch.full_content is off)"})
	}

	p.logger.Info("step 3/3: analyzing articles")
	r.Items = p.AnalyzeEntries(ctx, entries)

	failed := 0
	for _, it := range r.Items {
		if it.Err != nil {
			failed++
		}
	}
	r.Steps = append(r.Steps, StepResult{
		Name:    "Analyze",
		Summary: fmt.Sprintf("Analyzed %d articles: %d flagged, %d failed", len(r.Items)-failed, r.Flagged(), failed),
	})
	return r
}

// AnalyzeEntries analyzes entries concurrently. Text longer than the
// accepted maximum is cut to fit.
func (p *Pipeline) AnalyzeEntries(ctx context.Context, entries []collect.Entry) []ItemReport {
	reqs := make([]analysis.AnalysisRequest, len(entries))
	for i, e := range entries {
		reqs[i] = analysis.NewRequest(truncateRunes(e.Text(), analysis.MaxContentLength))
	}

	results := p.analyzer.AnalyzeBatch(ctx, reqs, p.cfg.Analysis.Parallelism)
	items := make([]ItemReport, len(entries))
	for i, res := range results {
		items[i] = ItemReport{
			Entry:   entries[i],
			Source:  p.watchlist.Assess(entries[i].URL),
			Verdict: res.Response,
			Err:     res.Err,
		}
	}
	return items
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
