package analysis

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/TobiSchelling/milcheck/internal/llm"
)

const maxPromptRunes = 4000

const modelPrompt = `You are a content-integrity classifier. Judge whether the text below is likely misleading (manipulative, sensational, deceptive) or machine-generated.

Reply with a JSON object only:
{"misleading_probability": <number between 0 and 1>, "reason": "<one short sentence>"}

Lexical hints (computed, may be noisy):
- emotional term density: %.3f
- sensational phrases: %d
- exclamation ratio: %.3f
- all-caps word ratio: %.3f
- stock AI phrases: %d
- style uniformity: %.3f

Text:
"""
%s
"""`

var modelReplySchema = llm.MustSchema(`{
  "type": "object",
  "required": ["misleading_probability"],
  "properties": {
    "misleading_probability": {"type": "number", "minimum": 0, "maximum": 1},
    "reason": {"type": "string"}
  }
}`)

type modelReply struct {
	MisleadingProbability float64 `json:"misleading_probability"`
	Reason                string  `json:"reason"`
}

// ModelScorerOptions tunes the model-backed scorer.
type ModelScorerOptions struct {
	Timeout     time.Duration
	MaxAttempts int
	MaxInFlight int64
	MaxTokens   int
	LabelCut    float64
	Backoff     time.Duration
}

// ModelScorer asks an LLM for a misleading probability. Every call is
// bounded by a timeout, retried within that budget, and holds one slot of
// a weighted semaphore for its whole duration.
type ModelScorer struct {
	provider  llm.Provider
	sem       *semaphore.Weighted
	maxTokens int
	labelCut  float64
	logger    *zap.Logger
}

// NewModelScorer wraps provider. The provider must be configured.
func NewModelScorer(provider llm.Provider, opts ModelScorerOptions, logger *zap.Logger) (*ModelScorer, error) {
	if provider == nil || !provider.IsConfigured() {
		return nil, fmt.Errorf("model scorer: no configured LLM provider")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 20 * time.Second
	}
	if opts.MaxInFlight < 1 {
		opts.MaxInFlight = 4
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 256
	}
	if opts.LabelCut <= 0 || opts.LabelCut >= 1 {
		opts.LabelCut = DefaultLabelCut
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ModelScorer{
		provider:  llm.NewResilientProvider(provider, opts.Timeout, opts.MaxAttempts, opts.Backoff),
		sem:       semaphore.NewWeighted(opts.MaxInFlight),
		maxTokens: opts.MaxTokens,
		labelCut:  opts.LabelCut,
		logger:    logger.Named("model_scorer"),
	}, nil
}

func (m *ModelScorer) Name() string { return "model" }

func (m *ModelScorer) Score(ctx context.Context, content string, signals SignalSet) (RawScore, error) {
	if err := m.sem.Acquire(ctx, 1); err != nil {
		return RawScore{}, fmt.Errorf("%w: waiting for model slot: %v", ErrScoringUnavailable, err)
	}
	defer m.sem.Release(1)

	prompt := buildModelPrompt(content, signals)
	text, err := m.provider.Generate(ctx, prompt, m.maxTokens)
	if err != nil {
		return RawScore{}, fmt.Errorf("%w: %v", ErrScoringUnavailable, err)
	}

	var reply modelReply
	if err := modelReplySchema.Decode(text, &reply); err != nil {
		m.logger.Debug("rejected model reply", zap.String("reply", truncateRunes(text, 200)), zap.Error(err))
		return RawScore{}, fmt.Errorf("%w: %v", ErrScoringUnavailable, err)
	}
	if math.IsNaN(reply.MisleadingProbability) || math.IsInf(reply.MisleadingProbability, 0) {
		return RawScore{}, fmt.Errorf("%w: non-finite probability", ErrScoringUnavailable)
	}

	m.logger.Debug("model verdict",
		zap.Float64("probability", reply.MisleadingProbability),
		zap.String("reason", reply.Reason),
	)
	value := clamp01(reply.MisleadingProbability)
	return RawScore{Value: value, Label: LabelFor(value, m.labelCut)}, nil
}

func buildModelPrompt(content string, s SignalSet) string {
	return fmt.Sprintf(modelPrompt,
		s.EmotionalDensity,
		s.SensationalPhraseCount,
		s.ExclamationRatio,
		s.CapsRatio,
		s.SyntheticMarkerCount,
		s.StyleUniformity,
		truncateRunes(strings.TrimSpace(content), maxPromptRunes),
	)
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
