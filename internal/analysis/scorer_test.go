package analysis

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fixedScorer always returns the same value or error.
type fixedScorer struct {
	name  string
	value float64
	err   error
}

func (f fixedScorer) Name() string { return f.name }

func (f fixedScorer) Score(context.Context, string, SignalSet) (RawScore, error) {
	if f.err != nil {
		return RawScore{}, f.err
	}
	return RawScore{Value: f.value, Label: LabelFor(f.value, DefaultLabelCut)}, nil
}

// replyProvider is an llm.Provider returning a canned reply.
type replyProvider struct {
	reply string
	err   error
	delay time.Duration

	inFlight atomic.Int32
	maxSeen  atomic.Int32
}

func (p *replyProvider) Generate(ctx context.Context, _ string, _ int) (string, error) {
	n := p.inFlight.Add(1)
	defer p.inFlight.Add(-1)
	for {
		seen := p.maxSeen.Load()
		if n <= seen || p.maxSeen.CompareAndSwap(seen, n) {
			break
		}
	}
	if p.delay > 0 {
		select {
		case <-time.After(p.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return p.reply, p.err
}

func (p *replyProvider) IsConfigured() bool { return true }

// hangingProvider blocks until its context is done.
type hangingProvider struct{}

func (hangingProvider) Generate(ctx context.Context, _ string, _ int) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func (hangingProvider) IsConfigured() bool { return true }

type offlineProvider struct{}

func (offlineProvider) Generate(context.Context, string, int) (string, error) {
	return "", errors.New("offline")
}

func (offlineProvider) IsConfigured() bool { return false }

func extract(text string) SignalSet {
	return NewExtractor(DefaultSignalTable()).Extract(text)
}

func TestHeuristicScorerEmotionalText(t *testing.T) {
	h := NewHeuristicScorer(0)
	raw, err := h.Score(context.Background(), "", extract("Shocking news! This is a fake and misleading story."))
	require.NoError(t, err)
	assert.InDelta(t, 0.68, raw.Value, 1e-9)
	assert.Equal(t, LabelMisleading, raw.Label)
}

func TestHeuristicScorerNeutralText(t *testing.T) {
	h := NewHeuristicScorer(0.5)
	raw, err := h.Score(context.Background(), "", extract("The city council met on Tuesday to discuss the new budget for public parks and libraries."))
	require.NoError(t, err)
	assert.Zero(t, raw.Value)
	assert.Equal(t, LabelNotMisleading, raw.Label)
}

func TestHeuristicScorerLabelUsesItsOwnCut(t *testing.T) {
	s := extract("Shocking news! This is a fake and misleading story.")
	raw, err := NewHeuristicScorer(0.9).Score(context.Background(), "", s)
	require.NoError(t, err)
	assert.Equal(t, LabelNotMisleading, raw.Label)
}

func TestHeuristicScorerStaysInRange(t *testing.T) {
	h := NewHeuristicScorer(0.5)
	extreme := SignalSet{
		EmotionalDensity:       1,
		SensationalPhraseCount: 50,
		ExclamationRatio:       1,
		CapsRatio:              1,
		SyntheticMarkerCount:   50,
		StyleUniformity:        1,
	}
	raw, err := h.Score(context.Background(), "", extreme)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, raw.Value, 1e-9)
	assert.LessOrEqual(t, raw.Value, 1.0)
	assert.False(t, math.IsNaN(raw.Value))
}

func TestContributionsOrder(t *testing.T) {
	c := Contributions(extract("Shocking news! This is a fake and misleading story."))
	require.Len(t, c, 5)
	assert.Equal(t, GroupEmotional, c[0].Signal)
	assert.Equal(t, GroupExclamation, c[1].Signal)
	// Zero-weight groups keep their fixed order.
	assert.Equal(t, []string{GroupSensational, GroupSynthetic, GroupCaps},
		[]string{c[2].Signal, c[3].Signal, c[4].Signal})
}

func TestEnsembleWeightedMean(t *testing.T) {
	e, err := NewEnsembleScorer(0.5,
		WeightedScorer{Scorer: fixedScorer{name: "a", value: 0.2}, Weight: 1},
		WeightedScorer{Scorer: fixedScorer{name: "b", value: 0.8}, Weight: 3},
	)
	require.NoError(t, err)
	assert.Equal(t, "ensemble(a,b)", e.Name())

	raw, err := e.Score(context.Background(), "", SignalSet{})
	require.NoError(t, err)
	assert.InDelta(t, 0.65, raw.Value, 1e-9)
	assert.Equal(t, LabelMisleading, raw.Label)
}

func TestEnsembleFailsWhenAnyMemberFails(t *testing.T) {
	e, err := NewEnsembleScorer(0.5,
		WeightedScorer{Scorer: fixedScorer{name: "ok", value: 0.2}, Weight: 1},
		WeightedScorer{Scorer: fixedScorer{name: "down", err: errors.New("connection refused")}, Weight: 1},
	)
	require.NoError(t, err)

	_, err = e.Score(context.Background(), "", SignalSet{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrScoringUnavailable)
	assert.Contains(t, err.Error(), "down")
}

func TestEnsembleNeedsMembers(t *testing.T) {
	_, err := NewEnsembleScorer(0.5, WeightedScorer{Scorer: fixedScorer{name: "a"}, Weight: 0})
	assert.Error(t, err)
}

func TestModelScorerParsesReply(t *testing.T) {
	p := &replyProvider{reply: "```json\n{\"misleading_probability\": 0.8, \"reason\": \"loaded language\"}\n```"}
	m, err := NewModelScorer(p, ModelScorerOptions{Timeout: time.Second}, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, "model", m.Name())

	raw, err := m.Score(context.Background(), "some content here", SignalSet{})
	require.NoError(t, err)
	assert.InDelta(t, 0.8, raw.Value, 1e-9)
	assert.Equal(t, LabelMisleading, raw.Label)
}

func TestModelScorerRejectsBadReplies(t *testing.T) {
	for _, reply := range []string{
		`not json`,
		`{"reason": "no probability"}`,
		`{"misleading_probability": 1.5}`,
		`{"misleading_probability": "high"}`,
	} {
		t.Run(reply, func(t *testing.T) {
			m, err := NewModelScorer(&replyProvider{reply: reply}, ModelScorerOptions{Timeout: time.Second, MaxAttempts: 1}, zap.NewNop())
			require.NoError(t, err)

			_, err = m.Score(context.Background(), "some content here", SignalSet{})
			assert.ErrorIs(t, err, ErrScoringUnavailable)
		})
	}
}

func TestModelScorerBackendError(t *testing.T) {
	p := &replyProvider{err: errors.New("503 from backend")}
	m, err := NewModelScorer(p, ModelScorerOptions{Timeout: time.Second, MaxAttempts: 2, Backoff: time.Millisecond}, zap.NewNop())
	require.NoError(t, err)

	_, err = m.Score(context.Background(), "some content here", SignalSet{})
	assert.ErrorIs(t, err, ErrScoringUnavailable)
}

func TestModelScorerTimesOut(t *testing.T) {
	m, err := NewModelScorer(hangingProvider{}, ModelScorerOptions{Timeout: 50 * time.Millisecond, MaxAttempts: 1}, zap.NewNop())
	require.NoError(t, err)

	start := time.Now()
	_, err = m.Score(context.Background(), "some content here", SignalSet{})
	assert.ErrorIs(t, err, ErrScoringUnavailable)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestModelScorerRequiresConfiguredProvider(t *testing.T) {
	_, err := NewModelScorer(offlineProvider{}, ModelScorerOptions{}, nil)
	assert.Error(t, err)
	_, err = NewModelScorer(nil, ModelScorerOptions{}, nil)
	assert.Error(t, err)
}

func TestModelScorerBoundsConcurrency(t *testing.T) {
	p := &replyProvider{reply: `{"misleading_probability": 0.1}`, delay: 20 * time.Millisecond}
	m, err := NewModelScorer(p, ModelScorerOptions{Timeout: 5 * time.Second, MaxInFlight: 2}, zap.NewNop())
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.Score(context.Background(), "some content here", SignalSet{})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, p.maxSeen.Load(), int32(2))
	assert.Zero(t, p.inFlight.Load())
}

func TestModelScorerCancelledWhileWaitingForSlot(t *testing.T) {
	p := &replyProvider{reply: `{"misleading_probability": 0.1}`, delay: 200 * time.Millisecond}
	m, err := NewModelScorer(p, ModelScorerOptions{Timeout: 5 * time.Second, MaxInFlight: 1}, zap.NewNop())
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = m.Score(context.Background(), "some content here", SignalSet{})
	}()

	// Wait until the first call holds the only slot.
	require.Eventually(t, func() bool { return p.inFlight.Load() == 1 }, time.Second, time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = m.Score(ctx, "some content here", SignalSet{})
	assert.ErrorIs(t, err, ErrScoringUnavailable)

	<-done
}

func TestBuildModelPromptTruncates(t *testing.T) {
	long := make([]rune, maxPromptRunes+500)
	for i := range long {
		long[i] = 'é'
	}
	prompt := buildModelPrompt(string(long), SignalSet{})
	assert.NotContains(t, prompt, string(long))
	assert.Contains(t, prompt, string(long[:maxPromptRunes]))
}
