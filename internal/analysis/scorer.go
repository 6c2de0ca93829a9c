package analysis

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

// DefaultLabelCut is the cut line scorers use for their advisory label.
const DefaultLabelCut = 0.5

// ErrScoringUnavailable is returned when a scorer cannot produce a score,
// for example because its model backend is down or timed out.
var ErrScoringUnavailable = errors.New("scoring unavailable")

// Scorer turns content and its signals into a raw score. Implementations
// must return a finite value in [0,1], derive the label from the value, and
// return the same score for the same input.
type Scorer interface {
	Name() string
	Score(ctx context.Context, content string, signals SignalSet) (RawScore, error)
}

// Contribution names a signal group and its weighted share of the
// heuristic score.
type Contribution struct {
	Signal string
	Weight float64
}

// Signal groups used in contributions and explanations.
const (
	GroupEmotional   = "emotional"
	GroupSensational = "sensational"
	GroupExclamation = "exclamation"
	GroupCaps        = "caps"
	GroupSynthetic   = "synthetic"
)

type heuristicTerms struct {
	emotional, sensational, exclamation, caps float64
	markers, uniformity                       float64
}

func termsFor(s SignalSet) heuristicTerms {
	return heuristicTerms{
		emotional:   0.55 * clamp01(s.EmotionalDensity/0.15),
		sensational: 0.20 * clamp01(float64(s.SensationalPhraseCount)/2),
		exclamation: 0.13 * clamp01(s.ExclamationRatio/0.5),
		caps:        0.12 * clamp01(s.CapsRatio/0.3),
		markers:     0.65 * clamp01(float64(s.SyntheticMarkerCount)/3),
		uniformity:  0.35 * clamp01(2*(s.StyleUniformity-0.5)),
	}
}

func (t heuristicTerms) manipulation() float64 {
	return clamp01(t.emotional + t.sensational + t.exclamation + t.caps)
}

func (t heuristicTerms) synthetic() float64 {
	return clamp01(t.markers + t.uniformity)
}

// Contributions ranks the signal groups of s by weighted strength,
// strongest first. Ties keep the fixed group order.
func Contributions(s SignalSet) []Contribution {
	t := termsFor(s)
	out := []Contribution{
		{Signal: GroupEmotional, Weight: t.emotional},
		{Signal: GroupSensational, Weight: t.sensational},
		{Signal: GroupSynthetic, Weight: t.synthetic()},
		{Signal: GroupExclamation, Weight: t.exclamation},
		{Signal: GroupCaps, Weight: t.caps},
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Weight > out[j].Weight })
	return out
}

// HeuristicScorer is a rule engine over the extracted signals. It combines
// a manipulation score and a synthetic-text score as independent evidence:
// value = 1 - (1-manipulation)*(1-synthetic).
type HeuristicScorer struct {
	LabelCut float64
}

// NewHeuristicScorer creates a heuristic scorer with the given label cut.
func NewHeuristicScorer(labelCut float64) *HeuristicScorer {
	if labelCut <= 0 || labelCut >= 1 {
		labelCut = DefaultLabelCut
	}
	return &HeuristicScorer{LabelCut: labelCut}
}

func (h *HeuristicScorer) Name() string { return "heuristic" }

// Score never fails.
func (h *HeuristicScorer) Score(_ context.Context, _ string, signals SignalSet) (RawScore, error) {
	t := termsFor(signals)
	value := clamp01(1 - (1-t.manipulation())*(1-t.synthetic()))
	return RawScore{Value: value, Label: LabelFor(value, h.LabelCut)}, nil
}

// WeightedScorer is an ensemble member.
type WeightedScorer struct {
	Scorer Scorer
	Weight float64
}

// EnsembleScorer averages its members' values by weight. If any member
// fails the ensemble fails, so results never depend on which backends
// happened to be reachable.
type EnsembleScorer struct {
	members  []WeightedScorer
	labelCut float64
}

// NewEnsembleScorer creates an ensemble. Members with a non-positive
// weight are dropped.
func NewEnsembleScorer(labelCut float64, members ...WeightedScorer) (*EnsembleScorer, error) {
	var kept []WeightedScorer
	for _, m := range members {
		if m.Scorer != nil && m.Weight > 0 {
			kept = append(kept, m)
		}
	}
	if len(kept) == 0 {
		return nil, fmt.Errorf("ensemble needs at least one weighted scorer")
	}
	if labelCut <= 0 || labelCut >= 1 {
		labelCut = DefaultLabelCut
	}
	return &EnsembleScorer{members: kept, labelCut: labelCut}, nil
}

func (e *EnsembleScorer) Name() string {
	name := "ensemble("
	for i, m := range e.members {
		if i > 0 {
			name += ","
		}
		name += m.Scorer.Name()
	}
	return name + ")"
}

func (e *EnsembleScorer) Score(ctx context.Context, content string, signals SignalSet) (RawScore, error) {
	var sum, total float64
	for _, m := range e.members {
		raw, err := m.Scorer.Score(ctx, content, signals)
		if err != nil {
			if errors.Is(err, ErrScoringUnavailable) {
				return RawScore{}, err
			}
			return RawScore{}, fmt.Errorf("%w: %s: %v", ErrScoringUnavailable, m.Scorer.Name(), err)
		}
		sum += m.Weight * raw.Value
		total += m.Weight
	}
	value := clamp01(sum / total)
	return RawScore{Value: value, Label: LabelFor(value, e.labelCut)}, nil
}
