package analysis

import (
	"math"
	"regexp"
	"strings"
	"unicode"
)

// SignalTableVersion identifies the built-in signal definitions.
const SignalTableVersion = "v1"

// Signal names as they appear in SignalSet.Map and in JSON output.
const (
	SignalWordCount              = "word_count"
	SignalSentenceCount          = "sentence_count"
	SignalEmotionalTerms         = "emotional_terms"
	SignalEmotionalDensity       = "emotional_density"
	SignalSensationalPhraseCount = "sensational_phrase_count"
	SignalHasSensationalPhrases  = "has_sensational_phrases"
	SignalExclamationRatio       = "exclamation_ratio"
	SignalCapsRatio              = "caps_ratio"
	SignalSentimentPolarity      = "sentiment_polarity"
	SignalSyntheticMarkerCount   = "synthetic_marker_count"
	SignalStyleUniformity        = "style_uniformity"
	SignalLexicalDiversity       = "lexical_diversity"
)

// polarityAlpha normalizes raw sentiment sums into (-1, 1), as VADER does.
const polarityAlpha = 15.0

var (
	sentenceSplit = regexp.MustCompile(`[.!?]+`)
	dashPattern   = regexp.MustCompile(`\s[-\x{2013}\x{2014}]\s|\x{2014}`)
)

// SignalTable holds the lexicons the extractor matches against. Terms are
// single lowercase words; phrases and markers are lowercase substrings.
type SignalTable struct {
	Version            string
	EmotionalTerms     []string
	SensationalPhrases []string
	SyntheticMarkers   []string
	PositiveTerms      []string
	NegativeTerms      []string
}

// DefaultSignalTable returns a fresh copy of the built-in table.
func DefaultSignalTable() SignalTable {
	return SignalTable{
		Version: SignalTableVersion,
		EmotionalTerms: []string{
			"shocking", "shocked", "misleading", "fake", "unreliable",
			"outrageous", "outrage", "terrifying", "terrified", "horrifying",
			"horrific", "disgusting", "sickening", "furious", "devastating",
			"unbelievable", "insane", "scandal", "scandalous", "catastrophic",
			"disaster", "evil", "corrupt", "lies", "liar", "hoax", "fraud",
			"rigged", "destroy", "destroyed", "panic", "chaos", "betrayal",
			"criminal", "deadly", "explosive", "slammed", "brutal",
			"heartbreaking", "alarming", "treason", "nightmare", "apocalypse",
		},
		SensationalPhrases: []string{
			"you won't believe", "what happens next", "breaking news",
			"they don't want you to know", "doctors hate", "the truth about",
			"mainstream media won't", "before it's deleted", "wake up",
			"must see", "100% proven", "miracle cure", "secret revealed",
			"click here", "this will change everything", "before it's too late",
			"share this", "mind-blowing", "exposed",
		},
		SyntheticMarkers: []string{
			"as an ai language model", "in conclusion", "it is important to note",
			"it's important to note", "it is worth noting", "delve into",
			"in today's fast-paced world", "rich tapestry", "furthermore",
			"moreover", "in summary", "plays a crucial role", "a testament to",
			"navigate the complexities", "ever-evolving landscape",
			"unlock the potential", "game-changer", "seamlessly",
		},
		PositiveTerms: []string{
			"good", "great", "excellent", "amazing", "wonderful", "best",
			"love", "happy", "success", "win", "incredible", "fantastic",
			"perfect", "brilliant", "hope",
		},
		NegativeTerms: []string{
			"bad", "terrible", "awful", "worst", "hate", "angry", "fail",
			"failure", "lose", "horrible", "disaster", "evil", "corrupt",
			"shocking", "fake", "lies", "fraud", "deadly", "destroy",
		},
	}
}

// Merge returns t with every non-empty list in override replacing its
// counterpart.
func (t SignalTable) Merge(override SignalTable) SignalTable {
	if override.Version != "" {
		t.Version = override.Version
	}
	if len(override.EmotionalTerms) > 0 {
		t.EmotionalTerms = override.EmotionalTerms
	}
	if len(override.SensationalPhrases) > 0 {
		t.SensationalPhrases = override.SensationalPhrases
	}
	if len(override.SyntheticMarkers) > 0 {
		t.SyntheticMarkers = override.SyntheticMarkers
	}
	if len(override.PositiveTerms) > 0 {
		t.PositiveTerms = override.PositiveTerms
	}
	if len(override.NegativeTerms) > 0 {
		t.NegativeTerms = override.NegativeTerms
	}
	return t
}

// SignalSet is the fixed set of textual signals derived from one content
// string.
type SignalSet struct {
	Version                string  `json:"version"`
	WordCount              int     `json:"word_count"`
	SentenceCount          int     `json:"sentence_count"`
	EmotionalTerms         int     `json:"emotional_terms"`
	EmotionalDensity       float64 `json:"emotional_density"`
	SensationalPhraseCount int     `json:"sensational_phrase_count"`
	HasSensationalPhrases  bool    `json:"has_sensational_phrases"`
	ExclamationRatio       float64 `json:"exclamation_ratio"`
	CapsRatio              float64 `json:"caps_ratio"`
	SentimentPolarity      float64 `json:"sentiment_polarity"`
	SyntheticMarkerCount   int     `json:"synthetic_marker_count"`
	StyleUniformity        float64 `json:"style_uniformity"`
	LexicalDiversity       float64 `json:"lexical_diversity"`
}

// Map returns the signals keyed by name.
func (s SignalSet) Map() map[string]any {
	return map[string]any{
		SignalWordCount:              s.WordCount,
		SignalSentenceCount:          s.SentenceCount,
		SignalEmotionalTerms:         s.EmotionalTerms,
		SignalEmotionalDensity:       s.EmotionalDensity,
		SignalSensationalPhraseCount: s.SensationalPhraseCount,
		SignalHasSensationalPhrases:  s.HasSensationalPhrases,
		SignalExclamationRatio:       s.ExclamationRatio,
		SignalCapsRatio:              s.CapsRatio,
		SignalSentimentPolarity:      s.SentimentPolarity,
		SignalSyntheticMarkerCount:   s.SyntheticMarkerCount,
		SignalStyleUniformity:        s.StyleUniformity,
		SignalLexicalDiversity:       s.LexicalDiversity,
	}
}

// Extractor computes SignalSets. It is immutable after construction and
// safe for concurrent use.
type Extractor struct {
	version     string
	emotional   map[string]struct{}
	positive    map[string]struct{}
	negative    map[string]struct{}
	sensational []string
	synthetic   []string
}

// NewExtractor compiles a signal table.
func NewExtractor(table SignalTable) *Extractor {
	version := table.Version
	if version == "" {
		version = SignalTableVersion
	}
	return &Extractor{
		version:     version,
		emotional:   wordSet(table.EmotionalTerms),
		positive:    wordSet(table.PositiveTerms),
		negative:    wordSet(table.NegativeTerms),
		sensational: phraseList(table.SensationalPhrases),
		synthetic:   phraseList(table.SyntheticMarkers),
	}
}

// Extract derives the signal set for content.
func (e *Extractor) Extract(content string) SignalSet {
	words := splitWords(content)
	lower := make([]string, len(words))
	for i, w := range words {
		lower[i] = strings.ToLower(w)
	}
	normalized := normalizeText(content)
	sentences := splitSentences(content)

	s := SignalSet{
		Version:       e.version,
		WordCount:     len(words),
		SentenceCount: len(sentences),
	}

	pos, neg := 0, 0
	for _, w := range lower {
		if _, ok := e.emotional[w]; ok {
			s.EmotionalTerms++
		}
		if _, ok := e.positive[w]; ok {
			pos++
		}
		if _, ok := e.negative[w]; ok {
			neg++
		}
	}
	if len(words) > 0 {
		s.EmotionalDensity = float64(s.EmotionalTerms) / float64(len(words))
	}

	s.SensationalPhraseCount = countPhrases(normalized, e.sensational)
	s.HasSensationalPhrases = s.SensationalPhraseCount > 0
	s.SyntheticMarkerCount = countPhrases(normalized, e.synthetic)

	if len(sentences) > 0 {
		s.ExclamationRatio = clamp01(float64(strings.Count(content, "!")) / float64(len(sentences)))
	}
	s.CapsRatio = capsRatio(words)

	diff := float64(pos - neg)
	s.SentimentPolarity = diff / math.Sqrt(diff*diff+polarityAlpha)

	s.StyleUniformity = styleUniformity(content, sentences, lower)
	s.LexicalDiversity = mattr(lower, 200)
	return s
}

func wordSet(terms []string) map[string]struct{} {
	set := make(map[string]struct{}, len(terms))
	for _, t := range terms {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" {
			set[t] = struct{}{}
		}
	}
	return set
}

func phraseList(phrases []string) []string {
	out := make([]string, 0, len(phrases))
	for _, p := range phrases {
		p = strings.Join(strings.Fields(strings.ToLower(p)), " ")
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func countPhrases(normalized string, phrases []string) int {
	n := 0
	for _, p := range phrases {
		n += strings.Count(normalized, p)
	}
	return n
}

// normalizeText lowercases, straightens curly apostrophes and collapses
// whitespace so phrase matching is stable.
func normalizeText(text string) string {
	text = strings.ToLower(text)
	text = strings.NewReplacer("’", "'", "‘", "'").Replace(text)
	return strings.Join(strings.Fields(text), " ")
}

func splitWords(text string) []string {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\'' && r != '’'
	})
	words := fields[:0]
	for _, f := range fields {
		f = strings.Trim(f, "'’")
		if f != "" {
			words = append(words, f)
		}
	}
	return words
}

func splitSentences(text string) []string {
	var out []string
	for _, s := range sentenceSplit.Split(text, -1) {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func capsRatio(words []string) float64 {
	eligible, upper := 0, 0
	for _, w := range words {
		letters, caps := 0, 0
		for _, r := range w {
			if unicode.IsLetter(r) {
				letters++
				if unicode.IsUpper(r) {
					caps++
				}
			}
		}
		if letters < 3 {
			continue
		}
		eligible++
		if caps == letters {
			upper++
		}
	}
	if eligible == 0 {
		return 0
	}
	return float64(upper) / float64(eligible)
}

// styleUniformity is high for prose with even sentence lengths, sparse
// punctuation and a narrow vocabulary. It needs at least three sentences.
func styleUniformity(text string, sentences, words []string) float64 {
	if len(sentences) < 3 || len(words) == 0 {
		return 0
	}
	lengths := make([]float64, len(sentences))
	for i, s := range sentences {
		lengths[i] = float64(len(splitWords(s)))
	}
	_, sd := meanStd(lengths)
	punct := strings.Count(text, ",") + strings.Count(text, ";") + len(dashPattern.FindAllStringIndex(text, -1))
	punctRate := float64(punct) / float64(len(words))

	a := clamp01((8.0 - sd) / 8.0)
	b := clamp01((0.04 - punctRate) / 0.04)
	c := clamp01((0.62 - mattr(words, 200)) / 0.30)
	return clamp01(0.55*a + 0.20*b + 0.25*c)
}

// mattr is the moving-average type/token ratio over windows of n words.
func mattr(words []string, n int) float64 {
	if len(words) == 0 {
		return 0
	}
	if len(words) <= n {
		return typeTokenRatio(words)
	}
	sum, count := 0.0, 0
	for i := 0; i+n <= len(words); i += n / 2 {
		sum += typeTokenRatio(words[i : i+n])
		count++
	}
	return sum / float64(count)
}

func typeTokenRatio(words []string) float64 {
	seen := make(map[string]struct{}, len(words))
	for _, w := range words {
		seen[w] = struct{}{}
	}
	return float64(len(seen)) / float64(len(words))
}

func meanStd(values []float64) (mean, sd float64) {
	if len(values) == 0 {
		return 0, 0
	}
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))
	variance := 0.0
	for _, v := range values {
		d := v - mean
		variance += d * d
	}
	variance /= float64(len(values))
	return mean, math.Sqrt(variance)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
