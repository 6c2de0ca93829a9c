package analysis

import "fmt"

// dominanceCut is the minimum weighted contribution for a signal group to
// be named in an explanation.
const dominanceCut = 0.10

const shortTextWords = 8

// Summary carries the content facts an explanation may mention.
type Summary struct {
	Words     int
	Sentences int
}

// SummaryOf builds a Summary from a signal set.
func SummaryOf(s SignalSet) Summary {
	return Summary{Words: s.WordCount, Sentences: s.SentenceCount}
}

var groupSentences = map[string]string{
	GroupEmotional:   "Uses emotionally charged language.",
	GroupSensational: "Contains sensational phrasing typical of clickbait.",
	GroupExclamation: "Relies on heavy exclamatory punctuation.",
	GroupCaps:        "Uses excessive capitalization for emphasis.",
	GroupSynthetic:   "Stylistic markers consistent with synthetic generation.",
}

var groupClauses = map[string]string{
	GroupEmotional:   "uses some emotionally charged language",
	GroupSensational: "contains some sensational phrasing",
	GroupExclamation: "relies on exclamatory punctuation in places",
	GroupCaps:        "uses capitalization for emphasis in places",
	GroupSynthetic:   "shows some stylistic markers of synthetic generation",
}

const noIndicators = "No strong indicators of misleading or AI-generated content were found; the content appears reliable."

// ConfidenceBand names the band a confidence value falls in.
func ConfidenceBand(confidence float64) string {
	switch {
	case confidence < 0.35:
		return "low"
	case confidence < 0.65:
		return "moderate"
	default:
		return "high"
	}
}

// Explain produces a one or two sentence explanation naming the dominant
// signal groups. It never returns an empty string.
func Explain(summary Summary, signals SignalSet, isMisleading bool, confidence float64) string {
	var dominant []string
	for _, c := range Contributions(signals) {
		if c.Weight >= dominanceCut {
			dominant = append(dominant, c.Signal)
		}
	}
	band := ConfidenceBand(confidence)

	if len(dominant) == 0 {
		if summary.Words < shortTextWords {
			return fmt.Sprintf("The text is too short (%d words) for strong signals; assessment made with %s confidence.", summary.Words, band)
		}
		if isMisleading {
			return fmt.Sprintf("No single dominant signal was found, but the combined indicators suggest the content may be misleading (%s confidence).", band)
		}
		if band != "low" {
			return fmt.Sprintf("No single dominant signal was found; the combined indicators are inconclusive and the content is not flagged (%s confidence).", band)
		}
		return noIndicators
	}

	if !isMisleading {
		return fmt.Sprintf("The content appears reliable overall, although it %s.", groupClauses[dominant[0]])
	}

	if len(dominant) > 2 {
		dominant = dominant[:2]
	}
	out := groupSentences[dominant[0]]
	if len(dominant) == 2 {
		out += " " + groupSentences[dominant[1]]
	}
	return out
}
