package analysis

// Content length bounds, counted in runes.
const (
	MinContentLength = 10
	MaxContentLength = 10000
)

// AnalysisRequest is the single input of the pipeline. A nil Content means
// the field was absent or null.
type AnalysisRequest struct {
	Content *string `json:"content"`
}

// NewRequest wraps a string into a request.
func NewRequest(content string) AnalysisRequest {
	return AnalysisRequest{Content: &content}
}

// AnalysisResponse is the verdict returned for valid input.
type AnalysisResponse struct {
	IsPotentiallyMisleading bool    `json:"is_potentially_misleading"`
	ConfidenceScore         float64 `json:"confidence_score"`
	Explanation             string  `json:"explanation"`
}

// Label is the advisory classification produced by a Scorer.
type Label string

const (
	LabelMisleading    Label = "MISLEADING"
	LabelNotMisleading Label = "NOT_MISLEADING"
)

// RawScore is a scorer's output before calibration.
type RawScore struct {
	Value float64
	Label Label
}

// LabelFor derives a label from value against a cut line.
func LabelFor(value, cut float64) Label {
	if value >= cut {
		return LabelMisleading
	}
	return LabelNotMisleading
}
