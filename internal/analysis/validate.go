package analysis

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Error types reported in ValidationError.Type.
const (
	TypeValueError   = "value_error"
	TypeMissing      = "value_error.missing"
	TypeStr          = "type_error.str"
	TypeDict         = "type_error.dict"
	TypeJSONDecode   = "value_error.jsondecode"
	msgFieldRequired = "field required"
)

// ContentLoc is the location of the content field in a request body.
var ContentLoc = []string{"body", "content"}

// ValidationError describes one violated input constraint.
type ValidationError struct {
	Loc  []string `json:"loc"`
	Msg  string   `json:"msg"`
	Type string   `json:"type"`
}

// ValidationReport collects every violation found in a request.
type ValidationReport struct {
	Detail []ValidationError `json:"detail"`
}

func (r *ValidationReport) Error() string {
	parts := make([]string, len(r.Detail))
	for i, d := range r.Detail {
		parts[i] = fmt.Sprintf("%s: %s", strings.Join(d.Loc, "."), d.Msg)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// ValidationBuilder accumulates violations in the order they are found.
// It never stops at the first one.
type ValidationBuilder struct {
	errs []ValidationError
}

// Add records a violation at loc.
func (b *ValidationBuilder) Add(loc []string, msg, typ string) *ValidationBuilder {
	b.errs = append(b.errs, ValidationError{
		Loc:  append([]string(nil), loc...),
		Msg:  msg,
		Type: typ,
	})
	return b
}

// Missing records an absent or null field.
func (b *ValidationBuilder) Missing(loc []string) *ValidationBuilder {
	return b.Add(loc, msgFieldRequired, TypeMissing)
}

// WrongType records a field present with a non-string value.
func (b *ValidationBuilder) WrongType(loc []string) *ValidationBuilder {
	return b.Add(loc, "str type expected", TypeStr)
}

// Length checks content against the rune bounds.
func (b *ValidationBuilder) Length(loc []string, content string) *ValidationBuilder {
	n := utf8.RuneCountInString(content)
	if n < MinContentLength {
		b.Add(loc, fmt.Sprintf("ensure this value has at least %d characters", MinContentLength), TypeValueError)
	}
	if n > MaxContentLength {
		b.Add(loc, fmt.Sprintf("ensure this value has at most %d characters", MaxContentLength), TypeValueError)
	}
	return b
}

// Empty reports whether no violation has been recorded.
func (b *ValidationBuilder) Empty() bool {
	return len(b.errs) == 0
}

// Report returns the accumulated violations, or nil when there are none.
func (b *ValidationBuilder) Report() *ValidationReport {
	if len(b.errs) == 0 {
		return nil
	}
	return &ValidationReport{Detail: append([]ValidationError(nil), b.errs...)}
}

// ValidateContent checks the content field and returns it trimmed.
// Length is measured on the value as received.
func ValidateContent(content *string) (string, *ValidationReport) {
	var b ValidationBuilder
	if content == nil {
		b.Missing(ContentLoc)
		return "", b.Report()
	}
	b.Length(ContentLoc, *content)
	if r := b.Report(); r != nil {
		return "", r
	}
	return strings.TrimSpace(*content), nil
}
