package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// ExtractJSON trims an LLM reply down to its JSON payload, removing
// markdown code fences.
func ExtractJSON(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}

	lines := strings.Split(text, "\n")
	endIdx := len(lines) - 1
	for i := len(lines) - 1; i > 0; i-- {
		if strings.TrimSpace(lines[i]) == "```" {
			endIdx = i
			break
		}
	}
	if endIdx < 1 {
		return ""
	}
	return strings.TrimSpace(strings.Join(lines[1:endIdx], "\n"))
}

// Schema is a compiled JSON Schema for LLM replies.
type Schema struct {
	schema *gojsonschema.Schema
}

// MustSchema compiles a JSON Schema document and panics if it is invalid.
func MustSchema(doc string) *Schema {
	s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(doc))
	if err != nil {
		panic(fmt.Sprintf("llm: invalid schema: %v", err))
	}
	return &Schema{schema: s}
}

// Decode extracts the JSON payload of text, validates it against the schema
// and unmarshals it into v.
func (s *Schema) Decode(text string, v any) error {
	payload := ExtractJSON(text)
	if payload == "" {
		return fmt.Errorf("empty reply")
	}

	result, err := s.schema.Validate(gojsonschema.NewStringLoader(payload))
	if err != nil {
		return fmt.Errorf("reply is not valid JSON: %w", err)
	}
	if !result.Valid() {
		issues := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			issues = append(issues, desc.String())
		}
		return fmt.Errorf("reply does not match schema: %s", strings.Join(issues, "; "))
	}

	if err := json.Unmarshal([]byte(payload), v); err != nil {
		return fmt.Errorf("decoding reply: %w", err)
	}
	return nil
}
