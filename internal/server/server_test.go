package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/TobiSchelling/milcheck/internal/analysis"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	p, err := analysis.New(analysis.NewHeuristicScorer(0.5), analysis.Options{}, zap.NewNop())
	require.NoError(t, err)
	return New(p, zap.NewNop())
}

// failingAnalyzer returns a fixed error.
type failingAnalyzer struct{ err error }

func (f failingAnalyzer) Analyze(context.Context, analysis.AnalysisRequest) (*analysis.AnalysisResponse, error) {
	return nil, f.err
}

// panickingAnalyzer panics on every call.
type panickingAnalyzer struct{}

func (panickingAnalyzer) Analyze(context.Context, analysis.AnalysisRequest) (*analysis.AnalysisResponse, error) {
	panic("boom")
}

func post(h http.Handler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/analyze", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeDetail(t *testing.T, rec *httptest.ResponseRecorder) []analysis.ValidationError {
	t.Helper()
	var report analysis.ValidationReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	return report.Detail
}

func TestWelcomeRoute(t *testing.T) {
	srv := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"message":"Welcome to the MIL Content Analysis API!"}`, rec.Body.String())
}

func TestHealthRoute(t *testing.T) {
	srv := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestUnknownRoute(t *testing.T) {
	srv := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAnalyzeVerdict(t *testing.T) {
	srv := newTestServer(t)

	rec := post(srv.Handler(), `{"content": "Shocking news! This is a fake and misleading story."}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var got map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Len(t, got, 3)
	assert.Equal(t, true, got["is_potentially_misleading"])
	assert.InDelta(t, 0.68, got["confidence_score"], 1e-9)
	assert.Contains(t, got["explanation"], "emotionally charged")
}

func TestAnalyzeTooShort(t *testing.T) {
	srv := newTestServer(t)

	rec := post(srv.Handler(), `{"content": "Hi"}`)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	detail := decodeDetail(t, rec)
	require.Len(t, detail, 1)
	assert.Equal(t, []string{"body", "content"}, detail[0].Loc)
	assert.Equal(t, "value_error", detail[0].Type)
	assert.Contains(t, detail[0].Msg, "at least 10")
}

func TestAnalyzeTooLong(t *testing.T) {
	srv := newTestServer(t)

	body, err := json.Marshal(map[string]string{"content": strings.Repeat("x", 10001)})
	require.NoError(t, err)

	rec := post(srv.Handler(), string(body))
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, decodeDetail(t, rec)[0].Msg, "at most 10000")
}

func TestAnalyzeBodyErrors(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		types []string
	}{
		{"missing content", `{}`, []string{analysis.TypeMissing}},
		{"null content", `{"content": null}`, []string{analysis.TypeMissing}},
		{"number content", `{"content": 42}`, []string{analysis.TypeStr}},
		{"malformed json", `{"content": `, []string{analysis.TypeJSONDecode}},
		{"empty body", ``, []string{analysis.TypeJSONDecode}},
		{"array body", `["a"]`, []string{analysis.TypeDict, analysis.TypeMissing}},
	}

	srv := newTestServer(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := post(srv.Handler(), tt.body)
			require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

			detail := decodeDetail(t, rec)
			types := make([]string, len(detail))
			for i, d := range detail {
				types[i] = d.Type
			}
			assert.Equal(t, tt.types, types)
		})
	}
}

func TestAnalyzeScoringUnavailable(t *testing.T) {
	err := &analysis.InternalError{Stage: analysis.StageScore, Err: analysis.ErrScoringUnavailable}
	srv := New(failingAnalyzer{err: err}, zap.NewNop())

	rec := post(srv.Handler(), `{"content": "This is a sample content to analyze."}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t, `{"detail":"analysis temporarily unavailable"}`, rec.Body.String())
}

func TestAnalyzeInternalErrorHidesDetails(t *testing.T) {
	srv := New(failingAnalyzer{err: errors.New("secret stack detail")}, zap.NewNop())

	rec := post(srv.Handler(), `{"content": "This is a sample content to analyze."}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "secret")
}

func TestAnalyzeRecoversFromPanic(t *testing.T) {
	srv := New(panickingAnalyzer{}, zap.NewNop())

	rec := post(srv.Handler(), `{"content": "This is a sample content to analyze."}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"detail":"internal server error"}`, rec.Body.String())
}

func TestRequestIDHeader(t *testing.T) {
	srv := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	_, err := uuid.Parse(rec.Header().Get(RequestIDHeader))
	assert.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rec.Header().Get(RequestIDHeader))
}
