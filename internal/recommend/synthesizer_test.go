package recommend

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/careerhub/ai-pipeline/internal/task"
)

// recordingCompleter captures requests and plays back a fixed response
type recordingCompleter struct {
	response string
	err      error
	requests []Request
}

func (c *recordingCompleter) Complete(_ context.Context, req Request) (string, error) {
	c.requests = append(c.requests, req)
	if c.err != nil {
		return "", c.err
	}
	return c.response, nil
}

func profileU1() map[string]any {
	return map[string]any{"user_id": "u1", "skills": []any{"Go", "Python"}}
}

func TestSynthesize_MockModeActivity(t *testing.T) {
	s := NewSynthesizer(NewMockCompleter(), testLogger())

	items := []Item{
		{ID: "a", SimilarityScore: 0.9, Metadata: map[string]any{"title": "Hackathon"}},
		{ID: "b", SimilarityScore: 0.8},
	}

	result, err := s.Synthesize(context.Background(), profileU1(), items, KindActivity)
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.False(t, result.GeneratedAt.IsZero())
	require.NotEmpty(t, result.Recommendations)
	for _, rec := range result.Recommendations {
		assert.Contains(t, rec, "title")
		assert.Contains(t, rec, "rationale")
		assert.Contains(t, rec, "expected_benefits")
	}
}

func TestSynthesize_MockModeJob(t *testing.T) {
	s := NewSynthesizer(NewMockCompleter(), testLogger())

	result, err := s.Synthesize(context.Background(), profileU1(), []Item{{ID: "j1", SimilarityScore: 0.8}}, KindJob)
	require.NoError(t, err)

	assert.True(t, result.Success)
	require.NotEmpty(t, result.Recommendations)
	for _, rec := range result.Recommendations {
		assert.Contains(t, rec, "position")
		assert.Contains(t, rec, "match_score")
		assert.Contains(t, rec, "why_suitable")
	}
}

func TestSynthesize_MockModePortfolioExactKeys(t *testing.T) {
	s := NewSynthesizer(NewMockCompleter(), testLogger())

	result, err := s.Synthesize(context.Background(), profileU1(), nil, KindPortfolio)
	require.NoError(t, err)

	assert.True(t, result.Success)
	require.Len(t, result.Recommendations, 1)

	analysis := result.Recommendations[0]
	// Exactly the three contract keys, nothing else
	assert.Len(t, analysis, 3)
	assert.Contains(t, analysis, "strength")
	assert.Contains(t, analysis, "weakness")
	assert.Contains(t, analysis, "recommend_position")
}

func TestSynthesize_NoMatchesIsSuccessWithoutCompletion(t *testing.T) {
	completer := &recordingCompleter{response: "{}"}
	s := NewSynthesizer(completer, testLogger())

	result, err := s.Synthesize(context.Background(), profileU1(), []Item{}, KindActivity)
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Empty(t, result.Recommendations)
	assert.Empty(t, result.Error)
	// No generative call for an empty context
	assert.Empty(t, completer.requests)
}

func TestSynthesize_SchemaViolationIsFatal(t *testing.T) {
	tests := []struct {
		name     string
		kind     Kind
		response string
	}{
		{
			name:     "activity missing rationale",
			kind:     KindActivity,
			response: `{"recommendations":[{"title":"x","expected_benefits":[]}]}`,
		},
		{
			name:     "job missing match_score",
			kind:     KindJob,
			response: `{"recommendations":[{"position":"x","why_suitable":"y"}]}`,
		},
		{
			name:     "portfolio missing weakness",
			kind:     KindPortfolio,
			response: `{"strength":"x","recommend_position":"y"}`,
		},
		{
			name:     "no recommendations field",
			kind:     KindActivity,
			response: `{"items":[]}`,
		},
		{
			name:     "not json",
			kind:     KindActivity,
			response: `I would recommend a hackathon.`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSynthesizer(&recordingCompleter{response: tt.response}, testLogger())

			_, err := s.Synthesize(context.Background(), profileU1(), []Item{{ID: "a", SimilarityScore: 0.9}}, tt.kind)
			require.Error(t, err)
			assert.ErrorIs(t, err, task.ErrSchemaViolation)
		})
	}
}

func TestSynthesize_CompleterFailureIsTransient(t *testing.T) {
	s := NewSynthesizer(&recordingCompleter{err: fmt.Errorf("service unavailable")}, testLogger())

	_, err := s.Synthesize(context.Background(), profileU1(), []Item{{ID: "a", SimilarityScore: 0.9}}, KindJob)
	require.Error(t, err)
	assert.True(t, task.IsTransient(err))
}

func TestSynthesize_ContextBounded(t *testing.T) {
	completer := &recordingCompleter{response: `{"recommendations":[]}`}
	s := NewSynthesizer(completer, testLogger())

	// More items than the context cap, deliberately unsorted
	items := make([]Item, 0, 8)
	for i := 8; i > 0; i-- {
		items = append(items, Item{
			ID:              fmt.Sprintf("doc-%d", i),
			SimilarityScore: float64(i) / 10,
		})
	}

	_, err := s.Synthesize(context.Background(), profileU1(), items, KindActivity)
	require.NoError(t, err)

	require.Len(t, completer.requests, 1)
	prompt := completer.requests[0].Prompt

	// The five highest-scored items make it into the prompt, the rest do not
	for _, id := range []string{"doc-8", "doc-7", "doc-6", "doc-5", "doc-4"} {
		assert.Contains(t, prompt, "id="+id+" ")
	}
	for _, id := range []string{"doc-3", "doc-2", "doc-1"} {
		assert.NotContains(t, prompt, "id="+id+" ")
	}
}

func TestSynthesize_PreviewKeepsValidUTF8(t *testing.T) {
	completer := &recordingCompleter{response: `{"recommendations":[]}`}
	s := NewSynthesizer(completer, testLogger())

	// Multi-byte source text long enough to cross the preview cap
	items := []Item{{
		ID:              "doc-kr",
		SimilarityScore: 0.9,
		SourceText:      "ab" + strings.Repeat("백엔드 개발자 포트폴리오 ", 30),
	}}

	_, err := s.Synthesize(context.Background(), profileU1(), items, KindActivity)
	require.NoError(t, err)

	require.Len(t, completer.requests, 1)
	assert.True(t, utf8.ValidString(completer.requests[0].Prompt))
}

func TestTruncatePreview(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		maxBytes int
		want     string
	}{
		{"short text untouched", "hello", 10, "hello"},
		{"ascii cut at limit", "hello world", 5, "hello"},
		{"multi-byte rune never split", "가나다", 4, "가"},
		{"cut lands on boundary", "가나다", 6, "가나"},
		{"limit below first rune", "가", 2, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := truncatePreview(tt.text, tt.maxBytes)
			assert.Equal(t, tt.want, got)
			assert.True(t, utf8.ValidString(got))
		})
	}
}

func TestSynthesize_PromptIsDeterministic(t *testing.T) {
	completer := &recordingCompleter{response: `{"recommendations":[]}`}
	s := NewSynthesizer(completer, testLogger())

	items := []Item{{ID: "a", SimilarityScore: 0.9, Metadata: map[string]any{"f": "v"}}}

	for i := 0; i < 2; i++ {
		_, err := s.Synthesize(context.Background(), profileU1(), items, KindActivity)
		require.NoError(t, err)
	}

	require.Len(t, completer.requests, 2)
	assert.Equal(t, completer.requests[0], completer.requests[1])
}

func TestBuildQueryText(t *testing.T) {
	tests := []struct {
		name    string
		kind    Kind
		profile map[string]any
		want    []string
		exact   string
	}{
		{
			name: "activity profile",
			kind: KindActivity,
			profile: map[string]any{
				"interests":        []any{"AI", "startups"},
				"major":            "Computer Science",
				"skills":           []any{"Go"},
				"experience_level": "junior",
			},
			want: []string{"interests: AI, startups", "major: Computer Science", "skills: Go", "experience level: junior"},
		},
		{
			name: "job profile",
			kind: KindJob,
			profile: map[string]any{
				"desired_role":     "Backend Developer",
				"experience_years": float64(3),
			},
			want: []string{"desired role: Backend Developer", "years of experience: 3"},
		},
		{
			name:    "empty activity profile falls back",
			kind:    KindActivity,
			profile: map[string]any{},
			exact:   "extracurricular activity recommendation",
		},
		{
			name:    "empty job profile falls back",
			kind:    KindJob,
			profile: map[string]any{},
			exact:   "job posting recommendation",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := BuildQueryText(tt.kind, tt.profile)

			if tt.exact != "" {
				assert.Equal(t, tt.exact, got)
				return
			}
			for _, part := range tt.want {
				assert.Contains(t, got, part)
			}
			// Deterministic
			assert.Equal(t, got, BuildQueryText(tt.kind, tt.profile))
		})
	}
}

func TestBuildQueryText_OmitsAbsentAttributes(t *testing.T) {
	got := BuildQueryText(KindActivity, map[string]any{"major": "Design"})
	assert.Equal(t, "major: Design", got)
	assert.False(t, strings.Contains(got, "skills"))
}
