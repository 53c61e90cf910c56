package recommend

import "context"

// MockCompleter is the offline Completer. It returns fixed, schema-valid
// responses so test-mode output is structurally indistinguishable from the
// live path.
type MockCompleter struct{}

// NewMockCompleter creates the offline Completer
func NewMockCompleter() *MockCompleter {
	return &MockCompleter{}
}

// Complete returns a canned response satisfying the request kind's contract
func (m *MockCompleter) Complete(_ context.Context, req Request) (string, error) {
	switch req.Kind {
	case KindJob:
		return `{
			"recommendations": [
				{
					"position": "Backend Developer",
					"match_score": 0.9,
					"why_suitable": "Strong overlap between the candidate's stack and the posting requirements",
					"company": "Acme Corp"
				}
			]
		}`, nil
	case KindPortfolio:
		return `{
			"strength": "Broad hands-on frontend experience with creative, well-executed projects",
			"weakness": "Little visible evidence of team collaboration or shared tooling",
			"recommend_position": "Frontend Developer"
		}`, nil
	default:
		return `{
			"recommendations": [
				{
					"title": "AI Fundamentals Online Course",
					"rationale": "Reinforces the foundations behind the user's existing skill set",
					"expected_benefits": ["broader AI literacy", "stronger technical base"],
					"difficulty_level": "beginner"
				}
			]
		}`, nil
	}
}
