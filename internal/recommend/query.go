package recommend

import (
	"fmt"
	"strings"
)

// BuildQueryText turns a user profile into the deterministic search query for
// a task kind. Absent profile attributes are simply omitted; an empty profile
// falls back to a generic query.
func BuildQueryText(kind Kind, profile map[string]any) string {
	var parts []string

	switch kind {
	case KindJob:
		parts = appendAttr(parts, "desired role", profile["desired_role"])
		parts = appendAttr(parts, "major", profile["major"])
		parts = appendList(parts, "skills", profile["skills"])
		parts = appendAttr(parts, "years of experience", profile["experience_years"])
		parts = appendAttr(parts, "preferred company size", profile["company_size_preference"])
		if len(parts) == 0 {
			return "job posting recommendation"
		}
	case KindPortfolio:
		parts = appendList(parts, "skills", profile["skills"])
		parts = appendList(parts, "interests", profile["interests"])
		if len(parts) == 0 {
			return "portfolio strengths and weaknesses"
		}
	default:
		parts = appendList(parts, "interests", profile["interests"])
		parts = appendAttr(parts, "major", profile["major"])
		parts = appendList(parts, "skills", profile["skills"])
		parts = appendAttr(parts, "experience level", profile["experience_level"])
		parts = appendAttr(parts, "preferred location", profile["preferred_location"])
		if len(parts) == 0 {
			return "extracurricular activity recommendation"
		}
	}

	return strings.Join(parts, " ")
}

func appendAttr(parts []string, label string, value any) []string {
	if value == nil {
		return parts
	}
	text := fmt.Sprintf("%v", value)
	if text == "" {
		return parts
	}
	return append(parts, label+": "+text)
}

func appendList(parts []string, label string, value any) []string {
	list, ok := value.([]any)
	if !ok || len(list) == 0 {
		return parts
	}
	members := make([]string, 0, len(list))
	for _, member := range list {
		members = append(members, fmt.Sprintf("%v", member))
	}
	return append(parts, label+": "+strings.Join(members, ", "))
}
