package task

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Type identifies the kind of work a message carries
type Type string

const (
	TypeDocumentProcessing  Type = "document_processing"
	TypeEmbeddingGeneration Type = "embedding_generation"
	TypeFileUpload          Type = "file_upload"
	TypeVectorInsert        Type = "vector_insert"
	TypeNotification        Type = "notification"
	TypeRecommendActivities Type = "recommend_activities_with_metadata"
	TypeRecommendJobs       Type = "recommend_jobs_with_metadata"
	TypePortfolioAnalysis   Type = "portfolio_analysis"
)

// requiredPayloadFields maps each task type to the payload keys that must be
// present before any external call is attempted
var requiredPayloadFields = map[Type][]string{
	TypeDocumentProcessing:  {"document_id", "file_path"},
	TypeEmbeddingGeneration: {"document_id", "text"},
	TypeFileUpload:          {"local_path", "bucket_name", "object_name"},
	TypeVectorInsert:        {"document_id", "embedding", "metadata"},
	TypeNotification:        {"message", "recipient"},
	TypeRecommendActivities: {"user_profile", "metadata_filters", "n_results"},
	TypeRecommendJobs:       {"user_profile", "metadata_filters", "n_results"},
	TypePortfolioAnalysis:   {"user_profile"},
}

// KnownTypes returns the set of recognized task types
func KnownTypes() []Type {
	types := make([]Type, 0, len(requiredPayloadFields))
	for t := range requiredPayloadFields {
		types = append(types, t)
	}
	return types
}

// IsKnownType reports whether t is a recognized task type
func IsKnownType(t Type) bool {
	_, ok := requiredPayloadFields[t]
	return ok
}

// Message is the unit of work delivered through the queue. It is immutable
// once enqueued; a retry republishes a copy with Attempt incremented.
type Message struct {
	TaskID     string         `json:"task_id"`
	TaskType   Type           `json:"task_type"`
	Payload    map[string]any `json:"payload"`
	EnqueuedAt time.Time      `json:"enqueued_at"`
	Attempt    int            `json:"attempt"`
}

// New creates a task message with a generated ID and the current timestamp
func New(taskType Type, payload map[string]any) *Message {
	return &Message{
		TaskID:     uuid.New().String(),
		TaskType:   taskType,
		Payload:    payload,
		EnqueuedAt: time.Now().UTC(),
		Attempt:    0,
	}
}

// Decode parses a message from its wire form, generating a task ID when the
// producer omitted one
func Decode(body []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(body, &msg); err != nil {
		return nil, fmt.Errorf("failed to decode task message: %w", err)
	}
	if msg.TaskType == "" {
		return nil, fmt.Errorf("%w: task_type is required", ErrValidation)
	}
	if msg.TaskID == "" {
		msg.TaskID = uuid.New().String()
	}
	return &msg, nil
}

// Encode marshals the message to its wire form
func (m *Message) Encode() ([]byte, error) {
	body, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to encode task message: %w", err)
	}
	return body, nil
}

// NextAttempt returns a copy of the message with Attempt incremented, used
// when republishing after a retryable failure
func (m *Message) NextAttempt() *Message {
	next := *m
	next.Attempt = m.Attempt + 1
	return &next
}

// Validate checks the task type is recognized and all required payload fields
// for that type are present. Validation failures are fatal: retrying cannot
// supply a missing field.
func (m *Message) Validate() error {
	required, ok := requiredPayloadFields[m.TaskType]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownTaskType, m.TaskType)
	}

	var missing []string
	for _, field := range required {
		if _, present := m.Payload[field]; !present {
			missing = append(missing, field)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("%w: task type %q requires fields [%s]",
			ErrValidation, m.TaskType, strings.Join(missing, ", "))
	}

	return nil
}

// StringField returns a string payload field, or an ErrValidation error when
// the field is absent or not a string
func (m *Message) StringField(key string) (string, error) {
	raw, ok := m.Payload[key]
	if !ok {
		return "", fmt.Errorf("%w: missing field %q", ErrValidation, key)
	}
	s, ok := raw.(string)
	if !ok || s == "" {
		return "", fmt.Errorf("%w: field %q must be a non-empty string", ErrValidation, key)
	}
	return s, nil
}

// MapField returns a mapping payload field, or an ErrValidation error when
// the field is present but not a mapping. An absent field returns an empty map.
func (m *Message) MapField(key string) (map[string]any, error) {
	raw, ok := m.Payload[key]
	if !ok || raw == nil {
		return map[string]any{}, nil
	}
	mp, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: field %q must be a mapping", ErrValidation, key)
	}
	return mp, nil
}

// IntField returns an integer payload field. JSON numbers decode as float64,
// so both representations are accepted.
func (m *Message) IntField(key string) (int, error) {
	raw, ok := m.Payload[key]
	if !ok {
		return 0, fmt.Errorf("%w: missing field %q", ErrValidation, key)
	}
	switch v := raw.(type) {
	case float64:
		return int(v), nil
	case int:
		return v, nil
	default:
		return 0, fmt.Errorf("%w: field %q must be a number", ErrValidation, key)
	}
}
