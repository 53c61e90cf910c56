// Package manager fronts task submission: it validates a task, records it
// as PENDING, and publishes it to the work queue.
package manager

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/careerhub/ai-pipeline/internal/task"
)

// PendingStore records a task before it is handed to the broker
type PendingStore interface {
	CreatePending(ctx context.Context, msg *task.Message) error
}

// Broker is the publish surface of the message broker client
type Broker interface {
	PublishToWorkQueue(ctx context.Context, body []byte) error
	IsConnected() bool
}

// HealthChecker reports database liveness
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// PublishObserver counts published tasks for metrics export
type PublishObserver interface {
	TaskPublished(taskType string)
}

type nopPublishObserver struct{}

func (nopPublishObserver) TaskPublished(string) {}

// Stats is a snapshot of task submission counters
type Stats struct {
	Published       int64            `json:"published"`
	PublishFailures int64            `json:"publish_failures"`
	ByType          map[string]int64 `json:"by_type"`
	StartedAt       time.Time        `json:"started_at"`
}

// Manager validates, persists, and publishes task messages
type Manager struct {
	store    PendingStore
	broker   Broker
	db       HealthChecker
	observer PublishObserver
	logger   *slog.Logger

	mu              sync.RWMutex
	published       int64
	publishFailures int64
	byType          map[string]int64
	startedAt       time.Time
}

// NewManager creates a Manager. Observer may be nil.
func NewManager(store PendingStore, broker Broker, db HealthChecker, observer PublishObserver, logger *slog.Logger) *Manager {
	if observer == nil {
		observer = nopPublishObserver{}
	}
	return &Manager{
		store:     store,
		broker:    broker,
		db:        db,
		observer:  observer,
		logger:    logger,
		byType:    make(map[string]int64),
		startedAt: time.Now().UTC(),
	}
}

// PublishTask validates and enqueues a new task, returning the message that
// was published
func (m *Manager) PublishTask(ctx context.Context, taskType task.Type, payload map[string]any) (*task.Message, error) {
	msg := task.New(taskType, payload)

	if err := msg.Validate(); err != nil {
		return nil, err
	}

	if err := m.store.CreatePending(ctx, msg); err != nil {
		return nil, fmt.Errorf("failed to record task: %w", err)
	}

	body, err := msg.Encode()
	if err != nil {
		return nil, err
	}

	if err := m.broker.PublishToWorkQueue(ctx, body); err != nil {
		m.count(string(taskType), false)
		return nil, fmt.Errorf("failed to publish task: %w", err)
	}

	m.count(string(taskType), true)
	m.observer.TaskPublished(string(taskType))

	m.logger.Info("Task published",
		slog.String("task_id", msg.TaskID),
		slog.String("task_type", string(taskType)),
	)

	return msg, nil
}

func (m *Manager) count(taskType string, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ok {
		m.published++
		m.byType[taskType]++
	} else {
		m.publishFailures++
	}
}

// Stats returns a snapshot of the submission counters
func (m *Manager) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	byType := make(map[string]int64, len(m.byType))
	for t, n := range m.byType {
		byType[t] = n
	}

	return Stats{
		Published:       m.published,
		PublishFailures: m.publishFailures,
		ByType:          byType,
		StartedAt:       m.startedAt,
	}
}

// Healthy reports per-dependency liveness. The boolean is true only when
// every dependency is reachable.
func (m *Manager) Healthy(ctx context.Context) (bool, map[string]string) {
	checks := make(map[string]string)
	healthy := true

	if m.broker.IsConnected() {
		checks["rabbitmq"] = "ok"
	} else {
		checks["rabbitmq"] = "disconnected"
		healthy = false
	}

	if err := m.db.HealthCheck(ctx); err != nil {
		checks["postgresql"] = err.Error()
		healthy = false
	} else {
		checks["postgresql"] = "ok"
	}

	return healthy, checks
}

// KnownTaskTypes returns the accepted task types in stable order
func KnownTaskTypes() []string {
	types := task.KnownTypes()
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = string(t)
	}
	sort.Strings(names)
	return names
}
