package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"

	"github.com/careerhub/ai-pipeline/internal/task"
)

// Task statuses as persisted in the tasks table
const (
	StatusPending   = "PENDING"
	StatusRunning   = "RUNNING"
	StatusRetrying  = "RETRYING"
	StatusCompleted = "COMPLETED"
	StatusFailed    = "FAILED"
)

// ErrTaskAlreadyCompleted is returned by ClaimTask when a redelivered task
// has already been completed. The delivery should be acknowledged and dropped.
var ErrTaskAlreadyCompleted = errors.New("task already completed")

// Storage handles all database operations for the dispatcher
type Storage struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStorage creates a new Storage instance
func NewStorage(db *sqlx.DB, logger *slog.Logger) *Storage {
	return &Storage{
		db:     db,
		logger: logger,
	}
}

// ClaimTask records that a worker has picked up a task. The row is upserted
// so tasks enqueued by external producers, which have no PENDING row yet,
// are claimable too. A row already in COMPLETED state is never reclaimed.
func (s *Storage) ClaimTask(ctx context.Context, msg *task.Message, workerID string) error {
	payloadJSON, err := json.Marshal(msg.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal task payload: %w", err)
	}

	query := `
		INSERT INTO tasks (task_id, task_type, payload, status, worker_id, attempt, enqueued_at, started_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW(), NOW())
		ON CONFLICT (task_id) DO UPDATE
		SET status = $4,
		    worker_id = $5,
		    attempt = $6,
		    started_at = NOW(),
		    updated_at = NOW()
		WHERE tasks.status <> $8
		RETURNING task_id
	`

	var claimedID string
	err = s.db.QueryRowContext(ctx, query,
		msg.TaskID,
		string(msg.TaskType),
		payloadJSON,
		StatusRunning,
		workerID,
		msg.Attempt,
		msg.EnqueuedAt,
		StatusCompleted,
	).Scan(&claimedID)

	if err != nil {
		if err == sql.ErrNoRows {
			s.logger.Warn("Task already completed, skipping redelivery",
				slog.String("task_id", msg.TaskID),
				slog.String("worker_id", workerID),
			)
			return ErrTaskAlreadyCompleted
		}
		return fmt.Errorf("failed to claim task: %w", err)
	}

	s.logger.Info("Task claimed successfully",
		slog.String("task_id", msg.TaskID),
		slog.String("worker_id", workerID),
		slog.String("task_type", string(msg.TaskType)),
		slog.Int("attempt", msg.Attempt),
	)

	return nil
}

// MarkCompleted records a successful task outcome
func (s *Storage) MarkCompleted(ctx context.Context, taskID string, result map[string]interface{}) error {
	var resultJSON []byte
	var err error
	if result != nil {
		resultJSON, err = json.Marshal(result)
		if err != nil {
			return fmt.Errorf("failed to marshal result: %w", err)
		}
	}

	query := `
		UPDATE tasks
		SET status = $1,
		    result = $2,
		    error_message = '',
		    completed_at = NOW(),
		    updated_at = NOW()
		WHERE task_id = $3
	`

	if _, err := s.db.ExecContext(ctx, query, StatusCompleted, resultJSON, taskID); err != nil {
		return fmt.Errorf("failed to mark task completed: %w", err)
	}

	s.logger.Info("Task status updated",
		slog.String("task_id", taskID),
		slog.String("status", StatusCompleted),
	)

	return nil
}

// MarkRetrying records a transient failure before the task is republished
// with an incremented attempt counter
func (s *Storage) MarkRetrying(ctx context.Context, taskID string, nextAttempt int, errorMsg string) error {
	query := `
		UPDATE tasks
		SET status = $1,
		    attempt = $2,
		    error_message = $3,
		    updated_at = NOW()
		WHERE task_id = $4
	`

	if _, err := s.db.ExecContext(ctx, query, StatusRetrying, nextAttempt, errorMsg, taskID); err != nil {
		return fmt.Errorf("failed to mark task retrying: %w", err)
	}

	s.logger.Info("Task status updated",
		slog.String("task_id", taskID),
		slog.String("status", StatusRetrying),
		slog.Int("next_attempt", nextAttempt),
	)

	return nil
}

// MarkFailed records a terminal task failure
func (s *Storage) MarkFailed(ctx context.Context, taskID string, errorMsg string) error {
	query := `
		UPDATE tasks
		SET status = $1,
		    error_message = $2,
		    completed_at = NOW(),
		    updated_at = NOW()
		WHERE task_id = $3
	`

	if _, err := s.db.ExecContext(ctx, query, StatusFailed, errorMsg, taskID); err != nil {
		return fmt.Errorf("failed to mark task failed: %w", err)
	}

	s.logger.Info("Task status updated",
		slog.String("task_id", taskID),
		slog.String("status", StatusFailed),
	)

	return nil
}
