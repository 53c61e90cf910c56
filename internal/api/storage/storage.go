package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/careerhub/ai-pipeline/internal/api/domain"
	"github.com/careerhub/ai-pipeline/internal/api/model"
	"github.com/careerhub/ai-pipeline/internal/task"
	"github.com/careerhub/ai-pipeline/shared/postgresql"
)

type Storage struct {
	db *sqlx.DB
}

func NewStorage(pg *postgresql.Client) *Storage {
	return &Storage{
		db: pg.GetDB(),
	}
}

// CreatePending records a freshly published task. The worker later flips it
// to RUNNING when it claims the delivery.
func (s *Storage) CreatePending(ctx context.Context, msg *task.Message) error {
	payloadJSON, err := json.Marshal(msg.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal task payload: %w", err)
	}

	query := `
		INSERT INTO tasks (
			task_id, task_type, payload, status,
			attempt, enqueued_at, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, NOW(), NOW()
		)
	`

	_, err = s.db.ExecContext(
		ctx,
		query,
		msg.TaskID,
		string(msg.TaskType),
		payloadJSON,
		domain.TaskStatusPending,
		msg.Attempt,
		msg.EnqueuedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}

	return nil
}

func (s *Storage) GetTaskByID(ctx context.Context, taskID string) (*model.Task, error) {
	var t model.Task
	query := `
		SELECT
			task_id, task_type, payload, status, worker_id, attempt,
			result, error_message, enqueued_at, started_at, completed_at,
			created_at, updated_at
		FROM tasks
		WHERE task_id = $1
	`

	err := s.db.GetContext(ctx, &t, query, taskID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrTaskNotFound
		}
		return nil, fmt.Errorf("failed to get task: %w", err)
	}

	return &t, nil
}

type TaskFilter struct {
	TaskType string
	Status   string
	PageSize int
	Cursor   *TaskCursor
}

type TaskCursor struct {
	CreatedAt time.Time
	TaskID    string
}

func (s *Storage) ListTasks(ctx context.Context, filter TaskFilter) ([]model.Task, error) {
	query := `
        SELECT
            task_id, task_type, payload, status, worker_id, attempt,
            result, error_message, enqueued_at, started_at, completed_at,
            created_at, updated_at
        FROM tasks
        WHERE 1=1
    `
	args := []interface{}{}
	argIdx := 1

	// Filters
	if filter.TaskType != "" {
		query += fmt.Sprintf(" AND task_type = $%d", argIdx)
		args = append(args, filter.TaskType)
		argIdx++
	}

	if filter.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, filter.Status)
		argIdx++
	}

	if filter.Cursor != nil {
		query += fmt.Sprintf(" AND (created_at, task_id) < ($%d, $%d)", argIdx, argIdx+1)
		args = append(args, filter.Cursor.CreatedAt, filter.Cursor.TaskID)
		argIdx += 2
	}

	// Order by created_at DESC, task_id DESC for consistent pagination
	query += " ORDER BY created_at DESC, task_id DESC"

	// Fetch one extra to determine if there are more results
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, filter.PageSize+1)

	var tasks []model.Task
	err := s.db.SelectContext(ctx, &tasks, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}

	return tasks, nil
}
