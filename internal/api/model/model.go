package model

import (
	"database/sql"
	"time"
)

type Task struct {
	TaskID       string         `db:"task_id"`
	TaskType     string         `db:"task_type"`
	Payload      string         `db:"payload"`
	Status       string         `db:"status"`
	WorkerID     sql.NullString `db:"worker_id"`
	Attempt      int            `db:"attempt"`
	Result       sql.NullString `db:"result"`
	ErrorMessage sql.NullString `db:"error_message"`
	EnqueuedAt   time.Time      `db:"enqueued_at"`
	StartedAt    sql.NullTime   `db:"started_at"`
	CompletedAt  sql.NullTime   `db:"completed_at"`
	CreatedAt    time.Time      `db:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at"`
}
