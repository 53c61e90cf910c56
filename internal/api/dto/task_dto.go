package dto

import "encoding/json"

type CreateTaskRequest struct {
	TaskType string                 `json:"task_type" binding:"required"`
	Payload  map[string]interface{} `json:"payload" binding:"required"`
}

type CreateTaskResponse struct {
	TaskID     string `json:"task_id"`
	TaskType   string `json:"task_type"`
	Status     string `json:"status"`
	EnqueuedAt string `json:"enqueued_at"`
}

type ListTasksRequest struct {
	TaskType string `form:"task_type"`
	Status   string `form:"status"`
	PageSize int    `form:"page_size"`
	Cursor   string `form:"cursor"`
}

type ListTasksResponse struct {
	Tasks      []TaskDTO `json:"tasks"`
	NextCursor string    `json:"next_cursor,omitempty"`
}

type TaskDTO struct {
	TaskID       string          `json:"task_id"`
	TaskType     string          `json:"task_type"`
	Payload      json.RawMessage `json:"payload"`
	Status       string          `json:"status"`
	WorkerID     string          `json:"worker_id,omitempty"`
	Attempt      int             `json:"attempt"`
	Result       json.RawMessage `json:"result,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
	EnqueuedAt   string          `json:"enqueued_at"`
	StartedAt    string          `json:"started_at,omitempty"`
	CompletedAt  string          `json:"completed_at,omitempty"`
	CreatedAt    string          `json:"created_at"`
	UpdatedAt    string          `json:"updated_at"`
}
