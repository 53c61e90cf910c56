package handler

import (
	"context"
	"log/slog"

	"github.com/careerhub/ai-pipeline/internal/api/model"
	"github.com/careerhub/ai-pipeline/internal/api/storage"
	"github.com/careerhub/ai-pipeline/internal/manager"
	"github.com/careerhub/ai-pipeline/internal/task"
)

// TaskManager is the submission surface handlers publish through
type TaskManager interface {
	PublishTask(ctx context.Context, taskType task.Type, payload map[string]any) (*task.Message, error)
	Stats() manager.Stats
	Healthy(ctx context.Context) (bool, map[string]string)
}

// TaskReader is the query surface handlers read task records through
type TaskReader interface {
	GetTaskByID(ctx context.Context, taskID string) (*model.Task, error)
	ListTasks(ctx context.Context, filter storage.TaskFilter) ([]model.Task, error)
}

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger  *slog.Logger
	Manager TaskManager
	Storage TaskReader
}

// TaskHandler handles task-related HTTP requests
type TaskHandler struct {
	logger  *slog.Logger
	manager TaskManager
	storage TaskReader
}

// NewTaskHandler creates a new TaskHandler instance
func NewTaskHandler(deps *Dependencies) *TaskHandler {
	return &TaskHandler{
		logger:  deps.Logger,
		manager: deps.Manager,
		storage: deps.Storage,
	}
}
