package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/careerhub/ai-pipeline/internal/api/domain"
	"github.com/careerhub/ai-pipeline/internal/api/dto"
	"github.com/careerhub/ai-pipeline/internal/api/model"
	"github.com/careerhub/ai-pipeline/internal/api/storage"
	"github.com/careerhub/ai-pipeline/internal/manager"
	"github.com/careerhub/ai-pipeline/internal/task"
)

// CreateTask handles POST /api/v1/tasks
// Validates the request and enqueues a task for asynchronous processing
func (h *TaskHandler) CreateTask(c *gin.Context) {
	var req dto.CreateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	msg, err := h.manager.PublishTask(c.Request.Context(), task.Type(req.TaskType), req.Payload)
	if err != nil {
		if errors.Is(err, task.ErrUnknownTaskType) || errors.Is(err, task.ErrValidation) {
			h.logger.Warn("Task rejected",
				slog.String("task_type", req.TaskType),
				slog.String("error", err.Error()),
			)
			c.JSON(http.StatusBadRequest, gin.H{
				"error": err.Error(),
			})
			return
		}

		h.logger.Error("Failed to publish task",
			slog.String("task_type", req.TaskType),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to publish task",
		})
		return
	}

	// Processing happens asynchronously; the caller polls GET /tasks/:task_id
	c.JSON(http.StatusAccepted, dto.CreateTaskResponse{
		TaskID:     msg.TaskID,
		TaskType:   string(msg.TaskType),
		Status:     domain.TaskStatusPending,
		EnqueuedAt: msg.EnqueuedAt.Format(time.RFC3339),
	})
}

// GetTask handles GET /api/v1/tasks/:task_id
// Retrieves the current state and result of a task
func (h *TaskHandler) GetTask(c *gin.Context) {
	taskID := c.Param("task_id")
	if taskID == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "task_id is required",
		})
		return
	}

	if _, err := uuid.Parse(taskID); err != nil {
		h.logger.Error("Invalid task_id format", slog.String("task_id", taskID), slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "task_id must be a valid UUID",
		})
		return
	}

	record, err := h.storage.GetTaskByID(c.Request.Context(), taskID)
	if err != nil {
		if errors.Is(err, domain.ErrTaskNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Task not found",
			})
			return
		}
		h.logger.Error("Failed to get task", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get task",
		})
		return
	}

	c.JSON(http.StatusOK, taskToDTO(record))
}

// ListTasks handles GET /api/v1/tasks
// Lists tasks with optional filtering and cursor pagination
func (h *TaskHandler) ListTasks(c *gin.Context) {
	var req dto.ListTasksRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.logger.Error("Invalid query parameters", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid query parameters",
		})
		return
	}

	if req.PageSize <= 0 {
		req.PageSize = 20
	}

	if req.PageSize > 100 {
		req.PageSize = 100
	}

	cursor, err := DecodeTaskCursor(req.Cursor)
	if err != nil {
		h.logger.Error("Invalid cursor", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid cursor",
		})
		return
	}

	filter := storage.TaskFilter{
		TaskType: req.TaskType,
		Status:   req.Status,
		PageSize: req.PageSize,
		Cursor:   cursor,
	}

	tasks, err := h.storage.ListTasks(c.Request.Context(), filter)
	if err != nil {
		h.logger.Error("Failed to list tasks", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list tasks",
		})
		return
	}

	hasMore := len(tasks) > req.PageSize
	if hasMore {
		tasks = tasks[:req.PageSize]
	}

	taskResponse := make([]dto.TaskDTO, len(tasks))
	for i := range tasks {
		taskResponse[i] = taskToDTO(&tasks[i])
	}

	var nextCursor string
	if hasMore {
		lastTask := tasks[len(tasks)-1]
		cursorObj := storage.TaskCursor{
			CreatedAt: lastTask.CreatedAt,
			TaskID:    lastTask.TaskID,
		}
		nextCursor, err = EncodeTaskCursor(&cursorObj)
		if err != nil {
			h.logger.Error("Failed to encode next cursor", slog.String("error", err.Error()))
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to encode next cursor",
			})
			return
		}
	}

	c.JSON(http.StatusOK, dto.ListTasksResponse{
		Tasks:      taskResponse,
		NextCursor: nextCursor,
	})
}

// TaskTypes handles GET /api/v1/task-types
// Returns the task types accepted by POST /api/v1/tasks
func (h *TaskHandler) TaskTypes(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"task_types": manager.KnownTaskTypes(),
	})
}

// Stats handles GET /stats
// Returns task submission counters
func (h *TaskHandler) Stats(c *gin.Context) {
	c.JSON(http.StatusOK, h.manager.Stats())
}

// Health handles GET /health
// Reports dependency liveness
func (h *TaskHandler) Health(c *gin.Context) {
	healthy, checks := h.manager.Healthy(c.Request.Context())

	status := http.StatusOK
	state := "healthy"
	if !healthy {
		status = http.StatusServiceUnavailable
		state = "unhealthy"
	}

	c.JSON(status, gin.H{
		"status":  state,
		"service": "task-api-service",
		"checks":  checks,
	})
}

// taskToDTO converts a task row to its API representation
func taskToDTO(t *model.Task) dto.TaskDTO {
	d := dto.TaskDTO{
		TaskID:     t.TaskID,
		TaskType:   t.TaskType,
		Payload:    []byte(t.Payload),
		Status:     t.Status,
		Attempt:    t.Attempt,
		EnqueuedAt: t.EnqueuedAt.Format(time.RFC3339),
		CreatedAt:  t.CreatedAt.Format(time.RFC3339),
		UpdatedAt:  t.UpdatedAt.Format(time.RFC3339),
	}

	if t.WorkerID.Valid {
		d.WorkerID = t.WorkerID.String
	}
	if t.Result.Valid {
		d.Result = []byte(t.Result.String)
	}
	if t.ErrorMessage.Valid {
		d.ErrorMessage = t.ErrorMessage.String
	}
	if t.StartedAt.Valid {
		d.StartedAt = t.StartedAt.Time.Format(time.RFC3339)
	}
	if t.CompletedAt.Valid {
		d.CompletedAt = t.CompletedAt.Time.Format(time.RFC3339)
	}

	return d
}
