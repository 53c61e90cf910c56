package dispatcher

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/careerhub/ai-pipeline/internal/embedding"
	"github.com/careerhub/ai-pipeline/internal/filter"
	"github.com/careerhub/ai-pipeline/internal/recommend"
	"github.com/careerhub/ai-pipeline/internal/task"
	"github.com/careerhub/ai-pipeline/internal/vectorstore"
)

// Uploader covers the blob storage surface the file upload handler needs
type Uploader interface {
	UploadFile(ctx context.Context, bucket, object, localPath string) error
}

// defaultRetrievalLimit applies when a recommendation task omits n_results
const defaultRetrievalLimit = 5

// Handlers bundles the built-in task handlers and their dependencies
type Handlers struct {
	embedder    embedding.Embedder
	store       vectorstore.Store
	uploader    Uploader
	retriever   *recommend.Retriever
	synthesizer *recommend.Synthesizer
	publisher   WorkPublisher
	logger      *slog.Logger
}

// NewHandlers creates the built-in handler set
func NewHandlers(
	embedder embedding.Embedder,
	store vectorstore.Store,
	uploader Uploader,
	retriever *recommend.Retriever,
	synthesizer *recommend.Synthesizer,
	publisher WorkPublisher,
	logger *slog.Logger,
) *Handlers {
	return &Handlers{
		embedder:    embedder,
		store:       store,
		uploader:    uploader,
		retriever:   retriever,
		synthesizer: synthesizer,
		publisher:   publisher,
		logger:      logger,
	}
}

// RegisterAll binds every built-in handler to its task type
func (h *Handlers) RegisterAll(registry *Registry) {
	registry.Register(task.TypeDocumentProcessing, h.ProcessDocument)
	registry.Register(task.TypeEmbeddingGeneration, h.GenerateEmbedding)
	registry.Register(task.TypeFileUpload, h.UploadFile)
	registry.Register(task.TypeVectorInsert, h.InsertVector)
	registry.Register(task.TypeNotification, h.SendNotification)
	registry.Register(task.TypeRecommendActivities, h.RecommendActivities)
	registry.Register(task.TypeRecommendJobs, h.RecommendJobs)
	registry.Register(task.TypePortfolioAnalysis, h.AnalyzePortfolio)
}

// ProcessDocument reads a document from disk and chains an embedding
// generation task for its text
func (h *Handlers) ProcessDocument(ctx context.Context, msg *task.Message) (map[string]interface{}, error) {
	documentID, err := msg.StringField("document_id")
	if err != nil {
		return nil, err
	}
	filePath, err := msg.StringField("file_path")
	if err != nil {
		return nil, err
	}
	metadata, err := msg.MapField("metadata")
	if err != nil {
		return nil, err
	}

	content, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: document file %q does not exist", task.ErrValidation, filePath)
		}
		return nil, task.NewTransientError(fmt.Errorf("failed to read document file: %w", err))
	}

	text := string(content)
	if len(text) == 0 {
		return nil, fmt.Errorf("%w: document file %q is empty", task.ErrValidation, filePath)
	}

	next := task.New(task.TypeEmbeddingGeneration, map[string]interface{}{
		"document_id": documentID,
		"text":        text,
		"metadata":    metadata,
	})
	if err := h.publishNext(ctx, next); err != nil {
		return nil, err
	}

	h.logger.Info("Document processed, embedding generation enqueued",
		slog.String("document_id", documentID),
		slog.Int("text_length", len(text)),
		slog.String("next_task_id", next.TaskID),
	)

	return map[string]interface{}{
		"document_id":  documentID,
		"text_length":  len(text),
		"next_task_id": next.TaskID,
	}, nil
}

// GenerateEmbedding embeds the document text and chains a vector insert task
func (h *Handlers) GenerateEmbedding(ctx context.Context, msg *task.Message) (map[string]interface{}, error) {
	documentID, err := msg.StringField("document_id")
	if err != nil {
		return nil, err
	}
	text, err := msg.StringField("text")
	if err != nil {
		return nil, err
	}
	metadata, err := msg.MapField("metadata")
	if err != nil {
		return nil, err
	}

	vector, err := h.embedder.Embed(ctx, text)
	if err != nil {
		return nil, task.NewTransientError(fmt.Errorf("failed to generate embedding: %w", err))
	}

	embeddingValues := make([]interface{}, len(vector))
	for i, v := range vector {
		embeddingValues[i] = float64(v)
	}

	next := task.New(task.TypeVectorInsert, map[string]interface{}{
		"document_id": documentID,
		"embedding":   embeddingValues,
		"metadata":    metadata,
		"text":        text,
	})
	if err := h.publishNext(ctx, next); err != nil {
		return nil, err
	}

	h.logger.Info("Embedding generated, vector insert enqueued",
		slog.String("document_id", documentID),
		slog.Int("dimensions", len(vector)),
		slog.String("next_task_id", next.TaskID),
	)

	return map[string]interface{}{
		"document_id":  documentID,
		"dimensions":   len(vector),
		"next_task_id": next.TaskID,
	}, nil
}

// InsertVector upserts a document vector into the vector store
func (h *Handlers) InsertVector(ctx context.Context, msg *task.Message) (map[string]interface{}, error) {
	documentID, err := msg.StringField("document_id")
	if err != nil {
		return nil, err
	}
	metadata, err := msg.MapField("metadata")
	if err != nil {
		return nil, err
	}
	vector, err := floatVectorField(msg, "embedding")
	if err != nil {
		return nil, err
	}

	// text is optional carry-through for search result previews
	sourceText, _ := msg.StringField("text")

	point := vectorstore.Point{
		DocumentID: documentID,
		Vector:     vector,
		Metadata:   metadata,
		SourceText: sourceText,
	}

	if err := h.store.Upsert(ctx, point); err != nil {
		return nil, task.NewTransientError(fmt.Errorf("failed to upsert vector: %w", err))
	}

	h.logger.Info("Vector inserted",
		slog.String("document_id", documentID),
		slog.Int("dimensions", len(vector)),
	)

	return map[string]interface{}{
		"document_id": documentID,
		"dimensions":  len(vector),
	}, nil
}

// UploadFile uploads a local file to object storage
func (h *Handlers) UploadFile(ctx context.Context, msg *task.Message) (map[string]interface{}, error) {
	localPath, err := msg.StringField("local_path")
	if err != nil {
		return nil, err
	}
	bucket, err := msg.StringField("bucket_name")
	if err != nil {
		return nil, err
	}
	object, err := msg.StringField("object_name")
	if err != nil {
		return nil, err
	}

	if _, err := os.Stat(localPath); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: local file %q does not exist", task.ErrValidation, localPath)
		}
		return nil, task.NewTransientError(fmt.Errorf("failed to stat local file: %w", err))
	}

	if err := h.uploader.UploadFile(ctx, bucket, object, localPath); err != nil {
		return nil, task.NewTransientError(fmt.Errorf("failed to upload file: %w", err))
	}

	h.logger.Info("File uploaded to object storage",
		slog.String("bucket", bucket),
		slog.String("object", object),
	)

	return map[string]interface{}{
		"bucket": bucket,
		"object": object,
	}, nil
}

// SendNotification records a notification delivery. Delivery channels are
// out of process; the handler only validates and logs the request.
func (h *Handlers) SendNotification(ctx context.Context, msg *task.Message) (map[string]interface{}, error) {
	recipient, err := msg.StringField("recipient")
	if err != nil {
		return nil, err
	}
	message, err := msg.StringField("message")
	if err != nil {
		return nil, err
	}

	h.logger.Info("Notification dispatched",
		slog.String("recipient", recipient),
		slog.Int("message_length", len(message)),
	)

	return map[string]interface{}{
		"recipient":    recipient,
		"delivered_at": time.Now().UTC().Format(time.RFC3339),
	}, nil
}

// RecommendActivities runs the metadata-filtered recommendation pipeline
// for extracurricular activities
func (h *Handlers) RecommendActivities(ctx context.Context, msg *task.Message) (map[string]interface{}, error) {
	return h.recommend(ctx, msg, recommend.KindActivity)
}

// RecommendJobs runs the metadata-filtered recommendation pipeline for
// job postings
func (h *Handlers) RecommendJobs(ctx context.Context, msg *task.Message) (map[string]interface{}, error) {
	return h.recommend(ctx, msg, recommend.KindJob)
}

// AnalyzePortfolio retrieves the user's strongest portfolio matches and
// synthesizes a strengths and weaknesses analysis
func (h *Handlers) AnalyzePortfolio(ctx context.Context, msg *task.Message) (map[string]interface{}, error) {
	return h.recommend(ctx, msg, recommend.KindPortfolio)
}

// recommend is the shared retrieve-then-synthesize pipeline behind all
// recommendation task types
func (h *Handlers) recommend(ctx context.Context, msg *task.Message, kind recommend.Kind) (map[string]interface{}, error) {
	profile, err := msg.MapField("user_profile")
	if err != nil {
		return nil, err
	}
	if _, ok := profile["user_id"]; !ok {
		return nil, fmt.Errorf("%w: user_profile missing user_id", task.ErrValidation)
	}

	filters, err := msg.MapField("metadata_filters")
	if err != nil {
		return nil, err
	}
	if kind == recommend.KindPortfolio {
		// Portfolio analysis only ever looks at the requesting user's own
		// chunks, whatever other filters the payload carries.
		scoped := make(map[string]interface{}, len(filters)+1)
		for k, v := range filters {
			scoped[k] = v
		}
		scoped["user_id"] = profile["user_id"]
		filters = scoped
	}
	predicate, err := filter.Compile(filters)
	if err != nil {
		return nil, err
	}

	limit := defaultRetrievalLimit
	if _, ok := msg.Payload["n_results"]; ok {
		limit, err = msg.IntField("n_results")
		if err != nil {
			return nil, err
		}
	}

	queryText := recommend.BuildQueryText(kind, profile)
	queryVector, err := h.embedder.Embed(ctx, queryText)
	if err != nil {
		return nil, task.NewTransientError(fmt.Errorf("failed to embed query text: %w", err))
	}

	items, err := h.retriever.Retrieve(ctx, queryVector, predicate, limit)
	if err != nil {
		return nil, err
	}

	result, err := h.synthesizer.Synthesize(ctx, profile, items, kind)
	if err != nil {
		return nil, err
	}

	h.logger.Info("Recommendation pipeline completed",
		slog.String("kind", string(kind)),
		slog.Any("user_id", profile["user_id"]),
		slog.Int("candidates", len(items)),
		slog.Int("recommendations", len(result.Recommendations)),
	)

	return map[string]interface{}{
		"success":         result.Success,
		"recommendations": result.Recommendations,
		"generated_at":    result.GeneratedAt.Format(time.RFC3339),
	}, nil
}

// publishNext enqueues a chained follow-up task
func (h *Handlers) publishNext(ctx context.Context, next *task.Message) error {
	body, err := next.Encode()
	if err != nil {
		return fmt.Errorf("failed to encode chained task: %w", err)
	}
	if err := h.publisher.PublishToWorkQueue(ctx, body); err != nil {
		return task.NewTransientError(fmt.Errorf("failed to publish chained task: %w", err))
	}
	return nil
}

// floatVectorField extracts a float vector from the task payload
func floatVectorField(msg *task.Message, key string) ([]float32, error) {
	raw, ok := msg.Payload[key]
	if !ok {
		return nil, fmt.Errorf("%w: missing field %q", task.ErrValidation, key)
	}

	values, ok := raw.([]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: field %q must be an array", task.ErrValidation, key)
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("%w: field %q is empty", task.ErrValidation, key)
	}

	vector := make([]float32, len(values))
	for i, v := range values {
		switch n := v.(type) {
		case float64:
			vector[i] = float32(n)
		case float32:
			vector[i] = n
		case int:
			vector[i] = float32(n)
		default:
			return nil, fmt.Errorf("%w: field %q contains a non-numeric value at index %d", task.ErrValidation, key, i)
		}
	}

	return vector, nil
}
