package vectorstore

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/careerhub/ai-pipeline/internal/filter"
)

// payload keys reserved by the store itself
const (
	payloadKeyDocumentID = "document_id"
	payloadKeyDocument   = "document"
)

// Config holds Qdrant connection configuration
type Config struct {
	Host       string
	Port       string
	Collection string
	VectorSize int
}

// QdrantStore implements Store against a Qdrant collection over gRPC
type QdrantStore struct {
	config      Config
	conn        *grpc.ClientConn
	points      qdrant.PointsClient
	collections qdrant.CollectionsClient
	logger      *slog.Logger
}

// NewQdrantStore connects to Qdrant and ensures the collection exists
func NewQdrantStore(ctx context.Context, config Config, logger *slog.Logger) (*QdrantStore, error) {
	url := config.Host + ":" + config.Port
	conn, err := grpc.Dial(url, grpc.WithInsecure())
	if err != nil {
		logger.Error("Failed to connect to Qdrant",
			slog.String("url", url),
			slog.Any("error", err),
		)
		return nil, fmt.Errorf("failed to connect to qdrant: %w", err)
	}

	store := &QdrantStore{
		config:      config,
		conn:        conn,
		points:      qdrant.NewPointsClient(conn),
		collections: qdrant.NewCollectionsClient(conn),
		logger:      logger,
	}

	if err := store.ensureCollection(ctx); err != nil {
		conn.Close()
		return nil, err
	}

	logger.Info("Qdrant store initialized",
		slog.String("url", url),
		slog.String("collection", config.Collection),
	)

	return store, nil
}

func (s *QdrantStore) ensureCollection(ctx context.Context) error {
	_, err := s.collections.Get(ctx, &qdrant.GetCollectionInfoRequest{
		CollectionName: s.config.Collection,
	})
	if err == nil {
		return nil
	}

	st, ok := status.FromError(err)
	if !ok || st.Code() != codes.NotFound {
		return fmt.Errorf("failed to check collection: %w", err)
	}

	s.logger.Info("Creating Qdrant collection",
		slog.String("collection", s.config.Collection),
		slog.Int("vector_size", s.config.VectorSize),
	)

	_, err = s.collections.Create(ctx, &qdrant.CreateCollection{
		CollectionName: s.config.Collection,
		VectorsConfig: &qdrant.VectorsConfig{
			Config: &qdrant.VectorsConfig_Params{
				Params: &qdrant.VectorParams{
					Size:     uint64(s.config.VectorSize),
					Distance: qdrant.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	return nil
}

// pointID derives the point UUID from the document ID. The derivation is
// deterministic: the same document always maps to the same point, so a
// repeated insert overwrites rather than duplicates.
func pointID(documentID string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(documentID)).String()
}

// Upsert writes the point under a UUID derived from the document ID
func (s *QdrantStore) Upsert(ctx context.Context, point Point) error {
	id := pointID(point.DocumentID)

	payload := payloadFromMap(point.Metadata)
	payload[payloadKeyDocumentID] = &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: point.DocumentID}}
	if point.SourceText != "" {
		payload[payloadKeyDocument] = &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: point.SourceText}}
	}

	_, err := s.points.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.config.Collection,
		Points: []*qdrant.PointStruct{
			{
				Id:      &qdrant.PointId{PointIdOptions: &qdrant.PointId_Uuid{Uuid: id}},
				Payload: payload,
				Vectors: &qdrant.Vectors{VectorsOptions: &qdrant.Vectors_Vector{
					Vector: &qdrant.Vector{Data: point.Vector},
				}},
			},
		},
	})
	if err != nil {
		s.logger.Error("Failed to upsert point",
			slog.String("collection", s.config.Collection),
			slog.String("document_id", point.DocumentID),
			slog.Any("error", err),
		)
		return fmt.Errorf("failed to upsert point: %w", err)
	}

	s.logger.Debug("Point upserted",
		slog.String("collection", s.config.Collection),
		slog.String("document_id", point.DocumentID),
	)

	return nil
}

// Search runs a filtered nearest-neighbor query
func (s *QdrantStore) Search(ctx context.Context, vector []float32, predicate *filter.Compiled, limit int) ([]Hit, error) {
	if limit <= 0 {
		return nil, nil
	}

	resp, err := s.points.Search(ctx, &qdrant.SearchPoints{
		CollectionName: s.config.Collection,
		Vector:         vector,
		Filter:         predicate.ToQdrant(),
		Limit:          uint64(limit),
		WithPayload: &qdrant.WithPayloadSelector{
			SelectorOptions: &qdrant.WithPayloadSelector_Enable{Enable: true},
		},
	})
	if err != nil {
		s.logger.Error("Vector search failed",
			slog.String("collection", s.config.Collection),
			slog.Any("error", err),
		)
		return nil, fmt.Errorf("failed to search vectors: %w", err)
	}

	hits := make([]Hit, 0, len(resp.Result))
	for _, point := range resp.Result {
		hit := Hit{Score: point.Score, Metadata: mapFromPayload(point.Payload)}

		if id, ok := hit.Metadata[payloadKeyDocumentID].(string); ok {
			hit.DocumentID = id
		} else {
			hit.DocumentID = point.Id.GetUuid()
		}
		delete(hit.Metadata, payloadKeyDocumentID)

		if text, ok := hit.Metadata[payloadKeyDocument].(string); ok {
			hit.SourceText = text
			delete(hit.Metadata, payloadKeyDocument)
		}

		hits = append(hits, hit)
	}

	return hits, nil
}

// Close tears down the gRPC connection
func (s *QdrantStore) Close() error {
	return s.conn.Close()
}

func payloadFromMap(metadata map[string]any) map[string]*qdrant.Value {
	payload := make(map[string]*qdrant.Value, len(metadata)+2)
	for key, raw := range metadata {
		payload[key] = valueFromAny(raw)
	}
	return payload
}

func valueFromAny(raw any) *qdrant.Value {
	switch v := raw.(type) {
	case string:
		return &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: v}}
	case bool:
		return &qdrant.Value{Kind: &qdrant.Value_BoolValue{BoolValue: v}}
	case float64:
		if v == float64(int64(v)) {
			return &qdrant.Value{Kind: &qdrant.Value_IntegerValue{IntegerValue: int64(v)}}
		}
		return &qdrant.Value{Kind: &qdrant.Value_DoubleValue{DoubleValue: v}}
	case int:
		return &qdrant.Value{Kind: &qdrant.Value_IntegerValue{IntegerValue: int64(v)}}
	case int64:
		return &qdrant.Value{Kind: &qdrant.Value_IntegerValue{IntegerValue: v}}
	case []any:
		values := make([]*qdrant.Value, 0, len(v))
		for _, member := range v {
			values = append(values, valueFromAny(member))
		}
		return &qdrant.Value{Kind: &qdrant.Value_ListValue{ListValue: &qdrant.ListValue{Values: values}}}
	default:
		return &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: fmt.Sprintf("%v", v)}}
	}
}

func mapFromPayload(payload map[string]*qdrant.Value) map[string]any {
	metadata := make(map[string]any, len(payload))
	for key, value := range payload {
		metadata[key] = anyFromValue(value)
	}
	return metadata
}

func anyFromValue(value *qdrant.Value) any {
	switch kind := value.GetKind().(type) {
	case *qdrant.Value_StringValue:
		return kind.StringValue
	case *qdrant.Value_BoolValue:
		return kind.BoolValue
	case *qdrant.Value_IntegerValue:
		return kind.IntegerValue
	case *qdrant.Value_DoubleValue:
		return kind.DoubleValue
	case *qdrant.Value_ListValue:
		members := make([]any, 0, len(kind.ListValue.GetValues()))
		for _, member := range kind.ListValue.GetValues() {
			members = append(members, anyFromValue(member))
		}
		return members
	default:
		return nil
	}
}
