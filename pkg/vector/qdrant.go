package vector

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
)

// QdrantConfig configures the Qdrant provider.
type QdrantConfig struct {
	// Host is the Qdrant server hostname.
	Host string `yaml:"host"`

	// Port is the Qdrant gRPC port (default: 6334).
	Port int `yaml:"port"`

	// APIKey for authenticated access (optional).
	APIKey string `yaml:"api_key,omitempty"`

	// UseTLS enables TLS connections.
	UseTLS bool `yaml:"use_tls,omitempty"`
}

// QdrantProvider stores vectors in a Qdrant server over gRPC.
//
// Qdrant point IDs must be UUIDs, so chunk IDs are mapped to deterministic
// UUIDv5 values; the original ID travels in the payload and is restored on
// read. The mapping keeps upserts idempotent per chunk ID.
type QdrantProvider struct {
	client *qdrant.Client
	config QdrantConfig
}

var _ Provider = (*QdrantProvider)(nil)

// NewQdrantProvider connects to a Qdrant server.
func NewQdrantProvider(cfg QdrantConfig) (*QdrantProvider, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("vector: connect qdrant %s:%d: %w", cfg.Host, cfg.Port, err)
	}

	return &QdrantProvider{client: client, config: cfg}, nil
}

func (p *QdrantProvider) Name() string { return "qdrant" }

func (p *QdrantProvider) EnsureCollection(ctx context.Context, collection string, dimension int) error {
	if err := validateNonEmpty(collection); err != nil {
		return err
	}
	exists, err := p.client.CollectionExists(ctx, collection)
	if err != nil {
		return fmt.Errorf("vector: check collection %q: %w", collection, err)
	}
	if exists {
		return nil
	}

	err = p.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dimension),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil && !strings.Contains(err.Error(), "already exists") {
		return fmt.Errorf("vector: create collection %q: %w", collection, err)
	}
	return nil
}

func (p *QdrantProvider) Upsert(ctx context.Context, collection string, points []Point) error {
	if err := validateNonEmpty(collection); err != nil {
		return err
	}
	if len(points) == 0 {
		return nil
	}

	if err := p.EnsureCollection(ctx, collection, len(points[0].Vector)); err != nil {
		return err
	}

	qPoints := make([]*qdrant.PointStruct, 0, len(points))
	for _, pt := range points {
		payload := make(map[string]*qdrant.Value, len(pt.Payload)+1)
		for key, value := range pt.Payload {
			val, err := qdrant.NewValue(value)
			if err != nil {
				return fmt.Errorf("vector: payload key %q: %w", key, err)
			}
			payload[key] = val
		}
		idVal, err := qdrant.NewValue(pt.ID)
		if err != nil {
			return fmt.Errorf("vector: point ID %q: %w", pt.ID, err)
		}
		payload["chunk_id"] = idVal

		qPoints = append(qPoints, &qdrant.PointStruct{
			Id:      qdrant.NewID(pointUUID(pt.ID)),
			Vectors: qdrant.NewVectors(pt.Vector...),
			Payload: payload,
		})
	}

	_, err := p.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: collection,
		Points:         qPoints,
	})
	if err != nil {
		return fmt.Errorf("vector: upsert %d points into %q: %w", len(qPoints), collection, err)
	}
	return nil
}

func (p *QdrantProvider) Search(ctx context.Context, collection string, vector []float32, limit int, threshold float32) ([]Match, error) {
	if err := validateNonEmpty(collection); err != nil {
		return nil, err
	}

	req := &qdrant.SearchPoints{
		CollectionName: collection,
		Vector:         vector,
		Limit:          uint64(limit),
		WithPayload:    qdrant.NewWithPayload(true),
	}
	if threshold > 0 {
		t := threshold
		req.ScoreThreshold = &t
	}

	result, err := p.client.GetPointsClient().Search(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("vector: search %q: %w", collection, err)
	}

	matches := make([]Match, 0, len(result.Result))
	for _, point := range result.Result {
		payload := decodeQdrantPayload(point.Payload)
		id := ""
		if chunkID, ok := payload["chunk_id"].(string); ok {
			id = chunkID
			delete(payload, "chunk_id")
		} else if point.Id != nil {
			if u, ok := point.Id.PointIdOptions.(*qdrant.PointId_Uuid); ok {
				id = u.Uuid
			}
		}

		matches = append(matches, Match{
			ID:      id,
			Score:   point.Score,
			Content: contentFromPayload(payload),
			Payload: payload,
		})
	}
	return matches, nil
}

func (p *QdrantProvider) Delete(ctx context.Context, collection string, ids []string) error {
	if err := validateNonEmpty(collection); err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}

	pointIDs := make([]*qdrant.PointId, 0, len(ids))
	for _, id := range ids {
		pointIDs = append(pointIDs, qdrant.NewID(pointUUID(id)))
	}

	_, err := p.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: collection,
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Points{
				Points: &qdrant.PointsIdsList{Ids: pointIDs},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("vector: delete %d points from %q: %w", len(ids), collection, err)
	}
	return nil
}

func (p *QdrantProvider) DropCollection(ctx context.Context, collection string) error {
	if err := validateNonEmpty(collection); err != nil {
		return err
	}
	if err := p.client.DeleteCollection(ctx, collection); err != nil {
		return fmt.Errorf("vector: drop collection %q: %w", collection, err)
	}
	return nil
}

func (p *QdrantProvider) Close() error {
	return p.client.Close()
}

// pointUUID derives a stable UUIDv5 from an arbitrary chunk ID.
func pointUUID(id string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(id)).String()
}

func decodeQdrantPayload(payload map[string]*qdrant.Value) map[string]any {
	out := make(map[string]any, len(payload))
	for key, value := range payload {
		out[key] = decodeQdrantValue(value)
	}
	return out
}

func decodeQdrantValue(value *qdrant.Value) any {
	switch v := value.Kind.(type) {
	case *qdrant.Value_StringValue:
		return v.StringValue
	case *qdrant.Value_IntegerValue:
		return v.IntegerValue
	case *qdrant.Value_DoubleValue:
		return v.DoubleValue
	case *qdrant.Value_BoolValue:
		return v.BoolValue
	case *qdrant.Value_ListValue:
		if v.ListValue == nil {
			return nil
		}
		list := make([]any, len(v.ListValue.Values))
		for i, item := range v.ListValue.Values {
			list[i] = decodeQdrantValue(item)
		}
		return list
	default:
		return value
	}
}
