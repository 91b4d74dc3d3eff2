// Package qdrant provides a VectorDB implementation using Qdrant.
package qdrant

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"

	"github.com/ersonp/relgraph/internal/domain/ports"
	"github.com/ersonp/relgraph/internal/infrastructure/config"
)

// Payload keys stored on every point.
const (
	keyRelationshipID   = "relationship_id"
	keyOrganizationID   = "organization_id"
	keyRelationshipType = "relationship_type"
	keyText             = "text"
)

// pointNamespace derives stable point IDs for relationship IDs that are not UUIDs.
var pointNamespace = uuid.MustParse("6f1c2a3e-94b0-4d7e-8a51-0c9e3f27d6b4")

var (
	_ ports.VectorDB          = (*Repository)(nil)
	_ ports.CollectionManager = (*Repository)(nil)
)

// Repository implements the VectorDB interface using Qdrant.
type Repository struct {
	client     pb.CollectionsClient
	points     pb.PointsClient
	collection string
	conn       *grpc.ClientConn
}

// NewRepository creates a new Qdrant repository.
func NewRepository(cfg config.QdrantConfig) (*Repository, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	opts := []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	if cfg.APIKey != "" {
		opts = append(opts, grpc.WithUnaryInterceptor(apiKeyInterceptor(cfg.APIKey)))
	}

	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("connecting to qdrant: %w", err)
	}

	return &Repository{
		client:     pb.NewCollectionsClient(conn),
		points:     pb.NewPointsClient(conn),
		collection: cfg.CollectionName(),
		conn:       conn,
	}, nil
}

func apiKeyInterceptor(key string) grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		ctx = metadata.AppendToOutgoingContext(ctx, "api-key", key)
		return invoker(ctx, method, req, reply, cc, opts...)
	}
}

// Close closes the gRPC connection.
func (r *Repository) Close() error {
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}

// EnsureCollection creates the collection if it doesn't exist, along with
// the keyword index used for tenant filtering.
func (r *Repository) EnsureCollection(ctx context.Context, vectorSize uint64) error {
	_, err := r.client.Get(ctx, &pb.GetCollectionInfoRequest{
		CollectionName: r.collection,
	})
	if err == nil {
		return nil
	}

	_, err = r.client.Create(ctx, &pb.CreateCollection{
		CollectionName: r.collection,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     vectorSize,
					Distance: pb.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("creating collection: %w", err)
	}

	_, err = r.points.CreateFieldIndex(ctx, &pb.CreateFieldIndexCollection{
		CollectionName: r.collection,
		FieldName:      keyOrganizationID,
		FieldType:      pb.FieldType_FieldTypeKeyword.Enum(),
	})
	if err != nil {
		return fmt.Errorf("creating organization index: %w", err)
	}

	return nil
}

// DeleteCollection removes the collection and every point in it.
func (r *Repository) DeleteCollection(ctx context.Context) error {
	_, err := r.client.Delete(ctx, &pb.DeleteCollection{
		CollectionName: r.collection,
	})
	if err != nil {
		return fmt.Errorf("deleting collection: %w", err)
	}
	return nil
}

// Save upserts the point for one relationship.
func (r *Repository) Save(ctx context.Context, doc ports.IndexDocument) error {
	_, err := r.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: r.collection,
		Wait:           pb.PtrOf(true),
		Points:         []*pb.PointStruct{documentToPoint(doc)},
	})
	if err != nil {
		return fmt.Errorf("upserting point: %w", err)
	}

	return nil
}

// Search returns the closest points of one organization.
func (r *Repository) Search(ctx context.Context, orgID string, embedding []float32, limit int) ([]ports.SearchHit, error) {
	if limit <= 0 {
		return nil, nil
	}

	resp, err := r.points.Search(ctx, &pb.SearchPoints{
		CollectionName: r.collection,
		Vector:         embedding,
		Limit:          uint64(limit),
		Filter:         organizationFilter(orgID),
		WithPayload: &pb.WithPayloadSelector{
			SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("searching points: %w", err)
	}

	return scoredPointsToHits(resp.Result), nil
}

// Delete removes the point of one relationship.
func (r *Repository) Delete(ctx context.Context, id string) error {
	_, err := r.points.Delete(ctx, &pb.DeletePoints{
		CollectionName: r.collection,
		Wait:           pb.PtrOf(true),
		Points: &pb.PointsSelector{
			PointsSelectorOneOf: &pb.PointsSelector_Points{
				Points: &pb.PointsIdsList{
					Ids: []*pb.PointId{pointID(id)},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("deleting point: %w", err)
	}

	return nil
}

// Count returns the number of points stored for one organization.
func (r *Repository) Count(ctx context.Context, orgID string) (uint64, error) {
	resp, err := r.points.Count(ctx, &pb.CountPoints{
		CollectionName: r.collection,
		Filter:         organizationFilter(orgID),
		Exact:          pb.PtrOf(true),
	})
	if err != nil {
		return 0, fmt.Errorf("counting points: %w", err)
	}

	return resp.GetResult().GetCount(), nil
}

// pointID maps a relationship ID onto a Qdrant point ID. UUIDs are used as-is.
func pointID(id string) *pb.PointId {
	u, err := uuid.Parse(id)
	if err != nil {
		u = uuid.NewSHA1(pointNamespace, []byte(id))
	}
	return &pb.PointId{
		PointIdOptions: &pb.PointId_Uuid{Uuid: u.String()},
	}
}

func documentToPoint(doc ports.IndexDocument) *pb.PointStruct {
	return &pb.PointStruct{
		Id: pointID(doc.ID),
		Vectors: &pb.Vectors{
			VectorsOptions: &pb.Vectors_Vector{
				Vector: &pb.Vector{Data: doc.Embedding},
			},
		},
		Payload: map[string]*pb.Value{
			keyRelationshipID:   stringValue(doc.ID),
			keyOrganizationID:   stringValue(doc.OrganizationID),
			keyRelationshipType: stringValue(doc.RelationshipType),
			keyText:             stringValue(doc.Text),
		},
	}
}

func organizationFilter(orgID string) *pb.Filter {
	return &pb.Filter{
		Must: []*pb.Condition{
			{
				ConditionOneOf: &pb.Condition_Field{
					Field: &pb.FieldCondition{
						Key: keyOrganizationID,
						Match: &pb.Match{
							MatchValue: &pb.Match_Keyword{Keyword: orgID},
						},
					},
				},
			},
		},
	}
}

// scoredPointsToHits converts scored points to hits, preferring the
// relationship ID kept in the payload over the derived point ID.
func scoredPointsToHits(points []*pb.ScoredPoint) []ports.SearchHit {
	hits := make([]ports.SearchHit, 0, len(points))
	for _, point := range points {
		id := getStringValue(point.Payload, keyRelationshipID)
		if id == "" {
			id = point.GetId().GetUuid()
		}
		if id == "" {
			continue
		}
		hits = append(hits, ports.SearchHit{ID: id, Score: point.Score})
	}
	return hits
}

func stringValue(s string) *pb.Value {
	return &pb.Value{Kind: &pb.Value_StringValue{StringValue: s}}
}

func getStringValue(payload map[string]*pb.Value, key string) string {
	if v, ok := payload[key]; ok {
		return v.GetStringValue()
	}
	return ""
}
