package qdrant

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"

	"smartual/internal/domain"
	"smartual/internal/embedding"
)

const upsertBatch = 256

// pointsAPI is the subset of pb.PointsClient used by Storage.
type pointsAPI interface {
	Upsert(ctx context.Context, in *pb.UpsertPoints, opts ...grpc.CallOption) (*pb.PointsOperationResponse, error)
	Search(ctx context.Context, in *pb.SearchPoints, opts ...grpc.CallOption) (*pb.SearchResponse, error)
}

// collectionsAPI is the subset of pb.CollectionsClient used by Storage.
type collectionsAPI interface {
	List(ctx context.Context, in *pb.ListCollectionsRequest, opts ...grpc.CallOption) (*pb.ListCollectionsResponse, error)
	Create(ctx context.Context, in *pb.CreateCollection, opts ...grpc.CallOption) (*pb.CollectionOperationResponse, error)
	Delete(ctx context.Context, in *pb.DeleteCollection, opts ...grpc.CallOption) (*pb.CollectionOperationResponse, error)
}

// Storage keeps passage vectors in a Qdrant collection using Euclid distance.
// Point IDs are passage positions.
type Storage struct {
	conn        *grpc.ClientConn
	points      pointsAPI
	collections collectionsAPI
	collection  string
	apiKey      string
	timeout     time.Duration

	mu        sync.Mutex
	dimension int
	count     int
}

type Config struct {
	Addr       string
	APIKey     string
	Collection string
	Timeout    time.Duration
}

// NewStorage dials Qdrant's gRPC endpoint at cfg.Addr.
func NewStorage(cfg Config) (*Storage, error) {
	conn, err := grpc.NewClient(cfg.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("qdrant: dial %s: %w", cfg.Addr, err)
	}
	s := NewWithClients(pb.NewPointsClient(conn), pb.NewCollectionsClient(conn), cfg)
	s.conn = conn
	return s, nil
}

// NewWithClients builds a Storage over existing clients.
func NewWithClients(points pointsAPI, collections collectionsAPI, cfg Config) *Storage {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Storage{
		points:      points,
		collections: collections,
		collection:  cfg.Collection,
		apiKey:      cfg.APIKey,
		timeout:     timeout,
	}
}

// WithCollection returns a Storage over the same connection that targets
// another collection. Closing it does not close the connection.
func (s *Storage) WithCollection(name string) *Storage {
	return &Storage{
		points:      s.points,
		collections: s.collections,
		collection:  name,
		apiKey:      s.apiKey,
		timeout:     s.timeout,
	}
}

// Collection returns the target collection name.
func (s *Storage) Collection() string { return s.collection }

// Drop deletes the collection.
func (s *Storage) Drop(ctx context.Context) error { return s.Clear(ctx) }

// Close closes the underlying gRPC connection, if any.
func (s *Storage) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

func (s *Storage) ctx(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(parent, s.timeout)
	if s.apiKey != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, "api-key", s.apiKey)
	}
	return ctx, cancel
}

// Init creates the collection if it does not exist.
func (s *Storage) Init(parent context.Context, dimension int) error {
	if dimension <= 0 {
		return errors.New("invalid dimension")
	}
	ctx, cancel := s.ctx(parent)
	defer cancel()

	list, err := s.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return fmt.Errorf("qdrant: list collections: %w", err)
	}
	exists := false
	for _, c := range list.GetCollections() {
		if c.GetName() == s.collection {
			exists = true
			break
		}
	}
	if !exists {
		_, err = s.collections.Create(ctx, &pb.CreateCollection{
			CollectionName: s.collection,
			VectorsConfig: &pb.VectorsConfig{
				Config: &pb.VectorsConfig_Params{
					Params: &pb.VectorParams{
						Size:     uint64(dimension),
						Distance: pb.Distance_Euclid,
					},
				},
			},
		})
		if err != nil {
			return fmt.Errorf("qdrant: create collection %s: %w", s.collection, err)
		}
	}
	s.mu.Lock()
	s.dimension = dimension
	s.count = 0
	s.mu.Unlock()
	return nil
}

// Upsert stores vectors with sequential point IDs.
func (s *Storage) Upsert(parent context.Context, vectors [][]float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range vectors {
		if len(v) != s.dimension {
			return domain.ErrDimensionMismatch
		}
	}
	wait := true
	for start := 0; start < len(vectors); start += upsertBatch {
		end := min(start+upsertBatch, len(vectors))
		points := make([]*pb.PointStruct, 0, end-start)
		for i := start; i < end; i++ {
			points = append(points, &pb.PointStruct{
				Id: &pb.PointId{
					PointIdOptions: &pb.PointId_Num{Num: uint64(s.count + i)},
				},
				Vectors: &pb.Vectors{
					VectorsOptions: &pb.Vectors_Vector{
						Vector: &pb.Vector{Data: embedding.ToFloat32(vectors[i])},
					},
				},
			})
		}
		ctx, cancel := s.ctx(parent)
		_, err := s.points.Upsert(ctx, &pb.UpsertPoints{
			CollectionName: s.collection,
			Wait:           &wait,
			Points:         points,
		})
		cancel()
		if err != nil {
			return fmt.Errorf("qdrant: upsert %d points: %w", len(points), err)
		}
	}
	s.count += len(vectors)
	return nil
}

// Search returns the k nearest points. Qdrant reports Euclidean distance,
// which is squared here to match the in-memory store.
func (s *Storage) Search(parent context.Context, vector []float64, k int) ([]domain.Neighbor, error) {
	if k <= 0 {
		return nil, nil
	}
	ctx, cancel := s.ctx(parent)
	defer cancel()
	resp, err := s.points.Search(ctx, &pb.SearchPoints{
		CollectionName: s.collection,
		Vector:         embedding.ToFloat32(vector),
		Limit:          uint64(k),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: search: %w", err)
	}
	out := make([]domain.Neighbor, 0, len(resp.GetResult()))
	for _, r := range resp.GetResult() {
		d := float64(r.GetScore())
		out = append(out, domain.Neighbor{Position: int(r.GetId().GetNum()), Distance: d * d})
	}
	sort.SliceStable(out, func(a, b int) bool {
		if out[a].Distance != out[b].Distance {
			return out[a].Distance < out[b].Distance
		}
		return out[a].Position < out[b].Position
	})
	return out, nil
}

// Clear drops the collection.
func (s *Storage) Clear(parent context.Context) error {
	ctx, cancel := s.ctx(parent)
	defer cancel()
	if _, err := s.collections.Delete(ctx, &pb.DeleteCollection{CollectionName: s.collection}); err != nil {
		return fmt.Errorf("qdrant: delete collection %s: %w", s.collection, err)
	}
	s.mu.Lock()
	s.count = 0
	s.mu.Unlock()
	return nil
}
