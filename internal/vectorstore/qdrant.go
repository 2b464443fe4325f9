package vectorstore

import (
	"context"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
)

// QdrantConfig holds connection settings for a Qdrant instance.
type QdrantConfig struct {
	Host   string
	Port   int
	APIKey string
}

// Client wraps gRPC connections to Qdrant's collections and points services.
type Client struct {
	conn        *grpc.ClientConn
	collections pb.CollectionsClient
	points      pb.PointsClient
}

// NewClient dials the Qdrant gRPC endpoint. The connection is lazy: the first
// call surfaces an unreachable server.
func NewClient(cfg QdrantConfig) (*Client, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	opts := []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	if cfg.APIKey != "" {
		opts = append(opts, grpc.WithUnaryInterceptor(apiKeyInterceptor(cfg.APIKey)))
	}

	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("qdrant connect %s: %w", addr, err)
	}
	return &Client{
		conn:        conn,
		collections: pb.NewCollectionsClient(conn),
		points:      pb.NewPointsClient(conn),
	}, nil
}

func apiKeyInterceptor(key string) grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		ctx = metadata.AppendToOutgoingContext(ctx, "api-key", key)
		return invoker(ctx, method, req, reply, cc, opts...)
	}
}

// CollectionExists reports whether name is a collection on the server.
func (c *Client) CollectionExists(ctx context.Context, name string) (bool, error) {
	names, err := c.ListCollections(ctx)
	if err != nil {
		return false, err
	}
	for _, n := range names {
		if n == name {
			return true, nil
		}
	}
	return false, nil
}

func (c *Client) ListCollections(ctx context.Context) ([]string, error) {
	resp, err := c.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}
	names := make([]string, 0, len(resp.GetCollections()))
	for _, col := range resp.GetCollections() {
		names = append(names, col.GetName())
	}
	return names, nil
}

// EnsureCollection creates the named cosine collection if it does not already
// exist. It reports whether it created one.
func (c *Client) EnsureCollection(ctx context.Context, name string, dimension uint64) (bool, error) {
	exists, err := c.CollectionExists(ctx, name)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}
	_, err = c.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: name,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     dimension,
					Distance: pb.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return false, fmt.Errorf("create collection %s: %w", name, err)
	}
	return true, nil
}

// Upsert inserts or updates a single point in the given collection.
func (c *Client) Upsert(ctx context.Context, collection, id string, vector []float32, payload map[string]*pb.Value) error {
	wait := true
	_, err := c.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: collection,
		Wait:           &wait,
		Points: []*pb.PointStruct{
			{
				Id:      toPointID(id),
				Vectors: &pb.Vectors{VectorsOptions: &pb.Vectors_Vector{Vector: &pb.Vector{Data: vector}}},
				Payload: payload,
			},
		},
	})
	if err != nil {
		return fmt.Errorf("upsert %s/%s: %w", collection, id, err)
	}
	return nil
}

// Point is a stored point without its vector.
type Point struct {
	ID      string
	Score   float32
	Payload map[string]*pb.Value
}

// Scroll pages through collection until limit points are read or the
// collection is exhausted. A nil filter reads every point.
func (c *Client) Scroll(ctx context.Context, collection string, filter *pb.Filter, limit int) ([]Point, error) {
	var (
		out    []Point
		offset *pb.PointId
	)
	for limit <= 0 || len(out) < limit {
		page := uint32(DefaultPageSize)
		if limit > 0 && limit-len(out) < DefaultPageSize {
			page = uint32(limit - len(out))
		}
		resp, err := c.points.Scroll(ctx, &pb.ScrollPoints{
			CollectionName: collection,
			Filter:         filter,
			Offset:         offset,
			Limit:          &page,
			WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
		})
		if err != nil {
			return nil, fmt.Errorf("scroll %s: %w", collection, err)
		}
		for _, p := range resp.GetResult() {
			out = append(out, Point{ID: pointID(p.GetId()), Payload: p.GetPayload()})
		}
		offset = resp.GetNextPageOffset()
		if offset == nil || len(resp.GetResult()) == 0 {
			break
		}
	}
	return out, nil
}

// Search returns points scoring at or above threshold against vector, best first.
func (c *Client) Search(ctx context.Context, collection string, vector []float32, topK uint64, threshold float32) ([]Point, error) {
	resp, err := c.points.Search(ctx, &pb.SearchPoints{
		CollectionName: collection,
		Vector:         vector,
		Limit:          topK,
		ScoreThreshold: &threshold,
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", collection, err)
	}
	out := make([]Point, 0, len(resp.GetResult()))
	for _, r := range resp.GetResult() {
		out = append(out, Point{ID: pointID(r.GetId()), Score: r.GetScore(), Payload: r.GetPayload()})
	}
	return out, nil
}

// Delete removes points by id.
func (c *Client) Delete(ctx context.Context, collection string, ids []string) error {
	pointIDs := make([]*pb.PointId, len(ids))
	for i, id := range ids {
		pointIDs[i] = toPointID(id)
	}
	wait := true
	_, err := c.points.Delete(ctx, &pb.DeletePoints{
		CollectionName: collection,
		Wait:           &wait,
		Points: &pb.PointsSelector{
			PointsSelectorOneOf: &pb.PointsSelector_Points{
				Points: &pb.PointsIdsList{Ids: pointIDs},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("delete from %s: %w", collection, err)
	}
	return nil
}

// Count returns the exact number of points in collection.
func (c *Client) Count(ctx context.Context, collection string) (uint64, error) {
	exact := true
	resp, err := c.points.Count(ctx, &pb.CountPoints{CollectionName: collection, Exact: &exact})
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", collection, err)
	}
	return resp.GetResult().GetCount(), nil
}

// Close tears down the underlying gRPC connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// toPointID accepts both id kinds Qdrant supports; older population scripts wrote numeric ids.
func toPointID(id string) *pb.PointId {
	if _, err := uuid.Parse(id); err != nil {
		if n, err := strconv.ParseUint(id, 10, 64); err == nil {
			return &pb.PointId{PointIdOptions: &pb.PointId_Num{Num: n}}
		}
	}
	return &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: id}}
}

func pointID(id *pb.PointId) string {
	if id == nil {
		return ""
	}
	if u := id.GetUuid(); u != "" {
		return u
	}
	return strconv.FormatUint(id.GetNum(), 10)
}
