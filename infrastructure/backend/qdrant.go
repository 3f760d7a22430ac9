// Package backend provides the Qdrant-backed implementation of
// domain/backend.Adapter, wrapped in a circuit breaker so a struggling
// Qdrant instance fails fast instead of piling up blocked goroutines.
package backend

import (
	"context"
	"fmt"
	"time"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/vectorgate/vectorgate/domain/apperr"
	"github.com/vectorgate/vectorgate/domain/backend"
	"github.com/vectorgate/vectorgate/domain/collection"
	"github.com/vectorgate/vectorgate/domain/registry"
)

// QdrantConfig is the connection configuration for a Qdrant gRPC endpoint.
type QdrantConfig struct {
	Addr    string
	APIKey  string
	Timeout time.Duration
}

// QdrantAdapter implements domain/backend.Adapter against a Qdrant gRPC
// endpoint. Every call is routed through a circuit breaker so a single
// wedged Qdrant instance fails fast rather than piling up goroutines
// behind a dead connection.
type QdrantAdapter struct {
	conn        *grpc.ClientConn
	points      pb.PointsClient
	collections pb.CollectionsClient
	timeout     time.Duration
	breaker     *Breaker
}

// NewQdrantAdapter dials addr and returns a ready QdrantAdapter. The
// dial itself is lazy (grpc.NewClient does not block), so connectivity
// problems surface on first use as BackendUnavailable, not at
// construction.
func NewQdrantAdapter(cfg QdrantConfig) (*QdrantAdapter, error) {
	var opts []grpc.DialOption
	opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if cfg.APIKey != "" {
		opts = append(opts, grpc.WithPerRPCCredentials(apiKeyCreds(cfg.APIKey)))
	}

	conn, err := grpc.NewClient(cfg.Addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("backend: dial qdrant %s: %w", cfg.Addr, err)
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &QdrantAdapter{
		conn:        conn,
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
		timeout:     timeout,
		breaker:     NewBreaker("qdrant"),
	}, nil
}

// Close closes the underlying gRPC connection.
func (a *QdrantAdapter) Close() error {
	return a.conn.Close()
}

func (a *QdrantAdapter) ctx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, a.timeout)
}

// CollectionExists reports whether name exists, per the list of known
// collections. A missing collection is not an error.
func (a *QdrantAdapter) CollectionExists(ctx context.Context, name string) (bool, error) {
	cctx, cancel := a.ctx(ctx)
	defer cancel()

	resp, err := Call(a.breaker, func() (*pb.ListCollectionsResponse, error) {
		return a.collections.List(cctx, &pb.ListCollectionsRequest{})
	})
	if err != nil {
		return false, apperr.BackendUnavailable("list_collections", err)
	}
	for _, c := range resp.GetCollections() {
		if c.GetName() == name {
			return true, nil
		}
	}
	return false, nil
}

// CreateCollection creates name with the given vector geometry. If
// Qdrant reports the collection already exists, backend.ErrAlreadyExists
// is returned so the caller can re-verify rather than fail.
func (a *QdrantAdapter) CreateCollection(ctx context.Context, name string, spec collection.VectorSpec) error {
	cctx, cancel := a.ctx(ctx)
	defer cancel()

	vecParams := &pb.VectorParams{
		Size:     uint64(spec.Size),
		Distance: toPBDistance(spec.Distance),
	}
	if spec.HNSW.EfConstruct > 0 || spec.HNSW.M > 0 {
		hnsw := &pb.HnswConfigDiff{}
		if spec.HNSW.M > 0 {
			m := uint64(spec.HNSW.M)
			hnsw.M = &m
		}
		if spec.HNSW.EfConstruct > 0 {
			ef := uint64(spec.HNSW.EfConstruct)
			hnsw.EfConstruct = &ef
		}
		vecParams.HnswConfig = hnsw
	}

	req := &pb.CreateCollection{
		CollectionName: name,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_ParamsMap{
				ParamsMap: &pb.VectorParamsMap{
					Map: map[string]*pb.VectorParams{
						spec.VectorName: vecParams,
					},
				},
			},
		},
	}
	if spec.Quantization.Enabled {
		quantile := float32(spec.Quantization.Quantile)
		alwaysRAM := spec.Quantization.AlwaysRAM
		req.QuantizationConfig = &pb.QuantizationConfig{
			Quantization: &pb.QuantizationConfig_Scalar{
				Scalar: &pb.ScalarQuantization{
					Type:      pb.QuantizationType_Int8,
					Quantile:  &quantile,
					AlwaysRam: &alwaysRAM,
				},
			},
		}
	}

	_, err := Call(a.breaker, func() (*pb.CollectionOperationResponse, error) {
		return a.collections.Create(cctx, req)
	})
	if err != nil {
		if status.Code(err) == codes.AlreadyExists {
			return backend.ErrAlreadyExists
		}
		return apperr.BackendUnavailable("create_collection", err)
	}
	return nil
}

// GetCollection returns the current geometry and health of name.
func (a *QdrantAdapter) GetCollection(ctx context.Context, name string) (backend.CollectionDetail, error) {
	cctx, cancel := a.ctx(ctx)
	defer cancel()

	resp, err := Call(a.breaker, func() (*pb.GetCollectionInfoResponse, error) {
		return a.collections.Get(cctx, &pb.GetCollectionInfoRequest{CollectionName: name})
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return backend.CollectionDetail{}, apperr.NoSuchCollection(name)
		}
		return backend.CollectionDetail{}, apperr.BackendUnavailable("get_collection", err)
	}

	info := resp.GetResult()
	return collectionDetailFromInfo(name, info), nil
}

// ListCollections returns a summary row for every collection known to
// the backend.
func (a *QdrantAdapter) ListCollections(ctx context.Context) ([]backend.CollectionSummary, error) {
	cctx, cancel := a.ctx(ctx)
	defer cancel()

	list, err := Call(a.breaker, func() (*pb.ListCollectionsResponse, error) {
		return a.collections.List(cctx, &pb.ListCollectionsRequest{})
	})
	if err != nil {
		return nil, apperr.BackendUnavailable("list_collections", err)
	}

	out := make([]backend.CollectionSummary, 0, len(list.GetCollections()))
	for _, c := range list.GetCollections() {
		detail, err := a.GetCollection(ctx, c.GetName())
		if err != nil {
			continue
		}
		out = append(out, detail.CollectionSummary)
	}
	return out, nil
}

// UpsertPoints writes or overwrites points in collectionName under the
// collection's single named vector slot.
func (a *QdrantAdapter) UpsertPoints(ctx context.Context, collectionName string, points []collection.Point) error {
	if len(points) == 0 {
		return nil
	}
	cctx, cancel := a.ctx(ctx)
	defer cancel()

	detail, err := a.GetCollection(ctx, collectionName)
	if err != nil {
		return err
	}
	vectorName := detail.VectorName

	pbPoints := make([]*pb.PointStruct, len(points))
	for i, p := range points {
		pbPoints[i] = &pb.PointStruct{
			Id:      toPBPointID(p.ID),
			Vectors: namedVector(vectorName, p.Vector),
			Payload: toPBPayload(p.Payload),
		}
	}

	wait := true
	_, err = Call(a.breaker, func() (*pb.PointsOperationResponse, error) {
		return a.points.Upsert(cctx, &pb.UpsertPoints{
			CollectionName: collectionName,
			Wait:           &wait,
			Points:         pbPoints,
		})
	})
	if err != nil {
		return apperr.BackendUnavailable("upsert_points", err)
	}
	return nil
}

// Search runs a similarity search against collectionName's named vector.
func (a *QdrantAdapter) Search(ctx context.Context, collectionName string, query backend.SearchQuery) ([]collection.SearchResult, error) {
	cctx, cancel := a.ctx(ctx)
	defer cancel()

	req := &pb.SearchPoints{
		CollectionName: collectionName,
		Vector:         query.Vector,
		VectorName:     &query.VectorName,
		Limit:          uint64(query.Limit),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	}
	if query.ScoreThreshold > 0 {
		threshold := query.ScoreThreshold
		req.ScoreThreshold = &threshold
	}

	resp, err := Call(a.breaker, func() (*pb.SearchResponse, error) {
		return a.points.Search(cctx, req)
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, apperr.NoSuchCollection(collectionName)
		}
		return nil, apperr.BackendUnavailable("search", err)
	}

	out := make([]collection.SearchResult, len(resp.GetResult()))
	for i, r := range resp.GetResult() {
		payload := fromPBPayload(r.GetPayload())
		out[i] = collection.SearchResult{
			PointID:  pointIDString(r.GetId()),
			Score:    r.GetScore(),
			Content:  payload.Document(),
			Metadata: payload.Metadata(),
		}
	}
	return out, nil
}

// RetrievePoints fetches points by id from collectionName.
func (a *QdrantAdapter) RetrievePoints(ctx context.Context, collectionName string, ids []string, opts backend.RetrieveOptions) ([]collection.Point, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	cctx, cancel := a.ctx(ctx)
	defer cancel()

	pbIDs := make([]*pb.PointId, len(ids))
	for i, id := range ids {
		pbIDs[i] = toPBPointID(id)
	}

	resp, err := Call(a.breaker, func() (*pb.GetResponse, error) {
		return a.points.Get(cctx, &pb.GetPoints{
			CollectionName: collectionName,
			Ids:            pbIDs,
			WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: opts.WithPayload}},
			WithVectors:    &pb.WithVectorsSelector{SelectorOptions: &pb.WithVectorsSelector_Enable{Enable: opts.WithVector}},
		})
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, apperr.NoSuchCollection(collectionName)
		}
		return nil, apperr.BackendUnavailable("retrieve_points", err)
	}

	out := make([]collection.Point, len(resp.GetResult()))
	for i, r := range resp.GetResult() {
		point := collection.Point{
			ID:      pointIDString(r.GetId()),
			Payload: fromPBPayload(r.GetPayload()),
		}
		if opts.WithVector {
			point.Vector = firstVector(r.GetVectors())
		}
		out[i] = point
	}
	return out, nil
}

// SetPayload merges payload into the named key of every point in ids.
// Merge semantics are delegated entirely to Qdrant's own SetPayload
// behavior, which is a per-point, all-or-nothing merge into the
// existing payload map.
func (a *QdrantAdapter) SetPayload(ctx context.Context, collectionName string, ids []string, payload collection.Payload, key string) error {
	if len(ids) == 0 {
		return nil
	}
	cctx, cancel := a.ctx(ctx)
	defer cancel()

	pbIDs := make([]*pb.PointId, len(ids))
	for i, id := range ids {
		pbIDs[i] = toPBPointID(id)
	}

	fields := toPBPayload(payload)
	req := &pb.SetPayloadPoints{
		CollectionName: collectionName,
		Payload:        fields,
		PointsSelector: &pb.PointsSelector{
			PointsSelectorOneOf: &pb.PointsSelector_Points{
				Points: &pb.PointsIdsList{Ids: pbIDs},
			},
		},
	}
	if key != "" {
		req.Key = &key
	}

	wait := true
	req.Wait = &wait
	_, err := Call(a.breaker, func() (*pb.PointsOperationResponse, error) {
		return a.points.SetPayload(cctx, req)
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return apperr.NoSuchCollection(collectionName)
		}
		return apperr.BackendUnavailable("set_payload", err)
	}
	return nil
}

// DeletePoints removes points by id from collectionName.
func (a *QdrantAdapter) DeletePoints(ctx context.Context, collectionName string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	cctx, cancel := a.ctx(ctx)
	defer cancel()

	pbIDs := make([]*pb.PointId, len(ids))
	for i, id := range ids {
		pbIDs[i] = toPBPointID(id)
	}

	wait := true
	_, err := Call(a.breaker, func() (*pb.PointsOperationResponse, error) {
		return a.points.Delete(cctx, &pb.DeletePoints{
			CollectionName: collectionName,
			Wait:           &wait,
			Points: &pb.PointsSelector{
				PointsSelectorOneOf: &pb.PointsSelector_Points{
					Points: &pb.PointsIdsList{Ids: pbIDs},
				},
			},
		})
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return apperr.NoSuchCollection(collectionName)
		}
		return apperr.BackendUnavailable("delete_points", err)
	}
	return nil
}

var _ backend.Adapter = (*QdrantAdapter)(nil)

func collectionDetailFromInfo(name string, info *pb.CollectionInfo) backend.CollectionDetail {
	var vectorName string
	var size int
	var dist registry.Distance
	var hnsw collection.HNSWParams
	var quantEnabled bool

	if params := info.GetConfig().GetParams(); params != nil {
		if vc := params.GetVectorsConfig(); vc != nil {
			if pm := vc.GetParamsMap(); pm != nil {
				for name, vp := range pm.GetMap() {
					vectorName = name
					size = int(vp.GetSize())
					dist = fromPBDistance(vp.GetDistance())
					break
				}
			} else if p := vc.GetParams(); p != nil {
				size = int(p.GetSize())
				dist = fromPBDistance(p.GetDistance())
			}
		}
	}
	if h := info.GetConfig().GetHnswConfig(); h != nil {
		hnsw = collection.HNSWParams{EfConstruct: int(h.GetEfConstruct()), M: int(h.GetM())}
	}
	if q := info.GetConfig().GetQuantizationConfig(); q != nil {
		quantEnabled = q.GetScalar() != nil
	}

	return backend.CollectionDetail{
		CollectionSummary: backend.CollectionSummary{
			Name:                name,
			PointCount:          int64(info.GetPointsCount()),
			Dimensions:          size,
			Distance:            dist,
			VectorName:          vectorName,
			Status:              fromPBStatus(info.GetStatus()),
			QuantizationEnabled: quantEnabled,
		},
		HNSW:            hnsw,
		SegmentCount:    int(info.GetSegmentsCount()),
		OptimizerStatus: info.GetOptimizerStatus().String(),
	}
}

func toPBDistance(d registry.Distance) pb.Distance {
	switch d {
	case registry.DistanceDot:
		return pb.Distance_Dot
	case registry.DistanceEuclidean:
		return pb.Distance_Euclid
	default:
		return pb.Distance_Cosine
	}
}

func fromPBDistance(d pb.Distance) registry.Distance {
	switch d {
	case pb.Distance_Dot:
		return registry.DistanceDot
	case pb.Distance_Euclid:
		return registry.DistanceEuclidean
	default:
		return registry.DistanceCosine
	}
}

func fromPBStatus(s pb.CollectionStatus) backend.CollectionStatus {
	switch s {
	case pb.CollectionStatus_Yellow:
		return backend.StatusYellow
	case pb.CollectionStatus_Red:
		return backend.StatusRed
	default:
		return backend.StatusGreen
	}
}

func toPBPointID(id string) *pb.PointId {
	return &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: id}}
}

func pointIDString(id *pb.PointId) string {
	if u, ok := id.GetPointIdOptions().(*pb.PointId_Uuid); ok {
		return u.Uuid
	}
	return fmt.Sprintf("%d", id.GetNum())
}

func namedVector(name string, vec []float32) *pb.Vectors {
	return &pb.Vectors{
		VectorsOptions: &pb.Vectors_Vectors{
			Vectors: &pb.NamedVectors{
				Vectors: map[string]*pb.Vector{
					name: {Data: vec},
				},
			},
		},
	}
}

func firstVector(v *pb.VectorsOutput) []float32 {
	if v == nil {
		return nil
	}
	switch opt := v.GetVectorsOptions().(type) {
	case *pb.VectorsOutput_Vector:
		return opt.Vector.GetData()
	case *pb.VectorsOutput_Vectors:
		for _, vec := range opt.Vectors.GetVectors() {
			return vec.GetData()
		}
	}
	return nil
}

func toPBPayload(p collection.Payload) map[string]*pb.Value {
	out := make(map[string]*pb.Value, len(p))
	for k, v := range p {
		out[k] = toPBValue(v)
	}
	return out
}

func toPBValue(v any) *pb.Value {
	switch tv := v.(type) {
	case string:
		return &pb.Value{Kind: &pb.Value_StringValue{StringValue: tv}}
	case int:
		return &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: int64(tv)}}
	case int64:
		return &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: tv}}
	case float64:
		return &pb.Value{Kind: &pb.Value_DoubleValue{DoubleValue: tv}}
	case bool:
		return &pb.Value{Kind: &pb.Value_BoolValue{BoolValue: tv}}
	case map[string]any:
		fields := make(map[string]*pb.Value, len(tv))
		for k, inner := range tv {
			fields[k] = toPBValue(inner)
		}
		return &pb.Value{Kind: &pb.Value_StructValue{StructValue: &pb.Struct{Fields: fields}}}
	case []any:
		values := make([]*pb.Value, len(tv))
		for i, inner := range tv {
			values[i] = toPBValue(inner)
		}
		return &pb.Value{Kind: &pb.Value_ListValue{ListValue: &pb.ListValue{Values: values}}}
	case nil:
		return &pb.Value{Kind: &pb.Value_NullValue{}}
	default:
		return &pb.Value{Kind: &pb.Value_StringValue{StringValue: fmt.Sprint(tv)}}
	}
}

func fromPBPayload(p map[string]*pb.Value) collection.Payload {
	out := make(collection.Payload, len(p))
	for k, v := range p {
		out[k] = fromPBValue(v)
	}
	return out
}

func fromPBValue(v *pb.Value) any {
	switch kind := v.GetKind().(type) {
	case *pb.Value_StringValue:
		return kind.StringValue
	case *pb.Value_IntegerValue:
		return kind.IntegerValue
	case *pb.Value_DoubleValue:
		return kind.DoubleValue
	case *pb.Value_BoolValue:
		return kind.BoolValue
	case *pb.Value_StructValue:
		out := make(map[string]any, len(kind.StructValue.GetFields()))
		for k, fv := range kind.StructValue.GetFields() {
			out[k] = fromPBValue(fv)
		}
		return out
	case *pb.Value_ListValue:
		out := make([]any, len(kind.ListValue.GetValues()))
		for i, lv := range kind.ListValue.GetValues() {
			out[i] = fromPBValue(lv)
		}
		return out
	default:
		return nil
	}
}

// apiKeyCreds implements grpc/credentials.PerRPCCredentials, attaching
// Qdrant's expected api-key metadata header to every call.
type apiKeyCreds string

func (k apiKeyCreds) GetRequestMetadata(ctx context.Context, uri ...string) (map[string]string, error) {
	return map[string]string{"api-key": string(k)}, nil
}

func (k apiKeyCreds) RequireTransportSecurity() bool { return false }
