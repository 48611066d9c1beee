package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/IntegraSac-Oficial/entityload/tracing"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	grpcEncoding "google.golang.org/grpc/encoding"
	_ "google.golang.org/grpc/encoding/proto" // ensure default proto codec is registered first
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"
)

// ServiceName is the gRPC service exposing collections.
const ServiceName = "entityload.Collection"

const listMethod = "/" + ServiceName + "/List"

// ListRequest asks for every record of Entity.
type ListRequest struct {
	Entity string `json:"entity"`
}

// ListResponse carries the records as raw JSON documents.
type ListResponse struct {
	Records []json.RawMessage `json:"records"`
}

// listMsg is a marker interface satisfied by ListRequest and ListResponse.
type listMsg interface {
	isListMsg()
}

func (*ListRequest) isListMsg()  {}
func (*ListResponse) isListMsg() {}

// ServiceDesc describes the collection service without protobuf code
// generation; messages travel as JSON through the codec below.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*Provider)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "List",
			Handler:    listHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "entityload/collection.proto",
}

func listHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	req := new(ListRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	handler := func(ctx context.Context, r any) (any, error) {
		return serveList(ctx, srv.(Provider), r.(*ListRequest))
	}
	if interceptor == nil {
		return handler(ctx, req)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: listMethod,
	}
	return interceptor(ctx, req, info, handler)
}

func serveList(ctx context.Context, p Provider, req *ListRequest) (*ListResponse, error) {
	if req.Entity == "" {
		return nil, status.Error(codes.InvalidArgument, "entity is required")
	}
	recs, err := p.List(ctx, req.Entity)
	if err != nil {
		return nil, toStatus(err)
	}
	resp := &ListResponse{Records: make([]json.RawMessage, 0, len(recs))}
	for i, rec := range recs {
		raw, err := json.Marshal(rec)
		if err != nil {
			return nil, status.Errorf(codes.Internal, "encode record %d of %s: %v", i, req.Entity, err)
		}
		resp.Records = append(resp.Records, raw)
	}
	return resp, nil
}

// toStatus maps provider errors onto gRPC status codes.
func toStatus(err error) error {
	if _, ok := status.FromError(err); ok {
		return err
	}
	switch {
	case errors.Is(err, ErrUnknownEntity):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return status.FromContextError(err).Err()
	default:
		return status.Error(codes.Unavailable, err.Error())
	}
}

// Register registers p on the given gRPC server.
func Register(s *grpc.Server, p Provider) {
	s.RegisterService(&ServiceDesc, p)
}

// NewServer creates a gRPC server serving p, with panic recovery logged to
// log and, when tr is non-nil, server spans continuing the caller's trace.
func NewServer(p Provider, tr *tracing.Tracer, log *slog.Logger, opts ...grpc.ServerOption) *grpc.Server {
	opts = append([]grpc.ServerOption{
		grpc.ChainUnaryInterceptor(RecoveryUnary(log), tr.UnaryServerInterceptor()),
	}, opts...)
	s := grpc.NewServer(opts...)
	Register(s, p)
	return s
}

// GRPCCollection is a Collection that lists one entity through the gRPC
// collection service. Records are decoded into generic JSON values.
type GRPCCollection struct {
	conn   grpc.ClientConnInterface
	entity string
}

// NewGRPCCollection returns a Collection for entity served over conn.
func NewGRPCCollection(conn grpc.ClientConnInterface, entity string) *GRPCCollection {
	return &GRPCCollection{conn: conn, entity: entity}
}

// List implements Collection. Failures keep their gRPC status so retry
// policies can classify them.
func (c *GRPCCollection) List(ctx context.Context) ([]any, error) {
	resp := new(ListResponse)
	if err := c.conn.Invoke(ctx, listMethod, &ListRequest{Entity: c.entity}, resp); err != nil {
		return nil, err
	}
	out := make([]any, 0, len(resp.Records))
	for i, raw := range resp.Records {
		var rec any
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, fmt.Errorf("remote: decode record %d of %s: %w", i, c.entity, err)
		}
		out = append(out, rec)
	}
	return out, nil
}

// ---------- codec wrapper ----------

func init() {
	// Replace the default proto codec with a thin wrapper that JSON-encodes
	// list messages and delegates all other (protobuf) messages to proto.
	grpcEncoding.RegisterCodec(listCodec{})
}

// listCodec wraps the default proto codec. It handles ListRequest and
// ListResponse via JSON, and delegates all other types to proto.Marshal/Unmarshal.
type listCodec struct{}

func (listCodec) Name() string { return "proto" }

func (listCodec) Marshal(v any) ([]byte, error) {
	if _, ok := v.(listMsg); ok {
		return json.Marshal(v)
	}
	if m, ok := v.(proto.Message); ok {
		return proto.Marshal(m)
	}
	return nil, fmt.Errorf("collection codec: unsupported message type %T", v)
}

func (listCodec) Unmarshal(data []byte, v any) error {
	if _, ok := v.(listMsg); ok {
		return json.Unmarshal(data, v)
	}
	if m, ok := v.(proto.Message); ok {
		return proto.Unmarshal(data, m)
	}
	return fmt.Errorf("collection codec: unsupported message type %T", v)
}
