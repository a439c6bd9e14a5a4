package grpc

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/arkilian/arkdb/internal/api"
	"github.com/arkilian/arkdb/pkg/arkdb"
)

// Server implements RecordsServer over a DB.
type Server struct {
	db *arkdb.DB
}

// NewServer creates a Records server for db.
func NewServer(db *arkdb.DB) *Server {
	return &Server{db: db}
}

type findRequest struct {
	Table string `json:"table"`
	api.FindRequest
}

type insertRequest struct {
	Table string `json:"table"`
	api.InsertRequest
}

type deleteRequest struct {
	Table string `json:"table"`
	api.DeleteRequest
}

// fromStruct decodes a Struct into one of the request shapes.
func fromStruct(in *structpb.Struct, v interface{}) error {
	data, err := json.Marshal(in.AsMap())
	if err != nil {
		return status.Error(codes.InvalidArgument, err.Error())
	}
	if err := json.Unmarshal(data, v); err != nil {
		return status.Errorf(codes.InvalidArgument, "invalid request: %v", err)
	}
	return nil
}

// toStruct encodes v through JSON so records with non-JSON Go types
// (times, big integers, typed slices) still fit a Struct.
func toStruct(v interface{}) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	out, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

func toStatus(err error) error {
	return status.Error(api.GRPCCode(err), err.Error())
}

func requireTable(table string) error {
	if table == "" {
		return status.Error(codes.InvalidArgument, "table is required")
	}
	return nil
}

func (s *Server) selectFor(in *structpb.Struct) (*arkdb.Select, error) {
	var req findRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, err
	}
	if err := requireTable(req.Table); err != nil {
		return nil, err
	}
	sel, err := req.Apply(s.db.Select(req.Table))
	if err != nil {
		return nil, toStatus(err)
	}
	return sel, nil
}

// Find returns {items, count}.
func (s *Server) Find(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	sel, err := s.selectFor(in)
	if err != nil {
		return nil, err
	}
	items, err := sel.FindAll(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	return toStruct(map[string]interface{}{"items": items, "count": len(items)})
}

// Count returns {count}.
func (s *Server) Count(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	sel, err := s.selectFor(in)
	if err != nil {
		return nil, err
	}
	n, err := sel.Count(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	return toStruct(map[string]interface{}{"count": n})
}

// Insert returns {items} as stored.
func (s *Server) Insert(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req insertRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, err
	}
	if err := requireTable(req.Table); err != nil {
		return nil, err
	}
	if len(req.Records) == 0 {
		return nil, status.Error(codes.InvalidArgument, "records must not be empty")
	}
	ins := s.db.Insert(req.Table).Values(req.Records...)
	if req.Upsert {
		ins.Upsert()
	}
	items, err := ins.Run(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	return toStruct(map[string]interface{}{"items": items})
}

// Delete returns {deleted}.
func (s *Server) Delete(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req deleteRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, err
	}
	if err := requireTable(req.Table); err != nil {
		return nil, err
	}
	n, err := s.db.Delete(req.Table).Where(api.Where(req.Where)).Run(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	return toStruct(map[string]interface{}{"deleted": n})
}

// extractRequestID extracts or generates a request ID from the gRPC context.
func extractRequestID(ctx context.Context) string {
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if ids := md.Get("x-request-id"); len(ids) > 0 {
			return ids[0]
		}
	}
	return uuid.New().String()
}

// RequestIDInterceptor echoes or assigns x-request-id on every call.
func RequestIDInterceptor(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
	id := extractRequestID(ctx)
	if err := grpc.SetHeader(ctx, metadata.Pairs("x-request-id", id)); err != nil {
		return nil, fmt.Errorf("grpc: failed to set header: %w", err)
	}
	return handler(ctx, req)
}
