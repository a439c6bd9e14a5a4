// Package grpc serves arkdb tables over gRPC. Messages are
// google.protobuf.Struct values carrying the same JSON shapes as the HTTP
// API, so the service needs no generated code.
package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "arkdb.v1.Records"

// RecordsServer is the server API for the Records service.
type RecordsServer interface {
	Find(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Count(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Insert(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Delete(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type unaryCall func(RecordsServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(method string, call unaryCall) grpc.MethodHandler {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(RecordsServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: "/" + ServiceName + "/" + method,
		}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(srv.(RecordsServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// RecordsServiceDesc describes the Records service for grpc.Server.
var RecordsServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*RecordsServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Find", Handler: unaryHandler("Find", RecordsServer.Find)},
		{MethodName: "Count", Handler: unaryHandler("Count", RecordsServer.Count)},
		{MethodName: "Insert", Handler: unaryHandler("Insert", RecordsServer.Insert)},
		{MethodName: "Delete", Handler: unaryHandler("Delete", RecordsServer.Delete)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "arkdb/v1/records.proto",
}

// RegisterRecordsServer registers srv on s.
func RegisterRecordsServer(s grpc.ServiceRegistrar, srv RecordsServer) {
	s.RegisterService(&RecordsServiceDesc, srv)
}

// RecordsClient calls the Records service.
type RecordsClient struct {
	cc grpc.ClientConnInterface
}

// NewRecordsClient creates a client on cc.
func NewRecordsClient(cc grpc.ClientConnInterface) *RecordsClient {
	return &RecordsClient{cc: cc}
}

func (c *RecordsClient) invoke(ctx context.Context, method string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/"+method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *RecordsClient) Find(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "Find", in, opts...)
}

func (c *RecordsClient) Count(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "Count", in, opts...)
}

func (c *RecordsClient) Insert(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "Insert", in, opts...)
}

func (c *RecordsClient) Delete(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "Delete", in, opts...)
}
