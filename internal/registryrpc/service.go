// Package registryrpc exposes a components.Registry over gRPC. Messages are
// google.protobuf.Struct payloads so no generated stubs are required.
package registryrpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// #region service-desc
const (
	ServiceName = "mlpipe.registry.v1.ComponentRegistry"

	methodListVersions = "/" + ServiceName + "/ListVersions"
	methodGetTags      = "/" + ServiceName + "/GetTags"
	methodPublish      = "/" + ServiceName + "/Publish"
)

// ComponentRegistryServer is the server API of the registry service.
type ComponentRegistryServer interface {
	ListVersions(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetTags(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Publish(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// RegisterComponentRegistryServer attaches srv to s.
func RegisterComponentRegistryServer(s grpc.ServiceRegistrar, srv ComponentRegistryServer) {
	s.RegisterService(&serviceDesc, srv)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ComponentRegistryServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ListVersions", Handler: unaryHandler(methodListVersions, ComponentRegistryServer.ListVersions)},
		{MethodName: "GetTags", Handler: unaryHandler(methodGetTags, ComponentRegistryServer.GetTags)},
		{MethodName: "Publish", Handler: unaryHandler(methodPublish, ComponentRegistryServer.Publish)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "mlpipe/registry/v1/registry.proto",
}

type unaryMethod func(ComponentRegistryServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(fullMethod string, call unaryMethod) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		impl := srv.(ComponentRegistryServer)
		if interceptor == nil {
			return call(impl, ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(impl, ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// #endregion service-desc
