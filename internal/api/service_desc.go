package api

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "mirador.investigator.v1.Investigator"

// Full method names.
const (
	MethodInvestigate = "/" + ServiceName + "/Investigate"
	MethodInvokeTool  = "/" + ServiceName + "/InvokeTool"
	MethodListTools   = "/" + ServiceName + "/ListTools"
	MethodGetPatterns = "/" + ServiceName + "/GetPatterns"
)

// InvestigatorServer is the server API for the Investigator service.
// Payloads are google.protobuf.Struct documents mirroring the JSON forms of
// the domain types.
type InvestigatorServer interface {
	Investigate(context.Context, *structpb.Struct) (*structpb.Struct, error)
	InvokeTool(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListTools(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	GetPatterns(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// RegisterInvestigatorServer registers srv with a gRPC server.
func RegisterInvestigatorServer(s grpc.ServiceRegistrar, srv InvestigatorServer) {
	s.RegisterService(&InvestigatorServiceDesc, srv)
}

func structHandler(method string, call func(InvestigatorServer, context.Context, *structpb.Struct) (*structpb.Struct, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(InvestigatorServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/" + method}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(InvestigatorServer), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

func listToolsHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(InvestigatorServer).ListTools(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: MethodListTools}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(InvestigatorServer).ListTools(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

// InvestigatorServiceDesc describes the Investigator service.
var InvestigatorServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*InvestigatorServer)(nil),
	Methods: []grpc.MethodDesc{
		structHandler("Investigate", InvestigatorServer.Investigate),
		structHandler("InvokeTool", InvestigatorServer.InvokeTool),
		{MethodName: "ListTools", Handler: listToolsHandler},
		structHandler("GetPatterns", InvestigatorServer.GetPatterns),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "mirador/investigator/v1/investigator.proto",
}

// InvestigatorClient calls the Investigator service.
type InvestigatorClient struct {
	cc grpc.ClientConnInterface
}

// NewInvestigatorClient wraps a client connection.
func NewInvestigatorClient(cc grpc.ClientConnInterface) *InvestigatorClient {
	return &InvestigatorClient{cc: cc}
}

func (c *InvestigatorClient) Investigate(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, MethodInvestigate, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *InvestigatorClient) InvokeTool(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, MethodInvokeTool, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *InvestigatorClient) ListTools(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, MethodListTools, &emptypb.Empty{}, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *InvestigatorClient) GetPatterns(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, MethodGetPatterns, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
