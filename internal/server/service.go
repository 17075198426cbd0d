package server

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// ServiceName is the fully-qualified gRPC service name.
const ServiceName = "cookbot.v1.KitchenService"

const (
	methodAddBot      = "/" + ServiceName + "/AddBot"
	methodAddOrder    = "/" + ServiceName + "/AddOrder"
	methodWithdrawBot = "/" + ServiceName + "/WithdrawBot"
	methodGetBoard    = "/" + ServiceName + "/GetBoard"
	methodGetSnapshot = "/" + ServiceName + "/GetSnapshot"
	methodGetStatus   = "/" + ServiceName + "/GetStatus"
)

// KitchenServiceServer is the server API for the kitchen service. Messages
// are protobuf well-known types; results travel as JSON-shaped Structs.
type KitchenServiceServer interface {
	AddBot(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	AddOrder(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
	WithdrawBot(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
	GetBoard(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	GetSnapshot(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	GetStatus(context.Context, *emptypb.Empty) (*structpb.Struct, error)
}

// RegisterKitchenServiceServer registers srv on s.
func RegisterKitchenServiceServer(s grpc.ServiceRegistrar, srv KitchenServiceServer) {
	s.RegisterService(&KitchenServiceDesc, srv)
}

// KitchenServiceDesc describes the kitchen service for grpc.Server.
var KitchenServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*KitchenServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "AddBot",
			Handler: unaryHandler(methodAddBot, newEmpty, func(s KitchenServiceServer, ctx context.Context, in *emptypb.Empty) (*structpb.Struct, error) {
				return s.AddBot(ctx, in)
			}),
		},
		{
			MethodName: "AddOrder",
			Handler: unaryHandler(methodAddOrder, newString, func(s KitchenServiceServer, ctx context.Context, in *wrapperspb.StringValue) (*structpb.Struct, error) {
				return s.AddOrder(ctx, in)
			}),
		},
		{
			MethodName: "WithdrawBot",
			Handler: unaryHandler(methodWithdrawBot, newString, func(s KitchenServiceServer, ctx context.Context, in *wrapperspb.StringValue) (*structpb.Struct, error) {
				return s.WithdrawBot(ctx, in)
			}),
		},
		{
			MethodName: "GetBoard",
			Handler: unaryHandler(methodGetBoard, newEmpty, func(s KitchenServiceServer, ctx context.Context, in *emptypb.Empty) (*structpb.Struct, error) {
				return s.GetBoard(ctx, in)
			}),
		},
		{
			MethodName: "GetSnapshot",
			Handler: unaryHandler(methodGetSnapshot, newEmpty, func(s KitchenServiceServer, ctx context.Context, in *emptypb.Empty) (*structpb.Struct, error) {
				return s.GetSnapshot(ctx, in)
			}),
		},
		{
			MethodName: "GetStatus",
			Handler: unaryHandler(methodGetStatus, newEmpty, func(s KitchenServiceServer, ctx context.Context, in *emptypb.Empty) (*structpb.Struct, error) {
				return s.GetStatus(ctx, in)
			}),
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "cookbot/v1/kitchen.proto",
}

func newEmpty() *emptypb.Empty           { return new(emptypb.Empty) }
func newString() *wrapperspb.StringValue { return new(wrapperspb.StringValue) }

// unaryHandler adapts a typed method to grpc.MethodHandler, running the
// server's interceptor chain when one is installed.
func unaryHandler[Req proto.Message](
	fullMethod string,
	newReq func() Req,
	call func(KitchenServiceServer, context.Context, Req) (*structpb.Struct, error),
) grpc.MethodHandler {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := newReq()
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(KitchenServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(srv.(KitchenServiceServer), ctx, req.(Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}
