package server

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/proto"
)

// message constrains a request type to a pointer to a protobuf message.
type message[T any] interface {
	*T
	proto.Message
}

// unaryHandler adapts a typed method expression to a grpc.MethodDesc handler.
// S is the service interface, Req the request message struct.
func unaryHandler[S any, Req any, PReq message[Req], Resp proto.Message](
	fullMethod string,
	call func(S, context.Context, PReq) (Resp, error),
) func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := PReq(new(Req))
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(S), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(S), ctx, req.(PReq))
		}
		return interceptor(ctx, in, info, handler)
	}
}
