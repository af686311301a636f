package rpc

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// #region service-desc

const (
	ServiceName   = "composer.v1.Composer"
	ComposeMethod = "/" + ServiceName + "/Compose"
	AnalyzeMethod = "/" + ServiceName + "/Analyze"
	TurnMethod    = "/" + ServiceName + "/Turn"
)

// ComposerServer is the server API for the composer.v1.Composer service.
type ComposerServer interface {
	Compose(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Analyze(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Turn(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// ServiceDesc describes composer.v1.Composer. Every method is unary and takes
// and returns a google.protobuf.Struct, so no generated code is needed.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ComposerServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Compose", Handler: unary(ComposeMethod, ComposerServer.Compose)},
		{MethodName: "Analyze", Handler: unary(AnalyzeMethod, ComposerServer.Analyze)},
		{MethodName: "Turn", Handler: unary(TurnMethod, ComposerServer.Turn)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "composer/v1/composer.proto",
}

// Register adds srv to s.
func Register(s grpc.ServiceRegistrar, srv ComposerServer) {
	s.RegisterService(&ServiceDesc, srv)
}

func unary(fullMethod string, call func(ComposerServer, context.Context, *structpb.Struct) (*structpb.Struct, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(ComposerServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(ComposerServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// #endregion service-desc

// #region struct-codec

// fromStruct decodes s into v through its JSON form.
func fromStruct(s *structpb.Struct, v any) error {
	if s == nil {
		s = &structpb.Struct{}
	}
	b, err := protojson.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode struct: %w", err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("decode %T: %w", v, err)
	}
	return nil
}

// toStruct encodes v, which must marshal to a JSON object, as a Struct.
func toStruct(v any) (*structpb.Struct, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %T: %w", v, err)
	}
	out := new(structpb.Struct)
	if err := protojson.Unmarshal(b, out); err != nil {
		return nil, fmt.Errorf("decode struct: %w", err)
	}
	return out, nil
}

// respond encodes a handler response. A response that cannot be encoded is
// the server's fault, so it maps to Internal.
func respond(v any) (*structpb.Struct, error) {
	out, err := toStruct(v)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

// invalid wraps err as an InvalidArgument status.
func invalid(err error) error {
	return status.Error(codes.InvalidArgument, err.Error())
}

// #endregion struct-codec
