package rpc

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "heredity.v1.Heredity"

const (
	methodCross = "/" + ServiceName + "/Cross"
	methodInfer = "/" + ServiceName + "/Infer"
)

// HeredityServer is the gRPC surface. Requests and responses are
// google.protobuf.Struct messages carrying the JSON form of the Service
// types.
type HeredityServer interface {
	Cross(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Infer(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*HeredityServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Cross", Handler: unaryHandler(methodCross, HeredityServer.Cross)},
		{MethodName: "Infer", Handler: unaryHandler(methodInfer, HeredityServer.Infer)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "heredity/v1/heredity.proto",
}

func unaryHandler(fullMethod string, call func(HeredityServer, context.Context, *structpb.Struct) (*structpb.Struct, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(HeredityServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(HeredityServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// RegisterHeredityServer registers srv on s.
func RegisterHeredityServer(s grpc.ServiceRegistrar, srv HeredityServer) {
	s.RegisterService(&serviceDesc, srv)
}

// Server adapts Service to HeredityServer.
type Server struct {
	svc *Service
}

// NewServer creates a Server over svc.
func NewServer(svc *Service) *Server {
	return &Server{svc: svc}
}

func (s *Server) Cross(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return serve(ctx, in, s.svc.Cross)
}

func (s *Server) Infer(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return serve(ctx, in, s.svc.Infer)
}

func serve[Req, Resp any](ctx context.Context, in *structpb.Struct, handle func(context.Context, Req) (Resp, error)) (*structpb.Struct, error) {
	var req Req
	if err := fromStruct(in, &req); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	resp, err := handle(ctx, req)
	if err != nil {
		return nil, status.Error(grpcCode(err), err.Error())
	}
	out, err := toStruct(resp)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

func grpcCode(err error) codes.Code {
	switch Code(err) {
	case CodeInvalidArgument:
		return codes.InvalidArgument
	case CodeNotFound:
		return codes.NotFound
	case CodeCancelled:
		return codes.Canceled
	case CodeDeadline:
		return codes.DeadlineExceeded
	case CodeUnavailable:
		return codes.Unavailable
	default:
		return codes.Internal
	}
}

func toStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("rpc: encode: %w", err)
	}
	out := new(structpb.Struct)
	if err := out.UnmarshalJSON(data); err != nil {
		return nil, fmt.Errorf("rpc: encode: %w", err)
	}
	return out, nil
}

func fromStruct(in *structpb.Struct, v any) error {
	data, err := in.MarshalJSON()
	if err != nil {
		return fmt.Errorf("rpc: decode: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("rpc: decode: %w", err)
	}
	return nil
}

// Client calls a remote HeredityServer.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps an existing connection.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// Dial opens an insecure connection to addr.
func Dial(addr string) (*Client, *grpc.ClientConn, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, nil, fmt.Errorf("rpc: dial %s: %w", addr, err)
	}
	return NewClient(conn), conn, nil
}

// Cross calls the remote Cross method.
func (c *Client) Cross(ctx context.Context, req CrossRequest) (CrossResponse, error) {
	return invoke[CrossRequest, CrossResponse](ctx, c.cc, methodCross, req)
}

// Infer calls the remote Infer method.
func (c *Client) Infer(ctx context.Context, req InferRequest) (InferResponse, error) {
	return invoke[InferRequest, InferResponse](ctx, c.cc, methodInfer, req)
}

func invoke[Req, Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, req Req) (Resp, error) {
	var zero Resp
	in, err := toStruct(req)
	if err != nil {
		return zero, err
	}
	out := new(structpb.Struct)
	if err := cc.Invoke(ctx, method, in, out); err != nil {
		return zero, err
	}
	var resp Resp
	if err := fromStruct(out, &resp); err != nil {
		return zero, err
	}
	return resp, nil
}
