// Package proto is the wire contract of the StaffKeeper gRPC service.
//
// Every message is a google.protobuf.Struct; the Field constants name the keys
// each method reads and writes. The service descriptor and the client stub
// below play the part of generated code.
package proto

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

const ServiceName = "staffkeeper.v1.StaffService"

const (
	MethodPing             = "Ping"
	MethodLogin            = "Login"
	MethodProfile          = "Profile"
	MethodChangePassword   = "ChangePassword"
	MethodProvisionAccount = "ProvisionAccount"
	MethodResetPassword    = "ResetPassword"
	MethodChangeRole       = "ChangeRole"
	MethodDeleteAccount    = "DeleteAccount"
	MethodUpdateNames      = "UpdateNames"
	MethodChangeTerritory  = "ChangeTerritory"
	MethodRenameLogin      = "RenameLogin"
	MethodListAccounts     = "ListAccounts"
	MethodFindAccount      = "FindAccount"
)

// FullMethod returns the gRPC path of method.
func FullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

// MetadataAccessToken is the metadata key carrying the access token.
const MetadataAccessToken = "access_token"

// StaffServiceServer is implemented by the server.
type StaffServiceServer interface {
	Ping(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Login(grpc.BidiStreamingServer[structpb.Struct, structpb.Struct]) error
	Profile(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ChangePassword(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ProvisionAccount(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ResetPassword(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ChangeRole(context.Context, *structpb.Struct) (*structpb.Struct, error)
	DeleteAccount(context.Context, *structpb.Struct) (*structpb.Struct, error)
	UpdateNames(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ChangeTerritory(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RenameLogin(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListAccounts(context.Context, *structpb.Struct) (*structpb.Struct, error)
	FindAccount(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type unaryCall func(StaffServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unary(name string, call unaryCall) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(StaffServiceServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(name)}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(StaffServiceServer), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

func loginHandler(srv any, stream grpc.ServerStream) error {
	return srv.(StaffServiceServer).Login(&grpc.GenericServerStream[structpb.Struct, structpb.Struct]{ServerStream: stream})
}

var StaffService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*StaffServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(MethodPing, StaffServiceServer.Ping),
		unary(MethodProfile, StaffServiceServer.Profile),
		unary(MethodChangePassword, StaffServiceServer.ChangePassword),
		unary(MethodProvisionAccount, StaffServiceServer.ProvisionAccount),
		unary(MethodResetPassword, StaffServiceServer.ResetPassword),
		unary(MethodChangeRole, StaffServiceServer.ChangeRole),
		unary(MethodDeleteAccount, StaffServiceServer.DeleteAccount),
		unary(MethodUpdateNames, StaffServiceServer.UpdateNames),
		unary(MethodChangeTerritory, StaffServiceServer.ChangeTerritory),
		unary(MethodRenameLogin, StaffServiceServer.RenameLogin),
		unary(MethodListAccounts, StaffServiceServer.ListAccounts),
		unary(MethodFindAccount, StaffServiceServer.FindAccount),
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    MethodLogin,
			Handler:       loginHandler,
			ServerStreams: true,
			ClientStreams: true,
		},
	},
	Metadata: "staffkeeper/v1/staff.proto",
}

func RegisterStaffServiceServer(s grpc.ServiceRegistrar, srv StaffServiceServer) {
	s.RegisterService(&StaffService_ServiceDesc, srv)
}

// StaffServiceClient is the client stub.
type StaffServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewStaffServiceClient(cc grpc.ClientConnInterface) *StaffServiceClient {
	return &StaffServiceClient{cc: cc}
}

// Call invokes a unary method.
func (c *StaffServiceClient) Call(ctx context.Context, method string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, FullMethod(method), in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// Login opens the login conversation.
func (c *StaffServiceClient) Login(ctx context.Context, opts ...grpc.CallOption) (grpc.BidiStreamingClient[structpb.Struct, structpb.Struct], error) {
	stream, err := c.cc.NewStream(ctx, &StaffService_ServiceDesc.Streams[0], FullMethod(MethodLogin), opts...)
	if err != nil {
		return nil, err
	}
	return &grpc.GenericClientStream[structpb.Struct, structpb.Struct]{ClientStream: stream}, nil
}
