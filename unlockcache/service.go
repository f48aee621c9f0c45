// Package unlockcache implements the optional local daemon described in
// SPEC_FULL.md: it caches the vault's derived 32-byte master key for a
// short TTL so a host app does not have to re-derive it (and re-prompt
// the user) on every foreground launch within that window. It speaks
// gRPC over a Unix domain socket restricted to the calling user, adapted
// 1:1 from the teacher's vaultdaemon package.
//
// There is no hand-rolled protoc output here: requests and responses are
// built from google.golang.org/protobuf's well-known wrapper/struct
// types, which are real generated protobuf messages, so the service is
// invoked with (*grpc.ClientConn).Invoke against a manually built
// grpc.ServiceDesc rather than a generated client stub.
package unlockcache

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const (
	serviceName = "ghostauth.unlockcache.v1.UnlockCache"

	methodLogin      = "Login"
	methodLogout     = "Logout"
	methodGetSession = "GetSession"
)

// sessionServer is the interface implemented by [Server] and invoked by
// the generated-equivalent method handlers below.
type sessionServer interface {
	login(ctx context.Context, path string, key []byte) error
	logout(ctx context.Context, path string) error
	getSession(ctx context.Context, path string) ([]byte, bool, error)
}

func loginHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, _ grpc.UnaryServerInterceptor) (interface{}, error) {
	req := new(structpb.Struct)
	if err := dec(req); err != nil {
		return nil, err
	}

	path := req.Fields["path"].GetStringValue()

	key, err := decodeKey(req.Fields["key"].GetStringValue())
	if err != nil {
		return nil, err
	}

	if err := srv.(sessionServer).login(ctx, path, key); err != nil {
		return nil, err
	}

	return &emptypb.Empty{}, nil
}

func logoutHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, _ grpc.UnaryServerInterceptor) (interface{}, error) {
	req := new(wrapperspb.StringValue)
	if err := dec(req); err != nil {
		return nil, err
	}

	if err := srv.(sessionServer).logout(ctx, req.GetValue()); err != nil {
		return nil, err
	}

	return &emptypb.Empty{}, nil
}

func getSessionHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, _ grpc.UnaryServerInterceptor) (interface{}, error) {
	req := new(wrapperspb.StringValue)
	if err := dec(req); err != nil {
		return nil, err
	}

	key, found, err := srv.(sessionServer).getSession(ctx, req.GetValue())
	if err != nil {
		return nil, err
	}

	resp, err := structpb.NewStruct(map[string]interface{}{
		"found": found,
		"key":   encodeKey(key),
	})
	if err != nil {
		return nil, err
	}

	return resp, nil
}

// serviceDesc is the hand-assembled equivalent of a protoc-gen-go-grpc
// *_grpc.pb.go ServiceDesc, wired directly to the handlers above.
var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*sessionServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: methodLogin, Handler: loginHandler},
		{MethodName: methodLogout, Handler: logoutHandler},
		{MethodName: methodGetSession, Handler: getSessionHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "unlockcache/service.proto",
}

func fullMethod(name string) string {
	return "/" + serviceName + "/" + name
}
