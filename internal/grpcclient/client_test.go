package grpcclient

import (
	"context"
	"errors"
	"net"
	"testing"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/example/freshcheck/internal/logging"
)

type modelServer interface {
	predict(ctx context.Context, in *wrapperspb.BytesValue) (*structpb.ListValue, error)
}

type fakeModel struct {
	scores    []interface{}
	err       error
	gotImage  []byte
	requestID string
}

func (f *fakeModel) predict(ctx context.Context, in *wrapperspb.BytesValue) (*structpb.ListValue, error) {
	f.gotImage = in.GetValue()
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if ids := md.Get(RequestIDHeader); len(ids) > 0 {
			f.requestID = ids[0]
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return structpb.NewList(f.scores)
}

var modelServiceDesc = grpc.ServiceDesc{
	ServiceName: "freshcheck.model.v1.Model",
	HandlerType: (*modelServer)(nil),
	Methods: []grpc.MethodDesc{{
		MethodName: "Predict",
		Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, _ grpc.UnaryServerInterceptor) (interface{}, error) {
			in := &wrapperspb.BytesValue{}
			if err := dec(in); err != nil {
				return nil, err
			}
			return srv.(modelServer).predict(ctx, in)
		},
	}},
}

func startFakeModel(t *testing.T, impl *fakeModel) *grpc.ClientConn {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	server := grpc.NewServer()
	server.RegisterService(&modelServiceDesc, impl)
	go func() { _ = server.Serve(lis) }()
	t.Cleanup(server.Stop)

	conn, err := grpc.DialContext(context.Background(), "bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("dial bufconn: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestPredictReturnsScores(t *testing.T) {
	impl := &fakeModel{scores: []interface{}{0.07, 0.93}}
	client := NewModelClient(startFakeModel(t, impl), zap.NewNop())

	scores, err := client.Predict(context.Background(), "req-1", []byte("apple"))
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if len(scores) != 2 || scores[1] != 0.93 {
		t.Fatalf("unexpected scores %v", scores)
	}
	if string(impl.gotImage) != "apple" {
		t.Fatalf("unexpected image %q", impl.gotImage)
	}
	if impl.requestID != "req-1" {
		t.Fatalf("request id not propagated, got %q", impl.requestID)
	}
}

func TestPredictRejectsNonNumericScores(t *testing.T) {
	impl := &fakeModel{scores: []interface{}{"high"}}
	client := NewModelClient(startFakeModel(t, impl), zap.NewNop())

	if _, err := client.Predict(context.Background(), "req-2", []byte("x")); err == nil {
		t.Fatal("expected error for non-numeric score")
	}
}

func TestPredictWrapsRPCErrors(t *testing.T) {
	impl := &fakeModel{err: status.Error(codes.Unavailable, "model loading")}
	client := NewModelClient(startFakeModel(t, impl), zap.NewNop())

	_, err := client.Predict(context.Background(), "req-3", []byte("x"))
	var opErr *logging.OperationError
	if !errors.As(err, &opErr) || opErr.Operation != "grpcclient.predict" {
		t.Fatalf("expected OperationError, got %v", err)
	}
	if status.Code(errors.Unwrap(err)) != codes.Unavailable {
		t.Fatalf("expected Unavailable code, got %v", status.Code(errors.Unwrap(err)))
	}
}
