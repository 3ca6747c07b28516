// Package grpcclient connects to the external model service.
package grpcclient

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/example/freshcheck/internal/logging"
	"github.com/example/freshcheck/internal/model"
)

// PredictMethod is the unary method implemented by the model service. It takes a
// google.protobuf.BytesValue with the image and answers a google.protobuf.ListValue of
// numeric scores.
const PredictMethod = "/freshcheck.model.v1.Model/Predict"

// RequestIDHeader carries the gateway request id to the model service.
const RequestIDHeader = "x-request-id"

// DialModel returns a ready-to-use client for the model service.
func DialModel(ctx context.Context, addr string, logger *zap.Logger) (model.Client, *grpc.ClientConn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	conn, err := grpc.DialContext(
		dialCtx,
		addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithBlock(),
	)
	if err != nil {
		wrapped := logging.NewOperationError("grpcclient.dial_model", "", err)
		logger.Error("failed to dial model service", zap.Error(wrapped), zap.String("addr", addr))
		return nil, nil, wrapped
	}
	return NewModelClient(conn, logger), conn, nil
}

// NewModelClient wraps an existing connection.
func NewModelClient(conn grpc.ClientConnInterface, logger *zap.Logger) model.Client {
	return &grpcModel{conn: conn, logger: logger.Named("model_client")}
}

type grpcModel struct {
	conn   grpc.ClientConnInterface
	logger *zap.Logger
}

func (g *grpcModel) Predict(ctx context.Context, requestID string, image []byte) ([]float64, error) {
	if requestID != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, RequestIDHeader, requestID)
	}

	resp := &structpb.ListValue{}
	if err := g.conn.Invoke(ctx, PredictMethod, wrapperspb.Bytes(image), resp); err != nil {
		wrapped := logging.NewOperationError("grpcclient.predict", requestID, err)
		g.logger.Error("model call failed", zap.Error(wrapped))
		return nil, wrapped
	}

	scores := make([]float64, 0, len(resp.GetValues()))
	for i, v := range resp.GetValues() {
		n, ok := v.GetKind().(*structpb.Value_NumberValue)
		if !ok {
			return nil, logging.NewOperationError("grpcclient.predict", requestID,
				fmt.Errorf("score %d is not a number", i))
		}
		scores = append(scores, n.NumberValue)
	}
	return scores, nil
}
