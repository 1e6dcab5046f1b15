package server

import (
	"context"
	"time"

	"github.com/omnibridge/omnibridge-service/log"
	"github.com/omnibridge/omnibridge-service/metrics"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
)

// NewRequestLogInterceptor logs every unary call and records its metrics
func NewRequestLogInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		startTime := time.Now()
		methodName := info.FullMethod

		resp, err := handler(ctx, req)

		duration := time.Since(startTime)
		metrics.RecordRequest(methodName, err == nil)
		metrics.RecordRequestLatency(methodName, duration, err == nil)
		log.Debugf("method[%v] req[%s] resp[%s] err[%v] processTime[%v]", methodName, marshalMessage(req), marshalMessage(resp), err, duration.String())
		return resp, err
	}
}

func marshalMessage(v interface{}) string {
	msg, ok := v.(proto.Message)
	if !ok || msg == nil {
		return "<nil>"
	}
	raw, err := protojson.Marshal(msg)
	if err != nil {
		return "<" + err.Error() + ">"
	}
	return string(raw)
}
