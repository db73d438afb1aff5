package logger

import (
	"context"

	"github.com/google/uuid"
)

// TraceIDKey 定义 Context 中的 Key
const TraceIDKey = "trace_id"

type streamIDKey struct{}

// WithTraceID 将 trace_id 写入 ctx
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

// NewTraceContext 生成带前缀的 trace_id，例如 job-<uuid>
func NewTraceContext(ctx context.Context, prefix string) context.Context {
	return WithTraceID(ctx, prefix+"-"+uuid.NewString())
}

// WithStreamID 日志中附带会话 ID
func WithStreamID(ctx context.Context, streamID int64) context.Context {
	return context.WithValue(ctx, streamIDKey{}, streamID)
}
