package utils

type contextKey string

const (
	CtxTraceID contextKey = "traceID"
)

const (
	TraceID    = "traceID"
	traceIDLen = 16
)

const (
	// NativeToken is the reserved token name for the native currency of every chain
	NativeToken = "native"
)
