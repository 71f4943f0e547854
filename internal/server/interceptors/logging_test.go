package interceptors

import (
	"context"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestLoggingUnary_Levels(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	interceptor := LoggingUnary(zap.New(core))
	info := &grpc.UnaryServerInfo{FullMethod: "/test.Service/Method"}
	ctx := WithIdentity(context.Background(), "user-1", "", "")

	cases := []struct {
		err   error
		level zapcore.Level
	}{
		{nil, zapcore.DebugLevel},
		{status.Error(codes.PermissionDenied, "no"), zapcore.InfoLevel},
		{status.Error(codes.Unavailable, "down"), zapcore.ErrorLevel},
	}
	for _, c := range cases {
		_, _ = interceptor(ctx, nil, info, func(context.Context, interface{}) (interface{}, error) { return nil, c.err })
	}

	entries := logs.All()
	if len(entries) != len(cases) {
		t.Fatalf("got %d log entries, want %d", len(entries), len(cases))
	}
	for i, c := range cases {
		if entries[i].Level != c.level {
			t.Errorf("entry %d level = %v, want %v", i, entries[i].Level, c.level)
		}
		if entries[i].ContextMap()["user_id"] != "user-1" {
			t.Errorf("entry %d missing user_id", i)
		}
	}
}
