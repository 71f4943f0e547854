package interceptors

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"orgscope/internal/security"
)

const (
	publicMethod    = "/orgscope.test.Service/Public"
	protectedMethod = "/orgscope.test.Service/Protected"
)

func withAuthorization(v string) context.Context {
	return metadata.NewIncomingContext(context.Background(), metadata.Pairs("authorization", v))
}

func TestAuthUnary(t *testing.T) {
	tokens, err := security.NewTestTokenProvider()
	require.NoError(t, err)
	valid, _, err := tokens.IssueAccess("session-1", "user-1", "org-1")
	require.NoError(t, err)
	interceptor := AuthUnary(tokens, map[string]bool{publicMethod: true})

	tests := []struct {
		name     string
		ctx      context.Context
		method   string
		code     codes.Code
		wantUser string
	}{
		{"public without token", context.Background(), publicMethod, codes.OK, ""},
		{"public with invalid token", withAuthorization("Bearer expired"), publicMethod, codes.OK, ""},
		{"public with valid token", withAuthorization("Bearer " + valid), publicMethod, codes.OK, "user-1"},
		{"protected without token", context.Background(), protectedMethod, codes.Unauthenticated, ""},
		{"protected with invalid token", withAuthorization("Bearer invalid-token"), protectedMethod, codes.Unauthenticated, ""},
		{"protected with basic auth", withAuthorization("Basic dXNlcjpwYXNz"), protectedMethod, codes.Unauthenticated, ""},
		{"protected with valid token", withAuthorization("Bearer " + valid), protectedMethod, codes.OK, "user-1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotUser string
			ran := false
			_, err := interceptor(tt.ctx, "req", &grpc.UnaryServerInfo{FullMethod: tt.method},
				func(ctx context.Context, _ interface{}) (interface{}, error) {
					ran = true
					gotUser, _ = GetUserID(ctx)
					return "ok", nil
				})
			assert.Equal(t, tt.code, status.Code(err))
			assert.Equal(t, tt.code == codes.OK, ran)
			assert.Equal(t, tt.wantUser, gotUser)
		})
	}
}

func TestAuthUnary_PrincipalInContext(t *testing.T) {
	tokens, err := security.NewTestTokenProvider()
	require.NoError(t, err)
	token, _, err := tokens.IssueAccess("session-1", "user-1", "org-1")
	require.NoError(t, err)

	_, err = AuthUnary(tokens, nil)(withAuthorization("Bearer "+token), "req",
		&grpc.UnaryServerInfo{FullMethod: protectedMethod},
		func(ctx context.Context, _ interface{}) (interface{}, error) {
			orgID, _ := GetOrgID(ctx)
			sessionID, _ := GetSessionID(ctx)
			assert.Equal(t, "org-1", orgID)
			assert.Equal(t, "session-1", sessionID)
			return nil, nil
		})
	require.NoError(t, err)
}

func TestExtractBearer(t *testing.T) {
	tests := []struct {
		name string
		ctx  context.Context
		want string
	}{
		{"valid", withAuthorization("Bearer token123"), "token123"},
		{"lowercase scheme", withAuthorization("bearer token123"), "token123"},
		{"surrounding whitespace", withAuthorization("  Bearer   token123  "), "token123"},
		{"other scheme", withAuthorization("Token token123"), ""},
		{"no metadata", context.Background(), ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, extractBearer(tt.ctx))
		})
	}
}
