// Package server assembles the gRPC server: interceptor chain, telemetry stats handler,
// health service and the organization service.
package server

import (
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"orgscope/internal/access"
	"orgscope/internal/audit"
	healthhandler "orgscope/internal/health/handler"
	"orgscope/internal/identity"
	organizationhandler "orgscope/internal/organization/handler"
	"orgscope/internal/server/interceptors"
)

// Deps holds the dependencies of the gRPC services and interceptors.
type Deps struct {
	// Manager opens an access session per call. Required.
	Manager *access.Manager
	// Tokens validates Bearer access tokens. Required.
	Tokens identity.TokenValidator
	// Audit records every authenticated call. If nil, calls are not audited.
	Audit audit.AuditLogger
	// Health serves grpc.health.v1. If nil, the health service is not registered.
	Health *healthhandler.Server
	Logger *zap.Logger
	// DisableTelemetry omits the otelgrpc stats handler.
	DisableTelemetry bool
}

// PublicMethods are served without a token or an access session.
func PublicMethods() map[string]bool {
	return map[string]bool{
		healthpb.Health_Check_FullMethodName: true,
		healthpb.Health_Watch_FullMethodName: true,
	}
}

// AccessRules maps every access-controlled method to its requirement.
func AccessRules() map[string]access.Requirement {
	return organizationhandler.AccessRules()
}

// NewGRPCServer returns a server with the logging, auth, access and audit interceptors
// in that order, and all services registered.
func NewGRPCServer(deps Deps, opts ...grpc.ServerOption) *grpc.Server {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	public := PublicMethods()
	chain := []grpc.UnaryServerInterceptor{
		interceptors.LoggingUnary(log),
		interceptors.AuthUnary(deps.Tokens, public),
		interceptors.AccessUnary(deps.Manager, AccessRules(), public, log),
	}
	if deps.Audit != nil {
		chain = append(chain, interceptors.AuditUnary(deps.Audit, public))
	}
	serverOpts := []grpc.ServerOption{grpc.ChainUnaryInterceptor(chain...)}
	if !deps.DisableTelemetry {
		serverOpts = append(serverOpts, grpc.StatsHandler(otelgrpc.NewServerHandler()))
	}
	s := grpc.NewServer(append(serverOpts, opts...)...)
	RegisterServices(s, deps)
	return s
}

// RegisterServices registers the organization service and, when configured, the health service.
func RegisterServices(s grpc.ServiceRegistrar, deps Deps) {
	organizationhandler.RegisterOrganizationServiceServer(s, organizationhandler.NewServer(deps.Logger))
	if deps.Health != nil {
		deps.Health.Register(s)
	}
}
