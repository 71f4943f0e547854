// Package handler reports readiness through the standard gRPC health service.
package handler

import (
	"context"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Pinger checks database connectivity (e.g. *sql.DB).
type Pinger interface {
	PingContext(ctx context.Context) error
}

// PolicyChecker checks that the capability policy engine can evaluate.
type PolicyChecker interface {
	HealthCheck(ctx context.Context) error
}

// CheckFunc is an additional named readiness check, e.g. a Redis ping.
type CheckFunc func(ctx context.Context) error

// Server wraps the gRPC health server and derives its status from dependency checks.
// A nil Pinger or PolicyChecker is skipped.
type Server struct {
	health   *health.Server
	pinger   Pinger
	policy   PolicyChecker
	checks   map[string]CheckFunc
	services []string
	log      *zap.Logger
}

// NewServer returns a health server. services are the names whose status follows the
// checks in addition to the overall "" entry.
func NewServer(pinger Pinger, policy PolicyChecker, log *zap.Logger, services ...string) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		health:   health.NewServer(),
		pinger:   pinger,
		policy:   policy,
		checks:   map[string]CheckFunc{},
		services: services,
		log:      log,
	}
}

// AddCheck registers an extra readiness check. Call before Probe or Run.
func (s *Server) AddCheck(name string, fn CheckFunc) {
	s.checks[name] = fn
}

// Register registers the health service with r.
func (s *Server) Register(r grpc.ServiceRegistrar) {
	healthpb.RegisterHealthServer(r, s.health)
}

// Probe runs every check once and publishes SERVING or NOT_SERVING.
func (s *Server) Probe(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	st := healthpb.HealthCheckResponse_SERVING
	if s.pinger != nil {
		if err := s.pinger.PingContext(ctx); err != nil {
			s.log.Warn("health: database ping failed", zap.Error(err))
			st = healthpb.HealthCheckResponse_NOT_SERVING
		}
	}
	if s.policy != nil {
		if err := s.policy.HealthCheck(ctx); err != nil {
			s.log.Warn("health: policy engine check failed", zap.Error(err))
			st = healthpb.HealthCheckResponse_NOT_SERVING
		}
	}
	for name, fn := range s.checks {
		if err := fn(ctx); err != nil {
			s.log.Warn("health: check failed", zap.String("check", name), zap.Error(err))
			st = healthpb.HealthCheckResponse_NOT_SERVING
		}
	}
	s.health.SetServingStatus("", st)
	for _, svc := range s.services {
		s.health.SetServingStatus(svc, st)
	}
	return st
}

// Run probes every interval until ctx is done, then marks everything NOT_SERVING.
func (s *Server) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		probeCtx, cancel := context.WithTimeout(ctx, interval)
		s.Probe(probeCtx)
		cancel()
		select {
		case <-ctx.Done():
			s.health.Shutdown()
			return
		case <-ticker.C:
		}
	}
}

// Shutdown marks every service NOT_SERVING.
func (s *Server) Shutdown() {
	s.health.Shutdown()
}
