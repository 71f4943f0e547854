package main

import (
	"context"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"orgscope/internal/app"
	"orgscope/internal/config"
	healthhandler "orgscope/internal/health/handler"
	"orgscope/internal/logging"
	organizationhandler "orgscope/internal/organization/handler"
	"orgscope/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := logging.New(cfg.LogLevel, cfg.Production())
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger, app.Options{Telemetry: true})
	if err != nil {
		logger.Fatal("startup", zap.Error(err))
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := a.Close(shutdownCtx); err != nil {
			logger.Warn("shutdown", zap.Error(err))
		}
	}()

	health := healthhandler.NewServer(a.DB, a.Restrictor, logger, organizationhandler.ServiceName)
	if a.Redis != nil {
		health.AddCheck("redis", func(ctx context.Context) error { return a.Redis.Ping(ctx).Err() })
	}
	go health.Run(ctx, cfg.HealthInterval)

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		logger.Fatal("listen", zap.String("addr", cfg.GRPCAddr), zap.Error(err))
	}
	defer lis.Close()

	s := server.NewGRPCServer(server.Deps{
		Manager: a.Manager,
		Tokens:  a.Tokens,
		Audit:   a.Audit,
		Health:  health,
		Logger:  logger,
	})

	go func() {
		logger.Info("gRPC server listening", zap.String("addr", cfg.GRPCAddr), zap.String("role_scope", string(cfg.Scope())))
		if err := s.Serve(lis); err != nil {
			logger.Error("serve", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down gRPC server...")
	health.Shutdown()
	s.GracefulStop()
	logger.Info("gRPC server stopped")
}
