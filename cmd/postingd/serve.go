package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"

	"github.com/jmerrifield20/TreasuryPostingEngine/internal/feed"
	"github.com/jmerrifield20/TreasuryPostingEngine/internal/identity"
	"github.com/jmerrifield20/TreasuryPostingEngine/internal/reconcile"
	"github.com/jmerrifield20/TreasuryPostingEngine/internal/transfer/handler"
	"github.com/jmerrifield20/TreasuryPostingEngine/internal/transfer/service"
)

// healthService is the name reported to gRPC health probes.
const healthService = "treasury.posting.v1.PostingEngine"

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the posting engine API",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger, err := zap.NewProduction()
		if err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
		defer logger.Sync() //nolint:errcheck
		return runServe(logger)
	},
}

func runServe(logger *zap.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	be, err := openBackend(ctx, logger)
	if err != nil {
		return err
	}
	defer be.close()

	// ── Change feed ──────────────────────────────────────────────────────────
	broker := feed.NewBroker(viper.GetInt("feed.buffer"), logger)
	broker.SetDropRecorder(handler.RecordFeedDrop)

	var targets []feed.Target
	if err := viper.UnmarshalKey("webhooks", &targets); err != nil {
		return fmt.Errorf("parse webhooks: %w", err)
	}
	if len(targets) > 0 {
		notifier := feed.NewNotifier(targets, logger)
		notifier.SetMetricsRecorder(handler.RecordWebhookDelivery)
		go notifier.Run(ctx, broker.Subscribe(ctx))
		logger.Info("webhook delivery enabled", zap.Int("targets", len(targets)))
	}

	// ── Engine ───────────────────────────────────────────────────────────────
	engine := service.NewEngine(be.transfers, be.ledger, be.audit, logger)
	engine.SetPublisher(broker)
	engine.SetTransitionRecorder(handler.RecordTransition)

	// ── Operator tokens ──────────────────────────────────────────────────────
	var operators *identity.OperatorTokenIssuer
	if secret := viper.GetString("identity.operator_secret"); secret != "" {
		operators, err = identity.NewOperatorTokenIssuer(secret,
			viper.GetString("identity.issuer"),
			viper.GetDuration("identity.token_ttl"),
		)
		if err != nil {
			return fmt.Errorf("init operator tokens: %w", err)
		}
		logger.Info("operator session tokens enabled")
	} else {
		logger.Warn("identity.operator_secret not set, actors are taken from request bodies")
	}

	// ── Reconciliation ───────────────────────────────────────────────────────
	reconciler := reconcile.New(be.transfers, be.ledger, be.audit, reconcileConfig(), logger)
	reconciler.SetMetricsRecord(handler.SetReconciliationFindings)
	reconciler.SetFindingCallback(func(f reconcile.Finding) {
		if f.Transfer == nil {
			return
		}
		broker.Publish(feed.NewEvent(feed.EventReconciliationRequired, f.Transfer, "reconciler", f.Kind+": "+f.Detail))
	})

	stopBackground := make(chan os.Signal)
	go reconciler.Start(stopBackground)
	logger.Info("reconciler started", zap.Duration("interval", viper.GetDuration("reconcile.interval")))

	// ── HTTP ─────────────────────────────────────────────────────────────────
	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := handler.NewRouter(ctx, handler.RouterOptions{
		Transfers:   handler.NewTransferHandler(engine, logger),
		Stream:      handler.NewStreamHandler(broker, viper.GetDuration("feed.heartbeat"), logger),
		Reconcile:   handler.NewReconcileHandler(reconciler, logger),
		Operators:   operators,
		CORSOrigins: viper.GetStringSlice("server.cors_origins"),
		RateLimit:   rateLimitConfig(),
		Logger:      logger,
	})

	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", viper.GetInt("server.port")),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	// ── gRPC health ──────────────────────────────────────────────────────────
	grpcServer := grpc.NewServer(
		grpc.ChainUnaryInterceptor(loggingInterceptor(logger)),
	)
	healthSvc := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthSvc)
	healthSvc.SetServingStatus(healthService, grpc_health_v1.HealthCheckResponse_SERVING)
	reflection.Register(grpcServer)

	grpcAddr := fmt.Sprintf(":%d", viper.GetInt("server.grpc_port"))
	grpcLis, err := net.Listen("tcp", grpcAddr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", grpcAddr, err)
	}

	go func() {
		logger.Info("gRPC health listening", zap.String("addr", grpcAddr))
		if err := grpcServer.Serve(grpcLis); err != nil {
			logger.Error("gRPC server error", zap.Error(err))
		}
	}()
	go func() {
		logger.Info("posting engine listening", zap.String("addr", httpSrv.Addr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	healthSvc.SetServingStatus(healthService, grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	close(stopBackground)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	// SSE streams end when ctx is cancelled; cancel first so Shutdown does
	// not wait out the timeout on open streams.
	cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("forced shutdown", zap.Error(err))
	}
	grpcServer.GracefulStop()

	logger.Info("stopped")
	return nil
}

func rateLimitConfig() handler.RateLimitConfig {
	return handler.RateLimitConfig{
		RPS:   viper.GetFloat64("server.rate_limit_rps"),
		Burst: viper.GetInt("server.rate_limit_burst"),
		ExemptPrefixes: []string{
			"/api/v1/transfers/stream",
			"/healthz",
			"/metrics",
		},
	}
}

func reconcileConfig() reconcile.Config {
	return reconcile.Config{
		Interval:    viper.GetDuration("reconcile.interval"),
		GracePeriod: viper.GetDuration("reconcile.grace_period"),
		BatchLimit:  viper.GetInt("reconcile.batch_limit"),
	}
}

// loggingInterceptor returns a gRPC unary server interceptor that logs each call.
func loggingInterceptor(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		logger.Debug("grpc",
			zap.String("method", info.FullMethod),
			zap.String("code", status.Code(err).String()),
			zap.Duration("latency", time.Since(start)),
		)
		return resp, err
	}
}
