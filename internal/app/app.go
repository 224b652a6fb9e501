package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	promgrpc "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	healthcheck "github.com/vladislavdragonenkov/meenava/internal/health"
	"github.com/vladislavdragonenkov/meenava/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/meenava/internal/metrics"
	"github.com/vladislavdragonenkov/meenava/internal/service/httpapi"
	"github.com/vladislavdragonenkov/meenava/internal/service/idempotency"
	"github.com/vladislavdragonenkov/meenava/internal/service/outbox"
	"github.com/vladislavdragonenkov/meenava/internal/service/persist"
	"github.com/vladislavdragonenkov/meenava/internal/service/session"
	"github.com/vladislavdragonenkov/meenava/internal/service/storefront"
	"github.com/vladislavdragonenkov/meenava/internal/version"
)

const (
	shutdownTimeout   = 5 * time.Second
	readHeaderTimeout = 5 * time.Second
)

// Run поднимает HTTP API корзины, gRPC health, метрики и фоновые воркеры
// и блокируется до отмены ctx или падения одного из серверов.
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")
	if err := cfg.Validate(); err != nil {
		return err
	}

	deps, err := initRuntimeDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if deps.closeFn == nil {
			return
		}
		if err := deps.closeFn(); err != nil {
			logger.WithError(err).Warn("failed to close storage")
		}
	}()

	cartMetrics := metrics.NewCartMetrics()
	workerMetrics := metrics.NewWorkerMetrics()

	// Без брокеров события корзины не пишутся в outbox: публиковать их некому.
	kafkaProducer, _ := initKafkaProducer(cfg.KafkaBrokerList(), logger)
	defer closeKafka(kafkaProducer, logger)

	writer := persist.NewWriter(deps.cartStore,
		persist.WithLogger(logger.WithField("component", "snapshot-writer")),
		persist.WithMetrics(cartMetrics),
		persist.WithMaxAttempts(cfg.SnapshotMaxAttempts),
		persist.WithRetryBaseDelay(cfg.SnapshotRetryDelay),
		persist.WithWriteTimeout(cfg.SnapshotWriteTimeout),
	)

	sessionOptions := []session.Option{
		session.WithLogger(logger.WithField("component", "session-manager")),
		session.WithMetrics(cartMetrics),
		session.WithSnapshotSink(writer),
		session.WithKeyPrefix(cfg.CartKeyPrefix),
		session.WithIdleTTL(cfg.SessionIdleTTL),
		session.WithLoadTimeout(cfg.SessionLoadTimeout),
	}
	if kafkaProducer != nil {
		recorder := outbox.NewRecorder(deps.outboxRepo, logger.WithField("component", "cart-event-recorder"))
		sessionOptions = append(sessionOptions, session.WithEventRecorder(recorder))
	}
	sessions := session.NewManager(deps.cartStore, sessionOptions...)

	shop := storefront.NewService(deps.catalog, sessions, storefront.Config{
		Delivery:      cfg.DeliveryPolicy(),
		WhatsAppPhone: cfg.WhatsAppPhone,
		Flusher:       writer,
	}, logger.WithField("component", "storefront"))

	api := httpapi.NewHandler(shop,
		httpapi.WithLogger(logger.WithField("component", "http")),
		httpapi.WithIdempotency(deps.idempotencyRepo, cfg.IdempotencyTTL),
	)

	workersCtx, cancelWorkers := context.WithCancel(context.Background())
	var workers sync.WaitGroup
	startWorker := func(run func(context.Context)) {
		workers.Add(1)
		go func() {
			defer workers.Done()
			run(workersCtx)
		}()
	}

	startWorker(writer.Run)
	startWorker(sessions.Run)
	startWorker(idempotency.NewCleanupWorker(deps.idempotencyRepo,
		idempotency.WithLogger(logger.WithField("component", "idempotency-cleanup")),
		idempotency.WithMetrics(workerMetrics),
		idempotency.WithInterval(cfg.IdempotencyCleanupInterval),
		idempotency.WithBatchSize(cfg.IdempotencyCleanupBatchSize),
	).Run)
	for _, job := range deps.jobs {
		startWorker(job)
	}
	if kafkaProducer != nil {
		startWorker(outbox.NewWorker(deps.outboxRepo,
			kafka.NewOutboxPublisher(kafkaProducer, cfg.KafkaCartTopic),
			outbox.WithLogger(logger.WithField("component", "outbox-worker")),
			outbox.WithMetrics(workerMetrics),
			outbox.WithDLQPublisher(kafka.NewOutboxPublisher(kafkaProducer, cfg.KafkaDLQTopic)),
			outbox.WithPollInterval(cfg.OutboxPollInterval),
			outbox.WithBatchSize(cfg.OutboxBatchSize),
			outbox.WithMaxAttempts(cfg.OutboxMaxAttempts),
			outbox.WithRetryBaseDelay(cfg.OutboxRetryDelay),
		).Run)
	}
	workersDone := make(chan struct{})
	go func() {
		workers.Wait()
		close(workersDone)
	}()

	grpcMetrics := promgrpc.NewServerMetrics()
	grpcServer := grpc.NewServer(grpc.ChainUnaryInterceptor(grpcMetrics.UnaryServerInterceptor()))
	if err := prometheus.Register(grpcMetrics); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(*promgrpc.ServerMetrics); ok {
				grpcMetrics = existing
			}
		} else {
			logger.WithError(err).Warn("failed to register grpc metrics")
		}
	}

	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	reflection.Register(grpcServer)
	grpcMetrics.InitializeMetrics(grpcServer)

	healthHandler := healthcheck.NewHandler(version.Version())
	healthHandler.RegisterChecker("storage", deps.storageChecker)
	if kafkaProducer != nil {
		healthHandler.RegisterOptional("outbox", healthcheck.CheckFunc(func(context.Context) error {
			_, err := deps.outboxRepo.Stats()
			return err
		}))
	}

	metricsSrv := startMetricsServer(ctx, cfg.MetricsAddr, logger, healthHandler)

	grpcLis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		shutdownHTTP(metricsSrv, logger)
		shutdownWorkers(cancelWorkers, workersDone, logger)
		return fmt.Errorf("listen grpc: %w", err)
	}
	httpLis, err := net.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		_ = grpcLis.Close()
		shutdownHTTP(metricsSrv, logger)
		shutdownWorkers(cancelWorkers, workersDone, logger)
		return fmt.Errorf("listen http: %w", err)
	}

	apiSrv := &http.Server{Handler: api.Routes(), ReadHeaderTimeout: readHeaderTimeout}

	errCh := make(chan error, 2)
	go func() {
		logger.Infof("gRPC сервер слушает %s", grpcLis.Addr())
		errCh <- grpcServer.Serve(grpcLis)
	}()
	go func() {
		logger.WithField("version", version.String()).Infof("HTTP API слушает %s", httpLis.Addr())
		if err := apiSrv.Serve(httpLis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("получен сигнал остановки, останавливаем серверы")
		runErr = ctx.Err()
	case err := <-errCh:
		if !errors.Is(err, grpc.ErrServerStopped) {
			runErr = err
		}
	}

	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	shutdownHTTP(apiSrv, logger)
	stopGRPC(grpcServer, logger)
	shutdownHTTP(metricsSrv, logger)
	shutdownWorkers(cancelWorkers, workersDone, logger)
	flushSnapshots(writer, logger)

	return runErr
}

// startMetricsServer запускает HTTP-обработчик /metrics и health-пробы.
func startMetricsServer(ctx context.Context, addr string, logger *log.Entry, healthHandler *healthcheck.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", healthHandler)
	mux.HandleFunc("/readyz", healthHandler.ReadinessHandler)
	mux.HandleFunc("/livez", healthcheck.LivenessHandler)

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: readHeaderTimeout}
	go func() {
		logger.Infof("метрики доступны по адресу %s/metrics", addr)
		logger.Infof("health checks: %s/healthz, %s/readyz, %s/livez", addr, addr, addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Warn("metrics server failed")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownHTTP(srv, logger)
	}()

	return srv
}

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(srv *http.Server, logger *log.Entry) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("http shutdown with error")
	}
}

func stopGRPC(srv *grpc.Server, logger *log.Entry) {
	stopped := make(chan struct{})
	go func() {
		srv.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(shutdownTimeout):
		logger.Warn("graceful stop превысил таймаут, принудительно останавливаем")
		srv.Stop()
	}
}

// shutdownWorkers отменяет фоновые воркеры и ждёт их завершения.
func shutdownWorkers(cancel context.CancelFunc, done <-chan struct{}, logger *log.Entry) {
	if cancel != nil {
		cancel()
	}
	if done == nil {
		return
	}
	select {
	case <-done:
	case <-time.After(shutdownTimeout):
		logger.Warn("background workers did not stop in time")
	}
}

// flushSnapshots сохраняет снимки корзин, оставшиеся в очереди.
func flushSnapshots(writer *persist.Writer, logger *log.Entry) {
	if writer == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := writer.Close(ctx); err != nil {
		logger.WithError(err).Error("failed to flush cart snapshots on shutdown")
		return
	}
	logger.Info("cart snapshots flushed")
}
