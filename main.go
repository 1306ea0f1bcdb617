package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"meetup-chat/internal/cache"
	"meetup-chat/internal/config"
	"meetup-chat/internal/db"
	grpcserver "meetup-chat/internal/grpc"
	"meetup-chat/internal/handlers"
	"meetup-chat/internal/logger"
	"meetup-chat/internal/middleware"
	"meetup-chat/internal/notify"
	"meetup-chat/internal/observability"
	"meetup-chat/internal/rabbitmq"
	"meetup-chat/internal/repositories"
	"meetup-chat/internal/services"
	"meetup-chat/internal/telemetry"
	"meetup-chat/internal/ws"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("failed to read .env: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg.LogLevel, cfg.Environment)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer func() { _ = logr.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.SetupTracing(ctx, cfg.OTLPEndpoint, cfg.ServiceName, cfg.Environment, logr)
	if err != nil {
		logr.Fatal("failed to set up tracing", zap.Error(err))
	}

	database, err := db.Connect(cfg.DBDSN, logr)
	if err != nil {
		logr.Fatal("failed to connect to db", zap.Error(err))
	}
	defer database.Close()

	rdb, err := cache.New(ctx, cache.Config{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}, logr)
	if err != nil {
		logr.Fatal("failed to connect to redis", zap.Error(err))
	}

	publisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange, logr)
	defer publisher.Close()
	observability.SetPublisher(publisher)
	logr.Info("event publisher ready",
		zap.String("mode", rabbitmq.PublisherMode(publisher)),
		zap.String("noop_reason", rabbitmq.PublisherNoopReason(publisher)))
	emitter := telemetry.NewAuditEmitter(publisher, cfg.ServiceName, cfg.Environment, logr)

	hub := ws.NewHub(logr)
	var pubsub notify.PubSub
	if rdb != nil {
		pubsub = rdb
		defer rdb.Close()
	}
	broadcaster := notify.NewBroadcaster(pubsub, hub, cfg.PushQueueSize, logr)
	if err := broadcaster.Start(ctx); err != nil {
		logr.Fatal("failed to start broadcaster", zap.Error(err))
	}

	tx := db.NewTxManager(database)
	userRepo := repositories.NewUserRepo(database)
	roomRepo := repositories.NewRoomRepo(database)
	messageRepo := repositories.NewMessageRepo(database)
	invoiceRepo := repositories.NewInvoiceRepo(database)
	giftRepo := repositories.NewGiftRepo(database)
	joinRepo := repositories.NewJoinRepo(database)
	transferRepo := repositories.NewTransferRepo(database)

	ledger := services.NewLedger(tx, userRepo, invoiceRepo, publisher, broadcaster, logr)
	roomService := services.NewRoomService(tx, roomRepo, userRepo, joinRepo, broadcaster, logr)
	dispatcher := services.NewDispatcher(tx, roomRepo, messageRepo, giftRepo, joinRepo, ledger, broadcaster, cfg.SystemUserID, logr)
	unread := services.NewUnreadTracker(roomRepo, messageRepo)
	transferDesk := services.NewTransferDesk(tx, userRepo, transferRepo, ledger, logr)

	validator := middleware.NewTokenValidator(cfg.JWTSecret)
	chatWS := ws.NewChatWebSocketHandler(hub, validator, logr)

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	// middlewares
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(cfg.ServiceName))
	router.Use(observability.HTTPMetricsMiddleware())
	router.Use(middleware.RequestLogger(logr))

	router.GET("/healthz", func(c *gin.Context) {
		if err := database.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/ws", chatWS.Handle)

	handlers.RegisterRoutes(router, validator, handlers.Handlers{
		Rooms:     handlers.NewRoomHandler(roomService, unread),
		Messages:  handlers.NewMessageHandler(dispatcher, unread, emitter),
		Points:    handlers.NewPointHandler(ledger, emitter),
		Transfers: handlers.NewTransferHandler(transferDesk, emitter),
		Admin:     handlers.NewAdminHandler(roomService, dispatcher, ledger, emitter, logr),
	})
	handlers.RegisterDebugRoutes(router, emitter, cfg.DebugRoutes)

	grpcSrv, healthSrv := grpcserver.NewServer()
	checks := map[string]grpcserver.Check{"postgres": database.PingContext}
	if rdb != nil {
		checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}
	go grpcserver.WatchHealth(ctx, healthSrv, checks, 15*time.Second, logr)

	grpcLis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		logr.Fatal("failed to listen for grpc", zap.Error(err))
	}
	go func() {
		if err := grpcSrv.Serve(grpcLis); err != nil {
			logr.Error("grpc server error", zap.Error(err))
		}
	}()

	httpSrv := &http.Server{Addr: ":" + cfg.HTTPPort, Handler: router}
	go func() {
		logr.Info("http server listening", zap.String("addr", httpSrv.Addr), zap.String("grpc_port", cfg.GRPCPort))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logr.Warn("http shutdown", zap.Error(err))
	}
	grpcSrv.GracefulStop()
	broadcaster.Wait()
	if err := shutdownTracing(shutdownCtx); err != nil {
		logr.Warn("tracing shutdown", zap.Error(err))
	}
}
