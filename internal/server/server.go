package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"emergency-response/internal/auth"
	"emergency-response/internal/authz"
	"emergency-response/internal/config"
	"emergency-response/internal/database"
	"emergency-response/internal/dispatch"
	"emergency-response/internal/handlers"
	"emergency-response/internal/metrics"
	"emergency-response/internal/relay"
	"emergency-response/internal/repository"
)

// Server wires the emergency response service together: repositories, the
// dispatch service, the event relay, and the HTTP and gRPC listeners.
type Server struct {
	config *config.Config
	logger *zap.Logger
	db     *database.Database

	callRepo      *repository.CallRepository
	personnelRepo *repository.PersonnelRepository

	redisClient *redis.Client
	hub         *relay.Hub
	dispatchSvc *dispatch.Service
	jwtManager  *auth.Manager
	collector   *metrics.Collector

	callHandler      *handlers.CallHandler
	personnelHandler *handlers.PersonnelHandler
	healthHandler    *handlers.HealthHandler

	router     *gin.Engine
	httpServer *http.Server
	grpcServer *grpc.Server

	healthServer *health.Server
	relayCancel  context.CancelFunc
}

// New creates a new server instance.
func New(cfg *config.Config, logger *zap.Logger, db *database.Database) *Server {
	return &Server{
		config: cfg,
		logger: logger.Named("server"),
		db:     db,
	}
}

// Initialize sets up the server components.
func (s *Server) Initialize() error {
	s.logger.Info("Initializing emergency response server")

	s.collector = metrics.NewCollector()
	s.jwtManager = auth.NewManager(s.config.Auth)

	s.callRepo = repository.NewCallRepository(s.db, s.logger)
	s.personnelRepo = repository.NewPersonnelRepository(s.db, s.logger)

	if s.config.Redis.Enabled {
		s.redisClient = redis.NewClient(&redis.Options{
			Addr:     s.config.Redis.Addr(),
			Password: s.config.Redis.Password,
			DB:       s.config.Redis.DB,
			PoolSize: s.config.Redis.PoolSize,
		})
	}

	s.hub = relay.NewHub(s.config.Relay, s.redisClient, s.collector, s.logger)

	resolver := authz.NewResolver(s.logger)
	s.dispatchSvc = dispatch.NewService(
		s.callRepo,
		s.personnelRepo,
		resolver,
		s.hub,
		s.collector,
		s.logger,
	)

	s.callHandler = handlers.NewCallHandler(s.dispatchSvc, s.logger)
	s.personnelHandler = handlers.NewPersonnelHandler(s.dispatchSvc, s.logger)
	s.healthHandler = handlers.NewHealthHandler(s.db, s.logger)

	s.healthServer = health.NewServer()

	if err := s.initHTTPServer(); err != nil {
		return errors.Wrap(err, "failed to initialize HTTP server")
	}

	s.initGRPCServer()

	s.logger.Info("Server initialized successfully")
	return nil
}

func (s *Server) initHTTPServer() error {
	if s.config.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	s.router = gin.New()
	s.router.Use(gin.Recovery())
	s.router.Use(s.requestMetrics())

	// Health and metrics
	s.router.GET("/health", s.healthHandler.Health)
	s.router.GET("/health/ready", s.healthHandler.Ready)
	s.router.GET("/health/live", s.healthHandler.Live)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// REST API
	api := s.router.Group("/api/v1")
	{
		calls := api.Group("/calls")
		{
			calls.POST("", s.jwtManager.OptionalUserAuth(), s.callHandler.CreateCall)
			calls.GET("", s.callHandler.ListCalls)
			calls.GET("/:id", s.callHandler.GetCall)
			calls.PUT("/:id/user-status", s.jwtManager.OptionalUserAuth(), s.callHandler.UpdateUserStatus)
			calls.PUT("/:id/personnel-status", s.jwtManager.PersonnelAuth(), s.callHandler.UpdatePersonnelStatus)
		}

		personnel := api.Group("/personnel")
		{
			personnel.POST("", s.personnelHandler.RegisterPersonnel)
			personnel.GET("", s.personnelHandler.ListPersonnel)
		}
	}

	// WebSocket sessions
	ws := s.router.Group("/ws")
	{
		ws.GET("/dashboard", s.jwtManager.PersonnelAuth(), s.hub.HandleDashboardSocket)
		ws.GET("/user", s.jwtManager.UserAuth(), s.hub.HandleUserSocket)
	}

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Server.HTTPPort),
		Handler:      s.router,
		ReadTimeout:  s.config.Server.ReadTimeout,
		WriteTimeout: s.config.Server.WriteTimeout,
		IdleTimeout:  s.config.Server.IdleTimeout,
	}

	return nil
}

func (s *Server) initGRPCServer() {
	s.grpcServer = grpc.NewServer()
	grpc_health_v1.RegisterHealthServer(s.grpcServer, s.healthServer)
	reflection.Register(s.grpcServer)
}

// Start begins serving HTTP and gRPC traffic and starts the Redis relay loop.
func (s *Server) Start() error {
	relayCtx, cancel := context.WithCancel(context.Background())
	s.relayCancel = cancel
	go s.hub.RunRedisRelay(relayCtx)

	grpcListener, err := net.Listen("tcp", fmt.Sprintf(":%d", s.config.Server.GRPCPort))
	if err != nil {
		return errors.Wrap(err, "failed to listen on gRPC port")
	}

	go func() {
		s.logger.Info("Starting gRPC server", zap.Int("port", s.config.Server.GRPCPort))
		if err := s.grpcServer.Serve(grpcListener); err != nil {
			s.logger.Error("gRPC server stopped", zap.Error(err))
		}
	}()

	go func() {
		s.logger.Info("Starting HTTP server", zap.Int("port", s.config.Server.HTTPPort))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP server stopped", zap.Error(err))
		}
	}()

	s.healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	return nil
}

// Stop shuts the server down gracefully.
func (s *Server) Stop() error {
	s.logger.Info("Stopping server")

	s.healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_NOT_SERVING)

	if s.relayCancel != nil {
		s.relayCancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.config.Server.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return errors.Wrap(err, "failed to shut down HTTP server")
	}

	stopped := make(chan struct{})
	go func() {
		s.grpcServer.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(s.config.Server.ShutdownTimeout):
		s.grpcServer.Stop()
	}

	if s.redisClient != nil {
		if err := s.redisClient.Close(); err != nil {
			s.logger.Warn("Failed to close Redis client", zap.Error(err))
		}
	}

	s.logger.Info("Server stopped")
	return nil
}

// requestMetrics records per-request counters.
func (s *Server) requestMetrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		s.collector.HTTPRequest(c.Request.Method, path, strconv.Itoa(c.Writer.Status()))
	}
}
