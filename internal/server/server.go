package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"lprview/internal/client"
	"lprview/internal/config"
	"lprview/internal/handler"
	"lprview/internal/middleware"
	"lprview/internal/repository"
	"lprview/internal/service"
	"lprview/internal/session"
	"lprview/web"
)

type Server struct {
	httpServer *http.Server
	store      session.Store
	cfg        *config.Config
	log        *zap.Logger
	stop       context.CancelFunc
}

func New(ctx context.Context, cfg *config.Config, log *zap.Logger, info handler.BuildInfo) (*Server, error) {
	gin.SetMode(cfg.Server.Mode)

	bgCtx, stop := context.WithCancel(context.Background())

	store, err := newStore(ctx, bgCtx, cfg, log)
	if err != nil {
		stop()
		return nil, err
	}

	var archive repository.ImageArchive
	if cfg.S3.Enabled {
		archive, err = repository.NewS3Archive(ctx, &cfg.S3, log)
		if err != nil {
			stop()
			store.Close()
			return nil, fmt.Errorf("failed to create S3 archive: %w", err)
		}
	}

	uploader := client.New(cfg.Backend, log)
	view := service.NewViewController(store, uploader, archive, uploader.DownloadCSVURL(), log)
	h := handler.NewHandler(view, log)

	router := SetupRouter(h, cfg, log, info)

	server := &Server{
		httpServer: &http.Server{
			Addr:           cfg.Server.Addr(),
			Handler:        router,
			ReadTimeout:    cfg.Server.ReadTimeout,
			WriteTimeout:   cfg.Server.WriteTimeout,
			MaxHeaderBytes: 1 << 20, // 1 MB
		},
		store: store,
		cfg:   cfg,
		log:   log,
		stop:  stop,
	}

	log.Info("Server created successfully",
		zap.String("address", server.httpServer.Addr),
		zap.String("backend", cfg.Backend.BaseURL),
		zap.String("session_backend", cfg.Session.Backend),
		zap.Bool("archive", archive != nil))

	return server, nil
}

// SetupRouter registers the view routes on a fresh engine.
func SetupRouter(h *handler.Handler, cfg *config.Config, log *zap.Logger, info handler.BuildInfo) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.Logger(log))
	router.MaxMultipartMemory = cfg.App.MaxMultipartMemory
	router.SetHTMLTemplate(web.Templates())

	router.GET("/health", h.HealthCheck)
	router.GET("/version", handler.Version(info))

	view := router.Group("/")
	view.Use(middleware.Session(cfg.Session.CookieName))
	{
		view.GET("/", h.GetUI)
		view.POST("/select", h.SelectImage)
		view.POST("/detect", h.Detect)
	}

	return router
}

func newStore(ctx, bgCtx context.Context, cfg *config.Config, log *zap.Logger) (session.Store, error) {
	switch cfg.Session.Backend {
	case config.SessionBackendRedis:
		store := session.NewRedisStore(&cfg.Redis, cfg.Session.TTL, log)
		if err := store.Ping(ctx); err != nil {
			store.Close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		log.Info("Redis session store connected", zap.String("addr", cfg.Redis.Addr))
		return store, nil
	default:
		store := session.NewMemoryStore(cfg.Session.TTL, log)
		go store.RunCleanup(bgCtx, max(cfg.Session.TTL/2, time.Second))
		return store, nil
	}
}

func (s *Server) Run() error {
	s.log.Info("Server is running",
		zap.String("host", s.cfg.Server.Host),
		zap.String("port", s.cfg.Server.Port),
		zap.String("address", s.httpServer.Addr))

	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("Shutting down server")

	err := s.httpServer.Shutdown(ctx)
	s.stop()
	if cerr := s.store.Close(); cerr != nil {
		s.log.Warn("Failed to close session store", zap.Error(cerr))
	}
	return err
}
