// Package server exposes the Melodeck HTTP API.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"Melodeck/cache"
	"Melodeck/config"
	"Melodeck/core/auth"
	"Melodeck/core/feed"
	"Melodeck/db"
	"Melodeck/logger"
	"Melodeck/repository"
	"Melodeck/service"
	"Melodeck/storage"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"gorm.io/gorm"
)

// Pinger reports whether a backing dependency is reachable.
type Pinger func(ctx context.Context) error

// Server holds the handlers' dependencies.
type Server struct {
	auth      *service.AuthService
	catalog   *service.CatalogService
	playlists *service.PlaylistService
	likes     *service.LikeService
	store     storage.Store
	hub       *feed.Hub
	ping      Pinger

	uploadMaxBytes int64
	uploadSem      chan struct{}
	authLimiter    *ipRateLimiter
	upgrader       websocket.Upgrader
}

// New wires the services over gdb and returns a Server. trackCache may be
// nil.
func New(cfg *config.Config, gdb *gorm.DB, store storage.Store, trackCache cache.TrackCache, hub *feed.Hub) *Server {
	users := repository.NewGormUserRepository(gdb)
	tracks := repository.NewGormTrackRepository(gdb)
	tokens := auth.NewTokenManager(cfg.JWTSecret, cfg.JWTTTL)

	return &Server{
		auth:      service.NewAuthService(users, tokens),
		catalog:   service.NewCatalogService(tracks, store, trackCache, hub),
		playlists: service.NewPlaylistService(repository.NewGormPlaylistRepository(gdb), tracks),
		likes:     service.NewLikeService(repository.NewGormLikeRepository(gdb), tracks),
		store:     store,
		hub:       hub,
		ping:      func(ctx context.Context) error { return db.Ping(ctx, gdb) },

		uploadMaxBytes: cfg.UploadMaxBytes,
		uploadSem:      make(chan struct{}, cfg.UploadMaxConcurrent),
		authLimiter:    newIPRateLimiter(cfg.AuthRateLimit, cfg.AuthRateBurst),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // 允许所有来源
			},
		},
	}
}

// Router builds the HTTP routes.
func (s *Server) Router() http.Handler {
	router := mux.NewRouter()
	router.Use(requestIDMiddleware, loggingMiddleware, recoverMiddleware, corsMiddleware)

	// 用户认证相关的API端点
	router.HandleFunc("/register", s.authLimiter.middleware(s.RegisterHandler)).Methods(http.MethodPost, http.MethodOptions)
	router.HandleFunc("/login", s.authLimiter.middleware(s.LoginHandler)).Methods(http.MethodPost, http.MethodOptions)
	router.HandleFunc("/me", s.requireAuth(s.MeHandler)).Methods(http.MethodGet, http.MethodOptions)

	// 曲库
	router.HandleFunc("/upload", s.requireAuth(s.UploadTrackHandler)).Methods(http.MethodPost, http.MethodOptions)
	router.HandleFunc("/songs", s.ListTracksHandler).Methods(http.MethodGet, http.MethodOptions)
	router.HandleFunc("/search/songs", s.SearchTracksHandler).Methods(http.MethodGet, http.MethodOptions)
	router.HandleFunc("/songs/{id}", s.GetTrackHandler).Methods(http.MethodGet, http.MethodOptions)
	router.HandleFunc("/songs/{id}", s.requireAuth(s.DeleteTrackHandler)).Methods(http.MethodDelete)

	// 播放列表相关的API端点
	router.HandleFunc("/playlists", s.requireAuth(s.CreatePlaylistHandler)).Methods(http.MethodPost, http.MethodOptions)
	router.HandleFunc("/playlists/user", s.requireAuth(s.ListPlaylistsHandler)).Methods(http.MethodGet, http.MethodOptions)
	router.HandleFunc("/playlists/{id}", s.requireAuth(s.GetPlaylistHandler)).Methods(http.MethodGet, http.MethodOptions)
	router.HandleFunc("/playlists/{id}", s.requireAuth(s.UpdatePlaylistHandler)).Methods(http.MethodPut)
	router.HandleFunc("/playlists/{id}", s.requireAuth(s.DeletePlaylistHandler)).Methods(http.MethodDelete)
	router.HandleFunc("/playlists/{id}/songs", s.requireAuth(s.AddPlaylistTrackHandler)).Methods(http.MethodPost, http.MethodOptions)
	router.HandleFunc("/playlists/{id}/songs", s.requireAuth(s.PlaylistTracksHandler)).Methods(http.MethodGet)

	// 收藏
	router.HandleFunc("/songs/{id}/like", s.requireAuth(s.LikeTrackHandler)).Methods(http.MethodPost, http.MethodOptions)
	router.HandleFunc("/songs/{id}/like", s.requireAuth(s.UnlikeTrackHandler)).Methods(http.MethodDelete)
	router.HandleFunc("/users/{id}/liked-songs", s.requireAuth(s.LikedTracksHandler)).Methods(http.MethodGet, http.MethodOptions)

	router.PathPrefix("/uploads/").HandlerFunc(s.MediaHandler).Methods(http.MethodGet, http.MethodHead, http.MethodOptions)
	router.HandleFunc("/ws/catalog", s.FeedHandler).Methods(http.MethodGet)
	router.HandleFunc("/healthz", s.HealthHandler).Methods(http.MethodGet)

	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeMessage(w, http.StatusNotFound, "not found")
	})
	router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeMessage(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	return router
}

// Start opens every dependency, serves until ctx is cancelled or the
// process receives SIGINT/SIGTERM, then shuts down gracefully.
func Start(ctx context.Context, cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	gdb, err := db.Open(cfg)
	if err != nil {
		return err
	}
	defer db.Close(gdb)

	if err := db.Migrate(gdb); err != nil {
		return err
	}

	store, err := storage.New(ctx, cfg)
	if err != nil {
		return err
	}

	var trackCache cache.TrackCache = cache.NoopTrackCache{}
	rdb, err := cache.Connect(ctx, cfg)
	switch {
	case errors.Is(err, cache.ErrDisabled):
		logger.Info("Redis not configured, catalog cache disabled")
	case err != nil:
		return err
	default:
		defer rdb.Close()
		trackCache = cache.NewRedisTrackCache(rdb, cfg.CacheTTL)
	}

	hub := feed.NewHub()
	srv := New(cfg, gdb, store, trackCache, hub)

	// 设置服务器超时
	httpServer := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      srv.Router(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	go srv.pruneLimiter(ctx)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Server starting", logger.String("addr", cfg.HTTPAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// 等待中断信号
	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	logger.Info("Shutting down server...")

	// 创建一个5秒超时的上下文
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	hub.Close()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("Server stopped")
	return nil
}

func (s *Server) pruneLimiter(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.authLimiter.prune(10 * time.Minute)
		}
	}
}
