package server

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"boardsync-backend/internal/auth"
	"boardsync-backend/internal/cache"
	"boardsync-backend/internal/config"
	"boardsync-backend/internal/handler"
	"boardsync-backend/internal/metrics"
	"boardsync-backend/internal/store"
)

// Server Fiber 서버 래퍼
type Server struct {
	app               *fiber.App
	cfg               *config.Config
	db                *gorm.DB
	boardStore        *store.BoardStore
	registry          *store.SessionRegistry
	hub               *handler.BoardHub
	cache             *cache.BoardCache
	wsHandler         *handler.BoardWSHandler
	whiteboardHandler *handler.WhiteboardHandler
	healthHandler     *handler.HealthHandler
	jwtManager        *auth.JWTManager
	promRegistry      *prometheus.Registry
	sweepStop         chan struct{}
}

// New 새 서버 인스턴스 생성. db와 boardCache는 nil일 수 있다 (degraded 모드).
func New(cfg *config.Config, db *gorm.DB, boardStore *store.BoardStore, boardCache *cache.BoardCache) *Server {
	app := fiber.New(fiber.Config{
		AppName:               "Board Sync Gateway",
		ServerHeader:          "Fiber",
		StrictRouting:         true,
		CaseSensitive:         true,
		ReadTimeout:           cfg.Server.ReadTimeout,
		WriteTimeout:          cfg.Server.WriteTimeout,
		IdleTimeout:           cfg.Server.IdleTimeout,
		Prefork:               false, // WebSocket과 호환성 문제로 비활성화
		ReadBufferSize:        16384,
		WriteBufferSize:       16384,
		BodyLimit:             10 * 1024 * 1024, // 래스터 페이로드 허용
		DisableStartupMessage: false,
	})

	jwtManager := auth.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenExpiry)

	registry := store.NewSessionRegistry()
	hub := handler.NewBoardHub()
	wsHandler := handler.NewBoardWSHandler(boardStore, registry, hub, boardCache)
	whiteboardHandler := handler.NewWhiteboardHandler(
		boardStore, registry, hub, boardCache, wsHandler,
		cfg.Board.IdleThreshold, cfg.Board.SessionMaxAge,
	)
	healthHandler := handler.NewHealthHandler(db, boardCache)

	promRegistry := prometheus.NewRegistry()
	metrics.RegisterCollectors(promRegistry)

	return &Server{
		app:               app,
		cfg:               cfg,
		db:                db,
		boardStore:        boardStore,
		registry:          registry,
		hub:               hub,
		cache:             boardCache,
		wsHandler:         wsHandler,
		whiteboardHandler: whiteboardHandler,
		healthHandler:     healthHandler,
		jwtManager:        jwtManager,
		promRegistry:      promRegistry,
		sweepStop:         make(chan struct{}),
	}
}

// SetupMiddleware 미들웨어 설정
func (s *Server) SetupMiddleware() {
	// 패닉 복구
	s.app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))

	// 로깅
	s.app.Use(fiberlogger.New(fiberlogger.Config{
		Format:     "${time} | ${status} | ${latency} | ${ip} | ${method} ${path}\n",
		TimeFormat: "2006-01-02 15:04:05",
		TimeZone:   "Asia/Seoul",
	}))

	// CORS
	s.app.Use(cors.New(cors.Config{
		AllowOrigins:     s.cfg.CORS.AllowOrigins,
		AllowHeaders:     s.cfg.CORS.AllowHeaders,
		AllowMethods:     "GET, POST, PUT, DELETE, OPTIONS",
		AllowCredentials: true,
	}))
}

// SetupRoutes 라우트 설정
func (s *Server) SetupRoutes() {
	// 헬스체크
	s.app.Get("/health", s.healthHandler.Check)
	s.app.Get("/health/live", s.healthHandler.Liveness)
	s.app.Get("/health/ready", s.healthHandler.Readiness)

	// Prometheus 메트릭
	s.app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(
		s.promRegistry, promhttp.HandlerOpts{},
	)))

	// Rate Limiter (보드 생성/관리 엔드포인트용)
	apiLimiter := limiter.New(limiter.Config{
		Max:        60,
		Expiration: 1 * time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "too many requests, please try again later",
			})
		},
	})

	// Board 라우트 그룹 (인증 필요)
	boardGroup := s.app.Group("/api/boards", auth.AuthMiddleware(s.jwtManager))
	boardGroup.Post("", apiLimiter, s.whiteboardHandler.CreateBoard)
	boardGroup.Get("/:boardId", s.whiteboardHandler.GetBoard)
	boardGroup.Post("/:boardId/elements", s.whiteboardHandler.AppendElement)
	boardGroup.Post("/:boardId/clear", s.whiteboardHandler.ClearBoard)
	boardGroup.Get("/:boardId/snapshots", s.whiteboardHandler.ListSnapshots)
	boardGroup.Post("/:boardId/snapshots", s.whiteboardHandler.SaveSnapshot)
	boardGroup.Put("/:boardId/permissions", s.whiteboardHandler.UpdatePermissions)
	boardGroup.Post("/:boardId/export", s.whiteboardHandler.RecordExport)
	boardGroup.Get("/:boardId/history", s.whiteboardHandler.GetHistory)
	boardGroup.Get("/:boardId/session", s.whiteboardHandler.GetSession)

	// Admin 라우트 그룹
	adminGroup := s.app.Group("/api/admin", auth.AuthMiddleware(s.jwtManager))
	adminGroup.Post("/sessions/cleanup", s.whiteboardHandler.CleanupSessions)

	// WebSocket 업그레이드 체크 미들웨어
	s.app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("allowed", true)
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	// WebSocket 보드 엔드포인트. 토큰이 검증되면 신원을 locals에 심고,
	// 없으면 join 페이로드의 user_id를 신뢰한다 (degraded 모드).
	s.app.Get("/ws/board/:boardId", auth.OptionalAuthMiddleware(s.jwtManager), func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}
		c.Locals("boardID", c.Params("boardId"))
		return c.Next()
	}, websocket.New(s.wsHandler.HandleWebSocket, websocket.Config{
		ReadBufferSize:  s.cfg.WebSocket.ReadBufferSize,
		WriteBufferSize: s.cfg.WebSocket.WriteBufferSize,
	}))
}

// StartMaintenance 유휴 참가자/만료 세션/빈 방을 주기적으로 정리
func (s *Server) StartMaintenance() {
	interval := s.cfg.Board.SweepInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				idled := s.registry.SweepIdle(s.cfg.Board.IdleThreshold)
				expired := s.registry.SweepInactiveSessions(s.cfg.Board.SessionMaxAge)
				rooms := s.hub.CleanupEmptyRooms()
				if idled > 0 || expired > 0 || rooms > 0 {
					log.Info().
						Int("idled", idled).
						Int("expired", expired).
						Int("rooms", rooms).
						Msg("maintenance sweep")
				}
			case <-s.sweepStop:
				return
			}
		}
	}()
}

// Start 서버 시작 (Graceful Shutdown 지원)
func (s *Server) Start() error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Info().Msg("🛑 Shutting down server...")
		if err := s.Shutdown(); err != nil {
			log.Fatal().Err(err).Msg("server shutdown error")
		}
	}()

	log.Info().Str("port", s.cfg.Server.Port).Msg("🚀 Board Sync Gateway starting")
	log.Info().Msgf("📡 WebSocket endpoint: ws://localhost%s/ws/board/:boardId", s.cfg.Server.Port)

	return s.app.Listen(s.cfg.Server.Port)
}

// Shutdown 서버 종료
func (s *Server) Shutdown() error {
	close(s.sweepStop)
	return s.app.ShutdownWithTimeout(30 * time.Second)
}
