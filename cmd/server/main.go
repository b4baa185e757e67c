package main

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"boardsync-backend/internal/cache"
	"boardsync-backend/internal/config"
	"boardsync-backend/internal/database"
	"boardsync-backend/internal/server"
	"boardsync-backend/internal/store"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	// 설정 로드
	cfg := config.Load()

	// 데이터베이스 연결. 실패해도 종료하지 않고 메모리 모드로 내려간다:
	// 보드는 진행 중인 미팅을 위해 살아 있어야 한다.
	var (
		db          *gorm.DB
		persistence store.BoardPersistence
		meetings    store.MeetingGateway
	)
	db, err := database.ConnectDB(cfg.Database.DSN)
	if err != nil {
		log.Warn().Err(err).Msg("⚠️ database unavailable, running with in-memory boards")
		persistence = store.NewMemoryPersistence()
		meetings = store.NewStaticMeetingGateway()
	} else {
		defer database.Close()
		log.Info().Msg("✅ Database connected successfully")
		persistence = store.NewGormPersistence(db)
		meetings = store.NewGormMeetingGateway(db)
	}

	boardStore := store.NewBoardStore(persistence, meetings)

	// Redis 연결 (선택적). 없으면 캐시는 no-op으로 동작한다.
	boardCache, err := cache.NewBoardCache(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Warn().Err(err).Msg("⚠️ redis unavailable, raster cache disabled")
		boardCache = nil
	} else {
		defer boardCache.Close()
		log.Info().Str("addr", cfg.Redis.Addr).Msg("✅ Redis connected")
	}

	// 서버 생성 및 설정
	srv := server.New(cfg, db, boardStore, boardCache)
	srv.SetupMiddleware()
	srv.SetupRoutes()
	srv.StartMaintenance()

	// 서버 시작
	if err := srv.Start(); err != nil {
		log.Fatal().Err(err).Msg("server failed to start")
	}
}
