package handler

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"boardsync-backend/internal/cache"
)

// HealthHandler 헬스체크 핸들러
type HealthHandler struct {
	db    *gorm.DB
	cache *cache.BoardCache
}

// NewHealthHandler HealthHandler 생성. db와 cache는 nil일 수 있다
// (degraded 모드).
func NewHealthHandler(db *gorm.DB, boardCache *cache.BoardCache) *HealthHandler {
	return &HealthHandler{db: db, cache: boardCache}
}

// ComponentCheck 컴포넌트 상태
type ComponentCheck struct {
	Status  string `json:"status"`
	Latency string `json:"latency,omitempty"`
	Error   string `json:"error,omitempty"`
}

// HealthResponse 헬스체크 응답
type HealthResponse struct {
	Status    string                    `json:"status"`
	Timestamp string                    `json:"timestamp"`
	Checks    map[string]ComponentCheck `json:"checks"`
}

// Check 전체 상태 확인 (DB + Redis). 영속층이 죽어도 보드는 메모리로
// 동작하므로 degraded이지 unhealthy가 아니다.
func (h *HealthHandler) Check(c *fiber.Ctx) error {
	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().Format(time.RFC3339),
		Checks:    make(map[string]ComponentCheck),
	}

	// 1. Database 체크
	if h.db == nil {
		response.Status = "degraded"
		response.Checks["database"] = ComponentCheck{
			Status: "not_configured",
		}
	} else {
		dbStart := time.Now()
		sqlDB, err := h.db.DB()
		if err != nil {
			response.Status = "degraded"
			response.Checks["database"] = ComponentCheck{
				Status: "degraded",
				Error:  "failed to get database connection",
			}
		} else if err := sqlDB.Ping(); err != nil {
			response.Status = "degraded"
			response.Checks["database"] = ComponentCheck{
				Status: "degraded",
				Error:  "database ping failed",
			}
		} else {
			response.Checks["database"] = ComponentCheck{
				Status:  "healthy",
				Latency: time.Since(dbStart).String(),
			}
		}
	}

	// 2. Redis 체크
	if h.cache == nil {
		response.Checks["redis"] = ComponentCheck{
			Status: "not_configured",
		}
		return c.JSON(response)
	}
	redisStart := time.Now()
	if err := h.cache.Health(c.Context()); err != nil {
		response.Checks["redis"] = ComponentCheck{
			Status: "degraded",
			Error:  "redis ping failed",
		}
	} else {
		response.Checks["redis"] = ComponentCheck{
			Status:  "healthy",
			Latency: time.Since(redisStart).String(),
		}
	}

	return c.JSON(response)
}

// Liveness K8s liveness probe용 (단순 체크)
func (h *HealthHandler) Liveness(c *fiber.Ctx) error {
	return c.SendString("OK")
}

// Readiness K8s readiness probe용. degraded 모드에서도 트래픽은 받는다.
func (h *HealthHandler) Readiness(c *fiber.Ctx) error {
	return c.SendString("READY")
}
