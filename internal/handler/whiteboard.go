package handler

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"

	"boardsync-backend/internal/auth"
	"boardsync-backend/internal/cache"
	"boardsync-backend/internal/metrics"
	"boardsync-backend/internal/model"
	"boardsync-backend/internal/protocol"
	"boardsync-backend/internal/store"
)

// WhiteboardHandler 화이트보드 REST 핸들러
type WhiteboardHandler struct {
	store    *store.BoardStore
	registry *store.SessionRegistry
	hub      *BoardHub
	cache    *cache.BoardCache
	ws       *BoardWSHandler

	idleThreshold time.Duration
	sessionMaxAge time.Duration
}

// NewWhiteboardHandler WhiteboardHandler 생성
func NewWhiteboardHandler(boardStore *store.BoardStore, registry *store.SessionRegistry, hub *BoardHub, boardCache *cache.BoardCache, ws *BoardWSHandler, idleThreshold, sessionMaxAge time.Duration) *WhiteboardHandler {
	return &WhiteboardHandler{
		store:         boardStore,
		registry:      registry,
		hub:           hub,
		cache:         boardCache,
		ws:            ws,
		idleThreshold: idleThreshold,
		sessionMaxAge: sessionMaxAge,
	}
}

// CreateBoardRequest 보드 생성 요청
type CreateBoardRequest struct {
	MeetingID int64 `json:"meeting_id"`
}

// SaveSnapshotRequest 스냅샷 저장 요청
type SaveSnapshotRequest struct {
	Image string `json:"image"`
}

// ExportRequest export 기록 요청
type ExportRequest struct {
	Format string `json:"format"`
}

// storeError 스토어 에러를 HTTP 상태로 변환
func storeError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "board not found"})
	case errors.Is(err, store.ErrPermissionDenied):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "permission denied"})
	case errors.Is(err, store.ErrAlreadyExists):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "already exists"})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal error"})
	}
}

// CreateBoard 보드 생성 (미팅당 하나, 멱등)
func (h *WhiteboardHandler) CreateBoard(c *fiber.Ctx) error {
	claims := c.Locals("claims").(*auth.Claims)

	var req CreateBoardRequest
	if err := c.BodyParser(&req); err != nil || req.MeetingID == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "meeting_id is required",
		})
	}

	board, created, err := h.store.CreateBoard(c.Context(), req.MeetingID, claims.UserID)
	if err != nil {
		return storeError(c, err)
	}

	status := fiber.StatusOK
	if created {
		status = fiber.StatusCreated
	}
	return c.Status(status).JSON(fiber.Map{
		"board":   board,
		"created": created,
	})
}

// GetBoard 보드 + 세션 스냅샷 조회
func (h *WhiteboardHandler) GetBoard(c *fiber.Ctx) error {
	boardID := c.Params("boardId")

	state, err := h.store.GetState(c.Context(), boardID)
	if err != nil {
		return storeError(c, err)
	}

	resp := fiber.Map{
		"board":    state.Board,
		"elements": state.Elements,
	}
	if sess, ok := h.registry.Snapshot(boardID); ok {
		resp["session"] = sess
	}
	return c.JSON(resp)
}

// AppendElement 요소 추가 (REST 경로; 소켓이 닫힌 클라이언트의 재시도용)
func (h *WhiteboardHandler) AppendElement(c *fiber.Ctx) error {
	claims := c.Locals("claims").(*auth.Claims)
	boardID := c.Params("boardId")

	var data model.ElementData
	if err := c.BodyParser(&data); err != nil || data.Kind == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid element payload",
		})
	}

	elem, version, err := h.store.AppendElement(c.Context(), boardID, data, claims.UserID)
	if err != nil {
		return storeError(c, err)
	}
	metrics.ElementsCreated.WithLabelValues(boardID).Inc()

	// 래스터 커밋이면 접속 중인 클라이언트에도 반영
	if data.Kind == model.ElementKindCanvasRaster {
		if room, ok := h.hub.Room(boardID); ok {
			room.Broadcast(protocol.TypeCanvasBroadcast, protocol.CanvasBroadcastPayload{
				Image:    data.Image,
				AuthorID: claims.UserID,
				Version:  version,
			})
		}
		h.cache.SetLatestRaster(c.Context(), boardID, &cache.CachedRaster{
			Image:    data.Image,
			AuthorID: claims.UserID,
			Version:  version,
		})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"element": elem,
		"version": version,
	})
}

// ClearBoard 캔버스 초기화 (host/admin 전용)
func (h *WhiteboardHandler) ClearBoard(c *fiber.Ctx) error {
	claims := c.Locals("claims").(*auth.Claims)
	boardID := c.Params("boardId")

	board, err := h.store.Clear(c.Context(), boardID, claims.UserID)
	if err != nil {
		return storeError(c, err)
	}

	h.cache.DeleteBoard(c.Context(), boardID)
	if room, ok := h.hub.Room(boardID); ok {
		room.Broadcast(protocol.TypeCanvasCleared, protocol.CanvasClearedPayload{
			ActorID: claims.UserID,
			Version: board.Version,
		})
	}

	return c.JSON(fiber.Map{
		"version": board.Version,
	})
}

// ListSnapshots 스냅샷 목록
func (h *WhiteboardHandler) ListSnapshots(c *fiber.Ctx) error {
	board, err := h.store.GetBoard(c.Context(), c.Params("boardId"))
	if err != nil {
		return storeError(c, err)
	}
	return c.JSON(fiber.Map{
		"snapshots": board.Snapshots,
		"total":     len(board.Snapshots),
	})
}

// SaveSnapshot 스냅샷 저장 (버전에 영향 없음)
func (h *WhiteboardHandler) SaveSnapshot(c *fiber.Ctx) error {
	claims := c.Locals("claims").(*auth.Claims)
	boardID := c.Params("boardId")

	var req SaveSnapshotRequest
	if err := c.BodyParser(&req); err != nil || req.Image == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "image is required",
		})
	}

	snap, err := h.store.AddSnapshot(c.Context(), boardID, claims.UserID, req.Image)
	if err != nil {
		return storeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"snapshot": snap,
	})
}

// UpdatePermissions 권한 변경 (host 전용), 접속 중인 클라이언트에 즉시 푸시
func (h *WhiteboardHandler) UpdatePermissions(c *fiber.Ctx) error {
	claims := c.Locals("claims").(*auth.Claims)
	boardID := c.Params("boardId")

	var patch model.PermissionsPatch
	if err := c.BodyParser(&patch); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid permissions payload",
		})
	}

	perms, err := h.store.UpdatePermissions(c.Context(), boardID, claims.UserID, patch)
	if err != nil {
		return storeError(c, err)
	}

	h.ws.NotifyPermissionsChanged(c.Context(), boardID)

	return c.JSON(fiber.Map{
		"permissions": perms,
	})
}

// RecordExport export 기록 (side-log)
func (h *WhiteboardHandler) RecordExport(c *fiber.Ctx) error {
	claims := c.Locals("claims").(*auth.Claims)
	boardID := c.Params("boardId")

	var req ExportRequest
	if err := c.BodyParser(&req); err != nil || req.Format == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "format is required",
		})
	}

	export, err := h.store.AddExport(c.Context(), boardID, claims.UserID, req.Format)
	if err != nil {
		return storeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"export": export,
	})
}

// GetHistory 협업 이력 (영속 로그 우선, 없으면 redis 최근 이력)
func (h *WhiteboardHandler) GetHistory(c *fiber.Ctx) error {
	boardID := c.Params("boardId")

	board, err := h.store.GetBoard(c.Context(), boardID)
	if err != nil {
		return storeError(c, err)
	}

	history := board.History
	if len(history) == 0 {
		history = h.cache.RecentHistory(c.Context(), boardID, int64(model.MaxHistoryEntries))
	}
	return c.JSON(fiber.Map{
		"history": history,
		"total":   len(history),
	})
}

// GetSession 세션 메트릭 + 참가자 목록
func (h *WhiteboardHandler) GetSession(c *fiber.Ctx) error {
	boardID := c.Params("boardId")

	sess, ok := h.registry.Snapshot(boardID)
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "no session for board",
		})
	}
	return c.JSON(fiber.Map{
		"session": sess,
		"roster":  h.registry.Roster(boardID),
	})
}

// CleanupSessions 유휴 참가자/만료 세션/빈 방 정리
func (h *WhiteboardHandler) CleanupSessions(c *fiber.Ctx) error {
	idled := h.registry.SweepIdle(h.idleThreshold)
	expired := h.registry.SweepInactiveSessions(h.sessionMaxAge)
	rooms := h.hub.CleanupEmptyRooms()

	return c.JSON(fiber.Map{
		"idled_participants": idled,
		"expired_sessions":   expired,
		"removed_rooms":      rooms,
	})
}
