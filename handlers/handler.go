package handlers

import (
	"live-polling-backend/service"
	"live-polling-backend/websocket"

	"gorm.io/gorm"
)

// Handler serves the point-in-time REST queries and the SSE stream.
type Handler struct {
	session    *service.Session
	presenters *service.PresenterRegistry
	hub        *websocket.Hub
	db         *gorm.DB // 可为空，仅用于状态检查
}

// New 创建REST处理器
func New(session *service.Session, presenters *service.PresenterRegistry, hub *websocket.Hub, db *gorm.DB) *Handler {
	return &Handler{session: session, presenters: presenters, hub: hub, db: db}
}
