package handlers

import (
	"net/http"
	"runtime"
	"time"

	"live-polling-backend/service"

	"github.com/gin-gonic/gin"
)

// SystemInfo contains basic system metrics and session counters
type SystemInfo struct {
	Status          string        `json:"status"`
	Version         string        `json:"version"`
	Uptime          string        `json:"uptime"`
	StartTime       time.Time     `json:"start_time"`
	CurrentTime     time.Time     `json:"current_time"`
	GoVersion       string        `json:"go_version"`
	NumGoroutine    int           `json:"num_goroutine"`
	LiveConnections int           `json:"live_connections"`
	Session         service.Stats `json:"session"`
	DBStatus        string        `json:"db_status"`
}

var (
	startTime = time.Now()
	version   = "0.1.0" // 应用版本，可通过构建参数注入
)

// HealthCheck 提供基本健康检查端点
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().Format(time.RFC3339),
	})
}

// SystemStatus 提供详细的系统状态信息
func (h *Handler) SystemStatus(c *gin.Context) {
	dbStatus := "disabled"
	if h.db != nil {
		dbStatus = "ok"
		sqlDB, err := h.db.DB()
		if err != nil || sqlDB.PingContext(c.Request.Context()) != nil {
			dbStatus = "error"
		}
	}

	c.JSON(http.StatusOK, SystemInfo{
		Status:          "ok",
		Version:         version,
		Uptime:          time.Since(startTime).String(),
		StartTime:       startTime,
		CurrentTime:     time.Now(),
		GoVersion:       runtime.Version(),
		NumGoroutine:    runtime.NumGoroutine(),
		LiveConnections: h.hub.Count(),
		Session:         h.session.Stats(),
		DBStatus:        dbStatus,
	})
}
