package websocket

import (
	"log"
	"net/http"
	"net/url"
	"time"

	"live-polling-backend/service"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

const (
	// 写入超时
	writeWait = 10 * time.Second

	// 读取超时
	pongWait = 60 * time.Second

	// 发送ping间隔时间，必须小于pongWait
	pingPeriod = (pongWait * 9) / 10

	// 最大消息大小
	maxMessageSize = 8192
)

// HandlerConfig WebSocket处理器配置
type HandlerConfig struct {
	AllowedOrigins    []string
	MessagesPerSecond float64
	Burst             int
}

// Handler WebSocket处理器
type Handler struct {
	hub        *Hub
	session    *service.Session
	presenters *service.PresenterRegistry
	upgrader   websocket.Upgrader
	limit      rate.Limit
	burst      int
}

// NewHandler 创建WebSocket处理器
func NewHandler(hub *Hub, session *service.Session, presenters *service.PresenterRegistry, cfg HandlerConfig) *Handler {
	limit := rate.Inf
	if cfg.MessagesPerSecond > 0 {
		limit = rate.Limit(cfg.MessagesPerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Handler{
		hub:        hub,
		session:    session,
		presenters: presenters,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(cfg.AllowedOrigins),
		},
		limit: limit,
		burst: burst,
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || len(allowed) == 0 {
			return true
		}
		for _, a := range allowed {
			if a == "*" || a == origin {
				return true
			}
		}
		if u, err := url.Parse(origin); err == nil && u.Host == r.Host {
			return true
		}
		return false
	}
}

// ServeWS upgrades the request and runs the connection until it closes.
// A presenter connects with ?token=<capability> from teacher-login.
func (h *Handler) ServeWS(c *gin.Context) {
	var presenter string
	if token := c.Query("token"); token != "" {
		name, ok := h.presenters.Resolve(token)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid presenter token"})
			return
		}
		presenter = name
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("Failed to upgrade to WebSocket: %v", err)
		return
	}

	sub, err := h.hub.Subscribe()
	if err != nil {
		log.Printf("拒绝WebSocket连接: %v", err)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, err.Error()),
			time.Now().Add(writeWait))
		conn.Close()
		return
	}

	client := &Client{
		hub:       h.hub,
		session:   h.session,
		conn:      conn,
		sub:       sub,
		presenter: presenter,
		limiter:   rate.NewLimiter(h.limit, h.burst),
	}

	go client.writePump()
	client.readPump()
}
