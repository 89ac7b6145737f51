package routes

import (
	"fmt"
	"log"
	"net/http"
	"time"

	"live-polling-backend/handlers"
	"live-polling-backend/websocket"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// Server 是HTTP服务器的封装
type Server struct {
	*http.Server
}

// Options 路由依赖
type Options struct {
	Handlers          *handlers.Handler
	WebSocket         *websocket.Handler
	AllowedOrigins    []string
	RequestsPerSecond float64
	RequestBurst      int
}

// SetupRouter 设置和配置Gin路由
func SetupRouter(opts Options) *gin.Engine {
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())

	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	corsConfig := cors.Config{
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Student-Name"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 1 && origins[0] == "*" {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = origins
		corsConfig.AllowCredentials = true
	}
	router.Use(cors.New(corsConfig))

	h := opts.Handlers
	limiter := handlers.NewIPRateLimiter(opts.RequestsPerSecond, opts.RequestBurst)

	api := router.Group("/api")
	{
		// 健康检查端点
		api.GET("/health", h.HealthCheck)
		api.GET("/status", h.SystemStatus)

		// 实时通道（WebSocket和SSE），连接内自行限流
		api.GET("/ws", opts.WebSocket.ServeWS)
		api.GET("/live", h.LiveStream)

		// 查询端点
		query := api.Group("", limiter.Middleware())
		{
			query.POST("/teacher-login", h.TeacherLogin)
			query.GET("/current-poll-state", h.CurrentPollState)
			query.GET("/student-voted/:pollId", h.StudentVoted)
			query.GET("/poll-results/:pollId", h.PollResults)
			query.GET("/polls/:username", h.PollHistory)
			query.GET("/chat/messages", h.ChatMessages)
			query.GET("/roster", h.Roster)
		}
	}

	return router
}

// StartServer 启动HTTP服务器
func StartServer(router *gin.Engine, port int) *Server {
	addr := fmt.Sprintf(":%d", port)

	srv := &Server{
		&http.Server{
			Addr:              addr,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}

	// 在单独的goroutine中启动服务器
	go func() {
		log.Printf("服务器启动在 %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("服务器启动失败: %v", err)
		}
	}()

	return srv
}
