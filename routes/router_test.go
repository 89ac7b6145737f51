package routes

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"live-polling-backend/handlers"
	"live-polling-backend/service"
	"live-polling-backend/websocket"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func newRouter(t *testing.T, rps float64, burst int) *gin.Engine {
	gin.SetMode(gin.TestMode)
	hub := websocket.NewHub(websocket.HubConfig{})
	session := service.NewSession(service.Options{Publisher: hub})
	t.Cleanup(session.Close)
	presenters := service.NewPresenterRegistry()

	return SetupRouter(Options{
		Handlers:          handlers.New(session, presenters, hub, nil),
		WebSocket:         websocket.NewHandler(hub, session, presenters, websocket.HandlerConfig{}),
		AllowedOrigins:    []string{"http://classroom.local"},
		RequestsPerSecond: rps,
		RequestBurst:      burst,
	})
}

func TestSetupRouter_Routes(t *testing.T) {
	router := newRouter(t, 0, 0)

	tests := []struct {
		method string
		path   string
		want   int
	}{
		{http.MethodGet, "/api/health", http.StatusOK},
		{http.MethodGet, "/api/status", http.StatusOK},
		{http.MethodPost, "/api/teacher-login", http.StatusOK},
		{http.MethodGet, "/api/current-poll-state", http.StatusOK},
		{http.MethodGet, "/api/student-voted/p1", http.StatusOK},
		{http.MethodGet, "/api/poll-results/p1", http.StatusOK},
		{http.MethodGet, "/api/polls/teacher_1", http.StatusOK},
		{http.MethodGet, "/api/chat/messages", http.StatusOK},
		{http.MethodGet, "/api/roster", http.StatusOK},
		{http.MethodGet, "/api/unknown", http.StatusNotFound},
	}
	for _, tc := range tests {
		t.Run(tc.method+" "+tc.path, func(t *testing.T) {
			w := httptest.NewRecorder()
			req, _ := http.NewRequest(tc.method, tc.path, nil)
			router.ServeHTTP(w, req)
			assert.Equal(t, tc.want, w.Code)
		})
	}
}

func TestSetupRouter_CORS(t *testing.T) {
	router := newRouter(t, 0, 0)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodOptions, "/api/current-poll-state", nil)
	req.Header.Set("Origin", "http://classroom.local")
	req.Header.Set("Access-Control-Request-Method", "GET")
	req.Header.Set("Access-Control-Request-Headers", "X-Student-Name")
	router.ServeHTTP(w, req)

	assert.Equal(t, "http://classroom.local", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestSetupRouter_RateLimit(t *testing.T) {
	router := newRouter(t, 0.001, 2)

	codes := make([]int, 3)
	for i := range codes {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest(http.MethodGet, "/api/roster", nil)
		router.ServeHTTP(w, req)
		codes[i] = w.Code
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)

	// 健康检查不受限流影响
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/api/health", nil)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}
