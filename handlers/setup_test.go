package handlers

import (
	"fmt"
	"testing"
	"time"

	"live-polling-backend/database"
	"live-polling-backend/repository"
	"live-polling-backend/service"
	"live-polling-backend/websocket"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type testEnv struct {
	router     *gin.Engine
	db         *gorm.DB
	hub        *websocket.Hub
	session    *service.Session
	presenters *service.PresenterRegistry
	now        time.Time
}

// SetupTestEnvironment builds the REST routes over a session whose history
// lives in an in-memory SQLite database and whose clock is controlled by env.now.
func SetupTestEnvironment(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.Open(database.Config{
		Driver: "sqlite",
		DSN:    fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()),
	})
	require.NoError(t, err)
	t.Cleanup(func() { database.Close(db) })

	env := &testEnv{
		db:         db,
		hub:        websocket.NewHub(websocket.HubConfig{SendBuffer: 64}),
		presenters: service.NewPresenterRegistry(),
		now:        time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC),
	}
	env.session = service.NewSession(service.Options{
		History:   repository.NewGormHistory(db),
		Publisher: env.hub,
		Now:       func() time.Time { return env.now },
		AfterFunc: func(time.Duration, func()) service.Timer { return stoppedTimer{} },
	})
	t.Cleanup(env.session.Close)

	h := New(env.session, env.presenters, env.hub, db)
	router := gin.New()
	api := router.Group("/api")
	{
		api.GET("/health", h.HealthCheck)
		api.GET("/status", h.SystemStatus)
		api.GET("/live", h.LiveStream)
		api.POST("/teacher-login", h.TeacherLogin)
		api.GET("/current-poll-state", h.CurrentPollState)
		api.GET("/student-voted/:pollId", h.StudentVoted)
		api.GET("/poll-results/:pollId", h.PollResults)
		api.GET("/polls/:username", h.PollHistory)
		api.GET("/chat/messages", h.ChatMessages)
		api.GET("/roster", h.Roster)
	}
	env.router = router
	return env
}

// stoppedTimer never fires; tests expire polls with ExpireNow.
type stoppedTimer struct{}

func (stoppedTimer) Stop() bool { return true }
