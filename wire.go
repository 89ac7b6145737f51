package main

import (
	"context"
	"fmt"
	"log"

	"live-polling-backend/cache"
	"live-polling-backend/config"
	"live-polling-backend/database"
	"live-polling-backend/handlers"
	"live-polling-backend/mq"
	"live-polling-backend/repository"
	"live-polling-backend/routes"
	"live-polling-backend/service"
	"live-polling-backend/websocket"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type app struct {
	router   *gin.Engine
	hub      *websocket.Hub
	session  *service.Session
	db       *gorm.DB
	redis    *redis.Client
	lease    *cache.Lease
	notifier mq.Notifier
}

// wireApp builds every component from cfg. onLeaseLost is called if another
// instance takes over the session lease.
func wireApp(ctx context.Context, cfg *config.Config, onLeaseLost func()) (*app, error) {
	a := &app{}
	ok := false
	defer func() {
		if !ok {
			a.close(context.Background())
		}
	}()

	if cfg.Redis.Addr != "" {
		client, err := cache.NewClient(ctx, cache.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return nil, err
		}
		a.redis = client
	}

	if cfg.Redis.SessionLease {
		lease, err := cache.AcquireLease(ctx, a.redis, cache.DefaultLeaseName, cfg.Redis.LeaseTTL, func(err error) {
			log.Printf("会话租约丢失，停止服务: %v", err)
			if onLeaseLost != nil {
				onLeaseLost()
			}
		})
		if err != nil {
			return nil, fmt.Errorf("获取会话租约失败: %w", err)
		}
		a.lease = lease
	}

	store, err := a.historyStore(cfg)
	if err != nil {
		return nil, err
	}

	notifier, err := mq.NewNotifier(mq.Options{
		Driver: cfg.Notifier.Driver,
		Topic:  cfg.Notifier.Topic,
		Redis:  redisCmdable(a.redis),
		RocketMQ: mq.RocketConfig{
			NameServers: cfg.RocketMQ.NameServers,
			Group:       cfg.RocketMQ.Group,
		},
	})
	if err != nil {
		return nil, err
	}
	a.notifier = notifier

	a.hub = websocket.NewHub(websocket.HubConfig{
		SendBuffer:     cfg.WS.SendBuffer,
		MaxConnections: cfg.WS.MaxConnections,
	})
	a.session = service.NewSession(service.Options{
		History:           store,
		Publisher:         a.hub,
		Notifier:          notifier,
		ChatCapacity:      cfg.Chat.MaxMessages,
		LedgerPolls:       cfg.Session.LedgerPolls,
		ArchiveSuperseded: cfg.Session.ArchiveSuperseded,
	})
	presenters := service.NewPresenterRegistry()

	a.router = routes.SetupRouter(routes.Options{
		Handlers: handlers.New(a.session, presenters, a.hub, a.db),
		WebSocket: websocket.NewHandler(a.hub, a.session, presenters, websocket.HandlerConfig{
			AllowedOrigins:    cfg.Server.AllowedOrigins,
			MessagesPerSecond: cfg.WS.MessagesPerSecond,
			Burst:             cfg.WS.Burst,
		}),
		AllowedOrigins:    cfg.Server.AllowedOrigins,
		RequestsPerSecond: cfg.Server.RequestsPerSecond,
		RequestBurst:      cfg.Server.RequestBurst,
	})

	ok = true
	return a, nil
}

// historyStore picks the archive backend. SQL stores get a Redis read cache
// when Redis is configured.
func (a *app) historyStore(cfg *config.Config) (repository.HistoryStore, error) {
	switch cfg.History.Driver {
	case "sqlite", "mysql":
		db, err := database.Open(database.Config{
			Driver:   cfg.History.Driver,
			DSN:      cfg.Database.DSN,
			LogLevel: cfg.Database.LogLevel,
		})
		if err != nil {
			return nil, err
		}
		a.db = db
		var store repository.HistoryStore = repository.NewGormHistory(db)
		if a.redis != nil {
			store = repository.NewCachedHistory(store, a.redis)
		}
		return store, nil
	case "redis":
		if a.redis == nil {
			return nil, cache.ErrRedisNotAvailable
		}
		return repository.NewRedisHistory(a.redis, cfg.History.MaxEntries), nil
	default:
		return repository.NewMemoryHistory(cfg.History.MaxEntries), nil
	}
}

// redisCmdable avoids handing a typed nil client to the notifier.
func redisCmdable(c *redis.Client) redis.Cmdable {
	if c == nil {
		return nil
	}
	return c
}

func (a *app) close(ctx context.Context) {
	if a.session != nil {
		a.session.Close()
	}
	if a.notifier != nil {
		if err := a.notifier.Close(); err != nil {
			log.Printf("关闭通知器失败: %v", err)
		}
	}
	if a.lease != nil {
		if err := a.lease.Release(ctx); err != nil {
			log.Printf("释放会话租约失败: %v", err)
		}
	}
	database.Close(a.db)
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			log.Printf("关闭Redis连接错误: %v", err)
		}
		log.Println("Redis连接已关闭")
	}
}
