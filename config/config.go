package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix 环境变量前缀，例如 POLL_SERVER_PORT
const EnvPrefix = "POLL"

// Config 服务器配置
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	History  HistoryConfig  `mapstructure:"history"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Notifier NotifierConfig `mapstructure:"notifier"`
	RocketMQ RocketMQConfig `mapstructure:"rocketmq"`
	Chat     ChatConfig     `mapstructure:"chat"`
	Session  SessionConfig  `mapstructure:"session"`
	WS       WSConfig       `mapstructure:"ws"`
}

type ServerConfig struct {
	Port              int      `mapstructure:"port"`
	AllowedOrigins    []string `mapstructure:"allowed_origins"`
	RequestsPerSecond float64  `mapstructure:"requests_per_second"`
	RequestBurst      int      `mapstructure:"request_burst"`
}

type HistoryConfig struct {
	Driver     string `mapstructure:"driver"`
	MaxEntries int    `mapstructure:"max_entries"`
}

type DatabaseConfig struct {
	DSN      string `mapstructure:"dsn"`
	LogLevel string `mapstructure:"log_level"`
}

type RedisConfig struct {
	Addr         string        `mapstructure:"addr"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	SessionLease bool          `mapstructure:"session_lease"`
	LeaseTTL     time.Duration `mapstructure:"lease_ttl"`
}

type NotifierConfig struct {
	Driver string `mapstructure:"driver"`
	Topic  string `mapstructure:"topic"`
}

type RocketMQConfig struct {
	NameServers []string `mapstructure:"nameservers"`
	Group       string   `mapstructure:"group"`
}

type ChatConfig struct {
	MaxMessages int `mapstructure:"max_messages"`
}

type SessionConfig struct {
	ArchiveSuperseded bool `mapstructure:"archive_superseded"`
	// 保留投票记录的投票数量
	LedgerPolls       int  `mapstructure:"ledger_polls"`
}

type WSConfig struct {
	SendBuffer        int     `mapstructure:"send_buffer"`
	MessagesPerSecond float64 `mapstructure:"messages_per_second"`
	Burst             int     `mapstructure:"burst"`
	MaxConnections    int     `mapstructure:"max_connections"`
}

// SetDefaults registers every key with its default so env overrides apply.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8090)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.requests_per_second", 50.0)
	v.SetDefault("server.request_burst", 100)
	v.SetDefault("history.driver", "memory")
	v.SetDefault("history.max_entries", 1000)
	v.SetDefault("database.dsn", "file::memory:?cache=shared")
	v.SetDefault("database.log_level", "silent")
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.session_lease", false)
	v.SetDefault("redis.lease_ttl", 30*time.Second)
	v.SetDefault("notifier.driver", "none")
	v.SetDefault("notifier.topic", "polls.archived")
	v.SetDefault("rocketmq.nameservers", []string{"localhost:9876"})
	v.SetDefault("rocketmq.group", "poll_archive_producer")
	v.SetDefault("chat.max_messages", 500)
	v.SetDefault("session.archive_superseded", false)
	v.SetDefault("session.ledger_polls", 100)
	v.SetDefault("ws.send_buffer", 256)
	v.SetDefault("ws.messages_per_second", 20.0)
	v.SetDefault("ws.burst", 40)
	v.SetDefault("ws.max_connections", 10000)
}

// New returns a viper instance with defaults and environment binding.
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the optional config file and decodes everything into Config.
func Load(v *viper.Viper, file string) (*Config, error) {
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate 检查配置是否合法
func (c *Config) Validate() error {
	switch c.History.Driver {
	case "memory", "sqlite", "mysql":
	case "redis":
		if c.Redis.Addr == "" {
			return fmt.Errorf("history.driver=redis requires redis.addr")
		}
	default:
		return fmt.Errorf("unknown history.driver %q", c.History.Driver)
	}
	switch c.Notifier.Driver {
	case "none", "":
	case "redis":
		if c.Redis.Addr == "" {
			return fmt.Errorf("notifier.driver=redis requires redis.addr")
		}
	case "rocketmq":
		if len(c.RocketMQ.NameServers) == 0 {
			return fmt.Errorf("notifier.driver=rocketmq requires rocketmq.nameservers")
		}
	default:
		return fmt.Errorf("unknown notifier.driver %q", c.Notifier.Driver)
	}
	if c.Redis.SessionLease && c.Redis.Addr == "" {
		return fmt.Errorf("redis.session_lease requires redis.addr")
	}
	if c.Server.Port <= 0 {
		return fmt.Errorf("invalid server.port %d", c.Server.Port)
	}
	return nil
}
