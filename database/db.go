package database

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"live-polling-backend/models"

	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Config 数据库连接配置
type Config struct {
	Driver   string // sqlite | mysql
	DSN      string
	LogLevel string // silent | error | warn | info
}

// Open 打开数据库连接并迁移归档表
func Open(cfg Config) (*gorm.DB, error) {
	newLogger := logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold:             time.Second, // 慢SQL阈值
			LogLevel:                  parseLogLevel(cfg.LogLevel),
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	var dialector gorm.Dialector
	switch cfg.Driver {
	case "mysql":
		log.Println("使用MySQL数据库")
		dialector = mysql.Open(cfg.DSN)
	case "sqlite", "":
		log.Println("使用SQLite数据库")
		dialector = sqlite.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("不支持的数据库驱动: %s", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: newLogger})
	if err != nil {
		return nil, fmt.Errorf("连接数据库失败: %w", err)
	}

	if cfg.Driver != "mysql" {
		// sqlite 只允许单写者
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.SetMaxOpenConns(1)
		}
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}

	log.Println("数据库连接和迁移成功")
	return db, nil
}

// Migrate 自动迁移归档模型
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&models.ArchivedPoll{}, &models.ArchivedOption{}); err != nil {
		return fmt.Errorf("迁移模型失败: %w", err)
	}
	return nil
}

// Close 关闭数据库连接
func Close(db *gorm.DB) {
	if db == nil {
		return
	}
	sqlDB, err := db.DB()
	if err != nil {
		log.Printf("获取数据库连接失败: %v", err)
		return
	}
	if err := sqlDB.Close(); err != nil {
		log.Printf("关闭数据库连接失败: %v", err)
		return
	}
	log.Println("数据库连接已关闭")
}

func parseLogLevel(level string) logger.LogLevel {
	switch strings.ToLower(level) {
	case "info":
		return logger.Info
	case "warn":
		return logger.Warn
	case "error":
		return logger.Error
	default:
		return logger.Silent
	}
}
