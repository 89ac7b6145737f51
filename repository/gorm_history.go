package repository

import (
	"context"
	"fmt"

	"live-polling-backend/models"

	"gorm.io/gorm"
)

// GormHistory persists archives through gorm (sqlite or mysql).
type GormHistory struct {
	db *gorm.DB
}

// NewGormHistory 创建数据库归档存储
func NewGormHistory(db *gorm.DB) *GormHistory {
	return &GormHistory{db: db}
}

// Append inserts the poll and its options in one transaction.
func (g *GormHistory) Append(ctx context.Context, poll *models.ArchivedPoll) error {
	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(poll).Error
	})
	if err != nil {
		return fmt.Errorf("保存归档投票失败: %w", err)
	}
	return nil
}

// ByOwner 按主持人查询，按创建时间排序
func (g *GormHistory) ByOwner(ctx context.Context, owner string) ([]models.ArchivedPoll, error) {
	polls := make([]models.ArchivedPoll, 0)
	err := g.db.WithContext(ctx).
		Preload("Options", func(db *gorm.DB) *gorm.DB {
			return db.Order("position asc")
		}).
		Where("owner = ?", owner).
		Order("created_at asc").
		Find(&polls).Error
	if err != nil {
		return nil, fmt.Errorf("查询归档投票失败: %w", err)
	}
	return polls, nil
}

// Count 归档总数
func (g *GormHistory) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := g.db.WithContext(ctx).Model(&models.ArchivedPoll{}).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
