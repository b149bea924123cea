package database

import (
	"context"
	"time"

	"mailcode-api/internal/logger"
	"mailcode-api/internal/models"

	"gorm.io/gorm"
)

// CreateRequestLog 创建请求日志
func (db *DB) CreateRequestLog(ctx context.Context, log *models.RequestLog) error {
	return db.gorm.WithContext(ctx).Create(log).Error
}

// BatchCreateRequestLogs 批量写入请求日志（使用事务，减少写放大）
func (db *DB) BatchCreateRequestLogs(ctx context.Context, logs []*models.RequestLog) error {
	if len(logs) == 0 {
		return nil
	}

	return db.gorm.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, log := range logs {
			if err := tx.Create(log).Error; err != nil {
				logger.Debug("批量写入日志失败（单条）: %v", err)
				// 单条失败不中断其他日志
			}
		}
		return nil
	})
}

// CleanupOldLogs 清理超过保留期的请求日志，返回删除行数
func (db *DB) CleanupOldLogs(ctx context.Context, retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		return 0, nil
	}

	cutoff := time.Now().AddDate(0, 0, -retentionDays).Format(models.TimeFormat)
	logger.Debug("数据库: 清理过期请求日志 - 截止时间: %s", cutoff)

	result := db.gorm.WithContext(ctx).
		Where("timestamp < ?", cutoff).
		Delete(&models.RequestLog{})
	if result.Error != nil {
		return 0, result.Error
	}

	return result.RowsAffected, nil
}
