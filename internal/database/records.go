package database

import (
	"context"
	"errors"

	"mailcode-api/internal/logger"
	"mailcode-api/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrMissingCredentials 记录缺少 refresh_token 或 client_id，拒绝入库
var ErrMissingCredentials = errors.New("refresh_token 和 client_id 不能为空")

// ErrRecordNotFound 目标记录不存在
var ErrRecordNotFound = errors.New("记录不存在")

// UpsertRecord 按邮箱插入或覆盖记录
// 邮箱统一小写；覆盖时重置 used=false 并清空 last_code（重新提供的账号视为可用）
func (db *DB) UpsertRecord(ctx context.Context, email string, password *string, refreshToken, clientID string) (*models.EmailRecord, error) {
	email = models.NormalizeEmail(email)
	if email == "" {
		return nil, ErrRecordNotFound
	}
	if refreshToken == "" || clientID == "" {
		return nil, ErrMissingCredentials
	}

	logger.Debug("数据库: 写入记录 - Email: %s", email)

	var rec models.EmailRecord
	err := db.RetryOnLock(ctx, 5, func() error {
		return db.gorm.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			now := models.CurrentTime()

			var existing models.EmailRecord
			err := tx.Where("email = ?", email).First(&existing).Error
			if err == gorm.ErrRecordNotFound {
				rec = models.EmailRecord{
					ID:           uuid.New().String(),
					Email:        email,
					Password:     password,
					RefreshToken: refreshToken,
					ClientID:     clientID,
					Used:         false,
					CreatedAt:    now,
					UpdatedAt:    now,
				}
				return tx.Create(&rec).Error
			}
			if err != nil {
				return err
			}

			updateMap := map[string]interface{}{
				"password":      password,
				"refresh_token": refreshToken,
				"client_id":     clientID,
				"last_code":     nil,
				"used":          false,
				"updated_at":    now,
			}
			if err := tx.Model(&models.EmailRecord{}).Where("id = ?", existing.ID).Updates(updateMap).Error; err != nil {
				return err
			}

			existing.Password = password
			existing.RefreshToken = refreshToken
			existing.ClientID = clientID
			existing.LastCode = nil
			existing.Used = false
			existing.UpdatedAt = now
			rec = existing
			return nil
		})
	})

	if err != nil {
		logger.Debug("数据库: 写入记录失败 - Email: %s, 错误: %v", email, err)
		return nil, err
	}

	logger.Debug("数据库: 记录写入成功 - Email: %s, ID: %s", email, rec.ID)
	return &rec, nil
}

// GetRecordByEmail 按邮箱查询记录，不存在时返回 nil
func (db *DB) GetRecordByEmail(ctx context.Context, email string) (*models.EmailRecord, error) {
	email = models.NormalizeEmail(email)
	logger.Debug("数据库: 查询记录 - Email: %s", email)

	var rec models.EmailRecord
	err := db.gorm.WithContext(ctx).Where("email = ?", email).First(&rec).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		logger.Debug("数据库: 查询记录失败 - Email: %s, 错误: %v", email, err)
		return nil, err
	}

	return &rec, nil
}

// ClaimNextUnused 原子地认领一条未使用记录
// 按 created_at（同秒时按 id）取最早的一条并置 used=true
// 并发调用时同一条记录只会被一个调用者拿到；没有未使用记录时返回 nil
func (db *DB) ClaimNextUnused(ctx context.Context) (*models.EmailRecord, error) {
	logger.Debug("数据库: 认领下一条未使用记录")

	var claimed *models.EmailRecord
	err := db.RetryOnLock(ctx, 5, func() error {
		claimed = nil
		return db.gorm.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			for {
				query := tx.Where("used = ?", false).Order("created_at ASC, id ASC")
				if db.IsMySQL() {
					// MySQL 靠行锁串行化认领；SQLite 走 BEGIN IMMEDIATE 的库级写锁
					query = query.Clauses(clause.Locking{Strength: "UPDATE"})
				}

				var rec models.EmailRecord
				err := query.First(&rec).Error
				if err == gorm.ErrRecordNotFound {
					return nil
				}
				if err != nil {
					return err
				}

				// 条件更新 + RowsAffected 校验：读和写必须是同一条 used=false 的记录
				result := tx.Model(&models.EmailRecord{}).
					Where("id = ? AND used = ?", rec.ID, false).
					Updates(map[string]interface{}{
						"used":       true,
						"updated_at": models.CurrentTime(),
					})
				if result.Error != nil {
					return result.Error
				}
				if result.RowsAffected == 0 {
					// 该记录刚被别人认领，取下一条
					continue
				}

				rec.Used = true
				claimed = &rec
				return nil
			}
		})
	})

	if err != nil {
		logger.Debug("数据库: 认领记录失败 - 错误: %v", err)
		return nil, err
	}

	if claimed == nil {
		logger.Debug("数据库: 没有未使用的记录")
		return nil, nil
	}

	logger.Debug("数据库: 认领记录成功 - Email: %s", claimed.Email)
	return claimed, nil
}

// SetRecordCode 更新记录的最近一次验证码
func (db *DB) SetRecordCode(ctx context.Context, email, code string) error {
	email = models.NormalizeEmail(email)
	logger.Debug("数据库: 保存验证码 - Email: %s", email)

	var result *gorm.DB
	err := db.RetryOnLock(ctx, 5, func() error {
		result = db.gorm.WithContext(ctx).Model(&models.EmailRecord{}).
			Where("email = ?", email).
			Updates(map[string]interface{}{
				"last_code":  code,
				"updated_at": models.CurrentTime(),
			})
		return result.Error
	})

	if err != nil {
		logger.Debug("数据库: 保存验证码失败 - Email: %s, 错误: %v", email, err)
		return err
	}
	if result.RowsAffected == 0 {
		return ErrRecordNotFound
	}

	return nil
}

// ResetAllRecords 将所有记录重置为未使用，返回影响行数
func (db *DB) ResetAllRecords(ctx context.Context) (int64, error) {
	logger.Debug("数据库: 重置所有记录为未使用")

	var affected int64
	err := db.RetryOnLock(ctx, 5, func() error {
		result := db.gorm.WithContext(ctx).Model(&models.EmailRecord{}).
			Where("1 = 1").
			Updates(map[string]interface{}{
				"used":       false,
				"updated_at": models.CurrentTime(),
			})
		affected = result.RowsAffected
		return result.Error
	})

	if err != nil {
		logger.Debug("数据库: 重置记录失败 - 错误: %v", err)
		return 0, err
	}

	logger.Info("数据库: 记录重置完成 - 影响行数: %d", affected)
	return affected, nil
}

// DeleteAllRecords 删除所有记录，返回删除行数
func (db *DB) DeleteAllRecords(ctx context.Context) (int64, error) {
	logger.Debug("数据库: 删除所有记录")

	var removed int64
	err := db.RetryOnLock(ctx, 5, func() error {
		result := db.gorm.WithContext(ctx).Where("1 = 1").Delete(&models.EmailRecord{})
		removed = result.RowsAffected
		return result.Error
	})

	if err != nil {
		logger.Debug("数据库: 删除所有记录失败 - 错误: %v", err)
		return 0, err
	}

	logger.Info("数据库: 所有记录删除完成 - 影响行数: %d", removed)
	return removed, nil
}

// CountRecords 获取记录总数
func (db *DB) CountRecords(ctx context.Context) (int64, error) {
	var count int64
	err := db.gorm.WithContext(ctx).Model(&models.EmailRecord{}).Count(&count).Error
	return count, err
}

// CountUnusedRecords 获取未使用记录数
func (db *DB) CountUnusedRecords(ctx context.Context) (int64, error) {
	var count int64
	err := db.gorm.WithContext(ctx).Model(&models.EmailRecord{}).
		Where("used = ?", false).
		Count(&count).Error
	return count, err
}

// PaginationResult 分页查询结果
type PaginationResult struct {
	Total    int64 // 总记录数
	Page     int   // 当前页码
	PageSize int   // 每页数量
	Pages    int   // 总页数
}

// ListRecordsWithPagination 分页列出记录
func (db *DB) ListRecordsWithPagination(ctx context.Context, page, pageSize int) ([]*models.EmailRecord, *PaginationResult, error) {
	logger.Debug("数据库: 分页列出记录 - 页码: %d, 每页: %d", page, pageSize)

	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 100
	}

	query := db.gorm.WithContext(ctx).Model(&models.EmailRecord{})

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, nil, err
	}

	pages := int(total) / pageSize
	if int(total)%pageSize > 0 {
		pages++
	}

	offset := (page - 1) * pageSize

	var records []*models.EmailRecord
	if err := query.Order("created_at ASC, id ASC").Offset(offset).Limit(pageSize).Find(&records).Error; err != nil {
		logger.Debug("数据库: 分页列出记录查询失败 - 错误: %v", err)
		return nil, nil, err
	}

	pagination := &PaginationResult{
		Total:    total,
		Page:     page,
		PageSize: pageSize,
		Pages:    pages,
	}

	return records, pagination, nil
}
