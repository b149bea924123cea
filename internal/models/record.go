package models

import (
	"strings"
	"time"
)

// EmailRecord 表示一条邮箱账号记录
// email 统一存储小写形式，refresh_token 和 client_id 是调用取码接口的凭证
type EmailRecord struct {
	ID           string  `gorm:"primaryKey;size:36" json:"id"`
	Email        string  `gorm:"size:255;uniqueIndex:idx_records_email" json:"email"`
	Password     *string `gorm:"size:255" json:"password,omitempty"`
	RefreshToken string  `gorm:"column:refresh_token;type:text" json:"refresh_token"`
	ClientID     string  `gorm:"column:client_id;size:255" json:"client_id"`
	LastCode     *string `gorm:"column:last_code;size:20" json:"last_code,omitempty"`
	Used         bool    `gorm:"default:false;index:idx_records_used_created,priority:1" json:"used"`
	CreatedAt    string  `gorm:"column:created_at;size:50;index:idx_records_used_created,priority:2" json:"created_at"`
	UpdatedAt    string  `gorm:"column:updated_at;size:50" json:"updated_at"`
}

// TableName 指定表名
func (EmailRecord) TableName() string {
	return "email_records"
}

// RecordCreate 表示导入单条记录的数据
type RecordCreate struct {
	Email        string  `json:"email" binding:"required"`
	Password     *string `json:"password"`
	RefreshToken string  `json:"refreshToken" binding:"required"`
	ClientID     string  `json:"clientId" binding:"required"`
}

// NormalizeEmail 返回邮箱的规范形式（去空白并小写）
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// TimeFormat 时间格式（带时区）
const TimeFormat = "2006-01-02T15:04:05Z07:00"

// CurrentTime 返回当前本地时间的格式字符串
func CurrentTime() string {
	return time.Now().Format(TimeFormat)
}
