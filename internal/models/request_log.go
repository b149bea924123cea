package models

// RequestLog 请求日志
type RequestLog struct {
	ID           string  `gorm:"primaryKey;size:36" json:"id"`
	Timestamp    string  `gorm:"size:50;index:idx_logs_timestamp" json:"timestamp"`
	ClientIP     string  `gorm:"column:client_ip;size:45" json:"client_ip"`
	Method       string  `gorm:"size:10" json:"method"`
	Path         string  `gorm:"size:255" json:"path"`
	StatusCode   int     `gorm:"column:status_code" json:"status_code"`
	IsSuccess    bool    `gorm:"column:is_success" json:"is_success"`
	DurationMs   int64   `gorm:"column:duration_ms" json:"duration_ms"`
	ErrorMessage *string `gorm:"column:error_message;type:text" json:"error_message,omitempty"`
}

// TableName 指定表名
func (RequestLog) TableName() string {
	return "request_logs"
}
