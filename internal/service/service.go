package service

import (
	"context"
	"strings"

	"mailcode-api/internal/database"
	"mailcode-api/internal/gateway"
	"mailcode-api/internal/logger"
	"mailcode-api/internal/models"
)

// CodeFetcher 取码接口的最小抽象，便于测试时替换
type CodeFetcher interface {
	FetchMessages(ctx context.Context, email, refreshToken, clientID string) (*gateway.Response, error)
}

// Service 账号业务逻辑，组合记录存储和取码接口
type Service struct {
	db      *database.DB
	fetcher CodeFetcher
}

// New 创建业务服务
func New(db *database.DB, fetcher CodeFetcher) *Service {
	return &Service{db: db, fetcher: fetcher}
}

// CodeResult 取码结果
type CodeResult struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

// GetCodeByEmail 用已保存的凭证为指定邮箱取验证码
// 邮箱不存在时直接返回 ErrRecordNotFound，不会调用上游
func (s *Service) GetCodeByEmail(ctx context.Context, email string) (*CodeResult, error) {
	email = models.NormalizeEmail(email)
	if email == "" {
		return nil, NewValidationError("email 不能为空")
	}

	rec, err := s.db.GetRecordByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, ErrRecordNotFound
	}

	resp, err := s.fetcher.FetchMessages(ctx, rec.Email, rec.RefreshToken, rec.ClientID)
	if err != nil {
		return nil, err
	}

	code, ok := gateway.ExtractCode(resp)
	if !ok {
		return nil, ErrCodeNotFound
	}

	// 记录最近一次验证码，失败不影响本次返回
	if err := s.db.SetRecordCode(ctx, rec.Email, code); err != nil {
		logger.Warn("保存验证码失败 - Email: %s, 错误: %v", rec.Email, err)
	}

	return &CodeResult{Email: rec.Email, Code: code}, nil
}

// FetchCodeDirect 直接用请求里带的凭证取码，不查也不写存储
func (s *Service) FetchCodeDirect(ctx context.Context, email, refreshToken, clientID string) (string, error) {
	if email == "" || refreshToken == "" || clientID == "" {
		return "", NewValidationError("email、token 和 client_id 都不能为空")
	}

	resp, err := s.fetcher.FetchMessages(ctx, email, refreshToken, clientID)
	if err != nil {
		return "", err
	}

	code, ok := gateway.ExtractCode(resp)
	if !ok {
		return "", ErrCodeNotFound
	}
	return code, nil
}

// ImportResult 批量导入结果
type ImportResult struct {
	Success int `json:"successCount"`
	Errors  int `json:"errorCount"`
	Total   int `json:"total"`
}

// ImportAccounts 批量导入账号
// 每行格式 email|password|refreshToken|clientId（password 可为空）
// 坏行只计数不中断，重复邮箱覆盖旧记录并重置为未使用
func (s *Service) ImportAccounts(ctx context.Context, raw string) (*ImportResult, error) {
	result := &ImportResult{}

	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		result.Total++

		parts := strings.Split(line, "|")
		if len(parts) < 4 {
			logger.Debug("导入: 跳过格式错误的行: %s", line)
			result.Errors++
			continue
		}

		email := strings.TrimSpace(parts[0])
		password := strings.TrimSpace(parts[1])
		refreshToken := strings.TrimSpace(parts[2])
		clientID := strings.TrimSpace(parts[3])

		var passwordPtr *string
		if password != "" {
			passwordPtr = &password
		}

		if _, err := s.db.UpsertRecord(ctx, email, passwordPtr, refreshToken, clientID); err != nil {
			logger.Debug("导入: 写入记录失败 - Email: %s, 错误: %v", email, err)
			result.Errors++
			continue
		}
		result.Success++
	}

	logger.Info("导入完成 - 成功: %d, 失败: %d", result.Success, result.Errors)
	return result, nil
}

// ClaimNext 认领下一条未使用记录
func (s *Service) ClaimNext(ctx context.Context) (*models.EmailRecord, error) {
	rec, err := s.db.ClaimNextUnused(ctx)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, ErrRecordNotFound
	}
	return rec, nil
}

// SaveCode 保存指定邮箱的验证码
func (s *Service) SaveCode(ctx context.Context, email, code string) error {
	if email == "" || code == "" {
		return NewValidationError("email 和 code 都不能为空")
	}

	err := s.db.SetRecordCode(ctx, email, code)
	if err == database.ErrRecordNotFound {
		return ErrRecordNotFound
	}
	return err
}

// ResetAll 重置所有记录为未使用，返回影响行数
func (s *Service) ResetAll(ctx context.Context) (int64, error) {
	return s.db.ResetAllRecords(ctx)
}

// DeleteAll 删除所有记录，返回删除行数
func (s *Service) DeleteAll(ctx context.Context) (int64, error) {
	return s.db.DeleteAllRecords(ctx)
}
