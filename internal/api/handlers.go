package api

import (
	"fmt"
	"io"

	"mailcode-api/frontend"
	"mailcode-api/internal/gateway"
	"mailcode-api/internal/logger"
	"mailcode-api/internal/service"

	"github.com/gin-gonic/gin"
)

// respondServiceError 把业务错误映射为 HTTP 状态码和 {error} 响应体
func respondServiceError(c *gin.Context, err error) {
	switch {
	case service.IsValidationError(err):
		c.JSON(400, gin.H{"error": err.Error()})
	case err == service.ErrRecordNotFound, err == service.ErrCodeNotFound:
		c.JSON(404, gin.H{"error": err.Error()})
	case gateway.IsGatewayError(err):
		c.JSON(500, gin.H{"error": err.Error()})
	default:
		logger.Error("请求处理失败: %v", err)
		c.JSON(500, gin.H{"error": "内部错误"})
	}
}

// handleHealthCheck 返回服务健康状态
func (s *Server) handleHealthCheck(c *gin.Context) {
	c.JSON(200, gin.H{"status": "ok"})
}

// handleVersion 返回版本信息
func (s *Server) handleVersion(c *gin.Context) {
	c.JSON(200, gin.H{"version": s.version})
}

// handleIndexPage 返回操作页面
func (s *Server) handleIndexPage(c *gin.Context) {
	data, err := frontend.StaticFiles.ReadFile("index.html")
	if err != nil {
		c.String(500, "页面加载失败")
		return
	}
	c.Data(200, "text/html; charset=utf-8", data)
}

// handleNextEmail 认领并返回下一条未使用记录
func (s *Server) handleNextEmail(c *gin.Context) {
	rec, err := s.svc.ClaimNext(c.Request.Context())
	if err != nil {
		if err == service.ErrRecordNotFound {
			c.JSON(404, gin.H{"error": "没有未使用的邮箱了"})
			return
		}
		respondServiceError(c, err)
		return
	}

	c.JSON(200, gin.H{
		"email": rec.Email,
		"code":  rec.LastCode,
	})
}

// handleGetCodeByEmail 用已保存的凭证为指定邮箱取验证码
func (s *Server) handleGetCodeByEmail(c *gin.Context) {
	email := c.Query("email")
	if email == "" {
		c.JSON(400, gin.H{"error": "缺少 email 参数"})
		return
	}

	result, err := s.svc.GetCodeByEmail(c.Request.Context(), email)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(200, result)
}

// handleEmailCode 按邮箱取码，只返回 code 字段（旧版查询接口）
func (s *Server) handleEmailCode(c *gin.Context) {
	email := c.Query("email")
	if email == "" {
		c.JSON(400, gin.H{"error": "缺少 email 参数"})
		return
	}

	result, err := s.svc.GetCodeByEmail(c.Request.Context(), email)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(200, gin.H{"code": result.Code})
}

// getCodeRequest 直接取码请求体（旧版接口字段名）
type getCodeRequest struct {
	Email    string `json:"email"`
	Token    string `json:"token"`
	ClientID string `json:"client_id"`
}

// handleGetCodeDirect 直接用请求里的凭证取码，不查存储
// 取不到码时沿用旧版的 {"code":"OK"} 响应，旧页面依赖这个约定
func (s *Server) handleGetCodeDirect(c *gin.Context) {
	var req getCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(400, gin.H{"error": "无效的请求格式"})
		return
	}

	logger.Info("取码请求 - Email: %s", req.Email)

	code, err := s.svc.FetchCodeDirect(c.Request.Context(), req.Email, req.Token, req.ClientID)
	if err != nil {
		if err == service.ErrCodeNotFound {
			c.JSON(200, gin.H{"code": "OK"})
			return
		}
		respondServiceError(c, err)
		return
	}

	c.JSON(200, gin.H{"code": code})
}

// saveEmailRequest 保存验证码请求体
type saveEmailRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

// handleSaveEmail 保存指定邮箱的验证码
func (s *Server) handleSaveEmail(c *gin.Context) {
	var req saveEmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(400, gin.H{"error": "无效的请求格式"})
		return
	}
	if req.Email == "" || req.Code == "" {
		c.JSON(400, gin.H{"error": "缺少 email 或 code"})
		return
	}

	if err := s.svc.SaveCode(c.Request.Context(), req.Email, req.Code); err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(200, gin.H{"status": "saved"})
}

// addAccountsRequest 批量导入请求体
type addAccountsRequest struct {
	AccountData string `json:"accountData"`
}

// handleAddAccounts 批量导入账号（每行 email|password|refreshToken|clientId）
func (s *Server) handleAddAccounts(c *gin.Context) {
	var req addAccountsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(400, gin.H{"error": "无效的请求格式"})
		return
	}
	if req.AccountData == "" {
		c.JSON(400, gin.H{"error": "accountData 不能为空"})
		return
	}

	result, err := s.svc.ImportAccounts(c.Request.Context(), req.AccountData)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(200, result)
}

// handleResetAllEmails 重置所有记录为未使用
func (s *Server) handleResetAllEmails(c *gin.Context) {
	affected, err := s.svc.ResetAll(c.Request.Context())
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(200, gin.H{
		"status":  "ok",
		"message": fmt.Sprintf("已重置 %d 条记录", affected),
	})
}

// handleDeleteAllEmails 删除所有记录
func (s *Server) handleDeleteAllEmails(c *gin.Context) {
	removed, err := s.svc.DeleteAll(c.Request.Context())
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(200, gin.H{
		"status":  "ok",
		"message": fmt.Sprintf("已删除 %d 条记录", removed),
	})
}

// handleListRecords 分页列出记录（控制台）
func (s *Server) handleListRecords(c *gin.Context) {
	page := parseIntQuery(c, "page", 1)
	pageSize := parseIntQuery(c, "page_size", 50)

	records, pagination, err := s.db.ListRecordsWithPagination(c.Request.Context(), page, pageSize)
	if err != nil {
		c.JSON(500, gin.H{"error": "获取记录列表失败"})
		return
	}

	c.JSON(200, gin.H{
		"records":   records,
		"total":     pagination.Total,
		"page":      pagination.Page,
		"page_size": pagination.PageSize,
		"pages":     pagination.Pages,
	})
}

// handleStats 返回记录总数和未使用数（控制台计数器）
func (s *Server) handleStats(c *gin.Context) {
	ctx := c.Request.Context()

	total, err := s.db.CountRecords(ctx)
	if err != nil {
		c.JSON(500, gin.H{"error": "获取统计失败"})
		return
	}
	unused, err := s.db.CountUnusedRecords(ctx)
	if err != nil {
		c.JSON(500, gin.H{"error": "获取统计失败"})
		return
	}

	c.JSON(200, gin.H{"total": total, "unused": unused})
}

// handleLogsStream 以 SSE 形式推送服务日志（控制台）
func (s *Server) handleLogsStream(c *gin.Context) {
	ch := logger.Subscribe()
	defer logger.Unsubscribe(ch)

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	c.Stream(func(w io.Writer) bool {
		select {
		case msg, ok := <-ch:
			if !ok {
				return false
			}
			c.SSEvent("log", msg)
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}

// parseIntQuery 解析整数查询参数，失败时用默认值
func parseIntQuery(c *gin.Context, key string, defaultValue int) int {
	v := c.Query(key)
	if v == "" {
		return defaultValue
	}
	var n int
	if _, err := fmt.Sscanf(v, "%d", &n); err != nil || n < 1 {
		return defaultValue
	}
	return n
}
