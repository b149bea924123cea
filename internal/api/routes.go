package api

import (
	"io/fs"
	"net/http"

	"mailcode-api/frontend"

	"github.com/gin-gonic/gin"
)

// noCacheMiddleware 禁用浏览器缓存，确保页面总是最新的
func noCacheMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Cache-Control", "no-cache, no-store, must-revalidate")
		c.Header("Pragma", "no-cache")
		c.Header("Expires", "0")
		c.Next()
	}
}

// setupRoutes 配置所有 HTTP 路由
func (s *Server) setupRoutes(r *gin.Engine) {
	// 健康检查
	r.GET("/healthz", s.handleHealthCheck)

	// 版本信息
	r.GET("/version", s.handleVersion)

	// 操作页面（嵌入的静态文件）
	embeddedFS, _ := fs.Sub(frontend.StaticFiles, ".")
	r.StaticFS("/frontend", http.FS(embeddedFS))
	r.GET("/", noCacheMiddleware(), s.handleIndexPage)

	// 认领下一条未使用记录（不同历史版本的路径都保留）
	r.GET("/api/next-email", s.handleNextEmail)
	r.GET("/api/get-next-email", s.handleNextEmail)
	r.GET("/api/get-unique-email", s.handleNextEmail)

	// 取码
	r.GET("/api/get-code-by-email", s.handleGetCodeByEmail)
	r.POST("/api/get-code", s.handleGetCodeDirect)
	r.GET("/email", s.handleEmailCode)

	// 记录维护
	r.POST("/api/save-email", s.handleSaveEmail)
	r.POST("/api/add-account", s.handleAddAccounts)
	r.POST("/api/reset-all-emails", s.handleResetAllEmails)
	r.DELETE("/api/delete-all-emails", s.handleDeleteAllEmails)

	// 控制台查询
	r.GET("/api/records", s.handleListRecords)
	r.GET("/api/stats", s.handleStats)
	r.GET("/api/logs/stream", s.handleLogsStream)
}
