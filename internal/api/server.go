package api

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"mailcode-api/internal/config"
	"mailcode-api/internal/database"
	"mailcode-api/internal/logger"
	"mailcode-api/internal/models"
	"mailcode-api/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Server 表示 API 服务器
type Server struct {
	cfg     *config.Config
	db      *database.DB
	svc     *service.Service
	logChan chan *models.RequestLog
	logWg   sync.WaitGroup
	version string
	closing atomic.Bool // 服务器是否正在关闭
}

// NewServer 创建新的 API 服务器
func NewServer(cfg *config.Config, db *database.DB, svc *service.Service, version string) *Server {
	s := &Server{
		cfg:     cfg,
		db:      db,
		svc:     svc,
		logChan: make(chan *models.RequestLog, 1000),
		version: version,
	}

	s.startLogWorker()
	return s
}

// Router 构建 gin 路由
func (s *Server) Router() *gin.Engine {
	if s.cfg.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()        // 使用 gin.New() 替代 gin.Default()，避免重复日志
	r.Use(gin.Recovery()) // 兜底 panic 恢复

	// 请求日志中间件（入库）
	r.Use(s.requestLogMiddleware())

	// 访问日志中间件（控制台输出）
	r.Use(func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		// 静态资源和日志流不打访问日志
		if strings.HasPrefix(path, "/frontend/") || path == "/api/logs/stream" {
			return
		}

		logger.LogRequest(method, path, c.ClientIP(), c.Writer.Status(), time.Since(start))
	})

	// CORS 中间件
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "*")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(200)
			return
		}
		c.Next()
	})

	s.setupRoutes(r)

	return r
}

// requestLogMiddleware 把请求概要写入请求日志队列
func (s *Server) requestLogMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path

		// 静态资源、健康检查和日志流不入库
		if strings.HasPrefix(path, "/frontend/") || path == "/healthz" || path == "/api/logs/stream" {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()

		statusCode := c.Writer.Status()
		log := &models.RequestLog{
			ID:         uuid.New().String(),
			Timestamp:  models.CurrentTime(),
			ClientIP:   c.ClientIP(),
			Method:     c.Request.Method,
			Path:       path,
			StatusCode: statusCode,
			IsSuccess:  statusCode < 400,
			DurationMs: time.Since(start).Milliseconds(),
		}
		if len(c.Errors) > 0 {
			msg := c.Errors.String()
			log.ErrorMessage = &msg
		}

		s.queueRequestLog(log)
	}
}

// queueRequestLog 非阻塞入队，队列满时丢弃
func (s *Server) queueRequestLog(log *models.RequestLog) {
	if s.closing.Load() {
		return
	}

	select {
	case s.logChan <- log:
	default:
		logger.Warn("日志通道已满，丢弃日志")
	}
}

// startLogWorker 启动日志写入 worker，按批落库
func (s *Server) startLogWorker() {
	s.logWg.Add(1)
	go func() {
		defer s.logWg.Done()
		batch := make([]*models.RequestLog, 0, 100)
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case log, ok := <-s.logChan:
				if !ok {
					if len(batch) > 0 {
						s.flushLogs(batch)
					}
					return
				}
				batch = append(batch, log)
				if len(batch) >= 100 {
					s.flushLogs(batch)
					batch = make([]*models.RequestLog, 0, 100)
				}
			case <-ticker.C:
				if len(batch) > 0 {
					s.flushLogs(batch)
					batch = make([]*models.RequestLog, 0, 100)
				}
			}
		}
	}()
}

// flushLogs 批量写入请求日志，失败时降级为逐条写入
func (s *Server) flushLogs(logs []*models.RequestLog) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.db.BatchCreateRequestLogs(ctx, logs); err != nil {
		logger.Debug("批量写入请求日志失败: %v - 日志数量: %d", err, len(logs))
		for _, log := range logs {
			if err := s.db.CreateRequestLog(ctx, log); err != nil {
				logger.Debug("写入请求日志失败（降级）: %v", err)
			}
		}
	}
}

// StopLogWorker 停止日志 worker 并刷掉剩余日志
func (s *Server) StopLogWorker() {
	s.closing.Store(true)
	close(s.logChan)
	s.logWg.Wait()
}
