package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mailcode-api/internal/api"
	"mailcode-api/internal/config"
	"mailcode-api/internal/database"
	"mailcode-api/internal/gateway"
	"mailcode-api/internal/logger"
	"mailcode-api/internal/service"

	_ "time/tzdata" // 嵌入时区数据库，避免精简环境下时区加载失败
)

// Version 版本号，通过 ldflags 注入
var Version = "dev"

// keepAliveInterval 保活自 ping 间隔（防止托管平台休眠）
const keepAliveInterval = 4 * time.Minute

func main() {
	portFlag := flag.Int("port", 0, "服务器监听端口（优先级最高，0 表示使用配置或默认值 3000）")
	flag.IntVar(portFlag, "p", 0, "服务器监听端口（-port 的简写）")
	flag.Parse()

	// 初始化日志系统
	if err := logger.Init(); err != nil {
		log.Fatalf("初始化日志系统失败: %v", err)
	}
	logger.Info("=== Mail Code 服务器 %s 启动中 ===", Version)

	// 加载配置（优先 YAML，兼容 JSON，再叠加环境变量）
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Warn("加载配置文件失败，使用默认配置: %v", err)
		cfg = config.Load()
	}
	logger.SetDebugEnabled(cfg.Debug)

	// 命令行端口优先级最高
	if *portFlag > 0 && *portFlag <= 65535 {
		cfg.Port = *portFlag
		cfg.Server.Port = *portFlag
		logger.Info("使用命令行指定端口: %d", cfg.Port)
	}
	logger.Info("配置已加载 - 数据库: %s, 端口: %d, 取码接口: %s", cfg.Database.Type, cfg.Port, cfg.Gateway.Endpoint)

	// 初始化数据库（失败直接退出，退出码非零）
	db, err := database.New(cfg)
	if err != nil {
		logger.Error("初始化数据库失败: %v", err)
		log.Fatalf("数据库初始化失败: %v", err)
	}
	defer db.Close()
	logger.Info("数据库初始化成功")

	// 组装业务服务
	gwClient := gateway.NewClient(cfg)
	svc := service.New(db, gwClient)

	// 创建 API 服务器
	server := api.NewServer(cfg, db, svc, Version)

	httpServer := &http.Server{
		Addr:         cfg.ListenAddr(),
		Handler:      server.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("HTTP 服务器监听中 - 地址: http://%s", cfg.ListenAddr())
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP 服务器启动失败: %v", err)
			log.Fatalf("服务器启动失败: %v", err)
		}
	}()

	// 保活自 ping（仅配置了对外地址时启动）
	if cfg.AppURL != "" {
		go keepAlive(cfg.AppURL)
	}

	// 定期清理过期请求日志
	if cfg.LogRetentionDays > 0 {
		go func() {
			ticker := time.NewTicker(1 * time.Hour)
			defer ticker.Stop()
			for range ticker.C {
				ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				deleted, err := db.CleanupOldLogs(ctx, cfg.LogRetentionDays)
				cancel()
				if err != nil {
					logger.Warn("清理过期日志失败: %v", err)
				} else if deleted > 0 {
					logger.Info("自动清理过期日志完成，删除 %d 条记录（保留 %d 天）", deleted, cfg.LogRetentionDays)
				}
			}
		}()
	}

	// 等待中断信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("收到关闭信号，正在优雅关闭服务器...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// 停止日志 worker，刷掉剩余日志
	server.StopLogWorker()

	// 先关闭日志流订阅者，让 SSE 连接能正常结束
	logger.CloseSubscribers()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("服务器强制关闭: %v", err)
	}

	logger.Info("=== Mail Code 服务器 %s 已停止 ===", Version)
	logger.Close()
	log.Println("服务器已退出")
}

// keepAlive 定时访问自身对外地址，防止托管平台因空闲休眠
// 只是保活，失败不影响任何业务
func keepAlive(appURL string) {
	client := &http.Client{Timeout: 10 * time.Second}
	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()

	logger.Info("保活自 ping 已启动 - 地址: %s, 间隔: %v", appURL, keepAliveInterval)

	for range ticker.C {
		resp, err := client.Get(appURL)
		if err != nil {
			logger.Debug("保活 ping 失败: %v", err)
			continue
		}
		resp.Body.Close()
		logger.Debug("保活 ping 成功 - 状态: %s", resp.Status)
	}
}
