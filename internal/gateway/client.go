package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"mailcode-api/internal/config"
	"mailcode-api/internal/logger"

	"golang.org/x/net/proxy"
)

// HTTP 连接池配置常量
const (
	DefaultMaxIdleConns        = 50
	DefaultMaxIdleConnsPerHost = 20
	DefaultIdleConnTimeout     = 120 * time.Second
	DefaultTLSHandshakeTimeout = 15 * time.Second
)

// Error 表示取码接口调用失败（传输错误或非 2xx 响应）
type Error struct {
	StatusCode int    // 上游 HTTP 状态码，传输失败时为 0
	Message    string // 错误描述
}

func (e *Error) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("取码接口返回 %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("取码接口请求失败: %s", e.Message)
}

// IsGatewayError 检查错误是否为取码接口错误
func IsGatewayError(err error) bool {
	_, ok := err.(*Error)
	return ok
}

// Client 表示第三方取码接口客户端
type Client struct {
	httpClient *http.Client
	endpoint   string
}

// fetchRequest 取码接口请求体
type fetchRequest struct {
	Email        string `json:"email"`
	RefreshToken string `json:"refresh_token"`
	ClientID     string `json:"client_id"`
	Type         string `json:"type"`
}

// NewClient 创建新的取码接口客户端
func NewClient(cfg *config.Config) *Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()

	transport.MaxIdleConns = DefaultMaxIdleConns
	transport.MaxIdleConnsPerHost = DefaultMaxIdleConnsPerHost
	transport.IdleConnTimeout = DefaultIdleConnTimeout
	transport.TLSHandshakeTimeout = DefaultTLSHandshakeTimeout
	transport.ForceAttemptHTTP2 = true

	// 配置出站代理（支持 http/https/socks5）
	if cfg.Gateway.Proxy != "" {
		proxyURL, err := url.Parse(cfg.Gateway.Proxy)
		if err != nil {
			logger.Error("代理 URL 解析失败: %v", err)
		} else if proxyURL.Scheme == "socks5" {
			dialer, err := proxy.FromURL(proxyURL, proxy.Direct)
			if err != nil {
				logger.Error("SOCKS5 代理配置失败: %v", err)
			} else if contextDialer, ok := dialer.(proxy.ContextDialer); ok {
				transport.DialContext = contextDialer.DialContext
				logger.Info("已配置 SOCKS5 代理: %s", cfg.Gateway.Proxy)
			}
		} else {
			transport.Proxy = http.ProxyURL(proxyURL)
			logger.Info("已配置 HTTP/HTTPS 代理: %s", cfg.Gateway.Proxy)
		}
	}

	endpoint := cfg.Gateway.Endpoint
	if endpoint == "" {
		endpoint = config.DefaultGatewayEndpoint
	}

	return &Client{
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   cfg.GatewayTimeout(),
		},
		endpoint: endpoint,
	}
}

// FetchMessages 请求上游读取邮箱并返回消息内容
// 单次调用不重试；传输失败或非 2xx 一律返回 *Error
func (c *Client) FetchMessages(ctx context.Context, email, refreshToken, clientID string) (*Response, error) {
	payload, err := json.Marshal(fetchRequest{
		Email:        email,
		RefreshToken: refreshToken,
		ClientID:     clientID,
		Type:         "oauth2",
	})
	if err != nil {
		return nil, &Error{Message: fmt.Sprintf("构造请求失败: %v", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, &Error{Message: fmt.Sprintf("创建请求失败: %v", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	logger.Debug("取码接口: 请求 - Email: %s", email)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		logger.Debug("取码接口: 请求失败 - Email: %s, 错误: %v", email, err)
		return nil, &Error{Message: err.Error()}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, &Error{Message: fmt.Sprintf("读取响应失败: %v", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		logger.Warn("取码接口: 上游返回 %d - Email: %s", resp.StatusCode, email)
		return nil, &Error{StatusCode: resp.StatusCode, Message: snippet(body)}
	}

	var result Response
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, &Error{StatusCode: resp.StatusCode, Message: fmt.Sprintf("解析响应失败: %v", err)}
	}

	logger.Debug("取码接口: 响应成功 - Email: %s, 消息数: %d", email, len(result.Messages))
	return &result, nil
}

// snippet 截取响应体前 200 字节作为错误信息
func snippet(body []byte) string {
	const max = 200
	if len(body) > max {
		return string(body[:max])
	}
	return string(body)
}
