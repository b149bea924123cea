package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"mailcode-api/internal/config"
)

// newTestClient 创建指向测试服务器的客户端
func newTestClient(endpoint string) *Client {
	cfg := config.Load()
	cfg.Gateway.Endpoint = endpoint
	return NewClient(cfg)
}

// TestFetchMessages 测试取码接口请求和响应解析
func TestFetchMessages(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		var gotPayload map[string]string
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				t.Errorf("请求方法不对: got %s", r.Method)
			}
			if ct := r.Header.Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type 不对: got %s", ct)
			}
			if err := json.NewDecoder(r.Body).Decode(&gotPayload); err != nil {
				t.Errorf("解析请求体失败: %v", err)
			}
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"messages":[{"subject":"Your code is 482913"}]}`))
		}))
		defer ts.Close()

		client := newTestClient(ts.URL)
		resp, err := client.FetchMessages(context.Background(), "a@x.com", "tok-1", "cid-1")
		if err != nil {
			t.Fatalf("取码请求失败: %v", err)
		}

		want := map[string]string{
			"email":         "a@x.com",
			"refresh_token": "tok-1",
			"client_id":     "cid-1",
			"type":          "oauth2",
		}
		for k, v := range want {
			if gotPayload[k] != v {
				t.Errorf("请求体字段 %s 不对: got %s, want %s", k, gotPayload[k], v)
			}
		}

		if len(resp.Messages) != 1 || resp.Messages[0].Subject != "Your code is 482913" {
			t.Errorf("响应解析不对: %+v", resp)
		}
	})

	t.Run("UpstreamError", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
			w.Write([]byte("upstream broken"))
		}))
		defer ts.Close()

		client := newTestClient(ts.URL)
		_, err := client.FetchMessages(context.Background(), "a@x.com", "tok", "cid")
		if err == nil {
			t.Fatal("非 2xx 响应应返回错误")
		}

		gwErr, ok := err.(*Error)
		if !ok {
			t.Fatalf("错误类型不对: %T", err)
		}
		if gwErr.StatusCode != http.StatusBadGateway {
			t.Errorf("状态码不对: got %d, want %d", gwErr.StatusCode, http.StatusBadGateway)
		}
		if !IsGatewayError(err) {
			t.Error("IsGatewayError 应返回 true")
		}
	})

	t.Run("TransportFailure", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		ts.Close() // 直接关掉，模拟连接失败

		client := newTestClient(ts.URL)
		_, err := client.FetchMessages(context.Background(), "a@x.com", "tok", "cid")
		if err == nil {
			t.Fatal("连接失败应返回错误")
		}

		gwErr, ok := err.(*Error)
		if !ok {
			t.Fatalf("错误类型不对: %T", err)
		}
		if gwErr.StatusCode != 0 {
			t.Errorf("传输失败时状态码应为 0: got %d", gwErr.StatusCode)
		}
	})

	t.Run("InvalidJSON", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("not json"))
		}))
		defer ts.Close()

		client := newTestClient(ts.URL)
		_, err := client.FetchMessages(context.Background(), "a@x.com", "tok", "cid")
		if !IsGatewayError(err) {
			t.Errorf("响应解析失败应返回取码接口错误: %v", err)
		}
	})
}
