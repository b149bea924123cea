package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"mailcode-api/internal/config"
	"mailcode-api/internal/database"
	"mailcode-api/internal/gateway"
	"mailcode-api/internal/service"

	"github.com/gin-gonic/gin"
)

// stubFetcher 返回预设结果的取码接口替身
type stubFetcher struct {
	resp *gateway.Response
	err  error
}

func (f *stubFetcher) FetchMessages(context.Context, string, string, string) (*gateway.Response, error) {
	return f.resp, f.err
}

// setupTestServer 搭建带临时数据库的完整路由
func setupTestServer(t *testing.T, fetcher service.CodeFetcher) (*gin.Engine, *database.DB) {
	cfg := &config.Config{
		Database: config.DatabaseConfig{
			Type: config.DatabaseTypeSQLite,
			SQLite: config.SQLiteConfig{
				Path: filepath.Join(t.TempDir(), "test.sqlite3"),
			},
		},
	}

	db, err := database.New(cfg)
	if err != nil {
		t.Fatalf("创建测试数据库失败: %v", err)
	}

	svc := service.New(db, fetcher)
	server := NewServer(cfg, db, svc, "test")
	t.Cleanup(func() {
		server.StopLogWorker()
		db.Close()
	})

	return server.Router(), db
}

// doRequest 发起请求并解析 JSON 响应
func doRequest(t *testing.T, router *gin.Engine, method, path, body string) (int, map[string]interface{}) {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var result map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatalf("解析响应失败: %v, body=%s", err, w.Body.String())
	}
	return w.Code, result
}

// importAccounts 通过导入接口写入测试数据
func importAccounts(t *testing.T, router *gin.Engine, raw string) {
	payload, _ := json.Marshal(map[string]string{"accountData": raw})
	status, _ := doRequest(t, router, http.MethodPost, "/api/add-account", string(payload))
	if status != http.StatusOK {
		t.Fatalf("导入测试数据失败: status=%d", status)
	}
}

// TestHealthAndVersion 测试健康检查和版本接口
func TestHealthAndVersion(t *testing.T) {
	router, _ := setupTestServer(t, &stubFetcher{})

	status, body := doRequest(t, router, http.MethodGet, "/healthz", "")
	if status != http.StatusOK || body["status"] != "ok" {
		t.Errorf("健康检查响应不对: status=%d, body=%v", status, body)
	}

	status, body = doRequest(t, router, http.MethodGet, "/version", "")
	if status != http.StatusOK || body["version"] != "test" {
		t.Errorf("版本接口响应不对: status=%d, body=%v", status, body)
	}
}

// TestNextEmailEndpoint 测试认领接口及其别名
func TestNextEmailEndpoint(t *testing.T) {
	router, _ := setupTestServer(t, &stubFetcher{})

	t.Run("EmptyPool", func(t *testing.T) {
		status, body := doRequest(t, router, http.MethodGet, "/api/next-email", "")
		if status != http.StatusNotFound {
			t.Errorf("空池应返回 404: got %d", status)
		}
		if body["error"] != "没有未使用的邮箱了" {
			t.Errorf("错误信息不对: %v", body["error"])
		}
	})

	t.Run("ClaimThenExhaust", func(t *testing.T) {
		importAccounts(t, router, "a@x.com|p|tok|cid")

		// 三个别名都指向同一认领逻辑
		status, body := doRequest(t, router, http.MethodGet, "/api/get-next-email", "")
		if status != http.StatusOK {
			t.Fatalf("认领失败: status=%d, body=%v", status, body)
		}
		if body["email"] != "a@x.com" {
			t.Errorf("认领邮箱不对: %v", body["email"])
		}

		status, _ = doRequest(t, router, http.MethodGet, "/api/get-unique-email", "")
		if status != http.StatusNotFound {
			t.Errorf("池耗尽后应返回 404: got %d", status)
		}
	})
}

// TestGetCodeByEmailEndpoint 测试按邮箱取码接口
func TestGetCodeByEmailEndpoint(t *testing.T) {
	fetcher := &stubFetcher{
		resp: &gateway.Response{Messages: []gateway.Message{{Subject: "Your code is 482913"}}},
	}
	router, _ := setupTestServer(t, fetcher)

	t.Run("MissingParam", func(t *testing.T) {
		status, _ := doRequest(t, router, http.MethodGet, "/api/get-code-by-email", "")
		if status != http.StatusBadRequest {
			t.Errorf("缺少 email 参数应返回 400: got %d", status)
		}
	})

	t.Run("UnknownEmail", func(t *testing.T) {
		status, _ := doRequest(t, router, http.MethodGet, "/api/get-code-by-email?email=nobody@x.com", "")
		if status != http.StatusNotFound {
			t.Errorf("未知邮箱应返回 404: got %d", status)
		}
	})

	t.Run("Success", func(t *testing.T) {
		importAccounts(t, router, "a@x.com|p|tok|cid")

		status, body := doRequest(t, router, http.MethodGet, "/api/get-code-by-email?email=a@x.com", "")
		if status != http.StatusOK {
			t.Fatalf("取码失败: status=%d, body=%v", status, body)
		}
		if body["code"] != "482913" || body["email"] != "a@x.com" {
			t.Errorf("取码结果不对: %v", body)
		}
	})

	t.Run("LegacyEmailRoute", func(t *testing.T) {
		status, body := doRequest(t, router, http.MethodGet, "/email?email=a@x.com", "")
		if status != http.StatusOK || body["code"] != "482913" {
			t.Errorf("旧版查询接口响应不对: status=%d, body=%v", status, body)
		}
		if _, exists := body["email"]; exists {
			t.Error("旧版查询接口不应返回 email 字段")
		}
	})
}

// TestGetCodeDirectEndpoint 测试直接取码接口（含旧版 OK 约定）
func TestGetCodeDirectEndpoint(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		router, _ := setupTestServer(t, &stubFetcher{resp: &gateway.Response{Code: "334455"}})

		status, body := doRequest(t, router, http.MethodPost, "/api/get-code",
			`{"email":"a@x.com","token":"tok","client_id":"cid"}`)
		if status != http.StatusOK || body["code"] != "334455" {
			t.Errorf("直接取码响应不对: status=%d, body=%v", status, body)
		}
	})

	t.Run("NoCodeReturnsOK", func(t *testing.T) {
		router, _ := setupTestServer(t, &stubFetcher{resp: &gateway.Response{}})

		status, body := doRequest(t, router, http.MethodPost, "/api/get-code",
			`{"email":"a@x.com","token":"tok","client_id":"cid"}`)
		if status != http.StatusOK || body["code"] != "OK" {
			t.Errorf("取不到码时应返回 {\"code\":\"OK\"}: status=%d, body=%v", status, body)
		}
	})

	t.Run("MissingFields", func(t *testing.T) {
		router, _ := setupTestServer(t, &stubFetcher{})

		status, _ := doRequest(t, router, http.MethodPost, "/api/get-code", `{"email":"a@x.com"}`)
		if status != http.StatusBadRequest {
			t.Errorf("缺少凭证应返回 400: got %d", status)
		}
	})

	t.Run("UpstreamFailure", func(t *testing.T) {
		router, _ := setupTestServer(t, &stubFetcher{err: &gateway.Error{StatusCode: 502, Message: "bad"}})

		status, _ := doRequest(t, router, http.MethodPost, "/api/get-code",
			`{"email":"a@x.com","token":"tok","client_id":"cid"}`)
		if status != http.StatusInternalServerError {
			t.Errorf("上游失败应返回 500: got %d", status)
		}
	})
}

// TestSaveEmailEndpoint 测试保存验证码接口
func TestSaveEmailEndpoint(t *testing.T) {
	router, _ := setupTestServer(t, &stubFetcher{})

	t.Run("MissingFields", func(t *testing.T) {
		status, _ := doRequest(t, router, http.MethodPost, "/api/save-email", `{"email":"a@x.com"}`)
		if status != http.StatusBadRequest {
			t.Errorf("缺少 code 应返回 400: got %d", status)
		}
	})

	t.Run("UnknownEmail", func(t *testing.T) {
		status, _ := doRequest(t, router, http.MethodPost, "/api/save-email",
			`{"email":"nobody@x.com","code":"123456"}`)
		if status != http.StatusNotFound {
			t.Errorf("未知邮箱应返回 404: got %d", status)
		}
	})

	t.Run("Success", func(t *testing.T) {
		importAccounts(t, router, "a@x.com|p|tok|cid")

		status, body := doRequest(t, router, http.MethodPost, "/api/save-email",
			`{"email":"a@x.com","code":"123456"}`)
		if status != http.StatusOK || body["status"] != "saved" {
			t.Errorf("保存响应不对: status=%d, body=%v", status, body)
		}
	})
}

// TestAddAccountEndpoint 测试批量导入接口
func TestAddAccountEndpoint(t *testing.T) {
	router, _ := setupTestServer(t, &stubFetcher{})

	t.Run("EmptyData", func(t *testing.T) {
		status, _ := doRequest(t, router, http.MethodPost, "/api/add-account", `{"accountData":""}`)
		if status != http.StatusBadRequest {
			t.Errorf("空数据应返回 400: got %d", status)
		}
	})

	t.Run("MixedLines", func(t *testing.T) {
		payload, _ := json.Marshal(map[string]string{
			"accountData": "a@x.com|p|tok|cid\nbad-line\nb@y.com|p2|tok2|cid2",
		})
		status, body := doRequest(t, router, http.MethodPost, "/api/add-account", string(payload))
		if status != http.StatusOK {
			t.Fatalf("导入失败: status=%d", status)
		}
		if body["successCount"] != float64(2) || body["errorCount"] != float64(1) {
			t.Errorf("导入计数不对: %v", body)
		}
	})
}

// TestResetAndDeleteEndpoints 测试重置和删除接口
func TestResetAndDeleteEndpoints(t *testing.T) {
	router, _ := setupTestServer(t, &stubFetcher{})
	importAccounts(t, router, "a@x.com|p|tok|cid\nb@y.com|p|tok|cid")

	// 认领一条，让重置有实际效果
	if status, _ := doRequest(t, router, http.MethodGet, "/api/next-email", ""); status != http.StatusOK {
		t.Fatalf("认领失败: status=%d", status)
	}

	t.Run("ResetAll", func(t *testing.T) {
		status, body := doRequest(t, router, http.MethodPost, "/api/reset-all-emails", "")
		if status != http.StatusOK || body["status"] != "ok" {
			t.Fatalf("重置响应不对: status=%d, body=%v", status, body)
		}
		if body["message"] != "已重置 2 条记录" {
			t.Errorf("重置消息不对: %v", body["message"])
		}
	})

	t.Run("DeleteAll", func(t *testing.T) {
		status, body := doRequest(t, router, http.MethodDelete, "/api/delete-all-emails", "")
		if status != http.StatusOK || body["message"] != "已删除 2 条记录" {
			t.Errorf("删除响应不对: status=%d, body=%v", status, body)
		}

		status, body = doRequest(t, router, http.MethodGet, "/api/stats", "")
		if status != http.StatusOK || body["total"] != float64(0) {
			t.Errorf("删除后统计不对: %v", body)
		}
	})
}

// TestStatsAndRecordsEndpoints 测试统计和分页列表接口
func TestStatsAndRecordsEndpoints(t *testing.T) {
	router, _ := setupTestServer(t, &stubFetcher{})
	importAccounts(t, router, "a@x.com|p|tok|cid\nb@y.com|p|tok|cid\nc@z.com|p|tok|cid")

	if status, _ := doRequest(t, router, http.MethodGet, "/api/next-email", ""); status != http.StatusOK {
		t.Fatalf("认领失败")
	}

	t.Run("Stats", func(t *testing.T) {
		status, body := doRequest(t, router, http.MethodGet, "/api/stats", "")
		if status != http.StatusOK {
			t.Fatalf("统计接口失败: status=%d", status)
		}
		if body["total"] != float64(3) || body["unused"] != float64(2) {
			t.Errorf("统计不对: %v", body)
		}
	})

	t.Run("Records", func(t *testing.T) {
		status, body := doRequest(t, router, http.MethodGet, "/api/records?page=1&page_size=2", "")
		if status != http.StatusOK {
			t.Fatalf("列表接口失败: status=%d", status)
		}
		if body["total"] != float64(3) || body["pages"] != float64(2) {
			t.Errorf("分页信息不对: %v", body)
		}
		records, ok := body["records"].([]interface{})
		if !ok || len(records) != 2 {
			t.Errorf("分页记录数不对: %v", body["records"])
		}
	})
}
