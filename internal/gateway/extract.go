package gateway

import (
	"github.com/dlclark/regexp2"
)

// Message 上游返回的单条邮件消息
// 部分接口会预先抽好 code 字段，没有时只能从主题/正文里找
type Message struct {
	Code    string `json:"code"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Response 上游取码接口的响应
// 三种形态：顶层 code、消息列表、旧版平铺的 email_message 文本
type Response struct {
	Code         string    `json:"code"`
	Messages     []Message `json:"messages"`
	EmailMessage string    `json:"email_message"`
}

// codePattern 匹配两侧都不是数字的 5-6 位数字串
// 需要前后环视，标准库 regexp 不支持，所以用 regexp2
var codePattern = regexp2.MustCompile(`(?<!\d)\d{5,6}(?!\d)`, regexp2.None)

// ExtractCode 从上游响应中提取验证码
// 优先级：顶层 code > 各消息的 code 字段 > 消息主题 > 消息正文 > 旧版 email_message
// 找不到时返回 false，调用方据此和传输错误区分开
func ExtractCode(resp *Response) (string, bool) {
	if resp == nil {
		return "", false
	}

	if resp.Code != "" {
		return resp.Code, true
	}

	for _, msg := range resp.Messages {
		if msg.Code != "" {
			return msg.Code, true
		}
		if code, ok := findCode(msg.Subject); ok {
			return code, true
		}
		if code, ok := findCode(msg.Body); ok {
			return code, true
		}
	}

	if code, ok := findCode(resp.EmailMessage); ok {
		return code, true
	}

	return "", false
}

// findCode 在文本中查找第一个 5-6 位数字串
func findCode(text string) (string, bool) {
	if text == "" {
		return "", false
	}

	m, err := codePattern.FindStringMatch(text)
	if err != nil || m == nil {
		return "", false
	}
	return m.String(), true
}
