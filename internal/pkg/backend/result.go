package backend

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrNoResponse 请求未得到响应（网络不可达、超时等）
var ErrNoResponse = errors.New("backend: no response")

// Result 一次请求的结果。Code 为 0 表示没有收到响应。
type Result struct {
	Data map[string]any
	Err  error
	Code int
	// Queued 没有响应，请求已进入重试队列
	Queued bool
}

// Successful 收到 2xx 响应且没有错误
func (r Result) Successful() bool {
	return r.Err == nil && r.Code >= http.StatusOK && r.Code < http.StatusMultipleChoices
}

// Unauthorized 会话失效
func (r Result) Unauthorized() bool {
	return r.Code == http.StatusUnauthorized
}

// List 读取 key 对应的对象数组，非对象元素被忽略
func (r Result) List(key string) []map[string]any {
	raw, _ := r.Data[key].([]any)
	out := make([]map[string]any, 0, len(raw))
	for _, item := range raw {
		if m, ok := item.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}

// Object 读取 key 对应的对象
func (r Result) Object(key string) map[string]any {
	m, _ := r.Data[key].(map[string]any)
	return m
}

// String 读取字符串字段
func (r Result) String(key string) string {
	s, _ := r.Data[key].(string)
	return s
}

// StatusError 后端返回的非 2xx 响应
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("backend: status %d", e.Code)
	}
	return fmt.Sprintf("backend: status %d: %s", e.Code, e.Message)
}
