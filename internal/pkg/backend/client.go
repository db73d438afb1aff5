// Package backend 后端 RPC 客户端：执行 Intent 并返回结构化结果，401 统一在这里处理。
package backend

import (
	"Roger/internal/api/config"
	"Roger/internal/pkg/event"
	"Roger/internal/pkg/logger"
	"context"
	"fmt"
	log "log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/goccy/go-json"
)

// TokenSource 返回当前访问令牌，未登录时为空
type TokenSource func() string

// Client RPC 客户端，并发安全
type Client struct {
	http     *resty.Client
	token    TokenSource
	retry    *retryQueue
	flushing atomic.Bool

	// Unauthorized 任意请求返回 401 时触发，参数为触发的请求
	Unauthorized event.Event[Intent]
}

// NewClient 创建客户端
func NewClient(cfg config.BackendConfig, token TokenSource) *Client {
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	httpClient := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(timeout).
		SetTransport(&logger.HTTPTransport{Transport: http.DefaultTransport}).
		SetHeader("Accept", "application/json").
		SetJSONMarshaler(json.Marshal).
		SetJSONUnmarshaler(json.Unmarshal)

	if token == nil {
		token = func() string { return "" }
	}
	return &Client{
		http:  httpClient,
		token: token,
		retry: newRetryQueue(cfg.RetryQueueSize),
	}
}

// Perform 执行请求。没有收到响应且请求可重试时放入重试队列。
func (c *Client) Perform(ctx context.Context, in Intent) Result {
	res := c.execute(ctx, in)
	if res.Code == 0 && in.Retryable {
		if dropped := c.retry.push(in); dropped {
			log.WarnContext(ctx, "retry queue full, oldest intent dropped")
		}
		log.InfoContext(ctx, "intent queued for retry", "intent", in.Name, "err", res.Err)
		res.Queued = true
		return res
	}
	if res.Successful() && c.retry.len() > 0 && c.flushing.CompareAndSwap(false, true) {
		go func() {
			defer c.flushing.Store(false)
			c.FlushPending(logger.NewTraceContext(context.Background(), "retry"))
		}()
	}
	return res
}

// PerformAsync 在后台执行请求，完成后调用 done
func (c *Client) PerformAsync(ctx context.Context, in Intent, done func(Result)) {
	go func() {
		res := c.Perform(ctx, in)
		if done != nil {
			done(res)
		}
	}()
}

// FlushPending 重发队列中的请求，返回成功发出的数量。再次没有响应的请求放回队列。
func (c *Client) FlushPending(ctx context.Context) int {
	items := c.retry.drain()
	if len(items) == 0 {
		return 0
	}
	sent := 0
	for i, in := range items {
		res := c.execute(ctx, in)
		if res.Code == 0 {
			c.retry.prepend(items[i:])
			break
		}
		sent++
		if !res.Successful() {
			log.WarnContext(ctx, "retried intent rejected", "intent", in.Name, "code", res.Code, "err", res.Err)
		}
		if in.OnRetried != nil {
			in.OnRetried(res)
		}
	}
	log.InfoContext(ctx, "retry queue flushed", "sent", sent, "pending", c.retry.len())
	return sent
}

// Pending 待重试的请求数量
func (c *Client) Pending() int {
	return c.retry.len()
}

func (c *Client) execute(ctx context.Context, in Intent) Result {
	req := c.http.R().SetContext(ctx)
	if token := c.token(); token != "" {
		req.SetAuthToken(token)
	}
	if len(in.Query) > 0 {
		req.SetQueryParams(in.Query)
	}
	if in.File != nil {
		form := make(map[string]string, len(in.Body))
		for k, v := range in.Body {
			form[k] = fmt.Sprint(v)
		}
		req.SetFile(in.File.Field, in.File.Path).SetFormData(form)
	} else if in.Body != nil {
		req.SetHeader("Content-Type", "application/json").SetBody(in.Body)
	}

	resp, err := req.Execute(in.Method, in.Path)
	if err != nil {
		return Result{Err: fmt.Errorf("%w: %s: %v", ErrNoResponse, in.Name, err)}
	}

	res := Result{Code: resp.StatusCode()}
	if body := resp.Body(); len(body) > 0 {
		var data map[string]any
		if err := json.Unmarshal(body, &data); err == nil {
			res.Data = data
		} else {
			var value any
			if json.Unmarshal(body, &value) == nil {
				res.Data = map[string]any{"data": value}
			}
		}
	}

	if res.Code >= http.StatusBadRequest {
		msg, _ := res.Data["error"].(string)
		res.Err = &StatusError{Code: res.Code, Message: msg}
	}
	if res.Unauthorized() {
		log.WarnContext(ctx, "session rejected by backend", "intent", in.Name)
		c.Unauthorized.Emit(in)
	}
	return res
}
