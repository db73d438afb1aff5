package logger

import (
	"bytes"
	"io"
	log "log/slog"
	"net/http"
	"strings"
	"time"
)

const bodyLogLimit = 1000

// HTTPTransport 记录后端 RPC 请求，只记录 JSON 报文，音频等二进制内容只记长度
type HTTPTransport struct {
	Transport http.RoundTripper
}

func (t *HTTPTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	next := t.Transport
	if next == nil {
		next = http.DefaultTransport
	}
	start := time.Now()

	fields := []any{
		log.String("method", req.Method),
		log.String("url", req.URL.Redacted()),
	}

	if req.Body != nil && isJSON(req.Header.Get("Content-Type")) {
		reqBody, _ := io.ReadAll(req.Body)
		req.Body = io.NopCloser(bytes.NewBuffer(reqBody))
		fields = append(fields, log.String("req_body", truncate(string(reqBody))))
	}

	resp, err := next.RoundTrip(req)
	fields = append(fields, log.Duration("latency", time.Since(start)))

	if err != nil {
		log.ErrorContext(req.Context(), "BACKEND_RPC_ERROR", append(fields, log.Any("err", err))...)
		return nil, err
	}

	fields = append(fields, log.Int("status", resp.StatusCode))
	if resp.Body != nil && isJSON(resp.Header.Get("Content-Type")) {
		resBody, _ := io.ReadAll(resp.Body)
		resp.Body = io.NopCloser(bytes.NewBuffer(resBody))
		fields = append(fields, log.String("res_body", truncate(string(resBody))))
	} else {
		fields = append(fields, log.Int64("res_length", resp.ContentLength))
	}

	if time.Since(start) > 500*time.Millisecond {
		log.WarnContext(req.Context(), "BACKEND_RPC_SLOW", fields...)
	} else {
		log.DebugContext(req.Context(), "BACKEND_RPC", fields...)
	}

	return resp, nil
}

func isJSON(contentType string) bool {
	return strings.Contains(contentType, "json")
}

func truncate(s string) string {
	if len(s) > bodyLogLimit {
		return s[:bodyLogLimit] + "...[truncated]"
	}
	return s
}
