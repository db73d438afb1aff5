package logger

import (
	"Roger/internal/api/config"
	"io"
	log "log/slog"
	"net"
	"os"
	"strings"
)

// LogWriter gin 访问日志输出
var LogWriter io.Writer = os.Stdout

// ParseLevel 将配置中的字符串转换为 slog 等级，未知值按 info 处理
func ParseLevel(raw string) log.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return log.LevelDebug
	case "warn", "warning":
		return log.LevelWarn
	case "error":
		return log.LevelError
	default:
		return log.LevelInfo
	}
}

// InitLogger 初始化全局 slog，远端地址可用时同时上报带 trace_id 的日志
func InitLogger(cfg config.LogConfig) {
	level := ParseLevel(cfg.Level)
	hStdout := log.NewJSONHandler(os.Stdout, &log.HandlerOptions{Level: level})

	var finalHandler log.Handler = hStdout

	if cfg.RemoteAddress != "" {
		conn, err := net.Dial("tcp", cfg.RemoteAddress)
		if err == nil {
			hRemote := log.NewJSONHandler(conn, &log.HandlerOptions{Level: level}).
				WithAttrs([]log.Attr{log.String("target_index", cfg.Index)})

			finalHandler = &teeHandler{
				handlers: []log.Handler{hStdout, &remoteFilterHandler{next: hRemote}},
			}
			LogWriter = conn
		} else {
			log.Warn("Failed to connect to log collector, logging to stdout only", "err", err)
		}
	}

	log.SetDefault(log.New(&ContextHandler{finalHandler}))
}
