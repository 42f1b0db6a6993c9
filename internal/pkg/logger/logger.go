package logger

import (
	"log/slog"
	"os"
	"strings"
)

// NewDefault 创建默认的 slog 日志记录器。
//
// 参数:
//
//	level: 日志级别字符串 (debug / info / warn / error)，非法值回落到 info
func NewDefault(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	return slog.New(handler)
}
