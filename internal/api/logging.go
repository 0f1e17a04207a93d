package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// zapLogFormatter writes one access log entry per request through zap.
type zapLogFormatter struct {
	logger *zap.Logger
}

func (f *zapLogFormatter) NewLogEntry(r *http.Request) middleware.LogEntry {
	return &zapLogEntry{
		logger: f.logger.With(
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("remote", r.RemoteAddr),
		),
	}
}

type zapLogEntry struct {
	logger *zap.Logger
}

func (e *zapLogEntry) Write(status, bytes int, header http.Header, elapsed time.Duration, extra interface{}) {
	e.logger.Info("request",
		zap.Int("status", status),
		zap.Int("bytes", bytes),
		zap.Duration("elapsed", elapsed))
}

func (e *zapLogEntry) Panic(v interface{}, stack []byte) {
	e.logger.Error("request panicked",
		zap.Any("panic", v),
		zap.ByteString("stack", stack))
}
