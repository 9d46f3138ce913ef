package middleware

import (
	"net/http"
	"time"

	"github.com/wudi/kairos/internal/middleware/realip"
	"github.com/wudi/kairos/internal/obsv"
	"go.uber.org/zap"
)

// AccessLogConfig configures the access-log middleware.
type AccessLogConfig struct {
	// Logger is the zap logger the access log is written through. Defaults
	// to obsv.Global() when nil.
	Logger *zap.Logger
	// SkipPaths are paths that should not be logged (e.g. health checks).
	SkipPaths []string
}

// AccessLog creates an access-log middleware using the default logger.
func AccessLog() Middleware {
	return AccessLogWithConfig(AccessLogConfig{})
}

// AccessLogWithConfig creates an access-log middleware writing one
// structured zap entry per request.
func AccessLogWithConfig(cfg AccessLogConfig) Middleware {
	logger := cfg.Logger
	if logger == nil {
		logger = obsv.Global()
	}

	skipPaths := make(map[string]bool, len(cfg.SkipPaths))
	for _, p := range cfg.SkipPaths {
		skipPaths[p] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if skipPaths[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			lrw := &loggingResponseWriter{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(lrw, r)

			fields := []zap.Field{
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", lrw.status),
				zap.Int64("bytes", lrw.bytes),
				zap.Duration("duration", time.Since(start)),
				zap.String("remote_addr", remoteAddr(r)),
			}
			if id := GetRequestID(r); id != "" {
				fields = append(fields, zap.String("request_id", id))
			}
			if routeID := RouteIDFromContext(r.Context()); routeID != "" {
				fields = append(fields, zap.String("route_id", routeID))
			}
			if identity := IdentityFromContext(r.Context()); identity != nil {
				fields = append(fields, zap.String("client_id", identity.ClientID))
			}

			logger.Info("request", fields...)
		})
	}
}

func remoteAddr(r *http.Request) string {
	if ip := realip.FromContext(r.Context()); ip != "" {
		return ip
	}
	return r.RemoteAddr
}

// loggingResponseWriter wraps http.ResponseWriter to capture status and bytes
type loggingResponseWriter struct {
	http.ResponseWriter
	status int
	bytes  int64
}

func (lrw *loggingResponseWriter) WriteHeader(status int) {
	lrw.status = status
	lrw.ResponseWriter.WriteHeader(status)
}

func (lrw *loggingResponseWriter) Write(b []byte) (int, error) {
	n, err := lrw.ResponseWriter.Write(b)
	lrw.bytes += int64(n)
	return n, err
}

// Flush implements http.Flusher
func (lrw *loggingResponseWriter) Flush() {
	if f, ok := lrw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Status returns the recorded status code
func (lrw *loggingResponseWriter) Status() int {
	return lrw.status
}

// BytesWritten returns the number of bytes written
func (lrw *loggingResponseWriter) BytesWritten() int64 {
	return lrw.bytes
}
