package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
)

// RequestLogger logs one structured line per request, at a level chosen by status.
func RequestLogger(logger *logrus.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		fn := func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			start := time.Now()
			defer func() {
				fields := logrus.Fields{
					"method":     r.Method,
					"path":       r.URL.Path,
					"status":     ww.Status(),
					"latency":    time.Since(start).String(),
					"ip":         r.RemoteAddr,
					"user_agent": r.UserAgent(),
					"bytes":      ww.BytesWritten(),
				}
				if reqID := middleware.GetReqID(r.Context()); reqID != "" {
					fields["request_id"] = reqID
				}

				switch {
				case ww.Status() >= 500:
					logger.WithFields(fields).Error("HTTP request")
				case ww.Status() >= 400:
					logger.WithFields(fields).Warn("HTTP request")
				default:
					logger.WithFields(fields).Info("HTTP request")
				}
			}()

			next.ServeHTTP(ww, r)
		}
		return http.HandlerFunc(fn)
	}
}
