package middleware

import (
	"net/http"
	"time"

	"github.com/AnshRaj112/serenify-conversations/internal/logger"
	"github.com/AnshRaj112/serenify-conversations/internal/metrics"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
)

// RequestLogger puts a request-scoped logrus entry into the context and logs each
// finished request. It expects chi's RequestID to run first.
func RequestLogger(log *logrus.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			entry := log.WithFields(logrus.Fields{
				"requestId": chimw.GetReqID(r.Context()),
				"method":    r.Method,
				"path":      r.URL.Path,
			})
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(logger.WithContext(r.Context(), entry)))

			fields := logrus.Fields{
				"status":   ww.Status(),
				"bytes":    ww.BytesWritten(),
				"duration": time.Since(start).String(),
			}
			switch {
			case ww.Status() >= http.StatusInternalServerError:
				entry.WithFields(fields).Error("Request failed")
			case ww.Status() >= http.StatusBadRequest:
				entry.WithFields(fields).Info("Request rejected")
			default:
				entry.WithFields(fields).Debug("Request served")
			}
		})
	}
}

// Metrics records request counts and latency by route pattern.
func Metrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		metrics.ObserveRequest(r.Method, route, status, time.Since(start))
	})
}
