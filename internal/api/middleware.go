package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

type contextKey string

const (
	requestIDKey    contextKey = "request_id"
	adminSubjectKey contextKey = "admin_subject"

	requestIDHeader = "X-Request-ID"
)

// AdminVerifier checks an admin bearer token and returns its subject.
type AdminVerifier interface {
	Verify(token string) (string, error)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func requestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

func adminSubject(ctx context.Context) string {
	sub, _ := ctx.Value(adminSubjectKey).(string)
	return sub
}

// withRequestID reuses an inbound X-Request-ID or assigns a new one.
func withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" || len(id) > 64 {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey, id)))
	})
}

// instrument logs and records metrics for every routed request.
func instrument(logger *zap.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			endpoint := r.URL.Path
			if route := mux.CurrentRoute(r); route != nil {
				if tpl, err := route.GetPathTemplate(); err == nil {
					endpoint = tpl
				}
			}

			timer := prometheus.NewTimer(httpLatency.WithLabelValues(r.Method, endpoint))
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			timer.ObserveDuration()

			httpReqTotal.WithLabelValues(r.Method, endpoint, strconv.Itoa(rec.status)).Inc()
			logger.Info("request completed",
				zap.String("method", r.Method),
				zap.String("endpoint", endpoint),
				zap.Int("status", rec.status),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", requestID(r.Context())))
		})
	}
}

// recoverPanics turns a handler panic into a 500 instead of a dropped connection.
func recoverPanics(logger *zap.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if p := recover(); p != nil {
					if p == http.ErrAbortHandler {
						panic(p)
					}
					logger.Error("handler panic",
						zap.Any("panic", p),
						zap.String("path", r.URL.Path),
						zap.String("request_id", requestID(r.Context())),
						zap.Stack("stack"))
					writeError(w, http.StatusInternalServerError, "internal", "Internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// requireAdmin gates a subrouter behind a verified admin bearer token.
func requireAdmin(v AdminVerifier, logger *zap.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, _ := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			subject, err := v.Verify(strings.TrimSpace(token))
			if err != nil {
				logger.Warn("admin access denied",
					zap.String("path", r.URL.Path),
					zap.String("request_id", requestID(r.Context())),
					zap.Error(err))
				writeError(w, statusFor(err), "unauthorized", "Admin authorization required")
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), adminSubjectKey, subject)))
		})
	}
}
