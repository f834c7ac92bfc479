package main

import (
	"encoding/json"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

func withMethod(method string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != method {
			w.Header().Set("Allow", method)
			writeErr(w, http.StatusMethodNotAllowed, "method_not_allowed", "Método deve ser "+method)
			return
		}
		next(w, r)
	}
}

func (s *server) withConcurrencyLimit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.requestSem.TryAcquire(1) {
			writeErr(w, http.StatusServiceUnavailable, "capacity", "Serviço sem capacidade no momento")
			return
		}
		defer s.requestSem.Release(1)

		s.active.Add(1)
		s.total.Add(1)
		defer s.active.Add(-1)

		next(w, r)
	}
}

func (s *server) withRateLimit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limiter := s.getRateLimiter(getClientIP(r))

		if !limiter.Allow() {
			w.Header().Set("Retry-After", "60")
			writeErr(w, http.StatusTooManyRequests, "rate_limit", "Limite de requisições excedido")
			return
		}
		next(w, r)
	}
}

func (s *server) withRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic",
					zap.Any("panic", rec),
					zap.String("path", sanitizeLogString(r.URL.Path)),
					zap.Stack("stack"),
				)
				writeErr(w, http.StatusInternalServerError, "internal_error", "Erro interno do servidor")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (s *server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &wrapWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)

		s.metrics.HTTPRequest(routeLabel(r.URL.Path), strconv.Itoa(ww.status))
		s.logger.Info("request",
			zap.String("method", r.Method),
			zap.String("path", sanitizeLogString(r.URL.Path)),
			zap.Int("status", ww.status),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

type wrapWriter struct {
	http.ResponseWriter
	status int
}

func (w *wrapWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// ---------- Helpers ----------

// routeLabel keeps the path label bounded to the registered routes.
func routeLabel(path string) string {
	switch path {
	case "/", "/health", "/metrics", "/upload":
		return path
	default:
		return "other"
	}
}

// clientLimiter is a per-IP token bucket with the time it was last used.
type clientLimiter struct {
	*rate.Limiter
	lastSeen atomic.Int64 // unix nanoseconds
}

func (s *server) getRateLimiter(ip string) *rate.Limiter {
	now := time.Now().UnixNano()
	if v, ok := s.limiters.Load(ip); ok {
		cl := v.(*clientLimiter)
		cl.lastSeen.Store(now)
		return cl.Limiter
	}

	every := s.cfg.RateLimitEvery
	if every <= 0 {
		every = 2 * time.Second
	}
	burst := s.cfg.RateLimitBurst
	if burst <= 0 {
		burst = 10
	}

	fresh := &clientLimiter{Limiter: rate.NewLimiter(rate.Every(every), burst)}
	fresh.lastSeen.Store(now)
	v, _ := s.limiters.LoadOrStore(ip, fresh)
	cl := v.(*clientLimiter)
	cl.lastSeen.Store(now)
	return cl.Limiter
}

// evictIdleLimiters removes limiters unused for at least idle and returns how
// many were removed.
func (s *server) evictIdleLimiters(now time.Time, idle time.Duration) int {
	cutoff := now.Add(-idle).UnixNano()
	evicted := 0
	s.limiters.Range(func(k, v any) bool {
		if v.(*clientLimiter).lastSeen.Load() <= cutoff {
			s.limiters.Delete(k)
			evicted++
		}
		return true
	})
	return evicted
}

func getClientIP(r *http.Request) string {
	if ip := r.Header.Get("X-Forwarded-For"); ip != "" {
		if idx := strings.Index(ip, ","); idx > 0 {
			return strings.TrimSpace(ip[:idx])
		}
		return strings.TrimSpace(ip)
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return strings.TrimSpace(ip)
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func sanitizeError(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	msg = strings.ReplaceAll(msg, os.TempDir(), "[tmp]")
	if len(msg) > 300 {
		msg = msg[:300] + "..."
	}
	return msg
}

func sanitizeLogString(s string) string {
	s = strings.ReplaceAll(s, "\n", "")
	s = strings.ReplaceAll(s, "\r", "")
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"success": false,
		"error":   message,
		"code":    code,
	})
}
