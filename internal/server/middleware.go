package server

import (
	"fmt"
	"net/http"
	"runtime/debug"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"

	"kvconsole/internal/constants"
)

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Debug().
			Str("request_id", chimw.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}

func (s *Server) recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				if err == http.ErrAbortHandler {
					panic(err)
				}
				s.log.Error().
					Str("panic", fmt.Sprint(err)).
					Bytes("stack", debug.Stack()).
					Msg("🔥 panic recovered")
				writeJSON(w, http.StatusInternalServerError, envelope{"success": false, "message": "Internal Server Error"})
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// connectRateLimit throttles connect attempts per client IP.
func (s *Server) connectRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := s.proxies.ClientIP(r)
		if !s.connLimiter.Allow(ip) {
			retryAfter := s.connLimiter.RetryAfter(ip)
			w.Header().Set("Retry-After", fmt.Sprintf("%d", int(retryAfter.Seconds())+1))
			s.log.Warn().Str("ip", ip).Msg("connect rate limit exceeded")
			writeJSON(w, http.StatusTooManyRequests, envelope{"success": false, "message": constants.MsgRateLimitExceeded})
			return
		}
		next.ServeHTTP(w, r)
	})
}
