/*
Package logx provides a structured logging wrapper based on zerolog.

This file contains the chi middleware that logs the request lifecycle
(URI, method, status, latency) with anonymized client IP addresses.
*/
package logx

import (
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
)

// anonymizeIP zeros the last octet of IPv4 addresses and compresses the tail
// of IPv6 addresses, keeping approximate origin without storing the full IP.
func anonymizeIP(ipStr string) string {
	host, _, err := net.SplitHostPort(ipStr)
	if err == nil {
		ipStr = host
	}

	ip := net.ParseIP(ipStr)
	if ip == nil {
		return "unknown_ip"
	}

	if ip.IsLoopback() {
		return "127.0.0.1"
	}

	if v4 := ip.To4(); v4 != nil {
		return v4[:3].String() + ".0"
	}

	if v6 := ip.To16(); v6 != nil {
		return v6[:8].String() + "::"
	}

	return ipStr
}

// RequestLogger returns an HTTP middleware that logs one line per request.
func RequestLogger() func(next http.Handler) http.Handler {
	baseLogger := Logger()

	return func(next http.Handler) http.Handler {
		fn := func(w http.ResponseWriter, r *http.Request) {
			requestID := middleware.GetReqID(r.Context())
			anonIP := anonymizeIP(r.RemoteAddr)

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			logger := baseLogger.With().
				Str("component", "http").
				Str("request_id", requestID).
				Str("remote_ip", anonIP).
				Str("request_method", r.Method).
				Str("request_uri", r.RequestURI).
				Logger()

			start := time.Now()

			defer func() {
				logger.Info().
					Int("response_status", ww.Status()).
					Int("bytes_written", ww.BytesWritten()).
					Dur("latency_ms", time.Since(start)).
					Msg("request completed")
			}()

			next.ServeHTTP(ww, r.WithContext(logger.WithContext(r.Context())))
		}

		return http.HandlerFunc(fn)
	}
}
