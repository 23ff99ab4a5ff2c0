package web

import (
	"context"
	"net"
	"net/http"

	"github.com/JonMunkholm/treedata/internal/core"
)

// WithRequestMetadata adds client IP and User-Agent to context for import logging.
func WithRequestMetadata(ctx context.Context, r *http.Request) context.Context {
	return core.WithClient(ctx, core.Client{IP: clientIP(r), UserAgent: r.UserAgent()})
}

// clientIP returns the host part of RemoteAddr, already rewritten by
// TrustedRealIP for requests from trusted proxies.
func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
