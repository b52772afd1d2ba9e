package middleware

import (
	"net"
	"net/http"
	"strings"
)

// ClientIP returns the address of the original caller. Behind the mesh
// sidecar RemoteAddr is the sidecar itself, so the leftmost X-Forwarded-For
// entry is preferred, then X-Real-IP, then RemoteAddr. The port is removed.
func ClientIP(r *http.Request) string {
	ip := extractIPFromXForwardedFor(r)
	if ip == "" {
		ip = strings.TrimSpace(r.Header.Get("X-Real-IP"))
	}
	if ip == "" {
		ip = r.RemoteAddr
	}
	return cleanIP(ip)
}

// extractIPFromXForwardedFor extracts the client IP from the X-Forwarded-For header
// The X-Forwarded-For header contains a comma-separated list of IPs, with the leftmost being the original client
func extractIPFromXForwardedFor(r *http.Request) string {
	xff := r.Header.Get("X-Forwarded-For")
	if xff == "" {
		return ""
	}
	first, _, _ := strings.Cut(xff, ",")
	return strings.TrimSpace(first)
}

// cleanIP removes the port from an address if present.
func cleanIP(ip string) string {
	if host, _, err := net.SplitHostPort(ip); err == nil {
		return host
	}
	return strings.Trim(ip, "[]")
}
