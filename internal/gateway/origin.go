package gateway

import (
	"net"
	"net/http"
	"net/url"
	"strings"
)

// isLoopbackOrigin aceita só páginas servidas de localhost; clientes sem
// Origin (CLI, testes) passam.
func isLoopbackOrigin(r *http.Request) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	parsed, err := url.Parse(origin)
	if err != nil {
		return false
	}
	host := parsed.Hostname()
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
