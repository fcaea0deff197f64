package clientip

import (
	"net"
	"net/http"
	"strings"
)

// FromRequest returns the client address for rate-limit keys and logs. With trustProxy
// set, the left-most X-Forwarded-For entry (then X-Real-IP) wins over the socket peer;
// only enable it when the gateway in front rewrites those headers.
func FromRequest(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			first, _, _ := strings.Cut(fwd, ",")
			if ip := net.ParseIP(strings.TrimSpace(first)); ip != nil {
				return ip.String()
			}
		}
		if ip := net.ParseIP(strings.TrimSpace(r.Header.Get("X-Real-IP"))); ip != nil {
			return ip.String()
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return strings.TrimSpace(r.RemoteAddr)
	}
	return host
}
