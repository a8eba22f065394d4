package security

import (
	"net"
	"net/http"
	"strings"
)

// ClientIP extracts the real client IP address from the request.
// X-Forwarded-For and X-Real-IP are consulted only when trustProxy is set;
// those headers are spoofable on direct connections.
//
// X-Forwarded-For format is "client, proxy1, proxy2, ...". trustedProxyCount
// says how many rightmost entries belong to proxies we control, which is what
// makes the extracted client address trustworthy in multi-proxy setups.
func ClientIP(r *http.Request, trustProxy bool, trustedProxyCount int) string {
	if trustProxy {
		if ip := ipFromForwardedFor(r.Header.Get("X-Forwarded-For"), trustedProxyCount); ip != "" {
			return ip
		}
		if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" && net.ParseIP(xri) != nil {
			return xri
		}
	}
	return ipFromRemoteAddr(r.RemoteAddr)
}

// ipFromForwardedFor picks the client entry out of an X-Forwarded-For list.
// The client sits at len(ips)-trustedProxyCount-1; anything left of that was
// appended by hops we do not control. trustedProxyCount 0 is treated as 1.
func ipFromForwardedFor(xff string, trustedProxyCount int) string {
	if xff == "" {
		return ""
	}

	ips := strings.Split(xff, ",")

	proxyCount := trustedProxyCount
	if proxyCount == 0 {
		proxyCount = 1
	}
	clientIndex := len(ips) - proxyCount - 1
	if clientIndex < 0 {
		clientIndex = 0
	}

	clientIP := strings.TrimSpace(ips[clientIndex])
	if net.ParseIP(clientIP) != nil {
		return clientIP
	}
	return ""
}

// ipFromRemoteAddr strips the port from a direct connection's RemoteAddr.
func ipFromRemoteAddr(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}
