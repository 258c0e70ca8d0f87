package api

import (
	"net"
	"strings"

	"github.com/labstack/echo/v4"
)

// Trusted proxy CIDR ranges (private networks + localhost).
// These are the only sources allowed to set X-Forwarded-For; anything else
// could spoof its way past the abuse ledger by inventing client addresses.
var trustedProxyCIDRs = []string{
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"127.0.0.0/8",
	"::1/128",
	"fc00::/7",
	"fe80::/10",
}

var trustedProxyNets []*net.IPNet

func init() {
	for _, cidr := range trustedProxyCIDRs {
		_, ipNet, err := net.ParseCIDR(cidr)
		if err != nil {
			panic("Failed to parse trusted proxy CIDR: " + cidr + ": " + err.Error())
		}
		trustedProxyNets = append(trustedProxyNets, ipNet)
	}
}

// isTrustedProxy checks if an IP address is in the trusted proxy ranges
func isTrustedProxy(ipStr string) bool {
	ip := net.ParseIP(ipStr)
	if ip == nil {
		return false
	}

	for _, ipNet := range trustedProxyNets {
		if ipNet.Contains(ip) {
			return true
		}
	}
	return false
}

// parseIP extracts an IP address from a string that might include a port
// Returns the IP part only, or empty string if invalid
func parseIP(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}

	ip := net.ParseIP(strings.TrimSpace(host))
	if ip == nil {
		return ""
	}

	return ip.String()
}

// getClientIP extracts the real client IP from the request.
//
// The abuse ledger keys on this value, so it must resist spoofing:
// 1. X-Forwarded-For is only trusted when the request arrived via a trusted
//    proxy (private network).
// 2. Within the chain the rightmost untrusted IP wins. Each proxy appends to
//    the right, so only the entries added by our own proxies can be trusted;
//    walking right to left and stopping at the first untrusted hop discards
//    anything a client prepended.
// 3. Falls back to RemoteAddr in every other case.
func getClientIP(c echo.Context) string {
	remoteIP := parseIP(c.Request().RemoteAddr)

	if !isTrustedProxy(remoteIP) {
		return remoteIP
	}

	xff := c.Request().Header.Get("X-Forwarded-For")
	if xff == "" {
		return remoteIP
	}

	ips := strings.Split(xff, ",")

	// Rightmost untrusted IP in the chain
	for i := len(ips) - 1; i >= 0; i-- {
		ipStr := strings.TrimSpace(ips[i])
		if ipStr == "" {
			continue
		}

		parsedIP := parseIP(ipStr)
		if parsedIP == "" {
			continue
		}

		if !isTrustedProxy(parsedIP) {
			return parsedIP
		}
	}

	// All IPs in the chain are trusted (internal traffic); use the leftmost
	for i := 0; i < len(ips); i++ {
		if parsedIP := parseIP(strings.TrimSpace(ips[i])); parsedIP != "" {
			return parsedIP
		}
	}

	return remoteIP
}
