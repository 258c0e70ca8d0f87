package signals

import (
	"net"
	"strings"
)

// Private and loopback ranges. A private address reaching the scorer in a
// deployment expecting public traffic usually means misconfigured proxying,
// which is treated with high suspicion.
var privateCIDRs = []string{
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"127.0.0.0/8",
	"::1/128",
	"fc00::/7",
}

var (
	privateNets []*net.IPNet
	vpnNets     []*net.IPNet
)

// Known anonymizer network prefixes (commercial VPN egress ranges seen in
// production traffic). Deployments extend this via configuration.
var defaultVPNRangeCIDRs = []string{
	"185.220.100.0/22",
	"185.165.168.0/22",
	"104.244.72.0/21",
	"91.219.236.0/22",
	"199.249.230.0/23",
}

func init() {
	for _, cidr := range privateCIDRs {
		_, ipNet, err := net.ParseCIDR(cidr)
		if err != nil {
			// This should never happen with hardcoded CIDRs
			panic("failed to parse private CIDR: " + cidr + ": " + err.Error())
		}
		privateNets = append(privateNets, ipNet)
	}
	for _, cidr := range defaultVPNRangeCIDRs {
		_, ipNet, err := net.ParseCIDR(cidr)
		if err != nil {
			panic("failed to parse VPN range CIDR: " + cidr + ": " + err.Error())
		}
		vpnNets = append(vpnNets, ipNet)
	}
}

// Automation indicators matched case-insensitively against the User-Agent.
// First match wins.
var suspiciousUAFragments = []string{
	"bot",
	"crawler",
	"spider",
	"headless",
	"phantom",
	"selenium",
	"automation",
	"puppeteer",
	"playwright",
	"python-requests",
}

// Markers that indicate a real browser engine. A browser-claiming UA with no
// client fingerprint is mildly suspicious: every fingerprinting-enabled page
// should have produced one.
var browserEngineMarkers = []string{
	"mozilla",
	"applewebkit",
	"gecko",
	"chrome",
	"safari",
	"firefox",
	"edg",
}

const shortUserAgentThreshold = 10

// CheckPrivateIP reports a signal when the address falls in an RFC1918
// private range or loopback. Malformed addresses produce no signal.
func CheckPrivateIP(address string) (Signal, bool) {
	ip := net.ParseIP(address)
	if ip == nil {
		return Signal{}, false
	}

	for _, ipNet := range privateNets {
		if ipNet.Contains(ip) {
			return Signal{
				Kind:   KindPrivateIP,
				Score:  ScorePrivateIP,
				Reason: "Private IP detected",
			}, true
		}
	}
	return Signal{}, false
}

// CheckKnownVPNRange matches the address against the known anonymizer
// prefixes. extra CIDRs (from configuration) are consulted after the
// built-in list.
func CheckKnownVPNRange(address string, extra []*net.IPNet) (Signal, bool) {
	ip := net.ParseIP(address)
	if ip == nil {
		return Signal{}, false
	}

	match := func(nets []*net.IPNet) bool {
		for _, n := range nets {
			if n.Contains(ip) {
				return true
			}
		}
		return false
	}

	if match(vpnNets) || match(extra) {
		return Signal{
			Kind:   KindVPN,
			Score:  ScoreKnownVPNRange,
			Reason: "Known VPN range",
		}, true
	}
	return Signal{}, false
}

// CheckUserAgent matches the User-Agent against automation indicators,
// stopping at the first hit.
func CheckUserAgent(userAgent string) (Signal, bool) {
	ua := strings.ToLower(userAgent)
	for _, fragment := range suspiciousUAFragments {
		if strings.Contains(ua, fragment) {
			return Signal{
				Kind:   KindSuspiciousUA,
				Score:  ScoreSuspiciousUA,
				Reason: "Suspicious user agent: " + fragment,
			}, true
		}
	}
	return Signal{}, false
}

// CheckShortUserAgent flags a missing or implausibly short User-Agent.
func CheckShortUserAgent(userAgent string) (Signal, bool) {
	if len(strings.TrimSpace(userAgent)) < shortUserAgentThreshold {
		return Signal{
			Kind:   KindShortUA,
			Score:  ScoreShortUA,
			Reason: "Missing or short user agent",
		}, true
	}
	return Signal{}, false
}

// CheckMissingFingerprint flags a browser-claiming User-Agent that arrived
// without a client fingerprint.
func CheckMissingFingerprint(userAgent, fingerprint string) (Signal, bool) {
	if fingerprint != "" {
		return Signal{}, false
	}

	ua := strings.ToLower(userAgent)
	for _, marker := range browserEngineMarkers {
		if strings.Contains(ua, marker) {
			return Signal{
				Kind:   KindMissingFingerprint,
				Score:  ScoreMissingFingerprint,
				Reason: "Missing browser fingerprint",
			}, true
		}
	}
	return Signal{}, false
}

// CheckUserAgentSignals runs the cheap, always-fresh user-agent checks and
// returns every signal that fired.
func CheckUserAgentSignals(userAgent, fingerprint string) []Signal {
	var out []Signal
	if s, ok := CheckUserAgent(userAgent); ok {
		out = append(out, s)
	}
	if s, ok := CheckShortUserAgent(userAgent); ok {
		out = append(out, s)
	}
	if s, ok := CheckMissingFingerprint(userAgent, fingerprint); ok {
		out = append(out, s)
	}
	return out
}
