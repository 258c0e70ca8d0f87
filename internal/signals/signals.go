package signals

import "strings"

// Kind is the closed set of signal types the detector can emit. Using an
// explicit enum (rather than free-form strings) prevents silent
// default-value bugs when folding signals into a score.
type Kind string

const (
	KindPrivateIP          Kind = "private_ip"
	KindBanned             Kind = "banned"
	KindVPN                Kind = "vpn"
	KindProxy              Kind = "proxy"
	KindDatacenter         Kind = "datacenter"
	KindSuspiciousUA       Kind = "suspicious_user_agent"
	KindShortUA            Kind = "short_user_agent"
	KindMissingFingerprint Kind = "missing_fingerprint"
	KindDetectionError     Kind = "detection_error"
)

// Default penalty contributions per signal kind.
const (
	ScorePrivateIP          = 90
	ScoreBanned             = 100
	ScoreVPN                = 80
	ScoreKnownVPNRange      = 75
	ScoreProxy              = 60
	// ScoreProxyFlag is the heavier penalty applied when the proxy flag is
	// read back from a stored record, where it has already been confirmed
	// once rather than freshly inferred.
	ScoreProxyFlag          = 75
	ScoreDatacenter         = 70
	ScoreSuspiciousUA       = 60
	ScoreShortUA            = 30
	ScoreMissingFingerprint = 20
	ScoreDetectionError     = 40
)

// ReasonDetectionError is the reason attached when a collector fails
// internally and the evaluation degrades instead of aborting.
const ReasonDetectionError = "detection error - proceed with caution"

// Signal is one independent piece of evidence about an identity's risk:
// a category, a penalty contribution and a human-readable reason for
// support-desk triage.
type Signal struct {
	Kind   Kind
	Score  int
	Reason string
}

// Result is the outcome of running the collectors. Degraded is set when a
// collector failed internally and a default penalty was substituted, so
// callers can distinguish a clean pass from a degraded one without parsing
// reason strings.
type Result struct {
	Signals  []Signal
	Degraded bool
}

// Total sums the penalty contributions of all collected signals.
func (r Result) Total() int {
	total := 0
	for _, s := range r.Signals {
		total += s.Score
	}
	return total
}

// Reasons returns the collected reason strings in emission order.
func (r Result) Reasons() []string {
	reasons := make([]string, 0, len(r.Signals))
	for _, s := range r.Signals {
		reasons = append(reasons, s.Reason)
	}
	return reasons
}

// Has reports whether a signal of the given kind was collected.
func (r Result) Has(kind Kind) bool {
	for _, s := range r.Signals {
		if s.Kind == kind {
			return true
		}
	}
	return false
}

// JoinReasons renders a reason list the way block/verify responses expose it.
func JoinReasons(reasons []string) string {
	if len(reasons) == 0 {
		return "Low risk"
	}
	return strings.Join(reasons, ", ")
}
