package signals

import (
	"context"
	"net"
)

// Detector runs the full collector suite for an identity. The network-facing
// collectors (reverse DNS, range matching) are the expensive half; the
// scorer runs them on first sighting only and caches their findings in the
// abuse ledger.
type Detector struct {
	matcher   *ProviderMatcher
	extraVPNs []*net.IPNet
}

// NewDetector creates a detector with the built-in provider deny-list and
// VPN ranges.
func NewDetector() *Detector {
	return &Detector{matcher: NewProviderMatcher()}
}

// NewDetectorWith creates a detector with an explicit provider matcher and
// additional VPN CIDRs from configuration.
func NewDetectorWith(matcher *ProviderMatcher, extraVPNCIDRs []string) *Detector {
	d := &Detector{matcher: matcher}
	if d.matcher == nil {
		d.matcher = NewProviderMatcher()
	}
	for _, cidr := range extraVPNCIDRs {
		if _, ipNet, err := net.ParseCIDR(cidr); err == nil {
			d.extraVPNs = append(d.extraVPNs, ipNet)
		}
	}
	return d
}

// CollectNetwork runs only the network-facing collectors (known-range match
// and reverse DNS). These are the expensive checks the scorer caches in the
// ledger; the cheap address and user-agent checks run fresh on every request.
func (d *Detector) CollectNetwork(ctx context.Context, address string) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			result = degradedResult()
		}
	}()

	var out []Signal
	if s, ok := CheckKnownVPNRange(address, d.extraVPNs); ok {
		out = append(out, s)
	} else if s, ok := d.matcher.Lookup(ctx, address); ok {
		out = append(out, s)
	}
	return Result{Signals: out}
}

func degradedResult() Result {
	return Result{
		Signals: []Signal{{
			Kind:   KindDetectionError,
			Score:  ScoreDetectionError,
			Reason: ReasonDetectionError,
		}},
		Degraded: true,
	}
}

// Collect runs every collector against the given request attributes.
// Collector-internal failures degrade to a single moderate penalty rather
// than aborting the evaluation: a broken detector must not take down the
// gated feature.
func (d *Detector) Collect(ctx context.Context, address, userAgent, fingerprint string) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			result = degradedResult()
		}
	}()

	var out []Signal
	if s, ok := CheckPrivateIP(address); ok {
		out = append(out, s)
	}
	netRes := d.CollectNetwork(ctx, address)
	out = append(out, netRes.Signals...)
	out = append(out, CheckUserAgentSignals(userAgent, fingerprint)...)

	return Result{Signals: out, Degraded: netRes.Degraded}
}
