package signals

import (
	"context"
	"net"
	"strings"
	"time"
)

// ProviderCategory buckets a matched hosting provider by how strongly its
// presence correlates with abuse.
type ProviderCategory string

const (
	ProviderVPN        ProviderCategory = "vpn"
	ProviderDatacenter ProviderCategory = "datacenter"
	ProviderProxy      ProviderCategory = "proxy"
)

// ProviderRule maps a hostname fragment to a provider category.
type ProviderRule struct {
	Fragment string           `yaml:"fragment"`
	Category ProviderCategory `yaml:"category"`
}

// DefaultProviderRules is the built-in deny-list of cloud and VPN provider
// domain fragments matched against reverse-DNS hostnames.
var DefaultProviderRules = []ProviderRule{
	{Fragment: "nordvpn", Category: ProviderVPN},
	{Fragment: "expressvpn", Category: ProviderVPN},
	{Fragment: "surfshark", Category: ProviderVPN},
	{Fragment: "protonvpn", Category: ProviderVPN},
	{Fragment: "mullvad", Category: ProviderVPN},
	{Fragment: "privateinternetaccess", Category: ProviderVPN},
	{Fragment: "vpn", Category: ProviderVPN},
	{Fragment: "amazonaws", Category: ProviderDatacenter},
	{Fragment: "googleusercontent", Category: ProviderDatacenter},
	{Fragment: "azure", Category: ProviderDatacenter},
	{Fragment: "digitalocean", Category: ProviderDatacenter},
	{Fragment: "linode", Category: ProviderDatacenter},
	{Fragment: "hetzner", Category: ProviderDatacenter},
	{Fragment: "ovh", Category: ProviderDatacenter},
	{Fragment: "vultr", Category: ProviderDatacenter},
	{Fragment: "contabo", Category: ProviderDatacenter},
	{Fragment: "proxy", Category: ProviderProxy},
	{Fragment: "tor-exit", Category: ProviderProxy},
	{Fragment: "anonymizer", Category: ProviderProxy},
}

// DefaultLookupTimeout bounds how long a reverse-DNS lookup may block a
// request. Lookups that exceed it fail open to "no signal".
const DefaultLookupTimeout = 3 * time.Second

// AddrLookuper is the reverse-DNS dependency of ProviderMatcher.
// *net.Resolver satisfies it; tests inject a fake.
type AddrLookuper interface {
	LookupAddr(ctx context.Context, addr string) ([]string, error)
}

// ProviderMatcher classifies addresses by resolving them to hostnames and
// matching provider domain fragments.
type ProviderMatcher struct {
	resolver AddrLookuper
	rules    []ProviderRule
	timeout  time.Duration
}

// NewProviderMatcher creates a matcher using the system resolver and the
// built-in deny-list.
func NewProviderMatcher() *ProviderMatcher {
	return &ProviderMatcher{
		resolver: net.DefaultResolver,
		rules:    DefaultProviderRules,
		timeout:  DefaultLookupTimeout,
	}
}

// NewProviderMatcherWith creates a matcher with an explicit resolver, rule
// set and timeout. Nil/zero arguments fall back to the defaults.
func NewProviderMatcherWith(resolver AddrLookuper, rules []ProviderRule, timeout time.Duration) *ProviderMatcher {
	m := NewProviderMatcher()
	if resolver != nil {
		m.resolver = resolver
	}
	if len(rules) > 0 {
		m.rules = rules
	}
	if timeout > 0 {
		m.timeout = timeout
	}
	return m
}

// Lookup resolves the address and matches the deny-list. DNS failure of any
// kind (no PTR record, timeout, malformed address) yields no signal and no
// error: reverse DNS is a weak, best-effort source and must never take down
// the evaluation.
func (m *ProviderMatcher) Lookup(ctx context.Context, address string) (Signal, bool) {
	if net.ParseIP(address) == nil {
		return Signal{}, false
	}

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	names, err := m.resolver.LookupAddr(ctx, address)
	if err != nil {
		return Signal{}, false
	}

	for _, name := range names {
		host := strings.ToLower(strings.TrimSuffix(name, "."))
		for _, rule := range m.rules {
			if strings.Contains(host, rule.Fragment) {
				return m.signalFor(rule.Category), true
			}
		}
	}
	return Signal{}, false
}

func (m *ProviderMatcher) signalFor(cat ProviderCategory) Signal {
	switch cat {
	case ProviderVPN:
		return Signal{Kind: KindVPN, Score: ScoreVPN, Reason: "VPN provider detected"}
	case ProviderDatacenter:
		return Signal{Kind: KindDatacenter, Score: ScoreDatacenter, Reason: "Datacenter IP detected"}
	default:
		return Signal{Kind: KindProxy, Score: ScoreProxy, Reason: "Proxy provider detected"}
	}
}
