package identity

import (
	"fmt"
	"hash/fnv"
	"net"
	"strings"
)

// Identity is the best-effort descriptor for a requester, derived from the
// connection address, the User-Agent header and an optional client-supplied
// fingerprint. It is computed per request and never persisted; only its key
// is used to index the abuse ledger.
type Identity struct {
	Address     string
	UserAgent   string
	Fingerprint string
}

// Resolve builds an Identity from raw request attributes. The address may
// carry a port (RemoteAddr form); it is stripped and the IP normalized so
// repeated requests from the same client produce the same key. Missing
// user-agent or fingerprint is tolerated; resolution never fails.
//
// An unparseable address is kept verbatim so the ledger still has a stable
// (if odd) key to correlate on, rather than collapsing all garbage input
// into one bucket.
func Resolve(remoteAddr, userAgent, fingerprint string) Identity {
	return Identity{
		Address:     normalizeAddress(remoteAddr),
		UserAgent:   strings.TrimSpace(userAgent),
		Fingerprint: strings.TrimSpace(fingerprint),
	}
}

// Key returns the ledger lookup key. Records are keyed by network address;
// collisions across distinct users behind the same address are accepted.
func (id Identity) Key() string {
	return id.Address
}

// CompositeKey returns a non-cryptographic hash over all three identity
// attributes, for callers that want a stronger (per-browser) correlation key.
// Stability matters here, not secrecy.
func (id Identity) CompositeKey() string {
	h := fnv.New64a()
	h.Write([]byte(id.Address))
	h.Write([]byte{0})
	h.Write([]byte(id.UserAgent))
	h.Write([]byte{0})
	h.Write([]byte(id.Fingerprint))
	return fmt.Sprintf("%016x", h.Sum64())
}

func normalizeAddress(addr string) string {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return ""
	}

	host := addr
	if h, _, err := net.SplitHostPort(addr); err == nil {
		host = h
	}

	if ip := net.ParseIP(strings.Trim(host, "[]")); ip != nil {
		return ip.String()
	}
	return host
}
