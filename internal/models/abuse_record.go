package models

import (
	"fmt"
	"time"
)

// AbuseRecord is the persistent per-identity ledger entry. Records are keyed
// by network address; they are created on first sighting and mutated on every
// subsequent request. Records are never deleted automatically; retention is
// an administrative action (see the admin purge endpoint).
type AbuseRecord struct {
	Address         string    `json:"address"`
	Fingerprint     string    `json:"fingerprint"`
	UserAgent       string    `json:"userAgent"`
	FreeUsageCount  int       `json:"freeUsageCount"`
	AccountsCreated int       `json:"accountsCreated"`
	Banned          bool      `json:"banned"`
	VPN             bool      `json:"vpn"`
	Proxy           bool      `json:"proxy"`
	Datacenter      bool      `json:"datacenter"`
	CountryCode     *string   `json:"countryCode,omitempty"`
	RiskScore       int       `json:"riskScore"`
	LastActivity    time.Time `json:"lastActivity"`
	CreatedAt       time.Time `json:"createdAt"`
}

// NewAbuseRecord creates a record for a first-seen identity with zeroed
// counters. Flags are filled in by the signal collectors before persisting.
func NewAbuseRecord(address, userAgent, fingerprint string) *AbuseRecord {
	now := time.Now()
	return &AbuseRecord{
		Address:      address,
		UserAgent:    userAgent,
		Fingerprint:  fingerprint,
		LastActivity: now,
		CreatedAt:    now,
	}
}

// Validate checks record invariants before persisting.
func (r *AbuseRecord) Validate() error {
	if r.Address == "" {
		return fmt.Errorf("abuse record requires an address")
	}
	if r.RiskScore < 0 || r.RiskScore > 100 {
		return fmt.Errorf("risk score must be in [0,100], got %d", r.RiskScore)
	}
	if r.FreeUsageCount < 0 {
		return fmt.Errorf("free usage count must be non-negative, got %d", r.FreeUsageCount)
	}
	if r.AccountsCreated < 0 {
		return fmt.Errorf("accounts created must be non-negative, got %d", r.AccountsCreated)
	}
	return nil
}

// Flagged reports whether any network-infrastructure flag is set.
func (r *AbuseRecord) Flagged() bool {
	return r.Banned || r.VPN || r.Proxy || r.Datacenter
}
