// Package ledger defines the persistent per-identity abuse record store and
// the account store the usage gate mutates. Production deployments back both
// with PostgreSQL (internal/db); the in-memory implementation here serves
// tests and database-less development.
package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/openquill-team/riskgate/internal/models"
)

var (
	// ErrNotFound is returned when no record exists for the given key.
	ErrNotFound = errors.New("record not found")

	// ErrInsufficientCredits is returned when a deduction would drive a
	// credit balance negative.
	ErrInsufficientCredits = errors.New("insufficient credits")
)

// Patch is a partial update to an abuse record. Only non-nil fields are
// applied, so callers state exactly what they change.
type Patch struct {
	Fingerprint *string
	UserAgent   *string
	Banned      *bool
	VPN         *bool
	Proxy       *bool
	Datacenter  *bool
	CountryCode *string
	RiskScore   *int
}

// Store is the abuse ledger consumed by the risk scorer and the admin API.
// Implementations must support safe concurrent read-modify-write per key:
// two simultaneous requests from the same identity must not lose counter
// updates.
type Store interface {
	// Get returns the record for the address, or ErrNotFound.
	Get(ctx context.Context, address string) (*models.AbuseRecord, error)

	// Create persists a first-sighting record.
	Create(ctx context.Context, rec *models.AbuseRecord) error

	// Update applies a partial update to an existing record.
	Update(ctx context.Context, address string, patch Patch) error

	// Touch refreshes the record's last-activity timestamp.
	Touch(ctx context.Context, address string, at time.Time) error

	// IncrementFreeUsage bumps the free-usage counter. The counter is
	// monotonically non-decreasing except through an explicit admin patch.
	IncrementFreeUsage(ctx context.Context, address string) error

	// IncrementAccountsCreated bumps the accounts-created counter for the
	// address an account signup originated from.
	IncrementAccountsCreated(ctx context.Context, address string) error

	// PurgeStale deletes records whose last activity predates the cutoff
	// and which carry no ban. Invoked only through the admin API; the
	// ledger never evicts on its own.
	PurgeStale(ctx context.Context, olderThan time.Time) (int64, error)
}

// AccountStore is the business-tier state store the usage gate consults and
// mutates after a successful generation.
type AccountStore interface {
	GetAccount(ctx context.Context, id uuid.UUID) (*models.Account, error)
	CreateAccount(ctx context.Context, acct *models.Account) error

	// IncrementFreeArticles bumps the free-quota usage counter.
	IncrementFreeArticles(ctx context.Context, id uuid.UUID) error

	// DeductCredits subtracts amount from the balance, failing with
	// ErrInsufficientCredits rather than going negative.
	DeductCredits(ctx context.Context, id uuid.UUID, amount int) error
}
