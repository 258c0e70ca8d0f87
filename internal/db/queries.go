package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/openquill-team/riskgate/internal/ledger"
	"github.com/openquill-team/riskgate/internal/models"
)

// Querier interface represents a database connection or transaction
type Querier interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// Queries provides database query methods. It implements ledger.Store and
// ledger.AccountStore on top of PostgreSQL; counter updates are expressed as
// atomic SQL increments so concurrent requests for the same key cannot lose
// updates.
type Queries struct {
	db Querier
}

// NewQueries creates a new Queries instance
func NewQueries(db Querier) *Queries {
	return &Queries{db: db}
}

// GetDB returns the underlying database connection
func (q *Queries) GetDB() Querier {
	return q.db
}

// Abuse ledger queries

// Get retrieves the abuse record for an address.
func (q *Queries) Get(ctx context.Context, address string) (*models.AbuseRecord, error) {
	query := `
		SELECT address, fingerprint, user_agent, free_usage_count, accounts_created,
		       banned, vpn, proxy, datacenter, country_code, risk_score,
		       last_activity, created_at
		FROM abuse_records
		WHERE address = $1
	`

	var rec models.AbuseRecord
	err := q.db.QueryRowContext(ctx, query, address).Scan(
		&rec.Address,
		&rec.Fingerprint,
		&rec.UserAgent,
		&rec.FreeUsageCount,
		&rec.AccountsCreated,
		&rec.Banned,
		&rec.VPN,
		&rec.Proxy,
		&rec.Datacenter,
		&rec.CountryCode,
		&rec.RiskScore,
		&rec.LastActivity,
		&rec.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ledger.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get abuse record: %w", err)
	}
	return &rec, nil
}

// Create inserts a first-sighting abuse record.
func (q *Queries) Create(ctx context.Context, rec *models.AbuseRecord) error {
	if err := rec.Validate(); err != nil {
		return err
	}

	query := `
		INSERT INTO abuse_records
			(address, fingerprint, user_agent, free_usage_count, accounts_created,
			 banned, vpn, proxy, datacenter, country_code, risk_score,
			 last_activity, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (address) DO NOTHING
	`

	_, err := q.db.ExecContext(ctx, query,
		rec.Address,
		rec.Fingerprint,
		rec.UserAgent,
		rec.FreeUsageCount,
		rec.AccountsCreated,
		rec.Banned,
		rec.VPN,
		rec.Proxy,
		rec.Datacenter,
		rec.CountryCode,
		rec.RiskScore,
		rec.LastActivity,
		rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert abuse record: %w", err)
	}
	return nil
}

// Update applies a partial update to an abuse record.
func (q *Queries) Update(ctx context.Context, address string, patch ledger.Patch) error {
	query := `
		UPDATE abuse_records SET
			fingerprint  = COALESCE($2, fingerprint),
			user_agent   = COALESCE($3, user_agent),
			banned       = COALESCE($4, banned),
			vpn          = COALESCE($5, vpn),
			proxy        = COALESCE($6, proxy),
			datacenter   = COALESCE($7, datacenter),
			country_code = COALESCE($8, country_code),
			risk_score   = COALESCE($9, risk_score)
		WHERE address = $1
	`

	result, err := q.db.ExecContext(ctx, query,
		address,
		patch.Fingerprint,
		patch.UserAgent,
		patch.Banned,
		patch.VPN,
		patch.Proxy,
		patch.Datacenter,
		patch.CountryCode,
		patch.RiskScore,
	)
	if err != nil {
		return fmt.Errorf("failed to update abuse record: %w", err)
	}
	return requireRow(result)
}

// Touch refreshes last activity, never moving it backwards.
func (q *Queries) Touch(ctx context.Context, address string, at time.Time) error {
	query := `
		UPDATE abuse_records
		SET last_activity = GREATEST(last_activity, $2)
		WHERE address = $1
	`
	result, err := q.db.ExecContext(ctx, query, address, at)
	if err != nil {
		return fmt.Errorf("failed to touch abuse record: %w", err)
	}
	return requireRow(result)
}

// IncrementFreeUsage bumps the free-usage counter atomically.
func (q *Queries) IncrementFreeUsage(ctx context.Context, address string) error {
	query := `
		UPDATE abuse_records
		SET free_usage_count = free_usage_count + 1
		WHERE address = $1
	`
	result, err := q.db.ExecContext(ctx, query, address)
	if err != nil {
		return fmt.Errorf("failed to increment free usage: %w", err)
	}
	return requireRow(result)
}

// IncrementAccountsCreated bumps the signup counter atomically.
func (q *Queries) IncrementAccountsCreated(ctx context.Context, address string) error {
	query := `
		UPDATE abuse_records
		SET accounts_created = accounts_created + 1
		WHERE address = $1
	`
	result, err := q.db.ExecContext(ctx, query, address)
	if err != nil {
		return fmt.Errorf("failed to increment accounts created: %w", err)
	}
	return requireRow(result)
}

// PurgeStale deletes unbanned records with no activity since the cutoff.
func (q *Queries) PurgeStale(ctx context.Context, olderThan time.Time) (int64, error) {
	query := `
		DELETE FROM abuse_records
		WHERE banned = FALSE AND last_activity < $1
	`
	result, err := q.db.ExecContext(ctx, query, olderThan)
	if err != nil {
		return 0, fmt.Errorf("failed to purge stale records: %w", err)
	}
	purged, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count purged records: %w", err)
	}
	return purged, nil
}

// Account queries

// GetAccount retrieves an account by ID.
func (q *Queries) GetAccount(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	query := `
		SELECT id, email, credits, free_articles_used, has_own_api_key, api_key,
		       created_at, updated_at
		FROM accounts
		WHERE id = $1
	`

	var acct models.Account
	err := q.db.QueryRowContext(ctx, query, id).Scan(
		&acct.ID,
		&acct.Email,
		&acct.Credits,
		&acct.FreeArticlesUsed,
		&acct.HasOwnAPIKey,
		&acct.APIKey,
		&acct.CreatedAt,
		&acct.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ledger.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return &acct, nil
}

// CreateAccount inserts a new account.
func (q *Queries) CreateAccount(ctx context.Context, acct *models.Account) error {
	if err := acct.Validate(); err != nil {
		return err
	}

	query := `
		INSERT INTO accounts
			(id, email, credits, free_articles_used, has_own_api_key, api_key,
			 created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := q.db.ExecContext(ctx, query,
		acct.ID,
		acct.Email,
		acct.Credits,
		acct.FreeArticlesUsed,
		acct.HasOwnAPIKey,
		acct.APIKey,
		acct.CreatedAt,
		acct.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert account: %w", err)
	}
	return nil
}

// IncrementFreeArticles bumps the account's free-quota counter atomically.
func (q *Queries) IncrementFreeArticles(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE accounts
		SET free_articles_used = free_articles_used + 1, updated_at = NOW()
		WHERE id = $1
	`
	result, err := q.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to increment free articles: %w", err)
	}
	return requireRow(result)
}

// DeductCredits subtracts from the balance. The guard in the WHERE clause
// makes the check-and-deduct a single atomic statement, so two concurrent
// requests cannot both spend the last credits.
func (q *Queries) DeductCredits(ctx context.Context, id uuid.UUID, amount int) error {
	query := `
		UPDATE accounts
		SET credits = credits - $2, updated_at = NOW()
		WHERE id = $1 AND credits >= $2
	`
	result, err := q.db.ExecContext(ctx, query, id, amount)
	if err != nil {
		return fmt.Errorf("failed to deduct credits: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check deduction: %w", err)
	}
	if affected == 0 {
		// Distinguish a missing account from an underfunded one.
		if _, gerr := q.GetAccount(ctx, id); gerr != nil {
			return gerr
		}
		return ledger.ErrInsufficientCredits
	}
	return nil
}

// Decision audit log

// DecisionLog is one audited risk/gate decision, kept for support-desk
// triage and appeals.
type DecisionLog struct {
	ID        uuid.UUID
	Address   string
	Score     int
	Decision  string
	Reason    string
	Method    string
	Degraded  bool
	CreatedAt time.Time
}

// LogDecision appends a decision to the audit log.
func (q *Queries) LogDecision(ctx context.Context, entry *DecisionLog) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO decision_log
			(id, address, score, decision, reason, method, degraded, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := q.db.ExecContext(ctx, query,
		entry.ID,
		entry.Address,
		entry.Score,
		entry.Decision,
		entry.Reason,
		entry.Method,
		entry.Degraded,
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert decision log: %w", err)
	}
	return nil
}

func requireRow(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check affected rows: %w", err)
	}
	if affected == 0 {
		return ledger.ErrNotFound
	}
	return nil
}
