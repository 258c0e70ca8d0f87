package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/openquill-team/riskgate/internal/models"
)

// MemoryStore is a map-backed Store and AccountStore guarded by a mutex.
// Records are copied on read and write so callers never share the stored
// structs.
type MemoryStore struct {
	mu       sync.RWMutex
	records  map[string]*models.AbuseRecord
	accounts map[uuid.UUID]*models.Account
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records:  make(map[string]*models.AbuseRecord),
		accounts: make(map[uuid.UUID]*models.Account),
	}
}

// Get returns a copy of the record for the address.
func (s *MemoryStore) Get(ctx context.Context, address string) (*models.AbuseRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[address]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

// Create persists a copy of the record.
func (s *MemoryStore) Create(ctx context.Context, rec *models.AbuseRecord) error {
	if err := rec.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *rec
	s.records[rec.Address] = &cp
	return nil
}

// Update applies a partial update under the store lock.
func (s *MemoryStore) Update(ctx context.Context, address string, patch Patch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[address]
	if !ok {
		return ErrNotFound
	}

	if patch.Fingerprint != nil {
		rec.Fingerprint = *patch.Fingerprint
	}
	if patch.UserAgent != nil {
		rec.UserAgent = *patch.UserAgent
	}
	if patch.Banned != nil {
		rec.Banned = *patch.Banned
	}
	if patch.VPN != nil {
		rec.VPN = *patch.VPN
	}
	if patch.Proxy != nil {
		rec.Proxy = *patch.Proxy
	}
	if patch.Datacenter != nil {
		rec.Datacenter = *patch.Datacenter
	}
	if patch.CountryCode != nil {
		rec.CountryCode = patch.CountryCode
	}
	if patch.RiskScore != nil {
		rec.RiskScore = *patch.RiskScore
	}
	return nil
}

// Touch refreshes the last-activity timestamp.
func (s *MemoryStore) Touch(ctx context.Context, address string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[address]
	if !ok {
		return ErrNotFound
	}
	if at.After(rec.LastActivity) {
		rec.LastActivity = at
	}
	return nil
}

// IncrementFreeUsage bumps the free-usage counter atomically.
func (s *MemoryStore) IncrementFreeUsage(ctx context.Context, address string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[address]
	if !ok {
		return ErrNotFound
	}
	rec.FreeUsageCount++
	return nil
}

// IncrementAccountsCreated bumps the signup counter atomically.
func (s *MemoryStore) IncrementAccountsCreated(ctx context.Context, address string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[address]
	if !ok {
		return ErrNotFound
	}
	rec.AccountsCreated++
	return nil
}

// PurgeStale deletes unbanned records with no activity since the cutoff.
func (s *MemoryStore) PurgeStale(ctx context.Context, olderThan time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var purged int64
	for addr, rec := range s.records {
		if !rec.Banned && rec.LastActivity.Before(olderThan) {
			delete(s.records, addr)
			purged++
		}
	}
	return purged, nil
}

// GetAccount returns a copy of the account.
func (s *MemoryStore) GetAccount(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	acct, ok := s.accounts[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *acct
	return &cp, nil
}

// CreateAccount persists a copy of the account.
func (s *MemoryStore) CreateAccount(ctx context.Context, acct *models.Account) error {
	if err := acct.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *acct
	s.accounts[acct.ID] = &cp
	return nil
}

// IncrementFreeArticles bumps the account's free-quota counter atomically.
func (s *MemoryStore) IncrementFreeArticles(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, ok := s.accounts[id]
	if !ok {
		return ErrNotFound
	}
	acct.FreeArticlesUsed++
	acct.UpdatedAt = time.Now()
	return nil
}

// DeductCredits subtracts from the balance, refusing to go negative.
func (s *MemoryStore) DeductCredits(ctx context.Context, id uuid.UUID, amount int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, ok := s.accounts[id]
	if !ok {
		return ErrNotFound
	}
	if acct.Credits < amount {
		return ErrInsufficientCredits
	}
	acct.Credits -= amount
	acct.UpdatedAt = time.Now()
	return nil
}
