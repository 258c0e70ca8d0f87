package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Account holds the business-tier state the usage gate consults: credit
// balance, free-quota consumption and whether the user supplied their own
// LLM API key. Risk state lives in AbuseRecord; the two are independent.
type Account struct {
	ID               uuid.UUID `json:"id"`
	Email            string    `json:"email"`
	Credits          int       `json:"credits"`
	FreeArticlesUsed int       `json:"freeArticlesUsed"`
	HasOwnAPIKey     bool      `json:"hasOwnApiKey"`
	APIKey           *string   `json:"-"` // never serialized
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// NewAccount creates a fresh account with no credits and an untouched free
// quota.
func NewAccount(email string) *Account {
	now := time.Now()
	return &Account{
		ID:        uuid.New(),
		Email:     email,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Validate checks account invariants.
func (a *Account) Validate() error {
	if a.ID == uuid.Nil {
		return fmt.Errorf("account requires an ID")
	}
	if a.Credits < 0 {
		return fmt.Errorf("credits must be non-negative, got %d", a.Credits)
	}
	if a.FreeArticlesUsed < 0 {
		return fmt.Errorf("free articles used must be non-negative, got %d", a.FreeArticlesUsed)
	}
	if a.HasOwnAPIKey && (a.APIKey == nil || *a.APIKey == "") {
		return fmt.Errorf("account claims an API key but none is stored")
	}
	return nil
}
