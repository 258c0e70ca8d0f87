package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/openquill-team/riskgate/internal/gate"
	"github.com/openquill-team/riskgate/internal/models"
)

// GenerateArticleRequest represents the request body for the gated
// generation endpoint
type GenerateArticleRequest struct {
	AccountID string   `json:"accountId"`
	Topic     string   `json:"topic"`
	Keywords  []string `json:"keywords,omitempty"`
	Premium   bool     `json:"premium,omitempty"`
}

// GenerateArticleResponse represents a successful generation
type GenerateArticleResponse struct {
	Article          string      `json:"article"`
	Method           gate.Method `json:"method"`
	Price            int         `json:"price"`
	CreditsRemaining int         `json:"creditsRemaining"`
	FreeArticlesUsed int         `json:"freeArticlesUsed"`
	TokensUsed       int         `json:"tokensUsed"`
	Cost             float64     `json:"cost"`
}

// RiskRejectionResponse is returned for 403 (blocked) and 429
// (verification required) risk decisions
type RiskRejectionResponse struct {
	Error             string `json:"error"`
	Reason            string `json:"reason"`
	RiskScore         int    `json:"riskScore"`
	VerificationToken string `json:"verificationToken,omitempty"`
}

// PaymentRequiredResponse is returned for 402 tier rejections
type PaymentRequiredResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Price   int    `json:"price"`
}

// CreateAccountRequest represents the request body for account creation
type CreateAccountRequest struct {
	Email  string `json:"email"`
	APIKey string `json:"apiKey,omitempty"`
}

// AccountResponse represents an account's tier state
type AccountResponse struct {
	ID               uuid.UUID `json:"id"`
	Email            string    `json:"email"`
	Credits          int       `json:"credits"`
	FreeArticlesUsed int       `json:"freeArticlesUsed"`
	HasOwnAPIKey     bool      `json:"hasOwnApiKey"`
	CreatedAt        time.Time `json:"createdAt"`
}

// VerifyRequest represents the request body for challenge token redemption
type VerifyRequest struct {
	Token string `json:"token"`
}

// VerifyResponse confirms a redeemed challenge token
type VerifyResponse struct {
	Verified bool   `json:"verified"`
	Address  string `json:"address"`
}

// PatchAbuseRecordRequest represents an admin flag override. Only fields
// present in the body are applied.
type PatchAbuseRecordRequest struct {
	Banned      *bool   `json:"banned,omitempty"`
	VPN         *bool   `json:"vpn,omitempty"`
	Proxy       *bool   `json:"proxy,omitempty"`
	Datacenter  *bool   `json:"datacenter,omitempty"`
	CountryCode *string `json:"countryCode,omitempty"`
	RiskScore   *int    `json:"riskScore,omitempty"`
}

// PurgeRequest represents the admin retention request
type PurgeRequest struct {
	OlderThanDays int `json:"olderThanDays"`
}

// PurgeResponse reports how many stale records were removed
type PurgeResponse struct {
	Purged int64 `json:"purged"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// ToAccountResponse converts a models.Account to an AccountResponse. The
// stored API key never leaves the server.
func ToAccountResponse(a *models.Account) *AccountResponse {
	return &AccountResponse{
		ID:               a.ID,
		Email:            a.Email,
		Credits:          a.Credits,
		FreeArticlesUsed: a.FreeArticlesUsed,
		HasOwnAPIKey:     a.HasOwnAPIKey,
		CreatedAt:        a.CreatedAt,
	}
}
