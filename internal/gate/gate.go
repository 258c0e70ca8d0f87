// Package gate implements the pricing/eligibility decision layered on top of
// (and subordinate to) the risk decision. Eligibility is a pure function of
// the account's tier state and a fixed rule table; the side effects on the
// account happen only after the gated generation itself succeeds.
package gate

import (
	"context"
	"fmt"

	"github.com/openquill-team/riskgate/internal/ledger"
	"github.com/openquill-team/riskgate/internal/models"
	"github.com/openquill-team/riskgate/internal/risk"
)

// Method names the branch of the rule table that matched.
type Method string

const (
	MethodFree            Method = "free"
	MethodFreeAPI         Method = "free_api"
	MethodCredits         Method = "credits"
	MethodPaymentRequired Method = "payment_required"
	MethodBlocked         Method = "blocked"
)

// Pricing is the fixed rule table's tunable half.
type Pricing struct {
	// FreeAPIQuota is how many free articles an account with its own LLM
	// API key gets before credits kick in.
	FreeAPIQuota int `yaml:"free_api_quota"`

	// APIKeyCreditCost is the per-article credit cost once an API-key
	// account exhausts its free quota.
	APIKeyCreditCost int `yaml:"api_key_credit_cost"`

	// StandardCreditCost is the per-article credit cost for accounts
	// without their own key.
	StandardCreditCost int `yaml:"standard_credit_cost"`

	// PremiumPrice and PremiumCreditCost cover the premium article variant.
	PremiumPrice      int `yaml:"premium_price"`
	PremiumCreditCost int `yaml:"premium_credit_cost"`
}

// DefaultPricing mirrors the production tier rules: first use free for
// everyone, 4 free uses with an own API key, then 1 credit per article with
// a key or 3 without, premium at price 10 / 5 credits.
var DefaultPricing = Pricing{
	FreeAPIQuota:       4,
	APIKeyCreditCost:   1,
	StandardCreditCost: 3,
	PremiumPrice:       10,
	PremiumCreditCost:  5,
}

// Eligibility is the gate's decision for one request.
type Eligibility struct {
	Allowed    bool   `json:"allowed"`
	Method     Method `json:"method"`
	Price      int    `json:"price"`
	CreditCost int    `json:"creditCost"`
	Message    string `json:"message,omitempty"`
}

// Gate evaluates eligibility and applies post-success mutations.
type Gate struct {
	pricing Pricing
}

// New creates a gate with the default rule table.
func New() *Gate {
	return &Gate{pricing: DefaultPricing}
}

// NewWith creates a gate with explicit pricing. Zero-valued fields fall back
// to the defaults.
func NewWith(p Pricing) *Gate {
	if p.FreeAPIQuota == 0 {
		p.FreeAPIQuota = DefaultPricing.FreeAPIQuota
	}
	if p.APIKeyCreditCost == 0 {
		p.APIKeyCreditCost = DefaultPricing.APIKeyCreditCost
	}
	if p.StandardCreditCost == 0 {
		p.StandardCreditCost = DefaultPricing.StandardCreditCost
	}
	if p.PremiumPrice == 0 {
		p.PremiumPrice = DefaultPricing.PremiumPrice
	}
	if p.PremiumCreditCost == 0 {
		p.PremiumCreditCost = DefaultPricing.PremiumCreditCost
	}
	return &Gate{pricing: p}
}

// CheckEligibility walks the rule table in priority order; the first match
// wins. It never mutates the account; Commit does that after the gated
// operation succeeds.
func (g *Gate) CheckEligibility(acct *models.Account, assessment risk.Assessment, premium bool) Eligibility {
	// 1. Risk rejection beats every tier.
	if !assessment.Allowed {
		return Eligibility{
			Allowed: false,
			Method:  MethodBlocked,
			Message: "Request blocked by fraud protection: " + assessment.Reason(),
		}
	}

	// 2. First use is always free, for any identity.
	if acct.FreeArticlesUsed == 0 {
		return Eligibility{Allowed: true, Method: MethodFree, Price: 0}
	}

	// 3–4. Accounts supplying their own LLM key get an extended free quota,
	// then a reduced credit price.
	if acct.HasOwnAPIKey {
		if acct.FreeArticlesUsed < g.pricing.FreeAPIQuota {
			return Eligibility{Allowed: true, Method: MethodFreeAPI, Price: 0}
		}
		if acct.Credits >= g.pricing.APIKeyCreditCost {
			return Eligibility{
				Allowed:    true,
				Method:     MethodCredits,
				Price:      g.pricing.APIKeyCreditCost,
				CreditCost: g.pricing.APIKeyCreditCost,
			}
		}
		return Eligibility{
			Allowed: false,
			Method:  MethodPaymentRequired,
			Price:   g.pricing.APIKeyCreditCost,
			Message: "Free quota exhausted and no credits remaining",
		}
	}

	// 5. No API key, beyond the first free use.
	price := g.pricing.StandardCreditCost
	cost := g.pricing.StandardCreditCost
	if premium {
		price = g.pricing.PremiumPrice
		cost = g.pricing.PremiumCreditCost
	}
	if acct.Credits >= cost {
		return Eligibility{Allowed: true, Method: MethodCredits, Price: price, CreditCost: cost}
	}
	return Eligibility{
		Allowed: false,
		Method:  MethodPaymentRequired,
		Price:   price,
		Message: "Not enough credits for this article",
	}
}

// Commit applies the successful-generation side effect: free branches bump
// the free-usage counter, credit branches deduct the credit cost. It must be
// called only after the gated operation succeeded, never speculatively.
func (g *Gate) Commit(ctx context.Context, accounts ledger.AccountStore, acct *models.Account, elig Eligibility) error {
	if !elig.Allowed {
		return fmt.Errorf("cannot commit a rejected eligibility (%s)", elig.Method)
	}

	switch elig.Method {
	case MethodFree, MethodFreeAPI:
		return accounts.IncrementFreeArticles(ctx, acct.ID)
	case MethodCredits:
		return accounts.DeductCredits(ctx, acct.ID, elig.CreditCost)
	default:
		return fmt.Errorf("unexpected eligibility method %q", elig.Method)
	}
}
