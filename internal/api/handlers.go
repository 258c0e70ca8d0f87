package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/openquill-team/riskgate/internal/db"
	"github.com/openquill-team/riskgate/internal/events"
	"github.com/openquill-team/riskgate/internal/gate"
	"github.com/openquill-team/riskgate/internal/generator"
	"github.com/openquill-team/riskgate/internal/identity"
	"github.com/openquill-team/riskgate/internal/ledger"
	"github.com/openquill-team/riskgate/internal/models"
	"github.com/openquill-team/riskgate/internal/risk"
	"github.com/openquill-team/riskgate/internal/telemetry"
	"github.com/openquill-team/riskgate/internal/verify"
)

// fingerprintHeader carries the optional client-side fingerprint.
const fingerprintHeader = "X-Client-Fingerprint"

// ScorerInterface defines the interface for risk scoring
// This allows for mocking in tests
type ScorerInterface interface {
	Score(ctx context.Context, id identity.Identity) risk.Assessment
	ForceRecheck(ctx context.Context, id identity.Identity) (risk.Assessment, error)
}

// GeneratorInterface defines the interface for AI article generation
type GeneratorInterface interface {
	Generate(ctx context.Context, req generator.Request) (*generator.Result, error)
	ValidateInput(topic string) error
}

// DecisionLoggerInterface defines the interface for the decision audit log
type DecisionLoggerInterface interface {
	LogDecision(ctx context.Context, entry *db.DecisionLog) error
}

// Handlers holds the HTTP handlers and dependencies
type Handlers struct {
	scorer      ScorerInterface
	gate        *gate.Gate
	generator   GeneratorInterface
	store       ledger.Store
	accounts    ledger.AccountStore
	issuer      *verify.Issuer
	hub         *events.Hub
	decisionLog DecisionLoggerInterface
}

// NewHandlers creates a new Handlers instance
func NewHandlers(scorer ScorerInterface, g *gate.Gate, gen GeneratorInterface, store ledger.Store, accounts ledger.AccountStore) *Handlers {
	return &Handlers{
		scorer:    scorer,
		gate:      g,
		generator: gen,
		store:     store,
		accounts:  accounts,
	}
}

// SetVerifier sets the challenge token issuer. Without it, verification-
// required responses omit the token.
func (h *Handlers) SetVerifier(issuer *verify.Issuer) {
	h.issuer = issuer
}

// SetEventHub sets the decision event hub for the admin live stream
func (h *Handlers) SetEventHub(hub *events.Hub) {
	h.hub = hub
}

// SetDecisionLogger sets the audit log for risk/gate decisions
func (h *Handlers) SetDecisionLogger(l DecisionLoggerInterface) {
	h.decisionLog = l
}

// resolveIdentity builds the requester identity from the request. The
// address comes from trusted-proxy extraction, never raw headers.
func resolveIdentity(c echo.Context) identity.Identity {
	return identity.Resolve(
		getClientIP(c),
		c.Request().UserAgent(),
		c.Request().Header.Get(fingerprintHeader),
	)
}

// recordDecision publishes the assessment to metrics, the event hub and the
// audit log. All three are observability side channels; none may fail the
// request.
func (h *Handlers) recordDecision(c echo.Context, id identity.Identity, a risk.Assessment, method gate.Method) {
	decision := events.DecisionAllow
	switch {
	case !a.Allowed:
		decision = events.DecisionBlock
	case a.RequiresVerification:
		decision = events.DecisionVerify
	}

	telemetry.RiskDecisionsTotal.WithLabelValues(decision).Inc()
	telemetry.RiskScore.Observe(float64(a.Score))
	if a.Degraded {
		telemetry.DetectionDegradedTotal.Inc()
	}

	if h.hub != nil {
		h.hub.Publish(events.DecisionEvent{
			Address:   id.Address,
			Score:     a.Score,
			Decision:  decision,
			Reasons:   a.Reasons,
			Degraded:  a.Degraded,
			Timestamp: time.Now(),
		})
	}

	if h.decisionLog != nil {
		if err := h.decisionLog.LogDecision(c.Request().Context(), &db.DecisionLog{
			Address:  id.Address,
			Score:    a.Score,
			Decision: decision,
			Reason:   a.Reason(),
			Method:   string(method),
			Degraded: a.Degraded,
		}); err != nil {
			c.Logger().Errorf("Failed to log decision for %s: %v", id.Address, err)
		}
	}
}

// GenerateArticle runs the full gated pipeline: validation, identity, risk
// scoring, tier eligibility, generation, commit.
// POST /api/v1/articles/generate
func (h *Handlers) GenerateArticle(c echo.Context) error {
	var req GenerateArticleRequest
	if err := c.Bind(&req); err != nil {
		return ValidationError(c, "Invalid request body", err.Error())
	}

	accountID, err := uuid.Parse(req.AccountID)
	if err != nil {
		return ValidationError(c, "Invalid account ID", "accountId must be a UUID")
	}

	if strings.TrimSpace(req.Topic) == "" {
		return ValidationError(c, "Topic cannot be empty", "")
	}
	if err := h.generator.ValidateInput(req.Topic); err != nil {
		if errors.Is(err, generator.ErrBlockedPattern) {
			return ValidationError(c, "Topic contains blocked pattern", "Your input was flagged for potentially unsafe content")
		}
		return ValidationError(c, "Invalid topic", err.Error())
	}

	ctx := c.Request().Context()
	id := resolveIdentity(c)

	// Risk decision comes before any tier logic; a blocked identity never
	// learns about pricing.
	assessment := h.scorer.Score(ctx, id)

	if !assessment.Allowed {
		h.recordDecision(c, id, assessment, gate.MethodBlocked)
		return c.JSON(http.StatusForbidden, RiskRejectionResponse{
			Error:     "Request blocked by fraud protection",
			Reason:    assessment.Reason(),
			RiskScore: assessment.Score,
		})
	}

	if assessment.RequiresVerification {
		h.recordDecision(c, id, assessment, "")
		resp := RiskRejectionResponse{
			Error:     "Verification required",
			Reason:    assessment.Reason(),
			RiskScore: assessment.Score,
		}
		if h.issuer != nil {
			token, terr := h.issuer.Issue(id.Key(), assessment.Score)
			if terr != nil {
				c.Logger().Errorf("Failed to issue verification token for %s: %v", id.Key(), terr)
			} else {
				resp.VerificationToken = token
			}
		}
		return c.JSON(http.StatusTooManyRequests, resp)
	}

	acct, err := h.accounts.GetAccount(ctx, accountID)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			return c.JSON(http.StatusNotFound, ErrorResponse{
				Error: "Account not found",
			})
		}
		return InternalServerError(c, "Failed to retrieve account", err)
	}

	elig := h.gate.CheckEligibility(acct, assessment, req.Premium)
	telemetry.GateDecisionsTotal.WithLabelValues(string(elig.Method)).Inc()
	h.recordDecision(c, id, assessment, elig.Method)

	if !elig.Allowed {
		if elig.Method == gate.MethodPaymentRequired {
			return c.JSON(http.StatusPaymentRequired, PaymentRequiredResponse{
				Error:   "Payment required",
				Message: elig.Message,
				Price:   elig.Price,
			})
		}
		return c.JSON(http.StatusForbidden, RiskRejectionResponse{
			Error:     "Request blocked by fraud protection",
			Reason:    assessment.Reason(),
			RiskScore: assessment.Score,
		})
	}

	result, err := h.generator.Generate(ctx, generator.Request{
		Topic:    req.Topic,
		Keywords: req.Keywords,
		Premium:  req.Premium,
	})
	if err != nil {
		switch {
		case errors.Is(err, generator.ErrEmptyInput),
			errors.Is(err, generator.ErrInputTooLong),
			errors.Is(err, generator.ErrBlockedPattern):
			return ValidationError(c, "Invalid topic", err.Error())
		case errors.Is(err, generator.ErrCostLimitExceeded):
			return c.JSON(http.StatusServiceUnavailable, ErrorResponse{
				Error: "Generation budget exceeded. Please try again later.",
			})
		default:
			return InternalServerError(c, "Article generation failed", err)
		}
	}

	telemetry.GenerationCostTotal.Add(result.EstimatedCost)

	// Tier mutations happen only now, after the article exists. Failures
	// here are a billing problem, not the user's: log and return the article.
	if err := h.gate.Commit(ctx, h.accounts, acct, elig); err != nil {
		c.Logger().Errorf("Failed to commit eligibility %s for account %s: %v", elig.Method, acct.ID, err)
	}
	if elig.Method == gate.MethodFree || elig.Method == gate.MethodFreeAPI {
		if err := h.store.IncrementFreeUsage(ctx, id.Key()); err != nil && !errors.Is(err, ledger.ErrNotFound) {
			c.Logger().Errorf("Failed to increment free usage for %s: %v", id.Key(), err)
		}
	}

	// Re-read for the post-commit counters; fall back to the stale copy.
	if updated, gerr := h.accounts.GetAccount(ctx, accountID); gerr == nil {
		acct = updated
	}

	return c.JSON(http.StatusOK, GenerateArticleResponse{
		Article:          result.Article,
		Method:           elig.Method,
		Price:            elig.Price,
		CreditsRemaining: acct.Credits,
		FreeArticlesUsed: acct.FreeArticlesUsed,
		TokensUsed:       result.InputTokens + result.OutputTokens,
		Cost:             result.EstimatedCost,
	})
}

// CreateAccount creates a new account and ties the signup to the abuse
// record of the originating address
// POST /api/v1/accounts
func (h *Handlers) CreateAccount(c echo.Context) error {
	var req CreateAccountRequest
	if err := c.Bind(&req); err != nil {
		return ValidationError(c, "Invalid request body", err.Error())
	}
	if strings.TrimSpace(req.Email) == "" {
		return ValidationError(c, "Email cannot be empty", "")
	}

	acct := models.NewAccount(strings.TrimSpace(req.Email))
	if req.APIKey != "" {
		key := req.APIKey
		acct.APIKey = &key
		acct.HasOwnAPIKey = true
	}

	ctx := c.Request().Context()
	if err := h.accounts.CreateAccount(ctx, acct); err != nil {
		return InternalServerError(c, "Failed to create account", err)
	}

	// Multiple signups from one address feed the abuse signal. Best effort:
	// first-time addresses have no record yet.
	id := resolveIdentity(c)
	if err := h.store.IncrementAccountsCreated(ctx, id.Key()); err != nil && !errors.Is(err, ledger.ErrNotFound) {
		c.Logger().Errorf("Failed to increment accounts created for %s: %v", id.Key(), err)
	}

	return c.JSON(http.StatusCreated, ToAccountResponse(acct))
}

// GetAccount retrieves an account's tier state
// GET /api/v1/accounts/:id
func (h *Handlers) GetAccount(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return ValidationError(c, "Invalid account ID", "id must be a UUID")
	}

	acct, err := h.accounts.GetAccount(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			return c.JSON(http.StatusNotFound, ErrorResponse{
				Error: "Account not found",
			})
		}
		return InternalServerError(c, "Failed to retrieve account", err)
	}

	return c.JSON(http.StatusOK, ToAccountResponse(acct))
}

// VerifyChallenge redeems a verification challenge token. A valid token
// clears the soft infrastructure flags on the abuse record; bans survive.
// POST /api/v1/verify
func (h *Handlers) VerifyChallenge(c echo.Context) error {
	if h.issuer == nil {
		return c.JSON(http.StatusServiceUnavailable, ErrorResponse{
			Error: "Verification is not available",
		})
	}

	var req VerifyRequest
	if err := c.Bind(&req); err != nil {
		return ValidationError(c, "Invalid request body", err.Error())
	}
	if req.Token == "" {
		return ValidationError(c, "Token cannot be empty", "")
	}

	claims, err := h.issuer.Validate(req.Token)
	if err != nil {
		if errors.Is(err, verify.ErrTokenExpired) {
			return c.JSON(http.StatusGone, ErrorResponse{
				Error: "Verification token expired",
			})
		}
		return ValidationError(c, "Invalid verification token", "")
	}

	cleared := false
	err = h.store.Update(c.Request().Context(), claims.IdentityKey, ledger.Patch{
		Proxy:      &cleared,
		Datacenter: &cleared,
	})
	if err != nil && !errors.Is(err, ledger.ErrNotFound) {
		return InternalServerError(c, "Failed to apply verification", err)
	}

	return c.JSON(http.StatusOK, VerifyResponse{
		Verified: true,
		Address:  claims.IdentityKey,
	})
}

// Health Check Handlers

// DBChecker is an interface for checking database connectivity
// This allows for mocking in tests
type DBChecker interface {
	PingContext(ctx context.Context) error
}

// HealthHandlers holds health check dependencies
type HealthHandlers struct {
	db DBChecker
}

// NewHealthHandlers creates a new HealthHandlers instance. A nil checker
// marks the database check as skipped (memory-backed deployments).
func NewHealthHandlers(db DBChecker) *HealthHandlers {
	return &HealthHandlers{
		db: db,
	}
}

// HealthResponse represents the liveness probe response
type HealthResponse struct {
	Status    string `json:"status"`
	Service   string `json:"service"`
	Timestamp string `json:"timestamp"`
}

// ReadinessResponse represents the readiness probe response
type ReadinessResponse struct {
	Status  string            `json:"status"`
	Service string            `json:"service"`
	Checks  map[string]string `json:"checks"`
}

// Health returns a basic liveness check
// GET /health
func (hh *HealthHandlers) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{
		Status:    "healthy",
		Service:   "riskgate-api",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// Readiness returns a readiness check with DB connectivity
// GET /health/ready
func (hh *HealthHandlers) Readiness(c echo.Context) error {
	checks := make(map[string]string)
	status := "ready"

	if hh.db == nil {
		checks["database"] = "skipped (memory store)"
	} else if err := hh.db.PingContext(c.Request().Context()); err != nil {
		checks["database"] = "unhealthy: " + err.Error()
		status = "not_ready"
	} else {
		checks["database"] = "healthy"
	}

	httpStatus := http.StatusOK
	if status == "not_ready" {
		httpStatus = http.StatusServiceUnavailable
	}

	return c.JSON(httpStatus, ReadinessResponse{
		Status:  status,
		Service: "riskgate-api",
		Checks:  checks,
	})
}
