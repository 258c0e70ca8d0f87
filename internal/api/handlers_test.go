package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openquill-team/riskgate/internal/gate"
	"github.com/openquill-team/riskgate/internal/generator"
	"github.com/openquill-team/riskgate/internal/identity"
	"github.com/openquill-team/riskgate/internal/ledger"
	"github.com/openquill-team/riskgate/internal/models"
	"github.com/openquill-team/riskgate/internal/risk"
	"github.com/openquill-team/riskgate/internal/verify"
)

// testClientIP is the address httptest.NewRequest assigns to RemoteAddr.
const testClientIP = "192.0.2.1"

// stubScorer returns a canned assessment, bypassing detection entirely
type stubScorer struct {
	assessment risk.Assessment
	recheck    risk.Assessment
	recheckErr error
}

func (s *stubScorer) Score(ctx context.Context, id identity.Identity) risk.Assessment {
	return s.assessment
}

func (s *stubScorer) ForceRecheck(ctx context.Context, id identity.Identity) (risk.Assessment, error) {
	return s.recheck, s.recheckErr
}

// stubGenerator returns a canned article or error
type stubGenerator struct {
	result      *generator.Result
	err         error
	validateErr error
}

func (g *stubGenerator) Generate(ctx context.Context, req generator.Request) (*generator.Result, error) {
	return g.result, g.err
}

func (g *stubGenerator) ValidateInput(topic string) error {
	return g.validateErr
}

func allowAssessment() risk.Assessment {
	return risk.Assessment{Allowed: true, Score: 0}
}

func blockAssessment() risk.Assessment {
	return risk.Assessment{
		Allowed: false,
		Score:   90,
		Reasons: []string{"VPN provider detected"},
	}
}

func verifyAssessment() risk.Assessment {
	return risk.Assessment{
		Allowed:              true,
		RequiresVerification: true,
		Score:                60,
		Reasons:              []string{"Suspicious user agent"},
	}
}

type testFixture struct {
	e       *echo.Echo
	store   *ledger.MemoryStore
	scorer  *stubScorer
	gen     *stubGenerator
	h       *Handlers
	issuer  *verify.Issuer
	account *models.Account
}

func setupTest(t *testing.T) *testFixture {
	t.Helper()

	store := ledger.NewMemoryStore()
	scorer := &stubScorer{assessment: allowAssessment()}
	gen := &stubGenerator{result: &generator.Result{
		Article:       "A generated article.",
		InputTokens:   100,
		OutputTokens:  800,
		EstimatedCost: 0.0005,
	}}

	h := NewHandlers(scorer, gate.New(), gen, store, store)

	issuer, err := verify.NewIssuer("test-secret-0123456789abcdef")
	require.NoError(t, err)
	h.SetVerifier(issuer)

	acct := models.NewAccount("writer@example.com")
	require.NoError(t, store.CreateAccount(context.Background(), acct))

	return &testFixture{
		e:       echo.New(),
		store:   store,
		scorer:  scorer,
		gen:     gen,
		h:       h,
		issuer:  issuer,
		account: acct,
	}
}

func (f *testFixture) generateRequest(t *testing.T, body GenerateArticleRequest) (*httptest.ResponseRecorder, echo.Context) {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/articles/generate", bytes.NewReader(payload))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	return rec, f.e.NewContext(req, rec)
}

func TestGenerateArticle_FirstUseFree(t *testing.T) {
	f := setupTest(t)
	ctx := context.Background()

	// Pre-existing abuse record so the ledger counter bump is observable.
	require.NoError(t, f.store.Create(ctx, models.NewAbuseRecord(testClientIP, "", "")))

	rec, c := f.generateRequest(t, GenerateArticleRequest{
		AccountID: f.account.ID.String(),
		Topic:     "container gardening",
	})

	require.NoError(t, f.h.GenerateArticle(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp GenerateArticleResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "A generated article.", resp.Article)
	assert.Equal(t, gate.MethodFree, resp.Method)
	assert.Equal(t, 0, resp.Price)
	assert.Equal(t, 1, resp.FreeArticlesUsed)

	stored, err := f.store.Get(ctx, testClientIP)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.FreeUsageCount)
}

func TestGenerateArticle_Blocked403(t *testing.T) {
	f := setupTest(t)
	f.scorer.assessment = blockAssessment()

	rec, c := f.generateRequest(t, GenerateArticleRequest{
		AccountID: f.account.ID.String(),
		Topic:     "container gardening",
	})

	require.NoError(t, f.h.GenerateArticle(c))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	var resp RiskRejectionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 90, resp.RiskScore)
	assert.Contains(t, resp.Reason, "VPN provider detected")
	assert.Empty(t, resp.VerificationToken)
}

func TestGenerateArticle_VerificationRequired429(t *testing.T) {
	f := setupTest(t)
	f.scorer.assessment = verifyAssessment()

	rec, c := f.generateRequest(t, GenerateArticleRequest{
		AccountID: f.account.ID.String(),
		Topic:     "container gardening",
	})

	require.NoError(t, f.h.GenerateArticle(c))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	var resp RiskRejectionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 60, resp.RiskScore)
	require.NotEmpty(t, resp.VerificationToken)

	// The token must redeem against the same identity key.
	claims, err := f.issuer.Validate(resp.VerificationToken)
	require.NoError(t, err)
	assert.Equal(t, testClientIP, claims.IdentityKey)
	assert.Equal(t, 60, claims.Score)
}

func TestGenerateArticle_PaymentRequired402(t *testing.T) {
	f := setupTest(t)
	ctx := context.Background()

	// Free use consumed, no credits.
	require.NoError(t, f.store.IncrementFreeArticles(ctx, f.account.ID))

	rec, c := f.generateRequest(t, GenerateArticleRequest{
		AccountID: f.account.ID.String(),
		Topic:     "container gardening",
	})

	require.NoError(t, f.h.GenerateArticle(c))
	assert.Equal(t, http.StatusPaymentRequired, rec.Code)

	var resp PaymentRequiredResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, gate.DefaultPricing.StandardCreditCost, resp.Price)
	assert.NotEmpty(t, resp.Message)
}

func TestGenerateArticle_PremiumDeductsCredits(t *testing.T) {
	f := setupTest(t)
	ctx := context.Background()

	acct := models.NewAccount("premium@example.com")
	acct.Credits = 10
	acct.FreeArticlesUsed = 1
	require.NoError(t, f.store.CreateAccount(ctx, acct))

	rec, c := f.generateRequest(t, GenerateArticleRequest{
		AccountID: acct.ID.String(),
		Topic:     "container gardening",
		Premium:   true,
	})

	require.NoError(t, f.h.GenerateArticle(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp GenerateArticleResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, gate.MethodCredits, resp.Method)
	assert.Equal(t, gate.DefaultPricing.PremiumPrice, resp.Price)
	assert.Equal(t, 10-gate.DefaultPricing.PremiumCreditCost, resp.CreditsRemaining)
}

func TestGenerateArticle_ValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		req  GenerateArticleRequest
	}{
		{
			name: "missing account ID",
			req:  GenerateArticleRequest{Topic: "gardening"},
		},
		{
			name: "malformed account ID",
			req:  GenerateArticleRequest{AccountID: "not-a-uuid", Topic: "gardening"},
		},
		{
			name: "empty topic",
			req:  GenerateArticleRequest{AccountID: uuid.New().String(), Topic: "   "},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setupTest(t)
			rec, c := f.generateRequest(t, tt.req)
			require.NoError(t, f.h.GenerateArticle(c))
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestGenerateArticle_BlockedTopicRejected(t *testing.T) {
	f := setupTest(t)
	f.gen.validateErr = generator.ErrBlockedPattern

	rec, c := f.generateRequest(t, GenerateArticleRequest{
		AccountID: f.account.ID.String(),
		Topic:     "<script>alert(1)</script>",
	})

	require.NoError(t, f.h.GenerateArticle(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGenerateArticle_AccountNotFound(t *testing.T) {
	f := setupTest(t)

	rec, c := f.generateRequest(t, GenerateArticleRequest{
		AccountID: uuid.New().String(),
		Topic:     "container gardening",
	})

	require.NoError(t, f.h.GenerateArticle(c))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGenerateArticle_NoCommitOnGenerationFailure(t *testing.T) {
	f := setupTest(t)
	f.gen.result = nil
	f.gen.err = errors.New("upstream timeout")

	rec, c := f.generateRequest(t, GenerateArticleRequest{
		AccountID: f.account.ID.String(),
		Topic:     "container gardening",
	})

	require.NoError(t, f.h.GenerateArticle(c))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	// The failed generation must not consume the free use.
	acct, err := f.store.GetAccount(context.Background(), f.account.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, acct.FreeArticlesUsed)
}

func TestGenerateArticle_BudgetExhausted503(t *testing.T) {
	f := setupTest(t)
	f.gen.result = nil
	f.gen.err = generator.ErrCostLimitExceeded

	rec, c := f.generateRequest(t, GenerateArticleRequest{
		AccountID: f.account.ID.String(),
		Topic:     "container gardening",
	})

	require.NoError(t, f.h.GenerateArticle(c))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestCreateAccount(t *testing.T) {
	f := setupTest(t)
	ctx := context.Background()
	require.NoError(t, f.store.Create(ctx, models.NewAbuseRecord(testClientIP, "", "")))

	payload, _ := json.Marshal(CreateAccountRequest{Email: "new@example.com", APIKey: "sk-own-key"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/accounts", bytes.NewReader(payload))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := f.e.NewContext(req, rec)

	require.NoError(t, f.h.CreateAccount(c))
	assert.Equal(t, http.StatusCreated, rec.Code)

	var resp AccountResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "new@example.com", resp.Email)
	assert.True(t, resp.HasOwnAPIKey)
	assert.NotContains(t, rec.Body.String(), "sk-own-key", "stored API key must never be serialized")

	// Signup feeds the per-address abuse signal.
	stored, err := f.store.Get(ctx, testClientIP)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.AccountsCreated)
}

func TestGetAccount(t *testing.T) {
	f := setupTest(t)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := f.e.NewContext(req, rec)
	c.SetPath("/api/v1/accounts/:id")
	c.SetParamNames("id")
	c.SetParamValues(f.account.ID.String())

	require.NoError(t, f.h.GetAccount(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp AccountResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, f.account.ID, resp.ID)
}

func TestGetAccount_NotFound(t *testing.T) {
	f := setupTest(t)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := f.e.NewContext(req, rec)
	c.SetPath("/api/v1/accounts/:id")
	c.SetParamNames("id")
	c.SetParamValues(uuid.New().String())

	require.NoError(t, f.h.GetAccount(c))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestVerifyChallenge_ClearsSoftFlags(t *testing.T) {
	f := setupTest(t)
	ctx := context.Background()

	rec := models.NewAbuseRecord("203.0.113.9", "", "")
	rec.Proxy = true
	rec.Datacenter = true
	rec.Banned = true
	require.NoError(t, f.store.Create(ctx, rec))

	token, err := f.issuer.Issue("203.0.113.9", 60)
	require.NoError(t, err)

	payload, _ := json.Marshal(VerifyRequest{Token: token})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/verify", bytes.NewReader(payload))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	w := httptest.NewRecorder()
	c := f.e.NewContext(req, w)

	require.NoError(t, f.h.VerifyChallenge(c))
	assert.Equal(t, http.StatusOK, w.Code)

	stored, err := f.store.Get(ctx, "203.0.113.9")
	require.NoError(t, err)
	assert.False(t, stored.Proxy)
	assert.False(t, stored.Datacenter)
	assert.True(t, stored.Banned, "verification never lifts a ban")
}

func TestVerifyChallenge_InvalidToken(t *testing.T) {
	f := setupTest(t)

	payload, _ := json.Marshal(VerifyRequest{Token: "garbage.token.here"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/verify", bytes.NewReader(payload))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	w := httptest.NewRecorder()
	c := f.e.NewContext(req, w)

	require.NoError(t, f.h.VerifyChallenge(c))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHealth(t *testing.T) {
	e := echo.New()
	hh := NewHealthHandlers(nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	require.NoError(t, hh.Health(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, "riskgate-api", resp.Service)
}

type failingPinger struct{}

func (failingPinger) PingContext(ctx context.Context) error {
	return errors.New("connection refused")
}

func TestReadiness_DBDown(t *testing.T) {
	e := echo.New()
	hh := NewHealthHandlers(failingPinger{})

	req := httptest.NewRequest(http.MethodGet, "/health/ready", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	require.NoError(t, hh.Readiness(c))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
