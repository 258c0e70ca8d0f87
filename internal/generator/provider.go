// Package generator wraps the LLM behind the article-generation operation
// the risk engine gates. The engine itself treats this as opaque: it only
// cares whether generation succeeded before committing tier mutations.
package generator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
)

var (
	// ErrEmptyResponse is returned when the LLM returns an empty completion.
	ErrEmptyResponse = errors.New("LLM returned empty response")

	// ErrContextCanceled is returned when the request context is canceled.
	ErrContextCanceled = errors.New("context canceled")

	// ErrCostLimitExceeded is returned when the daily cost budget is spent.
	ErrCostLimitExceeded = errors.New("daily cost limit exceeded")
)

// Request describes one article to generate.
type Request struct {
	Topic    string
	Keywords []string
	Premium  bool
}

// Result contains the generated article and its cost accounting.
type Result struct {
	Article       string
	InputTokens   int
	OutputTokens  int
	EstimatedCost float64
}

// ArticleGenerator generates articles using an LLM.
type ArticleGenerator struct {
	llm         llms.Model
	model       string
	validator   *InputValidator
	sanitizer   *OutputSanitizer
	costLimiter *CostLimiter
}

// New creates an article generator with the default input validator and a
// $10/day cost budget.
func New(llm llms.Model, model string) *ArticleGenerator {
	return &ArticleGenerator{
		llm:         llm,
		model:       model,
		validator:   NewInputValidator(),
		sanitizer:   NewOutputSanitizer(),
		costLimiter: NewCostLimiter(10.0),
	}
}

// SetDailyBudget overrides the default cost budget.
func (g *ArticleGenerator) SetDailyBudget(usd float64) {
	g.costLimiter = NewCostLimiter(usd)
}

// ValidateInput exposes input validation so handlers can reject bad requests
// before risk scoring is even attempted.
func (g *ArticleGenerator) ValidateInput(topic string) error {
	return g.validator.Validate(topic)
}

// Generate produces an article for the request. Premium requests get a
// longer, more structured piece.
func (g *ArticleGenerator) Generate(ctx context.Context, req Request) (*Result, error) {
	if ctx.Err() != nil {
		return nil, ErrContextCanceled
	}

	if err := g.validator.Validate(req.Topic); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}

	systemPrompt := g.buildSystemPrompt(req.Premium)
	userPrompt := g.buildUserPrompt(req)

	inputTokens := estimateTokens(systemPrompt + userPrompt)
	outputTokens := 800
	if req.Premium {
		outputTokens = 2000
	}
	estimatedCost := g.costLimiter.EstimateTokenCost(inputTokens, outputTokens)

	if !g.costLimiter.AllowRequest(estimatedCost) {
		return nil, ErrCostLimitExceeded
	}

	messages := []llms.MessageContent{
		{
			Role:  llms.ChatMessageTypeSystem,
			Parts: []llms.ContentPart{llms.TextContent{Text: systemPrompt}},
		},
		{
			Role:  llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{llms.TextContent{Text: userPrompt}},
		},
	}

	resp, err := g.llm.GenerateContent(ctx, messages, llms.WithModel(g.model))
	if err != nil {
		return nil, fmt.Errorf("LLM generation failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return nil, ErrEmptyResponse
	}

	article := g.sanitizer.Sanitize(resp.Choices[0].Content)
	if article == "" {
		return nil, ErrEmptyResponse
	}

	return &Result{
		Article:       article,
		InputTokens:   inputTokens,
		OutputTokens:  estimateTokens(article),
		EstimatedCost: estimatedCost,
	}, nil
}

func (g *ArticleGenerator) buildSystemPrompt(premium bool) string {
	if premium {
		return `You are a professional long-form writer. Produce a polished,
well-researched article of 1500-2000 words with a title, an introduction,
clearly structured sections with subheadings, and a conclusion. Write in
plain prose, no markdown code fences. Keep all content safe and appropriate.`
	}
	return `You are a helpful writing assistant. Produce a clear, readable
article of 600-800 words with a title and a short introduction. Write in
plain prose, no markdown code fences. Keep all content safe and appropriate.`
}

func (g *ArticleGenerator) buildUserPrompt(req Request) string {
	var b strings.Builder
	b.WriteString("Write an article about: ")
	b.WriteString(req.Topic)
	if len(req.Keywords) > 0 {
		b.WriteString("\nIncorporate these keywords naturally: ")
		b.WriteString(strings.Join(req.Keywords, ", "))
	}
	return b.String()
}

// estimateTokens provides a rough token count estimate. Roughly one token
// per four characters of English text; conservative for GPT-family models.
func estimateTokens(text string) int {
	return len(text) / 4
}
