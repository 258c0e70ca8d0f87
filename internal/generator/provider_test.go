package generator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms/fake"
)

func TestArticleGenerator_Generate(t *testing.T) {
	t.Run("generates article from topic", func(t *testing.T) {
		fakeLLM := fake.NewFakeLLM([]string{"The History of Coffee\n\nCoffee has shaped trade and culture for centuries..."})
		g := New(fakeLLM, "gpt-4o-mini")

		result, err := g.Generate(context.Background(), Request{
			Topic:    "the history of coffee",
			Keywords: []string{"trade", "culture"},
		})

		require.NoError(t, err)
		assert.Contains(t, result.Article, "Coffee")
		assert.Greater(t, result.InputTokens, 0)
		assert.Greater(t, result.OutputTokens, 0)
		assert.Greater(t, result.EstimatedCost, 0.0)
	})

	t.Run("sanitizes markup in the LLM response", func(t *testing.T) {
		fakeLLM := fake.NewFakeLLM([]string{"<script>alert('xss')</script>A Clean Title\n\nArticle body."})
		g := New(fakeLLM, "gpt-4o-mini")

		result, err := g.Generate(context.Background(), Request{Topic: "anything"})
		require.NoError(t, err)
		assert.Equal(t, "A Clean Title\n\nArticle body.", result.Article)
	})

	t.Run("returns error for empty LLM response", func(t *testing.T) {
		fakeLLM := fake.NewFakeLLM([]string{""})
		g := New(fakeLLM, "gpt-4o-mini")

		_, err := g.Generate(context.Background(), Request{Topic: "anything"})
		assert.ErrorIs(t, err, ErrEmptyResponse)
	})

	t.Run("rejects invalid input before calling the LLM", func(t *testing.T) {
		fakeLLM := fake.NewFakeLLM([]string{"should never be returned"})
		g := New(fakeLLM, "gpt-4o-mini")

		_, err := g.Generate(context.Background(), Request{Topic: "   "})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrEmptyInput)
	})

	t.Run("respects context cancellation", func(t *testing.T) {
		fakeLLM := fake.NewFakeLLM([]string{"article text"})
		g := New(fakeLLM, "gpt-4o-mini")

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := g.Generate(ctx, Request{Topic: "anything"})
		assert.ErrorIs(t, err, ErrContextCanceled)
	})

	t.Run("stops when the daily budget is spent", func(t *testing.T) {
		fakeLLM := fake.NewFakeLLM([]string{"article text", "article text"})
		g := New(fakeLLM, "gpt-4o-mini")
		g.SetDailyBudget(0.0)

		_, err := g.Generate(context.Background(), Request{Topic: "anything"})
		assert.ErrorIs(t, err, ErrCostLimitExceeded)
	})
}

func TestArticleGenerator_Prompts(t *testing.T) {
	g := New(fake.NewFakeLLM(nil), "gpt-4o-mini")

	standard := g.buildSystemPrompt(false)
	premium := g.buildSystemPrompt(true)

	assert.Contains(t, standard, "600-800 words")
	assert.Contains(t, premium, "1500-2000 words")
	assert.Contains(t, standard, "safe")
	assert.Contains(t, premium, "safe")

	user := g.buildUserPrompt(Request{Topic: "urban beekeeping", Keywords: []string{"hives", "honey"}})
	assert.Contains(t, user, "urban beekeeping")
	assert.Contains(t, user, "hives, honey")
}

func TestEstimateTokens(t *testing.T) {
	input := "This is a test prompt with about twenty words in it for testing purposes and validation."
	tokens := estimateTokens(input)
	assert.Greater(t, tokens, 15)
	assert.Less(t, tokens, 40)
}
