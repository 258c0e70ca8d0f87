package generator

import "sync"

const (
	// GPT-4o mini pricing
	// https://openai.com/api/pricing/
	InputTokenCostPer1M  = 0.150
	OutputTokenCostPer1M = 0.600
)

// CostLimiter tracks LLM API spending and enforces a daily budget. It is the
// kill switch behind the usage gate: once the budget is spent, generation
// stops regardless of tier state.
type CostLimiter struct {
	mu     sync.Mutex
	budget float64
	spent  float64
}

// NewCostLimiter creates a cost limiter with the given daily budget in USD.
func NewCostLimiter(dailyBudget float64) *CostLimiter {
	return &CostLimiter{budget: dailyBudget}
}

// AllowRequest checks whether a request with the given cost fits the budget,
// and reserves the spend if so.
func (cl *CostLimiter) AllowRequest(cost float64) bool {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	if cl.spent+cost > cl.budget {
		return false
	}
	cl.spent += cost
	return true
}

// Spent returns the amount spent so far.
func (cl *CostLimiter) Spent() float64 {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	return cl.spent
}

// Remaining returns the remaining budget.
func (cl *CostLimiter) Remaining() float64 {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	return cl.budget - cl.spent
}

// Reset clears the spending counter, typically on the daily rollover.
func (cl *CostLimiter) Reset() {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	cl.spent = 0
}

// EstimateTokenCost calculates the expected cost for a token count.
func (cl *CostLimiter) EstimateTokenCost(inputTokens, outputTokens int) float64 {
	inputCost := float64(inputTokens) * InputTokenCostPer1M / 1_000_000
	outputCost := float64(outputTokens) * OutputTokenCostPer1M / 1_000_000
	return inputCost + outputCost
}
