// Package advisor produces proposed orders from a language-model advisor.
// The model's output is advisory only: everything it proposes goes through
// the risk engine before any order reaches a broker.
package advisor

import (
	"context"

	"stockpilot/internal/portfolio"
	"stockpilot/pkg/types"
)

// Request carries the portfolio and market context the advisor reasons over.
type Request struct {
	State     *portfolio.State
	Prices    map[string]float64
	Snapshots []types.MarketSnapshot
	Research  bool // use the deep-research model and prompt
}

// Advisor proposes trades for the current portfolio and market state.
//
// Implementations fail closed: any upstream or parsing failure yields an
// empty proposal list together with the error, never fabricated orders.
type Advisor interface {
	Propose(ctx context.Context, req Request) ([]types.ProposedOrder, error)
}
