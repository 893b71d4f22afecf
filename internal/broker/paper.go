package broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"stockpilot/pkg/types"
)

// Compile-time interface check.
var _ Broker = (*PaperBroker)(nil)

// PaperBroker fills every order instantly at its reference price without
// touching any external API. It exists for dry runs and tests.
type PaperBroker struct {
	mu     sync.Mutex
	nextID int
}

// NewPaperBroker creates an in-memory paper broker.
func NewPaperBroker() *PaperBroker {
	return &PaperBroker{}
}

// Name returns "paper".
func (b *PaperBroker) Name() string {
	return "paper"
}

// Submit fills the ticket immediately at the reference price.
func (b *PaperBroker) Submit(ctx context.Context, ticket types.OrderTicket) (types.FillResult, error) {
	if err := ctx.Err(); err != nil {
		return types.FillResult{}, err
	}
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.mu.Unlock()

	return types.FillResult{
		Success:       true,
		FilledQty:     ticket.Quantity,
		FilledPrice:   ticket.ReferencePrice,
		BrokerOrderID: fmt.Sprintf("paper-%06d", id),
		SubmittedAt:   time.Now(),
	}, nil
}
