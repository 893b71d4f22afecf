// Package broker defines the Broker interface and provides implementations
// for submitting orders to a brokerage or to an in-memory paper simulator.
package broker

import (
	"context"

	"stockpilot/pkg/types"
)

// Broker abstracts order submission. Implementations submit one market day
// order per call and report what actually filled.
type Broker interface {
	// Name returns the broker identifier (e.g. "alpaca", "paper").
	Name() string

	// Submit sends the ticket to the brokerage as a market day order and
	// waits for the terminal fill result. A rejected or expired order is
	// reported through FillResult, not through the error: the error is
	// reserved for transport and credential failures.
	Submit(ctx context.Context, ticket types.OrderTicket) (types.FillResult, error)
}
