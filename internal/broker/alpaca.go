package broker

import (
	"context"
	"fmt"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/shopspring/decimal"

	tradeerrors "stockpilot/internal/errors"
	"stockpilot/internal/logger"
	"stockpilot/pkg/types"
)

// Compile-time interface check.
var _ Broker = (*AlpacaBroker)(nil)

// fillPollInterval is how often we poll an open order for its fill status.
const fillPollInterval = 2 * time.Second

// fillPollTimeout bounds how long we wait for a market order to reach a
// terminal state before giving up on the poll.
const fillPollTimeout = 60 * time.Second

// AlpacaBroker submits orders through the Alpaca trading API.
type AlpacaBroker struct {
	client *alpaca.Client
	log    *logger.Logger
}

// NewAlpacaBroker creates a broker for the given credentials and endpoint.
// Point baseURL at the paper endpoint for paper trading.
func NewAlpacaBroker(apiKey, apiSecret, baseURL string, log *logger.Logger) *AlpacaBroker {
	client := alpaca.NewClient(alpaca.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
		BaseURL:   baseURL,
	})
	return &AlpacaBroker{client: client, log: log}
}

// Name returns "alpaca".
func (b *AlpacaBroker) Name() string {
	return "alpaca"
}

// Submit places a market day order and polls until it reaches a terminal
// state. Partial fills at expiry are reported with the quantity that
// actually executed.
func (b *AlpacaBroker) Submit(ctx context.Context, ticket types.OrderTicket) (types.FillResult, error) {
	side := alpaca.Buy
	if ticket.Side == types.SideSell {
		side = alpaca.Sell
	}
	qty := decimal.NewFromInt(int64(ticket.Quantity))

	order, err := b.client.PlaceOrder(alpaca.PlaceOrderRequest{
		Symbol:      ticket.Ticker,
		Qty:         &qty,
		Side:        side,
		Type:        alpaca.Market,
		TimeInForce: alpaca.Day,
	})
	if err != nil {
		return types.FillResult{}, tradeerrors.Categorize(
			fmt.Errorf("%s %d %s: %w", ticket.Side, ticket.Quantity, ticket.Ticker, err),
			"broker", "place_order")
	}

	return b.awaitFill(ctx, ticket, order)
}

func (b *AlpacaBroker) awaitFill(ctx context.Context, ticket types.OrderTicket, order *alpaca.Order) (types.FillResult, error) {
	deadline := time.Now().Add(fillPollTimeout)
	for {
		if terminal, result := b.resolve(ticket, order); terminal {
			return result, nil
		}
		if time.Now().After(deadline) {
			return b.cancelAndSettle(ctx, ticket, order)
		}
		select {
		case <-ctx.Done():
			return types.FillResult{}, ctx.Err()
		case <-time.After(fillPollInterval):
		}

		refreshed, err := b.client.GetOrder(order.ID)
		if err != nil {
			return types.FillResult{}, tradeerrors.Categorize(err, "broker", "get_order")
		}
		order = refreshed
	}
}

// cancelAndSettle cancels what is left of an order that did not reach a
// terminal state inside the poll window, then reports the shares that did
// execute. The remainder must not stay live: shares filling after we stop
// watching would never reach the portfolio.
func (b *AlpacaBroker) cancelAndSettle(ctx context.Context, ticket types.OrderTicket, order *alpaca.Order) (types.FillResult, error) {
	b.log.LogWarning("Broker", "order %s for %s still %s after %s, cancelling remainder",
		order.ID, ticket.Ticker, order.Status, fillPollTimeout)
	if err := b.client.CancelOrder(order.ID); err != nil {
		b.log.LogWarning("Broker", "cancel order %s: %v", order.ID, err)
	}

	for i := 0; i < 3; i++ {
		select {
		case <-ctx.Done():
			return types.FillResult{}, ctx.Err()
		case <-time.After(fillPollInterval):
		}
		refreshed, err := b.client.GetOrder(order.ID)
		if err != nil {
			break
		}
		order = refreshed
		if terminal, result := b.resolve(ticket, order); terminal {
			return result, nil
		}
	}

	// The cancel never confirmed; report what we know.
	if filled := int(order.FilledQty.IntPart()); filled > 0 {
		return b.partialResult(ticket, order, filled), nil
	}
	return types.FillResult{
		Success:       false,
		BrokerOrderID: order.ID,
		ErrorKind:     "fill_timeout",
		SubmittedAt:   order.SubmittedAt,
	}, nil
}

func (b *AlpacaBroker) resolve(ticket types.OrderTicket, order *alpaca.Order) (bool, types.FillResult) {
	filled := int(order.FilledQty.IntPart())

	switch order.Status {
	case "filled":
		return true, b.partialResult(ticket, order, filled)
	case "rejected", "canceled", "expired", "stopped":
		// A cancelled or expired day order can still carry a partial
		// execution; those shares are real and must reach the portfolio.
		if filled > 0 {
			return true, b.partialResult(ticket, order, filled)
		}
		return true, types.FillResult{
			Success:       false,
			BrokerOrderID: order.ID,
			ErrorKind:     order.Status,
			SubmittedAt:   order.SubmittedAt,
		}
	default:
		// new, accepted, partially_filled: the order is still live at the
		// broker and more shares may yet execute. Keep polling.
		return false, types.FillResult{}
	}
}

func (b *AlpacaBroker) partialResult(ticket types.OrderTicket, order *alpaca.Order, filled int) types.FillResult {
	price := ticket.ReferencePrice
	if order.FilledAvgPrice != nil {
		price, _ = order.FilledAvgPrice.Float64()
	}
	return types.FillResult{
		Success:       true,
		FilledQty:     filled,
		FilledPrice:   price,
		BrokerOrderID: order.ID,
		SubmittedAt:   order.SubmittedAt,
	}
}
