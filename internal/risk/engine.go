package risk

import (
	"context"
	"fmt"
	"math"

	"stockpilot/internal/logger"
	"stockpilot/internal/market"
	"stockpilot/internal/portfolio"
	"stockpilot/pkg/types"
)

const liquidityWindow = 20

// BatchResult is the outcome of validating one advisor batch.
type BatchResult struct {
	Accepted   []types.OrderTicket
	Rejections []types.Rejection
	Regime     Regime
}

// Engine filters proposed orders against the policy. A batch is walked in
// input order and each accepted order immediately consumes sector and cash
// budget, so two orders that are individually acceptable can still not both
// pass. Ordering is the caller's (the advisor output order); the engine
// never reorders or prioritizes by confidence.
type Engine struct {
	policy   Policy
	provider market.SnapshotProvider
	regimes  *RegimeDetector
	log      *logger.Logger
}

// NewEngine creates a validation engine.
func NewEngine(policy Policy, provider market.SnapshotProvider, regimes *RegimeDetector, log *logger.Logger) *Engine {
	return &Engine{
		policy:   policy,
		provider: provider,
		regimes:  regimes,
		log:      log,
	}
}

// ValidateBatch checks every proposed order in sequence against the policy
// and the running exposure picture. A single order's data failure rejects
// only that order; the batch always completes. Nothing persistent is
// mutated.
func (e *Engine) ValidateBatch(ctx context.Context, orders []types.ProposedOrder, state *portfolio.State) BatchResult {
	result := BatchResult{Regime: e.regimes.Current(ctx)}
	maxPositionPct := e.policy.EffectiveMaxPositionPct(result.Regime)

	// Seed the running exposure picture from current holdings at live prices.
	prices := make(map[string]float64, len(state.Positions))
	sectorExposure := make(map[string]float64)
	for _, ticker := range state.Tickers() {
		pos := state.Positions[ticker]
		snap, err := e.provider.Snapshot(ctx, ticker)
		if err != nil {
			// Held position without a quote: value at entry cost so equity
			// and sector exposure stay bounded rather than vanishing.
			e.log.LogWarning("Risk", "no quote for held %s, valuing at entry cost: %v", ticker, err)
			prices[ticker] = pos.AvgPrice
			sectorExposure["Other"] += float64(pos.Shares) * pos.AvgPrice
			continue
		}
		prices[ticker] = snap.Price
		sectorExposure[snap.Sector] += float64(pos.Shares) * snap.Price
	}

	totalEquity := state.TotalEquity(prices)
	remainingCash := state.Cash

	e.log.Info("Validating batch of %d orders (regime=%s, cap=%.1f%%, equity=$%.2f)",
		len(orders), result.Regime, maxPositionPct*100, totalEquity)

	for _, order := range orders {
		ticket, sector, reason, detail := e.validateOne(ctx, order, state, totalEquity, maxPositionPct, sectorExposure, remainingCash)
		if reason != "" {
			e.log.LogWarning("Risk", "rejected %s %s: %s (%s)", order.Side, order.Ticker, reason, detail)
			result.Rejections = append(result.Rejections, types.Rejection{
				Order:  order,
				Reason: string(reason),
				Detail: detail,
			})
			continue
		}

		// Accepted: later orders in this batch see the consumed budget.
		sectorExposure[sector] += ticket.Value()
		if ticket.Side == types.SideBuy {
			remainingCash -= ticket.Value()
		}
		result.Accepted = append(result.Accepted, ticket)
		e.log.Info("Accepted %s %s: %d shares @ $%.2f ($%.2f)",
			ticket.Side, ticket.Ticker, ticket.Quantity, ticket.ReferencePrice, ticket.Value())
	}

	return result
}

// validateOne runs the per-order checks. It returns either a ready ticket
// with its sector, or a rejection reason with detail.
func (e *Engine) validateOne(
	ctx context.Context,
	order types.ProposedOrder,
	state *portfolio.State,
	totalEquity float64,
	maxPositionPct float64,
	sectorExposure map[string]float64,
	remainingCash float64,
) (types.OrderTicket, string, ReasonCode, string) {
	var none types.OrderTicket

	snap, err := e.provider.Snapshot(ctx, order.Ticker)
	if err != nil || snap.Price <= 0 {
		return none, "", ReasonPriceUnavailable, fmt.Sprintf("no price for %s", order.Ticker)
	}

	qty := order.Quantity
	if qty <= 0 && order.Weight > 0 {
		qty = int(math.Floor(totalEquity * order.Weight / snap.Price))
	}
	if order.Side == types.SideSell {
		// Selling something we do not hold would credit cash for shares
		// that never existed, or open a short on a live broker.
		pos, held := state.Positions[order.Ticker]
		if !held || pos.Shares <= 0 {
			return none, "", ReasonNoPosition, fmt.Sprintf("no open position in %s", order.Ticker)
		}
		// No explicit quantity, or more than is held: liquidate the lot.
		if qty <= 0 || qty > pos.Shares {
			qty = pos.Shares
		}
	}
	if qty <= 0 {
		return none, "", ReasonZeroQuantity, fmt.Sprintf("resolved quantity %d", qty)
	}

	orderValue := float64(qty) * snap.Price

	// Position-size check against the regime-scaled cap. Exactly at the cap
	// is acceptable; any excess is not.
	if maxAllowed := totalEquity * maxPositionPct; orderValue > maxAllowed {
		return none, "", ReasonPositionTooLarge,
			fmt.Sprintf("$%.2f exceeds %.1f%% cap of $%.2f", orderValue, maxPositionPct*100, maxAllowed)
	}

	// Duplicate-position check: no averaging into an existing long via the
	// advisor path.
	if order.Side == types.SideBuy {
		if pos, held := state.Positions[order.Ticker]; held && pos.Shares > 0 {
			return none, "", ReasonAlreadyHeld, fmt.Sprintf("already long %d shares", pos.Shares)
		}
	}

	// Liquidity check: trailing average dollar volume and price floor.
	avgDollarVolume := snap.AvgDollarVolume(liquidityWindow)
	if avgDollarVolume < e.policy.MinDollarVolume {
		return none, "", ReasonIlliquidAsset,
			fmt.Sprintf("avg dollar volume $%.0f below $%.0f floor", avgDollarVolume, e.policy.MinDollarVolume)
	}
	if snap.Price < e.policy.MinPrice {
		return none, "", ReasonIlliquidAsset,
			fmt.Sprintf("price $%.2f below $%.2f floor", snap.Price, e.policy.MinPrice)
	}
	if n := len(snap.History); n > 0 && e.policy.MaxSpreadPct > 0 {
		last := snap.History[n-1]
		if last.Close > 0 {
			if spread := (last.High - last.Low) / last.Close; spread > e.policy.MaxSpreadPct {
				e.log.LogWarning("Risk", "%s wide spread %.1f%%", order.Ticker, spread*100)
			}
		}
	}

	// Sector-exposure check against the running per-batch picture.
	if totalEquity > 0 {
		if (sectorExposure[snap.Sector]+orderValue)/totalEquity > e.policy.SectorMaxPct {
			return none, "", ReasonSectorCapExceeded,
				fmt.Sprintf("sector %s at $%.2f + $%.2f exceeds %.1f%% of $%.2f",
					snap.Sector, sectorExposure[snap.Sector], orderValue, e.policy.SectorMaxPct*100, totalEquity)
		}
	}

	// Buys are bounded by the cash still unspent in this batch so the state
	// machine can never be handed a fill that drives cash negative.
	if order.Side == types.SideBuy && orderValue > remainingCash {
		clamped := int(math.Floor(remainingCash / snap.Price))
		if clamped <= 0 {
			return none, "", ReasonInsufficientCash,
				fmt.Sprintf("$%.2f order with $%.2f cash remaining", orderValue, remainingCash)
		}
		qty = clamped
	}

	return types.OrderTicket{
		Ticker:         order.Ticker,
		Side:           order.Side,
		Quantity:       qty,
		ReferencePrice: snap.Price,
		Rationale:      order.Rationale,
	}, snap.Sector, "", ""
}
