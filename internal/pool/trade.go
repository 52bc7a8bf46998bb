package pool

import (
	"fmt"

	"curveSwap/internal/curve"
	"curveSwap/internal/model"
	"curveSwap/internal/payout"
)

// Fill is one executed trade against a pool.
type Fill struct {
	PoolID uint64              `json:"pool_id"`
	ItemID string              `json:"item_id"`
	Quote  payout.QuoteSummary `json:"quote"`
	// Retained is true when the proceeds stay in the pool: the item on a sale
	// into the pool, the seller amount on a purchase from it.
	Retained bool `json:"retained"`
	// Deactivated is true when the trade pushed the curve out of range.
	Deactivated bool `json:"deactivated,omitempty"`
}

// SwapItemForTokens sells itemID into the pool at its cached sell quote,
// then re-prices the pool with pctx.
func (p *Pool) SwapItemForTokens(itemID string, pctx payout.Context) (Fill, error) {
	if p.SellQuote == nil {
		return Fill{}, fmt.Errorf("%w: pool %d is not buying", model.ErrSwap, p.ID)
	}
	if p.HasItem(itemID) {
		return Fill{}, fmt.Errorf("%w: pool %d already holds item %s", model.ErrInvalidInput, p.ID, itemID)
	}
	quote := *p.SellQuote

	rest, err := p.TotalTokens.Sub(quote.Total())
	if err != nil {
		return Fill{}, fmt.Errorf("%w: pool %d cannot cover %s", model.ErrSwap, p.ID, quote.Total())
	}
	p.TotalTokens = rest

	fill := Fill{PoolID: p.ID, ItemID: itemID, Quote: quote, Retained: p.Type.ReinvestItems}
	if fill.Retained {
		if err := p.DepositItems([]string{itemID}); err != nil {
			return Fill{}, err
		}
	}
	fill.Deactivated = p.advance(curve.CounterpartySubmitsItem)
	return fill, p.RefreshQuotes(pctx)
}

// SwapTokensForItem buys itemID from the pool at its cached buy quote, then
// re-prices the pool with pctx.
func (p *Pool) SwapTokensForItem(itemID string, pctx payout.Context) (Fill, error) {
	if p.BuyQuote == nil {
		return Fill{}, fmt.Errorf("%w: pool %d is not selling", model.ErrSwap, p.ID)
	}
	if !p.HasItem(itemID) {
		return Fill{}, fmt.Errorf("%w: pool %d does not hold item %s", model.ErrSwap, p.ID, itemID)
	}
	quote := *p.BuyQuote

	if err := p.WithdrawItems([]string{itemID}); err != nil {
		return Fill{}, err
	}
	fill := Fill{PoolID: p.ID, ItemID: itemID, Quote: quote, Retained: p.Type.ReinvestTokens}
	if fill.Retained {
		total, err := p.TotalTokens.Add(quote.SellerAmount)
		if err != nil {
			return Fill{}, err
		}
		p.TotalTokens = total
	}
	fill.Deactivated = p.advance(curve.CounterpartySubmitsTokens)
	return fill, p.RefreshQuotes(pctx)
}

// NextItem is the item a buy-any trade receives.
func (p *Pool) NextItem() (string, bool) {
	if len(p.Items) == 0 {
		return "", false
	}
	return p.Items[0], true
}

// advance moves the spot price and deactivates the pool when the curve
// cannot produce a valid price. It reports whether it deactivated.
func (p *Pool) advance(d curve.Direction) bool {
	if err := p.Curve.Advance(d); err == nil {
		return false
	}
	wasActive := p.IsActive
	p.IsActive = false
	return wasActive
}
