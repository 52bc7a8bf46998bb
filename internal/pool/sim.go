package pool

import (
	"fmt"

	"curveSwap/internal/payout"
)

// SimSellToPoolQuotes returns the quotes the next limit sales into the pool
// would execute at. The pool itself is not changed.
func (p *Pool) SimSellToPoolQuotes(pctx payout.Context, limit int) ([]payout.QuoteSummary, error) {
	sim := p.Clone()
	if err := sim.RefreshQuotes(pctx); err != nil {
		return nil, err
	}
	var out []payout.QuoteSummary
	for i := 0; i < limit && sim.SellQuote != nil; i++ {
		fill, err := sim.SwapItemForTokens(sim.placeholderItem(i), pctx)
		if err != nil {
			return nil, err
		}
		out = append(out, fill.Quote)
	}
	return out, nil
}

// SimBuyFromPoolQuotes returns the quotes the next limit purchases from the
// pool would execute at. The pool itself is not changed.
func (p *Pool) SimBuyFromPoolQuotes(pctx payout.Context, limit int) ([]payout.QuoteSummary, error) {
	sim := p.Clone()
	if err := sim.RefreshQuotes(pctx); err != nil {
		return nil, err
	}
	var out []payout.QuoteSummary
	for i := 0; i < limit && sim.BuyQuote != nil; i++ {
		item, ok := sim.NextItem()
		if !ok {
			break
		}
		fill, err := sim.SwapTokensForItem(item, pctx)
		if err != nil {
			return nil, err
		}
		out = append(out, fill.Quote)
	}
	return out, nil
}

// placeholderItem returns an id the simulated pool does not hold.
func (p *Pool) placeholderItem(n int) string {
	for {
		id := fmt.Sprintf("sim-%d", n)
		if !p.HasItem(id) {
			return id
		}
		n++
	}
}
