package market

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"curveSwap/internal/index"
	"curveSwap/internal/model"
	"curveSwap/internal/payout"
	"curveSwap/internal/pool"
	"curveSwap/internal/storage"
)

const (
	defaultQueryLimit = 10
	maxQueryLimit     = 100
)

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return defaultQueryLimit
	case limit > maxQueryLimit:
		return maxQueryLimit
	default:
		return limit
	}
}

func (s *Service) Pool(ctx context.Context, poolID uint64) (*pool.Pool, error) {
	var out *pool.Pool
	err := s.store.View(ctx, func(tx storage.Tx) error {
		p, err := loadPool(ctx, tx, poolID)
		out = p
		return err
	})
	return out, err
}

func (s *Service) PoolsByOwner(ctx context.Context, owner common.Address, opts storage.QueryOptions) ([]*pool.Pool, error) {
	opts.Limit = clampLimit(opts.Limit)
	var out []*pool.Pool
	err := s.store.View(ctx, func(tx storage.Tx) error {
		pools, err := tx.PoolsByOwner(ctx, owner, opts)
		out = pools
		return err
	})
	return out, err
}

// PoolQuote is one ranked entry of the best-price index.
type PoolQuote struct {
	PoolID uint64              `json:"pool_id"`
	Price  model.Amount        `json:"price"`
	Quote  payout.QuoteSummary `json:"quote"`
}

// BestQuotes lists the best pools of a market for side, best first.
func (s *Service) BestQuotes(ctx context.Context, collection common.Address, denom string, side index.Side, limit int) ([]PoolQuote, error) {
	key := index.Key{Collection: collection, Denom: denom}
	var out []PoolQuote
	err := s.store.View(ctx, func(tx storage.Tx) error {
		entries, err := index.Top(ctx, tx.Index(), key, side, clampLimit(limit))
		if err != nil {
			return err
		}
		for _, e := range entries {
			p, err := loadPool(ctx, tx, e.PoolID)
			if err != nil {
				return err
			}
			quote := p.SellQuote
			if side == index.BuyFromPool {
				quote = p.BuyQuote
			}
			if quote == nil {
				return fmt.Errorf("%w: pool %d is indexed without a %s quote", model.ErrInvalidPool, p.ID, side)
			}
			out = append(out, PoolQuote{PoolID: e.PoolID, Price: e.Price, Quote: *quote})
		}
		return nil
	})
	return out, err
}

// SimPoolQuotes returns the next limit quotes of one pool on side.
func (s *Service) SimPoolQuotes(ctx context.Context, poolID uint64, side index.Side, limit int) ([]payout.QuoteSummary, error) {
	collection, err := s.poolCollection(ctx, poolID)
	if err != nil {
		return nil, err
	}
	pctx, err := s.payoutContext(ctx, collection)
	if err != nil {
		return nil, err
	}
	var out []payout.QuoteSummary
	err = s.store.View(ctx, func(tx storage.Tx) error {
		p, err := loadPool(ctx, tx, poolID)
		if err != nil {
			return err
		}
		if side == index.SellToPool {
			out, err = p.SimSellToPoolQuotes(pctx, clampLimit(limit))
		} else {
			out, err = p.SimBuyFromPoolQuotes(pctx, clampLimit(limit))
		}
		return err
	})
	return out, err
}
