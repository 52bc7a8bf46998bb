package market

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"curveSwap/internal/model"
	"curveSwap/internal/storage"
	"curveSwap/internal/swap"
)

// SwapRequest is the common part of every swap call.
type SwapRequest struct {
	Sender common.Address
	// Collection and Denom select the market. Direct swaps take them from the pool.
	Collection common.Address
	Denom      string
	Params     swap.Params
	// Funds is the amount attached to a buy. Unspent funds are refunded.
	Funds model.Amount
}

func (s *Service) SwapNftsForTokens(ctx context.Context, req SwapRequest, orders []swap.SellOrder) (*swap.Result, error) {
	return s.sell(ctx, swap.SwapNftsForTokens, req, 0, orders, false)
}

func (s *Service) SwapTokensForAnyNfts(ctx context.Context, req SwapRequest, orders []swap.BuyOrder) (*swap.Result, error) {
	return s.buy(ctx, swap.SwapTokensForAnyNfts, req, 0, orders, false)
}

func (s *Service) SwapTokensForSpecificNfts(ctx context.Context, req SwapRequest, orders []swap.BuyOrder) (*swap.Result, error) {
	return s.buy(ctx, swap.SwapTokensForSpecificNfts, req, 0, orders, false)
}

func (s *Service) DirectSwapNftsForTokens(ctx context.Context, req SwapRequest, poolID uint64, orders []swap.SellOrder) (*swap.Result, error) {
	return s.sell(ctx, swap.DirectSwapNftsForTokens, req, poolID, orders, false)
}

func (s *Service) DirectSwapTokensForNfts(ctx context.Context, req SwapRequest, poolID uint64, orders []swap.BuyOrder) (*swap.Result, error) {
	return s.buy(ctx, swap.DirectSwapTokensForNfts, req, poolID, orders, false)
}

// The Sim variants run the same batch in a discarded transaction. They return
// aborted results instead of failing.

func (s *Service) SimSwapNftsForTokens(ctx context.Context, req SwapRequest, orders []swap.SellOrder) (*swap.Result, error) {
	return s.sell(ctx, swap.SwapNftsForTokens, req, 0, orders, true)
}

func (s *Service) SimSwapTokensForAnyNfts(ctx context.Context, req SwapRequest, orders []swap.BuyOrder) (*swap.Result, error) {
	return s.buy(ctx, swap.SwapTokensForAnyNfts, req, 0, orders, true)
}

func (s *Service) SimSwapTokensForSpecificNfts(ctx context.Context, req SwapRequest, orders []swap.BuyOrder) (*swap.Result, error) {
	return s.buy(ctx, swap.SwapTokensForSpecificNfts, req, 0, orders, true)
}

func (s *Service) SimDirectSwapNftsForTokens(ctx context.Context, req SwapRequest, poolID uint64, orders []swap.SellOrder) (*swap.Result, error) {
	return s.sell(ctx, swap.DirectSwapNftsForTokens, req, poolID, orders, true)
}

func (s *Service) SimDirectSwapTokensForNfts(ctx context.Context, req SwapRequest, poolID uint64, orders []swap.BuyOrder) (*swap.Result, error) {
	return s.buy(ctx, swap.DirectSwapTokensForNfts, req, poolID, orders, true)
}

func (s *Service) sell(ctx context.Context, op swap.Operation, req SwapRequest, poolID uint64, orders []swap.SellOrder, sim bool) (*swap.Result, error) {
	if !req.Funds.IsZero() {
		return nil, fmt.Errorf("%w: %s takes no funds", model.ErrInvalidInput, op)
	}
	ereq, err := s.swapRequest(ctx, op, req, poolID)
	if err != nil {
		return nil, err
	}
	if s.ownership != nil && !sim {
		ids := make([]string, len(orders))
		for i, o := range orders {
			ids[i] = o.ItemID
		}
		if err := s.ownership.VerifyOwnership(ctx, ereq.Collection, req.Sender, ids); err != nil {
			return nil, err
		}
	}
	return s.execute(ctx, ereq, sim, model.Amount{}, func(tx storage.Tx) (*swap.Result, error) {
		if poolID != 0 {
			return s.engine.DirectSellItems(ctx, tx, ereq, poolID, orders)
		}
		return s.engine.SellItems(ctx, tx, ereq, orders)
	})
}

func (s *Service) buy(ctx context.Context, op swap.Operation, req SwapRequest, poolID uint64, orders []swap.BuyOrder, sim bool) (*swap.Result, error) {
	var required model.Amount
	for _, o := range orders {
		sum, err := required.Add(o.MaxInput)
		if err != nil {
			return nil, fmt.Errorf("%w: max inputs overflow", model.ErrInvalidInput)
		}
		required = sum
	}
	if req.Funds.Cmp(required) < 0 {
		return nil, fmt.Errorf("%w: attached %s, orders allow up to %s", model.ErrInsufficientFunds, req.Funds, required)
	}
	ereq, err := s.swapRequest(ctx, op, req, poolID)
	if err != nil {
		return nil, err
	}
	return s.execute(ctx, ereq, sim, req.Funds, func(tx storage.Tx) (*swap.Result, error) {
		switch {
		case poolID != 0:
			return s.engine.DirectBuyItems(ctx, tx, ereq, poolID, orders)
		case op == swap.SwapTokensForSpecificNfts:
			return s.engine.BuySpecificItems(ctx, tx, ereq, orders)
		default:
			return s.engine.BuyAnyItems(ctx, tx, ereq, orders)
		}
	})
}

// swapRequest resolves the market and prices of a batch before the write
// transaction opens.
func (s *Service) swapRequest(ctx context.Context, op swap.Operation, req SwapRequest, poolID uint64) (swap.Request, error) {
	collection := req.Collection
	if poolID != 0 {
		poolCollection, err := s.poolCollection(ctx, poolID)
		if err != nil {
			return swap.Request{}, err
		}
		if collection == (common.Address{}) {
			collection = poolCollection
		}
	}
	if collection == (common.Address{}) {
		return swap.Request{}, fmt.Errorf("%w: collection is required", model.ErrInvalidInput)
	}
	pctx, err := s.payoutContext(ctx, collection)
	if err != nil {
		return swap.Request{}, err
	}
	return swap.Request{
		Operation:  op,
		Collection: collection,
		Denom:      req.Denom,
		Sender:     req.Sender,
		Params:     req.Params,
		Payout:     pctx,
	}, nil
}

type batchFunc func(tx storage.Tx) (*swap.Result, error)

// execute runs a batch in one transaction, persists the touched pools and
// refunds unspent funds. Strict batches that abort roll back.
func (s *Service) execute(ctx context.Context, req swap.Request, sim bool, funds model.Amount, run batchFunc) (res *swap.Result, err error) {
	op := string(req.Operation)
	if !sim {
		defer func() { s.metrics.Operation(op, err) }()
	}

	txFn := func(tx storage.Tx) error {
		out, err := run(tx)
		if err != nil {
			return err
		}
		if err := out.Err(); err != nil {
			if !sim {
				return err
			}
			res = out
			return nil
		}
		for _, p := range out.Touched {
			if err := tx.SavePool(ctx, p); err != nil {
				return err
			}
			if err := p.Publish(ctx, tx.Index()); err != nil {
				return err
			}
		}
		if refund, err := funds.Sub(out.Spent); err == nil && !refund.IsZero() {
			settlement, err := out.Settlement.WithPayment(req.Sender, refund)
			if err != nil {
				return err
			}
			if settlement.Denom == "" {
				settlement.Denom = req.Denom
			}
			out.Settlement = settlement
		}
		res = out
		return nil
	}

	if sim {
		err = s.store.View(ctx, txFn)
	} else {
		err = s.store.Update(ctx, txFn)
	}
	if err != nil {
		return nil, err
	}
	if !sim {
		s.record(res)
	}
	return res, nil
}

func (s *Service) record(res *swap.Result) {
	s.logger.Info("swap committed",
		zap.String("batch_id", res.ID.String()),
		zap.String("operation", string(res.Operation)),
		zap.String("status", string(res.Status)),
		zap.Int("swaps", len(res.Swaps)),
	)
	if s.journal == nil {
		return
	}
	entry := storage.JournalEntry{
		ID:        res.ID.String(),
		Operation: string(res.Operation),
		Timestamp: s.now().UTC(),
		Payload:   res,
	}
	if err := s.journal.Append(entry); err != nil {
		s.metrics.JournalFailed()
		s.logger.Error("journal append failed", zap.String("batch_id", entry.ID), zap.Error(err))
	}
}
