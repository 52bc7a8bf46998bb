// Package swap matches batches of trade legs against pools.
package swap

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"curveSwap/internal/index"
	"curveSwap/internal/model"
	"curveSwap/internal/observability"
	"curveSwap/internal/payout"
	"curveSwap/internal/pool"
	"curveSwap/internal/storage"
)

// PoolSource is the read side of a transaction the engine needs. Writes are
// left to the caller through Result.Touched.
type PoolSource interface {
	LoadPool(ctx context.Context, id uint64) (*pool.Pool, error)
	Index() index.Index
}

// Engine runs swap batches. It holds no state between calls.
type Engine struct {
	logger  *zap.Logger
	metrics *observability.Metrics
	now     func() time.Time
}

// NewEngine builds an engine. logger and metrics may be nil; now defaults to time.Now.
func NewEngine(logger *zap.Logger, metrics *observability.Metrics, now func() time.Time) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if now == nil {
		now = time.Now
	}
	return &Engine{logger: logger, metrics: metrics, now: now}
}

// SellItems sells each item to the best-paying pool of the market.
func (e *Engine) SellItems(ctx context.Context, src PoolSource, req Request, orders []SellOrder) (*Result, error) {
	if err := validateSellOrders(orders); err != nil {
		return nil, err
	}
	if err := req.validateMarket(); err != nil {
		return nil, err
	}
	b := e.newBatch(ctx, src, req, len(orders))
	router := b.newRouter(index.SellToPool)
	err := b.run(len(orders), func(leg int) error {
		p, err := router.next(leg)
		if err != nil {
			return err
		}
		if err := b.sell(leg, p, orders[leg]); err != nil {
			return err
		}
		router.ws.rerank()
		return nil
	})
	return b.finish(err)
}

// BuyAnyItems buys one item per order from the cheapest pool of the market.
func (e *Engine) BuyAnyItems(ctx context.Context, src PoolSource, req Request, orders []BuyOrder) (*Result, error) {
	for i, o := range orders {
		if o.PoolID != 0 || o.ItemID != "" {
			return nil, fmt.Errorf("%w: leg %d: buy-any orders name no pool or item", model.ErrInvalidInput, i)
		}
	}
	if len(orders) == 0 {
		return nil, fmt.Errorf("%w: no orders", model.ErrInvalidInput)
	}
	if err := req.validateMarket(); err != nil {
		return nil, err
	}
	b := e.newBatch(ctx, src, req, len(orders))
	router := b.newRouter(index.BuyFromPool)
	err := b.run(len(orders), func(leg int) error {
		p, err := router.next(leg)
		if err != nil {
			return err
		}
		item, ok := p.NextItem()
		if !ok {
			return &LegError{Leg: leg, Reason: fmt.Sprintf("pool %d has no items", p.ID)}
		}
		if err := b.buy(leg, p, item, orders[leg].MaxInput); err != nil {
			return err
		}
		router.ws.rerank()
		return nil
	})
	return b.finish(err)
}

// BuySpecificItems buys named items from named pools, in order. Each pool is
// loaded once however many legs address it.
func (e *Engine) BuySpecificItems(ctx context.Context, src PoolSource, req Request, orders []BuyOrder) (*Result, error) {
	if len(orders) == 0 {
		return nil, fmt.Errorf("%w: no orders", model.ErrInvalidInput)
	}
	for i, o := range orders {
		if o.PoolID == 0 || o.ItemID == "" {
			return nil, fmt.Errorf("%w: leg %d: specific orders need a pool and an item", model.ErrInvalidInput, i)
		}
	}
	b := e.newBatch(ctx, src, req, len(orders))
	pools := make(map[uint64]*pool.Pool)
	for _, o := range orders {
		if _, ok := pools[o.PoolID]; ok {
			continue
		}
		p, err := b.load(o.PoolID)
		if err != nil {
			return nil, err
		}
		pools[o.PoolID] = p
	}
	err := b.run(len(orders), func(leg int) error {
		o := orders[leg]
		return b.buy(leg, pools[o.PoolID], o.ItemID, o.MaxInput)
	})
	return b.finish(err)
}

// DirectSellItems sells every item to one pool, without the index.
func (e *Engine) DirectSellItems(ctx context.Context, src PoolSource, req Request, poolID uint64, orders []SellOrder) (*Result, error) {
	if err := validateSellOrders(orders); err != nil {
		return nil, err
	}
	b := e.newBatch(ctx, src, req, len(orders))
	p, err := b.load(poolID)
	if err != nil {
		return nil, err
	}
	err = b.run(len(orders), func(leg int) error {
		return b.sell(leg, p, orders[leg])
	})
	return b.finish(err)
}

// DirectBuyItems buys named items from one pool, without the index.
func (e *Engine) DirectBuyItems(ctx context.Context, src PoolSource, req Request, poolID uint64, orders []BuyOrder) (*Result, error) {
	if len(orders) == 0 {
		return nil, fmt.Errorf("%w: no orders", model.ErrInvalidInput)
	}
	for i, o := range orders {
		if o.ItemID == "" || (o.PoolID != 0 && o.PoolID != poolID) {
			return nil, fmt.Errorf("%w: leg %d: direct orders need an item of pool %d", model.ErrInvalidInput, i, poolID)
		}
	}
	b := e.newBatch(ctx, src, req, len(orders))
	p, err := b.load(poolID)
	if err != nil {
		return nil, err
	}
	err = b.run(len(orders), func(leg int) error {
		return b.buy(leg, p, orders[leg].ItemID, orders[leg].MaxInput)
	})
	return b.finish(err)
}

func (r Request) validateMarket() error {
	if r.Collection == (common.Address{}) || r.Denom == "" {
		return fmt.Errorf("%w: collection and denom are required", model.ErrInvalidInput)
	}
	return nil
}

func validateSellOrders(orders []SellOrder) error {
	if len(orders) == 0 {
		return fmt.Errorf("%w: no orders", model.ErrInvalidInput)
	}
	seen := make(map[string]struct{}, len(orders))
	for i, o := range orders {
		if o.ItemID == "" {
			return fmt.Errorf("%w: leg %d: item id is required", model.ErrInvalidInput, i)
		}
		if _, dup := seen[o.ItemID]; dup {
			return fmt.Errorf("%w: leg %d: item %s sold twice", model.ErrInvalidInput, i, o.ItemID)
		}
		seen[o.ItemID] = struct{}{}
	}
	return nil
}

// batch is the state of one engine call.
type batch struct {
	e       *Engine
	ctx     context.Context
	src     PoolSource
	req     Request
	pctx    payout.Context
	started time.Time
	logger  *zap.Logger

	result  *Result
	ledger  *payout.Ledger
	loaded  map[uint64]bool
	touched map[uint64]*pool.Pool
	order   []uint64
}

func (e *Engine) newBatch(ctx context.Context, src PoolSource, req Request, legs int) *batch {
	id := uuid.New()
	pctx := req.Payout
	if req.Params.Finder != nil {
		pctx = pctx.WithFinder(req.Params.Finder)
	}
	return &batch{
		e:       e,
		ctx:     ctx,
		src:     src,
		req:     req,
		pctx:    pctx,
		started: e.now(),
		logger: e.logger.With(
			zap.String("batch_id", id.String()),
			zap.String("operation", string(req.Operation)),
		),
		result: &Result{
			ID:        id,
			Operation: req.Operation,
			Swaps:     make([]Swap, 0, legs),
		},
		ledger:  payout.NewLedger(req.Denom, req.Payout.Params.FairBurnRecipient),
		loaded:  make(map[uint64]bool),
		touched: make(map[uint64]*pool.Pool),
	}
}

// load fetches a pool for a named-pool batch and prices it for this call.
func (b *batch) load(id uint64) (*pool.Pool, error) {
	p, err := b.src.LoadPool(b.ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: pool %d does not exist", model.ErrInvalidPool, id)
		}
		return nil, err
	}
	if b.req.Collection == (common.Address{}) {
		b.req.Collection = p.Collection
	}
	if b.req.Denom == "" {
		b.req.Denom = p.Denom
		b.ledger = payout.NewLedger(p.Denom, b.req.Payout.Params.FairBurnRecipient)
	}
	if p.Collection != b.req.Collection || p.Denom != b.req.Denom {
		return nil, fmt.Errorf("%w: pool %d trades %s, not %s/%s", model.ErrInvalidInput, id, p.IndexKey(), b.req.Collection.Hex(), b.req.Denom)
	}
	if err := p.RefreshQuotes(b.pctx); err != nil {
		return nil, err
	}
	b.loaded[id] = true
	return p, nil
}

// run executes legs in order. A LegError stops the batch; any other error is
// returned as is and aborts the call.
func (b *batch) run(legs int, step func(leg int) error) error {
	for leg := 0; leg < legs; leg++ {
		if err := b.ctx.Err(); err != nil {
			return err
		}
		if deadline := b.req.Params.Deadline; !deadline.IsZero() && b.e.now().After(deadline) {
			return &LegError{Leg: leg, Reason: "deadline exceeded"}
		}
		if err := step(leg); err != nil {
			return err
		}
	}
	return nil
}

func (b *batch) touch(p *pool.Pool) {
	if _, ok := b.touched[p.ID]; !ok {
		b.order = append(b.order, p.ID)
	}
	b.touched[p.ID] = p
}

func (b *batch) sell(leg int, p *pool.Pool, o SellOrder) error {
	if p.SellQuote == nil {
		return &LegError{Leg: leg, Reason: fmt.Sprintf("pool %d is not buying", p.ID)}
	}
	if p.SellQuote.SellerAmount.Cmp(o.MinOutput) < 0 {
		return &LegError{Leg: leg, Reason: fmt.Sprintf("pool %d pays %s, below min output %s", p.ID, p.SellQuote.SellerAmount, o.MinOutput)}
	}
	fill, err := p.SwapItemForTokens(o.ItemID, b.pctx)
	if err != nil {
		return b.legError(leg, err)
	}

	recipient := b.req.recipient()
	if err := b.ledger.AddFees(fill.Quote); err != nil {
		return err
	}
	if err := b.ledger.Pay(recipient, fill.Quote.SellerAmount); err != nil {
		return err
	}
	itemTo := b.req.Payout.Params.Custody
	if !fill.Retained {
		itemTo = p.AssetRecipientOrOwner()
	}
	b.ledger.TransferItem(p.Collection, o.ItemID, b.req.Sender, itemTo)

	received, err := b.result.Received.Add(fill.Quote.SellerAmount)
	if err != nil {
		return err
	}
	b.result.Received = received
	b.record(leg, fill, fill.Quote.SellerAmount)
	b.touch(p)
	return nil
}

func (b *batch) buy(leg int, p *pool.Pool, itemID string, maxInput model.Amount) error {
	if p.BuyQuote == nil {
		return &LegError{Leg: leg, Reason: fmt.Sprintf("pool %d is not selling", p.ID)}
	}
	total := p.BuyQuote.Total()
	if total.Cmp(maxInput) > 0 {
		return &LegError{Leg: leg, Reason: fmt.Sprintf("pool %d charges %s, above max input %s", p.ID, total, maxInput)}
	}
	fill, err := p.SwapTokensForItem(itemID, b.pctx)
	if err != nil {
		return b.legError(leg, err)
	}

	if err := b.ledger.AddFees(fill.Quote); err != nil {
		return err
	}
	if !fill.Retained {
		if err := b.ledger.Pay(p.AssetRecipientOrOwner(), fill.Quote.SellerAmount); err != nil {
			return err
		}
	}
	b.ledger.TransferItem(p.Collection, itemID, b.req.Payout.Params.Custody, b.req.recipient())

	spent, err := b.result.Spent.Add(total)
	if err != nil {
		return err
	}
	b.result.Spent = spent
	b.record(leg, fill, total)
	b.touch(p)
	return nil
}

func (b *batch) legError(leg int, err error) error {
	if errors.Is(err, model.ErrSwap) {
		return &LegError{Leg: leg, Reason: err.Error()}
	}
	return err
}

func (b *batch) record(leg int, fill pool.Fill, price model.Amount) {
	b.result.Swaps = append(b.result.Swaps, Swap{
		Leg:         leg,
		PoolID:      fill.PoolID,
		ItemID:      fill.ItemID,
		Price:       price,
		Quote:       fill.Quote,
		Deactivated: fill.Deactivated,
	})
	b.e.metrics.SwapExecuted(string(b.req.Operation))
	if fill.Deactivated {
		b.e.metrics.PoolDeactivated()
		b.logger.Info("pool deactivated", zap.Uint64("pool_id", fill.PoolID), zap.Int("leg", leg))
	}
	b.logger.Debug("leg filled",
		zap.Int("leg", leg),
		zap.Uint64("pool_id", fill.PoolID),
		zap.String("item_id", fill.ItemID),
		zap.Stringer("price", price),
	)
}

// finish turns the run outcome into a result. Only a LegError yields a result
// without an error.
func (b *batch) finish(runErr error) (*Result, error) {
	var legErr *LegError
	switch {
	case runErr == nil:
		b.result.Status = Completed
	case errors.As(runErr, &legErr) && b.req.Params.Robust:
		b.result.Status = PartiallyCompleted
		b.result.Failure = legErr
	case errors.As(runErr, &legErr):
		b.result.Status = Aborted
		b.result.Failure = legErr
		b.result.Swaps = nil
		b.result.Spent = model.Amount{}
		b.result.Received = model.Amount{}
	default:
		b.e.metrics.BatchFinished(string(b.req.Operation), string(Aborted), b.e.now().Sub(b.started))
		return nil, runErr
	}

	if b.result.Status != Aborted {
		b.result.Settlement = b.ledger.Settlement()
		for _, id := range b.order {
			b.result.Touched = append(b.result.Touched, b.touched[id])
		}
	}

	b.e.metrics.BatchFinished(string(b.req.Operation), string(b.result.Status), b.e.now().Sub(b.started))
	fields := []zap.Field{
		zap.String("status", string(b.result.Status)),
		zap.Int("swaps", len(b.result.Swaps)),
		zap.Int("pools_touched", len(b.result.Touched)),
	}
	if b.result.Failure != nil {
		fields = append(fields, zap.Int("failed_leg", b.result.Failure.Leg), zap.String("reason", b.result.Failure.Reason))
	}
	b.logger.Info("swap batch finished", fields...)
	return b.result, nil
}
