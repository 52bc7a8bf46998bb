package swap

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"curveSwap/internal/index"
	"curveSwap/internal/model"
	"curveSwap/internal/pool"
	"curveSwap/internal/storage"
)

// router picks the best pool of a market for each leg. It pulls index
// entries lazily: only while the next entry could beat the best pool
// already fetched.
type router struct {
	b      *batch
	side   index.Side
	key    index.Key
	ws     *workingSet
	cursor index.Cursor
}

func (b *batch) newRouter(side index.Side) *router {
	return &router{
		b:    b,
		side: side,
		key:  index.Key{Collection: b.req.Collection, Denom: b.req.Denom},
		ws:   newWorkingSet(side),
	}
}

// next returns the best pool for leg, or a LegError when none quotes.
func (r *router) next(leg int) (*pool.Pool, error) {
	if err := r.fill(); err != nil {
		return nil, err
	}
	best, ok := r.ws.best()
	if !ok {
		return nil, &LegError{Leg: leg, Reason: fmt.Sprintf("no pool %s for %s", r.side, r.key)}
	}
	return best, nil
}

func (r *router) fill() error {
	ctx := r.b.ctx
	if r.cursor == nil {
		cursor, err := r.b.src.Index().Cursor(ctx, r.key, r.side)
		if err != nil {
			return err
		}
		r.cursor = cursor
	}
	for {
		ok, err := r.cursor.HasNext(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		entry := r.cursor.Peek()
		if r.ws.beats(entry) {
			return nil
		}
		r.cursor.Advance()
		if r.b.loaded[entry.PoolID] {
			continue
		}
		p, err := r.b.src.LoadPool(ctx, entry.PoolID)
		if errors.Is(err, storage.ErrNotFound) {
			r.b.logger.Warn("index entry without pool", zap.Uint64("pool_id", entry.PoolID))
			continue
		}
		if err != nil {
			return err
		}
		if p.Collection != r.key.Collection || p.Denom != r.key.Denom {
			return fmt.Errorf("%w: index lists pool %d under %s", model.ErrInvalidPool, p.ID, r.key)
		}
		if err := p.RefreshQuotes(r.b.pctx); err != nil {
			return err
		}
		r.b.loaded[p.ID] = true
		r.b.e.metrics.CandidateFetched(r.side.String())
		if !r.ws.add(p) {
			r.b.logger.Debug("fetched pool has no quote", zap.Uint64("pool_id", p.ID), zap.String("side", r.side.String()))
		}
	}
}
