// Package memory is an in-process storage.Store.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"curveSwap/internal/index"
	"curveSwap/internal/pool"
	"curveSwap/internal/storage"
)

type state struct {
	// Stored pools are never mutated; writes replace the pointer.
	pools  map[uint64]*pool.Pool
	nextID uint64
	idx    *index.Memory
}

func (s *state) clone() *state {
	pools := make(map[uint64]*pool.Pool, len(s.pools))
	for id, p := range s.pools {
		pools[id] = p
	}
	return &state{pools: pools, nextID: s.nextID, idx: s.idx.Clone()}
}

// Store keeps committed state behind a mutex and runs each transaction
// against a copy-on-write snapshot.
type Store struct {
	mu      sync.RWMutex
	current *state
}

func NewStore() *Store {
	return &Store{current: &state{pools: make(map[uint64]*pool.Pool), nextID: 1, idx: index.NewMemory()}}
}

func (s *Store) Update(ctx context.Context, fn func(storage.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	working := s.current.clone()
	if err := fn(&tx{state: working}); err != nil {
		return err
	}
	s.current = working
	return nil
}

func (s *Store) View(ctx context.Context, fn func(storage.Tx) error) error {
	s.mu.RLock()
	working := s.current.clone()
	s.mu.RUnlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(&tx{state: working})
}

type tx struct {
	*state
}

func (t *tx) NextPoolID(context.Context) (uint64, error) {
	id := t.nextID
	t.nextID++
	return id, nil
}

func (t *tx) LoadPool(_ context.Context, id uint64) (*pool.Pool, error) {
	p, ok := t.pools[id]
	if !ok {
		return nil, fmt.Errorf("pool %d: %w", id, storage.ErrNotFound)
	}
	return p.Clone(), nil
}

func (t *tx) SavePool(_ context.Context, p *pool.Pool) error {
	t.pools[p.ID] = p.Clone()
	return nil
}

func (t *tx) DeletePool(_ context.Context, id uint64) error {
	if _, ok := t.pools[id]; !ok {
		return fmt.Errorf("pool %d: %w", id, storage.ErrNotFound)
	}
	delete(t.pools, id)
	return nil
}

func (t *tx) PoolsByOwner(_ context.Context, owner common.Address, opts storage.QueryOptions) ([]*pool.Pool, error) {
	ids := make([]uint64, 0)
	for id, p := range t.pools {
		if p.Owner != owner {
			continue
		}
		if opts.StartAfter != nil {
			if opts.Descending && id >= *opts.StartAfter {
				continue
			}
			if !opts.Descending && id <= *opts.StartAfter {
				continue
			}
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		if opts.Descending {
			return ids[i] > ids[j]
		}
		return ids[i] < ids[j]
	})
	if opts.Limit > 0 && len(ids) > opts.Limit {
		ids = ids[:opts.Limit]
	}

	out := make([]*pool.Pool, 0, len(ids))
	for _, id := range ids {
		out = append(out, t.pools[id].Clone())
	}
	return out, nil
}

func (t *tx) Index() index.Index { return t.idx }
