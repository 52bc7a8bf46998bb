package storage

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"

	"curveSwap/internal/index"
	"curveSwap/internal/pool"
)

// ErrNotFound is returned when a pool does not exist.
var ErrNotFound = errors.New("not found")

// QueryOptions pages through pools by id.
type QueryOptions struct {
	StartAfter *uint64
	Limit      int
	Descending bool
}

// Tx is one unit of work. Pools returned by LoadPool are private copies;
// changes are visible to the transaction only after SavePool.
type Tx interface {
	NextPoolID(ctx context.Context) (uint64, error)
	LoadPool(ctx context.Context, id uint64) (*pool.Pool, error)
	SavePool(ctx context.Context, p *pool.Pool) error
	DeletePool(ctx context.Context, id uint64) error
	PoolsByOwner(ctx context.Context, owner common.Address, opts QueryOptions) ([]*pool.Pool, error)
	Index() index.Index
}

// Store runs transactions. Update commits when fn returns nil and discards
// otherwise; View always discards, so fn may write freely.
type Store interface {
	Update(ctx context.Context, fn func(Tx) error) error
	View(ctx context.Context, fn func(Tx) error) error
}
