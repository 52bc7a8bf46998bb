// Package index ranks pools of a (collection, denom) market by their best
// executable price.
package index

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"curveSwap/internal/model"
)

// Side is one direction of a market.
type Side int

const (
	// SellToPool ranks pools by the seller amount they pay for an item, highest first.
	SellToPool Side = iota
	// BuyFromPool ranks pools by the total they charge for an item, lowest first.
	BuyFromPool
)

func (s Side) String() string {
	switch s {
	case SellToPool:
		return "sell_to_pool"
	case BuyFromPool:
		return "buy_from_pool"
	default:
		return fmt.Sprintf("side(%d)", int(s))
	}
}

// ParseSide accepts the names produced by String.
func ParseSide(s string) (Side, error) {
	switch s {
	case "sell_to_pool", "sell":
		return SellToPool, nil
	case "buy_from_pool", "buy":
		return BuyFromPool, nil
	default:
		return 0, fmt.Errorf("%w: unknown side %q", model.ErrInvalidInput, s)
	}
}

// Key identifies a market.
type Key struct {
	Collection common.Address `json:"collection"`
	Denom      string         `json:"denom"`
}

func (k Key) String() string { return k.Collection.Hex() + "/" + k.Denom }

// Entry is one ranked pool.
type Entry struct {
	PoolID uint64       `json:"pool_id"`
	Price  model.Amount `json:"price"`
}

// Better reports whether a ranks ahead of b. Ties go to the lower pool id.
func (s Side) Better(a, b Entry) bool {
	switch c := a.Price.Cmp(b.Price); {
	case c == 0:
		return a.PoolID < b.PoolID
	case s == SellToPool:
		return c > 0
	default:
		return c < 0
	}
}

// Quotes are the prices a pool publishes. A nil side takes the pool off that side.
type Quotes struct {
	SellToPool  *model.Amount
	BuyFromPool *model.Amount
}

// Get returns the quote for side.
func (q Quotes) Get(s Side) *model.Amount {
	if s == SellToPool {
		return q.SellToPool
	}
	return q.BuyFromPool
}

// Index is the best-price registry. Implementations must reflect Publish and
// Remove in cursors opened afterwards within the same transaction.
type Index interface {
	Publish(ctx context.Context, key Key, poolID uint64, quotes Quotes) error
	Remove(ctx context.Context, key Key, poolID uint64) error
	Cursor(ctx context.Context, key Key, side Side) (Cursor, error)
}

// Cursor walks one side of a market in rank order. It cannot be rewound;
// open a new cursor to start over.
type Cursor interface {
	// HasNext reports whether Peek has an entry, loading more if needed.
	HasNext(ctx context.Context) (bool, error)
	// Peek returns the current entry. Only valid after HasNext returned true.
	Peek() Entry
	Advance()
}

// Top collects up to limit entries from a fresh cursor.
func Top(ctx context.Context, idx Index, key Key, side Side, limit int) ([]Entry, error) {
	cursor, err := idx.Cursor(ctx, key, side)
	if err != nil {
		return nil, err
	}
	var out []Entry
	for limit <= 0 || len(out) < limit {
		ok, err := cursor.HasNext(ctx)
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		out = append(out, cursor.Peek())
		cursor.Advance()
	}
	return out, nil
}
