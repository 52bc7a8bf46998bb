package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"curveSwap/internal/index"
	"curveSwap/internal/model"
)

const defaultPageSize = 32

// quoteIndex keeps the best-price index in the pool_quotes table, inside the
// caller's transaction.
type quoteIndex struct {
	tx       pgx.Tx
	pageSize int
}

func (q *quoteIndex) Publish(ctx context.Context, key index.Key, poolID uint64, quotes index.Quotes) error {
	batch := &pgx.Batch{}
	for _, side := range []index.Side{index.SellToPool, index.BuyFromPool} {
		price := quotes.Get(side)
		if price == nil {
			batch.Queue(`
				DELETE FROM pool_quotes WHERE collection=$1 AND denom=$2 AND side=$3 AND pool_id=$4
			`, key.Collection.Hex(), key.Denom, int16(side), int64(poolID))
			continue
		}
		batch.Queue(`
			INSERT INTO pool_quotes (collection, denom, side, pool_id, price)
			VALUES ($1, $2, $3, $4, $5::numeric)
			ON CONFLICT (collection, denom, side, pool_id)
			DO UPDATE SET price = EXCLUDED.price
		`, key.Collection.Hex(), key.Denom, int16(side), int64(poolID), price.String())
	}

	br := q.tx.SendBatch(ctx, batch)
	defer br.Close()

	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("publish pool %d: %w", poolID, err)
		}
	}
	return nil
}

func (q *quoteIndex) Remove(ctx context.Context, key index.Key, poolID uint64) error {
	return q.Publish(ctx, key, poolID, index.Quotes{})
}

func (q *quoteIndex) Cursor(_ context.Context, key index.Key, side index.Side) (index.Cursor, error) {
	return &pageCursor{tx: q.tx, key: key, side: side, pageSize: q.pageSize}, nil
}

// pageCursor reads one side of a market in pages, resuming after the last
// entry it returned (keyset pagination).
type pageCursor struct {
	tx       pgx.Tx
	key      index.Key
	side     index.Side
	pageSize int

	page []index.Entry
	pos  int
	last *index.Entry
	done bool
}

func (c *pageCursor) HasNext(ctx context.Context) (bool, error) {
	if c.pos < len(c.page) {
		return true, nil
	}
	if c.done {
		return false, nil
	}
	if err := c.fetch(ctx); err != nil {
		return false, err
	}
	return c.pos < len(c.page), nil
}

func (c *pageCursor) Peek() index.Entry { return c.page[c.pos] }

func (c *pageCursor) Advance() {
	if c.pos < len(c.page) {
		entry := c.page[c.pos]
		c.last = &entry
		c.pos++
	}
}

func (c *pageCursor) fetch(ctx context.Context) error {
	order, cmp := `price DESC, pool_id ASC`, `<`
	if c.side == index.BuyFromPool {
		order, cmp = `price ASC, pool_id ASC`, `>`
	}
	query := `SELECT pool_id, price::text FROM pool_quotes WHERE collection=$1 AND denom=$2 AND side=$3`
	args := []any{c.key.Collection.Hex(), c.key.Denom, int16(c.side)}
	if c.last != nil {
		args = append(args, c.last.Price.String(), int64(c.last.PoolID))
		query += fmt.Sprintf(` AND (price %s $4::numeric OR (price = $4::numeric AND pool_id > $5))`, cmp)
	}
	args = append(args, c.pageSize)
	query += fmt.Sprintf(` ORDER BY %s LIMIT $%d`, order, len(args))

	rows, err := c.tx.Query(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("query %s %s: %w", c.key, c.side, err)
	}
	defer rows.Close()

	page := make([]index.Entry, 0, c.pageSize)
	for rows.Next() {
		var (
			poolID int64
			price  string
		)
		if err := rows.Scan(&poolID, &price); err != nil {
			return err
		}
		amount, err := model.ParseAmount(price)
		if err != nil {
			return err
		}
		page = append(page, index.Entry{PoolID: uint64(poolID), Price: amount})
	}
	if err := rows.Err(); err != nil {
		return err
	}

	c.page, c.pos = page, 0
	c.done = len(page) < c.pageSize
	return nil
}
