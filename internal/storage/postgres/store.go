package postgres

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"curveSwap/internal/index"
	"curveSwap/internal/pool"
	"curveSwap/internal/storage"
)

//go:embed schema.sql
var schemaSQL string

// writerLockKey serializes Update transactions across processes.
const writerLockKey int64 = 0x63757276

// Store provides Postgres persistence for pools and the quote index.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Migrate applies the bootstrap schema. It is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (s *Store) Update(ctx context.Context, fn func(storage.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, writerLockKey); err != nil {
		return fmt.Errorf("acquire writer lock: %w", err)
	}
	if err := fn(&pgTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *Store) View(ctx context.Context, fn func(storage.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	return fn(&pgTx{tx: tx})
}

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) NextPoolID(ctx context.Context) (uint64, error) {
	var id int64
	if err := t.tx.QueryRow(ctx, `SELECT nextval('pool_id_seq')`).Scan(&id); err != nil {
		return 0, fmt.Errorf("next pool id: %w", err)
	}
	return uint64(id), nil
}

func (t *pgTx) LoadPool(ctx context.Context, id uint64) (*pool.Pool, error) {
	var body []byte
	err := t.tx.QueryRow(ctx, `SELECT body FROM pools WHERE id=$1`, int64(id)).Scan(&body)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("pool %d: %w", id, storage.ErrNotFound)
		}
		return nil, fmt.Errorf("load pool %d: %w", id, err)
	}
	return decodePool(body)
}

func (t *pgTx) SavePool(ctx context.Context, p *pool.Pool) error {
	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal pool %d: %w", p.ID, err)
	}
	_, err = t.tx.Exec(ctx, `
		INSERT INTO pools (id, collection, denom, owner, body, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, now(), now())
		ON CONFLICT (id) DO UPDATE SET
			body = EXCLUDED.body,
			updated_at = now()
	`,
		int64(p.ID),
		p.Collection.Hex(),
		p.Denom,
		p.Owner.Hex(),
		body,
	)
	if err != nil {
		return fmt.Errorf("save pool %d: %w", p.ID, err)
	}
	return nil
}

func (t *pgTx) DeletePool(ctx context.Context, id uint64) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM pools WHERE id=$1`, int64(id))
	if err != nil {
		return fmt.Errorf("delete pool %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("pool %d: %w", id, storage.ErrNotFound)
	}
	return nil
}

func (t *pgTx) PoolsByOwner(ctx context.Context, owner common.Address, opts storage.QueryOptions) ([]*pool.Pool, error) {
	query := `SELECT body FROM pools WHERE owner=$1`
	args := []any{owner.Hex()}
	if opts.StartAfter != nil {
		args = append(args, int64(*opts.StartAfter))
		if opts.Descending {
			query += ` AND id < $2`
		} else {
			query += ` AND id > $2`
		}
	}
	if opts.Descending {
		query += ` ORDER BY id DESC`
	} else {
		query += ` ORDER BY id ASC`
	}
	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}

	rows, err := t.tx.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("pools by owner: %w", err)
	}
	defer rows.Close()

	var out []*pool.Pool
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, err
		}
		p, err := decodePool(body)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (t *pgTx) Index() index.Index {
	return &quoteIndex{tx: t.tx, pageSize: defaultPageSize}
}

func decodePool(body []byte) (*pool.Pool, error) {
	var p pool.Pool
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("decode pool: %w", err)
	}
	return &p, nil
}
