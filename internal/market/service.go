// Package market is the public surface of the exchange: pool management,
// swaps and queries, each run as one storage transaction.
package market

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"curveSwap/internal/model"
	"curveSwap/internal/observability"
	"curveSwap/internal/payout"
	"curveSwap/internal/pool"
	"curveSwap/internal/storage"
	"curveSwap/internal/swap"
)

type Options struct {
	Store  storage.Store
	Params ParamsSource
	// Royalties, Ownership and Journal are optional.
	Royalties RoyaltySource
	Ownership OwnershipVerifier
	Journal   Journal
	Logger    *zap.Logger
	Metrics   *observability.Metrics
	Now       func() time.Time
}

type Service struct {
	store     storage.Store
	params    ParamsSource
	royalties RoyaltySource
	ownership OwnershipVerifier
	journal   Journal
	engine    *swap.Engine
	logger    *zap.Logger
	metrics   *observability.Metrics
	now       func() time.Time
}

func NewService(opts Options) (*Service, error) {
	if opts.Store == nil {
		return nil, errors.New("market: store is required")
	}
	if opts.Params == nil {
		return nil, errors.New("market: params source is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		store:     opts.Store,
		params:    opts.Params,
		royalties: opts.Royalties,
		ownership: opts.Ownership,
		journal:   opts.Journal,
		engine:    swap.NewEngine(logger, opts.Metrics, now),
		logger:    logger,
		metrics:   opts.Metrics,
		now:       now,
	}, nil
}

// Receipt is the outcome of a pool management call.
type Receipt struct {
	// Pool is the pool after the call; nil once removed.
	Pool       *pool.Pool        `json:"pool,omitempty"`
	Settlement payout.Settlement `json:"settlement"`
}

type CreatePoolRequest struct {
	Sender     common.Address
	Collection common.Address
	Denom      string
	Config     pool.Config
	// Funds is the amount attached to the call. It must equal the listing fee.
	Funds model.Amount
}

// CreatePool allocates a pool and burns the listing fee.
func (s *Service) CreatePool(ctx context.Context, req CreatePoolRequest) (receipt *Receipt, err error) {
	defer func() { s.done("create_pool", err, receipt) }()

	if req.Collection == (common.Address{}) {
		return nil, fmt.Errorf("%w: collection is required", model.ErrInvalidInput)
	}
	pctx, err := s.payoutContext(ctx, req.Collection)
	if err != nil {
		return nil, err
	}
	if req.Funds != pctx.Params.ListingFee {
		return nil, fmt.Errorf("%w: attached %s, listing fee is %s", model.ErrInvalidListingFee, req.Funds, pctx.Params.ListingFee)
	}

	err = s.store.Update(ctx, func(tx storage.Tx) error {
		id, err := tx.NextPoolID(ctx)
		if err != nil {
			return err
		}
		p, err := pool.New(id, req.Collection, req.Denom, req.Sender, req.Config)
		if err != nil {
			return err
		}
		if err := p.CheckFees(pctx); err != nil {
			return err
		}
		ledger := payout.NewLedger(req.Denom, pctx.Params.FairBurnRecipient)
		if err := ledger.Burn(req.Funds); err != nil {
			return err
		}
		if err := persist(ctx, tx, p, pctx); err != nil {
			return err
		}
		receipt = &Receipt{Pool: p, Settlement: ledger.Settlement()}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return receipt, nil
}

// DepositTokens adds the attached funds to a pool's balance.
func (s *Service) DepositTokens(ctx context.Context, sender common.Address, poolID uint64, funds model.Amount) (receipt *Receipt, err error) {
	defer func() { s.done("deposit_tokens", err, receipt) }()
	return s.manage(ctx, sender, poolID, func(p *pool.Pool, _ *payout.Ledger, _ payout.Context) error {
		return p.DepositTokens(funds)
	})
}

// DepositNfts moves items from the sender into a pool.
func (s *Service) DepositNfts(ctx context.Context, sender common.Address, poolID uint64, collection common.Address, itemIDs []string) (receipt *Receipt, err error) {
	defer func() { s.done("deposit_nfts", err, receipt) }()

	if s.ownership != nil && len(itemIDs) > 0 {
		if err := s.ownership.VerifyOwnership(ctx, collection, sender, itemIDs); err != nil {
			return nil, err
		}
	}
	return s.manage(ctx, sender, poolID, func(p *pool.Pool, l *payout.Ledger, pctx payout.Context) error {
		if p.Collection != collection {
			return fmt.Errorf("%w: pool %d trades %s, not %s", model.ErrInvalidInput, p.ID, p.Collection.Hex(), collection.Hex())
		}
		if err := p.DepositItems(itemIDs); err != nil {
			return err
		}
		for _, id := range itemIDs {
			l.TransferItem(collection, id, sender, pctx.Params.Custody)
		}
		return nil
	})
}

// WithdrawTokens pays amount out of a pool to recipient, or to the sender.
func (s *Service) WithdrawTokens(ctx context.Context, sender common.Address, poolID uint64, amount model.Amount, recipient *common.Address) (receipt *Receipt, err error) {
	defer func() { s.done("withdraw_tokens", err, receipt) }()
	return s.manage(ctx, sender, poolID, func(p *pool.Pool, l *payout.Ledger, _ payout.Context) error {
		if err := p.WithdrawTokens(amount); err != nil {
			return err
		}
		return l.Pay(orSender(recipient, sender), amount)
	})
}

func (s *Service) WithdrawAllTokens(ctx context.Context, sender common.Address, poolID uint64, recipient *common.Address) (receipt *Receipt, err error) {
	defer func() { s.done("withdraw_all_tokens", err, receipt) }()
	return s.manage(ctx, sender, poolID, func(p *pool.Pool, l *payout.Ledger, _ payout.Context) error {
		return l.Pay(orSender(recipient, sender), p.WithdrawAllTokens())
	})
}

func (s *Service) WithdrawNfts(ctx context.Context, sender common.Address, poolID uint64, itemIDs []string, recipient *common.Address) (receipt *Receipt, err error) {
	defer func() { s.done("withdraw_nfts", err, receipt) }()
	return s.manage(ctx, sender, poolID, func(p *pool.Pool, l *payout.Ledger, pctx payout.Context) error {
		if err := p.WithdrawItems(itemIDs); err != nil {
			return err
		}
		for _, id := range itemIDs {
			l.TransferItem(p.Collection, id, pctx.Params.Custody, orSender(recipient, sender))
		}
		return nil
	})
}

func (s *Service) WithdrawAllNfts(ctx context.Context, sender common.Address, poolID uint64, recipient *common.Address) (receipt *Receipt, err error) {
	defer func() { s.done("withdraw_all_nfts", err, receipt) }()
	return s.manage(ctx, sender, poolID, func(p *pool.Pool, l *payout.Ledger, pctx payout.Context) error {
		for _, id := range p.WithdrawAllItems() {
			l.TransferItem(p.Collection, id, pctx.Params.Custody, orSender(recipient, sender))
		}
		return nil
	})
}

func (s *Service) UpdatePoolConfig(ctx context.Context, sender common.Address, poolID uint64, update pool.ConfigUpdate) (receipt *Receipt, err error) {
	defer func() { s.done("update_pool_config", err, receipt) }()
	return s.manage(ctx, sender, poolID, func(p *pool.Pool, _ *payout.Ledger, pctx payout.Context) error {
		if err := p.UpdateConfig(update); err != nil {
			return err
		}
		return p.CheckFees(pctx)
	})
}

func (s *Service) SetActivePool(ctx context.Context, sender common.Address, poolID uint64, active bool) (receipt *Receipt, err error) {
	defer func() { s.done("set_active_pool", err, receipt) }()
	return s.manage(ctx, sender, poolID, func(p *pool.Pool, _ *payout.Ledger, _ payout.Context) error {
		p.SetActive(active)
		return nil
	})
}

// RemovePool deletes an empty-of-items pool and pays out its tokens.
func (s *Service) RemovePool(ctx context.Context, sender common.Address, poolID uint64, recipient *common.Address) (receipt *Receipt, err error) {
	defer func() { s.done("remove_pool", err, receipt) }()

	params, err := s.protocolParams(ctx)
	if err != nil {
		return nil, err
	}
	err = s.store.Update(ctx, func(tx storage.Tx) error {
		p, err := ownedPool(ctx, tx, sender, poolID)
		if err != nil {
			return err
		}
		if len(p.Items) > 0 {
			return fmt.Errorf("%w: pool %d still holds %d items", model.ErrInvalidPool, p.ID, len(p.Items))
		}
		ledger := payout.NewLedger(p.Denom, params.FairBurnRecipient)
		if err := ledger.Pay(orSender(recipient, sender), p.WithdrawAllTokens()); err != nil {
			return err
		}
		if err := tx.Index().Remove(ctx, p.IndexKey(), p.ID); err != nil {
			return err
		}
		if err := tx.DeletePool(ctx, p.ID); err != nil {
			return err
		}
		receipt = &Receipt{Settlement: ledger.Settlement()}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return receipt, nil
}

type manageFunc func(p *pool.Pool, l *payout.Ledger, pctx payout.Context) error

// manage applies fn to an owned pool, re-prices it and writes it back.
func (s *Service) manage(ctx context.Context, sender common.Address, poolID uint64, fn manageFunc) (*Receipt, error) {
	collection, err := s.poolCollection(ctx, poolID)
	if err != nil {
		return nil, err
	}
	pctx, err := s.payoutContext(ctx, collection)
	if err != nil {
		return nil, err
	}

	var receipt *Receipt
	err = s.store.Update(ctx, func(tx storage.Tx) error {
		p, err := ownedPool(ctx, tx, sender, poolID)
		if err != nil {
			return err
		}
		ledger := payout.NewLedger(p.Denom, pctx.Params.FairBurnRecipient)
		if err := fn(p, ledger, pctx); err != nil {
			return err
		}
		if err := persist(ctx, tx, p, pctx); err != nil {
			return err
		}
		receipt = &Receipt{Pool: p, Settlement: ledger.Settlement()}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return receipt, nil
}

func ownedPool(ctx context.Context, tx storage.Tx, sender common.Address, poolID uint64) (*pool.Pool, error) {
	p, err := loadPool(ctx, tx, poolID)
	if err != nil {
		return nil, err
	}
	if p.Owner != sender {
		return nil, fmt.Errorf("%w: %s does not own pool %d", model.ErrUnauthorized, sender.Hex(), poolID)
	}
	return p, nil
}

func loadPool(ctx context.Context, tx storage.Tx, poolID uint64) (*pool.Pool, error) {
	p, err := tx.LoadPool(ctx, poolID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: pool %d does not exist", model.ErrInvalidPool, poolID)
	}
	return p, err
}

// persist re-prices p, saves it and republishes its quotes.
func persist(ctx context.Context, tx storage.Tx, p *pool.Pool, pctx payout.Context) error {
	if err := p.RefreshQuotes(pctx); err != nil {
		return err
	}
	if err := tx.SavePool(ctx, p); err != nil {
		return err
	}
	return p.Publish(ctx, tx.Index())
}

// poolCollection reads the collection of a pool outside the write transaction,
// so royalty lookups never run under the writer lock.
func (s *Service) poolCollection(ctx context.Context, poolID uint64) (common.Address, error) {
	var collection common.Address
	err := s.store.View(ctx, func(tx storage.Tx) error {
		p, err := loadPool(ctx, tx, poolID)
		if err != nil {
			return err
		}
		collection = p.Collection
		return nil
	})
	return collection, err
}

func (s *Service) protocolParams(ctx context.Context) (payout.Params, error) {
	params, err := s.params.Params(ctx)
	if err != nil {
		return payout.Params{}, fmt.Errorf("load params: %w", err)
	}
	if err := params.Validate(); err != nil {
		return payout.Params{}, err
	}
	return params, nil
}

// payoutContext prices trades of collection under the current parameters.
func (s *Service) payoutContext(ctx context.Context, collection common.Address) (payout.Context, error) {
	params, err := s.protocolParams(ctx)
	if err != nil {
		return payout.Context{}, err
	}
	pctx := payout.Context{Params: params}
	if s.royalties == nil {
		return pctx, nil
	}
	royalty, err := s.royalties.Royalty(ctx, collection)
	if err != nil {
		return payout.Context{}, fmt.Errorf("royalty of %s: %w", collection.Hex(), err)
	}
	if royalty != nil {
		if err := royalty.Validate(); err != nil {
			return payout.Context{}, err
		}
		pctx.Royalty = royalty
	}
	return pctx, nil
}

func (s *Service) done(op string, err error, receipt *Receipt) {
	s.metrics.Operation(op, err)
	if err != nil {
		s.logger.Debug("operation rejected", zap.String("operation", op), zap.Error(err))
		return
	}
	fields := []zap.Field{zap.String("operation", op)}
	if receipt != nil && receipt.Pool != nil {
		fields = append(fields, zap.Uint64("pool_id", receipt.Pool.ID))
	}
	s.logger.Info("operation committed", fields...)
}

func orSender(recipient *common.Address, sender common.Address) common.Address {
	if recipient != nil {
		return *recipient
	}
	return sender
}
