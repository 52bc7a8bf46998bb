package chain

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"curveSwap/internal/payout"
)

// referenceSalePrice is the sale price royaltyInfo is asked about. The
// royalty percent is the returned amount over it.
var referenceSalePrice = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

// RoyaltyLookup reads ERC-2981 royalties from collection contracts. Answers
// are cached per collection, including "no royalty".
type RoyaltyLookup struct {
	caller Caller
	retry  RetryPolicy
	logger *zap.Logger

	mu    sync.RWMutex
	cache map[common.Address]*payout.Royalty
}

func NewRoyaltyLookup(caller Caller, retry RetryPolicy, logger *zap.Logger) *RoyaltyLookup {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RoyaltyLookup{
		caller: caller,
		retry:  retry,
		logger: logger,
		cache:  make(map[common.Address]*payout.Royalty),
	}
}

func (l *RoyaltyLookup) Royalty(ctx context.Context, collection common.Address) (*payout.Royalty, error) {
	l.mu.RLock()
	royalty, ok := l.cache[collection]
	l.mu.RUnlock()
	if ok {
		return copyRoyalty(royalty), nil
	}

	var values []interface{}
	err := l.retry.do(ctx, l.logger, "royaltyInfo", func(ctx context.Context) error {
		var err error
		values, err = callMethod(ctx, l.caller, collection, "royaltyInfo", big.NewInt(0), referenceSalePrice)
		return err
	})
	switch {
	case err != nil && isRevert(err):
		l.logger.Debug("collection has no royalty info", zap.String("collection", collection.Hex()), zap.Error(err))
		royalty = nil
	case err != nil:
		return nil, err
	default:
		royalty, err = decodeRoyalty(values)
		if err != nil {
			return nil, fmt.Errorf("royalty of %s: %w", collection.Hex(), err)
		}
	}

	l.mu.Lock()
	l.cache[collection] = royalty
	l.mu.Unlock()
	return copyRoyalty(royalty), nil
}

func decodeRoyalty(values []interface{}) (*payout.Royalty, error) {
	if len(values) < 2 {
		return nil, fmt.Errorf("royaltyInfo returned %d values", len(values))
	}
	receiver, err := asAddress(values[0])
	if err != nil {
		return nil, err
	}
	amount, err := asBigInt(values[1])
	if err != nil {
		return nil, err
	}
	if receiver == (common.Address{}) || amount.Sign() == 0 {
		return nil, nil
	}
	percent := decimal.NewFromBigInt(amount, 0).Div(decimal.NewFromBigInt(referenceSalePrice, 0))
	royalty := &payout.Royalty{Percent: percent, Recipient: receiver}
	if err := royalty.Validate(); err != nil {
		return nil, err
	}
	return royalty, nil
}

func copyRoyalty(r *payout.Royalty) *payout.Royalty {
	if r == nil {
		return nil
	}
	out := *r
	return &out
}
