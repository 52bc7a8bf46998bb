package market

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"

	"curveSwap/internal/payout"
	"curveSwap/internal/storage"
)

// ParamsSource supplies the protocol trading parameters.
type ParamsSource interface {
	Params(ctx context.Context) (payout.Params, error)
}

// RoyaltySource returns the royalty of a collection, or nil when it has none.
type RoyaltySource interface {
	Royalty(ctx context.Context, collection common.Address) (*payout.Royalty, error)
}

// OwnershipVerifier checks that owner holds every item before it is deposited
// or sold. It returns an error wrapping model.ErrUnauthorized otherwise.
type OwnershipVerifier interface {
	VerifyOwnership(ctx context.Context, collection, owner common.Address, itemIDs []string) error
}

// Journal records committed swap batches.
type Journal interface {
	Append(entries ...storage.JournalEntry) error
}

// StaticParams serves fixed parameters.
type StaticParams payout.Params

func (p StaticParams) Params(context.Context) (payout.Params, error) {
	return payout.Params(p), nil
}

// StaticRoyalties is a fixed royalty table keyed by collection.
type StaticRoyalties map[common.Address]payout.Royalty

func (r StaticRoyalties) Royalty(_ context.Context, collection common.Address) (*payout.Royalty, error) {
	royalty, ok := r[collection]
	if !ok {
		return nil, nil
	}
	return &royalty, nil
}

// FallbackRoyalties asks each source in turn and returns the first royalty
// found. Errors are returned only when no source has a royalty.
type FallbackRoyalties []RoyaltySource

func (f FallbackRoyalties) Royalty(ctx context.Context, collection common.Address) (*payout.Royalty, error) {
	var errs []error
	for _, src := range f {
		royalty, err := src.Royalty(ctx, collection)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if royalty != nil {
			return royalty, nil
		}
	}
	return nil, errors.Join(errs...)
}
