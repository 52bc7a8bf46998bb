package chain

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"curveSwap/internal/model"
)

// OwnershipVerifier checks item ownership with ERC-721 ownerOf.
type OwnershipVerifier struct {
	caller Caller
	retry  RetryPolicy
	logger *zap.Logger
}

func NewOwnershipVerifier(caller Caller, retry RetryPolicy, logger *zap.Logger) *OwnershipVerifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OwnershipVerifier{caller: caller, retry: retry, logger: logger}
}

func (v *OwnershipVerifier) VerifyOwnership(ctx context.Context, collection, owner common.Address, itemIDs []string) error {
	for _, itemID := range itemIDs {
		id, ok := tokenID(itemID)
		if !ok {
			return fmt.Errorf("%w: item id %q is not a token id", model.ErrInvalidInput, itemID)
		}

		var values []interface{}
		err := v.retry.do(ctx, v.logger, "ownerOf", func(ctx context.Context) error {
			var err error
			values, err = callMethod(ctx, v.caller, collection, "ownerOf", id)
			return err
		})
		if err != nil {
			if isRevert(err) {
				return fmt.Errorf("%w: item %s of %s: %v", model.ErrUnauthorized, itemID, collection.Hex(), err)
			}
			return err
		}
		if len(values) == 0 {
			return fmt.Errorf("ownerOf returned no values")
		}
		holder, err := asAddress(values[0])
		if err != nil {
			return err
		}
		if holder != owner {
			return fmt.Errorf("%w: item %s is held by %s", model.ErrUnauthorized, itemID, holder.Hex())
		}
	}
	return nil
}
