package swap

import (
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"curveSwap/internal/model"
	"curveSwap/internal/payout"
	"curveSwap/internal/pool"
)

type Operation string

const (
	SwapNftsForTokens         Operation = "swap_nfts_for_tokens"
	SwapTokensForAnyNfts      Operation = "swap_tokens_for_any_nfts"
	SwapTokensForSpecificNfts Operation = "swap_tokens_for_specific_nfts"
	DirectSwapNftsForTokens   Operation = "direct_swap_nfts_for_tokens"
	DirectSwapTokensForNfts   Operation = "direct_swap_tokens_for_nfts"
)

// Status is the outcome of a batch.
type Status string

const (
	Completed          Status = "completed"
	PartiallyCompleted Status = "partially_completed"
	Aborted            Status = "aborted"
)

// Params apply to every leg of a batch.
type Params struct {
	// Deadline is checked before each leg. Zero means no deadline.
	Deadline time.Time `json:"deadline"`
	// Robust returns the filled prefix instead of aborting on an unfillable leg.
	Robust bool `json:"robust"`
	// AssetRecipient receives proceeds and items. Defaults to the sender.
	AssetRecipient *common.Address `json:"asset_recipient,omitempty"`
	// Finder receives pool swap fees instead of the pool's asset recipient.
	Finder *common.Address `json:"finder,omitempty"`
}

// SellOrder sells one item for at least MinOutput.
type SellOrder struct {
	ItemID    string       `json:"item_id"`
	MinOutput model.Amount `json:"min_output"`
}

// BuyOrder buys one item for at most MaxInput. PoolID and ItemID are set for
// specific buys, ItemID alone for direct buys, neither for buy-any.
type BuyOrder struct {
	PoolID   uint64       `json:"pool_id,omitempty"`
	ItemID   string       `json:"item_id,omitempty"`
	MaxInput model.Amount `json:"max_input"`
}

// Request identifies the market and parties of a batch.
type Request struct {
	Operation  Operation
	Collection common.Address
	Denom      string
	Sender     common.Address
	Params     Params
	// Payout prices every leg. Its Finder is overridden by Params.Finder.
	Payout payout.Context
}

func (r Request) recipient() common.Address {
	if r.Params.AssetRecipient != nil {
		return *r.Params.AssetRecipient
	}
	return r.Sender
}

// Swap is one executed leg.
type Swap struct {
	Leg    int    `json:"leg"`
	PoolID uint64 `json:"pool_id"`
	ItemID string `json:"item_id"`
	// Price is the seller amount for sales into a pool and the total for purchases.
	Price       model.Amount        `json:"price"`
	Quote       payout.QuoteSummary `json:"quote"`
	Deactivated bool                `json:"pool_deactivated,omitempty"`
}

// LegError is an unfillable leg. It wraps model.ErrSwap.
type LegError struct {
	Leg    int    `json:"leg"`
	Reason string `json:"reason"`
}

func (e *LegError) Error() string {
	return fmt.Sprintf("%s: leg %d: %s", model.ErrSwap, e.Leg, e.Reason)
}

func (e *LegError) Unwrap() error { return model.ErrSwap }

// Result is the outcome of one batch. Aborted results carry no swaps.
type Result struct {
	ID        uuid.UUID `json:"id"`
	Operation Operation `json:"operation"`
	Status    Status    `json:"status"`
	Swaps     []Swap    `json:"swaps"`
	Failure   *LegError `json:"failure,omitempty"`
	// Spent is the sum of purchase totals, Received the seller amounts paid
	// out for sales.
	Spent    model.Amount `json:"spent"`
	Received model.Amount `json:"received"`
	// Touched are the mutated pools in first-touch order. The caller persists
	// and republishes them.
	Touched    []*pool.Pool      `json:"-"`
	Settlement payout.Settlement `json:"settlement"`
}

// Err returns the failure of an aborted batch.
func (r *Result) Err() error {
	if r.Status == Aborted && r.Failure != nil {
		return r.Failure
	}
	return nil
}

// IsLegFailure reports whether err is an unfillable-leg failure.
func IsLegFailure(err error) bool {
	var legErr *LegError
	return errors.As(err, &legErr)
}
