// Package payout splits a gross trade amount into fee payments and seller
// proceeds, and aggregates them into settlement instructions.
package payout

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"curveSwap/internal/model"
)

// Payment is an amount owed to one recipient.
type Payment struct {
	Amount    model.Amount   `json:"amount"`
	Recipient common.Address `json:"recipient"`
}

// QuoteSummary itemizes one gross trade amount.
type QuoteSummary struct {
	FairBurn     Payment      `json:"fair_burn"`
	Royalty      *Payment     `json:"royalty,omitempty"`
	SwapFee      *Payment     `json:"swap_fee,omitempty"`
	SellerAmount model.Amount `json:"seller_amount"`
}

// Total reconstructs the gross amount. The parts are carved out of a gross
// that fits, so an overflow here is a broken invariant.
func (q QuoteSummary) Total() model.Amount {
	total := mustAdd(q.FairBurn.Amount, q.SellerAmount)
	if q.Royalty != nil {
		total = mustAdd(total, q.Royalty.Amount)
	}
	if q.SwapFee != nil {
		total = mustAdd(total, q.SwapFee.Amount)
	}
	return total
}

func mustAdd(a, b model.Amount) model.Amount {
	sum, err := a.Add(b)
	if err != nil {
		panic(fmt.Sprintf("quote summary total: %v", err))
	}
	return sum
}

// Params are the protocol-wide trading parameters.
type Params struct {
	TradingFeePercent decimal.Decimal `json:"trading_fee_percent"`
	ListingFee        model.Amount    `json:"listing_fee"`
	FairBurnRecipient common.Address  `json:"fair_burn_recipient"`
	// Custody holds pool tokens and items on the host ledger.
	Custody common.Address `json:"custody"`
}

func (p Params) Validate() error {
	return validatePercent("trading fee", p.TradingFeePercent)
}

// Royalty is the royalty a collection declares.
type Royalty struct {
	Percent   decimal.Decimal `json:"percent"`
	Recipient common.Address  `json:"recipient"`
}

func (r Royalty) Validate() error {
	return validatePercent("royalty", r.Percent)
}

func validatePercent(name string, pct decimal.Decimal) error {
	if pct.IsNegative() || pct.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("%w: %s percent %s outside [0, 1]", model.ErrInvalidInput, name, pct)
	}
	return nil
}

// Context carries everything needed to price trades of one collection in one call.
type Context struct {
	Params  Params
	Royalty *Royalty
	// Finder receives the pool swap fee when set.
	Finder *common.Address
}

// BuildQuoteSummary deducts the protocol fee, royalty and swap fee from gross,
// each as a floor of a percentage of gross. The remainder is the seller amount.
func (c Context) BuildQuoteSummary(gross model.Amount, swapFeePercent decimal.Decimal, assetRecipient common.Address) (QuoteSummary, error) {
	remaining := gross

	burn, err := gross.MulDecimalFloor(c.Params.TradingFeePercent)
	if err != nil {
		return QuoteSummary{}, fmt.Errorf("protocol fee: %w", err)
	}
	if remaining, err = remaining.Sub(burn); err != nil {
		return QuoteSummary{}, fmt.Errorf("protocol fee: %w", err)
	}
	summary := QuoteSummary{
		FairBurn: Payment{Amount: burn, Recipient: c.Params.FairBurnRecipient},
	}

	if c.Royalty != nil {
		royalty, err := gross.MulDecimalFloor(c.Royalty.Percent)
		if err != nil {
			return QuoteSummary{}, fmt.Errorf("royalty: %w", err)
		}
		if remaining, err = remaining.Sub(royalty); err != nil {
			return QuoteSummary{}, fmt.Errorf("royalty: %w", err)
		}
		if !royalty.IsZero() {
			summary.Royalty = &Payment{Amount: royalty, Recipient: c.Royalty.Recipient}
		}
	}

	if !swapFeePercent.IsZero() {
		fee, err := gross.MulDecimalFloor(swapFeePercent)
		if err != nil {
			return QuoteSummary{}, fmt.Errorf("swap fee: %w", err)
		}
		if remaining, err = remaining.Sub(fee); err != nil {
			return QuoteSummary{}, fmt.Errorf("swap fee: %w", err)
		}
		if !fee.IsZero() {
			recipient := assetRecipient
			if c.Finder != nil {
				recipient = *c.Finder
			}
			summary.SwapFee = &Payment{Amount: fee, Recipient: recipient}
		}
	}

	summary.SellerAmount = remaining
	return summary, nil
}

// WithFinder returns a copy of c that routes swap fees to finder.
func (c Context) WithFinder(finder *common.Address) Context {
	c.Finder = finder
	return c
}
