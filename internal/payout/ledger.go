package payout

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"

	"curveSwap/internal/model"
)

// ItemTransfer moves one item between accounts.
type ItemTransfer struct {
	Collection common.Address `json:"collection"`
	ItemID     string         `json:"item_id"`
	From       common.Address `json:"from"`
	Recipient  common.Address `json:"recipient"`
}

// Settlement is what the host ledger must execute for one committed call.
type Settlement struct {
	Denom         string         `json:"denom"`
	FairBurn      Payment        `json:"fair_burn"`
	TokenPayments []Payment      `json:"token_payments"`
	ItemTransfers []ItemTransfer `json:"item_transfers"`
}

// IsEmpty reports whether the settlement moves nothing.
func (s Settlement) IsEmpty() bool {
	return s.FairBurn.Amount.IsZero() && len(s.TokenPayments) == 0 && len(s.ItemTransfers) == 0
}

// PaymentTo returns the aggregated token payment to recipient.
func (s Settlement) PaymentTo(recipient common.Address) model.Amount {
	for _, p := range s.TokenPayments {
		if p.Recipient == recipient {
			return p.Amount
		}
	}
	return model.Amount{}
}

// WithPayment returns a copy of s with amount added to recipient's payment.
func (s Settlement) WithPayment(recipient common.Address, amount model.Amount) (Settlement, error) {
	l := NewLedger(s.Denom, s.FairBurn.Recipient)
	l.burn = s.FairBurn.Amount
	for _, p := range s.TokenPayments {
		l.payments[p.Recipient] = p.Amount
	}
	l.transfers = s.ItemTransfers
	if err := l.Pay(recipient, amount); err != nil {
		return Settlement{}, err
	}
	return l.Settlement(), nil
}

// Ledger accumulates the payments of a call, one entry per recipient. Token
// payments are paid out of custody.
type Ledger struct {
	denom     string
	burnTo    common.Address
	burn      model.Amount
	payments  map[common.Address]model.Amount
	transfers []ItemTransfer
}

func NewLedger(denom string, fairBurnRecipient common.Address) *Ledger {
	return &Ledger{
		denom:    denom,
		burnTo:   fairBurnRecipient,
		payments: make(map[common.Address]model.Amount),
	}
}

// AddFees records the fee legs of q. The seller amount is left to the caller,
// since who receives it depends on the trade direction.
func (l *Ledger) AddFees(q QuoteSummary) error {
	if err := l.Burn(q.FairBurn.Amount); err != nil {
		return err
	}
	if q.Royalty != nil {
		if err := l.Pay(q.Royalty.Recipient, q.Royalty.Amount); err != nil {
			return err
		}
	}
	if q.SwapFee != nil {
		if err := l.Pay(q.SwapFee.Recipient, q.SwapFee.Amount); err != nil {
			return err
		}
	}
	return nil
}

func (l *Ledger) Burn(amount model.Amount) error {
	next, err := l.burn.Add(amount)
	if err != nil {
		return fmt.Errorf("fair burn: %w", err)
	}
	l.burn = next
	return nil
}

// Pay adds amount to recipient's aggregated payment. Zero amounts are dropped.
func (l *Ledger) Pay(recipient common.Address, amount model.Amount) error {
	if amount.IsZero() {
		return nil
	}
	next, err := l.payments[recipient].Add(amount)
	if err != nil {
		return fmt.Errorf("payment to %s: %w", recipient.Hex(), err)
	}
	l.payments[recipient] = next
	return nil
}

func (l *Ledger) TransferItem(collection common.Address, itemID string, from, to common.Address) {
	l.transfers = append(l.transfers, ItemTransfer{Collection: collection, ItemID: itemID, From: from, Recipient: to})
}

// Settlement returns the aggregated instructions. Payments are sorted by
// recipient; item transfers keep execution order.
func (l *Ledger) Settlement() Settlement {
	payments := make([]Payment, 0, len(l.payments))
	for recipient, amount := range l.payments {
		payments = append(payments, Payment{Amount: amount, Recipient: recipient})
	}
	sort.Slice(payments, func(i, j int) bool {
		return bytes.Compare(payments[i].Recipient.Bytes(), payments[j].Recipient.Bytes()) < 0
	})

	transfers := make([]ItemTransfer, len(l.transfers))
	copy(transfers, l.transfers)

	return Settlement{
		Denom:         l.denom,
		FairBurn:      Payment{Amount: l.burn, Recipient: l.burnTo},
		TokenPayments: payments,
		ItemTransfers: transfers,
	}
}
