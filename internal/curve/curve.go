// Package curve implements the bonding-curve price transitions of a pool.
package curve

import (
	"errors"
	"fmt"

	"curveSwap/internal/model"
)

// ErrPriceInvalid is returned when a transition cannot produce a usable spot price.
// Pools turn it into deactivation; it never fails a call.
var ErrPriceInvalid = errors.New("price invalid")

// Kind selects the curve variant. It is fixed at pool creation.
type Kind string

const (
	Linear          Kind = "linear"
	Exponential     Kind = "exponential"
	ConstantProduct Kind = "constant_product"
)

// BasisPoints is the denominator of an exponential delta.
const BasisPoints = 10_000

// Direction is the side the counterparty takes in a trade.
type Direction int

const (
	// CounterpartySubmitsItem is a sale of an item into the pool.
	CounterpartySubmitsItem Direction = iota
	// CounterpartySubmitsTokens is a purchase of an item from the pool.
	CounterpartySubmitsTokens
)

func (d Direction) String() string {
	if d == CounterpartySubmitsItem {
		return "item"
	}
	return "tokens"
}

// BondingCurve is the priced state of a pool. SpotPrice and Delta are unused
// for ConstantProduct, where prices come from the reserves.
type BondingCurve struct {
	Kind      Kind         `json:"kind"`
	SpotPrice model.Amount `json:"spot_price"`
	Delta     model.Amount `json:"delta"`
}

// Reserves are the balances a constant-product price is derived from.
type Reserves struct {
	Tokens model.Amount
	Items  uint64
}

func NewLinear(spot, delta model.Amount) BondingCurve {
	return BondingCurve{Kind: Linear, SpotPrice: spot, Delta: delta}
}

// NewExponential takes delta in basis points (500 = 5%).
func NewExponential(spot, deltaBps model.Amount) BondingCurve {
	return BondingCurve{Kind: Exponential, SpotPrice: spot, Delta: deltaBps}
}

func NewConstantProduct() BondingCurve {
	return BondingCurve{Kind: ConstantProduct}
}

// Validate checks the curve parameters.
func (c BondingCurve) Validate() error {
	switch c.Kind {
	case Linear, Exponential:
		if c.SpotPrice.IsZero() {
			return fmt.Errorf("%w: %s curve needs a non-zero spot price", model.ErrInvalidPool, c.Kind)
		}
		if c.Delta.IsZero() {
			return fmt.Errorf("%w: %s curve needs a non-zero delta", model.ErrInvalidPool, c.Kind)
		}
	case ConstantProduct:
		if !c.SpotPrice.IsZero() || !c.Delta.IsZero() {
			return fmt.Errorf("%w: constant product curve takes no spot price or delta", model.ErrInvalidPool)
		}
	default:
		return fmt.Errorf("%w: unknown curve kind %q", model.ErrInvalidPool, c.Kind)
	}
	return nil
}

// HasSpotPrice reports whether the curve stores a spot price.
func (c BondingCurve) HasSpotPrice() bool {
	return c.Kind == Linear || c.Kind == Exponential
}

// NextSpotPrice returns the spot price after one unit trade in direction d.
// A sale into the pool lowers the price, a purchase raises it.
func (c BondingCurve) NextSpotPrice(d Direction) (model.Amount, error) {
	switch c.Kind {
	case Linear:
		return c.linearStep(d)
	case Exponential:
		return c.exponentialStep(d)
	case ConstantProduct:
		return c.SpotPrice, nil
	default:
		return model.Amount{}, fmt.Errorf("%w: unknown curve kind %q", ErrPriceInvalid, c.Kind)
	}
}

// Advance moves the stored spot price one step in direction d.
func (c *BondingCurve) Advance(d Direction) error {
	next, err := c.NextSpotPrice(d)
	if err != nil {
		return err
	}
	c.SpotPrice = next
	return nil
}

func (c BondingCurve) linearStep(d Direction) (model.Amount, error) {
	if c.Delta.IsZero() {
		return model.Amount{}, fmt.Errorf("%w: zero delta", ErrPriceInvalid)
	}
	var (
		next model.Amount
		err  error
	)
	if d == CounterpartySubmitsItem {
		next, err = c.SpotPrice.Sub(c.Delta)
	} else {
		next, err = c.SpotPrice.Add(c.Delta)
	}
	return checkedPrice(next, err)
}

func (c BondingCurve) exponentialStep(d Direction) (model.Amount, error) {
	if c.Delta.IsZero() {
		return model.Amount{}, fmt.Errorf("%w: zero delta", ErrPriceInvalid)
	}
	bps := model.NewAmount(BasisPoints)
	factor, err := bps.Add(c.Delta)
	if err != nil {
		return model.Amount{}, fmt.Errorf("%w: %v", ErrPriceInvalid, err)
	}
	var next model.Amount
	if d == CounterpartySubmitsItem {
		next, err = c.SpotPrice.MulDiv(bps, factor)
	} else {
		next, err = c.SpotPrice.MulDivCeil(factor, bps)
	}
	return checkedPrice(next, err)
}

func checkedPrice(next model.Amount, err error) (model.Amount, error) {
	if err != nil {
		return model.Amount{}, fmt.Errorf("%w: %v", ErrPriceInvalid, err)
	}
	if next.IsZero() {
		return model.Amount{}, fmt.Errorf("%w: price rounds to zero", ErrPriceInvalid)
	}
	return next, nil
}

// SellToPoolPrice is the gross amount the pool pays for one item. ok is false
// when the curve cannot quote.
func (c BondingCurve) SellToPoolPrice(r Reserves) (model.Amount, bool, error) {
	switch c.Kind {
	case Linear, Exponential:
		return c.SpotPrice, !c.SpotPrice.IsZero(), nil
	case ConstantProduct:
		if r.Tokens.IsZero() || r.Items == 0 {
			return model.Amount{}, false, nil
		}
		price, err := r.Tokens.Div(model.NewAmount(r.Items + 1))
		if err != nil {
			return model.Amount{}, false, err
		}
		return price, !price.IsZero(), nil
	default:
		return model.Amount{}, false, fmt.Errorf("%w: unknown curve kind %q", model.ErrInvalidPool, c.Kind)
	}
}

// BuyFromPoolPrice is the gross amount charged for one item. Two-sided pools
// charge one curve step above spot, so a round trip pays the spread.
func (c BondingCurve) BuyFromPoolPrice(r Reserves, twoSided bool) (model.Amount, bool, error) {
	switch c.Kind {
	case Linear, Exponential:
		if !twoSided {
			return c.SpotPrice, !c.SpotPrice.IsZero(), nil
		}
		next, err := c.NextSpotPrice(CounterpartySubmitsTokens)
		if err != nil {
			if errors.Is(err, ErrPriceInvalid) {
				return model.Amount{}, false, nil
			}
			return model.Amount{}, false, err
		}
		return next, true, nil
	case ConstantProduct:
		if r.Tokens.IsZero() || r.Items <= 1 {
			return model.Amount{}, false, nil
		}
		price, err := r.Tokens.DivCeil(model.NewAmount(r.Items - 1))
		if err != nil {
			return model.Amount{}, false, err
		}
		return price, true, nil
	default:
		return model.Amount{}, false, fmt.Errorf("%w: unknown curve kind %q", model.ErrInvalidPool, c.Kind)
	}
}
