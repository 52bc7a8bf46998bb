// Package pool holds the pool aggregate: curve state, inventory and the
// cached quotes derived from them.
package pool

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"curveSwap/internal/curve"
	"curveSwap/internal/index"
	"curveSwap/internal/model"
	"curveSwap/internal/payout"
)

// Kind is the trading mode of a pool.
type Kind string

const (
	// NftOnly pools only sell items.
	NftOnly Kind = "nft_only"
	// Trade pools buy and sell, and may reinvest proceeds.
	Trade Kind = "trade"
)

type Type struct {
	Kind           Kind            `json:"kind"`
	ReinvestItems  bool            `json:"reinvest_items"`
	ReinvestTokens bool            `json:"reinvest_tokens"`
	SwapFeePercent decimal.Decimal `json:"swap_fee_percent"`
}

func NftOnlyType() Type {
	return Type{Kind: NftOnly}
}

func TradeType(reinvestItems, reinvestTokens bool, swapFeePercent decimal.Decimal) Type {
	return Type{
		Kind:           Trade,
		ReinvestItems:  reinvestItems,
		ReinvestTokens: reinvestTokens,
		SwapFeePercent: swapFeePercent,
	}
}

// Config is the owner-controlled part of a pool.
type Config struct {
	AssetRecipient *common.Address     `json:"asset_recipient,omitempty"`
	Curve          curve.BondingCurve `json:"bonding_curve"`
	Type           Type               `json:"pool_type"`
	IsActive       bool               `json:"is_active"`
}

// ConfigUpdate changes the fields that are set.
type ConfigUpdate struct {
	AssetRecipient *common.Address `json:"asset_recipient,omitempty"`
	SpotPrice      *model.Amount   `json:"spot_price,omitempty"`
	Delta          *model.Amount   `json:"delta,omitempty"`
	Type           *Type           `json:"pool_type,omitempty"`
}

type Pool struct {
	ID          uint64         `json:"id"`
	Collection  common.Address `json:"collection"`
	Denom       string         `json:"denom"`
	Owner       common.Address `json:"owner"`
	Config
	TotalTokens model.Amount `json:"total_tokens"`
	// Items is sorted and free of duplicates.
	Items     []string             `json:"items"`
	SellQuote *payout.QuoteSummary `json:"sell_to_pool_quote,omitempty"`
	BuyQuote  *payout.QuoteSummary `json:"buy_from_pool_quote,omitempty"`
}

// New validates cfg and returns an empty pool.
func New(id uint64, collection common.Address, denom string, owner common.Address, cfg Config) (*Pool, error) {
	p := &Pool{
		ID:         id,
		Collection: collection,
		Denom:      denom,
		Owner:      owner,
		Config:     cfg,
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Validate checks the curve and pool type combination.
func (p *Pool) Validate() error {
	if p.Denom == "" {
		return fmt.Errorf("%w: denom is required", model.ErrInvalidPool)
	}
	if err := p.Curve.Validate(); err != nil {
		return err
	}

	one := decimal.NewFromInt(1)
	switch p.Type.Kind {
	case NftOnly:
		if !p.Type.SwapFeePercent.IsZero() {
			return fmt.Errorf("%w: nft only pools cannot charge a swap fee", model.ErrInvalidPool)
		}
		if p.Type.ReinvestItems || p.Type.ReinvestTokens {
			return fmt.Errorf("%w: nft only pools cannot reinvest", model.ErrInvalidPool)
		}
		if p.Curve.Kind == curve.ConstantProduct {
			return fmt.Errorf("%w: constant product curves need a trade pool", model.ErrInvalidPool)
		}
	case Trade:
		if p.Type.SwapFeePercent.IsNegative() || p.Type.SwapFeePercent.GreaterThanOrEqual(one) {
			return fmt.Errorf("%w: swap fee percent %s outside [0, 1)", model.ErrInvalidPool, p.Type.SwapFeePercent)
		}
		if p.Curve.Kind == curve.ConstantProduct && !(p.Type.ReinvestItems && p.Type.ReinvestTokens) {
			return fmt.Errorf("%w: constant product pools must reinvest items and tokens", model.ErrInvalidPool)
		}
	default:
		return fmt.Errorf("%w: unknown pool type %q", model.ErrInvalidPool, p.Type.Kind)
	}
	return nil
}

// AssetRecipientOrOwner is where proceeds go when they are not reinvested.
func (p *Pool) AssetRecipientOrOwner() common.Address {
	if p.AssetRecipient != nil {
		return *p.AssetRecipient
	}
	return p.Owner
}

func (p *Pool) IndexKey() index.Key {
	return index.Key{Collection: p.Collection, Denom: p.Denom}
}

func (p *Pool) HasItem(id string) bool {
	i := sort.SearchStrings(p.Items, id)
	return i < len(p.Items) && p.Items[i] == id
}

func (p *Pool) DepositTokens(amount model.Amount) error {
	if p.Type.Kind == NftOnly {
		return fmt.Errorf("%w: nft only pools do not hold tokens", model.ErrInvalidPool)
	}
	if amount.IsZero() {
		return fmt.Errorf("%w: deposit amount is zero", model.ErrInvalidInput)
	}
	total, err := p.TotalTokens.Add(amount)
	if err != nil {
		return err
	}
	p.TotalTokens = total
	return nil
}

// DepositItems adds ids to the inventory. The whole deposit is rejected if any
// id is repeated or already held.
func (p *Pool) DepositItems(ids []string) error {
	if len(ids) == 0 {
		return fmt.Errorf("%w: no items to deposit", model.ErrInvalidInput)
	}
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id == "" {
			return fmt.Errorf("%w: empty item id", model.ErrInvalidInput)
		}
		if _, dup := seen[id]; dup || p.HasItem(id) {
			return fmt.Errorf("%w: item %s already deposited", model.ErrInvalidInput, id)
		}
		seen[id] = struct{}{}
	}
	items := make([]string, 0, len(p.Items)+len(ids))
	items = append(items, p.Items...)
	items = append(items, ids...)
	sort.Strings(items)
	p.Items = items
	return nil
}

func (p *Pool) WithdrawTokens(amount model.Amount) error {
	if amount.IsZero() {
		return fmt.Errorf("%w: withdraw amount is zero", model.ErrInvalidInput)
	}
	if amount.Cmp(p.TotalTokens) > 0 {
		return fmt.Errorf("%w: withdraw %s exceeds balance %s", model.ErrInvalidInput, amount, p.TotalTokens)
	}
	rest, err := p.TotalTokens.Sub(amount)
	if err != nil {
		return err
	}
	p.TotalTokens = rest
	return nil
}

// WithdrawAllTokens empties the token balance and returns what it held.
func (p *Pool) WithdrawAllTokens() model.Amount {
	out := p.TotalTokens
	p.TotalTokens = model.Amount{}
	return out
}

func (p *Pool) WithdrawItems(ids []string) error {
	if len(ids) == 0 {
		return fmt.Errorf("%w: no items to withdraw", model.ErrInvalidInput)
	}
	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := drop[id]; dup || !p.HasItem(id) {
			return fmt.Errorf("%w: item %s not held by pool %d", model.ErrInvalidInput, id, p.ID)
		}
		drop[id] = struct{}{}
	}
	items := make([]string, 0, len(p.Items)-len(ids))
	for _, id := range p.Items {
		if _, ok := drop[id]; !ok {
			items = append(items, id)
		}
	}
	p.Items = items
	return nil
}

// WithdrawAllItems empties the inventory and returns the ids it held.
func (p *Pool) WithdrawAllItems() []string {
	out := p.Items
	p.Items = nil
	return out
}

func (p *Pool) SetActive(active bool) {
	p.IsActive = active
}

// UpdateConfig applies u and re-validates. Nothing changes on error.
func (p *Pool) UpdateConfig(u ConfigUpdate) error {
	next := p.Config
	if u.AssetRecipient != nil {
		recipient := *u.AssetRecipient
		next.AssetRecipient = &recipient
	}
	if u.SpotPrice != nil || u.Delta != nil {
		if !next.Curve.HasSpotPrice() {
			return fmt.Errorf("%w: %s curve has no spot price or delta", model.ErrInvalidInput, next.Curve.Kind)
		}
		if u.SpotPrice != nil {
			next.Curve.SpotPrice = *u.SpotPrice
		}
		if u.Delta != nil {
			next.Curve.Delta = *u.Delta
		}
	}
	if u.Type != nil {
		next.Type = *u.Type
	}

	candidate := *p
	candidate.Config = next
	if err := candidate.Validate(); err != nil {
		return err
	}
	if next.Type.Kind == NftOnly && !p.TotalTokens.IsZero() {
		return fmt.Errorf("%w: withdraw tokens before switching to nft only", model.ErrInvalidPool)
	}
	p.Config = next
	return nil
}

func (p *Pool) reserves() curve.Reserves {
	return curve.Reserves{Tokens: p.TotalTokens, Items: uint64(len(p.Items))}
}

// RefreshQuotes recomputes both cached quotes. Inactive pools quote nothing.
func (p *Pool) RefreshQuotes(pctx payout.Context) error {
	p.SellQuote, p.BuyQuote = nil, nil
	if !p.IsActive {
		return nil
	}
	recipient := p.AssetRecipientOrOwner()

	gross, ok, err := p.Curve.SellToPoolPrice(p.reserves())
	if err != nil {
		return err
	}
	if ok && !gross.IsZero() && gross.Cmp(p.TotalTokens) <= 0 {
		q, ok, err := p.quote(pctx, gross, recipient)
		if err != nil {
			return fmt.Errorf("pool %d sell quote: %w", p.ID, err)
		}
		if ok {
			p.SellQuote = &q
		}
	}

	if len(p.Items) == 0 {
		return nil
	}
	gross, ok, err = p.Curve.BuyFromPoolPrice(p.reserves(), p.Type.Kind == Trade)
	if err != nil {
		return err
	}
	if ok && !gross.IsZero() {
		q, ok, err := p.quote(pctx, gross, recipient)
		if err != nil {
			return fmt.Errorf("pool %d buy quote: %w", p.ID, err)
		}
		if ok {
			p.BuyQuote = &q
		}
	}
	return nil
}

// quote prices gross under pctx. Fees that add up to more than gross leave
// the side without a quote rather than failing the pool.
func (p *Pool) quote(pctx payout.Context, gross model.Amount, recipient common.Address) (payout.QuoteSummary, bool, error) {
	q, err := pctx.BuildQuoteSummary(gross, p.Type.SwapFeePercent, recipient)
	if errors.Is(err, model.ErrArithmetic) {
		return payout.QuoteSummary{}, false, nil
	}
	if err != nil {
		return payout.QuoteSummary{}, false, err
	}
	return q, true, nil
}

// CheckFees rejects a pool whose swap fee, together with the protocol fee and
// royalty in pctx, exceeds the whole trade amount.
func (p *Pool) CheckFees(pctx payout.Context) error {
	total := pctx.Params.TradingFeePercent.Add(p.Type.SwapFeePercent)
	if pctx.Royalty != nil {
		total = total.Add(pctx.Royalty.Percent)
	}
	if total.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("%w: protocol fee, royalty and swap fee add up to %s", model.ErrInvalidPool, total)
	}
	return nil
}

// Quotes are the ranking prices: the seller amount on the sell side and the
// total on the buy side.
func (p *Pool) Quotes() index.Quotes {
	var q index.Quotes
	if p.SellQuote != nil {
		amount := p.SellQuote.SellerAmount
		q.SellToPool = &amount
	}
	if p.BuyQuote != nil {
		total := p.BuyQuote.Total()
		q.BuyFromPool = &total
	}
	return q
}

// QuotePrice returns the ranking price for side, or nil.
func (p *Pool) QuotePrice(side index.Side) *model.Amount {
	return p.Quotes().Get(side)
}

// Publish writes the cached quotes to idx.
func (p *Pool) Publish(ctx context.Context, idx index.Index) error {
	return idx.Publish(ctx, p.IndexKey(), p.ID, p.Quotes())
}

// Clone returns a deep copy.
func (p *Pool) Clone() *Pool {
	out := *p
	if p.AssetRecipient != nil {
		recipient := *p.AssetRecipient
		out.AssetRecipient = &recipient
	}
	if p.Items != nil {
		out.Items = append([]string(nil), p.Items...)
	}
	out.SellQuote = cloneQuote(p.SellQuote)
	out.BuyQuote = cloneQuote(p.BuyQuote)
	return &out
}

func cloneQuote(q *payout.QuoteSummary) *payout.QuoteSummary {
	if q == nil {
		return nil
	}
	out := *q
	if q.Royalty != nil {
		royalty := *q.Royalty
		out.Royalty = &royalty
	}
	if q.SwapFee != nil {
		fee := *q.SwapFee
		out.SwapFee = &fee
	}
	return &out
}
