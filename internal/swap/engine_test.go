package swap

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"curveSwap/internal/curve"
	"curveSwap/internal/index"
	"curveSwap/internal/model"
	"curveSwap/internal/payout"
	"curveSwap/internal/pool"
	"curveSwap/internal/storage"
)

var (
	collection = common.HexToAddress("0x0000000000000000000000000000000000000c01")
	owner      = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	trader     = common.HexToAddress("0x00000000000000000000000000000000000000b1")
	burn       = common.HexToAddress("0x00000000000000000000000000000000000000f0")
	custody    = common.HexToAddress("0x00000000000000000000000000000000000000cc")
)

func amt(n uint64) model.Amount { return model.NewAmount(n) }

// source is a PoolSource over plain maps that counts loads.
type source struct {
	pools map[uint64]*pool.Pool
	idx   *index.Memory
	loads int
}

func newSource() *source {
	return &source{pools: make(map[uint64]*pool.Pool), idx: index.NewMemory()}
}

func (s *source) LoadPool(_ context.Context, id uint64) (*pool.Pool, error) {
	p, ok := s.pools[id]
	if !ok {
		return nil, fmt.Errorf("pool %d: %w", id, storage.ErrNotFound)
	}
	s.loads++
	return p.Clone(), nil
}

func (s *source) Index() index.Index { return s.idx }

func (s *source) add(t *testing.T, cfg pool.Config, tokens uint64, items ...string) *pool.Pool {
	t.Helper()
	id := uint64(len(s.pools) + 1)
	p, err := pool.New(id, collection, "ustars", owner, cfg)
	require.NoError(t, err)
	if tokens > 0 {
		require.NoError(t, p.DepositTokens(amt(tokens)))
	}
	if len(items) > 0 {
		require.NoError(t, p.DepositItems(items))
	}
	require.NoError(t, p.RefreshQuotes(payoutContext("0")))
	require.NoError(t, p.Publish(context.Background(), s.idx))
	s.pools[id] = p
	return p
}

func linear(spot, delta uint64, t pool.Type) pool.Config {
	return pool.Config{Curve: curve.NewLinear(amt(spot), amt(delta)), Type: t, IsActive: true}
}

func trade() pool.Type { return pool.TradeType(true, true, decimal.Zero) }

func payoutContext(tradingFee string) payout.Context {
	return payout.Context{Params: payout.Params{
		TradingFeePercent: decimal.RequireFromString(tradingFee),
		FairBurnRecipient: burn,
		Custody:           custody,
	}}
}

func request(op Operation, params Params) Request {
	return Request{
		Operation:  op,
		Collection: collection,
		Denom:      "ustars",
		Sender:     trader,
		Params:     params,
		Payout:     payoutContext("0"),
	}
}

func sellOrders(n int, minOutput uint64) []SellOrder {
	orders := make([]SellOrder, n)
	for i := range orders {
		orders[i] = SellOrder{ItemID: fmt.Sprintf("item-%d", i), MinOutput: amt(minOutput)}
	}
	return orders
}

func newTestEngine() *Engine {
	return NewEngine(nil, nil, nil)
}

func TestSellItemsBestPriceFirst(t *testing.T) {
	src := newSource()
	for i := uint64(0); i < 14; i++ {
		spot := 1000 + (i*137)%600
		src.add(t, linear(spot, 5+i, trade()), 1_000_000)
	}

	res, err := newTestEngine().SellItems(context.Background(), src, request(SwapNftsForTokens, Params{}), sellOrders(50, 0))
	require.NoError(t, err)
	require.Equal(t, Completed, res.Status)
	require.Len(t, res.Swaps, 50)

	for i := 1; i < len(res.Swaps); i++ {
		require.LessOrEqual(t, res.Swaps[i].Price.Cmp(res.Swaps[i-1].Price), 0, "swap %d priced above swap %d", i, i-1)
	}
	for i, s := range res.Swaps {
		require.Equal(t, i, s.Leg)
	}
	require.Equal(t, res.Received, res.Settlement.PaymentTo(trader))
	require.Len(t, res.Settlement.ItemTransfers, 50)
	require.Equal(t, custody, res.Settlement.ItemTransfers[0].Recipient)
}

func TestSellItemsAcrossSevenPools(t *testing.T) {
	src := newSource()
	for i := uint64(0); i < 7; i++ {
		src.add(t, linear(100+i*10, 10, trade()), 10_000)
	}

	res, err := newTestEngine().SellItems(context.Background(), src, request(SwapNftsForTokens, Params{}), sellOrders(10, 0))
	require.NoError(t, err)
	require.Equal(t, Completed, res.Status)

	var prices []uint64
	for _, s := range res.Swaps {
		n, _ := s.Price.Uint64()
		prices = append(prices, n)
	}
	require.Equal(t, []uint64{160, 150, 150, 140, 140, 140, 130, 130, 130, 130}, prices)
	require.Equal(t, uint64(7), res.Swaps[0].PoolID)
}

func TestFetchesCandidatesLazily(t *testing.T) {
	src := newSource()
	for i := uint64(0); i < 14; i++ {
		src.add(t, linear(1000+i*100, 10, trade()), 1_000_000)
	}

	res, err := newTestEngine().SellItems(context.Background(), src, request(SwapNftsForTokens, Params{}), sellOrders(1, 0))
	require.NoError(t, err)
	require.Len(t, res.Swaps, 1)
	require.Equal(t, uint64(14), res.Swaps[0].PoolID)
	require.Equal(t, 1, src.loads)
	require.Len(t, res.Touched, 1)
}

func TestRobustPartialFill(t *testing.T) {
	legs := sellOrders(3, 900)

	src := newSource()
	src.add(t, linear(1000, 100, trade()), 10_000)
	res, err := newTestEngine().SellItems(context.Background(), src, request(SwapNftsForTokens, Params{Robust: true}), legs)
	require.NoError(t, err)
	require.Equal(t, PartiallyCompleted, res.Status)
	require.Len(t, res.Swaps, 2)
	require.NotNil(t, res.Failure)
	require.Equal(t, 2, res.Failure.Leg)
	require.NoError(t, res.Err())
	require.Equal(t, amt(1900), res.Received)
	require.Len(t, res.Touched, 1)
	require.Equal(t, amt(800), res.Touched[0].Curve.SpotPrice)

	src = newSource()
	src.add(t, linear(1000, 100, trade()), 10_000)
	res, err = newTestEngine().SellItems(context.Background(), src, request(SwapNftsForTokens, Params{}), legs)
	require.NoError(t, err)
	require.Equal(t, Aborted, res.Status)
	require.Empty(t, res.Swaps)
	require.Empty(t, res.Touched)
	require.True(t, res.Settlement.IsEmpty())
	require.ErrorIs(t, res.Err(), model.ErrSwap)
	require.True(t, IsLegFailure(res.Err()))
}

func TestNoPoolIsLegFailure(t *testing.T) {
	res, err := newTestEngine().SellItems(context.Background(), newSource(), request(SwapNftsForTokens, Params{}), sellOrders(1, 0))
	require.NoError(t, err)
	require.Equal(t, Aborted, res.Status)
	require.ErrorIs(t, res.Err(), model.ErrSwap)
}

func TestDeadline(t *testing.T) {
	src := newSource()
	src.add(t, linear(1000, 100, trade()), 10_000)

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	engine := NewEngine(nil, nil, func() time.Time { return now })

	res, err := engine.SellItems(context.Background(), src, request(SwapNftsForTokens, Params{Deadline: now.Add(-time.Second), Robust: true}), sellOrders(2, 0))
	require.NoError(t, err)
	require.Equal(t, PartiallyCompleted, res.Status)
	require.Empty(t, res.Swaps)
	require.Equal(t, "deadline exceeded", res.Failure.Reason)

	res, err = engine.SellItems(context.Background(), src, request(SwapNftsForTokens, Params{Deadline: now.Add(time.Second)}), sellOrders(2, 0))
	require.NoError(t, err)
	require.Equal(t, Completed, res.Status)
}

func TestBuyAnyItemsCheapestFirst(t *testing.T) {
	src := newSource()
	src.add(t, linear(500, 50, pool.NftOnlyType()), 0, "a1", "a2", "a3")
	src.add(t, linear(450, 100, pool.NftOnlyType()), 0, "b1", "b2")
	src.add(t, linear(700, 10, pool.NftOnlyType()), 0, "c1")

	orders := make([]BuyOrder, 5)
	for i := range orders {
		orders[i] = BuyOrder{MaxInput: amt(1000)}
	}
	res, err := newTestEngine().BuyAnyItems(context.Background(), src, request(SwapTokensForAnyNfts, Params{}), orders)
	require.NoError(t, err)
	require.Equal(t, Completed, res.Status)

	var got []string
	for _, s := range res.Swaps {
		got = append(got, fmt.Sprintf("%d:%s@%s", s.PoolID, s.ItemID, s.Price))
	}
	require.Equal(t, []string{"2:b1@450", "1:a1@500", "1:a2@550", "2:b2@550", "1:a3@600"}, got)
	require.Equal(t, amt(2650), res.Spent)
	require.Equal(t, amt(2650), res.Settlement.PaymentTo(owner))
	for _, transfer := range res.Settlement.ItemTransfers {
		require.Equal(t, custody, transfer.From)
		require.Equal(t, trader, transfer.Recipient)
	}

	orders = append(orders, BuyOrder{MaxInput: amt(1000)}, BuyOrder{MaxInput: amt(1000)})
	res, err = newTestEngine().BuyAnyItems(context.Background(), src, request(SwapTokensForAnyNfts, Params{Robust: true}), orders)
	require.NoError(t, err)
	require.Equal(t, PartiallyCompleted, res.Status)
	require.Len(t, res.Swaps, 6)
	require.Equal(t, "c1", res.Swaps[5].ItemID)
	require.Equal(t, 6, res.Failure.Leg)
}

func TestBuySpecificItems(t *testing.T) {
	src := newSource()
	src.add(t, linear(100, 10, pool.NftOnlyType()), 0, "1", "2")
	src.add(t, linear(200, 10, pool.NftOnlyType()), 0, "3", "4")

	orders := []BuyOrder{
		{PoolID: 2, ItemID: "3", MaxInput: amt(1000)},
		{PoolID: 1, ItemID: "2", MaxInput: amt(1000)},
		{PoolID: 2, ItemID: "4", MaxInput: amt(1000)},
		{PoolID: 1, ItemID: "1", MaxInput: amt(1000)},
	}
	res, err := newTestEngine().BuySpecificItems(context.Background(), src, request(SwapTokensForSpecificNfts, Params{}), orders)
	require.NoError(t, err)
	require.Equal(t, Completed, res.Status)
	require.Equal(t, 2, src.loads)

	var got []string
	for _, s := range res.Swaps {
		got = append(got, fmt.Sprintf("%d:%s@%s", s.PoolID, s.ItemID, s.Price))
	}
	require.Equal(t, []string{"2:3@200", "1:2@100", "2:4@210", "1:1@110"}, got)
	require.Len(t, res.Touched, 2)
	require.Equal(t, uint64(2), res.Touched[0].ID)

	_, err = newTestEngine().BuySpecificItems(context.Background(), src, request(SwapTokensForSpecificNfts, Params{}), []BuyOrder{{PoolID: 9, ItemID: "1", MaxInput: amt(1)}})
	require.ErrorIs(t, err, model.ErrInvalidPool)

	res, err = newTestEngine().BuySpecificItems(context.Background(), src, request(SwapTokensForSpecificNfts, Params{}), []BuyOrder{{PoolID: 1, ItemID: "9", MaxInput: amt(1000)}})
	require.NoError(t, err)
	require.Equal(t, Aborted, res.Status)

	res, err = newTestEngine().BuySpecificItems(context.Background(), src, request(SwapTokensForSpecificNfts, Params{}), []BuyOrder{{PoolID: 1, ItemID: "1", MaxInput: amt(99)}})
	require.NoError(t, err)
	require.Equal(t, Aborted, res.Status)
	require.Contains(t, res.Failure.Reason, "above max input")
}

func TestCollectionMismatch(t *testing.T) {
	src := newSource()
	src.add(t, linear(100, 10, pool.NftOnlyType()), 0, "1")

	req := request(SwapTokensForSpecificNfts, Params{})
	req.Collection = common.HexToAddress("0x0000000000000000000000000000000000000c02")
	_, err := newTestEngine().BuySpecificItems(context.Background(), src, req, []BuyOrder{{PoolID: 1, ItemID: "1", MaxInput: amt(1000)}})
	require.ErrorIs(t, err, model.ErrInvalidInput)
}

func TestDirectSellDeactivatesPool(t *testing.T) {
	src := newSource()
	src.add(t, linear(200, 100, trade()), 1000)

	req := request(DirectSwapNftsForTokens, Params{Robust: true})
	req.Collection, req.Denom = common.Address{}, ""
	res, err := newTestEngine().DirectSellItems(context.Background(), src, req, 1, sellOrders(3, 0))
	require.NoError(t, err)
	require.Equal(t, PartiallyCompleted, res.Status)
	require.Len(t, res.Swaps, 2)
	require.False(t, res.Swaps[0].Deactivated)
	require.True(t, res.Swaps[1].Deactivated)
	require.Equal(t, "ustars", res.Settlement.Denom)

	touched := res.Touched[0]
	require.False(t, touched.IsActive)
	require.Equal(t, amt(700), touched.TotalTokens)
	require.Nil(t, touched.SellQuote)
}

func TestDirectBuyPaysAssetRecipient(t *testing.T) {
	src := newSource()
	recipient := common.HexToAddress("0x00000000000000000000000000000000000000a9")
	cfg := linear(1000, 100, pool.TradeType(true, false, decimal.RequireFromString("0.1")))
	cfg.AssetRecipient = &recipient
	src.add(t, cfg, 0, "7")

	finder := common.HexToAddress("0x00000000000000000000000000000000000000fd")
	req := request(DirectSwapTokensForNfts, Params{Finder: &finder})
	req.Payout = payoutContext("0.02")
	res, err := newTestEngine().DirectBuyItems(context.Background(), src, req, 1, []BuyOrder{{ItemID: "7", MaxInput: amt(1100)}})
	require.NoError(t, err)
	require.Equal(t, Completed, res.Status)

	s := res.Settlement
	require.Equal(t, amt(1100), res.Spent)
	require.Equal(t, amt(22), s.FairBurn.Amount)
	require.Equal(t, amt(110), s.PaymentTo(finder))
	require.Equal(t, amt(968), s.PaymentTo(recipient))
	require.True(t, res.Touched[0].TotalTokens.IsZero())
}

func TestInvalidOrders(t *testing.T) {
	engine := newTestEngine()
	ctx := context.Background()
	src := newSource()

	_, err := engine.SellItems(ctx, src, request(SwapNftsForTokens, Params{}), nil)
	require.ErrorIs(t, err, model.ErrInvalidInput)

	_, err = engine.SellItems(ctx, src, request(SwapNftsForTokens, Params{}), []SellOrder{{ItemID: "1"}, {ItemID: "1"}})
	require.ErrorIs(t, err, model.ErrInvalidInput)

	_, err = engine.BuyAnyItems(ctx, src, request(SwapTokensForAnyNfts, Params{}), []BuyOrder{{ItemID: "1"}})
	require.ErrorIs(t, err, model.ErrInvalidInput)

	req := request(SwapNftsForTokens, Params{})
	req.Denom = ""
	_, err = engine.SellItems(ctx, src, req, sellOrders(1, 0))
	require.ErrorIs(t, err, model.ErrInvalidInput)
}

func TestPoolPricedOutByFeesIsSkipped(t *testing.T) {
	src := newSource()
	src.add(t, linear(1000, 10, trade()), 10_000)
	src.add(t, linear(100_000, 10, pool.TradeType(true, true, decimal.RequireFromString("0.95"))), 1_000_000)

	req := request(SwapNftsForTokens, Params{Robust: true})
	req.Payout.Royalty = &payout.Royalty{Percent: decimal.RequireFromString("0.10"), Recipient: owner}

	res, err := newTestEngine().SellItems(context.Background(), src, req, sellOrders(1, 0))
	require.NoError(t, err)
	require.Equal(t, Completed, res.Status)
	require.Len(t, res.Swaps, 1)
	require.Equal(t, uint64(1), res.Swaps[0].PoolID)
	require.Equal(t, amt(900), res.Received)
	require.Equal(t, 2, src.loads)
}
