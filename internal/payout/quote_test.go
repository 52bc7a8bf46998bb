package payout

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"curveSwap/internal/model"
)

var (
	burnAddr    = common.HexToAddress("0x00000000000000000000000000000000000000b0")
	royaltyAddr = common.HexToAddress("0x00000000000000000000000000000000000000c1")
	ownerAddr   = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	finderAddr  = common.HexToAddress("0x00000000000000000000000000000000000000f1")
)

func testContext(tradingFee, royalty string) Context {
	ctx := Context{Params: Params{
		TradingFeePercent: decimal.RequireFromString(tradingFee),
		FairBurnRecipient: burnAddr,
	}}
	if royalty != "" {
		ctx.Royalty = &Royalty{Percent: decimal.RequireFromString(royalty), Recipient: royaltyAddr}
	}
	return ctx
}

func TestQuoteSummaryConservation(t *testing.T) {
	cases := []struct {
		name    string
		trading string
		royalty string
		swapFee string
		gross   uint64
	}{
		{name: "fees only", trading: "0.02", gross: 2400},
		{name: "royalty and swap fee", trading: "0.02", royalty: "0.05", swapFee: "0.01", gross: 999},
		{name: "odd gross", trading: "0.015", royalty: "0.075", swapFee: "0.033", gross: 123457},
		{name: "everything taken", trading: "0.5", royalty: "0.3", swapFee: "0.2", gross: 1001},
		{name: "zero gross", trading: "0.02", royalty: "0.05", gross: 0},
		{name: "no fees", trading: "0", gross: 77},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			swapFee := decimal.Zero
			if tc.swapFee != "" {
				swapFee = decimal.RequireFromString(tc.swapFee)
			}
			gross := model.NewAmount(tc.gross)
			q, err := testContext(tc.trading, tc.royalty).BuildQuoteSummary(gross, swapFee, ownerAddr)
			require.NoError(t, err)
			require.Equal(t, gross, q.Total())

			sum := q.FairBurn.Amount
			if q.Royalty != nil {
				sum, err = sum.Add(q.Royalty.Amount)
				require.NoError(t, err)
			}
			if q.SwapFee != nil {
				sum, err = sum.Add(q.SwapFee.Amount)
				require.NoError(t, err)
			}
			sum, err = sum.Add(q.SellerAmount)
			require.NoError(t, err)
			require.Equal(t, gross, sum)
		})
	}
}

func TestQuoteSummaryBreakdown(t *testing.T) {
	ctx := testContext("0.02", "0.05")
	q, err := ctx.BuildQuoteSummary(model.NewAmount(999), decimal.RequireFromString("0.01"), ownerAddr)
	require.NoError(t, err)

	require.Equal(t, model.NewAmount(19), q.FairBurn.Amount)
	require.Equal(t, burnAddr, q.FairBurn.Recipient)
	require.NotNil(t, q.Royalty)
	require.Equal(t, model.NewAmount(49), q.Royalty.Amount)
	require.Equal(t, royaltyAddr, q.Royalty.Recipient)
	require.NotNil(t, q.SwapFee)
	require.Equal(t, model.NewAmount(9), q.SwapFee.Amount)
	require.Equal(t, ownerAddr, q.SwapFee.Recipient)
	require.Equal(t, model.NewAmount(922), q.SellerAmount)

	q, err = ctx.WithFinder(&finderAddr).BuildQuoteSummary(model.NewAmount(999), decimal.RequireFromString("0.01"), ownerAddr)
	require.NoError(t, err)
	require.Equal(t, finderAddr, q.SwapFee.Recipient)
}

func TestQuoteSummaryOmitsZeroParts(t *testing.T) {
	q, err := testContext("0.02", "0.05").BuildQuoteSummary(model.NewAmount(10), decimal.RequireFromString("0.01"), ownerAddr)
	require.NoError(t, err)
	require.Nil(t, q.SwapFee)
	require.Nil(t, q.Royalty)
	require.True(t, q.FairBurn.Amount.IsZero())
	require.Equal(t, burnAddr, q.FairBurn.Recipient)
	require.Equal(t, model.NewAmount(10), q.SellerAmount)
}

func TestQuoteSummaryOverDeduction(t *testing.T) {
	_, err := testContext("0.6", "0.5").BuildQuoteSummary(model.NewAmount(1000), decimal.Zero, ownerAddr)
	require.ErrorIs(t, err, model.ErrArithmetic)
}

func TestParamsValidate(t *testing.T) {
	require.NoError(t, Params{TradingFeePercent: decimal.RequireFromString("0.02")}.Validate())
	require.ErrorIs(t, Params{TradingFeePercent: decimal.RequireFromString("1.2")}.Validate(), model.ErrInvalidInput)
	require.ErrorIs(t, Royalty{Percent: decimal.RequireFromString("-0.1")}.Validate(), model.ErrInvalidInput)
}

func TestLedgerAggregates(t *testing.T) {
	ctx := testContext("0.02", "0.05")
	ledger := NewLedger("ustars", burnAddr)
	collection := common.HexToAddress("0x0000000000000000000000000000000000000c01")

	for _, gross := range []uint64{1000, 2000} {
		q, err := ctx.BuildQuoteSummary(model.NewAmount(gross), decimal.Zero, ownerAddr)
		require.NoError(t, err)
		require.NoError(t, ledger.AddFees(q))
		require.NoError(t, ledger.Pay(ownerAddr, q.SellerAmount))
	}
	ledger.TransferItem(collection, "7", ownerAddr, finderAddr)
	require.NoError(t, ledger.Pay(finderAddr, model.Amount{}))

	s := ledger.Settlement()
	require.Equal(t, "ustars", s.Denom)
	require.Equal(t, model.NewAmount(60), s.FairBurn.Amount)
	require.Len(t, s.TokenPayments, 2)
	require.Equal(t, ownerAddr, s.TokenPayments[0].Recipient)
	require.Equal(t, model.NewAmount(2790), s.PaymentTo(ownerAddr))
	require.Equal(t, model.NewAmount(150), s.PaymentTo(royaltyAddr))
	require.True(t, s.PaymentTo(finderAddr).IsZero())
	require.Equal(t, []ItemTransfer{{Collection: collection, ItemID: "7", From: ownerAddr, Recipient: finderAddr}}, s.ItemTransfers)
	require.False(t, s.IsEmpty())
}

func TestSettlementWithPayment(t *testing.T) {
	ledger := NewLedger("ustars", burnAddr)
	require.NoError(t, ledger.Burn(model.NewAmount(5)))
	require.NoError(t, ledger.Pay(ownerAddr, model.NewAmount(100)))
	s := ledger.Settlement()

	merged, err := s.WithPayment(ownerAddr, model.NewAmount(20))
	require.NoError(t, err)
	require.Equal(t, model.NewAmount(120), merged.PaymentTo(ownerAddr))
	require.Equal(t, model.NewAmount(5), merged.FairBurn.Amount)

	added, err := s.WithPayment(finderAddr, model.NewAmount(7))
	require.NoError(t, err)
	require.Len(t, added.TokenPayments, 2)
	require.Equal(t, model.NewAmount(100), s.PaymentTo(ownerAddr))
}
