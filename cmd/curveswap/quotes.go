package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"curveSwap/internal/curve"
	"curveSwap/internal/index"
	"curveSwap/internal/model"
	"curveSwap/internal/payout"
	"curveSwap/internal/pool"
)

func newQuotesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "quotes",
		Short: "Print the quote ladder of a hypothetical pool",
		RunE:  runQuotes,
	}
	cmd.Flags().String("curve", string(curve.Linear), "curve kind (linear, exponential, constant_product)")
	cmd.Flags().String("spot", "0", "spot price")
	cmd.Flags().String("delta", "0", "delta (basis points for exponential)")
	cmd.Flags().String("pool-type", string(pool.Trade), "pool type (nft_only, trade)")
	cmd.Flags().String("swap-fee", "0", "pool swap fee, as a fraction")
	cmd.Flags().String("tokens", "0", "token reserve")
	cmd.Flags().Int("items", 0, "item reserve")
	cmd.Flags().String("royalty", "0", "collection royalty, as a fraction")
	cmd.Flags().String("side", index.SellToPool.String(), "quote side (sell_to_pool, buy_from_pool)")
	cmd.Flags().Int("limit", 10, "number of quotes")
	return cmd
}

func runQuotes(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	kind, _ := flags.GetString("curve")
	spotRaw, _ := flags.GetString("spot")
	deltaRaw, _ := flags.GetString("delta")
	typeRaw, _ := flags.GetString("pool-type")
	feeRaw, _ := flags.GetString("swap-fee")
	tokensRaw, _ := flags.GetString("tokens")
	items, _ := flags.GetInt("items")
	royaltyRaw, _ := flags.GetString("royalty")
	sideRaw, _ := flags.GetString("side")
	limit, _ := flags.GetInt("limit")

	spot, err := model.ParseAmount(spotRaw)
	if err != nil {
		return err
	}
	delta, err := model.ParseAmount(deltaRaw)
	if err != nil {
		return err
	}
	tokens, err := model.ParseAmount(tokensRaw)
	if err != nil {
		return err
	}
	swapFee, err := decimal.NewFromString(feeRaw)
	if err != nil {
		return fmt.Errorf("swap-fee: %w", err)
	}
	royaltyPct, err := decimal.NewFromString(royaltyRaw)
	if err != nil {
		return fmt.Errorf("royalty: %w", err)
	}
	side, err := index.ParseSide(sideRaw)
	if err != nil {
		return err
	}

	var bc curve.BondingCurve
	switch curve.Kind(kind) {
	case curve.Linear:
		bc = curve.NewLinear(spot, delta)
	case curve.Exponential:
		bc = curve.NewExponential(spot, delta)
	case curve.ConstantProduct:
		bc = curve.NewConstantProduct()
	default:
		return fmt.Errorf("unknown curve %q", kind)
	}
	pt := pool.NftOnlyType()
	if pool.Kind(typeRaw) == pool.Trade {
		pt = pool.TradeType(true, true, swapFee)
	}

	p, err := pool.New(0, common.Address{}, cfg.Denom, common.Address{}, pool.Config{Curve: bc, Type: pt, IsActive: true})
	if err != nil {
		return err
	}
	if !tokens.IsZero() {
		if err := p.DepositTokens(tokens); err != nil {
			return err
		}
	}
	if items > 0 {
		ids := make([]string, items)
		for i := range ids {
			ids[i] = fmt.Sprintf("%d", i+1)
		}
		if err := p.DepositItems(ids); err != nil {
			return err
		}
	}

	pctx := payout.Context{Params: cfg.Params}
	if !royaltyPct.IsZero() {
		pctx.Royalty = &payout.Royalty{Percent: royaltyPct}
		if err := pctx.Royalty.Validate(); err != nil {
			return err
		}
	}

	var quotes []payout.QuoteSummary
	if side == index.SellToPool {
		quotes, err = p.SimSellToPoolQuotes(pctx, limit)
	} else {
		quotes, err = p.SimBuyFromPoolQuotes(pctx, limit)
	}
	if err != nil {
		return err
	}
	return printJSON(quotes)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
