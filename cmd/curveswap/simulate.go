package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"curveSwap/internal/config"
	"curveSwap/internal/market"
	"curveSwap/internal/model"
	"curveSwap/internal/pool"
	"curveSwap/internal/swap"
)

// simulation is the input file of the simulate command. Seed pools are
// created first and are only accepted with the memory store.
type simulation struct {
	Seed []seedPool `json:"seed"`
	Swap swapSpec   `json:"swap"`
}

type seedPool struct {
	Owner      common.Address `json:"owner"`
	Collection common.Address `json:"collection"`
	Denom      string         `json:"denom"`
	Config     pool.Config    `json:"config"`
	Tokens     model.Amount   `json:"tokens"`
	Items      []string       `json:"items"`
}

type swapSpec struct {
	Operation  swap.Operation   `json:"operation"`
	Sender     common.Address   `json:"sender"`
	Collection common.Address   `json:"collection"`
	Denom      string           `json:"denom"`
	PoolID     uint64           `json:"pool_id"`
	Params     swap.Params      `json:"params"`
	Funds      model.Amount     `json:"funds"`
	SellOrders []swap.SellOrder `json:"sell_orders"`
	BuyOrders  []swap.BuyOrder  `json:"buy_orders"`
}

func newSimulateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run a swap batch without committing it",
		RunE:  runSimulate,
	}
	cmd.Flags().String("file", "", "simulation JSON file")
	return cmd
}

func runSimulate(cmd *cobra.Command, _ []string) error {
	path, _ := cmd.Flags().GetString("file")
	if path == "" {
		return fmt.Errorf("file is required")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read simulation: %w", err)
	}
	var sim simulation
	if err := json.Unmarshal(raw, &sim); err != nil {
		return fmt.Errorf("decode simulation: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := openApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	if len(sim.Seed) > 0 {
		if a.cfg.Store != config.StoreMemory {
			return fmt.Errorf("seed pools are only accepted with the memory store")
		}
		if err := seed(ctx, a, sim.Seed); err != nil {
			return err
		}
	}

	res, err := simulateSwap(ctx, a.service, a.cfg.Denom, sim.Swap)
	if err != nil {
		return err
	}
	a.logger.Info("simulation finished",
		zap.String("operation", string(res.Operation)),
		zap.String("status", string(res.Status)),
		zap.Int("swaps", len(res.Swaps)),
	)
	return printJSON(res)
}

func seed(ctx context.Context, a *app, pools []seedPool) error {
	for i, sp := range pools {
		denom := sp.Denom
		if denom == "" {
			denom = a.cfg.Denom
		}
		receipt, err := a.service.CreatePool(ctx, market.CreatePoolRequest{
			Sender:     sp.Owner,
			Collection: sp.Collection,
			Denom:      denom,
			Config:     sp.Config,
			Funds:      a.cfg.Params.ListingFee,
		})
		if err != nil {
			return fmt.Errorf("seed pool %d: %w", i, err)
		}
		id := receipt.Pool.ID
		if !sp.Tokens.IsZero() {
			if _, err := a.service.DepositTokens(ctx, sp.Owner, id, sp.Tokens); err != nil {
				return fmt.Errorf("seed pool %d: %w", i, err)
			}
		}
		if len(sp.Items) > 0 {
			if _, err := a.service.DepositNfts(ctx, sp.Owner, id, sp.Collection, sp.Items); err != nil {
				return fmt.Errorf("seed pool %d: %w", i, err)
			}
		}
	}
	return nil
}

func simulateSwap(ctx context.Context, svc *market.Service, defaultDenom string, spec swapSpec) (*swap.Result, error) {
	req := market.SwapRequest{
		Sender:     spec.Sender,
		Collection: spec.Collection,
		Denom:      spec.Denom,
		Params:     spec.Params,
		Funds:      spec.Funds,
	}
	if req.Denom == "" && spec.PoolID == 0 {
		req.Denom = defaultDenom
	}

	switch spec.Operation {
	case swap.SwapNftsForTokens:
		return svc.SimSwapNftsForTokens(ctx, req, spec.SellOrders)
	case swap.SwapTokensForAnyNfts:
		return svc.SimSwapTokensForAnyNfts(ctx, req, spec.BuyOrders)
	case swap.SwapTokensForSpecificNfts:
		return svc.SimSwapTokensForSpecificNfts(ctx, req, spec.BuyOrders)
	case swap.DirectSwapNftsForTokens:
		return svc.SimDirectSwapNftsForTokens(ctx, req, spec.PoolID, spec.SellOrders)
	case swap.DirectSwapTokensForNfts:
		return svc.SimDirectSwapTokensForNfts(ctx, req, spec.PoolID, spec.BuyOrders)
	default:
		return nil, fmt.Errorf("%w: unknown operation %q", model.ErrInvalidInput, spec.Operation)
	}
}
