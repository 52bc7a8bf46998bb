package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"curveSwap/internal/config"
	"curveSwap/internal/index"
	"curveSwap/internal/storage"
)

func newPoolsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pools",
		Short: "List the pools of an owner",
		RunE:  runPools,
	}
	cmd.Flags().String("owner", "", "owner address")
	cmd.Flags().Uint64("start-after", 0, "page after this pool id")
	cmd.Flags().Int("limit", 10, "page size")
	cmd.Flags().Bool("desc", false, "newest first")
	return cmd
}

func runPools(cmd *cobra.Command, _ []string) error {
	ownerRaw, _ := cmd.Flags().GetString("owner")
	owners, err := config.ParseAddresses([]string{ownerRaw})
	if err != nil {
		return err
	}
	if len(owners) == 0 {
		return fmt.Errorf("owner is required")
	}
	opts := storage.QueryOptions{}
	if cmd.Flags().Changed("start-after") {
		startAfter, _ := cmd.Flags().GetUint64("start-after")
		opts.StartAfter = &startAfter
	}
	opts.Limit, _ = cmd.Flags().GetInt("limit")
	opts.Descending, _ = cmd.Flags().GetBool("desc")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := openApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	pools, err := a.service.PoolsByOwner(ctx, owners[0], opts)
	if err != nil {
		return err
	}
	return printJSON(pools)
}

func newBestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "best",
		Short: "Show the best quotes of a market",
		RunE:  runBest,
	}
	cmd.Flags().String("collection", "", "collection address")
	cmd.Flags().String("side", index.SellToPool.String(), "quote side (sell_to_pool, buy_from_pool)")
	cmd.Flags().Int("limit", 10, "number of pools")
	return cmd
}

func runBest(cmd *cobra.Command, _ []string) error {
	collectionRaw, _ := cmd.Flags().GetString("collection")
	collections, err := config.ParseAddresses([]string{collectionRaw})
	if err != nil {
		return err
	}
	if len(collections) == 0 {
		return fmt.Errorf("collection is required")
	}
	sideRaw, _ := cmd.Flags().GetString("side")
	side, err := index.ParseSide(sideRaw)
	if err != nil {
		return err
	}
	limit, _ := cmd.Flags().GetInt("limit")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := openApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	quotes, err := a.service.BestQuotes(ctx, collections[0], a.cfg.Denom, side, limit)
	if err != nil {
		return err
	}
	return printJSON(quotes)
}
