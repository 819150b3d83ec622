package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/tuanvu-dev/ledgerscan/internal/control"
	"github.com/tuanvu-dev/ledgerscan/internal/core/domain"
	"github.com/tuanvu-dev/ledgerscan/internal/infra/etherscan"
)

var balanceCmd = &cobra.Command{
	Use:   "balance [address] [date]",
	Short: "Show the balance of an address at 00:00 UTC on a given date (YYYY-MM-DD)",
	Args:  cobra.ExactArgs(2),
	Run:   runBalance,
}

func init() {
	rootCmd.AddCommand(balanceCmd)
}

func runBalance(cmd *cobra.Command, args []string) {
	address, date := args[0], args[1]

	ts, err := domain.DayStartUTC(date)
	if err != nil {
		fmt.Printf("Invalid date: %v\n", err)
		os.Exit(1)
	}

	cfg := loadConfig()
	client := etherscan.NewClient(control.FromAppConfig(cfg).Etherscan, slog.Default())

	ctx := context.Background()
	block, err := client.BlockByTime(ctx, ts)
	if err != nil {
		slog.Error("Failed to resolve block for date", "date", date, "error", err)
		os.Exit(1)
	}

	wei, err := client.BalanceAt(ctx, address, block)
	if err != nil {
		slog.Error("Failed to fetch balance", "error", err)
		os.Exit(1)
	}

	fmt.Printf("Balance of %s at %s (block %d): %.6f ETH\n",
		address, date, block, domain.WeiToEth(wei))
}
