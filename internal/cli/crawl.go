package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/tuanvu-dev/ledgerscan/internal/api"
	"github.com/tuanvu-dev/ledgerscan/internal/control"
	"github.com/tuanvu-dev/ledgerscan/internal/crawl"
	"github.com/tuanvu-dev/ledgerscan/internal/crawl/job"
	"github.com/tuanvu-dev/ledgerscan/internal/infra/etherscan"
)

var (
	crawlStartBlock int64
	crawlTokens     bool
	crawlMaxPages   int
	crawlCSVPath    string
)

var crawlCmd = &cobra.Command{
	Use:   "crawl [address]",
	Short: "Crawl the full transaction history of an address and print a summary",
	Args:  cobra.ExactArgs(1),
	Run:   runCrawl,
}

func init() {
	crawlCmd.Flags().Int64Var(&crawlStartBlock, "start-block", 0, "first block of the crawl range")
	crawlCmd.Flags().BoolVar(&crawlTokens, "tokens", false, "also crawl token transfers")
	crawlCmd.Flags().IntVar(&crawlMaxPages, "max-pages", 0, "hard ceiling on pages fetched (0 = unlimited)")
	crawlCmd.Flags().StringVar(&crawlCSVPath, "csv", "", "write transactions to this CSV file")
	rootCmd.AddCommand(crawlCmd)
}

// runCrawl drives one job synchronously without the HTTP server: handy
// for scripting and for eyeballing an address before starting the service.
func runCrawl(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	svcCfg := control.FromAppConfig(cfg)

	client := etherscan.NewClient(svcCfg.Etherscan, slog.Default())
	store := job.NewStore(1, 1)
	j := store.Create(job.Params{
		Address:       args[0],
		StartBlock:    crawlStartBlock,
		IncludeTokens: crawlTokens,
		PageSize:      svcCfg.DefaultPageSize,
		MaxPages:      crawlMaxPages,
	})
	if err := store.Begin(j.ID); err != nil {
		slog.Error("Failed to start crawl", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	crawl.NewCrawler(client, store, svcCfg.Crawl, slog.Default()).Run(ctx, j.ID)

	st, err := store.Snapshot(j.ID)
	if err != nil {
		slog.Error("Crawl state lost", "error", err)
		os.Exit(1)
	}
	if st.Error != "" {
		slog.Error("Crawl failed", "error", st.Error)
		if !st.Done || st.ResultID == "" {
			os.Exit(1)
		}
	}

	res, ok := store.Result(st.ResultID)
	if !ok {
		slog.Error("Result missing after crawl")
		os.Exit(1)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "BLOCK\tDATE\tHASH\tDIRECTION\tVALUE (ETH)")
	for _, r := range res.Transactions {
		row := api.FormatTransaction(res.Address, r)
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n",
			row.Block, row.Date, row.ShortHash, row.Direction,
			strconv.FormatFloat(row.ValueEth, 'f', -1, 64))
	}
	_ = w.Flush()

	fmt.Printf("\n%d transactions", len(res.Transactions))
	if crawlTokens {
		fmt.Printf(", %d token transfers", len(res.Transfers))
	}
	fmt.Printf(" across %d segments, blocks %d-%d (finished %s)\n",
		len(res.Segments), res.CoverageStart, res.CoverageEnd,
		res.CreatedAt.Format(time.RFC3339))

	if crawlCSVPath != "" {
		f, err := os.Create(crawlCSVPath)
		if err != nil {
			slog.Error("Failed to create CSV file", "error", err)
			os.Exit(1)
		}
		defer func() {
			_ = f.Close()
		}()
		if err := api.WriteTransactionsCSV(f, res.Address, res.Transactions); err != nil {
			slog.Error("Failed to write CSV", "error", err)
			os.Exit(1)
		}
		fmt.Printf("Wrote %s\n", crawlCSVPath)
	}
}
