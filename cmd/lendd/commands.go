package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"lendledger/rpc"
)

func serveCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the query and action API",
		RunE:  runServe,
	}
	cmd.Flags().String("listen", "", "override the configured RPC listen address")
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	n, err := openNode(ctx, cmd, true)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		n.Close(closeCtx)
	}()

	cfg := rpc.ConfigFromNode(n.cfg)
	if listen, _ := cmd.Flags().GetString("listen"); listen != "" {
		cfg.Address = listen
	}
	server, err := rpc.NewServer(n.ledger, cfg, n.logger)
	if err != nil {
		return err
	}
	if err := server.Serve(ctx); err != nil {
		return err
	}
	n.logger.Info("lendd stopped")
	return nil
}

func replayCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "replay [log.jsonl]",
		Short: "Apply a JSONL action log and print the resulting state root",
		Long:  "Apply a JSONL action log to the data directory in order. Rejected actions are skipped; a malformed record aborts the replay. Reads stdin when no file or \"-\" is given.",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runReplay,
	}
	return cmd
}

type replayOutput struct {
	Lines    int    `json:"lines"`
	Applied  int    `json:"applied"`
	Rejected int    `json:"rejected"`
	Day      uint64 `json:"day"`
	Root     string `json:"root"`
}

func runReplay(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var in io.Reader = cmd.InOrStdin()
	if len(args) == 1 && args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("open log: %w", err)
		}
		defer f.Close()
		in = f
	}

	n, err := openNode(ctx, cmd, false)
	if err != nil {
		return err
	}
	defer n.Close(context.Background())

	start := time.Now()
	result, err := n.ledger.Replay(ctx, in)
	if err != nil {
		n.logger.Error("replay aborted",
			slog.Int("line", result.Lines),
			slog.Int("applied", result.Applied),
			slog.String("error", err.Error()))
		return err
	}
	root, err := n.ledger.Root()
	if err != nil {
		return err
	}
	day, err := n.ledger.Day()
	if err != nil {
		return err
	}
	n.logger.Info("replay complete",
		slog.Int("applied", result.Applied),
		slog.Int("rejected", result.Rejected),
		slog.Duration("elapsed", time.Since(start)))
	return writeJSON(cmd.OutOrStdout(), replayOutput{
		Lines:    result.Lines,
		Applied:  result.Applied,
		Rejected: result.Rejected,
		Day:      day,
		Root:     root.Hex(),
	})
}

func rankingsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rankings",
		Short: "List indebted accounts from least to most healthy",
		RunE:  runRankings,
	}
	cmd.Flags().Int("limit", 0, "maximum rows, 0 lists every account")
	cmd.Flags().String("after", "", "start after this account")
	cmd.Flags().Bool("json", false, "print the page as JSON")
	return cmd
}

func runRankings(cmd *cobra.Command, _ []string) error {
	ctx := context.Background()
	n, err := openNode(ctx, cmd, false)
	if err != nil {
		return err
	}
	defer n.Close(ctx)

	limit, _ := cmd.Flags().GetInt("limit")
	after, _ := cmd.Flags().GetString("after")
	page, err := n.ledger.Rankings(after, limit)
	if err != nil {
		return err
	}
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		return writeJSON(cmd.OutOrStdout(), page)
	}
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ACCOUNT\tHEALTH\tLIQUIDATABLE\tBORROWED")
	for _, entry := range page.Entries {
		fmt.Fprintf(tw, "%s\t%s\t%t\t%v\n", entry.Account, entry.Health, entry.Liquidatable, entry.BorrowedAssets)
	}
	if page.Next != "" {
		fmt.Fprintf(tw, "# next page: --after %s\n", page.Next)
	}
	return tw.Flush()
}

func rootCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "root",
		Short: "Print the state root and ledger day",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := context.Background()
			n, err := openNode(ctx, cmd, false)
			if err != nil {
				return err
			}
			defer n.Close(ctx)
			root, err := n.ledger.Root()
			if err != nil {
				return err
			}
			day, err := n.ledger.Day()
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), rpc.RootResponse{Root: root.Hex(), Day: day})
		},
	}
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
