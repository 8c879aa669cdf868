// Command ledger-audit exports the order ledger as gzipped JSON lines and
// verifies exported shards offline.
//
//	ledger-audit export --database-url ... --out orders.jsonl.gz [--from-id N --to-id M]
//	ledger-audit verify [--expected N] shard1.jsonl.gz shard2.jsonl.gz ...
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"math"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	var err error
	switch cmd, args := os.Args[1], os.Args[2:]; cmd {
	case "export":
		err = runExportCmd(ctx, args)
	case "verify":
		err = runVerifyCmd(ctx, args)
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		slog.Error("ledger audit failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: ledger-audit export|verify [flags]")
}

func runExportCmd(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	var (
		databaseURL string
		out         string
		fromID      uint64
		toID        uint64
	)
	fs.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	fs.StringVar(&out, "out", "orders.jsonl.gz", "output file")
	fs.Uint64Var(&fromID, "from-id", 0, "first order id to export")
	fs.Uint64Var(&toID, "to-id", math.MaxUint64, "last order id to export")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		return errors.New("database URL is required: set --database-url or DATABASE_URL")
	}
	if fromID > toID {
		return errors.Errorf("--from-id %d is after --to-id %d", fromID, toID)
	}

	n, err := exportFromDatabase(ctx, databaseURL, out, fromID, toID)
	if err != nil {
		return err
	}
	slog.Info("export completed", slog.String("file", out), slog.Int("orders", n))
	return nil
}

func runVerifyCmd(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("verify", flag.ContinueOnError)
	var expected uint
	fs.UintVar(&expected, "expected", 1_000_000, "expected orders per file, sizes the bloom filters")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return errors.New("at least one export file is required")
	}

	rep, err := verify(ctx, fs.Args(), expected)
	if err != nil {
		return err
	}

	slog.Info("verify completed",
		slog.Int("orders", rep.Orders),
		slog.Int("violations", len(rep.Violations)),
		slog.Int("duplicates", len(rep.Duplicates)),
		slog.Int("missing", rep.Missing),
	)
	for _, v := range rep.Violations {
		slog.Warn("invariant violated", slog.String("detail", v))
	}
	for _, id := range rep.Duplicates {
		slog.Warn("order exported more than once", slog.Uint64("order_id", id))
	}
	if !rep.OK() {
		return errors.New("ledger export is inconsistent")
	}
	return nil
}
