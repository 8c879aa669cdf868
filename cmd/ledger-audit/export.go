package main

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	pgzip "github.com/klauspost/pgzip"

	"github.com/xenking/burger-ledger/internal/domain/order"
	"github.com/xenking/burger-ledger/internal/storage/postgres"
)

func exportFromDatabase(ctx context.Context, databaseURL, out string, fromID, toID uint64) (int, error) {
	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return 0, errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	orders, err := postgres.NewOrderRepository(pool).List(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "list orders")
	}

	f, err := os.Create(out)
	if err != nil {
		return 0, errors.Wrapf(err, "create %s", out)
	}
	n, err := writeExport(f, orders, fromID, toID)
	if closeErr := f.Close(); err == nil && closeErr != nil {
		err = errors.Wrapf(closeErr, "close %s", out)
	}
	return n, err
}

// writeExport writes orders with ids in [fromID, toID] as gzipped JSON lines.
func writeExport(w io.Writer, orders []order.Order, fromID, toID uint64) (int, error) {
	gz := pgzip.NewWriter(w)
	bw := bufio.NewWriter(gz)

	var (
		e jx.Encoder
		n int
	)
	for i := range orders {
		o := &orders[i]
		if uint64(o.ID) < fromID || uint64(o.ID) > toID {
			continue
		}
		e.Reset()
		encodeLine(&e, o)
		if _, err := bw.Write(e.Bytes()); err != nil {
			return n, errors.Wrap(err, "write order")
		}
		if err := bw.WriteByte('\n'); err != nil {
			return n, errors.Wrap(err, "write order")
		}
		n++
		if n%progressEvery == 0 {
			slog.Info("export progress", slog.Int("orders", n))
		}
	}

	if err := bw.Flush(); err != nil {
		return n, errors.Wrap(err, "flush")
	}
	if err := gz.Close(); err != nil {
		return n, errors.Wrap(err, "close gzip")
	}
	return n, nil
}
