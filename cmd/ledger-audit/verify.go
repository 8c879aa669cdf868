package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strconv"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/burger-ledger/internal/domain/order"
)

const (
	bloomFPR      = 0.001
	progressEvery = 100_000
	maxLineBytes  = 1 << 20
)

// report is the outcome of verifying a set of export files.
type report struct {
	Orders     int
	Violations []string
	// Duplicates are ids present more than once, within one file or
	// across files.
	Duplicates []uint64
	// Missing counts ids below the highest id that no file contains.
	Missing int
}

// OK reports whether the exports form one consistent, gap-free ledger.
func (r *report) OK() bool {
	return len(r.Violations) == 0 && len(r.Duplicates) == 0 && r.Missing == 0
}

// fileScan holds what pass 1 learned about one file.
type fileScan struct {
	filter *bloom.BloomFilter
	// repeats are ids the filter already held when they were read: repeated
	// ids plus the filter's false positives.
	repeats    map[uint64]struct{}
	count      int
	maxID      uint64
	violations []string
}

// verify checks every order's invariants and that the files partition a
// dense id range. Pass 1 builds one bloom filter of ids per file and notes
// ids the filter already held; pass 2 re-streams each file, counts every
// candidate id exactly and reports those seen more than once.
func verify(ctx context.Context, files []string, expected uint) (*report, error) {
	if expected == 0 {
		expected = 1
	}

	slog.Info("pass 1: checking orders", slog.Int("files", len(files)))
	scans := make([]fileScan, len(files))
	g, gctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			scan, err := scanFile(gctx, path, expected)
			if err != nil {
				return errors.Wrapf(err, "scan %s", path)
			}
			scans[i] = scan
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	rep := &report{}
	var (
		maxID   uint64
		hasAny  bool
		surplus int
	)
	for i, s := range scans {
		rep.Orders += s.count
		for _, v := range s.violations {
			rep.Violations = append(rep.Violations, fmt.Sprintf("%s: %s", files[i], v))
		}
		if s.count > 0 {
			hasAny = true
			maxID = max(maxID, s.maxID)
		}
	}

	if needsPass2(scans) {
		slog.Info("pass 2: finding repeated orders")
		dups, extra, err := findDuplicates(ctx, files, scans)
		if err != nil {
			return nil, err
		}
		rep.Duplicates = dups
		surplus = extra
	}

	if hasAny {
		unique := uint64(rep.Orders - surplus)
		if want := maxID + 1; unique < want {
			rep.Missing = int(want - unique)
		}
	}
	return rep, nil
}

func scanFile(ctx context.Context, path string, expected uint) (fileScan, error) {
	s := fileScan{
		filter:  bloom.NewWithEstimates(expected, bloomFPR),
		repeats: make(map[uint64]struct{}),
	}
	err := streamGzFile(ctx, path, func(line []byte) error {
		o, err := decodeLine(line)
		if err != nil {
			s.violations = append(s.violations, fmt.Sprintf("line %d: %v", s.count+1, err))
			return nil
		}
		if err := o.Check(); err != nil {
			s.violations = append(s.violations, err.Error())
		}
		if s.filter.TestAndAddString(idKey(o.ID)) {
			s.repeats[uint64(o.ID)] = struct{}{}
		}
		s.maxID = max(s.maxID, uint64(o.ID))
		s.count++
		if s.count%progressEvery == 0 {
			slog.Info("pass 1 progress", slog.String("file", path), slog.Int("orders", s.count))
		}
		return nil
	})
	return s, err
}

// needsPass2 reports whether any id can occur more than once.
func needsPass2(scans []fileScan) bool {
	if len(scans) > 1 {
		return true
	}
	for _, s := range scans {
		if len(s.repeats) > 0 {
			return true
		}
	}
	return false
}

// findDuplicates returns, sorted, the ids that occur more than once across
// all files, and the number of surplus copies.
func findDuplicates(ctx context.Context, files []string, scans []fileScan) ([]uint64, int, error) {
	candidates := make([]map[uint64]int, len(files))

	g, gctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			found := make(map[uint64]int)
			err := streamGzFile(gctx, path, func(line []byte) error {
				o, err := decodeLine(line)
				if err != nil {
					// Already reported by pass 1.
					return nil
				}
				if isCandidate(scans, i, o.ID) {
					found[uint64(o.ID)]++
				}
				return nil
			})
			if err != nil {
				return errors.Wrapf(err, "rescan %s", path)
			}
			candidates[i] = found
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, 0, err
	}

	merged := make(map[uint64]int)
	for _, c := range candidates {
		for id, n := range c {
			merged[id] += n
		}
	}

	var (
		dups  []uint64
		extra int
	)
	for id, copies := range merged {
		if copies >= 2 {
			dups = append(dups, id)
			extra += copies - 1
		}
	}
	slices.Sort(dups)
	return dups, extra, nil
}

// isCandidate reports whether id, read from file i, may occur elsewhere in
// the same file or in another file.
func isCandidate(scans []fileScan, i int, id order.ID) bool {
	if _, ok := scans[i].repeats[uint64(id)]; ok {
		return true
	}
	key := idKey(id)
	for j, s := range scans {
		if j != i && s.filter.TestString(key) {
			return true
		}
	}
	return false
}

func idKey(id order.ID) string {
	return strconv.FormatUint(uint64(id), 10)
}

// streamGzFile opens a gzip-compressed file and calls fn for each line.
func streamGzFile(ctx context.Context, path string, fn func(line []byte) error) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	scanner := bufio.NewScanner(gz)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		if err := fn(line); err != nil {
			return err
		}
	}

	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}

	return nil
}
