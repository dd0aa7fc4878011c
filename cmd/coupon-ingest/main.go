// Command coupon-ingest loads coupons from gzip-compressed "code,discount"
// files into PostgreSQL.
//
// Files are decompressed and parsed concurrently. Codes are compared
// case-insensitively; when a code appears more than once, the last
// occurrence in the last file (by name) wins.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"strings"

	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/kart-checkout/internal/storage/postgres"
)

const progressEvery = 10_000

// couponRow is one parsed line.
type couponRow struct {
	code     string
	discount decimal.Decimal
}

// upserter stores coupons. *postgres.CouponRepository implements it.
type upserter interface {
	Upsert(ctx context.Context, code string, discount decimal.Decimal) error
}

func main() {
	var (
		pattern     string
		databaseURL string
		workers     int
	)
	flag.StringVar(&pattern, "files", "data/*.gz", "glob of gzip-compressed code,discount files")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.IntVar(&workers, "workers", 4, "concurrent upserts")
	flag.Parse()

	lg, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(2)
	}
	defer func() { _ = lg.Sync() }()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		lg.Fatal("Database URL is required: set -database-url or DATABASE_URL")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, lg, pattern, databaseURL, workers); err != nil {
		lg.Error("Coupon ingest failed", zap.Error(err))
		cancel()
		os.Exit(1)
	}
	lg.Info("Coupon ingest completed")
}

func run(ctx context.Context, lg *zap.Logger, pattern, databaseURL string, workers int) error {
	files, err := filepath.Glob(pattern)
	if err != nil {
		return errors.Wrapf(err, "glob %q", pattern)
	}
	if len(files) == 0 {
		return errors.Errorf("no files match %q", pattern)
	}
	slices.Sort(files)

	rows, err := readAll(ctx, lg, files)
	if err != nil {
		return err
	}
	lg.Info("Parsed coupons", zap.Int("files", len(files)), zap.Int("coupons", len(rows)))

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()
	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	return writeCoupons(ctx, lg, postgres.NewCouponRepository(pool), rows, workers)
}

// readAll parses every file concurrently and merges the results in file
// order.
func readAll(ctx context.Context, lg *zap.Logger, files []string) ([]couponRow, error) {
	perFile := make([][]couponRow, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			rows, err := readFile(ctx, lg, path)
			if err != nil {
				return errors.Wrapf(err, "read %s", path)
			}
			perFile[i] = rows
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Codes are case-insensitive in storage, so "abc" and "ABC" are one
	// coupon and must not reach concurrent upserts as two rows.
	index := make(map[string]int)
	var merged []couponRow
	for _, rows := range perFile {
		for _, row := range rows {
			key := strings.ToUpper(row.code)
			if i, ok := index[key]; ok {
				merged[i] = row
				continue
			}
			index[key] = len(merged)
			merged = append(merged, row)
		}
	}
	return merged, nil
}

func readFile(ctx context.Context, lg *zap.Logger, path string) ([]couponRow, error) {
	var (
		rows    []couponRow
		skipped int
	)
	err := streamGzFile(ctx, path, func(n int, line string) error {
		row, ok, err := parseLine(line)
		if err != nil {
			lg.Debug("Skipping line", zap.String("file", path), zap.Int("line", n), zap.Error(err))
			skipped++
			return nil
		}
		if ok {
			rows = append(rows, row)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	lg.Info("File parsed",
		zap.String("file", filepath.Base(path)),
		zap.Int("coupons", len(rows)),
		zap.Int("skipped", skipped),
	)
	return rows, nil
}

// parseLine parses "code,discount". Blank lines, comments and a
// "code,discount" header yield ok=false.
func parseLine(line string) (_ couponRow, ok bool, _ error) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return couponRow{}, false, nil
	}
	code, amount, found := strings.Cut(line, ",")
	code, amount = strings.TrimSpace(code), strings.TrimSpace(amount)
	if !found || code == "" {
		return couponRow{}, false, errors.Errorf("want code,discount, got %q", line)
	}
	if strings.EqualFold(code, "code") {
		return couponRow{}, false, nil
	}
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return couponRow{}, false, errors.Wrapf(err, "discount of %q", code)
	}
	if d.IsNegative() {
		return couponRow{}, false, errors.Errorf("negative discount %s for %q", d, code)
	}
	return couponRow{code: code, discount: d}, true, nil
}

// streamGzFile opens a gzip-compressed file and calls fn for each line
// with its 1-based number.
func streamGzFile(ctx context.Context, path string, fn func(n int, line string) error) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "open")
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrap(err, "gzip")
	}
	defer func() { _ = gz.Close() }()

	scanner := bufio.NewScanner(gz)
	n := 0
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		n++
		if err := fn(n, scanner.Text()); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrap(err, "scan")
	}
	return nil
}

// writeCoupons upserts rows with up to workers concurrent statements.
func writeCoupons(ctx context.Context, lg *zap.Logger, repo upserter, rows []couponRow, workers int) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(workers, 1))
	for i, row := range rows {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := repo.Upsert(ctx, row.code, row.discount); err != nil {
				return errors.Wrapf(err, "upsert %q", row.code)
			}
			return nil
		})
		if (i+1)%progressEvery == 0 {
			lg.Info("Write progress", zap.Int("queued", i+1), zap.Int("total", len(rows)))
		}
	}
	if err := g.Wait(); err != nil {
		return err
	}
	lg.Info("Coupons written", zap.Int("count", len(rows)))
	return nil
}
