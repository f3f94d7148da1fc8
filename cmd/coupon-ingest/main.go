// Command coupon-ingest bulk-creates campaign coupons from gzip files holding
// one code per line. A code listed in more than one file is ambiguous and is
// skipped.
package main

import (
	"bufio"
	"context"
	"flag"
	"log/slog"
	"math/bits"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/nicolascaliari/barfer-api-desarrollo/internal/domain/coupon"
	"github.com/nicolascaliari/barfer-api-desarrollo/internal/storage/postgres"
)

const (
	bloomCapacity = 10_000_000
	bloomFPR      = 0.001
	maxFiles      = 64
	progressEvery = 1_000_000
	minCodeLen    = 4
	maxCodeLen    = 32
	writers       = 8
)

type campaign struct {
	Type        coupon.Type
	Value       decimal.Decimal
	Limit       int
	OptionID    string
	MaxUnits    int
	Description string
}

// fileResult holds candidate codes found in a single file during pass 2.
type fileResult struct {
	candidates map[string]uint64
}

func main() {
	var (
		dataDir     string
		databaseURL string
		couponType  string
		value       string
		c           campaign
	)

	flag.StringVar(&dataDir, "data-dir", "data", "directory containing *.gz code files")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&couponType, "type", string(coupon.TypePercentage), "coupon type: FIXED or PERCENTAGE")
	flag.StringVar(&value, "value", "10", "coupon value")
	flag.IntVar(&c.Limit, "limit", 1, "usage limit per code")
	flag.StringVar(&c.OptionID, "option-id", "", "restrict codes to one product option")
	flag.IntVar(&c.MaxUnits, "max-units", 0, "units of the option discounted, 0 for all")
	flag.StringVar(&c.Description, "description", "", "coupon description")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	v, err := decimal.NewFromString(value)
	if err != nil {
		slog.Error("invalid --value", slog.String("error", err.Error()))
		os.Exit(1)
	}
	c.Type = coupon.Type(strings.ToUpper(couponType))
	c.Value = v

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, dataDir, databaseURL, c); err != nil {
		slog.Error("coupon ingest failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("coupon ingest completed successfully")
}

func run(ctx context.Context, dataDir, databaseURL string, c campaign) error {
	files, err := filepath.Glob(filepath.Join(dataDir, "*.gz"))
	if err != nil {
		return errors.Wrap(err, "list code files")
	}
	switch {
	case len(files) == 0:
		return errors.Errorf("no .gz files in %s", dataDir)
	case len(files) > maxFiles:
		return errors.Errorf("%d files exceed the limit of %d", len(files), maxFiles)
	}

	// Pass 1: Build bloom filters concurrently.
	slog.Info("pass 1: building bloom filters", slog.Int("files", len(files)))

	filters, err := buildBloomFilters(ctx, files)
	if err != nil {
		return errors.Wrap(err, "build bloom filters")
	}

	// Pass 2: Find codes listed in 2+ files.
	slog.Info("pass 2: finding ambiguous codes")

	ambiguous, err := findAmbiguousCodes(ctx, files, filters)
	if err != nil {
		return errors.Wrap(err, "find ambiguous codes")
	}

	slog.Info("ambiguous codes found", slog.Int("count", len(ambiguous)))

	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	svc := coupon.NewService(postgres.NewCouponRepository(pool), postgres.NewCatalogRepository(pool))

	// Pass 3: Create the remaining codes.
	slog.Info("pass 3: creating coupons")

	return writeCoupons(ctx, svc, files, ambiguous, c)
}

// buildBloomFilters creates one bloom filter per file, concurrently.
func buildBloomFilters(ctx context.Context, files []string) ([]*bloom.BloomFilter, error) {
	filters := make([]*bloom.BloomFilter, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, f := range files {
		g.Go(buildFilterForFile(ctx, i, f, filters))
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return filters, nil
}

func buildFilterForFile(ctx context.Context, idx int, path string, filters []*bloom.BloomFilter) func() error {
	return func() error {
		filter := bloom.NewWithEstimates(bloomCapacity, bloomFPR)
		var count uint64

		if err := streamGzFile(ctx, path, func(code string) error {
			filter.AddString(code)
			count++
			if count%progressEvery == 0 {
				slog.Info("pass 1 progress", slog.String("file", path), slog.Uint64("codes", count))
			}
			return nil
		}); err != nil {
			return errors.Wrapf(err, "build filter for %s", path)
		}

		slog.Info("pass 1 complete", slog.String("file", path), slog.Uint64("total_codes", count))

		filters[idx] = filter
		return nil
	}
}

// findAmbiguousCodes re-streams each file and checks codes against the OTHER
// files' bloom filters. Bloom positives are confirmed by merging the per-file
// bitmasks: only a code flagged by two files really appears in both.
func findAmbiguousCodes(ctx context.Context, files []string, filters []*bloom.BloomFilter) (map[string]struct{}, error) {
	results := make([]fileResult, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, f := range files {
		g.Go(findCandidatesInFile(ctx, i, f, filters, results))
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := make(map[string]uint64)
	for _, r := range results {
		for code, mask := range r.candidates {
			merged[code] |= mask
		}
	}

	ambiguous := make(map[string]struct{})
	for code, mask := range merged {
		if bits.OnesCount64(mask) >= 2 {
			ambiguous[code] = struct{}{}
		}
	}

	return ambiguous, nil
}

func findCandidatesInFile(
	ctx context.Context,
	idx int,
	path string,
	filters []*bloom.BloomFilter,
	results []fileResult,
) func() error {
	return func() error {
		candidates := make(map[string]uint64)
		fileBit := uint64(1) << uint(idx)

		if err := streamGzFile(ctx, path, func(code string) error {
			for j, f := range filters {
				if j != idx && f.TestString(code) {
					candidates[code] |= fileBit
					break
				}
			}
			return nil
		}); err != nil {
			return errors.Wrapf(err, "scan %s for candidates", path)
		}

		slog.Info("pass 2 complete", slog.String("file", path), slog.Int("candidates", len(candidates)))

		results[idx] = fileResult{candidates: candidates}
		return nil
	}
}

// writeCoupons creates every unambiguous code through the coupon service,
// skipping codes that already exist.
func writeCoupons(ctx context.Context, svc *coupon.Service, files []string, ambiguous map[string]struct{}, c campaign) error {
	var created, skipped atomic.Int64

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(writers)
	for _, path := range files {
		err := streamGzFile(ctx, path, func(code string) error {
			if _, ok := ambiguous[code]; ok {
				skipped.Add(1)
				return nil
			}
			g.Go(func() error {
				_, err := svc.Create(ctx, coupon.Params{
					Code:        code,
					Description: c.Description,
					Limit:       c.Limit,
					Type:        c.Type,
					Value:       c.Value,
					OptionID:    c.OptionID,
					MaxUnits:    c.MaxUnits,
				})
				if reason, ok := coupon.ReasonFor(err); ok && reason == coupon.ReasonAlreadyExists {
					skipped.Add(1)
					return nil
				}
				if err != nil {
					return errors.Wrapf(err, "create coupon %s", code)
				}
				if n := created.Add(1); n%progressEvery == 0 {
					slog.Info("write progress", slog.Int64("created", n))
				}
				return nil
			})
			return nil
		})
		if err != nil {
			_ = g.Wait()
			return err
		}
	}

	if err := g.Wait(); err != nil {
		return err
	}

	slog.Info("coupons written", slog.Int64("created", created.Load()), slog.Int64("skipped", skipped.Load()))
	return nil
}

// streamGzFile opens a gzip-compressed file and calls fn for each code of
// acceptable length, normalized.
func streamGzFile(ctx context.Context, path string, fn func(code string) error) error {
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
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		code := coupon.NormalizeCode(scanner.Text())
		if len(code) < minCodeLen || len(code) > maxCodeLen {
			continue
		}
		if err := fn(code); err != nil {
			return err
		}
	}

	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}

	return nil
}
