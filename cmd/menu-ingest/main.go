package main

import (
	"bufio"
	"bytes"
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/joho/godotenv"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/bistro/internal/domain/menu"
	"github.com/xenking/bistro/internal/storage"
)

const (
	bloomCapacity = 1_000_000
	bloomFPR      = 0.001
	progressEvery = 10_000
	maxLineBytes  = 1 << 20
	parseWorkers  = 4
)

// ingestStats counts what happened to the parsed catalog entries. Only
// invalid is updated by the parsers; the rest belong to the writer.
type ingestStats struct {
	parsed     int
	created    int
	duplicates int
	invalid    atomic.Int64
}

func main() {
	_ = godotenv.Load()

	var (
		driver  string
		dsn     string
		pattern string
	)

	flag.StringVar(&driver, "driver", storage.DriverPostgres, "storage driver: postgres or sqlite")
	flag.StringVar(&dsn, "dsn", "", "PostgreSQL URL or SQLite path (or DATABASE_URL env)")
	flag.StringVar(&pattern, "files", "data/menu*.ndjson.gz", "glob of gzip-compressed NDJSON catalog files")
	flag.Parse()

	if dsn == "" {
		dsn = os.Getenv("DATABASE_URL")
	}
	if dsn == "" {
		slog.Error("dsn is required: set --dsn or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, driver, dsn, pattern); err != nil {
		slog.Error("menu ingest failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("menu ingest completed successfully")
}

func run(ctx context.Context, driver, dsn, pattern string) error {
	files, err := filepath.Glob(pattern)
	if err != nil {
		return errors.Wrapf(err, "glob %s", pattern)
	}
	if len(files) == 0 {
		return errors.Errorf("no files match %s", pattern)
	}

	slog.Info("opening storage", slog.String("driver", driver))

	store, err := storage.Open(ctx, driver, dsn)
	if err != nil {
		return errors.Wrap(err, "open storage")
	}
	defer store.Close()

	stats, err := ingest(ctx, store.Menu, files)
	if err != nil {
		return err
	}

	slog.Info("ingest summary",
		slog.Int("files", len(files)),
		slog.Int("parsed", stats.parsed),
		slog.Int("created", stats.created),
		slog.Int("duplicates", stats.duplicates),
		slog.Int64("invalid", stats.invalid.Load()),
	)
	return nil
}

// ingest parses files concurrently and writes new items through a single
// writer. Names already in the menu or seen earlier in the run are skipped.
func ingest(ctx context.Context, repo menu.Repository, files []string) (*ingestStats, error) {
	stats := &ingestStats{}

	filter, err := existingNames(ctx, repo)
	if err != nil {
		return stats, errors.Wrap(err, "load existing names")
	}

	items := make(chan menu.Item, 256)
	g, gctx := errgroup.WithContext(ctx)

	parsers, pctx := errgroup.WithContext(gctx)
	parsers.SetLimit(parseWorkers)
	g.Go(func() error {
		defer close(items)
		for i, f := range files {
			parsers.Go(func() error {
				return parseFile(pctx, i, f, items, stats)
			})
		}
		return parsers.Wait()
	})

	g.Go(func() error {
		for item := range items {
			stats.parsed++
			dup, err := isDuplicate(gctx, repo, filter, item.Name)
			if err != nil {
				return err
			}
			if dup {
				stats.duplicates++
				continue
			}

			if err := repo.Create(gctx, &item); err != nil {
				return errors.Wrapf(err, "create menu item %q", item.Name)
			}
			filter.AddString(normalizeName(item.Name))
			stats.created++

			if stats.created%progressEvery == 0 {
				slog.Info("write progress", slog.Int("created", stats.created))
			}
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return stats, err
	}
	return stats, nil
}

// existingNames builds a bloom filter over the names already in the menu.
func existingNames(ctx context.Context, repo menu.Repository) (*bloom.BloomFilter, error) {
	current, err := repo.List(ctx)
	if err != nil {
		return nil, err
	}

	filter := bloom.NewWithEstimates(bloomCapacity, bloomFPR)
	for _, item := range current {
		filter.AddString(normalizeName(item.Name))
	}

	slog.Info("existing menu loaded", slog.Int("items", len(current)))
	return filter, nil
}

// isDuplicate reports whether name is already stored. Bloom misses are
// definite; hits are confirmed against the repository.
func isDuplicate(ctx context.Context, repo menu.Repository, filter *bloom.BloomFilter, name string) (bool, error) {
	if !filter.TestString(normalizeName(name)) {
		return false, nil
	}
	_, err := repo.FindByName(ctx, name)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, menu.ErrNotFound):
		return false, nil
	default:
		return false, errors.Wrapf(err, "find menu item %q", name)
	}
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// parseFile streams one catalog file and sends valid items to out.
// Invalid lines are counted and logged, not fatal.
func parseFile(ctx context.Context, idx int, path string, out chan<- menu.Item, stats *ingestStats) error {
	var lines, invalid int

	err := streamGzFile(ctx, path, func(line []byte) error {
		lines++
		item, err := parseItem(line)
		if err == nil {
			err = item.Validate()
		}
		if err != nil {
			invalid++
			slog.Warn("skipping invalid line",
				slog.String("file", path),
				slog.Int("line", lines),
				slog.String("error", err.Error()),
			)
			return nil
		}

		select {
		case out <- item:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	if err != nil {
		return errors.Wrapf(err, "parse file %d", idx+1)
	}

	slog.Info("file parsed",
		slog.Int("file", idx+1),
		slog.Int("lines", lines),
		slog.Int("invalid", invalid),
	)
	stats.invalid.Add(int64(invalid))
	return nil
}

// parseItem decodes one NDJSON catalog entry.
func parseItem(line []byte) (menu.Item, error) {
	var item menu.Item
	err := jx.DecodeBytes(line).Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "name":
			item.Name, err = d.Str()
		case "price":
			item.Price, err = decodePrice(d)
		case "description":
			item.Description, err = d.Str()
		case "image":
			item.Image, err = d.Str()
		default:
			err = d.Skip()
		}
		return err
	})
	item.Name = strings.TrimSpace(item.Name)
	return item, err
}

func decodePrice(d *jx.Decoder) (decimal.Decimal, error) {
	if d.Next() == jx.String {
		s, err := d.Str()
		if err != nil {
			return decimal.Decimal{}, err
		}
		return decimal.NewFromString(s)
	}
	n, err := d.Num()
	if err != nil {
		return decimal.Decimal{}, err
	}
	return decimal.NewFromString(string(n))
}

// streamGzFile opens a gzip-compressed file and calls fn for each non-empty line.
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
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
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
