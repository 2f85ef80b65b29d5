package main

import (
	"bufio"
	"cmp"
	"context"
	"encoding/binary"
	"io"
	"log/slog"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/pdv-backend/internal/storage/postgres"
)

const bloomFPR = 0.001

// feedResult is the per-product quantity found in one or more feeds.
type feedResult struct {
	totals    map[int64]int
	lines     int
	filtered  int
	malformed int
}

func (r *feedResult) merge(other feedResult) {
	for id, q := range other.totals {
		r.totals[id] += q
	}
	r.lines += other.lines
	r.filtered += other.filtered
	r.malformed += other.malformed
}

// restocks returns the totals ordered by product ID so batches lock rows in
// a stable order.
func (r *feedResult) restocks() []postgres.Restock {
	out := make([]postgres.Restock, 0, len(r.totals))
	for id, q := range r.totals {
		out = append(out, postgres.Restock{ProductID: id, Quantity: q})
	}
	slices.SortFunc(out, func(a, b postgres.Restock) int {
		return cmp.Compare(a.ProductID, b.ProductID)
	})
	return out
}

func productKey(id int64) []byte {
	return binary.BigEndian.AppendUint64(nil, uint64(id))
}

// knownProducts builds a membership filter over the catalog IDs.
func knownProducts(ids []int64) *bloom.BloomFilter {
	filter := bloom.NewWithEstimates(uint(max(len(ids), 1)), bloomFPR)
	for _, id := range ids {
		filter.Add(productKey(id))
	}
	return filter
}

// parseLine reads one "product_id,quantity" record.
func parseLine(line string) (int64, int, error) {
	idText, qtyText, ok := strings.Cut(line, ",")
	if !ok {
		return 0, 0, errors.New("expected product_id,quantity")
	}
	id, err := strconv.ParseInt(strings.TrimSpace(idText), 10, 64)
	if err != nil || id <= 0 {
		return 0, 0, errors.Errorf("invalid product_id %q", idText)
	}
	qty, err := strconv.Atoi(strings.TrimSpace(qtyText))
	if err != nil || qty <= 0 {
		return 0, 0, errors.Errorf("invalid quantity %q", qtyText)
	}
	return id, qty, nil
}

// scanFeed sums quantities per product. Blank lines, comments and the
// header are skipped; lines for products the filter rules out are counted
// but not kept.
func scanFeed(ctx context.Context, r io.Reader, known *bloom.BloomFilter) (feedResult, error) {
	res := feedResult{totals: make(map[int64]int)}

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return feedResult{}, err
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "product_id") {
			continue
		}
		res.lines++

		id, qty, err := parseLine(line)
		if err != nil {
			res.malformed++
			slog.Debug("skipping malformed line", slog.Int("line", res.lines), slog.String("error", err.Error()))
			continue
		}
		if !known.Test(productKey(id)) {
			res.filtered++
			continue
		}
		res.totals[id] += qty
	}
	if err := scanner.Err(); err != nil {
		return feedResult{}, errors.Wrap(err, "scan")
	}
	return res, nil
}

// scanGzFile opens a gzip-compressed feed and scans it.
func scanGzFile(ctx context.Context, path string, known *bloom.BloomFilter) (feedResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return feedResult{}, errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return feedResult{}, errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	res, err := scanFeed(ctx, gz, known)
	if err != nil {
		return feedResult{}, errors.Wrap(err, path)
	}
	return res, nil
}

// scanFeeds scans every file concurrently and merges the results.
func scanFeeds(ctx context.Context, files []string, known *bloom.BloomFilter) (feedResult, error) {
	results := make([]feedResult, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			res, err := scanGzFile(ctx, path, known)
			if err != nil {
				return err
			}
			slog.Info("feed scanned",
				slog.String("file", path),
				slog.Int("lines", res.lines),
				slog.Int("products", len(res.totals)),
				slog.Int("filtered", res.filtered),
				slog.Int("malformed", res.malformed),
			)
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return feedResult{}, err
	}

	merged := feedResult{totals: make(map[int64]int)}
	for _, r := range results {
		merged.merge(r)
	}
	return merged, nil
}

type restockApplier interface {
	Apply(ctx context.Context, entries []postgres.Restock) (postgres.RestockResult, error)
}

// importStock applies restocks and then clears the API's cached product
// list so terminals see the new stock. invalidate may be nil when no cache
// is configured. A failed invalidation is logged; the stock is already
// committed and the cache entry expires on its own.
func importStock(
	ctx context.Context,
	store restockApplier,
	invalidate func(context.Context) error,
	restocks []postgres.Restock,
) error {
	if len(restocks) == 0 {
		return nil
	}

	applied, err := store.Apply(ctx, restocks)
	if err != nil {
		return errors.Wrap(err, "apply restocks")
	}
	if len(applied.Unknown) > 0 {
		slog.Warn("restocks for unknown products skipped", slog.Any("product_ids", applied.Unknown))
	}
	slog.Info("stock updated", slog.Int("applied", applied.Applied))

	if invalidate == nil || applied.Applied == 0 {
		return nil
	}
	if err := invalidate(ctx); err != nil {
		slog.Warn("product cache invalidation failed", slog.String("error", err.Error()))
		return nil
	}
	slog.Info("product cache invalidated")
	return nil
}
