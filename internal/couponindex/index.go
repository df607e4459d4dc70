// Package couponindex builds and loads a bloom filter of known coupon codes.
//
// The storefront consults the filter before calling the validation
// endpoint: a negative answer is definite, so unknown codes are refused
// without a network round trip.
package couponindex

import (
	"bufio"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/klauspost/pgzip"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/sticker-storefront/internal/domain/coupon"
)

// Defaults for Options.
const (
	DefaultCapacity = 1_000_000
	DefaultFPRate   = 0.001
)

// Options size the filter and bound accepted code lengths.
type Options struct {
	Capacity uint
	FPRate   float64
	// MinLen and MaxLen bound normalized code length. Zero disables a bound.
	MinLen, MaxLen int
	// MinFiles keeps only codes found in at least that many input files.
	MinFiles int
}

func (o *Options) setDefaults() {
	if o.Capacity == 0 {
		o.Capacity = DefaultCapacity
	}
	if o.FPRate <= 0 {
		o.FPRate = DefaultFPRate
	}
}

func (o Options) accept(code string) bool {
	if code == "" {
		return false
	}
	if o.MinLen > 0 && len(code) < o.MinLen {
		return false
	}
	return o.MaxLen <= 0 || len(code) <= o.MaxLen
}

// Stats summarizes a build. Codes counts accepted lines, duplicates
// included.
type Stats struct {
	Files int
	Codes uint64
}

// Build indexes one code per line from every file. Files ending in .gz are
// decompressed. Lines are normalized like user input; blank lines and lines
// starting with '#' are skipped. Files are scanned concurrently into
// per-file filters that are merged at the end.
//
// With MinFiles above one a second pass keeps only codes present in at
// least that many files.
func Build(ctx context.Context, paths []string, opts Options) (*bloom.BloomFilter, Stats, error) {
	opts.setDefaults()
	if len(paths) == 0 {
		return nil, Stats{}, errors.New("no input files")
	}
	if opts.MinFiles > len(paths) {
		return nil, Stats{}, errors.Errorf("min files %d exceeds %d inputs", opts.MinFiles, len(paths))
	}

	filters, codes, err := scanAll(ctx, paths, opts, func(int, string) bool { return true })
	if err != nil {
		return nil, Stats{}, err
	}
	if opts.MinFiles > 1 {
		seenIn := filters
		filters, codes, err = scanAll(ctx, paths, opts, func(i int, code string) bool {
			seen := 1
			for j, f := range seenIn {
				if j != i && f.TestString(code) {
					seen++
				}
			}
			return seen >= opts.MinFiles
		})
		if err != nil {
			return nil, Stats{}, err
		}
	}

	out := filters[0]
	for _, f := range filters[1:] {
		if err := out.Merge(f); err != nil {
			return nil, Stats{}, errors.Wrap(err, "merge filters")
		}
	}
	return out, Stats{Files: len(paths), Codes: codes}, nil
}

// scanAll builds one filter per file holding the accepted codes for which
// keep returns true. keep must be safe for concurrent use.
func scanAll(
	ctx context.Context,
	paths []string,
	opts Options,
	keep func(file int, code string) bool,
) ([]*bloom.BloomFilter, uint64, error) {
	var (
		total   atomic.Uint64
		filters = make([]*bloom.BloomFilter, len(paths))
	)
	g, ctx := errgroup.WithContext(ctx)
	for i, path := range paths {
		g.Go(func() error {
			f := bloom.NewWithEstimates(opts.Capacity, opts.FPRate)
			var n uint64
			if err := scanFile(ctx, path, func(code string) {
				if opts.accept(code) && keep(i, code) {
					f.AddString(code)
					n++
				}
			}); err != nil {
				return errors.Wrapf(err, "index %s", path)
			}
			zctx.From(ctx).Info("Indexed file", zap.String("path", path), zap.Uint64("codes", n))
			total.Add(n)
			filters[i] = f
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, 0, err
	}
	return filters, total.Load(), nil
}

// scanFile calls fn for every non-comment line of path, normalized.
func scanFile(ctx context.Context, path string, fn func(code string)) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "open")
	}
	defer func() { _ = f.Close() }()

	var r io.Reader = f
	if strings.EqualFold(filepath.Ext(path), ".gz") {
		gz, err := pgzip.NewReader(f)
		if err != nil {
			return errors.Wrap(err, "gzip reader")
		}
		defer func() { _ = gz.Close() }()
		r = gz
	}

	var n uint64
	s := bufio.NewScanner(r)
	for s.Scan() {
		if n%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		n++
		line := strings.TrimSpace(s.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fn(coupon.NormalizeCode(line))
	}
	if err := s.Err(); err != nil {
		return errors.Wrap(err, "scan")
	}
	return nil
}

// Save writes f to path, gzip-compressed.
func Save(path string, f *bloom.BloomFilter) (rerr error) {
	file, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "create index")
	}
	defer func() {
		if err := file.Close(); err != nil && rerr == nil {
			rerr = errors.Wrap(err, "close index")
		}
	}()

	gz := pgzip.NewWriter(file)
	if _, err := f.WriteTo(gz); err != nil {
		return errors.Wrap(err, "write index")
	}
	if err := gz.Close(); err != nil {
		return errors.Wrap(err, "flush index")
	}
	return nil
}

// Load reads a filter written by Save.
func Load(path string) (*bloom.BloomFilter, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open index")
	}
	defer func() { _ = file.Close() }()

	gz, err := pgzip.NewReader(file)
	if err != nil {
		return nil, errors.Wrap(err, "gzip reader")
	}
	defer func() { _ = gz.Close() }()

	f := &bloom.BloomFilter{}
	if _, err := f.ReadFrom(gz); err != nil {
		return nil, errors.Wrap(err, "read index")
	}
	return f, nil
}
