// Command coupon-index builds the known-code filter loaded by the storefront
// through STOREFRONT_COUPON_INDEX.
//
//	coupon-index -out coupons.bloom.gz codes1.txt codes2.gz
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/sticker-storefront/internal/couponindex"
)

func main() {
	var (
		out  string
		opts couponindex.Options
	)
	flag.StringVar(&out, "out", "coupons.bloom.gz", "output filter path")
	flag.UintVar(&opts.Capacity, "n", couponindex.DefaultCapacity, "expected number of codes")
	flag.Float64Var(&opts.FPRate, "fp", couponindex.DefaultFPRate, "target false positive rate")
	flag.IntVar(&opts.MinLen, "min-len", 0, "skip codes shorter than this")
	flag.IntVar(&opts.MaxLen, "max-len", 0, "skip codes longer than this")
	flag.IntVar(&opts.MinFiles, "min-files", 1, "keep codes found in at least this many inputs")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] file...\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	lg, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer func() { _ = lg.Sync() }()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()
	ctx = zctx.Base(ctx, lg)

	if err := run(ctx, out, flag.Args(), opts); err != nil {
		lg.Error("Coupon index failed", zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, out string, files []string, opts couponindex.Options) error {
	lg := zctx.From(ctx)
	if len(files) == 0 {
		return errors.New("no input files")
	}

	lg.Info("Building coupon index", zap.Strings("files", files), zap.Int("min_files", opts.MinFiles))
	f, stats, err := couponindex.Build(ctx, files, opts)
	if err != nil {
		return errors.Wrap(err, "build")
	}
	if err := couponindex.Save(out, f); err != nil {
		return errors.Wrap(err, "save")
	}

	lg.Info("Coupon index written",
		zap.String("path", out),
		zap.Int("files", stats.Files),
		zap.Uint64("codes", stats.Codes),
		zap.Uint("bits", f.Cap()),
		zap.Uint("hashes", f.K()),
		zap.Uint32("approx_distinct", f.ApproximatedSize()),
	)
	return nil
}
