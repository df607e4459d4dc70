// Command storefront-db runs maintenance tasks against the storefront
// database:
//
//	storefront-db migrate
//	storefront-db purge -older-than 73h
//	storefront-db receipts -session <id>
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/xenking/sticker-storefront/internal/domain/cart"
	"github.com/xenking/sticker-storefront/internal/storage/postgres"
)

func main() {
	var databaseURL string

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [-database-url url] migrate|purge|receipts [flags]\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	lg, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer func() { _ = lg.Sync() }()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		lg.Error("Database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()
	ctx = zctx.Base(ctx, lg)

	if err := run(ctx, databaseURL, flag.Arg(0), flag.Args()[1:]); err != nil {
		lg.Error("Command failed", zap.String("command", flag.Arg(0)), zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, databaseURL, command string, args []string) error {
	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	switch command {
	case "migrate":
		return migrate(ctx, pool)
	case "purge":
		return purge(ctx, pool, args)
	case "receipts":
		return receipts(ctx, pool, args)
	default:
		return errors.Errorf("unknown command %q", command)
	}
}

func migrate(ctx context.Context, pool *pgxpool.Pool) error {
	zctx.From(ctx).Info("Running migrations")
	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}
	return nil
}

func purge(ctx context.Context, pool *pgxpool.Pool, args []string) error {
	fs := flag.NewFlagSet("purge", flag.ContinueOnError)
	olderThan := fs.Duration("older-than", cart.DefaultTTL, "delete session state untouched for this long")
	if err := fs.Parse(args); err != nil {
		return err
	}

	before := time.Now().Add(-*olderThan)
	n, err := postgres.NewKVStore(pool).Purge(ctx, before)
	if err != nil {
		return errors.Wrap(err, "purge")
	}
	zctx.From(ctx).Info("Purged session state", zap.Int64("rows", n), zap.Time("before", before))
	return nil
}

func receipts(ctx context.Context, pool *pgxpool.Pool, args []string) error {
	fs := flag.NewFlagSet("receipts", flag.ContinueOnError)
	session := fs.String("session", "", "session id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *session == "" {
		return errors.New("-session is required")
	}

	list, err := postgres.NewReceiptLog(pool).ListBySession(ctx, *session)
	if err != nil {
		return errors.Wrap(err, "list receipts")
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(list)
}
