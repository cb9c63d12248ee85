package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/danmuck/punchctl/internal/admin"
	"github.com/danmuck/punchctl/internal/auth"
	"github.com/danmuck/punchctl/internal/directory"
	"github.com/danmuck/punchctl/internal/logging"
	"github.com/danmuck/punchctl/internal/observability"
	"github.com/danmuck/punchctl/internal/reactor"
	"github.com/danmuck/punchctl/internal/rendezvous"
)

func main() {
	configPath := flag.String("config", "", "path to a p2pd TOML config")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: %s [-config path] [port]\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	observability.InitLogger("p2pd")

	opts := defaultServerOptions()
	if *configPath != "" {
		loaded, err := loadServerOptions(*configPath)
		if err != nil {
			log.Fatal().Err(err).Str("path", *configPath).Msg("failed to load p2pd config")
		}
		opts = loaded
		log.Info().Str("path", *configPath).Msg("loaded p2pd config")
	}
	if flag.NArg() > 1 {
		flag.Usage()
		os.Exit(1)
	}
	if flag.NArg() == 1 {
		port, err := parsePort(flag.Arg(0))
		if err != nil {
			log.Fatal().Err(err).Msg("bad listen port")
		}
		opts.Port = port
	}
	if opts.LogLevel != "" && os.Getenv(logging.EnvLogLevel) == "" {
		if err := logging.SetLevel(opts.LogLevel); err != nil {
			log.Fatal().Err(err).Msg("bad log_level")
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts); err != nil {
		log.Fatal().Err(err).Msg("p2pd stopped")
	}
	log.Info().Msg("p2pd stopped")
}

func run(ctx context.Context, opts serverOptions) error {
	conn, err := reactor.Listen(opts.Port)
	if err != nil {
		return err
	}
	loop := reactor.New(conn, reactor.Config{})
	srv, err := rendezvous.NewServer(opts.Session, loop, loop)
	if err != nil {
		return multierr.Combine(err, loop.Close())
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return loop.Run(gctx, srv, nil)
	})

	if opts.AdminAddr != "" {
		var guard auth.Validator
		if opts.AdminToken != "" {
			guard = auth.StaticToken{Token: opts.AdminToken}
		}
		adm := admin.New("p2pd", opts.AdminAddr, opts.CorsOrigins, func(ctx context.Context) ([]directory.Snapshot, error) {
			var snap []directory.Snapshot
			err := loop.Do(ctx, func() { snap = srv.Snapshot() })
			return snap, err
		}, guard)
		adm.SetReady(true)
		g.Go(adm.ListenAndServe)
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return adm.Shutdown(shutdownCtx)
		})
	}

	log.Info().
		Int("port", opts.Port).
		Dur("ack_timeout", opts.Session.AckTimeout).
		Int("max_retries", opts.Session.MaxRetries).
		Str("admin", opts.AdminAddr).
		Msg("p2pd started")

	return multierr.Combine(g.Wait(), loop.Close())
}
