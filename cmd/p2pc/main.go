package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"net"
	"net/netip"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"go.uber.org/multierr"

	"github.com/danmuck/punchctl/internal/logging"
	"github.com/danmuck/punchctl/internal/observability"
	"github.com/danmuck/punchctl/internal/peer"
	"github.com/danmuck/punchctl/internal/reactor"
)

func main() {
	configPath := flag.String("config", "", "path to a p2pc TOML config")
	name := flag.String("name", "", "local peer name (overrides config)")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: %s [-config path] [-name n] <host> <port>\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 2 {
		flag.Usage()
		os.Exit(1)
	}

	observability.InitLogger("p2pc")

	opts := defaultClientOptions()
	if *configPath != "" {
		loaded, err := loadClientOptions(*configPath)
		if err != nil {
			log.Fatal().Err(err).Str("path", *configPath).Msg("failed to load p2pc config")
		}
		opts = loaded
	}
	if *name != "" {
		opts.Name = *name
	}
	if opts.LogLevel != "" && os.Getenv(logging.EnvLogLevel) == "" {
		if err := logging.SetLevel(opts.LogLevel); err != nil {
			log.Fatal().Err(err).Msg("bad log_level")
		}
	}

	server, err := reactor.Resolve(flag.Arg(0), flag.Arg(1))
	if err != nil {
		log.Fatal().Err(err).Msg("bad server address")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts, server); err != nil {
		log.Fatal().Err(err).Msg("p2pc stopped")
	}
}

func run(ctx context.Context, opts clientOptions, server netip.AddrPort) error {
	conn, err := bind(opts.LocalPort)
	if err != nil {
		return err
	}
	loop := reactor.New(conn, reactor.Config{})

	sess, err := peer.NewSession(opts.Session, opts.Name, server, loop, loop, peer.NewConsoleNotifier(os.Stdout))
	if err != nil {
		return multierr.Combine(err, loop.Close())
	}
	log.Info().
		Str("name", opts.Name).
		Str("local", loop.LocalAddr().String()).
		Str("server", server.String()).
		Msg("p2pc started")

	// The loop is not running yet, so Start cannot race a callback.
	if err := sess.Start(); err != nil {
		return multierr.Combine(err, loop.Close())
	}
	runErr := loop.Run(ctx, sess, os.Stdin)
	sess.Close()
	return multierr.Combine(runErr, loop.Close())
}

func bind(port int) (*net.UDPConn, error) {
	if port > 0 {
		return reactor.Listen(port)
	}
	return reactor.ListenRandom(rand.New(rand.NewSource(time.Now().UnixNano())), 0)
}
