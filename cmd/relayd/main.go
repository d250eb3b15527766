// relayd is the bootstrap binary for the subscription core: it wires
// config, store, signer, metrics, and registry together behind an HTTP
// websocket listener, following the teacher's cmd/lerproxy/main.go shape
// (arg.MustParse, signal.NotifyContext, chk.T(err) before exit) generalized
// from a TLS reverse proxy's bootstrap to this relay's.
package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"

	"github.com/alexflint/go-arg"

	"orly.dev/relaycore/internal/chk"
	"orly.dev/relaycore/internal/context"
	"orly.dev/relaycore/internal/logx"
	"orly.dev/relaycore/pkg/nostrcore/scope"
	"orly.dev/relaycore/pkg/relay/command"
	"orly.dev/relaycore/pkg/relay/coordinator"
	"orly.dev/relaycore/pkg/relay/registry"
	"orly.dev/relaycore/pkg/relayconfig"
	"orly.dev/relaycore/pkg/relaymetrics"
	"orly.dev/relaycore/pkg/signer"
	"orly.dev/relaycore/pkg/signer/batching"
	"orly.dev/relaycore/pkg/signer/ed25519signer"
	"orly.dev/relaycore/pkg/store"
	"orly.dev/relaycore/pkg/store/badgerstore"
	"orly.dev/relaycore/pkg/transport/wslistener"
)

var log = logx.Component("relayd")

// runArgs is the CLI surface, following the teacher's RunArgs-struct-plus-
// go-arg idiom. Everything that can instead be set by environment variable
// is left to relayconfig.New; these flags only cover what a human starting
// the process wants to override on the command line.
type runArgs struct {
	ConfigOnly bool `arg:"--config-only" help:"print resolved configuration and exit"`
}

func main() {
	var args runArgs
	arg.MustParse(&args)

	logx.Init(logx.Config{Level: "info"})

	cfg, err := relayconfig.New()
	if chk.T(err) {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	logx.Init(logx.Config{Level: cfg.LogLevel})

	if args.ConfigOnly {
		fmt.Printf("%+v\n", cfg)
		return
	}

	ctx, cancel := signal.NotifyContext(context.Bg(), os.Interrupt)
	defer cancel()

	if err := run(ctx, cfg); chk.T(err) {
		log.Fatal().Err(err).Msg("relayd exited")
	}
}

func run(ctx context.T, cfg *relayconfig.C) error {
	str, err := badgerstore.Open(cfg.DataDir)
	if chk.E(err) {
		return fmt.Errorf("opening store: %w", err)
	}
	defer func() { chk.E(str.Close()) }()

	baseSigner, err := ed25519signer.New()
	if chk.E(err) {
		return fmt.Errorf("constructing signer: %w", err)
	}
	sgr := batching.New(ctx, baseSigner, batching.DefaultWorkers, batching.DefaultQueueCapacity)

	metrics := relaymetrics.NewPrometheus()
	reg := registry.New(metrics)

	coordCfg := coordinator.Config{
		MaxLimit:           uint(cfg.MaxLimit),
		BufferCapacity:     cfg.BufferCapacity,
		PaginationAttempts: cfg.PaginationAttempts,
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/", relayHandler(ctx, str, sgr, reg, metrics, coordCfg))

	addr := fmt.Sprintf("%s:%d", cfg.Listen, cfg.Port)
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		chk.E(srv.Close())
	}()

	log.Info().Str("addr", addr).Str("data_dir", cfg.DataDir).Msg("relayd listening")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// relayHandler builds the single websocket upgrade endpoint, constructing a
// fresh Coordinator (and its ConnectionHandle/Buffer) per accepted
// connection and tearing it down on disconnect.
func relayHandler(
	ctx context.T, str store.I, sgr signer.I, reg *registry.Registry,
	metrics relaymetrics.Sink, coordCfg coordinator.Config,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		scp := requestScope(r)
		factory := func(connCtx context.T, connID string, sender command.MessageSender) *coordinator.C {
			return coordinator.New(
				connCtx, str, sgr, reg, connID, sender,
				"", false, scp, metrics, coordCfg,
			)
		}
		wslistener.Serve(ctx, w, r, factory, coordinator.AcceptAll)
	}
}

// requestScope derives a connection's tenant partition from its request
// path, e.g. a client dialing "/acme" joins scope.Named("acme"); the root
// path joins scope.Default. Host policy, not a core concern (spec §3 leaves
// scope assignment to whatever sits in front of the core).
func requestScope(r *http.Request) scope.T {
	if r == nil || r.URL.Path == "" || r.URL.Path == "/" {
		return scope.Default
	}
	name := strings.Trim(r.URL.Path, "/")
	if name == "" {
		return scope.Default
	}
	return scope.Named(name)
}
