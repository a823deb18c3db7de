package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/btcsuite/btcd/rpcclient"
	"github.com/cockroachdb/errors"
	"github.com/gaze-network/runes-settlement/common/errs"
	"github.com/gaze-network/runes-settlement/core/indexer"
	"github.com/gaze-network/runes-settlement/internal/config"
	"github.com/gaze-network/runes-settlement/modules/runes"
	"github.com/gaze-network/runes-settlement/pkg/automaxprocs"
	"github.com/gaze-network/runes-settlement/pkg/errorhandler"
	"github.com/gaze-network/runes-settlement/pkg/logger"
	"github.com/gaze-network/runes-settlement/pkg/logger/slogx"
	"github.com/gaze-network/runes-settlement/pkg/middleware/requestcontext"
	"github.com/gaze-network/runes-settlement/pkg/middleware/requestlogger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/favicon"
	fiberrecover "github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/samber/do/v2"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
)

// Modules maps a module name to the constructor of its indexer worker.
var Modules = do.Package(
	do.LazyNamed("runes", runes.New),
)

const (
	shutdownTimeout = 60 * time.Second
	forceExitDelay  = 15 * time.Second
)

func NewRunCommand() *cobra.Command {
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Index runes settlements and serve the ledger API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := automaxprocs.Init(); err != nil {
				logger.Error("Failed to set GOMAXPROCS", slogx.Error(err))
			}
			return run(cmd.Context())
		},
	}

	flags := runCmd.Flags()
	flags.Bool("api-only", false, "Serve the API without indexing new blocks")
	flags.String("modules", "", "Comma separated modules to enable. E.g. `runes`")

	config.BindPFlag("api_only", flags.Lookup("api-only"))
	config.BindPFlag("enable_modules", flags.Lookup("modules"))

	return runCmd
}

func run(parent context.Context) error {
	conf := config.Load()
	if !conf.Network.IsSupported() {
		return errors.Wrapf(errs.Unsupported, "%q network is not supported", conf.Network.String())
	}

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	injector := do.New(Modules)
	do.ProvideValue(injector, conf)
	do.ProvideValue(injector, ctx)
	do.Provide(injector, newBitcoinClient)
	do.Provide(injector, newHTTPServer)

	// workers outlive the signal context so they can finish the block in flight
	ctxWorker, stopWorker := context.WithCancel(context.Background())
	defer stopWorker()
	ctxWorker = logger.WithContext(ctxWorker, slogx.Stringer("network", conf.Network))

	workers, err := invokeModules(injector, conf.EnableModules)
	if err != nil {
		return errors.WithStack(err)
	}
	if conf.APIOnly {
		logger.InfoContext(ctx, "API only mode, indexers are not started")
	} else {
		for name, worker := range workers {
			go runWorker(logger.WithContext(ctxWorker, slogx.String("module", name)), worker, stop)
		}
	}

	app := do.MustInvoke[*fiber.App](injector)
	go func() {
		defer stop()
		logger.InfoContext(ctx, "Started HTTP server", slog.Int("port", conf.HTTPServer.Port))
		if err := app.Listen(fmt.Sprintf(":%d", conf.HTTPServer.Port)); err != nil {
			logger.PanicContext(ctx, "HTTP server stopped unexpectedly", slogx.Error(err))
		}
	}()

	logger.InfoContext(ctxWorker, "Runes settlement started", slog.Any("modules", lo.Keys(workers)))
	<-ctx.Done()

	go forceExitOnTimeout()

	logger.InfoContext(ctxWorker, "Shutting down...")
	// the injector shuts every indexer worker down before closing their dependencies
	if err := injector.Shutdown(); err != nil {
		logger.PanicContext(ctxWorker, "Failed while gracefully shutting down", slogx.Error(err))
	}
	return nil
}

// invokeModules builds the indexer worker of every enabled module.
func invokeModules(injector do.Injector, enabled []string) (map[string]indexer.IndexerWorker, error) {
	names := lo.Map(enabled, func(item string, _ int) string { return strings.TrimSpace(item) })
	names = lo.Uniq(lo.Compact(names))
	if len(names) == 0 {
		return nil, errors.Wrap(errs.InvalidArgument, "no module is enabled")
	}

	workers := make(map[string]indexer.IndexerWorker, len(names))
	for _, name := range names {
		worker, err := do.InvokeNamed[indexer.IndexerWorker](injector, name)
		if err != nil {
			if errors.Is(err, do.ErrServiceNotFound) {
				return nil, errors.Wrapf(errs.Unsupported, "module %q is not supported", name)
			}
			return nil, errors.Wrapf(err, "can't init module %q", name)
		}
		workers[name] = worker
	}
	return workers, nil
}

// runWorker stops the whole process when the worker returns.
func runWorker(ctx context.Context, worker indexer.IndexerWorker, stop context.CancelFunc) {
	defer stop()

	logger.InfoContext(ctx, "Starting indexer")
	if err := worker.Run(ctx); err != nil {
		logger.ErrorContext(ctx, "Indexer stopped with error", slogx.Error(err))
		return
	}
	logger.InfoContext(ctx, "Indexer stopped")
}

// forceExitOnTimeout exits when a second signal arrives or shutdown takes too long.
func forceExitOnTimeout() {
	defer os.Exit(1)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case <-ctx.Done():
		logger.FatalContext(ctx, "Received exit signal again. Force shutdown...")
	case <-time.After(shutdownTimeout + forceExitDelay):
		logger.FatalContext(ctx, "Shutdown timeout exceeded. Force shutdown...")
	}
}

func newBitcoinClient(i do.Injector) (*rpcclient.Client, error) {
	conf := do.MustInvoke[config.Config](i)
	ctx := do.MustInvoke[context.Context](i)

	client, err := rpcclient.New(&rpcclient.ConnConfig{
		Host:         conf.BitcoinNode.Host,
		User:         conf.BitcoinNode.User,
		Pass:         conf.BitcoinNode.Pass,
		DisableTLS:   conf.BitcoinNode.DisableTLS,
		HTTPPostMode: true,
	}, nil)
	if err != nil {
		return nil, errors.Wrap(err, "invalid bitcoin node configuration")
	}

	start := time.Now()
	logger.InfoContext(ctx, "Connecting to bitcoin node...", slogx.String("host", conf.BitcoinNode.Host))
	if err := client.Ping(); err != nil {
		return nil, errors.Wrapf(err, "can't connect to bitcoin node %q", conf.BitcoinNode.Host)
	}
	logger.InfoContext(ctx, "Connected to bitcoin node", slogx.Duration("latency", time.Since(start)))
	return client, nil
}

func newHTTPServer(i do.Injector) (*fiber.App, error) {
	conf := do.MustInvoke[config.Config](i)

	app := fiber.New(fiber.Config{
		AppName:               "runes-settlement",
		ErrorHandler:          errorhandler.NewHTTPErrorHandler(),
		DisableStartupMessage: true,
	})
	app.Use(favicon.New())
	app.Use(cors.New())
	app.Use(requestid.New())
	app.Use(requestcontext.New(
		requestcontext.WithRequestId(),
		requestcontext.WithClientIP(conf.HTTPServer.RequestIP),
	))
	app.Use(requestlogger.New(conf.HTTPServer.Logger))
	app.Use(fiberrecover.New(fiberrecover.Config{
		EnableStackTrace:  true,
		StackTraceHandler: logPanic,
	}))
	app.Use(compress.New(compress.Config{Level: compress.LevelDefault}))

	app.Get("/", func(c *fiber.Ctx) error {
		return errors.WithStack(c.SendStatus(http.StatusOK))
	})
	return app, nil
}

func logPanic(c *fiber.Ctx, e interface{}) {
	buf := make([]byte, 4096)
	buf = buf[:runtime.Stack(buf, false)]
	logger.ErrorContext(c.UserContext(), "Recovered from panic in http handler",
		slogx.Any("panic", e),
		slog.String("stacktrace", string(buf)),
	)
}
