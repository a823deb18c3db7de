package runes

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/btcsuite/btcd/rpcclient"
	"github.com/cockroachdb/errors"
	"github.com/gaze-network/runes-settlement/common/errs"
	"github.com/gaze-network/runes-settlement/core/datasources"
	"github.com/gaze-network/runes-settlement/core/indexer"
	"github.com/gaze-network/runes-settlement/core/types"
	"github.com/gaze-network/runes-settlement/internal/config"
	"github.com/gaze-network/runes-settlement/internal/kvstore"
	"github.com/gaze-network/runes-settlement/internal/kvstore/badgerdb"
	"github.com/gaze-network/runes-settlement/internal/kvstore/boltdb"
	"github.com/gaze-network/runes-settlement/internal/kvstore/pgkv"
	"github.com/gaze-network/runes-settlement/internal/postgres"
	runesapi "github.com/gaze-network/runes-settlement/modules/runes/api"
	runesconfig "github.com/gaze-network/runes-settlement/modules/runes/config"
	"github.com/gaze-network/runes-settlement/modules/runes/event"
	"github.com/gaze-network/runes-settlement/modules/runes/repository/kv"
	runesusecase "github.com/gaze-network/runes-settlement/modules/runes/usecase"
	"github.com/gaze-network/runes-settlement/pkg/btcclient"
	"github.com/gaze-network/runes-settlement/pkg/logger"
	"github.com/gaze-network/runes-settlement/pkg/logger/slogx"
	"github.com/gofiber/fiber/v2"
	"github.com/samber/do/v2"
	"github.com/samber/lo"
)

const defaultBoltPath = "data/runes.db"

func New(injector do.Injector) (indexer.IndexerWorker, error) {
	ctx := do.MustInvoke[context.Context](injector)
	conf := do.MustInvoke[config.Config](injector)
	runesConf := conf.Modules.Runes

	var cleanupFuncs []func(context.Context) error
	db, err := openDatabase(ctx, runesConf)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	cleanupFuncs = append(cleanupFuncs, func(context.Context) error {
		return errors.Wrap(db.Close(), "can't close runes database")
	})
	runesRepo := kv.NewRepository(db)

	var bitcoinDatasource datasources.Datasource[*types.Block]
	var bitcoinClient btcclient.Contract
	switch strings.ToLower(runesConf.Datasource) {
	case "bitcoin-node", "":
		btcClient := do.MustInvoke[*rpcclient.Client](injector)
		bitcoinNodeDatasource := datasources.NewBitcoinNode(btcClient)
		bitcoinDatasource = bitcoinNodeDatasource
		bitcoinClient = bitcoinNodeDatasource
	default:
		return nil, errors.Wrapf(errs.Unsupported, "%q datasource is not supported", runesConf.Datasource)
	}

	emitter := event.NewEmitter(runesConf.Events.BufferSize)
	eventHandler, closeSink, err := newEventHandler(runesConf.Events)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	consumerDone := make(chan struct{})
	// the consumer must finish acknowledging before the database is closed
	cleanupFuncs = append([]func(context.Context) error{func(ctx context.Context) error {
		select {
		case <-consumerDone:
			return nil
		case <-ctx.Done():
			return errors.Wrap(ctx.Err(), "event consumer did not finish")
		}
	}}, cleanupFuncs...)

	undoRetention := lo.Ternary(runesConf.UndoRetention > 0, runesConf.UndoRetention, DefaultUndoRetention)
	processor := NewProcessor(runesRepo, runesRepo, bitcoinClient, conf.Network, ProcessorOptions{
		Emitter:       emitter,
		UndoRetention: undoRetention,
		CleanupFuncs:  cleanupFuncs,
	})

	// drain until the processor closes the emitter on shutdown
	go func() {
		defer close(consumerDone)
		defer closeSink()
		ctx := context.WithoutCancel(ctx)
		if err := consumeEvents(ctx, emitter, processor, eventHandler); err != nil {
			logger.ErrorContext(ctx, "Something went wrong, event consumer stopped", slogx.Error(err))
			return
		}
		logger.InfoContext(ctx, "Event consumer stopped", slogx.Uint64("dropped_events", emitter.Dropped()))
	}()

	if err := processor.VerifyStates(ctx); err != nil {
		return nil, errors.WithStack(err)
	}

	// Mount API
	apiHandlers := lo.Uniq(runesConf.APIHandlers)
	for _, handler := range apiHandlers {
		switch handler {
		case "http":
			httpServer := do.MustInvoke[*fiber.App](injector)
			runesUsecase := runesusecase.New(runesRepo)
			runesHTTPHandler := runesapi.NewHTTPHandler(conf.Network, runesUsecase)
			if err := runesHTTPHandler.Mount(httpServer); err != nil {
				return nil, errors.Wrap(err, "can't mount Runes API")
			}
			logger.InfoContext(ctx, "Mounted HTTP handler")
		default:
			return nil, errors.Wrapf(errs.Unsupported, "%q API handler is not supported", handler)
		}
	}

	indexer := indexer.New(processor, bitcoinDatasource, indexer.Config{
		MaxReorgLookBack: int(undoRetention),
	})
	return indexer, nil
}

// consumeEvents hands every event to handle and acknowledges it. When it fails the emitter is failed
// too, so the indexer stops instead of blocking on a channel nobody drains.
func consumeEvents(ctx context.Context, emitter *event.Emitter, processor *Processor, handle event.Handler) error {
	err := event.Consume(ctx, emitter.Events(), func(ctx context.Context, ev event.Event) error {
		if err := handle(ctx, ev); err != nil {
			return errors.WithStack(err)
		}
		return errors.WithStack(processor.AcknowledgeEvent(ctx, ev))
	})
	if err != nil {
		emitter.Fail(err)
		return errors.WithStack(err)
	}
	return nil
}

func openDatabase(ctx context.Context, conf runesconfig.Config) (kvstore.DB, error) {
	switch strings.ToLower(conf.Database) {
	case "bolt", "boltdb", "":
		boltConf := conf.Bolt
		if boltConf.Path == "" {
			boltConf.Path = defaultBoltPath
		}
		db, err := boltdb.New(boltConf, kv.Tables...)
		if err != nil {
			return nil, errors.Wrap(err, "can't open bolt database")
		}
		return db, nil
	case "badger", "badgerdb":
		db, err := badgerdb.New(conf.Badger)
		if err != nil {
			return nil, errors.Wrap(err, "can't open badger database")
		}
		return db, nil
	case "postgresql", "postgres", "pg":
		pg, err := postgres.NewPool(ctx, conf.Postgres)
		if err != nil {
			if errors.Is(err, errs.InvalidArgument) {
				return nil, errors.Wrap(err, "Invalid Postgres configuration for indexer")
			}
			return nil, errors.Wrap(err, "can't create Postgres connection pool")
		}
		return pgkv.New(pg, pg.Close), nil
	default:
		return nil, errors.Wrapf(errs.Unsupported, "%q database for indexer is not supported", conf.Database)
	}
}

// newEventHandler returns the configured sink and a function releasing its resources.
func newEventHandler(conf runesconfig.EventsConfig) (event.Handler, func(), error) {
	switch strings.ToLower(conf.Sink) {
	case "log", "":
		return event.LogHandler(), func() {}, nil
	case "discard", "none":
		return event.DiscardHandler(), func() {}, nil
	case "file":
		if conf.Path == "" {
			return nil, nil, errors.Wrap(errs.InvalidArgument, "events path is required for the file sink")
		}
		if err := os.MkdirAll(filepath.Dir(conf.Path), 0o755); err != nil {
			return nil, nil, errors.Wrap(err, "can't create events directory")
		}
		f, err := os.OpenFile(conf.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, errors.Wrap(err, "can't open events file")
		}
		return event.JSONLinesHandler(f), func() { _ = f.Close() }, nil
	default:
		return nil, nil, errors.Wrapf(errs.Unsupported, "%q event sink is not supported", conf.Sink)
	}
}
