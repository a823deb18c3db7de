package indexer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gaze-network/runes-settlement/common/errs"
	"github.com/gaze-network/runes-settlement/core/datasources"
	"github.com/gaze-network/runes-settlement/core/types"
	"github.com/gaze-network/runes-settlement/pkg/logger"
	"github.com/gaze-network/runes-settlement/pkg/logger/slogx"
)

const (
	// DefaultMaxReorgLookBack is the default number of blocks searched back for a fork point.
	DefaultMaxReorgLookBack = 1000

	// DefaultPollingInterval is the default polling interval for the indexer polling worker
	DefaultPollingInterval = 15 * time.Second

	shutdownTimeout = 180 * time.Second
)

type Config struct {
	PollingInterval time.Duration
	// MaxReorgLookBack must not exceed the number of blocks the processor can revert.
	MaxReorgLookBack int
}

// Indexer feeds the blocks of a datasource to a processor in height order, and rewinds
// the processor when the chain it has indexed is no longer the best chain.
type Indexer[T Input] struct {
	Processor    Processor[T]
	Datasource   datasources.Datasource[T]
	config       Config
	currentBlock types.BlockHeader

	quitOnce sync.Once
	quit     chan struct{}
	done     chan struct{}
}

var _ IndexerWorker = (*Indexer[*types.Block])(nil)

func New[T Input](processor Processor[T], datasource datasources.Datasource[T], config Config) *Indexer[T] {
	if config.PollingInterval <= 0 {
		config.PollingInterval = DefaultPollingInterval
	}
	if config.MaxReorgLookBack <= 0 {
		config.MaxReorgLookBack = DefaultMaxReorgLookBack
	}
	return &Indexer[T]{
		Processor:  processor,
		Datasource: datasource,
		config:     config,

		quit: make(chan struct{}),
		done: make(chan struct{}),
	}
}

func (i *Indexer[T]) Shutdown() error {
	return i.ShutdownWithContext(context.Background())
}

func (i *Indexer[T]) ShutdownWithTimeout(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return i.ShutdownWithContext(ctx)
}

// ShutdownWithContext asks Run to stop after the current batch and waits for it.
func (i *Indexer[T]) ShutdownWithContext(ctx context.Context) (err error) {
	i.quitOnce.Do(func() {
		close(i.quit)
		select {
		case <-i.done:
		case <-time.After(shutdownTimeout):
			err = errors.Wrap(errs.Timeout, "indexer shutdown timeout")
		case <-ctx.Done():
			err = errors.Wrap(ctx.Err(), "indexer shutdown context canceled")
		}
	})
	return
}

func (i *Indexer[T]) Run(ctx context.Context) (err error) {
	defer close(i.done)

	ctx = logger.WithContext(ctx,
		slog.String("package", "indexer"),
		slog.String("processor", i.Processor.Name()),
		slog.String("datasource", i.Datasource.Name()),
	)

	i.currentBlock, err = i.Processor.CurrentBlock(ctx)
	if err != nil {
		if !errors.Is(err, errs.NotFound) {
			return errors.Wrap(err, "can't init state, failed to get indexer current block")
		}
		// nothing indexed, start from genesis
		i.currentBlock = types.BlockHeader{Height: -1}
	}

	ticker := time.NewTicker(i.config.PollingInterval)
	defer ticker.Stop()
	for {
		if err := i.process(ctx); err != nil {
			logger.ErrorContext(ctx, "Indexer failed while processing", slogx.Error(err))
			return errors.Wrap(err, "process failed")
		}
		logger.DebugContext(ctx, "Waiting for next polling interval")

		select {
		case <-i.quit:
			logger.InfoContext(ctx, "Got quit signal, stopping indexer")
			if err := i.Processor.Shutdown(ctx); err != nil {
				return errors.Wrap(err, "processor shutdown failed")
			}
			return nil
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// process indexes every block the datasource has above the current block. A round ends early,
// without error, after a reorg has been reverted so the next round refetches the new branch.
func (i *Indexer[T]) process(ctx context.Context) error {
	from := i.currentBlock.Height + 1
	logger.InfoContext(ctx, "Start fetching input data", slog.Int64("from", from))

	ch := make(chan []T)
	subscription, err := i.Datasource.FetchAsync(ctx, from, -1, ch)
	if err != nil {
		return errors.Wrap(err, "failed to fetch input data")
	}
	defer subscription.Unsubscribe()

	for {
		select {
		case <-i.quit:
			return nil
		case inputs := <-ch:
			if len(inputs) == 0 {
				continue
			}
			proceed, err := i.processBatch(ctx, inputs)
			if err != nil {
				return errors.WithStack(err)
			}
			if !proceed {
				return nil
			}
		case <-subscription.Done():
			if err := ctx.Err(); err != nil {
				return errors.Wrap(err, "context done")
			}
			return nil
		case <-ctx.Done():
			return errors.WithStack(ctx.Err())
		case err := <-subscription.Err():
			if err != nil {
				return errors.Wrap(err, "got error while fetch async")
			}
		}
	}
}

// processBatch returns false when the round must restart, after a reorg.
func (i *Indexer[T]) processBatch(ctx context.Context, inputs []T) (bool, error) {
	startAt := time.Now()
	first := inputs[0].BlockHeader()
	ctx = logger.WithContext(ctx,
		slogx.Int64("from", first.Height),
		slogx.Int64("to", inputs[len(inputs)-1].BlockHeader().Height),
	)

	// a chunk failed to fetch, its error is on the way
	if first.Height != i.currentBlock.Height+1 {
		logger.WarnContext(ctx, "Inputs are not contiguous with the current block, fetching again",
			slogx.Int64("current_block", i.currentBlock.Height),
		)
		return false, nil
	}

	if !first.PrevBlock.IsEqual(&i.currentBlock.Hash) {
		logger.WarnContext(ctx, "Detected chain reorganization. Searching for fork point...",
			slogx.String("event", "reorg_detected"),
			slogx.Stringer("current_hash", i.currentBlock.Hash),
			slogx.Stringer("expected_hash", first.PrevBlock),
		)
		if err := i.revertToForkPoint(ctx); err != nil {
			return false, errors.WithStack(err)
		}
		return false, nil
	}

	continuous, err := isContinuous(inputs)
	if err != nil {
		return false, errors.WithStack(err)
	}
	if !continuous {
		logger.WarnContext(ctx, "Chain reorganization occurred while fetching inputs, fetching again")
		return false, nil
	}

	logger.InfoContext(ctx, "Processing inputs", slog.Int("total_inputs", len(inputs)))
	if err := i.Processor.Process(ctx, inputs); err != nil {
		return false, errors.WithStack(err)
	}
	i.currentBlock = inputs[len(inputs)-1].BlockHeader()

	logger.InfoContext(ctx, "Processed inputs successfully",
		slogx.String("event", "processed_inputs"),
		slogx.Int64("current_block", i.currentBlock.Height),
		slogx.Duration("duration", time.Since(startAt)),
	)
	return true, nil
}

// isContinuous reports whether every input extends the previous one.
// A height gap is a datasource bug, a hash mismatch is a reorg during the fetch.
func isContinuous[T Input](inputs []T) (bool, error) {
	for n := 1; n < len(inputs); n++ {
		header, prevHeader := inputs[n].BlockHeader(), inputs[n-1].BlockHeader()
		if header.Height != prevHeader.Height+1 {
			return false, errors.Wrapf(errs.InternalError, "input is not continuous, input[%d] height: %d, input[%d] height: %d", n-1, prevHeader.Height, n, header.Height)
		}
		if !header.PrevBlock.IsEqual(&prevHeader.Hash) {
			return false, nil
		}
	}
	return true, nil
}

// findForkPoint walks back from the block below the current one until the indexed hash matches the datasource.
func (i *Indexer[T]) findForkPoint(ctx context.Context) (types.BlockHeader, error) {
	height := i.currentBlock.Height - 1
	for n := 0; n < i.config.MaxReorgLookBack && height >= 0; n++ {
		indexedHeader, err := i.Processor.GetIndexedBlock(ctx, height)
		if err != nil {
			return types.BlockHeader{}, errors.Wrapf(err, "failed to get indexed block, height: %d", height)
		}
		remoteHeader, err := i.Datasource.GetBlockHeader(ctx, height)
		if err != nil {
			return types.BlockHeader{}, errors.Wrapf(err, "failed to get remote block header, height: %d", height)
		}
		if indexedHeader.Hash.IsEqual(&remoteHeader.Hash) {
			return remoteHeader, nil
		}
		height--
	}
	return types.BlockHeader{}, errors.Wrap(errs.SomethingWentWrong, "reorg look back limit reached")
}

func (i *Indexer[T]) revertToForkPoint(ctx context.Context) error {
	start := time.Now()
	forkPoint, err := i.findForkPoint(ctx)
	if err != nil {
		return errors.WithStack(err)
	}
	logger.InfoContext(ctx, "Found reorg fork point, starting to revert data...",
		slogx.String("event", "reorg_forkpoint"),
		slogx.Int64("since", forkPoint.Height+1),
		slogx.Int64("total_blocks", i.currentBlock.Height-forkPoint.Height),
		slogx.Duration("search_duration", time.Since(start)),
	)

	start = time.Now()
	if err := i.Processor.RevertData(ctx, forkPoint.Height+1); err != nil {
		return errors.Wrap(err, "failed to revert data")
	}
	i.currentBlock = forkPoint
	logger.InfoContext(ctx, "Fixing chain reorganization completed",
		slogx.Int64("current_block", i.currentBlock.Height),
		slogx.Duration("duration", time.Since(start)),
	)
	return nil
}
