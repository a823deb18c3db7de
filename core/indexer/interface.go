package indexer

import (
	"context"
	"time"

	"github.com/gaze-network/runes-settlement/core/types"
)

// Input is a unit of data fed to a Processor, such as a block.
type Input interface {
	BlockHeader() types.BlockHeader
}

type Processor[T Input] interface {
	Name() string

	// Process processes the input data and indexes it.
	Process(ctx context.Context, inputs []T) error

	// CurrentBlock returns the latest indexed block header.
	CurrentBlock(ctx context.Context) (types.BlockHeader, error)

	// GetIndexedBlock returns the indexed block header by the specified block height.
	GetIndexedBlock(ctx context.Context, height int64) (types.BlockHeader, error)

	// RevertData revert synced data to the specified block height for re-indexing.
	RevertData(ctx context.Context, from int64) error

	// Shutdown gracefully stops the processor. Database connections, network calls, leftover states, etc. should be closed and cleaned up here.
	Shutdown(ctx context.Context) error
}

// IndexerWorker is a long running indexer started by the run command.
type IndexerWorker interface {
	Run(ctx context.Context) error
	Shutdown() error
	ShutdownWithTimeout(timeout time.Duration) error
}
