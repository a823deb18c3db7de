package datasources

import (
	"context"
	"encoding/hex"
	"strings"

	"github.com/btcsuite/btcd/btcjson"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/rpcclient"
	"github.com/btcsuite/btcd/wire"
	"github.com/cockroachdb/errors"
	"github.com/gaze-network/runes-settlement/common/errs"
	"github.com/gaze-network/runes-settlement/core/types"
	"github.com/gaze-network/runes-settlement/internal/subscription"
	"github.com/gaze-network/runes-settlement/pkg/btcclient"
	"github.com/gaze-network/runes-settlement/pkg/logger"
	"github.com/gaze-network/runes-settlement/pkg/logger/slogx"
	cstream "github.com/planxnx/concurrent-stream"
	"github.com/samber/lo"
)

const (
	// blocksPerRequest is the number of blocks fetched by a single stream worker.
	blocksPerRequest = 10
	streamWorkers    = 8
)

var (
	// Make sure to implement the BitcoinDatasource interface
	_ Datasource[*types.Block] = (*BitcoinNodeDatasource)(nil)

	// Commitment checks read previous transactions from the node
	_ btcclient.Contract = (*BitcoinNodeDatasource)(nil)
)

// BitcoinNodeDatasource fetch data from Bitcoin node for Bitcoin Indexer
type BitcoinNodeDatasource struct {
	btcclient *rpcclient.Client
}

func NewBitcoinNode(btcclient *rpcclient.Client) *BitcoinNodeDatasource {
	return &BitcoinNodeDatasource{
		btcclient: btcclient,
	}
}

func (d BitcoinNodeDatasource) Name() string {
	return "bitcoin_node"
}

// Fetch polling blocks from Bitcoin node
//
//   - from: block height to start fetching, if -1, it will start from genesis block
//   - to: block height to stop fetching, if -1, it will fetch until the latest block
func (d *BitcoinNodeDatasource) Fetch(ctx context.Context, from, to int64) ([]*types.Block, error) {
	ch := make(chan []*types.Block)
	subscription, err := d.FetchAsync(ctx, from, to, ch)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer subscription.Unsubscribe()

	blocks := make([]*types.Block, 0)
	for {
		select {
		case b, ok := <-ch:
			if !ok {
				return blocks, nil
			}
			blocks = append(blocks, b...)
		case <-subscription.Done():
			if err := ctx.Err(); err != nil {
				return nil, errors.Wrap(err, "context done")
			}
			return blocks, nil
		case err := <-subscription.Err():
			if err != nil {
				return nil, errors.Wrap(err, "got error while fetch async")
			}
			return blocks, nil
		case <-ctx.Done():
			return nil, errors.Wrap(ctx.Err(), "context done")
		}
	}
}

// FetchAsync polling blocks from Bitcoin node asynchronously (non-blocking)
//
//   - from: block height to start fetching, if -1, it will start from genesis block
//   - to: block height to stop fetching, if -1, it will fetch until the latest block
func (d *BitcoinNodeDatasource) FetchAsync(ctx context.Context, from, to int64, ch chan<- []*types.Block) (*subscription.ClientSubscription[[]*types.Block], error) {
	from, to, skip, err := d.prepareRange(from, to)
	if err != nil {
		return nil, errors.Wrap(err, "failed to prepare fetch range")
	}

	subscription := subscription.NewSubscription(ch)
	if skip {
		if err := subscription.UnsubscribeWithContext(ctx); err != nil {
			return nil, errors.Wrap(err, "failed to unsubscribe")
		}
		return subscription.Client(), nil
	}

	// Create parallel stream, results keep the order of submission
	out := make(chan []*types.Block)
	stream := cstream.NewStream(ctx, streamWorkers, out)

	// create slice of block height to fetch
	blockHeights := make([]int64, 0, to-from+1)
	for i := from; i <= to; i++ {
		blockHeights = append(blockHeights, i)
	}

	// Wait for stream to finish and close out channel
	go func() {
		defer close(out)
		_ = stream.Wait()
	}()

	// Fan-out blocks to subscription channel
	go func() {
		defer subscription.Close()
		for {
			select {
			case data, ok := <-out:
				// stream closed
				if !ok {
					return
				}

				// empty blocks
				if len(data) == 0 {
					continue
				}

				// send blocks to subscription channel
				if err := subscription.Send(ctx, data); err != nil {
					logger.ErrorContext(ctx, "failed while dispatch block",
						slogx.Error(err),
						slogx.Int64("start", data[0].Header.Height),
						slogx.Int64("end", data[len(data)-1].Header.Height),
					)
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	// Parallel fetch blocks from Bitcoin node until complete all block heights
	// or subscription is done.
	go func() {
		defer stream.Close()
		done := subscription.Done()
		for _, chunk := range lo.Chunk(blockHeights, blocksPerRequest) {
			chunk := chunk
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			default:
				stream.Go(func() []*types.Block {
					blocks, err := d.getBlocks(chunk)
					if err != nil {
						fromHeight, toHeight := chunk[0], chunk[len(chunk)-1]
						logger.ErrorContext(ctx, "failed to get blocks",
							slogx.Error(err),
							slogx.Int64("from_height", fromHeight),
							slogx.Int64("to_height", toHeight),
						)
						if err := subscription.SendError(ctx, errors.Wrapf(err, "failed to get blocks: from_height: %d, to_height: %d", fromHeight, toHeight)); err != nil {
							logger.ErrorContext(ctx, "failed to send error", slogx.Error(err))
						}
						return nil
					}
					return blocks
				})
			}
		}
	}()

	return subscription.Client(), nil
}

func (d *BitcoinNodeDatasource) getBlocks(heights []int64) ([]*types.Block, error) {
	blocks := make([]*types.Block, 0, len(heights))
	for _, height := range heights {
		hash, err := d.btcclient.GetBlockHash(height)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to get block hash at %d", height)
		}
		block, err := d.btcclient.GetBlock(hash)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to get block %s", hash)
		}
		blocks = append(blocks, types.ParseMsgBlock(block, height))
	}
	return blocks, nil
}

func (d *BitcoinNodeDatasource) prepareRange(fromHeight, toHeight int64) (start, end int64, skip bool, err error) {
	start = fromHeight
	end = toHeight

	// get current bitcoin block height
	latestBlockHeight, err := d.btcclient.GetBlockCount()
	if err != nil {
		return -1, -1, false, errors.Wrap(err, "failed to get block count")
	}

	// set start to genesis block height
	if start < 0 {
		start = 0
	}

	// set end to current bitcoin block height if
	// - end is -1
	// - end is greater that current bitcoin block height
	if end < 0 || end > latestBlockHeight {
		end = latestBlockHeight
	}

	// if start is greater than end, skip this round
	if start > end {
		return -1, -1, true, nil
	}

	return start, end, false, nil
}

// GetBlockHeader fetch block header from Bitcoin node
func (d *BitcoinNodeDatasource) GetBlockHeader(ctx context.Context, height int64) (types.BlockHeader, error) {
	hash, err := d.btcclient.GetBlockHash(height)
	if err != nil {
		return types.BlockHeader{}, errors.Wrapf(err, "failed to get block hash at %d", height)
	}
	header, err := d.btcclient.GetBlockHeader(hash)
	if err != nil {
		return types.BlockHeader{}, errors.Wrapf(err, "failed to get block header %s", hash)
	}
	return types.ParseMsgBlockHeader(*header, height), nil
}

// GetRawTransactionAndHeightByTxHash returns a confirmed transaction and the height of its block.
// Returns errs.NotFound if the node does not know the transaction or it is not in a block yet.
func (d *BitcoinNodeDatasource) GetRawTransactionAndHeightByTxHash(ctx context.Context, txHash chainhash.Hash) (*wire.MsgTx, int64, error) {
	txInfo, err := d.btcclient.GetRawTransactionVerbose(&txHash)
	if err != nil {
		var rpcErr *btcjson.RPCError
		if errors.As(err, &rpcErr) && rpcErr.Code == btcjson.ErrRPCInvalidAddressOrKey {
			return nil, 0, errors.Wrapf(errs.NotFound, "transaction %s", txHash)
		}
		return nil, 0, errors.Wrap(err, "failed to get raw transaction")
	}
	if txInfo.BlockHash == "" {
		return nil, 0, errors.Wrapf(errs.NotFound, "transaction %s is not confirmed", txHash)
	}

	msgTx := &wire.MsgTx{}
	if err := msgTx.Deserialize(hex.NewDecoder(strings.NewReader(txInfo.Hex))); err != nil {
		return nil, 0, errors.Wrap(err, "failed to decode transaction")
	}

	blockHash, err := chainhash.NewHashFromStr(txInfo.BlockHash)
	if err != nil {
		return nil, 0, errors.Wrap(err, "invalid block hash")
	}
	header, err := d.btcclient.GetBlockHeaderVerbose(blockHash)
	if err != nil {
		return nil, 0, errors.Wrapf(err, "failed to get block header %s", blockHash)
	}
	return msgTx, int64(header.Height), nil
}
