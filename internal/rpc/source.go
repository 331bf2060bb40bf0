package rpc

import (
	"context"
	"fmt"
	"math/big"

	"governance-sync/internal/record"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Source exposes a Client as the log source of a sync pass.
//
// With a zero chunk size the whole range is requested in a single
// eth_getLogs call. Otherwise the range up to the current head is split into
// windows of chunkSize blocks fetched by up to `workers` concurrent requests;
// results are concatenated in window order. The last window is left
// open-ended so that nothing produced while the pass runs is skipped.
type Source struct {
	client    *Client
	chunkSize uint64
	workers   int
}

func NewSource(client *Client, chunkSize uint64, workers int) *Source {
	if workers < 1 {
		workers = 1
	}
	return &Source{client: client, chunkSize: chunkSize, workers: workers}
}

// CurrentBlockNumber returns the node's head block.
func (s *Source) CurrentBlockNumber(ctx context.Context) (uint64, error) {
	n, err := s.client.LatestBlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: block number: %w", record.ErrSourceUnavailable, err)
	}
	return n, nil
}

// GetLogs returns every log matching f from f.FromBlock onwards in node order.
func (s *Source) GetLogs(ctx context.Context, f record.Filter) ([]record.LogEntry, error) {
	if s.chunkSize == 0 {
		return s.fetch(ctx, BuildQuery(f, f.FromBlock))
	}

	latest, err := s.CurrentBlockNumber(ctx)
	if err != nil {
		return nil, err
	}

	windows := Windows(f.FromBlock, latest, s.chunkSize)
	results := make([][]record.LogEntry, len(windows))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i, w := range windows {
		i, w := i, w
		g.Go(func() error {
			query := BuildQuery(f, w.From)
			if !w.Open {
				query.ToBlock = new(big.Int).SetUint64(w.To)
			}
			lgs, err := s.fetch(gctx, query)
			if err != nil {
				return err
			}
			results[i] = lgs
			logrus.Debugf("fetched logs %s | events=%d", w, len(lgs))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []record.LogEntry
	for _, r := range results {
		out = append(out, r...)
	}
	return out, nil
}

func (s *Source) fetch(ctx context.Context, query ethereum.FilterQuery) ([]record.LogEntry, error) {
	lgs, err := s.client.GetLogs(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: get logs from %s: %w", record.ErrSourceUnavailable, query.FromBlock, err)
	}
	out := make([]record.LogEntry, 0, len(lgs))
	for _, lg := range lgs {
		out = append(out, ToEntry(lg))
	}
	return out, nil
}

// Window is an inclusive block range; an open window has no upper bound.
type Window struct {
	From, To uint64
	Open     bool
}

func (w Window) String() string {
	if w.Open {
		return fmt.Sprintf("%d → latest", w.From)
	}
	return fmt.Sprintf("%d → %d", w.From, w.To)
}

// Windows splits [from, latest] into closed windows of size blocks followed
// by one open window covering the remainder.
func Windows(from, latest, size uint64) []Window {
	var out []Window
	for latest >= from && latest-from >= size {
		out = append(out, Window{From: from, To: from + size - 1})
		from += size
	}
	return append(out, Window{From: from, Open: true})
}

// BuildQuery converts a filter into an open-ended go-ethereum query starting
// at from. Each topic occupies its own position.
func BuildQuery(f record.Filter, from uint64) ethereum.FilterQuery {
	topics := make([][]common.Hash, 0, len(f.Topics))
	for _, t := range f.Topics {
		topics = append(topics, []common.Hash{common.HexToHash(t)})
	}
	return ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		Addresses: []common.Address{common.HexToAddress(f.Address)},
		Topics:    topics,
	}
}

// ToEntry keeps the fields of a node log that make up a stored entry.
func ToEntry(lg types.Log) record.LogEntry {
	topics := make([]string, len(lg.Topics))
	for i, t := range lg.Topics {
		topics[i] = t.Hex()
	}
	return record.LogEntry{
		Topics:           topics,
		Data:             hexutil.Encode(lg.Data),
		TransactionIndex: lg.TxIndex,
		LogIndex:         lg.Index,
		BlockNumber:      lg.BlockNumber,
	}
}
