package syncer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"governance-sync/internal/record"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// LogSource is the node-facing side of a sync pass.
//
// GetLogs must return every log matching the filter with a block number at or
// above filter.FromBlock, in ascending (block, transaction, log) order. It may
// return entries the caller already holds.
type LogSource interface {
	CurrentBlockNumber(ctx context.Context) (uint64, error)
	GetLogs(ctx context.Context, filter record.Filter) ([]record.LogEntry, error)
}

// Store loads and saves the checkpoint. Load returns the genesis state when
// nothing has been persisted yet.
type Store interface {
	Load(ctx context.Context) (record.State, error)
	Save(ctx context.Context, st record.State) error
}

// Config holds the fixed parameters of the tracked contract.
type Config struct {
	Address      string
	Topic        string
	GenesisBlock uint64
}

// Engine performs synchronization passes for a single contract and topic.
type Engine struct {
	address common.Address
	topic   string
	genesis uint64
}

// Result reports the outcome of a successful Run.
type Result struct {
	State      record.State
	Discovered []record.LogEntry
}

// New validates the configured address and builds an Engine. An address that
// is malformed, fails its EIP-55 checksum or is the zero address yields
// record.ErrInvalidContractAddress.
func New(cfg Config) (*Engine, error) {
	addr, err := ValidateAddress(cfg.Address)
	if err != nil {
		return nil, err
	}
	return &Engine{address: addr, topic: cfg.Topic, genesis: cfg.GenesisBlock}, nil
}

// ValidateAddress parses raw into a contract address.
func ValidateAddress(raw string) (common.Address, error) {
	if !common.IsHexAddress(raw) {
		return common.Address{}, fmt.Errorf("%w: %q is not a hex address", record.ErrInvalidContractAddress, raw)
	}
	addr := common.HexToAddress(raw)
	digits := raw
	if strings.HasPrefix(digits, "0x") || strings.HasPrefix(digits, "0X") {
		digits = digits[2:]
	}
	mixed := digits != strings.ToLower(digits) && digits != strings.ToUpper(digits)
	if mixed && addr.Hex()[2:] != digits {
		return common.Address{}, fmt.Errorf("%w: bad checksum for %q", record.ErrInvalidContractAddress, raw)
	}
	if addr == (common.Address{}) {
		return common.Address{}, fmt.Errorf("%w: zero address", record.ErrInvalidContractAddress)
	}
	return addr, nil
}

// Address returns the checksummed contract address.
func (e *Engine) Address() string { return e.address.Hex() }

// Filter builds the query for a pass starting at the given checkpoint. The
// checkpoint block itself is included because the node may not have reported
// all of its logs when it was recorded.
func (e *Engine) Filter(from uint64) record.Filter {
	return record.Filter{
		Topics:    []string{e.topic},
		Address:   e.address.Hex(),
		FromBlock: from,
	}
}

// Sync runs one pass against prior and returns the new state together with
// the number of newly discovered entries. prior is left untouched. On error
// no state is produced.
func (e *Engine) Sync(ctx context.Context, prior record.State, source LogSource) (record.State, int, error) {
	filter := e.Filter(prior.Block)

	var (
		head       uint64
		candidates []record.LogEntry
	)

	// Head and logs are independent queries; both must finish before merging.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := source.CurrentBlockNumber(gctx)
		if err != nil {
			return err
		}
		head = n
		return nil
	})
	g.Go(func() error {
		lgs, err := source.GetLogs(gctx, filter)
		if err != nil {
			return err
		}
		candidates = lgs
		return nil
	})
	if err := g.Wait(); err != nil {
		return record.State{}, 0, sourceError(err)
	}

	if head < prior.Block {
		logrus.Warnf("node head %d is behind checkpoint %d", head, prior.Block)
	}

	fresh := Dedup(prior.Logs, candidates)

	merged := make([]record.LogEntry, 0, len(prior.Logs)+len(fresh))
	merged = append(merged, prior.Logs...)
	merged = append(merged, fresh...)

	return record.State{Block: head, Logs: merged}, len(fresh), nil
}

// Dedup returns the candidates that are not structurally present in known,
// in their original order. A candidate repeated within the same response is
// kept only once.
func Dedup(known, candidates []record.LogEntry) []record.LogEntry {
	seen := make(map[string]struct{}, len(known)+len(candidates))
	for _, l := range known {
		seen[l.Key()] = struct{}{}
	}

	fresh := make([]record.LogEntry, 0, len(candidates))
	for _, l := range candidates {
		k := l.Key()
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		fresh = append(fresh, l)
	}
	return fresh
}

// Run loads the checkpoint, performs one pass and persists the result. The
// pass is all-or-nothing: if saving fails the computed state is discarded and
// the error is returned.
func (e *Engine) Run(ctx context.Context, store Store, source LogSource) (*Result, error) {
	prior, err := store.Load(ctx)
	if err != nil {
		return nil, storeError("load", err)
	}
	// An empty checkpoint below the deployment block has nothing to re-query.
	if len(prior.Logs) == 0 && prior.Block < e.genesis {
		logrus.Debugf("checkpoint %d is below genesis %d, starting at genesis", prior.Block, e.genesis)
		prior.Block = e.genesis
	}

	startTs := time.Now()
	logrus.Infof("Starting sync | contract=%s from=%d known=%d", e.address.Hex(), prior.Block, len(prior.Logs))

	next, count, err := e.Sync(ctx, prior, source)
	if err != nil {
		return nil, err
	}

	if err := store.Save(ctx, next); err != nil {
		return nil, storeError("save", err)
	}

	elapsed := time.Since(startTs).Seconds()
	logrus.Infof("[OK] Block %d → %d | New: %d | Total: %d | Time: %.2fs", prior.Block, next.Block, count, len(next.Logs), elapsed)

	return &Result{
		State:      next,
		Discovered: next.Logs[len(next.Logs)-count:],
	}, nil
}

func sourceError(err error) error {
	if errors.Is(err, record.ErrSourceUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %w", record.ErrSourceUnavailable, err)
}

func storeError(op string, err error) error {
	if errors.Is(err, record.ErrStoreFailure) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", record.ErrStoreFailure, op, err)
}
