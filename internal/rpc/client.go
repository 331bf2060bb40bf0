package rpc

import (
	"context"
	"time"

	"governance-sync/internal/config"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/sirupsen/logrus"
)

// Client wraps the go-ethereum ethclient; every node call it exposes is
// retried according to its RetryConfig.
type Client struct {
	*ethclient.Client

	retryCfg config.RetryConfig
}

// Dial connects to the node at url, retrying failed dials. Zero retry
// settings fall back to 3 attempts 1500ms apart.
func Dial(ctx context.Context, url string, retryCfg config.RetryConfig) (*Client, error) {
	if retryCfg.Attempts <= 0 {
		retryCfg.Attempts = 3
	}
	if retryCfg.DelayMS <= 0 {
		retryCfg.DelayMS = 1500
	}

	cli, err := retry(ctx, retryCfg, "RPC dial", func() (*ethclient.Client, error) {
		return ethclient.DialContext(ctx, url)
	})
	if err != nil {
		return nil, err
	}
	return &Client{Client: cli, retryCfg: retryCfg}, nil
}

// GetLogs runs eth_getLogs for query.
func (c *Client) GetLogs(ctx context.Context, query ethereum.FilterQuery) ([]types.Log, error) {
	return retry(ctx, c.retryCfg, "GetLogs", func() ([]types.Log, error) {
		return c.Client.FilterLogs(ctx, query)
	})
}

// LatestBlockNumber runs eth_blockNumber.
func (c *Client) LatestBlockNumber(ctx context.Context) (uint64, error) {
	return retry(ctx, c.retryCfg, "LatestBlockNumber", func() (uint64, error) {
		return c.Client.BlockNumber(ctx)
	})
}

// retry calls fn until it succeeds or cfg.Attempts calls have failed, and
// returns the last error. Cancelling ctx stops the wait between attempts.
func retry[T any](ctx context.Context, cfg config.RetryConfig, op string, fn func() (T, error)) (T, error) {
	var (
		out T
		err error
	)
	attempts := cfg.Attempts
	if attempts < 1 {
		attempts = 1
	}

	for attempt := 1; attempt <= attempts; attempt++ {
		out, err = fn()
		if err == nil {
			return out, nil
		}

		logrus.Warnf("%s failed (attempt %d/%d): %v", op, attempt, attempts, err)

		if attempt < attempts {
			if serr := sleep(ctx, cfg.DelayMS); serr != nil {
				var zero T
				return zero, serr
			}
		}
	}

	var zero T
	return zero, err
}

func sleep(ctx context.Context, delayMS int) error {
	t := time.NewTimer(time.Duration(delayMS) * time.Millisecond)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
