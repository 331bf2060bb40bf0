package app

import (
	"context"
	"fmt"

	"governance-sync/internal/config"
	"governance-sync/internal/parser"
	"governance-sync/internal/record"
	"governance-sync/internal/rpc"
	"governance-sync/internal/store"
	"governance-sync/internal/syncer"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
)

// App bundles the collaborators of a sync pass built from one configuration.
type App struct {
	Engine *syncer.Engine
	Source *rpc.Source
	Store  store.Store
	Parser *parser.Parser

	client *rpc.Client
}

// New wires the engine, state store and node client. The contract address is
// validated first so that a misconfiguration fails before any I/O.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	engine, err := syncer.New(syncer.Config{
		Address:      cfg.Contract.Address,
		Topic:        cfg.Contract.Topic,
		GenesisBlock: cfg.Contract.GenesisBlock,
	})
	if err != nil {
		return nil, err
	}

	p, err := parser.New()
	if err != nil {
		return nil, err
	}
	if common.HexToHash(cfg.Contract.Topic) != p.EventID() {
		logrus.Warnf("topic %s is not %s; stored logs will not be decoded", cfg.Contract.Topic, parser.EventName)
	}

	st, err := store.Open(cfg.Storage, cfg.Retry, cfg.Contract.GenesisBlock)
	if err != nil {
		return nil, err
	}

	client, err := rpc.Dial(ctx, cfg.RPCURL, cfg.Retry)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("%w: dial %s: %w", record.ErrSourceUnavailable, cfg.RPCURL, err)
	}

	return &App{
		Engine: engine,
		Source: rpc.NewSource(client, cfg.ChunkSize, cfg.Workers),
		Store:  st,
		Parser: p,
		client: client,
	}, nil
}

func (a *App) Close() error {
	a.client.Close()
	return a.Store.Close()
}
