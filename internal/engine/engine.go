// Package engine is the composition root of the wallet daemon: it
// opens the ledger database, wires the manager, reorg detector,
// indexer client, and sync coordinator, and manages their lifecycle.
package engine

import (
	"context"
	"fmt"

	"github.com/umbra-network/umbra-wallet/config"
	"github.com/umbra-network/umbra-wallet/internal/dust"
	"github.com/umbra-network/umbra-wallet/internal/indexer"
	"github.com/umbra-network/umbra-wallet/internal/ledger"
	"github.com/umbra-network/umbra-wallet/internal/log"
	"github.com/umbra-network/umbra-wallet/internal/manager"
	"github.com/umbra-network/umbra-wallet/internal/reorg"
	"github.com/umbra-network/umbra-wallet/internal/storage"
	"github.com/umbra-network/umbra-wallet/internal/syncer"
	"github.com/umbra-network/umbra-wallet/internal/wallet"
	"github.com/umbra-network/umbra-wallet/pkg/types"
)

// Engine owns the wired components of a running wallet daemon.
type Engine struct {
	cfg *config.Config

	db       storage.DB
	store    *ledger.Store
	manager  *manager.Manager
	detector *reorg.Detector
	client   *indexer.Client
	coord    *syncer.Coordinator
	keystore *wallet.Keystore
}

// New opens the ledger database and wires all components. Nothing
// starts running until Start.
func New(cfg *config.Config) (*Engine, error) {
	types.SetAddressHRP(cfg.AddressHRP())

	db, err := storage.NewBadger(cfg.LedgerDir())
	if err != nil {
		return nil, fmt.Errorf("open ledger db: %w", err)
	}

	store := ledger.NewStore(db)
	params := dust.Params{
		NightDustRatio:    cfg.Dust.NightDustRatio,
		GenerationRateNum: cfg.Dust.GenerationRateNum,
		GenerationRateDen: cfg.Dust.GenerationRateDen,
	}
	mgr := manager.New(store, params, log.Manager)

	detector, err := reorg.NewDetector(cfg.Sync.HistoryDepth, cfg.Sync.FinalityThreshold, log.Reorg)
	if err != nil {
		db.Close()
		return nil, err
	}

	client := indexer.New(cfg.Indexer.RPCURL, cfg.Indexer.WSURL, cfg.Indexer.Timeout, log.Indexer)
	coord := syncer.New(client, mgr, syncer.NewCursorStore(db), detector, syncer.Config{
		RetryBaseDelay: cfg.Sync.RetryBaseDelay,
		RetryMaxDelay:  cfg.Sync.RetryMaxDelay,
		MaxRetries:     cfg.Sync.MaxRetries,
	}, log.Syncer)

	ks, err := wallet.NewKeystore(cfg.KeystoreDir())
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("open keystore: %w", err)
	}

	return &Engine{
		cfg:      cfg,
		db:       db,
		store:    store,
		manager:  mgr,
		detector: detector,
		client:   client,
		coord:    coord,
		keystore: ks,
	}, nil
}

// Start launches sync for every address recorded in the keystore
// metadata of the configured wallet.
func (e *Engine) Start(ctx context.Context) error {
	e.coord.Start(ctx)

	entries, err := e.keystore.ListAccounts(e.cfg.Wallet.Name)
	if err != nil {
		return fmt.Errorf("list wallet accounts: %w", err)
	}
	for _, entry := range entries {
		if err := e.coord.Watch(entry.Address); err != nil {
			return err
		}
	}

	log.Info().
		Str("network", string(e.cfg.Network)).
		Str("wallet", e.cfg.Wallet.Name).
		Int("addresses", len(entries)).
		Str("indexer", e.cfg.Indexer.RPCURL).
		Msg("wallet engine started")
	return nil
}

// Stop shuts down sync and closes the database.
func (e *Engine) Stop() {
	e.coord.Stop()
	if err := e.db.Close(); err != nil {
		log.Error().Err(err).Msg("close ledger db")
	}
	log.Info().Msg("wallet engine stopped")
}

// Manager exposes the record manager (balances, selection).
func (e *Engine) Manager() *manager.Manager { return e.manager }

// Coordinator exposes the sync coordinator (watch, state, resync).
func (e *Engine) Coordinator() *syncer.Coordinator { return e.coord }

// Keystore exposes the wallet keystore.
func (e *Engine) Keystore() *wallet.Keystore { return e.keystore }

// Client exposes the indexer client.
func (e *Engine) Client() *indexer.Client { return e.client }
