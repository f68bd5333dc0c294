/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package app wires the netsync service together.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/carverauto/netsync/pkg/api"
	"github.com/carverauto/netsync/pkg/commit"
	"github.com/carverauto/netsync/pkg/config"
	"github.com/carverauto/netsync/pkg/events"
	"github.com/carverauto/netsync/pkg/jobs"
	"github.com/carverauto/netsync/pkg/lifecycle"
	"github.com/carverauto/netsync/pkg/logger"
	"github.com/carverauto/netsync/pkg/models"
	"github.com/carverauto/netsync/pkg/neighbors"
	"github.com/carverauto/netsync/pkg/notify"
	"github.com/carverauto/netsync/pkg/provision"
	"github.com/carverauto/netsync/pkg/render"
	"github.com/carverauto/netsync/pkg/settings"
	"github.com/carverauto/netsync/pkg/store"
	"github.com/carverauto/netsync/pkg/store/postgres"
	"github.com/carverauto/netsync/pkg/store/sqlite"
	netsync "github.com/carverauto/netsync/pkg/sync"
	"github.com/carverauto/netsync/pkg/topology"
	"github.com/carverauto/netsync/pkg/transport"
	"github.com/carverauto/netsync/pkg/transport/sshcli"
)

const stopTimeout = 30 * time.Second

var errUnknownStoreDriver = errors.New("unknown store driver")

// Options contains runtime configuration derived from CLI flags.
type Options struct {
	ConfigPath string
}

// Run boots the service and blocks until SIGINT or SIGTERM.
func Run(ctx context.Context, opts Options) error {
	// A missing .env is normal outside development.
	_ = godotenv.Load()

	bootLog, err := lifecycle.CreateLogger(nil)
	if err != nil {
		return err
	}

	var cfg models.Config
	if err := config.NewConfig(bootLog).LoadAndValidate(ctx, opts.ConfigPath, &cfg); err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log, err := lifecycle.CreateComponentLogger("netsync", cfg.Logging)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx, &cfg.Store, log)
	if err != nil {
		return err
	}
	defer closeLogged(log, "store", st.Close)

	evStore, notifier, closeNATS, err := openMessaging(ctx, cfg.NATS, log)
	if err != nil {
		return err
	}
	defer closeNATS()

	sp, err := settings.NewFileProvider(cfg.SettingsFile, log)
	if err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}

	renderer, err := render.NewTemplateRenderer(cfg.TemplatesDir, log)
	if err != nil {
		return fmt.Errorf("failed to load templates: %w", err)
	}

	lldp, err := neighbors.NewSNMPSource(cfg.SNMP, log)
	if err != nil {
		return err
	}

	transports, err := newTransports(&cfg.SSH, log)
	if err != nil {
		return err
	}

	resolver, err := topology.NewResolver(st, sp, notifier, cfg.InfraLinknet, log)
	if err != nil {
		return err
	}

	mode, err := commit.ParseMode(cfg.CommitConfirmedMode)
	if err != nil {
		return err
	}

	coord := jobs.New(st, log,
		jobs.WithWorkers(cfg.Workers),
		jobs.WithQueueSize(cfg.QueueSize),
		jobs.WithLockRetry(cfg.LockRetryAttempts, time.Duration(cfg.LockRetryInterval)),
		jobs.WithEventStore(evStore),
	)

	syncer, err := netsync.New(netsync.Deps{
		Store:       st,
		Settings:    sp,
		Renderer:    renderer,
		Transport:   transports,
		Events:      evStore,
		Coordinator: coord,
		Neighbors:   lldp,
		Resolver:    resolver,
	}, netsync.Options{
		CommitMode:       mode,
		RevertIn:         time.Duration(cfg.CommitConfirmedTimeout),
		AutoPushMaxScore: cfg.AutoPushMaxScore,
		PushConcurrency:  cfg.PushConcurrency,
	}, log)
	if err != nil {
		return err
	}

	if err := netsync.RegisterTasks(coord, syncer); err != nil {
		return err
	}

	if err := coord.Start(ctx); err != nil {
		return err
	}

	defer func() {
		stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), stopTimeout)
		defer cancel()

		if err := coord.Stop(stopCtx); err != nil {
			log.Warn().Err(err).Msg("job coordinator did not stop cleanly")
		}
	}()

	go reloadOnHUP(ctx, sp, log)

	server := api.NewServer(coord, log,
		api.WithLinknetUpdater(syncer),
		api.WithInitChecker(provision.NewChecker(st, lldp, resolver, notifier, log)),
		api.WithProgressReader(evStore),
		api.WithAPIKey(cfg.APIKey),
	)

	log.Info().
		Str("listen_addr", cfg.ListenAddr).
		Str("store", cfg.Store.Driver).
		Stringer("commit_mode", mode).
		Msg("netsync started")

	return server.Serve(ctx, cfg.ListenAddr)
}

func openStore(ctx context.Context, cfg *models.StoreConfig, log logger.Logger) (store.Store, error) {
	switch cfg.Driver {
	case models.StoreDriverMemory:
		log.Warn().Msg("using the in-memory store, state is lost on restart")

		return store.NewMemoryStore(), nil
	case models.StoreDriverPostgres:
		return postgres.Open(ctx, cfg.Postgres, log)
	case models.StoreDriverSQLite:
		return sqlite.Open(cfg.SQLitePath, log)
	default:
		return nil, fmt.Errorf("%w: %q", errUnknownStoreDriver, cfg.Driver)
	}
}

// openMessaging returns the event store and notifier. Without NATS both live in memory.
func openMessaging(ctx context.Context, cfg *models.NATSConfig, log logger.Logger) (events.Store, *notify.Registry, func(), error) {
	reg := notify.NewRegistry(log)

	if cfg == nil {
		return events.NewMemoryStore(), reg, func() {}, nil
	}

	es, err := events.NewNatsStore(ctx, cfg, log)
	if err != nil {
		return nil, nil, nil, err
	}

	nn, err := notify.ConnectNatsNotifier(ctx, cfg, log)
	if err != nil {
		closeLogged(log, "event store", es.Close)

		return nil, nil, nil, err
	}

	reg.Register(nn)

	return es, reg, func() {
		closeLogged(log, "notifier", nn.Close)
		closeLogged(log, "event store", es.Close)
	}, nil
}

func newTransports(cfg *models.SSHConfig, log logger.Logger) (*transport.Registry, error) {
	reg := transport.NewRegistry()

	for _, platform := range sshcli.Platforms(cfg) {
		d, err := sshcli.New(cfg, platform, log)
		if err != nil {
			return nil, fmt.Errorf("transport %s: %w", platform, err)
		}

		reg.Register(platform, d)
	}

	return reg, nil
}

func reloadOnHUP(ctx context.Context, sp *settings.FileProvider, log logger.Logger) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)

	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			if err := sp.Reload(); err != nil {
				log.Error().Err(err).Msg("settings reload failed, keeping previous settings")
				continue
			}

			log.Info().Msg("settings reloaded")
		}
	}
}

func closeLogged(log logger.Logger, what string, fn func() error) {
	if err := fn(); err != nil {
		log.Warn().Err(err).Str("resource", what).Msg("close failed")
	}
}
