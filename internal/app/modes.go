package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/minimarket/internal/domain"
	"github.com/alanyoungcy/minimarket/internal/oracle"
	"github.com/alanyoungcy/minimarket/internal/program"
	"github.com/alanyoungcy/minimarket/internal/server"
	"github.com/alanyoungcy/minimarket/internal/server/handler"
	"github.com/alanyoungcy/minimarket/internal/server/ws"
	"github.com/alanyoungcy/minimarket/internal/service"
	"github.com/alanyoungcy/minimarket/internal/vm"
)

// services are the read-side components every serving mode shares.
type services struct {
	markets  *service.MarketService
	events   *service.EventLog
	mirror   *service.Mirror
	metadata *service.MetadataService
	hub      *ws.Hub
}

func (a *App) buildServices(deps *Dependencies) *services {
	s := &services{
		markets: service.NewMarketService(deps.ProgramID, deps.Accounts, deps.Mirror, deps.MarketCache, a.logger),
		events:  service.NewEventLog(deps.Events, deps.SignalBus, a.logger),
		hub:     ws.NewHub(deps.SignalBus, a.cfg.Mode, a.logger),
	}
	s.mirror = service.NewMirror(deps.ProgramID, deps.Accounts, deps.Mirror, deps.MarketCache,
		deps.SignalBus, a.cfg.Mirror.Interval.Duration, a.logger)
	if deps.BlobWriter != nil {
		s.metadata = service.NewMetadataService(s.markets, deps.BlobWriter, deps.BlobReader, a.logger)
	}
	return s
}

// NodeMode runs the executor behind the full API.
func (a *App) NodeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting node mode")
	g, ctx := errgroup.WithContext(ctx)
	a.startNode(ctx, g, deps)
	return g.Wait()
}

// MirrorMode follows state written by other nodes and serves it read-only.
func (a *App) MirrorMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting mirror mode")
	g, ctx := errgroup.WithContext(ctx)

	svc := a.buildServices(deps)
	g.Go(func() error { return svc.mirror.Run(ctx) })

	if a.cfg.Server.Enabled {
		h := server.Handlers{
			Health:   handler.NewHealthHandler(a.cfg.Mode, deps.ProgramID.Hex(), deps.HealthChecks, a.logger),
			Accounts: handler.NewAccountHandler(svc.markets, a.logger),
			Markets:  handler.NewMarketHandler(svc.markets, a.logger),
			Events:   handler.NewEventHandler(svc.events, a.logger),
		}
		if svc.metadata != nil {
			h.Metadata = handler.NewMetadataHandler(svc.metadata, a.logger)
		}
		a.startHTTPServer(ctx, g, deps, h, svc.hub)
	}
	return g.Wait()
}

// ArchiveMode only moves old events to object storage.
func (a *App) ArchiveMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting archive mode")
	if deps.Archiver == nil {
		return fmt.Errorf("archive mode: s3 is not configured")
	}
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.runArchiver(ctx, deps.Archiver, a.cfg.Archive.Interval.Duration, a.cfg.Archive.Retention.Duration)
	})
	return g.Wait()
}

// FullMode runs the node plus archival when enabled.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")
	g, ctx := errgroup.WithContext(ctx)
	a.startNode(ctx, g, deps)
	if a.cfg.Archive.Enabled && deps.Archiver != nil {
		g.Go(func() error {
			return a.runArchiver(ctx, deps.Archiver, a.cfg.Archive.Interval.Duration, a.cfg.Archive.Retention.Duration)
		})
	}
	return g.Wait()
}

// startNode builds the executor and its event sinks and starts the API.
// With a SignalBus the hub and mirror follow the bus; without one they are
// fed in-process so events are never delivered twice.
func (a *App) startNode(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	svc := a.buildServices(deps)

	sinks := []vm.EventSink{svc.events}
	if deps.SignalBus == nil {
		sinks = append(sinks, svc.hub)
		if a.cfg.Mirror.Enabled {
			sinks = append(sinks, svc.mirror)
		}
	}
	if svc.metadata != nil {
		sinks = append(sinks, svc.metadata)
	}
	if deps.Notifier != nil {
		sinks = append(sinks, deps.Notifier)
		g.Go(func() error { return deps.Notifier.Run(ctx) })
	}

	opts := []vm.Option{vm.WithLogger(a.logger)}
	if deps.LockManager != nil {
		opts = append(opts, vm.WithLockManager(deps.LockManager))
	}
	for _, s := range sinks {
		opts = append(opts, vm.WithEventSink(s))
	}
	gate := oracle.NewGate(a.cfg.Program.MaxConfidence)
	exec := vm.NewExecutor(deps.Accounts, vm.Config{
		MaxTxLifetime: a.cfg.Program.MaxTxLifetime.Duration,
		LockTTL:       a.cfg.Program.LockTTL.Duration,
		LockWait:      a.cfg.Program.LockWait.Duration,
		FaucetEnabled: a.cfg.Program.FaucetEnabled,
	}, []vm.Program{program.New(deps.ProgramID, deps.Feeds, gate)}, opts...)

	if a.cfg.Program.PruneInterval.Duration > 0 {
		g.Go(func() error { return exec.RunPruner(ctx, a.cfg.Program.PruneInterval.Duration) })
	}
	if a.cfg.Mirror.Enabled {
		g.Go(func() error { return svc.mirror.Run(ctx) })
	}

	if !a.cfg.Server.Enabled {
		return
	}
	txs := service.NewTxService(exec, deps.RateLimiter, service.TxLimit{
		Limit:  a.cfg.Server.TxRateLimit,
		Window: a.cfg.Server.TxRateWindow.Duration,
	}, a.logger)
	h := server.Handlers{
		Health:   handler.NewHealthHandler(a.cfg.Mode, deps.ProgramID.Hex(), deps.HealthChecks, a.logger),
		Tx:       handler.NewTxHandler(txs, a.logger),
		Accounts: handler.NewAccountHandler(svc.markets, a.logger),
		Markets:  handler.NewMarketHandler(svc.markets, a.logger),
		Events:   handler.NewEventHandler(svc.events, a.logger),
		Admin:    handler.NewAdminHandler(txs, oracle.NewPublisher(deps.Feeds, a.logger), a.logger),
	}
	if svc.metadata != nil {
		h.Metadata = handler.NewMetadataHandler(svc.metadata, a.logger)
	}
	a.startHTTPServer(ctx, g, deps, h, svc.hub)
}

// startHTTPServer runs the API server and the WebSocket hub in g and shuts
// the server down when ctx is cancelled.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, h server.Handlers, hub *ws.Hub) {
	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		RateLimit:   a.cfg.Server.RateLimit,
		RateWindow:  a.cfg.Server.RateWindow.Duration,
	}, h, hub, deps.RateLimiter, a.logger)

	if hub != nil {
		g.Go(func() error { return hub.Run(ctx) })
	}
	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}

// runArchiver archives events older than retention once at start and then
// every interval.
func (a *App) runArchiver(ctx context.Context, archiver domain.Archiver, interval, retention time.Duration) error {
	logger := a.logger.With(slog.String("job", "archive"))
	run := func() {
		n, err := archiver.ArchiveEvents(ctx, time.Now().UTC().Add(-retention))
		if err != nil {
			logger.WarnContext(ctx, "archive: run failed", slog.String("error", err.Error()))
			return
		}
		logger.InfoContext(ctx, "archive: run complete", slog.Int64("archived", n))
	}

	run()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			run()
		}
	}
}
