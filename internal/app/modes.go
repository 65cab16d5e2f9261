package app

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/beliefmarket/beliefd/internal/domain"
	"github.com/beliefmarket/beliefd/internal/ledger"
	"github.com/beliefmarket/beliefd/internal/oracle"
	"github.com/beliefmarket/beliefd/internal/server"
	"github.com/beliefmarket/beliefd/internal/server/handler"
	"github.com/beliefmarket/beliefd/internal/server/ws"
	"github.com/beliefmarket/beliefd/internal/service"
)

// shutdownTimeout bounds how long in-flight requests may run after the
// context is cancelled.
const shutdownTimeout = 10 * time.Second

// auditExportInterval is how often the audit log is exported in modes with
// an archiver.
const auditExportInterval = time.Hour

// ServeMode runs the production stack: Postgres ledger, Redis cache and
// event bus, the configured oracle, and the HTTP API.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting serve mode")
	return a.run(ctx, deps)
}

// SimMode runs everything in-process: in-memory ledger, sealed cipher, and
// the oracle simulator. No external services are needed, which makes it the
// mode for local development and demos.
func (a *App) SimMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting sim mode, state is not persisted")
	return a.run(ctx, deps)
}

// FullMode is serve mode plus periodic archive exports when S3 is enabled.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")
	return a.run(ctx, deps)
}

// run builds the ledger and HTTP server on top of the wired dependencies and
// blocks until the context is cancelled.
func (a *App) run(ctx context.Context, deps *Dependencies) error {
	g, ctx := errgroup.WithContext(ctx)

	// WebSocket hub. With a Redis bus the hub receives events through its
	// subscription; without one the fanout broadcasts locally instead, so
	// events are never delivered twice.
	var hub *ws.Hub
	var broadcaster service.Broadcaster
	if deps.Bus != nil {
		hub = ws.NewHub(deps.Bus, a.cfg.Server.CORSOrigins, a.logger)
	} else {
		hub = ws.NewHub(nil, a.cfg.Server.CORSOrigins, a.logger)
		broadcaster = hub
	}

	fanout := service.NewFanout(deps.Cache, busOrNil(deps), broadcaster, deps.Notifier, archiverOrNil(deps), a.logger)

	rules := ledger.Rules{
		MinVoteStake:      a.cfg.Market.MinVoteStake,
		MinDuration:       a.cfg.Market.MinDuration.Duration,
		MaxDuration:       a.cfg.Market.MaxDuration.Duration,
		CreatorOnlyReveal: a.cfg.Market.CreatorOnlyReveal,
	}

	l, err := ledger.New(
		deps.Store, deps.Cipher, deps.Gateway, rules, a.cfg.Owner, a.logger,
		ledger.WithEventSink(fanout),
	)
	if err != nil {
		return err
	}

	// The simulator delivers callbacks in-process, through the same
	// verification the HTTP endpoint applies to external oracles.
	if deps.Sim != nil {
		verifier := deps.Verifier
		deps.Sim.SetHandler(func(ctx context.Context, cb oracle.Callback) error {
			if err := verifier.Verify(cb); err != nil {
				return err
			}
			return l.HandleRevealCallback(ctx, cb.RequestID, cb.Yes, cb.No)
		})
	}

	reader := service.NewMarketReader(l, deps.Cache, a.logger)

	srv := server.NewServer(
		server.Config{
			Port:           a.cfg.Server.Port,
			CORSOrigins:    a.cfg.Server.CORSOrigins,
			AdminAPIKey:    a.cfg.Server.AdminAPIKey,
			VoteRateLimit:  a.cfg.Server.VoteRateLimit,
			VoteRateWindow: a.cfg.Server.VoteRateWindow.Duration,
		},
		server.Handlers{
			Health:   handler.NewHealthHandler(a.logger),
			Markets:  handler.NewMarketHandler(l, reader, a.logger),
			Votes:    handler.NewVoteHandler(l, a.logger),
			Reveals:  handler.NewRevealHandler(l, deps.Verifier, a.logger),
			Claims:   handler.NewClaimHandler(l, a.logger),
			Platform: handler.NewPlatformHandler(l, a.logger),
		},
		hub, deps.Limiter, a.logger,
	)

	g.Go(func() error {
		return hub.Run(ctx)
	})

	g.Go(func() error {
		return srv.Start()
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if deps.Archiver != nil {
		g.Go(func() error {
			a.runAuditExports(ctx, deps)
			return nil
		})
	}

	err = g.Wait()
	if deps.Sim != nil {
		deps.Sim.Wait()
	}
	return err
}

// runAuditExports periodically snapshots new audit entries to object storage.
// The cursor is process-local; after a restart the next export starts from
// zero and overlaps the previous one, which is harmless because exports are
// additive and keyed by cursor.
func (a *App) runAuditExports(ctx context.Context, deps *Dependencies) {
	ticker := time.NewTicker(auditExportInterval)
	defer ticker.Stop()

	var cursor int64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			count, next, err := deps.Archiver.ArchiveAudit(ctx, cursor)
			if err != nil {
				a.logger.WarnContext(ctx, "audit export failed",
					slog.String("error", err.Error()),
				)
				continue
			}
			cursor = next
			if count > 0 {
				a.logger.InfoContext(ctx, "audit export complete",
					slog.Int64("count", count),
					slog.Int64("cursor", cursor),
				)
			}
		}
	}
}

// busOrNil converts the concrete Redis bus into the domain interface without
// producing a non-nil interface around a nil pointer.
func busOrNil(deps *Dependencies) domain.EventBus {
	if deps.Bus == nil {
		return nil
	}
	return deps.Bus
}

// archiverOrNil does the same for the S3 archiver.
func archiverOrNil(deps *Dependencies) service.MarketArchiver {
	if deps.Archiver == nil {
		return nil
	}
	return deps.Archiver
}
