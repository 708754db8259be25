package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	s3blob "github.com/alanyoungcy/lotterykeeper/internal/blob/s3"
	"github.com/alanyoungcy/lotterykeeper/internal/crypto"
	"github.com/alanyoungcy/lotterykeeper/internal/domain"
	"github.com/alanyoungcy/lotterykeeper/internal/lottery"
	"github.com/alanyoungcy/lotterykeeper/internal/server"
	"github.com/alanyoungcy/lotterykeeper/internal/server/handler"
	"github.com/alanyoungcy/lotterykeeper/internal/server/middleware"
	"github.com/alanyoungcy/lotterykeeper/internal/server/ws"
	"github.com/alanyoungcy/lotterykeeper/internal/service"
	"github.com/alanyoungcy/lotterykeeper/internal/vrf"
)

// StandaloneMode runs the lottery in-process: memory ledger and history, the
// mock coordinator, and the HTTP API.
func (a *App) StandaloneMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting standalone mode")

	svc, err := a.buildLottery(ctx, deps)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return svc.Run(ctx) })
	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps, svc, nil)
	}
	return g.Wait()
}

// FullMode adds postgres history, the redis event bus and snapshot, the
// websocket relay and, when enabled, the S3 archive job.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	svc, err := a.buildLottery(ctx, deps)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return svc.Run(ctx) })

	if deps.Archiver != nil && a.cfg.Archive.Enabled {
		job := service.NewArchiveJob(
			deps.Archiver,
			deps.Locks,
			a.cfg.Archive.Every.Duration,
			time.Duration(a.cfg.Archive.RetentionDays)*24*time.Hour,
			a.cfg.Archive.LockTTL.Duration,
			a.logger,
		)
		g.Go(func() error { return job.Run(ctx) })
	}

	if a.cfg.Server.Enabled {
		hub := ws.NewHub(deps.Bus, a.logger, ws.Config{
			Channels:  []string{service.EventsChannel},
			Mode:      a.cfg.Mode,
			Status:    func(ctx context.Context) any { return svc.View(ctx) },
			StartedAt: time.Now().UTC(),
		})
		g.Go(func() error { return hub.Run(ctx) })
		a.startHTTPServer(ctx, g, deps, svc, hub)
	}
	return g.Wait()
}

// buildLottery assembles the coordinator, the round aggregate and its service,
// and restores the saved snapshot when configured.
func (a *App) buildLottery(ctx context.Context, deps *Dependencies) (*service.LotteryService, error) {
	fee, err := domain.ParseEther(a.cfg.Lottery.EntranceFee)
	if err != nil {
		return nil, fmt.Errorf("app: entrance fee: %w", err)
	}

	var (
		coordinator vrf.Coordinator
		mock        *vrf.MockCoordinator
	)
	switch strings.ToLower(a.cfg.VRF.Coordinator) {
	case "stream":
		if deps.Bus == nil || deps.Sequence == nil {
			return nil, errors.New("app: stream coordinator needs redis")
		}
		coordinator = vrf.NewStreamCoordinator(deps.Bus, deps.Sequence,
			common.HexToAddress(a.cfg.VRF.CoordinatorAddress))
	default:
		signer, err := a.mockSigner(ctx)
		if err != nil {
			return nil, err
		}
		mock = vrf.NewMockCoordinator(signer, a.logger)
		coordinator = mock
	}

	svc := service.NewLotteryService(service.Deps{
		Ledger:   deps.Ledger,
		House:    deps.House,
		Rounds:   deps.Rounds,
		Audit:    deps.Audit,
		State:    deps.State,
		Bus:      deps.Bus,
		Notifier: deps.Notifier,
		Mock:     mock,
	}, a.logger)

	l, err := lottery.New(lottery.Params{
		EntranceFee:          fee,
		Interval:             a.cfg.Lottery.Interval.Duration,
		KeyHash:              common.HexToHash(a.cfg.VRF.KeyHash),
		SubscriptionID:       a.cfg.VRF.SubscriptionID,
		RequestConfirmations: uint16(a.cfg.VRF.RequestConfirmations),
		CallbackGasLimit:     uint32(a.cfg.VRF.CallbackGasLimit),
		NumWords:             uint32(a.cfg.VRF.NumWords),
	}, coordinator, deps.Ledger, lottery.WithEventSink(svc), lottery.WithCollector(svc.Collect))
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}
	if mock != nil {
		mock.SetConsumer(l)
	}
	svc.Attach(l)

	if a.cfg.Lottery.RestoreState {
		if err := svc.Restore(ctx); err != nil {
			return nil, fmt.Errorf("app: %w", err)
		}
	}

	a.logger.InfoContext(ctx, "lottery ready",
		slog.String("entrance_fee", domain.FormatEther(fee)),
		slog.Duration("interval", a.cfg.Lottery.Interval.Duration),
		slog.String("coordinator", coordinator.Address().Hex()),
		slog.String("house", deps.House.Hex()),
	)
	return svc, nil
}

// mockSigner loads the configured mock coordinator key, or generates a
// throwaway one when none is set.
func (a *App) mockSigner(ctx context.Context) (*crypto.Signer, error) {
	src := crypto.KeySource{
		RawPrivateKey:    a.cfg.VRF.PrivateKey,
		EncryptedKeyPath: a.cfg.VRF.EncryptedKeyPath,
		KeyPassword:      a.cfg.VRF.KeyPassword,
	}
	if src.Empty() {
		signer, err := crypto.GenerateSigner()
		if err != nil {
			return nil, fmt.Errorf("app: generate mock coordinator key: %w", err)
		}
		a.logger.WarnContext(ctx, "no coordinator key configured, using an ephemeral key",
			slog.String("address", signer.Address().Hex()),
		)
		return signer, nil
	}
	signer, err := crypto.LoadSigner(src)
	if err != nil {
		return nil, fmt.Errorf("app: load coordinator key: %w", err)
	}
	return signer, nil
}

// startHTTPServer registers the API server and its shutdown on g. Setup
// errors are reported through g so the rest of the group stops too.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, svc *service.LotteryService, hub *ws.Hub) {
	trusted, err := middleware.ParseTrustedProxies(a.cfg.Server.TrustedProxies)
	if err != nil {
		g.Go(func() error { return fmt.Errorf("app: %w", err) })
		return
	}

	handlers := server.Handlers{
		Health:    handler.NewHealthHandler(a.logger, deps.Checks...),
		Lottery:   handler.NewLotteryHandler(svc, a.logger),
		Rounds:    handler.NewRoundHandler(svc, a.logger),
		DevRoutes: strings.EqualFold(a.cfg.VRF.Coordinator, "mock"),
	}
	if deps.BlobReader != nil {
		handlers.Archives = handler.NewArchiveHandler(deps.BlobReader, s3blob.ArchivePrefix, a.logger)
	}

	srv := server.NewServer(server.Config{
		Port:            a.cfg.Server.Port,
		CORSOrigins:     a.cfg.Server.CORSOrigins,
		APIKey:          a.cfg.Server.APIKey,
		EnterRateLimit:  a.cfg.Server.EnterRateLimit,
		EnterRateWindow: a.cfg.Server.EnterRateWindow.Duration,
		TrustedProxies:  trusted,
	}, handlers, hub, deps.RateLimiter, a.logger)

	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}
