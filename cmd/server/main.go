package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"

	"github.com/iudanet/gophtex/internal/awareness"
	"github.com/iudanet/gophtex/internal/config"
	"github.com/iudanet/gophtex/internal/crypto"
	"github.com/iudanet/gophtex/internal/discovery"
	"github.com/iudanet/gophtex/internal/relay"
	"github.com/iudanet/gophtex/internal/room"
	"github.com/iudanet/gophtex/internal/server"
	"github.com/iudanet/gophtex/internal/server/bus"
	"github.com/iudanet/gophtex/internal/server/handlers"
	"github.com/iudanet/gophtex/internal/server/identity"
	"github.com/iudanet/gophtex/internal/server/seed"
	"github.com/iudanet/gophtex/internal/server/storage"
	"github.com/iudanet/gophtex/internal/server/storage/postgres"
	"github.com/iudanet/gophtex/internal/server/storage/sqlite"
	"github.com/iudanet/gophtex/internal/sharelink"
	"github.com/iudanet/gophtex/internal/transport/websocket"
)

var (
	// Version information set via ldflags during build
	Version   = "dev"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

func main() {
	opts, err := config.LoadServer(os.Args[1:], os.LookupEnv, os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}

	// Show version and exit if requested
	if opts.ShowVersion {
		printVersion()
		os.Exit(0)
	}

	logger, err := opts.Config.Logging.NewLogger(os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}
	slog.SetDefault(logger)

	if err := run(opts.Config, logger); err != nil {
		logger.Error("Server failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Server, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	keys, err := crypto.DeriveServerKeys(cfg.Secret)
	if err != nil {
		return fmt.Errorf("failed to derive server keys: %w", err)
	}

	issuer, err := identity.NewService(identity.Config{Secret: keys.TokenKey, TokenTTL: cfg.TokenTTL})
	if err != nil {
		return err
	}

	signer, err := sharelink.NewSigner(cfg.BaseURL, keys.LinkKey)
	if err != nil {
		return err
	}

	store, err := openStorage(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("Failed to close storage", "error", err)
		}
	}()
	logger.Info("Storage opened", "driver", cfg.Storage.Driver)

	rooms := room.New(logger,
		room.WithGracePeriod(cfg.Rooms.GracePeriod),
		room.WithAwarenessOptions(awareness.WithTimeout(cfg.Rooms.AwarenessTimeout)),
	)

	hubOpts := []relay.Option{relay.WithSeeder(seed.NewSeeder(store, logger))}
	if cfg.NodeID != "" {
		hubOpts = append(hubOpts, relay.WithNodeID(cfg.NodeID))
	}

	var redisBus *bus.Redis
	if cfg.Redis.Addr != "" {
		redisBus, err = bus.NewRedis(ctx, cfg.Redis.Addr, logger)
		if err != nil {
			return err
		}
		defer redisBus.Close()
		hubOpts = append(hubOpts, relay.WithBus(redisBus))
	}

	hub := relay.NewHub(rooms, logger, hubOpts...)

	var wg sync.WaitGroup
	defer func() {
		stop()
		wg.Wait()
	}()

	if redisBus != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := redisBus.Subscribe(ctx, hub.HandleRemote); err != nil {
				logger.Error("Bus subscription stopped", "error", err)
			}
		}()
	}

	return serve(ctx, cfg, logger, hub, issuer, signer, store, &wg)
}

func serve(
	ctx context.Context,
	cfg *config.Server,
	logger *slog.Logger,
	hub *relay.Hub,
	issuer *identity.Service,
	signer *sharelink.Signer,
	store storage.Storage,
	wg *sync.WaitGroup,
) error {
	rooms := hub.Rooms()

	router := server.NewRouter(logger, issuer, server.Handlers{
		Health:   handlers.NewHealthHandler(logger, Version, hub.NodeID(), rooms),
		Identity: handlers.NewIdentityHandler(logger, issuer, store),
		Projects: handlers.NewProjectHandler(logger, store, store, signer),
		Rooms:    handlers.NewRoomHandler(logger, store, websocket.NewServer(hub, logger), rooms),
	}, server.Limits{
		Window:   cfg.RateLimit.Window,
		Identity: cfg.RateLimit.Identity,
		API:      cfg.RateLimit.API,
	})
	defer router.Stop()

	wg.Add(1)
	go func() {
		defer wg.Done()
		hub.RunJanitor(ctx, cfg.Rooms.JanitorInterval)
	}()

	listener, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", cfg.Addr, err)
	}

	if cfg.Discovery.Enabled {
		registration, err := discovery.Register(discovery.Announcement{
			Instance: cfg.Discovery.Instance,
			Version:  Version,
			NodeID:   hub.NodeID(),
			Port:     listenerPort(listener),
		}, logger)
		if err != nil {
			// сервер работает и без объявления в сети
			logger.Warn("mDNS registration failed", "error", err)
		} else {
			defer registration.Shutdown()
		}
	}

	httpServer := &http.Server{
		Handler:           router,
		ReadHeaderTimeout: cfg.ShutdownTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("Server started", "addr", listener.Addr().String(), "node_id", hub.NodeID(), "version", Version)
		if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
		logger.Info("Shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	// Shutdown не ждет WebSocket-соединения: они закрываются отменой ctx
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	logger.Info("Server stopped")
	return nil
}

func openStorage(ctx context.Context, cfg config.Storage) (storage.Storage, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		return postgres.New(ctx, cfg.DSN)
	default:
		return sqlite.New(ctx, cfg.DSN)
	}
}

func listenerPort(l net.Listener) int {
	_, port, err := net.SplitHostPort(l.Addr().String())
	if err != nil {
		return 0
	}
	n, _ := strconv.Atoi(port)
	return n
}

func printVersion() {
	fmt.Printf("gophtex server\n")
	fmt.Printf("Version:    %s\n", Version)
	fmt.Printf("Build Date: %s\n", BuildDate)
	fmt.Printf("Git Commit: %s\n", GitCommit)
}
