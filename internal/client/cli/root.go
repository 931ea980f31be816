package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/iudanet/gophtex/internal/client/api"
	"github.com/iudanet/gophtex/internal/client/iocli"
	"github.com/iudanet/gophtex/internal/client/storage"
	"github.com/iudanet/gophtex/internal/client/storage/boltdb"
	"github.com/iudanet/gophtex/internal/config"
	"github.com/iudanet/gophtex/internal/discovery"
)

// annotationOffline помечает команды, которым не нужен поиск сервера
const annotationOffline = "offline"

// Env окружение запуска клиента
type Env struct {
	IO        iocli.IO
	LookupEnv config.LookupEnv
	LogOutput io.Writer
	// Discover ищет сервер, если адрес не задан; по умолчанию mDNS
	Discover func(ctx context.Context, logger *slog.Logger) (string, error)
	Version  string
}

// RootOptions глобальные флаги клиента
type RootOptions struct {
	ConfigPath string
	ServerURL  string
	DBPath     string
	LogLevel   string
}

type root struct {
	env   Env
	opts  RootOptions
	cli   *Cli
	store *boltdb.Storage
}

// Run выполняет команду клиента с аргументами args
func Run(ctx context.Context, env Env, args []string) error {
	r := &root{env: env}
	defer r.close()

	cmd := r.command()
	cmd.SetArgs(args)
	return cmd.ExecuteContext(ctx)
}

// NewRootCommand создает корневую команду клиента
func NewRootCommand(env Env) *cobra.Command {
	r := &root{env: env}
	cmd := r.command()
	cmd.PersistentPostRunE = func(*cobra.Command, []string) error {
		return r.close()
	}
	return cmd
}

func (r *root) command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gophtex",
		Short: "gophtex - collaborative LaTeX editing client",
		Long: `Client for a gophtex server.

Issue an identity, create or join projects and edit project files together
with other participants in real time. Edits made while offline are kept in
the local database and sent when the connection is restored.`,
		Version:       r.env.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return r.setup(cmd)
		},
	}

	cmd.PersistentFlags().StringVar(&r.opts.ConfigPath, "config", "", "path to YAML config file")
	cmd.PersistentFlags().StringVar(&r.opts.ServerURL, "server", "", "server URL (discovered via mDNS when empty)")
	cmd.PersistentFlags().StringVar(&r.opts.DBPath, "db", "", "path to local database")
	cmd.PersistentFlags().StringVar(&r.opts.LogLevel, "log-level", "", "log level (debug|info|warn|error)")

	cmd.AddCommand(newIdentityCommand(r))
	cmd.AddCommand(newProjectCommand(r))
	cmd.AddCommand(newEditCommand(r))
	cmd.AddCommand(newWatchCommand(r))
	cmd.AddCommand(newSnapshotCommand(r))
	cmd.AddCommand(newStatusCommand(r))

	return cmd
}

// setup собирает настройки и открывает локальное хранилище
func (r *root) setup(cmd *cobra.Command) error {
	ctx := cmd.Context()

	cfg, err := config.LoadClient(r.opts.ConfigPath, r.env.LookupEnv)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if r.opts.ServerURL != "" {
		cfg.ServerURL = r.opts.ServerURL
	}
	if r.opts.DBPath != "" {
		cfg.DBPath = r.opts.DBPath
	}
	if r.opts.LogLevel != "" {
		cfg.Logging.Level = r.opts.LogLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := cfg.Logging.NewLogger(r.env.LogOutput)
	if err != nil {
		return err
	}

	store, err := boltdb.New(ctx, cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	r.store = store

	if cfg.ServerURL == "" {
		cfg.ServerURL, err = r.resolveServer(ctx, cmd, cfg, logger)
		if err != nil {
			return err
		}
	}

	r.cli = New(r.env.IO, api.NewClient(cfg.ServerURL), store, cfg, logger)
	return r.cli.loadIdentity(ctx)
}

// resolveServer выбирает сервер, когда адрес не задан настройками:
// офлайн-командам хватает адреса из сохраненной идентичности.
func (r *root) resolveServer(ctx context.Context, cmd *cobra.Command, cfg *config.Client, logger *slog.Logger) (string, error) {
	if cmd.Annotations[annotationOffline] != "" {
		identity, err := r.store.GetIdentity(ctx)
		if err == nil {
			return identity.ServerURL, nil
		}
		if !errors.Is(err, storage.ErrIdentityNotFound) {
			return "", fmt.Errorf("failed to load identity: %w", err)
		}
	}

	discover := r.env.Discover
	if discover == nil {
		discover = discoverServer
	}

	findCtx, cancel := context.WithTimeout(ctx, cfg.DiscoveryTimeout)
	defer cancel()
	serverURL, err := discover(findCtx, logger)
	if err != nil {
		return "", fmt.Errorf("no server configured and none found on the local network (use --server): %w", err)
	}
	logger.Info("Discovered server", "url", serverURL)
	return serverURL, nil
}

func discoverServer(ctx context.Context, logger *slog.Logger) (string, error) {
	endpoint, err := discovery.Find(ctx, logger)
	if err != nil {
		return "", err
	}
	return endpoint.URL, nil
}

func (r *root) close() error {
	if r.store == nil {
		return nil
	}
	err := r.store.Close()
	r.store = nil
	return err
}
