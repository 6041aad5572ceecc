package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/himanishpuri/AcousticSync/internal/config"
	"github.com/himanishpuri/AcousticSync/pkg/logger"
	"github.com/himanishpuri/AcousticSync/pkg/syncsession/storage"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newServerCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "server: %v\n", err)
		os.Exit(1)
	}
}

func newServerCommand() *cobra.Command {
	cfg := config.DefaultConfig()
	var configPath string
	var allowedOrigins string
	var allowDelete bool
	var logRequests bool

	cmd := &cobra.Command{
		Use:           "acousticsync-server",
		Short:         "Serve archived sync sessions as JSON",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			changed := map[string]bool{}
			cmd.Flags().Visit(func(f *pflag.Flag) {
				changed[f.Name] = true
			})
			path := strings.TrimSpace(configPath)
			if err := config.Resolve(&cfg, path, path != "", changed); err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			level, err := logger.ParseLevel(cfg.LogLevel)
			if err != nil {
				return err
			}
			lc := logger.DefaultConfig()
			lc.Level = level
			lc.JSON = cfg.LogJSON
			log := logger.New(lc).With("server")

			db, err := storage.NewDBClientWithPath(cfg.DBPath)
			if err != nil {
				return fmt.Errorf("open session archive: %w", err)
			}
			defer db.Close()

			server := NewServer(db, &ServerConfig{
				Addr:           cfg.ServerAddr,
				DBPath:         cfg.DBPath,
				AllowedOrigins: parseOrigins(allowedOrigins),
				AllowDelete:    allowDelete,
				LogRequests:    logRequests,
			}, log)
			return server.Start(cmd.Context())
		},
	}

	f := cmd.Flags()
	f.StringVarP(&configPath, "config", "c", "", "Configuration file path (default ~/.acousticsync/config.toml)")
	f.StringVar(&cfg.ServerAddr, "addr", cfg.ServerAddr, "HTTP listen address")
	f.StringVar(&cfg.DBPath, "db", cfg.DBPath, "Path to the SQLite session archive (env: SYNC_DB_PATH)")
	f.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level (env: LOG_LEVEL)")
	f.BoolVar(&cfg.LogJSON, "log-json", cfg.LogJSON, "Write logs as JSON lines")
	f.StringVar(&allowedOrigins, "origins", "*", "Comma-separated list of allowed CORS origins (use * for all)")
	f.BoolVar(&allowDelete, "allow-delete", false, "Enable DELETE /api/sessions/{id}")
	f.BoolVar(&logRequests, "log-requests", false, "Log every request")
	return cmd
}

func parseOrigins(v string) []string {
	if strings.TrimSpace(v) == "*" {
		return []string{"*"}
	}
	var origins []string
	for _, o := range strings.Split(v, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}
