package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/himanishpuri/AcousticSync/internal/config"
	"github.com/himanishpuri/AcousticSync/pkg/logger"
	"github.com/himanishpuri/AcousticSync/pkg/syncsession"
	"github.com/himanishpuri/AcousticSync/pkg/syncsession/audio"
	"github.com/himanishpuri/AcousticSync/pkg/syncsession/storage"
)

func newRootCommand(ctx *commandContext) *cobra.Command {
	var quiet bool

	rootCmd := &cobra.Command{
		Use:           "acousticsync",
		Short:         "Line up clips from several cameras and recorders on one timeline",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !quiet && isatty.IsTerminal(os.Stderr.Fd()) {
				printBanner()
			}
			return ctx.ensureConfig(cmd)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cfg := &ctx.cfg
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&ctx.configFlag, "config", "c", "", "Configuration file path (default ~/.acousticsync/config.toml)")
	pf.StringVar(&cfg.DBPath, "db", cfg.DBPath, "Path to the SQLite session archive (env: SYNC_DB_PATH)")
	pf.StringVar(&cfg.TempDir, "temp-dir", cfg.TempDir, "Directory for temporary audio conversion files (env: SYNC_TEMP_DIR)")
	pf.StringVar(&cfg.LockDir, "lock-dir", cfg.LockDir, "Directory for per-session lock files")
	pf.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level: debug, info, warn, error (env: LOG_LEVEL)")
	pf.BoolVar(&cfg.LogJSON, "log-json", cfg.LogJSON, "Write logs as JSON lines")
	pf.Float64Var(&cfg.FrameRate, "fps", cfg.FrameRate, "Project frame rate")
	pf.IntVar(&cfg.Workers, "workers", cfg.Workers, "Concurrent audio match workers")
	pf.IntVar(&cfg.SampleRate, "sample-rate", cfg.SampleRate, "Audio analysis sample rate")
	pf.StringVar(&cfg.FFmpeg, "ffmpeg", cfg.FFmpeg, "ffmpeg binary")
	pf.StringVar(&cfg.FFprobe, "ffprobe", cfg.FFprobe, "ffprobe binary")
	pf.BoolVarP(&quiet, "quiet", "q", false, "Hide the banner")

	rootCmd.AddCommand(newRunCommand(ctx))
	rootCmd.AddCommand(newAnchorCommand(ctx))
	rootCmd.AddCommand(newShowCommand(ctx))
	rootCmd.AddCommand(newSessionsCommand(ctx))
	rootCmd.AddCommand(newSpectrogramCommand(ctx))
	rootCmd.AddCommand(newTimecodeCommand(ctx))

	return rootCmd
}

// commandContext carries the resolved configuration and the collaborators
// every command builds on. The provider hooks are replaced in tests.
type commandContext struct {
	configFlag string
	cfg        config.Config
	log        *logger.Logger

	newMetadata func(cfg config.Config) syncsession.MetadataProvider
	newAudio    func(cfg config.Config, log syncsession.Logger) syncsession.AudioProcessor
}

func newCommandContext() *commandContext {
	return &commandContext{
		cfg: config.DefaultConfig(),
		newMetadata: func(cfg config.Config) syncsession.MetadataProvider {
			p := audio.NewFFprobeProvider(cfg.FrameRate)
			p.Binary = cfg.FFprobe
			return p
		},
		newAudio: func(cfg config.Config, log syncsession.Logger) syncsession.AudioProcessor {
			return newProcessor(cfg, log)
		},
	}
}

func newProcessor(cfg config.Config, log syncsession.Logger) *audio.Processor {
	return audio.NewProcessor(audio.ProcessorConfig{
		SampleRate: cfg.SampleRate,
		TempDir:    cfg.TempDir,
		FFmpeg:     cfg.FFmpeg,
	}, log)
}

// ensureConfig layers the config file and environment under the flags that
// were set on the command line.
func (c *commandContext) ensureConfig(cmd *cobra.Command) error {
	changed := map[string]bool{}
	cmd.Flags().Visit(func(f *pflag.Flag) {
		changed[f.Name] = true
	})

	path := strings.TrimSpace(c.configFlag)
	if err := config.Resolve(&c.cfg, path, path != "", changed); err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	level, err := logger.ParseLevel(c.cfg.LogLevel)
	if err != nil {
		return err
	}
	lc := logger.DefaultConfig()
	lc.Level = level
	lc.JSON = c.cfg.LogJSON
	c.log = logger.New(lc)
	return nil
}

func (c *commandContext) openStore() (*storage.DBClient, error) {
	db, err := storage.NewDBClientWithPath(c.cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open session archive: %w", err)
	}
	return db, nil
}

// newSession builds an engine session from the resolved config. extra
// options override the config, e.g. with settings restored from the archive.
func (c *commandContext) newSession(id string, extra ...syncsession.Option) (*syncsession.Session, error) {
	opts := c.cfg.EngineOptions()
	opts = append(opts,
		syncsession.WithSessionID(id),
		syncsession.WithLogger(c.log),
		syncsession.WithProgress(c.progress()),
	)
	opts = append(opts, extra...)
	return syncsession.NewSession(c.newMetadata(c.cfg), c.newAudio(c.cfg, c.log), opts...)
}

// progress draws a single status line when stderr is a terminal and logs at
// debug level otherwise.
func (c *commandContext) progress() syncsession.ProgressFunc {
	if !isatty.IsTerminal(os.Stderr.Fd()) {
		return func(p syncsession.Progress) {
			c.log.Debugf("%5.1f%% %s %s", p.Percent, p.Stage, p.Item)
		}
	}
	return func(p syncsession.Progress) {
		fmt.Fprintf(os.Stderr, "\r\033[K%5.1f%% %-10s %s", p.Percent, p.Stage, p.Item)
		if p.Percent >= 100 {
			fmt.Fprintln(os.Stderr)
		}
	}
}
