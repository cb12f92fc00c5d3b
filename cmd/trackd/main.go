// Package main is the CLI entry point for trackd.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/trackzen/trackd/internal/config"
	"github.com/trackzen/trackd/internal/daemon"
	"github.com/trackzen/trackd/internal/infra"
	"github.com/trackzen/trackd/internal/usecase"
)

var (
	// Version info (set via ldflags)
	Version   = "0.1.0"
	Commit    = "dev"
	BuildTime = "unknown"
)

var configPath string

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "trackd",
	Short: "Browsing activity tracking engine",
	Long: `trackd is the native background engine for the TrackZen browser
extension. The extension forwards raw host events (tab focus, navigation,
idle state, the enable/disable command) over native messaging; trackd owns
the session lifecycle, buffers unsent telemetry in an encrypted local store,
and reconciles it against the collector until delivery succeeds.`,
	Version: Version,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the tracking engine",
	Long: `Runs the engine in the foreground, reading host events as native
messaging frames on stdin. This is the command the browser launches; it is
not meant for interactive use.`,
	RunE: runRun,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check engine status",
	Long:  `Shows whether the engine is running and what is waiting to be synced.`,
	RunE:  runStatus,
}

var enableCmd = &cobra.Command{
	Use:   "enable",
	Short: "Enable tracking",
	Long: `Persists the tracking flag. Takes effect the next time the engine
starts; while the engine is running, toggle tracking from the extension
popup instead.`,
	RunE: func(cmd *cobra.Command, args []string) error { return setTracking(true) },
}

var disableCmd = &cobra.Command{
	Use:   "disable",
	Short: "Disable tracking",
	RunE:  func(cmd *cobra.Command, args []string) error { return setTracking(false) },
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("trackd %s (commit: %s, built: %s)\n", Version, Commit, BuildTime)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultPath(), "Config file path")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(enableCmd)
	rootCmd.AddCommand(disableCmd)
	rootCmd.AddCommand(versionCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	// stdout belongs to the native messaging channel; logs go to a file
	// in the data directory, errors to stderr.
	logger := createLogger(cfg)
	defer func() { _ = logger.Sync() }()

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	client := infra.NewCollectorClient(cfg.CollectorURL, cfg.AuthToken, cfg.RequestTimeout)
	dispatcher := usecase.NewDispatcher(store, client, logger)
	mgr := usecase.NewManager(store, client, dispatcher, logger)
	tracker := usecase.NewTabTracker(mgr, logger)
	idle := usecase.NewIdleMonitor(mgr, logger)
	syncer := usecase.NewSyncer(store, client, logger)
	source := infra.NewStdioEventSource(os.Stdin, os.Stdout)

	runFile := infra.NewRunFile(cfg.DataDir)
	if err := runFile.Write(infra.RunState{
		PID:       os.Getpid(),
		StartedAt: time.Now().Unix(),
		Version:   Version,
	}); err != nil {
		logger.Warn("failed to write run file", zap.Error(err))
	}
	defer func() { _ = runFile.Clear() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("received shutdown signal")
		cancel()
	}()

	runner := daemon.NewRunner(
		daemon.Config{SyncInterval: cfg.SyncInterval},
		source, mgr, tracker, idle, syncer, logger,
	)

	err = runner.Run(ctx)
	if err == context.Canceled {
		return nil
	}
	return err
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	fmt.Println("\n=== trackd Status ===")

	runFile := infra.NewRunFile(cfg.DataDir)
	state, err := runFile.Read()
	pm := infra.NewProcessManager()

	if err != nil || state == nil || !pm.IsRunning(state.PID) {
		fmt.Println("Engine: NOT RUNNING")
	} else {
		fmt.Printf("Engine: RUNNING (pid %d, since %s)\n",
			state.PID, time.Unix(state.StartedAt, 0).Format(time.RFC3339))
	}

	// Pending cache summary, best-effort.
	store, err := openStore(cfg)
	if err != nil {
		fmt.Printf("State store: unavailable (%v)\n", err)
		fmt.Println("=====================")
		return nil
	}
	defer store.Close()

	ctx := context.Background()
	enabled, _ := store.TrackingEnabled(ctx)
	fmt.Printf("Tracking enabled: %v\n", enabled)

	if snap, err := store.PendingSession(ctx); err == nil && snap != nil {
		fmt.Printf("Pending session: yes (started %s)\n",
			snap.StartTime.Format(time.RFC3339))
	} else {
		fmt.Println("Pending session: none")
	}

	if activities, err := store.PendingActivities(ctx); err == nil {
		fmt.Printf("Pending activities: %d\n", len(activities))
	}

	fmt.Println("=====================")
	return nil
}

func setTracking(enabled bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.SetTrackingEnabled(context.Background(), enabled); err != nil {
		return fmt.Errorf("failed to persist tracking flag: %w", err)
	}

	if enabled {
		fmt.Println("Tracking enabled.")
	} else {
		fmt.Println("Tracking disabled.")
	}
	fmt.Println("Takes effect on the next engine start; use the extension popup while it is running.")
	return nil
}

func openStore(cfg config.Config) (*infra.EncryptedStore, error) {
	keyProvider := infra.NewFileKeyProvider(cfg.DataDir)
	key, err := infra.EnsureKey(keyProvider)
	if err != nil {
		return nil, fmt.Errorf("failed to load store key: %w", err)
	}
	return infra.NewEncryptedStore(cfg.DataDir, key)
}

func createLogger(cfg config.Config) *zap.Logger {
	level := zapcore.InfoLevel
	if err := level.Set(cfg.LogLevel); err != nil {
		level = zapcore.InfoLevel
	}

	_ = os.MkdirAll(cfg.DataDir, 0700)

	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(level)
	zcfg.OutputPaths = []string{filepath.Join(cfg.DataDir, "trackd.log")}
	zcfg.ErrorOutputPaths = []string{"stderr"}
	zcfg.EncoderConfig.TimeKey = "time"
	zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := zcfg.Build()
	if err != nil {
		// Fallback to stderr if file logging fails. Never stdout - that is
		// the native messaging channel.
		logger, _ = zap.NewProduction()
	}
	return logger
}
