package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/good-yellow-bee/repowatch/internal/alerting"
	"github.com/good-yellow-bee/repowatch/internal/api"
	"github.com/good-yellow-bee/repowatch/internal/eventstore"
	"github.com/good-yellow-bee/repowatch/internal/metrics"
	"github.com/good-yellow-bee/repowatch/internal/notifier"
	"github.com/good-yellow-bee/repowatch/internal/poller"
	"github.com/good-yellow-bee/repowatch/internal/repohost"
	"github.com/good-yellow-bee/repowatch/internal/storage"
	"github.com/good-yellow-bee/repowatch/internal/tracker"
	"github.com/good-yellow-bee/repowatch/pkg/config"
)

var (
	configFile string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "repowatch",
	Short: "repowatch - repository oversight daemon",
	Long: `repowatch polls monitored repositories for build failures, eligible
dependency updates, and release readiness, and announces each newly
detected condition exactly once per silence period.`,
	RunE: runDaemon,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(config.Current())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "repowatch.yaml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg, err := LoadConfig(configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg.Verbose = verbose

	// Auto-create data directory
	dbDir := filepath.Dir(cfg.Database.Path)
	if err := os.MkdirAll(dbDir, 0750); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}

	// Initialize storage
	store := storage.NewSQLiteStorage(cfg.Database.Path)
	if err := store.Open(); err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer store.Close()

	if err := store.Migrate(); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}
	log.Printf("database initialized at %s", cfg.Database.Path)

	// Notification sinks
	dispatcher := notifier.NewDispatcherWithRateLimit(notifier.RateLimitConfig{
		MaxPerWindow: cfg.Notify.RateLimit.MaxPerWindow,
		Window:       cfg.Notify.RateLimit.Window,
		Enabled:      !cfg.Notify.RateLimit.Disabled,
	})
	defer dispatcher.Close()

	for _, wh := range cfg.Notify.Webhooks {
		sink, err := notifier.NewWebhookNotifier(notifier.WebhookConfig{
			Name:    wh.Name,
			URL:     wh.URL,
			Timeout: wh.Timeout,
		})
		if err != nil {
			return fmt.Errorf("webhook sink %q: %w", wh.Name, err)
		}
		dispatcher.Register(sink)
	}
	if len(cfg.Notify.Webhooks) == 0 {
		dispatcher.Register(notifier.NewLogNotifier())
		log.Printf("no webhook sinks configured, notifications go to the process log")
	}

	// Core components
	events := eventstore.New(store.Events(), cfg.Database.MaxEvents)

	gateCfg, err := cfg.GateConfig()
	if err != nil {
		return fmt.Errorf("alerting config: %w", err)
	}
	gate := alerting.NewGate(gateCfg, store.AlertRecords(), dispatcher)

	trk := tracker.New(store.TargetStates())

	host, err := repohost.NewHTTPClient(repohost.HTTPClientConfig{
		BaseURL: cfg.RepoHost.BaseURL,
		Token:   cfg.RepoHost.Token,
		Timeout: cfg.RepoHost.Timeout,
	})
	if err != nil {
		return fmt.Errorf("repohost client: %w", err)
	}

	orch := poller.New(poller.Config{
		Interval:      cfg.Poll.Interval,
		TargetTimeout: cfg.Poll.TargetTimeout,
		MaxConcurrent: cfg.Poll.MaxConcurrent,
		Targets:       cfg.Targets,
		UpdatePolicy:  cfg.UpdatePolicy(),
	}, host, trk, events, gate, dispatcher)

	// Servers
	apiServer := api.NewServer(cfg.Server.APIAddress,
		api.NewHandler(events, store.AlertRecords(), trk, orch, gate, dispatcher, store.DB()))
	metricsServer := metrics.NewServer(cfg.Server.MetricsAddress)

	// Signal handling
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		log.Printf("received signal %v, shutting down...", sig)
		cancel()
	}()

	go func() {
		if err := apiServer.Start(); err != nil {
			log.Printf("api server error: %v", err)
			cancel()
		}
	}()
	go func() {
		if err := metricsServer.Start(); err != nil {
			log.Printf("metrics server error: %v", err)
		}
	}()

	// Config hot-reload for the alerting section and target list.
	watcherDone := watchConfig(ctx, configFile, gate, orch)

	log.Printf("starting repowatch %s", config.Version)
	log.Printf("monitoring %d targets every %s", len(cfg.Targets), cfg.Poll.Interval)

	if err := orch.Run(ctx); err != nil && err != context.Canceled {
		return fmt.Errorf("run poller: %w", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("api server shutdown: %v", err)
	}
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("metrics server shutdown: %v", err)
	}
	<-watcherDone

	log.Printf("repowatch stopped")
	return nil
}

// watchConfig reloads the alerting settings and target list when the
// config file changes. Invalid edits are logged and ignored; the
// running configuration stays in effect.
func watchConfig(ctx context.Context, path string, gate *alerting.Gate, orch *poller.Orchestrator) <-chan struct{} {
	done := make(chan struct{})

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.Printf("config watcher unavailable: %v", err)
		close(done)
		return done
	}

	// Watch the directory: editors typically rename-replace the file.
	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		log.Printf("watch %s: %v", dir, err)
		watcher.Close()
		close(done)
		return done
	}

	go func() {
		defer close(done)
		defer watcher.Close()

		base := filepath.Base(path)
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Base(event.Name) != base {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}

				cfg, err := LoadConfig(path)
				if err != nil {
					log.Printf("config reload skipped: %v", err)
					continue
				}
				gateCfg, err := cfg.GateConfig()
				if err != nil {
					log.Printf("config reload skipped: %v", err)
					continue
				}

				gate.Reconfigure(gateCfg)
				orch.SetTargets(cfg.Targets)
				log.Printf("configuration reloaded: threshold=%d window=%dm silence=%dm targets=%d",
					cfg.Alerting.AlertThreshold, cfg.Alerting.WindowMinutes,
					cfg.Alerting.SilenceMinutes, len(cfg.Targets))
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Printf("config watcher error: %v", err)
			}
		}
	}()

	return done
}
