package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/tinytelemetry/valuewatch/internal/backup"
	"github.com/tinytelemetry/valuewatch/internal/duckdb"
	"github.com/tinytelemetry/valuewatch/internal/httpserver"
	"github.com/tinytelemetry/valuewatch/internal/model"
	"github.com/tinytelemetry/valuewatch/internal/notify"
	"github.com/tinytelemetry/valuewatch/internal/scheduler"
	"github.com/tinytelemetry/valuewatch/internal/scrape"
	"github.com/tinytelemetry/valuewatch/internal/seed"
	"github.com/tinytelemetry/valuewatch/internal/tracker"
	"github.com/tinytelemetry/valuewatch/internal/tui"
	"golang.org/x/sync/errgroup"
)

// run wires the store, fetcher, scheduler and tracker together and blocks
// in the terminal UI until the user quits or a signal arrives.
func run(cfg appConfig) error {
	cleanupLogger := configureRuntimeLogger()
	defer cleanupLogger()

	store, err := duckdb.NewStore(cfg.DBPath, cfg.QueryTimeout)
	if err != nil {
		return fmt.Errorf("failed to initialize DuckDB: %w", err)
	}
	defer store.Close()

	retentionCleaner := duckdb.NewRetentionCleaner(store, duckdb.RetentionConfig{
		RetentionDays: cfg.HistoryRetention,
	})
	defer retentionCleaner.Stop()

	backupManager, err := backup.NewManager(store, backup.Config{
		Enabled:  cfg.BackupEnabled,
		Interval: cfg.BackupInterval,
		LocalDir: cfg.BackupDir,
		KeepLast: cfg.BackupKeep,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize backups: %w", err)
	}
	defer backupManager.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	items, err := loadItems(ctx, store, cfg.Import)
	if err != nil {
		return err
	}

	fetcher, err := scrape.New(scrape.Config{
		Kind:      cfg.Fetcher,
		Timeout:   cfg.FetchTimeout,
		RemoteURL: cfg.BrowserURL,
		Headful:   cfg.BrowserHeadful,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := fetcher.Close(); err != nil {
			log.Printf("valuewatch: close fetcher: %v", err)
		}
	}()

	notifiers := notify.Multi{notify.Log{}, notify.NewHistory(store)}
	if cfg.Notifications {
		notifiers = append(notifiers, notify.NewDesktop())
	}

	var program *tea.Program
	sched := scheduler.New(fetcher,
		scheduler.WithPeriod(cfg.RefreshPeriod),
		scheduler.WithNotifier(notifiers),
		scheduler.WithRedraw(func() { program.Send(tui.RedrawMsg{}) }),
	)

	tr := tracker.New(fetcher,
		tracker.WithContext(ctx),
		tracker.WithBatches(sched.Batches()),
		tracker.WithPublisher(sched.Publish),
	)
	tr.Load(items)

	ui := tui.New(tr, store, tui.Config{FrameInterval: cfg.FrameInterval})
	program = tea.NewProgram(ui, tea.WithAltScreen())

	if cfg.APIEnabled {
		apiServer := httpserver.NewServer(cfg.APIAddr, store)
		if err := apiServer.Start(); err != nil {
			return fmt.Errorf("failed to start API server: %w", err)
		}
		defer apiServer.Stop()
		log.Printf("valuewatch: API listening on %s", cfg.APIAddr)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer cancel()
		if _, err := program.Run(); err != nil {
			if strings.Contains(err.Error(), "TTY") || strings.Contains(err.Error(), "/dev/tty") {
				return fmt.Errorf("TUI requires a real terminal")
			}
			return fmt.Errorf("error running TUI: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		if err := sched.Arm(gctx); err != nil && !errors.Is(err, scheduler.ErrAlreadyArmed) {
			return err
		}
		<-gctx.Done()
		sched.Stop()
		return nil
	})

	g.Go(func() error {
		select {
		case sig := <-sigCh:
			log.Printf("valuewatch: received %s, quitting", sig)
			program.Quit()
		case <-gctx.Done():
		}
		return nil
	})

	runErr := g.Wait()

	// The UI loop has exited, so the table is no longer being mutated.
	// Flush outranks any save command still in flight.
	saveCtx, saveCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer saveCancel()
	if err := ui.Flush(saveCtx); err != nil {
		log.Printf("valuewatch: final save: %v", err)
	}

	return runErr
}

// loadItems restores the saved table and appends any imported items.
func loadItems(ctx context.Context, store *duckdb.Store, importPath string) ([]model.TrackedItem, error) {
	items, err := store.LoadItems(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load items: %w", err)
	}
	if importPath == "" {
		return items, nil
	}

	imported, err := seed.ImportItemsFile(importPath)
	if err != nil {
		return nil, err
	}
	items = append(items, imported...)
	if err := store.SaveItems(ctx, items); err != nil {
		return nil, fmt.Errorf("failed to save imported items: %w", err)
	}
	log.Printf("valuewatch: imported %d items from %s", len(imported), importPath)
	return items, nil
}

func configureRuntimeLogger() func() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	home, err := os.UserHomeDir()
	if err != nil {
		log.SetOutput(os.Stderr)
		return func() {}
	}

	logDir := filepath.Join(home, ".local", "state", "valuewatch")
	if err := os.MkdirAll(logDir, 0755); err != nil {
		log.SetOutput(os.Stderr)
		return func() {}
	}

	logPath := filepath.Join(logDir, "valuewatch.log")
	f, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		log.SetOutput(os.Stderr)
		return func() {}
	}

	log.SetOutput(f)
	return func() {
		_ = f.Close()
	}
}
