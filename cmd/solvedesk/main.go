// Solvedesk serves a single-page question-to-solution form: a user
// submits a question, Gemini produces a tutor-style worked solution,
// and the pair is saved to a Firestore collection for later display.
//
// Usage:
//
//	solvedesk [-config path] [-listen addr] [-port n] [-log-level level]
//
// Configuration is loaded from a single YAML file discovered
// automatically (see [config.DefaultSearchPaths]). Firestore
// credentials come from an inline credentials_json block or a local
// firebase_config.json; with neither, the app runs without history.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"solvedesk/internal/buildinfo"
	"solvedesk/internal/config"
	"solvedesk/internal/generator"
	"solvedesk/internal/history"
	"solvedesk/internal/session"
	"solvedesk/internal/web"
)

// main constructs the OS-level environment and delegates to [run] so
// the startup-to-shutdown lifecycle stays testable.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

// run is the real entry point. ctx cancellation triggers graceful
// shutdown; stdout receives structured logs.
func run(ctx context.Context, stdout io.Writer, args []string) error {
	fs := flag.NewFlagSet("solvedesk", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to config file")
	listenAddr := fs.String("listen", "", "override bind address")
	port := fs.Int("port", 0, "override listen port")
	logLevel := fs.String("log-level", "", "override log level (trace, debug, info, warn, error)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	path, err := config.FindConfig(*configPath)
	if err != nil {
		return err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("load config %s: %w", path, err)
	}
	if *listenAddr != "" {
		cfg.Listen.Address = *listenAddr
	}
	if *port != 0 {
		cfg.Listen.Port = *port
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}

	level, err := config.ParseLogLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewTextHandler(stdout, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: config.ReplaceLogLevelNames,
	}))
	slog.SetDefault(logger)

	logger.Info("starting", "build", buildinfo.String(), "config", path)

	// History store: credentials resolve once at startup; without them
	// the app runs degraded with history disabled.
	store := buildStore(ctx, cfg, logger)
	defer store.Close()

	// Generator: an empty API key likewise degrades rather than fails.
	var gen generator.Client
	g, err := generator.NewGemini(ctx, cfg.Gemini.APIKey, cfg.Gemini.Model,
		time.Duration(cfg.Gemini.TimeoutSec)*time.Second, logger)
	switch {
	case err == nil:
		gen = g
		logger.Info("generator configured", "model", cfg.Gemini.Model)
	case errors.Is(err, generator.ErrNotConfigured):
		logger.Warn("no gemini api key configured; solution generation disabled")
	default:
		return fmt.Errorf("configure generator: %w", err)
	}

	sessions := session.NewManager(time.Duration(cfg.Session.IdleTimeoutSec)*time.Second, logger)

	srv := web.NewServer(web.Config{
		Generator: gen,
		Store:     store,
		Sessions:  sessions,
		Logger:    logger,
	})
	mux := http.NewServeMux()
	srv.RegisterRoutes(mux)

	httpServer := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Listen.Address, cfg.Listen.Port),
		Handler: mux,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// buildStore resolves Firestore credentials and dials the store. Every
// failure path returns a disabled store: the form and generator keep
// working, and store operations report unavailable.
func buildStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) *history.Store {
	creds, projectID, err := cfg.Firestore.ResolveCredentials()
	if err != nil {
		if errors.Is(err, config.ErrConfigurationMissing) {
			logger.Warn("no firestore credentials found; history disabled",
				"checked_inline", cfg.Firestore.CredentialsJSON != "",
				"checked_file", cfg.Firestore.CredentialsFile)
		} else {
			logger.Error("firestore credentials invalid; history disabled", "error", err)
		}
		return history.NewDisabledStore(logger)
	}

	ttl := time.Duration(cfg.History.CacheTTLSec) * time.Second
	store, err := history.NewStore(ctx, projectID, creds, cfg.Firestore.Collection, ttl, logger)
	if err != nil {
		logger.Error("firestore client failed; history disabled", "error", err)
		return history.NewDisabledStore(logger)
	}
	return store
}
