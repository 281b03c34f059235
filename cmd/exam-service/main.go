package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"exam-app/internal/auth"
	"exam-app/internal/config"
	"exam-app/internal/exam"
	"exam-app/internal/exam/sqlstore"
	"exam-app/internal/httpapi"
	"exam-app/internal/logging"
	"exam-app/internal/opentdb"
)

const cleanupInterval = time.Hour

func main() {
	configDir := flag.String("config", "", "directory containing config.yaml")
	addr := flag.String("addr", "", "HTTP listen address (overrides config)")
	catalog := flag.String("catalog", "", "YAML test catalog to load at startup (overrides config)")
	hashPassword := flag.String("hash-password", "", "print a bcrypt hash for the admin password and exit")
	flag.Parse()

	if *hashPassword != "" {
		hash, err := auth.HashPassword(*hashPassword)
		if err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			os.Exit(1)
		}
		fmt.Println(hash)
		return
	}

	var paths []string
	if *configDir != "" {
		paths = append(paths, *configDir)
	}
	cfg, err := config.LoadService(paths...)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.HTTPAddr = *addr
	}
	if *catalog != "" {
		cfg.CatalogPath = *catalog
	}
	logging.Setup(cfg.LogLevel, cfg.LogFormat, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatal().Err(err).Msg("exam-service failed")
	}
}

func run(ctx context.Context, cfg config.Service) error {
	store, err := sqlstore.Open(ctx, sqlstore.Dialect(cfg.DBDriver), cfg.DBDSN)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	questions := opentdb.NewClient(&http.Client{Timeout: 10 * time.Second}).WithBaseURL(cfg.OpenTDBURL)
	service := exam.NewService(store, store, questions.FetchQuestions, exam.Options{
		MaxCompletedAttempts: cfg.MaxCompletedAttempts,
		StaleAfter:           cfg.StaleAfter,
	})

	if cfg.CatalogPath != "" {
		seeded, err := exam.SeedCatalog(ctx, service, cfg.CatalogPath)
		if err != nil {
			return fmt.Errorf("seed catalog: %w", err)
		}
		log.Info().Int("tests", seeded).Str("path", cfg.CatalogPath).Msg("catalog loaded")
	}

	api := httpapi.NewAPI(service, auth.NewTokenService(cfg.JWTSecret, cfg.TokenTTL), auth.Credentials{
		AdminUser:     cfg.AdminUser,
		AdminPassHash: cfg.AdminPassHash,
		AllowDevLogin: cfg.AllowDevLogin,
	})
	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpapi.NewRouter(api, httpapi.RouterOptions{CORSOrigins: cfg.CORSOrigins}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go cleanupLoop(ctx, service)

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Str("db", cfg.DBDriver).Msg("exam-service listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func cleanupLoop(ctx context.Context, service *exam.Service) {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := service.CleanupStaleAttempts(ctx); err != nil {
				log.Warn().Err(err).Msg("stale attempt cleanup failed")
			}
		}
	}
}
