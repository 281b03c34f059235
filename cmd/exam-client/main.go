package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"exam-app/internal/config"
	"exam-app/internal/logging"
	"exam-app/internal/userclient"
)

func main() {
	configDir := flag.String("config", "", "directory containing config.yaml")
	student := flag.String("student", "", "student id (overrides config)")
	name := flag.String("name", "", "student display name (overrides config)")
	password := flag.String("password", "", "password, for non-dev logins")
	server := flag.String("server", "", "exam service base URL (overrides config)")
	timeout := flag.Duration("timeout", 0, "HTTP timeout (overrides config)")
	flag.Parse()

	var paths []string
	if *configDir != "" {
		paths = append(paths, *configDir)
	}
	cfg, err := config.LoadClient(paths...)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
	if *student != "" {
		cfg.StudentID = *student
	}
	if *name != "" {
		cfg.StudentName = *name
	}
	if *server != "" {
		cfg.ServerURL = *server
	}
	if *timeout > 0 {
		cfg.HTTPTimeout = *timeout
	}
	logging.Setup(cfg.LogLevel, cfg.LogFormat, os.Stderr)

	if cfg.StudentID == "" {
		fmt.Fprintln(os.Stderr, "error: --student is required")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = userclient.Run(ctx, os.Stdin, os.Stdout, userclient.Config{
		ServerURL:        cfg.ServerURL,
		StudentID:        cfg.StudentID,
		StudentName:      cfg.StudentName,
		Token:            cfg.Token,
		Password:         *password,
		RecoveryPath:     cfg.RecoveryPath,
		SyncInterval:     cfg.SyncInterval,
		WarningThreshold: cfg.WarningThreshold,
		HTTPTimeout:      cfg.HTTPTimeout,
		StrictIntegrity:  cfg.StrictIntegrity,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

