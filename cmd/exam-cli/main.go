package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"exam-app/internal/cli"
	"exam-app/internal/exam"
	"exam-app/internal/exam/sqlstore"
	"exam-app/internal/integrity"
	"exam-app/internal/logging"
	"exam-app/internal/opentdb"
	"exam-app/internal/recovery"
)

// exam-cli runs exams fully offline against a local sqlite database.
func main() {
	student := flag.String("student", "local", "student id")
	name := flag.String("name", "", "student display name")
	dbPath := flag.String("db", "exam-offline.db", "sqlite database for tests and attempts")
	recoveryPath := flag.String("recovery", "exam-recovery.db", "sqlite database for local recovery records")
	catalog := flag.String("catalog", "", "YAML test catalog to load")
	warnings := flag.Int("warnings", 2, "warnings allowed before automatic submission")
	strict := flag.Bool("strict", true, "treat copy attempts as violations")
	logLevel := flag.String("log-level", "warn", "log level")
	flag.Parse()

	logging.Setup(*logLevel, "console", os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *student, *name, *dbPath, *recoveryPath, *catalog, *warnings, *strict); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, student, name, dbPath, recoveryPath, catalog string, warnings int, strict bool) error {
	store, err := sqlstore.NewSQLiteStore(dbPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	questions := opentdb.NewClient(&http.Client{Timeout: 10 * time.Second})
	service := exam.NewService(store, store, questions.FetchQuestions, exam.Options{})
	if catalog != "" {
		if _, err := exam.SeedCatalog(ctx, service, catalog); err != nil {
			return fmt.Errorf("seed catalog: %w", err)
		}
	}

	records, err := recovery.NewSQLiteStore(recoveryPath)
	if err != nil {
		return fmt.Errorf("open recovery store: %w", err)
	}
	defer records.Close()

	return cli.Run(ctx, os.Stdin, os.Stdout, cli.Options{
		Banner:           "exam-cli (offline)",
		Backend:          exam.NewLocalClient(service, exam.Student{ID: student, Name: name}),
		Recovery:         records,
		Source:           integrity.NewSignalSource(),
		StudentID:        student,
		StudentName:      name,
		WarningThreshold: warnings,
		StrictIntegrity:  strict,
	})
}
