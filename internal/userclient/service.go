package userclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"exam-app/internal/cli"
	"exam-app/internal/integrity"
	"exam-app/internal/recovery"
)

const (
	defaultServer       = "http://127.0.0.1:8080"
	defaultRecoveryPath = "exam-recovery.db"
	defaultHTTPTimeout  = 5 * time.Second
)

type Config struct {
	ServerURL   string
	StudentID   string
	StudentName string
	// Token skips the login call when set.
	Token    string
	Password string

	RecoveryPath     string
	SyncInterval     time.Duration
	WarningThreshold int
	HTTPTimeout      time.Duration
	StrictIntegrity  bool
}

// Run signs in against the exam service and hands the terminal to the exam
// shell. Answers are kept in a local recovery database between runs.
func Run(ctx context.Context, in io.Reader, out io.Writer, cfg Config) error {
	studentID := strings.TrimSpace(cfg.StudentID)
	if studentID == "" {
		return errors.New("student id is required")
	}

	serverURL := strings.TrimSpace(cfg.ServerURL)
	if serverURL == "" {
		serverURL = defaultServer
	}
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	recoveryPath := strings.TrimSpace(cfg.RecoveryPath)
	if recoveryPath == "" {
		recoveryPath = defaultRecoveryPath
	}

	client := NewHTTPClient(serverURL, &http.Client{Timeout: timeout})
	name := strings.TrimSpace(cfg.StudentName)
	if token := strings.TrimSpace(cfg.Token); token != "" {
		client.SetToken(token)
	} else {
		session, err := client.Login(ctx, studentID, cfg.Password, name)
		if err != nil {
			return describeClientError(err, serverURL)
		}
		studentID = session.Identity.ID
		name = session.Identity.Name
		log.Info().Str("student_id", studentID).Time("expires_at", session.ExpiresAt).Msg("signed in")
	}

	store, err := recovery.NewSQLiteStore(recoveryPath)
	if err != nil {
		return fmt.Errorf("open recovery store: %w", err)
	}
	defer store.Close()

	return cli.Run(ctx, in, out, cli.Options{
		Banner:           "exam-client\nserver=" + serverURL,
		Backend:          client,
		Recovery:         store,
		Source:           integrity.NewSignalSource(),
		StudentID:        studentID,
		StudentName:      name,
		WarningThreshold: cfg.WarningThreshold,
		SyncInterval:     cfg.SyncInterval,
		StrictIntegrity:  cfg.StrictIntegrity,
	})
}

func describeClientError(err error, serverURL string) error {
	if errors.Is(err, ErrServiceUnavailable) {
		return fmt.Errorf("exam service unavailable at %s", serverURL)
	}
	return err
}
