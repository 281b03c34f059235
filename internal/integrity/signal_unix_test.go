//go:build unix

package integrity

import (
	"syscall"
	"testing"
	"time"
)

func TestSignalSourceReportsResize(t *testing.T) {
	events := make(chan Event, 1)
	detach, err := NewSignalSource().Attach(func(event Event) {
		select {
		case events <- event:
		default:
		}
	})
	if err != nil {
		t.Fatalf("Attach failed: %v", err)
	}
	defer detach()

	if err := syscall.Kill(syscall.Getpid(), syscall.SIGWINCH); err != nil {
		t.Fatalf("send SIGWINCH: %v", err)
	}

	select {
	case event := <-events:
		if event.Kind != KindFullscreenExit {
			t.Fatalf("kind = %q, want %q", event.Kind, KindFullscreenExit)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("no event for SIGWINCH")
	}
}
