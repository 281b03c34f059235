//go:build unix

package integrity

import (
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

// SignalSource maps terminal job-control signals to integrity events:
// suspending the client (Ctrl-Z) counts as leaving the exam and resizing
// the terminal counts as leaving fullscreen. Catching SIGTSTP also keeps
// the process from being suspended.
type SignalSource struct {
	kinds map[os.Signal]Kind
}

func NewSignalSource() *SignalSource {
	return &SignalSource{
		kinds: map[os.Signal]Kind{
			syscall.SIGTSTP:  KindTabSwitch,
			syscall.SIGWINCH: KindFullscreenExit,
		},
	}
}

func (s *SignalSource) Attach(handler func(Event)) (func(), error) {
	signals := make([]os.Signal, 0, len(s.kinds))
	for sig := range s.kinds {
		signals = append(signals, sig)
	}

	ch := make(chan os.Signal, 4)
	signal.Notify(ch, signals...)
	done := make(chan struct{})

	go func() {
		for {
			select {
			case <-done:
				return
			case sig := <-ch:
				handler(Event{Kind: s.kinds[sig], At: time.Now().UTC(), Detail: sig.String()})
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			signal.Stop(ch)
			close(done)
		})
	}, nil
}
