//go:build !unix

package integrity

// SignalSource observes nothing on platforms without job-control signals.
type SignalSource struct{}

func NewSignalSource() *SignalSource {
	return &SignalSource{}
}

func (s *SignalSource) Attach(func(Event)) (func(), error) {
	return func() {}, nil
}
