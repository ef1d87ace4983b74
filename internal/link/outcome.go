package link

import (
	"sync/atomic"

	"github.com/vbfox/framelink/internal/domain"
)

// outcomeSlot is a single-assignment completion slot. The processing loop
// resolves it exactly once per operation; a second resolution is a
// programming error and panics rather than racing silently.
type outcomeSlot struct {
	resolved atomic.Bool
	frame    domain.Frame
	err      error
	done     chan struct{}
}

func newOutcomeSlot() *outcomeSlot {
	return &outcomeSlot{done: make(chan struct{})}
}

func (s *outcomeSlot) resolve(frame domain.Frame, err error) {
	if !s.resolved.CompareAndSwap(false, true) {
		panic("framelink: operation outcome resolved twice")
	}
	s.frame = frame
	s.err = err
	close(s.done)
}

// wait blocks until the slot is resolved. The loop resolves every admitted
// operation (with its frame, a cancellation error, or a failure), so waiting
// unconditionally cannot deadlock.
func (s *outcomeSlot) wait() (domain.Frame, error) {
	<-s.done
	return s.frame, s.err
}
