package base

import (
	"github.com/ValentinKolb/rDBG/lib/queue"
	"sync/atomic"
	"time"
)

// drainPoll is how often a stopping service re-checks whether it became idle
const drainPoll = 5 * time.Millisecond

// Service runs posted work items one at a time on a single goroutine.
// All socket state of a connection is only touched by work running here.
type Service struct {
	queue   *queue.MPSC[func()]
	pending atomic.Int64 // posted but not yet finished work items
}

// NewService creates an I/O service. Work is only executed once either
// PollOne or Run is called.
func NewService() *Service {
	return &Service{queue: queue.NewMPSC[func()]()}
}

// Post queues fn for execution on the service goroutine.
// Returns false if the service is closed, fn will then never run.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (s *Service) Post(fn func()) bool {
	s.pending.Add(1)
	if !s.queue.Push(fn) {
		s.pending.Add(-1)
		return false
	}
	return true
}

// PollOne runs at most one ready work item on the calling goroutine without
// blocking. It returns whether an item was run.
// Must not be called while Run is active.
func (s *Service) PollOne() bool {
	select {
	case fn, ok := <-s.queue.Recv():
		if !ok {
			return false
		}
		s.run(fn)
		return true
	default:
		return false
	}
}

// Run executes posted work as it arrives until stop is closed. After that it
// keeps running work until no posted work is left and idle reports true, or
// until drainTimeout expires. idle is called on the service goroutine.
func (s *Service) Run(stop <-chan struct{}, idle func() bool, drainTimeout time.Duration) {
	recv := s.queue.Recv()

running:
	for {
		select {
		case fn, ok := <-recv:
			if !ok {
				return
			}
			s.run(fn)
		case <-stop:
			break running
		}
	}

	deadline := time.NewTimer(drainTimeout)
	defer deadline.Stop()
	ticker := time.NewTicker(drainPoll)
	defer ticker.Stop()

	for s.pending.Load() > 0 || !idle() {
		select {
		case fn, ok := <-recv:
			if !ok {
				return
			}
			s.run(fn)
		case <-ticker.C:
		case <-deadline.C:
			Logger.Warningf("I/O service stopped with %d pending work items after %s", s.pending.Load(), drainTimeout)
			return
		}
	}
}

// Pending returns the number of posted work items that did not finish yet
func (s *Service) Pending() int64 {
	return s.pending.Load()
}

// Close stops accepting work and drops everything not yet executed
func (s *Service) Close() {
	s.queue.Abort()
}

func (s *Service) run(fn func()) {
	defer s.pending.Add(-1)
	fn()
}
