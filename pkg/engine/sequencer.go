package engine

import "sync"

// sequencer applies memtable mutations in WAL order. The WAL hands out
// contiguous sequence numbers and every successful append is applied, so a
// writer holding seq only has to wait for seq-1.
type sequencer struct {
	mu      sync.Mutex
	cond    *sync.Cond
	applied uint64
}

func newSequencer() *sequencer {
	s := &sequencer{}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// reset sets the applied watermark after recovery, before any writer runs.
func (s *sequencer) reset(applied uint64) {
	s.mu.Lock()
	s.applied = applied
	s.mu.Unlock()
}

// apply runs fn once every mutation before seq has been applied.
func (s *sequencer) apply(seq uint64, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for s.applied+1 < seq {
		s.cond.Wait()
	}
	fn()
	if seq > s.applied {
		s.applied = seq
	}
	s.cond.Broadcast()
}

func (s *sequencer) watermark() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.applied
}
