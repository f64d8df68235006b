package session

import "sync"

// Latch is a one-shot signal. Once set it stays set; reads never block.
type Latch struct {
	once sync.Once
	ch   chan struct{}
}

// NewLatch creates an unset latch.
func NewLatch() *Latch {
	return &Latch{ch: make(chan struct{})}
}

// Set sets the latch. Only the first call has an effect; it reports whether
// this call set it.
func (l *Latch) Set() bool {
	set := false
	l.once.Do(func() {
		close(l.ch)
		set = true
	})
	return set
}

// IsSet reports whether the latch has been set.
func (l *Latch) IsSet() bool {
	select {
	case <-l.ch:
		return true
	default:
		return false
	}
}

// Done returns a channel that is closed when the latch is set.
func (l *Latch) Done() <-chan struct{} {
	return l.ch
}
