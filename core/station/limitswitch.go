package station

import (
	"sync"
	"time"
)

// Side identifies which end-of-travel switch tripped.
type Side int

const (
	SideLeft Side = iota
	SideRight
)

func (s Side) String() string {
	if s == SideRight {
		return "right"
	}
	return "left"
}

// LimitSwitch tracks the end-of-travel switches. A trip reverses the
// effective belt direction; two trips inside the window indicate the belt
// is oscillating against a hard stop and raise a position error. The
// running procedure is not interrupted, operators decide how to recover.
type LimitSwitch struct {
	mu          sync.Mutex
	window      time.Duration
	lastTrigger time.Time
	inverted    bool
	onError     func(side Side)
	now         func() time.Time
}

// NewLimitSwitch builds a monitor. onError may be nil; window zero
// defaults to ten seconds.
func NewLimitSwitch(window time.Duration, onError func(side Side)) *LimitSwitch {
	if window <= 0 {
		window = 10 * time.Second
	}
	return &LimitSwitch{window: window, onError: onError, now: time.Now}
}

// Trip records a switch hit.
func (l *LimitSwitch) Trip(side Side) {
	t := l.now()
	l.mu.Lock()
	repeat := !l.lastTrigger.IsZero() && t.Sub(l.lastTrigger) <= l.window
	l.lastTrigger = t
	l.inverted = !l.inverted
	l.mu.Unlock()
	if repeat && l.onError != nil {
		l.onError(side)
	}
}

// Apply maps a requested direction through the current inversion state.
func (l *LimitSwitch) Apply(d Direction) Direction {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.inverted {
		return d.Opposite()
	}
	return d
}

// Inverted reports whether motion is currently reversed.
func (l *LimitSwitch) Inverted() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.inverted
}
