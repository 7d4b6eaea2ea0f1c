/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package scheduler tracks the position within a show's rotation and owns the
// single delayed transition that ends the current segment.
package scheduler

import (
	"sync"
	"time"

	"github.com/friendsincode/tokencast/internal/clock"
	"github.com/friendsincode/tokencast/internal/rotation"
)

// Scheduler walks a fixed rotation and holds at most one armed timer.
type Scheduler struct {
	clock   clock.Clock
	entries []rotation.Entry

	mu       sync.Mutex
	index    int
	timer    clock.Timer
	gen      uint64
	armed    bool
	deadline time.Time
}

// New constructs a scheduler positioned at the first entry.
func New(entries []rotation.Entry, clk clock.Clock) (*Scheduler, error) {
	if err := rotation.Validate(entries); err != nil {
		return nil, err
	}
	if clk == nil {
		clk = clock.Real()
	}
	cp := make([]rotation.Entry, len(entries))
	copy(cp, entries)
	return &Scheduler{clock: clk, entries: cp}, nil
}

// Len returns the rotation length.
func (s *Scheduler) Len() int { return len(s.entries) }

// Rotation returns a copy of the rotation.
func (s *Scheduler) Rotation() []rotation.Entry {
	cp := make([]rotation.Entry, len(s.entries))
	copy(cp, s.entries)
	return cp
}

// Index returns the current position.
func (s *Scheduler) Index() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index
}

// Current returns the entry at the current position.
func (s *Scheduler) Current() rotation.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.entries[s.index]
}

// Advance moves to the next position, wrapping at the end, and returns the
// new current entry.
func (s *Scheduler) Advance() rotation.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.index = (s.index + 1) % len(s.entries)
	return s.entries[s.index]
}

// Peek returns the n entries following the current one without moving.
// The sequence wraps, so n may exceed the rotation length.
func (s *Scheduler) Peek(n int) []rotation.Entry {
	if n <= 0 {
		return []rotation.Entry{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]rotation.Entry, n)
	for i := 1; i <= n; i++ {
		out[i-1] = s.entries[(s.index+i)%len(s.entries)]
	}
	return out
}

// Schedule arms fn to run after delay, replacing any timer already armed.
// A replaced or cancelled timer never runs its callback once Schedule or
// Cancel has returned, unless the callback had already started.
func (s *Scheduler) Schedule(delay time.Duration, fn func()) {
	if delay < 0 {
		delay = 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopLocked()
	s.gen++
	gen := s.gen
	s.armed = true
	s.deadline = s.clock.Now().Add(delay)
	s.timer = s.clock.AfterFunc(delay, func() {
		s.mu.Lock()
		if !s.armed || s.gen != gen {
			s.mu.Unlock()
			return
		}
		s.armed = false
		s.timer = nil
		s.mu.Unlock()
		fn()
	})
}

// Cancel disarms the outstanding timer. It reports whether one was armed and
// is safe to call any number of times.
func (s *Scheduler) Cancel() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.armed {
		return false
	}
	s.stopLocked()
	s.gen++
	return true
}

// Pending reports whether a timer is armed.
func (s *Scheduler) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.armed
}

// Deadline returns when the armed timer is due.
func (s *Scheduler) Deadline() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.armed {
		return time.Time{}, false
	}
	return s.deadline, true
}

// TimeRemaining returns how much of a segment started at startedAt with the
// given planned length is left, never negative.
func (s *Scheduler) TimeRemaining(startedAt time.Time, planned time.Duration) time.Duration {
	remaining := planned - s.clock.Now().Sub(startedAt)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Reset cancels any timer and returns to the first entry.
func (s *Scheduler) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.armed {
		s.stopLocked()
		s.gen++
	}
	s.index = 0
}

func (s *Scheduler) stopLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.armed = false
	s.deadline = time.Time{}
}
