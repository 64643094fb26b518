package jobs

import (
	"sync"
	"time"
)

// Scheduler abstracts the repeating timer that drives polling, so the core
// logic is testable without a real clock.
type Scheduler interface {
	// ScheduleRepeating invokes fn every interval until the returned stop
	// function is called. fn invocations never overlap.
	ScheduleRepeating(interval time.Duration, fn func()) (stop func())
}

// TickerScheduler is the production Scheduler backed by time.Ticker.
type TickerScheduler struct{}

func (TickerScheduler) ScheduleRepeating(interval time.Duration, fn func()) func() {
	ticker := time.NewTicker(interval)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				fn()
			}
		}
	}()
	var once sync.Once
	return func() {
		once.Do(func() {
			ticker.Stop()
			close(done)
		})
	}
}

// ManualScheduler fires only when Tick is called. Tests inject it in place
// of the ticker.
type ManualScheduler struct {
	mu  sync.Mutex
	fns []func()
}

func (m *ManualScheduler) ScheduleRepeating(_ time.Duration, fn func()) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	idx := len(m.fns)
	m.fns = append(m.fns, fn)
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if idx < len(m.fns) {
			m.fns[idx] = nil
		}
	}
}

// Tick runs every scheduled function once.
func (m *ManualScheduler) Tick() {
	m.mu.Lock()
	fns := make([]func(), len(m.fns))
	copy(fns, m.fns)
	m.mu.Unlock()
	for _, fn := range fns {
		if fn != nil {
			fn()
		}
	}
}
