// Package network tracks connectivity belief for the terminal. The platform
// signal (OS / browser shell / probe loop) feeds a Source, and the Monitor
// layers request evidence on top of it: a failed remote call flips the
// belief offline immediately even while the platform still reports online.
package network

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tillpoint/pos-lib/e"
)

const (
	// DefaultSettleWindow how long a regained connection must hold before
	// it is announced. Captive portals and flapping links report online
	// before traffic actually flows.
	DefaultSettleWindow = 5 * time.Second

	ECode080101 = e.Code0801 + "01"
)

// Source is the platform connectivity signal
type Source interface {
	// Online returns the current platform belief
	Online() bool
	// Subscribe registers a callback for platform signal changes. The
	// returned function removes the subscription.
	Subscribe(f func(online bool)) (unsubscribe func())
}

// Monitor tracks the connectivity belief, debouncing offline to online
// transitions by a settle window. Transitions to offline are announced
// immediately.
type Monitor struct {
	source       Source
	settleWindow time.Duration

	mutex       sync.Mutex
	online      bool
	started     bool
	unsubscribe func()
	settleTimer *time.Timer
	nextID      int
	callbacks   map[int]func(online bool)
}

// NewMonitor initializes a monitor over the platform source
func NewMonitor(source Source) (m *Monitor) {
	return &Monitor{
		source:       source,
		settleWindow: DefaultSettleWindow,
		callbacks:    map[int]func(online bool){},
	}
}

// SetSettleWindow overrides the settle window. Must be called before Start.
func (m *Monitor) SetSettleWindow(d time.Duration) {
	m.settleWindow = d
}

// Start seeds the belief from the source and begins tracking signal changes
func (m *Monitor) Start() (err error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.started {
		return e.N(ECode080101, "monitor already started")
	}

	m.started = true
	m.online = m.source.Online()
	m.unsubscribe = m.source.Subscribe(m.handleSignal)

	return nil
}

// Stop ends tracking. The belief is retained but no longer updated.
func (m *Monitor) Stop() {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if !m.started {
		return
	}

	m.started = false
	if m.unsubscribe != nil {
		m.unsubscribe()
		m.unsubscribe = nil
	}
	m.cancelSettleLocked()
}

// IsOnline returns the current belief
func (m *Monitor) IsOnline() bool {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.online
}

// OnChange registers a callback for belief changes. The returned function
// removes the subscription.
func (m *Monitor) OnChange(f func(online bool)) (unsubscribe func()) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	id := m.nextID
	m.nextID++
	m.callbacks[id] = f

	return func() {
		m.mutex.Lock()
		defer m.mutex.Unlock()
		delete(m.callbacks, id)
	}
}

// ReportFailure records failed-request evidence, flipping the belief
// offline immediately regardless of the platform signal
func (m *Monitor) ReportFailure() {
	m.mutex.Lock()
	m.cancelSettleLocked()
	changed := m.online
	m.online = false
	m.mutex.Unlock()

	if changed {
		log.Warn().Msg("connectivity: request failure, going offline")
		m.announce(false)
	}
}

// ReportSuccess records successful-request evidence, confirming the belief
// online without waiting for a settle window
func (m *Monitor) ReportSuccess() {
	m.mutex.Lock()
	m.cancelSettleLocked()
	changed := !m.online
	m.online = true
	m.mutex.Unlock()

	if changed {
		log.Info().Msg("connectivity: request success, going online")
		m.announce(true)
	}
}

// handleSignal processes a platform signal change
func (m *Monitor) handleSignal(online bool) {
	m.mutex.Lock()

	if !m.started {
		m.mutex.Unlock()
		return
	}

	if !online {
		m.cancelSettleLocked()
		changed := m.online
		m.online = false
		m.mutex.Unlock()

		if changed {
			log.Warn().Msg("connectivity: platform signal offline")
			m.announce(false)
		}
		return
	}

	// Regained signal. Hold the offline belief until the connection has
	// settled, then confirm the platform still reports online.
	if m.online {
		m.mutex.Unlock()
		return
	}

	m.cancelSettleLocked()
	m.settleTimer = time.AfterFunc(m.settleWindow, m.settleElapsed)
	m.mutex.Unlock()

	log.Info().Msgf("connectivity: platform signal online, settling for %v",
		m.settleWindow)
}

// settleElapsed fires after the settle window
func (m *Monitor) settleElapsed() {
	m.mutex.Lock()

	m.settleTimer = nil
	if !m.started || m.online || !m.source.Online() {
		m.mutex.Unlock()
		return
	}

	m.online = true
	m.mutex.Unlock()

	log.Info().Msg("connectivity: connection settled, going online")
	m.announce(true)
}

// cancelSettleLocked stops a pending settle timer. Caller must hold the mutex.
func (m *Monitor) cancelSettleLocked() {
	if m.settleTimer != nil {
		m.settleTimer.Stop()
		m.settleTimer = nil
	}
}

// announce fans the change out to subscribers. Runs without the mutex so a
// callback may call back into the monitor.
func (m *Monitor) announce(online bool) {
	m.mutex.Lock()
	fList := make([]func(online bool), 0, len(m.callbacks))
	for _, f := range m.callbacks {
		fList = append(fList, f)
	}
	m.mutex.Unlock()

	for _, f := range fList {
		f(online)
	}
}
