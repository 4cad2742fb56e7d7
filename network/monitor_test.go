package network

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSource is a hand-driven platform signal
type fakeSource struct {
	mutex    sync.Mutex
	online   bool
	handlers []func(online bool)
}

func (s *fakeSource) Online() bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.online
}

func (s *fakeSource) Subscribe(f func(online bool)) (unsubscribe func()) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.handlers = append(s.handlers, f)
	return func() {}
}

func (s *fakeSource) set(online bool) {
	s.mutex.Lock()
	s.online = online
	hList := make([]func(online bool), len(s.handlers))
	copy(hList, s.handlers)
	s.mutex.Unlock()

	for _, f := range hList {
		f(online)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached")
}

func TestStartSeedsBeliefFromSource(t *testing.T) {
	src := &fakeSource{online: true}
	m := NewMonitor(src)
	require.NoError(t, m.Start())
	defer m.Stop()

	assert.True(t, m.IsOnline())

	err := m.Start()
	require.Error(t, err)
}

func TestOfflineAnnouncedImmediately(t *testing.T) {
	src := &fakeSource{online: true}
	m := NewMonitor(src)
	require.NoError(t, m.Start())
	defer m.Stop()

	var gotOffline bool
	var mu sync.Mutex
	m.OnChange(func(online bool) {
		mu.Lock()
		defer mu.Unlock()
		if !online {
			gotOffline = true
		}
	})

	src.set(false)

	assert.False(t, m.IsOnline())
	mu.Lock()
	assert.True(t, gotOffline)
	mu.Unlock()
}

func TestOnlineDebouncedBySettleWindow(t *testing.T) {
	src := &fakeSource{online: false}
	m := NewMonitor(src)
	m.SetSettleWindow(30 * time.Millisecond)
	require.NoError(t, m.Start())
	defer m.Stop()

	src.set(true)

	// The belief holds offline until the window elapses
	assert.False(t, m.IsOnline())

	waitFor(t, m.IsOnline)
}

func TestSettleAbortedWhenSignalDropsAgain(t *testing.T) {
	src := &fakeSource{online: false}
	m := NewMonitor(src)
	m.SetSettleWindow(30 * time.Millisecond)
	require.NoError(t, m.Start())
	defer m.Stop()

	src.set(true)
	src.set(false)

	time.Sleep(60 * time.Millisecond)
	assert.False(t, m.IsOnline())
}

func TestReportFailureFlipsOfflineInstantly(t *testing.T) {
	src := &fakeSource{online: true}
	m := NewMonitor(src)
	require.NoError(t, m.Start())
	defer m.Stop()

	require.True(t, m.IsOnline())

	// The platform still says online, the failed request wins
	m.ReportFailure()
	assert.False(t, m.IsOnline())
}

func TestReportSuccessSkipsSettleWindow(t *testing.T) {
	src := &fakeSource{online: false}
	m := NewMonitor(src)
	m.SetSettleWindow(time.Hour)
	require.NoError(t, m.Start())
	defer m.Stop()

	m.ReportSuccess()
	assert.True(t, m.IsOnline())
}

func TestUnsubscribeStopsCallbacks(t *testing.T) {
	src := &fakeSource{online: true}
	m := NewMonitor(src)
	require.NoError(t, m.Start())
	defer m.Stop()

	var calls int
	var mu sync.Mutex
	unsub := m.OnChange(func(online bool) {
		mu.Lock()
		defer mu.Unlock()
		calls++
	})

	src.set(false)
	unsub()
	src.set(true)
	m.ReportSuccess()

	mu.Lock()
	assert.Equal(t, 1, calls)
	mu.Unlock()
}
