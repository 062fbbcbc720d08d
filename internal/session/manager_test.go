package session

import (
	"context"
	"log/slog"
	"testing"
	"time"
)

// blockingGenerator parks in Generate until released, signalling entry
// so tests know the call is in flight.
type blockingGenerator struct {
	entered chan struct{}
	release chan struct{}
}

func (b *blockingGenerator) Generate(ctx context.Context, question string) (string, error) {
	close(b.entered)
	<-b.release
	return "done", nil
}

func (b *blockingGenerator) Ping(ctx context.Context) error { return nil }

func newTestManager(t *testing.T, idle time.Duration) (*Manager, func(time.Duration)) {
	t.Helper()

	current := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	m := NewManager(idle, slog.Default())
	m.nowFunc = func() time.Time { return current }
	return m, func(d time.Duration) { current = current.Add(d) }
}

func TestManager_StartAndGet(t *testing.T) {
	m, _ := newTestManager(t, 30*time.Minute)

	id, st := m.Start()
	if id == "" {
		t.Fatal("Start returned an empty session ID")
	}
	if st.Snapshot().Page != 1 {
		t.Errorf("new session Page = %d, want 1", st.Snapshot().Page)
	}

	got, ok := m.Get(id)
	if !ok {
		t.Fatal("Get did not find a just-started session")
	}
	if got != st {
		t.Error("Get returned a different state than Start")
	}
}

func TestManager_UnknownID(t *testing.T) {
	m, _ := newTestManager(t, 30*time.Minute)

	if _, ok := m.Get("never-issued"); ok {
		t.Error("Get found a session that was never started")
	}
}

func TestManager_IdleExpiry(t *testing.T) {
	m, advance := newTestManager(t, 30*time.Minute)

	id, _ := m.Start()
	advance(31 * time.Minute)

	if _, ok := m.Get(id); ok {
		t.Error("idle session survived past the timeout")
	}
	if m.Count() != 0 {
		t.Errorf("Count = %d, want 0 after expiry", m.Count())
	}
}

func TestManager_AccessKeepsAlive(t *testing.T) {
	m, advance := newTestManager(t, 30*time.Minute)

	id, _ := m.Start()
	advance(20 * time.Minute)
	if _, ok := m.Get(id); !ok {
		t.Fatal("session expired too early")
	}
	advance(20 * time.Minute)
	if _, ok := m.Get(id); !ok {
		t.Error("session expired despite being touched within the timeout")
	}
}

// One session's in-flight generation holds that session's lock for the
// whole remote call. Lookups for other sessions go through the manager
// alone and must keep working in the meantime.
func TestManager_GetUnaffectedByBusySession(t *testing.T) {
	m, _ := newTestManager(t, 30*time.Minute)

	_, busy := m.Start()
	otherID, _ := m.Start()

	gen := &blockingGenerator{
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	done := make(chan struct{})
	go func() {
		busy.Generate(context.Background(), "slow question", gen, &fakeStore{}, slog.Default())
		close(done)
	}()
	<-gen.entered

	got := make(chan bool, 1)
	go func() {
		_, ok := m.Get(otherID)
		got <- ok
	}()

	select {
	case ok := <-got:
		if !ok {
			t.Error("Get lost an unrelated live session")
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("Get for an unrelated session stalled behind an in-flight generation")
	}

	close(gen.release)
	<-done
}

func TestManager_RestartGivesFreshState(t *testing.T) {
	m, _ := newTestManager(t, 30*time.Minute)

	_, st := m.Start()
	st.NextPage(12)
	st.mu.Lock()
	st.Question = "old question"
	st.mu.Unlock()

	id2, st2 := m.Start()
	if st2 == st {
		t.Fatal("restart reused the old state")
	}
	snap := st2.Snapshot()
	if snap.Question != "" || snap.Page != 1 {
		t.Errorf("fresh session state = %+v, want initial values", snap)
	}
	if _, ok := m.Get(id2); !ok {
		t.Error("second session not retrievable")
	}
}
