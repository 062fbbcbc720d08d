package session

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"solvedesk/internal/history"
)

// fakeGenerator records calls and returns canned results.
type fakeGenerator struct {
	calls int
	text  string
	err   error
}

func (f *fakeGenerator) Generate(ctx context.Context, question string) (string, error) {
	f.calls++
	return f.text, f.err
}

func (f *fakeGenerator) Ping(ctx context.Context) error { return nil }

// fakeStore implements HistoryWriter and counts writes/invalidations.
type fakeStore struct {
	available   bool
	appendErr   error
	appends     int
	invalidates int
}

func (f *fakeStore) Available() bool { return f.available }

func (f *fakeStore) Append(ctx context.Context, question, solution string) error {
	if f.appendErr != nil {
		return f.appendErr
	}
	f.appends++
	return nil
}

func (f *fakeStore) Invalidate() { f.invalidates++ }

func levels(notices []Notice) []NoticeLevel {
	out := make([]NoticeLevel, len(notices))
	for i, n := range notices {
		out[i] = n.Level
	}
	return out
}

func TestGenerate_HappyPath(t *testing.T) {
	st := newState()
	gen := &fakeGenerator{text: "Step 1: define x."}
	store := &fakeStore{available: true}

	notices := st.Generate(context.Background(), "what is x?", gen, store, slog.Default())

	snap := st.Snapshot()
	if !snap.Generated || snap.Failed {
		t.Errorf("state = %+v, want generated and not failed", snap)
	}
	if snap.Question != "what is x?" || snap.Solution != "Step 1: define x." {
		t.Errorf("state = %+v, want question and solution recorded", snap)
	}
	if store.appends != 1 {
		t.Errorf("appends = %d, want 1", store.appends)
	}
	if store.invalidates != 1 {
		t.Errorf("invalidates = %d, want cache dropped after save", store.invalidates)
	}
	if len(notices) != 1 || notices[0].Level != NoticeSuccess {
		t.Errorf("notices = %v, want one success", notices)
	}
}

func TestGenerate_NoGenerator(t *testing.T) {
	st := newState()
	store := &fakeStore{available: true}

	notices := st.Generate(context.Background(), "q", nil, store, slog.Default())

	if len(notices) != 1 || notices[0].Level != NoticeError {
		t.Errorf("notices = %v, want one error", notices)
	}
	snap := st.Snapshot()
	if snap.Generated || snap.Question != "" {
		t.Errorf("state changed on unconfigured generator: %+v", snap)
	}
}

func TestGenerate_EmptyQuestion(t *testing.T) {
	st := newState()
	gen := &fakeGenerator{text: "unused"}
	store := &fakeStore{available: true}

	for _, q := range []string{"", "   ", "\n\t"} {
		notices := st.Generate(context.Background(), q, gen, store, slog.Default())
		if len(notices) != 1 || notices[0].Level != NoticeWarning {
			t.Errorf("Generate(%q) notices = %v, want one warning", q, notices)
		}
	}

	if gen.calls != 0 {
		t.Errorf("generator calls = %d, want 0 for empty questions", gen.calls)
	}
	if st.Snapshot().Generated {
		t.Error("state changed on empty question")
	}
}

func TestGenerate_StoreUnavailable(t *testing.T) {
	st := newState()
	gen := &fakeGenerator{text: "the answer"}
	store := &fakeStore{available: false}

	notices := st.Generate(context.Background(), "q", gen, store, slog.Default())

	snap := st.Snapshot()
	if snap.Solution != "the answer" || !snap.Generated {
		t.Errorf("state = %+v, want solution displayed despite unsaved history", snap)
	}
	if store.appends != 0 {
		t.Errorf("appends = %d, want 0 when store unavailable", store.appends)
	}
	if len(notices) != 1 || notices[0].Level != NoticeWarning {
		t.Errorf("notices = %v, want a not-saved warning", notices)
	}
	if !strings.Contains(notices[0].Message, "not saved") {
		t.Errorf("warning = %q, want it to mention history was not saved", notices[0].Message)
	}
}

func TestGenerate_FailureSkipsSave(t *testing.T) {
	st := newState()
	gen := &fakeGenerator{err: errors.New("quota exceeded")}
	store := &fakeStore{available: true}

	notices := st.Generate(context.Background(), "q", gen, store, slog.Default())

	snap := st.Snapshot()
	if !snap.Failed || !snap.Generated {
		t.Errorf("state = %+v, want generated with failure flagged", snap)
	}
	if !strings.Contains(snap.Solution, "quota exceeded") {
		t.Errorf("solution = %q, want the failure detail shown", snap.Solution)
	}
	if store.appends != 0 || store.invalidates != 0 {
		t.Errorf("store touched on failed generation: appends=%d invalidates=%d",
			store.appends, store.invalidates)
	}
	if len(notices) != 1 || notices[0].Level != NoticeError {
		t.Errorf("notices = %v, want one error", notices)
	}
}

func TestGenerate_WriteFailure(t *testing.T) {
	st := newState()
	gen := &fakeGenerator{text: "the answer"}
	store := &fakeStore{available: true, appendErr: errors.New("deadline exceeded")}

	notices := st.Generate(context.Background(), "q", gen, store, slog.Default())

	if store.invalidates != 0 {
		t.Error("cache invalidated despite failed write")
	}
	if len(notices) != 1 || notices[0].Level != NoticeError {
		t.Errorf("notices = %v (%v), want one error", notices, levels(notices))
	}
	// The solution itself is still shown.
	if st.Snapshot().Solution != "the answer" {
		t.Error("solution lost on write failure")
	}
}

func TestTotalPages(t *testing.T) {
	tests := []struct {
		n    int
		want int
	}{
		{0, 1},
		{1, 1},
		{5, 1},
		{6, 2},
		{10, 2},
		{12, 3},
	}
	for _, tt := range tests {
		if got := TotalPages(tt.n); got != tt.want {
			t.Errorf("TotalPages(%d) = %d, want %d", tt.n, got, tt.want)
		}
	}
}

func TestPagination_ClampsAtEdges(t *testing.T) {
	st := newState()

	// 12 records, 3 pages.
	st.PrevPage(12)
	if st.Snapshot().Page != 1 {
		t.Errorf("Page = %d, want prev from page 1 to stay at 1", st.Snapshot().Page)
	}

	st.NextPage(12)
	st.NextPage(12)
	if st.Snapshot().Page != 3 {
		t.Fatalf("Page = %d, want 3", st.Snapshot().Page)
	}
	st.NextPage(12)
	if st.Snapshot().Page != 3 {
		t.Errorf("Page = %d, want next from last page to stay put", st.Snapshot().Page)
	}
}

func TestPagination_EmptyHistory(t *testing.T) {
	st := newState()
	st.NextPage(0)
	st.PrevPage(0)
	if st.Snapshot().Page != 1 {
		t.Errorf("Page = %d, want clamped to [1,1] with no records", st.Snapshot().Page)
	}
}

func TestSnapshotAt_ResetsOnShrunkHistory(t *testing.T) {
	st := newState()
	st.NextPage(12)
	st.NextPage(12) // page 3

	if snap := st.SnapshotAt(12); snap.Page != 3 {
		t.Errorf("Page = %d, want the cursor kept while still valid", snap.Page)
	}
	if snap := st.SnapshotAt(4); snap.Page != 1 {
		t.Errorf("Page = %d, want reset to 1 when the page no longer exists", snap.Page)
	}
	if st.Snapshot().Page != 1 {
		t.Errorf("Page = %d, want the reset persisted", st.Snapshot().Page)
	}
}

func TestStashNotices_ShowOnce(t *testing.T) {
	st := newState()

	st.StashNotices([]Notice{{NoticeSuccess, "saved"}})
	st.StashNotices([]Notice{{NoticeWarning, "heads up"}})

	got := st.TakeNotices()
	if len(got) != 2 || got[0].Message != "saved" || got[1].Message != "heads up" {
		t.Errorf("TakeNotices = %v, want both stashed notices in order", got)
	}
	if again := st.TakeNotices(); len(again) != 0 {
		t.Errorf("TakeNotices second call = %v, want drained", again)
	}
}

func TestPageSlice(t *testing.T) {
	records := make([]history.Record, 12)
	for i := range records {
		records[i].Question = string(rune('a' + i))
	}

	if got := PageSlice(records, 1); len(got) != 5 || got[0].Question != "a" {
		t.Errorf("page 1 = %d records starting %q, want 5 starting \"a\"", len(got), got[0].Question)
	}
	if got := PageSlice(records, 3); len(got) != 2 || got[0].Question != "k" {
		t.Errorf("page 3 = %d records, want the final 2", len(got))
	}
	if got := PageSlice(records, 4); got != nil {
		t.Errorf("page past the end = %v, want nil", got)
	}
	if got := PageSlice(nil, 1); got != nil {
		t.Errorf("empty history slice = %v, want nil", got)
	}
}
