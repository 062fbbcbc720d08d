// Package session holds per-browser-session state and the flow that
// drives one "generate" action: call the generator, then persist the
// pair when both the generation and the store are healthy.
package session

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"solvedesk/internal/generator"
	"solvedesk/internal/history"
)

// PageSize is the fixed number of history records shown per page.
const PageSize = 5

// NoticeLevel classifies a status banner.
type NoticeLevel string

const (
	NoticeError   NoticeLevel = "error"
	NoticeWarning NoticeLevel = "warning"
	NoticeSuccess NoticeLevel = "success"
	NoticeInfo    NoticeLevel = "info"
)

// Notice is one user-visible status banner produced by an action.
type Notice struct {
	Level   NoticeLevel
	Message string
}

// State is the transient state owned by exactly one browser session:
// the current question/solution pair, whether a solution has been
// generated, and the 1-based history page cursor. It resets only on
// explicit session restart (a new cookie).
type State struct {
	mu sync.Mutex

	Question  string
	Solution  string
	Generated bool
	// Failed records whether the current solution is a failure message
	// rather than generated text. Replaces prefix-matching on the
	// solution string.
	Failed bool
	Page   int

	// pending holds notices stashed across a POST/redirect/GET hop so
	// banners survive the redirect and show exactly once.
	pending []Notice
}

// newState returns the initial session state.
func newState() *State {
	return &State{Page: 1}
}

// Snapshot is a copy-safe view of a State for rendering.
type Snapshot struct {
	Question  string
	Solution  string
	Generated bool
	Failed    bool
	Page      int
}

// Snapshot returns a copy of the current state under the lock.
func (st *State) Snapshot() Snapshot {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.snapshotLocked()
}

// SnapshotAt reconciles the page cursor against the current record
// count and returns the resulting snapshot in one critical section, so
// a render never mixes state from two instants. The cursor resets to 1
// when the record count shrank out from under it and the current page
// no longer exists.
func (st *State) SnapshotAt(totalRecords int) Snapshot {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.Page > TotalPages(totalRecords) {
		st.Page = 1
	}
	return st.snapshotLocked()
}

// snapshotLocked copies the state. Caller holds st.mu.
func (st *State) snapshotLocked() Snapshot {
	return Snapshot{
		Question:  st.Question,
		Solution:  st.Solution,
		Generated: st.Generated,
		Failed:    st.Failed,
		Page:      st.Page,
	}
}

// StashNotices parks an action's notices for the next full-page render
// after a redirect.
func (st *State) StashNotices(notices []Notice) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.pending = append(st.pending, notices...)
}

// TakeNotices returns and clears any stashed notices.
func (st *State) TakeNotices() []Notice {
	st.mu.Lock()
	defer st.mu.Unlock()
	notices := st.pending
	st.pending = nil
	return notices
}

// HistoryWriter is the slice of the history store the flow needs.
// *history.Store satisfies it; tests substitute a fake.
type HistoryWriter interface {
	Available() bool
	Append(ctx context.Context, question, solution string) error
	Invalidate()
}

// Generate runs the single user action: validate the question, call the
// generator, and persist the pair when generation succeeded and the
// store is available. Every fault is converted to a notice here and
// none propagates; the session simply keeps its prior state on early
// exits. The per-state lock serializes actions within one session.
func (st *State) Generate(ctx context.Context, q string, gen generator.Client, store HistoryWriter, logger *slog.Logger) []Notice {
	st.mu.Lock()
	defer st.mu.Unlock()

	if gen == nil {
		return []Notice{{NoticeError, "Solution generation is unavailable: the generation service is not configured."}}
	}
	if strings.TrimSpace(q) == "" {
		return []Notice{{NoticeWarning, "Please enter a question first."}}
	}

	st.Question = q
	text, err := gen.Generate(ctx, q)
	result := generator.Result{Text: text, Err: err}
	st.Generated = true

	if result.Failed() {
		st.Solution = result.FailureMessage()
		st.Failed = true
		logger.Error("generation failed", "error", err)
		// Failure text is not history; skip the save entirely.
		return []Notice{{NoticeError, result.FailureMessage()}}
	}

	st.Solution = result.Text
	st.Failed = false

	if !store.Available() {
		return []Notice{{NoticeWarning, "Solution generated, but history was not saved (history store is not configured)."}}
	}

	if err := store.Append(ctx, q, result.Text); err != nil {
		logger.Error("history save failed", "error", err)
		return []Notice{{NoticeError, "Failed to save to history: " + err.Error()}}
	}

	store.Invalidate()
	return []Notice{{NoticeSuccess, "Solution generated and saved to history."}}
}

// TotalPages returns the page count for n records, never less than 1.
func TotalPages(n int) int {
	if n <= 0 {
		return 1
	}
	return (n + PageSize - 1) / PageSize
}

// NextPage advances the cursor, silently clamped to the last page.
func (st *State) NextPage(totalRecords int) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.Page < TotalPages(totalRecords) {
		st.Page++
	}
}

// PrevPage moves the cursor back, silently clamped to page 1.
func (st *State) PrevPage(totalRecords int) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.Page > 1 {
		st.Page--
	}
}

// PageSlice returns the records for a 1-based page: entries
// [(page-1)*PageSize, page*PageSize) of the full newest-first list.
func PageSlice(records []history.Record, page int) []history.Record {
	start := (page - 1) * PageSize
	if start >= len(records) || start < 0 {
		return nil
	}
	end := start + PageSize
	if end > len(records) {
		end = len(records)
	}
	return records[start:end]
}
