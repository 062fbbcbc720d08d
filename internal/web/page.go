package web

import (
	"html/template"
	"net/http"

	"solvedesk/internal/buildinfo"
	"solvedesk/internal/history"
	"solvedesk/internal/session"
)

// PageData is the template context for the solver page. It is a pure
// projection: session snapshot, one page of history, and derived status
// flags for the sidebar.
type PageData struct {
	Notices []session.Notice

	Question     string
	Generated    bool
	Failed       bool
	SolutionHTML template.HTML

	StoreAvailable     bool
	GeneratorAvailable bool

	// HistoryLoaded is false when the store read failed; the history
	// section is hidden for that render.
	HistoryLoaded bool
	Records       []recordRow
	TotalRecords  int
	Page          int
	TotalPages    int
	HasPrev       bool
	HasNext       bool

	Version string
}

// recordRow is a display-friendly wrapper around one history record.
// Entries render collapsed, keyed by question text plus the date part
// of the normalized timestamp.
type recordRow struct {
	Question     string
	DateKey      string
	Timestamp    string
	SolutionHTML template.HTML
}

// buildPageData assembles the full render context for the current
// session. A history read fault becomes a notice and hides the history
// section; it never fails the render. The whole projection comes from
// one state snapshot so concurrent actions can't produce a mixed view.
func (s *Server) buildPageData(r *http.Request, st *session.State, notices []session.Notice) PageData {
	data := PageData{
		Notices:            notices,
		StoreAvailable:     s.store.Available(),
		GeneratorAvailable: s.generator != nil,
		Version:            buildinfo.Version,
	}

	var records []history.Record
	historyLoaded := false
	if data.StoreAvailable {
		var err error
		records, err = s.store.ListAll(r.Context())
		if err != nil {
			s.logger.Error("history read failed", "error", err)
			data.Notices = append(data.Notices, session.Notice{
				Level:   session.NoticeError,
				Message: "Error loading history: " + err.Error(),
			})
		} else {
			historyLoaded = true
		}
	}

	// SnapshotAt reconciles the page cursor against the fetched count
	// in the same critical section that copies the rest of the state.
	var snap session.Snapshot
	if historyLoaded {
		snap = st.SnapshotAt(len(records))
	} else {
		snap = st.Snapshot()
	}

	data.Question = snap.Question
	data.Generated = snap.Generated
	data.Failed = snap.Failed

	if snap.Generated {
		if snap.Failed {
			// Failure text is plain prose; never run it through markdown.
			data.SolutionHTML = template.HTML(template.HTMLEscapeString(snap.Solution))
		} else {
			data.SolutionHTML = renderMarkdown(snap.Solution)
		}
	}

	if !historyLoaded {
		return data
	}

	data.HistoryLoaded = true
	data.TotalRecords = len(records)
	data.Page = snap.Page
	data.TotalPages = session.TotalPages(len(records))
	data.HasPrev = snap.Page > 1
	data.HasNext = snap.Page < data.TotalPages

	for _, rec := range session.PageSlice(records, snap.Page) {
		data.Records = append(data.Records, recordRow{
			Question:     rec.Question,
			DateKey:      rec.TimestampKey(),
			Timestamp:    rec.TimestampString(),
			SolutionHTML: renderMarkdown(rec.Solution),
		})
	}

	return data
}
