// Package web serves the solvedesk single-page UI: one question form,
// the generated solution, and the paginated history list.
package web

import (
	"encoding/json"
	"html/template"
	"log/slog"
	"net/http"

	"solvedesk/internal/buildinfo"
	"solvedesk/internal/generator"
	"solvedesk/internal/history"
	"solvedesk/internal/session"
)

// sessionCookie names the browser session cookie.
const sessionCookie = "solvedesk_session"

// Config carries the Server's collaborators.
type Config struct {
	Generator generator.Client // nil when no API key is configured
	Store     *history.Store
	Sessions  *session.Manager
	Logger    *slog.Logger
}

// Server is the HTTP surface. It owns no domain state of its own: every
// render is a projection of the session state and a store read.
type Server struct {
	generator generator.Client
	store     *history.Store
	sessions  *session.Manager
	templates map[string]*template.Template
	logger    *slog.Logger
}

// NewServer creates the web server.
func NewServer(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		generator: cfg.Generator,
		store:     cfg.Store,
		sessions:  cfg.Sessions,
		templates: loadTemplates(),
		logger:    logger,
	}
}

// RegisterRoutes adds all UI routes to a mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("POST /generate", s.handleGenerate)
	mux.HandleFunc("POST /history/next", s.handleHistoryNext)
	mux.HandleFunc("POST /history/prev", s.handleHistoryPrev)
	mux.HandleFunc("GET /healthz", s.handleHealthz)
}

// ensureSession returns the state for the request's session cookie,
// starting a new session (and setting the cookie) when the cookie is
// missing, unknown, or expired.
func (s *Server) ensureSession(w http.ResponseWriter, r *http.Request) *session.State {
	if c, err := r.Cookie(sessionCookie); err == nil {
		if st, ok := s.sessions.Get(c.Value); ok {
			return st
		}
	}

	id, st := s.sessions.Start()
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return st
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	st := s.ensureSession(w, r)
	s.render(w, r, "index.html", s.buildPageData(r, st, st.TakeNotices()))
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	st := s.ensureSession(w, r)

	q := r.FormValue("question")
	notices := st.Generate(r.Context(), q, s.generator, s.store, s.logger)

	// htmx swaps the response in place; plain form posts go through
	// POST/redirect/GET so a refresh can't re-submit the question. The
	// notices ride along in the session for the redirected render.
	if r.Header.Get("HX-Request") == "true" {
		s.render(w, r, "index.html", s.buildPageData(r, st, notices))
		return
	}
	st.StashNotices(notices)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) handleHistoryNext(w http.ResponseWriter, r *http.Request) {
	s.handlePageTurn(w, r, func(st *session.State, total int) { st.NextPage(total) })
}

func (s *Server) handleHistoryPrev(w http.ResponseWriter, r *http.Request) {
	s.handlePageTurn(w, r, func(st *session.State, total int) { st.PrevPage(total) })
}

// handlePageTurn applies a pagination transition against the current
// record count, then re-renders. Out-of-range turns clamp silently.
func (s *Server) handlePageTurn(w http.ResponseWriter, r *http.Request, turn func(*session.State, int)) {
	st := s.ensureSession(w, r)

	total := 0
	if s.store.Available() {
		if records, err := s.store.ListAll(r.Context()); err == nil {
			total = len(records)
		}
	}
	turn(st, total)

	if r.Header.Get("HX-Request") == "true" {
		s.render(w, r, "index.html", s.buildPageData(r, st, nil))
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	status := map[string]any{
		"status":    "ok",
		"store":     s.store.Available(),
		"generator": s.generator != nil,
		"sessions":  s.sessions.Count(),
		"build":     buildinfo.Info(),
	}
	if err := json.NewEncoder(w).Encode(status); err != nil {
		s.logger.Debug("failed to write JSON response", "error", err)
	}
}
