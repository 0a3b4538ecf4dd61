package web

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/example/slotscout/internal/archive"
	"github.com/example/slotscout/internal/internaltypes"
)

const adminPageSize = 50

func (s *Server) handleLoginForm(w http.ResponseWriter, r *http.Request) {
	s.render(w, "templates/login.html", tmplData{Title: "Admin login"})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	username := strings.TrimSpace(r.FormValue("username"))
	if err := s.Auth.Authenticate(username, r.FormValue("password")); err != nil {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusUnauthorized)
		s.render(w, "templates/login.html", tmplData{Title: "Admin login", Flash: "Invalid username/password"})
		return
	}
	if err := s.Auth.SetSession(w, r); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, "/admin/jobs", http.StatusFound)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.Auth.ClearSession(w)
	http.Redirect(w, r, "/admin/login", http.StatusFound)
}

// recentJobs prefers the archive and falls back to jobs still in memory.
func (s *Server) recentJobs(r *http.Request, limit int) ([]archive.Record, error) {
	if s.Archive != nil {
		return s.Archive.Recent(r.Context(), limit)
	}
	var out []archive.Record
	for _, st := range s.Jobs.List() {
		if !st.Done() {
			continue
		}
		rec := st.Record()
		rec.Report = ""
		out = append(out, rec)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *Server) handleAdminJobs(w http.ResponseWriter, r *http.Request) {
	limit := adminPageSize
	if n, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && n > 0 && n <= 500 {
		limit = n
	}
	recs, err := s.recentJobs(r, limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if r.URL.Query().Get("format") == "json" {
		if recs == nil {
			recs = []archive.Record{}
		}
		writeJSON(w, http.StatusOK, recs)
		return
	}
	s.render(w, "templates/jobs.html", tmplData{Title: "Scrape jobs", Jobs: recs})
}

func (s *Server) handleAdminJob(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if s.Archive != nil {
		rec, err := s.Archive.Get(r.Context(), id)
		switch {
		case err == nil:
			writeJSON(w, http.StatusOK, rec)
			return
		case !errors.Is(err, internaltypes.ErrNotFound):
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	}
	st, err := s.Jobs.Snapshot(id)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "Invalid session ID"})
		return
	}
	writeJSON(w, http.StatusOK, st.Record())
}
