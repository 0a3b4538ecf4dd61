package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/example/slotscout/internal/domain/scrape"
	"github.com/example/slotscout/internal/domain/venue"
	"github.com/example/slotscout/internal/internaltypes"
	"github.com/example/slotscout/internal/jobs"
	"github.com/example/slotscout/internal/progress"
)

const (
	maxBodyBytes    = 64 << 10
	autoCityTimeout = 5 * time.Second
)

// flexInt accepts a JSON number, a numeric string, "" or null. The browser
// form posts select values as strings.
type flexInt struct {
	Value int
	Set   bool
}

func (f *flexInt) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		return nil
	}
	if unq, err := strconv.Unquote(s); err == nil {
		s = strings.TrimSpace(unq)
	}
	if s == "" {
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("not an integer: %s", s)
	}
	f.Value, f.Set = n, true
	return nil
}

type submitBody struct {
	Platform      string  `json:"platform"`
	Location      string  `json:"lokasi"`
	Sport         flexInt `json:"cabor"`
	SortBy        flexInt `json:"sortby"`
	StartDate     string  `json:"start_date"`
	EndDate       string  `json:"end_date"`
	StartTime     string  `json:"start_time"`
	EndTime       string  `json:"end_time"`
	MaxPages      flexInt `json:"max_pages"`
	MaxVenues     flexInt `json:"max_venues"`
	CheapestFirst bool    `json:"cheapest_first"`
}

// request maps the form onto a scrape request. A missing max_pages means one
// page; an explicit 0 means every page.
func (b submitBody) request() scrape.Request {
	req := scrape.Request{
		Platform:      scrape.Platform(b.Platform),
		Location:      b.Location,
		Sport:         b.Sport.Value,
		SortBy:        b.SortBy.Value,
		StartDate:     b.StartDate,
		EndDate:       b.EndDate,
		StartTime:     b.StartTime,
		EndTime:       b.EndTime,
		MaxPages:      b.MaxPages.Value,
		MaxVenues:     b.MaxVenues.Value,
		CheapestFirst: b.CheapestFirst,
	}
	if !b.MaxPages.Set {
		req.MaxPages = 1
	}
	return req
}

func (s *Server) handleCheckLimit(w http.ResponseWriter, r *http.Request) {
	allowed, remaining := s.Limiter.Check(clientIP(r))
	writeJSON(w, http.StatusOK, map[string]any{
		"allowed":            allowed,
		"seconds_remaining":  remaining,
		"rate_limit_seconds": int(s.Limiter.Cooldown().Seconds()),
	})
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	origin := clientIP(r)
	slot, remaining := s.Limiter.Reserve(origin)
	if slot == nil {
		s.Metrics.RateLimited()
		limited := &internaltypes.RateLimitedError{SecondsRemaining: remaining}
		w.Header().Set("Retry-After", strconv.Itoa(remaining))
		writeJSON(w, http.StatusTooManyRequests, map[string]any{
			"success":           false,
			"error":             limited.Error(),
			"rate_limited":      true,
			"seconds_remaining": remaining,
		})
		return
	}

	var body submitBody
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		slot.Cancel()
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": "invalid request body: " + err.Error()})
		return
	}

	id, err := s.Jobs.Submit(r.Context(), body.request())
	if err != nil {
		slot.Cancel()
		status := http.StatusInternalServerError
		if internaltypes.IsValidation(err) {
			status = http.StatusBadRequest
		}
		writeJSON(w, status, map[string]any{"success": false, "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "session_id": id})
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	events, err := s.Jobs.Events(id)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "Invalid session ID"})
		return
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	sse := &sseWriter{w: w, rc: http.NewResponseController(w)}
	poll := s.StreamPoll
	if poll <= 0 {
		poll = time.Second
	}

	for {
		e, ok, err := events.Next(r.Context(), poll)
		if err != nil {
			slog.DebugContext(r.Context(), "progress reader gone", "job_id", id, "err", err)
			return
		}
		if !ok {
			if err := sse.comment("heartbeat"); err != nil {
				return
			}
			// the terminal event may have been consumed elsewhere; fall back
			// to the job state
			if st, err := s.Jobs.Snapshot(id); err == nil && st.Done() {
				if st.Success {
					_ = sse.event("complete", map[string]any{"success": true})
				} else {
					_ = sse.event("error", map[string]any{"error": st.Error})
				}
				return
			}
			continue
		}

		switch e.Kind {
		case progress.KindComplete:
			_ = sse.event("complete", map[string]any{"success": true})
			return
		case progress.KindError:
			_ = sse.event("error", map[string]any{"error": e.Message})
			return
		case progress.KindProgress:
			err = sse.event("progress", map[string]any{
				"platform": e.Platform,
				"current":  e.Current,
				"total":    e.Total,
				"percent":  e.Percent(),
			})
		case progress.KindLog:
			if text, keep := progress.FilterLines(e.Message); keep {
				err = sse.event("", map[string]any{"message": text})
			}
		}
		if err != nil {
			return
		}
	}
}

type sseWriter struct {
	w  io.Writer
	rc *http.ResponseController
}

func (s *sseWriter) event(name string, data any) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(data); err != nil {
		return err
	}
	b := bytes.TrimSuffix(buf.Bytes(), []byte("\n"))
	if name != "" {
		if _, err := fmt.Fprintf(s.w, "event: %s\n", name); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", b); err != nil {
		return err
	}
	return s.flush()
}

func (s *sseWriter) comment(text string) error {
	if _, err := fmt.Fprintf(s.w, ": %s\n\n", text); err != nil {
		return err
	}
	return s.flush()
}

func (s *sseWriter) flush() error {
	if err := s.rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
		return err
	}
	return nil
}

// finished resolves a job id for the result endpoints, writing the error
// response itself when the job is unknown or still running.
func (s *Server) finished(w http.ResponseWriter, id string) (jobs.State, bool) {
	st, err := s.Jobs.Result(id)
	switch {
	case errors.Is(err, internaltypes.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "Invalid session ID"})
		return jobs.State{}, false
	case errors.Is(err, internaltypes.ErrNotReady):
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Scraping not yet completed"})
		return jobs.State{}, false
	case err != nil:
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return jobs.State{}, false
	}
	if !st.Success {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"success": false, "error": st.Error})
		return jobs.State{}, false
	}
	return st, true
}

func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	st, ok := s.finished(w, r.PathValue("id"))
	if !ok {
		return
	}
	venues := st.Venues
	if venues == nil {
		venues = []venue.Venue{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data":    venues,
		"output":  st.Report,
		"count":   st.Count,
	})
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	format := r.PathValue("format")
	if format != "json" && format != "txt" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Invalid format"})
		return
	}
	st, ok := s.finished(w, r.PathValue("id"))
	if !ok {
		return
	}

	if format == "txt" {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Content-Disposition", `attachment; filename="venues_output.txt"`)
		_, _ = io.WriteString(w, st.Report)
		return
	}
	venues := st.Venues
	if venues == nil {
		venues = []venue.Venue{}
	}
	w.Header().Set("Content-Disposition", `attachment; filename="venues_data.json"`)
	writeJSON(w, http.StatusOK, venues)
}

func (s *Server) handleAutoCity(w http.ResponseWriter, r *http.Request) {
	term := strings.TrimSpace(r.URL.Query().Get("term"))
	if term == "" || s.Cities == nil {
		writeJSON(w, http.StatusOK, []any{})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), autoCityTimeout)
	defer cancel()
	body, err := s.Cities.AutoCity(ctx, term)
	if err != nil {
		slog.WarnContext(ctx, "autocity failed", "term", term, "err", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(body)
}
