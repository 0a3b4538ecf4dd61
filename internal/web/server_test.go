package web

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/example/slotscout/internal/auth"
	"github.com/example/slotscout/internal/domain/scrape"
	"github.com/example/slotscout/internal/domain/venue"
	"github.com/example/slotscout/internal/jobs"
	"github.com/example/slotscout/internal/metrics"
	"github.com/example/slotscout/internal/platform"
	"github.com/example/slotscout/internal/progress"
	"github.com/example/slotscout/internal/ratelimit"
	"github.com/gorilla/securecookie"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type stubAdapter struct {
	platform scrape.Platform
	gate     chan struct{}
	err      error
}

func (s *stubAdapter) Platform() scrape.Platform { return s.platform }

func (s *stubAdapter) Scrape(ctx context.Context, _ scrape.Request, r progress.Reporter) ([]venue.Venue, error) {
	if s.gate != nil {
		<-s.gate
	}
	r.Logf("API URL: https://internal.example/secret")
	r.Logf("Found venue: Senayan -> https://ayo.co.id/v/senayan")
	r.Progress(string(s.platform), 1, 1)
	if s.err != nil {
		return nil, s.err
	}
	return []venue.Venue{{
		Name: "Senayan",
		URL:  "https://ayo.co.id/v/senayan",
		Fields: []venue.Field{{
			Name:   "Court 1",
			Status: "1 slots available",
			Slots:  []venue.TimeSlot{{Date: "2026-03-14", StartTime: "07:00", EndTime: "08:00", Price: 150000}},
		}},
	}}, nil
}

type stubCities struct{ err error }

func (s stubCities) AutoCity(_ context.Context, term string) (json.RawMessage, error) {
	if s.err != nil {
		return nil, s.err
	}
	return json.RawMessage(`[{"value":"Kota ` + term + `"}]`), nil
}

func newTestServer(t *testing.T, adapters ...platform.Adapter) (*Server, *httptest.Server) {
	t.Helper()
	s := &Server{
		Jobs:       jobs.New(platform.NewRegistry(adapters...), jobs.Options{}),
		Limiter:    ratelimit.New(120 * time.Second),
		Cities:     stubCities{},
		Metrics:    metrics.New(),
		StreamPoll: 20 * time.Millisecond,
	}
	srv := httptest.NewServer(s.Routes())
	t.Cleanup(srv.Close)
	return s, srv
}

func postJSON(t *testing.T, srv *httptest.Server, path, body string, headers map[string]string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	var out map[string]any
	require.NoError(t, json.NewDecoder(res.Body).Decode(&out))
	return res, out
}

func get(t *testing.T, srv *httptest.Server, path string) (*http.Response, string) {
	t.Helper()
	res, err := http.Get(srv.URL + path)
	require.NoError(t, err)
	defer res.Body.Close()
	b, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	return res, string(b)
}

func TestSubmitStreamResult(t *testing.T) {
	_, srv := newTestServer(t, &stubAdapter{platform: scrape.PlatformAYO})
	origin := map[string]string{"X-Forwarded-For": "203.0.113.7, 10.0.0.1"}

	res, body := postJSON(t, srv, "/scrape", `{"platform":"ayo","cabor":"7","start_date":"2026-03-14","max_pages":"2"}`, origin)
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Equal(t, true, body["success"])
	id, _ := body["session_id"].(string)
	require.NotEmpty(t, id)

	res, stream := get(t, srv, "/scrape/progress/"+id)
	require.Equal(t, "text/event-stream", res.Header.Get("Content-Type"))
	require.Contains(t, stream, `data: {"message":"Found venue: Senayan -> https://ayo.co.id/v/senayan"}`)
	require.Contains(t, stream, `data: {"message":"[AYO] Starting AYO scraper..."}`)
	require.Contains(t, stream, "event: progress\ndata: {\"current\":1,\"percent\":100,\"platform\":\"ayo\",\"total\":1}")
	require.NotContains(t, stream, "API URL")
	require.True(t, strings.HasSuffix(stream, "event: complete\ndata: {\"success\":true}\n\n"))

	res, raw := get(t, srv, "/scrape/result/"+id)
	require.Equal(t, http.StatusOK, res.StatusCode)
	var result struct {
		Success bool          `json:"success"`
		Count   int           `json:"count"`
		Output  string        `json:"output"`
		Data    []venue.Venue `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(raw), &result))
	require.True(t, result.Success)
	require.Equal(t, 1, result.Count)
	require.Len(t, result.Data, 1)
	require.Equal(t, "ayo", result.Data[0].Platform)
	require.Contains(t, result.Output, "Rp 150,000")

	res, txt := get(t, srv, "/scrape/download/"+id+"/txt")
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Contains(t, res.Header.Get("Content-Disposition"), "venues_output.txt")
	require.Equal(t, result.Output, txt)

	res, _ = get(t, srv, "/scrape/download/"+id+"/csv")
	require.Equal(t, http.StatusBadRequest, res.StatusCode)

	// same origin inside the cooldown
	res, body = postJSON(t, srv, "/scrape", `{}`, origin)
	require.Equal(t, http.StatusTooManyRequests, res.StatusCode)
	require.Equal(t, true, body["rate_limited"])
	require.NotEmpty(t, res.Header.Get("Retry-After"))
	require.Contains(t, body["error"], "Rate limit exceeded. Please wait")

	_, limit := get(t, srv, "/scrape/check-limit")
	require.Contains(t, limit, `"rate_limit_seconds":120`)
}

func TestSubmitValidationDoesNotStartCooldown(t *testing.T) {
	s, srv := newTestServer(t, &stubAdapter{platform: scrape.PlatformAYO})

	res, body := postJSON(t, srv, "/scrape", `{"platform":"tokopedia"}`, nil)
	require.Equal(t, http.StatusBadRequest, res.StatusCode)
	require.Equal(t, false, body["success"])
	require.Contains(t, body["error"], "platform")

	res, _ = postJSON(t, srv, "/scrape", `{"cabor":"tennis"}`, nil)
	require.Equal(t, http.StatusBadRequest, res.StatusCode)

	require.Equal(t, 0, s.Limiter.Len())
}

func TestConcurrentSubmitsFromOneOrigin(t *testing.T) {
	_, srv := newTestServer(t, &stubAdapter{platform: scrape.PlatformAYO})

	const n = 8
	var wg sync.WaitGroup
	codes := make(chan int, n)
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			req, err := http.NewRequest(http.MethodPost, srv.URL+"/scrape", strings.NewReader(`{"start_date":"2026-03-14"}`))
			if err != nil {
				codes <- 0
				return
			}
			req.Header.Set("X-Real-IP", "198.51.100.4")
			res, err := http.DefaultClient.Do(req)
			if err != nil {
				codes <- 0
				return
			}
			_, _ = io.Copy(io.Discard, res.Body)
			res.Body.Close()
			codes <- res.StatusCode
		}()
	}
	close(start)
	wg.Wait()
	close(codes)

	got := map[int]int{}
	for c := range codes {
		got[c]++
	}
	require.Equal(t, map[int]int{http.StatusOK: 1, http.StatusTooManyRequests: n - 1}, got)
}

func TestResultStates(t *testing.T) {
	gate := make(chan struct{})
	s, srv := newTestServer(t,
		&stubAdapter{platform: scrape.PlatformAYO, gate: gate},
		&stubAdapter{platform: scrape.PlatformGelora, err: errors.New("gelora is down")},
	)

	res, body := get(t, srv, "/scrape/result/unknown")
	require.Equal(t, http.StatusNotFound, res.StatusCode)
	require.Contains(t, body, "Invalid session ID")
	res, _ = get(t, srv, "/scrape/progress/unknown")
	require.Equal(t, http.StatusNotFound, res.StatusCode)

	running, err := s.Jobs.Submit(context.Background(), scrape.Request{})
	require.NoError(t, err)
	res, body = get(t, srv, "/scrape/result/"+running)
	require.Equal(t, http.StatusBadRequest, res.StatusCode)
	require.Contains(t, body, "Scraping not yet completed")
	close(gate)

	failed, err := s.Jobs.Submit(context.Background(), scrape.Request{Platform: scrape.PlatformGelora})
	require.NoError(t, err)
	_, stream := get(t, srv, "/scrape/progress/"+failed)
	require.True(t, strings.HasSuffix(stream, "event: error\ndata: {\"error\":\"gelora is down\"}\n\n"))

	res, body = get(t, srv, "/scrape/result/"+failed)
	require.Equal(t, http.StatusInternalServerError, res.StatusCode)
	require.Contains(t, body, "gelora is down")
}

func TestProgressFallsBackToJobState(t *testing.T) {
	s, srv := newTestServer(t, &stubAdapter{platform: scrape.PlatformAYO})

	id, err := s.Jobs.Submit(context.Background(), scrape.Request{})
	require.NoError(t, err)

	// another reader takes every event, terminal one included
	events, err := s.Jobs.Events(id)
	require.NoError(t, err)
	for {
		e, ok, err := events.Next(context.Background(), 5*time.Second)
		require.NoError(t, err)
		require.True(t, ok)
		if e.Terminal() {
			break
		}
	}

	_, stream := get(t, srv, "/scrape/progress/"+id)
	require.Equal(t, ": heartbeat\n\nevent: complete\ndata: {\"success\":true}\n\n", stream)
}

func TestAutoCity(t *testing.T) {
	s, srv := newTestServer(t)

	_, body := get(t, srv, "/autocity?term=")
	require.JSONEq(t, `[]`, body)

	_, body = get(t, srv, "/autocity?term=Bandung")
	require.JSONEq(t, `[{"value":"Kota Bandung"}]`, body)

	s.Cities = stubCities{err: errors.New("upstream 502")}
	res, body := get(t, srv, "/autocity?term=Bandung")
	require.Equal(t, http.StatusInternalServerError, res.StatusCode)
	require.Contains(t, body, "upstream 502")
}

func TestIndexAndHealth(t *testing.T) {
	_, srv := newTestServer(t)

	res, body := get(t, srv, "/")
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Contains(t, body, "Venue Slot Finder")
	require.Contains(t, body, `data-cooldown="120"`)

	res, body = get(t, srv, "/healthz")
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Equal(t, "ok\n", body)

	res, body = get(t, srv, "/metrics")
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Contains(t, body, "slotscout_jobs_running")

	res, _ = get(t, srv, "/admin/jobs")
	require.Equal(t, http.StatusNotFound, res.StatusCode, "admin is off without auth")
}

func TestAdminSession(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)
	store, err := auth.NewStore("admin", string(hash), securecookie.GenerateRandomKey(32), nil)
	require.NoError(t, err)

	s := &Server{
		Jobs:    jobs.New(platform.NewRegistry(&stubAdapter{platform: scrape.PlatformAYO}), jobs.Options{}),
		Limiter: ratelimit.New(time.Minute),
		Auth:    store,
	}
	id, err := s.Jobs.Submit(context.Background(), scrape.Request{StartDate: "2026-03-14"})
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Jobs.Wait(ctx))

	srv := httptest.NewServer(s.Routes())
	defer srv.Close()
	client := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }}

	res, err := client.Get(srv.URL + "/admin/jobs")
	require.NoError(t, err)
	res.Body.Close()
	require.Equal(t, http.StatusUnauthorized, res.StatusCode)

	res, err = client.PostForm(srv.URL+"/admin/login", url.Values{"username": {"admin"}, "password": {"wrong"}})
	require.NoError(t, err)
	res.Body.Close()
	require.Equal(t, http.StatusUnauthorized, res.StatusCode)

	res, err = client.PostForm(srv.URL+"/admin/login", url.Values{"username": {"admin"}, "password": {"s3cret"}})
	require.NoError(t, err)
	res.Body.Close()
	require.Equal(t, http.StatusFound, res.StatusCode)
	cookies := res.Cookies()
	require.Len(t, cookies, 1)

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/admin/jobs?format=json", nil)
	req.AddCookie(cookies[0])
	res, err = client.Do(req)
	require.NoError(t, err)
	var recs []map[string]any
	require.NoError(t, json.NewDecoder(res.Body).Decode(&recs))
	res.Body.Close()
	require.Len(t, recs, 1)
	require.Equal(t, id, recs[0]["id"])

	req, _ = http.NewRequest(http.MethodGet, srv.URL+"/admin/jobs/"+id, nil)
	req.AddCookie(cookies[0])
	res, err = client.Do(req)
	require.NoError(t, err)
	b, _ := io.ReadAll(res.Body)
	res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Contains(t, string(b), "Senayan")

	req, _ = http.NewRequest(http.MethodGet, srv.URL+"/admin/jobs", nil)
	req.AddCookie(cookies[0])
	res, err = client.Do(req)
	require.NoError(t, err)
	b, _ = io.ReadAll(res.Body)
	res.Body.Close()
	require.Contains(t, string(b), "/admin/jobs/"+id)
}

func TestClientIP(t *testing.T) {
	testCases := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{name: "forwarded chain", headers: map[string]string{"X-Forwarded-For": " 198.51.100.2 , 10.0.0.1"}, remote: "10.0.0.1:5555", want: "198.51.100.2"},
		{name: "real ip", headers: map[string]string{"X-Real-IP": "198.51.100.3"}, remote: "10.0.0.1:5555", want: "198.51.100.3"},
		{name: "peer", remote: "192.0.2.9:41000", want: "192.0.2.9"},
		{name: "peer without port", remote: "192.0.2.10", want: "192.0.2.10"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tc.remote
			for k, v := range tc.headers {
				r.Header.Set(k, v)
			}
			require.Equal(t, tc.want, clientIP(r))
		})
	}
}

func TestFlexInt(t *testing.T) {
	var b submitBody
	require.NoError(t, json.Unmarshal([]byte(`{"cabor":"12","sortby":null,"max_venues":3,"max_pages":""}`), &b))
	req := b.request()
	require.Equal(t, 12, req.Sport)
	require.Equal(t, 0, req.SortBy)
	require.Equal(t, 3, req.MaxVenues)
	require.Equal(t, 1, req.MaxPages, "blank pages means one page")

	require.NoError(t, json.Unmarshal([]byte(`{"max_pages":0}`), &b))
	require.Equal(t, 0, b.request().MaxPages)
}
