package platform

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/example/slotscout/internal/domain/scrape"
	"github.com/example/slotscout/internal/domain/venue"
	"github.com/example/slotscout/internal/progress"
	"github.com/stretchr/testify/require"
)

type namedAdapter scrape.Platform

func (n namedAdapter) Platform() scrape.Platform { return scrape.Platform(n) }

func (n namedAdapter) Scrape(context.Context, scrape.Request, progress.Reporter) ([]venue.Venue, error) {
	return nil, nil
}

func TestRegistrySelect(t *testing.T) {
	reg := NewRegistry(namedAdapter(scrape.PlatformGelora), namedAdapter(scrape.PlatformAYO))
	require.Equal(t, []string{"ayo", "gelora"}, reg.Names())

	testCases := []struct {
		platform scrape.Platform
		want     []scrape.Platform
	}{
		{scrape.PlatformAYO, []scrape.Platform{scrape.PlatformAYO}},
		{scrape.PlatformGelora, []scrape.Platform{scrape.PlatformGelora}},
		{scrape.PlatformAll, []scrape.Platform{scrape.PlatformAYO, scrape.PlatformGelora}},
	}
	for _, tc := range testCases {
		t.Run(string(tc.platform), func(t *testing.T) {
			got, err := reg.Select(scrape.Request{Platform: tc.platform})
			require.NoError(t, err)
			var names []scrape.Platform
			for _, a := range got {
				names = append(names, a.Platform())
			}
			require.Equal(t, tc.want, names)
		})
	}

	_, err := NewRegistry(namedAdapter(scrape.PlatformAYO)).Select(scrape.Request{Platform: scrape.PlatformAll})
	require.ErrorContains(t, err, "gelora")
}

func TestPacer(t *testing.T) {
	ctx := context.Background()
	require.NoError(t, NewPacer(0).Wait(ctx))
	require.NoError(t, NewPacer(0).Wait(ctx))

	var nilPacer *Pacer
	require.NoError(t, nilPacer.Wait(ctx))

	p := NewPacer(time.Hour)
	require.NoError(t, p.Wait(ctx), "first wait is free")

	short, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	require.Error(t, p.Wait(short), "second wait would exceed the deadline")
}

func TestFetchDocument(t *testing.T) {
	var gotUA, gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		gotUA = r.UserAgent()
		gotQuery = r.URL.Query().Get("page")
		_, _ = w.Write([]byte(`<html><body><div class="card">one</div><div class="card">two</div></body></html>`))
	}))
	defer srv.Close()

	c := NewClient(ClientOptions{BaseURL: srv.URL, Timeout: time.Second, TracerName: "platform-test"})
	doc, err := FetchDocument(context.Background(), c, "/list", map[string]string{"page": "2"})
	require.NoError(t, err)
	require.Equal(t, 2, doc.Find("div.card").Length())
	require.Equal(t, DefaultUserAgent, gotUA)
	require.Equal(t, "2", gotQuery)

	_, err = FetchDocument(context.Background(), c, "/missing", nil)
	require.ErrorContains(t, err, "404")
}
