package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/example/slotscout/internal/config"
	"github.com/example/slotscout/internal/domain/scrape"
	"github.com/example/slotscout/internal/domain/venue"
	"github.com/example/slotscout/internal/jobs"
	"github.com/example/slotscout/internal/progress"
	"github.com/example/slotscout/internal/report"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func newScrapeCmd() *cobra.Command {
	var (
		req       scrape.Request
		platform  string
		asJSON    bool
		asTable   bool
		quietProg bool
	)

	cmd := &cobra.Command{
		Use:   "scrape",
		Short: "Run one scrape in the foreground and print the report",
		RunE: func(cmd *cobra.Command, args []string) error {
			if asJSON && asTable {
				return fmt.Errorf("--json and --table are mutually exclusive")
			}
			verbose, _ := cmd.Flags().GetBool("verbose")
			req.Platform = scrape.Platform(platform)

			cfg, err := config.FromEnv()
			if err != nil {
				return err
			}
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			store, err := openArchive(ctx, cfg)
			if err != nil {
				return err
			}
			if store != nil {
				defer store.Close()
			}
			ads, err := buildAdapters(cfg)
			if err != nil {
				return err
			}
			orch := jobs.New(ads.registry, jobs.Options{Archive: store})

			id, err := orch.Submit(ctx, req)
			if err != nil {
				return err
			}
			events, err := orch.Events(id)
			if err != nil {
				return err
			}
			if err := drain(ctx, events, cmd.ErrOrStderr(), verbose, quietProg); err != nil {
				return err
			}
			// the job goroutine may still be unwinding after its terminal event
			if err := orch.Wait(ctx); err != nil {
				return err
			}

			st, err := orch.Result(id)
			if err != nil {
				return err
			}
			if !st.Success {
				return fmt.Errorf("scrape failed: %s", st.Error)
			}

			out := cmd.OutOrStdout()
			switch {
			case asJSON:
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				enc.SetEscapeHTML(false)
				venues := st.Venues
				if venues == nil {
					venues = []venue.Venue{}
				}
				return enc.Encode(venues)
			case asTable:
				renderSlotTable(out, st.Venues)
				return nil
			default:
				_, err := io.WriteString(out, st.Report)
				return err
			}
		},
	}

	f := cmd.Flags()
	f.StringVar(&platform, "platform", string(scrape.PlatformAYO), "ayo, gelora or all")
	f.StringVar(&req.Location, "location", "", "city or area, e.g. \"Jakarta Selatan\"")
	f.IntVar(&req.Sport, "sport", scrape.DefaultSport, "sport code")
	f.IntVar(&req.SortBy, "sortby", scrape.DefaultSortBy, "AYO sort order")
	f.StringVar(&req.StartDate, "start-date", "", "first date, YYYY-MM-DD (default today)")
	f.StringVar(&req.EndDate, "end-date", "", "last date, YYYY-MM-DD (default start date)")
	f.StringVar(&req.StartTime, "start-time", "", "earliest slot start, HH:MM")
	f.StringVar(&req.EndTime, "end-time", "", "latest slot start, HH:MM")
	f.IntVar(&req.MaxPages, "max-pages", 1, "listing pages per platform, 0 for all")
	f.IntVar(&req.MaxVenues, "max-venues", 0, "venues per platform, 0 for no limit")
	f.BoolVar(&req.CheapestFirst, "cheapest-first", false, "sort venues by lowest slot price")
	f.BoolVar(&asJSON, "json", false, "print venues as JSON")
	f.BoolVar(&asTable, "table", false, "print one row per available slot")
	f.BoolVarP(&quietProg, "quiet", "q", false, "suppress progress output")
	return cmd
}

// drain copies a job's events to w until the terminal event.
func drain(ctx context.Context, events *progress.Channel, w io.Writer, verbose, quiet bool) error {
	for {
		e, ok, err := events.Next(ctx, time.Second)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		if e.Terminal() {
			return nil
		}
		if quiet {
			continue
		}
		switch e.Kind {
		case progress.KindProgress:
			fmt.Fprintf(w, "[%s] %d/%d (%d%%)\n", e.Platform, e.Current, e.Total, e.Percent())
		case progress.KindLog:
			if verbose {
				fmt.Fprintln(w, e.Message)
			} else if text, keep := progress.FilterLines(e.Message); keep {
				fmt.Fprintln(w, text)
			}
		}
	}
}

func renderSlotTable(w io.Writer, vs []venue.Venue) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"Platform", "Venue", "Field", "Date", "Time", "Price"})
	for _, v := range vs {
		for _, f := range v.Fields {
			for _, s := range f.Slots {
				t.AppendRow(table.Row{
					strings.ToUpper(v.Platform), v.Name, f.Name, s.Date,
					s.StartTime + "-" + s.EndTime, report.SlotPrice(s),
				})
			}
		}
	}
	t.SetStyle(table.StyleRounded)
	t.Render()
}
