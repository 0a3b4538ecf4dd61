package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/example/slotscout/internal/archive"
	"github.com/example/slotscout/internal/config"
	"github.com/example/slotscout/internal/internaltypes"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func newJobCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "job",
		Short: "Inspect archived scrape jobs",
	}
	cmd.AddCommand(newJobListCmd())
	cmd.AddCommand(newJobShowCmd())
	return cmd
}

// withArchive opens the configured archive for the duration of fn.
func withArchive(fn func(ctx context.Context, a archive.Archive) error) error {
	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	a, err := openArchive(ctx, cfg)
	if err != nil {
		return err
	}
	if a == nil {
		return errors.New("no archive configured: set DATABASE_URL or ARCHIVE_PATH")
	}
	defer a.Close()
	return fn(ctx, a)
}

func newJobListCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent jobs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withArchive(func(ctx context.Context, a archive.Archive) error {
				recs, err := a.Recent(ctx, limit)
				if err != nil {
					return err
				}
				renderJobTable(cmd.OutOrStdout(), recs)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "max jobs to list")
	return cmd
}

func renderJobTable(w io.Writer, recs []archive.Record) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"ID", "Platform", "Location", "Dates", "Result", "Venues", "Finished"})
	for _, r := range recs {
		result := "ok"
		if !r.Success {
			result = "failed"
		}
		dates := r.StartDate
		if r.EndDate != "" && r.EndDate != r.StartDate {
			dates += " .. " + r.EndDate
		}
		t.AppendRow(table.Row{
			r.ID, r.Platform, r.Location, dates, result, r.VenueCount,
			r.FinishedAt.Local().Format("2006-01-02 15:04"),
		})
	}
	t.SetStyle(table.StyleRounded)
	t.Render()
}

func newJobShowCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Print the report of an archived job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withArchive(func(ctx context.Context, a archive.Archive) error {
				rec, err := a.Get(ctx, args[0])
				if errors.Is(err, internaltypes.ErrNotFound) {
					return fmt.Errorf("job %s not found", args[0])
				}
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if asJSON {
					enc := json.NewEncoder(out)
					enc.SetIndent("", "  ")
					enc.SetEscapeHTML(false)
					return enc.Encode(rec)
				}
				if !rec.Success {
					fmt.Fprintf(out, "job %s failed: %s\n", rec.ID, rec.Error)
					return nil
				}
				_, err = io.WriteString(out, rec.Report)
				return err
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full record as JSON")
	return cmd
}
