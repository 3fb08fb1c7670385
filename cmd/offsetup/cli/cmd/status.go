package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/balaji-balu/offsetup/internal/journal"
	"github.com/balaji-balu/offsetup/internal/natsbroker"
	"github.com/balaji-balu/offsetup/internal/report"
)

var (
	statusJSON  bool
	statusWatch bool
)

var statusCmd = &cobra.Command{
	Use:   "status [run-id]",
	Short: "Show the latest or a given journaled run",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		if statusWatch {
			return watch(cmd, out)
		}

		store, err := journal.Open(settings.Journal.Path)
		if err != nil {
			return err
		}
		defer store.Close()

		var r *report.Report
		if len(args) == 1 {
			r, err = store.Get(args[0])
		} else {
			r, err = store.Latest()
		}
		if errors.Is(err, journal.ErrNotFound) {
			return fmt.Errorf("no run recorded in %s", settings.Journal.Path)
		}
		if err != nil {
			return err
		}
		return printReport(out, r)
	},
}

// watch prints reports published on the NATS subject until interrupted.
func watch(cmd *cobra.Command, out io.Writer) error {
	if settings.Report.NATSURL == "" {
		return errors.New("--watch needs report.nats_url")
	}
	b, err := natsbroker.New(settings.Report.NATSURL, log)
	if err != nil {
		return err
	}
	defer b.Close()

	ctx := cmd.Context()
	reports := make(chan report.Report, 8)
	sub, err := natsbroker.Subscribe(b, settings.Report.NATSSubject, func(r report.Report) {
		select {
		case reports <- r:
		case <-ctx.Done():
		}
	})
	if err != nil {
		return err
	}
	defer sub.Unsubscribe()

	fmt.Fprintf(out, "watching %s\n", settings.Report.NATSSubject)
	for {
		select {
		case <-ctx.Done():
			return nil
		case r := <-reports:
			if err := printReport(out, &r); err != nil {
				return err
			}
		}
	}
}

func printReport(out io.Writer, r *report.Report) error {
	if statusJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	}
	fmt.Fprintf(out, "run %s: %s on %s, %s\n", r.RunID, r.Manifest, r.Platform, r.Status)
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "STEP\tSTATE\tDETAIL")
	for _, s := range r.Steps {
		detail := s.Reason
		if s.State == report.StateFailed {
			detail = s.ErrorKind + ": " + s.Error
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", s.ID, s.State, detail)
	}
	return w.Flush()
}

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "print the report as JSON")
	statusCmd.Flags().BoolVarP(&statusWatch, "watch", "w", false, "follow reports published on report.nats_subject")
}
