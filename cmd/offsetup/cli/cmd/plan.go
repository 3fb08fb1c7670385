package cmd

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var planOutput string

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "List the steps install would run on this machine",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, rt, p, err := loadPlan(cmd.Context(), settings)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		switch planOutput {
		case "json":
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			type step struct {
				ID      string `json:"id"`
				Phase   string `json:"phase"`
				Kind    string `json:"kind"`
				Summary string `json:"summary"`
			}
			steps := make([]step, len(p.Steps))
			for i, s := range p.Steps {
				steps[i] = step{s.ID, s.Phase.String(), string(s.Kind()), s.Action.String()}
			}
			return enc.Encode(map[string]any{
				"manifest": p.Manifest,
				"platform": p.Platform,
				"runtime":  rt,
				"steps":    steps,
			})
		case "", "text":
			fmt.Fprintf(out, "%s on %s (%s)\n", p.Manifest, p.Platform, rt)
			w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "PHASE\tSTEP\tACTION\tFLAGS")
			for _, s := range p.Steps {
				flags := ""
				if s.FailSilently {
					flags += "fail_silently "
				}
				if s.SkipInstall {
					flags += "skip_install"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", s.Phase, s.ID, s.Action, flags)
			}
			return w.Flush()
		}
		return fmt.Errorf("unknown output format %q", planOutput)
	},
}

func init() {
	planCmd.Flags().StringVarP(&planOutput, "output", "o", "text", "text or json")
}
