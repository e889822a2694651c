package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/ratesync/internal/model"
)

var historyCmd = &cobra.Command{
	Use:   "history <jurisdiction>",
	Short: "Show rate periods for a jurisdiction",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		periods, err := st.History(ctx, strings.ToUpper(strings.TrimSpace(args[0])))
		if err != nil {
			return eris.Wrap(err, "history")
		}
		if len(periods) == 0 {
			fmt.Fprintln(os.Stderr, "No periods found.")
			return nil
		}

		formatHistory(os.Stdout, periods)
		return nil
	},
}

var changesCmd = &cobra.Command{
	Use:   "changes",
	Short: "Show period-over-period rate movement by jurisdiction",
	Long:  "Aggregates rate movement between adjacent periods, computed over facts linked to the same registry entity in both periods.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		changes, err := st.Changes(ctx)
		if err != nil {
			return eris.Wrap(err, "changes")
		}
		if len(changes) == 0 {
			fmt.Fprintln(os.Stderr, "No adjacent periods to compare.")
			return nil
		}

		formatChanges(os.Stdout, changes)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(changesCmd)
}

// formatHistory writes period summaries to w, newest first.
func formatHistory(out io.Writer, periods []model.PeriodSummary) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "EFFECTIVE\tEND\tFACILITIES\tMIN\tAVG\tMAX")
	_, _ = fmt.Fprintln(w, "---------\t---\t----------\t---\t---\t---")
	for _, p := range periods {
		end := "open"
		if p.EndDate != nil {
			end = p.EndDate.Format("2006-01-02")
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%.2f\t%.2f\t%.2f\n",
			p.EffectiveDate.Format("2006-01-02"), end, p.Facilities, p.MinRate, p.AvgRate, p.MaxRate)
	}
	_ = w.Flush()
}

// formatChanges writes per-jurisdiction rate movement to w.
func formatChanges(out io.Writer, changes []model.RateChange) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "STATE\tFACILITIES\tAVG_$\tAVG_%\tUP\tDOWN\tFLAT")
	_, _ = fmt.Fprintln(w, "-----\t----------\t-----\t-----\t--\t----\t----")
	for _, c := range changes {
		_, _ = fmt.Fprintf(w, "%s\t%d\t%+.2f\t%+.1f%%\t%d\t%d\t%d\n",
			c.Jurisdiction, c.Facilities, c.AvgChangeDollar, c.AvgChangePct,
			c.Increases, c.Decreases, c.Unchanged)
	}
	_ = w.Flush()
}
