package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/ratesync/internal/model"
	"github.com/sells-group/ratesync/internal/store"
)

var statusLimit int

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show match coverage and recent collections",
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

		summary, err := st.MatchSummary(ctx)
		if err != nil {
			return eris.Wrap(err, "status")
		}
		collections, err := st.RecentCollections(ctx, statusLimit)
		if err != nil {
			return eris.Wrap(err, "status")
		}

		formatMatchSummary(os.Stdout, summary)
		fmt.Fprintln(os.Stdout)
		formatCollections(os.Stdout, collections)
		return nil
	},
}

func init() {
	statusCmd.Flags().IntVar(&statusLimit, "limit", 20, "max number of collection log entries to display")
	rootCmd.AddCommand(statusCmd)
}

// formatMatchSummary writes per-jurisdiction match coverage to w.
func formatMatchSummary(out io.Writer, rows []store.MatchSummaryRow) {
	if len(rows) == 0 {
		_, _ = fmt.Fprintln(out, "No open facts.")
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "STATE\tOPEN\tMATCHED\tUNMATCHED\tPCT")
	_, _ = fmt.Fprintln(w, "-----\t----\t-------\t---------\t---")
	for _, r := range rows {
		_, _ = fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%.1f%%\n",
			r.Jurisdiction, r.OpenFacts, r.Matched, r.Unmatched, r.MatchedPct)
	}
	_ = w.Flush()
}

// formatCollections writes the collection log to w, newest first.
func formatCollections(out io.Writer, entries []model.CollectionEntry) {
	if len(entries) == 0 {
		_, _ = fmt.Fprintln(out, "No collections recorded.")
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "BATCH\tSTATE\tSTATUS\tRECORDS\tCREATED\tERROR")
	_, _ = fmt.Fprintln(w, "-----\t-----\t------\t-------\t-------\t-----")
	for _, e := range entries {
		errMsg := e.Error
		if len(errMsg) > 40 {
			errMsg = errMsg[:37] + "..."
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
			truncateID(e.BatchID),
			e.Jurisdiction,
			e.Status,
			e.RecordsLoaded,
			e.CreatedAt.Format("2006-01-02 15:04"),
			errMsg,
		)
	}
	_ = w.Flush()
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
