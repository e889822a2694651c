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
	"github.com/sells-group/ratesync/internal/resolve"
)

var (
	matchState   string
	matchExecute bool
	matchVerbose bool
)

var matchCmd = &cobra.Command{
	Use:   "match",
	Short: "Match open facts against the facility registry",
	Long:  "Resolves unmatched open facts against the jurisdiction's registry entities. Preview by default; pass --execute to write the accepted links.",
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

		var jurisdictions []string
		if matchState != "" {
			jurisdictions = []string{strings.ToUpper(strings.TrimSpace(matchState))}
		} else {
			jurisdictions, err = st.Jurisdictions(ctx)
			if err != nil {
				return eris.Wrap(err, "match")
			}
		}
		if len(jurisdictions) == 0 {
			fmt.Fprintln(os.Stderr, "No jurisdictions with facts.")
			return nil
		}

		matcher := resolve.NewMatcher(st, resolve.MatcherConfig{
			Params: resolve.Params{
				Threshold:       cfg.Matching.Threshold,
				HighThreshold:   cfg.Matching.HighThreshold,
				TokenOverlapMin: cfg.Matching.TokenOverlapMin,
			},
			Workers: cfg.Matching.Workers,
			Preview: !matchExecute,
		})

		for _, jurisdiction := range jurisdictions {
			stats, err := matcher.MatchJurisdiction(ctx, jurisdiction)
			if err != nil {
				return err
			}
			formatMatchStats(os.Stdout, stats, !matchExecute, matchVerbose)
		}
		return nil
	},
}

func init() {
	matchCmd.Flags().StringVar(&matchState, "state", "", "match a single jurisdiction (default all)")
	matchCmd.Flags().BoolVar(&matchExecute, "execute", false, "write accepted links instead of previewing")
	matchCmd.Flags().BoolVar(&matchVerbose, "verbose", false, "list each accepted match")
	rootCmd.AddCommand(matchCmd)
}

// formatMatchStats writes one jurisdiction's matching pass to w.
func formatMatchStats(out io.Writer, stats *model.MatchStats, preview, verbose bool) {
	mode := "executed"
	if preview {
		mode = "preview"
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "%s (%s)\n", stats.Jurisdiction, mode)
	_, _ = fmt.Fprintf(w, "  Unmatched facts:\t%d\n", stats.TotalUnmatched)
	_, _ = fmt.Fprintf(w, "  Registry entities:\t%d\n", stats.TotalEntities)
	_, _ = fmt.Fprintf(w, "  Matched:\t%d\n", stats.Matched)
	_, _ = fmt.Fprintf(w, "    High confidence:\t%d\n", stats.HighConfidence)
	_, _ = fmt.Fprintf(w, "    Low confidence:\t%d\n", stats.LowConfidence)
	_, _ = fmt.Fprintf(w, "  Still unmatched:\t%d\n", stats.Unmatched)
	_ = w.Flush()

	if !verbose || len(stats.Matches) == 0 {
		return
	}

	w = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "  FACT\tENTITY\tSCORE\tTIER")
	for _, m := range stats.Matches {
		_, _ = fmt.Fprintf(w, "  %s\t%s\t%d\t%s\n", m.FactName, m.EntityName, m.Score, m.Tier)
	}
	_ = w.Flush()
}
