package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/ratesync/internal/ingest"
	"github.com/sells-group/ratesync/internal/model"
	"github.com/sells-group/ratesync/internal/schema"
)

var scanCmd = &cobra.Command{
	Use:   "scan <jurisdiction> <file>",
	Short: "Detect columns in a rate file without loading it",
	Long:  "Reads a rate file, runs column detection against the jurisdiction's source config, and reports which raw column backs each canonical field.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		jurisdiction := strings.ToUpper(strings.TrimSpace(args[0]))
		path := args[1]

		reg, err := sourceRegistry()
		if err != nil {
			return err
		}
		srcCfg := reg.Get(jurisdiction)

		table, err := ingest.ReadTable(path, jurisdiction, srcCfg)
		if err != nil {
			return err
		}

		fm, err := schema.DetectColumns(jurisdiction, srcCfg, table.Columns, cfg.Schema.MinScore)
		if err != nil {
			return eris.Wrapf(err, "scan %s", path)
		}

		formatFieldMap(os.Stdout, table, fm)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(scanCmd)
}

// formatFieldMap writes the detection result as a field-to-column table.
func formatFieldMap(out io.Writer, table *model.RawTable, fm *schema.FieldMap) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "File:\t%s\n", table.SourceFile)
	_, _ = fmt.Fprintf(w, "Jurisdiction:\t%s\n", table.Jurisdiction)
	_, _ = fmt.Fprintf(w, "Rows:\t%d\n", len(table.Rows))
	_, _ = fmt.Fprintln(w)

	_, _ = fmt.Fprintln(w, "FIELD\tCOLUMN\tHEADER")
	_, _ = fmt.Fprintln(w, "-----\t------\t------")
	writeFieldRow(w, table, "facility_name", fm.NameCol)
	writeFieldRow(w, table, "rate", fm.RateCol)
	writeFieldRow(w, table, "external_id", fm.IDCol)
	if fm.RateDate != nil {
		_, _ = fmt.Fprintf(w, "effective_date\t(header)\t%s\n", fm.RateDate.Format("2006-01-02"))
	} else {
		writeFieldRow(w, table, "effective_date", fm.DateCol)
	}
	_ = w.Flush()
}

// writeFieldRow writes one canonical field's resolved column, or a dash when
// the field did not resolve.
func writeFieldRow(w io.Writer, table *model.RawTable, field string, col int) {
	if col == schema.NoColumn {
		_, _ = fmt.Fprintf(w, "%s\t-\t-\n", field)
		return
	}
	header := ""
	if col < len(table.Columns) {
		header = table.Columns[col].String()
	}
	_, _ = fmt.Fprintf(w, "%s\t%d\t%s\n", field, col, header)
}
