package main

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/ratesync/internal/model"
)

var registryCmd = &cobra.Command{
	Use:   "registry",
	Short: "Manage the facility registry snapshot",
	Long:  "Commands for importing and inspecting the facility registry this pipeline matches against.",
}

// -- registry import --

var (
	registryCSVPath string
	registryState   string
)

var registryImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Import registry entities from CSV",
	Long:  "Upserts registry entities from a CSV with columns name, external_id, city, zip and optionally state. Entities are keyed by (jurisdiction, name).",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		f, err := os.Open(registryCSVPath)
		if err != nil {
			return eris.Wrapf(err, "registry import: open %s", registryCSVPath)
		}
		defer f.Close()

		entities, err := readRegistryCSV(f, strings.ToUpper(strings.TrimSpace(registryState)))
		if err != nil {
			return eris.Wrapf(err, "registry import: %s", registryCSVPath)
		}
		if len(entities) == 0 {
			return eris.Errorf("registry import: %s has no entities", registryCSVPath)
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		n, err := st.ImportRegistry(ctx, entities)
		if err != nil {
			return eris.Wrap(err, "registry import")
		}

		zap.L().Info("registry import complete",
			zap.Int64("upserted", n),
			zap.String("csv", registryCSVPath),
		)
		return nil
	},
}

// -- registry list --

var registryListState string

var registryListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registry entities for a jurisdiction",
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

		entities, err := st.ListEntities(ctx, strings.ToUpper(strings.TrimSpace(registryListState)))
		if err != nil {
			return eris.Wrap(err, "registry list")
		}
		if len(entities) == 0 {
			fmt.Fprintln(os.Stderr, "No entities found.")
			return nil
		}

		formatEntities(os.Stdout, entities)
		return nil
	},
}

func init() {
	registryImportCmd.Flags().StringVar(&registryCSVPath, "csv", "", "path to CSV file (required)")
	registryImportCmd.Flags().StringVar(&registryState, "state", "", "jurisdiction for rows without a state column")
	_ = registryImportCmd.MarkFlagRequired("csv")

	registryListCmd.Flags().StringVar(&registryListState, "state", "", "jurisdiction code (required)")
	_ = registryListCmd.MarkFlagRequired("state")

	registryCmd.AddCommand(registryImportCmd)
	registryCmd.AddCommand(registryListCmd)
	rootCmd.AddCommand(registryCmd)
}

// readRegistryCSV parses registry entities from a header-led CSV. Recognized
// headers are name, external_id (or ccn), city, zip, and state; unknown
// columns are ignored. defaultState fills the jurisdiction for rows without
// a state column.
func readRegistryCSV(r io.Reader, defaultState string) ([]model.RegistryEntity, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err == io.EOF {
		return nil, eris.New("empty file")
	}
	if err != nil {
		return nil, eris.Wrap(err, "read header")
	}

	cols := map[string]int{}
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	nameCol, ok := cols["name"]
	if !ok {
		return nil, eris.New("missing required column: name")
	}

	field := func(rec []string, names ...string) string {
		for _, n := range names {
			if i, ok := cols[n]; ok && i < len(rec) {
				return strings.TrimSpace(rec[i])
			}
		}
		return ""
	}

	var entities []model.RegistryEntity
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrapf(err, "line %d", line)
		}

		name := ""
		if nameCol < len(rec) {
			name = strings.TrimSpace(rec[nameCol])
		}
		if name == "" {
			continue
		}

		state := strings.ToUpper(field(rec, "state", "jurisdiction"))
		if state == "" {
			state = defaultState
		}
		if state == "" {
			return nil, eris.Errorf("line %d: no state column and no --state flag", line)
		}

		entities = append(entities, model.RegistryEntity{
			Jurisdiction: state,
			Name:         name,
			ExternalID:   field(rec, "external_id", "ccn"),
			City:         field(rec, "city"),
			Zip:          field(rec, "zip"),
		})
	}
	return entities, nil
}

// formatEntities writes a tabular entity list to w.
func formatEntities(out io.Writer, entities []model.RegistryEntity) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tNAME\tEXTERNAL_ID\tCITY\tZIP")
	_, _ = fmt.Fprintln(w, "--\t----\t-----------\t----\t---")
	for _, e := range entities {
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", e.ID, e.Name, e.ExternalID, e.City, e.Zip)
	}
	_ = w.Flush()
}
