package main

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "Inspect per-jurisdiction source configs",
}

var sourcesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List jurisdictions with a source config",
	RunE: func(_ *cobra.Command, _ []string) error {
		reg, err := sourceRegistry()
		if err != nil {
			return err
		}

		codes := reg.Jurisdictions()
		sort.Strings(codes)
		for _, code := range codes {
			fmt.Fprintln(os.Stdout, code)
		}
		return nil
	},
}

var sourcesShowCmd = &cobra.Command{
	Use:   "show <jurisdiction>",
	Short: "Show one jurisdiction's source config as YAML",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		reg, err := sourceRegistry()
		if err != nil {
			return err
		}

		jurisdiction := strings.ToUpper(strings.TrimSpace(args[0]))
		if !reg.Has(jurisdiction) {
			fmt.Fprintf(os.Stderr, "No specific config for %s; showing the fallback.\n", jurisdiction)
		}

		out, err := yaml.Marshal(reg.Get(jurisdiction))
		if err != nil {
			return err
		}
		fmt.Fprint(os.Stdout, string(out))
		return nil
	},
}

func init() {
	sourcesCmd.AddCommand(sourcesListCmd)
	sourcesCmd.AddCommand(sourcesShowCmd)
	rootCmd.AddCommand(sourcesCmd)
}
