package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"firestige.xyz/strix/internal/registry"
)

var protocolsOpts struct {
	fields bool
	tables bool
}

var protocolsCmd = &cobra.Command{
	Use:   "protocols",
	Short: "List registered protocols, fields and dissector tables",
	Long: `List the protocols known to the dissection engine.

Examples:
  strix protocols              # Protocols and whether they are enabled
  strix protocols --fields     # Every field filter name
  strix protocols --tables     # Dissector tables and their entries`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		reg, err := buildRegistry(cfg)
		if err != nil {
			return err
		}
		return runProtocols(cmd.OutOrStdout(), reg, protocolsOpts.fields, protocolsOpts.tables)
	},
}

func init() {
	protocolsCmd.Flags().BoolVar(&protocolsOpts.fields, "fields", false, "list registered fields")
	protocolsCmd.Flags().BoolVar(&protocolsOpts.tables, "tables", false, "list dissector tables")
}

func runProtocols(w io.Writer, reg *registry.Registry, fields, tables bool) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)

	switch {
	case fields:
		fmt.Fprintln(tw, "FILTER\tNAME\tTYPE")
		for _, f := range reg.Fields() {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", f.Filter, f.Name, f.Kind)
		}
	case tables:
		fmt.Fprintln(tw, "TABLE\tKEY\tPROTOCOL")
		for _, t := range reg.Tables() {
			fmt.Fprintf(tw, "%s\t(%s, %s)\t\n", t.Name, t.Display, t.Kind)
			for _, e := range t.Entries() {
				fmt.Fprintf(tw, "\t%s\t%s\n", e.Key, e.Protocol.Filter)
			}
			for _, h := range t.Heuristics() {
				fmt.Fprintf(tw, "\theuristic\t%s\n", h.Protocol.Filter)
			}
		}
	default:
		fmt.Fprintln(tw, "FILTER\tSHORT\tDESCRIPTION\tSTATUS")
		for _, p := range reg.Protocols() {
			status := "enabled"
			if !reg.Enabled(p.Filter) {
				status = "disabled"
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", p.Filter, p.Short, p.Description, status)
		}
	}
	return tw.Flush()
}
