package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Xhuk/continuitybridge/internal/logging"
	"github.com/Xhuk/continuitybridge/internal/nodes"
)

var nodesCategory string

var nodesCmd = &cobra.Command{
	Use:   "nodes",
	Short: "Inspect the node catalog",
}

var nodesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List available node types",
	RunE: func(cmd *cobra.Command, args []string) error {
		catalog, err := loadCatalog(cmd)
		if err != nil {
			return err
		}

		var defs []nodes.Definition
		if nodesCategory != "" {
			defs, err = catalog.ByCategory(nodes.Category(nodesCategory))
		} else {
			defs, err = catalog.All()
		}
		if err != nil {
			return err
		}

		if outputJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(defs)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tCATEGORY")
		for _, d := range defs {
			fmt.Fprintf(w, "%s\t%s\t%s\n", d.ID, d.Name, d.Category)
		}
		return w.Flush()
	},
}

var nodesShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one node definition",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		catalog, err := loadCatalog(cmd)
		if err != nil {
			return err
		}

		def, err := catalog.ByID(args[0])
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(def)
	},
}

func loadCatalog(cmd *cobra.Command) (*nodes.Catalog, error) {
	catalog := nodes.NewCatalog(nodesDir, logging.New("bridgectl"))
	if err := catalog.Load(cmd.Context()); err != nil {
		return nil, fmt.Errorf("load node catalog: %w", err)
	}
	return catalog, nil
}

func init() {
	rootCmd.AddCommand(nodesCmd)
	nodesCmd.AddCommand(nodesListCmd)
	nodesCmd.AddCommand(nodesShowCmd)

	nodesListCmd.Flags().StringVar(&nodesCategory, "category", "", "filter by category (broker|file|api|plugin)")
}
