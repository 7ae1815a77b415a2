package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/cwbudde/surfaces/internal/catalog"
	"github.com/cwbudde/surfaces/internal/surface"
)

var functionsCmd = &cobra.Command{
	Use:   "functions",
	Short: "List the available objective functions",
	Args:  cobra.NoArgs,
	RunE:  runFunctions,
}

func init() {
	rootCmd.AddCommand(functionsCmd)
}

type functionRow struct {
	Name        string         `json:"name" yaml:"name"`
	Description string         `json:"description" yaml:"description"`
	Math        bool           `json:"math" yaml:"math"`
	Parameters  surface.Schema `json:"parameters" yaml:"parameters"`
	GridSize    int            `json:"gridSize" yaml:"grid_size"`
}

func runFunctions(cmd *cobra.Command, args []string) error {
	var rows []functionRow
	for _, e := range catalog.Entries() {
		fn, err := e.New(catalog.Settings{})
		if err != nil {
			return fmt.Errorf("failed to construct %s: %w", e.Name, err)
		}
		rows = append(rows, functionRow{
			Name:        e.Name,
			Description: e.Description,
			Math:        e.Math,
			Parameters:  fn.Schema(),
			GridSize:    fn.DefaultSpace().Size(),
		})
	}

	out := cmd.OutOrStdout()
	if ok, err := encode(out, outputFormat, rows); ok || err != nil {
		return err
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tKIND\tPARAMETERS\tGRID\tDESCRIPTION")
	for _, r := range rows {
		kind := "ml"
		if r.Math {
			kind = "math"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", r.Name, kind, strings.Join(r.Parameters.Names(), ","), r.GridSize, r.Description)
	}
	return w.Flush()
}
