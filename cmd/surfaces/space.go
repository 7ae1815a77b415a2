package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/cwbudde/surfaces/internal/catalog"
	"github.com/cwbudde/surfaces/internal/surface"
)

var (
	spaceFnFlags functionFlags
	spaceFlagSet spaceFlags
)

var spaceCmd = &cobra.Command{
	Use:   "space <function>",
	Short: "Show the search space of a function",
	Long: `Shows the search grid a collect run would explore. Without flags the
documented default space is shown; --step/--min/--max and --set override it.`,
	Args: cobra.ExactArgs(1),
	RunE: runSpace,
}

func init() {
	spaceFnFlags.register(spaceCmd)
	spaceFlagSet.register(spaceCmd)
	rootCmd.AddCommand(spaceCmd)
}

type spaceView struct {
	Function   string              `json:"function" yaml:"function"`
	Size       int                 `json:"size" yaml:"size"`
	Dimensions []surface.Dimension `json:"dimensions" yaml:"dimensions"`
}

// resolveSpace builds the function and its search space from the flags.
func resolveSpace(name string, ff *functionFlags, sf *spaceFlags) (surface.Function, surface.SearchSpace, error) {
	fn, err := ff.build(name)
	if err != nil {
		return nil, surface.SearchSpace{}, err
	}
	spec, err := sf.spec(fn.Schema())
	if err != nil {
		return nil, surface.SearchSpace{}, err
	}
	space, err := catalog.BuildSpace(fn, spec)
	if err != nil {
		return nil, surface.SearchSpace{}, err
	}
	return fn, space, nil
}

func runSpace(cmd *cobra.Command, args []string) error {
	fn, space, err := resolveSpace(args[0], &spaceFnFlags, &spaceFlagSet)
	if err != nil {
		return err
	}

	view := spaceView{Function: fn.Name(), Size: space.Size(), Dimensions: space.Dims()}
	out := cmd.OutOrStdout()
	if ok, err := encode(out, outputFormat, view); ok || err != nil {
		return err
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PARAMETER\tCOUNT\tFIRST\tLAST")
	for _, d := range view.Dimensions {
		fmt.Fprintf(w, "%s\t%d\t%v\t%v\n", d.Name, len(d.Values), d.Values[0], d.Values[len(d.Values)-1])
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(out, "\nGrid size: %d\n", view.Size)
	return nil
}
