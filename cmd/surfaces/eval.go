package main

import (
	"fmt"
	"math"

	"github.com/spf13/cobra"

	"github.com/cwbudde/surfaces/internal/surface"
)

var evalFlags functionFlags

var evalCmd = &cobra.Command{
	Use:   "eval <function> name=value...",
	Short: "Evaluate a function at one point",
	Long: `Evaluates a function for the given parameters. Every parameter of the
function's schema must be given exactly once, e.g.

  surfaces eval beale_function x0=3 x1=0.5 --metric loss`,
	Args: cobra.MinimumNArgs(1),
	RunE: runEval,
}

func init() {
	evalFlags.register(evalCmd)
	rootCmd.AddCommand(evalCmd)
}

type evalResult struct {
	Function string         `json:"function" yaml:"function"`
	Metric   surface.Metric `json:"metric" yaml:"metric"`
	Params   surface.Params `json:"params" yaml:"params"`
	Value    *float64       `json:"value" yaml:"value"`
}

func runEval(cmd *cobra.Command, args []string) error {
	fn, err := evalFlags.build(args[0])
	if err != nil {
		return err
	}
	params, err := parseAssignments(fn.Schema(), args[1:])
	if err != nil {
		return err
	}

	value, err := surface.EvaluateContext(cmd.Context(), fn, params)
	if err != nil {
		return fmt.Errorf("failed to evaluate %s: %w", fn.Name(), err)
	}

	res := evalResult{Function: fn.Name(), Metric: fn.Metric(), Params: params}
	if !math.IsNaN(value) && !math.IsInf(value, 0) {
		res.Value = &value
	}
	out := cmd.OutOrStdout()
	if ok, err := encode(out, outputFormat, res); ok || err != nil {
		return err
	}
	fmt.Fprintf(out, "%s %s = %s\n", fn.Name(), fn.Metric(), formatFloat(value))
	return nil
}

func formatFloat(v float64) string {
	if math.IsNaN(v) {
		return "nan"
	}
	return fmt.Sprintf("%.10g", v)
}
