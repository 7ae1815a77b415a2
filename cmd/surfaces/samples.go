package main

import (
	"bufio"
	"fmt"
	"log/slog"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/cwbudde/surfaces/internal/store"
)

var (
	showLimit     int
	olderThanDays int
	forceDelete   bool
	traceDir      string
)

var samplesCmd = &cobra.Command{
	Use:   "samples",
	Short: "Manage collected samples",
	Long: `Manage the sample tables written by collect, including listing,
showing and deleting them.`,
}

var listSamplesCmd = &cobra.Command{
	Use:   "list",
	Short: "List all stored sample tables",
	Args:  cobra.NoArgs,
	RunE:  runListSamples,
}

var showSamplesCmd = &cobra.Command{
	Use:   "show <function>",
	Short: "Show the samples of one function",
	Args:  cobra.ExactArgs(1),
	RunE:  runShowSamples,
}

var deleteSamplesCmd = &cobra.Command{
	Use:   "delete [function...]",
	Short: "Delete sample tables",
	Long: `Delete the named sample tables, or every table not updated for N days
with --older-than.`,
	RunE: runDeleteSamples,
}

var traceSamplesCmd = &cobra.Command{
	Use:   "trace <function>",
	Short: "Show the round trace of collect runs",
	Args:  cobra.ExactArgs(1),
	RunE:  runTraceSamples,
}

func init() {
	rootCmd.AddCommand(samplesCmd)

	samplesCmd.AddCommand(listSamplesCmd)
	samplesCmd.AddCommand(showSamplesCmd)
	samplesCmd.AddCommand(deleteSamplesCmd)
	samplesCmd.AddCommand(traceSamplesCmd)

	showSamplesCmd.Flags().IntVar(&showLimit, "limit", 20, "Rows to print in text format (0 = all)")

	deleteSamplesCmd.Flags().IntVar(&olderThanDays, "older-than", 0, "Delete tables not updated for N days")
	deleteSamplesCmd.Flags().BoolVarP(&forceDelete, "force", "f", false, "Skip confirmation prompt")

	traceSamplesCmd.Flags().StringVar(&traceDir, "trace-dir", "", "Trace directory (default from config)")
}

func runListSamples(cmd *cobra.Command, args []string) error {
	st, err := openStore(cmd.Context())
	if err != nil {
		return err
	}
	defer st.Close()

	infos, err := st.List(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to list tables: %w", err)
	}

	out := cmd.OutOrStdout()
	if ok, err := encode(out, outputFormat, infos); ok || err != nil {
		return err
	}
	if len(infos) == 0 {
		fmt.Fprintf(out, "No samples in %s.\n", st.Location())
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "FUNCTION\tROWS\tCOLUMNS\tUPDATED")
	for _, info := range infos {
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\n",
			info.Name,
			info.Rows,
			store.FormatColumns(info.Columns),
			info.UpdatedAt.Local().Format("2006-01-02 15:04:05"),
		)
	}
	w.Flush()

	fmt.Fprintf(out, "\nTotal tables: %d\n", len(infos))
	return nil
}

func runShowSamples(cmd *cobra.Command, args []string) error {
	st, err := openStore(cmd.Context())
	if err != nil {
		return err
	}
	defer st.Close()

	tbl, err := st.Load(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if ok, err := encode(out, outputFormat, tbl); ok || err != nil {
		return err
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	header := make([]string, 0, len(tbl.Columns)+1)
	for _, c := range tbl.Columns {
		header = append(header, strings.ToUpper(c.Name))
	}
	fmt.Fprintln(w, strings.Join(append(header, "SCORE"), "\t"))

	rows := tbl.Rows
	if showLimit > 0 && len(rows) > showLimit {
		rows = rows[:showLimit]
	}
	for _, r := range rows {
		cells := make([]string, 0, len(r.Values)+1)
		for _, v := range r.Values {
			cells = append(cells, fmt.Sprint(v))
		}
		fmt.Fprintln(w, strings.Join(append(cells, formatFloat(r.Score)), "\t"))
	}
	w.Flush()

	if len(rows) < tbl.Len() {
		fmt.Fprintf(out, "... %d more rows\n", tbl.Len()-len(rows))
	}
	return nil
}

func runTraceSamples(cmd *cobra.Command, args []string) error {
	dir := firstNonEmpty(traceDir, cfg.Collect.TraceDir)
	if dir == "" {
		return fmt.Errorf("no trace directory: set --trace-dir or collect.trace_dir")
	}

	tr, err := store.NewTraceReader(dir, args[0])
	if err != nil {
		return err
	}
	defer tr.Close()

	entries, err := tr.ReadAll()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if ok, err := encode(out, outputFormat, entries); ok || err != nil {
		return err
	}

	runs := store.Runs(entries)
	for i, run := range runs {
		if i > 0 {
			fmt.Fprintln(out)
		}
		fmt.Fprintf(out, "Run %s (%s)\n", run[0].RunID, run[0].Timestamp.Local().Format("2006-01-02 15:04:05"))
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ROUND\tEVALUATED\tADDED\tTOTAL\tBEST")
		for _, e := range run {
			best := "-"
			if e.Best != nil {
				best = formatFloat(*e.Best)
			}
			fmt.Fprintf(w, "%d\t%d\t%d\t%d\t%s\n", e.Round, e.Evaluated, e.Added, e.Total, best)
		}
		w.Flush()
	}
	fmt.Fprintf(out, "\nTotal runs: %d\n", len(runs))
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func runDeleteSamples(cmd *cobra.Command, args []string) error {
	if len(args) == 0 && olderThanDays == 0 {
		return fmt.Errorf("must name tables or specify --older-than")
	}

	st, err := openStore(cmd.Context())
	if err != nil {
		return err
	}
	defer st.Close()

	infos, err := st.List(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to list tables: %w", err)
	}

	toDelete, err := selectTablesForDeletion(infos, args, olderThanDays, time.Now())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(toDelete) == 0 {
		fmt.Fprintln(out, "No tables match deletion criteria.")
		return nil
	}

	fmt.Fprintf(out, "Found %d table(s) to delete:\n", len(toDelete))
	for _, info := range toDelete {
		fmt.Fprintf(out, "  - %s (%d rows, %s)\n",
			info.Name,
			info.Rows,
			info.UpdatedAt.Local().Format("2006-01-02 15:04:05"),
		)
	}

	if !forceDelete {
		fmt.Fprint(out, "\nProceed with deletion? [y/N]: ")
		response, _ := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		response = strings.TrimSpace(response)
		if response != "y" && response != "Y" {
			fmt.Fprintln(out, "Aborted.")
			return nil
		}
	}

	deleted := 0
	failed := 0
	for _, info := range toDelete {
		if err := st.Delete(cmd.Context(), info.Name); err != nil {
			slog.Error("Failed to delete table", "function", info.Name, "error", err)
			failed++
		} else {
			slog.Info("Deleted table", "function", info.Name)
			deleted++
		}
	}

	fmt.Fprintf(out, "\nDeleted %d table(s), %d failed.\n", deleted, failed)
	if failed > 0 {
		return fmt.Errorf("%d table(s) could not be deleted", failed)
	}
	return nil
}

// selectTablesForDeletion returns the tables named in names plus, when
// olderThanDays > 0, every table last updated before the cutoff. Naming an
// unknown table is an error.
func selectTablesForDeletion(infos []store.TableInfo, names []string, olderThanDays int, now time.Time) ([]store.TableInfo, error) {
	byName := make(map[string]store.TableInfo, len(infos))
	for _, info := range infos {
		byName[info.Name] = info
	}

	selected := make(map[string]bool)
	var toDelete []store.TableInfo
	for _, name := range names {
		info, ok := byName[name]
		if !ok {
			return nil, &store.NotFoundError{Name: name}
		}
		if !selected[name] {
			selected[name] = true
			toDelete = append(toDelete, info)
		}
	}

	if olderThanDays > 0 {
		cutoff := now.AddDate(0, 0, -olderThanDays)
		for _, info := range infos {
			if info.UpdatedAt.Before(cutoff) && !selected[info.Name] {
				selected[info.Name] = true
				toDelete = append(toDelete, info)
			}
		}
	}
	return toDelete, nil
}
