package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/cwbudde/surfaces/internal/server"
)

var (
	serverURL string
	cancelJob bool
)

var jobsCmd = &cobra.Command{
	Use:   "jobs [job-id]",
	Short: "Query collect jobs on a running server",
	Long: `Queries the server for job status information.
If no job-id is provided, lists all jobs.
If job-id is provided, shows detailed status for that job.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runJobs,
}

func init() {
	jobsCmd.Flags().StringVar(&serverURL, "server", "http://localhost:8080", "Server URL")
	jobsCmd.Flags().BoolVar(&cancelJob, "cancel", false, "Cancel the job (or remove it once finished)")
	rootCmd.AddCommand(jobsCmd)
}

// jobStatus mirrors the server's job status body.
type jobStatus struct {
	server.Job
	Elapsed float64 `json:"elapsed"`
}

func runJobs(cmd *cobra.Command, args []string) error {
	base := strings.TrimRight(serverURL, "/")
	client := &http.Client{Timeout: 30 * time.Second}

	if len(args) == 0 {
		if cancelJob {
			return fmt.Errorf("--cancel needs a job id")
		}
		var jobs []server.Job
		if err := getJSON(client, base+"/api/v1/jobs", &jobs); err != nil {
			return err
		}
		return printJobs(cmd.OutOrStdout(), jobs)
	}

	jobID := args[0]
	url := fmt.Sprintf("%s/api/v1/jobs/%s", base, jobID)
	if cancelJob {
		return deleteJob(cmd.OutOrStdout(), client, url, jobID)
	}

	var status jobStatus
	if err := getJSON(client, url, &status); err != nil {
		return err
	}
	return printJobStatus(cmd.OutOrStdout(), status)
}

func getJSON(client *http.Client, url string, v any) error {
	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("failed to connect to server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return responseError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func deleteJob(w io.Writer, client *http.Client, url, jobID string) error {
	req, err := http.NewRequest(http.MethodDelete, url, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect to server: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusAccepted:
		fmt.Fprintf(w, "Cancellation requested for job %s\n", jobID)
	case http.StatusNoContent:
		fmt.Fprintf(w, "Removed job %s\n", jobID)
	default:
		return responseError(resp)
	}
	return nil
}

// responseError extracts the error message of a failed request.
func responseError(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)
	var e struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &e) == nil && e.Error != "" {
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, e.Error)
	}
	return fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
}

func printJobs(w io.Writer, jobs []server.Job) error {
	if ok, err := encode(w, outputFormat, jobs); ok || err != nil {
		return err
	}
	if len(jobs) == 0 {
		fmt.Fprintln(w, "No jobs found")
		return nil
	}

	fmt.Fprintf(w, "Found %d job(s):\n\n", len(jobs))
	for _, job := range jobs {
		fmt.Fprintf(w, "Job ID: %s\n", job.ID)
		fmt.Fprintf(w, "  State: %s\n", job.State)
		fmt.Fprintf(w, "  Function: %s\n", job.Config.Function)
		fmt.Fprintf(w, "  Progress: %d/%d (round %d)\n", job.Collected, job.Total, job.Round)
		if job.Best != nil {
			fmt.Fprintf(w, "  Best: %s\n", formatFloat(*job.Best))
		}
		fmt.Fprintln(w)
	}
	return nil
}

func printJobStatus(w io.Writer, status jobStatus) error {
	if ok, err := encode(w, outputFormat, status); ok || err != nil {
		return err
	}

	fmt.Fprintf(w, "Job: %s\n", status.ID)
	fmt.Fprintf(w, "State: %s\n", status.State)
	fmt.Fprintln(w)

	c := status.Config
	fmt.Fprintln(w, "Configuration:")
	fmt.Fprintf(w, "  Function: %s\n", c.Function)
	if c.Metric != "" {
		fmt.Fprintf(w, "  Metric: %s\n", c.Metric)
	}
	if c.Mode != "" {
		fmt.Fprintf(w, "  Mode: %s\n", c.Mode)
	}
	if c.Space.Step != 0 {
		fmt.Fprintf(w, "  Range: [%g, %g) step %g\n", c.Space.Min, c.Space.Max, c.Space.Step)
	}
	if c.RoundBudget > 0 {
		fmt.Fprintf(w, "  Round budget: %d\n", c.RoundBudget)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Progress:")
	fmt.Fprintf(w, "  Rounds: %d\n", status.Round)
	fmt.Fprintf(w, "  Collected: %d/%d\n", status.Collected, status.Total)
	if status.Best != nil {
		fmt.Fprintf(w, "  Best: %s\n", formatFloat(*status.Best))
	}
	elapsed := time.Duration(status.Elapsed * float64(time.Second))
	fmt.Fprintf(w, "  Elapsed: %s\n", elapsed.Round(time.Millisecond))

	if status.Error != "" {
		fmt.Fprintf(w, "\nError: %s\n", status.Error)
	}
	return nil
}
