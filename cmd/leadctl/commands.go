package main

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strconv"

	"github.com/spf13/cobra"
)

func orgPath(orgID, action string) string {
	return "/api/v1/organizations/" + url.PathEscape(orgID) + "/" + action
}

// runAndPrint prints the body even on error so structured failures
// (e.g. insufficient_data) stay visible.
func runAndPrint(cmd *cobra.Command, data []byte, err error) error {
	if len(data) > 0 {
		outputJSON(cmd.OutOrStdout(), data)
	}
	return err
}

func newTrainCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "train <organization-id>",
		Short:   "Train a conversion model for an organization",
		Example: `  leadctl train org-1`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := newClient().post(orgPath(args[0], "train"), nil)
			return runAndPrint(cmd, data, err)
		},
	}
}

func newScoreCommand() *cobra.Command {
	var (
		orgID    string
		leadFile string
	)
	cmd := &cobra.Command{
		Use:   "score [lead-id]",
		Short: "Score a stored lead, or an ad-hoc lead from a JSON file",
		Example: `  leadctl score lead-42
  leadctl score --org org-1 --file lead.json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newClient()
			if len(args) == 1 {
				data, err := client.get("/api/v1/leads/"+url.PathEscape(args[0])+"/score", nil)
				return runAndPrint(cmd, data, err)
			}
			if orgID == "" || leadFile == "" {
				return fmt.Errorf("either a lead id or both --org and --file are required")
			}
			raw, err := os.ReadFile(leadFile)
			if err != nil {
				return fmt.Errorf("failed to read lead file: %w", err)
			}
			var lead map[string]interface{}
			if err := json.Unmarshal(raw, &lead); err != nil {
				return fmt.Errorf("failed to parse lead file: %w", err)
			}
			data, err := client.post(orgPath(orgID, "score"), lead)
			return runAndPrint(cmd, data, err)
		},
	}
	cmd.Flags().StringVar(&orgID, "org", "", "Organization ID for an ad-hoc lead")
	cmd.Flags().StringVarP(&leadFile, "file", "f", "", "JSON file holding the lead")
	return cmd
}

func newRescoreCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "rescore <organization-id>",
		Short: "Recompute and persist every lead score in an organization",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := newClient().post(orgPath(args[0], "rescore"), nil)
			return runAndPrint(cmd, data, err)
		},
	}
}

func newStatsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stats <organization-id>",
		Short: "Show lead statistics",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := newClient().get(orgPath(args[0], "stats"), nil)
			return runAndPrint(cmd, data, err)
		},
	}
}

func newSessionsCommand() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "sessions <organization-id>",
		Short: "List training sessions, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			params := url.Values{}
			if limit > 0 {
				params.Set("limit", strconv.Itoa(limit))
			}
			data, err := newClient().get(orgPath(args[0], "training-sessions"), params)
			return runAndPrint(cmd, data, err)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of sessions")
	return cmd
}

func newPerformanceCommand() *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:     "performance <agent-id>",
		Short:   "Show an agent's daily performance roll-ups",
		Example: `  leadctl performance agent-7 --days 14`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			params := url.Values{}
			if days > 0 {
				params.Set("days", strconv.Itoa(days))
			}
			data, err := newClient().get("/api/v1/agents/"+url.PathEscape(args[0])+"/performance", params)
			return runAndPrint(cmd, data, err)
		},
	}
	cmd.Flags().IntVarP(&days, "days", "d", 30, "Days to look back")
	return cmd
}

func newJobCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "job",
		Short: "Run and inspect lifecycle jobs",
	}
	cmd.AddCommand(newJobRunCommand())
	cmd.AddCommand(newJobListCommand())
	return cmd
}

func newJobRunCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "run <job>",
		Short: "Run a job now and wait for it",
		Example: `  leadctl job run refresh_scores
  leadctl job run expire_snoozes`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := newClient().post("/api/v1/jobs/"+url.PathEscape(args[0])+"/run", nil)
			return runAndPrint(cmd, data, err)
		},
	}
}

func newJobListCommand() *cobra.Command {
	var (
		job   string
		limit int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent job runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			params := url.Values{}
			if job != "" {
				params.Set("job", job)
			}
			if limit > 0 {
				params.Set("limit", strconv.Itoa(limit))
			}
			data, err := newClient().get("/api/v1/jobs/runs", params)
			return runAndPrint(cmd, data, err)
		},
	}
	cmd.Flags().StringVar(&job, "job", "", "Only runs of this job")
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Number of runs")
	return cmd
}

func newLogCommand() *cobra.Command {
	var (
		limit  int
		level  string
		source string
	)
	cmd := &cobra.Command{
		Use:     "logs",
		Short:   "Show recent server log entries",
		Example: `  leadctl logs --source=lifecycle --level=error`,
		RunE: func(cmd *cobra.Command, args []string) error {
			params := url.Values{}
			params.Set("limit", strconv.Itoa(limit))
			if level != "" {
				params.Set("level", level)
			}
			if source != "" {
				params.Set("source", source)
			}
			data, err := newClient().get("/api/v1/logs", params)
			return runAndPrint(cmd, data, err)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 100, "Number of log entries")
	cmd.Flags().StringVar(&level, "level", "", "Filter by level")
	cmd.Flags().StringVar(&source, "source", "", "Filter by logger name prefix")
	return cmd
}
