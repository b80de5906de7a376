package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fieldops/fieldops/internal/daemon"
	"github.com/fieldops/fieldops/internal/logger"
)

var (
	runUser        string
	runDate        string
	runJobs        []string
	runOverrides   string
	runAutoApprove bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a daily plan for a user",
	Long: `Run the planning workflow once for a user and a set of jobs, then
print the final plan as JSON. With --auto-approve the verification gate
is skipped; otherwise the run waits for 'fieldops approve'.`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVar(&runUser, "user", "", "user id (required)")
	runCmd.Flags().StringVar(&runDate, "date", "", "target date YYYY-MM-DD (default today)")
	runCmd.Flags().StringSliceVar(&runJobs, "jobs", nil, "job ids, comma separated (required)")
	runCmd.Flags().StringVar(&runOverrides, "overrides", "", "preference overrides as a JSON object")
	runCmd.Flags().BoolVar(&runAutoApprove, "auto-approve", false, "skip the human verification gate")
	_ = runCmd.MarkFlagRequired("user")
	_ = runCmd.MarkFlagRequired("jobs")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, path, err := loadConfig()
	if err != nil {
		return err
	}
	if runAutoApprove {
		cfg.Workflow.AutoApprove = true
	}
	// The triggering process does not need the gateway or the sweeper.
	cfg.Gateway.Enabled = false
	cfg.Janitor.Enabled = false

	var overrides json.RawMessage
	if runOverrides != "" {
		if !json.Valid([]byte(runOverrides)) {
			return fmt.Errorf("--overrides is not valid JSON")
		}
		overrides = json.RawMessage(runOverrides)
	}

	log, err := logger.New(logger.Config{
		Level:     cfg.Logging.Level,
		Console:   cfg.Logging.Console,
		Pretty:    cfg.Logging.Pretty,
		Redaction: cfg.Logging.Redaction,
	})
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer log.Close()

	d, err := daemon.New(cfg, path, log)
	if err != nil {
		return err
	}
	defer d.Stop()

	res, runErr := d.Workflow().RunPlan(cmd.Context(), runUser, runJobs, runDate, overrides)
	if res != nil && res.Plan != nil {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(res.Plan); err != nil {
			fmt.Fprintln(os.Stderr, err)
		}
	}
	return runErr
}
