package cli

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/fieldops/fieldops/pkg/prefs"
	"github.com/fieldops/fieldops/pkg/store"
	"github.com/fieldops/fieldops/pkg/workflow"
)

var (
	approvePlanID string
	approveReject bool
)

var approveCmd = &cobra.Command{
	Use:   "approve",
	Short: "Resolve a plan waiting for verification",
	Long: `Approve or reject a plan parked at the human verification gate.
Rejection cancels the plan.`,
	RunE: runApprove,
}

func init() {
	approveCmd.Flags().StringVar(&approvePlanID, "plan", "", "plan id (required)")
	approveCmd.Flags().BoolVar(&approveReject, "reject", false, "reject instead of approve")
	_ = approveCmd.MarkFlagRequired("plan")
	rootCmd.AddCommand(approveCmd)
}

func runApprove(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}

	st, err := store.Open(cfg.DatabasePath, zerolog.Nop())
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	svc := workflow.NewService(workflow.ServiceConfig{
		Store:  st,
		Prefs:  prefs.NewService(st),
		Runner: workflow.NewRunner(workflow.RunnerConfig{Store: st, Logger: zerolog.Nop()}),
		Logger: zerolog.Nop(),
	})

	if err := svc.Approve(cmd.Context(), approvePlanID, !approveReject); err != nil {
		return err
	}

	verdict := "approved"
	if approveReject {
		verdict = "rejected"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "plan %s %s\n", approvePlanID, verdict)
	return nil
}
