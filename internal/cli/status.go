package cli

import (
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/fieldops/fieldops/pkg/store"
)

var statusPlanID string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show a plan's current state",
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusPlanID, "plan", "", "plan id (required)")
	_ = statusCmd.MarkFlagRequired("plan")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}

	st, err := store.Open(cfg.DatabasePath, zerolog.Nop())
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	plan, err := st.GetPlan(cmd.Context(), statusPlanID)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(plan)
}
