package commands

import (
	"github.com/spf13/cobra"

	"github.com/EmpoweredVote/mp-sync/internal/members"
)

var (
	reconcileDryRun   bool
	reconcileMergedBy string
)

func init() {
	reconcileCmd.Flags().BoolVar(&reconcileDryRun, "dry-run", false, "Report what would merge without writing.")
	reconcileCmd.Flags().StringVar(&reconcileMergedBy, "merged-by", "", "Operator recorded on merge history.")
	rootCmd.AddCommand(reconcileCmd)
}

var reconcileCmd = &cobra.Command{
	Use:   "reconcile [--dry-run] [--merged-by <name>]",
	Short: "Merges duplicate member records into the newest one.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		p, err := pipeline(ctx)
		if err != nil {
			return err
		}
		defer p.Close()

		report, err := p.Reconciler.Run(ctx, members.ReconcileOptions{
			DryRun:   reconcileDryRun,
			MergedBy: reconcileMergedBy,
		})
		if err != nil {
			return err
		}
		return printJSON(cmd, report)
	},
}
