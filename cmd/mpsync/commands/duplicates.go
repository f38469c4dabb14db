package commands

import (
	"github.com/spf13/cobra"

	"github.com/EmpoweredVote/mp-sync/internal/members"
)

var duplicatesNear bool

func init() {
	duplicatesCmd.Flags().BoolVar(&duplicatesNear, "near", false, "List near-duplicate name pairs instead of exact clusters.")
	rootCmd.AddCommand(duplicatesCmd)
}

var duplicatesCmd = &cobra.Command{
	Use:   "duplicates [--near]",
	Short: "Lists duplicate member clusters.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		p, err := pipeline(ctx)
		if err != nil {
			return err
		}
		defer p.Close()

		if duplicatesNear {
			pairs, err := members.NearDuplicatesFromStore(ctx, p.Store, cfg.Reconcile.NearDuplicateThreshold)
			if err != nil {
				return err
			}
			return printJSON(cmd, pairs)
		}

		clusters, err := members.SnapshotDuplicates(ctx, p.Store)
		if err != nil {
			return err
		}
		return printJSON(cmd, clusters)
	},
}
