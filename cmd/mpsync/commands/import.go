package commands

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/EmpoweredVote/mp-sync/internal/members"
)

var (
	importAllKnown      bool
	importFromDirectory bool
)

func init() {
	importCmd.Flags().BoolVar(&importAllKnown, "all-known", false, "Re-import every member already in the database.")
	importCmd.Flags().BoolVar(&importFromDirectory, "from-directory", false, "Import every member listed for the current parliament and session.")
	rootCmd.AddCommand(importCmd)
}

var importCmd = &cobra.Command{
	Use:   "import [ids...] [--all-known] [--from-directory]",
	Short: "Fetches, extracts and loads member profiles.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		p, err := pipeline(ctx)
		if err != nil {
			return err
		}
		defer p.Close()

		ids, err := members.ResolveIDs(ctx, members.IDRequest{
			IDs:           args,
			AllKnown:      importAllKnown,
			FromDirectory: importFromDirectory,
		}, p.Store, p.Client, p.Term())
		if err != nil {
			return err
		}

		log.Info("import starting", zap.Int("ids", len(ids)))
		report, runErr := p.Importer.Run(ctx, ids, func(r members.Report) {
			if n := r.Processed(); n%50 == 0 {
				log.Info("import progress", zap.Int("processed", n), zap.Int("total", r.Total))
			}
		})
		if err := printJSON(cmd, report); err != nil {
			return err
		}
		return runErr
	},
}
