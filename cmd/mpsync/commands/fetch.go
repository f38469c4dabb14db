package commands

import (
	"bytes"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/EmpoweredVote/mp-sync/internal/app"
	"github.com/EmpoweredVote/mp-sync/internal/members/parl"
)

func init() {
	rootCmd.AddCommand(fetchCmd)
}

var fetchCmd = &cobra.Command{
	Use:   "fetch <id>",
	Short: "Fetches one member page and prints the extracted fields. Nothing is written to the database.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := parl.NewClient(app.ParlOptions(cfg.Parl), log)
		if err != nil {
			return err
		}

		page, err := client.Fetch(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fields, err := parl.Extract(cmd.Context(), bytes.NewReader(page.Body))
		if err != nil {
			return err
		}
		if fields.IsEmpty() {
			return fmt.Errorf("no member fields found on page for %s", args[0])
		}
		return printJSON(cmd, fields)
	},
}
