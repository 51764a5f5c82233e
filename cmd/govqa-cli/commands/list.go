package commands

import (
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(listCmd)
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the requests the configured account submitted.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := openLoggedIn(cmd.Context())
		if err != nil {
			return err
		}
		summaries, err := client.ListRequests(cmd.Context())
		if err != nil {
			return err
		}

		t := newTable()
		t.AppendHeader(table.Row{"Id", "Reference", "Status"})
		for _, s := range summaries {
			t.AppendRow(table.Row{s.Id, s.ReferenceNumber, s.Status})
		}
		t.Render()
		return nil
	},
}
