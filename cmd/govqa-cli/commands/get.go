package commands

import (
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(getCmd)
}

var getCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Show one request with its messages and attachments.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := openLoggedIn(cmd.Context())
		if err != nil {
			return err
		}
		request, err := client.GetRequest(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		t := newTable()
		t.AppendRows([]table.Row{
			{"Reference", request.ReferenceNumber},
			{"Type", request.Type},
			{"Contact", request.ContactEmail},
		})
		t.Render()

		if len(request.Messages) > 0 {
			t = newTable()
			t.SetColumnConfigs([]table.ColumnConfig{
				{Number: 3, WidthMax: 80, WidthMaxEnforcer: text.WrapSoft},
			})
			t.AppendHeader(table.Row{"Sent", "From", "Message"})
			for _, m := range request.Messages {
				sent := m.Date + " " + m.Time
				if !m.SentAt.IsZero() {
					sent = m.SentAt.Format(time.DateTime)
				}
				t.AppendRow(table.Row{sent, m.Sender, m.Body})
			}
			t.Render()
		}

		if len(request.Attachments) > 0 {
			t = newTable()
			t.AppendHeader(table.Row{"File", "Uploaded", "Link"})
			for _, a := range request.Attachments {
				link := a.URL.String()
				switch {
				case a.Expired:
					link = "expired"
				case !a.Expires.IsZero():
					link = fmt.Sprintf("%s\n(until %s)", link, a.Expires.Format(time.DateTime))
				}
				t.AppendRow(table.Row{a.Filename, a.Uploaded, link})
			}
			t.Render()
		}
		return nil
	},
}
