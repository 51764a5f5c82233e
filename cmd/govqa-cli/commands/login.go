package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(loginCmd)
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Verify the configured credentials.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := openLoggedIn(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("logged in as %s (customer %s)\n", config.Username, client.Session().CustomerId())
		return nil
	},
}
