package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var requestFlags formFlags

func init() {
	requestFlags.register(requestCmd)
	rootCmd.AddCommand(requestCmd)
}

var requestCmd = &cobra.Command{
	Use:   "request <type>",
	Short: "Submit a records request of the given type, fields not given by flags are asked for.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		values, err := requestFlags.values()
		if err != nil {
			return err
		}

		client, err := openLoggedIn(cmd.Context())
		if err != nil {
			return err
		}
		f, err := client.RequestForm(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		reference := ""
		p := newPrompter(cmd)
		err = p.submit(cmd.Context(), f.Form, requestFlags, values, func(ctx context.Context, values map[string]string) error {
			var err error
			reference, err = f.Submit(ctx, values)
			return err
		})
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "request submitted, reference", reference)
		return nil
	},
}
