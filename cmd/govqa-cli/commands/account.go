package commands

import (
	"context"
	"fmt"

	"github.com/mazen160/go-random"
	"github.com/spf13/cobra"
)

var accountFlags formFlags
var generatePassword bool

func init() {
	accountFlags.register(newAccountCmd)
	newAccountCmd.Flags().BoolVar(&generatePassword, "generate-password", false, "use a random password and print it")
	rootCmd.AddCommand(newAccountCmd)
}

const passwordLabel = "password"

var newAccountCmd = &cobra.Command{
	Use:   "new-account",
	Short: "Create a customer account, fields not given by flags are asked for.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		values, err := accountFlags.values()
		if err != nil {
			return err
		}
		if generatePassword {
			values[passwordLabel], err = random.String(16)
			if err != nil {
				return err
			}
		}

		client, err := openClient(cmd.Context())
		if err != nil {
			return err
		}
		f, err := client.NewAccountForm(cmd.Context())
		if err != nil {
			return err
		}

		p := newPrompter(cmd)
		err = p.submit(cmd.Context(), f.Form, accountFlags, values, func(ctx context.Context, values map[string]string) error {
			_, err := f.Submit(ctx, values)
			return err
		})
		if err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), "account created, customer", client.Session().CustomerId())
		if generatePassword {
			fmt.Fprintln(cmd.OutOrStdout(), "password:", values[passwordLabel])
		}
		return nil
	},
}
