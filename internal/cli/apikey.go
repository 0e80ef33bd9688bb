package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/arxiv/relations/internal/service"
)

func NewAPIKeyCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apikey",
		Short: "Manage the API key protecting write routes",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "hash <key>",
		Short: "Print the bcrypt hash to put in server.apiKeyHash",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hash, err := service.HashAPIKey(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	})

	return cmd
}
