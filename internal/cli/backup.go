package cli

import (
	"github.com/spf13/cobra"
)

func NewBackupCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "backup",
		Short: "Dump all relations to S3 and rotate old backups",
		Long: `Writes every relation with its activation flag as gzip compressed JSON
lines to the configured bucket, then deletes all but the newest backup.keep
backups under backup.prefix.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := rootOpts.loadConfig()
			if err != nil {
				return err
			}
			a, err := newApp(cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			backup, err := a.backupService(cmd.Context())
			if err != nil {
				return err
			}
			result, err := backup.Run(cmd.Context())
			if err != nil {
				return err
			}

			out := newOutput(rootOpts, cmd)
			return out.Print(result, func(p *printer) {
				p.Linef("uploaded %s (%d relations)", result.Key, result.Records)
				for _, key := range result.Deleted {
					p.Linef("deleted %s", key)
				}
			})
		},
	}
}
