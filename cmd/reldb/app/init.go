package app

import (
	"github.com/spf13/cobra"

	"github.com/Blackdeer1524/RelDB/src/app"
)

func initInit() {
	rootCmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Creates the database and log file pair",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.Run(cmd.Context(), &app.InitEntrypoint{
				EnvPath: rootCmd.Options.EnvPath,
			})
		},
	})
}
