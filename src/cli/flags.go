package cli

func (c *RootCommand) initFlags() {
	c.PersistentFlags().StringVarP(
		&c.Options.EnvPath,
		"env",
		"e",
		"",
		"Path to the .env configuration file",
	)
}
