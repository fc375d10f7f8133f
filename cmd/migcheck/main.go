package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:           "migcheck",
	Short:         "Walk a migration history and check that every step is reversible",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	// Defaults
	v := viper.GetViper()
	v.SetDefault("config", "./migcheck.yaml")

	// Environment variables support: MIGCHECK_CONFIG, ...
	v.SetEnvPrefix("MIGCHECK")
	v.AutomaticEnv()
	rootCmd.PersistentFlags().String("config", v.GetString("config"), "path to a migcheck config yaml")
	_ = v.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))

	upCmd.Flags().String("to", "heads", "revision to upgrade to")
	downCmd.Flags().String("to", "base", "revision to downgrade to")
	revisionCmd.Flags().StringP("message", "m", "", "message for the new revision")
	revisionCmd.Flags().String("parent", "", "down revision (defaults to the single head)")

	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(upCmd)
	rootCmd.AddCommand(downCmd)
	rootCmd.AddCommand(currentCmd)
	rootCmd.AddCommand(headsCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(stampCmd)
	rootCmd.AddCommand(revisionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		exitHandler.LogFatalError(err, "command execution failed")
	}
}
