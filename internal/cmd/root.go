package cmd

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/esinanturan/Acontext/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "acontext-learner",
	Short: "Skill learning pipeline for agent task transcripts",
	Long: `Acontext-learner runs the asynchronous skill learning pipeline:
it consumes completed task announcements, distills their transcripts into
reusable lessons, and folds those lessons into skill documents under
exclusive leases.`,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is $HOME/.config/acontext/config.yaml)")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
}

func initConfig() {
	// Set defaults first so they're available even without a config file
	config.SetDefaults()

	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(config.ConfigDir())
		viper.AddConfigPath("$HOME/.config/acontext")
		viper.AddConfigPath(".")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("ACONTEXT")
	// Replace dots with underscores for nested keys in env vars
	// e.g., ACONTEXT_WORKER_MAX_ATTEMPTS for worker.max_attempts
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file if it exists (ignore error if not found)
	_ = viper.ReadInConfig()
}
