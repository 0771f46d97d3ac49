package cmd

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/in-the-loop-labs/pair-review-sub008/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "pair-review",
	Short: "Layered AI code review orchestrator",
	Long: `pair-review runs a layered analysis of a code change: three review
passes with different lenses execute in parallel against AI reviewer
CLIs, then a synthesis pass reconciles their findings into one review.`,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is $HOME/.config/pair-review/config.yaml)")
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
		viper.AddConfigPath(".")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("PAIR_REVIEW")
	// Replace dots with underscores for nested keys in env vars
	// e.g., PAIR_REVIEW_ENGINE_THROTTLE_MS for engine.throttle_ms
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file if it exists (ignore error if not found)
	if err := viper.ReadInConfig(); err != nil {
		// Fall back to a project-local dotfile.
		viper.SetConfigName(".pair-review")
		viper.AddConfigPath(".")
		_ = viper.ReadInConfig()
	}
}
