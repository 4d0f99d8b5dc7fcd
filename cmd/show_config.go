package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration",
	Long:  `Print the configuration after merging the config file, environment and flags, with secrets redacted.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		config := loadConfig()

		out, err := yaml.Marshal(config.Redacted())
		if err != nil {
			return fmt.Errorf("failed to render configuration: %w", err)
		}

		w := cmd.OutOrStdout()
		if used := viper.ConfigFileUsed(); used != "" {
			fmt.Fprintf(w, "# %s\n", used)
		}
		_, err = w.Write(out)
		return err
	},
}
