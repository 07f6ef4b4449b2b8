package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"psdkit/internal/config"

	"github.com/spf13/cobra"
)

// ConfigCmd groups the settings file commands
var ConfigCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the settings file",
	Long: `Create or inspect the psdkit settings file.

Examples:
  psdkit config init            # Write ~/.psdkit.json with the defaults
  psdkit config show            # Print the settings in effect`,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a settings file with the defaults",
	Args:  cobra.NoArgs,
	Run:   runConfigInit,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the settings in effect",
	Args:  cobra.NoArgs,
	Run:   runConfigShow,
}

func init() {
	configInitCmd.Flags().BoolP("force", "f", false, "Overwrite an existing settings file")
	ConfigCmd.AddCommand(configInitCmd)
	ConfigCmd.AddCommand(configShowCmd)
}

// configTarget is the file the config commands act on
func configTarget() string {
	if ConfigPath != "" {
		return ConfigPath
	}
	return config.DefaultPath()
}

func runConfigInit(cmd *cobra.Command, args []string) {
	path := configTarget()
	if path == "" {
		exitWithError("cannot locate the home directory", "Pass --config with a path")
	}
	force, _ := cmd.Flags().GetBool("force")
	if _, err := os.Stat(path); err == nil && !force {
		exitWithError(fmt.Sprintf("%s already exists", path), "Pass --force to overwrite it")
	}
	if err := config.Default().Save(path); err != nil {
		exitWithError(err.Error(), "")
	}
	printSuccess(fmt.Sprintf("Wrote default settings to %s", path))
}

func runConfigShow(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		exitWithError(err.Error(), "")
	}
	fmt.Println(string(data))
}
