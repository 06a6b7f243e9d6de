package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/libstat/config"
	"github.com/teranos/libstat/errors"
)

// ConfigCmd groups configuration file commands
var ConfigCmd = &cobra.Command{
	Use:   "config",
	Short: "Show, create and check configuration files",
	Long: `Manage libstat.toml.

Configuration sources (in order of precedence):
1. --config flag
2. STAT_* environment variables (process-wide settings only)
3. ./libstat.toml
4. <user config dir>/libstat/libstat.toml
5. /etc/libstat/libstat.toml

Examples:
  statd config show                  # Show the effective configuration
  statd config show --format yaml    # Same, as YAML
  statd config init --dir /var/lib/libstat
  statd config check                 # Validate and report unknown keys`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Args:  cobra.NoArgs,
	RunE:  runConfigShow,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a sample configuration",
	Long: `Write a sample configuration with one bayes classifier and a spam/ham
statfile pair on the mmap backend. An existing file is rotated into
.back1 before it is replaced.`,
	Args: cobra.NoArgs,
	RunE: runConfigInit,
}

var configCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate the configuration file",
	Long: `Validate the configuration structure and report keys that do not
map onto any setting. Provider names are only checked by "statd check".`,
	Args: cobra.NoArgs,
	RunE: runConfigCheck,
}

var (
	configFormat  string
	configDataDir string
)

func init() {
	configShowCmd.Flags().StringVar(&configFormat, "format", "toml", "Output format: toml, yaml")
	configInitCmd.Flags().StringVar(&configDataDir, "dir", ".", "Directory for statfiles and the learn cache")

	ConfigCmd.AddCommand(configShowCmd)
	ConfigCmd.AddCommand(configInitCmd)
	ConfigCmd.AddCommand(configCheckCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(ConfigPath)
	if err != nil {
		return err
	}

	var data []byte
	switch configFormat {
	case "toml":
		data, err = cfg.TOML()
	case "yaml":
		data, err = cfg.YAML()
	default:
		return errors.Newf("unsupported format: %s (use toml or yaml)", configFormat)
	}
	if err != nil {
		return err
	}
	fmt.Print(string(data))
	return nil
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path := ConfigPath
	if path == "" {
		path = config.ConfigFileName
	}

	dir, err := filepath.Abs(configDataDir)
	if err != nil {
		return errors.Wrapf(err, "resolve %s", configDataDir)
	}
	if err := os.MkdirAll(dir, 0750); err != nil {
		return errors.Wrapf(err, "create %s", dir)
	}

	if err := config.Write(path, config.Sample(dir)); err != nil {
		return err
	}
	pterm.Success.Printf("Wrote %s\n", path)
	return nil
}

func runConfigCheck(cmd *cobra.Command, args []string) error {
	path := ConfigPath
	if path == "" {
		path = config.ConfigFileName
	}

	if _, err := config.LoadFromFile(path); err != nil {
		pterm.Error.Println("Configuration is invalid")
		return err
	}

	unknown, err := config.CheckUnknownKeys(path)
	if err != nil {
		return err
	}
	if len(unknown) > 0 {
		for _, k := range unknown {
			pterm.Warning.Printf("Unknown key: %s\n", k)
		}
		return errors.Newf("%d unknown keys in %s", len(unknown), path)
	}

	pterm.Success.Printf("%s is valid\n", path)
	return nil
}
