package commands

import (
	"encoding/json"
	"fmt"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Diomandeee/learnnko-sub000/am"
	"github.com/Diomandeee/learnnko-sub000/errors"
	"github.com/Diomandeee/learnnko-sub000/sym"
)

// ConfigCmd inspects the effective configuration
var ConfigCmd = &cobra.Command{
	Use:   "config",
	Short: sym.AM + " Show and validate configuration",
	Long: sym.AM + ` config - Show and validate configuration

Configuration sources (in order of precedence):
1. Environment variables (NKO_* prefix, e.g. NKO_BUDGET_MAX_DAILY_USD)
2. The config file (--config, $NKO_CONFIG or ./nkosched.toml)
3. Default values

Examples:
  nkosched config show                # Effective configuration as TOML
  nkosched config show --format yaml  # ... as YAML
  nkosched config validate            # Check the file without running`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	RunE:  runConfigShow,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration",
	RunE:  runConfigValidate,
}

func init() {
	configShowCmd.Flags().String("format", "toml", "Output format: toml, json, yaml")
	ConfigCmd.AddCommand(configShowCmd)
	ConfigCmd.AddCommand(configValidateCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("format")

	settings, err := am.Settings(am.ResolveConfigPath(ConfigPath))
	if err != nil {
		return err
	}

	var data []byte
	switch format {
	case "json":
		data, err = json.MarshalIndent(settings, "", "  ")
	case "yaml":
		data, err = yaml.Marshal(settings)
	case "toml":
		data, err = toml.Marshal(settings)
	default:
		return errors.Newf("unsupported format: %s (supported: toml, json, yaml)", format)
	}
	if err != nil {
		return errors.Wrapf(err, "failed to format config as %s", format)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	cfg, path, err := loadConfig()
	if err != nil {
		return err
	}
	if path == "" {
		path = "defaults"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s is valid: %s\n", sym.AM, path, cfg)
	return nil
}
