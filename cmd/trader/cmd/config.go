package cmd

import (
	"fmt"

	"github.com/rustyeddy/papertrader/config"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Generate, show or validate configuration files",
	Long: `Manage trader configuration files.

Subcommands:
  init     - Generate a default configuration file
  show     - Print the effective configuration (file + .env + TRADER_* overrides)
  validate - Validate an existing configuration file

Examples:
  trader config init -o trader.yaml
  trader config show -c trader.yaml
  trader config validate -f trader.yaml`,
	// Subcommands load what they need themselves.
	PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate a default configuration file",
	Args:  cobra.NoArgs,
	RunE:  runConfigInit,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration as YAML",
	Args:  cobra.NoArgs,
	RunE:  runConfigShow,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a configuration file",
	Args:  cobra.NoArgs,
	RunE:  runConfigValidate,
}

var (
	configInitOutput   string
	configValidatePath string
)

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configValidateCmd)

	configInitCmd.Flags().StringVarP(&configInitOutput, "output", "o", "trader.yaml", "output config file path")
	configValidateCmd.Flags().StringVarP(&configValidatePath, "file", "f", "", "path to config file (required)")
	_ = configValidateCmd.MarkFlagRequired("file")
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	if err := config.Default().SaveToFile(configInitOutput); err != nil {
		return fmt.Errorf("save config: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Created default configuration: %s\n", configInitOutput)
	fmt.Fprintln(out, "\nEdit the file and run with:")
	fmt.Fprintf(out, "  trader backtest -c %s\n", configInitOutput)
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	c, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	c, err := config.LoadFromFile(configValidatePath)
	if err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Configuration valid: %s\n", configValidatePath)
	fmt.Fprintf(out, "  Account: %s ($%.2f)\n", c.Account.ID, c.Account.InitialCapital)
	fmt.Fprintf(out, "  Risk: %.1f%% per trade, stop %.1f%%, max position %.1f%%\n",
		c.Risk.RiskPerTradePct*100, c.Risk.StopLossPct*100, c.Risk.MaxPositionSizePct*100)
	fmt.Fprintf(out, "  Breakers: daily loss %.1f%%, drawdown %.1f%%\n",
		c.Risk.MaxDailyLossPct*100, c.Risk.MaxDrawdownPct*100)
	fmt.Fprintf(out, "  Journal: %s\n", c.Journal.Type)
	return nil
}
