package cmd

import (
	"fmt"
	"time"

	"github.com/rustyeddy/papertrader/journal"
	"github.com/spf13/cobra"
)

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Query and export the SQLite trade journal",
	Long: `Query and export trade journal records from a SQLite database.

Subcommands:
  trade  - Details of one trade by ID
  day    - Trades executed on a specific day
  export - Every trade in execution order, as CSV or Org

Examples:
  trader journal trade 01HX3K...
  trader journal day 2024-01-15
  trader journal export --format csv > trades.csv`,
}

var journalTradeCmd = &cobra.Command{
	Use:   "trade <trade-id>",
	Short: "Get details of a specific trade",
	Args:  cobra.ExactArgs(1),
	RunE:  runJournalTrade,
}

var journalDayCmd = &cobra.Command{
	Use:   "day <YYYY-MM-DD>",
	Short: "List trades executed on a specific day",
	Args:  cobra.ExactArgs(1),
	RunE:  runJournalDay,
}

var journalExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export every trade in execution order",
	Args:  cobra.NoArgs,
	RunE:  runJournalExport,
}

var (
	journalDBPath string
	journalFormat string
)

func init() {
	rootCmd.AddCommand(journalCmd)
	journalCmd.AddCommand(journalTradeCmd)
	journalCmd.AddCommand(journalDayCmd)
	journalCmd.AddCommand(journalExportCmd)

	journalCmd.PersistentFlags().StringVarP(&journalDBPath, "db", "d", "", "path to SQLite journal DB (default journal.db_path)")
	journalExportCmd.Flags().StringVarP(&journalFormat, "format", "f", "csv", "output format: csv or org")
}

func openSQLite() (*journal.SQLite, error) {
	path := journalDBPath
	if path == "" {
		path = cfg.Journal.DBPath
	}
	if path == "" {
		return nil, fmt.Errorf("no journal database: pass --db or set journal.db_path")
	}
	j, err := journal.NewSQLite(path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	return j, nil
}

func runJournalTrade(cmd *cobra.Command, args []string) error {
	j, err := openSQLite()
	if err != nil {
		return err
	}
	defer j.Close()

	rec, err := j.GetTrade(args[0])
	if err != nil {
		return fmt.Errorf("get trade: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), journal.FormatTradeOrg(rec))
	return nil
}

func runJournalDay(cmd *cobra.Command, args []string) error {
	j, err := openSQLite()
	if err != nil {
		return err
	}
	defer j.Close()

	start, end, err := dayBounds(time.UTC, args[0])
	if err != nil {
		return fmt.Errorf("date: %w", err)
	}
	recs, err := j.ListTradesBetween(start, end)
	if err != nil {
		return fmt.Errorf("query trades: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), journal.FormatTradesOrg(recs))
	return nil
}

func runJournalExport(cmd *cobra.Command, args []string) error {
	j, err := openSQLite()
	if err != nil {
		return err
	}
	defer j.Close()

	recs, err := j.ListTrades()
	if err != nil {
		return fmt.Errorf("query trades: %w", err)
	}

	switch journalFormat {
	case "csv":
		return journal.WriteTradesCSV(cmd.OutOrStdout(), recs)
	case "org":
		fmt.Fprintln(cmd.OutOrStdout(), journal.FormatTradesOrg(recs))
		return nil
	}
	return fmt.Errorf("unknown format %q (want csv or org)", journalFormat)
}

func dayBounds(loc *time.Location, day string) (time.Time, time.Time, error) {
	t, err := time.ParseInLocation("2006-01-02", day, loc)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
	return start, start.Add(24 * time.Hour), nil
}
