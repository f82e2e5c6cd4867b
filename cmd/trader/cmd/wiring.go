package cmd

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/rustyeddy/papertrader/config"
	"github.com/rustyeddy/papertrader/journal"
	"github.com/rustyeddy/papertrader/sim"
)

// openJournal builds the configured sink. The caller closes it.
func openJournal(jc config.JournalConfig) (journal.Journal, error) {
	switch jc.Type {
	case "", "none":
		return journal.Discard, nil
	case "csv":
		j, err := journal.NewCSV(jc.TradesFile, jc.EquityFile)
		if err != nil {
			return nil, fmt.Errorf("open csv journal: %w", err)
		}
		return j, nil
	case "sqlite":
		j, err := journal.NewSQLite(jc.DBPath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite journal: %w", err)
		}
		return j, nil
	}
	return nil, fmt.Errorf("unknown journal type %q", jc.Type)
}

func newEngine(c *config.Config, j journal.Journal, log zerolog.Logger, listeners ...sim.Listener) (*sim.Engine, error) {
	rc, err := c.RiskConfig()
	if err != nil {
		return nil, err
	}
	opts := []sim.Option{
		sim.WithJournal(j),
		sim.WithFeeRate(c.Execution.FeeRate),
		sim.WithLogger(log),
	}
	for _, l := range listeners {
		opts = append(opts, sim.WithListener(l))
	}
	return sim.NewEngine(rc, c.Account.InitialCapital, opts...)
}
