// Command jury-sim runs in-process judging simulations and generates fixture files.
package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/okian/jury/internal/adapters/repository"
	"github.com/okian/jury/internal/adapters/repository/sqlstore"
	"github.com/okian/jury/internal/simulate"
	"github.com/okian/jury/pkg/logger"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "jury-sim",
		Usage: "simulate concurrent judges against the scoring service",
		Commands: []*cli.Command{
			runCommand(),
			fixturesCommand(),
		},
	}
}

func sizeFlags() []cli.Flag {
	d := simulate.DefaultConfig()
	return []cli.Flag{
		&cli.IntFlag{Name: "competitions", Value: d.Competitions, Usage: "competitions to generate"},
		&cli.IntFlag{Name: "entries", Value: d.Entries, Usage: "submitted entries per competition"},
		&cli.IntFlag{Name: "judges", Value: d.Judges, Usage: "active judges per competition"},
		&cli.IntFlag{Name: "criteria", Value: d.Criteria, Usage: "criteria per competition"},
		&cli.Uint64Flag{Name: "seed", Usage: "random seed; 0 picks one from the clock"},
	}
}

func configFrom(c *cli.Context) simulate.Config {
	cfg := simulate.DefaultConfig()
	cfg.Competitions = c.Int("competitions")
	cfg.Entries = c.Int("entries")
	cfg.Judges = c.Int("judges")
	cfg.Criteria = c.Int("criteria")
	if c.IsSet("concurrency") {
		cfg.Concurrency = c.Int("concurrency")
	}
	if c.IsSet("resubmits") {
		cfg.Resubmits = c.Int("resubmits")
	}
	if seed := c.Uint64("seed"); seed != 0 {
		cfg.Seed = seed
	}
	return cfg
}

func runCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "seed a store, score every pair concurrently and verify the result",
		Flags: append(sizeFlags(),
			&cli.IntFlag{Name: "concurrency", Value: simulate.DefaultConcurrency, Usage: "pairs scored at once"},
			&cli.IntFlag{Name: "resubmits", Value: simulate.DefaultResubmits, Usage: "full rescoring rounds per pair"},
			&cli.StringFlag{Name: "store", Value: "memory", Usage: "memory, sqlite or postgres"},
			&cli.StringFlag{Name: "dsn", Usage: "database DSN for sqlite or postgres", EnvVars: []string{"JURY_STORE_DSN"}},
			&cli.StringFlag{Name: "log-level", Value: "info", Usage: "debug, info, warn or error"},
			&cli.StringFlag{Name: "log-format", Value: logger.FormatText, Usage: "text or json"},
		),
		Action: func(c *cli.Context) error {
			if err := logger.Init(
				logger.WithFormat(c.String("log-format")),
				logger.WithLevel(c.String("log-level")),
				logger.WithWriter(c.App.ErrWriter),
			); err != nil {
				return err
			}
			log := logger.Named("jury-sim")

			store, err := openStore(c, log)
			if err != nil {
				return err
			}

			report, err := simulate.NewRunner(configFrom(c), store, log).Run(c.Context)
			if report != nil {
				printReport(c.App.Writer, report)
			}
			return err
		},
	}
}

func openStore(c *cli.Context, log logger.Logger) (repository.Store, error) {
	switch driver := c.String("store"); driver {
	case "memory":
		return repository.NewMemoryStore(), nil
	case sqlstore.DriverSQLite, sqlstore.DriverPostgres:
		if c.String("dsn") == "" {
			return nil, fmt.Errorf("--dsn is required for the %s store", driver)
		}
		return sqlstore.Open(c.Context, driver, c.String("dsn"), sqlstore.WithLogger(log.Named("sqlstore")))
	default:
		return nil, fmt.Errorf("unknown store %q", driver)
	}
}

func printReport(w io.Writer, r *simulate.Report) {
	_, _ = fmt.Fprintf(w, "seed:          %d\n", r.Seed)
	_, _ = fmt.Fprintf(w, "pairs:         %d\n", r.Pairs)
	_, _ = fmt.Fprintf(w, "submissions:   %d (%d rejected)\n", r.Submissions, r.Rejected)
	_, _ = fmt.Fprintf(w, "score rows:    %d / %d\n", r.ScoreRows, r.ExpectedRows)
	_, _ = fmt.Fprintf(w, "duration:      %s (%.0f/s)\n", r.Duration.Round(time.Millisecond), r.SubmissionsPerSecond())
	for comp, top := range r.Leaders {
		_, _ = fmt.Fprintf(w, "leader %s: %s %.3f\n", comp, top.Title, top.WeightedScore)
	}
}

func fixturesCommand() *cli.Command {
	return &cli.Command{
		Name:  "fixtures",
		Usage: "write generated reference data as a YAML fixtures file",
		Flags: append(sizeFlags(),
			&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Usage: "output path; stdout when empty"},
		),
		Action: func(c *cli.Context) error {
			f := simulate.Fixtures(configFrom(c), time.Now().UTC().Truncate(time.Second))
			raw, err := yaml.Marshal(f)
			if err != nil {
				return fmt.Errorf("encode fixtures: %w", err)
			}
			if path := c.String("out"); path != "" {
				return os.WriteFile(path, raw, 0o600)
			}
			_, err = c.App.Writer.Write(raw)
			return err
		},
	}
}
