package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v2"

	"mgnregs/internal/backend"
	"mgnregs/internal/config"
	"mgnregs/internal/core"
	apphttp "mgnregs/internal/http"
	"mgnregs/internal/log"
	"mgnregs/internal/storage"
)

// =============================================================================
// QUERY COMMAND
// =============================================================================

func queryCommand() *cli.Command {
	return &cli.Command{
		Name:  "query",
		Usage: "Fetch monthly records for a district, printing the endpoint's JSON response",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "district", Aliases: []string{"d"}, Usage: "District name, any spelling"},
			&cli.StringFlag{Name: "month", Aliases: []string{"m"}, Usage: "Calendar month, MM"},
			&cli.StringFlag{Name: "year", Aliases: []string{"y"}, Usage: "Calendar year, YYYY"},
			&cli.BoolFlag{Name: "pretty", Usage: "Indent the JSON output"},
		},
		Action: runQuery,
	}
}

func runQuery(c *cli.Context) error {
	logger := cliLogger(c)

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return err
	}
	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return err
	}
	// one-shot: no cache, no events
	backendCfg.CacheTTL = 0
	backendCfg.Publisher = backend.NoPublisher

	result, err := backend.NewFactory(logger).CreateBackend(c.Context, backendCfg)
	if err != nil {
		return err
	}
	defer result.Cleanup()

	values := url.Values{}
	values.Set("district", c.String("district"))
	values.Set("month", c.String("month"))
	values.Set("year", c.String("year"))

	ctx := log.WithContext(c.Context, logger)
	status, payload := apphttp.NewMonthlyHandler(result.Backend).Respond(ctx, values)
	status, body := apphttp.NewJSONResponse().Status(status).Payload(payload).Build()

	if c.Bool("pretty") {
		var v any
		if err := json.Unmarshal(body, &v); err == nil {
			if indented, err := json.MarshalIndent(v, "", "  "); err == nil {
				body = append(indented, '\n')
			}
		}
	}
	c.App.Writer.Write(body)

	if status != http.StatusOK {
		return fmt.Errorf("query failed with status %d", status)
	}
	return nil
}

// =============================================================================
// NORMALIZE COMMAND
// =============================================================================

func normalizeCommand() *cli.Command {
	return &cli.Command{
		Name:      "normalize",
		Usage:     "Show the canonical upstream name for district spellings",
		ArgsUsage: "NAME [NAME...]",
		Action: func(c *cli.Context) error {
			if c.NArg() == 0 {
				return fmt.Errorf("at least one district name is required")
			}
			tw := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "INPUT\tCANONICAL")
			for _, name := range c.Args().Slice() {
				fmt.Fprintf(tw, "%s\t%s\n", name, core.NormalizeDistrict(name))
			}
			return tw.Flush()
		},
	}
}

// =============================================================================
// HISTORY COMMAND
// =============================================================================

func historyCommand() *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "List recent queries and per-district totals from the query log",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "db",
				Usage:   "Path to the SQLite query log",
				EnvVars: []string{"SQLITE_DB_PATH"},
				Value:   "./data/mgnregs.db",
			},
			&cli.IntFlag{Name: "limit", Aliases: []string{"n"}, Value: 20, Usage: "Number of recent queries to show"},
		},
		Action: runHistory,
	}
}

func runHistory(c *cli.Context) error {
	repo, err := storage.NewQueryLogRepository(c.String("db"))
	if err != nil {
		return err
	}
	defer repo.Close()

	ctx := c.Context
	events, err := repo.ListRecent(ctx, c.Int("limit"))
	if err != nil {
		return err
	}
	counts, err := repo.CountByDistrict(ctx)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tDISTRICT\tMONTH\tFIN YEAR\tOUTCOME\tRECORDS\tFALLBACK\tCACHED")
	for _, ev := range events {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\t%t\t%t\n",
			ev.OccurredAt.Local().Format(time.DateTime),
			ev.NormalizedDistrict, ev.MonthName, ev.FinYear, ev.Outcome,
			ev.RecordCount, ev.FallbackUsed, ev.CacheHit)
	}
	fmt.Fprintln(tw)
	fmt.Fprintln(tw, "DISTRICT\tQUERIES\tRECORDS")
	for _, dc := range counts {
		fmt.Fprintf(tw, "%s\t%d\t%d\n", dc.District, dc.Queries, dc.Records)
	}
	return tw.Flush()
}

// cliLogger writes to stderr so stdout carries only command output.
func cliLogger(c *cli.Context) *log.Logger {
	logCfg := log.DefaultConfig()
	logCfg.Component = log.ComponentCLI
	logCfg.Output = os.Stderr
	logCfg.Level = slog.LevelWarn
	_ = logCfg.Level.UnmarshalText([]byte(c.String("log-level")))
	return log.New(logCfg)
}
