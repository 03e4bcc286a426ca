// moexidx: incremental MOEX time-series cache and custom index engine.
//
// Main CLI entrypoint using cobra command framework.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/seenimoa/moexidx/api"
	"github.com/seenimoa/moexidx/internal/app"
	"github.com/seenimoa/moexidx/internal/config"
	"github.com/seenimoa/moexidx/internal/export"
	"github.com/seenimoa/moexidx/internal/index"
	"github.com/seenimoa/moexidx/internal/infra"
	"github.com/seenimoa/moexidx/pkg/utils"
)

// Build-time variables (set via -ldflags).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Global config
var cfg *config.Config

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "moexidx",
	Short: "moexidx: MOEX time-series cache and custom index engine",
	Long: `moexidx keeps daily MOEX share and benchmark closes in a local store,
fetching only the missing days, and builds custom fixed-weight indices
from the quarterly capitalization tables.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		configFile, _ := cmd.Flags().GetString("config")
		if configFile != "" {
			cfg, err = config.LoadFromFile(configFile)
		} else {
			cfg, err = config.Load()
		}
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
			cfg.Logging.Level = lvl
		}
		infra.SetupLogging(cfg.Logging)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "config file path (default: ./config/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level override (debug, info, warn, error)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(securitiesCmd)
	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(statusCmd)
}

// withApp builds the application for one command and closes it afterwards.
func withApp(fn func(ctx context.Context, a *app.App) error) error {
	a, err := app.New(cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(context.Background(), a)
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// dateFlag reads an optional YYYY-MM-DD flag; empty yields the zero time.
func dateFlag(cmd *cobra.Command, name string) (time.Time, error) {
	s, _ := cmd.Flags().GetString(name)
	if s == "" {
		return time.Time{}, nil
	}
	d, err := utils.ParseDate(s)
	if err != nil {
		return time.Time{}, fmt.Errorf("--%s: %w", name, err)
	}
	return d, nil
}

// --- Version Command ---

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return nil
	},
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("moexidx %s\n", version)
		fmt.Printf("  commit:  %s\n", commit)
		fmt.Printf("  built:   %s\n", date)
	},
}

// --- Serve Command (API Server) ---

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app.App) error {
			api.Version = version
			srv := api.NewServer(cfg, a.Index, a.Store)
			return srv.ListenAndServe(fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port))
		})
	},
}

// --- Sync Command ---

var syncCmd = &cobra.Command{
	Use:   "sync [secid...]",
	Short: "Fill the local store with daily closes up to yesterday",
	Long: `Fetch the missing daily closes of the given securities, and of the
benchmark with --benchmark, from the cache epoch up to yesterday.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		withBench, _ := cmd.Flags().GetBool("benchmark")
		ids := utils.NormalizeSecIDs(args)
		if withBench {
			ids = append(ids, cfg.MOEX.Benchmark)
		}
		if len(ids) == 0 {
			return fmt.Errorf("provide at least one secid or --benchmark")
		}
		return withApp(func(ctx context.Context, a *app.App) error {
			for _, id := range ids {
				n, err := a.Series(id).Sync(ctx, id)
				if err != nil {
					return err
				}
				fmt.Printf("  %-10s %6d closes\n", id, n)
			}
			return nil
		})
	},
}

func init() {
	syncCmd.Flags().Bool("benchmark", false, "also sync the benchmark series")
}

// --- Securities Command ---

var securitiesCmd = &cobra.Command{
	Use:   "securities",
	Short: "List the securities of a quarterly capitalization table",
	RunE: func(cmd *cobra.Command, args []string) error {
		year, _ := cmd.Flags().GetInt("year")
		quarter, _ := cmd.Flags().GetInt("quarter")
		return withApp(func(ctx context.Context, a *app.App) error {
			secs, err := a.Index.Securities(ctx, year, quarter)
			if err != nil {
				return err
			}
			for _, s := range secs {
				fmt.Printf("  %-10s %s\n", s.SecID, s.Name)
			}
			fmt.Printf("\n  %d securities in %dQ%d\n", len(secs), year, quarter)
			return nil
		})
	},
}

func init() {
	y, q := utils.QuarterOf(utils.Today())
	securitiesCmd.Flags().Int("year", y, "capitalization table year")
	securitiesCmd.Flags().Int("quarter", q, "capitalization table quarter (1-4)")
}

// --- Index Commands ---

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Create, list and value custom indices",
}

var indexCreateCmd = &cobra.Command{
	Use:   "create [secid...]",
	Short: "Create a custom index",
	Long: `Create a custom index from a set of securities.

Examples:
  moexidx index create --name "Banks" --weighting market_cap SBER VTBR TCSG
  moexidx index create --name "Custom" --weighting custom SBER=2 GAZP=1`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("name")
		weighting, _ := cmd.Flags().GetString("weighting")
		base, err := dateFlag(cmd, "base-date")
		if err != nil {
			return err
		}
		secs, err := parseSecurities(args)
		if err != nil {
			return err
		}
		return withApp(func(ctx context.Context, a *app.App) error {
			d, err := a.Index.Create(ctx, index.CreateRequest{
				Name:       name,
				BaseDate:   base,
				Weighting:  weighting,
				Securities: secs,
			})
			if err != nil {
				return err
			}
			return printJSON(d)
		})
	},
}

// parseSecurities reads "SECID" or "SECID=weight" arguments.
func parseSecurities(args []string) ([]index.SecurityRequest, error) {
	out := make([]index.SecurityRequest, 0, len(args))
	for _, arg := range args {
		secid, w, found := strings.Cut(arg, "=")
		req := index.SecurityRequest{SecID: secid}
		if found {
			var v float64
			if _, err := fmt.Sscanf(w, "%g", &v); err != nil {
				return nil, fmt.Errorf("invalid weight in %q", arg)
			}
			req.CustomWeight = &v
		}
		out = append(out, req)
	}
	return out, nil
}

var indexListCmd = &cobra.Command{
	Use:   "list [query]",
	Short: "List indices, optionally filtered by name",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		q := ""
		if len(args) == 1 {
			q = args[0]
		}
		return withApp(func(ctx context.Context, a *app.App) error {
			list, err := a.Index.List(ctx, q)
			if err != nil {
				return err
			}
			for _, idx := range list {
				fmt.Printf("  %4d  %-30s %-14s %s  %.4f\n",
					idx.ID, idx.Name, idx.Weighting, utils.FormatDate(idx.BaseDate), idx.BaseValue)
			}
			return nil
		})
	},
}

var indexValueCmd = &cobra.Command{
	Use:   "value [id]",
	Short: "Value an index at the latest prices",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseIndexID(args[0])
		if err != nil {
			return err
		}
		return withApp(func(ctx context.Context, a *app.App) error {
			v, err := a.Index.Value(ctx, id)
			if err != nil {
				return err
			}
			fmt.Printf("  %s  %.4f\n", utils.FormatDate(v.Date), v.Value)
			return nil
		})
	},
}

var indexSeriesCmd = &cobra.Command{
	Use:   "series [id]",
	Short: "Print the daily series of an index",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseIndexID(args[0])
		if err != nil {
			return err
		}
		from, err := dateFlag(cmd, "from")
		if err != nil {
			return err
		}
		till, err := dateFlag(cmd, "till")
		if err != nil {
			return err
		}
		withBench, _ := cmd.Flags().GetBool("benchmark")
		return withApp(func(ctx context.Context, a *app.App) error {
			pts, err := a.Index.Series(ctx, id, from, till, withBench)
			if err != nil {
				return err
			}
			for _, p := range pts {
				line := fmt.Sprintf("  %s  %12.4f", utils.FormatDate(p.Date), p.Value)
				if p.Benchmark != nil {
					line += fmt.Sprintf("  %12.4f", *p.Benchmark)
				}
				fmt.Println(line)
			}
			return nil
		})
	},
}

var indexStatsCmd = &cobra.Command{
	Use:   "stats [id]",
	Short: "Compute performance statistics of an index against the benchmark",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseIndexID(args[0])
		if err != nil {
			return err
		}
		from, err := dateFlag(cmd, "from")
		if err != nil {
			return err
		}
		till, err := dateFlag(cmd, "till")
		if err != nil {
			return err
		}
		return withApp(func(ctx context.Context, a *app.App) error {
			st, err := a.Index.Stats(ctx, id, from, till)
			if err != nil {
				return err
			}
			return printJSON(st)
		})
	},
}

func parseIndexID(s string) (int64, error) {
	var id int64
	if _, err := fmt.Sscanf(s, "%d", &id); err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid index id %q", s)
	}
	return id, nil
}

func init() {
	indexCreateCmd.Flags().String("name", "", "index name")
	indexCreateCmd.Flags().String("weighting", "equal", "weighting scheme (equal, market_cap, cap_freefloat, cap_divyield, custom)")
	indexCreateCmd.Flags().String("base-date", "", "base date YYYY-MM-DD (default: today)")
	_ = indexCreateCmd.MarkFlagRequired("name")

	for _, c := range []*cobra.Command{indexSeriesCmd, indexStatsCmd} {
		c.Flags().String("from", "", "first day YYYY-MM-DD (default: base date)")
		c.Flags().String("till", "", "last day YYYY-MM-DD (default: today)")
	}
	indexSeriesCmd.Flags().Bool("benchmark", false, "include the benchmark close")

	indexCmd.AddCommand(indexCreateCmd, indexListCmd, indexValueCmd, indexSeriesCmd, indexStatsCmd)
}

// --- Export Command ---

var exportCmd = &cobra.Command{
	Use:   "export [id]",
	Short: "Export the series of an index with the benchmark to parquet",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseIndexID(args[0])
		if err != nil {
			return err
		}
		from, err := dateFlag(cmd, "from")
		if err != nil {
			return err
		}
		till, err := dateFlag(cmd, "till")
		if err != nil {
			return err
		}
		out, _ := cmd.Flags().GetString("out")
		if out == "" {
			out = fmt.Sprintf("index_%d.parquet", id)
		}
		return withApp(func(ctx context.Context, a *app.App) error {
			pts, err := a.Index.Series(ctx, id, from, till, true)
			if err != nil {
				return err
			}
			if err := export.WriteSeries(out, id, pts); err != nil {
				return err
			}
			fmt.Printf("  wrote %d rows to %s\n", len(pts), out)
			return nil
		})
	},
}

func init() {
	exportCmd.Flags().String("from", "", "first day YYYY-MM-DD (default: base date)")
	exportCmd.Flags().String("till", "", "last day YYYY-MM-DD (default: today)")
	exportCmd.Flags().String("out", "", "output file (default: index_<id>.parquet)")
}

// --- Status Command ---

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show system status and configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println("═══════════════════════════════════════")
		fmt.Println("  moexidx: System Status")
		fmt.Println("═══════════════════════════════════════")
		fmt.Printf("  Version:       %s (%s)\n", version, commit)
		fmt.Printf("  Market Status: %s\n", utils.MarketStatus())
		fmt.Printf("  Time (MSK):    %s\n", utils.FormatDateTimeMSK(utils.NowMSK()))
		fmt.Println()

		fmt.Println("  Configuration:")
		fmt.Printf("    Store:         %s (%s)\n", cfg.Store.Driver, config.RedactDSN(cfg.Store.DSN))
		fmt.Printf("    Board:         %s\n", cfg.MOEX.Board)
		fmt.Printf("    Benchmark:     %s (%s)\n", cfg.MOEX.Benchmark, cfg.MOEX.BenchmarkBoard)
		fmt.Printf("    Gap Model:     %s\n", cfg.Cache.GapModel)
		fmt.Printf("    Fill Missing:  %s\n", cfg.Valuation.FillMissing)
		fmt.Printf("    API Server:    %s:%d\n", cfg.API.Host, cfg.API.Port)
		fmt.Println()

		fmt.Println("  Credentials:")
		for _, k := range config.CheckSecrets(cfg) {
			status := "❌ not set"
			if k.IsSet {
				status = fmt.Sprintf("✅ set (%s: %s)", k.Source, k.Masked)
			}
			fmt.Printf("    %-25s %s\n", k.Name+":", status)
		}
		fmt.Println()

		err := withApp(func(ctx context.Context, a *app.App) error {
			ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			return a.Store.Ping(ctx)
		})
		if err != nil {
			log.Warn().Err(err).Msg("store unreachable")
			fmt.Printf("  Store:         ❌ %v\n", err)
		} else {
			fmt.Println("  Store:         ✅ reachable")
		}
		fmt.Println("═══════════════════════════════════════")
		return nil
	},
}
