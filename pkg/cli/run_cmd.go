package cli

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"reportql/internal/config"
	"reportql/internal/domain"
	"reportql/internal/exec"
	"reportql/internal/fetch"
	"reportql/internal/sink"
)

func newRunCmd() *cobra.Command {
	var (
		schemaPath   string
		replayDir    string
		accounts     []string
		expandQuery  string
		expand       bool
		macros       []string
		output       string
		outputDir    string
		dbPath       string
		tableName    string
		perAccount   bool
		combinedView bool
		jsonLines    bool
		separator    string
		sequential   bool
		failPolicy   string
		skipConst    bool
		dumpPlan     bool
	)

	cmd := &cobra.Command{
		Use:   "run <script.rql>...",
		Short: "Run report scripts across accounts",
		Long:  "Compiles each script once and runs it for every account, writing rows to the selected output. Scripts run strictly in order.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadFromEnv()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("input") || cfg.ReplayDir == "" {
				cfg.ReplayDir = replayDir
			}
			if cfg.ReplayDir == "" {
				return fmt.Errorf("--input directory is required")
			}
			if len(accounts) == 0 {
				return fmt.Errorf("--account is required")
			}

			reg, err := loadRegistry(schemaPath)
			if err != nil {
				return err
			}
			params, err := parseParams(macros)
			if err != nil {
				return err
			}

			logger := slog.Default()
			client := fetch.NewRetryingClient(fetch.NewReplayClient(cfg.ReplayDir), logger)

			opts := exec.DefaultOptions()
			opts.Parallel = cfg.ParallelAccounts && !sequential
			opts.ParallelThreshold = cfg.ParallelThreshold
			opts.SkipConstants = skipConst
			opts.DumpPlan = dumpPlan
			policy := failPolicy
			if policy == "" {
				policy = cfg.FailPolicy
			}
			if strings.EqualFold(policy, "abort") {
				opts.FailPolicy = exec.AbortOnError
			}

			e := exec.New(reg, client, logger, opts)

			if expand || expandQuery != "" {
				accounts, err = e.ResolveAccountIDs(cmd.Context(), accounts, expandQuery, params)
				if err != nil {
					return fmt.Errorf("resolve accounts: %w", err)
				}
				logger.Info("resolved accounts", "count", len(accounts))
			}

			scripts := make([]exec.Script, 0, len(args))
			for _, path := range args {
				text, err := os.ReadFile(path)
				if err != nil {
					return fmt.Errorf("read script: %w", err)
				}
				name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
				scripts = append(scripts, exec.Script{Name: name, Text: string(text)})
			}

			if cmd.Flags().Changed("output-dir") || cfg.OutputDir == "." {
				cfg.OutputDir = outputDir
			}
			if separator == "" {
				separator = cfg.CSVSeparator
			}
			if dbPath == "" {
				dbPath = cfg.DuckDBPath
			}

			var dbWriters []*sink.DuckDBWriter
			defer func() {
				for _, w := range dbWriters {
					_ = w.Close()
				}
			}()

			newWriter := func(s exec.Script) (domain.RowWriter, error) {
				switch output {
				case "console":
					return sink.NewTerminalWriter(sink.TerminalConfig{Out: cmd.OutOrStdout()}), nil
				case "csv":
					path := cfg.OutputDir
					if !perAccount {
						path = filepath.Join(cfg.OutputDir, s.Name+".csv")
					}
					return sink.NewCSVWriter(sink.CSVConfig{
						Path:            path,
						PerAccountFiles: perAccount,
						ArraySeparator:  separator,
					}), nil
				case "json":
					format := sink.JSONRecords
					ext := "json"
					if jsonLines {
						format = sink.JSONLines
						ext = "jsonl"
					}
					path := cfg.OutputDir
					if !perAccount {
						path = filepath.Join(cfg.OutputDir, s.Name+"."+ext)
					}
					return sink.NewJSONWriter(sink.JSONConfig{
						Path:            path,
						PerAccountFiles: perAccount,
						Format:          format,
					}), nil
				case "duckdb":
					w, err := sink.NewDuckDBWriter(sink.DuckDBConfig{
						Path:             dbPath,
						Table:            tableName,
						PerAccountTables: perAccount,
						CombinedView:     combinedView,
					})
					if err != nil {
						return nil, err
					}
					dbWriters = append(dbWriters, w)
					return w, nil
				default:
					return nil, fmt.Errorf("unknown output %q (want console, csv, json, or duckdb)", output)
				}
			}

			return e.ExecuteAll(cmd.Context(), scripts, accounts, params, newWriter)
		},
	}

	cmd.Flags().StringVar(&schemaPath, "schema", "", "Path to the reporting schema YAML (required)")
	cmd.Flags().StringVar(&replayDir, "input", "", "Directory of recorded account responses, one <account>.jsonl per account")
	cmd.Flags().StringSliceVar(&accounts, "account", nil, "Account ID to run against (repeatable)")
	cmd.Flags().BoolVar(&expand, "expand-accounts", false, "Expand seed accounts through the account filter query")
	cmd.Flags().StringVar(&expandQuery, "account-query", "", "Filter query used to expand seed accounts")
	cmd.Flags().StringArrayVar(&macros, "macro", nil, "Macro binding key=value (repeatable)")
	cmd.Flags().StringVar(&output, "output", "console", "Output sink: console, csv, json, or duckdb")
	cmd.Flags().StringVar(&outputDir, "output-dir", ".", "Directory for file outputs")
	cmd.Flags().StringVar(&dbPath, "db", "", "DuckDB database file (empty for in-memory)")
	cmd.Flags().StringVar(&tableName, "table", "", "DuckDB table name (defaults to the script name)")
	cmd.Flags().BoolVar(&perAccount, "per-account", false, "One file or table per account")
	cmd.Flags().BoolVar(&combinedView, "combined-view", false, "Create a view over per-account DuckDB tables")
	cmd.Flags().BoolVar(&jsonLines, "json-lines", false, "Write newline-delimited JSON instead of one array")
	cmd.Flags().StringVar(&separator, "array-separator", "", "Separator for array cells in CSV output")
	cmd.Flags().BoolVar(&sequential, "sequential", false, "Process accounts strictly in order")
	cmd.Flags().StringVar(&failPolicy, "fail-policy", "", "continue (default) or abort")
	cmd.Flags().BoolVar(&skipConst, "skip-constants", false, "Skip constant scripts")
	cmd.Flags().BoolVar(&dumpPlan, "dump-plan", false, "Log the compiled plan before running")
	_ = cmd.MarkFlagRequired("schema")

	return cmd
}
