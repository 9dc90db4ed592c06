package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"

	"github.com/nnaka2992/pg-lineage/internal/config"
	"github.com/nnaka2992/pg-lineage/internal/lineage"
	"github.com/nnaka2992/pg-lineage/internal/parser"
)

// CLI configuration
var (
	version = "0.1.0"

	// Flags
	fileFlags    []string
	outputFormat string
	configFile   string
	logLevel     string
	idScheme     string
	factMarkers  []string
	maxDepth     int
	watchFlag    bool
	combineFlag  bool
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := buildCommand()
	cmd.SetArgs(args)

	if err := cmd.ExecuteContext(ctx); err != nil {
		return determineExitCode(err)
	}
	return 0
}

func buildCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "pg-lineage [SQL]",
		Short:        "SQL lineage extractor",
		Long:         "Extracts CTEs, temp tables, derived tables, their source tables and the dependencies between them from PostgreSQL SQL.",
		Version:      version,
		Args:         cobra.MaximumNArgs(1),
		SilenceUsage: true,
		RunE:         runLineage,
	}

	// Shared by serve
	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default ./"+config.DefaultFile+")")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level: debug, info, warn, error")
	cmd.PersistentFlags().StringVar(&idScheme, "id-scheme", string(lineage.IDSequential), "derived table ids: sequential or random")
	cmd.PersistentFlags().StringSliceVar(&factMarkers, "fact-marker", nil, "name fragment marking a fact table (repeatable)")
	cmd.PersistentFlags().IntVar(&maxDepth, "max-depth", lineage.DefaultMaxDepth, "maximum query nesting depth")

	cmd.Flags().StringSliceVarP(&fileFlags, "file", "f", nil, "read SQL from file (repeatable)")
	cmd.Flags().StringVarP(&outputFormat, "output", "o", config.OutputText, "output format: text, json, yaml")
	cmd.Flags().BoolVar(&watchFlag, "watch", false, "re-run when an input file changes (requires --file)")
	cmd.Flags().BoolVar(&combineFlag, "combine", false, "treat all --file inputs as one script")

	cmd.AddCommand(buildServeCommand())

	return cmd
}

// loadConfig merges .env, the config file, the environment and the flags
// of cmd, and builds the logger.
func loadConfig(cmd *cobra.Command) (*config.Config, *slog.Logger, error) {
	if err := config.LoadDotEnv(".env"); err != nil {
		return nil, nil, err
	}
	cfg, err := config.Load(configFile, cmd.Flags())
	if err != nil {
		return nil, nil, err
	}
	level, _ := cfg.SlogLevel()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	if cfg.File != "" {
		logger.Debug("loaded config", "file", cfg.File)
	}
	return cfg, logger, nil
}

func runLineage(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if watchFlag && len(fileFlags) == 0 {
		return fmt.Errorf("--watch requires --file")
	}

	ex := lineage.New(cfg.ExtractorOptions(logger)...)

	if watchFlag {
		// Parse errors are reported and the watch goes on.
		if err := extractAndOutput(cmd, ex, cfg.Output, args); err != nil {
			logger.Error("extraction failed", "error", err)
		}
		return watchFiles(cmd.Context(), fileFlags, logger, func() {
			if err := extractAndOutput(cmd, ex, cfg.Output, args); err != nil {
				logger.Error("extraction failed", "error", err)
			}
		})
	}

	return extractAndOutput(cmd, ex, cfg.Output, args)
}

// extractAndOutput runs one extraction pass over the configured input and
// prints it. Results are printed even when extraction fails.
func extractAndOutput(cmd *cobra.Command, ex lineage.Extractor, format string, args []string) error {
	if len(fileFlags) > 0 && combineFlag {
		result, err := extractCombined(ex, fileFlags)
		if result == nil {
			return err
		}
		if outErr := outputResult(os.Stdout, format, result); outErr != nil {
			return outErr
		}
		return err
	}

	if len(fileFlags) > 0 {
		inputs, err := readFiles(fileFlags)
		if err != nil {
			return err
		}
		outputs, err := extractAll(cmd.Context(), ex, inputs)
		if len(outputs) == 1 {
			if outErr := outputResult(os.Stdout, format, outputs[0].Lineage); outErr != nil {
				return outErr
			}
			return err
		}
		if outErr := outputFiles(os.Stdout, format, outputs); outErr != nil {
			return outErr
		}
		return err
	}

	sql, err := getSQLInput(cmd, args)
	if err != nil {
		return err
	}
	result, err := ex.Extract(sql)
	if outErr := outputResult(os.Stdout, format, result); outErr != nil {
		return outErr
	}
	return err
}

// input is one named SQL text.
type input struct {
	name string
	sql  string
}

func readFiles(paths []string) ([]input, error) {
	inputs := make([]input, 0, len(paths))
	for _, path := range paths {
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading file: %w", err)
		}
		inputs = append(inputs, input{name: path, sql: string(content)})
	}
	return inputs, nil
}

// extractAll extracts every input concurrently. Outputs keep input order;
// the returned error joins the per-file failures.
func extractAll(ctx context.Context, ex lineage.Extractor, inputs []input) ([]fileOutput, error) {
	outputs := make([]fileOutput, len(inputs))
	errs := make([]error, len(inputs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, in := range inputs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			result, err := ex.Extract(in.sql)
			outputs[i] = fileOutput{File: in.name, Lineage: result}
			if err != nil {
				outputs[i].Error = err.Error()
				errs[i] = fmt.Errorf("%s: %w", in.name, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return outputs, errors.Join(errs...)
}

// extractCombined parses the files as one script, so temp tables created
// in one file resolve in the next.
func extractCombined(ex lineage.Extractor, paths []string) (*lineage.Result, error) {
	parsed, err := parser.NewParser().ParseFiles(paths)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("reading file: %w", err)
		}
		result, _ := ex.ExtractParsed(nil)
		return result, fmt.Errorf("%w: %w", lineage.ErrParse, err)
	}
	return ex.ExtractParsed(parsed)
}

// getSQLInput retrieves SQL from command args or stdin
func getSQLInput(cmd *cobra.Command, args []string) (string, error) {
	if len(args) > 0 {
		return args[0], nil
	}

	if stdinIsPiped() {
		content, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("reading stdin: %w", err)
		}
		return string(content), nil
	}

	// No input provided
	_ = cmd.Usage()
	return "", fmt.Errorf("no SQL provided")
}

func stdinIsPiped() bool {
	if term.IsTerminal(int(os.Stdin.Fd())) {
		return false
	}
	stat, err := os.Stdin.Stat()
	return err == nil && stat.Mode()&os.ModeCharDevice == 0
}

// Helper functions

func determineExitCode(err error) int {
	if errors.Is(err, lineage.ErrParse) {
		return 2
	}
	return 1
}
