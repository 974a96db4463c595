package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/tordrt/sourceswitch"
	"github.com/tordrt/sourceswitch/internal/formatter"
	"github.com/tordrt/sourceswitch/internal/journal"
	"github.com/tordrt/sourceswitch/internal/metabase"
)

const dryRunMessage = "Dry run complete. No changes made."

var (
	host          string
	apiKey        string
	insecure      bool
	rateLimit     float64
	verbose       bool
	outputFile    string
	outputDir     string
	format        string
	sourceDBID    int64
	targetDBID    int64
	collectionID  string
	dryRun        bool
	skipBackup    bool
	verifyDBURL   string
	verifySchemas string
	sourceMeta    string
	targetMeta    string
	journalPath   string
	workers       int
	questionID    int64
	dashboardID   int64
	databaseID    int64
	fieldID       int64
)

var rootCmd = &cobra.Command{
	Use:   "sourceswitch",
	Short: "Switch Metabase questions and dashboards to another database",
	Long: `SourceSwitch copies Metabase questions and dashboards so they query a different database connection.
Table and field ids are remapped by schema, table and field name; references that cannot be remapped are kept and reported.`,
	SilenceUsage: true,
}

var questionCmd = &cobra.Command{
	Use:   "question",
	Short: "Switch a saved question to the target database",
	RunE:  runQuestion,
}

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Switch a dashboard and all of its cards to the target database",
	RunE:  runDashboard,
}

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Print the table and field paths Metabase knows for a database",
	RunE:  runInspect,
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List the runs recorded in a journal",
	RunE:  runHistory,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&host, "host", os.Getenv("METABASE_HOST"), "Metabase URL, e.g. https://metabase.example.com (env METABASE_HOST)")
	pf.StringVar(&apiKey, "api-key", os.Getenv("METABASE_API_KEY"), "Metabase API key (env METABASE_API_KEY)")
	pf.BoolVar(&insecure, "insecure", false, "Skip TLS certificate verification")
	pf.Float64Var(&rateLimit, "rate", 0, "Maximum API requests per second (0: unlimited)")
	pf.BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	pf.StringVarP(&outputFile, "output", "o", "", "Output file (default: stdout)")
	pf.StringVarP(&outputDir, "output-dir", "d", "", "Output directory for multi-file output")
	pf.StringVarP(&format, "format", "f", "text", "Output format: text or markdown (default: text)")
	pf.StringVar(&journalPath, "journal", "", "SQLite file recording runs, created artifacts and warnings")

	for _, cmd := range []*cobra.Command{questionCmd, dashboardCmd} {
		f := cmd.Flags()
		f.Int64Var(&sourceDBID, "source-db-id", 0, "Metabase id of the database currently queried")
		f.Int64Var(&targetDBID, "target-db-id", 0, "Metabase id of the database to switch to")
		f.StringVar(&collectionID, "collection-id", "", "Destination collection: 'root' or a numeric id (default: original collection)")
		f.BoolVar(&dryRun, "dry-run", false, "Rewrite and report without creating anything")
		f.StringVar(&verifyDBURL, "verify-db-url", "", "Check remapped tables and columns against the live target database (postgres://, mysql://, sqlite://)")
		f.StringVar(&sourceMeta, "source-metadata", "", "Read source database metadata from this JSON file instead of the API")
		f.StringVar(&targetMeta, "target-metadata", "", "Read target database metadata from this JSON file instead of the API")
		f.StringVar(&verifySchemas, "verify-schemas", "", "PostgreSQL schemas to check (comma-separated, default: all)")
		_ = cmd.MarkFlagRequired("source-db-id")
		_ = cmd.MarkFlagRequired("target-db-id")
	}

	questionCmd.Flags().Int64Var(&questionID, "question-id", 0, "Id of the question to switch")
	questionCmd.Flags().BoolVar(&skipBackup, "no-backup", false, "Do not save a backup copy of the original question")
	_ = questionCmd.MarkFlagRequired("question-id")

	dashboardCmd.Flags().Int64Var(&dashboardID, "dashboard-id", 0, "Id of the dashboard to switch")
	dashboardCmd.Flags().IntVar(&workers, "workers", sourceswitch.DefaultWorkers, "Cards created concurrently")
	_ = dashboardCmd.MarkFlagRequired("dashboard-id")

	inspectCmd.Flags().Int64Var(&databaseID, "database-id", 0, "Id of the database to list")
	inspectCmd.Flags().Int64Var(&fieldID, "field-id", 0, "Resolve a single field id to its path instead")

	rootCmd.AddCommand(questionCmd, dashboardCmd, inspectCmd, historyCmd)
}

func newLogger() (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.DisableStacktrace = true
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	} else {
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	}
	return cfg.Build()
}

func newClient(logger *zap.Logger) (*metabase.Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("--api-key or METABASE_API_KEY is required")
	}
	opts := []metabase.Option{
		metabase.WithLogger(logger),
		metabase.WithRateLimit(rateLimit, 1),
	}
	if insecure {
		opts = append(opts, metabase.WithInsecureTLS())
	}
	return metabase.NewClient(host, apiKey, opts...)
}

func switchOptions(logger *zap.Logger) (*sourceswitch.Options, error) {
	collection, err := sourceswitch.ParseCollection(collectionID)
	if err != nil {
		return nil, err
	}
	return &sourceswitch.Options{
		SourceDatabaseID:   sourceDBID,
		TargetDatabaseID:   targetDBID,
		Collection:         collection,
		DryRun:             dryRun,
		SkipBackup:         skipBackup,
		SourceMetadataPath: sourceMeta,
		TargetMetadataPath: targetMeta,
		VerifyDatabaseURL:  verifyDBURL,
		VerifySchemas:      parseList(verifySchemas),
		JournalPath:        journalPath,
		Workers:            workers,
		Logger:             logger,
	}, nil
}

func parseList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// switchFunc is SwitchQuestion or SwitchDashboard.
type switchFunc func(ctx context.Context, client *metabase.Client, id int64, opts *sourceswitch.Options) (*formatter.Report, error)

func runSwitch(cmd *cobra.Command, id int64, fn switchFunc) error {
	if outputDir != "" && outputFile != "" {
		return fmt.Errorf("cannot use both --output-dir and --output flags")
	}

	logger, err := newLogger()
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	client, err := newClient(logger)
	if err != nil {
		return err
	}
	opts, err := switchOptions(logger)
	if err != nil {
		return err
	}

	report, err := fn(cmd.Context(), client, id, opts)
	if err != nil {
		return err
	}

	if err := writeReport(cmd, report); err != nil {
		return err
	}
	if report.DryRun {
		_, _ = fmt.Fprintln(cmd.ErrOrStderr(), dryRunMessage)
	}
	return nil
}

func runQuestion(cmd *cobra.Command, args []string) error {
	return runSwitch(cmd, questionID, sourceswitch.SwitchQuestion)
}

func runDashboard(cmd *cobra.Command, args []string) error {
	return runSwitch(cmd, dashboardID, sourceswitch.SwitchDashboard)
}

func writeReport(cmd *cobra.Command, report *formatter.Report) error {
	outOpts := &sourceswitch.OutputOptions{Writer: cmd.OutOrStdout(), OutputDir: outputDir, Format: format}
	if outputFile != "" {
		f, err := os.Create(outputFile)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer func() {
			if err := f.Close(); err != nil {
				fmt.Fprintf(os.Stderr, "warning: failed to close output file: %v\n", err)
			}
		}()
		outOpts.Writer = f
	}

	if err := sourceswitch.FormatReport(report, outOpts); err != nil {
		return fmt.Errorf("failed to format output: %w", err)
	}
	return nil
}

func runInspect(cmd *cobra.Command, args []string) error {
	if (databaseID == 0) == (fieldID == 0) {
		return fmt.Errorf("exactly one of --database-id or --field-id must be specified")
	}

	logger, err := newLogger()
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	client, err := newClient(logger)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	if fieldID != 0 {
		field, err := client.Field(ctx, fieldID)
		if err != nil {
			return fmt.Errorf("failed to fetch field %d: %w", fieldID, err)
		}
		path, ok := field.Path()
		if !ok {
			return fmt.Errorf("field %d has no table", fieldID)
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%d %s\n", fieldID, path)
		return nil
	}

	idx, err := sourceswitch.Inspect(ctx, client, databaseID, logger)
	if err != nil {
		return err
	}

	writer := cmd.OutOrStdout()
	if outputFile != "" {
		f, err := os.Create(outputFile)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer func() { _ = f.Close() }()
		writer = f
	}
	fm, err := formatter.New(writer, format)
	if err != nil {
		return err
	}
	return fm.FormatIndex(idx)
}

func runHistory(cmd *cobra.Command, args []string) error {
	if journalPath == "" {
		return fmt.Errorf("--journal is required")
	}
	ctx := cmd.Context()

	j, err := journal.Open(ctx, journalPath, nil)
	if err != nil {
		return err
	}
	defer func() { _ = j.Close() }()

	runs, err := j.Runs(ctx)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	for _, run := range runs {
		mode := ""
		if run.DryRun {
			mode = " (dry run)"
		}
		_, _ = fmt.Fprintf(w, "%s %s %s %d: DB %d -> %d%s\n",
			run.StartedAt.Format("2006-01-02 15:04:05"), run.ID, run.Kind, run.ArtifactID,
			run.SourceDatabaseID, run.TargetDatabaseID, mode)

		artifacts, err := j.Artifacts(ctx, run.ID)
		if err != nil {
			return err
		}
		for _, a := range artifacts {
			_, _ = fmt.Fprintf(w, "  %s %d -> %d\n", a.Kind, a.SourceID, a.NewID)
		}

		warnings, err := j.Warnings(ctx, run.ID)
		if err != nil {
			return err
		}
		for _, warn := range warnings {
			_, _ = fmt.Fprintf(w, "  ! %s: %s %d (%s) at %s: %s\n",
				warn.Artifact, warn.Kind, warn.SourceID, warn.Path, warn.Location, warn.Reason)
		}
	}
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}
