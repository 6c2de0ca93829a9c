package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/TobiSchelling/milcheck/internal/analysis"
	"github.com/TobiSchelling/milcheck/internal/collect"
	"github.com/TobiSchelling/milcheck/internal/config"
	"github.com/TobiSchelling/milcheck/internal/fetch"
	"github.com/TobiSchelling/milcheck/internal/pipeline"
	"github.com/TobiSchelling/milcheck/internal/server"
)

var version = "dev"

var (
	verbose    bool
	configPath string
	cfg        *config.Config
	logger     = zap.NewNop()
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "milcheck",
	Short:   "Flag misleading or AI-generated text",
	Long:    "milcheck scores text for manipulative or synthetic writing and explains the verdict.",
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip config loading for init and version
		if cmd.Name() == "init" || cmd.Name() == "version" {
			return nil
		}

		_ = godotenv.Load()

		path, err := config.ResolveConfigPath(configPath)
		if err != nil {
			return err
		}
		cfg, err = config.Load(path)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		if err := cfg.ApplyEnv(); err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		logger, err = newLogger(cfg.Logging, verbose)
		if err != nil {
			return fmt.Errorf("creating logger: %w", err)
		}
		if path != "" {
			logger.Debug("loaded config", zap.String("path", path))
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(collectCmd)
	rootCmd.AddCommand(scanCmd)
}

func newLogger(lc config.Logging, verbose bool) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if lc.Format == "console" {
		zc = zap.NewDevelopmentConfig()
	}
	level := zapcore.InfoLevel
	if lc.Level != "" {
		if err := level.Set(lc.Level); err != nil {
			return nil, fmt.Errorf("invalid logging.level %q: %w", lc.Level, err)
		}
	}
	if verbose {
		level = zapcore.DebugLevel
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.OutputPaths = []string{"stderr"}
	return zc.Build()
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("milcheck", version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration in ~/.config/milcheck/",
	RunE: func(cmd *cobra.Command, args []string) error {
		target := filepath.Join(config.ConfigDir(), "config.yaml")
		if _, err := os.Stat(target); err == nil {
			fmt.Printf("Config already exists: %s\n", target)
			return nil
		}

		if err := os.MkdirAll(config.ConfigDir(), 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}

		if err := os.WriteFile(target, config.DefaultConfigYAML, 0o644); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}

		fmt.Printf("Created config: %s\n", target)
		fmt.Println("Edit it to tune the threshold, scorer, LLM provider and news sources.")
		return nil
	},
}

// --- serve command ---

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP analysis API",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Flags().Changed("port") {
			cfg.Server.Port = servePort
		}

		ctx, stop := signalContext()
		defer stop()

		pipe, err := pipeline.New(ctx, cfg, logger)
		if err != nil {
			return err
		}

		fmt.Printf("Starting server at http://%s\n", cfg.ListenAddr())
		fmt.Println("Press Ctrl+C to stop")
		return server.Serve(ctx, cfg.ListenAddr(), pipe.Analyzer(), logger)
	},
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 8000, "Port to run server on")
}

// --- analyze command ---

var (
	analyzeFile     string
	analyzeURL      string
	analyzeMarkdown bool
	analyzeSignals  bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze [text]",
	Short: "Analyze text from an argument, a file, stdin or a URL",
	Example: `  milcheck analyze "Shocking news! This is a fake story."
  milcheck analyze --file post.md --markdown
  cat post.txt | milcheck analyze --file -
  milcheck analyze --url https://example.com/story --signals`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext()
		defer stop()

		text, err := readInput(ctx, args)
		if err != nil {
			return err
		}

		pipe, err := pipeline.New(ctx, cfg, logger)
		if err != nil {
			return err
		}
		analyzer := pipe.Analyzer()

		resp, err := analyzer.Analyze(ctx, analysis.NewRequest(text))
		var report *analysis.ValidationReport
		switch {
		case errors.As(err, &report):
			_ = printJSON(report)
			return errors.New("content rejected")
		case err != nil:
			return fmt.Errorf("analysis failed: %w", err)
		}

		out := struct {
			*analysis.AnalysisResponse
			Signals *analysis.SignalSet       `json:"signals,omitempty"`
			Source  *collect.SourceAssessment `json:"source,omitempty"`
		}{AnalysisResponse: resp}
		if analyzeSignals {
			s := analyzer.Signals(strings.TrimSpace(text))
			out.Signals = &s
		}
		if analyzeURL != "" {
			a := pipe.AssessSource(analyzeURL)
			out.Source = &a
		}
		return printJSON(out)
	},
}

func init() {
	analyzeCmd.Flags().StringVarP(&analyzeFile, "file", "f", "", "Read content from a file (- for stdin)")
	analyzeCmd.Flags().StringVarP(&analyzeURL, "url", "u", "", "Fetch and extract the article at this URL")
	analyzeCmd.Flags().BoolVar(&analyzeMarkdown, "markdown", false, "Treat the input as markdown and analyze its prose")
	analyzeCmd.Flags().BoolVar(&analyzeSignals, "signals", false, "Include the extracted signals in the output")
	analyzeCmd.MarkFlagsMutuallyExclusive("file", "url")
}

func readInput(ctx context.Context, args []string) (string, error) {
	var text string
	switch {
	case analyzeURL != "":
		if len(args) > 0 {
			return "", errors.New("pass either text or --url, not both")
		}
		fetcher := fetch.NewContentFetcher(cfg.Fetch.Timeout, logger)
		t, err := fetcher.FetchText(ctx, analyzeURL)
		if err != nil {
			return "", fmt.Errorf("fetching %s: %w", analyzeURL, err)
		}
		return t, nil
	case analyzeFile == "-":
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("reading stdin: %w", err)
		}
		text = string(data)
	case analyzeFile != "":
		data, err := os.ReadFile(analyzeFile)
		if err != nil {
			return "", fmt.Errorf("reading %s: %w", analyzeFile, err)
		}
		text = string(data)
	case len(args) > 0:
		text = strings.Join(args, " ")
	default:
		return "", errors.New("nothing to analyze: pass text, --file or --url")
	}

	if analyzeMarkdown {
		text = fetch.MarkdownText([]byte(text))
	}
	return text, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// --- collect command ---

var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "List recent articles from configured sources",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext()
		defer stop()

		fmt.Println("Collecting articles from sources...")
		result := collect.NewCollector(cfg, logger).Collect(ctx)

		fmt.Println("\nCollection complete:")
		fmt.Printf("  Total found: %d\n", result.TotalFound)
		fmt.Printf("  Unique articles: %d\n", len(result.Entries))
		fmt.Printf("  Duplicates skipped: %d\n", result.Duplicates)

		if len(result.Sources) > 0 {
			fmt.Println("\nArticles by source:")
			type kv struct {
				key string
				val int
			}
			var sorted []kv
			for k, v := range result.Sources {
				sorted = append(sorted, kv{k, v})
			}
			sort.Slice(sorted, func(i, j int) bool {
				if sorted[i].val != sorted[j].val {
					return sorted[i].val > sorted[j].val
				}
				return sorted[i].key < sorted[j].key
			})
			for _, s := range sorted {
				fmt.Printf("  %s: %d\n", s.key, s.val)
			}
		}
		return nil
	},
}

// --- scan command ---

var (
	scanFullContent bool
	scanDaysBack    int
	scanJSON        bool
	scanFlaggedOnly bool
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Collect recent news and analyze every article: collect -> fetch -> analyze",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Flags().Changed("full-content") {
			cfg.Fetch.FullContent = scanFullContent
		}
		if scanDaysBack > 0 {
			cfg.Fetch.DaysBack = scanDaysBack
		}

		ctx, stop := signalContext()
		defer stop()

		pipe, err := pipeline.New(ctx, cfg, logger)
		if err != nil {
			return err
		}
		result := pipe.Scan(ctx)

		if scanJSON {
			return printJSON(scanReport(result))
		}

		for i, step := range result.Steps {
			fmt.Printf("\nStep %d/%d: %s\n", i+1, len(result.Steps), step.Name)
			if step.Err != nil {
				fmt.Printf("  Error: %v\n", step.Err)
			} else {
				fmt.Printf("  %s\n", step.Summary)
			}
		}

		if len(result.Items) > 0 {
			fmt.Println("\nResults:")
		}
		for _, it := range result.Items {
			switch {
			case it.Err != nil:
				if !scanFlaggedOnly {
					fmt.Printf("  [ERROR] %s (%s): %v\n", it.Entry.Title, it.Entry.Source, it.Err)
				}
			case it.Verdict.IsPotentiallyMisleading:
				fmt.Printf("  [FLAG %.2f] %s (%s)\n    %s\n    %s\n",
					it.Verdict.ConfidenceScore, it.Entry.Title, it.Entry.Source, it.Verdict.Explanation, it.Entry.URL)
				if it.Source.Watched {
					fmt.Printf("    %s\n", it.Source.Notes)
				}
			case !scanFlaggedOnly:
				fmt.Printf("  [ok   %.2f] %s (%s)\n", it.Verdict.ConfidenceScore, it.Entry.Title, it.Entry.Source)
				if it.Source.Watched {
					fmt.Printf("    %s\n", it.Source.Notes)
				}
			}
		}
		return nil
	},
}

func init() {
	scanCmd.Flags().BoolVar(&scanFullContent, "full-content", false, "Fetch full article text before analyzing")
	scanCmd.Flags().IntVar(&scanDaysBack, "days-back", 0, "Override lookback window (days)")
	scanCmd.Flags().BoolVar(&scanJSON, "json", false, "Print results as JSON")
	scanCmd.Flags().BoolVar(&scanFlaggedOnly, "flagged", false, "Only list flagged articles")
}

type scanItem struct {
	collect.Entry
	Credibility collect.SourceAssessment   `json:"credibility"`
	Verdict     *analysis.AnalysisResponse `json:"verdict,omitempty"`
	Error       string                     `json:"error,omitempty"`
}

func scanReport(r *pipeline.Result) []scanItem {
	out := make([]scanItem, 0, len(r.Items))
	for _, it := range r.Items {
		if scanFlaggedOnly && (it.Verdict == nil || !it.Verdict.IsPotentiallyMisleading) {
			continue
		}
		item := scanItem{Entry: it.Entry, Credibility: it.Source, Verdict: it.Verdict}
		if it.Err != nil {
			item.Error = it.Err.Error()
		}
		out = append(out, item)
	}
	return out
}
