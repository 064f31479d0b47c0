// Command quorum-review runs a multi-perspective consensus analysis over a
// directory of source files and writes a prioritized report.
//
// Usage:
//
//	quorum-review [flags] <corpus-path>
//
// Flags:
//
//	-config   path to config YAML file (default "config.yaml")
//	-format   output format, markdown or json (default "markdown")
//	-out      report output path (default stdout)
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	yaml "go.yaml.in/yaml/v2"

	"github.com/dshills/quorum-go/quorum"
	"github.com/dshills/quorum-go/quorum/emit"
	"github.com/dshills/quorum-go/quorum/invoke"
	"github.com/dshills/quorum-go/quorum/store"
)

// Args represents parsed command-line arguments.
type Args struct {
	// CorpusPath is the required path to the directory to analyze
	CorpusPath string
	// ConfigFile is the path to the configuration YAML file
	ConfigFile string
	// Format is the output format (markdown or json)
	Format string
	// OutPath is where the report is written; empty means stdout
	OutPath string
	// Err is any error encountered during parsing
	Err error
}

// Config represents the structure of the configuration YAML file.
type Config struct {
	Invoker struct {
		Backend string `yaml:"backend"` // anthropic, openai, mock
		APIKey  string `yaml:"api_key"`
		Model   string `yaml:"model"`
	} `yaml:"invoker"`
	Run struct {
		ConcurrencyLimit  int     `yaml:"concurrency_limit"`
		InvocationTimeout string  `yaml:"invocation_timeout"`
		MaxUnits          int     `yaml:"max_units"`
		MinCoveragePct    float64 `yaml:"min_coverage_pct"`
	} `yaml:"run"`
	Corpus struct {
		IncludePatterns []string `yaml:"include_patterns"`
		ExcludePatterns []string `yaml:"exclude_patterns"`
	} `yaml:"corpus"`
	Store struct {
		SQLitePath string `yaml:"sqlite_path"`
	} `yaml:"store"`
	Verify struct {
		Root string `yaml:"root"`
	} `yaml:"verify"`
}

func parseArgs(osArgs []string) Args {
	fs := flag.NewFlagSet("quorum-review", flag.ContinueOnError)
	configFile := fs.String("config", "config.yaml", "path to config YAML file")
	format := fs.String("format", "markdown", "output format (markdown or json)")
	outPath := fs.String("out", "", "report output path (default stdout)")

	if err := fs.Parse(osArgs); err != nil {
		return Args{Err: fmt.Errorf("flag parsing error: %w", err)}
	}
	if fs.NArg() != 1 {
		return Args{Err: fmt.Errorf("required argument missing: corpus path")}
	}
	if *format != "markdown" && *format != "json" {
		return Args{Err: fmt.Errorf("unknown format %q", *format)}
	}

	return Args{
		CorpusPath: fs.Arg(0),
		ConfigFile: *configFile,
		Format:     *format,
		OutPath:    *outPath,
	}
}

// loadConfig loads and parses a YAML configuration file. A missing file is
// not an error; defaults apply.
func loadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &Config{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}
	return &config, nil
}

// buildInvoker selects the worker backend from config. API keys fall back to
// the conventional environment variables.
func buildInvoker(config *Config) (quorum.Invoker, error) {
	backend := config.Invoker.Backend
	if backend == "" {
		backend = "mock"
	}

	switch backend {
	case "anthropic":
		key := config.Invoker.APIKey
		if key == "" {
			key = os.Getenv("ANTHROPIC_API_KEY")
		}
		if key == "" {
			return nil, fmt.Errorf("anthropic backend requires api_key or ANTHROPIC_API_KEY")
		}
		model := config.Invoker.Model
		if model == "" {
			model = "claude-3-5-sonnet-20241022"
		}
		return invoke.NewAnthropicInvoker(key, model)

	case "openai":
		key := config.Invoker.APIKey
		if key == "" {
			key = os.Getenv("OPENAI_API_KEY")
		}
		model := config.Invoker.Model
		if model == "" {
			model = "gpt-4o"
		}
		return invoke.NewOpenAIInvoker(key, model)

	case "mock":
		return &invoke.MockInvoker{Default: `{"health_score":1.0,"findings":[]}`}, nil

	default:
		return nil, fmt.Errorf("unknown invoker backend %q", backend)
	}
}

func buildRunConfig(config *Config) quorum.RunConfig {
	cfg := quorum.DefaultRunConfig()
	if config.Run.ConcurrencyLimit > 0 {
		cfg.ConcurrencyLimit = config.Run.ConcurrencyLimit
	}
	if config.Run.InvocationTimeout != "" {
		if d, err := time.ParseDuration(config.Run.InvocationTimeout); err == nil {
			cfg.InvocationTimeout = d
		}
	}
	if config.Run.MaxUnits > 0 {
		cfg.MaxUnits = config.Run.MaxUnits
	}
	if config.Run.MinCoveragePct > 0 {
		cfg.MinCoveragePct = config.Run.MinCoveragePct
	}
	return cfg
}

func run() error {
	args := parseArgs(os.Args[1:])
	if args.Err != nil {
		return args.Err
	}

	config, err := loadConfig(args.ConfigFile)
	if err != nil {
		return err
	}

	scanner := &corpusScanner{
		IncludePatterns: config.Corpus.IncludePatterns,
		ExcludePatterns: config.Corpus.ExcludePatterns,
	}
	corpus, err := scanner.Discover(args.CorpusPath)
	if err != nil {
		return err
	}
	if len(corpus) == 0 {
		return fmt.Errorf("no matching resources under %s", args.CorpusPath)
	}

	invoker, err := buildInvoker(config)
	if err != nil {
		return err
	}

	opts := []quorum.Option{
		quorum.WithConfig(buildRunConfig(config)),
		quorum.WithPayload(invoke.BuildPayload),
		quorum.WithEmitter(emit.NewLogEmitter(os.Stderr, false)),
		quorum.WithMetrics(quorum.NewMetrics(nil)),
		quorum.WithChecker(&quorum.FileSignalChecker{Root: verifyRoot(config, args.CorpusPath)}),
	}
	if config.Store.SQLitePath != "" {
		st, err := store.NewSQLiteStore[*quorum.FinalReport](config.Store.SQLitePath)
		if err != nil {
			return err
		}
		defer func() { _ = st.Close() }()
		opts = append(opts, quorum.WithStore(st))
	}

	coordinator, err := quorum.NewCoordinator(invoker, opts...)
	if err != nil {
		return err
	}

	runID := fmt.Sprintf("run-%d", time.Now().Unix())
	fmt.Fprintf(os.Stderr, "Analyzing %s: %d resources, run ID %s, backend %s\n",
		args.CorpusPath, len(corpus), runID, invoker.Name())

	report, err := coordinator.Run(context.Background(), runID, corpus)
	if err != nil {
		return err
	}

	var out []byte
	if args.Format == "json" {
		out, err = report.JSON()
		if err != nil {
			return err
		}
	} else {
		out = []byte(report.Markdown())
	}

	if args.OutPath == "" {
		fmt.Println(string(out))
		return nil
	}
	if err := os.WriteFile(args.OutPath, out, 0o644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	fmt.Fprintf(os.Stderr, "Report written to %s\n", args.OutPath)
	return nil
}

func verifyRoot(config *Config, corpusPath string) string {
	if config.Verify.Root != "" {
		return config.Verify.Root
	}
	return corpusPath
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
