package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"

	"pyramids/internal/artifact"
	"pyramids/internal/collector"
	"pyramids/internal/metrics"
	"pyramids/internal/model"
	"pyramids/internal/providers"
	"pyramids/internal/providers/populationpyramid"
	"pyramids/internal/store"
	"pyramids/internal/store/sqlite"
)

const (
	defaultCountry     = "Spain"
	defaultCountryCode = 724
	defaultFromYear    = 1950
	defaultToYear      = 2101
)

type runConfig struct {
	Provider        string
	Target          model.Target
	Years           model.YearRange
	OutDir          string
	DBPath          string
	MetricsFile     string
	ContinueOnError bool
	Verbose         bool
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	switch os.Args[1] {
	case "run":
		run(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
}

func run(args []string) {
	cfg, err := parseRunConfig(args, os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, "invalid options:", err)
		os.Exit(2)
	}

	logger := newLogger(os.Stderr, cfg.Verbose)
	if err := runCollector(context.Background(), cfg, os.Stdout, logger); err != nil {
		fmt.Fprintln(os.Stderr, "collector run failed:", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: collector run [options]")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "options:")
	fmt.Fprintln(os.Stderr, "  -provider    provider id (default: populationpyramid)")
	fmt.Fprintln(os.Stderr, "  -country     country name, also the output subdirectory (default: Spain)")
	fmt.Fprintln(os.Stderr, "  -code        numeric country code (default: 724)")
	fmt.Fprintln(os.Stderr, "  -from        first year, inclusive (default: 1950)")
	fmt.Fprintln(os.Stderr, "  -to          last year, exclusive (default: 2101)")
	fmt.Fprintln(os.Stderr, "  -out         data directory; <out>/<country> must exist (default: data)")
	fmt.Fprintln(os.Stderr, "  -db          sqlite ledger path (default: pyramids.db, empty disables)")
	fmt.Fprintln(os.Stderr, "  -metrics-file  prometheus textfile to write after the run (default: none)")
	fmt.Fprintln(os.Stderr, "  -continue-on-error  keep going after a failed year")
	fmt.Fprintln(os.Stderr, "  -verbose     log each year")
}

func parseRunConfig(args []string, output io.Writer) (runConfig, error) {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.SetOutput(output)
	provider := fs.String("provider", "populationpyramid", "provider id")
	country := fs.String("country", defaultCountry, "country name")
	code := fs.Int("code", defaultCountryCode, "numeric country code")
	from := fs.Int("from", defaultFromYear, "first year (inclusive)")
	to := fs.Int("to", defaultToYear, "last year (exclusive)")
	outDir := fs.String("out", "data", "data directory")
	dbPath := fs.String("db", "pyramids.db", "sqlite ledger path (empty disables the ledger)")
	metricsFile := fs.String("metrics-file", "", "prometheus textfile path (empty disables)")
	continueOnError := fs.Bool("continue-on-error", false, "keep going after a failed year")
	verbose := fs.Bool("verbose", false, "log each year")
	if err := fs.Parse(args); err != nil {
		return runConfig{}, err
	}
	if fs.NArg() > 0 {
		return runConfig{}, fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}

	cfg := runConfig{
		Provider:        strings.TrimSpace(*provider),
		Target:          model.Target{Country: strings.TrimSpace(*country), Code: *code},
		Years:           model.YearRange{From: *from, To: *to},
		OutDir:          *outDir,
		DBPath:          strings.TrimSpace(*dbPath),
		MetricsFile:     strings.TrimSpace(*metricsFile),
		ContinueOnError: *continueOnError,
		Verbose:         *verbose,
	}
	if err := cfg.Target.Validate(); err != nil {
		return runConfig{}, err
	}
	if err := cfg.Years.Validate(); err != nil {
		return runConfig{}, err
	}
	return cfg, nil
}

func runCollector(ctx context.Context, cfg runConfig, out io.Writer, logger zerolog.Logger) error {
	provider, err := buildProvider(cfg.Provider)
	if err != nil {
		return err
	}

	st, err := openStore(cfg.DBPath)
	if err != nil {
		return err
	}
	defer st.Close()

	opts := []collector.Option{
		collector.WithStore(st),
		collector.WithOutput(out),
		collector.WithLogger(logger),
	}
	if cfg.ContinueOnError {
		opts = append(opts, collector.WithPolicy(collector.ContinueOnFailure))
	}
	var m *metrics.Metrics
	if cfg.MetricsFile != "" {
		m = metrics.New()
		opts = append(opts, collector.WithRecorder(m))
	}

	c, err := collector.New(provider, artifact.NewWriter(cfg.OutDir), opts...)
	if err != nil {
		return err
	}

	summary, runErr := c.Run(ctx, cfg.Target, cfg.Years)
	if m != nil {
		if err := m.WriteTextfile(cfg.MetricsFile); err != nil {
			logger.Warn().Err(err).Str("path", cfg.MetricsFile).Msg("metrics textfile not written")
		}
	}
	if runErr != nil {
		return runErr
	}
	if summary.Failed > 0 {
		logger.Warn().Int("failed", summary.Failed).Msg("some years failed and were not downloaded")
	}
	return nil
}

func buildProvider(providerID string) (providers.Provider, error) {
	switch strings.ToLower(strings.TrimSpace(providerID)) {
	case "populationpyramid", "pp":
		return populationpyramid.New()
	default:
		return nil, fmt.Errorf("unknown provider: %s", providerID)
	}
}

func openStore(path string) (store.Store, error) {
	if strings.TrimSpace(path) == "" {
		return &store.NopStore{}, nil
	}
	return sqlite.New(path)
}

func newLogger(w io.Writer, verbose bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05"}).
		Level(level).
		With().
		Timestamp().
		Logger()
}
