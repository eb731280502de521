package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"pyramids/internal/model"
	"pyramids/internal/store/sqlite"
)

type metaFile struct {
	GeneratedAt string `json:"generated_at"`
}

type downloadsFile struct {
	GeneratedAt string         `json:"generated_at"`
	Countries   []countryEntry `json:"countries"`
}

type countryEntry struct {
	Country       string `json:"country"`
	Code          int    `json:"code"`
	Downloaded    []int  `json:"downloaded"`
	NotDownloaded []int  `json:"not_downloaded"`
	Failed        []int  `json:"failed"`
	Bytes         int    `json:"bytes"`
	LastFetchedAt string `json:"last_fetched_at"`
}

type buildConfig struct {
	OutDir  string
	DBPath  string
	Country string
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	switch os.Args[1] {
	case "build":
		build(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
}

func build(args []string) {
	fs := flag.NewFlagSet("build", flag.ExitOnError)
	outDir := fs.String("out", "site/data", "output directory")
	dbPath := fs.String("db", "pyramids.db", "sqlite ledger path")
	country := fs.String("country", "", "only publish this country (empty = all)")
	fs.Parse(args)

	cfg := buildConfig{OutDir: *outDir, DBPath: *dbPath, Country: strings.TrimSpace(*country)}
	if err := runBuild(context.Background(), cfg, time.Now()); err != nil {
		fmt.Fprintln(os.Stderr, "publisher build failed:", err)
		os.Exit(1)
	}
	fmt.Printf("publisher build complete (out=%s)\n", *outDir)
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: publisher build [options]")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "options:")
	fmt.Fprintln(os.Stderr, "  -out       output directory (default: site/data)")
	fmt.Fprintln(os.Stderr, "  -db        sqlite ledger path (default: pyramids.db)")
	fmt.Fprintln(os.Stderr, "  -country   only publish this country (default: all)")
}

func runBuild(ctx context.Context, cfg buildConfig, now time.Time) error {
	if strings.TrimSpace(cfg.DBPath) == "" {
		return errors.New("db path is required")
	}
	if _, err := os.Stat(cfg.DBPath); err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	if err := os.MkdirAll(cfg.OutDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	st, err := sqlite.New(cfg.DBPath)
	if err != nil {
		return err
	}
	defer st.Close()

	downloads, err := st.ListDownloads(ctx, cfg.Country)
	if err != nil {
		return fmt.Errorf("load downloads: %w", err)
	}

	generatedAt := now.UTC().Format(time.RFC3339)
	if err := writeJSON(filepath.Join(cfg.OutDir, "meta.json"), metaFile{GeneratedAt: generatedAt}); err != nil {
		return fmt.Errorf("write meta.json: %w", err)
	}
	payload := downloadsFile{GeneratedAt: generatedAt, Countries: buildCountries(downloads)}
	if err := writeJSON(filepath.Join(cfg.OutDir, "downloads.json"), payload); err != nil {
		return fmt.Errorf("write downloads.json: %w", err)
	}
	return nil
}

func buildCountries(downloads []model.Download) []countryEntry {
	byCountry := make(map[string]*countryEntry)
	latest := make(map[string]time.Time)

	for _, download := range downloads {
		entry, ok := byCountry[download.Country]
		if !ok {
			entry = &countryEntry{
				Country:       download.Country,
				Downloaded:    []int{},
				NotDownloaded: []int{},
				Failed:        []int{},
			}
			byCountry[download.Country] = entry
		}
		entry.Code = download.Code

		switch download.Outcome {
		case model.OutcomeDownloaded:
			entry.Downloaded = append(entry.Downloaded, download.Year)
			entry.Bytes += download.Bytes
		case model.OutcomeSkipped:
			entry.NotDownloaded = append(entry.NotDownloaded, download.Year)
		case model.OutcomeFailed:
			entry.Failed = append(entry.Failed, download.Year)
		}

		if download.FetchedAt.After(latest[download.Country]) {
			latest[download.Country] = download.FetchedAt
		}
	}

	results := make([]countryEntry, 0, len(byCountry))
	for country, entry := range byCountry {
		sort.Ints(entry.Downloaded)
		sort.Ints(entry.NotDownloaded)
		sort.Ints(entry.Failed)
		if ts := latest[country]; !ts.IsZero() {
			entry.LastFetchedAt = ts.UTC().Format(time.RFC3339)
		}
		results = append(results, *entry)
	}
	sort.Slice(results, func(i, j int) bool {
		return results[i].Country < results[j].Country
	})
	return results
}

func writeJSON(path string, value any) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return encodeJSON(file, value)
}

func encodeJSON(w io.Writer, value any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(value)
}
