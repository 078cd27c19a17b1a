package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"imgsearch/config"
	"imgsearch/internal/adapter/embedding"
	"imgsearch/internal/adapter/store"
	"imgsearch/internal/port"
	"imgsearch/internal/usecase"
)

func main() {
	indexPath := flag.String("index", ".", "Path to indexed directory")
	query := flag.String("q", "", "Query to test")
	topK := flag.Int("k", 10, "Number of results")
	runs := flag.Int("n", 20, "Number of timed searches")
	flag.Parse()

	if *query == "" {
		fmt.Println("Usage: go run ./cmd/benchmark -index ./photos -q \"query\"")
		fmt.Println("\nReports:")
		fmt.Println("  1. Store and model setup (backend, dimension, record count)")
		fmt.Println("  2. Search latency over repeated queries")
		fmt.Println("  3. Result distances for the query")
		os.Exit(1)
	}

	ctx := context.Background()
	cfg, err := config.LoadFromDir(*indexPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	st, err := store.Open(ctx, cfg.Store.Backend, cfg.StorePath(*indexPath), cfg.Store.Dimension)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening index: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()

	encoder, err := setupEncoder(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Encoder not available: %v\n", err)
		os.Exit(1)
	}

	stats, err := store.Describe(ctx, st)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading index: %v\n", err)
		os.Exit(1)
	}
	if stats.Records == 0 {
		fmt.Fprintln(os.Stderr, "No images indexed - run 'imgsearch index' first")
		os.Exit(1)
	}

	searchUC, err := usecase.NewSearchUseCase(st, encoder, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Search not available: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("IMAGE SEARCH BENCHMARK")
	fmt.Println(strings.Repeat("=", 70))
	fmt.Printf("Images indexed: %d\n", stats.Records)
	fmt.Printf("Backend: %s (%s)\n", stats.Backend, stats.Path)
	fmt.Printf("Model: %s (%s)\n", cfg.Embedding.Model, cfg.Embedding.Provider)
	fmt.Printf("Dimension: %d\n", encoder.Dimension())
	fmt.Println()

	fmt.Printf("Query: \"%s\"\n", *query)
	fmt.Println(strings.Repeat("-", 70))

	latencies := make([]time.Duration, 0, *runs)
	var results []string
	var distances []float64
	for i := 0; i < max(*runs, 1); i++ {
		start := time.Now()
		matches, err := searchUC.Matches(ctx, *query, *topK)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Search error: %v\n", err)
			os.Exit(1)
		}
		latencies = append(latencies, time.Since(start))
		if results == nil {
			for _, m := range matches {
				results = append(results, m.Path)
				distances = append(distances, m.Distance)
			}
		}
	}

	fmt.Printf("Top %d matches:\n\n", len(results))
	for i, p := range results {
		rating := "FAR"
		if distances[i] < 0.7 {
			rating = "CLOSE"
		} else if distances[i] < 0.8 {
			rating = "NEAR"
		}
		fmt.Printf("%2d. [%-5s %.3f] %s\n", i+1, rating, distances[i], shortPath(p))
	}

	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })
	var total time.Duration
	for _, l := range latencies {
		total += l
	}

	fmt.Println()
	fmt.Println(strings.Repeat("=", 70))
	fmt.Printf("LATENCY (%d searches, query encoding included):\n", len(latencies))
	fmt.Printf("  Mean: %s\n", total/time.Duration(len(latencies)))
	fmt.Printf("  p50:  %s\n", latencies[len(latencies)/2])
	fmt.Printf("  p95:  %s\n", latencies[len(latencies)*95/100])
	fmt.Printf("  Max:  %s\n", latencies[len(latencies)-1])
}

func shortPath(path string) string {
	dir, file := filepath.Split(path)
	parent := filepath.Base(filepath.Clean(dir))
	if parent == "." || parent == string(filepath.Separator) {
		return file
	}
	return filepath.Join(parent, file)
}

func setupEncoder(cfg *config.Config) (port.Encoder, error) {
	switch cfg.Embedding.Provider {
	case "local":
		return embedding.NewLocalEncoder(cfg.Embedding.Model, cfg.Store.Dimension, cfg.Embedding.Device)
	case "http":
		return embedding.NewHTTPEncoder(embedding.HTTPOptions{
			BaseURL:           cfg.Embedding.BaseURL,
			Model:             cfg.Embedding.Model,
			APIKeyEnv:         cfg.Embedding.APIKeyEnv,
			Dimension:         cfg.Store.Dimension,
			Device:            cfg.Embedding.Device,
			ImageSize:         cfg.Embedding.ImageSize,
			Timeout:           cfg.Embedding.Timeout,
			RequestsPerSecond: cfg.Embedding.RequestsPerSecond,
		})
	default:
		return nil, fmt.Errorf("unsupported provider: %s", cfg.Embedding.Provider)
	}
}
