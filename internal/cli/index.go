package cli

import (
	"fmt"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"imgsearch/internal/adapter/fs"
	"imgsearch/internal/usecase"
)

var (
	indexFromList  string
	indexMaxItems  int
	indexBatchSize int
)

var indexCmd = &cobra.Command{
	Use:   "index [path]",
	Short: "Embed and store images",
	Long: `Embed candidate images in batches and store each vector under its path.
Images already in the store are left untouched, so re-running is safe.
Candidates come from walking the directory, or from a list file written by
'imgsearch prepare'.

Examples:
  imgsearch index ./photos
  imgsearch index --from-list valid_images.txt --max-items 500
  imgsearch index ./photos --batch-size 16`,
	Args: cobra.MaximumNArgs(1),
	RunE: runIndex,
}

func init() {
	rootCmd.AddCommand(indexCmd)
	indexCmd.Flags().StringVar(&indexFromList, "from-list", "", "read candidate paths from a list file")
	indexCmd.Flags().IntVar(&indexMaxItems, "max-items", -1, "maximum images per run, 0 for no cap (default from config)")
	indexCmd.Flags().IntVar(&indexBatchSize, "batch-size", -1, "images per batch, 0 for one per CPU (default from config)")
}

func runIndex(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg := GetConfig()
	log := GetLogger()

	paths, err := indexCandidates(args)
	if err != nil {
		return err
	}

	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	enc, err := newEncoder(cfg)
	if err != nil {
		return err
	}

	opts := usecase.IngestOptions{
		MaxItems:  cfg.Ingest.MaxItems,
		BatchSize: cfg.Ingest.BatchSize,
	}
	if indexMaxItems >= 0 {
		opts.MaxItems = indexMaxItems
	}
	if indexBatchSize >= 0 {
		opts.BatchSize = indexBatchSize
	}

	ingestUC, err := usecase.NewIngestUseCase(st, enc, fs.NewLoader(opts.BatchSize), log, opts)
	if err != nil {
		return err
	}

	total := len(paths)
	if opts.MaxItems > 0 && total > opts.MaxItems {
		total = opts.MaxItems
	}
	fmt.Printf("Indexing %d of %d candidates (batch size %d, model %s)\n",
		total, len(paths), ingestUC.BatchSize(), enc.ModelName())

	startTime := time.Now()
	bar := progressbar.NewOptions(total,
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowBytes(false),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionSetDescription("[cyan]Indexing[reset]"),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionOnCompletion(func() {
			fmt.Println()
		}),
	)

	progress := func(p usecase.Progress) {
		bar.Set(p.Processed)

		elapsed := time.Since(startTime)
		rate := float64(p.Processed) / elapsed.Seconds()
		remaining := p.Total - p.Processed
		if rate > 0 {
			eta := time.Duration(float64(remaining)/rate) * time.Second
			bar.Describe(fmt.Sprintf("[cyan]Indexing[reset] ETA: %s", formatDuration(eta)))
		}
	}

	result, err := ingestUC.Ingest(ctx, paths, progress)
	bar.Finish()
	if result != nil {
		printIngestSummary(result)
	}
	if err != nil {
		return fmt.Errorf("indexing failed: %w", err)
	}

	fmt.Printf("\nIndex stored at: %s\n", st.Path())
	return nil
}

func indexCandidates(args []string) ([]string, error) {
	if indexFromList != "" {
		paths, err := fs.ReadList(indexFromList)
		if err != nil {
			return nil, fmt.Errorf("failed to read list: %w", err)
		}
		return paths, nil
	}

	root, err := ingestRoot(args)
	if err != nil {
		return nil, err
	}
	cfg := GetConfig()
	fmt.Printf("Scanning %s...\n", root)
	walker := fs.NewWalker(cfg.Ingest.Includes, cfg.Ingest.Excludes).WithMinSize(cfg.Ingest.MinWidth, cfg.Ingest.MinHeight)
	paths, err := walker.Walk(root)
	if err != nil {
		return nil, fmt.Errorf("failed to walk directory: %w", err)
	}
	return paths, nil
}

func printIngestSummary(result *usecase.IngestResult) {
	fmt.Printf("\nIndexing complete:\n")
	fmt.Printf("  Candidates:   %d\n", result.Total)
	fmt.Printf("  Embedded:     %d\n", result.Completed)
	fmt.Printf("  New rows:     %d\n", result.Inserted)
	fmt.Printf("  Already had:  %d\n", result.Completed-result.Inserted)
	fmt.Printf("  Skipped:      %d (unreadable)\n", result.Skipped)
	fmt.Printf("  Batches:      %d\n", result.Batches)
	fmt.Printf("  Took:         %s\n", formatDuration(result.Duration))

	if len(result.Failures) > 0 {
		fmt.Printf("\nWarnings:\n")
		for _, f := range result.Failures {
			fmt.Printf("  - %s: %v\n", f.Path, f.Err)
		}
	}
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return "<1s"
	}
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		m := int(d.Minutes())
		s := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm%ds", m, s)
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	return fmt.Sprintf("%dh%dm", h, m)
}
