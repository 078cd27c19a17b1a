package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"imgsearch/internal/adapter/fs"
)

var (
	prepareOutput    string
	prepareMinWidth  int
	prepareMinHeight int
)

var prepareCmd = &cobra.Command{
	Use:   "prepare [path]",
	Short: "Write the list of candidate images",
	Long: `Walk a directory, keep images matching the include patterns that are at
least the minimum size, and write their paths to a list file for
'imgsearch index --from-list'.

Examples:
  imgsearch prepare ./photos -o valid_images.txt
  imgsearch prepare ./photos --min-width 256 --min-height 256`,
	Args: cobra.MaximumNArgs(1),
	RunE: runPrepare,
}

func init() {
	rootCmd.AddCommand(prepareCmd)
	prepareCmd.Flags().StringVarP(&prepareOutput, "output", "o", "valid_images.txt", "list file to write")
	prepareCmd.Flags().IntVar(&prepareMinWidth, "min-width", -1, "minimum image width (default from config)")
	prepareCmd.Flags().IntVar(&prepareMinHeight, "min-height", -1, "minimum image height (default from config)")
}

func runPrepare(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()

	root, err := ingestRoot(args)
	if err != nil {
		return err
	}

	minWidth, minHeight := cfg.Ingest.MinWidth, cfg.Ingest.MinHeight
	if prepareMinWidth >= 0 {
		minWidth = prepareMinWidth
	}
	if prepareMinHeight >= 0 {
		minHeight = prepareMinHeight
	}

	fmt.Printf("Scanning %s...\n", root)
	walker := fs.NewWalker(cfg.Ingest.Includes, cfg.Ingest.Excludes).WithMinSize(minWidth, minHeight)
	paths, err := walker.Walk(root)
	if err != nil {
		return fmt.Errorf("failed to walk directory: %w", err)
	}

	if err := fs.WriteList(prepareOutput, paths); err != nil {
		return fmt.Errorf("failed to write list: %w", err)
	}
	fmt.Printf("Wrote %d candidate images to %s\n", len(paths), prepareOutput)
	return nil
}

// ingestRoot resolves the directory to enumerate: the argument, then the
// configured root, then the working directory.
func ingestRoot(args []string) (string, error) {
	root := GetRootDir()
	if cfg := GetConfig(); cfg.Ingest.Root != "" {
		root = cfg.Ingest.Root
	}
	if len(args) > 0 {
		root = args[0]
	}

	abs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("invalid path: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("path does not exist: %w", err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("path is not a directory: %s", abs)
	}
	return abs, nil
}
