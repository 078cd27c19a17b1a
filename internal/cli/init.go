package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"imgsearch/internal/adapter/store"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Provision the image store",
	Long: `Create the store layout (buckets or table) and record its dimension and
model. Running init again on the same store is a no-op; a store provisioned
with another dimension is rejected.

Examples:
  imgsearch init
  imgsearch init -d /path/to/project`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()
	path := cfg.StorePath(GetRootDir())

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create store directory: %w", err)
	}

	schema, err := store.Provision(cmd.Context(), cfg.Store.Backend, path, cfg.Store.Dimension, cfg.Embedding.Model)
	if err != nil {
		return fmt.Errorf("failed to provision store: %w", err)
	}

	fmt.Printf("Store ready at %s\n", path)
	fmt.Printf("  Backend:   %s\n", cfg.Store.Backend)
	fmt.Printf("  Dimension: %d\n", schema.Dimension)
	fmt.Printf("  Model:     %s\n", schema.Model)
	return nil
}
