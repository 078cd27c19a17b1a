package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"imgsearch/internal/adapter/store"
)

var statsJSON bool

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show what the store holds",
	Args:  cobra.NoArgs,
	RunE:  runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)
	statsCmd.Flags().BoolVar(&statsJSON, "json", false, "output as JSON")
}

func runStats(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	st, err := openStore(ctx, GetConfig())
	if err != nil {
		return err
	}
	defer st.Close()

	stats, err := store.Describe(ctx, st)
	if err != nil {
		return fmt.Errorf("failed to read store: %w", err)
	}

	if statsJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(stats)
	}

	fmt.Printf("Store:     %s\n", stats.Path)
	fmt.Printf("Backend:   %s\n", stats.Backend)
	fmt.Printf("Dimension: %d\n", stats.Dimension)
	fmt.Printf("Model:     %s\n", stats.Model)
	fmt.Printf("Images:    %d\n", stats.Records)
	return nil
}
