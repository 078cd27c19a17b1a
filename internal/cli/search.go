package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"imgsearch/internal/usecase"
)

var (
	searchText string
	searchTopK int
	searchJSON bool
)

var searchCmd = &cobra.Command{
	Use:     "search",
	Aliases: []string{"query"},
	Short:   "Find images matching a description",
	Long: `Embed a free-text description and print the stored images closest to it,
most similar first.

Examples:
  imgsearch search -q "a dog on a beach"
  imgsearch search -q "red car" -k 10 --json`,
	RunE: runSearch,
}

func init() {
	rootCmd.AddCommand(searchCmd)
	searchCmd.Flags().StringVarP(&searchText, "query", "q", "", "description to search for (required)")
	searchCmd.Flags().IntVarP(&searchTopK, "top-k", "k", -1, "number of results (default from config)")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "output as JSON")
	searchCmd.MarkFlagRequired("query")
}

type searchOutput struct {
	Query   string        `json:"query"`
	Results []searchMatch `json:"results"`
}

type searchMatch struct {
	Rank     int     `json:"rank"`
	Path     string  `json:"path"`
	Distance float64 `json:"distance"`
}

func runSearch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg := GetConfig()

	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	enc, err := newEncoder(cfg)
	if err != nil {
		return err
	}
	searchUC, err := usecase.NewSearchUseCase(st, enc, GetLogger())
	if err != nil {
		return err
	}

	k := cfg.Search.TopK
	if searchTopK >= 0 {
		k = searchTopK
	}

	matches, err := searchUC.Matches(ctx, searchText, k)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if searchJSON {
		out := searchOutput{Query: searchText, Results: make([]searchMatch, len(matches))}
		for i, m := range matches {
			out.Results[i] = searchMatch{Rank: i + 1, Path: m.Path, Distance: m.Distance}
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	if len(matches) == 0 {
		fmt.Println("No results found.")
		return nil
	}
	for i, m := range matches {
		fmt.Printf("%2d. %s  (distance %.4f)\n", i+1, m.Path, m.Distance)
	}
	return nil
}
