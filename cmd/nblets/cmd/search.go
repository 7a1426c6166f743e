package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var searchFull bool

var searchCmd = &cobra.Command{
	Use:   "search <terms...>",
	Short: "Search the notebooklet catalog",
	Long: `Search notebooklet names, descriptions, keywords, entity types and
option names. Terms are treated as case-insensitive patterns; results
are ranked by the number of matching terms.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSearch,
}

func init() {
	rootCmd.AddCommand(searchCmd)

	searchCmd.Flags().BoolVar(&searchFull, "full", false, "only return notebooklets matching every term")
}

func runSearch(_ *cobra.Command, args []string) error {
	reg, err := buildRegistry(log)
	if err != nil {
		return err
	}

	matches := reg.Find(strings.Join(args, " "), searchFull)
	if len(matches) == 0 {
		fmt.Println("No notebooklets matched.")

		return nil
	}

	for _, match := range matches {
		fmt.Printf("%-45s %s\n", match.Entry.Path, match.Entry.Meta.Description)
	}

	return nil
}
