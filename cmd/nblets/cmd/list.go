package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var listBranch string

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the notebooklets in the catalog",
	Long: `List every notebooklet in the catalog with its path, entity types
and default options. Use --branch to restrict the listing to one part
of the namespace (e.g. "azsent.host").`,
	RunE: runList,
}

func init() {
	rootCmd.AddCommand(listCmd)

	listCmd.Flags().StringVar(&listBranch, "branch", "", "restrict to a namespace branch (e.g. azsent.host)")
}

func runList(_ *cobra.Command, _ []string) error {
	reg, err := buildRegistry(log)
	if err != nil {
		return err
	}

	for _, entry := range reg.All() {
		if listBranch != "" && !strings.HasPrefix(entry.Path, listBranch+".") && entry.Path != listBranch {
			continue
		}

		fmt.Printf("%s\n", entry.Path)
		fmt.Printf("    %s\n", entry.Meta.Description)
		fmt.Printf("    entities: %s  defaults: %s\n",
			strings.Join(entry.Meta.EntityTypes, ", "),
			strings.Join(entry.Meta.DefaultOptionNames(), ", "),
		)
	}

	return nil
}
