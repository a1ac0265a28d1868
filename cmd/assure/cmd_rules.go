package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cloudprobe/assure/rules"
)

var rulesDir string

// rulesCmd represents the rules command
var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Load and list compliance rules",
	Long: `Load the rule documents from a directory tree and print what was
accepted. Malformed documents are skipped with a warning, matching the
behavior of the evaluation pipeline.`,
	Example: `  assure rules --dir ./rules          # List all loadable rules
  assure rules --dir ./rules --debug  # Show skipped documents too`,
	RunE: runRules,
}

func init() {
	rootCmd.AddCommand(rulesCmd)

	rulesCmd.Flags().StringVarP(&rulesDir, "dir", "d", "./rules", "Rule documents directory")
}

func runRules(cmd *cobra.Command, args []string) error {
	store := rules.NewStore()
	if err := store.Load(cmd.Context(), rulesDir); err != nil {
		return fmt.Errorf("failed to load rules: %w", err)
	}

	all := store.All()
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })

	fmt.Printf("Loaded %d rules from %s\n\n", len(all), rulesDir)
	for _, rule := range all {
		state := "active"
		if !rule.Active {
			state = "inactive"
		}
		fmt.Printf("%-40s %-10s %s\n", rule.ID, state, rule.AssetType())
		if len(rule.Controls) > 0 {
			fmt.Printf("%-40s controls: %s\n", "", strings.Join(rule.Controls, ", "))
		}
	}
	return nil
}
