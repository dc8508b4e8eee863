package cmd

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/MeKo-Tech/photocheck/internal/models"
	"github.com/spf13/cobra"
)

// modelsCmd lists the model files the pipeline looks for.
var modelsCmd = &cobra.Command{
	Use:          "models",
	Short:        "List model files and whether they are installed",
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		inventory := modelsInventory()

		out := cmd.OutOrStdout()
		if format, _ := cmd.Flags().GetString("format"); format == "json" {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(inventory)
		}

		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		_, _ = fmt.Fprintln(tw, "NAME\tTYPE\tREQUIRED\tPRESENT\tPATH")
		for _, s := range inventory {
			_, _ = fmt.Fprintf(tw, "%s\t%s\t%t\t%t\t%s\n", s.Name, s.Type, s.Required, s.Present, s.Path)
		}
		return tw.Flush()
	},
}

func modelsInventory() []models.Status {
	return models.Inventory(GetConfig().ResolvedModelsDir())
}

func init() {
	rootCmd.AddCommand(modelsCmd)
	modelsCmd.Flags().StringP("format", "f", "table", "output format: table, json")
}
