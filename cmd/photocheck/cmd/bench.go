package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/MeKo-Tech/photocheck/internal/benchmark"
	"github.com/MeKo-Tech/photocheck/internal/common"
	"github.com/MeKo-Tech/photocheck/internal/utils"
	"github.com/spf13/cobra"
)

var benchCmd = &cobra.Command{
	Use:   "bench <photo>",
	Short: "Measure check latency on one photo",
	Long: `Run the full check on one photo repeatedly and report latency
percentiles and allocation per check.

Examples:
  photocheck bench portrait.jpg
  photocheck bench portrait.jpg --iterations 50 --format json`,
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", args[0], err)
		}
		img, _, err := utils.DecodeImage(data)
		if err != nil {
			return err
		}

		checker, err := newChecker(GetConfig())
		if err != nil {
			return fmt.Errorf("failed to create checker: %w", err)
		}
		defer func() { _ = checker.Close() }()

		suite := benchmark.NewSuite()
		suite.Warmup, _ = cmd.Flags().GetInt("warmup")
		suite.AddPhotoChecks(checker, img, data)

		iterations, _ := cmd.Flags().GetInt("iterations")
		results := suite.RunAll(cmd.Context(), iterations)

		out := cmd.OutOrStdout()
		if format, _ := cmd.Flags().GetString("format"); format == "json" {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(results)
		}
		benchmark.Print(out, results)
		_, _ = fmt.Fprintf(out, "Memory: %s\n", common.GetMemoryStats())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(benchCmd)
	benchCmd.Flags().IntP("iterations", "n", 10, "measured runs per benchmark")
	benchCmd.Flags().Int("warmup", 1, "unmeasured runs before measuring")
	benchCmd.Flags().StringP("format", "f", "text", "output format: text, json")
}
