package cmd

import (
	"encoding/json"
	"fmt"
	"image"

	"github.com/MeKo-Tech/photocheck/internal/batch"
	"github.com/MeKo-Tech/photocheck/internal/quickcheck"
	"github.com/MeKo-Tech/photocheck/internal/utils"
	"github.com/spf13/cobra"
)

// quickResult is one line of quick-check output.
type quickResult struct {
	Path string `json:"path"`
	quickcheck.Result
	Error string `json:"error,omitempty"`
}

// faceCounter is the part of quickcheck.Checker the command needs.
type faceCounter interface {
	Check(img image.Image) quickcheck.Result
}

// quickCheckFiles runs counter over every file. Unreadable files are reported
// per entry instead of aborting the run.
func quickCheckFiles(counter faceCounter, files []string) []quickResult {
	results := make([]quickResult, 0, len(files))
	for _, f := range files {
		qr := quickResult{Path: f}
		img, _, err := utils.LoadImage(f)
		if err != nil {
			qr.Error = err.Error()
		} else {
			qr.Result = counter.Check(img)
		}
		results = append(results, qr)
	}
	return results
}

// quickCmd counts faces without running the full pipeline.
var quickCmd = &cobra.Command{
	Use:   "quick [files or directories...]",
	Short: "Count faces in photos with the fast cascade detector",
	Long: `Run the lightweight face counter on each photo. A photo passes when
exactly one face is found. No models besides the cascade are needed.

Examples:
  photocheck quick portrait.jpg
  photocheck quick photos/ --format json`,
	Args:         cobra.MinimumNArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig()
		qcfg := cfg.ToQuickCheckConfig()
		if cmd.Flags().Changed("cascade") {
			qcfg.CascadePath, _ = cmd.Flags().GetString("cascade")
		}
		checker, err := quickcheck.New(qcfg)
		if err != nil {
			return fmt.Errorf("failed to load face cascade: %w", err)
		}

		recursive, _ := cmd.Flags().GetBool("recursive")
		files, err := batch.DiscoverImages(args, recursive, nil, nil)
		if err != nil {
			return fmt.Errorf("failed to discover image files: %w", err)
		}
		if len(files) == 0 {
			return batch.ErrNoImages
		}

		results := quickCheckFiles(checker, files)

		out := cmd.OutOrStdout()
		format, _ := cmd.Flags().GetString("format")
		switch format {
		case "json":
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(results)
		case "text", "":
			for _, r := range results {
				if r.Error != "" {
					_, _ = fmt.Fprintf(out, "%s: error: %s\n", r.Path, r.Error)
					continue
				}
				_, _ = fmt.Fprintf(out, "%s: %s\n", r.Path, r.Message)
			}
			return nil
		default:
			return fmt.Errorf("unsupported format: %s", format)
		}
	},
}

func init() {
	rootCmd.AddCommand(quickCmd)
	quickCmd.Flags().StringP("format", "f", "text", "output format: text, json")
	quickCmd.Flags().String("cascade", "", "path to the face cascade (overrides models dir)")
	quickCmd.Flags().BoolP("recursive", "r", false, "recursively scan directories")
}
