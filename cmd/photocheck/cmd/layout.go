package cmd

import (
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"

	"github.com/MeKo-Tech/photocheck/internal/printlayout"
	"github.com/MeKo-Tech/photocheck/internal/report"
	"github.com/MeKo-Tech/photocheck/internal/utils"
	"github.com/spf13/cobra"
)

// layoutCmd renders a print sheet from one photo.
var layoutCmd = &cobra.Command{
	Use:   "layout <photo>",
	Short: "Render a print sheet with copies of a passport photo",
	Long: `Tile a processed 35x45 mm photo onto photo paper with cutting guides.
With --validate the input is checked and processed first and rejected
photos produce no sheet.

Examples:
  photocheck layout passport.jpg --output sheet.jpg
  photocheck layout portrait.jpg --validate --format pdf --output sheet.pdf`,
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig()
		if cmd.Flags().Changed("dpi") {
			cfg.ICAO.DPI, _ = cmd.Flags().GetInt("dpi")
		}

		format, _ := cmd.Flags().GetString("format")
		output, _ := cmd.Flags().GetString("output")
		if !cmd.Flags().Changed("format") && output != "" {
			if ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(output)), "."); ext != "" {
				format = ext
			}
		}

		layout, err := printlayout.New(cfg.Layout, cfg.ICAO)
		if err != nil {
			return fmt.Errorf("failed to create print layout: %w", err)
		}

		var photo image.Image
		if validate, _ := cmd.Flags().GetBool("validate"); validate {
			cfg.Pipeline.KeepImages = true
			checker, err := newChecker(cfg)
			if err != nil {
				return fmt.Errorf("failed to create checker: %w", err)
			}
			defer func() { _ = checker.Close() }()

			res := checker.CheckFile(cmd.Context(), args[0])
			if res.Error != "" {
				return fmt.Errorf("check failed: %s", res.Error)
			}
			if res.Status != report.Compliant || res.Image == nil {
				return fmt.Errorf("photo rejected (%s): %s", res.ReasonCode, res.Recommendation)
			}
			photo = res.Image
		} else {
			photo, _, err = utils.LoadImage(args[0])
			if err != nil {
				return err
			}
		}

		data, _, info, err := layout.Encode(photo, format)
		if err != nil {
			return err
		}
		if output == "" {
			output = strings.TrimSuffix(filepath.Base(args[0]), filepath.Ext(args[0])) + "_print." + extensionFor(format)
		}
		if err := os.WriteFile(output, data, 0o600); err != nil {
			return fmt.Errorf("failed to write %s: %w", output, err)
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Print sheet written to %s (%d photos, %d dpi)\n",
			output, info.PhotosCount, info.DPI)
		return nil
	},
}

func extensionFor(format string) string {
	if format == printlayout.FormatPDF {
		return "pdf"
	}
	return "jpg"
}

func init() {
	rootCmd.AddCommand(layoutCmd)
	layoutCmd.Flags().StringP("output", "o", "", "output file (default: <photo>_print.jpg)")
	layoutCmd.Flags().StringP("format", "f", printlayout.FormatJPEG, "sheet format: jpeg, pdf")
	layoutCmd.Flags().Int("dpi", 0, "print resolution (default from config)")
	layoutCmd.Flags().Bool("validate", false, "check and process the photo before tiling")
}
