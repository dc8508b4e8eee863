package cmd

import (
	"fmt"

	"github.com/MeKo-Tech/photocheck/internal/onnx"
	"github.com/spf13/cobra"
)

// testCmd represents the test command.
var testCmd = &cobra.Command{
	Use:   "test",
	Short: "Test ONNX Runtime setup and dependencies",
	Long: `Test the ONNX Runtime installation and verify that the face detection
and segmentation models can be run.

This command checks that:
- the ONNX Runtime shared library can be found (set ONNXRUNTIME_LIB to override)
- the runtime initializes
- the model files are present`,
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		_, _ = fmt.Fprintln(out, cmd.Short)
		_, _ = fmt.Fprintln(out, "Testing ONNX Runtime setup...")
		_, _ = fmt.Fprintln(out)

		gpu, _ := cmd.Flags().GetBool("gpu")
		info, err := onnx.Check(gpu)
		if err != nil {
			_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "ONNX Runtime test failed: %v\n", err)
			_, _ = fmt.Fprintln(out)
			_, _ = fmt.Fprintf(out, "Install ONNX Runtime or point %s at the shared library.\n", onnx.EnvLibraryPath)
			return
		}
		_, _ = fmt.Fprintf(out, "Library: %s\n", info.Library)
		_, _ = fmt.Fprintf(out, "Version: %s\n", info.Version)

		missing := 0
		for _, s := range modelsInventory() {
			if s.Required && !s.Present {
				missing++
				_, _ = fmt.Fprintf(out, "Missing model: %s (%s)\n", s.Name, s.Path)
			}
		}
		_, _ = fmt.Fprintln(out)
		if missing > 0 {
			_, _ = fmt.Fprintf(out, "%d required model(s) missing.\n", missing)
			return
		}
		_, _ = fmt.Fprintln(out, "All tests passed! ONNX Runtime is ready for use.")
	},
}

func init() {
	rootCmd.AddCommand(testCmd)
	testCmd.Flags().Bool("gpu", false, "test the CUDA execution provider")
	testCmd.SetHelpFunc(func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		_, _ = fmt.Fprintln(out, cmd.Short)
		_, _ = fmt.Fprintln(out, "Usage:")
		_, _ = fmt.Fprintln(out, cmd.UseLine())
		_, _ = fmt.Fprintln(out, "Flags:")
		_, _ = fmt.Fprintln(out, cmd.Flags().FlagUsages())
	})
}
