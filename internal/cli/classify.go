package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/vaultshell/classify"
)

var classifyCmd = &cobra.Command{
	Use:   "classify [file]",
	Short: "Classify captured CLI output with the built-in marker table",
	Long: `Read captured vault CLI output from a file (or stdin) and report how
the built-in marker table judges it: ready, complete, and which lines
count as real errors. Useful when adapting markers to a new CLI version.

Examples:
  keeper shell 2>&1 | tee session.log
  vaultshell classify session.log`,
	Args: cobra.MaximumNArgs(1),
	RunE: runClassify,
}

func init() {
	rootCmd.AddCommand(classifyCmd)
}

func runClassify(cmd *cobra.Command, args []string) error {
	in := cmd.InOrStdin()
	if len(args) == 1 {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}

	data, err := io.ReadAll(in)
	if err != nil {
		return fmt.Errorf("read output: %w", err)
	}
	text := string(data)

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "ready:      %t\n", classify.IsReady(text))
	fmt.Fprintf(out, "complete:   %t\n", classify.IsComplete(text))
	fmt.Fprintf(out, "real error: %t\n", classify.HasRealError(text))
	for _, line := range classify.Default().ErrorLines(text) {
		fmt.Fprintf(out, "  %s\n", line)
	}
	return nil
}
