package cmd

import (
	"fmt"
	"os"

	"psdkit/internal/archive"

	"github.com/spf13/cobra"
)

// DeltaCmd writes a binary patch between two documents
var DeltaCmd = &cobra.Command{
	Use:   "delta <base> <target>",
	Short: "Compute a binary delta",
	Long: `Write a bsdiff patch that turns base into target. Repack both
documents with the same compression first for the smallest patch.

Examples:
  psdkit delta v1.psd v2.psd -o v2.bsdiff`,
	Args: cobra.ExactArgs(2),
	Run:  runDelta,
}

// PatchCmd applies a patch written by delta
var PatchCmd = &cobra.Command{
	Use:   "patch <base> <patch>",
	Short: "Apply a binary delta",
	Long: `Rebuild a document from its base and a patch written by
'psdkit delta'.

Examples:
  psdkit patch v1.psd v2.bsdiff -o v2.psd`,
	Args: cobra.ExactArgs(2),
	Run:  runPatch,
}

func init() {
	DeltaCmd.Flags().StringP("output", "o", "", "Patch file to write")
	DeltaCmd.MarkFlagRequired("output")
	PatchCmd.Flags().StringP("output", "o", "", "Document file to write")
	PatchCmd.MarkFlagRequired("output")
}

func runDelta(cmd *cobra.Command, args []string) {
	output, _ := cmd.Flags().GetString("output")

	base, err := os.Open(args[0])
	if err != nil {
		exitWithError(fmt.Sprintf("open base: %v", err), "")
	}
	defer base.Close()
	target, err := os.Open(args[1])
	if err != nil {
		exitWithError(fmt.Sprintf("open target: %v", err), "")
	}
	defer target.Close()

	patch, err := os.Create(output)
	if err != nil {
		exitWithError(fmt.Sprintf("create patch: %v", err), "")
	}
	defer patch.Close()

	if err := archive.Delta(base, target, patch); err != nil {
		os.Remove(output)
		exitWithError(err.Error(), "The bzip2 program must be installed to write patches")
	}

	info, _ := patch.Stat()
	var size int64
	if info != nil {
		size = info.Size()
	}
	printSuccess(fmt.Sprintf("Wrote %s (%s)", output, formatSize(size)))
}

func runPatch(cmd *cobra.Command, args []string) {
	output, _ := cmd.Flags().GetString("output")

	base, err := os.Open(args[0])
	if err != nil {
		exitWithError(fmt.Sprintf("open base: %v", err), "")
	}
	defer base.Close()
	patch, err := os.Open(args[1])
	if err != nil {
		exitWithError(fmt.Sprintf("open patch: %v", err), "")
	}
	defer patch.Close()

	out, err := os.Create(output)
	if err != nil {
		exitWithError(fmt.Sprintf("create output: %v", err), "")
	}
	defer out.Close()

	if err := archive.Apply(base, out, patch); err != nil {
		os.Remove(output)
		exitWithError(err.Error(), "Check that the patch was made from this base")
	}
	printSuccess(fmt.Sprintf("Rebuilt %s", output))
}
