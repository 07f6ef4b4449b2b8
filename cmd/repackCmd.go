package cmd

import (
	"fmt"
	"os"

	"psdkit/internal/psd"

	"github.com/spf13/cobra"
)

// RepackCmd re-encodes every layer channel with another compression
var RepackCmd = &cobra.Command{
	Use:   "repack <file>",
	Short: "Re-encode layer channels",
	Long: `Decode every layer and write the document again with all layer
channels compressed by one scheme. Everything outside the layer records
and channel data is copied unchanged.

Examples:
  psdkit repack design.psd -o out.psd
  psdkit repack design.psd -o out.psd --compression zip-prediction`,
	Args: cobra.ExactArgs(1),
	Run:  runRepack,
}

func init() {
	RepackCmd.Flags().StringP("output", "o", "", "Document file to write")
	RepackCmd.Flags().String("compression", "", "Channel compression: raw, rle, zip or zip-prediction")
	RepackCmd.Flags().Int("workers", -1, "Parallel layer decoders")
	RepackCmd.MarkFlagRequired("output")
}

func runRepack(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	output, _ := cmd.Flags().GetString("output")

	comp := cfg.LayerCompression()
	if cmd.Flags().Changed("compression") {
		name, _ := cmd.Flags().GetString("compression")
		c, err := psd.ParseCompression(name)
		if err != nil {
			exitWithError(err.Error(), "Use raw, rle, zip or zip-prediction")
		}
		comp = c
	}
	readOpts := psd.ReadOptions{Workers: cfg.Decode.Workers}
	if cmd.Flags().Changed("workers") {
		readOpts.Workers, _ = cmd.Flags().GetInt("workers")
	}

	doc, err := openDocument(args[0], readOpts)
	if err != nil {
		exitWithError(err.Error(), "")
	}
	if failed := doc.Layers.Failed(); len(failed) > 0 {
		l := doc.Layers.Layers[failed[0]]
		exitWithError(fmt.Sprintf("%d layers cannot be decoded, first: %v", len(failed), l.Err),
			"Run 'psdkit extract --skip-broken' to salvage the readable layers")
	}

	// Length fields are patched in place, so encode into a seekable buffer
	buf := psd.NewBuffer(nil)
	if err := doc.Write(buf, comp); err != nil {
		exitWithError(fmt.Sprintf("encode document: %v", err), "")
	}
	if err := os.WriteFile(output, buf.Bytes(), 0644); err != nil {
		exitWithError(fmt.Sprintf("write %s: %v", output, err), "")
	}

	in, _ := os.Stat(args[0])
	var inSize int64
	if in != nil {
		inSize = in.Size()
	}
	printSuccess(fmt.Sprintf("Repacked %d layers with %s into %s", len(doc.Layers.Layers), comp, output))
	fmt.Printf("   %s → %s\n", formatSize(inSize), formatSize(int64(buf.Len())))
}
