package cmd

import (
	"fmt"
	"os"

	"psdkit/internal/archive"
	"psdkit/internal/psd"

	"github.com/spf13/cobra"
)

// ExtractCmd decodes every layer channel into a plane archive
var ExtractCmd = &cobra.Command{
	Use:   "extract <file>",
	Short: "Extract layer channel planes",
	Long: `Decode every channel of every layer and store the raw planes in
an lz4 or zstd compressed archive.

Examples:
  psdkit extract design.psd -o planes.lz4
  psdkit extract design.psd -o planes.zst --codec zstd --skip-broken`,
	Args: cobra.ExactArgs(1),
	Run:  runExtract,
}

func init() {
	ExtractCmd.Flags().StringP("output", "o", "", "Archive file to write")
	ExtractCmd.Flags().String("codec", "", "Archive codec: lz4 or zstd")
	ExtractCmd.Flags().Int("level", -1, "Codec level (lz4 0-9, zstd 1-22)")
	ExtractCmd.Flags().Int("workers", -1, "Parallel layer decoders")
	ExtractCmd.Flags().Bool("skip-broken", false, "Skip layers whose pixel data fails to decode")
	ExtractCmd.MarkFlagRequired("output")
}

func runExtract(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	output, _ := cmd.Flags().GetString("output")

	// Flags override the settings file
	opts := archive.Options{Codec: cfg.Compression.Archive.Codec, Level: cfg.Compression.Archive.Level}
	if cmd.Flags().Changed("codec") {
		opts.Codec, _ = cmd.Flags().GetString("codec")
	}
	if cmd.Flags().Changed("level") {
		opts.Level, _ = cmd.Flags().GetInt("level")
	}
	if err := archive.ValidateOptions(opts); err != nil {
		exitWithError(err.Error(), "Use --codec lz4 or --codec zstd")
	}
	readOpts := psd.ReadOptions{Workers: cfg.Decode.Workers}
	if cmd.Flags().Changed("workers") {
		readOpts.Workers, _ = cmd.Flags().GetInt("workers")
	}
	skipBroken := cfg.Decode.SkipBroken
	if cmd.Flags().Changed("skip-broken") {
		skipBroken, _ = cmd.Flags().GetBool("skip-broken")
	}

	doc, err := openDocument(args[0], readOpts)
	if err != nil {
		if doc == nil || !skipBroken {
			exitWithError(err.Error(), "")
		}
		printWarning(err.Error())
	}

	entries, skipped := collectPlanes(doc, skipBroken)
	outFile, err := os.Create(output)
	if err != nil {
		exitWithError(fmt.Sprintf("create archive: %v", err), "")
	}
	defer outFile.Close()

	stats, err := archive.Write(outFile, entries, opts)
	if err != nil {
		os.Remove(output)
		exitWithError(err.Error(), "")
	}

	printSuccess(fmt.Sprintf("Extracted %d planes from %d layers into %s",
		stats.Entries, len(doc.Layers.Layers)-skipped, output))
	fmt.Printf("   %s %s → %s (%.1f%%)\n", stats.Codec,
		formatSize(stats.OriginalSize), formatSize(stats.CompressedSize), stats.Ratio)
	if skipped > 0 {
		printWarning(fmt.Sprintf("%d layers skipped", skipped))
	}
}

// collectPlanes flattens decoded layers into archive entries. A broken
// layer exits unless skipBroken is set.
func collectPlanes(doc *psd.Document, skipBroken bool) ([]archive.Entry, int) {
	var entries []archive.Entry
	skipped := 0
	for i, l := range doc.Layers.Layers {
		if l.Err != nil {
			if !skipBroken {
				exitWithError(fmt.Sprintf("layer %d (%s): %v", i, l.Record.Name, l.Err),
					"Pass --skip-broken to extract the remaining layers")
			}
			printWarning(fmt.Sprintf("skipping layer %d (%s): %v", i, l.Record.Name, l.Err))
			skipped++
			continue
		}
		for _, id := range l.Planes.IDs() {
			p, _ := l.Planes.Get(id)
			w, h := p.Bounds.Width(), p.Bounds.Height()
			if p.Bounds.Empty() {
				w, h = 0, 0
			}
			entries = append(entries, archive.Entry{
				Layer:   i,
				Channel: id,
				Width:   w,
				Height:  h,
				Depth:   p.Depth,
				Data:    p.Samples,
			})
		}
	}
	return entries, skipped
}
