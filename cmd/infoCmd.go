package cmd

import (
	"fmt"
	"os"
	"strings"

	"psdkit/internal/psd"

	"github.com/spf13/cobra"
)

// InfoCmd prints the document header and a layer summary
var InfoCmd = &cobra.Command{
	Use:   "info <file>",
	Short: "Show document header",
	Long: `Show the header of a PSD or PSB document together with a
summary of its layer section.

Examples:
  psdkit info design.psd
  psdkit info poster.psb`,
	Args: cobra.ExactArgs(1),
	Run:  runInfo,
}

func runInfo(cmd *cobra.Command, args []string) {
	path := args[0]
	stat, err := os.Stat(path)
	if err != nil {
		exitWithError(fmt.Sprintf("file not found: %s", path), "")
	}

	doc, err := openDocument(path, psd.ReadOptions{HeadersOnly: true})
	if err != nil {
		exitWithError(err.Error(), "Check that the file is a PSD or PSB document")
	}
	printDocumentInfo(path, stat.Size(), doc)
}

func printDocumentInfo(path string, size int64, doc *psd.Document) {
	hdr := doc.Header
	format := "PSD"
	if hdr.Large() {
		format = "PSB"
	}

	fmt.Printf("%s %s\n", bold("File:"), path)
	fmt.Printf("Format:     %s (version %d), %s\n", format, hdr.Version, formatSize(size))
	fmt.Printf("Dimensions: %d x %d\n", hdr.Width, hdr.Height)
	fmt.Printf("Color Mode: %s, %d-bit, %d channels\n", hdr.ColorMode, hdr.Depth, hdr.Channels)

	layers := doc.Layers.Layers
	where := "layer info"
	if doc.LayersKey != "" {
		where = doc.LayersKey + " block"
	}
	fmt.Printf("\nLayers: %s", cyan(len(layers)))
	if len(layers) > 0 {
		fmt.Printf(" (from %s)", where)
	}
	fmt.Println()
	if doc.Layers.MergedAlpha {
		fmt.Println("   • first alpha channel holds merged transparency")
	}

	groups := 0
	for _, l := range layers {
		if d, ok := l.Record.Info.SectionDivider(); ok && d.Type != psd.SectionOther && d.Type != psd.SectionBoundingDivider {
			groups++
		}
	}
	if groups > 0 {
		fmt.Printf("   • %d groups\n", groups)
	}

	if keys := doc.GlobalInfo.Keys(); len(keys) > 0 {
		fmt.Printf("Global info blocks: %s\n", strings.Join(keys, ", "))
	}
	fmt.Printf("Image resources: %s, composite data: %s\n",
		formatSize(int64(len(doc.ImageResources))), formatSize(int64(len(doc.ImageData))))
}
