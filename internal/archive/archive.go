// Package archive stores extracted channel planes in a compressed stream
// and computes binary deltas between encoded documents.
package archive

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	// Compression Libraries
	"github.com/klauspost/compress/zstd"
	"github.com/kr/binarydist"
	"github.com/pierrec/lz4/v4"
)

const (
	// Magic opens every archive, in clear, followed by the codec line.
	Magic = "PSDKPLN1"

	CodecLZ4  = "lz4"
	CodecZstd = "zstd"

	recordPrefix = "LAYER:"

	// maxPlaneBytes bounds a single record on read.
	maxPlaneBytes = 1 << 31
)

var (
	ErrBadArchive   = errors.New("archive: not a plane archive")
	ErrUnknownCodec = errors.New("archive: unknown codec")
	ErrBadRecord    = errors.New("archive: malformed record")
)

// lz4Levels maps level 0..9 to the lz4 presets.
var lz4Levels = []lz4.CompressionLevel{
	lz4.Fast, lz4.Level1, lz4.Level2, lz4.Level3, lz4.Level4,
	lz4.Level5, lz4.Level6, lz4.Level7, lz4.Level8, lz4.Level9,
}

// Entry is one archived channel plane.
type Entry struct {
	Layer   int
	Channel int16
	Width   int
	Height  int
	Depth   int // bytes per sample
	Data    []byte
}

// Options selects the stream codec. Level 0 picks the codec default.
type Options struct {
	Codec string
	Level int
}

// Stats reports what Write produced.
type Stats struct {
	Codec          string  `json:"codec"`
	Entries        int     `json:"entries"`
	OriginalSize   int64   `json:"original_size"`
	CompressedSize int64   `json:"compressed_size"`
	Ratio          float64 `json:"compression_ratio"`
}

// ValidateOptions checks codec and level without writing anything.
func ValidateOptions(opts Options) error {
	switch normalizeCodec(opts.Codec) {
	case CodecLZ4:
		if opts.Level < 0 || opts.Level >= len(lz4Levels) {
			return fmt.Errorf("lz4 level %d outside 0..%d", opts.Level, len(lz4Levels)-1)
		}
	case CodecZstd:
		if opts.Level < 0 || opts.Level > 22 {
			return fmt.Errorf("zstd level %d outside 0..22", opts.Level)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownCodec, opts.Codec)
	}
	return nil
}

func normalizeCodec(codec string) string {
	codec = strings.ToLower(strings.TrimSpace(codec))
	if codec == "" {
		return CodecLZ4
	}
	return codec
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

// Write streams entries through the selected codec. Each record is a
// header line followed by the raw plane bytes.
func Write(w io.Writer, entries []Entry, opts Options) (Stats, error) {
	if err := ValidateOptions(opts); err != nil {
		return Stats{}, err
	}
	codec := normalizeCodec(opts.Codec)
	stats := Stats{Codec: codec}

	cw := &countingWriter{w: w}
	if _, err := fmt.Fprintf(cw, "%s\n%s\n", Magic, codec); err != nil {
		return stats, fmt.Errorf("write archive header: %w", err)
	}

	zw, err := newCompressor(cw, codec, opts.Level)
	if err != nil {
		return stats, err
	}
	for _, e := range entries {
		if want := e.Width * e.Height * e.Depth; want != len(e.Data) {
			zw.Close()
			return stats, fmt.Errorf("%w: layer %d channel %d is %dx%dx%d but holds %d bytes",
				ErrBadRecord, e.Layer, e.Channel, e.Width, e.Height, e.Depth, len(e.Data))
		}
		header := fmt.Sprintf("%s%d:%d:%dx%d:%d:%d\n", recordPrefix, e.Layer, e.Channel, e.Width, e.Height, e.Depth, len(e.Data))
		if _, err := io.WriteString(zw, header); err != nil {
			zw.Close()
			return stats, fmt.Errorf("write record header: %w", err)
		}
		if _, err := zw.Write(e.Data); err != nil {
			zw.Close()
			return stats, fmt.Errorf("compress layer %d channel %d: %w", e.Layer, e.Channel, err)
		}
		stats.Entries++
		stats.OriginalSize += int64(len(e.Data))
	}
	// Ensure the compressor is flushed before measuring
	if err := zw.Close(); err != nil {
		return stats, fmt.Errorf("close %s stream: %w", codec, err)
	}
	stats.CompressedSize = cw.n
	if stats.OriginalSize > 0 {
		stats.Ratio = float64(stats.CompressedSize) / float64(stats.OriginalSize) * 100
	}
	return stats, nil
}

func newCompressor(w io.Writer, codec string, level int) (io.WriteCloser, error) {
	switch codec {
	case CodecLZ4:
		lz4Writer := lz4.NewWriter(w)
		if err := lz4Writer.Apply(lz4.CompressionLevelOption(lz4Levels[level])); err != nil {
			return nil, fmt.Errorf("configure lz4: %w", err)
		}
		return lz4Writer, nil
	case CodecZstd:
		encLevel := zstd.SpeedDefault
		if level > 0 {
			encLevel = zstd.EncoderLevelFromZstd(level)
		}
		zstdWriter, err := zstd.NewWriter(w, zstd.WithEncoderLevel(encLevel))
		if err != nil {
			return nil, fmt.Errorf("create zstd writer: %w", err)
		}
		return zstdWriter, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownCodec, codec)
}

// Read decodes an archive written by Write.
func Read(r io.Reader) ([]Entry, string, error) {
	br := bufio.NewReader(r)
	magic, err := br.ReadString('\n')
	if err != nil || strings.TrimSuffix(magic, "\n") != Magic {
		return nil, "", ErrBadArchive
	}
	codecLine, err := br.ReadString('\n')
	if err != nil {
		return nil, "", fmt.Errorf("%w: missing codec line", ErrBadArchive)
	}
	codec := strings.TrimSuffix(codecLine, "\n")

	var src io.Reader
	switch codec {
	case CodecLZ4:
		src = lz4.NewReader(br)
	case CodecZstd:
		zstdReader, err := zstd.NewReader(br)
		if err != nil {
			return nil, codec, fmt.Errorf("create zstd reader: %w", err)
		}
		defer zstdReader.Close()
		src = zstdReader
	default:
		return nil, codec, fmt.Errorf("%w: %q", ErrUnknownCodec, codec)
	}

	records := bufio.NewReader(src)
	var entries []Entry
	for {
		line, err := records.ReadString('\n')
		if err == io.EOF && line == "" {
			return entries, codec, nil
		}
		if err != nil {
			return nil, codec, fmt.Errorf("%w: truncated header after %d records", ErrBadRecord, len(entries))
		}
		e, n, err := parseHeader(strings.TrimSuffix(line, "\n"))
		if err != nil {
			return nil, codec, err
		}
		e.Data = make([]byte, n)
		if _, err := io.ReadFull(records, e.Data); err != nil {
			return nil, codec, fmt.Errorf("%w: layer %d channel %d data: %v", ErrBadRecord, e.Layer, e.Channel, err)
		}
		entries = append(entries, e)
	}
}

// parseHeader splits LAYER:<idx>:<id>:<w>x<h>:<depth>:<n>.
func parseHeader(line string) (Entry, int, error) {
	if !strings.HasPrefix(line, recordPrefix) {
		return Entry{}, 0, fmt.Errorf("%w: %q", ErrBadRecord, line)
	}
	parts := strings.Split(strings.TrimPrefix(line, recordPrefix), ":")
	if len(parts) != 5 {
		return Entry{}, 0, fmt.Errorf("%w: %q", ErrBadRecord, line)
	}
	dims := strings.SplitN(parts[2], "x", 2)
	if len(dims) != 2 {
		return Entry{}, 0, fmt.Errorf("%w: dimensions %q", ErrBadRecord, parts[2])
	}

	var e Entry
	var vals [6]int
	for i, s := range []string{parts[0], parts[1], dims[0], dims[1], parts[3], parts[4]} {
		v, err := strconv.Atoi(s)
		if err != nil || v < 0 && i != 1 {
			return Entry{}, 0, fmt.Errorf("%w: field %q in %q", ErrBadRecord, s, line)
		}
		vals[i] = v
	}
	if vals[1] < -32768 || vals[1] > 32767 {
		return Entry{}, 0, fmt.Errorf("%w: channel id %d", ErrBadRecord, vals[1])
	}
	e.Layer, e.Channel, e.Width, e.Height, e.Depth = vals[0], int16(vals[1]), vals[2], vals[3], vals[4]
	n := vals[5]
	if n > maxPlaneBytes || n != e.Width*e.Height*e.Depth {
		return Entry{}, 0, fmt.Errorf("%w: %d bytes for %dx%dx%d", ErrBadRecord, n, e.Width, e.Height, e.Depth)
	}
	return e, n, nil
}

// Delta writes a bsdiff patch turning base into target.
func Delta(base, target io.Reader, patch io.Writer) error {
	if err := binarydist.Diff(base, target, patch); err != nil {
		return fmt.Errorf("bsdiff delta failed: %w", err)
	}
	return nil
}

// Apply reconstructs target from base and a patch written by Delta.
func Apply(base io.Reader, target io.Writer, patch io.Reader) error {
	if err := binarydist.Patch(base, target, patch); err != nil {
		return fmt.Errorf("bspatch failed: %w", err)
	}
	return nil
}
