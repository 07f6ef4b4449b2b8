package psd

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/klauspost/compress/zlib"
)

// Compression selects how one channel's samples are stored.
type Compression uint16

const (
	Raw           Compression = 0
	RLE           Compression = 1
	Zip           Compression = 2
	ZipPrediction Compression = 3
)

var compressionNames = map[Compression]string{
	Raw:           "raw",
	RLE:           "rle",
	Zip:           "zip",
	ZipPrediction: "zip-prediction",
}

func (c Compression) String() string {
	if name, ok := compressionNames[c]; ok {
		return name
	}
	return fmt.Sprintf("Compression(%d)", uint16(c))
}

func (c Compression) valid() bool {
	_, ok := compressionNames[c]
	return ok
}

// ParseCompression maps a scheme name as printed by String back to its value.
func ParseCompression(name string) (Compression, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for c, n := range compressionNames {
		if n == name {
			return c, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnsupportedCompression, name)
}

// PlaneShape describes the uncompressed plane a channel decodes to.
type PlaneShape struct {
	Width  int
	Height int
	Depth  int  // bytes per sample: 1, 2 or 4
	Large  bool // PSB: RLE scanline counts are 4 bytes wide
}

// RowBytes returns the size of one scanline in bytes.
func (s PlaneShape) RowBytes() int { return s.Width * s.Depth }

// Len returns the size of the whole plane in bytes.
func (s PlaneShape) Len() int { return s.RowBytes() * s.Height }

func (s PlaneShape) validate() error {
	if s.Depth != 1 && s.Depth != 2 && s.Depth != 4 {
		return fmt.Errorf("psd: invalid sample depth %d", s.Depth)
	}
	if s.Width < 0 || s.Height < 0 {
		return fmt.Errorf("psd: invalid plane size %dx%d", s.Width, s.Height)
	}
	if s.Width > 0 && s.Height > math.MaxInt32/s.Width/s.Depth {
		return fmt.Errorf("psd: plane %dx%d is too large", s.Width, s.Height)
	}
	return nil
}

func (s PlaneShape) countSize() int {
	if s.Large {
		return 4
	}
	return 2
}

// DecodeChannel decodes one channel's payload, the bytes following its
// 2-byte compression selector. Samples come back in scanline order,
// big-endian for 16 and 32-bit depths.
func DecodeChannel(data []byte, c Compression, shape PlaneShape) ([]byte, error) {
	samples, _, err := decodeChannel(data, c, shape)
	return samples, err
}

// decodeChannel also reports how many payload bytes the scheme consumed.
func decodeChannel(data []byte, c Compression, shape PlaneShape) ([]byte, int, error) {
	if err := shape.validate(); err != nil {
		return nil, 0, err
	}
	if !c.valid() {
		return nil, 0, fmt.Errorf("%w: %d", ErrUnsupportedCompression, uint16(c))
	}
	if shape.Len() == 0 {
		return []byte{}, 0, nil
	}
	switch c {
	case Raw:
		n := shape.Len()
		if len(data) < n {
			return nil, 0, fmt.Errorf("%w: raw plane needs %d bytes, have %d", ErrTruncatedChannel, n, len(data))
		}
		out := make([]byte, n)
		copy(out, data)
		return out, n, nil
	case RLE:
		return decodeRLE(data, shape)
	default:
		out, consumed, err := inflate(data, shape.Len())
		if err != nil {
			return nil, 0, err
		}
		if c == ZipPrediction {
			unpredict(out, shape)
		}
		return out, consumed, nil
	}
}

// EncodeChannel encodes a plane with the given scheme. It fails only when
// samples does not match the shape or an RLE scanline outgrows its count
// field.
func EncodeChannel(samples []byte, c Compression, shape PlaneShape) ([]byte, error) {
	if err := shape.validate(); err != nil {
		return nil, err
	}
	if !c.valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedCompression, uint16(c))
	}
	if len(samples) != shape.Len() {
		return nil, fmt.Errorf("psd: plane %dx%dx%d needs %d bytes, got %d",
			shape.Width, shape.Height, shape.Depth, shape.Len(), len(samples))
	}
	if shape.Len() == 0 {
		return []byte{}, nil
	}
	switch c {
	case Raw:
		return append([]byte(nil), samples...), nil
	case RLE:
		return encodeRLE(samples, shape)
	case Zip:
		return deflate(samples), nil
	default:
		predicted := append([]byte(nil), samples...)
		predict(predicted, shape)
		return deflate(predicted), nil
	}
}

func decodeRLE(data []byte, shape PlaneShape) ([]byte, int, error) {
	cs := shape.countSize()
	pos := shape.Height * cs
	if len(data) < pos {
		return nil, 0, fmt.Errorf("%w: %d scanline counts need %d bytes, have %d",
			ErrTruncatedChannel, shape.Height, pos, len(data))
	}
	row := shape.RowBytes()
	out := make([]byte, shape.Len())
	for y := 0; y < shape.Height; y++ {
		var n int
		if cs == 4 {
			n = int(binary.BigEndian.Uint32(data[y*4:]))
		} else {
			n = int(binary.BigEndian.Uint16(data[y*2:]))
		}
		if n < 0 || n > len(data)-pos {
			return nil, 0, fmt.Errorf("%w: scanline %d needs %d bytes, have %d",
				ErrTruncatedChannel, y, n, len(data)-pos)
		}
		if err := unpackBits(out[y*row:(y+1)*row], data[pos:pos+n]); err != nil {
			return nil, 0, fmt.Errorf("scanline %d: %w", y, err)
		}
		pos += n
	}
	return out, pos, nil
}

// unpackBits fills dst from PackBits-encoded src. A header byte h in
// 0..127 copies h+1 literal bytes, -127..-1 repeats the next byte 1-h
// times and -128 is a no-op.
func unpackBits(dst, src []byte) error {
	o := 0
	for i := 0; o < len(dst); {
		if i >= len(src) {
			return fmt.Errorf("%w: scanline short by %d bytes", ErrTruncatedChannel, len(dst)-o)
		}
		h := int(int8(src[i]))
		i++
		switch {
		case h >= 0:
			n := h + 1
			if i+n > len(src) {
				return fmt.Errorf("%w: literal run of %d bytes cut short", ErrTruncatedChannel, n)
			}
			if o+n > len(dst) {
				return fmt.Errorf("%w: literal run overflows scanline", ErrCorruptChannel)
			}
			copy(dst[o:], src[i:i+n])
			i += n
			o += n
		case h == -128:
		default:
			n := 1 - h
			if i >= len(src) {
				return fmt.Errorf("%w: repeat run without a value", ErrTruncatedChannel)
			}
			if o+n > len(dst) {
				return fmt.Errorf("%w: repeat run overflows scanline", ErrCorruptChannel)
			}
			b := src[i]
			i++
			for j := 0; j < n; j++ {
				dst[o+j] = b
			}
			o += n
		}
	}
	return nil
}

func encodeRLE(samples []byte, shape PlaneShape) ([]byte, error) {
	cs := shape.countSize()
	row := shape.RowBytes()
	out := make([]byte, shape.Height*cs, shape.Height*cs+shape.Len()+shape.Len()/128+shape.Height)
	for y := 0; y < shape.Height; y++ {
		start := len(out)
		out = packBits(out, samples[y*row:(y+1)*row])
		n := len(out) - start
		if cs == 2 {
			if n > math.MaxUint16 {
				return nil, fmt.Errorf("psd: scanline %d packs to %d bytes, too long for a 2-byte count", y, n)
			}
			binary.BigEndian.PutUint16(out[y*2:], uint16(n))
		} else {
			binary.BigEndian.PutUint32(out[y*4:], uint32(n))
		}
	}
	return out, nil
}

// packBits appends the PackBits encoding of src to dst. Two or more equal
// bytes become a repeat run; everything else goes into literal runs.
func packBits(dst, src []byte) []byte {
	for i := 0; i < len(src); {
		j := i + 1
		for j < len(src) && j-i < 128 && src[j] == src[i] {
			j++
		}
		if n := j - i; n >= 2 {
			dst = append(dst, byte(int8(1-n)), src[i])
			i = j
			continue
		}
		for j < len(src) && j-i < 128 {
			if j+1 < len(src) && src[j] == src[j+1] {
				break
			}
			j++
		}
		dst = append(dst, byte(j-i-1))
		dst = append(dst, src[i:j]...)
		i = j
	}
	return dst
}

// inflate decompresses a zlib stream into exactly n bytes.
func inflate(data []byte, n int) ([]byte, int, error) {
	br := bytes.NewReader(data)
	zr, err := zlib.NewReader(br)
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, 0, fmt.Errorf("%w: zlib header cut short", ErrTruncatedChannel)
		}
		return nil, 0, fmt.Errorf("%w: %v", ErrCorruptChannel, err)
	}
	defer zr.Close()

	out := make([]byte, n)
	if _, err := io.ReadFull(zr, out); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, 0, fmt.Errorf("%w: zlib stream ended before %d bytes", ErrTruncatedChannel, n)
		}
		return nil, 0, fmt.Errorf("%w: %v", ErrCorruptChannel, err)
	}
	// Drain to the end of the stream so the checksum gets verified.
	var probe [1]byte
	if _, err := zr.Read(probe[:]); err != nil && !errors.Is(err, io.EOF) {
		return nil, 0, fmt.Errorf("%w: %v", ErrCorruptChannel, err)
	}
	return out, len(data) - br.Len(), nil
}

func deflate(p []byte) []byte {
	var buf bytes.Buffer
	zw, err := zlib.NewWriterLevel(&buf, zlib.DefaultCompression)
	if err != nil {
		panic(err)
	}
	// Writes to a bytes.Buffer cannot fail.
	zw.Write(p)
	zw.Close()
	return buf.Bytes()
}

// predict replaces every sample with its difference to the previous one in
// the same scanline. 32-bit rows are first split into four byte planes,
// most significant byte first, and then byte-delta coded across the row.
func predict(p []byte, shape PlaneShape) {
	row := shape.RowBytes()
	var scratch []byte
	if shape.Depth == 4 {
		scratch = make([]byte, row)
	}
	for y := 0; y < shape.Height; y++ {
		line := p[y*row : (y+1)*row]
		switch shape.Depth {
		case 1:
			for x := len(line) - 1; x > 0; x-- {
				line[x] -= line[x-1]
			}
		case 2:
			for x := shape.Width - 1; x > 0; x-- {
				cur := binary.BigEndian.Uint16(line[x*2:])
				prev := binary.BigEndian.Uint16(line[(x-1)*2:])
				binary.BigEndian.PutUint16(line[x*2:], cur-prev)
			}
		case 4:
			w := shape.Width
			for x := 0; x < w; x++ {
				for b := 0; b < 4; b++ {
					scratch[b*w+x] = line[x*4+b]
				}
			}
			copy(line, scratch)
			for x := len(line) - 1; x > 0; x-- {
				line[x] -= line[x-1]
			}
		}
	}
}

// unpredict is the inverse of predict.
func unpredict(p []byte, shape PlaneShape) {
	row := shape.RowBytes()
	var scratch []byte
	if shape.Depth == 4 {
		scratch = make([]byte, row)
	}
	for y := 0; y < shape.Height; y++ {
		line := p[y*row : (y+1)*row]
		switch shape.Depth {
		case 1:
			for x := 1; x < len(line); x++ {
				line[x] += line[x-1]
			}
		case 2:
			for x := 1; x < shape.Width; x++ {
				cur := binary.BigEndian.Uint16(line[x*2:])
				prev := binary.BigEndian.Uint16(line[(x-1)*2:])
				binary.BigEndian.PutUint16(line[x*2:], cur+prev)
			}
		case 4:
			for x := 1; x < len(line); x++ {
				line[x] += line[x-1]
			}
			w := shape.Width
			for x := 0; x < w; x++ {
				for b := 0; b < 4; b++ {
					scratch[x*4+b] = line[b*w+x]
				}
			}
			copy(line, scratch)
		}
	}
}
