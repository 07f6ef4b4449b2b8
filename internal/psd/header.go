package psd

import (
	"encoding/binary"
	"fmt"
	"io"
)

// ColorMode is the document-wide color model. It decides what every
// non-negative channel id means.
type ColorMode uint16

const (
	Bitmap       ColorMode = 0
	Grayscale    ColorMode = 1
	Indexed      ColorMode = 2
	RGB          ColorMode = 3
	CMYK         ColorMode = 4
	Multichannel ColorMode = 7
	Duotone      ColorMode = 8
	Lab          ColorMode = 9
)

var colorModeNames = map[ColorMode]string{
	Bitmap:       "Bitmap",
	Grayscale:    "Grayscale",
	Indexed:      "Indexed",
	RGB:          "RGB",
	CMYK:         "CMYK",
	Multichannel: "Multichannel",
	Duotone:      "Duotone",
	Lab:          "Lab",
}

func (m ColorMode) String() string {
	if name, ok := colorModeNames[m]; ok {
		return name
	}
	return fmt.Sprintf("ColorMode(%d)", uint16(m))
}

const (
	fileSignature = "8BPS"

	// VersionPSD and VersionPSB select the regular and the large document
	// container. PSB widens several length fields to 8 bytes.
	VersionPSD uint16 = 1
	VersionPSB uint16 = 2

	maxDimensionPSD = 30000
	maxDimensionPSB = 300000
)

// Header carries the document properties every layer codec call needs.
// It is passed explicitly; nothing in this package keeps it globally.
type Header struct {
	Version   uint16
	Channels  uint16
	Height    uint32
	Width     uint32
	Depth     uint16 // bits per channel: 1, 8, 16 or 32
	ColorMode ColorMode
}

// fileHeader is the 26-byte on-disk header.
type fileHeader struct {
	Signature [4]byte
	Version   uint16
	Reserved  [6]byte
	Channels  uint16
	Height    uint32
	Width     uint32
	Depth     uint16
	ColorMode uint16
}

// Large reports whether the header describes a PSB document.
func (h Header) Large() bool {
	return h.Version == VersionPSB
}

// SampleSize returns the number of bytes per channel sample.
func (h Header) SampleSize() int {
	switch h.Depth {
	case 16:
		return 2
	case 32:
		return 4
	default:
		return 1
	}
}

// lengthWidth is the width of section and channel length fields.
func (h Header) lengthWidth() int {
	if h.Large() {
		return 8
	}
	return 4
}

// Validate checks the header fields against the container limits.
func (h Header) Validate() error {
	if h.Version != VersionPSD && h.Version != VersionPSB {
		return fmt.Errorf("%w: unsupported version %d", ErrBadHeader, h.Version)
	}
	if h.Channels < 1 || h.Channels > MaxChannels {
		return fmt.Errorf("%w: channel count %d outside 1..%d", ErrBadHeader, h.Channels, MaxChannels)
	}
	limit := uint32(maxDimensionPSD)
	if h.Large() {
		limit = maxDimensionPSB
	}
	if h.Width < 1 || h.Width > limit || h.Height < 1 || h.Height > limit {
		return fmt.Errorf("%w: dimensions %dx%d outside 1..%d", ErrBadHeader, h.Width, h.Height, limit)
	}
	switch h.Depth {
	case 1, 8, 16, 32:
	default:
		return fmt.Errorf("%w: unsupported depth %d", ErrBadHeader, h.Depth)
	}
	if _, ok := colorModeNames[h.ColorMode]; !ok {
		return fmt.Errorf("%w: unsupported color mode %d", ErrBadHeader, uint16(h.ColorMode))
	}
	return nil
}

// ReadHeader parses and validates the document header.
func ReadHeader(r io.Reader) (Header, error) {
	var raw fileHeader
	if err := binary.Read(r, binary.BigEndian, &raw); err != nil {
		return Header{}, fmt.Errorf("read file header: %w", err)
	}
	if string(raw.Signature[:]) != fileSignature {
		return Header{}, fmt.Errorf("%w: file signature %q", ErrBadSignature, string(raw.Signature[:]))
	}
	h := Header{
		Version:   raw.Version,
		Channels:  raw.Channels,
		Height:    raw.Height,
		Width:     raw.Width,
		Depth:     raw.Depth,
		ColorMode: ColorMode(raw.ColorMode),
	}
	if err := h.Validate(); err != nil {
		return Header{}, err
	}
	return h, nil
}

// WriteHeader writes the 26-byte document header.
func WriteHeader(w io.Writer, h Header) error {
	if err := h.Validate(); err != nil {
		return err
	}
	raw := fileHeader{
		Version:   h.Version,
		Channels:  h.Channels,
		Height:    h.Height,
		Width:     h.Width,
		Depth:     h.Depth,
		ColorMode: uint16(h.ColorMode),
	}
	copy(raw.Signature[:], fileSignature)
	if err := binary.Write(w, binary.BigEndian, &raw); err != nil {
		return fmt.Errorf("write file header: %w", err)
	}
	return nil
}
