package psd

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sort"
)

// PixelSink receives decoded channel planes.
type PixelSink interface {
	SetPlane(id int16, bounds Rect, depth int, samples []byte) error
}

// PixelSource supplies the planes of a layer being written.
type PixelSource interface {
	Plane(id int16, bounds Rect, depth int) ([]byte, error)
}

// Plane is one decoded channel: bounds.Width()*bounds.Height() samples of
// depth bytes each, big-endian, in scanline order.
type Plane struct {
	ID      int16
	Bounds  Rect
	Depth   int
	Samples []byte
}

// Planes is a map-backed PixelSink and PixelSource.
type Planes struct {
	planes map[int16]*Plane
}

// NewPlanes returns an empty plane set.
func NewPlanes() *Planes {
	return &Planes{planes: make(map[int16]*Plane)}
}

// SetPlane stores a plane, replacing any previous plane with the same id.
func (p *Planes) SetPlane(id int16, bounds Rect, depth int, samples []byte) error {
	if want := bounds.Width() * bounds.Height() * depth; !bounds.Empty() && len(samples) != want {
		return fmt.Errorf("plane %d: %d bytes do not cover %v at depth %d", id, len(samples), bounds, depth)
	}
	p.planes[id] = &Plane{ID: id, Bounds: bounds, Depth: depth, Samples: samples}
	return nil
}

// Plane returns the samples of channel id. Bounds and depth must match what
// was stored.
func (p *Planes) Plane(id int16, bounds Rect, depth int) ([]byte, error) {
	pl, ok := p.planes[id]
	if !ok {
		return nil, fmt.Errorf("no plane for channel %d", id)
	}
	if pl.Bounds != bounds || pl.Depth != depth {
		return nil, fmt.Errorf("plane %d is %v at depth %d, want %v at depth %d",
			id, pl.Bounds, pl.Depth, bounds, depth)
	}
	return pl.Samples, nil
}

// Get returns the plane of channel id.
func (p *Planes) Get(id int16) (*Plane, bool) {
	pl, ok := p.planes[id]
	return pl, ok
}

// IDs returns the stored channel ids in ascending order.
func (p *Planes) IDs() []int16 {
	ids := make([]int16, 0, len(p.planes))
	for id := range p.planes {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// ReadPixelData reads every channel of the record, in table order, and
// hands the decoded planes to sink. Exactly the declared channel lengths
// are consumed.
func (l *LayerRecord) ReadPixelData(r io.Reader, hdr Header, sink PixelSink) error {
	raw, err := l.readRawChannels(r)
	if err != nil {
		return err
	}
	return l.decodeRawChannels(raw, hdr, sink)
}

// readRawChannels pulls the compressed channel payloads off the stream
// without decoding them.
func (l *LayerRecord) readRawChannels(r io.Reader) ([][]byte, error) {
	raw := make([][]byte, len(l.Channels))
	for i, ch := range l.Channels {
		data, err := readBytes(r, ch.Length)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return nil, fmt.Errorf("%w: channel %d declares %d bytes, stream has %d",
					ErrTruncatedChannel, ch.ID, ch.Length, len(data))
			}
			return nil, fmt.Errorf("read channel %d: %w", ch.ID, err)
		}
		raw[i] = data
	}
	return raw, nil
}

// decodeRawChannels decodes payloads returned by readRawChannels. It only
// touches l's channel descriptors, so distinct layers may be decoded
// concurrently.
func (l *LayerRecord) decodeRawChannels(raw [][]byte, hdr Header, sink PixelSink) error {
	depth := hdr.SampleSize()
	for i := range l.Channels {
		ch := &l.Channels[i]
		bounds := l.channelBounds(*ch)
		data := raw[i]

		if len(data) == 0 {
			if !bounds.Empty() {
				return fmt.Errorf("%w: channel %d has no data for %v", ErrTruncatedChannel, ch.ID, bounds)
			}
			if err := sink.SetPlane(ch.ID, bounds, depth, nil); err != nil {
				return err
			}
			continue
		}
		if len(data) < 2 {
			return fmt.Errorf("%w: channel %d lacks a compression selector", ErrTruncatedChannel, ch.ID)
		}
		c := Compression(binary.BigEndian.Uint16(data))
		shape := PlaneShape{Width: bounds.Width(), Height: bounds.Height(), Depth: depth, Large: hdr.Large()}
		if bounds.Empty() {
			shape.Width, shape.Height = 0, 0
		}
		samples, consumed, err := decodeChannel(data[2:], c, shape)
		if err != nil {
			return fmt.Errorf("channel %d (%s): %w", ch.ID, ResolveChannel(ch.ID, hdr.ColorMode).Name, err)
		}
		ch.Compression = c
		ch.Residual = len(data) - 2 - consumed
		if ch.Residual > 0 {
			Logger().Warn("channel has residual bytes", "channel", ch.ID, "compression", c, "residual", ch.Residual)
		}
		if err := sink.SetPlane(ch.ID, bounds, depth, samples); err != nil {
			return err
		}
	}
	return nil
}

// WritePixelData writes every channel, in table order, compressed with c,
// and patches the length placeholders Write left behind. Write must have
// been called on the same stream first.
func (l *LayerRecord) WritePixelData(w io.WriteSeeker, hdr Header, src PixelSource, c Compression) error {
	if !c.valid() {
		return fmt.Errorf("%w: %d", ErrUnsupportedCompression, uint16(c))
	}
	depth := hdr.SampleSize()
	for i := range l.Channels {
		ch := &l.Channels[i]
		bounds := l.channelBounds(*ch)

		start, err := tell(w)
		if err != nil {
			return fmt.Errorf("locate channel %d: %w", ch.ID, err)
		}
		scheme := c
		var payload []byte
		if bounds.Empty() {
			scheme = Raw
		} else {
			samples, err := src.Plane(ch.ID, bounds, depth)
			if err != nil {
				return err
			}
			shape := PlaneShape{Width: bounds.Width(), Height: bounds.Height(), Depth: depth, Large: hdr.Large()}
			if payload, err = EncodeChannel(samples, scheme, shape); err != nil {
				return fmt.Errorf("encode channel %d: %w", ch.ID, err)
			}
		}
		if err := binary.Write(w, binary.BigEndian, uint16(scheme)); err != nil {
			return fmt.Errorf("write channel %d compression: %w", ch.ID, err)
		}
		if _, err := w.Write(payload); err != nil {
			return fmt.Errorf("write channel %d: %w", ch.ID, err)
		}
		end, err := tell(w)
		if err != nil {
			return fmt.Errorf("locate channel %d end: %w", ch.ID, err)
		}
		if err := patchChannel(w, ch, uint64(end-start), hdr); err != nil {
			return err
		}
		ch.Compression = scheme
		ch.Residual = 0
		Logger().Debug("wrote channel", "channel", ch.ID, "compression", scheme, "length", ch.Length)
	}
	return nil
}
