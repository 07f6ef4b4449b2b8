package psd

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// countingReader tracks how many bytes were pulled through it so nested
// length-prefixed regions can be checked against their declared size.
type countingReader struct {
	r io.Reader
	n uint64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += uint64(n)
	return n, err
}

// readBytes reads exactly n bytes. The buffer grows with the data actually
// read, so a hostile length cannot force a huge allocation up front.
func readBytes(r io.Reader, n uint64) ([]byte, error) {
	if n == 0 {
		return nil, nil
	}
	if n > math.MaxInt32 {
		return nil, fmt.Errorf("region of %d bytes is too large", n)
	}
	data, err := io.ReadAll(io.LimitReader(r, int64(n)))
	if err != nil {
		return nil, err
	}
	if uint64(len(data)) != n {
		return data, io.ErrUnexpectedEOF
	}
	return data, nil
}

// readLength reads a 4-byte, or with wide set an 8-byte, big-endian length.
func readLength(r io.Reader, wide bool) (uint64, error) {
	if wide {
		var v uint64
		err := binary.Read(r, binary.BigEndian, &v)
		return v, err
	}
	var v uint32
	err := binary.Read(r, binary.BigEndian, &v)
	return uint64(v), err
}

func writeLength(w io.Writer, width int, v uint64) error {
	if width == 8 {
		return binary.Write(w, binary.BigEndian, v)
	}
	if v > math.MaxUint32 {
		return fmt.Errorf("length %d does not fit a 4-byte field", v)
	}
	return binary.Write(w, binary.BigEndian, uint32(v))
}

func tell(s io.Seeker) (int64, error) {
	return s.Seek(0, io.SeekCurrent)
}

// Writing a length-prefixed region needs a seekable sink: the length is
// only known once the payload is out, so a zero placeholder is emitted
// first and overwritten afterwards. Buffer provides this in memory for
// targets that cannot seek.

// lengthMark is the handle of one emitted placeholder.
type lengthMark struct {
	w     io.WriteSeeker
	pos   int64 // offset of the length field
	width int
	align int
}

// beginLength emits a zero length field of the given width. On close the
// payload is padded with zeros to a multiple of align.
func beginLength(w io.WriteSeeker, width, align int) (lengthMark, error) {
	pos, err := tell(w)
	if err != nil {
		return lengthMark{}, fmt.Errorf("locate length placeholder: %w", err)
	}
	if err := writeLength(w, width, 0); err != nil {
		return lengthMark{}, fmt.Errorf("write length placeholder: %w", err)
	}
	return lengthMark{w: w, pos: pos, width: width, align: align}, nil
}

// close pads the payload, patches the placeholder with the payload size
// and leaves the stream positioned after the payload.
func (m lengthMark) close() (uint64, error) {
	end, err := tell(m.w)
	if err != nil {
		return 0, fmt.Errorf("locate end of region: %w", err)
	}
	size := end - m.pos - int64(m.width)
	if m.align > 1 {
		if pad := (int64(m.align) - size%int64(m.align)) % int64(m.align); pad > 0 {
			if _, err := m.w.Write(make([]byte, pad)); err != nil {
				return 0, fmt.Errorf("pad region: %w", err)
			}
			size += pad
		}
	}
	if err := patchAt(m.w, m.pos, m.width, uint64(size)); err != nil {
		return 0, err
	}
	return uint64(size), nil
}

// patchAt overwrites a length field at pos and returns to the current end.
func patchAt(w io.WriteSeeker, pos int64, width int, v uint64) error {
	end, err := tell(w)
	if err != nil {
		return fmt.Errorf("locate stream end: %w", err)
	}
	if pos < 0 || pos+int64(width) > end {
		return fmt.Errorf("patch offset %d outside emitted region", pos)
	}
	if _, err := w.Seek(pos, io.SeekStart); err != nil {
		return fmt.Errorf("seek to placeholder at %d: %w", pos, err)
	}
	if err := writeLength(w, width, v); err != nil {
		return fmt.Errorf("patch length at %d: %w", pos, err)
	}
	if _, err := w.Seek(end, io.SeekStart); err != nil {
		return fmt.Errorf("seek back to %d: %w", end, err)
	}
	return nil
}
