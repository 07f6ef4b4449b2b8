package psd

import (
	"errors"
	"io"
)

// Buffer is an in-memory io.ReadWriteSeeker. Writes inside the buffer
// overwrite, writes past the end grow it. It is the seekable sink for
// callers whose real target is a plain io.Writer.
type Buffer struct {
	buf []byte
	pos int64
}

// NewBuffer returns a Buffer reading from and writing over p.
func NewBuffer(p []byte) *Buffer {
	return &Buffer{buf: p}
}

// Bytes returns the buffer contents. The slice aliases the buffer.
func (b *Buffer) Bytes() []byte { return b.buf }

// Len returns the number of bytes in the buffer.
func (b *Buffer) Len() int { return len(b.buf) }

func (b *Buffer) Write(p []byte) (int, error) {
	end := b.pos + int64(len(p))
	if end > int64(len(b.buf)) {
		if end > int64(cap(b.buf)) {
			grown := make([]byte, end, 2*end)
			copy(grown, b.buf)
			b.buf = grown
		} else {
			old := len(b.buf)
			b.buf = b.buf[:end]
			if b.pos > int64(old) {
				clear(b.buf[old:b.pos])
			}
		}
	}
	copy(b.buf[b.pos:], p)
	b.pos = end
	return len(p), nil
}

func (b *Buffer) Read(p []byte) (int, error) {
	if b.pos >= int64(len(b.buf)) {
		return 0, io.EOF
	}
	n := copy(p, b.buf[b.pos:])
	b.pos += int64(n)
	return n, nil
}

func (b *Buffer) Seek(offset int64, whence int) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = b.pos + offset
	case io.SeekEnd:
		abs = int64(len(b.buf)) + offset
	default:
		return 0, errors.New("psd: invalid whence")
	}
	if abs < 0 {
		return 0, errors.New("psd: negative position")
	}
	b.pos = abs
	return abs, nil
}
