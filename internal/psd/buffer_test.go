package psd

import (
	"bytes"
	"io"
	"testing"
)

func TestBufferOverwriteAndGrow(t *testing.T) {
	b := NewBuffer(nil)
	b.Write([]byte("hello world"))
	if _, err := b.Seek(6, io.SeekStart); err != nil {
		t.Fatalf("Seek returned error: %v", err)
	}
	b.Write([]byte("WORLD!!"))
	if got := string(b.Bytes()); got != "hello WORLD!!" {
		t.Fatalf("got %q", got)
	}

	if _, err := b.Seek(2, io.SeekEnd); err != nil {
		t.Fatalf("Seek returned error: %v", err)
	}
	b.Write([]byte{'x'})
	want := append([]byte("hello WORLD!!"), 0, 0, 'x')
	if !bytes.Equal(b.Bytes(), want) {
		t.Fatalf("got %q, want %q", b.Bytes(), want)
	}
}

func TestBufferGapIsZeroed(t *testing.T) {
	backing := make([]byte, 4, 16)
	copy(backing[:16], bytes.Repeat([]byte{0xEE}, 16))
	b := NewBuffer(backing)
	b.Seek(8, io.SeekStart)
	b.Write([]byte{1})
	if !bytes.Equal(b.Bytes(), []byte{0xEE, 0xEE, 0xEE, 0xEE, 0, 0, 0, 0, 1}) {
		t.Fatalf("got % x", b.Bytes())
	}
}

func TestBufferRead(t *testing.T) {
	b := NewBuffer([]byte{1, 2, 3})
	p := make([]byte, 2)
	if n, err := b.Read(p); n != 2 || err != nil {
		t.Fatalf("Read = %d, %v", n, err)
	}
	if n, err := b.Read(p); n != 1 || err != nil || p[0] != 3 {
		t.Fatalf("Read = %d, %v, % x", n, err, p)
	}
	if _, err := b.Read(p); err != io.EOF {
		t.Fatalf("got %v, want io.EOF", err)
	}
	if _, err := b.Seek(-1, io.SeekStart); err == nil {
		t.Fatal("expected error for negative position")
	}
}

func TestLengthMarkAlignment(t *testing.T) {
	b := NewBuffer(nil)
	mark, err := beginLength(b, 4, 4)
	if err != nil {
		t.Fatalf("beginLength returned error: %v", err)
	}
	b.Write([]byte{9, 9, 9, 9, 9})
	size, err := mark.close()
	if err != nil {
		t.Fatalf("close returned error: %v", err)
	}
	want := []byte{0, 0, 0, 8, 9, 9, 9, 9, 9, 0, 0, 0}
	if size != 8 || !bytes.Equal(b.Bytes(), want) {
		t.Fatalf("size %d, bytes % x", size, b.Bytes())
	}
}
