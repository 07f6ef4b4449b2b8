package scanner

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"psdkit/internal/psd"
)

// File contains what a scan learned about one document
type File struct {
	Path       string        `json:"path"`                  // Path as found by the walk
	Format     string        `json:"format"`                // "psd" or "psb"
	FileSize   int64         `json:"file_size"`             // Size in bytes
	Width      uint32        `json:"width"`                 // Canvas width
	Height     uint32        `json:"height"`                // Canvas height
	Depth      uint16        `json:"depth"`                 // Bits per channel
	ColorMode  string        `json:"color_mode"`            // Color mode name
	Layers     int           `json:"layers"`                // Layer count, detailed scans only
	LayerNames []string      `json:"layer_names,omitempty"` // Layer names, detailed scans only
	Hash       string        `json:"hash,omitempty"`        // SHA-256 of the file, detailed scans only
	Detailed   bool          `json:"detailed"`              // Layer records were parsed
	ScanTime   time.Duration `json:"scan_time"`
}

// Result contains scanning results
type Result struct {
	TotalFiles int              `json:"total_files"`
	TotalSize  int64            `json:"total_size"`
	TypeCounts map[string]int   `json:"type_counts"`
	Files      []File           `json:"files"`
	ErrorFiles map[string]error `json:"-"`
	ScanTime   time.Duration    `json:"scan_time"`
}

// Scanner finds PSD and PSB documents below a directory
type Scanner struct {
	// Detailed parses layer records and hashes every file. Otherwise only
	// the header is read.
	Detailed bool

	// DetailThreshold skips the detailed pass for larger files.
	DetailThreshold int64

	// Workers bounds how many files are read at once. 0 means one per CPU.
	Workers int
}

// NewScanner creates a header-only scanner
func NewScanner() *Scanner {
	return &Scanner{DetailThreshold: 500 * 1024 * 1024}
}

// NewDetailedScanner creates a scanner that also parses layer records
func NewDetailedScanner() *Scanner {
	s := NewScanner()
	s.Detailed = true
	return s
}

// IsDocument reports whether path has a PSD or PSB extension
func IsDocument(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".psd", ".psb":
		return true
	}
	return false
}

// skipDir reports directories the walk never enters
func skipDir(name string) bool {
	return strings.HasPrefix(name, ".")
}

// Scan walks root and reads every document found. Files that fail to parse
// are collected in ErrorFiles and do not stop the walk.
func (s *Scanner) Scan(ctx context.Context, root string) (*Result, error) {
	startTime := time.Now()

	result := &Result{
		TypeCounts: make(map[string]int),
		ErrorFiles: make(map[string]error),
	}

	var paths []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			result.ErrorFiles[path] = err
			return nil // Continue scanning despite errors
		}
		if d.IsDir() {
			if path != root && skipDir(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if IsDocument(path) {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("error walking directory: %w", err)
	}
	sort.Strings(paths)

	files := make([]*File, len(paths))
	errs := make([]error, len(paths))
	workers := s.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup
	for i, path := range paths {
		if err := ctx.Err(); err != nil {
			wg.Wait()
			return nil, err
		}
		sem <- struct{}{}
		wg.Add(1)
		go func(i int, path string) {
			defer func() {
				<-sem
				wg.Done()
			}()
			files[i], errs[i] = s.ScanFile(ctx, path)
		}(i, path)
	}
	wg.Wait()

	for i, path := range paths {
		if errs[i] != nil {
			result.ErrorFiles[path] = errs[i]
			continue
		}
		f := files[i]
		result.TotalFiles++
		result.TotalSize += f.FileSize
		result.TypeCounts[f.Format]++
		result.Files = append(result.Files, *f)
	}

	result.ScanTime = time.Since(startTime)
	return result, nil
}

// ScanFile reads one document
func (s *Scanner) ScanFile(ctx context.Context, path string) (*File, error) {
	startTime := time.Now()

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to get file info: %w", err)
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	f := &File{Path: path, FileSize: info.Size()}
	var hdr psd.Header
	if s.Detailed && (s.DetailThreshold <= 0 || info.Size() <= s.DetailThreshold) {
		h := sha256.New()
		r := bufio.NewReaderSize(io.TeeReader(file, h), 1<<20)
		doc, err := psd.ReadDocument(ctx, r, psd.ReadOptions{HeadersOnly: true})
		if err != nil {
			return nil, err
		}
		hdr = doc.Header
		f.Detailed = true
		f.Layers = len(doc.Layers.Layers)
		f.LayerNames = make([]string, 0, f.Layers)
		for _, l := range doc.Layers.Layers {
			f.LayerNames = append(f.LayerNames, l.Record.Name)
		}
		f.Hash = hex.EncodeToString(h.Sum(nil))
	} else if hdr, err = psd.ReadHeader(file); err != nil {
		return nil, err
	}

	f.Format = "psd"
	if hdr.Large() {
		f.Format = "psb"
	}
	f.Width = hdr.Width
	f.Height = hdr.Height
	f.Depth = hdr.Depth
	f.ColorMode = hdr.ColorMode.String()
	f.ScanTime = time.Since(startTime)
	return f, nil
}
