package core

// streaming.go prepares an uploaded byte stream for the CSV parser without
// buffering the whole file:
//
//   - CountingReader tracks raw bytes consumed for progress reporting
//   - the x/text BOM override strips a UTF-8 BOM and decodes UTF-16 files
//     that announce themselves with one
//   - the UTF-8 decoder replaces invalid byte sequences with U+FFFD
//   - quoteSwapReader lets encoding/csv handle a quote character other than '"'

import (
	"io"
	"strings"
	"sync/atomic"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// CountingReader wraps an io.Reader to track bytes read.
type CountingReader struct {
	reader io.Reader
	read   atomic.Int64
	Total  int64 // 0 if unknown
}

// NewCountingReader creates a counting reader with an optional total size.
func NewCountingReader(r io.Reader, total int64) *CountingReader {
	return &CountingReader{reader: r, Total: total}
}

func (r *CountingReader) Read(p []byte) (int, error) {
	n, err := r.reader.Read(p)
	r.read.Add(int64(n))
	return n, err
}

// BytesRead is safe to call while another goroutine reads.
func (r *CountingReader) BytesRead() int64 {
	return r.read.Load()
}

// Progress returns read progress as a percentage, 0 when the total is unknown.
func (r *CountingReader) Progress() int {
	if r.Total <= 0 {
		return 0
	}
	return int(r.BytesRead() * 100 / r.Total)
}

// NewTextReader strips a byte order mark and yields valid UTF-8.
func NewTextReader(r io.Reader) io.Reader {
	return transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder()))
}

// quoteSwapReader exchanges quote and '"' byte for byte. Applied before
// encoding/csv and undone on every parsed cell with swapQuotes.
type quoteSwapReader struct {
	reader io.Reader
	quote  byte
}

func (r *quoteSwapReader) Read(p []byte) (int, error) {
	n, err := r.reader.Read(p)
	for i := 0; i < n; i++ {
		switch p[i] {
		case r.quote:
			p[i] = '"'
		case '"':
			p[i] = r.quote
		}
	}
	return n, err
}

func swapQuotes(s string, quote byte) string {
	if !strings.ContainsAny(s, string([]byte{quote, '"'})) {
		return s
	}
	b := []byte(s)
	for i := range b {
		switch b[i] {
		case quote:
			b[i] = '"'
		case '"':
			b[i] = quote
		}
	}
	return string(b)
}
