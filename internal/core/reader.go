package core

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Row is one non-blank data row.
type Row struct {
	// Number counts data rows from 1, blank rows excluded.
	Number int
	// Line is the physical line the row starts on.
	Line  int
	Cells []string
}

// RowError is a malformed record. Reading may continue after it.
type RowError struct {
	Row  int
	Line int
	Err  error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("row %d (line %d): %v", e.Row, e.Line, e.Err)
}

func (e *RowError) Unwrap() error { return e.Err }

// Reader yields the header and data rows of a delimited text stream,
// skipping blank rows.
type Reader struct {
	csv    *csv.Reader
	quote  byte
	swap   bool
	header []string
	rows   int
}

// NewReader wraps src. The quote character must be ASCII.
func NewReader(src io.Reader, delimiter, quote rune) (*Reader, error) {
	if src == nil {
		return nil, fmt.Errorf("%w: no input", ErrSourceUnreadable)
	}
	if !validSeparator(delimiter) || !validSeparator(quote) || quote >= 0x80 || delimiter == quote {
		return nil, fmt.Errorf("%w: delimiter %q / quote %q", ErrInvalidConfig, delimiter, quote)
	}

	r := &Reader{quote: byte(quote), swap: quote != '"'}
	in := NewTextReader(src)
	if r.swap {
		in = &quoteSwapReader{reader: in, quote: r.quote}
	}

	cr := csv.NewReader(in)
	cr.Comma = delimiter
	cr.FieldsPerRecord = -1 // rows may be ragged
	cr.LazyQuotes = true
	cr.ReuseRecord = false
	r.csv = cr
	return r, nil
}

// Header returns the first non-blank row. Any failure to produce it, an
// empty stream included, is fatal for the run.
func (r *Reader) Header() ([]string, error) {
	if r.header != nil {
		return r.header, nil
	}
	for {
		rec, err := r.csv.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, fmt.Errorf("%w: no header row", ErrSourceUnreadable)
			}
			return nil, fmt.Errorf("%w: %v", ErrSourceUnreadable, err)
		}
		if isBlankRow(rec) {
			continue
		}
		header := r.cells(rec)
		for i, h := range header {
			header[i] = strings.TrimSpace(h)
		}
		r.header = header
		return header, nil
	}
}

// Next returns the next non-blank data row, io.EOF at the end, a *RowError
// for a malformed record, or another error when the stream itself fails.
func (r *Reader) Next() (Row, error) {
	if r.header == nil {
		if _, err := r.Header(); err != nil {
			return Row{}, err
		}
	}
	for {
		rec, err := r.csv.Read()
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				r.rows++
				return Row{}, &RowError{Row: r.rows, Line: parseErr.StartLine, Err: parseErr.Err}
			}
			return Row{}, err
		}
		if isBlankRow(rec) {
			continue
		}
		r.rows++
		line, _ := r.csv.FieldPos(0)
		return Row{Number: r.rows, Line: line, Cells: r.cells(rec)}, nil
	}
}

func (r *Reader) cells(rec []string) []string {
	if r.swap {
		for i := range rec {
			rec[i] = swapQuotes(rec[i], r.quote)
		}
	}
	return rec
}

// isBlankRow: zero cells, or a single cell holding only whitespace.
func isBlankRow(rec []string) bool {
	return len(rec) == 0 || (len(rec) == 1 && strings.TrimSpace(rec[0]) == "")
}
