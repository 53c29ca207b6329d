package format

import (
	"encoding/csv"
	"errors"
	"io"
	"strings"
)

// Table is one raw tabular section of an export file: ordered column names
// plus data rows. Cells are untyped strings exactly as the vendor emitted
// them.
type Table struct {
	Header []string
	Rows   [][]string
}

var ErrEmptyFile = errors.New("empty_file")

// ParseTable reads a delimited text file into a Table. The delimiter is
// sniffed from the header line: tab wins over comma when both appear.
func ParseTable(r io.Reader) (Table, error) {
	buffered := newPeekReader(r)
	head, err := buffered.PeekLine()
	if err != nil {
		return Table{}, ErrEmptyFile
	}

	reader := csv.NewReader(buffered)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	if strings.Count(head, "\t") > strings.Count(head, ",") {
		reader.Comma = '\t'
	}

	records, err := reader.ReadAll()
	if err != nil {
		return Table{}, err
	}
	if len(records) == 0 {
		return Table{}, ErrEmptyFile
	}

	header := make([]string, len(records[0]))
	for i, col := range records[0] {
		header[i] = strings.TrimSpace(strings.TrimPrefix(col, "\uFEFF"))
	}

	return Table{Header: header, Rows: records[1:]}, nil
}

// Column returns the index of the first header cell equal to any candidate
// (case-insensitive, trimmed), or -1. Candidates are tried in order so
// callers control which vendor alias wins.
func (t Table) Column(candidates ...string) int {
	for _, candidate := range candidates {
		for i, col := range t.Header {
			if strings.EqualFold(strings.TrimSpace(col), candidate) {
				return i
			}
		}
	}
	return -1
}

// Cell returns the trimmed cell at (row, col), or empty when out of range.
func (t Table) Cell(row []string, col int) string {
	if col < 0 || col >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[col])
}

type peekReader struct {
	r      io.Reader
	buf    []byte
	offset int
	eof    bool
}

func newPeekReader(r io.Reader) *peekReader {
	return &peekReader{r: r}
}

// PeekLine returns the first line without consuming it.
func (p *peekReader) PeekLine() (string, error) {
	chunk := make([]byte, 4096)
	for !p.eof && !strings.ContainsRune(string(p.buf), '\n') && len(p.buf) < 1<<20 {
		n, err := p.r.Read(chunk)
		p.buf = append(p.buf, chunk[:n]...)
		if err != nil {
			p.eof = true
			if err != io.EOF {
				return "", err
			}
		}
	}
	if len(p.buf) == 0 {
		return "", io.EOF
	}
	line := string(p.buf)
	if idx := strings.IndexRune(line, '\n'); idx >= 0 {
		line = line[:idx]
	}
	return strings.TrimRight(line, "\r"), nil
}

func (p *peekReader) Read(b []byte) (int, error) {
	if p.offset < len(p.buf) {
		n := copy(b, p.buf[p.offset:])
		p.offset += n
		return n, nil
	}
	if p.eof {
		return 0, io.EOF
	}
	return p.r.Read(b)
}
