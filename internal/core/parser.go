package core

// parser.go turns an upload stream into a lazy sequence of RowCandidates.
//
// Row-level problems (wrong column count, invalid UTF-8) are attached to the
// candidate and the stream continues. Problems that make the record
// boundaries untrustworthy, such as broken quoting or a failing reader, are
// returned as *StructuralError and end the sequence.

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
)

// Parser yields one RowCandidate per non-blank data row.
// Next returns io.EOF after the last row. The sequence cannot be restarted.
type Parser interface {
	Header() HeaderIndex
	Next() (RowCandidate, error)
	Close() error
}

// ParseOptions configure NewParser.
type ParseOptions struct {
	Format    Format
	Delimiter rune
	Encoding  string
	Required  []string // schema fields that must appear in the header
}

// maxXLSXUnzipXML bounds the in-memory size of one worksheet's XML.
// Larger sheets are spilled to temp files by excelize.
const maxXLSXUnzipXML = 16 << 20

// NewParser reads the header from r and returns a Parser for the data rows.
func NewParser(r io.Reader, opts ParseOptions) (Parser, error) {
	if err := CheckEncoding(opts.Encoding); err != nil {
		return nil, err
	}

	switch opts.Format {
	case FormatCSV, "":
		return newCSVParser(r, opts)
	case FormatXLSX:
		return newXLSXParser(r, opts)
	default:
		return nil, structuralf(0, nil, "unsupported format %q", opts.Format)
	}
}

// DetectFormat infers the upload format from a file name or content type.
func DetectFormat(fileName, contentType string) Format {
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".xlsx", ".xlsm":
		return FormatXLSX
	case ".csv", ".txt", ".tsv":
		return FormatCSV
	}
	if strings.Contains(contentType, "spreadsheetml") {
		return FormatXLSX
	}
	return FormatCSV
}

// ParseFormat validates a user-supplied format name.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "csv":
		return FormatCSV, nil
	case "xlsx", "excel":
		return FormatXLSX, nil
	}
	return "", fmt.Errorf("unsupported format %q", s)
}

// ParseDelimiter validates a user-supplied CSV delimiter.
func ParseDelimiter(s string) (rune, error) {
	switch s {
	case "", ",", "comma":
		return ',', nil
	case ";", "semicolon":
		return ';', nil
	case "\t", "\\t", "tab":
		return '\t', nil
	case "|", "pipe":
		return '|', nil
	}
	return 0, fmt.Errorf("unsupported delimiter %q", s)
}

// CheckEncoding rejects any encoding other than UTF-8.
func CheckEncoding(enc string) error {
	switch strings.ToLower(strings.TrimSpace(enc)) {
	case "", "utf-8", "utf8":
		return nil
	}
	return structuralf(0, nil, "unsupported encoding %q, only utf-8 is accepted", enc)
}

// checkRow flags row-level structural problems.
func checkRow(line int, fields []string, width int) *ValidationError {
	if len(fields) != width {
		return &ValidationError{
			Line:    line,
			Kind:    KindColumnCount,
			Message: fmt.Sprintf("expected %d columns, got %d", width, len(fields)),
		}
	}
	for i, v := range fields {
		if !utf8.ValidString(v) {
			return &ValidationError{
				Line:    line,
				Kind:    KindEncoding,
				Message: fmt.Sprintf("column %d contains invalid UTF-8", i+1),
			}
		}
	}
	return nil
}

// ----------------------------------------------------------------------------
// CSV
// ----------------------------------------------------------------------------

type csvParser struct {
	r      *csv.Reader
	header HeaderIndex
	width  int
}

func newCSVParser(src io.Reader, opts ParseOptions) (*csvParser, error) {
	cr := csv.NewReader(NewBOMSkippingReader(src))
	if opts.Delimiter != 0 {
		cr.Comma = opts.Delimiter
	}
	cr.FieldsPerRecord = -1

	p := &csvParser{r: cr}
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			return nil, structuralf(0, ErrEmptyPayload, "no header row")
		}
		if err != nil {
			return nil, csvError(err)
		}
		if isEmptyRow(rec) {
			continue
		}

		line, _ := cr.FieldPos(0)
		idx, err := ValidateHeaders(line, rec, opts.Required)
		if err != nil {
			return nil, err
		}
		p.header = idx
		p.width = len(rec)
		return p, nil
	}
}

func (p *csvParser) Header() HeaderIndex { return p.header }

func (p *csvParser) Next() (RowCandidate, error) {
	for {
		rec, err := p.r.Read()
		if err == io.EOF {
			return RowCandidate{}, io.EOF
		}
		if err != nil {
			return RowCandidate{}, csvError(err)
		}
		if isEmptyRow(rec) {
			continue
		}

		line, _ := p.r.FieldPos(0)
		return RowCandidate{
			Line:   line,
			Fields: rec,
			Err:    checkRow(line, rec, p.width),
		}, nil
	}
}

func (p *csvParser) Close() error { return nil }

func csvError(err error) error {
	var pe *csv.ParseError
	if errors.As(err, &pe) {
		return structuralf(pe.StartLine, pe.Err, "malformed record")
	}
	return structuralf(0, err, "read upload stream")
}

// ----------------------------------------------------------------------------
// XLSX
// ----------------------------------------------------------------------------

type xlsxParser struct {
	f      *excelize.File
	rows   *excelize.Rows
	line   int
	header HeaderIndex
	width  int
}

func newXLSXParser(src io.Reader, opts ParseOptions) (*xlsxParser, error) {
	f, err := excelize.OpenReader(src, excelize.Options{UnzipXMLSizeLimit: maxXLSXUnzipXML})
	if err != nil {
		return nil, structuralf(0, err, "open workbook")
	}

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		f.Close()
		return nil, structuralf(0, ErrEmptyPayload, "workbook has no sheets")
	}

	rows, err := f.Rows(sheets[0])
	if err != nil {
		f.Close()
		return nil, structuralf(0, err, "read sheet %q", sheets[0])
	}

	p := &xlsxParser{f: f, rows: rows}
	for {
		rec, ok, err := p.read()
		if err != nil {
			p.Close()
			return nil, err
		}
		if !ok {
			p.Close()
			return nil, structuralf(0, ErrEmptyPayload, "no header row")
		}
		if isEmptyRow(rec) {
			continue
		}

		idx, err := ValidateHeaders(p.line, rec, opts.Required)
		if err != nil {
			p.Close()
			return nil, err
		}
		p.header = idx
		p.width = len(rec)
		return p, nil
	}
}

func (p *xlsxParser) read() ([]string, bool, error) {
	if !p.rows.Next() {
		if err := p.rows.Error(); err != nil {
			return nil, false, structuralf(p.line+1, err, "read sheet row")
		}
		return nil, false, nil
	}
	p.line++
	cols, err := p.rows.Columns()
	if err != nil {
		return nil, false, structuralf(p.line, err, "read sheet row")
	}
	return cols, true, nil
}

func (p *xlsxParser) Header() HeaderIndex { return p.header }

func (p *xlsxParser) Next() (RowCandidate, error) {
	for {
		rec, ok, err := p.read()
		if err != nil {
			return RowCandidate{}, err
		}
		if !ok {
			return RowCandidate{}, io.EOF
		}
		if isEmptyRow(rec) {
			continue
		}

		// excelize omits trailing empty cells
		if len(rec) < p.width {
			padded := make([]string, p.width)
			copy(padded, rec)
			rec = padded
		}
		if len(rec) > p.width && isEmptyRow(rec[p.width:]) {
			rec = rec[:p.width]
		}

		return RowCandidate{
			Line:   p.line,
			Fields: rec,
			Err:    checkRow(p.line, rec, p.width),
		}, nil
	}
}

func (p *xlsxParser) Close() error {
	var errs []error
	if p.rows != nil {
		errs = append(errs, p.rows.Close())
	}
	if p.f != nil {
		errs = append(errs, p.f.Close())
	}
	return errors.Join(errs...)
}
