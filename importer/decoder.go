package importer

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"
)

// NormalizeNull maps empty, blank and "NULL" (any case) to nil and trims everything else.
func NormalizeNull(s string) *string {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" || strings.EqualFold(trimmed, "NULL") {
		return nil
	}
	return &trimmed
}

// Decoder is a forward-only reader of schema rows.
type Decoder struct {
	schema Schema
	r      *csv.Reader
}

// NewDecoder reads and checks the header line, then returns a decoder positioned on the first data row.
func NewDecoder(r io.Reader, schema Schema) (*Decoder, error) {
	cr := csv.NewReader(r)
	cr.Comma = schema.Delimiter
	cr.FieldsPerRecord = len(schema.Columns)

	d := &Decoder{schema: schema, r: cr}
	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, &DecodeError{Dataset: schema.Dataset, Err: ErrMissingHeader}
	}
	if err != nil {
		return nil, d.wrap(err)
	}
	if err := d.checkHeader(header); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Decoder) checkHeader(header []string) error {
	for i, col := range d.schema.Columns {
		got := strings.TrimSpace(header[i])
		if i == 0 {
			got = strings.TrimPrefix(got, "\ufeff")
		}
		if !strings.EqualFold(got, col) {
			line, _ := d.r.FieldPos(i)
			return &DecodeError{
				Dataset: d.schema.Dataset,
				Line:    line,
				Err:     fmt.Errorf("%w: column %d is %q, want %q", ErrSchemaMismatch, i+1, got, col),
			}
		}
	}
	return nil
}

// Next returns the next row, or io.EOF once the input is exhausted.
func (d *Decoder) Next() (Row, error) {
	record, err := d.r.Read()
	if errors.Is(err, io.EOF) {
		return nil, io.EOF
	}
	if err != nil {
		return nil, d.wrap(err)
	}
	row := make(Row, len(record))
	for i, field := range record {
		if !utf8.ValidString(field) {
			line, _ := d.r.FieldPos(i)
			return nil, &DecodeError{
				Dataset: d.schema.Dataset,
				Line:    line,
				Err:     fmt.Errorf("%w in column %s", ErrInvalidEncoding, d.schema.Columns[i]),
			}
		}
		row[i] = NormalizeNull(field)
	}
	return row, nil
}

func (d *Decoder) wrap(err error) error {
	var parseErr *csv.ParseError
	if errors.As(err, &parseErr) {
		return &DecodeError{Dataset: d.schema.Dataset, Line: parseErr.Line, Err: parseErr.Err}
	}
	return &DecodeError{Dataset: d.schema.Dataset, Err: err}
}
