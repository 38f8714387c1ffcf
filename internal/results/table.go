// Package results turns the ETL output file into the response table.
package results

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Table is a parsed CSV file. Every row has exactly len(Header) cells.
type Table struct {
	Header []string
	Rows   [][]string
}

// Len returns the number of records.
func (t Table) Len() int {
	return len(t.Rows)
}

// Records returns one record per row, keyed by header.
func (t Table) Records() []Record {
	out := make([]Record, len(t.Rows))
	for i, row := range t.Rows {
		out[i] = Record{header: t.Header, values: row}
	}
	return out
}

// MarshalJSON encodes the table as an array of objects in file order.
func (t Table) MarshalJSON() ([]byte, error) {
	records := t.Records()
	if records == nil {
		records = []Record{}
	}
	return json.Marshal(records)
}

// Record maps column header to cell value. Keys keep the column order.
type Record struct {
	header []string
	values []string
}

func (r Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, h := range r.header {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(h)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(r.values[i])
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// ParseError carries the CSV reader's message for the response body.
type ParseError struct {
	Err error
}

func (e ParseError) Error() string {
	if e.Err == nil {
		return "parse output"
	}
	return e.Err.Error()
}

func (e ParseError) Unwrap() error { return e.Err }

var errDuplicateColumn = errors.New("duplicate column")

// ParseCSV reads a header row followed by data rows. Rows whose field count
// differs from the header, malformed quoting and duplicate header names are
// errors. An empty input yields an empty table.
func ParseCSV(r io.Reader) (Table, error) {
	br := bufio.NewReader(r)
	if prefix, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(prefix, utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
	}

	cr := csv.NewReader(br)
	cr.FieldsPerRecord = 0

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return Table{}, nil
	}
	if err != nil {
		return Table{}, ParseError{Err: err}
	}
	seen := make(map[string]struct{}, len(header))
	for _, h := range header {
		if _, dup := seen[h]; dup {
			return Table{}, ParseError{Err: fmt.Errorf("%w %q in header", errDuplicateColumn, h)}
		}
		seen[h] = struct{}{}
	}

	t := Table{Header: header}
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Table{}, ParseError{Err: err}
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}
