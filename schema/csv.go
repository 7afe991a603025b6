package schema

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/hamba/avro/v2"
)

// RecordsFromCSV reads a header line and rows into records typed by s.
// Columns not declared in s are ignored; declared fields missing from the
// header are an error.
func RecordsFromCSV(r io.Reader, s *avro.RecordSchema) ([]Record, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}

	columns := make(map[string]int, len(header))
	for i, name := range header {
		columns[strings.TrimSpace(name)] = i
	}
	for _, f := range s.Fields() {
		if _, ok := columns[f.Name()]; !ok {
			return nil, fmt.Errorf("%w: column %s", ErrMissingField, f.Name())
		}
	}

	var records []Record
	for line := 2; ; line++ {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		rec := make(Record, len(s.Fields()))
		for _, f := range s.Fields() {
			v, err := parseCell(row[columns[f.Name()]], f.Type())
			if err != nil {
				return nil, fmt.Errorf("line %d, field %s: %w", line, f.Name(), err)
			}
			rec[f.Name()] = v
		}
		records = append(records, rec)
	}

	return records, nil
}

func parseCell(cell string, s avro.Schema) (any, error) {
	s = Deref(s)
	if union, ok := s.(*avro.UnionSchema); ok {
		if cell == "" && union.Nullable() {
			return nil, nil
		}
		for _, branch := range union.Types() {
			if branch.Type() == avro.Null {
				continue
			}
			if v, err := parseCell(cell, branch); err == nil {
				return v, nil
			}
		}
		return nil, fmt.Errorf("%w: %q fits no union branch", ErrFieldType, cell)
	}

	switch s.Type() {
	case avro.String:
		return cell, nil
	case avro.Int:
		n, err := strconv.ParseInt(cell, 10, 32)
		return int(n), err
	case avro.Long:
		return strconv.ParseInt(cell, 10, 64)
	case avro.Float:
		f, err := strconv.ParseFloat(cell, 32)
		return float32(f), err
	case avro.Double:
		return strconv.ParseFloat(cell, 64)
	case avro.Boolean:
		return strconv.ParseBool(cell)
	}
	return nil, fmt.Errorf("%w: unsupported column type %s", ErrFieldType, s.Type())
}
