package schema

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/hamba/avro/v2"
)

// DateLayout is the layout of string-typed date fields.
const DateLayout = "2006-01-02"

var (
	ErrMissingField = errors.New("missing field")
	ErrFieldType    = errors.New("unexpected field type")
)

// Record is one decoded Avro record.
type Record map[string]any

// PivotTable is a statistic computed per group of a pivot.
// It renders into a {pivotId, data} record or directly into a map field.
type PivotTable struct {
	PivotID string
	Data    map[string]float64
}

func (r Record) value(field string) (any, error) {
	v, ok := r[field]
	if !ok || v == nil {
		return nil, fmt.Errorf("%w: %s", ErrMissingField, field)
	}
	return unwrapUnion(v), nil
}

// Float reads a numeric field as float64.
func (r Record) Float(field string) (float64, error) {
	v, err := r.value(field)
	if err != nil {
		return 0, err
	}

	switch n := v.(type) {
	case int:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case float32:
		return float64(n), nil
	case float64:
		return n, nil
	}
	return 0, fmt.Errorf("%w: %s is %T, want number", ErrFieldType, field, v)
}

// Key returns the grouping key of a field. Quotes around string values are
// stripped so "EV" and EV group together.
func (r Record) Key(field string) (string, error) {
	v, err := r.value(field)
	if err != nil {
		return "", err
	}
	if s, ok := v.(string); ok {
		return strings.Trim(s, `"`), nil
	}
	return fmt.Sprint(v), nil
}

// Time reads a date field stored either as an Avro date or a yyyy-mm-dd string.
func (r Record) Time(field string) (time.Time, error) {
	v, err := r.value(field)
	if err != nil {
		return time.Time{}, err
	}

	switch d := v.(type) {
	case time.Time:
		return d, nil
	case string:
		t, err := time.Parse(DateLayout, strings.Trim(d, `"`))
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: %s: %v", ErrFieldType, field, err)
		}
		return t, nil
	}
	return time.Time{}, fmt.Errorf("%w: %s is %T, want date", ErrFieldType, field, v)
}

// unwrapUnion strips the single-branch map generic decoders use for unions.
func unwrapUnion(v any) any {
	m, ok := v.(map[string]any)
	if !ok || len(m) != 1 {
		return v
	}
	for k, inner := range m {
		switch avro.Type(k) {
		case avro.String, avro.Int, avro.Long, avro.Float, avro.Double, avro.Boolean:
			return inner
		}
	}
	return v
}

// Conform converts a computed value into the Go representation the codec
// expects for s.
func Conform(v any, s avro.Schema) (any, error) {
	s = Deref(s)

	if union, ok := s.(*avro.UnionSchema); ok {
		for _, branch := range union.Types() {
			if branch.Type() == avro.Null {
				continue
			}
			if out, err := Conform(v, branch); err == nil {
				return out, nil
			}
		}
		return nil, fmt.Errorf("%w: %T fits no union branch", ErrFieldType, v)
	}

	switch val := v.(type) {
	case float64:
		return conformNumber(val, s)
	case int:
		return conformNumber(float64(val), s)
	case string:
		if s.Type() != avro.String {
			return nil, fmt.Errorf("%w: string into %s", ErrFieldType, s.Type())
		}
		return val, nil
	case PivotTable:
		return conformPivot(val, s)
	case Record:
		rec, ok := s.(*avro.RecordSchema)
		if !ok {
			return nil, fmt.Errorf("%w: record into %s", ErrFieldType, s.Type())
		}
		out, err := ConformRecord(val, rec)
		if err != nil {
			return nil, err
		}
		return map[string]any(out), nil
	}
	return nil, fmt.Errorf("%w: cannot encode %T", ErrFieldType, v)
}

// ConformRecord conforms every field of rec declared by s. A declared field
// without a value is an error.
func ConformRecord(rec Record, s *avro.RecordSchema) (Record, error) {
	out := make(Record, len(s.Fields()))
	for _, f := range s.Fields() {
		v, ok := rec[f.Name()]
		if !ok {
			return nil, fmt.Errorf("%w: %s.%s", ErrMissingField, s.Name(), f.Name())
		}
		cv, err := Conform(v, f.Type())
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", s.Name(), f.Name(), err)
		}
		out[f.Name()] = cv
	}
	return out, nil
}

func conformNumber(v float64, s avro.Schema) (any, error) {
	switch s.Type() {
	case avro.Int:
		return int(math.Round(v)), nil
	case avro.Long:
		return int64(math.Round(v)), nil
	case avro.Float:
		return float32(v), nil
	case avro.Double:
		return v, nil
	}
	return nil, fmt.Errorf("%w: number into %s", ErrFieldType, s.Type())
}

func conformPivot(p PivotTable, s avro.Schema) (any, error) {
	switch t := s.(type) {
	case *avro.MapSchema:
		return conformMap(p.Data, t)
	case *avro.RecordSchema:
		out := make(map[string]any, 2)
		for _, f := range t.Fields() {
			switch ft := Deref(f.Type()).(type) {
			case *avro.MapSchema:
				m, err := conformMap(p.Data, ft)
				if err != nil {
					return nil, err
				}
				out[f.Name()] = m
			default:
				if ft.Type() != avro.String {
					return nil, fmt.Errorf("%w: pivot record field %s", ErrFieldType, f.Name())
				}
				out[f.Name()] = p.PivotID
			}
		}
		return out, nil
	}
	return nil, fmt.Errorf("%w: pivot table into %s", ErrFieldType, s.Type())
}

func conformMap(data map[string]float64, s *avro.MapSchema) (map[string]any, error) {
	out := make(map[string]any, len(data))
	for k, v := range data {
		cv, err := conformNumber(v, Deref(s.Values()))
		if err != nil {
			return nil, err
		}
		out[k] = cv
	}
	return out, nil
}
