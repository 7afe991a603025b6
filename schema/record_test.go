package schema

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/hamba/avro/v2"
	"github.com/stretchr/testify/require"
)

func TestRecord_Accessors(t *testing.T) {
	rec := Record{
		"ev":    `"EV"`,
		"units": 12,
		"price": float32(1.5),
		"total": map[string]any{"double": 3.25},
		"date":  "2026-02-01",
		"day":   time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC),
	}

	key, err := rec.Key("ev")
	require.NoError(t, err)
	require.Equal(t, "EV", key)

	units, err := rec.Float("units")
	require.NoError(t, err)
	require.Equal(t, 12.0, units)

	price, err := rec.Float("price")
	require.NoError(t, err)
	require.Equal(t, 1.5, price)

	total, err := rec.Float("total")
	require.NoError(t, err)
	require.Equal(t, 3.25, total)

	d, err := rec.Time("date")
	require.NoError(t, err)
	require.Equal(t, time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC), d)

	_, err = rec.Time("day")
	require.NoError(t, err)

	_, err = rec.Float("ev")
	require.ErrorIs(t, err, ErrFieldType)
	_, err = rec.Float("missing")
	require.ErrorIs(t, err, ErrMissingField)
	_, err = rec.Time("units")
	require.ErrorIs(t, err, ErrFieldType)
}

const csvSchema = `{"type": "record", "name": "Row", "fields": [
  {"name": "model", "type": "string"},
  {"name": "units", "type": "int"},
  {"name": "price", "type": "double"},
  {"name": "weight", "type": "float"},
  {"name": "serial", "type": "long"},
  {"name": "ev", "type": "boolean"},
  {"name": "note", "type": ["null", "string"]}
]}`

func parseRecordSchema(t *testing.T, s string) *avro.RecordSchema {
	t.Helper()

	parsed, err := avro.ParseWithCache(s, "", &avro.SchemaCache{})
	require.NoError(t, err)
	return parsed.(*avro.RecordSchema)
}

func TestRecordsFromCSV(t *testing.T) {
	s := parseRecordSchema(t, csvSchema)

	input := "model, units, price, weight, serial, ev, note, extra\n" +
		"leaf,3,31000.5,1.25,9000000000,true,,ignored\n" +
		"golf,1,24000,1.5,1,false,demo,ignored\n"

	records, err := RecordsFromCSV(strings.NewReader(input), s)
	require.NoError(t, err)
	require.Len(t, records, 2)

	require.Equal(t, Record{
		"model":  "leaf",
		"units":  3,
		"price":  31000.5,
		"weight": float32(1.25),
		"serial": int64(9000000000),
		"ev":     true,
		"note":   nil,
	}, records[0])
	require.Equal(t, "demo", records[1]["note"])
}

func TestRecordsFromCSV_Errors(t *testing.T) {
	s := parseRecordSchema(t, csvSchema)

	_, err := RecordsFromCSV(strings.NewReader("model,units\nleaf,1\n"), s)
	require.ErrorIs(t, err, ErrMissingField)

	_, err = RecordsFromCSV(strings.NewReader(
		"model,units,price,weight,serial,ev,note\nleaf,many,1,1,1,true,\n"), s)
	require.Error(t, err)
	require.Contains(t, err.Error(), "line 2, field units")

	_, err = RecordsFromCSV(strings.NewReader(""), s)
	require.Error(t, err)
}

func TestRenderJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, RenderJSON(&buf, []Record{{"evPremium": 0.25}}))

	var out []map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	require.Equal(t, 0.25, out[0]["evPremium"])

	buf.Reset()
	require.NoError(t, RenderJSON(&buf, nil))
	require.Equal(t, "[]\n", buf.String())
}
