package schema

import (
	"encoding/json"
	"io"
)

// RenderJSON writes records as an indented JSON array.
func RenderJSON(w io.Writer, records []Record) error {
	if records == nil {
		records = []Record{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(records)
}
