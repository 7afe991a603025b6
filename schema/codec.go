package schema

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/hamba/avro/v2"
	"github.com/hamba/avro/v2/ocf"
)

// ErrSchemaMismatch reports a container written with a different schema.
var ErrSchemaMismatch = errors.New("container schema does not match")

// Codec turns record sets into bytes and back under a given schema.
type Codec interface {
	Decode(data []byte, s *avro.RecordSchema) ([]Record, error)
	Encode(records []Record, s *avro.RecordSchema) ([]byte, error)
}

// AvroCodec frames record sets as Avro object container files.
type AvroCodec struct{}

// NewAvroCodec returns the container-file codec.
func NewAvroCodec() *AvroCodec {
	return &AvroCodec{}
}

// Decode reads every record of a container and checks that the writer schema
// has the same canonical fingerprint as s.
func (c *AvroCodec) Decode(data []byte, s *avro.RecordSchema) ([]Record, error) {
	dec, err := ocf.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("reading container header: %w", err)
	}

	writer, err := avro.ParseWithCache(string(dec.Metadata()["avro.schema"]), "", &avro.SchemaCache{})
	if err != nil {
		return nil, fmt.Errorf("parsing container schema: %w", err)
	}
	if writer.Fingerprint() != s.Fingerprint() {
		return nil, fmt.Errorf("%w: expected %s", ErrSchemaMismatch, s.Name())
	}

	var records []Record
	for dec.HasNext() {
		var rec map[string]any
		if err := dec.Decode(&rec); err != nil {
			return nil, fmt.Errorf("decoding record %d: %w", len(records), err)
		}
		records = append(records, Record(rec))
	}
	if err := dec.Error(); err != nil {
		return nil, fmt.Errorf("reading container: %w", err)
	}

	return records, nil
}

// Encode writes records into a new container under s.
func (c *AvroCodec) Encode(records []Record, s *avro.RecordSchema) ([]byte, error) {
	var buf bytes.Buffer
	enc, err := ocf.NewEncoder(s.String(), &buf)
	if err != nil {
		return nil, fmt.Errorf("creating container: %w", err)
	}

	for i, rec := range records {
		if err := enc.Encode(map[string]any(rec)); err != nil {
			return nil, fmt.Errorf("encoding record %d: %w", i, err)
		}
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("closing container: %w", err)
	}

	return buf.Bytes(), nil
}
