package schema

import (
	"errors"
	"fmt"

	"github.com/hamba/avro/v2"
)

// Sub-schema field names every envelope must declare.
const (
	FieldAggregateInput   = "aggregateInput"
	FieldAggregateOutput  = "aggregateOutput"
	FieldProvenanceOutput = "provenanceOutput"
	FieldIdentity         = "identity"
)

// ErrMalformedSchema reports an envelope that cannot serve as a schema set.
var ErrMalformedSchema = errors.New("malformed schema")

// Set is the registered envelope and its four sub-schemas.
// DataType is the envelope record name and selects the aggregation strategy.
type Set struct {
	DataType string
	Envelope *avro.RecordSchema

	Input            *avro.RecordSchema
	AggregateOutput  *avro.RecordSchema
	ProvenanceOutput *avro.RecordSchema
	Identity         *avro.RecordSchema

	// ProvenanceKeyField names the string field of ProvenanceOutput that
	// carries the provider identity; RewardField names its record field.
	ProvenanceKeyField string
	RewardField        string
	Rewards            *avro.RecordSchema
}

// ParseEnvelope parses and validates an envelope schema document.
func ParseEnvelope(data []byte) (*Set, error) {
	parsed, err := avro.ParseWithCache(string(data), "", &avro.SchemaCache{})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedSchema, err)
	}

	envelope, ok := parsed.(*avro.RecordSchema)
	if !ok {
		return nil, fmt.Errorf("%w: envelope must be a record, got %s", ErrMalformedSchema, parsed.Type())
	}

	set := &Set{
		DataType: envelope.Name(),
		Envelope: envelope,
	}

	targets := []struct {
		name string
		dst  **avro.RecordSchema
	}{
		{FieldAggregateInput, &set.Input},
		{FieldAggregateOutput, &set.AggregateOutput},
		{FieldProvenanceOutput, &set.ProvenanceOutput},
		{FieldIdentity, &set.Identity},
	}
	for _, target := range targets {
		sub, err := subSchema(envelope, target.name)
		if err != nil {
			return nil, err
		}
		*target.dst = sub
	}

	if err := set.validateIdentity(); err != nil {
		return nil, err
	}
	if err := set.resolveProvenance(); err != nil {
		return nil, err
	}

	return set, nil
}

func subSchema(envelope *avro.RecordSchema, name string) (*avro.RecordSchema, error) {
	for _, f := range envelope.Fields() {
		if f.Name() != name {
			continue
		}
		rec, ok := Deref(f.Type()).(*avro.RecordSchema)
		if !ok {
			return nil, fmt.Errorf("%w: %s must be a record schema", ErrMalformedSchema, name)
		}
		return rec, nil
	}
	return nil, fmt.Errorf("%w: missing sub-schema %s", ErrMalformedSchema, name)
}

func (s *Set) validateIdentity() error {
	fields := s.Identity.Fields()
	if len(fields) != 2 {
		return fmt.Errorf("%w: identity schema must have exactly 2 fields, has %d", ErrMalformedSchema, len(fields))
	}
	for _, f := range fields {
		if Deref(f.Type()).Type() != avro.String {
			return fmt.Errorf("%w: identity field %s must be a string", ErrMalformedSchema, f.Name())
		}
	}
	return nil
}

func (s *Set) resolveProvenance() error {
	fields := s.ProvenanceOutput.Fields()
	if len(fields) != 2 {
		return fmt.Errorf("%w: provenance output must have exactly 2 fields, has %d", ErrMalformedSchema, len(fields))
	}

	for _, f := range fields {
		switch t := Deref(f.Type()).(type) {
		case *avro.RecordSchema:
			if s.RewardField == "" {
				s.RewardField = f.Name()
				s.Rewards = t
			}
		case *avro.PrimitiveSchema:
			if t.Type() == avro.String && s.ProvenanceKeyField == "" {
				s.ProvenanceKeyField = f.Name()
			}
		}
	}

	if s.ProvenanceKeyField == "" || s.RewardField == "" {
		return fmt.Errorf("%w: provenance output needs a string key field and a record reward field", ErrMalformedSchema)
	}
	return nil
}

// IdentityFields returns the public key and role field names, in declaration order.
func (s *Set) IdentityFields() (string, string) {
	fields := s.Identity.Fields()
	return fields[0].Name(), fields[1].Name()
}

// Deref resolves named references to their definition.
func Deref(s avro.Schema) avro.Schema {
	if ref, ok := s.(*avro.RefSchema); ok {
		return ref.Schema()
	}
	return s
}
