// Package schema holds the envelope schema set registered with the enclave
// and the Avro codec used for every record set that crosses its boundary.
//
// An envelope is an Avro record whose name is the data-type tag of the
// coalition and whose four fields carry the sub-schemas:
//
//	{"type": "record", "name": "testSchema2", "fields": [
//	  {"name": "aggregateInput",   "type": {"type": "record", ...}},
//	  {"name": "aggregateOutput",  "type": {"type": "record", ...}},
//	  {"name": "provenanceOutput", "type": {"type": "record", ...}},
//	  {"name": "identity",         "type": {"type": "record", ...}}
//	]}
//
// Record sets are framed as object container files. Decoding checks that the
// writer schema matches the registered one.
package schema
