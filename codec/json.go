package codec

import (
	"encoding/json"
)

// JSON is the standard-library JSON codec.
//
// Persisted record files are UTF-8 JSON objects by contract, so this is
// the default and currently only codec. Implement Codec to slot in a
// different encoder where supported.
type JSON struct{}

// Marshal encodes the value to JSON.
func (JSON) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

// Unmarshal decodes the JSON data into v.
func (JSON) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

// Name returns the unique name of the codec ("json").
func (JSON) Name() string { return "json" }

// Default is the default codec used by the record store.
var Default Codec = JSON{}
