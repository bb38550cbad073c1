// Package jsonx routes every JSON encode and decode through goccy/go-json.
package jsonx

import "github.com/goccy/go-json"

var (
	Marshal       = json.Marshal
	MarshalIndent = json.MarshalIndent
	Unmarshal     = json.Unmarshal
)

// Number is produced when decoding with UseNumber and accepted wherever
// tool parameters are type-checked.
type Number = json.Number
