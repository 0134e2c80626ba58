// Package handoff writes the files consumed by the ERP form filler: a batch
// JSON of canonical invoices, one JSON document per ticket and hotel stay,
// and a summary workbook.
package handoff

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Kind is the hand-off directory a document belongs to
type Kind string

const (
	KindTransport Kind = "transportation"
	KindLodging   Kind = "hotel"
)

// Field is one key of a hand-off document
type Field struct {
	Key   string
	Value string
}

// Document is one per-invoice hand-off file. Keys are the labels of the ERP
// form and are written in form order.
type Document struct {
	Kind   Kind
	Name   string // path relative to the hand-off root
	Fields []Field
}

// Get returns the value of key, or ""
func (d Document) Get(key string) string {
	for _, f := range d.Fields {
		if f.Key == key {
			return f.Value
		}
	}
	return ""
}

// MarshalJSON writes the fields as one object, keeping their order
func (d Document) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range d.Fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(f.Key)
		if err != nil {
			return nil, fmt.Errorf("encoding key %q: %w", f.Key, err)
		}
		v, err := json.Marshal(f.Value)
		if err != nil {
			return nil, fmt.Errorf("encoding value of %q: %w", f.Key, err)
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Encode renders the document the way the form filler reads it: UTF-8 JSON
// indented by four spaces
func (d Document) Encode() ([]byte, error) {
	raw, err := d.MarshalJSON()
	if err != nil {
		return nil, err
	}
	var out bytes.Buffer
	if err := json.Indent(&out, raw, "", "    "); err != nil {
		return nil, fmt.Errorf("indenting document: %w", err)
	}
	out.WriteByte('\n')
	return out.Bytes(), nil
}
