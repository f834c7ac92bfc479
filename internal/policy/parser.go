// Package policy holds the extraction schema and applies it to policy text.
package policy

import (
	"github.com/toricodesthings/policy-extraction-service/internal/fields"
	"github.com/toricodesthings/policy-extraction-service/internal/segment"
)

// Record maps every schema field to its value. Item is empty for the header.
type Record struct {
	Item   string
	Values map[string]fields.Value
}

// Get returns the value of name, or the not-found value when absent.
func (r Record) Get(name string) fields.Value {
	if v, ok := r.Values[name]; ok {
		return v
	}
	return fields.Missing()
}

// Document is the parsed policy: one header and one record per vehicle span.
type Document struct {
	Header   Record
	Vehicles []Record
}

// PolicyNumber returns the extracted policy number, or "" when not found.
func (d Document) PolicyNumber() string {
	v := d.Header.Get(FieldPolicyNumber)
	if !v.Found {
		return ""
	}
	return v.Text
}

// Parser applies a Schema to policy text. It is safe for concurrent use.
type Parser struct {
	schema *Schema
}

func NewParser(schema *Schema) *Parser {
	return &Parser{schema: schema}
}

func (p *Parser) Schema() *Schema { return p.schema }

// Parse extracts the header from the whole text and one record per span, in
// span order. Missing values never fail; they come back as not found.
func (p *Parser) Parse(text string, spans []segment.Span) Document {
	doc := Document{
		Header:   p.ParseHeader(text),
		Vehicles: make([]Record, 0, len(spans)),
	}
	for _, s := range spans {
		doc.Vehicles = append(doc.Vehicles, p.ParseVehicle(s))
	}
	return doc
}

func (p *Parser) ParseHeader(text string) Record {
	return extractAll(p.schema.Header, text, "")
}

func (p *Parser) ParseVehicle(span segment.Span) Record {
	return extractAll(p.schema.Vehicle, span.Text, span.Item)
}

func extractAll(fs []Field, text, item string) Record {
	rec := Record{Item: item, Values: make(map[string]fields.Value, len(fs))}
	for _, f := range fs {
		rec.Values[f.Name] = f.Extract(text)
	}
	return rec
}
